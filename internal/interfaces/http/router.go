package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
)

// RouterDeps dependencias para el router.
type RouterDeps struct {
	Stock   *stock.Service
	Matcher *dispensing.Matcher
	Scan    *scan.Router
}

// Router registra las rutas de la API.
func Router(app *fiber.App, deps RouterDeps) {
	api := app.Group("/api")

	// Lecturas RFID: la sesión llega en el body o en X-Operator-Session.
	scanHandler := NewScanHandler(deps.Scan)
	api.Post("/rfid/events", SessionMiddleware(), scanHandler.PostEvent)

	// Sesiones de operador
	sessions := api.Group("/sessions")
	sessions.Get("/:session", SessionMiddleware(), scanHandler.GetSession)
	sessions.Post("/:session/binding", SessionMiddleware(), scanHandler.StartBinding)
	sessions.Post("/:session/context", SessionMiddleware(), scanHandler.SupplyContext)
	sessions.Delete("/:session/pending", SessionMiddleware(), scanHandler.CancelPending)
	sessions.Post("/:session/dispensing", SessionMiddleware(), scanHandler.StartDispensing)
	sessions.Delete("/:session/dispensing", SessionMiddleware(), scanHandler.StopDispensing)

	// Lotes
	batches := api.Group("/batches")
	batchHandler := NewBatchHandler(deps.Stock)
	batches.Get("/", batchHandler.ListByUID)
	batches.Post("/inbound", batchHandler.Inbound)
	batches.Get("/:id", batchHandler.GetByID)
	batches.Get("/:id/ledger", batchHandler.Ledger)
	batches.Post("/:id/adjust", batchHandler.Adjust)
	batches.Put("/:id/tag", batchHandler.BindTag)

	// Productos (solo lectura de stock)
	products := api.Group("/products")
	productHandler := NewProductHandler(deps.Stock)
	products.Get("/replenishment", productHandler.Replenishment)
	products.Get("/:id/batches", productHandler.Batches)
	products.Get("/:id/stock", productHandler.Stock)
	products.Get("/:id/ledger", productHandler.Ledger)

	api.Get("/areas", productHandler.Areas)

	// Recetas
	prescriptions := api.Group("/prescriptions")
	prescriptionHandler := NewPrescriptionHandler(deps.Matcher, deps.Stock.Normalizer())
	prescriptions.Post("/", prescriptionHandler.Create)
	prescriptions.Get("/:id", prescriptionHandler.GetByID)
	prescriptions.Post("/:id/dispense", SessionMiddleware(), prescriptionHandler.Dispense)
}
