package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
)

// ProductHandler consultas de stock por producto y áreas. El catálogo vive fuera de este servicio.
type ProductHandler struct {
	svc *stock.Service
}

// NewProductHandler construye el handler.
func NewProductHandler(svc *stock.Service) *ProductHandler {
	return &ProductHandler{svc: svc}
}

// Batches godoc
// @Summary      Lotes de un producto en orden FIFO
// @Tags         products
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {array}   dto.BatchResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/batches [get]
func (h *ProductHandler) Batches(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_ID", Message: "id es requerido"})
	}
	list, err := h.svc.BatchesByProduct(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBatches(list))
}

// Stock godoc
// @Summary      Stock total de un producto
// @Tags         products
// @Produce      json
// @Param        id   path  string  true  "ID del producto"
// @Success      200  {object}  dto.ProductStockResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/stock [get]
func (h *ProductHandler) Stock(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_ID", Message: "id es requerido"})
	}
	p, total, err := h.svc.CurrentStock(c.Context(), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(dto.ProductStockResponse{
		ProductID:    p.ID,
		Name:         p.Name,
		Total:        total,
		MinimumStock: p.MinimumStock,
		Low:          p.MinimumStock > 0 && total < p.MinimumStock,
		AverageCost:  p.AverageCost,
	})
}

// Replenishment godoc
// @Summary      Lista de reposición
// @Description  Productos bajo su stock mínimo con la cantidad sugerida (mínimo * 1.5 - stock),
//
//	ordenados por déficit relativo y consumo de los últimos 30 días.
//
// @Tags         products
// @Produce      json
// @Success      200  {object}  map[string]interface{}
// @Router       /api/products/replenishment [get]
func (h *ProductHandler) Replenishment(c *fiber.Ctx) error {
	list, err := h.svc.ReplenishmentList(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.ReplenishmentSuggestionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, dto.ReplenishmentSuggestionResponse{
			ProductID:         s.Product.ID,
			ProductName:       s.Product.Name,
			CurrentStock:      s.CurrentStock,
			MinimumStock:      s.Product.MinimumStock,
			IdealStock:        s.IdealStock,
			SuggestedQuantity: s.SuggestedQuantity,
			AverageCost:       s.Product.AverageCost,
			EstimatedCost:     s.EstimatedCost,
			Consumed30Days:    s.Consumed30Days,
			Priority:          s.Priority,
		})
	}
	return c.JSON(fiber.Map{
		"total":          len(out),
		"replenishments": out,
	})
}

// Ledger godoc
// @Summary      Libro de stock del producto (todos sus lotes)
// @Tags         products
// @Produce      json
// @Param        id      path   string  true   "ID del producto"
// @Param        limit   query  int     false  "Límite"  default(50)
// @Param        offset  query  int     false  "Offset"  default(0)
// @Success      200  {array}   dto.LedgerEntryResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/products/{id}/ledger [get]
func (h *ProductHandler) Ledger(c *fiber.Ctx) error {
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()
	entries, err := h.svc.ProductLedger(c.Context(), c.Params("id"), page.Limit, page.Offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toLedger(entries))
}

// Areas godoc
// @Summary      Áreas destino
// @Tags         areas
// @Produce      json
// @Success      200  {array}  dto.AreaResponse
// @Router       /api/areas [get]
func (h *ProductHandler) Areas(c *fiber.Ctx) error {
	areas, err := h.svc.Areas(c.Context())
	if err != nil {
		return writeError(c, err)
	}
	out := make([]dto.AreaResponse, 0, len(areas))
	for _, a := range areas {
		out = append(out, dto.AreaResponse{ID: a.ID, Name: a.Name, Description: a.Description})
	}
	return c.JSON(out)
}
