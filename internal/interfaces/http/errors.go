package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
)

type errorMapping struct {
	target  error
	status  int
	code    string
	message string
}

// Orden relevante: los errores más específicos primero.
var errorTable = []errorMapping{
	{domain.ErrMalformedTag, fiber.StatusBadRequest, "MALFORMED_TAG", "tag RFID mal formado"},
	{domain.ErrInvalidInput, fiber.StatusBadRequest, "VALIDATION", "datos inválidos"},
	{domain.ErrNoMatchingBatch, fiber.StatusNotFound, "NO_MATCHING_BATCH", "ningún lote coincide con el tag"},
	{domain.ErrNoPendingContext, fiber.StatusNotFound, "NO_PENDING_CONTEXT", "no hay contexto pendiente"},
	{domain.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND", "recurso no encontrado"},
	{domain.ErrConflict, fiber.StatusConflict, "CONFLICT", "conflicto concurrente, reintente"},
	{domain.ErrNotInPrescription, fiber.StatusUnprocessableEntity, "NOT_IN_PRESCRIPTION", "el producto no está en la receta"},
	{domain.ErrPrescriptionLineComplete, fiber.StatusUnprocessableEntity, "LINE_COMPLETE", "la línea de la receta ya está completa"},
	{domain.ErrPrescriptionClosed, fiber.StatusUnprocessableEntity, "PRESCRIPTION_CLOSED", "la receta está cerrada"},
	{domain.ErrPendingContextExpired, fiber.StatusGone, "CONTEXT_EXPIRED", "el contexto pendiente expiró, vuelva a leer el tag"},
}

// writeError traduce un error de dominio a la respuesta HTTP.
func writeError(c *fiber.Ctx, err error) error {
	return writeShortfall(c, err, nil)
}

// writeShortfall como writeError, pero un faltante incluye las asignaciones ya confirmadas.
func writeShortfall(c *fiber.Ctx, err error, committed *stock.Consumption) error {
	var ise *domain.InsufficientStockError
	if errors.As(err, &ise) {
		body := dto.InsufficientStockResponse{
			Code:        "INSUFFICIENT_STOCK",
			Message:     "stock insuficiente",
			Requested:   ise.Requested,
			Allocated:   ise.Allocated,
			Shortfall:   ise.Shortfall,
			Allocations: []dto.AllocationResponse{},
		}
		if committed != nil {
			body.Allocations = toAllocations(committed.Allocations)
		}
		return c.Status(fiber.StatusConflict).JSON(body)
	}
	var qre *dispensing.QuantityRequiredError
	if errors.As(err, &qre) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.QuantityRequiredResponse{
			Code:           "QUANTITY_REQUIRED",
			Message:        "indique la cantidad a dispensar",
			PrescriptionID: qre.PrescriptionID,
			ItemID:         qre.ItemID,
			ProductID:      qre.ProductID,
			Remaining:      qre.Remaining,
		})
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{Code: "INSUFFICIENT_STOCK", Message: "stock insuficiente"})
	}
	if errors.Is(err, domain.ErrQuantityRequired) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(dto.ErrorResponse{Code: "QUANTITY_REQUIRED", Message: "indique la cantidad a dispensar"})
	}
	for _, m := range errorTable {
		if errors.Is(err, m.target) {
			return c.Status(m.status).JSON(dto.ErrorResponse{Code: m.code, Message: m.message})
		}
	}
	return c.Status(fiber.StatusInternalServerError).JSON(dto.ErrorResponse{Code: "INTERNAL", Message: err.Error()})
}

func badBody(c *fiber.Ctx) error {
	return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "INVALID_BODY", Message: "cuerpo inválido"})
}
