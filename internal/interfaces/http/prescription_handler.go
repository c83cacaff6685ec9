package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
)

// PrescriptionHandler recetas y dispensación directa.
type PrescriptionHandler struct {
	matcher    *dispensing.Matcher
	normalizer rfid.Normalizer
}

// NewPrescriptionHandler construye el handler.
func NewPrescriptionHandler(matcher *dispensing.Matcher, normalizer rfid.Normalizer) *PrescriptionHandler {
	return &PrescriptionHandler{matcher: matcher, normalizer: normalizer}
}

// Create godoc
// @Summary      Registrar receta
// @Tags         prescriptions
// @Accept       json
// @Produce      json
// @Param        body  body  dto.CreatePrescriptionRequest  true  "patient_ref, items[]"
// @Success      201   {object}  dto.PrescriptionResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/prescriptions [post]
func (h *PrescriptionHandler) Create(c *fiber.Ctx) error {
	var in dto.CreatePrescriptionRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	items := make([]dispensing.ItemInput, 0, len(in.Items))
	for _, it := range in.Items {
		items = append(items, dispensing.ItemInput{ProductID: it.ProductID, QuantityRequired: it.QuantityRequired})
	}
	p, err := h.matcher.CreatePrescription(c.Context(), in.PatientRef, items)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toPrescription(p, nil))
}

// GetByID godoc
// @Summary      Obtener receta con su avance
// @Tags         prescriptions
// @Produce      json
// @Param        id   path  string  true  "ID de la receta"
// @Success      200  {object}  dto.PrescriptionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/prescriptions/{id} [get]
func (h *PrescriptionHandler) GetByID(c *fiber.Ctx) error {
	p, fulfillments, err := h.matcher.Prescription(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toPrescription(p, fulfillments))
}

// Dispense godoc
// @Summary      Dispensar contra la receta
// @Description  Todo o nada: con stock insuficiente no se registra nada.
// @Tags         prescriptions
// @Accept       json
// @Produce      json
// @Param        id    path  string               true  "ID de la receta"
// @Param        body  body  dto.DispenseRequest  true  "uid o product_id, quantity?"
// @Success      200   {object}  dto.DispenseResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.InsufficientStockResponse
// @Failure      422   {object}  dto.QuantityRequiredResponse
// @Router       /api/prescriptions/{id}/dispense [post]
func (h *PrescriptionHandler) Dispense(c *fiber.Ctx) error {
	var in dto.DispenseRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	uid := ""
	if in.UID != "" {
		n, err := h.normalizer.Normalize(in.UID)
		if err != nil {
			return writeError(c, err)
		}
		uid = n
	}
	res, err := h.matcher.Dispense(c.Context(), dispensing.Request{
		PrescriptionID: c.Params("id"),
		UID:            uid,
		ProductID:      in.ProductID,
		Quantity:       in.Quantity,
		SessionID:      GetSessionID(c),
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toDispense(res))
}
