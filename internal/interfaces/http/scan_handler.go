package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// ScanHandler recibe las lecturas RFID y las respuestas del operador por sesión.
type ScanHandler struct {
	router *scan.Router
	now    func() time.Time
}

// NewScanHandler construye el handler.
func NewScanHandler(router *scan.Router) *ScanHandler {
	return &ScanHandler{router: router, now: time.Now}
}

// PostEvent godoc
// @Summary      Registrar una lectura RFID
// @Tags         rfid
// @Accept       json
// @Produce      json
// @Param        body  body  dto.TagEventRequest  true  "uid, action (entry|exit), area_id?, quantity?, session_id?"
// @Success      200   {object}  dto.ScanResultResponse
// @Success      202   {object}  dto.ScanResultResponse  "contexto pendiente"
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Failure      409   {object}  dto.InsufficientStockResponse
// @Router       /api/rfid/events [post]
func (h *ScanHandler) PostEvent(c *fiber.Ctx) error {
	var in dto.TagEventRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		sessionID = GetSessionID(c)
	}
	res, err := h.router.HandleEvent(c.Context(), entity.TagEvent{
		SessionID:  sessionID,
		UID:        in.UID,
		Action:     strings.ToLower(strings.TrimSpace(in.Action)),
		AreaID:     in.AreaID,
		Quantity:   in.Quantity,
		ReceivedAt: h.now(),
	})
	return writeScanResult(c, res, err)
}

// StartBinding godoc
// @Summary      Activar modo asignación de tag
// @Description  La próxima lectura de la sesión se asigna al lote indicado.
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        session  path  string              true  "Sesión del operador"
// @Param        body     body  dto.BindingRequest  true  "batch_id, timeout_seconds?"
// @Success      201  {object}  dto.PendingContextResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/sessions/{session}/binding [post]
func (h *ScanHandler) StartBinding(c *fiber.Ctx) error {
	var in dto.BindingRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.TimeoutSeconds < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "timeout_seconds inválido"})
	}
	pc, err := h.router.Coordinator().StartBinding(c.Context(), GetSessionID(c), in.BatchID, time.Duration(in.TimeoutSeconds)*time.Second)
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toPending(pc))
}

// SupplyContext godoc
// @Summary      Completar el contexto pendiente
// @Description  Área destino (salida) o cantidad (dispensación de empaque).
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        session  path  string              true  "Sesión del operador"
// @Param        body     body  dto.ContextRequest  true  "area_id?, quantity?"
// @Success      200  {object}  dto.ScanResultResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      409  {object}  dto.InsufficientStockResponse
// @Failure      410  {object}  dto.ErrorResponse
// @Router       /api/sessions/{session}/context [post]
func (h *ScanHandler) SupplyContext(c *fiber.Ctx) error {
	var in dto.ContextRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	res, err := h.router.Coordinator().SupplyContext(c.Context(), GetSessionID(c), scan.ContextInput{
		AreaID:   in.AreaID,
		Quantity: in.Quantity,
	})
	return writeScanResult(c, res, err)
}

// CancelPending godoc
// @Summary      Cancelar el contexto pendiente (idempotente)
// @Tags         sessions
// @Param        session  path  string  true  "Sesión del operador"
// @Success      200  {object}  map[string]bool
// @Router       /api/sessions/{session}/pending [delete]
func (h *ScanHandler) CancelPending(c *fiber.Ctx) error {
	cancelled := h.router.Coordinator().Cancel(GetSessionID(c))
	return c.JSON(fiber.Map{"cancelled": cancelled})
}

// StartDispensing godoc
// @Summary      Iniciar sesión de dispensación contra una receta
// @Tags         sessions
// @Accept       json
// @Produce      json
// @Param        session  path  string                        true  "Sesión del operador"
// @Param        body     body  dto.DispensingSessionRequest  true  "prescription_id"
// @Success      200  {object}  dto.SessionResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Failure      422  {object}  dto.ErrorResponse
// @Router       /api/sessions/{session}/dispensing [post]
func (h *ScanHandler) StartDispensing(c *fiber.Ctx) error {
	var in dto.DispensingSessionRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	coord := h.router.Coordinator()
	if err := coord.StartDispensing(c.Context(), GetSessionID(c), in.PrescriptionID); err != nil {
		return writeError(c, err)
	}
	return c.JSON(toSession(coord.Snapshot(GetSessionID(c))))
}

// StopDispensing godoc
// @Summary      Terminar la sesión de dispensación
// @Tags         sessions
// @Param        session  path  string  true  "Sesión del operador"
// @Success      204
// @Router       /api/sessions/{session}/dispensing [delete]
func (h *ScanHandler) StopDispensing(c *fiber.Ctx) error {
	h.router.Coordinator().StopDispensing(GetSessionID(c))
	return c.SendStatus(fiber.StatusNoContent)
}

// GetSession godoc
// @Summary      Estado de la sesión del operador
// @Tags         sessions
// @Produce      json
// @Param        session  path  string  true  "Sesión del operador"
// @Success      200  {object}  dto.SessionResponse
// @Router       /api/sessions/{session} [get]
func (h *ScanHandler) GetSession(c *fiber.Ctx) error {
	return c.JSON(toSession(h.router.Coordinator().Snapshot(GetSessionID(c))))
}

// writeScanResult 202 si queda un contexto pendiente; una salida con faltante responde 409
// con lo que sí se confirmó.
func writeScanResult(c *fiber.Ctx, res *scan.Result, err error) error {
	if err != nil {
		if res != nil {
			return writeShortfall(c, err, res.Consumption)
		}
		return writeError(c, err)
	}
	if res.Outcome == scan.OutcomePending {
		return c.Status(fiber.StatusAccepted).JSON(toScanResult(res))
	}
	return c.JSON(toScanResult(res))
}
