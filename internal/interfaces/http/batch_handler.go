package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/medstock-rfid/internal/application/dto"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
)

// BatchHandler consultas y mutaciones directas sobre lotes.
type BatchHandler struct {
	svc *stock.Service
}

// NewBatchHandler construye el handler.
func NewBatchHandler(svc *stock.Service) *BatchHandler {
	return &BatchHandler{svc: svc}
}

// GetByID godoc
// @Summary      Obtener lote por ID
// @Tags         batches
// @Produce      json
// @Param        id   path  string  true  "ID del lote"
// @Success      200  {object}  dto.BatchResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/batches/{id} [get]
func (h *BatchHandler) GetByID(c *fiber.Ctx) error {
	b, err := h.svc.BatchByID(c.Context(), c.Params("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBatch(b))
}

// ListByUID godoc
// @Summary      Lotes que llevan un tag
// @Description  El UID se normaliza; un mismo código puede estar en varios lotes.
// @Tags         batches
// @Produce      json
// @Param        uid  query  string  true  "UID leído"
// @Success      200  {array}   dto.BatchResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Router       /api/batches [get]
func (h *BatchHandler) ListByUID(c *fiber.Ctx) error {
	uid := c.Query("uid")
	if uid == "" {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "MISSING_UID", Message: "uid es requerido"})
	}
	list, err := h.svc.BatchesByUID(c.Context(), uid)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBatches(list))
}

// Ledger godoc
// @Summary      Libro de stock de un lote
// @Description  Con at (RFC3339) devuelve la cantidad reconstruida en ese instante.
// @Tags         batches
// @Produce      json
// @Param        id      path   string  true   "ID del lote"
// @Param        at      query  string  false  "Instante RFC3339"
// @Param        limit   query  int     false  "Límite"  default(50)
// @Param        offset  query  int     false  "Offset"  default(0)
// @Success      200  {object}  dto.LedgerResponse
// @Failure      400  {object}  dto.ErrorResponse
// @Failure      404  {object}  dto.ErrorResponse
// @Router       /api/batches/{id}/ledger [get]
func (h *BatchHandler) Ledger(c *fiber.Ctx) error {
	var at time.Time
	if raw := c.Query("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "at debe ser RFC3339"})
		}
		at = t
	}
	var page dto.PageRequest
	if err := c.QueryParser(&page); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "paginación inválida"})
	}
	page.DefaultPage()

	entries, qty, err := h.svc.BatchLedger(c.Context(), c.Params("id"), at)
	if err != nil {
		return writeError(c, err)
	}
	total := len(entries)
	from := min(page.Offset, total)
	to := min(from+page.Limit, total)

	out := dto.LedgerResponse{
		BatchID:    c.Params("id"),
		QuantityAt: qty,
		Entries:    toLedger(entries[from:to]),
		Page:       dto.PageResponse{Limit: page.Limit, Offset: page.Offset, Total: total},
	}
	if !at.IsZero() {
		out.At = &at
	}
	return c.JSON(out)
}

// Inbound godoc
// @Summary      Entrada de mercancía
// @Description  Crea el lote o repone uno existente (mismo producto y número de lote),
//
//	registra el asiento y recalcula el costo promedio ponderado.
//
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        body  body  dto.InboundRequest  true  "product_id, lot_number, expiry_date, quantity, unit_cost?, tag_uid?"
// @Success      201   {object}  dto.BatchResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/batches/inbound [post]
func (h *BatchHandler) Inbound(c *fiber.Ctx) error {
	var in dto.InboundRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	expiry, ok := parseDate(in.ExpiryDate)
	if !ok {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "expiry_date inválida (YYYY-MM-DD)"})
	}
	b, err := h.svc.Inbound(c.Context(), stock.InboundInput{
		ProductID:  in.ProductID,
		LotNumber:  strings.TrimSpace(in.LotNumber),
		ExpiryDate: expiry,
		Quantity:   in.Quantity,
		UnitCost:   in.UnitCost,
		TagUID:     in.TagUID,
		Note:       in.Note,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toBatch(b))
}

// Adjust godoc
// @Summary      Ajuste manual de cantidad
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        id    path  string             true  "ID del lote"
// @Param        body  body  dto.AdjustRequest  true  "quantity, note"
// @Success      200   {object}  dto.BatchResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/batches/{id}/adjust [post]
func (h *BatchHandler) Adjust(c *fiber.Ctx) error {
	var in dto.AdjustRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	if in.Quantity == nil {
		return c.Status(fiber.StatusBadRequest).JSON(dto.ErrorResponse{Code: "VALIDATION", Message: "quantity es requerido"})
	}
	b, err := h.svc.Adjust(c.Context(), c.Params("id"), *in.Quantity, in.Note)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBatch(b))
}

// BindTag godoc
// @Summary      Asignar tag a un lote
// @Tags         batches
// @Accept       json
// @Produce      json
// @Param        id    path  string              true  "ID del lote"
// @Param        body  body  dto.BindTagRequest  true  "uid"
// @Success      200   {object}  dto.BatchResponse
// @Failure      400   {object}  dto.ErrorResponse
// @Failure      404   {object}  dto.ErrorResponse
// @Router       /api/batches/{id}/tag [put]
func (h *BatchHandler) BindTag(c *fiber.Ctx) error {
	var in dto.BindTagRequest
	if err := c.BodyParser(&in); err != nil {
		return badBody(c)
	}
	b, err := h.svc.BindTag(c.Context(), c.Params("id"), in.UID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(toBatch(b))
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}
