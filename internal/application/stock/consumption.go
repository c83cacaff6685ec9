package stock

import (
	"context"
	"fmt"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/inventory"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

// DefaultMaxRetries reintentos de resolución cuando la guarda condicional falla.
const DefaultMaxRetries = 3

// ConsumeRequest pedido de consumo FIFO.
type ConsumeRequest struct {
	Query     CandidateQuery
	Quantity  int64
	AreaID    string
	Note      string
	Reference string
	// AllowPartial: la salida genérica confirma lo que pudo asignar; la dispensación no.
	AllowPartial bool
}

// BatchAllocation cantidad efectivamente descontada de un lote.
type BatchAllocation struct {
	BatchID          string `json:"batch_id"`
	ProductID        string `json:"product_id"`
	Quantity         int64  `json:"quantity"`
	PreviousQuantity int64  `json:"previous_quantity"`
	NewQuantity      int64  `json:"new_quantity"`
}

// Consumption resultado del motor.
type Consumption struct {
	Requested   int64
	Allocations []BatchAllocation
	Shortfall   int64
	Conflicts   int
}

// Allocated suma lo asignado.
func (c *Consumption) Allocated() int64 {
	var n int64
	for _, a := range c.Allocations {
		n += a.Quantity
	}
	return n
}

// ProductIDs productos afectados, sin repetir.
func (c *Consumption) ProductIDs() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, a := range c.Allocations {
		if _, ok := seen[a.ProductID]; ok {
			continue
		}
		seen[a.ProductID] = struct{}{}
		out = append(out, a.ProductID)
	}
	return out
}

// ShortfallError devuelve *domain.InsufficientStockError si hubo faltante, nil si no.
func (c *Consumption) ShortfallError(q CandidateQuery) error {
	if c == nil || c.Shortfall <= 0 {
		return nil
	}
	return &domain.InsufficientStockError{
		ProductID: q.ProductID,
		UID:       q.UID,
		Requested: c.Requested,
		Allocated: c.Allocated(),
		Shortfall: c.Shortfall,
	}
}

// Engine motor de consumo FIFO. Cada asignación es una única mutación condicional
// (resta solo si la cantidad actual alcanza), nunca lectura y escritura separadas.
type Engine struct {
	ledger     *LedgerWriter
	maxRetries int
}

// NewEngine construye el motor. maxRetries <= 0 usa DefaultMaxRetries.
func NewEngine(ledger *LedgerWriter, maxRetries int) *Engine {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	return &Engine{ledger: ledger, maxRetries: maxRetries}
}

// Consume reparte req.Quantity sobre los candidatos FIFO usando los repositorios de la tx
// del llamador y agrega un asiento "consume" por lote descontado.
//
// Sin candidatos devuelve ErrNoMatchingBatch. Si la guarda falla más de maxRetries veces
// devuelve ErrConflict. Con faltante y !AllowPartial devuelve *InsufficientStockError
// (el llamador debe revertir la tx); con AllowPartial devuelve el resultado con Shortfall > 0.
func (e *Engine) Consume(
	ctx context.Context,
	batchRepo repository.BatchRepository,
	ledgerRepo repository.StockLedgerRepository,
	req ConsumeRequest,
) (*Consumption, error) {
	if req.Quantity <= 0 || (req.Query.UID == "" && req.Query.ProductID == "") {
		return nil, domain.ErrInvalidInput
	}

	result := &Consumption{Requested: req.Quantity}
	remaining := req.Quantity
	exhausted := make(map[string]struct{})
	resolved := false

	for remaining > 0 {
		candidates, err := ResolveWith(ctx, batchRepo, req.Query)
		if err != nil {
			return nil, fmt.Errorf("resolver lotes: %w", err)
		}
		if !resolved {
			if len(candidates) == 0 {
				return nil, domain.ErrNoMatchingBatch
			}
			resolved = true
		}

		// Un lote cuya guarda falló cuenta como agotado en esta pasada.
		open := make([]*entity.Batch, 0, len(candidates))
		byID := make(map[string]*entity.Batch, len(candidates))
		for _, b := range candidates {
			if _, ok := exhausted[b.ID]; ok {
				continue
			}
			open = append(open, b)
			byID[b.ID] = b
		}

		plan, _ := inventory.Plan(open, remaining)
		if len(plan) == 0 {
			break
		}

		guardFailed := false
		for _, a := range plan {
			newQty, ok, err := batchRepo.TryDecrement(ctx, a.BatchID, a.Quantity)
			if err != nil {
				return nil, fmt.Errorf("descontar lote %s: %w", a.BatchID, err)
			}
			if !ok {
				exhausted[a.BatchID] = struct{}{}
				result.Conflicts++
				if result.Conflicts > e.maxRetries {
					return nil, domain.ErrConflict
				}
				guardFailed = true
				break
			}

			batch := byID[a.BatchID]
			alloc := BatchAllocation{
				BatchID:          a.BatchID,
				ProductID:        batch.ProductID,
				Quantity:         a.Quantity,
				PreviousQuantity: newQty + a.Quantity,
				NewQuantity:      newQty,
			}
			entry := &entity.StockLedgerEntry{
				ProductID:        alloc.ProductID,
				BatchID:          alloc.BatchID,
				AreaID:           optional(req.AreaID),
				PreviousQuantity: alloc.PreviousQuantity,
				NewQuantity:      alloc.NewQuantity,
				Kind:             entity.LedgerKindConsume,
				Note:             req.Note,
				Reference:        req.Reference,
			}
			if err := e.ledger.Append(ctx, ledgerRepo, entry); err != nil {
				return nil, fmt.Errorf("registrar asiento: %w", err)
			}
			result.Allocations = append(result.Allocations, alloc)
			remaining -= a.Quantity
		}
		if !guardFailed {
			break
		}
	}

	result.Shortfall = max(remaining, 0)
	if result.Shortfall > 0 && !req.AllowPartial {
		return result, result.ShortfallError(req.Query)
	}
	return result, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
