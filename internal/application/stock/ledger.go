package stock

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

// LedgerWriter agrega asientos inmutables al libro de stock, siempre con el
// repositorio de la misma transacción que mutó la cantidad.
type LedgerWriter struct {
	now func() time.Time
}

// NewLedgerWriter construye el escritor. now nil usa time.Now.
func NewLedgerWriter(now func() time.Time) *LedgerWriter {
	if now == nil {
		now = time.Now
	}
	return &LedgerWriter{now: now}
}

// Append valida la aritmética del asiento y lo persiste.
func (w *LedgerWriter) Append(ctx context.Context, repo repository.StockLedgerRepository, e *entity.StockLedgerEntry) error {
	if e.BatchID == "" || e.ProductID == "" || e.NewQuantity < 0 || e.PreviousQuantity < 0 {
		return domain.ErrInvalidInput
	}
	switch e.Kind {
	case entity.LedgerKindInbound:
		if e.NewQuantity <= e.PreviousQuantity {
			return fmt.Errorf("asiento inbound sin incremento: %w", domain.ErrInvalidInput)
		}
	case entity.LedgerKindConsume:
		if e.NewQuantity >= e.PreviousQuantity {
			return fmt.Errorf("asiento consume sin decremento: %w", domain.ErrInvalidInput)
		}
	default:
		return domain.ErrInvalidInput
	}
	now := w.now()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.EffectiveDate.IsZero() {
		e.EffectiveDate = now
	}
	e.CreatedAt = now
	return repo.Append(ctx, e)
}

// Fold reconstruye la cantidad de cada lote sumando los deltas de sus asientos
// en orden (fecha efectiva, orden de inserción).
func Fold(entries []*entity.StockLedgerEntry) map[string]int64 {
	sorted := sortedEntries(entries)
	out := make(map[string]int64)
	for _, e := range sorted {
		out[e.BatchID] += e.Delta()
	}
	return out
}

// QuantityAt devuelve la cantidad de un lote en el instante at (inclusive).
func QuantityAt(entries []*entity.StockLedgerEntry, batchID string, at time.Time) int64 {
	var qty int64
	for _, e := range sortedEntries(entries) {
		if e.BatchID != batchID || e.EffectiveDate.After(at) {
			continue
		}
		qty += e.Delta()
	}
	return qty
}

func sortedEntries(entries []*entity.StockLedgerEntry) []*entity.StockLedgerEntry {
	sorted := make([]*entity.StockLedgerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.Seq < b.Seq
	})
	return sorted
}
