package inventory

import (
	"sort"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// SortFIFO ordena los lotes para consumo: vencimiento más próximo primero,
// luego fecha de entrada y por último ID (orden total y determinista).
func SortFIFO(batches []*entity.Batch) {
	sort.SliceStable(batches, func(i, j int) bool {
		a, b := batches[i], batches[j]
		if !a.ExpiryDate.Equal(b.ExpiryDate) {
			return a.ExpiryDate.Before(b.ExpiryDate)
		}
		if !a.EntryDate.Equal(b.EntryDate) {
			return a.EntryDate.Before(b.EntryDate)
		}
		return a.ID < b.ID
	})
}

// Allocation cantidad tomada de un lote.
type Allocation struct {
	BatchID  string
	Quantity int64
}

// Plan reparte quantity sobre los candidatos en el orden dado (greedy).
// Devuelve las asignaciones y el faltante = max(0, quantity - Σ asignado).
// Candidatos sin stock se omiten.
func Plan(candidates []*entity.Batch, quantity int64) ([]Allocation, int64) {
	remaining := quantity
	var out []Allocation
	for _, b := range candidates {
		if remaining <= 0 {
			break
		}
		if b.Quantity <= 0 {
			continue
		}
		take := min(b.Quantity, remaining)
		out = append(out, Allocation{BatchID: b.ID, Quantity: take})
		remaining -= take
	}
	return out, max(remaining, 0)
}

// FilterConsumable devuelve los lotes con stock, opcionalmente de un producto.
func FilterConsumable(batches []*entity.Batch, productID string) []*entity.Batch {
	out := make([]*entity.Batch, 0, len(batches))
	for _, b := range batches {
		if b.Quantity <= 0 {
			continue
		}
		if productID != "" && b.ProductID != productID {
			continue
		}
		out = append(out, b)
	}
	return out
}
