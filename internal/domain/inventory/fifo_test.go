package inventory_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/inventory"
)

func day(d int) time.Time {
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, d)
}

func TestSortFIFO_VencimientoEntradaID(t *testing.T) {
	batches := []*entity.Batch{
		{ID: "c", ExpiryDate: day(40), EntryDate: day(0)},
		{ID: "b", ExpiryDate: day(10), EntryDate: day(2)},
		{ID: "a", ExpiryDate: day(10), EntryDate: day(2)},
		{ID: "d", ExpiryDate: day(10), EntryDate: day(1)},
	}
	inventory.SortFIFO(batches)

	ids := make([]string, 0, len(batches))
	for _, b := range batches {
		ids = append(ids, b.ID)
	}
	assert.Equal(t, []string{"d", "a", "b", "c"}, ids)
}

func TestPlan_ConsumeDelQueVencePrimero(t *testing.T) {
	b1 := &entity.Batch{ID: "B1", ExpiryDate: day(10), Quantity: 5}
	b2 := &entity.Batch{ID: "B2", ExpiryDate: day(40), Quantity: 20}
	candidates := []*entity.Batch{b2, b1}
	inventory.SortFIFO(candidates)

	allocs, shortfall := inventory.Plan(candidates, 8)

	assert.Equal(t, []inventory.Allocation{{BatchID: "B1", Quantity: 5}, {BatchID: "B2", Quantity: 3}}, allocs)
	assert.Zero(t, shortfall)
}

func TestPlan_Faltante(t *testing.T) {
	allocs, shortfall := inventory.Plan([]*entity.Batch{
		{ID: "A", Quantity: 2},
		{ID: "Z", Quantity: 0},
		{ID: "B", Quantity: 4},
	}, 10)

	assert.Equal(t, []inventory.Allocation{{BatchID: "A", Quantity: 2}, {BatchID: "B", Quantity: 4}}, allocs)
	assert.Equal(t, int64(4), shortfall)
}

func TestPlan_SinCandidatos(t *testing.T) {
	allocs, shortfall := inventory.Plan(nil, 3)
	assert.Empty(t, allocs)
	assert.Equal(t, int64(3), shortfall)
}

func TestFilterConsumable(t *testing.T) {
	got := inventory.FilterConsumable([]*entity.Batch{
		{ID: "1", ProductID: "p1", Quantity: 1},
		{ID: "2", ProductID: "p2", Quantity: 5},
		{ID: "3", ProductID: "p1", Quantity: 0},
	}, "p1")
	assert.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID)
}

func TestCostCalculator(t *testing.T) {
	got := inventory.CostCalculator(10, decimal.NewFromInt(100), 10, decimal.NewFromInt(200))
	assert.True(t, got.Equal(decimal.NewFromInt(150)), "got %s", got)

	assert.True(t, inventory.CostCalculator(0, decimal.Zero, 0, decimal.NewFromInt(5)).IsZero())
}
