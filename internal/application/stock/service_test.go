package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Tag "2090074" en dos lotes del producto 42; salida de 40 hacia UCI.
func TestRemove_EscenarioTagCompartido(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "2090074", 30, date(2025, 1, 1))
	f.batch(t, "B", "42", "2090074", 50, date(2025, 6, 1))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "2090074", AreaID: "ICU", Quantity: 40})
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, "A", res.Allocations[0].BatchID)
	assert.Equal(t, int64(30), res.Allocations[0].Quantity)
	assert.Equal(t, "B", res.Allocations[1].BatchID)
	assert.Equal(t, int64(10), res.Allocations[1].Quantity)
	assert.Zero(t, res.Shortfall)

	assert.Equal(t, int64(0), f.qty(t, "A"))
	assert.Equal(t, int64(40), f.qty(t, "B"))

	entries := f.store.Ledger().All()
	require.Len(t, entries, 2)
	assert.Equal(t, [2]int64{30, 0}, [2]int64{entries[0].PreviousQuantity, entries[0].NewQuantity})
	assert.Equal(t, [2]int64{50, 40}, [2]int64{entries[1].PreviousQuantity, entries[1].NewQuantity})
	for _, e := range entries {
		assert.Equal(t, entity.LedgerKindConsume, e.Kind)
		require.NotNil(t, e.AreaID)
		assert.Equal(t, "ICU", *e.AreaID)
	}
}

func TestRemove_FIFO(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "B2", "42", "1111111", 20, baseTime.AddDate(0, 0, 40))
	f.batch(t, "B1", "42", "1111111", 5, baseTime.AddDate(0, 0, 10))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "ICU", Quantity: 8})
	require.NoError(t, err)

	assert.Equal(t, []stock.BatchAllocation{
		{BatchID: "B1", ProductID: "42", Quantity: 5, PreviousQuantity: 5, NewQuantity: 0},
		{BatchID: "B2", ProductID: "42", Quantity: 3, PreviousQuantity: 20, NewQuantity: 17},
	}, res.Allocations)
}

func TestRemove_CantidadPorDefecto(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 5, baseTime.AddDate(0, 1, 0))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "ICU"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Allocated())
	assert.Equal(t, int64(4), f.qty(t, "A"))
}

func TestRemove_FaltanteConfirmaParcial(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 3, baseTime.AddDate(0, 1, 0))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "ICU", Quantity: 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	shortfall, ok := domain.ShortfallOf(err)
	require.True(t, ok)
	assert.Equal(t, int64(2), shortfall)

	require.NotNil(t, res)
	assert.Equal(t, int64(3), res.Allocated())
	assert.Equal(t, int64(0), f.qty(t, "A"))
	assert.Len(t, f.store.Ledger().All(), 1)
	assert.Len(t, f.pub.ofType(stock.EventInsufficientStock), 1)
}

func TestRemove_SinLotes(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 0, baseTime.AddDate(0, 1, 0))

	_, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "ICU", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNoMatchingBatch)

	_, err = f.svc.Remove(context.Background(), stock.RemovalInput{UID: "9999999", AreaID: "ICU", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNoMatchingBatch)
	assert.Empty(t, f.store.Ledger().All())
}

func TestRemove_AreaInexistente(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 5, baseTime.AddDate(0, 1, 0))

	_, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "NOPE", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Equal(t, int64(5), f.qty(t, "A"))
}

func TestRemove_FiltraPorProducto(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.store.Products().Create(context.Background(), &entity.Product{ID: "7", Name: "Gasas"}))
	f.batch(t, "X", "7", "1111111", 10, baseTime.AddDate(0, 0, 1))
	f.batch(t, "A", "42", "1111111", 10, baseTime.AddDate(0, 1, 0))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", ProductID: "42", AreaID: "ICU", Quantity: 2})
	require.NoError(t, err)
	assert.Equal(t, "A", res.Allocations[0].BatchID)
	assert.Equal(t, int64(10), f.qty(t, "X"))
}

// La guarda condicional falla en A: el lote cuenta como agotado y se sigue con B.
func TestConsume_ReintentaConSiguienteCandidato(t *testing.T) {
	f := newFixture(t, func(inner stock.TxRunner) stock.TxRunner {
		return &flakyTx{inner: inner, fails: map[string]int{"A": 1}}
	})
	f.batch(t, "A", "42", "2090074", 30, date(2025, 1, 1))
	f.batch(t, "B", "42", "2090074", 50, date(2025, 6, 1))

	res, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "2090074", AreaID: "ICU", Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Conflicts)
	require.Len(t, res.Allocations, 1)
	assert.Equal(t, "B", res.Allocations[0].BatchID)
	assert.Equal(t, int64(30), f.qty(t, "A"))
	assert.Equal(t, int64(45), f.qty(t, "B"))
}

func TestConsume_ConflictoTrasAgotarReintentos(t *testing.T) {
	fails := map[string]int{}
	for _, id := range []string{"A", "B", "C", "D", "E"} {
		fails[id] = -1
	}
	f := newFixture(t, func(inner stock.TxRunner) stock.TxRunner {
		return &flakyTx{inner: inner, fails: fails}
	})
	for i, id := range []string{"A", "B", "C", "D", "E"} {
		f.batch(t, id, "42", "3333333", 10, baseTime.AddDate(0, 0, i+1))
	}

	_, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "3333333", AreaID: "ICU", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Empty(t, f.store.Ledger().All())
}

func TestConsume_SinPermitirParcial(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 4, baseTime.AddDate(0, 1, 0))

	engine := f.svc.Engine()
	err := f.store.Run(context.Background(), func(
		b repository.BatchRepository,
		l repository.StockLedgerRepository,
		_ repository.ProductRepository,
		_ repository.PrescriptionRepository,
	) error {
		_, err := engine.Consume(context.Background(), b, l, stock.ConsumeRequest{
			Query:    stock.CandidateQuery{UID: "1111111"},
			Quantity: 6,
		})
		return err
	})
	var ise *domain.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(2), ise.Shortfall)
	assert.Equal(t, int64(4), f.qty(t, "A"), "la tx revertida no debe dejar rastro")
	assert.Empty(t, f.store.Ledger().All())
}

// Nunca stock negativo: 50 salidas concurrentes contra un lote de 10.
func TestRemove_ConcurrenteSinNegativos(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "5555555", 10, baseTime.AddDate(0, 1, 0))

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		allocated int64
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			res, _ := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "5555555", AreaID: "ICU", Quantity: n})
			if res != nil {
				mu.Lock()
				allocated += res.Allocated()
				mu.Unlock()
			}
		}(int64(i%3 + 1))
	}
	wg.Wait()

	assert.Equal(t, int64(10), allocated)
	assert.Equal(t, int64(0), f.qty(t, "A"))
}

// Conservación: el libro plegado reproduce la cantidad de cada lote.
func TestLedger_Conservacion(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	cost := decimal.NewFromInt(1200)

	a, err := f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", ExpiryDate: date(2025, 3, 1), Quantity: 20, UnitCost: &cost, TagUID: "77"})
	require.NoError(t, err)
	b, err := f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L2", ExpiryDate: date(2025, 9, 1), Quantity: 15, TagUID: "77"})
	require.NoError(t, err)
	_, err = f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", Quantity: 5})
	require.NoError(t, err)

	_, err = f.svc.Remove(ctx, stock.RemovalInput{UID: "0000077", AreaID: "ICU", Quantity: 30})
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, b.ID, 12, "conteo físico")
	require.NoError(t, err)
	_, err = f.svc.TopUpByTag(ctx, "0000077", 3, "s1")
	require.NoError(t, err)

	folded := stock.Fold(f.store.Ledger().All())
	for _, id := range []string{a.ID, b.ID} {
		assert.Equal(t, f.qty(t, id), folded[id], "lote %s", id)
	}
	assert.Equal(t, int64(15), f.qty(t, a.ID)+f.qty(t, b.ID))
	assert.Len(t, f.store.Ledger().All(), 7)
}

func TestInbound_CostoPromedioYTag(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	c1 := decimal.NewFromInt(100)
	c2 := decimal.NewFromInt(200)

	b, err := f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", ExpiryDate: date(2025, 3, 1), Quantity: 10, UnitCost: &c1, TagUID: "12-34"})
	require.NoError(t, err)
	require.NotNil(t, b.TagUID)
	assert.Equal(t, "0001234", *b.TagUID)

	_, err = f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L2", ExpiryDate: date(2025, 4, 1), Quantity: 10, UnitCost: &c2})
	require.NoError(t, err)

	p, total, err := f.svc.CurrentStock(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(20), total)
	assert.True(t, p.AverageCost.Equal(decimal.NewFromInt(150)), "costo %s", p.AverageCost)
}

func TestInbound_Validaciones(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", Quantity: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.Inbound(ctx, stock.InboundInput{ProductID: "nope", LotNumber: "L1", Quantity: 1, ExpiryDate: date(2025, 1, 1)})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", Quantity: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "lote nuevo sin vencimiento")
	_, err = f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", Quantity: 1, ExpiryDate: date(2025, 1, 1), TagUID: "abc"})
	assert.ErrorIs(t, err, domain.ErrMalformedTag)
}

func TestAdjust_RegistraDelta(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.batch(t, "A", "42", "", 10, baseTime.AddDate(0, 1, 0))

	_, err := f.svc.Adjust(ctx, "A", 7, "")
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, "A", 7, "sin cambio")
	require.NoError(t, err)
	_, err = f.svc.Adjust(ctx, "A", 9, "")
	require.NoError(t, err)

	entries := f.store.Ledger().All()
	require.Len(t, entries, 2)
	assert.Equal(t, entity.LedgerKindConsume, entries[0].Kind)
	assert.Equal(t, entity.LedgerKindInbound, entries[1].Kind)
	assert.Equal(t, int64(9), f.qty(t, "A"))

	_, err = f.svc.Adjust(ctx, "A", -1, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.svc.Adjust(ctx, "Z", 1, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTopUpByTag_LoteMasReciente(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.batch(t, "A", "42", "2222222", 1, baseTime.AddDate(0, 1, 0))
	late := &entity.Batch{ID: "B", ProductID: "42", LotNumber: "LB", ExpiryDate: baseTime.AddDate(0, 2, 0), Quantity: 1, EntryDate: baseTime.Add(time.Hour)}
	uid := "2222222"
	late.TagUID = &uid
	require.NoError(t, f.store.Batches().Create(ctx, late))

	b, err := f.svc.TopUpByTag(ctx, "2222222", 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, "B", b.ID)
	assert.Equal(t, int64(2), f.qty(t, "B"))

	_, err = f.svc.TopUpByTag(ctx, "9999999", 1, "s1")
	assert.ErrorIs(t, err, domain.ErrNoMatchingBatch)
}

func TestBindTag_Normaliza(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "", 1, baseTime.AddDate(0, 1, 0))

	b, err := f.svc.BindTag(context.Background(), "A", "UID 20-90-074")
	require.NoError(t, err)
	assert.Equal(t, "2090074", *b.TagUID)

	list, err := f.svc.BatchesByUID(context.Background(), "2090074")
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = f.svc.BindTag(context.Background(), "A", "---")
	assert.ErrorIs(t, err, domain.ErrMalformedTag)
	_, err = f.svc.BindTag(context.Background(), "Z", "1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEventos_StockBajoMinimo(t *testing.T) {
	f := newFixture(t, nil)
	f.batch(t, "A", "42", "1111111", 12, baseTime.AddDate(0, 1, 0))

	_, err := f.svc.Remove(context.Background(), stock.RemovalInput{UID: "1111111", AreaID: "ICU", Quantity: 5})
	require.NoError(t, err)

	changed := f.pub.ofType(stock.EventStockChanged)
	require.Len(t, changed, 1)
	assert.Equal(t, int64(7), changed[0].Total)
	low := f.pub.ofType(stock.EventLowStock)
	require.Len(t, low, 1)
	assert.Equal(t, int64(10), low[0].Minimum)
}

func TestBatchLedger_CantidadEnElTiempo(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	b, err := f.svc.Inbound(ctx, stock.InboundInput{ProductID: "42", LotNumber: "L1", ExpiryDate: date(2025, 3, 1), Quantity: 10})
	require.NoError(t, err)

	entries, qty, err := f.svc.BatchLedger(ctx, b.ID, time.Time{})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.Equal(t, int64(10), qty)

	_, qty, err = f.svc.BatchLedger(ctx, b.ID, baseTime.Add(-time.Minute))
	require.NoError(t, err)
	assert.Zero(t, qty)
}

func TestQueries(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.batch(t, "B", "42", "1", 2, date(2025, 6, 1))
	f.batch(t, "A", "42", "1", 3, date(2025, 1, 1))

	list, err := f.svc.BatchesByProduct(ctx, "42")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "A", list[0].ID)

	_, total, err := f.svc.CurrentStock(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)

	_, err = f.svc.BatchByID(ctx, "Z")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, _, err = f.svc.CurrentStock(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
