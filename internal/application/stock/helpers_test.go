package stock_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
	"github.com/jhoicas/medstock-rfid/internal/infrastructure/memory"
)

var baseTime = time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []stock.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev stock.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) ofType(t string) []stock.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []stock.Event
	for _, ev := range p.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	store *memory.Store
	svc   *stock.Service
	pub   *recordingPublisher
}

// newFixture arma el servicio sobre un almacén en memoria; wrap permite envolver el TxRunner.
func newFixture(t *testing.T, wrap func(stock.TxRunner) stock.TxRunner) *fixture {
	t.Helper()
	store := memory.NewStore()
	var tx stock.TxRunner = store
	if wrap != nil {
		tx = wrap(store)
	}
	pub := &recordingPublisher{}
	clock := baseTime
	svc := stock.NewService(
		tx, store.Batches(), store.Ledger(), store.Products(), store.Areas(), pub,
		rfid.NewNormalizer(7),
		stock.Options{MaxRetries: 3, Now: func() time.Time { return clock }},
		zerolog.Nop(),
	)
	ctx := context.Background()
	require.NoError(t, store.Areas().Create(ctx, &entity.Area{ID: "ICU", Name: "UCI"}))
	require.NoError(t, store.Products().Create(ctx, &entity.Product{ID: "42", Name: "Amoxicilina 500mg", MinimumStock: 10, UnitsPerPackage: 1}))
	return &fixture{store: store, svc: svc, pub: pub}
}

func (f *fixture) batch(t *testing.T, id, productID, uid string, qty int64, expiry time.Time) {
	t.Helper()
	b := &entity.Batch{
		ID:         id,
		ProductID:  productID,
		LotNumber:  "L-" + id,
		ExpiryDate: expiry,
		Quantity:   qty,
		EntryDate:  baseTime,
	}
	if uid != "" {
		b.TagUID = &uid
	}
	require.NoError(t, f.store.Batches().Create(context.Background(), b))
}

func (f *fixture) qty(t *testing.T, id string) int64 {
	t.Helper()
	b, err := f.store.Batches().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b.Quantity
}

// flakyTx envuelve el runner e inyecta fallos de la guarda condicional en TryDecrement.
type flakyTx struct {
	inner stock.TxRunner
	mu    sync.Mutex
	fails map[string]int // batchID -> fallos restantes (-1 = siempre)
}

func (f *flakyTx) Run(ctx context.Context, fn func(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.StockLedgerRepository,
	productRepo repository.ProductRepository,
	prescriptionRepo repository.PrescriptionRepository,
) error) error {
	return f.inner.Run(ctx, func(b repository.BatchRepository, l repository.StockLedgerRepository, p repository.ProductRepository, pr repository.PrescriptionRepository) error {
		return fn(&flakyBatchRepo{BatchRepository: b, parent: f}, l, p, pr)
	})
}

type flakyBatchRepo struct {
	repository.BatchRepository
	parent *flakyTx
}

func (r *flakyBatchRepo) TryDecrement(ctx context.Context, id string, n int64) (int64, bool, error) {
	r.parent.mu.Lock()
	left, ok := r.parent.fails[id]
	if ok && left != 0 {
		if left > 0 {
			r.parent.fails[id] = left - 1
		}
		r.parent.mu.Unlock()
		return 0, false, nil
	}
	r.parent.mu.Unlock()
	return r.BatchRepository.TryDecrement(ctx, id, n)
}
