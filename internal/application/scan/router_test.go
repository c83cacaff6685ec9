package scan_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/scan"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/rfid"
	"github.com/jhoicas/medstock-rfid/internal/infrastructure/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	store    *memory.Store
	registry *scan.Registry
	clock    *fakeClock
	router   *scan.Router
	coord    *scan.Coordinator
	matcher  *dispensing.Matcher
}

func newHarness(t *testing.T, cfg scan.Config) *harness {
	t.Helper()
	store := memory.NewStore()
	clock := &fakeClock{t: time.Date(2024, 11, 1, 8, 0, 0, 0, time.UTC)}
	svc := stock.NewService(store, store.Batches(), store.Ledger(), store.Products(), store.Areas(), nil,
		rfid.NewNormalizer(7), stock.Options{Now: clock.Now}, zerolog.Nop())
	matcher := dispensing.NewMatcher(store, svc, store.Prescriptions(), clock.Now, zerolog.Nop())
	if cfg.BindingTimeout == 0 {
		cfg.BindingTimeout = time.Hour
	}
	if cfg.ContextTimeout == 0 {
		cfg.ContextTimeout = 30 * time.Second
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 2 * time.Second
	}
	cfg.Now = clock.Now
	registry := scan.NewRegistry()
	coord := scan.NewCoordinator(registry, svc, matcher, cfg, zerolog.Nop())
	router := scan.NewRouter(coord, nil, zerolog.Nop())

	ctx := context.Background()
	require.NoError(t, store.Areas().Create(ctx, &entity.Area{ID: "ICU", Name: "UCI"}))
	require.NoError(t, store.Products().Create(ctx, &entity.Product{ID: "amox", Name: "Amoxicilina", UnitsPerPackage: 1}))
	require.NoError(t, store.Products().Create(ctx, &entity.Product{ID: "jarabe", Name: "Jarabe", UnitsPerPackage: 20}))
	return &harness{store: store, registry: registry, clock: clock, router: router, coord: coord, matcher: matcher}
}

func (h *harness) batch(t *testing.T, id, productID, uid string, qty int64) {
	t.Helper()
	b := &entity.Batch{ID: id, ProductID: productID, LotNumber: "L-" + id, ExpiryDate: h.clock.Now().AddDate(0, 6, 0), EntryDate: h.clock.Now(), Quantity: qty}
	if uid != "" {
		b.TagUID = &uid
	}
	require.NoError(t, h.store.Batches().Create(context.Background(), b))
}

func (h *harness) get(t *testing.T, id string) *entity.Batch {
	t.Helper()
	b, err := h.store.Batches().GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, b)
	return b
}

func exit(session, uid, area string, qty int64) entity.TagEvent {
	return entity.TagEvent{SessionID: session, UID: uid, Action: entity.TagActionExit, AreaID: area, Quantity: qty}
}

// --- Modo asignación ---

func TestHandleEvent_AsignacionPrimeraLecturaGana(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "X", "amox", "", 10)
	ctx := context.Background()

	_, err := h.coord.StartBinding(ctx, "s1", "X", 0)
	require.NoError(t, err)

	res, err := h.router.HandleEvent(ctx, exit("s1", "44-44-444", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeBound, res.Outcome)
	assert.Equal(t, "4444444", *h.get(t, "X").TagUID)
	assert.Empty(t, h.store.Ledger().All(), "asignar tag no genera asiento")

	// La misma lectura dentro de la ventana se ignora.
	res, err = h.router.HandleEvent(ctx, exit("s1", "4444444", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeDuplicate, res.Outcome)

	// Pasada la ventana ya es un movimiento.
	h.clock.Advance(3 * time.Second)
	res, err = h.router.HandleEvent(ctx, exit("s1", "4444444", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeRemoved, res.Outcome)
	assert.Equal(t, int64(9), h.get(t, "X").Quantity)
}

// Un tag leído como movimiento hace un instante igual se asigna en modo asignación.
func TestHandleEvent_AsignacionIgnoraVentanaDeDuplicados(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "Y", "amox", "2090074", 10)
	h.batch(t, "X", "amox", "", 5)
	ctx := context.Background()

	res, err := h.router.HandleEvent(ctx, exit("s1", "2090074", "ICU", 1))
	require.NoError(t, err)
	require.Equal(t, scan.OutcomeRemoved, res.Outcome)

	_, err = h.coord.StartBinding(ctx, "s1", "X", 0)
	require.NoError(t, err)

	res, err = h.router.HandleEvent(ctx, exit("s1", "2090074", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeBound, res.Outcome)
	require.True(t, h.get(t, "X").HasTag())
	assert.Equal(t, "2090074", *h.get(t, "X").TagUID)
	assert.Nil(t, h.coord.Snapshot("s1").Pending)
	assert.Equal(t, int64(9), h.get(t, "Y").Quantity)

	// La repetición inmediata sigue siendo duplicada y no descuenta.
	res, err = h.router.HandleEvent(ctx, exit("s1", "2090074", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeDuplicate, res.Outcome)
	assert.Equal(t, int64(9), h.get(t, "Y").Quantity)
}

func TestHandleEvent_AsignacionConcurrenteUnaSola(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "X", "amox", "", 1)
	ctx := context.Background()
	_, err := h.coord.StartBinding(ctx, "s1", "X", 0)
	require.NoError(t, err)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		bound int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			res, _ := h.router.HandleEvent(ctx, exit("s1", string(rune('1'+n%9))+"00000", "", 0))
			if res != nil && res.Outcome == scan.OutcomeBound {
				mu.Lock()
				bound++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, bound)
}

func TestHandleEvent_AsignacionVencidaEsMovimiento(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "X", "amox", "", 10)
	h.batch(t, "Y", "amox", "7777777", 5)
	ctx := context.Background()

	_, err := h.coord.StartBinding(ctx, "s1", "X", time.Minute)
	require.NoError(t, err)
	h.clock.Advance(2 * time.Minute)

	res, err := h.router.HandleEvent(ctx, exit("s1", "7777777", "ICU", 2))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeRemoved, res.Outcome)
	assert.False(t, h.get(t, "X").HasTag())
	assert.Equal(t, int64(3), h.get(t, "Y").Quantity)

	state := h.coord.Snapshot("s1")
	assert.Nil(t, state.Pending)
	require.NotNil(t, state.Last)
	assert.Equal(t, entity.PendingStateExpired, state.Last.State)
}

func TestStartBinding_TemporizadorExpira(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "X", "amox", "", 1)

	_, err := h.coord.StartBinding(context.Background(), "s1", "X", 20*time.Millisecond)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		st := h.coord.Snapshot("s1")
		return st.Pending == nil && st.Last != nil && st.Last.State == entity.PendingStateExpired
	}, time.Second, 5*time.Millisecond)
}

func TestStartBinding_LoteInexistente(t *testing.T) {
	h := newHarness(t, scan.Config{})
	_, err := h.coord.StartBinding(context.Background(), "s1", "nope", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

// --- Contexto pendiente de salida ---

func TestHandleEvent_SalidaSinAreaQuedaPendiente(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1234567", 10)
	ctx := context.Background()

	res, err := h.router.HandleEvent(ctx, exit("s1", "1234567", "", 0))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomePending, res.Outcome)
	require.NotNil(t, res.Pending)
	assert.Equal(t, entity.PendingModeRemoval, res.Pending.Mode)
	assert.Equal(t, int64(10), h.get(t, "A").Quantity)

	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput, "sin área el contexto sigue esperando")

	out, err := h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "ICU", Quantity: 4})
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeRemoved, out.Outcome)
	assert.Equal(t, int64(6), h.get(t, "A").Quantity)

	st := h.coord.Snapshot("s1")
	assert.Nil(t, st.Pending)
	assert.Equal(t, entity.PendingStateCommitted, st.Last.State)

	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "ICU"})
	assert.ErrorIs(t, err, domain.ErrNoPendingContext)
}

func TestSupplyContext_Vencido(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1234567", 10)
	ctx := context.Background()

	_, err := h.router.HandleEvent(ctx, exit("s1", "1234567", "", 0))
	require.NoError(t, err)
	h.clock.Advance(31 * time.Second)

	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "ICU"})
	assert.ErrorIs(t, err, domain.ErrPendingContextExpired)
	assert.Equal(t, int64(10), h.get(t, "A").Quantity)
	assert.Empty(t, h.store.Ledger().All())
}

func TestSupplyContext_ErrorCierraComoFallido(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1234567", 10)
	ctx := context.Background()

	_, err := h.router.HandleEvent(ctx, exit("s1", "1234567", "", 0))
	require.NoError(t, err)

	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "QUIROFANO"})
	require.Error(t, err)

	st := h.coord.Snapshot("s1")
	assert.Nil(t, st.Pending)
	require.NotNil(t, st.Last)
	assert.Equal(t, entity.PendingStateFailed, st.Last.State)
	assert.Equal(t, int64(10), h.get(t, "A").Quantity)
}

func TestRegistry_DescartaSesionesInactivas(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1234567", 10)
	h.batch(t, "X", "amox", "", 1)
	ctx := context.Background()

	_, err := h.router.HandleEvent(ctx, exit("s1", "1234567", "ICU", 1))
	require.NoError(t, err)
	_, err = h.coord.StartBinding(ctx, "s3", "X", 0)
	require.NoError(t, err)
	require.Equal(t, 2, h.registry.Len())

	h.clock.Advance(scan.DefaultSessionIdle + time.Minute)
	h.coord.Snapshot("s2")

	// s1 sin contexto se descarta; s3 conserva su asignación.
	assert.Equal(t, 2, h.registry.Len())
	assert.NotNil(t, h.coord.Snapshot("s3").Pending)
	assert.Nil(t, h.coord.Snapshot("s1").Last, "s1 se recrea vacía")
	assert.Equal(t, 3, h.registry.Len())
}

func TestCancel_Idempotente(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1234567", 10)
	ctx := context.Background()

	_, err := h.router.HandleEvent(ctx, exit("s1", "1234567", "", 0))
	require.NoError(t, err)

	assert.True(t, h.coord.Cancel("s1"))
	assert.False(t, h.coord.Cancel("s1"))
	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "ICU"})
	assert.ErrorIs(t, err, domain.ErrNoPendingContext)
	assert.Empty(t, h.store.Ledger().All())
}

func TestHandleEvent_NuevoPendienteReemplazaAlAnterior(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1111111", 10)
	h.batch(t, "B", "amox", "2222222", 10)
	ctx := context.Background()

	first, err := h.router.HandleEvent(ctx, exit("s1", "1111111", "", 0))
	require.NoError(t, err)
	_, err = h.router.HandleEvent(ctx, exit("s1", "2222222", "", 0))
	require.NoError(t, err)

	st := h.coord.Snapshot("s1")
	require.NotNil(t, st.Last)
	assert.Equal(t, first.Pending.ID, st.Last.ID)
	assert.Equal(t, entity.PendingStateCancelled, st.Last.State)

	_, err = h.coord.SupplyContext(ctx, "s1", scan.ContextInput{AreaID: "ICU"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), h.get(t, "A").Quantity)
	assert.Equal(t, int64(9), h.get(t, "B").Quantity)
}

func TestHandleEvent_SesionesIndependientes(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "X", "amox", "", 1)
	h.batch(t, "A", "amox", "1111111", 10)
	ctx := context.Background()

	_, err := h.coord.StartBinding(ctx, "s1", "X", 0)
	require.NoError(t, err)

	res, err := h.router.HandleEvent(ctx, exit("s2", "1111111", "ICU", 1))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeRemoved, res.Outcome)
	assert.NotNil(t, h.coord.Snapshot("s1").Pending, "la asignación de s1 sigue activa")
}

// --- Entradas y errores ---

func TestHandleEvent_Entrada(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1111111", 10)

	res, err := h.router.HandleEvent(context.Background(), entity.TagEvent{SessionID: "s1", UID: "1111111", Action: entity.TagActionEntry, Quantity: 5})
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeInbound, res.Outcome)
	assert.Equal(t, int64(15), h.get(t, "A").Quantity)
}

func TestHandleEvent_Errores(t *testing.T) {
	h := newHarness(t, scan.Config{})
	ctx := context.Background()

	_, err := h.router.HandleEvent(ctx, exit("s1", "sin-digitos", "", 0))
	assert.ErrorIs(t, err, domain.ErrMalformedTag)
	_, err = h.router.HandleEvent(ctx, entity.TagEvent{UID: "1", Action: "otra"})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = h.router.HandleEvent(ctx, exit("s1", "9999999", "", 0))
	assert.ErrorIs(t, err, domain.ErrNoMatchingBatch)
	assert.Nil(t, h.coord.Snapshot("s1").Pending)
}

func TestHandleEvent_SalidaConFaltante(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1111111", 2)

	res, err := h.router.HandleEvent(context.Background(), exit("s1", "1111111", "ICU", 5))
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	require.NotNil(t, res)
	assert.Equal(t, int64(2), res.Consumption.Allocated())
}

// --- Dispensación ---

func TestHandleEvent_DispensacionPaquetePideCantidad(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "J", "jarabe", "3000003", 40)
	ctx := context.Background()
	p, err := h.matcher.CreatePrescription(ctx, "pac", []dispensing.ItemInput{{ProductID: "jarabe", QuantityRequired: 5}})
	require.NoError(t, err)
	require.NoError(t, h.coord.StartDispensing(ctx, "s1", p.ID))

	res, err := h.router.HandleEvent(ctx, exit("s1", "3000003", "", 0))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomePending, res.Outcome)
	assert.Equal(t, entity.PendingModeDispense, res.Pending.Mode)
	assert.Equal(t, "jarabe", res.Pending.ProductID)

	out, err := h.coord.SupplyContext(ctx, "s1", scan.ContextInput{Quantity: 3})
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeDispensed, out.Outcome)
	assert.Equal(t, int64(3), out.Dispense.Quantity)
	assert.Equal(t, int64(37), h.get(t, "J").Quantity)
}

func TestHandleEvent_DispensacionUnitaria(t *testing.T) {
	h := newHarness(t, scan.Config{})
	h.batch(t, "A", "amox", "1111111", 4)
	ctx := context.Background()
	p, err := h.matcher.CreatePrescription(ctx, "pac", []dispensing.ItemInput{{ProductID: "amox", QuantityRequired: 1}})
	require.NoError(t, err)
	require.NoError(t, h.coord.StartDispensing(ctx, "s1", p.ID))

	res, err := h.router.HandleEvent(ctx, exit("s1", "1111111", "", 0))
	require.NoError(t, err)
	assert.Equal(t, scan.OutcomeDispensed, res.Outcome)
	assert.True(t, res.Dispense.Closed)

	h.coord.StopDispensing("s1")
	assert.Empty(t, h.coord.Snapshot("s1").PrescriptionID)
	assert.ErrorIs(t, h.coord.StartDispensing(ctx, "s1", p.ID), domain.ErrPrescriptionClosed)
}
