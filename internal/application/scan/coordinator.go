// Package scan interpreta las lecturas RFID por sesión de operador: modo de asignación
// de tag, movimientos de stock y el flujo en dos fases "leer ahora, completar después".
package scan

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// Valores por defecto de los plazos.
const (
	DefaultBindingTimeout = 60 * time.Second
	DefaultContextTimeout = 30 * time.Second
	DefaultDebounceWindow = 2 * time.Second
)

// Outcome resultado de procesar una lectura o un contexto.
type Outcome string

const (
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeBound     Outcome = "bound"
	OutcomeInbound   Outcome = "inbound"
	OutcomeRemoved   Outcome = "removed"
	OutcomeDispensed Outcome = "dispensed"
	OutcomePending   Outcome = "pending"
)

// Result lo que produjo una lectura. Solo se llenan los campos del resultado dado.
type Result struct {
	Outcome     Outcome
	SessionID   string
	UID         string
	Batch       *entity.Batch
	Consumption *stock.Consumption
	Dispense    *dispensing.Result
	Pending     *entity.PendingContext
}

// Config plazos del coordinador.
type Config struct {
	BindingTimeout time.Duration
	ContextTimeout time.Duration
	DebounceWindow time.Duration
	Now            func() time.Time
}

func (c Config) withDefaults() Config {
	if c.BindingTimeout <= 0 {
		c.BindingTimeout = DefaultBindingTimeout
	}
	if c.ContextTimeout <= 0 {
		c.ContextTimeout = DefaultContextTimeout
	}
	if c.DebounceWindow < 0 {
		c.DebounceWindow = 0
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// ContextInput respuesta del operador a un contexto pendiente.
type ContextInput struct {
	AreaID   string
	Quantity int64
}

// Coordinator administra los contextos pendientes de cada sesión
// (asignación de tag, salida sin área, dispensación sin cantidad).
type Coordinator struct {
	registry *Registry
	stock    *stock.Service
	matcher  *dispensing.Matcher
	cfg      Config
	log      zerolog.Logger
}

// NewCoordinator construye el coordinador.
func NewCoordinator(registry *Registry, stockSvc *stock.Service, matcher *dispensing.Matcher, cfg Config, log zerolog.Logger) *Coordinator {
	if registry == nil {
		registry = NewRegistry()
	}
	cfg = cfg.withDefaults()
	if registry.now == nil {
		registry.now = cfg.Now
	}
	return &Coordinator{
		registry: registry,
		stock:    stockSvc,
		matcher:  matcher,
		cfg:      cfg,
		log:      log,
	}
}

// StartBinding activa el modo asignación: la próxima lectura de la sesión se asigna al lote.
func (c *Coordinator) StartBinding(ctx context.Context, sessionID, batchID string, timeout time.Duration) (*entity.PendingContext, error) {
	if sessionID == "" || batchID == "" || timeout < 0 {
		return nil, domain.ErrInvalidInput
	}
	if _, err := c.stock.BatchByID(ctx, batchID); err != nil {
		return nil, err
	}
	if timeout == 0 {
		timeout = c.cfg.BindingTimeout
	}
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()

	pc := c.open(s, &entity.PendingContext{
		Mode:          entity.PendingModeBinding,
		TargetBatchID: batchID,
	}, timeout)
	c.log.Info().Str("session", sessionID).Str("batch_id", batchID).Dur("timeout", timeout).Msg("modo asignación activado")
	return copyContext(pc), nil
}

// SupplyContext completa el contexto pendiente y confirma el movimiento.
// Vencido el plazo (aunque el temporizador no haya corrido) devuelve ErrPendingContextExpired.
func (c *Coordinator) SupplyContext(ctx context.Context, sessionID string, in ContextInput) (*Result, error) {
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()

	pc := s.pending
	if pc == nil || pc.Mode == entity.PendingModeBinding {
		return nil, domain.ErrNoPendingContext
	}
	if pc.Expired(c.cfg.Now()) {
		c.close(s, entity.PendingStateExpired)
		return nil, domain.ErrPendingContextExpired
	}

	switch pc.Mode {
	case entity.PendingModeRemoval:
		if in.AreaID == "" || in.Quantity < 0 {
			return nil, domain.ErrInvalidInput
		}
		qty := in.Quantity
		if qty == 0 {
			qty = pc.Quantity
		}
		res, err := c.stock.Remove(ctx, stock.RemovalInput{
			UID:       pc.ResolvedUID,
			ProductID: pc.ProductID,
			AreaID:    in.AreaID,
			Quantity:  qty,
			SessionID: sessionID,
		})
		if res == nil {
			c.close(s, entity.PendingStateFailed)
			return nil, err
		}
		// Con faltante lo asignado ya quedó confirmado.
		c.close(s, entity.PendingStateCommitted)
		return &Result{Outcome: OutcomeRemoved, SessionID: sessionID, UID: pc.ResolvedUID, Consumption: res}, err

	case entity.PendingModeDispense:
		if in.Quantity <= 0 {
			return nil, domain.ErrInvalidInput
		}
		res, err := c.matcher.Dispense(ctx, dispensing.Request{
			PrescriptionID: pc.PrescriptionID,
			UID:            pc.ResolvedUID,
			ProductID:      pc.ProductID,
			Quantity:       in.Quantity,
			SessionID:      sessionID,
		})
		if err != nil {
			c.close(s, entity.PendingStateFailed)
			return nil, err
		}
		c.close(s, entity.PendingStateCommitted)
		return &Result{Outcome: OutcomeDispensed, SessionID: sessionID, UID: pc.ResolvedUID, Dispense: res}, nil
	}
	return nil, domain.ErrNoPendingContext
}

// Cancel descarta el contexto pendiente de la sesión (asignación incluida). Idempotente:
// devuelve false si no había nada que cancelar.
func (c *Coordinator) Cancel(sessionID string) bool {
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()
	if s.pending == nil {
		return false
	}
	c.close(s, entity.PendingStateCancelled)
	return true
}

// StartDispensing asocia la sesión a una receta abierta: las salidas se dispensan contra ella.
func (c *Coordinator) StartDispensing(ctx context.Context, sessionID, prescriptionID string) error {
	if sessionID == "" || prescriptionID == "" {
		return domain.ErrInvalidInput
	}
	p, _, err := c.matcher.Prescription(ctx, prescriptionID)
	if err != nil {
		return err
	}
	if p.Status == entity.PrescriptionStatusClosed {
		return domain.ErrPrescriptionClosed
	}
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()
	if s.prescription != prescriptionID && s.pending != nil && s.pending.Mode == entity.PendingModeDispense {
		c.close(s, entity.PendingStateCancelled)
	}
	s.prescription = prescriptionID
	c.log.Info().Str("session", sessionID).Str("prescription_id", prescriptionID).Msg("sesión de dispensación iniciada")
	return nil
}

// StopDispensing termina la sesión de dispensación y descarta su contexto pendiente.
func (c *Coordinator) StopDispensing(sessionID string) {
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.Mode == entity.PendingModeDispense {
		c.close(s, entity.PendingStateCancelled)
	}
	s.prescription = ""
}

// Snapshot estado actual de la sesión. Un contexto vencido se informa como expirado.
func (c *Coordinator) Snapshot(sessionID string) SessionState {
	s := c.registry.acquire(sessionID)
	defer s.mu.Unlock()
	if s.pending != nil && s.pending.Expired(c.cfg.Now()) {
		c.close(s, entity.PendingStateExpired)
	}
	return SessionState{
		SessionID:      sessionID,
		PrescriptionID: s.prescription,
		Pending:        copyContext(s.pending),
		Last:           copyContext(s.last),
	}
}

// open instala un contexto nuevo; el anterior, si existe, se cancela primero.
// Llamar con s.mu tomado.
func (c *Coordinator) open(s *session, pc *entity.PendingContext, timeout time.Duration) *entity.PendingContext {
	if s.pending != nil {
		c.close(s, entity.PendingStateCancelled)
	}
	now := c.cfg.Now()
	pc.ID = uuid.New().String()
	pc.SessionID = s.id
	pc.State = entity.PendingStateAwaiting
	pc.CreatedAt = now
	pc.ExpiresAt = now.Add(timeout)
	s.pending = pc
	s.timer = time.AfterFunc(timeout, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		// Solo si sigue siendo el mismo contexto.
		if s.pending != pc {
			return
		}
		c.close(s, entity.PendingStateExpired)
		c.log.Info().Str("session", s.id).Str("mode", pc.Mode).Msg("contexto pendiente expirado")
	})
	return pc
}

// close cierra el contexto actual con el estado final. Llamar con s.mu tomado.
func (c *Coordinator) close(s *session, state string) {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	if s.pending == nil {
		return
	}
	s.pending.State = state
	s.last = s.pending
	s.pending = nil
}
