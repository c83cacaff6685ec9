package scan

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/dispensing"
	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// DefaultSession sesión usada cuando el lector no informa una.
const DefaultSession = "default"

// Router decide qué significa cada lectura según el estado de la sesión.
type Router struct {
	coord     *Coordinator
	debouncer Debouncer
	log       zerolog.Logger
}

// NewRouter construye el enrutador. debouncer nil usa la implementación en memoria.
func NewRouter(coord *Coordinator, debouncer Debouncer, log zerolog.Logger) *Router {
	if debouncer == nil {
		debouncer = NewMemoryDebouncer(coord.cfg.Now)
	}
	return &Router{coord: coord, debouncer: debouncer, log: log}
}

// Coordinator expone el coordinador de contextos.
func (r *Router) Coordinator() *Coordinator { return r.coord }

// HandleEvent procesa una lectura: normaliza, descarta duplicados y, dentro de la
// sección crítica de la sesión, asigna el tag o registra el movimiento.
// En una salida con faltante devuelve el resultado junto con el error.
func (r *Router) HandleEvent(ctx context.Context, ev entity.TagEvent) (*Result, error) {
	uid, err := r.coord.stock.Normalizer().Normalize(ev.UID)
	if err != nil {
		return nil, err
	}
	if ev.Action != entity.TagActionEntry && ev.Action != entity.TagActionExit {
		return nil, domain.ErrInvalidInput
	}
	if ev.Quantity < 0 {
		return nil, domain.ErrInvalidInput
	}
	sessionID := ev.SessionID
	if sessionID == "" {
		sessionID = DefaultSession
	}

	s := r.coord.registry.acquire(sessionID)
	defer s.mu.Unlock()

	key := DebounceKey(sessionID, uid, ev.Action)

	// En modo asignación toda lectura es una asignación: la ventana solo se registra
	// para que la repetición inmediata no se convierta en movimiento.
	if pc := s.pending; pc != nil && pc.Mode == entity.PendingModeBinding {
		if !pc.Expired(r.coord.cfg.Now()) {
			if _, err := r.debouncer.Seen(ctx, key, r.coord.cfg.DebounceWindow); err != nil {
				r.log.Warn().Err(err).Str("session", sessionID).Msg("debounce no disponible")
			}
			return r.bind(ctx, s, pc, uid)
		}
		r.coord.close(s, entity.PendingStateExpired)
	}

	dup, err := r.debouncer.Seen(ctx, key, r.coord.cfg.DebounceWindow)
	if err != nil {
		r.log.Warn().Err(err).Str("session", sessionID).Msg("debounce no disponible, se procesa la lectura")
	}
	if dup {
		r.log.Debug().Str("session", sessionID).Str("uid", uid).Str("action", ev.Action).Msg("lectura duplicada")
		return &Result{Outcome: OutcomeDuplicate, SessionID: sessionID, UID: uid}, nil
	}

	if ev.Action == entity.TagActionEntry {
		batch, err := r.coord.stock.TopUpByTag(ctx, uid, ev.Quantity, sessionID)
		if err != nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeInbound, SessionID: sessionID, UID: uid, Batch: batch}, nil
	}

	if s.prescription != "" {
		return r.dispense(ctx, s, uid, ev.Quantity)
	}
	if ev.AreaID != "" {
		res, err := r.coord.stock.Remove(ctx, stock.RemovalInput{
			UID:       uid,
			AreaID:    ev.AreaID,
			Quantity:  ev.Quantity,
			SessionID: sessionID,
		})
		if res == nil {
			return nil, err
		}
		return &Result{Outcome: OutcomeRemoved, SessionID: sessionID, UID: uid, Consumption: res}, err
	}

	// Sin área: se valida que el tag resuelva antes de esperar el contexto.
	candidates, err := r.coord.stock.Resolver().Resolve(ctx, uid, "")
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, domain.ErrNoMatchingBatch
	}
	pc := r.coord.open(s, &entity.PendingContext{
		Mode:        entity.PendingModeRemoval,
		ResolvedUID: uid,
		Quantity:    ev.Quantity,
	}, r.coord.cfg.ContextTimeout)
	return &Result{Outcome: OutcomePending, SessionID: sessionID, UID: uid, Pending: copyContext(pc)}, nil
}

// bind primera lectura gana: el modo se limpia con cualquier resultado.
func (r *Router) bind(ctx context.Context, s *session, pc *entity.PendingContext, uid string) (*Result, error) {
	batch, err := r.coord.stock.BindTag(ctx, pc.TargetBatchID, uid)
	if err != nil {
		r.coord.close(s, entity.PendingStateFailed)
		return nil, err
	}
	r.coord.close(s, entity.PendingStateCommitted)
	return &Result{Outcome: OutcomeBound, SessionID: s.id, UID: uid, Batch: batch}, nil
}

func (r *Router) dispense(ctx context.Context, s *session, uid string, qty int64) (*Result, error) {
	res, err := r.coord.matcher.Dispense(ctx, dispensing.Request{
		PrescriptionID: s.prescription,
		UID:            uid,
		Quantity:       qty,
		SessionID:      s.id,
	})
	var qre *dispensing.QuantityRequiredError
	if errors.As(err, &qre) {
		pc := r.coord.open(s, &entity.PendingContext{
			Mode:           entity.PendingModeDispense,
			ResolvedUID:    uid,
			ProductID:      qre.ProductID,
			PrescriptionID: qre.PrescriptionID,
		}, r.coord.cfg.ContextTimeout)
		return &Result{Outcome: OutcomePending, SessionID: s.id, UID: uid, Pending: copyContext(pc)}, nil
	}
	if err != nil {
		return nil, err
	}
	return &Result{Outcome: OutcomeDispensed, SessionID: s.id, UID: uid, Dispense: res}, nil
}
