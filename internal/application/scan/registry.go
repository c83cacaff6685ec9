package scan

import (
	"sync"
	"time"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// DefaultSessionIdle tiempo sin uso tras el cual una sesión sin contexto ni receta se descarta.
const DefaultSessionIdle = 15 * time.Minute

// session estado efímero de un operador. Todo acceso pasa por mu:
// revisar el modo, actuar y limpiar es una única sección crítica.
type session struct {
	mu           sync.Mutex
	id           string
	pending      *entity.PendingContext
	last         *entity.PendingContext // último contexto cerrado (para consulta)
	timer        *time.Timer
	prescription string // receta de la sesión de dispensación activa
	lastUsed     time.Time
	evicted      bool
}

func (s *session) idle() bool {
	return s.pending == nil && s.prescription == ""
}

// Registry sesiones de operador indexadas por id.
type Registry struct {
	mu        sync.Mutex
	sessions  map[string]*session
	idle      time.Duration
	now       func() time.Time
	lastSweep time.Time
}

// NewRegistry crea el registro vacío con DefaultSessionIdle.
func NewRegistry() *Registry {
	return NewRegistryWithIdle(DefaultSessionIdle)
}

// NewRegistryWithIdle crea el registro con el tiempo de inactividad dado (<= 0 no descarta).
func NewRegistryWithIdle(idle time.Duration) *Registry {
	return &Registry{sessions: make(map[string]*session), idle: idle}
}

// Len cantidad de sesiones vivas.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

// acquire devuelve la sesión con s.mu tomado. Si la sesión fue descartada
// entre la búsqueda y el lock se vuelve a buscar.
func (r *Registry) acquire(id string) *session {
	for {
		s := r.get(id)
		s.mu.Lock()
		if !s.evicted {
			s.lastUsed = r.clock()
			return s
		}
		s.mu.Unlock()
	}
}

func (r *Registry) get(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.clock()
	if r.idle > 0 && now.Sub(r.lastSweep) >= r.idle {
		r.sweep(now)
		r.lastSweep = now
	}
	s, ok := r.sessions[id]
	if !ok {
		s = &session{id: id, lastUsed: now}
		r.sessions[id] = s
	}
	return s
}

// sweep descarta sesiones inactivas. Llamar con r.mu tomado; las sesiones
// ocupadas se saltan.
func (r *Registry) sweep(now time.Time) {
	for id, s := range r.sessions {
		if !s.mu.TryLock() {
			continue
		}
		if s.idle() && now.Sub(s.lastUsed) >= r.idle {
			s.evicted = true
			delete(r.sessions, id)
		}
		s.mu.Unlock()
	}
}

// SessionState vista de una sesión.
type SessionState struct {
	SessionID      string
	PrescriptionID string
	Pending        *entity.PendingContext
	Last           *entity.PendingContext
}

func copyContext(pc *entity.PendingContext) *entity.PendingContext {
	if pc == nil {
		return nil
	}
	c := *pc
	return &c
}
