package scan

import (
	"context"
	"sync"
	"time"
)

// Debouncer descarta lecturas repetidas. Seen registra la clave y devuelve true
// si ya se había visto dentro de la ventana.
type Debouncer interface {
	Seen(ctx context.Context, key string, window time.Duration) (bool, error)
}

// DebounceKey clave de una lectura: sesión, UID normalizado y acción.
func DebounceKey(sessionID, uid, action string) string {
	return sessionID + "|" + uid + "|" + action
}

const pruneThreshold = 1024

// MemoryDebouncer implementación en proceso (una sola réplica).
type MemoryDebouncer struct {
	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewMemoryDebouncer construye el debouncer; now nil usa time.Now.
func NewMemoryDebouncer(now func() time.Time) *MemoryDebouncer {
	if now == nil {
		now = time.Now
	}
	return &MemoryDebouncer{seen: make(map[string]time.Time), now: now}
}

// Seen la ventana se mide desde la primera lectura aceptada; los duplicados no la extienden.
func (d *MemoryDebouncer) Seen(_ context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if at, ok := d.seen[key]; ok && now.Sub(at) < window {
		return true, nil
	}
	d.seen[key] = now
	if len(d.seen) > pruneThreshold {
		for k, at := range d.seen {
			if now.Sub(at) >= window {
				delete(d.seen, k)
			}
		}
	}
	return false, nil
}
