package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jhoicas/medstock-rfid/internal/application/scan"
)

var _ scan.Debouncer = (*Debouncer)(nil)

// SetNXer subconjunto de *goredis.Client que usa el debouncer.
type SetNXer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.BoolCmd
}

// Debouncer descarta lecturas repetidas entre réplicas con SET NX PX:
// la primera réplica que escribe la clave gana la ventana.
type Debouncer struct {
	rdb    SetNXer
	prefix string
}

// NewDebouncer construye el debouncer; las claves quedan bajo prefix.
func NewDebouncer(rdb SetNXer, prefix string) *Debouncer {
	if prefix == "" {
		prefix = "medstock:debounce:"
	}
	return &Debouncer{rdb: rdb, prefix: prefix}
}

// Seen devuelve true si la clave ya existía (lectura duplicada dentro de la ventana).
func (d *Debouncer) Seen(ctx context.Context, key string, window time.Duration) (bool, error) {
	if window <= 0 {
		return false, nil
	}
	created, err := d.rdb.SetNX(ctx, d.prefix+key, 1, window).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return !created, nil
}
