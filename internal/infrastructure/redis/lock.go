package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/rs/zerolog"
)

// MigrationLockKey clave del lock que serializa las migraciones entre réplicas.
const MigrationLockKey = "medstock:lock:migrations"

// Obtainer subconjunto de *redislock.Client.
type Obtainer interface {
	Obtain(ctx context.Context, key string, ttl time.Duration, opt *redislock.Options) (*redislock.Lock, error)
}

// WithLock ejecuta fn con el lock tomado. Espera con reintentos lineales hasta wait;
// si no lo obtiene devuelve redislock.ErrNotObtained.
func WithLock(ctx context.Context, locker Obtainer, key string, ttl, wait time.Duration, log zerolog.Logger, fn func(ctx context.Context) error) error {
	backoff := 500 * time.Millisecond
	retries := int(wait / backoff)
	lock, err := locker.Obtain(ctx, key, ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(backoff), retries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		log.Warn().Str("key", key).Dur("wait", wait).Msg("no se pudo obtener el lock")
		return err
	}
	if err != nil {
		return fmt.Errorf("obtener lock %s: %w", key, err)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			log.Warn().Err(err).Str("key", key).Msg("liberar lock")
		}
	}()
	log.Info().Str("key", key).Msg("lock obtenido")
	return fn(ctx)
}
