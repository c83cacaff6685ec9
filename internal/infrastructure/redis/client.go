// Package redis adapta Redis para el despliegue con varias réplicas: debounce compartido
// de lecturas, publicación de eventos de stock y lock de migraciones.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/pkg/config"
)

// Connect crea el cliente y verifica la conexión con un ping acotado.
func Connect(ctx context.Context, cfg config.RedisConfig, log zerolog.Logger) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 50,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	log.Info().Str("addr", cfg.Addr).Msg("conectado a redis")
	return rdb, nil
}

// NewLocker cliente de locks distribuidos sobre la conexión dada.
func NewLocker(rdb *goredis.Client) *redislock.Client {
	return redislock.New(rdb)
}
