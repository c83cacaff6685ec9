package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/stock"
)

var _ stock.EventPublisher = (*Publisher)(nil)

// PubSub subconjunto de *goredis.Client que usa el publicador.
type PubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

// Publisher publica los eventos de stock como JSON en un canal pub/sub
// (push en tiempo real y alertas) y deja la misma línea en el log.
type Publisher struct {
	rdb     PubSub
	channel string
	log     zerolog.Logger
}

// NewPublisher construye el publicador.
func NewPublisher(rdb PubSub, channel string, log zerolog.Logger) *Publisher {
	return &Publisher{rdb: rdb, channel: channel, log: log}
}

// Publish serializa y publica el evento.
func (p *Publisher) Publish(ctx context.Context, ev stock.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("serializar evento: %w", err)
	}
	receivers, err := p.rdb.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	p.log.Debug().
		Str("event", ev.Type).
		Str("product_id", ev.ProductID).
		Int64("receivers", receivers).
		Msg("evento publicado")
	return nil
}
