package stock

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Tipos de evento emitidos hacia afuera.
const (
	EventStockChanged      = "stock.changed"
	EventInsufficientStock = "stock.insufficient"
	EventLowStock          = "stock.low"
)

// Event payload publicado para el push en tiempo real y el subsistema de alertas.
type Event struct {
	Type      string    `json:"type"`
	ProductID string    `json:"product_id,omitempty"`
	UID       string    `json:"uid,omitempty"`
	Total     int64     `json:"total"`
	Minimum   int64     `json:"minimum,omitempty"`
	Requested int64     `json:"requested,omitempty"`
	Shortfall int64     `json:"shortfall,omitempty"`
	At        time.Time `json:"at"`
}

// LogPublisher publica los eventos solo en el log (sin Redis configurado).
type LogPublisher struct {
	log zerolog.Logger
}

// NewLogPublisher construye el publicador de log.
func NewLogPublisher(log zerolog.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

// Publish escribe el evento como línea estructurada.
func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	p.log.Info().
		Str("event", ev.Type).
		Str("product_id", ev.ProductID).
		Str("uid", ev.UID).
		Int64("total", ev.Total).
		Int64("shortfall", ev.Shortfall).
		Msg("evento de stock")
	return nil
}
