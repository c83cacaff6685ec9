package entity

import "time"

// Modos de un contexto pendiente.
const (
	PendingModeBinding  = "binding"  // la próxima lectura se asigna a TargetBatchID
	PendingModeRemoval  = "removal"  // salida genérica esperando el área destino
	PendingModeDispense = "dispense" // dispensación esperando la cantidad
)

// Estados de la máquina del contexto pendiente.
const (
	PendingStateAwaiting  = "awaiting_context"
	PendingStateCommitted = "committed"
	PendingStateExpired   = "expired"
	PendingStateCancelled = "cancelled"
	PendingStateFailed    = "failed" // el movimiento confirmado devolvió error
)

// PendingContext estado efímero entre la detección del tag y el contexto del operador.
// Solo vive en memoria.
type PendingContext struct {
	ID             string
	SessionID      string
	Mode           string
	State          string
	TargetBatchID  string
	ResolvedUID    string
	ProductID      string
	PrescriptionID string
	AreaID         string
	Quantity       int64
	CreatedAt      time.Time
	ExpiresAt      time.Time
}

// Expired indica si el plazo venció en el instante now.
func (p *PendingContext) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}
