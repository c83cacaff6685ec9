package dto

import "time"

// TagEventRequest body para POST /api/rfid/events (mismo formato que el feed NDJSON).
type TagEventRequest struct {
	UID       string `json:"uid"`
	Action    string `json:"action"`
	AreaID    string `json:"area_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// BindingRequest body para POST /api/sessions/:session/binding.
type BindingRequest struct {
	BatchID        string `json:"batch_id"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ContextRequest respuesta del operador a un contexto pendiente.
type ContextRequest struct {
	AreaID   string `json:"area_id,omitempty"`
	Quantity int64  `json:"quantity,omitempty"`
}

// DispensingSessionRequest body para POST /api/sessions/:session/dispensing.
type DispensingSessionRequest struct {
	PrescriptionID string `json:"prescription_id"`
}

// PendingContextResponse contexto pendiente de una sesión.
type PendingContextResponse struct {
	ID             string    `json:"id"`
	Mode           string    `json:"mode"`
	State          string    `json:"state"`
	TargetBatchID  string    `json:"target_batch_id,omitempty"`
	UID            string    `json:"uid,omitempty"`
	ProductID      string    `json:"product_id,omitempty"`
	PrescriptionID string    `json:"prescription_id,omitempty"`
	AreaID         string    `json:"area_id,omitempty"`
	Quantity       int64     `json:"quantity,omitempty"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// SessionResponse estado de una sesión de operador.
type SessionResponse struct {
	SessionID      string                  `json:"session_id"`
	PrescriptionID string                  `json:"prescription_id,omitempty"`
	Pending        *PendingContextResponse `json:"pending"`
	Last           *PendingContextResponse `json:"last"`
}

// ScanResultResponse lo que produjo una lectura o una respuesta de contexto.
type ScanResultResponse struct {
	Outcome     string                  `json:"outcome"`
	SessionID   string                  `json:"session_id"`
	UID         string                  `json:"uid,omitempty"`
	Batch       *BatchResponse          `json:"batch,omitempty"`
	Allocations []AllocationResponse    `json:"allocations,omitempty"`
	Dispense    *DispenseResponse       `json:"dispense,omitempty"`
	Pending     *PendingContextResponse `json:"pending,omitempty"`
}
