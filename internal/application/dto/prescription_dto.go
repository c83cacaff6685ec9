package dto

import "time"

// PrescriptionItemRequest línea al registrar una receta.
type PrescriptionItemRequest struct {
	ProductID        string `json:"product_id"`
	QuantityRequired int64  `json:"quantity_required"`
}

// CreatePrescriptionRequest body para POST /api/prescriptions.
type CreatePrescriptionRequest struct {
	PatientRef string                    `json:"patient_ref"`
	Items      []PrescriptionItemRequest `json:"items"`
}

// DispenseRequest body para POST /api/prescriptions/:id/dispense.
type DispenseRequest struct {
	UID       string `json:"uid,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
}

// PrescriptionItemResponse línea de receta con su avance.
type PrescriptionItemResponse struct {
	ID                string `json:"id"`
	ProductID         string `json:"product_id"`
	Position          int    `json:"position"`
	QuantityRequired  int64  `json:"quantity_required"`
	QuantityDispensed int64  `json:"quantity_dispensed"`
	Remaining         int64  `json:"remaining"`
}

// FulfillmentResponse lo dispensado de un lote para una línea.
type FulfillmentResponse struct {
	ItemID    string    `json:"item_id"`
	BatchID   string    `json:"batch_id"`
	Quantity  int64     `json:"quantity"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PrescriptionResponse receta con líneas y dispensaciones.
type PrescriptionResponse struct {
	ID           string                     `json:"id"`
	PatientRef   string                     `json:"patient_ref"`
	Status       string                     `json:"status"`
	Items        []PrescriptionItemResponse `json:"items"`
	Fulfillments []FulfillmentResponse      `json:"fulfillments"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// DispenseResponse resultado de dispensar contra una receta.
type DispenseResponse struct {
	PrescriptionID string               `json:"prescription_id"`
	ItemID         string               `json:"item_id"`
	ProductID      string               `json:"product_id"`
	Quantity       int64                `json:"quantity"`
	Allocations    []AllocationResponse `json:"allocations"`
	Closed         bool                 `json:"closed"`
}

// QuantityRequiredResponse cuerpo del 422 cuando una presentación multi-unidad necesita cantidad.
type QuantityRequiredResponse struct {
	Code           string `json:"code"`
	Message        string `json:"message"`
	PrescriptionID string `json:"prescription_id"`
	ItemID         string `json:"item_id"`
	ProductID      string `json:"product_id"`
	Remaining      int64  `json:"remaining"`
}
