package entity

import "time"

// Estados de una receta.
const (
	PrescriptionStatusOpen   = "open"
	PrescriptionStatusClosed = "closed"
)

// Prescription es una receta con líneas ordenadas.
type Prescription struct {
	ID         string
	PatientRef string
	Status     string
	Items      []*PrescriptionItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// PrescriptionItem línea de receta: un producto con cantidad requerida y acumulado dispensado.
type PrescriptionItem struct {
	ID                string
	PrescriptionID    string
	ProductID         string
	Position          int
	QuantityRequired  int64
	QuantityDispensed int64
}

// Remaining devuelve lo que falta por dispensar.
func (i *PrescriptionItem) Remaining() int64 {
	if r := i.QuantityRequired - i.QuantityDispensed; r > 0 {
		return r
	}
	return 0
}

// PrescriptionFulfillment registra lo dispensado de un lote para una línea.
type PrescriptionFulfillment struct {
	ID        string
	ItemID    string
	BatchID   string
	Quantity  int64
	SessionID string
	CreatedAt time.Time
}
