package entity

import "time"

// Tipos de asiento del libro de stock.
const (
	LedgerKindInbound = "inbound" // entrada
	LedgerKindConsume = "consume" // salida / consumo
)

// StockLedgerEntry es el registro inmutable de un cambio de cantidad de un lote.
// NewQuantity = PreviousQuantity - delta (consume) o + delta (inbound).
type StockLedgerEntry struct {
	ID               string
	Seq              int64 // orden de inserción, asignado por el almacenamiento
	ProductID        string
	BatchID          string
	AreaID           *string
	PreviousQuantity int64
	NewQuantity      int64
	Kind             string
	EffectiveDate    time.Time
	Note             string
	Reference        string // sesión, receta o corrección que originó el asiento
	CreatedAt        time.Time
}

// Delta devuelve la variación con signo del asiento.
func (e *StockLedgerEntry) Delta() int64 {
	return e.NewQuantity - e.PreviousQuantity
}
