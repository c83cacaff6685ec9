package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Batch representa un lote físico de un producto.
// TagUID NO es único: varios lotes (del mismo u otro producto) pueden llevar el mismo código.
type Batch struct {
	ID         string
	ProductID  string
	LotNumber  string
	ExpiryDate time.Time
	Quantity   int64 // nunca negativa
	EntryDate  time.Time
	TagUID     *string
	UnitCost   decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// HasTag indica si el lote tiene un código RFID asignado.
func (b *Batch) HasTag() bool {
	return b.TagUID != nil && *b.TagUID != ""
}
