package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// InboundRequest body para POST /api/batches/inbound.
type InboundRequest struct {
	ProductID  string           `json:"product_id"`
	LotNumber  string           `json:"lot_number"`
	ExpiryDate string           `json:"expiry_date"` // YYYY-MM-DD o RFC3339
	Quantity   int64            `json:"quantity"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
	TagUID     string           `json:"tag_uid,omitempty"`
	Note       string           `json:"note,omitempty"`
}

// AdjustRequest body para POST /api/batches/:id/adjust.
type AdjustRequest struct {
	Quantity *int64 `json:"quantity"`
	Note     string `json:"note"`
}

// BindTagRequest body para PUT /api/batches/:id/tag.
type BindTagRequest struct {
	UID string `json:"uid"`
}

// BatchResponse salida de un lote.
type BatchResponse struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	LotNumber  string          `json:"lot_number"`
	ExpiryDate time.Time       `json:"expiry_date"`
	EntryDate  time.Time       `json:"entry_date"`
	Quantity   int64           `json:"quantity"`
	TagUID     *string         `json:"tag_uid"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
}

// ProductStockResponse stock total de un producto frente a su mínimo.
type ProductStockResponse struct {
	ProductID    string          `json:"product_id"`
	Name         string          `json:"name"`
	Total        int64           `json:"total"`
	MinimumStock int64           `json:"minimum_stock"`
	Low          bool            `json:"low"`
	AverageCost  decimal.Decimal `json:"average_cost"`
}

// LedgerEntryResponse asiento del libro de stock.
type LedgerEntryResponse struct {
	Seq              int64     `json:"seq"`
	Kind             string    `json:"kind"`
	PreviousQuantity int64     `json:"previous_quantity"`
	NewQuantity      int64     `json:"new_quantity"`
	Delta            int64     `json:"delta"`
	AreaID           *string   `json:"area_id"`
	EffectiveDate    time.Time `json:"effective_date"`
	Note             string    `json:"note,omitempty"`
	Reference        string    `json:"reference,omitempty"`
}

// LedgerResponse historial de un lote y su cantidad reconstruida al instante pedido.
type LedgerResponse struct {
	BatchID    string                `json:"batch_id"`
	At         *time.Time            `json:"at,omitempty"`
	QuantityAt int64                 `json:"quantity_at"`
	Entries    []LedgerEntryResponse `json:"entries"`
	Page       PageResponse          `json:"page"`
}

// AllocationResponse cantidad descontada de un lote.
type AllocationResponse struct {
	BatchID          string `json:"batch_id"`
	ProductID        string `json:"product_id"`
	Quantity         int64  `json:"quantity"`
	PreviousQuantity int64  `json:"previous_quantity"`
	NewQuantity      int64  `json:"new_quantity"`
}

// ReplenishmentSuggestionResponse producto bajo su stock mínimo con la cantidad sugerida de pedido.
type ReplenishmentSuggestionResponse struct {
	ProductID         string          `json:"product_id"`
	ProductName       string          `json:"product_name"`
	CurrentStock      int64           `json:"current_stock"`
	MinimumStock      int64           `json:"minimum_stock"`
	IdealStock        int64           `json:"ideal_stock"`
	SuggestedQuantity int64           `json:"suggested_quantity"`
	AverageCost       decimal.Decimal `json:"average_cost"`
	EstimatedCost     decimal.Decimal `json:"estimated_cost"`
	Consumed30Days    int64           `json:"consumed_30d"`
	Priority          int             `json:"priority"`
}

// AreaResponse área destino de las salidas.
type AreaResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
