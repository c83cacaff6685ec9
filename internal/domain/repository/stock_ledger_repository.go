package repository

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// StockLedgerRepository puerto del libro de stock: solo inserción y lectura.
type StockLedgerRepository interface {
	Append(ctx context.Context, entry *entity.StockLedgerEntry) error
	// ListByBatch devuelve los asientos ordenados por fecha efectiva y orden de inserción.
	ListByBatch(ctx context.Context, batchID string) ([]*entity.StockLedgerEntry, error)
	// ListByProduct paginado, más recientes primero.
	ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.StockLedgerEntry, error)
}
