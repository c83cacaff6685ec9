package repository

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// BatchRepository define el puerto de persistencia de lotes.
// Usado con pool o dentro de una transacción (TxRunner).
type BatchRepository interface {
	Create(ctx context.Context, batch *entity.Batch) error
	GetByID(ctx context.Context, id string) (*entity.Batch, error)
	// GetForUpdate bloquea la fila del lote (SELECT FOR UPDATE).
	GetForUpdate(ctx context.Context, id string) (*entity.Batch, error)
	// ListByTagUID devuelve TODOS los lotes con ese código (el tag no es único), con o sin stock.
	ListByTagUID(ctx context.Context, uid string) ([]*entity.Batch, error)
	ListByProduct(ctx context.Context, productID string) ([]*entity.Batch, error)
	// FindByLot busca un lote por producto + número de lote (entradas que reponen un lote existente).
	FindByLot(ctx context.Context, productID, lotNumber string) (*entity.Batch, error)
	// TryDecrement resta n solo si la cantidad actual es >= n, en una única sentencia.
	// ok=false si la guarda falla (otro consumidor se adelantó); newQty es la cantidad resultante.
	TryDecrement(ctx context.Context, id string, n int64) (newQty int64, ok bool, err error)
	// Increment suma n y devuelve la cantidad resultante.
	Increment(ctx context.Context, id string, n int64) (newQty int64, err error)
	// SetQuantity fija la cantidad (ajuste manual); llamar con la fila bloqueada.
	SetQuantity(ctx context.Context, id string, qty int64) error
	// SetTagUID asigna el código RFID al lote (no genera asiento de libro).
	SetTagUID(ctx context.Context, id, uid string) error
	SumByProduct(ctx context.Context, productID string) (int64, error)
}
