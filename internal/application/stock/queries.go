package stock

import (
	"context"
	"time"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/inventory"
)

// BatchByID devuelve un lote o ErrNotFound.
func (s *Service) BatchByID(ctx context.Context, id string) (*entity.Batch, error) {
	b, err := s.batchRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, domain.ErrNotFound
	}
	return b, nil
}

// BatchesByProduct devuelve los lotes del producto en orden FIFO (incluye los agotados).
func (s *Service) BatchesByProduct(ctx context.Context, productID string) ([]*entity.Batch, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		return nil, err
	}
	batches, err := s.batchRepo.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	inventory.SortFIFO(batches)
	return batches, nil
}

// BatchesByUID devuelve todos los lotes que llevan el UID (crudo; se normaliza).
func (s *Service) BatchesByUID(ctx context.Context, rawUID string) ([]*entity.Batch, error) {
	uid, err := s.normalizer.Normalize(rawUID)
	if err != nil {
		return nil, err
	}
	batches, err := s.batchRepo.ListByTagUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	inventory.SortFIFO(batches)
	return batches, nil
}

// CurrentStock suma de cantidades de los lotes del producto.
func (s *Service) CurrentStock(ctx context.Context, productID string) (*entity.Product, int64, error) {
	product, err := s.Product(ctx, productID)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.batchRepo.SumByProduct(ctx, productID)
	if err != nil {
		return nil, 0, err
	}
	return product, total, nil
}

// Product devuelve el producto o ErrNotFound.
func (s *Service) Product(ctx context.Context, productID string) (*entity.Product, error) {
	p, err := s.productRepo.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	return p, nil
}

// BatchLedger devuelve los asientos del lote y la cantidad reconstruida en at
// (at cero = cantidad actual según el libro).
func (s *Service) BatchLedger(ctx context.Context, batchID string, at time.Time) ([]*entity.StockLedgerEntry, int64, error) {
	if _, err := s.BatchByID(ctx, batchID); err != nil {
		return nil, 0, err
	}
	entries, err := s.ledgerRepo.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, 0, err
	}
	if at.IsZero() {
		return entries, Fold(entries)[batchID], nil
	}
	return entries, QuantityAt(entries, batchID, at), nil
}
