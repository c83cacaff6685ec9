package stock

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

const (
	replenishmentPage   = 200
	consumptionLookback = 30 * 24 * time.Hour
)

// ReplenishmentSuggestion producto bajo su stock mínimo con la cantidad sugerida de pedido.
type ReplenishmentSuggestion struct {
	Product           *entity.Product
	CurrentStock      int64
	IdealStock        int64 // mínimo * 1.5, redondeado hacia arriba
	SuggestedQuantity int64
	EstimatedCost     decimal.Decimal // SuggestedQuantity * costo promedio
	Consumed30Days    int64
	Priority          int // 1 = más urgente
}

// ReplenishmentList recorre el catálogo y devuelve los productos bajo el mínimo, ordenados
// por déficit relativo, luego por consumo de los últimos 30 días.
func (s *Service) ReplenishmentList(ctx context.Context) ([]ReplenishmentSuggestion, error) {
	var out []ReplenishmentSuggestion
	since := s.opts.Now().Add(-consumptionLookback)

	for offset := 0; ; offset += replenishmentPage {
		products, err := s.productRepo.List(ctx, replenishmentPage, offset)
		if err != nil {
			return nil, err
		}
		for _, p := range products {
			if p.MinimumStock <= 0 {
				continue
			}
			total, err := s.batchRepo.SumByProduct(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			if total >= p.MinimumStock {
				continue
			}
			consumed, err := s.consumedSince(ctx, p.ID, since)
			if err != nil {
				return nil, err
			}
			ideal := (p.MinimumStock*3 + 1) / 2
			suggested := ideal - total
			out = append(out, ReplenishmentSuggestion{
				Product:           p,
				CurrentStock:      total,
				IdealStock:        ideal,
				SuggestedQuantity: suggested,
				EstimatedCost:     p.AverageCost.Mul(decimal.NewFromInt(suggested)),
				Consumed30Days:    consumed,
			})
		}
		if len(products) < replenishmentPage {
			break
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		// total/min menor = déficit relativo mayor; se compara en cruz para evitar flotantes
		ra := a.CurrentStock * b.Product.MinimumStock
		rb := b.CurrentStock * a.Product.MinimumStock
		if ra != rb {
			return ra < rb
		}
		if a.Consumed30Days != b.Consumed30Days {
			return a.Consumed30Days > b.Consumed30Days
		}
		return a.Product.Name < b.Product.Name
	})
	for i := range out {
		out[i].Priority = i + 1
	}
	return out, nil
}

func (s *Service) consumedSince(ctx context.Context, productID string, since time.Time) (int64, error) {
	var consumed int64
	for offset := 0; ; offset += replenishmentPage {
		entries, err := s.ledgerRepo.ListByProduct(ctx, productID, replenishmentPage, offset)
		if err != nil {
			return 0, err
		}
		// más recientes primero: al pasar since ya no hay nada que sumar
		for _, e := range entries {
			if e.EffectiveDate.Before(since) {
				return consumed, nil
			}
			if e.Kind == entity.LedgerKindConsume {
				consumed -= e.Delta()
			}
		}
		if len(entries) < replenishmentPage {
			return consumed, nil
		}
	}
}

// ProductLedger asientos de todos los lotes del producto, más recientes primero.
func (s *Service) ProductLedger(ctx context.Context, productID string, limit, offset int) ([]*entity.StockLedgerEntry, error) {
	if _, err := s.Product(ctx, productID); err != nil {
		return nil, err
	}
	return s.ledgerRepo.ListByProduct(ctx, productID, limit, offset)
}

// Areas áreas destino disponibles para las salidas.
func (s *Service) Areas(ctx context.Context) ([]*entity.Area, error) {
	return s.areaRepo.List(ctx)
}
