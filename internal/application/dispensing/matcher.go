// Package dispensing vincula el consumo de lotes con las líneas de una receta abierta.
package dispensing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

// Request pedido de dispensación: UID leído o producto explícito.
type Request struct {
	PrescriptionID string
	UID            string // normalizado
	ProductID      string
	Quantity       int64 // solo para productos en empaque; 0 = no indicada
	SessionID      string
}

// Result lo dispensado en una operación.
type Result struct {
	PrescriptionID string
	ItemID         string
	ProductID      string
	Quantity       int64
	Allocations    []stock.BatchAllocation
	Fulfillments   []*entity.PrescriptionFulfillment
	Closed         bool
}

// QuantityRequiredError indica que el producto es un empaque y falta la cantidad.
// El enrutador lo convierte en un contexto pendiente de dispensación.
type QuantityRequiredError struct {
	PrescriptionID string
	ItemID         string
	ProductID      string
	Remaining      int64
}

func (e *QuantityRequiredError) Error() string {
	return fmt.Sprintf("%s: producto %s, faltan %d", domain.ErrQuantityRequired.Error(), e.ProductID, e.Remaining)
}

func (e *QuantityRequiredError) Unwrap() error { return domain.ErrQuantityRequired }

// Matcher caso de uso de dispensación contra receta.
type Matcher struct {
	txRunner         stock.TxRunner
	stock            *stock.Service
	prescriptionRepo repository.PrescriptionRepository
	now              func() time.Time
	log              zerolog.Logger
}

// NewMatcher construye el caso de uso. now nil usa time.Now.
func NewMatcher(txRunner stock.TxRunner, stockSvc *stock.Service, prescriptionRepo repository.PrescriptionRepository, now func() time.Time, log zerolog.Logger) *Matcher {
	if now == nil {
		now = time.Now
	}
	return &Matcher{
		txRunner:         txRunner,
		stock:            stockSvc,
		prescriptionRepo: prescriptionRepo,
		now:              now,
		log:              log,
	}
}

// Dispense consume la cantidad de la línea abierta en una sola transacción:
// todo o nada. Con faltante no queda ningún registro ni asiento.
func (m *Matcher) Dispense(ctx context.Context, req Request) (*Result, error) {
	if req.PrescriptionID == "" || (req.UID == "" && req.ProductID == "") || req.Quantity < 0 {
		return nil, domain.ErrInvalidInput
	}

	var (
		result   *Result
		insuffOf string
	)
	err := m.txRunner.Run(ctx, func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		productRepo repository.ProductRepository,
		prescriptionRepo repository.PrescriptionRepository,
	) error {
		p, err := prescriptionRepo.GetByID(ctx, req.PrescriptionID)
		if err != nil {
			return err
		}
		if p == nil {
			return domain.ErrNotFound
		}
		if p.Status == entity.PrescriptionStatusClosed {
			return domain.ErrPrescriptionClosed
		}

		products := []string{req.ProductID}
		var stocked map[string]struct{}
		if req.ProductID == "" {
			products, err = stock.ProductsForUIDWith(ctx, batchRepo, req.UID)
			if err != nil {
				return err
			}
			if len(products) == 0 {
				return domain.ErrNoMatchingBatch
			}
			candidates, err := stock.ResolveWith(ctx, batchRepo, stock.CandidateQuery{UID: req.UID})
			if err != nil {
				return err
			}
			stocked = make(map[string]struct{}, len(candidates))
			for _, b := range candidates {
				stocked[b.ProductID] = struct{}{}
			}
		}

		item, err := openItem(p, products, stocked)
		if err != nil {
			return err
		}
		item, err = prescriptionRepo.GetItemForUpdate(ctx, item.ID)
		if err != nil {
			return err
		}
		if item == nil {
			return domain.ErrNotFound
		}
		remaining := item.Remaining()
		if remaining == 0 {
			return domain.ErrPrescriptionLineComplete
		}

		product, err := productRepo.GetByID(ctx, item.ProductID)
		if err != nil {
			return err
		}
		if product == nil {
			return domain.ErrNotFound
		}
		qty := int64(1)
		if product.IsPackage() {
			if req.Quantity == 0 {
				return &QuantityRequiredError{
					PrescriptionID: p.ID,
					ItemID:         item.ID,
					ProductID:      item.ProductID,
					Remaining:      remaining,
				}
			}
			qty = min(req.Quantity, remaining)
		}

		insuffOf = item.ProductID
		consumption, err := m.stock.Engine().Consume(ctx, batchRepo, ledgerRepo, stock.ConsumeRequest{
			Query:     stock.CandidateQuery{UID: req.UID, ProductID: item.ProductID},
			Quantity:  qty,
			Note:      "dispensación receta " + p.ID,
			Reference: req.SessionID,
		})
		if err != nil {
			return err
		}

		now := m.now()
		res := &Result{
			PrescriptionID: p.ID,
			ItemID:         item.ID,
			ProductID:      item.ProductID,
			Quantity:       qty,
			Allocations:    consumption.Allocations,
		}
		for _, a := range consumption.Allocations {
			f := &entity.PrescriptionFulfillment{
				ID:        uuid.New().String(),
				ItemID:    item.ID,
				BatchID:   a.BatchID,
				Quantity:  a.Quantity,
				SessionID: req.SessionID,
				CreatedAt: now,
			}
			if err := prescriptionRepo.AppendFulfillment(ctx, f); err != nil {
				return fmt.Errorf("registrar dispensación: %w", err)
			}
			res.Fulfillments = append(res.Fulfillments, f)
		}
		ok, err := prescriptionRepo.AddDispensed(ctx, item.ID, qty)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrConflict
		}

		updated, err := prescriptionRepo.GetByID(ctx, p.ID)
		if err != nil {
			return err
		}
		if allComplete(updated) {
			if err := prescriptionRepo.SetStatus(ctx, p.ID, entity.PrescriptionStatusClosed); err != nil {
				return err
			}
			res.Closed = true
		}
		result = res
		return nil
	})
	if err != nil {
		var ise *domain.InsufficientStockError
		if errors.As(err, &ise) {
			m.stock.PublishInsufficient(ctx, insuffOf, req.UID, ise.Requested, ise.Shortfall)
		}
		return nil, err
	}

	m.log.Info().
		Str("prescription_id", result.PrescriptionID).
		Str("item_id", result.ItemID).
		Int64("quantity", result.Quantity).
		Bool("closed", result.Closed).
		Msg("dispensación registrada")
	m.stock.PublishChanges(ctx, []string{result.ProductID})
	return result, nil
}

// openItem elige la línea abierta de alguno de los productos, en orden de posición.
// Con stocked no nil gana la primera línea cuyo producto tiene lotes con stock;
// si ninguna lo tiene se usa la primera abierta y el consumo informa el error.
func openItem(p *entity.Prescription, products []string, stocked map[string]struct{}) (*entity.PrescriptionItem, error) {
	wanted := make(map[string]struct{}, len(products))
	for _, id := range products {
		wanted[id] = struct{}{}
	}
	var (
		matched   bool
		firstOpen *entity.PrescriptionItem
	)
	for _, it := range p.Items {
		if _, ok := wanted[it.ProductID]; !ok {
			continue
		}
		matched = true
		if it.Remaining() <= 0 {
			continue
		}
		if stocked == nil {
			return it, nil
		}
		if _, ok := stocked[it.ProductID]; ok {
			return it, nil
		}
		if firstOpen == nil {
			firstOpen = it
		}
	}
	if firstOpen != nil {
		return firstOpen, nil
	}
	if matched {
		return nil, domain.ErrPrescriptionLineComplete
	}
	return nil, domain.ErrNotInPrescription
}

func allComplete(p *entity.Prescription) bool {
	if p == nil || len(p.Items) == 0 {
		return false
	}
	for _, it := range p.Items {
		if it.Remaining() > 0 {
			return false
		}
	}
	return true
}
