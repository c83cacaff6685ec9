package stock

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

// TxRunner ejecuta una función dentro de una transacción de BD, pasando repositorios atados a esa tx.
// La mutación de cantidad y su asiento de libro se confirman o revierten juntos.
type TxRunner interface {
	Run(ctx context.Context, fn func(
		batchRepo repository.BatchRepository,
		ledgerRepo repository.StockLedgerRepository,
		productRepo repository.ProductRepository,
		prescriptionRepo repository.PrescriptionRepository,
	) error) error
}

// EventPublisher emite eventos de stock hacia el push en tiempo real y las alertas.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
