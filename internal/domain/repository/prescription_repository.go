package repository

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// PrescriptionRepository puerto de recetas, líneas y registros de dispensación.
type PrescriptionRepository interface {
	Create(ctx context.Context, p *entity.Prescription) error
	// GetByID devuelve la receta con sus líneas ordenadas por posición.
	GetByID(ctx context.Context, id string) (*entity.Prescription, error)
	// GetItemForUpdate bloquea la línea (SELECT FOR UPDATE).
	GetItemForUpdate(ctx context.Context, itemID string) (*entity.PrescriptionItem, error)
	// AddDispensed suma n al acumulado solo si no supera lo requerido. ok=false si la guarda falla.
	AddDispensed(ctx context.Context, itemID string, n int64) (ok bool, err error)
	AppendFulfillment(ctx context.Context, f *entity.PrescriptionFulfillment) error
	ListFulfillments(ctx context.Context, prescriptionID string) ([]*entity.PrescriptionFulfillment, error)
	SetStatus(ctx context.Context, id, status string) error
}
