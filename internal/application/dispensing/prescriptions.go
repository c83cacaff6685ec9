package dispensing

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// ItemInput línea al registrar una receta.
type ItemInput struct {
	ProductID        string
	QuantityRequired int64
}

// CreatePrescription registra una receta abierta (ingreso desde el sistema clínico).
func (m *Matcher) CreatePrescription(ctx context.Context, patientRef string, items []ItemInput) (*entity.Prescription, error) {
	if len(items) == 0 {
		return nil, domain.ErrInvalidInput
	}
	now := m.now()
	p := &entity.Prescription{
		PatientRef: patientRef,
		Status:     entity.PrescriptionStatusOpen,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	for i, in := range items {
		if in.ProductID == "" || in.QuantityRequired <= 0 {
			return nil, domain.ErrInvalidInput
		}
		if _, err := m.stock.Product(ctx, in.ProductID); err != nil {
			return nil, err
		}
		p.Items = append(p.Items, &entity.PrescriptionItem{
			ProductID:        in.ProductID,
			Position:         i + 1,
			QuantityRequired: in.QuantityRequired,
		})
	}
	if err := m.prescriptionRepo.Create(ctx, p); err != nil {
		return nil, err
	}
	m.log.Info().Str("prescription_id", p.ID).Int("items", len(p.Items)).Msg("receta registrada")
	return p, nil
}

// Prescription devuelve la receta con sus líneas y las dispensaciones registradas.
func (m *Matcher) Prescription(ctx context.Context, id string) (*entity.Prescription, []*entity.PrescriptionFulfillment, error) {
	p, err := m.prescriptionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if p == nil {
		return nil, nil, domain.ErrNotFound
	}
	fulfillments, err := m.prescriptionRepo.ListFulfillments(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return p, fulfillments, nil
}
