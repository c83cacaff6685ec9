package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

var _ repository.PrescriptionRepository = (*PrescriptionRepo)(nil)

// PrescriptionRepo recetas, líneas y dispensaciones sobre PostgreSQL (usable con pool o tx).
type PrescriptionRepo struct {
	q Querier
}

// NewPrescriptionRepository construye el adaptador. Pasar pool o tx (Querier).
func NewPrescriptionRepository(q Querier) *PrescriptionRepo {
	return &PrescriptionRepo{q: q}
}

// Create persiste la receta y sus líneas. Con el pool no es atómico: usar dentro de una tx
// si la carga debe ser todo o nada.
func (r *PrescriptionRepo) Create(ctx context.Context, p *entity.Prescription) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = entity.PrescriptionStatusOpen
	}
	query := `
		INSERT INTO prescriptions (id, patient_ref, status, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at`
	if err := r.q.QueryRow(ctx, query, p.ID, p.PatientRef, p.Status).Scan(&p.CreatedAt, &p.UpdatedAt); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert prescription: %w", err)
	}

	itemQuery := `
		INSERT INTO prescription_items (id, prescription_id, product_id, position, quantity_required, quantity_dispensed)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for i, it := range p.Items {
		if it.ID == "" {
			it.ID = uuid.New().String()
		}
		it.PrescriptionID = p.ID
		if it.Position == 0 {
			it.Position = i + 1
		}
		_, err := r.q.Exec(ctx, itemQuery, it.ID, p.ID, it.ProductID, it.Position, it.QuantityRequired, it.QuantityDispensed)
		if err != nil {
			return fmt.Errorf("insert prescription item: %w", err)
		}
	}
	return nil
}

// GetByID obtiene la receta con sus líneas ordenadas por posición.
func (r *PrescriptionRepo) GetByID(ctx context.Context, id string) (*entity.Prescription, error) {
	query := `SELECT id, patient_ref, status, created_at, updated_at FROM prescriptions WHERE id = $1`
	var p entity.Prescription
	err := r.q.QueryRow(ctx, query, id).Scan(&p.ID, &p.PatientRef, &p.Status, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prescription: %w", err)
	}

	rows, err := r.q.Query(ctx, `
		SELECT id, prescription_id, product_id, position, quantity_required, quantity_dispensed
		FROM prescription_items WHERE prescription_id = $1 ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("list prescription items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prescription item: %w", err)
		}
		p.Items = append(p.Items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetItemForUpdate bloquea la línea (SELECT FOR UPDATE).
func (r *PrescriptionRepo) GetItemForUpdate(ctx context.Context, itemID string) (*entity.PrescriptionItem, error) {
	query := `
		SELECT id, prescription_id, product_id, position, quantity_required, quantity_dispensed
		FROM prescription_items WHERE id = $1
		FOR UPDATE`
	it, err := scanItem(r.q.QueryRow(ctx, query, itemID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get prescription item for update: %w", err)
	}
	return it, nil
}

// AddDispensed suma n al acumulado sin superar lo requerido.
func (r *PrescriptionRepo) AddDispensed(ctx context.Context, itemID string, n int64) (bool, error) {
	cmd, err := r.q.Exec(ctx, `
		UPDATE prescription_items SET quantity_dispensed = quantity_dispensed + $2
		WHERE id = $1 AND quantity_dispensed + $2 <= quantity_required`, itemID, n)
	if err != nil {
		if isCheckViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("add dispensed: %w", err)
	}
	return cmd.RowsAffected() == 1, nil
}

// AppendFulfillment registra lo dispensado de un lote.
func (r *PrescriptionRepo) AppendFulfillment(ctx context.Context, f *entity.PrescriptionFulfillment) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	_, err := r.q.Exec(ctx, `
		INSERT INTO prescription_fulfillments (id, item_id, batch_id, quantity, session_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.ID, f.ItemID, f.BatchID, f.Quantity, nullable(f.SessionID), f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert fulfillment: %w", err)
	}
	return nil
}

// ListFulfillments dispensaciones de todas las líneas de la receta.
func (r *PrescriptionRepo) ListFulfillments(ctx context.Context, prescriptionID string) ([]*entity.PrescriptionFulfillment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT f.id, f.item_id, f.batch_id, f.quantity, f.session_id, f.created_at
		FROM prescription_fulfillments f
		JOIN prescription_items i ON i.id = f.item_id
		WHERE i.prescription_id = $1
		ORDER BY f.created_at, f.id`, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("list fulfillments: %w", err)
	}
	defer rows.Close()
	var list []*entity.PrescriptionFulfillment
	for rows.Next() {
		var (
			f       entity.PrescriptionFulfillment
			session *string
		)
		if err := rows.Scan(&f.ID, &f.ItemID, &f.BatchID, &f.Quantity, &session, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fulfillment: %w", err)
		}
		f.SessionID = deref(session)
		list = append(list, &f)
	}
	return list, rows.Err()
}

// SetStatus cambia el estado de la receta.
func (r *PrescriptionRepo) SetStatus(ctx context.Context, id, status string) error {
	cmd, err := r.q.Exec(ctx, `UPDATE prescriptions SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("set prescription status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanItem(row pgx.Row) (*entity.PrescriptionItem, error) {
	var it entity.PrescriptionItem
	err := row.Scan(&it.ID, &it.PrescriptionID, &it.ProductID, &it.Position, &it.QuantityRequired, &it.QuantityDispensed)
	if err != nil {
		return nil, err
	}
	return &it, nil
}
