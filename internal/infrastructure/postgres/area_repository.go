package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

var _ repository.AreaRepository = (*AreaRepo)(nil)

// AreaRepo implementación del puerto AreaRepository sobre PostgreSQL.
type AreaRepo struct {
	q Querier
}

// NewAreaRepository construye el adaptador de persistencia para áreas.
func NewAreaRepository(q Querier) *AreaRepo {
	return &AreaRepo{q: q}
}

// Create persiste una nueva área.
func (r *AreaRepo) Create(ctx context.Context, area *entity.Area) error {
	query := `
		INSERT INTO areas (id, name, description, created_at, updated_at)
		VALUES ($1, $2, $3, now(), now())
		RETURNING created_at, updated_at`
	err := r.q.QueryRow(ctx, query, area.ID, area.Name, area.Description).Scan(&area.CreatedAt, &area.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert area: %w", err)
	}
	return nil
}

// GetByID obtiene un área por ID.
func (r *AreaRepo) GetByID(ctx context.Context, id string) (*entity.Area, error) {
	query := `SELECT id, name, description, created_at, updated_at FROM areas WHERE id = $1`
	var a entity.Area
	err := r.q.QueryRow(ctx, query, id).Scan(&a.ID, &a.Name, &a.Description, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get area: %w", err)
	}
	return &a, nil
}

// List lista las áreas por nombre.
func (r *AreaRepo) List(ctx context.Context) ([]*entity.Area, error) {
	rows, err := r.q.Query(ctx, `SELECT id, name, description, created_at, updated_at FROM areas ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list areas: %w", err)
	}
	defer rows.Close()
	var list []*entity.Area
	for rows.Next() {
		var a entity.Area
		if err := rows.Scan(&a.ID, &a.Name, &a.Description, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan area: %w", err)
		}
		list = append(list, &a)
	}
	return list, rows.Err()
}
