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

var _ repository.BatchRepository = (*BatchRepo)(nil)

// BatchRepo implementación de BatchRepository sobre PostgreSQL (usable con pool o tx).
type BatchRepo struct {
	q Querier
}

// NewBatchRepository construye el adaptador de lotes. Pasar pool o tx (Querier).
func NewBatchRepository(q Querier) *BatchRepo {
	return &BatchRepo{q: q}
}

const batchColumns = `id, product_id, lot_number, expiry_date, quantity, entry_date, tag_uid, unit_cost, created_at, updated_at`

// Create persiste un lote nuevo.
func (r *BatchRepo) Create(ctx context.Context, b *entity.Batch) error {
	query := `
		INSERT INTO batches (` + batchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.q.Exec(ctx, query,
		b.ID, b.ProductID, b.LotNumber, b.ExpiryDate, b.Quantity, b.EntryDate,
		b.TagUID, b.UnitCost, b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert batch: %w", err)
	}
	return nil
}

// GetByID obtiene un lote por ID.
func (r *BatchRepo) GetByID(ctx context.Context, id string) (*entity.Batch, error) {
	return r.getOne(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1`, "get batch", id)
}

// GetForUpdate obtiene el lote y bloquea la fila (SELECT FOR UPDATE).
func (r *BatchRepo) GetForUpdate(ctx context.Context, id string) (*entity.Batch, error) {
	return r.getOne(ctx, `SELECT `+batchColumns+` FROM batches WHERE id = $1 FOR UPDATE`, "get batch for update", id)
}

// FindByLot busca el lote de un producto por número de lote.
func (r *BatchRepo) FindByLot(ctx context.Context, productID, lotNumber string) (*entity.Batch, error) {
	return r.getOne(ctx,
		`SELECT `+batchColumns+` FROM batches WHERE product_id = $1 AND lot_number = $2`,
		"find batch by lot", productID, lotNumber)
}

func (r *BatchRepo) getOne(ctx context.Context, query, op string, args ...any) (*entity.Batch, error) {
	b, err := scanBatch(r.q.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return b, nil
}

// ListByTagUID devuelve todos los lotes con el código, en orden FIFO.
func (r *BatchRepo) ListByTagUID(ctx context.Context, uid string) ([]*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE tag_uid = $1
		ORDER BY expiry_date, entry_date, id`
	return r.list(ctx, "list batches by tag", query, uid)
}

// ListByProduct devuelve los lotes del producto en orden FIFO.
func (r *BatchRepo) ListByProduct(ctx context.Context, productID string) ([]*entity.Batch, error) {
	query := `
		SELECT ` + batchColumns + ` FROM batches
		WHERE product_id = $1
		ORDER BY expiry_date, entry_date, id`
	return r.list(ctx, "list batches by product", query, productID)
}

func (r *BatchRepo) list(ctx context.Context, op, query string, args ...any) ([]*entity.Batch, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()
	var list []*entity.Batch
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		list = append(list, b)
	}
	return list, rows.Err()
}

// TryDecrement resta n con una única sentencia condicional. Si la guarda no se cumple
// (u otro consumidor se adelantó) no hay fila y ok=false.
func (r *BatchRepo) TryDecrement(ctx context.Context, id string, n int64) (int64, bool, error) {
	query := `
		UPDATE batches SET quantity = quantity - $2, updated_at = now()
		WHERE id = $1 AND quantity >= $2
		RETURNING quantity`
	var newQty int64
	err := r.q.QueryRow(ctx, query, id, n).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isCheckViolation(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("decrement batch: %w", err)
	}
	return newQty, true, nil
}

// Increment suma n y devuelve la cantidad resultante.
func (r *BatchRepo) Increment(ctx context.Context, id string, n int64) (int64, error) {
	query := `
		UPDATE batches SET quantity = quantity + $2, updated_at = now()
		WHERE id = $1
		RETURNING quantity`
	var newQty int64
	err := r.q.QueryRow(ctx, query, id, n).Scan(&newQty)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, domain.ErrNotFound
		}
		return 0, fmt.Errorf("increment batch: %w", err)
	}
	return newQty, nil
}

// SetQuantity fija la cantidad (ajuste manual, con la fila ya bloqueada).
func (r *BatchRepo) SetQuantity(ctx context.Context, id string, qty int64) error {
	cmd, err := r.q.Exec(ctx, `UPDATE batches SET quantity = $2, updated_at = now() WHERE id = $1`, id, qty)
	if err != nil {
		if isCheckViolation(err) {
			return domain.ErrInvalidInput
		}
		return fmt.Errorf("set batch quantity: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetTagUID asigna el código RFID al lote.
func (r *BatchRepo) SetTagUID(ctx context.Context, id, uid string) error {
	cmd, err := r.q.Exec(ctx, `UPDATE batches SET tag_uid = $2, updated_at = now() WHERE id = $1`, id, uid)
	if err != nil {
		return fmt.Errorf("set batch tag: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SumByProduct stock total del producto.
func (r *BatchRepo) SumByProduct(ctx context.Context, productID string) (int64, error) {
	var total int64
	err := r.q.QueryRow(ctx, `SELECT COALESCE(SUM(quantity), 0) FROM batches WHERE product_id = $1`, productID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum batches: %w", err)
	}
	return total, nil
}

func scanBatch(row pgx.Row) (*entity.Batch, error) {
	var b entity.Batch
	err := row.Scan(
		&b.ID, &b.ProductID, &b.LotNumber, &b.ExpiryDate, &b.Quantity, &b.EntryDate,
		&b.TagUID, &b.UnitCost, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
