package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

var _ repository.StockLedgerRepository = (*StockLedgerRepo)(nil)

// StockLedgerRepo libro de stock sobre PostgreSQL. Solo INSERT y SELECT.
type StockLedgerRepo struct {
	q Querier
}

// NewStockLedgerRepository construye el adaptador. Pasar pool o tx (Querier).
func NewStockLedgerRepository(q Querier) *StockLedgerRepo {
	return &StockLedgerRepo{q: q}
}

const ledgerColumns = `id, seq, product_id, batch_id, area_id, previous_quantity, new_quantity, kind, effective_date, note, reference, created_at`

// Append inserta el asiento; seq lo asigna la base (bigserial).
func (r *StockLedgerRepo) Append(ctx context.Context, e *entity.StockLedgerEntry) error {
	query := `
		INSERT INTO stock_ledger (id, product_id, batch_id, area_id, previous_quantity, new_quantity, kind, effective_date, note, reference, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING seq`
	err := r.q.QueryRow(ctx, query,
		e.ID, e.ProductID, e.BatchID, e.AreaID, e.PreviousQuantity, e.NewQuantity,
		e.Kind, e.EffectiveDate, e.Note, nullable(e.Reference), e.CreatedAt,
	).Scan(&e.Seq)
	if err != nil {
		return fmt.Errorf("append stock ledger: %w", err)
	}
	return nil
}

// ListByBatch asientos del lote en orden (fecha efectiva, seq).
func (r *StockLedgerRepo) ListByBatch(ctx context.Context, batchID string) ([]*entity.StockLedgerEntry, error) {
	query := `SELECT ` + ledgerColumns + ` FROM stock_ledger WHERE batch_id = $1 ORDER BY effective_date, seq`
	return r.list(ctx, query, batchID)
}

// ListByProduct asientos del producto, más recientes primero.
func (r *StockLedgerRepo) ListByProduct(ctx context.Context, productID string, limit, offset int) ([]*entity.StockLedgerEntry, error) {
	query := `
		SELECT ` + ledgerColumns + ` FROM stock_ledger
		WHERE product_id = $1
		ORDER BY effective_date DESC, seq DESC
		LIMIT $2 OFFSET $3`
	return r.list(ctx, query, productID, limit, offset)
}

func (r *StockLedgerRepo) list(ctx context.Context, query string, args ...any) ([]*entity.StockLedgerEntry, error) {
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list stock ledger: %w", err)
	}
	defer rows.Close()
	var list []*entity.StockLedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stock ledger: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

func scanLedgerEntry(row pgx.Row) (*entity.StockLedgerEntry, error) {
	var (
		e   entity.StockLedgerEntry
		ref *string
	)
	err := row.Scan(
		&e.ID, &e.Seq, &e.ProductID, &e.BatchID, &e.AreaID, &e.PreviousQuantity, &e.NewQuantity,
		&e.Kind, &e.EffectiveDate, &e.Note, &ref, &e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.Reference = deref(ref)
	return &e, nil
}
