package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/jhoicas/medstock-rfid/internal/domain"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

var (
	_ repository.BatchRepository        = (*BatchRepo)(nil)
	_ repository.StockLedgerRepository  = (*LedgerRepo)(nil)
	_ repository.ProductRepository      = (*ProductRepo)(nil)
	_ repository.AreaRepository         = (*AreaRepo)(nil)
	_ repository.PrescriptionRepository = (*PrescriptionRepo)(nil)
)

// BatchRepo lotes en memoria.
type BatchRepo struct {
	store *Store
	tx    *state
}

func (r *BatchRepo) Create(_ context.Context, b *entity.Batch) error {
	if b.Quantity < 0 {
		return domain.ErrInvalidInput
	}
	return r.store.view(r.tx, func(st *state) error {
		if _, ok := st.batches[b.ID]; ok {
			return domain.ErrConflict
		}
		st.batches[b.ID] = copyBatch(b)
		return nil
	})
}

func (r *BatchRepo) GetByID(_ context.Context, id string) (*entity.Batch, error) {
	var out *entity.Batch
	err := r.store.view(r.tx, func(st *state) error {
		if b, ok := st.batches[id]; ok {
			out = copyBatch(b)
		}
		return nil
	})
	return out, err
}

// GetForUpdate en memoria equivale a GetByID: la tx ya es exclusiva.
func (r *BatchRepo) GetForUpdate(ctx context.Context, id string) (*entity.Batch, error) {
	return r.GetByID(ctx, id)
}

func (r *BatchRepo) ListByTagUID(_ context.Context, uid string) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool { return b.TagUID != nil && *b.TagUID == uid })
}

func (r *BatchRepo) ListByProduct(_ context.Context, productID string) ([]*entity.Batch, error) {
	return r.list(func(b *entity.Batch) bool { return b.ProductID == productID })
}

func (r *BatchRepo) list(match func(*entity.Batch) bool) ([]*entity.Batch, error) {
	var out []*entity.Batch
	err := r.store.view(r.tx, func(st *state) error {
		for _, b := range st.batches {
			if match(b) {
				out = append(out, copyBatch(b))
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, err
}

func (r *BatchRepo) FindByLot(_ context.Context, productID, lotNumber string) (*entity.Batch, error) {
	var out *entity.Batch
	err := r.store.view(r.tx, func(st *state) error {
		for _, b := range st.batches {
			if b.ProductID == productID && b.LotNumber == lotNumber {
				out = copyBatch(b)
				return nil
			}
		}
		return nil
	})
	return out, err
}

func (r *BatchRepo) TryDecrement(_ context.Context, id string, n int64) (int64, bool, error) {
	var (
		newQty int64
		ok     bool
	)
	err := r.store.view(r.tx, func(st *state) error {
		b, found := st.batches[id]
		if !found || n <= 0 || b.Quantity < n {
			return nil
		}
		b.Quantity -= n
		b.UpdatedAt = time.Now()
		newQty, ok = b.Quantity, true
		return nil
	})
	return newQty, ok, err
}

func (r *BatchRepo) Increment(_ context.Context, id string, n int64) (int64, error) {
	var newQty int64
	err := r.store.view(r.tx, func(st *state) error {
		b, found := st.batches[id]
		if !found {
			return domain.ErrNotFound
		}
		b.Quantity += n
		b.UpdatedAt = time.Now()
		newQty = b.Quantity
		return nil
	})
	return newQty, err
}

func (r *BatchRepo) SetQuantity(_ context.Context, id string, qty int64) error {
	if qty < 0 {
		return domain.ErrInvalidInput
	}
	return r.store.view(r.tx, func(st *state) error {
		b, found := st.batches[id]
		if !found {
			return domain.ErrNotFound
		}
		b.Quantity = qty
		b.UpdatedAt = time.Now()
		return nil
	})
}

func (r *BatchRepo) SetTagUID(_ context.Context, id, uid string) error {
	return r.store.view(r.tx, func(st *state) error {
		b, found := st.batches[id]
		if !found {
			return domain.ErrNotFound
		}
		b.TagUID = &uid
		b.UpdatedAt = time.Now()
		return nil
	})
}

func (r *BatchRepo) SumByProduct(_ context.Context, productID string) (int64, error) {
	var total int64
	err := r.store.view(r.tx, func(st *state) error {
		for _, b := range st.batches {
			if b.ProductID == productID {
				total += b.Quantity
			}
		}
		return nil
	})
	return total, err
}

// LedgerRepo libro de stock en memoria (solo inserción).
type LedgerRepo struct {
	store *Store
	tx    *state
}

func (r *LedgerRepo) Append(_ context.Context, e *entity.StockLedgerEntry) error {
	return r.store.view(r.tx, func(st *state) error {
		st.seq++
		e.Seq = st.seq
		c := *e
		st.ledger = append(st.ledger, &c)
		return nil
	})
}

func (r *LedgerRepo) ListByBatch(_ context.Context, batchID string) ([]*entity.StockLedgerEntry, error) {
	return r.filter(func(e *entity.StockLedgerEntry) bool { return e.BatchID == batchID }, false, 0, 0)
}

func (r *LedgerRepo) ListByProduct(_ context.Context, productID string, limit, offset int) ([]*entity.StockLedgerEntry, error) {
	return r.filter(func(e *entity.StockLedgerEntry) bool { return e.ProductID == productID }, true, limit, offset)
}

// All devuelve el libro completo en orden de inserción.
func (r *LedgerRepo) All() []*entity.StockLedgerEntry {
	out, _ := r.filter(func(*entity.StockLedgerEntry) bool { return true }, false, 0, 0)
	return out
}

// filter en orden (effective_date, seq); desc invierte el orden como en ListByProduct de PostgreSQL.
func (r *LedgerRepo) filter(match func(*entity.StockLedgerEntry) bool, desc bool, limit, offset int) ([]*entity.StockLedgerEntry, error) {
	var out []*entity.StockLedgerEntry
	err := r.store.view(r.tx, func(st *state) error {
		for _, e := range st.ledger {
			if match(e) {
				c := *e
				out = append(out, &c)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if desc {
			a, b = b, a
		}
		if !a.EffectiveDate.Equal(b.EffectiveDate) {
			return a.EffectiveDate.Before(b.EffectiveDate)
		}
		return a.Seq < b.Seq
	})
	if offset > 0 {
		if offset >= len(out) {
			return nil, err
		}
		out = out[offset:]
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, err
}

// ProductRepo catálogo en memoria.
type ProductRepo struct {
	store *Store
	tx    *state
}

func (r *ProductRepo) Create(_ context.Context, p *entity.Product) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return r.store.view(r.tx, func(st *state) error {
		if _, ok := st.products[p.ID]; ok {
			return domain.ErrConflict
		}
		st.products[p.ID] = copyProduct(p)
		return nil
	})
}

func (r *ProductRepo) GetByID(_ context.Context, id string) (*entity.Product, error) {
	var out *entity.Product
	err := r.store.view(r.tx, func(st *state) error {
		if p, ok := st.products[id]; ok {
			out = copyProduct(p)
		}
		return nil
	})
	return out, err
}

func (r *ProductRepo) UpdateCost(_ context.Context, productID string, cost decimal.Decimal) error {
	return r.store.view(r.tx, func(st *state) error {
		p, ok := st.products[productID]
		if !ok {
			return domain.ErrNotFound
		}
		p.AverageCost = cost
		p.UpdatedAt = time.Now()
		return nil
	})
}

func (r *ProductRepo) List(_ context.Context, limit, offset int) ([]*entity.Product, error) {
	var out []*entity.Product
	err := r.store.view(r.tx, func(st *state) error {
		for _, p := range st.products {
			out = append(out, copyProduct(p))
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	if offset >= len(out) {
		return nil, err
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, err
}

// AreaRepo áreas en memoria.
type AreaRepo struct {
	store *Store
	tx    *state
}

func (r *AreaRepo) Create(_ context.Context, a *entity.Area) error {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
	return r.store.view(r.tx, func(st *state) error {
		c := *a
		st.areas[a.ID] = &c
		return nil
	})
}

func (r *AreaRepo) GetByID(_ context.Context, id string) (*entity.Area, error) {
	var out *entity.Area
	err := r.store.view(r.tx, func(st *state) error {
		if a, ok := st.areas[id]; ok {
			c := *a
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *AreaRepo) List(_ context.Context) ([]*entity.Area, error) {
	var out []*entity.Area
	err := r.store.view(r.tx, func(st *state) error {
		for _, a := range st.areas {
			c := *a
			out = append(out, &c)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, err
}

// PrescriptionRepo recetas en memoria.
type PrescriptionRepo struct {
	store *Store
	tx    *state
}

func (r *PrescriptionRepo) Create(_ context.Context, p *entity.Prescription) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.Status == "" {
		p.Status = entity.PrescriptionStatusOpen
	}
	return r.store.view(r.tx, func(st *state) error {
		c := *p
		c.Items = nil
		st.prescriptions[p.ID] = &c
		for i, it := range p.Items {
			if it.ID == "" {
				it.ID = uuid.New().String()
			}
			it.PrescriptionID = p.ID
			if it.Position == 0 {
				it.Position = i + 1
			}
			ic := *it
			st.items[it.ID] = &ic
		}
		return nil
	})
}

func (r *PrescriptionRepo) GetByID(_ context.Context, id string) (*entity.Prescription, error) {
	var out *entity.Prescription
	err := r.store.view(r.tx, func(st *state) error {
		p, ok := st.prescriptions[id]
		if !ok {
			return nil
		}
		c := *p
		c.Items = nil
		for _, it := range st.items {
			if it.PrescriptionID == id {
				ic := *it
				c.Items = append(c.Items, &ic)
			}
		}
		sort.Slice(c.Items, func(i, j int) bool { return c.Items[i].Position < c.Items[j].Position })
		out = &c
		return nil
	})
	return out, err
}

func (r *PrescriptionRepo) GetItemForUpdate(_ context.Context, itemID string) (*entity.PrescriptionItem, error) {
	var out *entity.PrescriptionItem
	err := r.store.view(r.tx, func(st *state) error {
		if it, ok := st.items[itemID]; ok {
			c := *it
			out = &c
		}
		return nil
	})
	return out, err
}

func (r *PrescriptionRepo) AddDispensed(_ context.Context, itemID string, n int64) (bool, error) {
	var ok bool
	err := r.store.view(r.tx, func(st *state) error {
		it, found := st.items[itemID]
		if !found || n <= 0 || it.QuantityDispensed+n > it.QuantityRequired {
			return nil
		}
		it.QuantityDispensed += n
		ok = true
		return nil
	})
	return ok, err
}

func (r *PrescriptionRepo) AppendFulfillment(_ context.Context, f *entity.PrescriptionFulfillment) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	return r.store.view(r.tx, func(st *state) error {
		c := *f
		st.fulfillments = append(st.fulfillments, &c)
		return nil
	})
}

func (r *PrescriptionRepo) ListFulfillments(_ context.Context, prescriptionID string) ([]*entity.PrescriptionFulfillment, error) {
	var out []*entity.PrescriptionFulfillment
	err := r.store.view(r.tx, func(st *state) error {
		for _, f := range st.fulfillments {
			it, ok := st.items[f.ItemID]
			if ok && it.PrescriptionID == prescriptionID {
				c := *f
				out = append(out, &c)
			}
		}
		return nil
	})
	return out, err
}

func (r *PrescriptionRepo) SetStatus(_ context.Context, id, status string) error {
	return r.store.view(r.tx, func(st *state) error {
		p, ok := st.prescriptions[id]
		if !ok {
			return domain.ErrNotFound
		}
		p.Status = status
		p.UpdatedAt = time.Now()
		return nil
	})
}
