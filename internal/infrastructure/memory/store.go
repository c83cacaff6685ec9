// Package memory implementa los puertos de persistencia en memoria con transacciones
// serializables (copia de trabajo + commit atómico). Se usa en modo desarrollo
// (STORE_DRIVER=memory) y en las pruebas.
package memory

import (
	"context"
	"sync"

	"github.com/jhoicas/medstock-rfid/internal/application/stock"
	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

var _ stock.TxRunner = (*Store)(nil)

// Store almacén en memoria. Las transacciones se serializan con un único mutex.
// Dentro de Run no se deben usar los repositorios "de pool" del mismo Store (el mutex no es reentrante).
type Store struct {
	mu sync.Mutex
	st *state
}

type state struct {
	products      map[string]*entity.Product
	areas         map[string]*entity.Area
	batches       map[string]*entity.Batch
	ledger        []*entity.StockLedgerEntry
	seq           int64
	prescriptions map[string]*entity.Prescription
	items         map[string]*entity.PrescriptionItem
	fulfillments  []*entity.PrescriptionFulfillment
}

// NewStore crea un almacén vacío.
func NewStore() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		products:      make(map[string]*entity.Product),
		areas:         make(map[string]*entity.Area),
		batches:       make(map[string]*entity.Batch),
		prescriptions: make(map[string]*entity.Prescription),
		items:         make(map[string]*entity.PrescriptionItem),
	}
}

func (s *state) clone() *state {
	c := newState()
	for k, v := range s.products {
		c.products[k] = copyProduct(v)
	}
	for k, v := range s.areas {
		a := *v
		c.areas[k] = &a
	}
	for k, v := range s.batches {
		c.batches[k] = copyBatch(v)
	}
	c.ledger = make([]*entity.StockLedgerEntry, len(s.ledger))
	copy(c.ledger, s.ledger) // los asientos son inmutables
	c.seq = s.seq
	for k, v := range s.prescriptions {
		p := *v
		p.Items = nil
		c.prescriptions[k] = &p
	}
	for k, v := range s.items {
		i := *v
		c.items[k] = &i
	}
	c.fulfillments = make([]*entity.PrescriptionFulfillment, len(s.fulfillments))
	copy(c.fulfillments, s.fulfillments)
	return c
}

// Run ejecuta fn sobre una copia de trabajo; si fn no falla la copia reemplaza el estado.
func (s *Store) Run(ctx context.Context, fn func(
	batchRepo repository.BatchRepository,
	ledgerRepo repository.StockLedgerRepository,
	productRepo repository.ProductRepository,
	prescriptionRepo repository.PrescriptionRepository,
) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(
		&BatchRepo{store: s, tx: work},
		&LedgerRepo{store: s, tx: work},
		&ProductRepo{store: s, tx: work},
		&PrescriptionRepo{store: s, tx: work},
	); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Repositorios "de pool" (cada llamada toma el mutex).

func (s *Store) Batches() *BatchRepo              { return &BatchRepo{store: s} }
func (s *Store) Ledger() *LedgerRepo              { return &LedgerRepo{store: s} }
func (s *Store) Products() *ProductRepo           { return &ProductRepo{store: s} }
func (s *Store) Areas() *AreaRepo                 { return &AreaRepo{store: s} }
func (s *Store) Prescriptions() *PrescriptionRepo { return &PrescriptionRepo{store: s} }

// view ejecuta fn con el estado de la tx o, fuera de tx, con el estado global bloqueado.
func (s *Store) view(tx *state, fn func(st *state) error) error {
	if tx != nil {
		return fn(tx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.st)
}

func copyProduct(p *entity.Product) *entity.Product {
	c := *p
	return &c
}

func copyBatch(b *entity.Batch) *entity.Batch {
	c := *b
	if b.TagUID != nil {
		uid := *b.TagUID
		c.TagUID = &uid
	}
	return &c
}
