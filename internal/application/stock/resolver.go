package stock

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
	"github.com/jhoicas/medstock-rfid/internal/domain/inventory"
	"github.com/jhoicas/medstock-rfid/internal/domain/repository"
)

// CandidateQuery criterio de resolución: por UID (opcionalmente filtrado por producto)
// o solo por producto cuando no hay tag.
type CandidateQuery struct {
	UID       string
	ProductID string
}

// Resolver resuelve un UID al conjunto ordenado de lotes consumibles.
type Resolver struct {
	batchRepo repository.BatchRepository
}

// NewResolver construye el resolvedor sobre el repositorio de lotes (pool).
func NewResolver(batchRepo repository.BatchRepository) *Resolver {
	return &Resolver{batchRepo: batchRepo}
}

// Resolve devuelve los lotes con cantidad > 0 en orden FIFO (vencimiento, entrada, ID).
// Lista vacía no es error: el llamador decide si es un fallo.
func (r *Resolver) Resolve(ctx context.Context, uid, productHint string) ([]*entity.Batch, error) {
	return ResolveWith(ctx, r.batchRepo, CandidateQuery{UID: uid, ProductID: productHint})
}

// ProductsForUID devuelve los productos distintos que llevan el UID (con o sin stock),
// en el orden de su primer lote FIFO.
func (r *Resolver) ProductsForUID(ctx context.Context, uid string) ([]string, error) {
	return ProductsForUIDWith(ctx, r.batchRepo, uid)
}

// ResolveWith resuelve usando el repositorio dado (pool o tx).
func ResolveWith(ctx context.Context, repo repository.BatchRepository, q CandidateQuery) ([]*entity.Batch, error) {
	var (
		all []*entity.Batch
		err error
	)
	if q.UID != "" {
		all, err = repo.ListByTagUID(ctx, q.UID)
	} else {
		all, err = repo.ListByProduct(ctx, q.ProductID)
	}
	if err != nil {
		return nil, err
	}
	candidates := inventory.FilterConsumable(all, q.ProductID)
	inventory.SortFIFO(candidates)
	return candidates, nil
}

// ProductsForUIDWith ver Resolver.ProductsForUID.
func ProductsForUIDWith(ctx context.Context, repo repository.BatchRepository, uid string) ([]string, error) {
	all, err := repo.ListByTagUID(ctx, uid)
	if err != nil {
		return nil, err
	}
	inventory.SortFIFO(all)
	seen := make(map[string]struct{}, len(all))
	var out []string
	for _, b := range all {
		if _, ok := seen[b.ProductID]; ok {
			continue
		}
		seen[b.ProductID] = struct{}{}
		out = append(out, b.ProductID)
	}
	return out, nil
}
