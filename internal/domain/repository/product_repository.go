package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// ProductRepository define el puerto de lectura del catálogo (DIP).
// Create existe para cargas iniciales y pruebas; el CRUD vive fuera de este servicio.
type ProductRepository interface {
	Create(ctx context.Context, product *entity.Product) error
	GetByID(ctx context.Context, id string) (*entity.Product, error)
	UpdateCost(ctx context.Context, productID string, cost decimal.Decimal) error
	List(ctx context.Context, limit, offset int) ([]*entity.Product, error)
}
