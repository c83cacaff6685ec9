package repository

import (
	"context"

	"github.com/jhoicas/medstock-rfid/internal/domain/entity"
)

// AreaRepository define el puerto de lectura de áreas destino.
type AreaRepository interface {
	Create(ctx context.Context, area *entity.Area) error
	GetByID(ctx context.Context, id string) (*entity.Area, error)
	List(ctx context.Context) ([]*entity.Area, error)
}
