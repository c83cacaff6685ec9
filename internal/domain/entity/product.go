package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product representa un medicamento o insumo del catálogo.
// El catálogo es dueño del producto; este núcleo solo lo lee, salvo AverageCost
// que se recalcula en cada entrada.
type Product struct {
	ID               string
	Name             string
	ActiveIngredient string
	Concentration    string
	MinimumStock     int64
	UnitsPerPackage  int64           // > 1: presentación multi-unidad (la cantidad a dispensar la indica el operador)
	AverageCost      decimal.Decimal // costo promedio ponderado (inicia en 0)
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// IsPackage indica si el producto se dispensa en unidades dentro de un empaque.
func (p *Product) IsPackage() bool {
	return p.UnitsPerPackage > 1
}
