package domain

import (
	"errors"
	"fmt"
)

// Errores de dominio (sin dependencias externas).
var (
	ErrNotFound                 = errors.New("recurso no encontrado")
	ErrInvalidInput             = errors.New("entrada inválida")
	ErrConflict                 = errors.New("conflicto con el estado actual")
	ErrInsufficientStock        = errors.New("stock insuficiente")
	ErrMalformedTag             = errors.New("tag RFID mal formado")
	ErrNoMatchingBatch          = errors.New("ningún lote coincide con el tag")
	ErrNotInPrescription        = errors.New("el producto no está en la receta")
	ErrPrescriptionLineComplete = errors.New("la línea de la receta ya está completa")
	ErrPrescriptionClosed       = errors.New("la receta está cerrada")
	ErrQuantityRequired         = errors.New("se requiere la cantidad a dispensar")
	ErrPendingContextExpired    = errors.New("el contexto pendiente expiró")
	ErrNoPendingContext         = errors.New("no hay contexto pendiente para la sesión")
)

// InsufficientStockError detalla un faltante tras recorrer todos los lotes candidatos.
// errors.Is(err, ErrInsufficientStock) es verdadero.
type InsufficientStockError struct {
	ProductID string
	UID       string
	Requested int64
	Allocated int64
	Shortfall int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("%s: solicitado %d, asignado %d, faltante %d",
		ErrInsufficientStock.Error(), e.Requested, e.Allocated, e.Shortfall)
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// ShortfallOf devuelve el faltante si err es un InsufficientStockError.
func ShortfallOf(err error) (int64, bool) {
	var ise *InsufficientStockError
	if errors.As(err, &ise) {
		return ise.Shortfall, true
	}
	return 0, false
}
