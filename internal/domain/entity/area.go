package entity

import "time"

// Area representa un servicio o ubicación clínica destino de una salida (UCI, urgencias, ...).
type Area struct {
	ID          string
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
