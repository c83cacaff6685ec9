package entity

import "time"

// Acciones declaradas por el lector RFID.
const (
	TagActionEntry = "entry"
	TagActionExit  = "exit"
)

// TagEvent es una lectura del puente de hardware (UID aún sin normalizar).
type TagEvent struct {
	SessionID  string
	UID        string
	Action     string
	AreaID     string // opcional: destino ya conocido
	Quantity   int64  // opcional: 0 = usar el valor por defecto
	ReceivedAt time.Time
}
