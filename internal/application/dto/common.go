package dto

// PageRequest paginación para listados.
type PageRequest struct {
	Limit  int `query:"limit"`
	Offset int `query:"offset"`
}

// DefaultPage aplica valores por defecto si Limit/Offset son cero.
func (p *PageRequest) DefaultPage() {
	if p.Limit <= 0 {
		p.Limit = 50
	}
	if p.Limit > 500 {
		p.Limit = 500
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
}

// PageResponse metadatos de página en respuestas.
type PageResponse struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// ErrorResponse cuerpo de error HTTP.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// InsufficientStockResponse cuerpo del 409 por faltante. Allocations trae lo que sí
// quedó confirmado en las salidas genéricas (vacío en dispensación).
type InsufficientStockResponse struct {
	Code        string               `json:"code"`
	Message     string               `json:"message"`
	Requested   int64                `json:"requested"`
	Allocated   int64                `json:"allocated"`
	Shortfall   int64                `json:"shortfall"`
	Allocations []AllocationResponse `json:"allocations"`
}
