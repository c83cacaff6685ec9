// Package rfid normaliza los códigos leídos por el lector RFID.
package rfid

import (
	"strings"

	"golang.org/x/text/width"

	"github.com/jhoicas/medstock-rfid/internal/domain"
)

// DefaultWidth es el ancho fijo del código numérico canónico.
const DefaultWidth = 7

// Normalizer canoniza UIDs a un código numérico de ancho fijo.
type Normalizer struct {
	Width int
}

// NewNormalizer construye el normalizador; width <= 0 usa DefaultWidth.
func NewNormalizer(width int) Normalizer {
	if width <= 0 {
		width = DefaultWidth
	}
	return Normalizer{Width: width}
}

// Normalize conserva solo los dígitos del UID, rellena con ceros a la izquierda
// hasta el ancho o trunca a los primeros dígitos. Sin dígitos devuelve ErrMalformedTag.
func (n Normalizer) Normalize(raw string) (string, error) {
	w := n.Width
	if w <= 0 {
		w = DefaultWidth
	}
	// Dígitos de ancho completo (teclados / lectores asiáticos) se pliegan a ASCII.
	folded := width.Fold.String(raw)

	var b strings.Builder
	for _, r := range folded {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if digits == "" {
		return "", domain.ErrMalformedTag
	}
	if len(digits) >= w {
		return digits[:w], nil
	}
	return strings.Repeat("0", w-len(digits)) + digits, nil
}

// NormalizeAll normaliza en bloque (datos históricos). Los UIDs inválidos se
// devuelven aparte para que el llamador decida qué hacer con ellos.
func (n Normalizer) NormalizeAll(raws []string) (normalized map[string]string, invalid []string) {
	normalized = make(map[string]string, len(raws))
	for _, raw := range raws {
		uid, err := n.Normalize(raw)
		if err != nil {
			invalid = append(invalid, raw)
			continue
		}
		normalized[raw] = uid
	}
	return normalized, invalid
}

// Normalize usa el ancho por defecto.
func Normalize(raw string) (string, error) {
	return NewNormalizer(DefaultWidth).Normalize(raw)
}
