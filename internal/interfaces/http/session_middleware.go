package http

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jhoicas/medstock-rfid/internal/application/scan"
)

// HeaderOperatorSession identifica la sesión del operador (estación de lectura).
const HeaderOperatorSession = "X-Operator-Session"

// LocalSessionID key de c.Locals con la sesión resuelta.
const LocalSessionID = "session_id"

// SessionMiddleware resuelve la sesión del operador: parámetro :session, luego el header
// X-Operator-Session y por último la sesión por defecto. No autentica.
func SessionMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Params("session"))
		if id == "" {
			id = strings.TrimSpace(c.Get(HeaderOperatorSession))
		}
		if id == "" {
			id = scan.DefaultSession
		}
		c.Locals(LocalSessionID, id)
		return c.Next()
	}
}

// GetSessionID devuelve la sesión del contexto (después de SessionMiddleware).
func GetSessionID(c *fiber.Ctx) string {
	v := c.Locals(LocalSessionID)
	if v == nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

// RequestLogger registra cada petición con método, ruta, estado y duración.
func RequestLogger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		ev := log.Info()
		if c.Response().StatusCode() >= fiber.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", c.Response().StatusCode()).
			Dur("elapsed", time.Since(start)).
			Msg("http")
		return err
	}
}
