package middleware

import (
	"runtime/debug"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// Recovery cattura i panic degli handler, li logga con lo stack e risponde 500.
// Il valore del panic resta nei log e non arriva al client.
func Recovery() fiber.Handler {
	return func(c fiber.Ctx) (err error) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}

			log.Error().
				Str("request_id", GetRequestID(c)).
				Str("method", c.Method()).
				Str("path", c.Path()).
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("Panic recovered")

			err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error":      "internal_error",
				"message":    "an unexpected error occurred",
				"request_id": GetRequestID(c),
			})
		}()

		return c.Next()
	}
}
