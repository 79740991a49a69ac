package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v3"
)

const (
	corsMethods       = "GET, POST, OPTIONS"
	corsHeaders       = "Origin, Content-Type, Accept, Cache-Control, Last-Event-ID, X-Request-ID"
	corsExposeHeaders = "X-Request-ID"
	corsMaxAge        = "86400"
)

// CORS permette le richieste cross-origin dagli origin indicati.
// "*" li accetta tutti, "*.example.com" accetta i sottodomini.
// Senza origin configurati accetta tutto.
func CORS(origins ...string) fiber.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	return func(c fiber.Ctx) error {
		origin := c.Get(fiber.HeaderOrigin)
		if origin == "" {
			return c.Next()
		}

		if !originAllowed(origins, origin) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error":      "origin_not_allowed",
				"message":    "origin " + origin + " is not allowed",
				"request_id": GetRequestID(c),
			})
		}

		c.Set(fiber.HeaderAccessControlAllowOrigin, origin)
		c.Set(fiber.HeaderVary, fiber.HeaderOrigin)

		// Preflight
		if c.Method() == fiber.MethodOptions {
			c.Set(fiber.HeaderAccessControlAllowMethods, corsMethods)
			c.Set(fiber.HeaderAccessControlAllowHeaders, corsHeaders)
			c.Set(fiber.HeaderAccessControlMaxAge, corsMaxAge)
			return c.SendStatus(fiber.StatusNoContent)
		}

		c.Set(fiber.HeaderAccessControlExposeHeaders, corsExposeHeaders)
		return c.Next()
	}
}

func originAllowed(allowed []string, origin string) bool {
	for _, a := range allowed {
		switch {
		case a == "*", a == origin:
			return true
		case strings.HasPrefix(a, "*."):
			if strings.HasSuffix(origin, a[1:]) {
				return true
			}
		}
	}
	return false
}
