package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
)

// RequestRecorder riceve durata ed esito di ogni richiesta
type RequestRecorder interface {
	RecordHTTPRequest(method, route string, code int, d time.Duration)
}

// Metrics registra le richieste per route, non per path, per tenere bassa la cardinalità
func Metrics(recorder RequestRecorder, skipPaths ...string) fiber.Handler {
	skip := pathSet(skipPaths)

	return func(c fiber.Ctx) error {
		if recorder == nil || skip[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" {
			route = "unmatched"
		}

		recorder.RecordHTTPRequest(c.Method(), route, statusOf(c, err), time.Since(start))
		return err
	}
}
