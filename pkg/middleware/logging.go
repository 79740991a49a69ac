// Package middleware contiene i middleware fiber condivisi dal server HTTP.
package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	// HeaderRequestID è l'header letto e restituito con il request id
	HeaderRequestID = "X-Request-ID"

	requestIDLocal = "request_id"
)

// RequestID assegna a ogni richiesta un id, riusando quello del client se presente
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		id := c.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}

		c.Locals(requestIDLocal, id)
		c.Set(HeaderRequestID, id)
		return c.Next()
	}
}

// GetRequestID restituisce il request id, o "" se RequestID non è installato
func GetRequestID(c fiber.Ctx) string {
	id, _ := c.Locals(requestIDLocal).(string)
	return id
}

// Logging scrive una riga per richiesta, con livello in base allo status.
// Il corpo non viene mai loggato perché contiene il testo del post.
func Logging(skipPaths ...string) fiber.Handler {
	skip := pathSet(skipPaths)

	return func(c fiber.Ctx) error {
		if skip[c.Path()] {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		status := statusOf(c, err)

		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		if err != nil {
			event = event.Err(err)
		}

		event.
			Str("request_id", GetRequestID(c)).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", c.Route().Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("ip", c.IP()).
			Msg("HTTP request")

		return err
	}
}

// statusOf restituisce lo status finale, anche quando l'errore sarà scritto dall'error handler
func statusOf(c fiber.Ctx, err error) int {
	status := c.Response().StatusCode()
	if err == nil {
		return status
	}
	if fe, ok := err.(*fiber.Error); ok {
		return fe.Code
	}
	if status < 400 {
		return fiber.StatusInternalServerError
	}
	return status
}

func pathSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return set
}
