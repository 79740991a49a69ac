package server

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"time"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/pkg/middleware"
	"github.com/biodoia/smartwatcher/web"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Ordine preselezionato nella pagina
var defaultSelection = map[string]bool{
	persona.Researcher: true,
	persona.PRWriter:   true,
}

// personaResponse è una persona come esposta dall'API
type personaResponse struct {
	ID              string `json:"id"`
	Role            string `json:"role"`
	Goal            string `json:"goal"`
	Backstory       string `json:"backstory"`
	ExpectedOutput  string `json:"expected_output"`
	NeedsSearch     bool   `json:"needs_search"`
	NeedsGuidelines bool   `json:"needs_guidelines"`
}

// handleIndex serve la pagina web
func (s *Server) handleIndex(c fiber.Ctx) error {
	page := web.Page{
		Title:       s.config.UI.Title,
		DefaultPost: s.config.UI.DefaultPost,
	}
	for _, p := range s.watcher.Personas() {
		page.Personas = append(page.Personas, web.PersonaView{
			ID:              p.ID,
			Role:            p.Role,
			Goal:            p.Goal,
			NeedsSearch:     p.NeedsSearch,
			NeedsGuidelines: p.NeedsGuidelines,
			Selected:        defaultSelection[p.ID],
		})
	}

	var buf bytes.Buffer
	if err := web.Render(&buf, page); err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)
	return c.Send(buf.Bytes())
}

// handleHealth endpoint di health check
func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":    "healthy",
		"timestamp": time.Now().Unix(),
		"version":   s.version,
	})
}

// handleMetrics espone le metriche Prometheus tramite l'adapter fasthttp
func (s *Server) handleMetrics(c fiber.Ctx) error {
	fasthttpadaptor.NewFastHTTPHandler(s.metrics.Handler())(c.RequestCtx())
	return nil
}

// handlePersonas lista il catalogo
func (s *Server) handlePersonas(c fiber.Ctx) error {
	all := s.watcher.Personas()
	out := make([]personaResponse, 0, len(all))
	for _, p := range all {
		out = append(out, personaResponse{
			ID:              p.ID,
			Role:            p.Role,
			Goal:            p.Goal,
			Backstory:       p.Backstory,
			ExpectedOutput:  p.ExpectedOutput,
			NeedsSearch:     p.NeedsSearch,
			NeedsGuidelines: p.NeedsGuidelines,
		})
	}
	return c.JSON(fiber.Map{"personas": out})
}

// handleCritique chiede il parere dell'advisor sull'ordine scelto
func (s *Server) handleCritique(c fiber.Ctx) error {
	in, err := bindRunInput(c)
	if err != nil {
		return writeError(c, err)
	}

	critique, err := s.watcher.Critique(c.Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(critique)
}

// handleRun esegue la pipeline e risponde con il risultato completo
func (s *Server) handleRun(c fiber.Ctx) error {
	in, err := bindRunInput(c)
	if err != nil {
		return writeError(c, err)
	}

	res, err := s.watcher.Run(c.Context(), in)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(res)
}

// handleRunStream esegue la pipeline inviando un evento SSE per ogni
// evento della run, seguito da "result" o "error".
func (s *Server) handleRunStream(c fiber.Ctx) error {
	in, err := bindRunInput(c)
	if err != nil {
		return writeError(c, err)
	}

	// Input and credential problems are reported as plain JSON errors
	// before the stream is opened.
	if err := s.watcher.Check(in); err != nil {
		return writeError(c, err)
	}

	requestID := middleware.GetRequestID(c)

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	return c.SendStreamWriter(func(w *bufio.Writer) {
		// The request context is not usable once the handler has returned.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		events := make(chan sseEvent, 64)
		send := func(ev sseEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		go func() {
			defer close(events)

			seq := 0
			res, err := s.watcher.Run(ctx, in, func(ev pipeline.Event) {
				seq++
				send(sseEvent{ID: strconv.Itoa(seq), Event: string(ev.Type), Data: ev})
			})
			if err != nil {
				_, body := classify(err)
				body.RequestID = requestID
				send(sseEvent{Event: "error", Data: body})
				return
			}
			send(sseEvent{Event: "result", Data: res})
		}()

		for ev := range events {
			if err := ev.write(w); err != nil {
				log.Warn().
					Err(err).
					Str("request_id", requestID).
					Msg("SSE client disconnected, cancelling run")
				cancel()
				break
			}
		}

		// Let the run goroutine observe the cancellation and exit.
		for range events {
		}
	})
}

// bindRunInput legge il corpo JSON della richiesta
func bindRunInput(c fiber.Ctx) (pipeline.RunInput, error) {
	var in pipeline.RunInput
	if err := c.Bind().Body(&in); err != nil {
		return in, &pipeline.ValidationError{Reason: "invalid request body: " + err.Error()}
	}
	return in, nil
}
