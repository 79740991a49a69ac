package server

import (
	"errors"

	"github.com/biodoia/smartwatcher/internal/advisor"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/pkg/middleware"
	"github.com/gofiber/fiber/v3"
)

// errorBody è il formato JSON di ogni errore
type errorBody struct {
	Error     string   `json:"error"`
	Message   string   `json:"message"`
	StepIndex int      `json:"step_index,omitempty"`
	PersonaID string   `json:"persona_id,omitempty"`
	Missing   []string `json:"missing,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// classify associa un errore del servizio a uno status HTTP
func classify(err error) (int, errorBody) {
	var (
		verr *pipeline.ValidationError
		cerr *pipeline.ConfigurationError
		serr *pipeline.StepExecutionError
		aerr *advisor.AdvisoryError
	)

	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest, errorBody{Error: "validation_error", Message: verr.Reason}
	case errors.As(err, &cerr):
		return fiber.StatusServiceUnavailable, errorBody{Error: "configuration_error", Message: cerr.Reason, Missing: cerr.Missing}
	case errors.As(err, &serr):
		return fiber.StatusBadGateway, errorBody{
			Error:     "step_execution_error",
			Message:   serr.Err.Error(),
			StepIndex: serr.Index,
			PersonaID: serr.PersonaID,
		}
	case errors.As(err, &aerr):
		return fiber.StatusBadGateway, errorBody{Error: "advisory_error", Message: aerr.Err.Error()}
	default:
		return fiber.StatusInternalServerError, errorBody{Error: "internal_error", Message: err.Error()}
	}
}

// writeError scrive l'errore come JSON con il request id
func writeError(c fiber.Ctx, err error) error {
	status, body := classify(err)
	body.RequestID = middleware.GetRequestID(c)
	return c.Status(status).JSON(body)
}
