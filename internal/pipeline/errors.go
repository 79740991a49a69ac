package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyOutput viene restituito quando il backend completa senza output
var ErrEmptyOutput = errors.New("step produced no output")

// ValidationError indica input del chiamante non valido (ordine vuoto, id sconosciuto, post mancante)
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Reason
}

// ConfigurationError indica una credenziale o un componente mancante
type ConfigurationError struct {
	Reason  string
	Missing []string
}

func (e *ConfigurationError) Error() string {
	if len(e.Missing) == 0 {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error: %s (missing: %s)", e.Reason, strings.Join(e.Missing, ", "))
}

// StepExecutionError indica il fallimento di uno step; la run si ferma lì
type StepExecutionError struct {
	// Posizione 1-based dello step fallito
	Index     int
	PersonaID string
	Err       error

	// Step completati prima del fallimento
	Completed []StepOutput
}

func (e *StepExecutionError) Error() string {
	return fmt.Sprintf("step %d (%s) failed: %v", e.Index, e.PersonaID, e.Err)
}

func (e *StepExecutionError) Unwrap() error {
	return e.Err
}
