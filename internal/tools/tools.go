// Package tools contiene i tool che una persona può invocare durante
// l'esecuzione: ricerca web e lettura di documenti locali.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidArguments  = errors.New("invalid tool arguments")
	ErrMissingCredential = errors.New("missing tool credential")
	ErrPathOutsideBase   = errors.New("path escapes document directory")
)

// Tool è l'interfaccia comune a tutti i tool
type Tool interface {
	// Name è il nome con cui il modello invoca il tool
	Name() string

	// Description descrive al modello quando usare il tool
	Description() string

	// Parameters restituisce lo schema JSON degli argomenti
	Parameters() map[string]any

	// Execute esegue il tool e restituisce il risultato come testo
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Find cerca un tool per nome
func Find(set []Tool, name string) (Tool, bool) {
	for _, t := range set {
		if t.Name() == name {
			return t, true
		}
	}
	return nil, false
}

// Names restituisce i nomi dei tool nell'ordine dato
func Names(set []Tool) []string {
	names := make([]string, len(set))
	for i, t := range set {
		names[i] = t.Name()
	}
	return names
}

// stringArg estrae un argomento stringa non vuoto
func stringArg(args map[string]any, name string, required bool) (string, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("%w: %q is required", ErrInvalidArguments, name)
		}
		return "", nil
	}

	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %q must be a string", ErrInvalidArguments, name)
	}

	s = strings.TrimSpace(s)
	if s == "" && required {
		return "", fmt.Errorf("%w: %q must not be empty", ErrInvalidArguments, name)
	}
	return s, nil
}

// intArg estrae un argomento intero; i numeri JSON arrivano come float64
func intArg(args map[string]any, name string, fallback int) (int, error) {
	raw, ok := args[name]
	if !ok || raw == nil {
		return fallback, nil
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%w: %q must be an integer", ErrInvalidArguments, name)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("%w: %q must be a number", ErrInvalidArguments, name)
	}
}
