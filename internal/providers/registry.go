package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrProviderNotFound      = errors.New("provider not found")
	ErrProviderAlreadyExists = errors.New("provider already exists")
)

// Settings sono i parametri con cui viene costruito un provider
type Settings struct {
	Model           string
	APIKey          string
	BaseURL         string
	Temperature     float64
	MaxOutputTokens int
	Timeout         time.Duration
}

// Factory costruisce un provider per un nome di modello
type Factory func(ctx context.Context, model string, s Settings) (Provider, error)

// Registry associa i prefissi di provider ("gemini", "openai") alle factory
type Registry struct {
	factories map[string]Factory
	mu        sync.RWMutex
}

// NewRegistry crea un nuovo registry
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register registra una factory
func (r *Registry) Register(name string, factory Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return fmt.Errorf("%w: %s", ErrProviderAlreadyExists, name)
	}

	r.factories[name] = factory

	log.Debug().
		Str("provider", name).
		Msg("Provider factory registered")

	return nil
}

// List restituisce i nomi registrati in ordine alfabetico
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New costruisce il provider indicato da s.Model ("provider/model")
func (r *Registry) New(ctx context.Context, s Settings) (Provider, error) {
	ref, err := ParseModelRef(s.Model)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	factory, exists := r.factories[ref.Provider]
	r.mu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrProviderNotFound, ref.Provider)
	}

	p, err := factory(ctx, ref.Model, s)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", ref.Provider, err)
	}

	log.Info().
		Str("provider", ref.Provider).
		Str("model", ref.Model).
		Msg("Provider initialized")

	return p, nil
}
