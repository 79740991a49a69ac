// Package watcher è il punto d'ingresso per CLI e server: valida l'input,
// controlla le credenziali, costruisce la pipeline e la esegue.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/biodoia/smartwatcher/internal/advisor"
	"github.com/biodoia/smartwatcher/internal/agents"
	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/biodoia/smartwatcher/internal/providers/gemini"
	"github.com/biodoia/smartwatcher/internal/providers/openai"
	"github.com/biodoia/smartwatcher/internal/stats"
	"github.com/biodoia/smartwatcher/internal/tools"
	"github.com/biodoia/smartwatcher/pkg/cache"
	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/rs/zerolog/log"
)

// Options raccoglie le dipendenze del servizio
type Options struct {
	Config  *config.Config
	Catalog *persona.Catalog

	// Registry delle factory; nil usa DefaultRegistry
	Registry *providers.Registry

	// Provider già costruito; se presente il registry non viene usato
	Provider providers.Provider

	// Cache dei risultati di ricerca; nil lo costruisce da Config.Cache.
	// Un cache iniettato resta del chiamante e Close non lo chiude.
	Cache cache.Cache

	// Metrics opzionali; ricevono tutti gli eventi delle run
	Metrics *stats.Metrics
}

// Service espone le operazioni rivolte al chiamante
type Service struct {
	cfg      *config.Config
	catalog  *persona.Catalog
	builder  *pipeline.Builder
	executor *pipeline.Executor
	registry *providers.Registry
	cache    cache.Cache
	metrics  *stats.Metrics

	ownsCache bool

	mu           sync.Mutex
	provider     providers.Provider
	ownsProvider bool
}

// DefaultRegistry restituisce un registry con i backend supportati
func DefaultRegistry() *providers.Registry {
	r := providers.NewRegistry()
	_ = r.Register(gemini.ProviderName, gemini.Factory)
	_ = r.Register(openai.ProviderName, openai.Factory)
	return r
}

// New crea il servizio. Nessuna chiamata di rete avviene qui.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("watcher: config is required")
	}
	cfg := opts.Config

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		catalog, err = persona.Load(cfg.Personas.File)
		if err != nil {
			return nil, fmt.Errorf("failed to load personas: %w", err)
		}
	}

	registry := opts.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	c := opts.Cache
	ownsCache := c == nil
	if ownsCache {
		var err error
		c, err = cache.New(&cache.Config{
			Backend:        cfg.Cache.Backend,
			MaxEntries:     cfg.Cache.MaxEntries,
			DefaultTTL:     cfg.Search.CacheTTL,
			RedisHost:      cfg.Cache.Redis.Host,
			RedisPassword:  cfg.Cache.Redis.Password,
			RedisDB:        cfg.Cache.Redis.DB,
			RedisKeyPrefix: cfg.Cache.Redis.KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create cache: %w", err)
		}
	}

	search := tools.NewSearchTool(tools.SearchConfig{
		APIKey:     cfg.Search.APIKey,
		Endpoint:   cfg.Search.Endpoint,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    cfg.Search.Timeout,
		CacheTTL:   cfg.Search.CacheTTL,
	}, c)

	document, err := tools.NewDocumentTool(cfg.Documents.BaseDir, cfg.Documents.GuidelinesPath)
	if err != nil {
		return nil, err
	}

	if opts.Metrics != nil {
		opts.Metrics.RegisterCache(cfg.Monitoring.Prometheus.Namespace, c)
	}

	log.Info().
		Int("personas", catalog.Len()).
		Str("model", cfg.LLM.Model).
		Strs("providers", registry.List()).
		Msg("Watcher service initialized")

	return &Service{
		cfg:       cfg,
		catalog:   catalog,
		builder:   pipeline.NewBuilder(catalog, search, document),
		executor:  pipeline.NewExecutor(cfg.LLM.StepTimeout),
		registry:  registry,
		cache:     c,
		metrics:   opts.Metrics,
		ownsCache: ownsCache,
		provider:  opts.Provider,
	}, nil
}

// Personas restituisce il catalogo nell'ordine di definizione
func (s *Service) Personas() []persona.PersonaConfig {
	return s.catalog.All()
}

// Critique chiede all'advisor un parere sull'ordine scelto.
// Non esegue nessuno step.
func (s *Service) Critique(ctx context.Context, in pipeline.RunInput) (*advisor.Critique, error) {
	if err := s.builder.Validate(in.PersonaIDs); err != nil {
		return nil, err
	}
	if err := s.checkModelCredential(); err != nil {
		return nil, err
	}

	provider, err := s.backend(ctx)
	if err != nil {
		return nil, err
	}

	roles := make([]advisor.RoleSummary, 0, len(in.PersonaIDs))
	for _, id := range in.PersonaIDs {
		p := s.catalog.MustLookup(id)
		roles = append(roles, advisor.RoleSummary{ID: p.ID, Role: p.Role, Goal: p.Goal})
	}

	critique, err := advisor.New(provider, s.cfg.LLM.RequestTimeout).Critique(ctx, in.Post, roles)
	if s.metrics != nil {
		s.metrics.RecordCritique(err)
	}
	return critique, err
}

// Run esegue la pipeline completa. Ogni run ha il proprio emitter:
// i subscriber ricevono solo gli eventi di questa run.
func (s *Service) Run(ctx context.Context, in pipeline.RunInput, subs ...pipeline.Subscriber) (*pipeline.RunResult, error) {
	steps, err := s.prepare(in)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRunRejected()
		}
		log.Warn().Err(err).Strs("agents", in.PersonaIDs).Msg("Pipeline run rejected")
		return nil, err
	}

	provider, err := s.backend(ctx)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRunRejected()
		}
		return nil, err
	}

	em := pipeline.NewEmitter()
	if s.metrics != nil {
		em.Subscribe(s.metrics.Observe)
	}
	for _, sub := range subs {
		em.Subscribe(sub)
	}

	if s.cfg.Server.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Server.RunTimeout)
		defer cancel()
	}

	runner := agents.NewRunner(provider, s.cfg.LLM.MaxToolRounds)
	return s.executor.Run(ctx, steps, runner, em)
}

// Check applica a in gli stessi controlli di Run senza eseguire nulla
func (s *Service) Check(in pipeline.RunInput) error {
	_, err := s.prepare(in)
	return err
}

// Close rilascia il backend e il cache costruiti dal servizio
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	if closer, ok := s.provider.(io.Closer); ok && s.ownsProvider {
		errs = append(errs, closer.Close())
	}
	if s.cache != nil && s.ownsCache {
		errs = append(errs, s.cache.Close())
	}
	return errors.Join(errs...)
}

// prepare applica i controlli nell'ordine: input, credenziali, build
func (s *Service) prepare(in pipeline.RunInput) ([]pipeline.Step, error) {
	if err := s.builder.Validate(in.PersonaIDs); err != nil {
		return nil, err
	}
	if err := s.checkCredentials(in.PersonaIDs); err != nil {
		return nil, err
	}
	return s.builder.Build(in.Post, in.PersonaIDs)
}

func (s *Service) checkModelCredential() error {
	if strings.TrimSpace(s.cfg.LLM.APIKey) == "" {
		return &pipeline.ConfigurationError{
			Reason:  "the model backend credential is not set",
			Missing: []string{config.EnvPrefix + "_LLM_API_KEY"},
		}
	}
	return nil
}

// checkCredentials verifica la chiave del modello e, se serve, quella di ricerca
func (s *Service) checkCredentials(ids []string) error {
	var missing []string
	if strings.TrimSpace(s.cfg.LLM.APIKey) == "" {
		missing = append(missing, config.EnvPrefix+"_LLM_API_KEY")
	}

	if strings.TrimSpace(s.cfg.Search.APIKey) == "" {
		for _, id := range ids {
			if s.catalog.MustLookup(id).NeedsSearch {
				missing = append(missing, config.EnvPrefix+"_SEARCH_API_KEY")
				break
			}
		}
	}

	if len(missing) > 0 {
		return &pipeline.ConfigurationError{Reason: "required credentials are not set", Missing: missing}
	}
	return nil
}

// backend costruisce il provider alla prima richiesta e lo riusa.
// Un errore di costruzione non viene memorizzato.
func (s *Service) backend(ctx context.Context) (providers.Provider, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.provider != nil {
		return s.provider, nil
	}

	p, err := s.registry.New(ctx, providers.Settings{
		Model:           s.cfg.LLM.Model,
		APIKey:          s.cfg.LLM.APIKey,
		BaseURL:         s.cfg.LLM.BaseURL,
		Temperature:     s.cfg.LLM.Temperature,
		MaxOutputTokens: s.cfg.LLM.MaxOutputTokens,
		Timeout:         s.cfg.LLM.RequestTimeout,
	})
	if err != nil {
		return nil, &pipeline.ConfigurationError{Reason: err.Error()}
	}

	s.provider = p
	s.ownsProvider = true
	return p, nil
}
