package watcher

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/biodoia/smartwatcher/internal/advisor"
	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/biodoia/smartwatcher/internal/stats"
	"github.com/biodoia/smartwatcher/pkg/cache"
	"github.com/biodoia/smartwatcher/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProvider risponde agli step e, separatamente, all'advisor
type fakeProvider struct {
	*providers.BaseProvider

	mu          sync.Mutex
	calls       int
	critiqueErr error
}

func newFakeProvider() *fakeProvider {
	base := providers.NewBaseProvider("fake", "fake-model", "", "")
	base.SetFeature(providers.FeatureTools, true)
	base.SetFeature(providers.FeatureJSONMode, true)
	return &fakeProvider{BaseProvider: base}
}

func (f *fakeProvider) ChatCompletion(_ context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	var content string
	if req.ResponseFormat != nil {
		if f.critiqueErr != nil {
			return nil, f.critiqueErr
		}
		content = `{"sound": true, "verdict": "Order looks fine.", "suggestions": []}`
	} else {
		system := req.Messages[0].Content
		switch {
		case strings.HasPrefix(system, "You are Senior Social Listening Analyst."):
			content = "ANALYSIS_X"
		default:
			content = "REPLY"
		}
	}

	return &providers.ChatResponse{
		Choices: []providers.Choice{{Message: providers.Message{Role: providers.RoleAssistant, Content: content}}},
	}, nil
}

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.LLM.Model = "gemini/gemini-2.5-pro"
	cfg.LLM.APIKey = "model-key"
	cfg.LLM.MaxToolRounds = 2
	cfg.LLM.StepTimeout = time.Minute
	cfg.Search.APIKey = "search-key"
	cfg.Search.MaxResults = 5
	cfg.Documents.BaseDir = t.TempDir()
	cfg.Documents.GuidelinesPath = "guidelines.md"
	cfg.Server.RunTimeout = time.Minute
	return cfg
}

func newService(t *testing.T, cfg *config.Config, p providers.Provider, m *stats.Metrics) *Service {
	t.Helper()
	svc, err := New(Options{
		Config:   cfg,
		Catalog:  persona.Default(),
		Provider: p,
		Cache:    cache.NewMemoryCache(10, time.Minute),
		Metrics:  m,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

// closeCountingCache conta le chiamate a Close
type closeCountingCache struct {
	*cache.MemoryCache
	closes int
}

func (c *closeCountingCache) Close() error {
	c.closes++
	return c.MemoryCache.Close()
}

// closeCountingProvider conta le chiamate a Close
type closeCountingProvider struct {
	*fakeProvider
	closes int
}

func (p *closeCountingProvider) Close() error {
	p.closes++
	return nil
}

func TestClose_LeavesInjectedDependencies(t *testing.T) {
	shared := &closeCountingCache{MemoryCache: cache.NewMemoryCache(10, time.Minute)}
	t.Cleanup(func() { _ = shared.MemoryCache.Close() })
	p := &closeCountingProvider{fakeProvider: newFakeProvider()}

	svc, err := New(Options{
		Config:   testConfig(t),
		Catalog:  persona.Default(),
		Provider: p,
		Cache:    shared,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Close())

	assert.Zero(t, shared.closes, "injected cache belongs to the caller")
	assert.Zero(t, p.closes, "injected provider belongs to the caller")

	ctx := context.Background()
	require.NoError(t, shared.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := shared.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
}

func TestRun(t *testing.T) {
	p := newFakeProvider()
	svc := newService(t, testConfig(t), p, nil)

	var events []pipeline.Event
	res, err := svc.Run(context.Background(), pipeline.RunInput{
		Post:       "MRVL post",
		PersonaIDs: []string{persona.Researcher, persona.PRWriter},
	}, func(ev pipeline.Event) { events = append(events, ev) })
	require.NoError(t, err)

	assert.Equal(t, "REPLY", res.Output)
	require.Len(t, res.Steps, 2)
	assert.Equal(t, "ANALYSIS_X", res.Steps[0].Output)
	assert.Equal(t, 2, p.callCount())

	require.NotEmpty(t, events)
	assert.Equal(t, pipeline.EventRunStarted, events[0].Type)
	assert.Equal(t, pipeline.EventRunCompleted, events[len(events)-1].Type)
	for _, ev := range events {
		assert.Equal(t, res.RunID, ev.RunID)
	}
}

func TestRun_SeparateEmitters(t *testing.T) {
	svc := newService(t, testConfig(t), newFakeProvider(), nil)
	in := pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.PRWriter}}

	var first, second int
	r1, err := svc.Run(context.Background(), in, func(pipeline.Event) { first++ })
	require.NoError(t, err)
	r2, err := svc.Run(context.Background(), in, func(pipeline.Event) { second++ })
	require.NoError(t, err)

	assert.NotEqual(t, r1.RunID, r2.RunID)
	assert.Equal(t, first, second, "a subscriber only sees its own run")
}

func TestRun_MissingModelCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	p := newFakeProvider()
	m := stats.NewMetrics("test")
	svc := newService(t, cfg, p, m)

	var events []pipeline.Event
	_, err := svc.Run(context.Background(), pipeline.RunInput{
		Post:       "post",
		PersonaIDs: []string{persona.PRWriter},
	}, func(ev pipeline.Event) { events = append(events, ev) })

	var cerr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Missing, "SMARTWATCHER_LLM_API_KEY")
	assert.Zero(t, p.callCount())
	assert.Empty(t, events)
}

func TestRun_SearchCredentialOnlyWhenNeeded(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.APIKey = ""
	p := newFakeProvider()
	svc := newService(t, cfg, p, nil)

	_, err := svc.Run(context.Background(), pipeline.RunInput{
		Post:       "post",
		PersonaIDs: []string{persona.PRWriter, persona.Editor},
	})
	require.NoError(t, err, "no persona in this ordering needs search")

	calls := p.callCount()
	_, err = svc.Run(context.Background(), pipeline.RunInput{
		Post:       "post",
		PersonaIDs: []string{persona.Researcher, persona.PRWriter},
	})
	var cerr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"SMARTWATCHER_SEARCH_API_KEY"}, cerr.Missing)
	assert.Equal(t, calls, p.callCount())
}

func TestRun_ValidationBeforeCredentials(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	svc := newService(t, cfg, newFakeProvider(), nil)

	_, err := svc.Run(context.Background(), pipeline.RunInput{Post: "post"})
	var verr *pipeline.ValidationError
	assert.ErrorAs(t, err, &verr)

	_, err = svc.Run(context.Background(), pipeline.RunInput{Post: "post", PersonaIDs: []string{"ghost"}})
	assert.ErrorAs(t, err, &verr)
}

func TestRun_EmptyPost(t *testing.T) {
	p := newFakeProvider()
	svc := newService(t, testConfig(t), p, nil)

	_, err := svc.Run(context.Background(), pipeline.RunInput{Post: "  ", PersonaIDs: []string{persona.PRWriter}})
	var verr *pipeline.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Zero(t, p.callCount())
}

func TestCritique(t *testing.T) {
	m := stats.NewMetrics("test")
	svc := newService(t, testConfig(t), newFakeProvider(), m)

	c, err := svc.Critique(context.Background(), pipeline.RunInput{
		Post:       "post",
		PersonaIDs: []string{persona.PRWriter, persona.Researcher},
	})
	require.NoError(t, err)
	assert.True(t, c.Sound)
	assert.Equal(t, "Order looks fine.", c.Verdict)
}

func TestCritique_SearchKeyNotRequired(t *testing.T) {
	cfg := testConfig(t)
	cfg.Search.APIKey = ""
	svc := newService(t, cfg, newFakeProvider(), nil)

	_, err := svc.Critique(context.Background(), pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.Researcher}})
	assert.NoError(t, err)
}

func TestCritique_MissingModelCredential(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.APIKey = ""
	p := newFakeProvider()
	svc := newService(t, cfg, p, nil)

	_, err := svc.Critique(context.Background(), pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.Researcher}})
	var cerr *pipeline.ConfigurationError
	assert.ErrorAs(t, err, &cerr)
	assert.Zero(t, p.callCount())
}

func TestCritiqueFailureDoesNotAffectRun(t *testing.T) {
	p := newFakeProvider()
	p.critiqueErr = providers.ErrServiceUnavailable
	svc := newService(t, testConfig(t), p, nil)

	in := pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.Researcher, persona.PRWriter}}

	_, err := svc.Critique(context.Background(), in)
	var aerr *advisor.AdvisoryError
	require.ErrorAs(t, err, &aerr)
	assert.ErrorIs(t, err, providers.ErrServiceUnavailable)

	res, err := svc.Run(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, "REPLY", res.Output)
}

func TestBackend_UnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.LLM.Model = "nope/model"
	svc := newService(t, cfg, nil, nil)

	_, err := svc.Run(context.Background(), pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.PRWriter}})
	var cerr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Contains(t, cerr.Reason, "provider not found")
}

func TestPersonas(t *testing.T) {
	svc := newService(t, testConfig(t), newFakeProvider(), nil)
	ids := make([]string, 0)
	for _, p := range svc.Personas() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, persona.Default().IDs(), ids)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Equal(t, []string{"gemini", "openai"}, DefaultRegistry().List())
}

func TestCheck(t *testing.T) {
	p := newFakeProvider()
	svc := newService(t, testConfig(t), p, nil)

	assert.NoError(t, svc.Check(pipeline.RunInput{Post: "post", PersonaIDs: []string{persona.Researcher}}))

	var verr *pipeline.ValidationError
	assert.ErrorAs(t, svc.Check(pipeline.RunInput{Post: "post"}), &verr)
	assert.Zero(t, p.callCount())
}
