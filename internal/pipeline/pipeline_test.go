package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/biodoia/smartwatcher/internal/agents"
	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubTool è un tool inerte usato per verificare l'assegnazione
type stubTool struct{ name string }

func (t stubTool) Name() string               { return t.name }
func (t stubTool) Description() string        { return t.name }
func (t stubTool) Parameters() map[string]any { return nil }
func (t stubTool) Execute(context.Context, map[string]any) (string, error) {
	return "", nil
}

var (
	searchStub = stubTool{name: tools.SearchToolName}
	docStub    = stubTool{name: tools.DocumentToolName}
)

// call registra una invocazione del backend
type call struct {
	inv      *agents.Invocation
	started  time.Time
	finished time.Time
}

// stubBackend risponde in base alla persona e registra le chiamate
type stubBackend struct {
	mu      sync.Mutex
	calls   []call
	active  int
	overlap bool
	failAt  int
	delay   time.Duration
	respond func(inv *agents.Invocation) string
}

func (b *stubBackend) Invoke(ctx context.Context, inv *agents.Invocation) (*agents.Result, error) {
	b.mu.Lock()
	b.active++
	if b.active > 1 {
		b.overlap = true
	}
	n := len(b.calls) + 1
	c := call{inv: inv, started: time.Now()}
	b.mu.Unlock()

	if b.delay > 0 {
		time.Sleep(b.delay)
	}

	if inv.OnToolCall != nil && len(inv.Tools) > 0 {
		inv.OnToolCall(agents.ToolCallRecord{Round: 1, Tool: inv.Tools[0].Name(), Arguments: `{}`})
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.active--
	c.finished = time.Now()
	b.calls = append(b.calls, c)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.failAt == n {
		return nil, errors.New("model unavailable")
	}

	out := "OUT_" + inv.PersonaID
	if b.respond != nil {
		out = b.respond(inv)
	}
	return &agents.Result{Output: out}, nil
}

func newBuilder(t *testing.T) *Builder {
	t.Helper()
	return NewBuilder(persona.Default(), searchStub, docStub)
}

func mustBuild(t *testing.T, post string, ids ...string) []Step {
	t.Helper()
	steps, err := newBuilder(t).Build(post, ids)
	require.NoError(t, err)
	return steps
}

func TestBuild_LengthAndOrder(t *testing.T) {
	orderings := [][]string{
		{persona.Researcher},
		{persona.PRWriter, persona.Researcher},
		{persona.Researcher, persona.FactChecker, persona.PRWriter, persona.Editor},
		{persona.Editor, persona.PRWriter, persona.FactChecker},
	}

	for _, ids := range orderings {
		t.Run(strings.Join(ids, ","), func(t *testing.T) {
			steps := mustBuild(t, "test post", ids...)
			require.Len(t, steps, len(ids))
			for i, s := range steps {
				assert.Equal(t, ids[i], s.Persona.ID)
				assert.Equal(t, i+1, s.Index)
				assert.Contains(t, s.Task, "test post")
			}
		})
	}
}

func TestBuild_DuplicatesAreIndependentSteps(t *testing.T) {
	steps := mustBuild(t, "p", persona.Researcher, persona.Researcher)
	require.Len(t, steps, 2)
	assert.Equal(t, 1, steps[0].Index)
	assert.Equal(t, 2, steps[1].Index)
	assert.NotEqual(t, steps[0].Task, steps[1].Task, "the second occurrence sees prior context")
}

func TestBuild_ToolAttachment(t *testing.T) {
	steps := mustBuild(t, "p", persona.Researcher, persona.PRWriter, persona.FactChecker, persona.Editor)

	assert.Equal(t, []string{tools.SearchToolName}, tools.Names(steps[0].Tools))
	assert.Equal(t, []string{tools.DocumentToolName}, tools.Names(steps[1].Tools))
	assert.Equal(t, []string{tools.SearchToolName}, tools.Names(steps[2].Tools))
	assert.Equal(t, []string{tools.DocumentToolName}, tools.Names(steps[3].Tools))
}

func TestBuild_PriorFlagInTask(t *testing.T) {
	steps := mustBuild(t, "p", persona.Editor, persona.Editor)
	assert.Contains(t, steps[0].Task, "No draft exists yet")
	assert.Contains(t, steps[1].Task, "Keep the meaning of the draft intact")
}

func TestBuild_Validation(t *testing.T) {
	b := newBuilder(t)

	tests := []struct {
		name string
		post string
		ids  []string
		want string
	}{
		{"empty ordering", "p", nil, "at least one agent"},
		{"empty slice", "p", []string{}, "at least one agent"},
		{"unknown id", "p", []string{persona.Researcher, "ghost"}, `"ghost"`},
		{"empty post", "   ", []string{persona.Researcher}, "post is empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps, err := b.Build(tt.post, tt.ids)
			assert.Nil(t, steps)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Reason, tt.want)
		})
	}
}

func TestBuild_EmptyPostWithRootVariable(t *testing.T) {
	catalog, err := persona.NewCatalog(persona.PersonaConfig{ID: "echo", Role: "Echo", TaskTemplate: "Reply to {{$.Post}}"})
	require.NoError(t, err)

	_, err = NewBuilder(catalog, searchStub, docStub).Build("  ", []string{"echo"})

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Reason, "post is empty")
}

func TestBuild_MissingTools(t *testing.T) {
	b := NewBuilder(persona.Default(), nil, docStub)

	_, err := b.Build("p", []string{persona.PRWriter})
	require.NoError(t, err, "writer does not need search")

	_, err = b.Build("p", []string{persona.PRWriter, persona.Researcher})
	var cerr *ConfigurationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, []string{"search tool"}, cerr.Missing)
}

func TestRun_ScenarioA_SingleStep(t *testing.T) {
	backend := &stubBackend{}
	steps := mustBuild(t, "test post", persona.Researcher)

	res, err := NewExecutor(0).Run(context.Background(), steps, backend, nil)
	require.NoError(t, err)

	assert.Equal(t, "OUT_researcher", res.Output)
	assert.Len(t, backend.calls, 1)
	assert.NotEmpty(t, res.RunID)
	require.Len(t, res.Steps, 1)
	assert.Empty(t, backend.calls[0].inv.Prior)
}

func TestRun_ScenarioB_ContextHandOff(t *testing.T) {
	var writerContext string
	backend := &stubBackend{
		respond: func(inv *agents.Invocation) string {
			if inv.PersonaID == persona.Researcher {
				return "ANALYSIS_X"
			}
			var sb strings.Builder
			for _, p := range inv.Prior {
				sb.WriteString(p.Output)
			}
			writerContext = sb.String()
			return fmt.Sprintf("context length %d", len(writerContext))
		},
	}
	steps := mustBuild(t, "test post", persona.Researcher, persona.PRWriter)

	res, err := NewExecutor(0).Run(context.Background(), steps, backend, nil)
	require.NoError(t, err)

	assert.Contains(t, writerContext, "ANALYSIS_X")
	assert.Equal(t, fmt.Sprintf("context length %d", len("ANALYSIS_X")), res.Output)
}

func TestRun_ScenarioC_EmptyNeverInvokesBackend(t *testing.T) {
	backend := &stubBackend{}

	_, err := newBuilder(t).Build("test post", nil)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	res, err := NewExecutor(0).Run(context.Background(), nil, backend, nil)
	assert.Nil(t, res)
	require.ErrorAs(t, err, &verr)
	assert.Empty(t, backend.calls)
}

func TestRun_StrictSequencing(t *testing.T) {
	backend := &stubBackend{delay: 5 * time.Millisecond}
	steps := mustBuild(t, "p", persona.Researcher, persona.FactChecker, persona.PRWriter, persona.Editor)

	res, err := NewExecutor(0).Run(context.Background(), steps, backend, nil)
	require.NoError(t, err)

	assert.False(t, backend.overlap)
	require.Len(t, backend.calls, 4)
	for i := 1; i < len(backend.calls); i++ {
		assert.False(t, backend.calls[i].started.Before(backend.calls[i-1].finished), "step %d started before step %d finished", i+1, i)
		assert.False(t, res.Steps[i].StartedAt.Before(res.Steps[i-1].FinishedAt))
	}
}

func TestRun_ContextAccumulation(t *testing.T) {
	backend := &stubBackend{}
	ids := []string{persona.Researcher, persona.FactChecker, persona.PRWriter, persona.Editor}
	steps := mustBuild(t, "p", ids...)

	_, err := NewExecutor(0).Run(context.Background(), steps, backend, nil)
	require.NoError(t, err)

	for i, c := range backend.calls {
		require.Len(t, c.inv.Prior, i, "step %d sees all prior outputs", i+1)
		for j, p := range c.inv.Prior {
			assert.Equal(t, j+1, p.Index)
			assert.Equal(t, "OUT_"+ids[j], p.Output)
		}
	}
}

func TestRun_FailureStopsAtStepK(t *testing.T) {
	for k := 1; k <= 3; k++ {
		t.Run(fmt.Sprintf("k=%d", k), func(t *testing.T) {
			backend := &stubBackend{failAt: k}
			steps := mustBuild(t, "p", persona.Researcher, persona.FactChecker, persona.PRWriter)

			var events []Event
			em := NewEmitter(func(ev Event) { events = append(events, ev) })

			res, err := NewExecutor(0).Run(context.Background(), steps, backend, em)
			assert.Nil(t, res)
			assert.Len(t, backend.calls, k)

			var serr *StepExecutionError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, k, serr.Index)
			assert.Equal(t, steps[k-1].Persona.ID, serr.PersonaID)
			assert.Len(t, serr.Completed, k-1)
			assert.Contains(t, serr.Error(), "model unavailable")

			last := events[len(events)-1]
			assert.Equal(t, EventRunFailed, last.Type)
			assert.Equal(t, k, last.StepIndex)
			assert.Equal(t, EventStepFailed, events[len(events)-2].Type)
		})
	}
}

func TestRun_EmptyOutputIsFailure(t *testing.T) {
	backend := &stubBackend{respond: func(*agents.Invocation) string { return "  " }}
	steps := mustBuild(t, "p", persona.Researcher, persona.PRWriter)

	_, err := NewExecutor(0).Run(context.Background(), steps, backend, nil)
	assert.ErrorIs(t, err, ErrEmptyOutput)
	assert.Len(t, backend.calls, 1)
}

func TestRun_StepTimeout(t *testing.T) {
	backend := &stubBackend{delay: 30 * time.Millisecond}
	steps := mustBuild(t, "p", persona.Researcher)

	_, err := NewExecutor(5*time.Millisecond).Run(context.Background(), steps, backend, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRun_CancelledContext(t *testing.T) {
	backend := &stubBackend{}
	steps := mustBuild(t, "p", persona.Researcher)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewExecutor(0).Run(ctx, steps, backend, nil)
	var serr *StepExecutionError
	require.ErrorAs(t, err, &serr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, backend.calls)
}

func TestRun_EventSequence(t *testing.T) {
	backend := &stubBackend{}
	steps := mustBuild(t, "p", persona.Researcher, persona.PRWriter)

	var types []EventType
	em := NewEmitter(func(ev Event) {
		types = append(types, ev.Type)
		assert.NotEmpty(t, ev.RunID)
		assert.False(t, ev.Time.IsZero())
	})

	res, err := NewExecutor(0).Run(context.Background(), steps, backend, em)
	require.NoError(t, err)
	assert.Equal(t, em.RunID(), res.RunID)

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventStepStarted, EventToolCall, EventStepCompleted,
		EventStepStarted, EventToolCall, EventStepCompleted,
		EventRunCompleted,
	}, types)
}

func TestEmitter(t *testing.T) {
	var nilEmitter *Emitter
	assert.NotPanics(t, func() { nilEmitter.Emit(Event{Type: EventRunStarted}) })
	assert.Empty(t, nilEmitter.RunID())

	a := NewEmitter()
	b := NewEmitter()
	assert.NotEqual(t, a.RunID(), b.RunID(), "each run gets its own emitter")

	var got []string
	a.Subscribe(func(Event) { panic("bad subscriber") })
	a.Subscribe(func(ev Event) { got = append(got, ev.Message) })
	b.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Message) })

	a.Emit(Event{Type: EventRunStarted, Message: "hello"})
	assert.Equal(t, []string{"hello"}, got, "a panicking subscriber does not block the others")
}

func TestErrors(t *testing.T) {
	cause := errors.New("boom")
	serr := &StepExecutionError{Index: 2, PersonaID: "pr_writer", Err: cause}
	assert.ErrorIs(t, serr, cause)
	assert.Equal(t, "step 2 (pr_writer) failed: boom", serr.Error())

	cerr := &ConfigurationError{Reason: "credentials missing", Missing: []string{"GEMINI_API_KEY"}}
	assert.Equal(t, "configuration error: credentials missing (missing: GEMINI_API_KEY)", cerr.Error())
	assert.Equal(t, "configuration error: x", (&ConfigurationError{Reason: "x"}).Error())

	assert.Equal(t, "validation error: empty", (&ValidationError{Reason: "empty"}).Error())
}
