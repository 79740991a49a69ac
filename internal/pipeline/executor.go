package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/biodoia/smartwatcher/internal/agents"
	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/biodoia/smartwatcher/internal/pipeline"

// Backend esegue l'invocazione di una persona; agents.Runner lo implementa
type Backend interface {
	Invoke(ctx context.Context, inv *agents.Invocation) (*agents.Result, error)
}

// StepOutput è il risultato di uno step completato
type StepOutput struct {
	Index      int                     `json:"index"`
	PersonaID  string                  `json:"persona_id"`
	Role       string                  `json:"role"`
	Output     string                  `json:"output"`
	ToolCalls  []agents.ToolCallRecord `json:"tool_calls,omitempty"`
	Usage      providers.Usage         `json:"usage"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
	DurationMS int64                   `json:"duration_ms"`
}

// RunResult è il risultato di una run completata
type RunResult struct {
	RunID      string       `json:"run_id"`
	Output     string       `json:"output"`
	Steps      []StepOutput `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	DurationMS int64        `json:"duration_ms"`
}

// Executor esegue gli step in sequenza stretta
type Executor struct {
	stepTimeout time.Duration
	tracer      trace.Tracer
}

// NewExecutor crea un executor. stepTimeout <= 0 disabilita il timeout per step.
func NewExecutor(stepTimeout time.Duration) *Executor {
	return &Executor{
		stepTimeout: stepTimeout,
		tracer:      otel.Tracer(tracerName),
	}
}

// Run esegue gli step uno alla volta. Lo step N parte solo dopo che
// l'output dello step N-1 è stato registrato; il primo errore ferma la run.
func (x *Executor) Run(ctx context.Context, steps []Step, backend Backend, em *Emitter) (*RunResult, error) {
	if len(steps) == 0 {
		return nil, &ValidationError{Reason: "pipeline has no steps"}
	}
	if em == nil {
		em = NewEmitter()
	}

	started := time.Now()
	result := &RunResult{
		RunID:     em.RunID(),
		Steps:     make([]StepOutput, 0, len(steps)),
		StartedAt: started,
	}

	ctx, span := x.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", result.RunID),
		attribute.Int("run.steps", len(steps)),
		attribute.String("run.agents", strings.Join(personaIDs(steps), ",")),
	))
	defer span.End()

	em.Emit(Event{
		Type:       EventRunStarted,
		TotalSteps: len(steps),
		Message:    fmt.Sprintf("Starting pipeline with %d agents", len(steps)),
	})

	log.Info().
		Str("run_id", result.RunID).
		Strs("agents", personaIDs(steps)).
		Msg("Pipeline run started")

	prior := make([]agents.PriorOutput, 0, len(steps))

	for i, step := range steps {
		index := i + 1

		out, err := x.runStep(ctx, step, index, len(steps), prior, backend, em)
		if err != nil {
			stepErr := &StepExecutionError{
				Index:     index,
				PersonaID: step.Persona.ID,
				Err:       err,
				Completed: result.Steps,
			}

			span.RecordError(stepErr)
			span.SetStatus(codes.Error, stepErr.Error())

			em.Emit(Event{
				Type:       EventRunFailed,
				StepIndex:  index,
				TotalSteps: len(steps),
				PersonaID:  step.Persona.ID,
				Error:      stepErr.Error(),
				DurationMS: time.Since(started).Milliseconds(),
			})

			log.Warn().
				Err(err).
				Str("run_id", result.RunID).
				Int("step", index).
				Str("persona", step.Persona.ID).
				Msg("Pipeline run failed")

			return nil, stepErr
		}

		result.Steps = append(result.Steps, *out)
		prior = append(prior, agents.PriorOutput{
			Index:     index,
			PersonaID: step.Persona.ID,
			Role:      step.Persona.Role,
			Output:    out.Output,
		})
	}

	result.Output = result.Steps[len(result.Steps)-1].Output
	result.DurationMS = time.Since(started).Milliseconds()

	em.Emit(Event{
		Type:       EventRunCompleted,
		TotalSteps: len(steps),
		Output:     result.Output,
		DurationMS: result.DurationMS,
	})

	log.Info().
		Str("run_id", result.RunID).
		Int("steps", len(result.Steps)).
		Int64("duration_ms", result.DurationMS).
		Msg("Pipeline run completed")

	return result, nil
}

// runStep esegue un singolo step con il proprio timeout e span
func (x *Executor) runStep(ctx context.Context, step Step, index, total int, prior []agents.PriorOutput, backend Backend, em *Emitter) (*StepOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	stepCtx := ctx
	if x.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, x.stepTimeout)
		defer cancel()
	}

	stepCtx, span := x.tracer.Start(stepCtx, "pipeline.step", trace.WithAttributes(
		attribute.Int("step.index", index),
		attribute.String("step.persona", step.Persona.ID),
		attribute.Int("step.tools", len(step.Tools)),
	))
	defer span.End()

	em.Emit(Event{
		Type:       EventStepStarted,
		StepIndex:  index,
		TotalSteps: total,
		PersonaID:  step.Persona.ID,
		Role:       step.Persona.Role,
		Message:    fmt.Sprintf("%s is working", step.Persona.Role),
	})

	inv := &agents.Invocation{
		PersonaID:      step.Persona.ID,
		Role:           step.Persona.Role,
		Goal:           step.Persona.Goal,
		Backstory:      step.Persona.Backstory,
		Task:           step.Task,
		ExpectedOutput: step.Persona.ExpectedOutput,
		Tools:          step.Tools,
		Prior:          append([]agents.PriorOutput(nil), prior...),
		OnToolCall: func(rec agents.ToolCallRecord) {
			em.Emit(Event{
				Type:       EventToolCall,
				StepIndex:  index,
				TotalSteps: total,
				PersonaID:  step.Persona.ID,
				Tool:       rec.Tool,
				Message:    rec.Arguments,
				Error:      rec.Error,
				DurationMS: rec.Duration.Milliseconds(),
			})
		},
	}

	startedAt := time.Now()
	res, err := backend.Invoke(stepCtx, inv)
	if err == nil && (res == nil || strings.TrimSpace(res.Output) == "") {
		err = ErrEmptyOutput
	}
	finishedAt := time.Now()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		em.Emit(Event{
			Type:       EventStepFailed,
			StepIndex:  index,
			TotalSteps: total,
			PersonaID:  step.Persona.ID,
			Role:       step.Persona.Role,
			Error:      err.Error(),
			DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
		})
		return nil, err
	}

	out := &StepOutput{
		Index:      index,
		PersonaID:  step.Persona.ID,
		Role:       step.Persona.Role,
		Output:     res.Output,
		ToolCalls:  res.ToolCalls,
		Usage:      res.Usage,
		StartedAt:  startedAt,
		FinishedAt: finishedAt,
		DurationMS: finishedAt.Sub(startedAt).Milliseconds(),
	}

	span.SetAttributes(
		attribute.Int("step.tool_calls", len(res.ToolCalls)),
		attribute.Int("step.total_tokens", res.Usage.TotalTokens),
	)

	em.Emit(Event{
		Type:       EventStepCompleted,
		StepIndex:  index,
		TotalSteps: total,
		PersonaID:  step.Persona.ID,
		Role:       step.Persona.Role,
		Output:     res.Output,
		DurationMS: out.DurationMS,
	})

	return out, nil
}

func personaIDs(steps []Step) []string {
	ids := make([]string, len(steps))
	for i, s := range steps {
		ids[i] = s.Persona.ID
	}
	return ids
}
