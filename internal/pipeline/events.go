package pipeline

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// EventType identifica il tipo di evento di una run
type EventType string

const (
	EventRunStarted    EventType = "run_started"
	EventStepStarted   EventType = "step_started"
	EventToolCall      EventType = "tool_call"
	EventStepCompleted EventType = "step_completed"
	EventStepFailed    EventType = "step_failed"
	EventRunCompleted  EventType = "run_completed"
	EventRunFailed     EventType = "run_failed"
)

// Event è un evento di avanzamento di una singola run
type Event struct {
	Type       EventType `json:"type"`
	RunID      string    `json:"run_id"`
	Time       time.Time `json:"time"`
	StepIndex  int       `json:"step_index,omitempty"`
	TotalSteps int       `json:"total_steps,omitempty"`
	PersonaID  string    `json:"persona_id,omitempty"`
	Role       string    `json:"role,omitempty"`
	Tool       string    `json:"tool,omitempty"`
	Message    string    `json:"message,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
}

// Subscriber riceve gli eventi di una run, nell'ordine di emissione
type Subscriber func(Event)

// Emitter distribuisce gli eventi di una singola run ai subscriber.
// Va creato per ogni run e scartato alla fine.
type Emitter struct {
	runID string
	mu    sync.Mutex
	subs  []Subscriber
}

// NewEmitter crea un emitter per una nuova run
func NewEmitter(subs ...Subscriber) *Emitter {
	return &Emitter{
		runID: uuid.New().String(),
		subs:  subs,
	}
}

// RunID restituisce l'id della run
func (e *Emitter) RunID() string {
	if e == nil {
		return ""
	}
	return e.runID
}

// Subscribe aggiunge un subscriber
func (e *Emitter) Subscribe(s Subscriber) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.subs = append(e.subs, s)
}

// Emit invia l'evento a tutti i subscriber. Un emitter nil scarta gli eventi.
func (e *Emitter) Emit(ev Event) {
	if e == nil {
		return
	}

	ev.RunID = e.runID
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	e.mu.Lock()
	subs := make([]Subscriber, len(e.subs))
	copy(subs, e.subs)
	e.mu.Unlock()

	for _, s := range subs {
		deliver(s, ev)
	}
}

// deliver isola la run dal panic di un subscriber
func deliver(s Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Str("event", string(ev.Type)).
				Str("run_id", ev.RunID).
				Msg("Event subscriber panicked")
		}
	}()
	s(ev)
}
