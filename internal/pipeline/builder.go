// Package pipeline costruisce ed esegue pipeline lineari di persona:
// ogni step riceve il post, il proprio task e l'output di tutti gli step
// precedenti, in ordine.
package pipeline

import (
	"fmt"
	"strings"

	"github.com/biodoia/smartwatcher/internal/persona"
	"github.com/biodoia/smartwatcher/internal/tools"
)

// RunInput è l'input di una run: il post e l'ordine delle persona scelto dall'utente
type RunInput struct {
	Post       string   `json:"post"`
	PersonaIDs []string `json:"agents"`
}

// Step è un passo della pipeline pronto per l'esecuzione
type Step struct {
	// Posizione 1-based nella pipeline
	Index   int
	Persona persona.PersonaConfig
	Task    string
	Tools   []tools.Tool
}

// Builder trasforma un RunInput in una sequenza di Step
type Builder struct {
	catalog  *persona.Catalog
	search   tools.Tool
	document tools.Tool
}

// NewBuilder crea un builder. search e document possono essere nil se non configurati.
func NewBuilder(catalog *persona.Catalog, search, document tools.Tool) *Builder {
	return &Builder{
		catalog:  catalog,
		search:   search,
		document: document,
	}
}

// Validate verifica che l'ordine sia non vuoto e composto da id noti
func (b *Builder) Validate(ids []string) error {
	if len(ids) == 0 {
		return &ValidationError{Reason: "at least one agent must be selected"}
	}

	var unknown []string
	for _, id := range ids {
		if _, ok := b.catalog.Lookup(id); !ok {
			unknown = append(unknown, fmt.Sprintf("%q", id))
		}
	}
	if len(unknown) > 0 {
		return &ValidationError{Reason: "unknown agents: " + strings.Join(unknown, ", ")}
	}

	return nil
}

// Build crea uno Step per ogni id, nello stesso ordine. I duplicati restano step distinti.
func (b *Builder) Build(post string, ids []string) ([]Step, error) {
	if err := b.Validate(ids); err != nil {
		return nil, err
	}

	steps := make([]Step, 0, len(ids))
	for i, id := range ids {
		p := b.catalog.MustLookup(id)

		if p.UsesSlot(persona.SlotPost) && strings.TrimSpace(post) == "" {
			return nil, &ValidationError{Reason: fmt.Sprintf("agent %q needs the post text, but the post is empty", id)}
		}

		task, err := p.Render(persona.TaskSlots{
			Post:     post,
			HasPrior: i > 0,
			Position: i + 1,
			Total:    len(ids),
		})
		if err != nil {
			return nil, &ValidationError{Reason: err.Error()}
		}

		stepTools, err := b.toolsFor(p)
		if err != nil {
			return nil, err
		}

		steps = append(steps, Step{
			Index:   i + 1,
			Persona: p,
			Task:    task,
			Tools:   stepTools,
		})
	}

	return steps, nil
}

// toolsFor restituisce i tool richiesti dalla persona
func (b *Builder) toolsFor(p persona.PersonaConfig) ([]tools.Tool, error) {
	var out []tools.Tool

	if p.NeedsSearch {
		if b.search == nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("agent %q needs web search", p.ID), Missing: []string{"search tool"}}
		}
		out = append(out, b.search)
	}

	if p.NeedsGuidelines {
		if b.document == nil {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("agent %q needs the style guidelines", p.ID), Missing: []string{"document tool"}}
		}
		out = append(out, b.document)
	}

	return out, nil
}
