// Package persona contiene il catalogo statico delle persona disponibili
// per le pipeline: ruolo, obiettivo, backstory, template del task e
// capability richieste (ricerca web, linee guida di stile).
//
// Il catalogo è costruito all'avvio e non viene mai modificato dopo,
// quindi può essere condiviso tra più run senza sincronizzazione.
package persona

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// Slot names accepted inside a task template.
const (
	SlotPost     = "Post"
	SlotHasPrior = "HasPrior"
	SlotPosition = "Position"
	SlotTotal    = "Total"
)

var knownSlots = map[string]bool{
	SlotPost:     true,
	SlotHasPrior: true,
	SlotPosition: true,
	SlotTotal:    true,
}

// TaskSlots sono i valori sostituibili in un template di task
type TaskSlots struct {
	// Post è il testo originale del post
	Post string
	// HasPrior è true se almeno uno step precedente ha prodotto output
	HasPrior bool
	// Position è la posizione 1-based dello step nella pipeline
	Position int
	// Total è il numero di step della pipeline
	Total int
}

// PersonaConfig descrive una persona del catalogo
type PersonaConfig struct {
	ID              string `yaml:"id" json:"id"`
	Role            string `yaml:"role" json:"role"`
	Goal            string `yaml:"goal" json:"goal"`
	Backstory       string `yaml:"backstory" json:"backstory"`
	TaskTemplate    string `yaml:"task" json:"task"`
	ExpectedOutput  string `yaml:"expected_output" json:"expected_output"`
	NeedsSearch     bool   `yaml:"needs_search" json:"needs_search"`
	NeedsGuidelines bool   `yaml:"needs_guidelines" json:"needs_guidelines"`

	tmpl  *template.Template
	slots map[string]bool
}

// compile analizza il template e verifica il contratto degli slot
func (p *PersonaConfig) compile() error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("persona id must not be empty")
	}
	if strings.TrimSpace(p.Role) == "" {
		return fmt.Errorf("persona %q: role must not be empty", p.ID)
	}
	if strings.TrimSpace(p.TaskTemplate) == "" {
		return fmt.Errorf("persona %q: task template must not be empty", p.ID)
	}

	tmpl, err := template.New(p.ID).Option("missingkey=error").Parse(p.TaskTemplate)
	if err != nil {
		return fmt.Errorf("persona %q: invalid task template: %w", p.ID, err)
	}

	slots := make(map[string]bool)
	collectFields(tmpl.Tree.Root, slots)

	var unknown []string
	for name := range slots {
		if !knownSlots[name] {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("persona %q: unknown template slots: %s", p.ID, strings.Join(unknown, ", "))
	}

	p.tmpl = tmpl
	p.slots = slots

	// Dry run with placeholder values so that execution errors surface at load time.
	if _, err := p.Render(TaskSlots{Post: "post", HasPrior: true, Position: 2, Total: 2}); err != nil {
		return err
	}

	return nil
}

// UsesSlot indica se il template del task referenzia lo slot indicato
func (p PersonaConfig) UsesSlot(name string) bool {
	return p.slots[name]
}

// Render sostituisce gli slot nel template del task
func (p PersonaConfig) Render(slots TaskSlots) (string, error) {
	if p.tmpl == nil {
		return "", fmt.Errorf("persona %q: template not compiled", p.ID)
	}

	var buf bytes.Buffer
	if err := p.tmpl.Execute(&buf, slots); err != nil {
		return "", fmt.Errorf("persona %q: render task: %w", p.ID, err)
	}
	return buf.String(), nil
}

// collectFields raccoglie i nomi dei campi usati nel template
func collectFields(node parse.Node, out map[string]bool) {
	switch n := node.(type) {
	case nil:
		return
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectFields(child, out)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, out)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			collectFields(cmd, out)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, out)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			out[n.Ident[0]] = true
		}
	case *parse.VariableNode:
		// $ is the root data, so $.Post names the same slot as .Post
		if len(n.Ident) > 1 && n.Ident[0] == "$" {
			out[n.Ident[1]] = true
		}
	case *parse.ChainNode:
		collectFields(n.Node, out)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, out)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, out)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, out)
	case *parse.TemplateNode:
		collectFields(n.Pipe, out)
	}
}

func collectBranch(b *parse.BranchNode, out map[string]bool) {
	collectFields(b.Pipe, out)
	collectFields(b.List, out)
	collectFields(b.ElseList, out)
}
