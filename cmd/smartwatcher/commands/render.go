package commands

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/biodoia/smartwatcher/internal/advisor"
	"github.com/biodoia/smartwatcher/internal/pipeline"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FFFF")).
			Bold(true)
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF10F0")).
			Bold(true)
	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#808080"))
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#00FF00"))
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF0000")).
			Bold(true)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#FF10F0")).
			Padding(1, 2)
)

// eventPrinter stampa gli eventi di una run man mano che arrivano
type eventPrinter struct {
	mu      sync.Mutex
	out     io.Writer
	verbose bool
}

func newEventPrinter(out io.Writer, verbose bool) *eventPrinter {
	return &eventPrinter{out: out, verbose: verbose}
}

// Handle è un pipeline.Subscriber
func (p *eventPrinter) Handle(ev pipeline.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	progress := fmt.Sprintf("[%d/%d]", ev.StepIndex, ev.TotalSteps)

	switch ev.Type {
	case pipeline.EventRunStarted:
		fmt.Fprintln(p.out, titleStyle.Render(ev.Message)+" "+mutedStyle.Render(ev.RunID))
	case pipeline.EventStepStarted:
		fmt.Fprintln(p.out, stepStyle.Render(progress)+" "+ev.Role+mutedStyle.Render(" ("+ev.PersonaID+")"))
	case pipeline.EventToolCall:
		line := fmt.Sprintf("    %s %s", ev.Tool, ev.Message)
		if ev.Error != "" {
			fmt.Fprintln(p.out, errorStyle.Render(line+" failed: "+ev.Error))
		} else {
			fmt.Fprintln(p.out, mutedStyle.Render(line))
		}
	case pipeline.EventStepCompleted:
		fmt.Fprintln(p.out, successStyle.Render(fmt.Sprintf("%s done in %dms", progress, ev.DurationMS)))
		if p.verbose {
			fmt.Fprintln(p.out, mutedStyle.Render(indent(ev.Output)))
		}
	case pipeline.EventStepFailed:
		fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("%s %s failed: %s", progress, ev.PersonaID, ev.Error)))
	case pipeline.EventRunCompleted:
		fmt.Fprintln(p.out, successStyle.Render(fmt.Sprintf("Run completed in %dms", ev.DurationMS)))
	case pipeline.EventRunFailed:
		fmt.Fprintln(p.out, errorStyle.Render("Run failed: "+ev.Error))
	}
}

// renderReply incornicia la risposta finale
func renderReply(output string) string {
	return boxStyle.Render(titleStyle.Render("Reply") + "\n\n" + output)
}

// renderCritique formatta il parere dell'advisor
func renderCritique(c *advisor.Critique) string {
	var sb strings.Builder
	if c.Sound {
		sb.WriteString(successStyle.Render("Order looks sound"))
	} else {
		sb.WriteString(errorStyle.Render("Order needs changes"))
	}
	sb.WriteString("\n\n")
	sb.WriteString(c.Verdict)
	for _, s := range c.Suggestions {
		sb.WriteString("\n  - ")
		sb.WriteString(s)
	}
	return boxStyle.Render(sb.String())
}

func indent(s string) string {
	return "    " + strings.ReplaceAll(strings.TrimSpace(s), "\n", "\n    ")
}
