package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/biodoia/smartwatcher/internal/tools"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyAnswer        = errors.New("model returned an empty answer")
	ErrToolRoundsExceeded = errors.New("too many tool rounds")
	ErrUnknownTool        = errors.New("unknown tool")
	ErrToolsUnsupported   = errors.New("provider does not support tools")
)

// Invocation descrive una singola chiamata di persona
type Invocation struct {
	PersonaID      string
	Role           string
	Goal           string
	Backstory      string
	Task           string
	ExpectedOutput string

	// Tool disponibili per questa invocazione
	Tools []tools.Tool

	// Output degli step precedenti, dal più vecchio
	Prior []PriorOutput

	// OnToolCall viene chiamato dopo ogni esecuzione di tool
	OnToolCall func(ToolCallRecord)
}

// ToolCallRecord registra una chiamata a tool
type ToolCallRecord struct {
	Round     int           `json:"round"`
	Tool      string        `json:"tool"`
	Arguments string        `json:"arguments"`
	Result    string        `json:"result,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Result è il risultato di un'invocazione
type Result struct {
	Output    string           `json:"output"`
	ToolCalls []ToolCallRecord `json:"tool_calls,omitempty"`
	Usage     providers.Usage  `json:"usage"`
	Model     string           `json:"model"`
}

// Runner esegue invocazioni di persona su un provider
type Runner struct {
	provider      providers.Provider
	maxToolRounds int
}

// NewRunner crea un Runner. maxToolRounds limita i giri di tool calling per invocazione.
func NewRunner(provider providers.Provider, maxToolRounds int) *Runner {
	if maxToolRounds < 0 {
		maxToolRounds = 0
	}
	return &Runner{
		provider:      provider,
		maxToolRounds: maxToolRounds,
	}
}

// Provider restituisce il provider sottostante
func (r *Runner) Provider() providers.Provider {
	return r.provider
}

// Invoke esegue la persona e restituisce la risposta finale
func (r *Runner) Invoke(ctx context.Context, inv *Invocation) (*Result, error) {
	if len(inv.Tools) > 0 && !r.provider.SupportsFeature(providers.FeatureTools) {
		return nil, fmt.Errorf("%w: %s", ErrToolsUnsupported, r.provider.Name())
	}

	req := &providers.ChatRequest{
		Model: r.provider.Model(),
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: systemPrompt(inv)},
			{Role: providers.RoleUser, Content: userPrompt(inv)},
		},
		Tools: toolDefinitions(inv.Tools),
	}

	result := &Result{Model: r.provider.Model()}

	for round := 0; ; round++ {
		resp, err := r.provider.ChatCompletion(ctx, req)
		if err != nil {
			return nil, err
		}
		addUsage(&result.Usage, resp.Usage)

		msg, err := resp.FirstMessage()
		if err != nil {
			return nil, err
		}

		if len(msg.ToolCalls) == 0 {
			out := strings.TrimSpace(msg.Content)
			if out == "" {
				return nil, ErrEmptyAnswer
			}
			result.Output = out
			return result, nil
		}

		if round >= r.maxToolRounds {
			return nil, fmt.Errorf("%w: limit is %d", ErrToolRoundsExceeded, r.maxToolRounds)
		}

		req.Messages = append(req.Messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: msg.ToolCalls,
		})

		for _, tc := range msg.ToolCalls {
			record, err := r.runTool(ctx, inv, round+1, tc)
			result.ToolCalls = append(result.ToolCalls, record)
			if inv.OnToolCall != nil {
				inv.OnToolCall(record)
			}
			if err != nil {
				return nil, err
			}

			req.Messages = append(req.Messages, providers.Message{
				Role:       providers.RoleTool,
				Name:       tc.Function.Name,
				ToolCallID: tc.ID,
				Content:    record.Result,
			})
		}
	}
}

// runTool esegue una singola tool call richiesta dal modello
func (r *Runner) runTool(ctx context.Context, inv *Invocation, round int, tc providers.ToolCall) (ToolCallRecord, error) {
	record := ToolCallRecord{
		Round:     round,
		Tool:      tc.Function.Name,
		Arguments: tc.Function.Arguments,
	}

	fail := func(err error) (ToolCallRecord, error) {
		record.Error = err.Error()
		return record, err
	}

	tool, ok := tools.Find(inv.Tools, tc.Function.Name)
	if !ok {
		return fail(fmt.Errorf("%w: %q", ErrUnknownTool, tc.Function.Name))
	}

	args := map[string]any{}
	if s := strings.TrimSpace(tc.Function.Arguments); s != "" {
		if err := json.Unmarshal([]byte(s), &args); err != nil {
			return fail(fmt.Errorf("%w: %s: %v", tools.ErrInvalidArguments, tc.Function.Name, err))
		}
	}

	start := time.Now()
	out, err := tool.Execute(ctx, args)
	record.Duration = time.Since(start)
	if err != nil {
		return fail(fmt.Errorf("tool %s failed: %w", tc.Function.Name, err))
	}
	record.Result = out

	log.Debug().
		Str("persona", inv.PersonaID).
		Str("tool", tc.Function.Name).
		Int("round", round).
		Dur("duration", record.Duration).
		Msg("Tool call completed")

	return record, nil
}

func toolDefinitions(set []tools.Tool) []providers.Tool {
	if len(set) == 0 {
		return nil
	}
	defs := make([]providers.Tool, len(set))
	for i, t := range set {
		defs[i] = providers.Tool{
			Type: "function",
			Function: providers.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		}
	}
	return defs
}

func addUsage(total *providers.Usage, u providers.Usage) {
	total.PromptTokens += u.PromptTokens
	total.CompletionTokens += u.CompletionTokens
	total.TotalTokens += u.TotalTokens
}
