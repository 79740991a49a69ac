// Package advisor chiede al modello un parere sull'ordine delle persona
// prima di eseguire la pipeline. Non tocca mai lo stato delle run.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/rs/zerolog/log"
)

const instruction = `You review multi-agent pipelines before they run.
Agents run strictly in the given order and each one sees the output of all the agents before it.
Judge whether the order is sound: agents that gather or verify data should come before agents that draft or polish the reply.
Reply with a single JSON object and nothing else, using exactly these fields:
{"sound": <true|false>, "verdict": "<one or two sentences>", "suggestions": ["<short suggestion>", ...]}`

// RoleSummary descrive una persona della pipeline proposta
type RoleSummary struct {
	ID   string `json:"id"`
	Role string `json:"role"`
	Goal string `json:"goal"`
}

// Critique è il parere strutturato dell'advisor
type Critique struct {
	Sound       bool     `json:"sound"`
	Verdict     string   `json:"verdict"`
	Suggestions []string `json:"suggestions"`
}

// AdvisoryError avvolge qualunque fallimento della critica
type AdvisoryError struct {
	Err error
}

func (e *AdvisoryError) Error() string {
	return "advisory error: " + e.Err.Error()
}

func (e *AdvisoryError) Unwrap() error {
	return e.Err
}

// ErrMalformedCritique indica una risposta che non rispetta lo schema
var ErrMalformedCritique = errors.New("malformed critique")

// Advisor esegue la critica con una singola chiamata stateless
type Advisor struct {
	provider providers.Provider
	timeout  time.Duration
}

// New crea un advisor. timeout <= 0 non imposta limiti oltre al context.
func New(provider providers.Provider, timeout time.Duration) *Advisor {
	return &Advisor{provider: provider, timeout: timeout}
}

// Critique valuta l'ordine delle persona per il post dato
func (a *Advisor) Critique(ctx context.Context, post string, roles []RoleSummary) (*Critique, error) {
	if len(roles) == 0 {
		return nil, &AdvisoryError{Err: errors.New("no agents to review")}
	}

	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	temperature := 0.2
	req := &providers.ChatRequest{
		Model:       a.provider.Model(),
		Temperature: &temperature,
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: instruction},
			{Role: providers.RoleUser, Content: describe(post, roles)},
		},
	}
	if a.provider.SupportsFeature(providers.FeatureJSONMode) {
		req.ResponseFormat = &providers.ResponseFormat{Type: "json_object"}
	}

	start := time.Now()
	resp, err := a.provider.ChatCompletion(ctx, req)
	if err != nil {
		return nil, &AdvisoryError{Err: err}
	}

	msg, err := resp.FirstMessage()
	if err != nil {
		return nil, &AdvisoryError{Err: err}
	}

	critique, err := Parse(msg.Content)
	if err != nil {
		log.Warn().Err(err).Str("content", truncate(msg.Content, 200)).Msg("Advisor returned malformed critique")
		return nil, &AdvisoryError{Err: err}
	}

	log.Info().
		Bool("sound", critique.Sound).
		Int("agents", len(roles)).
		Dur("latency", time.Since(start)).
		Msg("Pipeline critique completed")

	return critique, nil
}

// rawCritique usa puntatori per distinguere i campi mancanti
type rawCritique struct {
	Sound       *bool    `json:"sound"`
	Verdict     *string  `json:"verdict"`
	Suggestions []string `json:"suggestions"`
}

// Parse decodifica una critica in modo stretto: niente campi extra,
// sound e verdict obbligatori, un solo oggetto JSON.
func Parse(content string) (*Critique, error) {
	body := stripFences(content)
	if body == "" {
		return nil, fmt.Errorf("%w: empty response", ErrMalformedCritique)
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.DisallowUnknownFields()

	var raw rawCritique
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCritique, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON object", ErrMalformedCritique)
	}

	if raw.Sound == nil {
		return nil, fmt.Errorf("%w: missing \"sound\"", ErrMalformedCritique)
	}
	if raw.Verdict == nil || strings.TrimSpace(*raw.Verdict) == "" {
		return nil, fmt.Errorf("%w: missing \"verdict\"", ErrMalformedCritique)
	}

	suggestions := make([]string, 0, len(raw.Suggestions))
	for _, s := range raw.Suggestions {
		if s = strings.TrimSpace(s); s != "" {
			suggestions = append(suggestions, s)
		}
	}

	return &Critique{
		Sound:       *raw.Sound,
		Verdict:     strings.TrimSpace(*raw.Verdict),
		Suggestions: suggestions,
	}, nil
}

// describe costruisce il messaggio utente con il post e l'ordine proposto
func describe(post string, roles []RoleSummary) string {
	var buf bytes.Buffer
	buf.WriteString("Post to reply to:\n")
	buf.WriteString(strings.TrimSpace(post))
	buf.WriteString("\n\nProposed order:\n")
	for i, r := range roles {
		fmt.Fprintf(&buf, "%d. %s (%s)", i+1, r.Role, r.ID)
		if r.Goal != "" {
			fmt.Fprintf(&buf, ": %s", r.Goal)
		}
		buf.WriteString("\n")
	}
	return buf.String()
}

// stripFences rimuove un eventuale blocco ```json ... ``` attorno alla risposta
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		return ""
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
