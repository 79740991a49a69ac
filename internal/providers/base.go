// Package providers definisce i tipi generici di chat completion e
// l'interfaccia comune ai backend LLM (Gemini, OpenAI-compatible).
package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidAPIKey      = errors.New("invalid API key")
	ErrRateLimitExceeded  = errors.New("rate limit exceeded")
	ErrModelNotFound      = errors.New("model not found")
	ErrInvalidRequest     = errors.New("invalid request")
	ErrServiceUnavailable = errors.New("service unavailable")
	ErrEmptyResponse      = errors.New("empty response from model")
	ErrInvalidModelRef    = errors.New("invalid model reference")
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Provider è l'interfaccia base per tutti i provider LLM
type Provider interface {
	// Name restituisce il nome del provider
	Name() string

	// Model restituisce il modello usato di default
	Model() string

	// ChatCompletion esegue una richiesta di chat completion
	ChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// SupportsFeature verifica se il provider supporta una specifica feature
	SupportsFeature(feature Feature) bool
}

// Feature rappresenta una caratteristica del provider
type Feature string

const (
	FeatureTools     Feature = "tools"
	FeatureJSONMode  Feature = "json_mode"
	FeatureSystemMsg Feature = "system_message"
)

// ChatRequest rappresenta una richiesta generica di chat completion
type ChatRequest struct {
	Model       string    `json:"model,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`

	// Tool calling
	Tools []Tool `json:"tools,omitempty"`

	// JSON mode
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatResponse rappresenta una risposta generica di chat completion
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// Message rappresenta un messaggio nella conversazione
type Message struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Choice rappresenta una scelta nella risposta
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage rappresenta le statistiche di utilizzo
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Tool rappresenta uno strumento disponibile
type Tool struct {
	Type     string   `json:"type"` // "function"
	Function Function `json:"function"`
}

// Function rappresenta una funzione callable
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall rappresenta una chiamata a uno strumento
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall rappresenta una chiamata a funzione
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

// ResponseFormat specifica il formato della risposta
type ResponseFormat struct {
	Type string `json:"type"` // "text" o "json_object"
}

// FirstMessage restituisce il messaggio della prima choice
func (r *ChatResponse) FirstMessage() (Message, error) {
	if r == nil || len(r.Choices) == 0 {
		return Message{}, ErrEmptyResponse
	}
	return r.Choices[0].Message, nil
}

// ModelRef identifica provider e modello, es. "gemini/gemini-2.5-pro"
type ModelRef struct {
	Provider string
	Model    string
}

func (m ModelRef) String() string {
	return m.Provider + "/" + m.Model
}

// ParseModelRef separa provider e nome del modello
func ParseModelRef(s string) (ModelRef, error) {
	s = strings.TrimSpace(s)
	provider, model, ok := strings.Cut(s, "/")
	provider = strings.ToLower(strings.TrimSpace(provider))
	model = strings.TrimSpace(model)
	if !ok || provider == "" || model == "" {
		return ModelRef{}, fmt.Errorf("%w: %q (expected provider/model)", ErrInvalidModelRef, s)
	}
	return ModelRef{Provider: provider, Model: model}, nil
}

// BaseProvider fornisce funzionalità comuni per i provider
type BaseProvider struct {
	name         string
	model        string
	baseURL      string
	apiKey       string
	timeout      time.Duration
	capabilities map[Feature]bool
}

// NewBaseProvider crea un nuovo BaseProvider
func NewBaseProvider(name, model, baseURL, apiKey string) *BaseProvider {
	return &BaseProvider{
		name:    name,
		model:   model,
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: 2 * time.Minute,
		capabilities: map[Feature]bool{
			FeatureTools:     false,
			FeatureJSONMode:  false,
			FeatureSystemMsg: true,
		},
	}
}

// Name restituisce il nome del provider
func (b *BaseProvider) Name() string {
	return b.name
}

// Model restituisce il modello di default
func (b *BaseProvider) Model() string {
	return b.model
}

// SupportsFeature verifica se il provider supporta una feature
func (b *BaseProvider) SupportsFeature(feature Feature) bool {
	supported, exists := b.capabilities[feature]
	return exists && supported
}

// SetFeature imposta il supporto per una feature
func (b *BaseProvider) SetFeature(feature Feature, supported bool) {
	b.capabilities[feature] = supported
}

// SetTimeout imposta il timeout delle richieste
func (b *BaseProvider) SetTimeout(timeout time.Duration) {
	if timeout > 0 {
		b.timeout = timeout
	}
}

// GetBaseURL restituisce la base URL
func (b *BaseProvider) GetBaseURL() string {
	return b.baseURL
}

// GetAPIKey restituisce la API key
func (b *BaseProvider) GetAPIKey() string {
	return b.apiKey
}

// GetTimeout restituisce il timeout
func (b *BaseProvider) GetTimeout() time.Duration {
	return b.timeout
}
