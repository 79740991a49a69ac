// Package gemini implementa il provider Google Gemini tramite
// github.com/google/generative-ai-go, con function calling e JSON mode.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

const ProviderName = "gemini"

const (
	roleUser  = "user"
	roleModel = "model"
)

// Client implementa providers.Provider per Gemini
type Client struct {
	*providers.BaseProvider
	client      *genai.Client
	temperature float64
	maxTokens   int
}

// NewClient crea un nuovo client Gemini.
// genai.NewClient non effettua chiamate di rete.
func NewClient(ctx context.Context, model string, s providers.Settings) (*Client, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api key required", providers.ErrInvalidAPIKey)
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(s.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	base := providers.NewBaseProvider(ProviderName, model, "", s.APIKey)
	base.SetFeature(providers.FeatureTools, true)
	base.SetFeature(providers.FeatureJSONMode, true)
	base.SetTimeout(s.Timeout)

	return &Client{
		BaseProvider: base,
		client:       gc,
		temperature:  s.Temperature,
		maxTokens:    s.MaxOutputTokens,
	}, nil
}

// Factory è la providers.Factory per Gemini
func Factory(ctx context.Context, model string, s providers.Settings) (providers.Provider, error) {
	return NewClient(ctx, model, s)
}

// ChatCompletion esegue una richiesta di chat completion
func (c *Client) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	name := req.Model
	if name == "" {
		name = c.Model()
	}

	model := c.client.GenerativeModel(name)
	c.configureModel(model, req)

	system, contents, err := convertMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	if len(contents) == 0 {
		return nil, fmt.Errorf("%w: no user message", providers.ErrInvalidRequest)
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	ctx, cancel := context.WithTimeout(ctx, c.GetTimeout())
	defer cancel()

	session := model.StartChat()
	session.History = contents[:len(contents)-1]

	start := time.Now()
	resp, err := session.SendMessage(ctx, contents[len(contents)-1].Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini api error: %w", err)
	}

	out, err := convertResponse(resp, name)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("model", name).
		Int("total_tokens", out.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("Gemini completion done")

	return out, nil
}

// Close chiude il client Gemini
func (c *Client) Close() error {
	return c.client.Close()
}

// configureModel applica temperatura, limiti, tool e formato di risposta
func (c *Client) configureModel(model *genai.GenerativeModel, req *providers.ChatRequest) {
	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	model.SetTemperature(float32(temperature))

	maxTokens := c.maxTokens
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, len(req.Tools))
		for i, tool := range req.Tools {
			decls[i] = &genai.FunctionDeclaration{
				Name:        tool.Function.Name,
				Description: tool.Function.Description,
				Parameters:  toSchema(tool.Function.Parameters),
			}
		}
		model.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if req.ResponseFormat != nil && req.ResponseFormat.Type == "json_object" {
		model.ResponseMIMEType = "application/json"
	}
}

// convertMessages converte i messaggi generici in contenuti Gemini.
// I messaggi system diventano la system instruction.
func convertMessages(messages []providers.Message) (string, []*genai.Content, error) {
	var system []string
	contents := make([]*genai.Content, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)

		case providers.RoleUser:
			contents = append(contents, &genai.Content{
				Role:  roleUser,
				Parts: []genai.Part{genai.Text(msg.Content)},
			})

		case providers.RoleAssistant:
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				args := map[string]any{}
				if tc.Function.Arguments != "" {
					if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
						return "", nil, fmt.Errorf("%w: tool call %s arguments: %v", providers.ErrInvalidRequest, tc.Function.Name, err)
					}
				}
				parts = append(parts, genai.FunctionCall{Name: tc.Function.Name, Args: args})
			}
			if len(parts) > 0 {
				contents = append(contents, &genai.Content{Role: roleModel, Parts: parts})
			}

		case providers.RoleTool:
			part := genai.FunctionResponse{
				Name:     msg.Name,
				Response: map[string]any{"content": msg.Content},
			}
			// consecutive tool results go into the same turn
			if n := len(contents); n > 0 && contents[n-1].Role == roleUser && isFunctionResponse(contents[n-1]) {
				contents[n-1].Parts = append(contents[n-1].Parts, part)
				continue
			}
			contents = append(contents, &genai.Content{Role: roleUser, Parts: []genai.Part{part}})

		default:
			return "", nil, fmt.Errorf("%w: unknown role %q", providers.ErrInvalidRequest, msg.Role)
		}
	}

	return strings.Join(system, "\n\n"), contents, nil
}

func isFunctionResponse(c *genai.Content) bool {
	if len(c.Parts) == 0 {
		return false
	}
	_, ok := c.Parts[0].(genai.FunctionResponse)
	return ok
}

// convertResponse converte la risposta Gemini in formato generico
func convertResponse(resp *genai.GenerateContentResponse, model string) (*providers.ChatResponse, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, providers.ErrEmptyResponse
	}

	candidate := resp.Candidates[0]
	msg := providers.Message{Role: providers.RoleAssistant}

	if candidate.Content != nil {
		var text strings.Builder
		for i, part := range candidate.Content.Parts {
			switch p := part.(type) {
			case genai.Text:
				text.WriteString(string(p))
			case genai.FunctionCall:
				args, err := json.Marshal(p.Args)
				if err != nil {
					return nil, fmt.Errorf("failed to encode function call arguments: %w", err)
				}
				msg.ToolCalls = append(msg.ToolCalls, providers.ToolCall{
					ID:   fmt.Sprintf("call_%d", i),
					Type: "function",
					Function: providers.FunctionCall{
						Name:      p.Name,
						Arguments: string(args),
					},
				})
			}
		}
		msg.Content = text.String()
	}

	if msg.Content == "" && len(msg.ToolCalls) == 0 {
		if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
			return nil, fmt.Errorf("%w: finish reason %s", providers.ErrEmptyResponse, candidate.FinishReason)
		}
		return nil, providers.ErrEmptyResponse
	}

	out := &providers.ChatResponse{
		Model: model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      msg,
			FinishReason: strings.ToLower(candidate.FinishReason.String()),
		}},
	}

	if resp.UsageMetadata != nil {
		out.Usage = providers.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}

	return out, nil
}

// toSchema converte uno schema JSON (come map) in genai.Schema
func toSchema(m map[string]any) *genai.Schema {
	if m == nil {
		return nil
	}

	s := &genai.Schema{Type: schemaType(m["type"])}
	if d, ok := m["description"].(string); ok {
		s.Description = d
	}

	if props, ok := m["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, raw := range props {
			if pm, ok := raw.(map[string]any); ok {
				s.Properties[name] = toSchema(pm)
			}
		}
	}

	if items, ok := m["items"].(map[string]any); ok {
		s.Items = toSchema(items)
	}

	switch req := m["required"].(type) {
	case []string:
		s.Required = append([]string(nil), req...)
	case []any:
		for _, r := range req {
			if name, ok := r.(string); ok {
				s.Required = append(s.Required, name)
			}
		}
	}

	switch enum := m["enum"].(type) {
	case []string:
		s.Enum = append([]string(nil), enum...)
	case []any:
		for _, e := range enum {
			if v, ok := e.(string); ok {
				s.Enum = append(s.Enum, v)
			}
		}
	}

	return s
}

func schemaType(v any) genai.Type {
	t, _ := v.(string)
	switch t {
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

var _ providers.Provider = (*Client)(nil)
