// Package openai implementa un provider per endpoint OpenAI-compatible
// (OpenAI, OpenRouter, gateway locali) con tool calling e JSON mode.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/biodoia/smartwatcher/internal/providers"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const ProviderName = "openai"

const chatCompletionsPath = "/v1/chat/completions"

// Client implementa un client OpenAI-compatible
type Client struct {
	*providers.BaseProvider
	httpClient  *resty.Client
	temperature float64
	maxTokens   int
}

// NewClient crea un nuovo client OpenAI
func NewClient(model string, s providers.Settings) *Client {
	base := providers.NewBaseProvider(ProviderName, model, s.BaseURL, s.APIKey)
	base.SetFeature(providers.FeatureTools, true)
	base.SetFeature(providers.FeatureJSONMode, true)
	base.SetTimeout(s.Timeout)

	client := &Client{
		BaseProvider: base,
		httpClient:   resty.New(),
		temperature:  s.Temperature,
		maxTokens:    s.MaxOutputTokens,
	}

	client.configureHTTPClient()
	return client
}

// Factory è la providers.Factory per gli endpoint OpenAI-compatible
func Factory(_ context.Context, model string, s providers.Settings) (providers.Provider, error) {
	if s.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	return NewClient(model, s), nil
}

// configureHTTPClient configura il client HTTP.
// Nessun retry: una chiamata fallita fa fallire lo step.
func (c *Client) configureHTTPClient() {
	c.httpClient.
		SetBaseURL(c.GetBaseURL()).
		SetTimeout(c.GetTimeout()).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	if c.GetAPIKey() != "" {
		c.httpClient.SetAuthToken(c.GetAPIKey())
	}

	c.httpClient.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		log.Debug().
			Str("provider", c.Name()).
			Str("method", req.Method).
			Str("url", req.URL).
			Msg("OpenAI API request")
		return nil
	})

	c.httpClient.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("provider", c.Name()).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("OpenAI API response")
		return nil
	})
}

// ChatCompletion esegue una richiesta di chat completion
func (c *Client) ChatCompletion(ctx context.Context, req *providers.ChatRequest) (*providers.ChatResponse, error) {
	openaiReq := c.convertToOpenAIRequest(req)

	var openaiResp ChatCompletionResponse
	var errResp ErrorResponse

	start := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(openaiReq).
		SetResult(&openaiResp).
		SetError(&errResp).
		Post(chatCompletionsPath)

	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.IsError() {
		return nil, c.handleErrorResponse(resp.StatusCode(), &errResp)
	}

	log.Debug().
		Str("model", openaiResp.Model).
		Int("total_tokens", openaiResp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("Chat completion done")

	return c.convertFromOpenAIResponse(&openaiResp), nil
}

// convertToOpenAIRequest converte una richiesta generica in formato OpenAI
func (c *Client) convertToOpenAIRequest(req *providers.ChatRequest) *ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = c.Model()
	}

	temperature := c.temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	openaiReq := &ChatCompletionRequest{
		Model:       model,
		Temperature: &temperature,
		MaxTokens:   req.MaxTokens,
	}
	if openaiReq.MaxTokens == nil && c.maxTokens > 0 {
		maxTokens := c.maxTokens
		openaiReq.MaxTokens = &maxTokens
	}

	openaiReq.Messages = make([]ChatMessage, len(req.Messages))
	for i, msg := range req.Messages {
		content := msg.Content
		openaiReq.Messages[i] = ChatMessage{
			Role:       msg.Role,
			Content:    &content,
			Name:       msg.Name,
			ToolCallID: msg.ToolCallID,
		}

		if len(msg.ToolCalls) > 0 {
			if content == "" {
				openaiReq.Messages[i].Content = nil
			}
			openaiReq.Messages[i].ToolCalls = make([]ToolCall, len(msg.ToolCalls))
			for j, tc := range msg.ToolCalls {
				openaiReq.Messages[i].ToolCalls[j] = ToolCall{
					ID:   tc.ID,
					Type: "function",
					Function: FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}
	}

	if len(req.Tools) > 0 {
		openaiReq.Tools = make([]Tool, len(req.Tools))
		for i, tool := range req.Tools {
			openaiReq.Tools[i] = Tool{
				Type: "function",
				Function: Function{
					Name:        tool.Function.Name,
					Description: tool.Function.Description,
					Parameters:  tool.Function.Parameters,
				},
			}
		}
		openaiReq.ToolChoice = "auto"
	}

	if req.ResponseFormat != nil {
		openaiReq.ResponseFormat = &ResponseFormat{
			Type: req.ResponseFormat.Type,
		}
	}

	return openaiReq
}

// convertFromOpenAIResponse converte una risposta OpenAI in formato generico
func (c *Client) convertFromOpenAIResponse(resp *ChatCompletionResponse) *providers.ChatResponse {
	choices := make([]providers.Choice, len(resp.Choices))
	for i, choice := range resp.Choices {
		msg := providers.Message{
			Role: choice.Message.Role,
			Name: choice.Message.Name,
		}
		if choice.Message.Content != nil {
			msg.Content = *choice.Message.Content
		}

		if len(choice.Message.ToolCalls) > 0 {
			msg.ToolCalls = make([]providers.ToolCall, len(choice.Message.ToolCalls))
			for j, tc := range choice.Message.ToolCalls {
				msg.ToolCalls[j] = providers.ToolCall{
					ID:   tc.ID,
					Type: tc.Type,
					Function: providers.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				}
			}
		}

		choices[i] = providers.Choice{
			Index:        choice.Index,
			Message:      msg,
			FinishReason: choice.FinishReason,
		}
	}

	return &providers.ChatResponse{
		ID:      resp.ID,
		Model:   resp.Model,
		Choices: choices,
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}
}

// handleErrorResponse gestisce gli errori dalla risposta API
func (c *Client) handleErrorResponse(statusCode int, errResp *ErrorResponse) error {
	baseErr := fmt.Errorf("API error: status %d", statusCode)
	if errResp.Error.Message != "" {
		baseErr = fmt.Errorf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %v", providers.ErrInvalidAPIKey, baseErr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", providers.ErrRateLimitExceeded, baseErr)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %v", providers.ErrModelNotFound, baseErr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %v", providers.ErrInvalidRequest, baseErr)
	case http.StatusServiceUnavailable:
		return fmt.Errorf("%w: %v", providers.ErrServiceUnavailable, baseErr)
	default:
		return baseErr
	}
}
