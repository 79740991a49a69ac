package openai

// OpenAI API Types - Compatibili con OpenAI API standard

// ChatCompletionRequest rappresenta una richiesta OpenAI API
type ChatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`

	// Tool calling
	Tools      []Tool `json:"tools,omitempty"`
	ToolChoice string `json:"tool_choice,omitempty"` // "none" o "auto"

	// Response format
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// ChatCompletionResponse rappresenta una risposta OpenAI API
type ChatCompletionResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
}

// ChatMessage rappresenta un messaggio nella conversazione.
// Content è un puntatore perché i messaggi assistant con tool_calls possono averlo null.
type ChatMessage struct {
	Role       string     `json:"role"` // system, user, assistant, tool
	Content    *string    `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Choice rappresenta una scelta nella risposta
type Choice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", "tool_calls", "content_filter"
}

// Usage rappresenta le statistiche di utilizzo token
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Tool rappresenta uno strumento disponibile
type Tool struct {
	Type     string   `json:"type"` // sempre "function"
	Function Function `json:"function"`
}

// Function rappresenta una funzione callable
type Function struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"` // JSON Schema
}

// ToolCall rappresenta una chiamata a uno strumento
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // sempre "function"
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

// ErrorResponse rappresenta un errore dall'API
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contiene i dettagli dell'errore
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    any    `json:"code,omitempty"` // può essere string o int
}
