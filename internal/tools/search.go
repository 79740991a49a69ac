package tools

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/biodoia/smartwatcher/pkg/cache"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const (
	SearchToolName = "web_search"

	defaultSearchEndpoint = "https://google.serper.dev/search"
	maxSearchResults      = 20
)

// SearchConfig configura il tool di ricerca
type SearchConfig struct {
	APIKey     string
	Endpoint   string
	MaxResults int
	Timeout    time.Duration
	CacheTTL   time.Duration
}

// SearchTool esegue ricerche web tramite Serper
type SearchTool struct {
	httpClient *resty.Client
	apiKey     string
	endpoint   string
	maxResults int
	cache      cache.Cache
	cacheTTL   time.Duration
}

// serperRequest è il body della richiesta Serper
type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num"`
}

// serperResponse contiene i campi della risposta Serper che usiamo
type serperResponse struct {
	AnswerBox *struct {
		Title   string `json:"title"`
		Answer  string `json:"answer"`
		Snippet string `json:"snippet"`
	} `json:"answerBox,omitempty"`
	KnowledgeGraph *struct {
		Title       string `json:"title"`
		Type        string `json:"type"`
		Description string `json:"description"`
	} `json:"knowledgeGraph,omitempty"`
	Organic []serperResult `json:"organic"`
}

type serperResult struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
	Date    string `json:"date,omitempty"`
}

type serperError struct {
	Message string `json:"message"`
}

// NewSearchTool crea il tool di ricerca. c può essere nil per disabilitare la cache.
func NewSearchTool(cfg SearchConfig, c cache.Cache) *SearchTool {
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultSearchEndpoint
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.MaxResults > maxSearchResults {
		cfg.MaxResults = maxSearchResults
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	client.OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
		log.Debug().
			Str("tool", SearchToolName).
			Int("status", resp.StatusCode()).
			Dur("duration", resp.Time()).
			Msg("Search API response")
		return nil
	})

	return &SearchTool{
		httpClient: client,
		apiKey:     cfg.APIKey,
		endpoint:   cfg.Endpoint,
		maxResults: cfg.MaxResults,
		cache:      c,
		cacheTTL:   cfg.CacheTTL,
	}
}

func (t *SearchTool) Name() string { return SearchToolName }

func (t *SearchTool) Description() string {
	return "Search the internet for recent news, market data and facts. Returns the top results with title, snippet and link."
}

func (t *SearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "The search query",
			},
			"num_results": map[string]any{
				"type":        "integer",
				"description": fmt.Sprintf("How many results to return (1-%d)", t.maxResults),
			},
		},
		"required": []string{"query"},
	}
}

// Configured indica se la credenziale di ricerca è presente
func (t *SearchTool) Configured() bool {
	return t.apiKey != ""
}

// Execute esegue la ricerca, usando la cache se disponibile
func (t *SearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	if !t.Configured() {
		return "", fmt.Errorf("%w: search API key not set", ErrMissingCredential)
	}

	query, err := stringArg(args, "query", true)
	if err != nil {
		return "", err
	}
	n, err := intArg(args, "num_results", t.maxResults)
	if err != nil {
		return "", err
	}
	if n < 1 || n > t.maxResults {
		n = t.maxResults
	}

	key := cache.Key("search", query, strconv.Itoa(n))
	if t.cache != nil {
		if cached, err := t.cache.Get(ctx, key); err == nil {
			log.Debug().Str("query", query).Msg("Search cache hit")
			return string(cached), nil
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			log.Warn().Err(err).Msg("Search cache read failed")
		}
	}

	text, err := t.search(ctx, query, n)
	if err != nil {
		return "", err
	}

	if t.cache != nil {
		if err := t.cache.Set(ctx, key, []byte(text), t.cacheTTL); err != nil {
			log.Warn().Err(err).Msg("Search cache write failed")
		}
	}

	return text, nil
}

func (t *SearchTool) search(ctx context.Context, query string, n int) (string, error) {
	var result serperResponse
	var errResp serperError

	resp, err := t.httpClient.R().
		SetContext(ctx).
		SetHeader("X-API-KEY", t.apiKey).
		SetBody(serperRequest{Q: query, Num: n}).
		SetResult(&result).
		SetError(&errResp).
		Post(t.endpoint)

	if err != nil {
		return "", fmt.Errorf("search request failed: %w", err)
	}

	if resp.IsError() {
		if errResp.Message != "" {
			return "", fmt.Errorf("search failed: status %d: %s", resp.StatusCode(), errResp.Message)
		}
		return "", fmt.Errorf("search failed: status %d", resp.StatusCode())
	}

	return formatResults(query, &result, n), nil
}

// formatResults rende la risposta Serper come testo leggibile dal modello
func formatResults(query string, r *serperResponse, n int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Search results for %q:\n", query)

	if r.AnswerBox != nil {
		answer := r.AnswerBox.Answer
		if answer == "" {
			answer = r.AnswerBox.Snippet
		}
		if answer != "" {
			fmt.Fprintf(&sb, "\nAnswer: %s\n", answer)
		}
	}

	if r.KnowledgeGraph != nil && r.KnowledgeGraph.Description != "" {
		fmt.Fprintf(&sb, "\n%s: %s\n", r.KnowledgeGraph.Title, r.KnowledgeGraph.Description)
	}

	if len(r.Organic) == 0 {
		sb.WriteString("\nNo results found.\n")
		return sb.String()
	}

	for i, res := range r.Organic {
		if i >= n {
			break
		}
		fmt.Fprintf(&sb, "\n%d. %s\n", i+1, res.Title)
		if res.Date != "" {
			fmt.Fprintf(&sb, "   Date: %s\n", res.Date)
		}
		if res.Snippet != "" {
			fmt.Fprintf(&sb, "   %s\n", res.Snippet)
		}
		fmt.Fprintf(&sb, "   %s\n", res.Link)
	}

	return sb.String()
}
