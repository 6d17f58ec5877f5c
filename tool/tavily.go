package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/rag/engine"
	"github.com/tmc/langchaingo/tools"
)

// Tavily search topics.
const (
	TopicGeneral = "general"
	TopicNews    = "news"
	TopicFinance = "finance"
)

const defaultTimeout = 30 * time.Second

// TavilySearch searches the web with the Tavily API.
type TavilySearch struct {
	APIKey      string
	BaseURL     string
	MaxResults  int
	SearchDepth string
	Topic       string
	client      *http.Client
}

var (
	_ rag.WebSearcher = (*TavilySearch)(nil)
	_ tools.Tool      = (*TavilySearch)(nil)
)

type TavilyOption func(*TavilySearch)

// WithTavilyBaseURL sets the base URL for the Tavily API.
func WithTavilyBaseURL(baseURL string) TavilyOption {
	return func(t *TavilySearch) {
		t.BaseURL = baseURL
	}
}

// WithTavilyMaxResults sets the number of results to return.
func WithTavilyMaxResults(n int) TavilyOption {
	return func(t *TavilySearch) {
		if n > 0 {
			t.MaxResults = n
		}
	}
}

// WithTavilySearchDepth sets the search depth ("basic" or "advanced").
func WithTavilySearchDepth(depth string) TavilyOption {
	return func(t *TavilySearch) {
		t.SearchDepth = depth
	}
}

// WithTavilyTopic sets the topic: TopicGeneral, TopicNews or TopicFinance.
func WithTavilyTopic(topic string) TavilyOption {
	return func(t *TavilySearch) {
		t.Topic = topic
	}
}

// WithTavilyHTTPClient replaces the HTTP client.
func WithTavilyHTTPClient(client *http.Client) TavilyOption {
	return func(t *TavilySearch) {
		t.client = client
	}
}

// NewTavilySearch creates a new TavilySearch tool.
// If apiKey is empty, it tries to read from TAVILY_API_KEY environment variable.
func NewTavilySearch(apiKey string, opts ...TavilyOption) (*TavilySearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: TAVILY_API_KEY not set", rag.ErrInvalidConfig)
	}

	t := &TavilySearch{
		APIKey:      apiKey,
		BaseURL:     "https://api.tavily.com",
		MaxResults:  3,
		SearchDepth: "basic",
		Topic:       TopicGeneral,
		client:      &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(t)
	}

	switch t.Topic {
	case TopicGeneral, TopicNews, TopicFinance:
	default:
		return nil, fmt.Errorf("%w: unknown tavily topic %q", rag.ErrInvalidConfig, t.Topic)
	}
	return t, nil
}

// Name returns the name of the tool.
func (t *TavilySearch) Name() string {
	return "Tavily_Search"
}

// Description returns the description of the tool.
func (t *TavilySearch) Description() string {
	return "A web search engine tuned for question answering. " +
		"Useful for recent work and facts not covered by the indexed papers. " +
		"Input should be a search query."
}

type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	Topic         string `json:"topic"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// Search runs query and returns the structured response.
func (t *TavilySearch) Search(ctx context.Context, query string) (*rag.WebSearchResponse, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        t.APIKey,
		Query:         query,
		SearchDepth:   t.SearchDepth,
		MaxResults:    t.MaxResults,
		Topic:         t.Topic,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.BaseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tavily api returned status: %d", resp.StatusCode)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &rag.WebSearchResponse{
		Query:   query,
		Answer:  decoded.Answer,
		Results: make([]rag.WebResult, 0, len(decoded.Results)),
	}
	for _, r := range decoded.Results {
		out.Results = append(out.Results, rag.WebResult{
			Title:   r.Title,
			Content: r.Content,
			URL:     r.URL,
			Score:   r.Score,
		})
	}
	return out, nil
}

// Call executes the search and formats the results as text.
func (t *TavilySearch) Call(ctx context.Context, input string) (string, error) {
	resp, err := t.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return engine.FormatWebResults(resp), nil
}
