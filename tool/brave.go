package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/rag/engine"
	"github.com/tmc/langchaingo/tools"
)

// BraveSearch is a tool that uses the Brave Search API to search the web.
type BraveSearch struct {
	APIKey  string
	BaseURL string
	Count   int
	Country string
	Lang    string
	client  *http.Client
}

var (
	_ rag.WebSearcher = (*BraveSearch)(nil)
	_ tools.Tool      = (*BraveSearch)(nil)
)

type BraveOption func(*BraveSearch)

// WithBraveBaseURL sets the base URL for the Brave Search API.
func WithBraveBaseURL(baseURL string) BraveOption {
	return func(b *BraveSearch) {
		b.BaseURL = baseURL
	}
}

// WithBraveCount sets the number of results to return (1-20).
func WithBraveCount(count int) BraveOption {
	return func(b *BraveSearch) {
		if count < 1 {
			count = 1
		}
		if count > 20 {
			count = 20
		}
		b.Count = count
	}
}

// WithBraveCountry sets the country code for search results (e.g., "US", "CN").
func WithBraveCountry(country string) BraveOption {
	return func(b *BraveSearch) {
		b.Country = country
	}
}

// WithBraveLang sets the language code for search results (e.g., "en", "zh").
func WithBraveLang(lang string) BraveOption {
	return func(b *BraveSearch) {
		b.Lang = lang
	}
}

// WithBraveHTTPClient replaces the HTTP client.
func WithBraveHTTPClient(client *http.Client) BraveOption {
	return func(b *BraveSearch) {
		b.client = client
	}
}

// NewBraveSearch creates a new BraveSearch tool.
// If apiKey is empty, it tries to read from BRAVE_API_KEY environment variable.
func NewBraveSearch(apiKey string, opts ...BraveOption) (*BraveSearch, error) {
	if apiKey == "" {
		apiKey = os.Getenv("BRAVE_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: BRAVE_API_KEY not set", rag.ErrInvalidConfig)
	}

	b := &BraveSearch{
		APIKey:  apiKey,
		BaseURL: "https://api.search.brave.com/res/v1/web/search",
		Count:   10,
		Country: "US",
		Lang:    "en",
		client:  &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		opt(b)
	}

	return b, nil
}

// Name returns the name of the tool.
func (b *BraveSearch) Name() string {
	return "Brave_Search"
}

// Description returns the description of the tool.
func (b *BraveSearch) Description() string {
	return "A privacy-focused search engine powered by Brave. " +
		"Useful for finding current information and answering questions. " +
		"Input should be a search query."
}

type braveResponse struct {
	Web struct {
		Results []struct {
			Title       string `json:"title"`
			URL         string `json:"url"`
			Description string `json:"description"`
		} `json:"results"`
	} `json:"web"`
}

// Brave highlights matches with <strong>; results are plain text.
var stripTags = bluemonday.StrictPolicy()

func plainText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripTags.Sanitize(s)))
}

// Search runs query and returns the structured response.
func (b *BraveSearch) Search(ctx context.Context, query string) (*rag.WebSearchResponse, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("count", strconv.Itoa(b.Count))
	if b.Country != "" {
		params.Set("country", b.Country)
	}
	if b.Lang != "" {
		params.Set("search_lang", b.Lang)
	}

	reqURL := fmt.Sprintf("%s?%s", b.BaseURL, params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", b.APIKey)

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("brave api returned status: %d", resp.StatusCode)
	}

	var decoded braveResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	out := &rag.WebSearchResponse{
		Query:   query,
		Results: make([]rag.WebResult, 0, len(decoded.Web.Results)),
	}
	for _, r := range decoded.Web.Results {
		out.Results = append(out.Results, rag.WebResult{
			Title:   plainText(r.Title),
			Content: plainText(r.Description),
			URL:     r.URL,
		})
	}
	return out, nil
}

// Call executes the search and formats the results as text.
func (b *BraveSearch) Call(ctx context.Context, input string) (string, error) {
	resp, err := b.Search(ctx, input)
	if err != nil {
		return "", err
	}
	return engine.FormatWebResults(resp), nil
}
