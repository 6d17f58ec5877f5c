package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
)

// Mode selects where Answer gathers context from.
type Mode string

const (
	ModeDocuments Mode = "documents"
	ModeWeb       Mode = "web"
	ModeHybrid    Mode = "hybrid"
)

// ParseMode maps a mode name to a Mode
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeDocuments, ModeWeb, ModeHybrid:
		return m, nil
	case "":
		return ModeDocuments, nil
	default:
		return "", fmt.Errorf("%w: unknown answer mode %q", rag.ErrInvalidConfig, s)
	}
}

// WebSourceLabel stands in for web pages in a result's sources and sections.
const WebSourceLabel = "Web Search"

const (
	documentsHeader = "=== From Your Documents ==="
	webHeader       = "\n=== From Web Search ==="
	noHybridContext = "No context available."
)

// HybridResult holds the two halves of a hybrid search. Either may be empty.
type HybridResult struct {
	Documents []rag.Chunk
	Web       *rag.WebSearchResponse
}

// HybridSearcher combines local document retrieval with web search.
type HybridSearcher struct {
	searcher Searcher
	web      rag.WebSearcher
	logger   log.Logger
}

// HybridOption configures a HybridSearcher
type HybridOption func(*HybridSearcher)

// WithHybridLogger sets the logger
func WithHybridLogger(logger log.Logger) HybridOption {
	return func(h *HybridSearcher) {
		h.logger = logger
	}
}

// NewHybridSearcher creates a HybridSearcher. Either source may be nil.
func NewHybridSearcher(searcher Searcher, web rag.WebSearcher, opts ...HybridOption) *HybridSearcher {
	h := &HybridSearcher{searcher: searcher, web: web}
	for _, opt := range opts {
		opt(h)
	}
	h.logger = log.Or(h.logger)
	return h
}

// Search retrieves up to docK chunks when the store is initialized, and web
// results when useWebSearch is set. A failing web search is logged and
// leaves Web nil.
func (h *HybridSearcher) Search(ctx context.Context, query string, useWebSearch bool, docK int) (*HybridResult, error) {
	result := &HybridResult{}

	if h.searcher != nil && h.searcher.IsInitialized() {
		docs, err := h.searcher.Search(ctx, query, docK, nil)
		if err != nil && !errors.Is(err, rag.ErrNotInitialized) {
			return nil, fmt.Errorf("failed to search documents: %w", err)
		}
		result.Documents = docs
	}

	if useWebSearch {
		if h.web == nil {
			h.logger.Warn("web search requested but no provider is configured")
			return result, nil
		}
		resp, err := h.web.Search(ctx, query)
		if err != nil {
			h.logger.Warn("web search failed for %q: %v", query, err)
			return result, nil
		}
		result.Web = resp
	}

	return result, nil
}

// FormatHybridContext renders documents then web results as one context
// block.
func FormatHybridContext(docs []rag.Chunk, web *rag.WebSearchResponse) string {
	var parts []string

	if len(docs) > 0 {
		parts = append(parts, documentsHeader)
		for i, doc := range docs {
			parts = append(parts, fmt.Sprintf("[Doc %d] (%s):\n%s", i+1, doc.Source(), doc.Text))
		}
	}

	if web != nil {
		parts = append(parts, webHeader, FormatWebResults(web))
	}

	if len(parts) == 0 {
		return noHybridContext
	}
	return strings.Join(parts, "\n\n")
}

// FormatWebResults renders a web search response as numbered entries, led by
// the provider's summary when there is one.
func FormatWebResults(resp *rag.WebSearchResponse) string {
	if resp == nil {
		return "No search results found."
	}
	if len(resp.Results) == 0 && resp.Answer == "" {
		return "No results found."
	}

	var parts []string
	if resp.Answer != "" {
		parts = append(parts, "Summary: "+resp.Answer)
	}
	for i, r := range resp.Results {
		title, content := r.Title, r.Content
		if title == "" {
			title = "No title"
		}
		if content == "" {
			content = "No content"
		}
		parts = append(parts, fmt.Sprintf("[%d] %s\n%s\nSource: %s", i+1, title, content, r.URL))
	}
	return strings.Join(parts, "\n\n")
}

// Answer answers question from local documents, the web, or both.
func (o *Orchestrator) Answer(ctx context.Context, question string, mode Mode, opts ...QueryOption) (*QueryResult, error) {
	switch mode {
	case ModeDocuments, "":
		return o.Query(ctx, question, opts...)

	case ModeWeb:
		if o.web == nil {
			return nil, fmt.Errorf("%w: no web search provider configured", rag.ErrInvalidConfig)
		}
		resp, err := o.web.Search(ctx, question)
		if err != nil {
			return nil, fmt.Errorf("failed to search the web: %w", err)
		}
		contextText := FormatWebResults(resp)
		answer, err := o.Generate(ctx, question, contextText)
		if err != nil {
			return nil, err
		}
		return &QueryResult{
			Answer:   answer,
			Sources:  []string{WebSourceLabel},
			Sections: []string{WebSourceLabel},
			Context:  contextText,
			Chunks:   []rag.Chunk{},
		}, nil

	case ModeHybrid:
		cfg := o.queryConfig(opts)
		hybrid := NewHybridSearcher(o.searcher, o.web, WithHybridLogger(o.logger))
		found, err := hybrid.Search(ctx, question, true, cfg.k)
		if err != nil {
			return nil, err
		}
		contextText := FormatHybridContext(found.Documents, found.Web)
		answer, err := o.Generate(ctx, question, contextText)
		if err != nil {
			return nil, err
		}

		chunks := found.Documents
		if chunks == nil {
			chunks = []rag.Chunk{}
		}
		sources := Sources(chunks)
		sections := Sections(chunks)
		if found.Web != nil {
			sources = sortedUnique(append(sources, WebSourceLabel))
			sections = sortedUnique(append(sections, WebSourceLabel))
		}
		return &QueryResult{
			Answer:   answer,
			Sources:  sources,
			Sections: sections,
			Context:  contextText,
			Chunks:   chunks,
		}, nil

	default:
		return nil, fmt.Errorf("%w: unknown answer mode %q", rag.ErrInvalidConfig, mode)
	}
}
