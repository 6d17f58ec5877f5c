package tool

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"golang.org/x/sync/errgroup"
)

// maxPageText bounds the text WebFetch keeps from one page.
const maxPageText = 8000

// WebFetch downloads url and returns its visible text, with scripts and
// styles removed and whitespace collapsed.
func WebFetch(ctx context.Context, url string) (string, error) {
	return fetchWith(ctx, &http.Client{Timeout: defaultTimeout}, url)
}

func fetchWith(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "paperrag/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	doc.Find("script, style, noscript").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if text == "" {
		return "", fmt.Errorf("no text content found at %s", url)
	}
	if len(text) > maxPageText {
		text = truncate(text, maxPageText)
	}
	return text, nil
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	for n > 0 && n < len(s) && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

// Enricher fills in web results that have no content by fetching their pages.
type Enricher struct {
	client      *http.Client
	concurrency int
	logger      log.Logger
}

// NewEnricher creates an Enricher. A nil client gets a default with a timeout.
func NewEnricher(client *http.Client, concurrency int, logger log.Logger) *Enricher {
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Enricher{client: client, concurrency: concurrency, logger: log.Or(logger)}
}

// EnrichResults fetches the pages of results with empty content. Pages that
// fail to load are logged and left empty.
func (e *Enricher) EnrichResults(ctx context.Context, resp *rag.WebSearchResponse) {
	if resp == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i := range resp.Results {
		r := &resp.Results[i]
		if strings.TrimSpace(r.Content) != "" || r.URL == "" {
			continue
		}
		g.Go(func() error {
			text, err := fetchWith(gctx, e.client, r.URL)
			if err != nil {
				e.logger.Warn("could not enrich %s: %v", r.URL, err)
				return nil
			}
			r.Content = text
			return nil
		})
	}
	_ = g.Wait()
}

// Enriching wraps a WebSearcher so that its results always carry content
// where the page could be fetched.
type Enriching struct {
	rag.WebSearcher
	Enricher *Enricher
}

// Search runs the wrapped search and enriches the results.
func (e Enriching) Search(ctx context.Context, query string) (*rag.WebSearchResponse, error) {
	resp, err := e.WebSearcher.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	e.Enricher.EnrichResults(ctx, resp)
	return resp, nil
}
