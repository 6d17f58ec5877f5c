package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/smallnest/paperrag/rag"
	"github.com/tmc/langchaingo/schema"
)

// Search strategies accepted by RetrievalConfig.SearchType.
const (
	SearchSimilarity = "similarity"
	SearchMMR        = "mmr"
	SearchDiversity  = "diversity"
)

// mmrFetchFactor is how many candidates per requested result MMR and
// diversity selection look at.
const mmrFetchFactor = 4

// ScoredSearcher is a vector index that reports similarity scores.
// *store.VectorStore implements it.
type ScoredSearcher interface {
	IsInitialized() bool
	SearchWithScores(ctx context.Context, query string, k int, filter map[string]any) ([]rag.SearchResult, error)
}

// RetrievalConfig controls a retrieval
type RetrievalConfig struct {
	K              int            `json:"k"`
	ScoreThreshold float64        `json:"score_threshold"`
	SearchType     string         `json:"search_type"`
	Filter         map[string]any `json:"filter"`
}

// Reranker reorders search results for a query
type Reranker interface {
	Rerank(ctx context.Context, query string, results []rag.SearchResult) ([]rag.SearchResult, error)
}

// VectorRetriever implements document retrieval using vector similarity
type VectorRetriever struct {
	searcher ScoredSearcher
	config   RetrievalConfig
	reranker Reranker
}

var _ schema.Retriever = (*VectorRetriever)(nil)

// NewVectorRetriever creates a new vector retriever
func NewVectorRetriever(searcher ScoredSearcher, config RetrievalConfig) *VectorRetriever {
	if config.K <= 0 {
		config.K = 4
	}
	if config.SearchType == "" {
		config.SearchType = SearchSimilarity
	}

	return &VectorRetriever{
		searcher: searcher,
		config:   config,
	}
}

// WithReranker sets a reranker applied after the score threshold
func (r *VectorRetriever) WithReranker(reranker Reranker) *VectorRetriever {
	r.reranker = reranker
	return r
}

// IsInitialized reports whether the underlying index holds chunks
func (r *VectorRetriever) IsInitialized() bool {
	return r.searcher != nil && r.searcher.IsInitialized()
}

// Search retrieves k chunks matching filter using the retriever's strategy.
// k <= 0 uses the configured K.
func (r *VectorRetriever) Search(ctx context.Context, query string, k int, filter map[string]any) ([]rag.Chunk, error) {
	config := r.config
	if k > 0 {
		config.K = k
	}
	if filter != nil {
		config.Filter = filter
	}

	results, err := r.RetrieveWithConfig(ctx, query, &config)
	if err != nil {
		return nil, err
	}
	return chunksOf(results), nil
}

// Retrieve retrieves chunks based on a query
func (r *VectorRetriever) Retrieve(ctx context.Context, query string) ([]rag.Chunk, error) {
	return r.Search(ctx, query, r.config.K, nil)
}

// GetRelevantDocuments returns langchaingo documents so the index can back
// langchaingo chains.
func (r *VectorRetriever) GetRelevantDocuments(ctx context.Context, query string) ([]schema.Document, error) {
	results, err := r.RetrieveWithConfig(ctx, query, nil)
	if err != nil {
		return nil, err
	}
	return rag.ToSchemaDocuments(results), nil
}

// RetrieveWithConfig retrieves documents with custom configuration. An
// uninitialized index returns no results.
func (r *VectorRetriever) RetrieveWithConfig(ctx context.Context, query string, config *RetrievalConfig) ([]rag.SearchResult, error) {
	if config == nil {
		config = &r.config
	}
	k := config.K
	if k <= 0 {
		k = r.config.K
	}
	if !r.IsInitialized() {
		return []rag.SearchResult{}, nil
	}

	fetch := k
	if config.SearchType == SearchMMR || config.SearchType == SearchDiversity {
		fetch = k * mmrFetchFactor
	}

	results, err := r.searcher.SearchWithScores(ctx, query, fetch, config.Filter)
	if errors.Is(err, rag.ErrNotInitialized) {
		return []rag.SearchResult{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	// Filter by score threshold
	if config.ScoreThreshold > 0 {
		filtered := make([]rag.SearchResult, 0, len(results))
		for _, result := range results {
			if result.Score >= config.ScoreThreshold {
				filtered = append(filtered, result)
			}
		}
		results = filtered
	}

	if r.reranker != nil {
		results, err = r.reranker.Rerank(ctx, query, results)
		if err != nil {
			return nil, fmt.Errorf("rerank failed: %w", err)
		}
	}

	switch config.SearchType {
	case SearchMMR:
		results = applyMMR(results, k)
	case SearchDiversity:
		results = applyDiversity(results, k)
	}
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// applyMMR applies Maximal Marginal Relevance to ensure diversity
func applyMMR(results []rag.SearchResult, k int) []rag.SearchResult {
	if len(results) <= k {
		return results
	}

	const lambda = 0.5

	selected := make([]rag.SearchResult, 0, k)
	selected = append(selected, results[0])
	candidates := append([]rag.SearchResult(nil), results[1:]...)

	for len(selected) < k && len(candidates) > 0 {
		bestIdx := 0
		bestScore := 0.0
		for i, candidate := range candidates {
			maxSimilarity := 0.0
			for _, s := range selected {
				if sim := contentSimilarity(candidate.Chunk.Text, s.Chunk.Text); sim > maxSimilarity {
					maxSimilarity = sim
				}
			}
			score := lambda*candidate.Score - (1-lambda)*maxSimilarity
			if i == 0 || score > bestScore {
				bestScore = score
				bestIdx = i
			}
		}
		selected = append(selected, candidates[bestIdx])
		candidates = append(candidates[:bestIdx], candidates[bestIdx+1:]...)
	}

	return selected
}

// applyDiversity takes the best result of each paper first, then fills the
// remaining slots by score.
func applyDiversity(results []rag.SearchResult, k int) []rag.SearchResult {
	if len(results) <= k {
		return results
	}

	seen := make(map[string]bool)
	selected := make([]rag.SearchResult, 0, k)
	var rest []rag.SearchResult
	for _, result := range results {
		key := groupKey(result.Chunk)
		if !seen[key] && len(selected) < k {
			seen[key] = true
			selected = append(selected, result)
			continue
		}
		rest = append(rest, result)
	}
	for _, result := range rest {
		if len(selected) >= k {
			break
		}
		selected = append(selected, result)
	}
	return selected
}

func groupKey(c rag.Chunk) string {
	for _, key := range []string{rag.MetaPaperID, rag.MetaSource} {
		if v, ok := c.Metadata[key]; ok {
			return fmt.Sprintf("%v", v)
		}
	}
	return "default"
}

// contentSimilarity is the Jaccard similarity of the two texts' word sets
func contentSimilarity(a, b string) float64 {
	wordsA := wordSet(a)
	wordsB := wordSet(b)

	intersection := 0
	for word := range wordsA {
		if wordsB[word] {
			intersection++
		}
	}

	union := len(wordsA) + len(wordsB) - intersection
	if union == 0 {
		return 1.0
	}
	return float64(intersection) / float64(union)
}

func wordSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isAlphaNumeric(r)
	}) {
		set[w] = true
	}
	return set
}

// isAlphaNumeric checks if a character is alphanumeric
func isAlphaNumeric(char rune) bool {
	return (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9')
}

func chunksOf(results []rag.SearchResult) []rag.Chunk {
	chunks := make([]rag.Chunk, len(results))
	for i, result := range results {
		chunks[i] = result.Chunk
	}
	return chunks
}
