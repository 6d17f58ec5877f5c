package retriever

import (
	"context"
	"sort"
	"strings"

	"github.com/smallnest/paperrag/rag"
)

// KeywordReranker blends the vector score with how often the query's terms
// occur in the chunk text.
type KeywordReranker struct {
	// VectorWeight is the share of the final score taken from the vector
	// similarity. The rest comes from term frequency.
	VectorWeight float64
}

// NewKeywordReranker creates a KeywordReranker weighting the vector score 0.7
func NewKeywordReranker() *KeywordReranker {
	return &KeywordReranker{VectorWeight: 0.7}
}

// Rerank reranks results based on query term occurrences
func (r *KeywordReranker) Rerank(_ context.Context, query string, results []rag.SearchResult) ([]rag.SearchResult, error) {
	queryTerms := strings.Fields(strings.ToLower(query))

	out := make([]rag.SearchResult, len(results))
	for i, result := range results {
		content := strings.ToLower(result.Chunk.Text)

		var score float64
		for _, term := range queryTerms {
			score += float64(strings.Count(content, term))
		}
		// Normalize by document length
		if len(content) > 0 {
			score = score / float64(len(content)) * 1000
		}

		out[i] = rag.SearchResult{
			Chunk: result.Chunk,
			Score: r.VectorWeight*result.Score + (1-r.VectorWeight)*score,
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out, nil
}
