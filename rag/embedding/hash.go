package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/tmc/langchaingo/embeddings"
)

// HashEmbedder is a deterministic, offline embedder based on feature hashing
// of lower-cased word tokens. Texts sharing words get similar vectors, which
// makes it usable for tests and for running without an embedding service.
type HashEmbedder struct {
	Dimension int
}

var _ embeddings.Embedder = (*HashEmbedder)(nil)

// NewHashEmbedder creates a HashEmbedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashEmbedder{Dimension: dimension}
}

// EmbedDocuments embeds every text.
func (e *HashEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = e.embed(text)
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (e *HashEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return e.embed(text), nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.Dimension)
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(e.Dimension))
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	return Normalize(vec)
}
