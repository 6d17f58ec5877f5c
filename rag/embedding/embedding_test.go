package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingBackend returns [len(text), index-in-call] vectors and counts calls.
type countingBackend struct {
	calls   atomic.Int32
	queries atomic.Int32
	err     error
}

func (b *countingBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	b.calls.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func (b *countingBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	b.queries.Add(1)
	if b.err != nil {
		return nil, b.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func TestProvider_PreservesOrderAcrossBatches(t *testing.T) {
	backend := &countingBackend{}
	p := NewProvider(backend, WithBatchSize(2), WithConcurrency(3), WithNormalize(false))

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vecs, err := p.EmbedDocuments(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vecs, len(texts))

	for i, text := range texts {
		assert.Equal(t, float32(len(text)), vecs[i][0], "vector %d out of order", i)
	}
	assert.Equal(t, int32(3), backend.calls.Load())
}

func TestProvider_Normalizes(t *testing.T) {
	p := NewProvider(&countingBackend{})

	vec, err := p.EmbedDocument(context.Background(), "hello")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, norm(vec), 1e-6)

	vecs, err := p.EmbedDocuments(context.Background(), []string{"x", "yy"})
	require.NoError(t, err)
	for _, v := range vecs {
		assert.InDelta(t, 1.0, norm(v), 1e-6)
	}
}

func TestProvider_DimensionProbeIsCached(t *testing.T) {
	backend := &countingBackend{}
	p := NewProvider(backend)

	assert.Equal(t, 2, p.GetDimension())
	assert.Equal(t, 2, p.GetDimension())
	assert.Equal(t, int32(1), backend.queries.Load())
}

func TestProvider_DimensionFromPreset(t *testing.T) {
	backend := &countingBackend{}
	p := NewProvider(backend, WithDimension(384))

	dim, err := p.Dimension(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 384, dim)
	assert.Equal(t, int32(0), backend.queries.Load())
}

func TestProvider_Errors(t *testing.T) {
	backend := &countingBackend{err: errors.New("boom")}
	p := NewProvider(backend)

	_, err := p.EmbedDocuments(context.Background(), []string{"a"})
	assert.ErrorContains(t, err, "boom")

	_, err = p.EmbedDocument(context.Background(), "a")
	assert.ErrorContains(t, err, "boom")

	assert.Equal(t, 0, p.GetDimension())
}

func TestProvider_EmptyInput(t *testing.T) {
	backend := &countingBackend{}
	p := NewProvider(backend)

	vecs, err := p.EmbedDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs)
	assert.Equal(t, int32(0), backend.calls.Load())
}

func TestProvider_ModelName(t *testing.T) {
	p := NewProvider(NewHashEmbedder(8), WithModelName("hash-8"))
	assert.Equal(t, "hash-8", p.ModelName())
}

func TestNormalize_ZeroVector(t *testing.T) {
	assert.Equal(t, []float32{0, 0}, Normalize([]float32{0, 0}))
}

func TestHashEmbedder(t *testing.T) {
	e := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := e.EmbedQuery(ctx, "Graph neural networks")
	require.NoError(t, err)
	b, err := e.EmbedQuery(ctx, "graph NEURAL networks!")
	require.NoError(t, err)
	assert.Equal(t, a, b, "tokenisation should ignore case and punctuation")
	assert.Len(t, a, 64)
	assert.InDelta(t, 1.0, norm(a), 1e-6)

	docs, err := e.EmbedDocuments(ctx, []string{"x", "y"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	assert.Equal(t, 256, NewHashEmbedder(0).Dimension)
}

func TestOpenAIBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-test", req.Model)

		// Answer out of order to exercise index handling.
		data := make([]map[string]any, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(i), 1},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  req.Model,
			"data":   data,
		})
	}))
	defer server.Close()

	backend := NewOpenAIBackend("test-key", server.URL, "text-embedding-test")
	vecs, err := backend.EmbedDocuments(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	for i, v := range vecs {
		assert.Equal(t, float32(i), v[0])
	}

	q, err := backend.EmbedQuery(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, q)
}

func TestOpenAIBackend_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer server.Close()

	backend := NewOpenAIBackend("nope", server.URL, "m")
	_, err := backend.EmbedDocuments(context.Background(), []string{"a"})
	assert.Error(t, err)
}

func TestFuncBackend(t *testing.T) {
	calls := 0
	backend := NewFuncBackend(func(ctx context.Context, text string) ([]float32, error) {
		calls++
		return []float32{float32(len(text))}, nil
	})

	vecs, err := backend.EmbedDocuments(context.Background(), []string{"ab", "abc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{2}, {3}}, vecs)
	assert.Equal(t, 2, calls)

	fn := ChromemFunc(NewProvider(backend, WithNormalize(false)))
	v, err := fn(context.Background(), "abcd")
	require.NoError(t, err)
	assert.Equal(t, []float32{4}, v)
}
