package embedding

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"
	openai "github.com/sashabaranov/go-openai"
	"github.com/tmc/langchaingo/embeddings"
)

// OpenAIBackend calls an OpenAI-compatible /embeddings endpoint.
type OpenAIBackend struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

var _ embeddings.Embedder = (*OpenAIBackend)(nil)

// NewOpenAIBackend creates a backend for model. An empty baseURL uses the
// OpenAI default.
func NewOpenAIBackend(apiKey, baseURL, model string) *OpenAIBackend {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}
	return &OpenAIBackend{
		client: openai.NewClientWithConfig(cfg),
		model:  openai.EmbeddingModel(model),
	}
}

// EmbedDocuments embeds texts in a single request.
func (b *OpenAIBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := b.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: b.model,
	})
	if err != nil {
		return nil, fmt.Errorf("openai embeddings request failed: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, fmt.Errorf("openai embeddings returned out of range index %d", d.Index)
		}
		out[d.Index] = d.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("openai embeddings response missing index %d", i)
		}
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (b *OpenAIBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vecs, err := b.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// FuncBackend adapts a chromem.EmbeddingFunc, which embeds one text per call.
type FuncBackend struct {
	fn chromem.EmbeddingFunc
}

var _ embeddings.Embedder = (*FuncBackend)(nil)

// NewFuncBackend wraps fn.
func NewFuncBackend(fn chromem.EmbeddingFunc) *FuncBackend {
	return &FuncBackend{fn: fn}
}

// NewOllamaBackend embeds through a local Ollama server. An empty baseURL
// uses chromem's default of http://localhost:11434/api.
func NewOllamaBackend(model, baseURL string) *FuncBackend {
	return NewFuncBackend(chromem.NewEmbeddingFuncOllama(model, baseURL))
}

// EmbedDocuments embeds texts sequentially.
func (b *FuncBackend) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := b.fn(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedQuery embeds one text.
func (b *FuncBackend) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return b.fn(ctx, text)
}

// ChromemFunc exposes a rag-style embedder as a chromem.EmbeddingFunc.
func ChromemFunc(e interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
}) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		return e.EmbedDocument(ctx, text)
	}
}
