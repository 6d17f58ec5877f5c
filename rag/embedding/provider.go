package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/tmc/langchaingo/embeddings"
	"golang.org/x/sync/errgroup"
)

// ProbeText is embedded once to discover a backend's vector dimension.
const ProbeText = "earth"

// Provider adapts a langchaingo embeddings.Embedder to rag.Embedder. It
// normalises vectors, batches requests and caches the probed dimension.
type Provider struct {
	backend     embeddings.Embedder
	model       string
	normalize   bool
	batchSize   int
	concurrency int
	logger      log.Logger

	mu        sync.Mutex
	dimension int
}

var _ rag.Embedder = (*Provider)(nil)
var _ rag.ModelNamer = (*Provider)(nil)

// Option configures a Provider
type Option func(*Provider)

// WithModelName records the model identity persisted next to vector indexes.
func WithModelName(name string) Option {
	return func(p *Provider) {
		p.model = name
	}
}

// WithNormalize toggles L2 normalisation (on by default).
func WithNormalize(normalize bool) Option {
	return func(p *Provider) {
		p.normalize = normalize
	}
}

// WithBatchSize sets how many texts are sent to the backend per request.
func WithBatchSize(size int) Option {
	return func(p *Provider) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithConcurrency sets how many batches may be embedded in parallel.
func WithConcurrency(n int) Option {
	return func(p *Provider) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithDimension presets the dimension so no probe request is needed.
func WithDimension(dim int) Option {
	return func(p *Provider) {
		p.dimension = dim
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// NewProvider wraps backend.
func NewProvider(backend embeddings.Embedder, opts ...Option) *Provider {
	p := &Provider{
		backend:     backend,
		normalize:   true,
		batchSize:   64,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.Or(p.logger)
	return p
}

// ModelName returns the configured model identity.
func (p *Provider) ModelName() string {
	return p.model
}

// EmbedDocument embeds a single text.
func (p *Provider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.backend.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed text: %w", err)
	}
	vec = p.finish(vec)
	p.remember(len(vec))
	return vec, nil
}

// EmbedDocuments embeds texts in batches. The result is index-aligned with
// texts even when batches run concurrently.
func (p *Provider) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)

	for start := 0; start < len(texts); start += p.batchSize {
		end := min(start+p.batchSize, len(texts))
		g.Go(func() error {
			vecs, err := p.backend.EmbedDocuments(gctx, texts[start:end])
			if err != nil {
				return fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
			}
			if len(vecs) != end-start {
				return fmt.Errorf("backend returned %d vectors for %d texts", len(vecs), end-start)
			}
			for i, v := range vecs {
				out[start+i] = p.finish(v)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	p.remember(len(out[0]))
	p.logger.Debug("embedded %d texts", len(texts))
	return out, nil
}

// Dimension returns the vector length, probing the backend once if needed.
func (p *Provider) Dimension(ctx context.Context) (int, error) {
	p.mu.Lock()
	dim := p.dimension
	p.mu.Unlock()
	if dim > 0 {
		return dim, nil
	}

	vec, err := p.EmbedDocument(ctx, ProbeText)
	if err != nil {
		return 0, fmt.Errorf("failed to probe embedding dimension: %w", err)
	}
	return len(vec), nil
}

// GetDimension returns the cached dimension, probing on first use. It returns
// 0 if the probe fails.
func (p *Provider) GetDimension() int {
	dim, err := p.Dimension(context.Background())
	if err != nil {
		p.logger.Warn("%v", err)
		return 0
	}
	return dim
}

func (p *Provider) remember(dim int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dimension == 0 {
		p.dimension = dim
	}
}

func (p *Provider) finish(vec []float32) []float32 {
	if !p.normalize {
		return vec
	}
	return Normalize(vec)
}

// Normalize returns vec scaled to unit length. Zero vectors are returned as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return vec
	}
	norm := float32(math.Sqrt(sum))
	out := make([]float32, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
