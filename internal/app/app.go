// Package app assembles the paperrag components from a Config.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/smallnest/paperrag/config"
	"github.com/smallnest/paperrag/library"
	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/rag/embedding"
	"github.com/smallnest/paperrag/rag/engine"
	"github.com/smallnest/paperrag/rag/extract"
	"github.com/smallnest/paperrag/rag/ingest"
	"github.com/smallnest/paperrag/rag/loader"
	"github.com/smallnest/paperrag/rag/retriever"
	"github.com/smallnest/paperrag/rag/splitter"
	vstore "github.com/smallnest/paperrag/rag/store"
	"github.com/smallnest/paperrag/store"
	"github.com/smallnest/paperrag/tool"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// ErrNoLLM is returned by operations that need a language model when none
// is configured.
var ErrNoLLM = errors.New("no language model configured: set GROQ_API_KEY")

// App holds the wired components. LLM, Extractor, Orchestrator and Web are
// nil when their credentials are missing.
type App struct {
	Config       *config.Config
	Logger       log.Logger
	Embedder     *embedding.Provider
	Vectors      *vstore.VectorStore
	Metadata     store.MetadataStore
	LLM          llms.Model
	Extractor    *extract.Extractor
	Pipeline     *ingest.Pipeline
	Retriever    *retriever.VectorRetriever
	Orchestrator *engine.Orchestrator
	Hybrid       *engine.HybridSearcher
	Web          rag.WebSearcher
	Library      *library.Service
}

// Option overrides a component, mostly for tests.
type Option func(*options)

type options struct {
	llm      llms.Model
	metadata store.MetadataStore
	web      rag.WebSearcher
	logger   log.Logger
}

// WithLLM uses llm instead of the configured OpenAI-compatible endpoint.
func WithLLM(llm llms.Model) Option {
	return func(o *options) { o.llm = llm }
}

// WithMetadataStore uses s instead of the configured backend.
func WithMetadataStore(s store.MetadataStore) Option {
	return func(o *options) { o.metadata = s }
}

// WithWebSearcher uses web instead of the configured provider.
func WithWebSearcher(web rag.WebSearcher) Option {
	return func(o *options) { o.web = web }
}

// WithLogger uses logger instead of a golog logger at the configured level.
func WithLogger(logger log.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// New builds every component. A saved vector index at cfg.VectorIndexPath is
// loaded; a missing one leaves the store uninitialized.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	a := &App{Config: cfg, Logger: o.logger}
	if a.Logger == nil {
		a.Logger = log.NewGolog(cfg.Level())
	}

	var err error
	if a.Embedder, err = newEmbedder(cfg, a.Logger); err != nil {
		return nil, err
	}

	a.Vectors = vstore.New(a.Embedder,
		vstore.WithIndexType(cfg.IndexType),
		vstore.WithDefaultK(cfg.TopK),
		vstore.WithLogger(a.Logger),
	)
	if err := a.Vectors.Load(cfg.VectorIndexPath); err != nil {
		if !errors.Is(err, rag.ErrNotFound) {
			return nil, fmt.Errorf("failed to load vector index: %w", err)
		}
		a.Logger.Info("no saved index at %s, starting empty", cfg.VectorIndexPath)
	}

	a.Metadata = o.metadata
	if a.Metadata == nil {
		if a.Metadata, err = OpenMetadataStore(ctx, cfg); err != nil {
			return nil, err
		}
	}
	a.Library = library.NewService(a.Metadata)

	a.LLM = o.llm
	if a.LLM == nil && cfg.LLMAPIKey != "" {
		if a.LLM, err = newLLM(cfg); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.Web = o.web
	if a.Web == nil {
		a.Web = newWebSearcher(cfg, a.Logger)
	}

	a.Retriever = retriever.NewVectorRetriever(a.Vectors, retriever.RetrievalConfig{K: cfg.TopK})
	a.Hybrid = engine.NewHybridSearcher(a.Retriever, a.Web, engine.WithHybridLogger(a.Logger))

	pipelineOpts := []ingest.Option{
		ingest.WithIndexer(a.Vectors),
		ingest.WithConcurrency(cfg.IngestConcurrency),
		ingest.WithLogger(a.Logger),
	}
	if a.LLM != nil {
		a.Extractor = extract.New(a.LLM, a.Metadata, extract.WithLogger(a.Logger))
		pipelineOpts = append(pipelineOpts, ingest.WithExtractor(a.Extractor))

		a.Orchestrator = engine.NewOrchestrator(a.Retriever, a.LLM,
			engine.WithDefaultK(cfg.TopK),
			engine.WithTemperature(cfg.Temperature),
			engine.WithWebSearcher(a.Web),
			engine.WithLogger(a.Logger),
		)
	} else {
		a.Logger.Warn("GROQ_API_KEY not set: metadata extraction and question answering are disabled")
	}

	sp, err := splitter.NewRecursiveCharacterTextSplitter(
		splitter.WithChunkSize(cfg.ChunkSize),
		splitter.WithChunkOverlap(cfg.ChunkOverlap),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	if a.Pipeline, err = ingest.New(loader.NewProcessor(loader.WithLogger(a.Logger)), sp, pipelineOpts...); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// RequireLLM returns ErrNoLLM when question answering is unavailable.
func (a *App) RequireLLM() error {
	if a.Orchestrator == nil {
		return ErrNoLLM
	}
	return nil
}

// SaveIndex persists the vector store to the configured path.
func (a *App) SaveIndex() error {
	return a.Vectors.Save(a.Config.VectorIndexPath)
}

// Close releases the metadata store.
func (a *App) Close() error {
	if a.Metadata == nil {
		return nil
	}
	return a.Metadata.Close()
}

func newEmbedder(cfg *config.Config, logger log.Logger) (*embedding.Provider, error) {
	var (
		backend embeddings.Embedder
		model   = cfg.EmbeddingModel
	)
	switch cfg.EmbeddingProvider {
	case config.EmbeddingHash:
		backend = embedding.NewHashEmbedder(cfg.EmbeddingDimension)
		model = fmt.Sprintf("hash-%d", cfg.EmbeddingDimension)
	case config.EmbeddingOpenAI:
		if model == "" {
			model = "text-embedding-3-small"
		}
		backend = embedding.NewOpenAIBackend(cfg.EmbeddingAPIKey, cfg.EmbeddingBaseURL, model)
	case config.EmbeddingOllama:
		if model == "" {
			model = "nomic-embed-text"
		}
		backend = embedding.NewOllamaBackend(model, cfg.EmbeddingBaseURL)
	case config.EmbeddingLangchain:
		if model == "" {
			model = "text-embedding-3-small"
		}
		opts := []openai.Option{openai.WithToken(cfg.EmbeddingAPIKey), openai.WithEmbeddingModel(model)}
		if cfg.EmbeddingBaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.EmbeddingBaseURL))
		}
		client, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create embedding client: %w", err)
		}
		if backend, err = embeddings.NewEmbedder(client); err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown embedding provider %q", rag.ErrInvalidConfig, cfg.EmbeddingProvider)
	}

	return embedding.NewProvider(backend,
		embedding.WithModelName(model),
		embedding.WithLogger(logger),
	), nil
}

func newLLM(cfg *config.Config) (llms.Model, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.LLMAPIKey),
		openai.WithModel(cfg.LLMModel),
	}
	if cfg.LLMBaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.LLMBaseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}
	return llm, nil
}

// newWebSearcher returns nil when the provider is disabled or has no key.
func newWebSearcher(cfg *config.Config, logger log.Logger) rag.WebSearcher {
	var (
		web rag.WebSearcher
		err error
	)
	switch cfg.WebSearchProvider {
	case config.WebTavily:
		web, err = tool.NewTavilySearch(cfg.TavilyAPIKey, tool.WithTavilyMaxResults(cfg.WebMaxResults))
	case config.WebBrave:
		web, err = tool.NewBraveSearch(cfg.BraveAPIKey, tool.WithBraveCount(cfg.WebMaxResults))
	default:
		return nil
	}
	if err != nil {
		logger.Warn("web search disabled: %v", err)
		return nil
	}
	return tool.Enriching{
		WebSearcher: web,
		Enricher:    tool.NewEnricher(&http.Client{Timeout: 15 * time.Second}, cfg.WebMaxResults, logger),
	}
}
