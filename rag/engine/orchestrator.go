package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/prompts"
)

// DefaultK is the number of chunks retrieved when no k is given.
const DefaultK = 4

// Searcher is the retrieval surface the engine needs. *store.VectorStore
// implements it.
type Searcher interface {
	IsInitialized() bool
	Search(ctx context.Context, query string, k int, filter map[string]any) ([]rag.Chunk, error)
}

// QueryResult is the answer to a question together with what it was built from.
type QueryResult struct {
	Answer   string      `json:"answer"`
	Sources  []string    `json:"sources"`
	Sections []string    `json:"sections"`
	Context  string      `json:"context"`
	Chunks   []rag.Chunk `json:"chunks"`
}

// Orchestrator composes retrieval, context formatting and generation.
type Orchestrator struct {
	searcher    Searcher
	llm         llms.Model
	web         rag.WebSearcher
	defaultK    int
	temperature float64
	prompt      prompts.PromptTemplate
	logger      log.Logger
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithDefaultK sets the retrieval count used when a query passes no k
func WithDefaultK(k int) Option {
	return func(o *Orchestrator) {
		if k > 0 {
			o.defaultK = k
		}
	}
}

// WithTemperature sets the sampling temperature passed to the model
func WithTemperature(t float64) Option {
	return func(o *Orchestrator) {
		o.temperature = t
	}
}

// WithPromptTemplate replaces the research analyst prompt. The template must
// reference {{.context}} and {{.question}}.
func WithPromptTemplate(template string) Option {
	return func(o *Orchestrator) {
		o.prompt = newPrompt(template)
	}
}

// WithWebSearcher enables the web and hybrid answer modes
func WithWebSearcher(web rag.WebSearcher) Option {
	return func(o *Orchestrator) {
		o.web = web
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// NewOrchestrator creates an Orchestrator over searcher and llm
func NewOrchestrator(searcher Searcher, llm llms.Model, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		searcher: searcher,
		llm:      llm,
		defaultK: DefaultK,
		prompt:   newPrompt(DefaultPromptTemplate),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = log.Or(o.logger)
	return o
}

type queryConfig struct {
	k      int
	filter map[string]any
}

// QueryOption configures a single retrieval
type QueryOption func(*queryConfig)

// WithK sets the number of chunks to retrieve
func WithK(k int) QueryOption {
	return func(c *queryConfig) {
		c.k = k
	}
}

// WithFilter restricts retrieval to chunks whose metadata equals every entry
func WithFilter(filter map[string]any) QueryOption {
	return func(c *queryConfig) {
		c.filter = filter
	}
}

func (o *Orchestrator) queryConfig(opts []QueryOption) queryConfig {
	cfg := queryConfig{k: o.defaultK}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.k <= 0 {
		cfg.k = o.defaultK
	}
	return cfg
}

// Retrieve returns the chunks most relevant to query. An empty or
// uninitialized store yields no chunks rather than an error.
func (o *Orchestrator) Retrieve(ctx context.Context, query string, opts ...QueryOption) ([]rag.Chunk, error) {
	if o.searcher == nil || !o.searcher.IsInitialized() {
		return []rag.Chunk{}, nil
	}
	cfg := o.queryConfig(opts)

	chunks, err := o.searcher.Search(ctx, query, cfg.k, cfg.filter)
	if errors.Is(err, rag.ErrNotInitialized) {
		// The store was cleared between the check and the search.
		return []rag.Chunk{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve: %w", err)
	}
	o.logger.Debug("retrieved %d chunks for %q", len(chunks), query)
	return chunks, nil
}

// FormatContext numbers chunks from 1 and labels each with its title.
func FormatContext(chunks []rag.Chunk) string {
	if len(chunks) == 0 {
		return NoContext
	}
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		parts[i] = fmt.Sprintf("[Document %d] (Source: %s)\n%s", i+1, c.Title(), c.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Generate answers query from contextText with a single model call. A blank
// model reply is replaced by InsufficientContext.
func (o *Orchestrator) Generate(ctx context.Context, query, contextText string) (string, error) {
	messages, err := o.messages(query, contextText)
	if err != nil {
		return "", err
	}

	resp, err := o.llm.GenerateContent(ctx, messages, llms.WithTemperature(o.temperature))
	if err != nil {
		return "", fmt.Errorf("failed to generate answer: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("no response from LLM")
	}

	answer := strings.TrimSpace(resp.Choices[0].Content)
	if answer == "" {
		answer = InsufficientContext
	}
	return answer, nil
}

type streamEnd struct {
	content string
	err     error
}

// GenerateStream is Generate delivered as fragments. The model call starts on
// the first pull; stopping the iteration cancels it.
func (o *Orchestrator) GenerateStream(ctx context.Context, query, contextText string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		messages, err := o.messages(query, contextText)
		if err != nil {
			yield("", err)
			return
		}

		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		fragments := make(chan string)
		done := make(chan streamEnd, 1)

		go func() {
			streamingFunc := func(ctx context.Context, chunk []byte) error {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case fragments <- string(chunk):
					return nil
				}
			}
			resp, err := o.llm.GenerateContent(ctx, messages,
				llms.WithTemperature(o.temperature),
				llms.WithStreamingFunc(streamingFunc))
			end := streamEnd{err: err}
			if err == nil && resp != nil && len(resp.Choices) > 0 {
				end.content = resp.Choices[0].Content
			}
			close(fragments)
			done <- end
		}()

		streamed := false
		for fragment := range fragments {
			if fragment == "" {
				continue
			}
			streamed = true
			if !yield(fragment, nil) {
				// With nobody receiving, the streaming func can only observe
				// the cancellation.
				cancel()
				<-done
				return
			}
		}

		end := <-done
		if end.err != nil {
			yield("", fmt.Errorf("failed to generate answer: %w", end.err))
			return
		}
		// Providers without streaming support only return the full reply.
		if !streamed {
			answer := strings.TrimSpace(end.content)
			if answer == "" {
				answer = InsufficientContext
			}
			yield(answer, nil)
		}
	}
}

// Query retrieves, formats and generates in one call.
func (o *Orchestrator) Query(ctx context.Context, question string, opts ...QueryOption) (*QueryResult, error) {
	chunks, err := o.Retrieve(ctx, question, opts...)
	if err != nil {
		return nil, err
	}
	contextText := FormatContext(chunks)

	answer, err := o.Generate(ctx, question, contextText)
	if err != nil {
		return nil, err
	}

	return &QueryResult{
		Answer:   answer,
		Sources:  Sources(chunks),
		Sections: Sections(chunks),
		Context:  contextText,
		Chunks:   chunks,
	}, nil
}

// QueryStream is Query with a streamed answer. Retrieval happens on the first
// pull.
func (o *Orchestrator) QueryStream(ctx context.Context, question string, opts ...QueryOption) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		chunks, err := o.Retrieve(ctx, question, opts...)
		if err != nil {
			yield("", err)
			return
		}
		for fragment, err := range o.GenerateStream(ctx, question, FormatContext(chunks)) {
			if !yield(fragment, err) {
				return
			}
		}
	}
}

// Sources returns the sorted, distinct titles of chunks.
func Sources(chunks []rag.Chunk) []string {
	titles := make([]string, 0, len(chunks))
	for _, c := range chunks {
		titles = append(titles, c.Title())
	}
	return sortedUnique(titles)
}

// Sections returns the sorted, distinct section names of chunks.
func Sections(chunks []rag.Chunk) []string {
	names := make([]string, 0, len(chunks))
	for _, c := range chunks {
		if s := c.Section(); s != "" {
			names = append(names, s)
		}
	}
	return sortedUnique(names)
}

func sortedUnique(values []string) []string {
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}

func (o *Orchestrator) messages(query, contextText string) ([]llms.MessageContent, error) {
	prompt, err := renderPrompt(o.prompt, query, contextText)
	if err != nil {
		return nil, err
	}
	return []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}, nil
}
