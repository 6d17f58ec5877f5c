// Package ingest turns paper files into indexed, metadata-enriched chunks.
//
// A file goes through four steps: the loader reads and segments it into
// sections, the extractor derives structured metadata from the leading
// sections (and upserts it), the splitter chunks every section except the
// references, and the metadata is attached to each chunk. Batches are
// best-effort: a failing file is reported and skipped, and chunks of files
// that succeeded are added to the vector store one file at a time.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/rag/extract"
	"github.com/smallnest/paperrag/rag/loader"
	"github.com/smallnest/paperrag/rag/splitter"
	"golang.org/x/sync/errgroup"
)

// Indexer receives the chunks of each ingested file. *store.VectorStore
// implements it.
type Indexer interface {
	Add(ctx context.Context, chunks []rag.Chunk) error
}

// Extractor derives paper metadata from sections. *extract.Extractor
// implements it.
type Extractor interface {
	Extract(ctx context.Context, sections []rag.PaperSection, source string) (*rag.PaperMetadata, error)
}

// Result is the outcome of ingesting one file
type Result struct {
	Source   string             `json:"source"`
	Metadata *rag.PaperMetadata `json:"metadata,omitempty"`
	Sections []rag.PaperSection `json:"sections"`
	Chunks   []rag.Chunk        `json:"chunks"`
}

// Failure records a file that could not be ingested
type Failure struct {
	Source string `json:"source"`
	Err    error  `json:"-"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %v", f.Source, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// BatchResult is the outcome of ingesting several files
type BatchResult struct {
	Results  []*Result `json:"results"`
	Failures []Failure `json:"failures"`
}

// Chunks returns the number of chunks across all successful files
func (b *BatchResult) Chunks() int {
	n := 0
	for _, r := range b.Results {
		n += len(r.Chunks)
	}
	return n
}

// Pipeline runs the ingestion steps for files
type Pipeline struct {
	processor   *loader.Processor
	splitter    *splitter.RecursiveCharacterTextSplitter
	extractor   Extractor
	indexer     Indexer
	concurrency int
	logger      log.Logger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithExtractor enables metadata extraction. Without one, chunks carry only
// source, section and chunk_index metadata.
func WithExtractor(e Extractor) Option {
	return func(p *Pipeline) {
		p.extractor = e
	}
}

// WithIndexer sets where batch ingestion adds chunks
func WithIndexer(i Indexer) Option {
	return func(p *Pipeline) {
		p.indexer = i
	}
}

// WithConcurrency sets how many files are processed at once. Chunks are still
// indexed in input order.
func WithConcurrency(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline. A nil processor or splitter gets the defaults.
func New(processor *loader.Processor, sp *splitter.RecursiveCharacterTextSplitter, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		processor:   processor,
		splitter:    sp,
		concurrency: 1,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.Or(p.logger)

	if p.processor == nil {
		p.processor = loader.NewProcessor(loader.WithLogger(p.logger))
	}
	if p.splitter == nil {
		var err error
		if p.splitter, err = splitter.NewRecursiveCharacterTextSplitter(); err != nil {
			return nil, err
		}
	}
	return p, nil
}

type ingestConfig struct {
	chunkSize    int
	chunkOverlap int
	root         string
}

// IngestOption overrides chunking for one call
type IngestOption func(*ingestConfig)

// WithChunkSize overrides the chunk size
func WithChunkSize(n int) IngestOption {
	return func(c *ingestConfig) {
		c.chunkSize = n
	}
}

// WithChunkOverlap overrides the chunk overlap
func WithChunkOverlap(n int) IngestOption {
	return func(c *ingestConfig) {
		c.chunkOverlap = n
	}
}

// WithSourceRoot sets the directory that source metadata is relative to.
// Without it a file's source is its base name.
func WithSourceRoot(dir string) IngestOption {
	return func(c *ingestConfig) {
		c.root = dir
	}
}

func (p *Pipeline) configFor(opts []IngestOption) ingestConfig {
	cfg := ingestConfig{
		chunkSize:    p.splitter.ChunkSize(),
		chunkOverlap: p.splitter.ChunkOverlap(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (p *Pipeline) splitterFor(cfg ingestConfig) (*splitter.RecursiveCharacterTextSplitter, error) {
	if cfg.chunkSize == p.splitter.ChunkSize() && cfg.chunkOverlap == p.splitter.ChunkOverlap() {
		return p.splitter, nil
	}
	return splitter.NewRecursiveCharacterTextSplitter(
		splitter.WithChunkSize(cfg.chunkSize),
		splitter.WithChunkOverlap(cfg.chunkOverlap),
	)
}

// Ingest processes one file into chunks. It does not index them; see
// IndexInto and IngestPaths.
func (p *Pipeline) Ingest(ctx context.Context, path string, opts ...IngestOption) (*Result, error) {
	cfg := p.configFor(opts)
	sp, err := p.splitterFor(cfg)
	if err != nil {
		return nil, err
	}

	processed, err := p.processor.Process(ctx, path)
	if err != nil {
		return nil, err
	}

	source := sourceName(cfg.root, path)
	base := map[string]any{rag.MetaSource: source}
	chunks := sp.SplitSections(processed.Sections, base, rag.SectionReferences)

	result := &Result{
		Source:   path,
		Sections: processed.Sections,
		Chunks:   chunks,
	}

	if p.extractor != nil {
		md, err := p.extractor.Extract(ctx, processed.Sections, source)
		if err != nil {
			return nil, err
		}
		result.Metadata = md
		result.Chunks = extract.Attach(chunks, md)
	}

	p.logger.Info("ingested %s: %d sections, %d chunks", path, len(result.Sections), len(result.Chunks))
	return result, nil
}

// IndexInto adds one file's chunks to indexer. A file without chunks is
// skipped.
func IndexInto(ctx context.Context, indexer Indexer, result *Result) error {
	if indexer == nil || result == nil || len(result.Chunks) == 0 {
		return nil
	}
	if err := indexer.Add(ctx, result.Chunks); err != nil {
		return fmt.Errorf("failed to index %s: %w", result.Source, err)
	}
	return nil
}

// IngestPaths ingests every path, best-effort. Files are processed with the
// configured concurrency and indexed in input order; a file that fails at
// any step is recorded in Failures and leaves the index as it was. Unless
// WithSourceRoot is given, sources are relative to the deepest directory
// holding every path, so equal file names in different directories stay
// distinct.
func (p *Pipeline) IngestPaths(ctx context.Context, paths []string, opts ...IngestOption) (*BatchResult, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no files to ingest", rag.ErrEmptyInput)
	}
	cfg := p.configFor(opts)
	if _, err := p.splitterFor(cfg); err != nil {
		return nil, err
	}
	if cfg.root == "" {
		opts = append(slices.Clip(opts), WithSourceRoot(commonDir(paths)))
	}

	results := make([]*Result, len(paths))
	errs := make([]error, len(paths))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i, path := range paths {
		g.Go(func() error {
			results[i], errs[i] = p.Ingest(gctx, path, opts...)
			return nil
		})
	}
	_ = g.Wait()

	batch := &BatchResult{Results: []*Result{}, Failures: []Failure{}}
	for i, path := range paths {
		if errs[i] == nil {
			errs[i] = IndexInto(ctx, p.indexer, results[i])
		}
		if errs[i] != nil {
			p.logger.Warn("skipping %s: %v", path, errs[i])
			batch.Failures = append(batch.Failures, Failure{Source: path, Err: errs[i]})
			continue
		}
		batch.Results = append(batch.Results, results[i])
	}

	if err := ctx.Err(); err != nil {
		return batch, err
	}
	p.logger.Info("ingested %d of %d files (%d chunks)", len(batch.Results), len(paths), batch.Chunks())
	return batch, nil
}

// IngestDir ingests the supported files directly inside dir. exts narrows
// the accepted extensions; by default every supported format is taken.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, exts ...string) (*BatchResult, error) {
	paths, err := ListFiles(dir, exts...)
	if err != nil {
		return nil, err
	}
	return p.IngestPaths(ctx, paths)
}

// ListFiles returns the sorted paths of supported files directly inside dir.
// A missing directory wraps rag.ErrNotFound and a directory with no matching
// file wraps rag.ErrEmptyInput.
func ListFiles(dir string, exts ...string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: directory %s", rag.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	if len(exts) == 0 {
		exts = loader.SupportedExtensions()
	}
	accepted := make([]string, len(exts))
	for i, ext := range exts {
		accepted[i] = strings.ToLower(ext)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if slices.Contains(accepted, ext) && loader.IsSupported(entry.Name()) {
			paths = append(paths, filepath.Join(dir, entry.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no supported files in %s", rag.ErrEmptyInput, dir)
	}
	slices.Sort(paths)
	return paths, nil
}

// sourceName is path relative to root with forward slashes. An empty root
// gives the base name and a path outside root is kept as given.
func sourceName(root, path string) string {
	if root == "" {
		return filepath.Base(path)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return filepath.ToSlash(filepath.Clean(path))
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(filepath.Clean(path))
	}
	return filepath.ToSlash(rel)
}

// commonDir returns the deepest directory that contains every path, or ""
// when the paths cannot be made absolute.
func commonDir(paths []string) string {
	sep := string(filepath.Separator)
	var common []string
	for i, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			return ""
		}
		parts := strings.Split(filepath.Dir(abs), sep)
		if i == 0 {
			common = parts
			continue
		}
		n := 0
		for n < len(common) && n < len(parts) && common[n] == parts[n] {
			n++
		}
		common = common[:n]
	}

	dir := strings.Join(common, sep)
	if dir == "" && len(common) > 0 {
		return sep
	}
	return dir
}
