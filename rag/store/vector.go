package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/smallnest/paperrag/internal/atomicfile"
	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
)

const (
	manifestFile    = "manifest.json"
	manifestVersion = 1

	// DefaultK is the number of results returned when k is not positive.
	DefaultK = 4
)

// Manifest describes a saved index. It carries the embedding model identity
// needed to reject incompatible query embeddings after a reload.
type Manifest struct {
	Version    int       `json:"version"`
	IndexType  string    `json:"index_type"`
	ModelName  string    `json:"model_name"`
	Dimensions int       `json:"dimensions"`
	Count      int       `json:"count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Stats summarises the store
type Stats struct {
	Initialized bool
	IndexType   string
	ModelName   string
	Dimension   int
	Count       int
}

// VectorStore embeds chunks and serves similarity search over them. It is
// Uninitialized until Create, Add or Load succeeds, and returns to
// Uninitialized on Clear.
type VectorStore struct {
	mu        sync.RWMutex
	embedder  rag.Embedder
	indexType string
	defaultK  int
	modelName string
	logger    log.Logger

	index     Index
	dimension int
	createdAt time.Time
}

// Option configures the VectorStore
type Option func(*VectorStore)

// WithIndexType selects the index implementation: IndexFlat or IndexChromem.
func WithIndexType(indexType string) Option {
	return func(s *VectorStore) {
		s.indexType = indexType
	}
}

// WithDefaultK sets the result count used when a search passes k <= 0
func WithDefaultK(k int) Option {
	return func(s *VectorStore) {
		if k > 0 {
			s.defaultK = k
		}
	}
}

// WithModelName records the embedding model identity. It defaults to the
// embedder's ModelName when the embedder implements rag.ModelNamer.
func WithModelName(name string) Option {
	return func(s *VectorStore) {
		s.modelName = name
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(s *VectorStore) {
		s.logger = logger
	}
}

// New creates an Uninitialized VectorStore
func New(embedder rag.Embedder, opts ...Option) *VectorStore {
	s := &VectorStore{
		embedder:  embedder,
		indexType: IndexFlat,
		defaultK:  DefaultK,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.modelName == "" {
		if namer, ok := embedder.(rag.ModelNamer); ok {
			s.modelName = namer.ModelName()
		}
	}
	s.logger = log.Or(s.logger)
	return s
}

// IsInitialized reports whether the store holds an index
func (s *VectorStore) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index != nil
}

// Len returns the number of indexed chunks
func (s *VectorStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return 0
	}
	return s.index.Len()
}

// Stats returns a snapshot of the store's state
func (s *VectorStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Initialized: s.index != nil,
		IndexType:   s.indexType,
		ModelName:   s.modelName,
		Dimension:   s.dimension,
	}
	if s.index != nil {
		st.Count = s.index.Len()
	}
	return st
}

// Create embeds chunks into a fresh index, replacing any existing one. Empty
// input returns rag.ErrEmptyInput and leaves the store unchanged.
func (s *VectorStore) Create(ctx context.Context, chunks []rag.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("%w: no chunks to index", rag.ErrEmptyInput)
	}

	vectors, dim, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	index, err := newIndex(s.indexType)
	if err != nil {
		return err
	}
	if err := index.Add(ctx, rag.CloneChunks(chunks), vectors); err != nil {
		return fmt.Errorf("failed to build index: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.dimension = dim
	s.createdAt = time.Now().UTC()
	s.logger.Info("created %s index with %d chunks (dim=%d)", s.indexType, len(chunks), dim)
	return nil
}

// Add appends chunks to the index. An Uninitialized store behaves as Create;
// empty input on an initialized store is a no-op.
func (s *VectorStore) Add(ctx context.Context, chunks []rag.Chunk) error {
	if !s.IsInitialized() {
		return s.Create(ctx, chunks)
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors, dim, err := s.embed(ctx, chunks)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index == nil {
		return fmt.Errorf("%w: store was cleared during add", rag.ErrNotInitialized)
	}
	if dim != s.dimension {
		return fmt.Errorf("%w: index has %d, new chunks have %d", rag.ErrDimensionMismatch, s.dimension, dim)
	}
	if err := s.index.Add(ctx, rag.CloneChunks(chunks), vectors); err != nil {
		return fmt.Errorf("failed to add to index: %w", err)
	}
	s.logger.Debug("added %d chunks, index now holds %d", len(chunks), s.index.Len())
	return nil
}

// Search returns the k chunks most similar to query whose metadata matches
// every filter entry.
func (s *VectorStore) Search(ctx context.Context, query string, k int, filter map[string]any) ([]rag.Chunk, error) {
	results, err := s.SearchWithScores(ctx, query, k, filter)
	if err != nil {
		return nil, err
	}
	chunks := make([]rag.Chunk, len(results))
	for i, r := range results {
		chunks[i] = r.Chunk
	}
	return chunks, nil
}

// SearchWithScores is Search with similarity scores attached.
func (s *VectorStore) SearchWithScores(ctx context.Context, query string, k int, filter map[string]any) ([]rag.SearchResult, error) {
	if !s.IsInitialized() {
		return nil, rag.ErrNotInitialized
	}
	if k <= 0 {
		k = s.defaultK
	}

	vector, err := s.embedder.EmbedDocument(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return nil, rag.ErrNotInitialized
	}
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("%w: index has %d, query has %d", rag.ErrDimensionMismatch, s.dimension, len(vector))
	}

	results, err := s.index.Search(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search index: %w", err)
	}
	for i := range results {
		results[i].Chunk = rag.CloneChunks([]rag.Chunk{results[i].Chunk})[0]
	}
	return results, nil
}

// Save writes the index and manifest.json into dir, creating it if needed.
func (s *VectorStore) Save(dir string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.index == nil {
		return rag.ErrNotInitialized
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("%w: failed to create %s: %w", rag.ErrStorageIO, dir, err)
	}
	if err := s.index.Save(dir); err != nil {
		return fmt.Errorf("%w: failed to save index: %w", rag.ErrStorageIO, err)
	}

	manifest := Manifest{
		Version:    manifestVersion,
		IndexType:  s.index.Type(),
		ModelName:  s.modelName,
		Dimensions: s.dimension,
		Count:      s.index.Len(),
		CreatedAt:  s.createdAt,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	// The manifest is written last; a directory without one is not a saved index.
	if err := atomicfile.WriteFile(filepath.Join(dir, manifestFile), data, 0644); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStorageIO, err)
	}

	s.logger.Info("saved %d chunks to %s", manifest.Count, dir)
	return nil
}

// ReadManifest reads the manifest of a saved index.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: no saved index in %s", rag.ErrNotFound, dir)
		}
		return nil, fmt.Errorf("%w: %w", rag.ErrStorageIO, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: corrupt manifest: %w", rag.ErrStorageIO, err)
	}
	return &m, nil
}

// Load replaces the store's contents with the index saved in dir. The saved
// model and dimension must agree with the store's embedder.
func (s *VectorStore) Load(dir string) error {
	manifest, err := ReadManifest(dir)
	if err != nil {
		return err
	}

	if s.modelName != "" && manifest.ModelName != "" && s.modelName != manifest.ModelName {
		return fmt.Errorf("%w: index built with %q, store uses %q", rag.ErrModelMismatch, manifest.ModelName, s.modelName)
	}
	if dim := s.embedder.GetDimension(); dim > 0 && dim != manifest.Dimensions {
		return fmt.Errorf("%w: index has %d, embedder produces %d", rag.ErrDimensionMismatch, manifest.Dimensions, dim)
	}

	index, err := newIndex(manifest.IndexType)
	if err != nil {
		return err
	}
	if err := index.Load(dir); err != nil {
		return fmt.Errorf("%w: failed to load index: %w", rag.ErrStorageIO, err)
	}
	if index.Len() != manifest.Count {
		return fmt.Errorf("%w: manifest lists %d chunks, index holds %d", rag.ErrStorageIO, manifest.Count, index.Len())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = index
	s.indexType = manifest.IndexType
	s.dimension = manifest.Dimensions
	s.createdAt = manifest.CreatedAt
	if s.modelName == "" {
		s.modelName = manifest.ModelName
	}
	s.logger.Info("loaded %d chunks from %s", index.Len(), dir)
	return nil
}

// Clear drops the in-memory index. Saved files are left untouched.
func (s *VectorStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.index = nil
	s.dimension = 0
	s.createdAt = time.Time{}
}

// embed embeds chunk texts and checks they share one dimension.
func (s *VectorStore) embed(ctx context.Context, chunks []rag.Chunk) ([][]float32, int, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return nil, 0, fmt.Errorf("%w: embedder returned an empty vector", rag.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return nil, 0, fmt.Errorf("%w: vector %d has %d, expected %d", rag.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return vectors, dim, nil
}
