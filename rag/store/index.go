package store

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/smallnest/paperrag/internal/atomicfile"
	"github.com/smallnest/paperrag/rag"
)

// Index types accepted by WithIndexType.
const (
	IndexFlat    = "flat"
	IndexChromem = "chromem"
)

// Index holds vectors and their chunk payloads. Implementations are not safe
// for concurrent use; VectorStore serialises access.
type Index interface {
	// Type returns the index type name written to the manifest
	Type() string

	// Add appends chunks with their vectors, in order
	Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error

	// Search returns the top k chunks matching filter by descending
	// similarity, ties broken by insertion order
	Search(ctx context.Context, query []float32, k int, filter map[string]any) ([]rag.SearchResult, error)

	// Len returns the number of indexed chunks
	Len() int

	// Save writes the index files into dir
	Save(dir string) error

	// Load replaces the index contents with the files in dir
	Load(dir string) error
}

func newIndex(indexType string) (Index, error) {
	switch indexType {
	case IndexFlat, "":
		return NewFlatIndex(), nil
	case IndexChromem:
		return NewChromemIndex()
	default:
		return nil, fmt.Errorf("%w: unknown index type %q", rag.ErrInvalidConfig, indexType)
	}
}

type record struct {
	Chunk  rag.Chunk `json:"chunk"`
	Vector []float32 `json:"vector"`
}

const flatFile = "records.json"

// FlatIndex is an exact brute force cosine index.
type FlatIndex struct {
	records []record
}

// NewFlatIndex creates an empty FlatIndex
func NewFlatIndex() *FlatIndex {
	return &FlatIndex{}
}

// Type returns IndexFlat
func (f *FlatIndex) Type() string { return IndexFlat }

// Len returns the number of records
func (f *FlatIndex) Len() int { return len(f.records) }

// Add appends chunks and vectors
func (f *FlatIndex) Add(_ context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors must have same length: %d != %d", len(chunks), len(vectors))
	}
	for i := range chunks {
		f.records = append(f.records, record{Chunk: chunks[i], Vector: vectors[i]})
	}
	return nil
}

// Search scores every record matching filter
func (f *FlatIndex) Search(_ context.Context, query []float32, k int, filter map[string]any) ([]rag.SearchResult, error) {
	var results []rag.SearchResult
	for _, r := range f.records {
		if !rag.MatchesFilter(r.Chunk.Metadata, filter) {
			continue
		}
		results = append(results, rag.SearchResult{
			Chunk: r.Chunk,
			Score: cosineSimilarity32(query, r.Vector),
		})
	}

	// Records are visited in insertion order, so a stable sort keeps ties in
	// that order.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k < len(results) {
		results = results[:k]
	}
	return results, nil
}

// Save writes records.json
func (f *FlatIndex) Save(dir string) error {
	data, err := json.Marshal(f.records)
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	return atomicfile.WriteFile(filepath.Join(dir, flatFile), data, 0644)
}

// Load reads records.json
func (f *FlatIndex) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, flatFile))
	if err != nil {
		return err
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("failed to unmarshal records: %w", err)
	}
	f.records = records
	return nil
}

// cosineSimilarity32 calculates cosine similarity between two float32 vectors
func cosineSimilarity32(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct float64
	var normA float64
	var normB float64

	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
