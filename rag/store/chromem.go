package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	chromem "github.com/philippgille/chromem-go"
	"github.com/smallnest/paperrag/internal/atomicfile"
	"github.com/smallnest/paperrag/rag"
)

const (
	chromemCollection = "paper_chunks"
	chromemFile       = "chromem.gob.gz"
	payloadFile       = "payloads.json"
)

var errNoEmbeddingFunc = errors.New("chromem index only accepts precomputed embeddings")

// noEmbedding is handed to chromem so that a missing vector fails loudly
// instead of triggering a remote embedding call.
func noEmbedding(context.Context, string) ([]float32, error) {
	return nil, errNoEmbeddingFunc
}

// ChromemIndex stores vectors in an in-process chromem-go collection. Chunk
// payloads are kept alongside, keyed by insertion sequence, so chunks
// round-trip exactly and ties resolve by insertion order.
type ChromemIndex struct {
	db         *chromem.DB
	collection *chromem.Collection
	payloads   []rag.Chunk
}

// NewChromemIndex creates an empty ChromemIndex
func NewChromemIndex() (*ChromemIndex, error) {
	db := chromem.NewDB()
	c, err := db.CreateCollection(chromemCollection, nil, noEmbedding)
	if err != nil {
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &ChromemIndex{db: db, collection: c}, nil
}

// Type returns IndexChromem
func (c *ChromemIndex) Type() string { return IndexChromem }

// Len returns the number of indexed chunks
func (c *ChromemIndex) Len() int { return len(c.payloads) }

// Add appends chunks and vectors to the collection
func (c *ChromemIndex) Add(ctx context.Context, chunks []rag.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors must have same length: %d != %d", len(chunks), len(vectors))
	}

	docs := make([]chromem.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = chromem.Document{
			ID:        strconv.Itoa(len(c.payloads) + i),
			Metadata:  rag.StringifyMetadata(chunk.Metadata),
			Embedding: vectors[i],
			Content:   chunk.Text,
		}
	}
	if err := c.collection.AddDocuments(ctx, docs, 1); err != nil {
		return fmt.Errorf("failed to add documents: %w", err)
	}

	c.payloads = append(c.payloads, chunks...)
	return nil
}

// Search queries the collection. chromem narrows candidates with its string
// equality filter; the payloads are then checked with rag.MatchesFilter.
func (c *ChromemIndex) Search(ctx context.Context, query []float32, k int, filter map[string]any) ([]rag.SearchResult, error) {
	if len(c.payloads) == 0 {
		return nil, nil
	}

	// Ask for every candidate so ties at the k boundary resolve by
	// insertion order rather than chromem's internal order.
	hits, err := c.collection.QueryEmbedding(ctx, query, c.collection.Count(), rag.FilterToStrings(filter), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query collection: %w", err)
	}

	type ranked struct {
		seq   int
		score float64
	}
	candidates := make([]ranked, 0, len(hits))
	for _, hit := range hits {
		seq, err := strconv.Atoi(hit.ID)
		if err != nil || seq < 0 || seq >= len(c.payloads) {
			return nil, fmt.Errorf("collection returned unknown document id %q", hit.ID)
		}
		if !rag.MatchesFilter(c.payloads[seq].Metadata, filter) {
			continue
		}
		candidates = append(candidates, ranked{seq: seq, score: float64(hit.Similarity)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].seq < candidates[j].seq
	})
	if k < len(candidates) {
		candidates = candidates[:k]
	}

	results := make([]rag.SearchResult, len(candidates))
	for i, cand := range candidates {
		results[i] = rag.SearchResult{Chunk: c.payloads[cand.seq], Score: cand.score}
	}
	return results, nil
}

// Save exports the collection and writes the payload sidecar
func (c *ChromemIndex) Save(dir string) error {
	tmp := filepath.Join(dir, chromemFile+".tmp")
	if err := c.db.ExportToFile(tmp, true, "", chromemCollection); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to export collection: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, chromemFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to rename export: %w", err)
	}

	data, err := json.Marshal(c.payloads)
	if err != nil {
		return fmt.Errorf("failed to marshal payloads: %w", err)
	}
	return atomicfile.WriteFile(filepath.Join(dir, payloadFile), data, 0644)
}

// Load imports the collection and its payload sidecar
func (c *ChromemIndex) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, payloadFile))
	if err != nil {
		return err
	}
	var payloads []rag.Chunk
	if err := json.Unmarshal(data, &payloads); err != nil {
		return fmt.Errorf("failed to unmarshal payloads: %w", err)
	}

	db := chromem.NewDB()
	if err := db.ImportFromFile(filepath.Join(dir, chromemFile), "", chromemCollection); err != nil {
		return fmt.Errorf("failed to import collection: %w", err)
	}
	collection := db.GetCollection(chromemCollection, noEmbedding)
	if collection == nil {
		return fmt.Errorf("collection %s missing from export", chromemCollection)
	}
	if collection.Count() != len(payloads) {
		return fmt.Errorf("collection has %d documents but %d payloads", collection.Count(), len(payloads))
	}

	c.db = db
	c.collection = collection
	c.payloads = payloads
	return nil
}
