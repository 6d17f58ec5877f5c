package rag

import (
	"fmt"
	"maps"

	"github.com/tmc/langchaingo/schema"
)

// ToSchemaDocument converts a chunk to a langchaingo schema.Document.
func ToSchemaDocument(c Chunk, score float32) schema.Document {
	metadata := CloneMetadata(c.Metadata)
	if c.ID != "" {
		metadata["id"] = c.ID
	}
	return schema.Document{
		PageContent: c.Text,
		Metadata:    metadata,
		Score:       score,
	}
}

// ToSchemaDocuments converts search results to langchaingo documents.
func ToSchemaDocuments(results []SearchResult) []schema.Document {
	docs := make([]schema.Document, len(results))
	for i, r := range results {
		docs[i] = ToSchemaDocument(r.Chunk, float32(r.Score))
	}
	return docs
}

// FromSchemaDocument converts a langchaingo document to a chunk. The id
// metadata key becomes the chunk ID when present.
func FromSchemaDocument(doc schema.Document) Chunk {
	metadata := CloneMetadata(doc.Metadata)
	id := ""
	if v, ok := metadata["id"]; ok {
		id = fmt.Sprintf("%v", v)
		delete(metadata, "id")
	}
	return Chunk{
		ID:       id,
		Text:     doc.PageContent,
		Metadata: metadata,
	}
}

// CloneMetadata returns a shallow copy of metadata that is never nil.
func CloneMetadata(metadata map[string]any) map[string]any {
	result := make(map[string]any, len(metadata))
	maps.Copy(result, metadata)
	return result
}

// CloneChunks copies chunks and their metadata maps.
func CloneChunks(chunks []Chunk) []Chunk {
	out := make([]Chunk, len(chunks))
	for i, c := range chunks {
		out[i] = Chunk{ID: c.ID, Text: c.Text, Metadata: CloneMetadata(c.Metadata)}
	}
	return out
}
