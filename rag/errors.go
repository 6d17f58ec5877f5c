package rag

import "errors"

// Error kinds surfaced by the core. Callers match them with errors.Is; the
// core wraps them with context using %w.
var (
	ErrNotFound           = errors.New("not found")
	ErrUnsupportedFormat  = errors.New("unsupported format")
	ErrNotInitialized     = errors.New("vector store not initialized")
	ErrDimensionMismatch  = errors.New("embedding dimension mismatch")
	ErrMetadataExtraction = errors.New("metadata extraction failed")
	ErrStorageIO          = errors.New("storage i/o failure")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrEmptyInput    = errors.New("empty input")
	ErrModelMismatch = errors.New("embedding model mismatch")
)
