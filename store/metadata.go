package store

import (
	"context"
	"fmt"
	"slices"

	"github.com/smallnest/paperrag/rag"
)

// MetadataStore persists one PaperMetadata record per paper_id, in first
// insertion order. Implementations make Upsert a single read-check-write
// transaction against their backing storage.
type MetadataStore interface {
	// LoadAll returns every record. Absent storage yields an empty slice.
	LoadAll(ctx context.Context) ([]rag.PaperMetadata, error)

	// Get returns the record for paperID or an error wrapping rag.ErrNotFound
	Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error)

	// Upsert replaces the record with the same paper_id, or appends it
	Upsert(ctx context.Context, record rag.PaperMetadata) error

	// Delete removes the record for paperID. Deleting a missing record is
	// not an error.
	Delete(ctx context.Context, paperID string) error

	// Close releases the underlying resources
	Close() error
}

// Validate checks a record before it is written.
func Validate(record rag.PaperMetadata) error {
	if record.PaperID == "" {
		return fmt.Errorf("%w: paper_id must not be empty", rag.ErrEmptyInput)
	}
	return nil
}

// Normalize replaces nil slices with empty ones so every backend serialises
// a record the same way.
func Normalize(record rag.PaperMetadata) rag.PaperMetadata {
	if record.Authors == nil {
		record.Authors = []string{}
	}
	if record.Keywords == nil {
		record.Keywords = []string{}
	}
	if record.Summary == nil {
		record.Summary = []string{}
	}
	return record
}

// UpsertRecords returns records with record replacing the entry that has the
// same paper_id, or appended when there is none. The input slice is not
// modified.
func UpsertRecords(records []rag.PaperMetadata, record rag.PaperMetadata) []rag.PaperMetadata {
	out := slices.Clone(records)
	for i := range out {
		if out[i].PaperID == record.PaperID {
			out[i] = record
			return out
		}
	}
	return append(out, record)
}

// DeleteRecord returns records without the entry for paperID, and whether one
// was removed.
func DeleteRecord(records []rag.PaperMetadata, paperID string) ([]rag.PaperMetadata, bool) {
	idx := slices.IndexFunc(records, func(r rag.PaperMetadata) bool { return r.PaperID == paperID })
	if idx < 0 {
		return records, false
	}
	return slices.Delete(slices.Clone(records), idx, idx+1), true
}

// CloneRecords deep copies records. The result is never nil.
func CloneRecords(records []rag.PaperMetadata) []rag.PaperMetadata {
	out := make([]rag.PaperMetadata, len(records))
	for i, r := range records {
		out[i] = r.Clone()
	}
	return out
}

// FindRecord returns a deep copy of the record for paperID.
func FindRecord(records []rag.PaperMetadata, paperID string) (*rag.PaperMetadata, error) {
	for _, r := range records {
		if r.PaperID == paperID {
			found := r.Clone()
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: paper %s", rag.ErrNotFound, paperID)
}
