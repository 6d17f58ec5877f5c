package memory

import (
	"context"
	"sync"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// MemoryMetadataStore keeps records in memory. It is owned by whoever
// constructs it; nothing is shared between instances.
type MemoryMetadataStore struct {
	mu      sync.RWMutex
	records []rag.PaperMetadata
}

var _ store.MetadataStore = (*MemoryMetadataStore)(nil)

// New creates an empty store, optionally seeded with records
func New(seed ...rag.PaperMetadata) *MemoryMetadataStore {
	s := &MemoryMetadataStore{}
	for _, r := range seed {
		s.records = store.UpsertRecords(s.records, store.Normalize(r.Clone()))
	}
	return s
}

// LoadAll returns a deep copy of every record
func (s *MemoryMetadataStore) LoadAll(_ context.Context) ([]rag.PaperMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.CloneRecords(s.records), nil
}

// Get returns the record for paperID
func (s *MemoryMetadataStore) Get(_ context.Context, paperID string) (*rag.PaperMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return store.FindRecord(s.records, paperID)
}

// Upsert replaces or appends the record
func (s *MemoryMetadataStore) Upsert(_ context.Context, record rag.PaperMetadata) error {
	if err := store.Validate(record); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = store.UpsertRecords(s.records, store.Normalize(record.Clone()))
	return nil
}

// Delete removes the record for paperID
func (s *MemoryMetadataStore) Delete(_ context.Context, paperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records, _ = store.DeleteRecord(s.records, paperID)
	return nil
}

// Close is a no-op
func (s *MemoryMetadataStore) Close() error {
	return nil
}
