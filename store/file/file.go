package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smallnest/paperrag/internal/atomicfile"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// FileMetadataStore keeps every record in one JSON array file. Writes go
// through a temp file and rename, so readers see either the old or the new
// collection.
type FileMetadataStore struct {
	mu   sync.Mutex
	path string
}

var _ store.MetadataStore = (*FileMetadataStore)(nil)

// New creates a store backed by path, creating the parent directory if
// missing. The file itself is created on the first write.
func New(path string) (*FileMetadataStore, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: metadata file path is empty", rag.ErrInvalidConfig)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %w", rag.ErrStorageIO, err)
	}
	return &FileMetadataStore{path: path}, nil
}

// Path returns the backing file path
func (s *FileMetadataStore) Path() string {
	return s.path
}

// LoadAll reads the file. A missing or empty file is an empty collection.
func (s *FileMetadataStore) LoadAll(_ context.Context) ([]rag.PaperMetadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Get returns the record for paperID
func (s *FileMetadataStore) Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error) {
	records, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	return store.FindRecord(records, paperID)
}

// Upsert re-reads the file under the lock, replaces or appends the record and
// rewrites the whole collection.
func (s *FileMetadataStore) Upsert(_ context.Context, record rag.PaperMetadata) error {
	if err := store.Validate(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	return s.write(store.UpsertRecords(records, store.Normalize(record)))
}

// Delete removes the record for paperID
func (s *FileMetadataStore) Delete(_ context.Context, paperID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.read()
	if err != nil {
		return err
	}
	remaining, removed := store.DeleteRecord(records, paperID)
	if !removed {
		return nil
	}
	return s.write(remaining)
}

// Close is a no-op
func (s *FileMetadataStore) Close() error {
	return nil
}

func (s *FileMetadataStore) read() ([]rag.PaperMetadata, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []rag.PaperMetadata{}, nil
		}
		return nil, fmt.Errorf("%w: failed to read %s: %w", rag.ErrStorageIO, s.path, err)
	}
	if len(data) == 0 {
		return []rag.PaperMetadata{}, nil
	}

	var records []rag.PaperMetadata
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: failed to parse %s: %w", rag.ErrStorageIO, s.path, err)
	}
	if records == nil {
		records = []rag.PaperMetadata{}
	}
	return records, nil
}

func (s *FileMetadataStore) write(records []rag.PaperMetadata) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal records: %w", err)
	}
	if err := atomicfile.WriteFile(s.path, data, 0644); err != nil {
		return fmt.Errorf("%w: %w", rag.ErrStorageIO, err)
	}
	return nil
}
