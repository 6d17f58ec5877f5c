package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// DBPool defines the interface for database connection pool
type DBPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresMetadataStore implements store.MetadataStore using PostgreSQL
type PostgresMetadataStore struct {
	pool      DBPool
	tableName string
}

var _ store.MetadataStore = (*PostgresMetadataStore)(nil)

// PostgresOptions configuration for Postgres connection
type PostgresOptions struct {
	ConnString string
	TableName  string // Default "papers"
}

// NewPostgresMetadataStore connects to Postgres and creates the table if needed
func NewPostgresMetadataStore(ctx context.Context, opts PostgresOptions) (*PostgresMetadataStore, error) {
	pool, err := pgxpool.New(ctx, opts.ConnString)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to create connection pool: %w", rag.ErrStorageIO, err)
	}

	s := NewPostgresMetadataStoreWithPool(pool, opts.TableName)
	if err := s.InitSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresMetadataStoreWithPool creates a store over an existing pool
// Useful for testing with mocks
func NewPostgresMetadataStoreWithPool(pool DBPool, tableName string) *PostgresMetadataStore {
	if tableName == "" {
		tableName = "papers"
	}
	return &PostgresMetadataStore{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the necessary table if it doesn't exist
func (s *PostgresMetadataStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			position BIGSERIAL,
			paper_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors JSONB NOT NULL,
			year INTEGER,
			venue TEXT,
			keywords JSONB NOT NULL,
			summary JSONB NOT NULL
		);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("%w: failed to create schema: %w", rag.ErrStorageIO, err)
	}
	return nil
}

// Close closes the connection pool
func (s *PostgresMetadataStore) Close() error {
	s.pool.Close()
	return nil
}

// Upsert inserts the record or replaces the row with the same paper_id. The
// position column is untouched on conflict, preserving insertion order.
func (s *PostgresMetadataStore) Upsert(ctx context.Context, record rag.PaperMetadata) error {
	if err := store.Validate(record); err != nil {
		return err
	}
	record = store.Normalize(record)

	authors, err := json.Marshal(record.Authors)
	if err != nil {
		return fmt.Errorf("failed to marshal authors: %w", err)
	}
	keywords, err := json.Marshal(record.Keywords)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	summary, err := json.Marshal(record.Summary)
	if err != nil {
		return fmt.Errorf("failed to marshal summary: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (paper_id, title, authors, year, venue, keywords, summary)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (paper_id) DO UPDATE SET
			title = EXCLUDED.title,
			authors = EXCLUDED.authors,
			year = EXCLUDED.year,
			venue = EXCLUDED.venue,
			keywords = EXCLUDED.keywords,
			summary = EXCLUDED.summary
	`, s.tableName)

	_, err = s.pool.Exec(ctx, query,
		record.PaperID,
		record.Title,
		authors,
		record.Year,
		record.Venue,
		keywords,
		summary,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert paper %s: %w", rag.ErrStorageIO, record.PaperID, err)
	}
	return nil
}

// Get retrieves a record by paper_id
func (s *PostgresMetadataStore) Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error) {
	query := fmt.Sprintf(`
		SELECT paper_id, title, authors, year, venue, keywords, summary
		FROM %s
		WHERE paper_id = $1
	`, s.tableName)

	record, err := scanRecord(s.pool.QueryRow(ctx, query, paperID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: paper %s", rag.ErrNotFound, paperID)
		}
		return nil, fmt.Errorf("%w: failed to load paper: %w", rag.ErrStorageIO, err)
	}
	return record, nil
}

// LoadAll returns every record in insertion order
func (s *PostgresMetadataStore) LoadAll(ctx context.Context) ([]rag.PaperMetadata, error) {
	query := fmt.Sprintf(`
		SELECT paper_id, title, authors, year, venue, keywords, summary
		FROM %s
		ORDER BY position ASC
	`, s.tableName)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list papers: %w", rag.ErrStorageIO, err)
	}
	defer rows.Close()

	records := []rag.PaperMetadata{}
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to scan paper row: %w", rag.ErrStorageIO, err)
		}
		records = append(records, *record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: error iterating paper rows: %w", rag.ErrStorageIO, err)
	}

	return records, nil
}

// Delete removes a record
func (s *PostgresMetadataStore) Delete(ctx context.Context, paperID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE paper_id = $1", s.tableName)
	if _, err := s.pool.Exec(ctx, query, paperID); err != nil {
		return fmt.Errorf("%w: failed to delete paper: %w", rag.ErrStorageIO, err)
	}
	return nil
}

func scanRecord(row pgx.Row) (*rag.PaperMetadata, error) {
	var (
		record                     rag.PaperMetadata
		authors, keywords, summary []byte
	)
	err := row.Scan(
		&record.PaperID,
		&record.Title,
		&authors,
		&record.Year,
		&record.Venue,
		&keywords,
		&summary,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range []struct {
		raw    []byte
		target *[]string
	}{
		{authors, &record.Authors},
		{keywords, &record.Keywords},
		{summary, &record.Summary},
	} {
		if err := json.Unmarshal(f.raw, f.target); err != nil {
			return nil, fmt.Errorf("failed to unmarshal list: %w", err)
		}
		if *f.target == nil {
			*f.target = []string{}
		}
	}
	return &record, nil
}
