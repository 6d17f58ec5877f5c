package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// SqliteMetadataStore implements store.MetadataStore using SQLite
type SqliteMetadataStore struct {
	db        *sql.DB
	tableName string
}

var _ store.MetadataStore = (*SqliteMetadataStore)(nil)

// SqliteOptions configuration for SQLite connection
type SqliteOptions struct {
	Path      string
	TableName string // Default "papers"
}

// NewSqliteMetadataStore opens the database and creates the table if needed
func NewSqliteMetadataStore(opts SqliteOptions) (*SqliteMetadataStore, error) {
	db, err := sql.Open("sqlite3", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: unable to open database: %w", rag.ErrStorageIO, err)
	}
	// One connection serialises writers and keeps ":memory:" databases
	// from splitting across connections.
	db.SetMaxOpenConns(1)

	tableName := opts.TableName
	if tableName == "" {
		tableName = "papers"
	}

	s := &SqliteMetadataStore{
		db:        db,
		tableName: tableName,
	}

	if err := s.InitSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// InitSchema creates the necessary table if it doesn't exist
func (s *SqliteMetadataStore) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			paper_id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			authors TEXT NOT NULL,
			year INTEGER,
			venue TEXT,
			keywords TEXT NOT NULL,
			summary TEXT NOT NULL
		);
	`, s.tableName)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("%w: failed to create schema: %w", rag.ErrStorageIO, err)
	}
	return nil
}

// Close closes the database connection
func (s *SqliteMetadataStore) Close() error {
	return s.db.Close()
}

// Upsert inserts the record or replaces the row with the same paper_id. The
// row keeps its rowid, so ordering is by first insertion.
func (s *SqliteMetadataStore) Upsert(ctx context.Context, record rag.PaperMetadata) error {
	if err := store.Validate(record); err != nil {
		return err
	}
	record = store.Normalize(record)

	authors, keywords, summary, err := marshalLists(record)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (paper_id, title, authors, year, venue, keywords, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(paper_id) DO UPDATE SET
			title = excluded.title,
			authors = excluded.authors,
			year = excluded.year,
			venue = excluded.venue,
			keywords = excluded.keywords,
			summary = excluded.summary
	`, s.tableName)

	_, err = s.db.ExecContext(ctx, query,
		record.PaperID,
		record.Title,
		authors,
		nullInt(record.Year),
		nullString(record.Venue),
		keywords,
		summary,
	)
	if err != nil {
		return fmt.Errorf("%w: failed to upsert paper %s: %w", rag.ErrStorageIO, record.PaperID, err)
	}
	return nil
}

// Get retrieves a record by paper_id
func (s *SqliteMetadataStore) Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error) {
	query := fmt.Sprintf(`
		SELECT paper_id, title, authors, year, venue, keywords, summary
		FROM %s
		WHERE paper_id = ?
	`, s.tableName)

	record, err := scanRecord(s.db.QueryRowContext(ctx, query, paperID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: paper %s", rag.ErrNotFound, paperID)
		}
		return nil, fmt.Errorf("%w: failed to load paper: %w", rag.ErrStorageIO, err)
	}
	return record, nil
}

// LoadAll returns every record in insertion order
func (s *SqliteMetadataStore) LoadAll(ctx context.Context) ([]rag.PaperMetadata, error) {
	query := fmt.Sprintf(`
		SELECT paper_id, title, authors, year, venue, keywords, summary
		FROM %s
		ORDER BY rowid ASC
	`, s.tableName)

	rows, err := s.db.QueryContext(ctx, query)
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
func (s *SqliteMetadataStore) Delete(ctx context.Context, paperID string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE paper_id = ?", s.tableName)
	if _, err := s.db.ExecContext(ctx, query, paperID); err != nil {
		return fmt.Errorf("%w: failed to delete paper: %w", rag.ErrStorageIO, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*rag.PaperMetadata, error) {
	var (
		record                     rag.PaperMetadata
		authors, keywords, summary string
		year                       sql.NullInt64
		venue                      sql.NullString
	)
	if err := row.Scan(&record.PaperID, &record.Title, &authors, &year, &venue, &keywords, &summary); err != nil {
		return nil, err
	}
	if err := unmarshalLists(&record, authors, keywords, summary); err != nil {
		return nil, err
	}
	if year.Valid {
		record.Year = rag.IntPtr(int(year.Int64))
	}
	if venue.Valid {
		record.Venue = rag.StringPtr(venue.String)
	}
	return &record, nil
}

func marshalLists(record rag.PaperMetadata) (authors, keywords, summary string, err error) {
	lists := [][]string{record.Authors, record.Keywords, record.Summary}
	out := make([]string, len(lists))
	for i, l := range lists {
		b, err := json.Marshal(l)
		if err != nil {
			return "", "", "", fmt.Errorf("failed to marshal list: %w", err)
		}
		out[i] = string(b)
	}
	return out[0], out[1], out[2], nil
}

func unmarshalLists(record *rag.PaperMetadata, authors, keywords, summary string) error {
	targets := []*[]string{&record.Authors, &record.Keywords, &record.Summary}
	for i, raw := range []string{authors, keywords, summary} {
		if err := json.Unmarshal([]byte(raw), targets[i]); err != nil {
			return fmt.Errorf("failed to unmarshal list: %w", err)
		}
		if *targets[i] == nil {
			*targets[i] = []string{}
		}
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}
