package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/smallnest/paperrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"paper_id", "title", "authors", "year", "venue", "keywords", "summary"}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func samplePaper() rag.PaperMetadata {
	return rag.PaperMetadata{
		PaperID:  "p1",
		Title:    "Attention Is All You Need",
		Authors:  []string{"Vaswani"},
		Year:     rag.IntPtr(2017),
		Venue:    rag.StringPtr("NeurIPS"),
		Keywords: []string{"transformers"},
		Summary:  []string{"Self attention only."},
	}
}

func TestPostgresMetadataStore_InitSchema(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "")

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS papers")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	assert.NoError(t, s.InitSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")
	paper := samplePaper()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO papers")).
		WithArgs(
			paper.PaperID,
			paper.Title,
			mustJSON(t, paper.Authors),
			paper.Year,
			paper.Venue,
			mustJSON(t, paper.Keywords),
			mustJSON(t, paper.Summary),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, s.Upsert(context.Background(), paper))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Upsert_NormalizesNilLists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO papers")).
		WithArgs("bare", "Bare", []byte("[]"), (*int)(nil), (*string)(nil), []byte("[]"), []byte("[]")).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	assert.NoError(t, s.Upsert(context.Background(), rag.PaperMetadata{PaperID: "bare", Title: "Bare"}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Upsert_Errors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")

	err = s.Upsert(context.Background(), rag.PaperMetadata{Title: "no id"})
	assert.ErrorIs(t, err, rag.ErrEmptyInput)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO papers")).
		WillReturnError(errors.New("connection reset"))

	err = s.Upsert(context.Background(), samplePaper())
	assert.ErrorIs(t, err, rag.ErrStorageIO)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")
	paper := samplePaper()

	rows := pgxmock.NewRows(columns).
		AddRow(paper.PaperID, paper.Title, mustJSON(t, paper.Authors), paper.Year, paper.Venue,
			mustJSON(t, paper.Keywords), mustJSON(t, paper.Summary))

	mock.ExpectQuery(regexp.QuoteMeta("FROM papers WHERE paper_id = $1")).
		WithArgs("p1").
		WillReturnRows(rows)

	got, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, paper, *got)

	mock.ExpectQuery(regexp.QuoteMeta("FROM papers WHERE paper_id = $1")).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, rag.ErrNotFound)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_LoadAll(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")
	paper := samplePaper()

	rows := pgxmock.NewRows(columns).
		AddRow(paper.PaperID, paper.Title, mustJSON(t, paper.Authors), paper.Year, paper.Venue,
			mustJSON(t, paper.Keywords), mustJSON(t, paper.Summary)).
		AddRow("p2", "Second", []byte("[]"), (*int)(nil), (*string)(nil), []byte("[]"), []byte("null"))

	mock.ExpectQuery(regexp.QuoteMeta("FROM papers ORDER BY position ASC")).
		WillReturnRows(rows)

	records, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, paper, records[0])
	assert.Equal(t, "p2", records[1].PaperID)
	assert.Nil(t, records[1].Year)
	assert.Nil(t, records[1].Venue)
	assert.Equal(t, []string{}, records[1].Summary)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_LoadAll_Empty(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")

	mock.ExpectQuery(regexp.QuoteMeta("FROM papers ORDER BY position ASC")).
		WillReturnRows(pgxmock.NewRows(columns))

	records, err := s.LoadAll(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)

	mock.ExpectQuery(regexp.QuoteMeta("FROM papers ORDER BY position ASC")).
		WillReturnError(errors.New("relation does not exist"))

	_, err = s.LoadAll(context.Background())
	assert.ErrorIs(t, err, rag.ErrStorageIO)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Delete(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewPostgresMetadataStoreWithPool(mock, "papers")

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM papers WHERE paper_id = $1")).
		WithArgs("p1").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	assert.NoError(t, s.Delete(context.Background(), "p1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresMetadataStore_Close(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	s := NewPostgresMetadataStoreWithPool(mock, "papers")
	mock.ExpectClose()

	assert.NoError(t, s.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
