// Package sqlite provides a SQLite-backed store.MetadataStore.
//
// Records live in one table keyed by paper_id. List fields are stored as JSON
// text and nullable scalars as SQL NULL. Upsert is a single
// INSERT ... ON CONFLICT(paper_id) DO UPDATE statement, so a replaced record
// keeps its rowid and LoadAll, which orders by rowid, returns records in
// first-insertion order.
//
// # Basic Usage
//
//	s, err := sqlite.NewSqliteMetadataStore(sqlite.SqliteOptions{
//		Path:      "./data/papers.db",
//		TableName: "papers", // Optional table name
//	})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
// Use ":memory:" as the path for a throwaway database. The store holds a
// single connection, which serialises writers.
package sqlite
