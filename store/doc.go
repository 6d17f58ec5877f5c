// Package store defines MetadataStore, the persistence contract for
// per-paper metadata records, and the helpers its backends share.
//
// Backends live in sub-packages and are chosen when the application is
// wired together:
//   - file: a single JSON array file, rewritten atomically
//   - memory: a mutex-guarded slice, for tests and ephemeral sessions
//   - sqlite: a local SQLite database
//   - postgres: a PostgreSQL table accessed through a pgx pool
//   - redis: a hash plus an ordering list, updated under WATCH/MULTI
//
// Every backend keeps records in first-insertion order, replaces a record
// wholesale when its paper_id is upserted again, and wraps persistence
// failures with rag.ErrStorageIO.
//
// # Usage
//
//	s, err := file.New("./data/papers.json")
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Upsert(ctx, rag.PaperMetadata{PaperID: "p1", Title: "Attention Is All You Need"})
//	records, err := s.LoadAll(ctx)
package store
