// Package storetest holds the behaviour every MetadataStore backend must
// share, as a reusable test suite.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.MetadataStore

// Paper builds a fully populated record.
func Paper(id, title string, year int) rag.PaperMetadata {
	return rag.PaperMetadata{
		PaperID:  id,
		Title:    title,
		Authors:  []string{"Ada Lovelace", "Alan Turing"},
		Year:     rag.IntPtr(year),
		Venue:    rag.StringPtr("NeurIPS"),
		Keywords: []string{"transformers", "attention"},
		Summary:  []string{"Introduces a model.", "Reports results."},
	}
}

// Run exercises the MetadataStore contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("empty store loads nothing", func(t *testing.T) {
		s := newStore(t)
		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})

	t.Run("upsert appends in order", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Paper("p1", "First", 2021)))
		require.NoError(t, s.Upsert(ctx, Paper("p2", "Second", 2022)))
		require.NoError(t, s.Upsert(ctx, Paper("p3", "Third", 2023)))

		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 3)
		assert.Equal(t, []string{"p1", "p2", "p3"}, ids(records))
		assert.Equal(t, Paper("p2", "Second", 2022), records[1])
	})

	t.Run("upsert replaces by paper id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Paper("p1", "First", 2021)))
		require.NoError(t, s.Upsert(ctx, Paper("p2", "Second", 2022)))

		updated := Paper("p1", "First, revised", 2024)
		updated.Venue = nil
		require.NoError(t, s.Upsert(ctx, updated))

		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, []string{"p1", "p2"}, ids(records), "replacement keeps position")
		assert.Equal(t, "First, revised", records[0].Title)
		assert.Equal(t, 2024, *records[0].Year)
		assert.Nil(t, records[0].Venue)
	})

	t.Run("nullable and empty fields", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, rag.PaperMetadata{PaperID: "bare", Title: "Bare"}))

		got, err := s.Get(ctx, "bare")
		require.NoError(t, err)
		assert.Nil(t, got.Year)
		assert.Nil(t, got.Venue)
		assert.Empty(t, got.Authors)
		assert.Empty(t, got.Keywords)
	})

	t.Run("get", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Paper("p1", "First", 2021)))

		got, err := s.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, Paper("p1", "First", 2021), *got)

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, rag.ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, Paper("p1", "First", 2021)))
		require.NoError(t, s.Upsert(ctx, Paper("p2", "Second", 2022)))

		require.NoError(t, s.Delete(ctx, "p1"))
		require.NoError(t, s.Delete(ctx, "missing"))

		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"p2"}, ids(records))
	})

	t.Run("empty paper id is rejected", func(t *testing.T) {
		s := newStore(t)
		err := s.Upsert(ctx, rag.PaperMetadata{Title: "No ID"})
		assert.ErrorIs(t, err, rag.ErrEmptyInput)
	})

	t.Run("concurrent upserts keep one record per id", func(t *testing.T) {
		s := newStore(t)
		var wg sync.WaitGroup
		for i := range 20 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				id := "p1"
				if i%2 == 1 {
					id = "p2"
				}
				assert.NoError(t, s.Upsert(ctx, Paper(id, "Concurrent", 2000+i)))
			}(i)
		}
		wg.Wait()

		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"p1", "p2"}, ids(records))
	})

	t.Run("returned records do not alias stored ones", func(t *testing.T) {
		s := newStore(t)
		in := Paper("p1", "First", 2021)
		require.NoError(t, s.Upsert(ctx, in))
		in.Authors[0] = "changed after upsert"

		got, err := s.Get(ctx, "p1")
		require.NoError(t, err)
		got.Authors[0] = "changed"
		got.Keywords[0] = "changed"
		got.Summary[0] = "changed"
		*got.Year = 1900
		*got.Venue = "changed"

		records, err := s.LoadAll(ctx)
		require.NoError(t, err)
		require.Len(t, records, 1)
		records[0].Authors[1] = "changed"
		records[0].Keywords = append(records[0].Keywords[:0], "changed")

		again, err := s.Get(ctx, "p1")
		require.NoError(t, err)
		assert.Equal(t, Paper("p1", "First", 2021), *again)
	})
}

func ids(records []rag.PaperMetadata) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.PaperID
	}
	return out
}
