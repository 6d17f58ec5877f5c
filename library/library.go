// Package library answers questions about the collection of ingested papers:
// listing and filtering their metadata, keyword trends over the years, and a
// rough influence ranking. It reads from a store.MetadataStore and never
// writes to it.
package library

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
)

// Service reads paper metadata from a MetadataStore.
type Service struct {
	store store.MetadataStore
}

// NewService creates a Service over s.
func NewService(s store.MetadataStore) *Service {
	return &Service{store: s}
}

// All returns every stored paper in insertion order.
func (s *Service) All(ctx context.Context) ([]rag.PaperMetadata, error) {
	papers, err := s.store.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load papers: %w", err)
	}
	return papers, nil
}

// Get returns one paper by id.
func (s *Service) Get(ctx context.Context, paperID string) (*rag.PaperMetadata, error) {
	return s.store.Get(ctx, paperID)
}

// Find loads every paper and applies opts.
func (s *Service) Find(ctx context.Context, opts FilterOptions) ([]rag.PaperMetadata, error) {
	papers, err := s.All(ctx)
	if err != nil {
		return nil, err
	}
	return Filter(papers, opts), nil
}

// FilterOptions restricts a paper listing. Zero values do not filter.
type FilterOptions struct {
	// YearFrom and YearTo bound the publication year, inclusive. Papers
	// without a year are excluded once either bound is set.
	YearFrom *int
	YearTo   *int

	// Keyword matches case-insensitively against the title, summary and
	// keywords.
	Keyword string

	// Venues keeps only papers published at one of the listed venues.
	Venues []string
}

// Years returns the distinct publication years in ascending order.
func Years(papers []rag.PaperMetadata) []int {
	years := make([]int, 0, len(papers))
	for _, p := range papers {
		if p.Year != nil {
			years = append(years, *p.Year)
		}
	}
	slices.Sort(years)
	return slices.Compact(years)
}

// Venues returns the distinct venues in ascending order.
func Venues(papers []rag.PaperMetadata) []string {
	venues := make([]string, 0, len(papers))
	for _, p := range papers {
		if p.Venue != nil && *p.Venue != "" {
			venues = append(venues, *p.Venue)
		}
	}
	slices.Sort(venues)
	return slices.Compact(venues)
}

// Filter returns the papers matching opts, preserving order.
func Filter(papers []rag.PaperMetadata, opts FilterOptions) []rag.PaperMetadata {
	kw := strings.ToLower(strings.TrimSpace(opts.Keyword))
	out := make([]rag.PaperMetadata, 0, len(papers))
	for _, p := range papers {
		if !inYearRange(p, opts.YearFrom, opts.YearTo) {
			continue
		}
		if len(opts.Venues) > 0 && (p.Venue == nil || !slices.Contains(opts.Venues, *p.Venue)) {
			continue
		}
		if kw != "" && !mentions(p, kw) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func inYearRange(p rag.PaperMetadata, from, to *int) bool {
	if from == nil && to == nil {
		return true
	}
	if p.Year == nil {
		return false
	}
	if from != nil && *p.Year < *from {
		return false
	}
	if to != nil && *p.Year > *to {
		return false
	}
	return true
}

func mentions(p rag.PaperMetadata, kw string) bool {
	return strings.Contains(strings.ToLower(p.Title), kw) ||
		strings.Contains(strings.ToLower(strings.Join(p.Summary, " ")), kw) ||
		strings.Contains(strings.ToLower(strings.Join(p.Keywords, " ")), kw)
}
