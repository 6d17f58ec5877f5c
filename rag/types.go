package rag

import (
	"context"
	"slices"

	"github.com/tmc/langchaingo/schema"
)

// Section names recognised in research papers, in vocabulary order.
const (
	SectionTitleInfo    = "title_author_info"
	SectionAbstract     = "abstract"
	SectionIntroduction = "introduction"
	SectionRelatedWork  = "related_work"
	SectionMethodology  = "methodology"
	SectionResults      = "results"
	SectionConclusion   = "conclusion"
	SectionReferences   = "references"
)

// Chunk metadata keys.
const (
	MetaPaperID    = "paper_id"
	MetaTitle      = "title"
	MetaAuthors    = "authors"
	MetaYear       = "year"
	MetaVenue      = "venue"
	MetaKeywords   = "keywords"
	MetaSummary    = "summary"
	MetaSection    = "section"
	MetaSource     = "source"
	MetaChunkIndex = "chunk_index"
)

// RawDocument is the loader output for one file: ordered text blocks (pages
// for PDFs, a single block otherwise) with loader attributes in each block's
// metadata.
type RawDocument struct {
	Source string
	Format string
	Pages  []schema.Document
}

// PaperSection is a named span of a paper's text.
type PaperSection struct {
	Name    string `json:"section_name"`
	Content string `json:"content"`
}

// Chunk is a bounded text window derived from a section. It is the unit that
// gets embedded, indexed and retrieved.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Title returns the chunk's title metadata, or "Unknown".
func (c Chunk) Title() string {
	return c.metaString(MetaTitle, "Unknown")
}

// Source returns the chunk's source metadata, falling back to its title.
func (c Chunk) Source() string {
	if s := c.metaString(MetaSource, ""); s != "" {
		return s
	}
	return c.Title()
}

// Section returns the chunk's section name, or "" when absent.
func (c Chunk) Section() string {
	return c.metaString(MetaSection, "")
}

func (c Chunk) metaString(key, fallback string) string {
	if v, ok := c.Metadata[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

// PaperMetadata is the structured record kept per paper. PaperID is the
// identity; records are only ever replaced as a whole.
type PaperMetadata struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     *int     `json:"year"`
	Venue    *string  `json:"venue"`
	Keywords []string `json:"keywords"`
	Summary  []string `json:"summary"`
}

// Clone returns a deep copy of m. Nil and empty slices keep their shape.
func (m PaperMetadata) Clone() PaperMetadata {
	m.Authors = slices.Clone(m.Authors)
	m.Keywords = slices.Clone(m.Keywords)
	m.Summary = slices.Clone(m.Summary)
	if m.Year != nil {
		m.Year = IntPtr(*m.Year)
	}
	if m.Venue != nil {
		m.Venue = StringPtr(*m.Venue)
	}
	return m
}

// SearchResult pairs a retrieved chunk with its similarity score.
type SearchResult struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// WebResult is a single hit returned by a web search provider.
type WebResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score,omitempty"`
}

// WebSearchResponse is the structured output of a web search.
type WebSearchResponse struct {
	Query   string      `json:"query"`
	Answer  string      `json:"answer,omitempty"`
	Results []WebResult `json:"results"`
}

// Embedder turns text into fixed-length vectors
type Embedder interface {
	// EmbedDocument embeds a single text
	EmbedDocument(ctx context.Context, text string) ([]float32, error)

	// EmbedDocuments embeds texts, preserving input order
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)

	// GetDimension returns the vector length, or 0 when unknown
	GetDimension() int
}

// ModelNamer is implemented by embedders that can report their model identity.
type ModelNamer interface {
	ModelName() string
}

// WebSearcher is an external web search provider
type WebSearcher interface {
	Search(ctx context.Context, query string) (*WebSearchResponse, error)
}

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }

// StringPtr returns a pointer to v.
func StringPtr(v string) *string { return &v }
