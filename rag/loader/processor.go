package loader

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/tmc/langchaingo/schema"
)

// Supported file formats, keyed by lower-cased extension.
const (
	FormatPDF  = "pdf"
	FormatText = "text"
	FormatDOCX = "docx"
)

type loadFunc func(ctx context.Context, path string) ([]schema.Document, error)

var loaders = map[string]struct {
	format string
	load   loadFunc
}{
	".pdf":  {FormatPDF, loadPDF},
	".txt":  {FormatText, loadText},
	".docx": {FormatDOCX, loadDOCX},
}

// SupportedExtensions returns the file extensions Load accepts.
func SupportedExtensions() []string {
	return []string{".pdf", ".txt", ".docx"}
}

// IsSupported reports whether path has a supported extension.
func IsSupported(path string) bool {
	_, ok := loaders[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Processor loads paper files and segments them into sections
type Processor struct {
	maxHeaderWords int
	logger         log.Logger
}

// ProcessorOption configures the Processor
type ProcessorOption func(*Processor)

// WithMaxHeaderWords sets the longest line, in words, that may be treated as
// a section header.
func WithMaxHeaderWords(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.maxHeaderWords = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) ProcessorOption {
	return func(p *Processor) {
		p.logger = logger
	}
}

// NewProcessor creates a new Processor
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{maxHeaderWords: 6}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = log.Or(p.logger)
	return p
}

// Load reads path with the loader registered for its extension. It returns
// rag.ErrNotFound when the file is missing and rag.ErrUnsupportedFormat when
// the extension is not recognised.
func (p *Processor) Load(ctx context.Context, path string) (*rag.RawDocument, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: file %s does not exist", rag.ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", rag.ErrUnsupportedFormat, path)
	}

	entry, ok := loaders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", rag.ErrUnsupportedFormat, path)
	}

	pages, err := entry.load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	for i := range pages {
		if pages[i].Metadata == nil {
			pages[i].Metadata = make(map[string]any)
		}
		pages[i].Metadata[rag.MetaSource] = path
		pages[i].Metadata["format"] = entry.format
	}

	p.logger.Debug("loaded %s: %d blocks", path, len(pages))
	return &rag.RawDocument{
		Source: path,
		Format: entry.format,
		Pages:  pages,
	}, nil
}

// ExtractFullText concatenates the document's blocks in order, separated by
// newlines.
func ExtractFullText(doc *rag.RawDocument) string {
	if doc == nil {
		return ""
	}
	parts := make([]string, len(doc.Pages))
	for i, page := range doc.Pages {
		parts[i] = page.PageContent
	}
	return strings.Join(parts, "\n")
}

// Processed is the result of running the full processing pipeline on a file.
type Processed struct {
	Raw      *rag.RawDocument
	Text     string
	Sections []rag.PaperSection
}

// Process loads path, extracts its text and segments it into sections.
func (p *Processor) Process(ctx context.Context, path string) (*Processed, error) {
	raw, err := p.Load(ctx, path)
	if err != nil {
		return nil, err
	}
	text := ExtractFullText(raw)
	sections := p.SegmentIntoSections(text)
	p.logger.Info("processed %s into %d sections", path, len(sections))
	return &Processed{Raw: raw, Text: text, Sections: sections}, nil
}
