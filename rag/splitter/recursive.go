package splitter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/smallnest/paperrag/rag"
)

// DefaultSeparators are tried in order: paragraph break, line break, double
// space, space, then single characters.
var DefaultSeparators = []string{"\n\n", "\n", "  ", " ", ""}

// chunkNamespace scopes deterministic chunk IDs.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("paperrag/chunk"))

// RecursiveCharacterTextSplitter recursively splits text while keeping related pieces together
type RecursiveCharacterTextSplitter struct {
	separators   []string
	chunkSize    int
	chunkOverlap int
	lengthFunc   func(string) int
}

// RecursiveCharacterTextSplitterOption configures the RecursiveCharacterTextSplitter
type RecursiveCharacterTextSplitterOption func(*RecursiveCharacterTextSplitter)

// WithChunkSize sets the chunk size for the splitter
func WithChunkSize(size int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkSize = size
	}
}

// WithChunkOverlap sets the chunk overlap for the splitter
func WithChunkOverlap(overlap int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.chunkOverlap = overlap
	}
}

// WithSeparators sets the custom separators for the splitter
func WithSeparators(separators []string) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.separators = separators
	}
}

// WithLengthFunction sets a custom length function. It must be additive over
// concatenation for the size limit to hold exactly.
func WithLengthFunction(fn func(string) int) RecursiveCharacterTextSplitterOption {
	return func(s *RecursiveCharacterTextSplitter) {
		s.lengthFunc = fn
	}
}

// NewRecursiveCharacterTextSplitter creates a new RecursiveCharacterTextSplitter.
// Sizes are measured in characters by default. It returns rag.ErrInvalidConfig
// unless 0 <= overlap < size.
func NewRecursiveCharacterTextSplitter(opts ...RecursiveCharacterTextSplitterOption) (*RecursiveCharacterTextSplitter, error) {
	s := &RecursiveCharacterTextSplitter{
		separators:   DefaultSeparators,
		chunkSize:    1000,
		chunkOverlap: 200,
		lengthFunc:   utf8.RuneCountInString,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", rag.ErrInvalidConfig, s.chunkSize)
	}
	if s.chunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", rag.ErrInvalidConfig, s.chunkOverlap)
	}
	if s.chunkOverlap >= s.chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap (%d) must be smaller than chunk size (%d)", rag.ErrInvalidConfig, s.chunkOverlap, s.chunkSize)
	}
	if s.lengthFunc == nil {
		s.lengthFunc = utf8.RuneCountInString
	}

	return s, nil
}

// ChunkSize returns the configured chunk size.
func (s *RecursiveCharacterTextSplitter) ChunkSize() int { return s.chunkSize }

// ChunkOverlap returns the configured chunk overlap.
func (s *RecursiveCharacterTextSplitter) ChunkOverlap() int { return s.chunkOverlap }

// Span is a chunk together with its byte offsets in the text it was split
// from. Text equals text[Start:End].
type Span struct {
	Text  string
	Start int
	End   int
}

// Overlap returns how many bytes of s repeat the end of prev.
func (s Span) Overlap(prev Span) int {
	return max(0, min(prev.End, s.End)-s.Start)
}

// SplitText splits text into chunks. Every chunk is a contiguous substring of
// text; consecutive chunks share at most chunkOverlap characters. Windows
// holding only whitespace are not returned.
func (s *RecursiveCharacterTextSplitter) SplitText(text string) []string {
	var chunks []string
	for _, span := range s.SplitTextWithOffsets(text) {
		if strings.TrimSpace(span.Text) != "" {
			chunks = append(chunks, span.Text)
		}
	}
	return chunks
}

// SplitTextWithOffsets splits text like SplitText but returns every window,
// whitespace-only ones included, with its offsets. JoinSpans turns the
// result back into text.
func (s *RecursiveCharacterTextSplitter) SplitTextWithOffsets(text string) []Span {
	if text == "" {
		return nil
	}
	return s.merge(text, s.pieces(text, s.separators))
}

// SplitSections chunks every section not named in exclude. Each chunk carries
// a copy of base plus section and chunk_index metadata, and a deterministic
// ID derived from the source, section position and chunk position.
func (s *RecursiveCharacterTextSplitter) SplitSections(sections []rag.PaperSection, base map[string]any, exclude ...string) []rag.Chunk {
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}

	source := ""
	if v, ok := base[rag.MetaSource]; ok {
		source = fmt.Sprintf("%v", v)
	}

	var chunks []rag.Chunk
	for si, section := range sections {
		if skip[section.Name] {
			continue
		}
		for ci, text := range s.SplitText(section.Content) {
			metadata := rag.CloneMetadata(base)
			metadata[rag.MetaSection] = section.Name
			metadata[rag.MetaChunkIndex] = len(chunks)

			key := fmt.Sprintf("%s#%d/%s/%d", source, si, section.Name, ci)
			chunks = append(chunks, rag.Chunk{
				ID:       uuid.NewSHA1(chunkNamespace, []byte(key)).String(),
				Text:     text,
				Metadata: metadata,
			})
		}
	}

	return chunks
}

// JoinSpans reassembles spans produced by SplitTextWithOffsets, dropping
// the bytes each span shares with the one before it.
func JoinSpans(spans []Span) string {
	if len(spans) == 0 {
		return ""
	}

	var sb strings.Builder
	end := spans[0].Start
	for _, span := range spans {
		skip := min(max(0, end-span.Start), len(span.Text))
		sb.WriteString(span.Text[skip:])
		end = max(end, span.End)
	}
	return sb.String()
}

// pieces breaks text into contiguous pieces that fit the chunk size, using
// the coarsest separator present and recursing with finer separators only
// for pieces that are still too large.
func (s *RecursiveCharacterTextSplitter) pieces(text string, separators []string) []string {
	if s.lengthFunc(text) <= s.chunkSize {
		return []string{text}
	}

	for i, sep := range separators {
		if sep == "" {
			return splitRunes(text)
		}
		if !strings.Contains(text, sep) {
			continue
		}

		var out []string
		for _, part := range splitKeepSeparator(text, sep) {
			out = append(out, s.pieces(part, separators[i+1:])...)
		}
		return out
	}

	// No separator left: the piece is irreducible.
	return []string{text}
}

// merge packs pieces into windows of at most chunkSize, carrying a tail of at
// most chunkOverlap into the next window. pieces must concatenate to text.
func (s *RecursiveCharacterTextSplitter) merge(text string, pieces []string) []Span {
	type piece struct{ start, end, length int }

	var spans []Span
	var window []piece
	total, pos := 0, 0

	emit := func() {
		from, to := window[0].start, window[len(window)-1].end
		spans = append(spans, Span{Text: text[from:to], Start: from, End: to})
	}

	for _, p := range pieces {
		cur := piece{start: pos, end: pos + len(p), length: s.lengthFunc(p)}
		pos = cur.end
		if total+cur.length > s.chunkSize && len(window) > 0 {
			emit()
			for len(window) > 0 && (total > s.chunkOverlap || total+cur.length > s.chunkSize) {
				total -= window[0].length
				window = window[1:]
			}
		}
		window = append(window, cur)
		total += cur.length
	}
	if len(window) > 0 {
		emit()
	}

	return spans
}

// splitKeepSeparator splits text on sep, keeping each separator attached to
// the start of the piece that follows it, so the pieces concatenate back to
// text.
func splitKeepSeparator(text, sep string) []string {
	var parts []string
	pos, from := 0, 0
	for {
		idx := strings.Index(text[from:], sep)
		if idx < 0 {
			break
		}
		idx += from
		if idx > pos {
			parts = append(parts, text[pos:idx])
		}
		pos = idx
		from = idx + len(sep)
	}
	return append(parts, text[pos:])
}

func splitRunes(text string) []string {
	out := make([]string, 0, utf8.RuneCountInString(text))
	for len(text) > 0 {
		_, size := utf8.DecodeRuneInString(text)
		out = append(out, text[:size])
		text = text[size:]
	}
	return out
}
