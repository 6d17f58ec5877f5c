package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/smallnest/paperrag/log"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store"
	"github.com/tmc/langchaingo/llms"
	"github.com/xeipuuv/gojsonschema"
)

const (
	// SystemPrompt is the fixed instruction sent with every extraction.
	SystemPrompt = "You are an academic metadata extraction system. Extract ONLY verified information. Output must strictly match the schema."

	humanPrompt = "Extract structured metadata from this PDF content:\n\n"

	defaultMaxSections = 3
	defaultMaxWords    = 1500
)

// paperNamespace scopes paper IDs derived from titles.
var paperNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("paperrag/paper"))

// Extractor asks a model for a paper's bibliographic metadata and records
// the result in a MetadataStore.
type Extractor struct {
	llm         llms.Model
	metadata    store.MetadataStore
	maxSections int
	maxWords    int
	logger      log.Logger
	schema      gojsonschema.JSONLoader
	schemaText  string
}

// Option configures the Extractor
type Option func(*Extractor)

// WithMaxSections sets how many leading sections feed the model
func WithMaxSections(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxSections = n
		}
	}
}

// WithMaxWords sets the global word budget of the extraction context
func WithMaxWords(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.maxWords = n
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger log.Logger) Option {
	return func(e *Extractor) {
		e.logger = logger
	}
}

// New creates an Extractor. metadata may be nil, in which case records are
// returned but not persisted.
func New(llm llms.Model, metadata store.MetadataStore, opts ...Option) *Extractor {
	e := &Extractor{
		llm:         llm,
		metadata:    metadata,
		maxSections: defaultMaxSections,
		maxWords:    defaultMaxWords,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = log.Or(e.logger)

	schemaJSON, _ := json.MarshalIndent(paperSchema, "", "  ")
	e.schemaText = string(schemaJSON)
	e.schema = gojsonschema.NewGoLoader(paperSchema)
	return e
}

// BuildContext joins the words of the first maxSections sections, in order,
// stopping once maxWords words have been taken.
func (e *Extractor) BuildContext(sections []rag.PaperSection) string {
	var words []string
	for i, section := range sections {
		if i >= e.maxSections {
			break
		}
		remaining := e.maxWords - len(words)
		if remaining <= 0 {
			break
		}
		fields := strings.Fields(section.Content)
		if len(fields) > remaining {
			fields = fields[:remaining]
		}
		words = append(words, fields...)
	}
	return strings.Join(words, " ")
}

// Extract asks the model for the paper's metadata, validates the reply
// against the schema, upserts the record and returns it. source seeds the
// paper_id when neither the model nor the title provides one. Replies that
// are not valid JSON or fail the schema wrap rag.ErrMetadataExtraction.
func (e *Extractor) Extract(ctx context.Context, sections []rag.PaperSection, source string) (*rag.PaperMetadata, error) {
	paperContext := e.BuildContext(sections)
	if strings.TrimSpace(paperContext) == "" {
		return nil, fmt.Errorf("%w: no text to extract from", rag.ErrMetadataExtraction)
	}

	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, SystemPrompt+"\n\nRespond with a single JSON object matching this schema:\n"+e.schemaText),
		llms.TextParts(llms.ChatMessageTypeHuman, humanPrompt+paperContext),
	}

	resp, err := e.llm.GenerateContent(ctx, messages, llms.WithJSONMode(), llms.WithTemperature(0))
	if err != nil {
		return nil, fmt.Errorf("metadata generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: model returned no choices", rag.ErrMetadataExtraction)
	}

	record, err := e.Parse(resp.Choices[0].Content)
	if err != nil {
		return nil, err
	}
	if record.PaperID == "" {
		record.PaperID = DerivePaperID(record.Title, source)
	}

	if e.metadata != nil {
		if err := e.metadata.Upsert(ctx, *record); err != nil {
			return nil, fmt.Errorf("failed to store metadata for %s: %w", record.PaperID, err)
		}
	}

	e.logger.Info("extracted metadata for %q (paper_id=%s)", record.Title, record.PaperID)
	return record, nil
}

// reply mirrors the schema. Year is decoded as a float so that 2017.0 is
// accepted, matching the schema's notion of an integer.
type reply struct {
	PaperID  string   `json:"paper_id"`
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Year     *float64 `json:"year"`
	Venue    *string  `json:"venue"`
	Keywords []string `json:"keywords"`
	Summary  []string `json:"summary"`
}

// Parse validates a raw model reply and converts it to a record. Markdown
// code fences around the JSON are tolerated.
func (e *Extractor) Parse(raw string) (*rag.PaperMetadata, error) {
	body := stripCodeFence(raw)
	if !json.Valid([]byte(body)) {
		return nil, fmt.Errorf("%w: reply is not valid JSON", rag.ErrMetadataExtraction)
	}

	result, err := gojsonschema.Validate(e.schema, gojsonschema.NewStringLoader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: schema validation error: %w", rag.ErrMetadataExtraction, err)
	}
	if !result.Valid() {
		var errs []string
		for _, desc := range result.Errors() {
			errs = append(errs, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", rag.ErrMetadataExtraction, strings.Join(errs, ", "))
	}

	var r reply
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("%w: %w", rag.ErrMetadataExtraction, err)
	}

	record := store.Normalize(rag.PaperMetadata{
		PaperID:  strings.TrimSpace(r.PaperID),
		Title:    strings.TrimSpace(r.Title),
		Authors:  r.Authors,
		Venue:    r.Venue,
		Keywords: r.Keywords,
		Summary:  r.Summary,
	})
	if r.Year != nil {
		record.Year = rag.IntPtr(int(*r.Year))
	}
	if record.Venue != nil && strings.TrimSpace(*record.Venue) == "" {
		record.Venue = nil
	}
	return &record, nil
}

// DerivePaperID returns a stable identifier from the title, or from source
// when the title is blank.
func DerivePaperID(title, source string) string {
	key := strings.ToLower(strings.Join(strings.Fields(title), " "))
	if key == "" {
		key = source
	}
	return uuid.NewSHA1(paperNamespace, []byte(key)).String()
}

// Attach merges the paper's bibliographic fields into every chunk's metadata,
// overwriting existing keys. Null year and venue are left out.
func Attach(chunks []rag.Chunk, md *rag.PaperMetadata) []rag.Chunk {
	if md == nil {
		return chunks
	}
	for i := range chunks {
		if chunks[i].Metadata == nil {
			chunks[i].Metadata = make(map[string]any)
		}
		m := chunks[i].Metadata
		m[rag.MetaPaperID] = md.PaperID
		m[rag.MetaTitle] = md.Title
		m[rag.MetaAuthors] = append([]string(nil), md.Authors...)
		m[rag.MetaKeywords] = append([]string(nil), md.Keywords...)
		m[rag.MetaSummary] = append([]string(nil), md.Summary...)
		if md.Year != nil {
			m[rag.MetaYear] = *md.Year
		}
		if md.Venue != nil {
			m[rag.MetaVenue] = *md.Venue
		}
	}
	return chunks
}

func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
