package extract

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type mockLLM struct {
	reply    string
	err      error
	calls    int
	messages []llms.MessageContent
	options  llms.CallOptions
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.calls++
	m.messages = messages
	for _, opt := range options {
		opt(&m.options)
	}
	if m.err != nil {
		return nil, m.err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: m.reply}},
	}, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.reply, m.err
}

func textOf(msg llms.MessageContent) string {
	var sb strings.Builder
	for _, part := range msg.Parts {
		if tc, ok := part.(llms.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

const validReply = `{
  "paper_id": "arXiv:1706.03762",
  "title": "Attention Is All You Need",
  "authors": ["Ashish Vaswani", "Noam Shazeer"],
  "year": 2017,
  "venue": "NeurIPS",
  "keywords": ["transformer", "attention"],
  "summary": ["Proposes the Transformer."]
}`

func sections() []rag.PaperSection {
	return []rag.PaperSection{
		{Name: rag.SectionTitleInfo, Content: "Attention Is All You Need\nAshish Vaswani"},
		{Name: rag.SectionAbstract, Content: "The dominant sequence transduction models are recurrent."},
		{Name: rag.SectionIntroduction, Content: "Recurrent neural networks have been established."},
		{Name: rag.SectionMethodology, Content: "This section must not reach the model."},
	}
}

func TestBuildContext(t *testing.T) {
	t.Run("first sections only", func(t *testing.T) {
		e := New(&mockLLM{}, nil)
		got := e.BuildContext(sections())
		assert.Contains(t, got, "Attention Is All You Need")
		assert.Contains(t, got, "Recurrent neural networks")
		assert.NotContains(t, got, "must not reach")
	})

	t.Run("global word budget", func(t *testing.T) {
		e := New(&mockLLM{}, nil, WithMaxWords(5))
		got := e.BuildContext([]rag.PaperSection{
			{Content: "one two three"},
			{Content: "four five six seven"},
			{Content: "eight"},
		})
		assert.Equal(t, "one two three four five", got)
	})

	t.Run("configurable section count", func(t *testing.T) {
		e := New(&mockLLM{}, nil, WithMaxSections(1))
		assert.Equal(t, "a b", e.BuildContext([]rag.PaperSection{{Content: "a\nb"}, {Content: "c"}}))
	})

	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "", New(&mockLLM{}, nil).BuildContext(nil))
	})
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{reply: validReply}
	metadata := memory.New()
	e := New(llm, metadata)

	record, err := e.Extract(ctx, sections(), "paper.pdf")
	require.NoError(t, err)

	assert.Equal(t, "arXiv:1706.03762", record.PaperID)
	assert.Equal(t, "Attention Is All You Need", record.Title)
	assert.Equal(t, []string{"Ashish Vaswani", "Noam Shazeer"}, record.Authors)
	require.NotNil(t, record.Year)
	assert.Equal(t, 2017, *record.Year)
	require.NotNil(t, record.Venue)
	assert.Equal(t, "NeurIPS", *record.Venue)

	require.Len(t, llm.messages, 2)
	assert.Equal(t, llms.ChatMessageTypeSystem, llm.messages[0].Role)
	assert.True(t, strings.HasPrefix(textOf(llm.messages[0]), SystemPrompt))
	assert.True(t, strings.HasPrefix(textOf(llm.messages[1]), "Extract structured metadata from this PDF content:\n\n"))
	assert.True(t, llm.options.JSONMode)

	stored, err := metadata.Get(ctx, "arXiv:1706.03762")
	require.NoError(t, err)
	assert.Equal(t, *record, *stored)
}

func TestExtract_UpsertsOnRepeat(t *testing.T) {
	ctx := context.Background()
	llm := &mockLLM{reply: validReply}
	metadata := memory.New()
	e := New(llm, metadata)

	_, err := e.Extract(ctx, sections(), "paper.pdf")
	require.NoError(t, err)

	llm.reply = strings.Replace(validReply, `"NeurIPS"`, `"NIPS 2017"`, 1)
	_, err = e.Extract(ctx, sections(), "paper.pdf")
	require.NoError(t, err)

	records, err := metadata.LoadAll(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "NIPS 2017", *records[0].Venue)
}

func TestExtract_NullsAndDerivedID(t *testing.T) {
	llm := &mockLLM{reply: "```json\n{\"title\": \"Untitled Work\", \"authors\": [], \"year\": null, \"venue\": null, \"keywords\": []}\n```"}
	e := New(llm, nil)

	record, err := e.Extract(context.Background(), sections(), "paper.pdf")
	require.NoError(t, err)

	assert.Nil(t, record.Year)
	assert.Nil(t, record.Venue)
	assert.Equal(t, []string{}, record.Summary)
	assert.Equal(t, DerivePaperID("Untitled Work", "paper.pdf"), record.PaperID)
	assert.NotEmpty(t, record.PaperID)
}

func TestExtract_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"not json", "The title is Attention Is All You Need."},
		{"missing title", `{"authors": ["A"]}`},
		{"wrong type", `{"title": "T", "authors": "A single string"}`},
		{"fractional year", `{"title": "T", "authors": [], "year": 2017.5}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			llm := &mockLLM{reply: tt.reply}
			metadata := memory.New()
			e := New(llm, metadata)

			_, err := e.Extract(context.Background(), sections(), "paper.pdf")
			assert.ErrorIs(t, err, rag.ErrMetadataExtraction)
			assert.Equal(t, 1, llm.calls, "no retry")

			records, _ := metadata.LoadAll(context.Background())
			assert.Empty(t, records)
		})
	}

	t.Run("provider error is not an extraction error", func(t *testing.T) {
		e := New(&mockLLM{err: errors.New("rate limited")}, nil)
		_, err := e.Extract(context.Background(), sections(), "paper.pdf")
		require.Error(t, err)
		assert.NotErrorIs(t, err, rag.ErrMetadataExtraction)
	})

	t.Run("no text", func(t *testing.T) {
		llm := &mockLLM{reply: validReply}
		_, err := New(llm, nil).Extract(context.Background(), nil, "paper.pdf")
		assert.ErrorIs(t, err, rag.ErrMetadataExtraction)
		assert.Equal(t, 0, llm.calls)
	})
}

func TestParse_IntegralFloatYear(t *testing.T) {
	record, err := New(&mockLLM{}, nil).Parse(`{"title": "T", "authors": [], "year": 2020.0}`)
	require.NoError(t, err)
	assert.Equal(t, 2020, *record.Year)
}

func TestDerivePaperID(t *testing.T) {
	a := DerivePaperID("Attention Is  All You Need", "a.pdf")
	b := DerivePaperID("attention is all you need", "b.pdf")
	assert.Equal(t, a, b, "title wins and is case and space insensitive")
	assert.NotEqual(t, DerivePaperID("", "a.pdf"), DerivePaperID("", "b.pdf"))
}

func TestAttach(t *testing.T) {
	chunks := []rag.Chunk{
		{ID: "1", Text: "x", Metadata: map[string]any{rag.MetaSection: "abstract", rag.MetaTitle: "old"}},
		{ID: "2", Text: "y"},
	}
	md := &rag.PaperMetadata{
		PaperID:  "p1",
		Title:    "New Title",
		Authors:  []string{"A"},
		Year:     rag.IntPtr(2020),
		Keywords: []string{"k"},
		Summary:  []string{"Sparse attention halves memory."},
	}

	out := Attach(chunks, md)
	require.Len(t, out, 2)
	for _, c := range out {
		assert.Equal(t, "p1", c.Metadata[rag.MetaPaperID])
		assert.Equal(t, "New Title", c.Metadata[rag.MetaTitle])
		assert.Equal(t, 2020, c.Metadata[rag.MetaYear])
		assert.Equal(t, []string{"A"}, c.Metadata[rag.MetaAuthors])
		assert.Equal(t, []string{"Sparse attention halves memory."}, c.Metadata[rag.MetaSummary])
		_, hasVenue := c.Metadata[rag.MetaVenue]
		assert.False(t, hasVenue)
	}
	assert.Equal(t, "abstract", out[0].Metadata[rag.MetaSection])

	md.Summary[0] = "changed"
	assert.Equal(t, []string{"Sparse attention halves memory."}, out[1].Metadata[rag.MetaSummary])

	assert.Equal(t, chunks, Attach(chunks, nil))
}
