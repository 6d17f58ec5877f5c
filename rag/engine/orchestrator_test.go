package engine

import (
	"context"
	"errors"
	"testing"

	"github.com/smallnest/paperrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatContext(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		assert.Equal(t, "No relevant context found.", FormatContext(nil))
		assert.Equal(t, "No relevant context found.", FormatContext([]rag.Chunk{}))
	})

	t.Run("numbered with titles", func(t *testing.T) {
		chunks := []rag.Chunk{
			paperChunk("Attention Is All You Need", rag.SectionAbstract, "We propose the Transformer."),
			paperChunk("", rag.SectionResults, "BLEU 28.4."),
		}
		want := "[Document 1] (Source: Attention Is All You Need)\nWe propose the Transformer.\n\n" +
			"[Document 2] (Source: Unknown)\nBLEU 28.4."
		assert.Equal(t, want, FormatContext(chunks))
	})
}

func TestOrchestrator_Retrieve(t *testing.T) {
	ctx := context.Background()

	t.Run("uninitialized store yields nothing", func(t *testing.T) {
		s := &mockSearcher{}
		o := NewOrchestrator(s, &mockLLM{})
		chunks, err := o.Retrieve(ctx, "attention")
		require.NoError(t, err)
		assert.Empty(t, chunks)
		assert.NotNil(t, chunks)
		assert.Equal(t, 0, s.searches)
	})

	t.Run("nil searcher yields nothing", func(t *testing.T) {
		chunks, err := NewOrchestrator(nil, &mockLLM{}).Retrieve(ctx, "attention")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("cleared during search", func(t *testing.T) {
		s := &mockSearcher{initialized: true, err: rag.ErrNotInitialized}
		chunks, err := NewOrchestrator(s, &mockLLM{}).Retrieve(ctx, "attention")
		require.NoError(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("k and filter are passed through", func(t *testing.T) {
		s := &mockSearcher{initialized: true}
		o := NewOrchestrator(s, &mockLLM{}, WithDefaultK(6))

		_, err := o.Retrieve(ctx, "attention")
		require.NoError(t, err)
		assert.Equal(t, 6, s.lastK)
		assert.Nil(t, s.lastFilter)

		filter := map[string]any{rag.MetaYear: 2023}
		_, err = o.Retrieve(ctx, "attention", WithK(2), WithFilter(filter))
		require.NoError(t, err)
		assert.Equal(t, 2, s.lastK)
		assert.Equal(t, filter, s.lastFilter)

		_, err = o.Retrieve(ctx, "attention", WithK(0))
		require.NoError(t, err)
		assert.Equal(t, 6, s.lastK)
	})

	t.Run("search errors propagate", func(t *testing.T) {
		s := &mockSearcher{initialized: true, err: rag.ErrDimensionMismatch}
		_, err := NewOrchestrator(s, &mockLLM{}).Retrieve(ctx, "attention")
		assert.ErrorIs(t, err, rag.ErrDimensionMismatch)
	})
}

func TestOrchestrator_Generate(t *testing.T) {
	ctx := context.Background()

	t.Run("renders the research prompt", func(t *testing.T) {
		llm := &mockLLM{reply: "  Transformers use attention.  "}
		o := NewOrchestrator(nil, llm, WithTemperature(0.3))

		answer, err := o.Generate(ctx, "What is attention?", "[Document 1] (Source: A)\nctx")
		require.NoError(t, err)
		assert.Equal(t, "Transformers use attention.", answer)

		prompt := llm.lastPrompt()
		assert.Contains(t, prompt, "You are an AI Research Analyst")
		assert.Contains(t, prompt, "7. Avoid conversational fluff.")
		assert.Contains(t, prompt, InsufficientContext)
		assert.Contains(t, prompt, "Context:\n[Document 1] (Source: A)\nctx\n\nQuestion: What is attention?\n\nAnswer: ")
		assert.InDelta(t, 0.3, llm.options[0].Temperature, 1e-9)
	})

	t.Run("sentinel context still answers", func(t *testing.T) {
		llm := &mockLLM{reply: ""}
		answer, err := NewOrchestrator(nil, llm).Generate(ctx, "q", NoContext)
		require.NoError(t, err)
		assert.Equal(t, InsufficientContext, answer)
	})

	t.Run("custom template", func(t *testing.T) {
		llm := &mockLLM{reply: "ok"}
		o := NewOrchestrator(nil, llm, WithPromptTemplate("Q={{.question}} C={{.context}}"))
		_, err := o.Generate(ctx, "why", "because")
		require.NoError(t, err)
		assert.Equal(t, "Q=why C=because", llm.lastPrompt())
	})

	t.Run("provider error", func(t *testing.T) {
		llm := &mockLLM{err: errors.New("rate limited")}
		_, err := NewOrchestrator(nil, llm).Generate(ctx, "q", "c")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limited")
	})
}

func TestOrchestrator_Query(t *testing.T) {
	ctx := context.Background()
	s := &mockSearcher{
		initialized: true,
		chunks: []rag.Chunk{
			paperChunk("Paper B", rag.SectionMethodology, "method text"),
			paperChunk("Paper A", rag.SectionAbstract, "abstract text"),
			paperChunk("Paper B", rag.SectionResults, "results text"),
			paperChunk("", rag.SectionAbstract, "untitled"),
		},
	}
	llm := &mockLLM{reply: "answer"}
	o := NewOrchestrator(s, llm)

	res, err := o.Query(ctx, "how?", WithK(10))
	require.NoError(t, err)
	assert.Equal(t, "answer", res.Answer)
	assert.Equal(t, []string{"Paper A", "Paper B", "Unknown"}, res.Sources)
	assert.Equal(t, []string{rag.SectionAbstract, rag.SectionMethodology, rag.SectionResults}, res.Sections)
	assert.Equal(t, FormatContext(s.chunks), res.Context)
	assert.Len(t, res.Chunks, 4)
	assert.Contains(t, llm.lastPrompt(), "[Document 4] (Source: Unknown)\nuntitled")

	t.Run("empty store", func(t *testing.T) {
		llm := &mockLLM{reply: InsufficientContext}
		res, err := NewOrchestrator(&mockSearcher{}, llm).Query(ctx, "how?")
		require.NoError(t, err)
		assert.Equal(t, NoContext, res.Context)
		assert.Empty(t, res.Sources)
		assert.Empty(t, res.Chunks)
		assert.NotEmpty(t, res.Answer)
	})
}

func collect(t *testing.T, seq func(func(string, error) bool)) ([]string, error) {
	t.Helper()
	var out []string
	for fragment, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
	return out, nil
}

func TestOrchestrator_GenerateStream(t *testing.T) {
	ctx := context.Background()

	t.Run("fragments in order", func(t *testing.T) {
		llm := &mockLLM{fragments: []string{"Trans", "", "formers ", "attend."}}
		got, err := collect(t, NewOrchestrator(nil, llm).GenerateStream(ctx, "q", "c"))
		require.NoError(t, err)
		assert.Equal(t, []string{"Trans", "formers ", "attend."}, got)
	})

	t.Run("nothing happens before the first pull", func(t *testing.T) {
		llm := &mockLLM{fragments: []string{"a"}}
		_ = NewOrchestrator(nil, llm).GenerateStream(ctx, "q", "c")
		assert.Equal(t, 0, llm.calls())
	})

	t.Run("stopping early cancels the provider", func(t *testing.T) {
		llm := &mockLLM{fragments: []string{"one", "two", "three", "four"}}
		var got []string
		for fragment, err := range NewOrchestrator(nil, llm).GenerateStream(ctx, "q", "c") {
			require.NoError(t, err)
			got = append(got, fragment)
			if len(got) == 2 {
				break
			}
		}
		assert.Equal(t, []string{"one", "two"}, got)
		llm.mu.Lock()
		defer llm.mu.Unlock()
		assert.ErrorIs(t, llm.streamErr, context.Canceled)
	})

	t.Run("non streaming provider", func(t *testing.T) {
		llm := &mockLLM{reply: "whole answer"}
		got, err := collect(t, NewOrchestrator(nil, llm).GenerateStream(ctx, "q", "c"))
		require.NoError(t, err)
		assert.Equal(t, []string{"whole answer"}, got)
	})

	t.Run("provider error", func(t *testing.T) {
		llm := &mockLLM{err: errors.New("boom")}
		_, err := collect(t, NewOrchestrator(nil, llm).GenerateStream(ctx, "q", "c"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestOrchestrator_QueryStream(t *testing.T) {
	ctx := context.Background()
	s := &mockSearcher{initialized: true, chunks: []rag.Chunk{paperChunk("Paper A", rag.SectionAbstract, "abstract text")}}
	llm := &mockLLM{fragments: []string{"a", "b"}}
	seq := NewOrchestrator(s, llm).QueryStream(ctx, "q", WithK(1))
	assert.Equal(t, 0, s.searches)

	got, err := collect(t, seq)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, 1, s.searches)
	assert.Contains(t, llm.lastPrompt(), "[Document 1] (Source: Paper A)\nabstract text")
}
