package splitter

import (
	"math/rand/v2"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/smallnest/paperrag/rag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const paperText = `Transformers replaced recurrent networks in most sequence tasks.

They rely on self attention, which relates every position to every other position in a sequence.
Training is parallel across positions, so large models became practical.

Positional encodings inject order information. Multi head attention lets the model attend to several subspaces at once.
The encoder and decoder stacks are built from identical layers.`

func newSplitter(t *testing.T, opts ...RecursiveCharacterTextSplitterOption) *RecursiveCharacterTextSplitter {
	t.Helper()
	s, err := NewRecursiveCharacterTextSplitter(opts...)
	require.NoError(t, err)
	return s
}

func TestNewRecursiveCharacterTextSplitter_Validation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{"valid", 500, 100, false},
		{"zero overlap", 10, 0, false},
		{"overlap equals size", 100, 100, true},
		{"overlap exceeds size", 100, 150, true},
		{"zero size", 0, 0, true},
		{"negative overlap", 10, -1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRecursiveCharacterTextSplitter(WithChunkSize(tt.size), WithChunkOverlap(tt.overlap))
			if tt.wantErr {
				assert.ErrorIs(t, err, rag.ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRecursiveCharacterTextSplitter(t *testing.T) {
	t.Run("Basic splitting", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(10), WithChunkOverlap(0))
		chunks := s.SplitText("1234567890abcdefghij")
		assert.Equal(t, []string{"1234567890", "abcdefghij"}, chunks)
	})

	t.Run("Short text is one chunk", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(100), WithChunkOverlap(10))
		assert.Equal(t, []string{"short text"}, s.SplitText("short text"))
	})

	t.Run("Blank text has no chunks", func(t *testing.T) {
		s := newSplitter(t)
		assert.Empty(t, s.SplitText("   \n\n "))
	})

	t.Run("Split with separators", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(10), WithChunkOverlap(0), WithSeparators([]string{"\n"}))
		chunks := s.SplitText("part1\npart2\npart3")
		assert.Equal(t, []string{"part1", "\npart2", "\npart3"}, chunks)
		assert.Equal(t, "part1\npart2\npart3", JoinSpans(s.SplitTextWithOffsets("part1\npart2\npart3")))
	})

	t.Run("Prefers paragraph breaks", func(t *testing.T) {
		text := "first paragraph here\n\nsecond paragraph here"
		s := newSplitter(t, WithChunkSize(25), WithChunkOverlap(0))
		chunks := s.SplitText(text)
		require.Len(t, chunks, 2)
		assert.Equal(t, "first paragraph here", chunks[0])
		assert.Equal(t, "\n\nsecond paragraph here", chunks[1])
	})

	t.Run("Chunks respect the size limit", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(80), WithChunkOverlap(20))
		for _, c := range s.SplitText(paperText) {
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 80)
		}
	})

	t.Run("Consecutive chunks overlap", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(60), WithChunkOverlap(20))
		spans := s.SplitTextWithOffsets(paperText)
		require.Greater(t, len(spans), 2)

		overlapping := 0
		for i := 1; i < len(spans); i++ {
			k := spans[i].Overlap(spans[i-1])
			assert.Equal(t, paperText[spans[i].Start:spans[i-1].End], spans[i].Text[:k])
			assert.LessOrEqual(t, utf8.RuneCountInString(spans[i].Text[:k]), 20)
			if k > 0 {
				overlapping++
			}
		}
		assert.Greater(t, overlapping, 0)
	})

	t.Run("Character fallback handles long words", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(4), WithChunkOverlap(1))
		chunks := s.SplitText("abcdefghij")
		for _, c := range chunks {
			assert.LessOrEqual(t, len(c), 4)
		}
		assert.Equal(t, "abcdefghij", JoinSpans(s.SplitTextWithOffsets("abcdefghij")))
	})

	t.Run("Irreducible pieces are kept whole", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(5), WithChunkOverlap(0), WithSeparators([]string{" "}))
		chunks := s.SplitText("tiny enormousword")
		assert.Equal(t, []string{"tiny", " enormousword"}, chunks)
	})

	t.Run("Multibyte text splits on rune boundaries", func(t *testing.T) {
		s := newSplitter(t, WithChunkSize(3), WithChunkOverlap(1))
		chunks := s.SplitText("注意力机制很重要")
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c))
			assert.LessOrEqual(t, utf8.RuneCountInString(c), 3)
		}
		assert.Equal(t, "注意力机制很重要", JoinSpans(s.SplitTextWithOffsets("注意力机制很重要")))
	})

	t.Run("Custom length function", func(t *testing.T) {
		words := func(s string) int { return len(strings.Fields(s)) }
		s := newSplitter(t, WithChunkSize(3), WithChunkOverlap(0), WithLengthFunction(words), WithSeparators([]string{" "}))
		chunks := s.SplitText("one two three four five six seven")
		assert.Equal(t, []string{"one two three", " four five six", " seven"}, chunks)
	})
}

func TestJoinSpans_Reconstructs(t *testing.T) {
	configs := []struct{ size, overlap int }{
		{500, 100},
		{120, 30},
		{60, 20},
		{40, 0},
	}
	for _, cfg := range configs {
		s := newSplitter(t, WithChunkSize(cfg.size), WithChunkOverlap(cfg.overlap))
		spans := s.SplitTextWithOffsets(paperText)
		require.NotEmpty(t, spans)
		assert.Equal(t, paperText, JoinSpans(spans), "size=%d overlap=%d", cfg.size, cfg.overlap)
	}

	assert.Equal(t, "", JoinSpans(nil))
}

// mixedText joins words with a pseudo-random mix of spaces, line breaks and
// paragraph breaks, including runs of separators.
func mixedText(rng *rand.Rand, n int) string {
	words := []string{"loss", "0.1", "model", "attention"}
	seps := []string{" ", "\n", "\n\n", "  ", "\n\n\n"}
	var sb strings.Builder
	if rng.IntN(4) == 0 {
		sb.WriteString(seps[rng.IntN(len(seps))])
	}
	for i := range n {
		if i > 0 {
			sb.WriteString(seps[rng.IntN(len(seps))])
		}
		sb.WriteString(words[rng.IntN(len(words))])
	}
	if rng.IntN(4) == 0 {
		sb.WriteString(seps[rng.IntN(len(seps))])
	}
	return sb.String()
}

func TestJoinSpans_MixedSeparators(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for size := 8; size < 60; size += 3 {
		for _, overlap := range []int{0, size / 4, size / 2, size - 1} {
			s := newSplitter(t, WithChunkSize(size), WithChunkOverlap(overlap))
			for range 40 {
				text := mixedText(rng, 5+rng.IntN(40))
				spans := s.SplitTextWithOffsets(text)
				require.Equal(t, text, JoinSpans(spans), "size=%d overlap=%d text=%q", size, overlap, text)

				for i, span := range spans {
					require.Equal(t, text[span.Start:span.End], span.Text)
					if i > 0 {
						require.LessOrEqual(t, spans[i].Start, spans[i-1].End)
						require.LessOrEqual(t, utf8.RuneCountInString(span.Text[:span.Overlap(spans[i-1])]), overlap)
					}
				}
			}
		}
	}
}

func TestJoinSpans_RandomAlphabet(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	alphabet := []rune{'a', 'b', ' ', '\n'}
	for range 2000 {
		n := 1 + rng.IntN(80)
		runes := make([]rune, n)
		for i := range runes {
			runes[i] = alphabet[rng.IntN(len(alphabet))]
		}
		text := string(runes)
		size := 2 + rng.IntN(20)
		overlap := rng.IntN(size)

		s := newSplitter(t, WithChunkSize(size), WithChunkOverlap(overlap))
		assert.Equal(t, text, JoinSpans(s.SplitTextWithOffsets(text)), "size=%d overlap=%d", size, overlap)
	}
}

func TestSplitText_SkipsBlankWindows(t *testing.T) {
	s := newSplitter(t, WithChunkSize(6), WithChunkOverlap(0), WithSeparators([]string{"\n"}))
	text := "alpha\n\n\n\n\n\n\nbeta"

	spans := s.SplitTextWithOffsets(text)
	assert.Equal(t, text, JoinSpans(spans))

	chunks := s.SplitText(text)
	for _, c := range chunks {
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
	assert.Less(t, len(chunks), len(spans))
}

func TestSplitSections(t *testing.T) {
	s := newSplitter(t, WithChunkSize(500), WithChunkOverlap(100))
	sections := []rag.PaperSection{
		{Name: rag.SectionAbstract, Content: strings.Repeat("abstract words ", 50)},
		{Name: rag.SectionIntroduction, Content: strings.Repeat("intro sentence. ", 60)},
		{Name: rag.SectionReferences, Content: strings.Repeat("[1] ref. ", 100)},
	}
	base := map[string]any{rag.MetaSource: "paper.pdf", rag.MetaPaperID: "p1"}

	chunks := s.SplitSections(sections, base, rag.SectionReferences)

	want := len(s.SplitText(sections[0].Content)) + len(s.SplitText(sections[1].Content))
	require.Len(t, chunks, want)

	ids := map[string]bool{}
	for i, c := range chunks {
		assert.NotEqual(t, rag.SectionReferences, c.Section())
		assert.Equal(t, "p1", c.Metadata[rag.MetaPaperID])
		assert.Equal(t, "paper.pdf", c.Metadata[rag.MetaSource])
		assert.Equal(t, i, c.Metadata[rag.MetaChunkIndex])
		assert.False(t, ids[c.ID], "duplicate id %s", c.ID)
		ids[c.ID] = true
	}
	_, touched := base[rag.MetaSection]
	assert.False(t, touched, "base metadata must not be mutated")

	again := s.SplitSections(sections, base, rag.SectionReferences)
	assert.Equal(t, chunks[0].ID, again[0].ID, "chunk ids are deterministic")
}

func TestSplitKeepSeparator(t *testing.T) {
	assert.Equal(t, []string{"a", "\n\nb", "\n\nc"}, splitKeepSeparator("a\n\nb\n\nc", "\n\n"))
	assert.Equal(t, []string{"\nx"}, splitKeepSeparator("\nx", "\n"))
	assert.Equal(t, []string{"abc"}, splitKeepSeparator("abc", "|"))
}
