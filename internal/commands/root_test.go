package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/smallnest/paperrag/internal/app"
	"github.com/smallnest/paperrag/rag"
	"github.com/smallnest/paperrag/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

type fixedLLM struct{ answer string }

func (m fixedLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	content := m.answer
	if messages[0].Role == llms.ChatMessageTypeSystem {
		content = `{"title": "Sparse Attention", "authors": ["Jane Doe"], "year": 2024, "venue": "ACL", "keywords": ["attention"]}`
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content}}}, nil
}

func (m fixedLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

// setupEnv points every setting at a temp directory and returns it.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	env := map[string]string{
		"VECTOR_INDEX_PATH":   filepath.Join(dir, "index"),
		"INDEX_TYPE":          "flat",
		"EMBEDDING_PROVIDER":  "hash",
		"EMBEDDING_DIMENSION": "64",
		"CHUNK_SIZE":          "300",
		"CHUNK_OVERLAP":       "30",
		"TOP_K_RESULTS":       "3",
		"GROQ_API_KEY":        "",
		"WEB_SEARCH_PROVIDER": "none",
		"METADATA_BACKEND":    "file",
		"METADATA_FILE":       filepath.Join(dir, "metadata.json"),
		"LOG_LEVEL":           "none",
	}
	for k, v := range env {
		t.Setenv(k, v)
	}
	return dir
}

func run(t *testing.T, args []string, opts ...app.Option) (string, error) {
	t.Helper()
	root := NewRootCmd(opts...)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--env", filepath.Join(t.TempDir(), "none.env")}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func seedPapers(t *testing.T, dir string, papers ...rag.PaperMetadata) {
	t.Helper()
	s, err := file.New(filepath.Join(dir, "metadata.json"))
	require.NoError(t, err)
	for _, p := range papers {
		require.NoError(t, s.Upsert(context.Background(), p))
	}
}

func TestRootCmd_UnknownCommand(t *testing.T) {
	_, err := run(t, []string{"nonexistent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown command "nonexistent" for "paperrag"`)
}

func TestRootCmd_InvalidConfig(t *testing.T) {
	setupEnv(t)
	t.Setenv("CHUNK_OVERLAP", "300")
	_, err := run(t, []string{"status"})
	assert.ErrorIs(t, err, rag.ErrInvalidConfig)

	t.Setenv("CHUNK_OVERLAP", "30")
	_, err = run(t, []string{"status", "--log-level", "loud"})
	assert.Error(t, err)
}

func TestIngestStatusAndQuery(t *testing.T) {
	setupEnv(t)
	docs := t.TempDir()
	paper := "Sparse Attention\nJane Doe\n\nAbstract\nWe make attention sparse.\n\n1 Introduction\nDense attention is slow.\n"
	require.NoError(t, os.WriteFile(filepath.Join(docs, "sparse.txt"), []byte(paper), 0644))
	llm := app.WithLLM(fixedLLM{answer: "Blocks of keys."})

	out, err := run(t, []string{"status"})
	require.NoError(t, err)
	assert.Contains(t, out, "empty: run paperrag ingest")

	_, err = run(t, []string{"ingest"})
	assert.Error(t, err)

	out, err = run(t, []string{"ingest", "--dir", docs}, llm)
	require.NoError(t, err)
	assert.Contains(t, out, "Sparse Attention")
	assert.Contains(t, out, "1 files")

	out, err = run(t, []string{"status", "--json"})
	require.NoError(t, err)
	var status struct {
		Index struct {
			Initialized bool
			Count       int
		} `json:"index"`
		Papers int  `json:"papers"`
		LLM    bool `json:"llm"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.True(t, status.Index.Initialized)
	assert.Positive(t, status.Index.Count)
	assert.Equal(t, 1, status.Papers)
	assert.False(t, status.LLM)

	_, err = run(t, []string{"query", "how?"})
	assert.ErrorIs(t, err, app.ErrNoLLM)

	out, err = run(t, []string{"query", "how", "is", "attention", "sparse?"}, llm)
	require.NoError(t, err)
	assert.Contains(t, out, "Blocks of keys.")
	assert.Contains(t, out, "- Sparse Attention")

	out, err = run(t, []string{"query", "--stream", "what?"}, llm)
	require.NoError(t, err)
	assert.Equal(t, "Blocks of keys.\n", out)

	_, err = run(t, []string{"query", "--mode", "web", "what?"}, llm)
	assert.ErrorIs(t, err, rag.ErrInvalidConfig)

	_, err = run(t, []string{"query", "--mode", "telepathy", "what?"}, llm)
	assert.ErrorIs(t, err, rag.ErrInvalidConfig)

	_, err = run(t, []string{"query", "--stream", "--mode", "hybrid", "what?"}, llm)
	assert.Error(t, err)
}

func TestPapersAndTrends(t *testing.T) {
	dir := setupEnv(t)
	seedPapers(t, dir,
		rag.PaperMetadata{PaperID: "a", Title: "Attention Is All You Need", Authors: []string{"Vaswani"}, Year: rag.IntPtr(2017), Venue: rag.StringPtr("NeurIPS"), Keywords: []string{"attention"}},
		rag.PaperMetadata{PaperID: "b", Title: "Denoising Diffusion", Authors: []string{"Ho"}, Year: rag.IntPtr(2020), Venue: rag.StringPtr("NeurIPS"), Keywords: []string{"diffusion"}},
		rag.PaperMetadata{PaperID: "c", Title: "Latent Diffusion", Authors: []string{"Rombach"}, Year: rag.IntPtr(2022), Venue: rag.StringPtr("CVPR"), Keywords: []string{"diffusion", "attention"}},
	)

	out, err := run(t, []string{"papers", "--keyword", "diffusion", "--json"})
	require.NoError(t, err)
	var papers []rag.PaperMetadata
	require.NoError(t, json.Unmarshal([]byte(out), &papers))
	require.Len(t, papers, 2)
	assert.Equal(t, "b", papers[0].PaperID)

	out, err = run(t, []string{"papers", "--from", "2021"})
	require.NoError(t, err)
	assert.Contains(t, out, "Latent Diffusion")
	assert.NotContains(t, out, "Denoising Diffusion")

	out, err = run(t, []string{"papers", "--venue", "ICML"})
	require.NoError(t, err)
	assert.Contains(t, out, "No papers found.")

	out, err = run(t, []string{"trends"})
	require.NoError(t, err)
	assert.Contains(t, out, "diffusion (growth score: 1)")
	assert.Contains(t, out, "Latent Diffusion")

	out, err = run(t, []string{"report", "--format", "html", "--title", "Diffusion"})
	require.NoError(t, err)
	assert.Contains(t, out, "<h1")
	assert.Contains(t, out, "Attention Is All You Need")

	path := filepath.Join(t.TempDir(), "report.md")
	out, err = run(t, []string{"report", "-o", path})
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")
	body, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(body), "# Research Report"))

	_, err = run(t, []string{"report", "--format", "pdf"})
	assert.ErrorIs(t, err, rag.ErrInvalidConfig)
}

func TestSearchWeb_NotConfigured(t *testing.T) {
	setupEnv(t)
	_, err := run(t, []string{"search-web", "anything"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "web search is not configured")
}
