package engine

import (
	"context"
	"strings"
	"sync"

	"github.com/smallnest/paperrag/rag"
	"github.com/tmc/langchaingo/llms"
)

type mockLLM struct {
	mu        sync.Mutex
	reply     string
	fragments []string
	err       error
	prompts   []string
	options   []llms.CallOptions
	streamErr error
}

func (m *mockLLM) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, opt := range options {
		opt(&opts)
	}

	var prompt strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				prompt.WriteString(text.Text)
			}
		}
	}
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt.String())
	m.options = append(m.options, opts)
	m.mu.Unlock()

	if m.err != nil {
		return nil, m.err
	}

	content := m.reply
	if opts.StreamingFunc != nil && len(m.fragments) > 0 {
		content = ""
		for _, f := range m.fragments {
			if err := opts.StreamingFunc(ctx, []byte(f)); err != nil {
				m.mu.Lock()
				m.streamErr = err
				m.mu.Unlock()
				return nil, err
			}
			content += f
		}
	}

	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: content}},
	}, nil
}

func (m *mockLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}

func (m *mockLLM) lastPrompt() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.prompts) == 0 {
		return ""
	}
	return m.prompts[len(m.prompts)-1]
}

func (m *mockLLM) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

type mockSearcher struct {
	initialized bool
	chunks      []rag.Chunk
	err         error

	lastK      int
	lastFilter map[string]any
	searches   int
}

func (m *mockSearcher) IsInitialized() bool { return m.initialized }

func (m *mockSearcher) Search(_ context.Context, _ string, k int, filter map[string]any) ([]rag.Chunk, error) {
	m.searches++
	m.lastK = k
	m.lastFilter = filter
	if m.err != nil {
		return nil, m.err
	}
	out := m.chunks
	if k < len(out) {
		out = out[:k]
	}
	return out, nil
}

type mockWeb struct {
	resp  *rag.WebSearchResponse
	err   error
	calls int
}

func (m *mockWeb) Search(_ context.Context, _ string) (*rag.WebSearchResponse, error) {
	m.calls++
	return m.resp, m.err
}

func paperChunk(title, section, text string) rag.Chunk {
	md := map[string]any{rag.MetaSection: section}
	if title != "" {
		md[rag.MetaTitle] = title
	}
	return rag.Chunk{Text: text, Metadata: md}
}
