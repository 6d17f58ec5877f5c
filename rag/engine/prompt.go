package engine

import (
	"fmt"

	"github.com/tmc/langchaingo/prompts"
)

// InsufficientContext is the sentence the model is told to use when the
// retrieved papers cannot answer a question.
const InsufficientContext = "The provided papers do not contain enough information to answer this question."

// NoContext is the context text used when retrieval returned nothing.
const NoContext = "No relevant context found."

// DefaultPromptTemplate is the research analyst prompt. It is a Go template
// with the context and question variables.
const DefaultPromptTemplate = `
You are an AI Research Analyst working for an Academic Research Intelligence Platform.

Your task is to assist researchers by analyzing, summarizing, and synthesizing information
from scientific research papers provided in the context.

STRICT RULES:
1. Use ONLY the information present in the provided context.
2. Do NOT invent papers, authors, years, results, or citations.
3. If the context is insufficient, clearly say:
   "` + InsufficientContext + `"
4. When possible, reference paper titles, authors, and years explicitly.
5. Prefer concise, academic-style explanations.
6. If multiple papers are provided, compare and synthesize their findings.
7. Avoid conversational fluff. Be precise and analytical.


Context:
{{.context}}

Question: {{.question}}

Answer: `

func newPrompt(template string) prompts.PromptTemplate {
	return prompts.NewPromptTemplate(template, []string{"context", "question"})
}

func renderPrompt(p prompts.PromptTemplate, question, contextText string) (string, error) {
	out, err := p.Format(map[string]any{
		"context":  contextText,
		"question": question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return out, nil
}
