package library

import (
	"fmt"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
	"github.com/smallnest/paperrag/rag"
)

// Report collects what the library knows about a set of papers, plus an
// optional answer from the orchestrator.
type Report struct {
	Title    string
	Question string
	Answer   string
	Sources  []string
	Papers   []rag.PaperMetadata
	Emerging []Topic
	Ranked   []Influence

	// MaxRanked caps the influence table. Zero means 15.
	MaxRanked int
}

// BuildReport fills a Report for papers, detecting emerging topics over the
// last recentYears years.
func BuildReport(title string, papers []rag.PaperMetadata, recentYears int) Report {
	return Report{
		Title:    title,
		Papers:   papers,
		Emerging: EmergingTopics(KeywordTrends(papers), recentYears),
		Ranked:   RankInfluence(papers),
	}
}

// Markdown renders the report.
func (r Report) Markdown() string {
	var sb strings.Builder
	title := r.Title
	if title == "" {
		title = "Research Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)

	if r.Question != "" {
		fmt.Fprintf(&sb, "## Question\n\n%s\n\n", r.Question)
	}
	if r.Answer != "" {
		fmt.Fprintf(&sb, "## Answer\n\n%s\n\n", r.Answer)
		if len(r.Sources) > 0 {
			sb.WriteString("Sources:\n\n")
			for _, s := range r.Sources {
				fmt.Fprintf(&sb, "- %s\n", s)
			}
			sb.WriteString("\n")
		}
	}

	fmt.Fprintf(&sb, "## Papers (%d)\n\n", len(r.Papers))
	if len(r.Papers) == 0 {
		sb.WriteString("No papers found.\n\n")
	}
	for _, p := range r.Papers {
		fmt.Fprintf(&sb, "### %s\n\n", titleOf(p))
		if len(p.Authors) > 0 {
			fmt.Fprintf(&sb, "- Authors: %s\n", strings.Join(p.Authors, ", "))
		}
		if p.Year != nil {
			fmt.Fprintf(&sb, "- Year: %d\n", *p.Year)
		}
		if p.Venue != nil && *p.Venue != "" {
			fmt.Fprintf(&sb, "- Venue: %s\n", *p.Venue)
		}
		if len(p.Keywords) > 0 {
			fmt.Fprintf(&sb, "- Keywords: %s\n", strings.Join(p.Keywords, ", "))
		}
		sb.WriteString("\n")
		for _, line := range p.Summary {
			fmt.Fprintf(&sb, "> %s\n", line)
		}
		if len(p.Summary) > 0 {
			sb.WriteString("\n")
		}
	}

	sb.WriteString("## Emerging Topics\n\n")
	if len(r.Emerging) == 0 {
		sb.WriteString("No emerging topics detected.\n\n")
	} else {
		for _, t := range r.Emerging {
			fmt.Fprintf(&sb, "- %s (growth score: %d)\n", t.Keyword, t.Growth)
		}
		sb.WriteString("\n")
	}

	if len(r.Ranked) > 0 {
		limit := r.MaxRanked
		if limit <= 0 {
			limit = 15
		}
		sb.WriteString("## Influential Papers\n\n")
		sb.WriteString("| Title | Year | Venue | Score |\n|---|---|---|---|\n")
		for i, inf := range r.Ranked {
			if i == limit {
				break
			}
			year, venue := "", ""
			if inf.Paper.Year != nil {
				year = fmt.Sprint(*inf.Paper.Year)
			}
			if inf.Paper.Venue != nil {
				venue = *inf.Paper.Venue
			}
			fmt.Fprintf(&sb, "| %s | %s | %s | %d |\n", cell(titleOf(inf.Paper)), year, cell(venue), inf.Score)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// HTML renders the report as sanitised HTML.
func (r Report) HTML() []byte {
	return RenderHTML(r.Markdown())
}

// RenderHTML converts Markdown to HTML and strips anything unsafe, since
// titles and summaries come from untrusted documents.
func RenderHTML(md string) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse([]byte(md))

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags | html.HrefTargetBlank})
	out := markdown.Render(doc, renderer)
	return bluemonday.UGCPolicy().SanitizeBytes(out)
}

func titleOf(p rag.PaperMetadata) string {
	if p.Title == "" {
		return "Unknown"
	}
	return p.Title
}

func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
