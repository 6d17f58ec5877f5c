package loader

import (
	"strings"
	"unicode"

	"github.com/smallnest/paperrag/rag"
)

// sectionKeywords lists header keywords per section, in vocabulary order.
// The first section whose keyword anchors a line wins.
var sectionKeywords = []struct {
	name     string
	keywords []string
}{
	{rag.SectionAbstract, []string{"abstract"}},
	{rag.SectionIntroduction, []string{"introduction"}},
	{rag.SectionRelatedWork, []string{"related work", "background"}},
	{rag.SectionMethodology, []string{"methodology", "methods", "approach"}},
	{rag.SectionResults, []string{"results", "experiments", "evaluation"}},
	{rag.SectionConclusion, []string{"conclusions", "conclusion", "future work"}},
	{rag.SectionReferences, []string{"references", "bibliography"}},
}

// SegmentIntoSections splits text into named sections line by line.
//
// A line is a header when its trimmed, lower-cased form starts or ends with a
// section keyword on a word boundary and it is no longer than the configured
// header word limit. The header line closes the running section and the next
// line starts the new one. Text before the first header is kept as a
// rag.SectionTitleInfo section; when no header exists that sentinel holds the
// whole text. Sections with blank content are dropped.
func (p *Processor) SegmentIntoSections(text string) []rag.PaperSection {
	var sections []rag.PaperSection
	current := rag.SectionTitleInfo
	var buf []string

	flush := func() {
		content := strings.TrimSpace(strings.Join(buf, "\n"))
		if content != "" {
			sections = append(sections, rag.PaperSection{Name: current, Content: content})
		}
		buf = buf[:0]
	}

	for _, line := range strings.Split(text, "\n") {
		if name, ok := p.headerSection(line); ok {
			flush()
			current = name
			continue
		}
		buf = append(buf, line)
	}
	flush()

	return sections
}

// headerSection reports the section a header line opens.
func (p *Processor) headerSection(line string) (string, bool) {
	t := strings.ToLower(strings.TrimSpace(line))
	if t == "" || len(strings.Fields(t)) > p.maxHeaderWords {
		return "", false
	}
	trimmed := strings.TrimRight(t, ".: ")
	for _, s := range sectionKeywords {
		for _, kw := range s.keywords {
			if hasWordPrefix(t, kw) || hasWordSuffix(trimmed, kw) {
				return s.name, true
			}
		}
	}
	return "", false
}

func hasWordPrefix(s, kw string) bool {
	if !strings.HasPrefix(s, kw) {
		return false
	}
	rest := s[len(kw):]
	return rest == "" || !isWordRune(firstRune(rest))
}

func hasWordSuffix(s, kw string) bool {
	if !strings.HasSuffix(s, kw) {
		return false
	}
	head := s[:len(s)-len(kw)]
	return head == "" || !isWordRune(lastRune(head))
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func firstRune(s string) rune {
	for _, r := range s {
		return r
	}
	return 0
}

func lastRune(s string) rune {
	r := []rune(s)
	return r[len(r)-1]
}

// FilterSections returns sections whose name is not in exclude.
func FilterSections(sections []rag.PaperSection, exclude ...string) []rag.PaperSection {
	if len(exclude) == 0 {
		return sections
	}
	skip := make(map[string]bool, len(exclude))
	for _, name := range exclude {
		skip[name] = true
	}
	out := make([]rag.PaperSection, 0, len(sections))
	for _, s := range sections {
		if !skip[s.Name] {
			out = append(out, s)
		}
	}
	return out
}
