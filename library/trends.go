package library

import (
	"cmp"
	"slices"

	"github.com/smallnest/paperrag/rag"
)

// KeywordCount is the number of papers of one year tagged with a keyword.
type KeywordCount struct {
	Year    int    `json:"year"`
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

// Topic is a keyword whose frequency grew over the most recent years.
type Topic struct {
	Keyword string `json:"keyword"`
	Growth  int    `json:"growth"`
}

// Influence is a paper with its proxy influence score: the number of its
// keywords plus the number of papers sharing its venue.
type Influence struct {
	Paper        rag.PaperMetadata `json:"paper"`
	KeywordCount int               `json:"keyword_count"`
	VenueCount   int               `json:"venue_count"`
	Score        int               `json:"score"`
}

// KeywordTrends counts keyword occurrences per year, ordered by year then
// keyword. Papers without a year are skipped.
func KeywordTrends(papers []rag.PaperMetadata) []KeywordCount {
	type key struct {
		year    int
		keyword string
	}
	counts := make(map[key]int)
	for _, p := range papers {
		if p.Year == nil {
			continue
		}
		for _, kw := range p.Keywords {
			counts[key{*p.Year, kw}]++
		}
	}

	out := make([]KeywordCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KeywordCount{Year: k.year, Keyword: k.keyword, Count: n})
	}
	slices.SortFunc(out, func(a, b KeywordCount) int {
		return cmp.Or(cmp.Compare(a.Year, b.Year), cmp.Compare(a.Keyword, b.Keyword))
	})
	return out
}

// EmergingTopics sums, per keyword, the change in yearly count across the
// last recentYears years that have any keyword at all. Only keywords with a
// positive total are returned, highest growth first and ties by keyword.
func EmergingTopics(trends []KeywordCount, recentYears int) []Topic {
	if recentYears <= 0 || len(trends) == 0 {
		return nil
	}

	counts := make(map[int]map[string]int)
	keywords := make(map[string]struct{})
	for _, t := range trends {
		if counts[t.Year] == nil {
			counts[t.Year] = make(map[string]int)
		}
		counts[t.Year][t.Keyword] += t.Count
		keywords[t.Keyword] = struct{}{}
	}

	years := make([]int, 0, len(counts))
	for y := range counts {
		years = append(years, y)
	}
	slices.Sort(years)

	// The first year has no predecessor and contributes nothing.
	start := max(1, len(years)-recentYears)
	var out []Topic
	for kw := range keywords {
		growth := 0
		for i := start; i < len(years); i++ {
			growth += counts[years[i]][kw] - counts[years[i-1]][kw]
		}
		if growth > 0 {
			out = append(out, Topic{Keyword: kw, Growth: growth})
		}
	}
	slices.SortFunc(out, func(a, b Topic) int {
		return cmp.Or(cmp.Compare(b.Growth, a.Growth), cmp.Compare(a.Keyword, b.Keyword))
	})
	return out
}

// RankInfluence scores every paper and orders them by descending score.
// Equal scores keep their input order. Papers without a venue get a venue
// count of zero.
func RankInfluence(papers []rag.PaperMetadata) []Influence {
	perVenue := make(map[string]int)
	for _, p := range papers {
		if p.Venue != nil {
			perVenue[*p.Venue]++
		}
	}

	out := make([]Influence, 0, len(papers))
	for _, p := range papers {
		inf := Influence{Paper: p, KeywordCount: len(p.Keywords)}
		if p.Venue != nil {
			inf.VenueCount = perVenue[*p.Venue]
		}
		inf.Score = inf.KeywordCount + inf.VenueCount
		out = append(out, inf)
	}
	slices.SortStableFunc(out, func(a, b Influence) int {
		return cmp.Compare(b.Score, a.Score)
	})
	return out
}
