package aggregator

import (
	"fmt"
	"strings"
)

// Partial is one section's contribution to a chunked summary.
type Partial struct {
	Index       int // 1-based section number
	Summary     string
	KeyPoints   []string
	ActionItems []string
	Decisions   []string
	Sentiment   string
	Failed      bool
}

// Result is the union of all sections.
type Result struct {
	Summaries   []string
	KeyPoints   []string
	ActionItems []string
	Decisions   []string
	// Sentiment is the first non-empty section sentiment.
	Sentiment string
	// Failed counts sections that contributed a placeholder.
	Failed int
}

// Placeholder is what a section contributes when its analysis failed.
func Placeholder(index int) Partial {
	return Partial{
		Index:     index,
		Summary:   "Discussion continued with various topics addressed",
		KeyPoints: []string{fmt.Sprintf("Continued discussion from section %d", index)},
		Failed:    true,
	}
}

// Aggregate unions partials in section order. Section summaries are prefixed
// with their section number. Every item a section returns is kept unless an
// earlier section already contributed the same text, so the merged lists are
// never shorter than any one section's.
func Aggregate(partials []Partial) Result {
	out := Result{
		Summaries:   []string{},
		KeyPoints:   []string{},
		ActionItems: []string{},
		Decisions:   []string{},
	}
	seenKP := map[string]bool{}
	seenAI := map[string]bool{}
	seenDec := map[string]bool{}
	for _, p := range partials {
		if p.Failed {
			out.Failed++
		}
		if s := strings.TrimSpace(p.Summary); s != "" {
			out.Summaries = append(out.Summaries, fmt.Sprintf("Section %d: %s", p.Index, s))
		}
		out.KeyPoints = union(out.KeyPoints, p.KeyPoints, seenKP)
		out.ActionItems = union(out.ActionItems, p.ActionItems, seenAI)
		out.Decisions = union(out.Decisions, p.Decisions, seenDec)
		if out.Sentiment == "" {
			out.Sentiment = strings.TrimSpace(p.Sentiment)
		}
	}
	return out
}

// union appends src to dst, skipping blanks and items seen in earlier
// sections. Repeats within src are kept.
func union(dst, src []string, seen map[string]bool) []string {
	var added []string
	for _, item := range src {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		dst = append(dst, item)
		added = append(added, item)
	}
	for _, item := range added {
		seen[item] = true
	}
	return dst
}
