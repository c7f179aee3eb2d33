package summarizer

import (
	"context"
	"fmt"
	"strings"

	"meeting-notes-go/internal/aggregator"
	"meeting-notes-go/internal/types"
)

const combinedSummaryLead = "This comprehensive meeting '%s' covered extensive topics across multiple discussion segments."

// maxCombinedSections is how many section summaries the combined summary quotes.
const maxCombinedSections = 5

// SplitWords splits text into ceil(words/size) word-aligned chunks whose
// word counts differ by at most one.
func SplitWords(text string, size int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if size < 1 {
		size = 1
	}
	n := (len(words) + size - 1) / size
	base, extra := len(words)/n, len(words)%n

	chunks := make([]string, 0, n)
	start := 0
	for i := 0; i < n; i++ {
		end := start + base
		if i < extra {
			end++
		}
		chunks = append(chunks, strings.Join(words[start:end], " "))
		start = end
	}
	return chunks
}

// summarizeChunks analyzes each section in order. A section whose call or
// parse fails contributes a placeholder instead of aborting the rest.
func (e *Engine) summarizeChunks(ctx context.Context, in Input) (types.Notes, bool) {
	chunks := SplitWords(in.Text, e.cfg.ChunkWords)
	log := e.log.WithField("chunks", len(chunks))
	log.Info("processing long transcript in sections")

	partials := make([]aggregator.Partial, 0, len(chunks))
	for i, chunk := range chunks {
		if ctx.Err() != nil {
			log.Warn("context done, stopping section analysis")
			break
		}
		partials = append(partials, e.summarizeSection(ctx, in.Title, i+1, len(chunks), chunk))
	}

	res := aggregator.Aggregate(partials)
	if res.Failed > 0 {
		log.WithField("failed_sections", res.Failed).Warn("some sections fell back to placeholders")
	}
	if len(res.KeyPoints) == 0 {
		log.Warn("sections produced no key points, falling back")
		return types.Notes{}, false
	}

	summary := fmt.Sprintf(combinedSummaryLead, in.Title)
	if len(res.Summaries) > 0 {
		summary += " " + strings.Join(head(res.Summaries, maxCombinedSections), " ")
	}
	sentiment := res.Sentiment
	if sentiment == "" {
		sentiment = DefaultSentiment
	}
	return types.Notes{
		Summary:     summary,
		KeyPoints:   res.KeyPoints,
		ActionItems: res.ActionItems,
		Decisions:   res.Decisions,
		Sentiment:   sentiment,
	}, true
}

func (e *Engine) summarizeSection(ctx context.Context, title string, index, total int, chunk string) aggregator.Partial {
	log := e.log.WithField("section", index)
	resp, err := e.complete(ctx, BuildSectionPrompt(title, index, total, chunk))
	if err != nil {
		log.WithField("error", err.Error()).Warn("section analysis failed")
		return aggregator.Placeholder(index)
	}
	doc, err := parseDocument(resp, e.section)
	if err != nil {
		log.WithField("error", err.Error()).Warn("unusable section response")
		return aggregator.Placeholder(index)
	}
	return aggregator.Partial{
		Index:       index,
		Summary:     doc.Summary,
		KeyPoints:   doc.KeyPoints,
		ActionItems: doc.ActionItems,
		Decisions:   doc.Decisions,
		Sentiment:   doc.Sentiment,
	}
}
