package summarizer

import (
	"fmt"
	"regexp"
	"strings"

	"meeting-notes-go/internal/normalizer"
	"meeting-notes-go/internal/types"
)

var importantKeywords = []string{
	"decision", "decided", "agree", "approved", "resolved",
	"action", "task", "follow up", "next step", "deadline",
	"issue", "problem", "challenge", "concern", "risk",
	"project", "initiative", "proposal", "plan", "strategy",
	"update", "status", "progress", "result", "outcome",
	"budget", "cost", "resource", "timeline", "schedule",
}

var terminalRe = regexp.MustCompile(`[.!?]+`)

const (
	maxKeyPointSentences = 15
	maxTopicKeyPoints    = 10
	minKeyPointLen       = 20
	maxHighlightRunes    = 300

	briefSummaryWords  = 100
	mediumSummaryWords = 1500
	longSummaryWords   = 3000
)

const (
	briefSummary = "Brief meeting '%s' with limited discussion content. The session covered basic topics and concluded with minimal actionable items."

	shortSummary = `The meeting '%s' addressed important business topics through focused discussion. %s

Participants contributed valuable insights leading to clear outcomes and actionable decisions. The session maintained good momentum while covering all essential agenda items effectively.`

	mediumSummary = `The detailed meeting '%s' covered substantial ground across multiple discussion areas. %s

Participants engaged in meaningful dialogue addressing key operational and strategic considerations. The session provided comprehensive coverage of relevant topics while maintaining focus on practical outcomes and actionable decisions.

Discussion included thorough analysis of current challenges, evaluation of potential solutions, and establishment of clear implementation strategies. The meeting concluded with well-defined next steps and stakeholder commitments.`

	longSummary = `The comprehensive meeting '%s' involved extensive discussions spanning multiple topics and themes. %s

The session demonstrated thorough exploration of complex subjects with detailed participant engagement. Key discussion segments covered strategic planning, operational considerations, and collaborative decision-making processes.

Participants provided in-depth analysis of current situations, explored various solutions, and established clear pathways for implementation. The meeting maintained strong focus on actionable outcomes while addressing both immediate concerns and long-term objectives.

The extended dialogue allowed for comprehensive coverage of all relevant topics, ensuring stakeholder alignment and establishing concrete next steps for continued progress.`
)

// Boilerplate used by the heuristic path.
var (
	DefaultActionItems = []string{
		"Review and distribute meeting notes to all participants",
		"Schedule follow-up meetings as discussed",
		"Implement decisions and action items from this meeting",
	}
	DefaultDecisions = []string{"Meeting outcomes documented and approved by participants"}
	DefaultSentiment = "Professional meeting with productive discussions"
)

// Heuristic builds notes from the transcript and its features without any
// external call. It never fails and never returns nil slices.
func Heuristic(title, text string, f normalizer.Features) types.Notes {
	return types.Notes{
		Summary:     heuristicSummary(title, text, f),
		KeyPoints:   heuristicKeyPoints(text, f.Topics),
		ActionItems: append([]string(nil), DefaultActionItems...),
		Decisions:   append([]string(nil), DefaultDecisions...),
		Sentiment:   DefaultSentiment,
	}
}

func heuristicSummary(title, text string, f normalizer.Features) string {
	words := normalizer.WordCount(text)
	if words < briefSummaryWords {
		return fmt.Sprintf(briefSummary, title)
	}

	var themes string
	if len(f.Topics) > 0 {
		themes += fmt.Sprintf("Primary discussion areas included: %s. ", strings.Join(head(f.Topics, 8), ", "))
	}
	if len(f.KeyPhrases) > 0 {
		themes += fmt.Sprintf("Key recurring themes: %s. ", strings.Join(head(f.KeyPhrases, 5), ", "))
	}

	var summary string
	switch {
	case words > longSummaryWords:
		summary = fmt.Sprintf(longSummary, title, themes)
	case words > mediumSummaryWords:
		summary = fmt.Sprintf(mediumSummary, title, themes)
	default:
		summary = fmt.Sprintf(shortSummary, title, themes)
	}

	if len(f.Sentences) > 0 {
		highlights := strings.Join(head(f.Sentences, 3), ". ")
		if r := []rune(highlights); len(r) > maxHighlightRunes {
			highlights = string(r[:maxHighlightRunes]) + "..."
		}
		summary += "\n\nKey discussion highlights: " + highlights
	}
	return summary
}

func heuristicKeyPoints(text string, topics []string) []string {
	points := []string{}
	for _, s := range terminalRe.Split(text, -1) {
		s = strings.TrimSpace(s)
		if len(s) <= minKeyPointLen {
			continue
		}
		lower := strings.ToLower(s)
		for _, kw := range importantKeywords {
			if strings.Contains(lower, kw) {
				points = append(points, s)
				break
			}
		}
		if len(points) == maxKeyPointSentences {
			return points
		}
	}
	if len(points) > 0 {
		return points
	}
	for _, topic := range head(topics, maxTopicKeyPoints) {
		points = append(points, "Discussion about "+topic)
	}
	return points
}

func head(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
