// Package normalizer cleans transcript text and pulls out the features the
// summarizer builds on: salient sentences, topic keywords and key phrases.
package normalizer

import (
	"regexp"
	"sort"
	"strings"
)

// Features is what Extract finds in a transcript.
type Features struct {
	Sentences  []string
	Topics     []string
	KeyPhrases []string
}

const (
	minFragmentLen   = 15
	minSentenceWords = 3
	maxFillerDensity = 0.4
	topicCandidates  = 50
	minTopicCount    = 2
	minTopicLen      = 3
	phraseCandidates = 20
	minPhraseLen     = 6
)

var (
	splitRe      = regexp.MustCompile(`[.!?]+|\n\n+`)
	spaceRe      = regexp.MustCompile(`\s+`)
	tokenRe      = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)
	disallowedRe = regexp.MustCompile(`[^\p{L}\p{N}_\s.,!?;:\-]`)

	fillerRes = []*regexp.Regexp{
		regexp.MustCompile(`\b(um|uh|ah|er|hmm|well|you know|i mean|like|so|basically|actually|literally)\b`),
		regexp.MustCompile(`\b(kind of|sort of|i guess|i think maybe|probably|perhaps)\b`),
		regexp.MustCompile(`^(okay|alright|right|yes|no|yeah|yep|sure)\.?\s*$`),
	}

	connectors = []string{"the ", "and ", "that ", "with "}
)

var stopWords = toSet(
	"the", "and", "that", "have", "for", "not", "with", "you", "this", "but", "his", "from",
	"they", "she", "her", "been", "than", "its", "were", "said", "each", "which", "their",
	"time", "will", "way", "about", "many", "then", "them", "these", "two", "more", "very",
	"what", "know", "just", "first", "get", "has", "him", "had", "let", "put", "too", "old",
	"any", "after", "move", "why", "before", "here", "how", "all", "both", "few",
	"most", "other", "some", "such", "only", "own", "same",
	"can", "now", "during", "above", "below", "between", "into",
	"through", "being", "where",
	"when", "who", "whom", "whose", "would", "could", "should", "might", "must", "shall",
	"going", "want", "need", "like", "look", "come", "came", "take", "took", "make", "made",
)

// Clean collapses whitespace and strips characters outside letters, digits,
// underscore, whitespace and basic punctuation.
func Clean(text string) string {
	text = strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	return disallowedRe.ReplaceAllString(text, "")
}

// Extract derives sentences, topics and key phrases from text. Empty input
// yields empty (non-nil) slices.
func Extract(text string) Features {
	return Features{
		Sentences:  MeaningfulSentences(text),
		Topics:     Topics(text),
		KeyPhrases: KeyPhrases(text),
	}
}

// Sentences splits text on terminal punctuation or blank lines, keeping
// fragments longer than 15 characters with internal whitespace collapsed.
func Sentences(text string) []string {
	out := []string{}
	for _, frag := range splitRe.Split(text, -1) {
		frag = strings.TrimSpace(frag)
		if len(frag) > minFragmentLen {
			out = append(out, spaceRe.ReplaceAllString(frag, " "))
		}
	}
	return out
}

// MeaningfulSentences keeps sentences with more than three words whose
// filler-word density is at most 40%.
func MeaningfulSentences(text string) []string {
	out := []string{}
	for _, s := range Sentences(text) {
		words := len(strings.Fields(s))
		if words <= minSentenceWords {
			continue
		}
		lower := strings.ToLower(s)
		fillers := 0
		for _, re := range fillerRes {
			fillers += len(re.FindAllStringIndex(lower, -1))
		}
		if float64(fillers)/float64(words) <= maxFillerDensity {
			out = append(out, s)
		}
	}
	return out
}

// Topics returns frequent non-stop-word tokens, most frequent first.
func Topics(text string) []string {
	ranked := mostCommon(tokenRe.FindAllString(strings.ToLower(text), -1), topicCandidates)
	out := []string{}
	for _, c := range ranked {
		if _, stop := stopWords[c.value]; stop {
			continue
		}
		if c.count > minTopicCount && len(c.value) > minTopicLen {
			out = append(out, c.value)
		}
	}
	return out
}

// KeyPhrases returns repeated adjacent-word bigrams that carry no connector word.
func KeyPhrases(text string) []string {
	words := strings.Fields(strings.ToLower(text))
	var phrases []string
	for i := 0; i+1 < len(words); i++ {
		p := words[i] + " " + words[i+1]
		if len(p) > minPhraseLen {
			phrases = append(phrases, p)
		}
	}
	out := []string{}
	for _, c := range mostCommon(phrases, phraseCandidates) {
		if c.count > 1 && !hasConnector(c.value) {
			out = append(out, c.value)
		}
	}
	return out
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

func hasConnector(phrase string) bool {
	for _, c := range connectors {
		if strings.Contains(phrase, c) {
			return true
		}
	}
	return false
}

type counted struct {
	value string
	count int
}

// mostCommon ranks values by count; ties keep first-occurrence order.
func mostCommon(values []string, n int) []counted {
	index := map[string]int{}
	var counts []counted
	for _, v := range values {
		if j, ok := index[v]; ok {
			counts[j].count++
			continue
		}
		index[v] = len(counts)
		counts = append(counts, counted{value: v, count: 1})
	}
	sort.SliceStable(counts, func(a, b int) bool {
		return counts[a].count > counts[b].count
	})
	if len(counts) > n {
		counts = counts[:n]
	}
	return counts
}

func toSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
