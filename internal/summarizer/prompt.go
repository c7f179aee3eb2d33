package summarizer

import (
	"fmt"
	"unicode/utf8"
)

// BuildPrompt builds the single-pass prompt for a whole transcript.
func BuildPrompt(title, transcript string) string {
	prompt := `You are an expert meeting analyst. Analyze the following transcript in detail and extract meaningful insights.

MEETING: %s
TRANSCRIPT (%d characters):
%s

INSTRUCTIONS:
1. Read the entire transcript carefully. Do not skip or over-compress.
2. Write a comprehensive summary of the meeting's purpose, flow of discussion and outcomes.
   - At least 5-8 sentences for a short meeting, proportionally longer for longer transcripts
     (around 10-15 sentences for 15+ minutes of audio).
   - Include all major themes, not just one or two points.
3. Extract key points: direct, factual insights from the transcript, never generic placeholders.
4. Extract action items as specific tasks, with owners or context where mentioned.
   Do not invent action items that were not discussed.
5. Extract decisions: only actual decisions or resolutions reached.
6. Describe the sentiment: overall tone and participant engagement.

Return ONLY valid JSON with this exact structure:
{
  "summary": "Detailed multi-sentence summary (length proportional to transcript).",
  "key_points": ["Factual key point directly from transcript"],
  "action_items": ["Task with details"],
  "decisions": ["Decision with context"],
  "sentiment": "Overall tone and engagement level"
}

RULES:
- Do not shorten the summary unnecessarily; match the length of the transcript.
- Use only transcript content.
- If a category has nothing relevant, return an empty array for that field.
- Do not wrap the JSON in markdown fences.
`
	return fmt.Sprintf(prompt, title, utf8.RuneCountInString(transcript), transcript)
}

// BuildSectionPrompt builds the prompt for section index (1-based) of total.
func BuildSectionPrompt(title string, index, total int, chunk string) string {
	prompt := `Analyze this section of a longer meeting transcript and extract key information in JSON format.

MEETING: %s
SECTION %d of %d:

%s

Extract:
1. "summary": 2-3 sentence summary of this section
2. "key_points": all significant points discussed
3. "action_items": any tasks or follow-ups mentioned
4. "decisions": any decisions made in this section
5. "sentiment": tone of this section

Respond with valid JSON only:
{
  "summary": "section summary",
  "key_points": ["key point"],
  "action_items": ["action item"],
  "decisions": ["decision"],
  "sentiment": "tone"
}
`
	return fmt.Sprintf(prompt, title, index, total, chunk)
}
