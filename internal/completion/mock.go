package completion

import (
	"context"
	"strings"
)

// Mock returns a fixed, well-formed notes document without any network call.
type Mock struct{}

const mockResponse = `{
  "summary": "The team reviewed current progress and agreed on next steps.",
  "key_points": ["Progress reviewed against the plan", "Next steps agreed"],
  "action_items": ["Circulate the meeting notes"],
  "decisions": ["Proceed with the current plan"],
  "sentiment": "Constructive and focused"
}`

func (Mock) Complete(ctx context.Context, prompt, model string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(prompt) == "" {
		return "", nil
	}
	return mockResponse, nil
}
