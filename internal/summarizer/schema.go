package summarizer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// notesDocument is the JSON shape the completion service is asked for.
type notesDocument struct {
	Summary     string   `json:"summary"`
	KeyPoints   []string `json:"key_points"`
	ActionItems []string `json:"action_items"`
	Decisions   []string `json:"decisions"`
	Sentiment   string   `json:"sentiment"`
}

func notesSchema(required ...string) map[string]any {
	stringList := map[string]any{
		"type":  []any{"array", "null"},
		"items": map[string]any{"type": "string"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"summary":      map[string]any{"type": "string"},
			"key_points":   stringList,
			"action_items": stringList,
			"decisions":    stringList,
			"sentiment":    map[string]any{"type": []any{"string", "null"}},
		},
		"required": required,
	}
}

func compileSchema(name string, schemaMap map[string]any) (*jsonschema.Schema, error) {
	b, err := json.Marshal(schemaMap)
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(b)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return schema, nil
}

// parseDocument strips markdown fences, decodes strictly and validates
// against schema.
func parseDocument(resp string, schema *jsonschema.Schema) (notesDocument, error) {
	body := stripFences(resp)

	var v any
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return notesDocument{}, fmt.Errorf("decode response: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return notesDocument{}, fmt.Errorf("response does not match schema: %w", err)
	}
	var doc notesDocument
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return notesDocument{}, fmt.Errorf("decode notes: %w", err)
	}
	return doc, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
	for _, fence := range []string{"```json", "```JSON", "```"} {
		if strings.HasPrefix(s, fence) {
			s = s[len(fence):]
			break
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
