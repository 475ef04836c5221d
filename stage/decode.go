package stage

import (
	"encoding/json"
	"strings"
)

// decodeModelJSON unmarshals a model completion into v, tolerating the common
// failure mode where the model wraps its JSON in a markdown code fence.
func decodeModelJSON(text string, v any) error {
	return json.Unmarshal([]byte(stripCodeFence(text)), v)
}

func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```")
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		// drop the language tag line, e.g. ```json
		trimmed = trimmed[idx+1:]
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
