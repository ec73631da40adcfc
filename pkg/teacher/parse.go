package teacher

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// decodeJSON unmarshals a model reply, repairing it first when the model
// produced almost-JSON (trailing commas, single quotes, truncated objects).
func decodeJSON(raw string, v interface{}) error {
	text := stripCodeFences(raw)
	if text == "" {
		return fmt.Errorf("empty response")
	}

	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	repaired, err := jsonrepair.JSONRepair(text)
	if err != nil {
		return fmt.Errorf("response is not valid JSON: %w", err)
	}
	if DebugLog != nil {
		DebugLog("repaired malformed JSON response (%d bytes)", len(text))
	}
	if err := json.Unmarshal([]byte(repaired), v); err != nil {
		return fmt.Errorf("failed to decode repaired JSON: %w", err)
	}
	return nil
}
