package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/tidwall/jsonc"
)

// parseScript decodes a control script: a JSONC document holding either one
// request object or an array of them. Comments and trailing commas are allowed.
func parseScript(data []byte) ([]json.RawMessage, error) {
	stripped := bytes.TrimSpace(jsonc.ToJSON(data))
	if len(stripped) == 0 {
		return nil, fmt.Errorf("script is empty")
	}

	if stripped[0] == '{' {
		return []json.RawMessage{json.RawMessage(stripped)}, nil
	}

	var requests []json.RawMessage
	if err := json.Unmarshal(stripped, &requests); err != nil {
		return nil, fmt.Errorf("script must be a request object or an array of them: %w", err)
	}
	for i, r := range requests {
		trimmed := bytes.TrimSpace(r)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return nil, fmt.Errorf("request %d is not a JSON object", i)
		}
	}
	return requests, nil
}

// loadScript reads and parses a control script file.
func loadScript(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read script: %w", err)
	}
	return parseScript(data)
}
