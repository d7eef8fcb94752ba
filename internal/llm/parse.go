package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// stripCodeFence removes a surrounding markdown code fence from a model
// completion, if present. Models frequently wrap JSON in ```json blocks
// even when told not to.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	// Drop the language tag on the opening fence line
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}

// decodeStructured unmarshals a model completion into out, tolerating code
// fences. Any decode failure is reported as ErrMalformedOutput.
func decodeStructured(completion string, out any) error {
	cleaned := stripCodeFence(completion)
	if cleaned == "" {
		return fmt.Errorf("%w: empty completion", ErrMalformedOutput)
	}
	if err := json.Unmarshal([]byte(cleaned), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOutput, err)
	}
	return nil
}
