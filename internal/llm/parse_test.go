package llm

import (
	"errors"
	"testing"
)

func TestStripCodeFence(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no fence", `["a", "b"]`, `["a", "b"]`},
		{"json fence", "```json\n[\"a\"]\n```", `["a"]`},
		{"bare fence", "```\n{\"grade\": \"pass\"}\n```", `{"grade": "pass"}`},
		{"leading whitespace", "  \n```json\n[1]\n```\n", "[1]"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFence(tt.in); got != tt.want {
				t.Errorf("stripCodeFence(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestDecodeStructured(t *testing.T) {
	t.Run("decodes fenced array", func(t *testing.T) {
		var out []string
		if err := decodeStructured("```json\n[\"x\", \"y\"]\n```", &out); err != nil {
			t.Fatalf("decodeStructured failed: %v", err)
		}
		if len(out) != 2 || out[0] != "x" {
			t.Errorf("unexpected result: %v", out)
		}
	})

	t.Run("empty completion is malformed", func(t *testing.T) {
		var out []string
		err := decodeStructured("   ", &out)
		if !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("expected ErrMalformedOutput, got %v", err)
		}
	})

	t.Run("prose is malformed", func(t *testing.T) {
		var out []string
		err := decodeStructured("Here are your queries: foo, bar", &out)
		if !errors.Is(err, ErrMalformedOutput) {
			t.Errorf("expected ErrMalformedOutput, got %v", err)
		}
	})
}
