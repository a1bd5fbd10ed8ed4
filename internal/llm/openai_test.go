package llm

import "testing"

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"bare object",
			`{"risk_level": "LOW"}`,
			`{"risk_level": "LOW"}`,
		},
		{
			"fenced json",
			"```json\n{\"risk_level\": \"HIGH\"}\n```",
			`{"risk_level": "HIGH"}`,
		},
		{
			"fenced without language tag",
			"```\n{\"risk_level\": \"MEDIUM\"}\n```",
			`{"risk_level": "MEDIUM"}`,
		},
		{
			"surrounding prose",
			`Here is my assessment: {"risk_level": "LOW", "reasoning": "lyrics"} I hope that helps.`,
			`{"risk_level": "LOW", "reasoning": "lyrics"}`,
		},
		{
			"no json at all",
			"cannot comply",
			"cannot comply",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractJSON(tt.in); got != tt.want {
				t.Errorf("extractJSON(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
