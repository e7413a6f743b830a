package llm

import "testing"

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":         0,
		"a":        1,
		"abcd":     1,
		"abcde":    2,
		"12345678": 2,
	}
	for text, want := range cases {
		if got := EstimateTokens(text); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", text, got, want)
		}
	}
}

func TestCountTokensEmpty(t *testing.T) {
	if got := CountTokens("gpt3.5", ""); got != 0 {
		t.Errorf("expected 0 tokens for empty text, got %d", got)
	}
	if got := CountMessageTokens("gpt3.5", nil); got != 0 {
		t.Errorf("expected 0 tokens for no messages, got %d", got)
	}
}
