package llm

import (
	"errors"
	"io"
	"strings"
	"testing"
)

func TestSSEReader(t *testing.T) {
	type sseEvent struct {
		event string
		data  string
	}

	tests := []struct {
		name     string
		input    string
		expected []sseEvent
	}{
		{
			name: "Simple SSE event",
			input: `data: {"text": "Hello"}

`,
			expected: []sseEvent{{"", `{"text": "Hello"}`}},
		},
		{
			name: "Multiple events",
			input: `data: {"text": "First"}

data: {"text": "Second"}

`,
			expected: []sseEvent{{"", `{"text": "First"}`}, {"", `{"text": "Second"}`}},
		},
		{
			name: "Event with type",
			input: `event: message
data: {"text": "Hello"}

`,
			expected: []sseEvent{{"message", `{"text": "Hello"}`}},
		},
		{
			name: "Multi-line data",
			input: `data: {"text": "Line 1
data: Line 2"}

`,
			expected: []sseEvent{{"", `{"text": "Line 1
Line 2"}`}},
		},
		{
			name:     "Trailing event without blank line",
			input:    "data: first\n\ndata: [DONE]",
			expected: []sseEvent{{"", "first"}, {"", "[DONE]"}},
		},
		{
			name:     "Comments and ids are ignored",
			input:    ": keep-alive\nid: 7\ndata: x\n\n",
			expected: []sseEvent{{"", "x"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var results []sseEvent

			sseReader := NewSSEReader(strings.NewReader(tt.input), func(event, data string) error {
				results = append(results, sseEvent{event, data})
				return nil
			})

			if err := sseReader.Read(); err != nil {
				t.Fatalf("SSEReader.Read() error = %v", err)
			}

			if len(results) != len(tt.expected) {
				t.Fatalf("Expected %d events, got %d", len(tt.expected), len(results))
			}

			for i, expected := range tt.expected {
				if results[i] != expected {
					t.Errorf("Event %d: expected (%q, %q), got (%q, %q)",
						i, expected.event, expected.data, results[i].event, results[i].data)
				}
			}
		})
	}
}

func TestSSEReaderStopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	calls := 0
	reader := NewSSEReader(strings.NewReader("data: a\n\ndata: b\n\n"), func(event, data string) error {
		calls++
		return stop
	})

	if err := reader.Read(); !errors.Is(err, stop) {
		t.Fatalf("expected stop error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 callback, got %d", calls)
	}
}

func TestParseSSEData(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantError bool
		isDone    bool
		content   string
	}{
		{
			name:    "Valid streaming response",
			data:    `{"id":"123","choices":[{"delta":{"content":"Hello"}}]}`,
			content: "Hello",
		},
		{
			name:   "Done message",
			data:   "[DONE]",
			isDone: true,
		},
		{
			name:      "Invalid JSON",
			data:      `{"id":`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunk, err := ParseSSEData(tt.data)
			if tt.isDone {
				if err != io.EOF {
					t.Fatalf("expected io.EOF, got %v", err)
				}
				return
			}
			if tt.wantError {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := chunk.Choices[0].Delta.Content; got != tt.content {
				t.Fatalf("expected content %q, got %q", tt.content, got)
			}
		})
	}
}
