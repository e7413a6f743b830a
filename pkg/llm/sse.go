package llm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// SSEReader reads Server-Sent Events from a reader
type SSEReader struct {
	reader  *bufio.Reader
	onEvent func(event, data string) error
}

// NewSSEReader creates a new SSE reader
func NewSSEReader(r io.Reader, onEvent func(event, data string) error) *SSEReader {
	return &SSEReader{
		reader:  bufio.NewReader(r),
		onEvent: onEvent,
	}
}

// Read processes the SSE stream. It returns nil on a clean EOF, the first
// error returned by onEvent, or the underlying read error.
func (r *SSEReader) Read() error {
	var event string
	var dataBuilder strings.Builder

	for {
		line, err := r.reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				// Process any remaining data
				if line = strings.TrimSpace(line); strings.HasPrefix(line, "data:") {
					appendData(&dataBuilder, line)
				}
				if dataBuilder.Len() > 0 && r.onEvent != nil {
					return r.onEvent(event, dataBuilder.String())
				}
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)

		// Empty line signals end of event
		if line == "" {
			if dataBuilder.Len() > 0 && r.onEvent != nil {
				if err := r.onEvent(event, dataBuilder.String()); err != nil {
					return err
				}
			}
			event = ""
			dataBuilder.Reset()
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			appendData(&dataBuilder, line)
		}
		// Ignore other fields like id:, retry:
	}
}

func appendData(b *strings.Builder, line string) {
	if b.Len() > 0 {
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
}

// ParseSSEData parses SSE data into a streaming response. The [DONE]
// sentinel is reported as io.EOF.
func ParseSSEData(data string) (*StreamingChatResponse, error) {
	if data == "[DONE]" {
		return nil, io.EOF
	}

	var chunk StreamingChatResponse
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		return nil, fmt.Errorf("failed to parse SSE data: %w", err)
	}

	return &chunk, nil
}
