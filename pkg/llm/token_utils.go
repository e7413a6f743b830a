package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// fallbackEncoding is used for models tiktoken does not know, which includes
// every self-hosted gateway model name.
const fallbackEncoding = "cl100k_base"

var (
	encoderCache   = map[string]*tiktoken.Tiktoken{}
	encoderCacheMu sync.Mutex
)

// CountTokens returns the number of tokens text occupies for model. When no
// encoding can be loaded it falls back to EstimateTokens.
func CountTokens(model, text string) int {
	if text == "" {
		return 0
	}
	enc, err := encoderFor(model)
	if err != nil {
		return EstimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessageTokens sums CountTokens over every message content.
func CountMessageTokens(model string, messages []Message) int {
	total := 0
	for _, msg := range messages {
		total += CountTokens(model, msg.Content)
	}
	return total
}

// EstimateTokens approximates a token count at four characters per token.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	return (len(text) + 3) / 4
}

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	encoderCacheMu.Lock()
	defer encoderCacheMu.Unlock()

	if enc, ok := encoderCache[model]; ok {
		return enc, nil
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, err
		}
	}
	encoderCache[model] = enc
	return enc, nil
}
