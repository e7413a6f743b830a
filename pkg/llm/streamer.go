package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/alantheprice/askweb/pkg/utils"
)

const (
	DefaultMaxTokens     = 1024
	DefaultTemperature   = 0.2
	defaultStreamTimeout = 5 * time.Minute
	maxErrorBodyBytes    = 4096
)

// errStopped aborts a stream when the consumer stops iterating.
var errStopped = errors.New("stream consumer stopped")

// errStreamDone marks the [DONE] sentinel.
var errStreamDone = errors.New("stream done")

// ChatStreamer sends conversations to a language model and exposes the reply
// as a lazy sequence of text fragments.
type ChatStreamer struct {
	HTTPClient  *http.Client
	MaxTokens   int
	Temperature float64
	// OllamaClientFactory builds the native Ollama client for "ollama/" models.
	OllamaClientFactory func() (OllamaChatClient, error)
	// Backoff retries rate-limited requests before any token is streamed.
	// Nil disables retries.
	Backoff *utils.RateLimitBackoff

	logger *utils.Logger
}

// NewChatStreamer creates a streamer with the fixed generation parameters.
func NewChatStreamer(logger *utils.Logger) *ChatStreamer {
	return &ChatStreamer{
		HTTPClient:          &http.Client{Timeout: defaultStreamTimeout},
		MaxTokens:           DefaultMaxTokens,
		Temperature:         DefaultTemperature,
		OllamaClientFactory: ollamaClientFromEnvironment,
		logger:              logger,
	}
}

// ErrorToken renders err as the terminal token of a failed stream.
func ErrorToken(err error) string {
	return fmt.Sprintf("[Error: %s]", err.Error())
}

// Stream yields each content fragment in arrival order. Any failure, before
// or during streaming, becomes a single final ErrorToken; the sequence never
// panics and is not restartable.
func (s *ChatStreamer) Stream(ctx context.Context, req ChatRequest) iter.Seq[string] {
	return func(yield func(string) bool) {
		endpoint := s.endpointFor(req)
		var err error
		if isOllamaModel(req) {
			err = s.streamOllama(ctx, req, yield)
		} else {
			err = s.streamOpenAI(ctx, req, yield)
		}
		if err == nil || errors.Is(err, errStopped) {
			return
		}
		s.logger.LogError(utils.NewChatEndpointError(endpoint, err))
		yield(ErrorToken(err))
	}
}

// Complete sends the conversation without streaming and returns the single
// completion.
func (s *ChatStreamer) Complete(ctx context.Context, req ChatRequest) (string, error) {
	if isOllamaModel(req) {
		return s.completeOllama(ctx, req)
	}

	endpoint := s.endpointFor(req)
	resp, err := s.post(ctx, req, false)
	if err != nil {
		return "", utils.NewChatEndpointError(endpoint, err)
	}
	defer resp.Body.Close()

	var response ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", utils.NewChatEndpointError(endpoint, fmt.Errorf("failed to decode response: %w", err))
	}
	if response.Error != nil {
		return "", utils.NewChatEndpointError(endpoint, errors.New(response.Error.Message))
	}
	if len(response.Choices) == 0 {
		return "", nil
	}
	return response.Choices[0].Message.Content, nil
}

func (s *ChatStreamer) endpointFor(req ChatRequest) string {
	if isOllamaModel(req) {
		return "ollama"
	}
	return chatCompletionsURL(ResolveBaseURL(req.Model, req.BaseURL, req.UseCustomEndpoint))
}

func (s *ChatStreamer) streamOpenAI(ctx context.Context, req ChatRequest, yield func(string) bool) error {
	resp, err := s.post(ctx, req, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	reader := NewSSEReader(resp.Body, func(event, data string) error {
		chunk, err := ParseSSEData(data)
		if err == io.EOF {
			return errStreamDone
		}
		if err != nil {
			return err
		}
		if chunk.Error != nil {
			return errors.New(chunk.Error.Message)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			return nil
		}
		if !yield(chunk.Choices[0].Delta.Content) {
			return errStopped
		}
		return nil
	})

	if err := reader.Read(); err != nil && !errors.Is(err, errStreamDone) {
		return err
	}
	return nil
}

// post issues the chat-completions request and returns a 200 response whose
// body the caller must close.
func (s *ChatStreamer) post(ctx context.Context, req ChatRequest, stream bool) (*http.Response, error) {
	baseURL := ResolveBaseURL(req.Model, req.BaseURL, req.UseCustomEndpoint)
	payload, err := json.Marshal(OpenAIRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      stream,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	for attempt := 0; ; attempt++ {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, chatCompletionsURL(baseURL), bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("failed to create chat request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+ResolveAuthToken(req.AuthToken))
		if stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}

		resp, err := s.HTTPClient.Do(httpReq)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		statusErr := statusError(resp)
		resp.Body.Close()
		if !s.Backoff.ShouldRetry(attempt) || !s.Backoff.IsRateLimited(resp, statusErr.Error()) {
			return nil, statusErr
		}
		delay := s.Backoff.Delay(resp, attempt)
		s.logger.Logf("Chat endpoint rate limited (attempt %d), retrying in %s", attempt+1, delay)
		if err := s.Backoff.Wait(ctx, delay); err != nil {
			return nil, statusErr
		}
	}
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var envelope struct {
		Error *APIError `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error != nil && envelope.Error.Message != "" {
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, envelope.Error.Message)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
