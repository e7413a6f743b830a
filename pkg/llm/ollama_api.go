package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ollama "github.com/ollama/ollama/api"
)

// OllamaChatClient is the subset of the Ollama client the streamer uses.
type OllamaChatClient interface {
	Chat(ctx context.Context, req *ollama.ChatRequest, fn ollama.ChatResponseFunc) error
}

func ollamaClientFromEnvironment() (OllamaChatClient, error) {
	client, err := ollama.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("could not create ollama client: %w", err)
	}
	return client, nil
}

func (s *ChatStreamer) buildOllamaRequest(req ChatRequest, stream bool) *ollama.ChatRequest {
	ollamaMessages := make([]ollama.Message, len(req.Messages))
	for i, msg := range req.Messages {
		ollamaMessages[i] = ollama.Message{
			Role:    msg.Role,
			Content: msg.Content,
		}
	}

	return &ollama.ChatRequest{
		// The model name for ollama is without the "ollama/" prefix
		Model:    strings.TrimPrefix(req.Model, ollamaModelPrefix),
		Messages: ollamaMessages,
		Stream:   &stream,
		Options: map[string]interface{}{
			"temperature": s.Temperature,
			"num_predict": s.MaxTokens,
		},
	}
}

func (s *ChatStreamer) streamOllama(ctx context.Context, req ChatRequest, yield func(string) bool) error {
	client, err := s.OllamaClientFactory()
	if err != nil {
		return err
	}

	err = client.Chat(ctx, s.buildOllamaRequest(req, true), func(res ollama.ChatResponse) error {
		if res.Message.Content == "" {
			return nil
		}
		if !yield(res.Message.Content) {
			return errStopped
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopped) {
		return fmt.Errorf("ollama chat failed: %w", err)
	}
	return err
}

func (s *ChatStreamer) completeOllama(ctx context.Context, req ChatRequest) (string, error) {
	client, err := s.OllamaClientFactory()
	if err != nil {
		return "", err
	}

	var content strings.Builder
	err = client.Chat(ctx, s.buildOllamaRequest(req, false), func(res ollama.ChatResponse) error {
		content.WriteString(res.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat failed: %w", err)
	}
	return content.String(), nil
}
