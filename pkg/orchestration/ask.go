package orchestration

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/prompts"
	"github.com/alantheprice/askweb/pkg/utils"
	"github.com/alantheprice/askweb/pkg/webcontent"
)

// ReferencesHeader opens the footer listing the search results.
const ReferencesHeader = "\n\n---\n**References:**\n"

// WebSearcher finds and extracts pages for a query.
type WebSearcher interface {
	Search(ctx context.Context, query string) webcontent.SearchOutcome
}

// ChatStreamer streams a model answer for a conversation.
type ChatStreamer interface {
	Stream(ctx context.Context, req llm.ChatRequest) iter.Seq[string]
}

// ChatCompleter returns a model answer in one piece. Streamers that also
// implement it serve requests with NoStream set.
type ChatCompleter interface {
	Complete(ctx context.Context, req llm.ChatRequest) (string, error)
}

// Request is one question together with the model and search choices made
// for it.
type Request struct {
	Query         string
	History       []llm.Message
	Model         string
	AuthToken     string
	BaseURL       string
	UseCustomLLM  bool
	SearchEnabled bool
	// NoStream asks for the whole answer as a single token.
	NoStream bool
	// Prompt overrides the asker's prompt options when set.
	Prompt *prompts.PromptOptions
	// OnPhase observes this request's phases, after the asker's own observer.
	OnPhase func(phase Phase)
}

// Asker answers questions with optional web grounding. It is the single
// entry point used by the CLI and the server.
type Asker struct {
	Searcher WebSearcher
	Streamer ChatStreamer
	Prompt   prompts.PromptOptions

	// OnPhase, when set, observes every phase transition of a request.
	OnPhase func(requestID string, phase Phase)
	// CountTokens measures the assembled prompt for logging.
	CountTokens func(model string, messages []llm.Message) int

	logger *utils.Logger
}

// NewAsker wires an Asker with token counting through tiktoken.
func NewAsker(searcher WebSearcher, streamer ChatStreamer, prompt prompts.PromptOptions, logger *utils.Logger) *Asker {
	return &Asker{
		Searcher:    searcher,
		Streamer:    streamer,
		Prompt:      prompt,
		CountTokens: llm.CountMessageTokens,
		logger:      logger,
	}
}

// AskInternet answers req as a lazy token sequence: the model's answer
// followed, when search ran and found links, by a references footer. Search
// and model failures never end the sequence early; they degrade the answer
// or surface as an error token.
func (a *Asker) AskInternet(ctx context.Context, req Request) iter.Seq[string] {
	return func(yield func(string) bool) {
		requestID := uuid.NewString()
		logger := a.logger.WithCorrelationID(requestID)
		startTime := time.Now()

		enter := func(phase Phase) {
			logger.Logf("Phase: %s", phase)
			if a.OnPhase != nil {
				a.OnPhase(requestID, phase)
			}
			if req.OnPhase != nil {
				req.OnPhase(phase)
			}
		}
		defer func() {
			enter(PhaseDone)
			logger.Logf("Request completed in %v", time.Since(startTime))
		}()

		logger.LogProcessStep(fmt.Sprintf("Question: %s (model %s, search %t)", req.Query, req.Model, req.SearchEnabled))

		links := []webcontent.SearchLink{}
		contents := []webcontent.ExtractedContent{}
		if req.SearchEnabled && a.Searcher != nil {
			enter(PhaseSearching)
			outcome := a.Searcher.Search(ctx, req.Query)
			if outcome.Degraded() {
				logger.LogError(fmt.Errorf("search degraded, answering without context: %w", outcome.Err))
			}
			if outcome.Partial {
				logger.Log("Search extraction timed out, using partial results")
			}
			links, contents = outcome.Links, outcome.Contents
			for i, link := range links {
				logger.Logf("Result %d: %s (%s)", i+1, link.Title, link.URL)
			}
		}

		enter(PhaseAssembling)
		opts := a.Prompt
		if req.Prompt != nil {
			opts = *req.Prompt
		}
		messages := prompts.BuildAskMessages(req.Query, contents, req.History, opts)
		for _, msg := range messages {
			logger.Logf("Message role=%s length=%d", msg.Role, len(msg.Content))
		}
		if a.CountTokens != nil {
			logger.Logf("Prompt size: %d tokens", a.CountTokens(req.Model, messages))
		}

		enter(PhaseStreamingAnswer)
		answerLength := 0
		for token := range a.answer(ctx, req.NoStream, llm.ChatRequest{
			Model:             req.Model,
			AuthToken:         req.AuthToken,
			BaseURL:           req.BaseURL,
			UseCustomEndpoint: req.UseCustomLLM,
			Messages:          messages,
		}) {
			if token == "" {
				continue
			}
			answerLength += len(token)
			if !yield(token) {
				logger.Log("Consumer stopped reading the answer")
				return
			}
		}
		logger.Logf("Answer length: %d", answerLength)

		if !req.SearchEnabled || len(links) == 0 {
			return
		}
		enter(PhaseAppendingReferences)
		if !yield(ReferencesHeader) {
			return
		}
		for i, link := range links {
			if !yield(ReferenceLine(i+1, link)) {
				return
			}
		}
	}
}

// answer streams chatReq, or completes it in one call when noStream is set
// and the streamer supports it.
func (a *Asker) answer(ctx context.Context, noStream bool, chatReq llm.ChatRequest) iter.Seq[string] {
	completer, ok := a.Streamer.(ChatCompleter)
	if !noStream || !ok {
		return a.Streamer.Stream(ctx, chatReq)
	}
	return func(yield func(string) bool) {
		content, err := completer.Complete(ctx, chatReq)
		if err != nil {
			a.logger.LogError(err)
			// Match the streaming token, which carries only the cause.
			var endpointErr *utils.StructuredError
			if errors.As(err, &endpointErr) && endpointErr.RootCause != nil {
				err = endpointErr.RootCause
			}
			yield(llm.ErrorToken(err))
			return
		}
		yield(content)
	}
}

// ReferenceLine renders one numbered footer entry.
func ReferenceLine(n int, link webcontent.SearchLink) string {
	return fmt.Sprintf("%d. [%s](%s)\n", n, link.Title, link.URL)
}
