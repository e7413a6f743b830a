package cmd

import (
	"context"
	"fmt"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/alantheprice/askweb/pkg/configuration"
	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/orchestration"
	"github.com/alantheprice/askweb/pkg/prompts"
	"github.com/alantheprice/askweb/pkg/utils"
	"github.com/alantheprice/askweb/pkg/webcontent"
)

// asker is the pipeline entry point the commands drive.
type asker interface {
	AskInternet(ctx context.Context, req orchestration.Request) iter.Seq[string]
}

// newAsker wires the search, prompt and model components for s.
func newAsker(s *configuration.Settings, logger *utils.Logger) *orchestration.Asker {
	extractor := webcontent.NewContentExtractor()
	searcher := webcontent.NewWebSearcher(s.SearchOptions(), extractor, logger)
	streamer := llm.NewChatStreamer(logger)
	streamer.Backoff = s.RateLimitBackoff()
	return orchestration.NewAsker(searcher, streamer, s.PromptOptions(), logger)
}

// newRequest builds the request for query from s.
func newRequest(s *configuration.Settings, query string, history []llm.Message) orchestration.Request {
	return orchestration.Request{
		Query:         query,
		History:       history,
		Model:         s.Model,
		AuthToken:     s.AuthToken,
		BaseURL:       s.BaseURL,
		UseCustomLLM:  s.UseCustomLLM,
		SearchEnabled: s.SearchEnabled,
	}
}

// statusPrinter reports request phases on a terminal.
type statusPrinter struct {
	out     io.Writer
	enabled bool
}

func newStatusPrinter(out io.Writer) *statusPrinter {
	enabled := false
	if f, ok := out.(*os.File); ok {
		enabled = term.IsTerminal(int(f.Fd()))
	}
	return &statusPrinter{out: out, enabled: enabled}
}

func (p *statusPrinter) phase(phase orchestration.Phase) {
	if !p.enabled {
		return
	}
	switch phase {
	case orchestration.PhaseSearching:
		color.New(color.FgCyan).Fprintln(p.out, prompts.SearchingWeb())
	case orchestration.PhaseStreamingAnswer:
		color.New(color.FgCyan).Fprintln(p.out, prompts.ComposingAnswer())
	}
}

func (p *statusPrinter) info(msg string) {
	if p.enabled {
		color.New(color.FgHiBlack).Fprintln(p.out, msg)
	}
}

// streamAnswer writes every token of req's answer to out and returns the
// full text.
func streamAnswer(ctx context.Context, a asker, req orchestration.Request, out io.Writer) (string, error) {
	var answer strings.Builder
	for token := range a.AskInternet(ctx, req) {
		answer.WriteString(token)
		if _, err := io.WriteString(out, token); err != nil {
			return answer.String(), fmt.Errorf("failed to write answer: %w", err)
		}
	}
	return answer.String(), nil
}
