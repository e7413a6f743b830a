package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/orchestration"
	"github.com/alantheprice/askweb/pkg/prompts"
)

var chatCmd = &cobra.Command{
	Use:     "chat [initial_question]",
	Aliases: []string{"c"},
	Short:   "Interactive chat session with in-memory history",
	Long: `Starts an interactive chat. Earlier turns are sent along with each new
question, up to the configured history limit. Type /search on or /search off to
toggle web search, /clear to forget the conversation, and exit or quit to leave.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		base := newRequest(settings, "", nil)
		base.OnPhase = newStatusPrinter(os.Stderr).phase

		in := io.Reader(os.Stdin)
		if initial := strings.TrimSpace(strings.Join(args, " ")); initial != "" {
			in = io.MultiReader(strings.NewReader(initial+"\n"), os.Stdin)
		}
		return runChat(ctx, newAsker(settings, logger), base, in, cmd.OutOrStdout())
	},
}

// runChat reads one question per line from in and streams each answer to
// out. It returns when in is exhausted, the user exits, or ctx is done.
func runChat(ctx context.Context, a asker, base orchestration.Request, in io.Reader, out io.Writer) error {
	var history []llm.Message
	searchEnabled := base.SearchEnabled
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, prompts.ChatWelcome(base.Model))
	for ctx.Err() == nil {
		fmt.Fprint(out, prompts.ChatPrompt())
		line, err := reader.ReadString('\n')
		question := strings.TrimSpace(line)
		if err != nil && question == "" {
			// EOF or Ctrl+D
			fmt.Fprintln(out)
			break
		}

		switch {
		case question == "":
			continue
		case question == "exit" || question == "quit":
			fmt.Fprintln(out, prompts.ChatGoodbye())
			return nil
		case question == "/clear":
			history = nil
			fmt.Fprintln(out, prompts.HistoryCleared())
			continue
		case strings.HasPrefix(question, "/"):
			if enabled, ok := parseSearchCommand(question); ok {
				searchEnabled = enabled
				fmt.Fprintln(out, prompts.SearchToggled(enabled))
			} else {
				fmt.Fprintln(out, prompts.UnknownChatCommand(question))
			}
			continue
		}

		req := base
		req.Query = question
		req.History = history
		req.SearchEnabled = searchEnabled

		answer, err := streamAnswer(ctx, a, req, out)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)

		// The references footer is display-only.
		answer, _, _ = strings.Cut(answer, orchestration.ReferencesHeader)
		history = append(history,
			llm.Message{Role: "user", Content: question},
			llm.Message{Role: "assistant", Content: answer},
		)
	}

	fmt.Fprintln(out, prompts.ChatGoodbye())
	return nil
}

func parseSearchCommand(command string) (enabled bool, ok bool) {
	fields := strings.Fields(command)
	if len(fields) != 2 || fields[0] != "/search" {
		return false, false
	}
	switch strings.ToLower(fields[1]) {
	case "on":
		return true, true
	case "off":
		return false, true
	}
	return false, false
}
