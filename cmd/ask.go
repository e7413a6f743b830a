package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/alantheprice/askweb/pkg/prompts"
)

var noStream bool

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a single question",
	Long: `Answers one question and exits. The answer streams to stdout as it is
generated; when web search is on it ends with the list of references.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.TrimSpace(strings.Join(args, " "))
		if question == "" {
			return errors.New(prompts.QuestionRequired())
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		return runAsk(ctx, newAsker(settings, logger), question, cmd.OutOrStdout(), newStatusPrinter(os.Stderr))
	},
}

func init() {
	askCmd.Flags().BoolVar(&noStream, "no-stream", false, "Wait for the complete answer instead of streaming it")
}

func runAsk(ctx context.Context, a asker, question string, out io.Writer, status *statusPrinter) error {
	start := time.Now()
	status.info(prompts.UsingModel(settings.Model, settings.SearchEnabled))

	req := newRequest(settings, question, nil)
	req.OnPhase = status.phase
	req.NoStream = noStream
	if _, err := streamAnswer(ctx, a, req, out); err != nil {
		return err
	}
	fmt.Fprintln(out)

	status.info(prompts.AnswerFinished(time.Since(start)))
	return nil
}
