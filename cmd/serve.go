package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/alantheprice/askweb/pkg/prompts"
	"github.com/alantheprice/askweb/pkg/webui"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "HTTP and WebSocket server with a chat page",
	Long: `Serves a chat page at /, a streaming POST /api/ask endpoint and a /ws
WebSocket endpoint. Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		server := webui.NewServer(newAsker(settings, logger), *settings, logger)
		if err := server.Start(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, prompts.ServerListening(server.Addr()))

		<-ctx.Done()
		fmt.Fprintln(out, prompts.ServerShuttingDown())
		return server.Shutdown()
	},
}
