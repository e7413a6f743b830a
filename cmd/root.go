package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/alantheprice/askweb/pkg/configuration"
	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/prompts"
	"github.com/alantheprice/askweb/pkg/utils"
)

var (
	envFile     string
	promptToken bool

	settings *configuration.Settings
	logger   *utils.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "askweb",
	Short: "Ask questions answered from live web search results",
	Long: `askweb answers questions with a language model grounded in live web
search results. It searches a SearXNG instance, extracts the readable text of
the top results, and streams an answer that cites them, followed by the list
of references.

Available commands:
  ask      - Answer a single question
  chat     - Interactive chat session with in-memory history
  serve    - HTTP and WebSocket server with a chat page
  version  - Print version information

Settings come from the environment (or a .env file) and can be overridden
with flags, e.g.: askweb ask --model qwen --custom-llm=false "weather today"`,
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	defer func() {
		if err := logger.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error closing logger: %v\n", err)
		}
	}()
	return rootCmd.Execute()
}

func init() {
	addSettingsFlags(rootCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(serveCmd)
}

// addSettingsFlags registers the persistent settings overrides on cmd.
func addSettingsFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVar(&envFile, "env-file", configuration.DefaultEnvFile, "Environment file to read settings from")
	flags.String("model", "", fmt.Sprintf("Model name; built-in endpoints exist for %s (LLM_MODEL)", strings.Join(llm.KnownModels(), ", ")))
	flags.String("base-url", "", "OpenAI-compatible base URL used with --custom-llm (LLM_BASE_URL)")
	flags.String("auth-token", "", "LLM auth token (LLM_AUTH_TOKEN)")
	flags.BoolVar(&promptToken, "prompt-token", false, "Read the LLM auth token from the terminal without echo")
	flags.Bool("custom-llm", true, "Use --base-url instead of the built-in model endpoints (USE_CUSTOM_LLM)")
	flags.Bool("search", true, "Ground answers in web search results (ENABLE_WEB_SEARCH)")
	flags.Int("history-limit", prompts.DefaultHistoryLimit, "Prior chat turns to include, 0-20 (LLM_HISTORY_LIMIT)")
	flags.String("lang", "", "Answer language: zh-CN, zh-TW or en-US (ANSWER_LANGUAGE)")
	flags.String("searx-url", "", "SearXNG base URL (SEARXNG_URL)")
	flags.String("addr", "", "Listen address for serve (ASKWEB_ADDR)")
	flags.Bool("debug", false, "Mirror process steps to stderr (ASKWEB_DEBUG)")
}

// loadSettings reads the environment, applies flags and starts the logger.
func loadSettings(cmd *cobra.Command, args []string) error {
	loaded, err := configuration.Load(envFile)
	if err != nil {
		return err
	}
	if err := applyFlagOverrides(cmd, loaded); err != nil {
		return err
	}
	if promptToken {
		token, err := readHiddenToken()
		if err != nil {
			return err
		}
		loaded.AuthToken = token
	}
	if err := loaded.Validate(); err != nil {
		return err
	}

	settings = loaded
	logger = utils.InitLogger(settings.LogOptions())
	logger.Logf("Settings loaded: model=%s custom=%t search=%t history=%d", settings.Model, settings.UseCustomLLM, settings.SearchEnabled, settings.HistoryLimit)
	return nil
}

// applyFlagOverrides copies every flag the user set onto s.
func applyFlagOverrides(cmd *cobra.Command, s *configuration.Settings) error {
	flags := cmd.Flags()
	var err error
	set := func(name string, apply func() error) {
		if err == nil && flags.Changed(name) {
			err = apply()
		}
	}

	set("model", func() (e error) { s.Model, e = flags.GetString("model"); return })
	set("base-url", func() (e error) { s.BaseURL, e = flags.GetString("base-url"); return })
	set("auth-token", func() (e error) { s.AuthToken, e = flags.GetString("auth-token"); return })
	set("custom-llm", func() (e error) { s.UseCustomLLM, e = flags.GetBool("custom-llm"); return })
	set("search", func() (e error) { s.SearchEnabled, e = flags.GetBool("search"); return })
	set("history-limit", func() (e error) { s.HistoryLimit, e = flags.GetInt("history-limit"); return })
	set("lang", func() (e error) { s.Language, e = flags.GetString("lang"); return })
	set("searx-url", func() (e error) { s.SearxURL, e = flags.GetString("searx-url"); return })
	set("addr", func() (e error) { s.Addr, e = flags.GetString("addr"); return })
	set("debug", func() (e error) { s.Debug, e = flags.GetBool("debug"); return })

	if err != nil {
		return utils.NewConfigError("flags", err)
	}
	return nil
}

func readHiddenToken() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", utils.NewConfigError("prompt-token", fmt.Errorf("stdin is not a terminal"))
	}
	fmt.Fprint(os.Stderr, prompts.EnterAuthToken())
	token, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", utils.NewConfigError("prompt-token", err)
	}
	return strings.TrimSpace(string(token)), nil
}
