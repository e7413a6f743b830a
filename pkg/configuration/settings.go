package configuration

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/alantheprice/askweb/pkg/prompts"
	"github.com/alantheprice/askweb/pkg/utils"
	"github.com/alantheprice/askweb/pkg/webcontent"
)

const (
	DefaultEnvFile  = ".env"
	MaxHistoryLimit = 20

	redactedToken = "********"
)

// Settings is the complete askweb configuration. It is read once at startup
// and treated as read-only while requests are in flight.
type Settings struct {
	// Model
	Model        string `json:"model" env:"LLM_MODEL" envDefault:"gpt3.5"`
	BaseURL      string `json:"base_url" env:"LLM_BASE_URL" envDefault:"http://llm-freegpt35:3040/v1/"`
	AuthToken    string `json:"auth_token,omitempty" env:"LLM_AUTH_TOKEN"`
	UseCustomLLM bool   `json:"use_custom_llm" env:"USE_CUSTOM_LLM" envDefault:"true"`

	// ChatRetries is how often a rate-limited chat request is retried. Zero
	// surfaces the first rejection as the answer's error token.
	ChatRetries int `json:"chat_rate_limit_retries" env:"CHAT_RATE_LIMIT_RETRIES" envDefault:"0"`

	// Answering
	SearchEnabled bool   `json:"search_enabled" env:"ENABLE_WEB_SEARCH" envDefault:"true"`
	HistoryLimit  int    `json:"history_limit" env:"LLM_HISTORY_LIMIT" envDefault:"5"`
	Language      string `json:"language" env:"ANSWER_LANGUAGE" envDefault:"zh-CN"`
	ContextLimit  int    `json:"context_limit" env:"CONTEXT_LENGTH_LIMIT" envDefault:"11000"`

	// Search
	SearxURL       string        `json:"searx_url" env:"SEARXNG_URL" envDefault:"http://searxng:8080"`
	FetchTimeout   time.Duration `json:"fetch_timeout" env:"FETCH_TIMEOUT" envDefault:"5s"`
	SearchDeadline time.Duration `json:"search_deadline" env:"SEARCH_DEADLINE" envDefault:"0s"`
	MaxResults     int           `json:"max_results" env:"SEARCH_MAX_RESULTS" envDefault:"9"`
	FetchWorkers   int           `json:"fetch_workers" env:"FETCH_WORKERS" envDefault:"10"`

	// Process
	Addr     string `json:"addr" env:"ASKWEB_ADDR" envDefault:"127.0.0.1:8501"`
	LogFile  string `json:"log_file" env:"ASKWEB_LOG_FILE" envDefault:".askweb/askweb.log"`
	JSONLogs bool   `json:"json_logs" env:"ASKWEB_JSON_LOGS"`
	Debug    bool   `json:"debug" env:"ASKWEB_DEBUG"`
}

// Load reads settings from the process environment, filling gaps from
// envFile when it exists. Variables already set in the environment win over
// the file. A missing envFile is not an error.
func Load(envFile string) (*Settings, error) {
	environment := environMap()

	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			for key, value := range vars {
				if _, set := environment[key]; !set {
					environment[key] = value
				}
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, utils.NewConfigError(envFile, fmt.Errorf("failed to read env file: %w", err))
		}
	}

	settings := &Settings{}
	if err := env.Parse(settings, env.Options{Environment: environment}); err != nil {
		return nil, utils.NewConfigError("environment", err)
	}
	return settings, nil
}

func environMap() map[string]string {
	environment := make(map[string]string)
	for _, kv := range os.Environ() {
		if key, value, ok := strings.Cut(kv, "="); ok {
			environment[key] = value
		}
	}
	return environment
}

// Validate checks every setting and reports all problems at once.
func (s *Settings) Validate() error {
	var result error
	fail := func(key, format string, args ...any) {
		result = multierror.Append(result, utils.NewConfigError(key, fmt.Errorf(format, args...)))
	}

	if strings.TrimSpace(s.Model) == "" {
		fail("LLM_MODEL", "model cannot be empty")
	}
	if s.UseCustomLLM && strings.TrimSpace(s.BaseURL) == "" {
		fail("LLM_BASE_URL", "base URL is required when a custom LLM is used")
	}
	if s.ChatRetries < 0 {
		fail("CHAT_RATE_LIMIT_RETRIES", "chat rate limit retries cannot be negative")
	}
	if s.HistoryLimit < 0 || s.HistoryLimit > MaxHistoryLimit {
		fail("LLM_HISTORY_LIMIT", "history limit must be between 0 and %d, got %d", MaxHistoryLimit, s.HistoryLimit)
	}
	if s.ContextLimit < 0 {
		fail("CONTEXT_LENGTH_LIMIT", "context length limit cannot be negative")
	}
	if s.SearchEnabled && strings.TrimSpace(s.SearxURL) == "" {
		fail("SEARXNG_URL", "search backend URL is required when web search is enabled")
	}
	if s.FetchTimeout <= 0 {
		fail("FETCH_TIMEOUT", "fetch timeout must be positive")
	}
	if s.SearchDeadline < 0 {
		fail("SEARCH_DEADLINE", "search deadline cannot be negative")
	}
	if s.MaxResults < 1 {
		fail("SEARCH_MAX_RESULTS", "max results must be at least 1")
	}
	if s.FetchWorkers < 1 {
		fail("FETCH_WORKERS", "fetch workers must be at least 1")
	}
	return result
}

// Redacted returns a copy safe to display, with the auth token masked.
func (s Settings) Redacted() Settings {
	if s.AuthToken != "" {
		s.AuthToken = redactedToken
	}
	return s
}

// PromptOptions returns the prompt knobs these settings describe.
func (s *Settings) PromptOptions() prompts.PromptOptions {
	return prompts.PromptOptions{
		Language:     s.Language,
		ContextLimit: s.ContextLimit,
		HistoryLimit: s.HistoryLimit,
	}
}

// SearchOptions returns the web search knobs these settings describe.
func (s *Settings) SearchOptions() webcontent.SearchOptions {
	return webcontent.SearchOptions{
		SearxURL:     s.SearxURL,
		MaxResults:   s.MaxResults,
		Workers:      s.FetchWorkers,
		FetchTimeout: s.FetchTimeout,
		Deadline:     s.SearchDeadline,
	}
}

// RateLimitBackoff returns the chat retry policy, or nil when retries are
// off.
func (s *Settings) RateLimitBackoff() *utils.RateLimitBackoff {
	if s.ChatRetries <= 0 {
		return nil
	}
	backoff := utils.NewRateLimitBackoff()
	backoff.MaxRetries = s.ChatRetries
	return backoff
}

// LogOptions returns the logger configuration.
func (s *Settings) LogOptions() utils.LogOptions {
	return utils.LogOptions{
		Filename: s.LogFile,
		JSON:     s.JSONLogs,
		Verbose:  s.Debug,
	}
}
