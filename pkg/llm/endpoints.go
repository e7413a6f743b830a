package llm

import "strings"

const (
	// DefaultBaseURL serves models missing from the built-in table.
	DefaultBaseURL = "http://127.0.0.1:3040/v1/"
	// DefaultAuthToken is sent when the caller has no token; local
	// OpenAI-compatible gateways accept any bearer value.
	DefaultAuthToken = "CUSTOM"

	ollamaModelPrefix = "ollama/"
)

var modelEndpoints = map[string]string{
	"gpt3.5": "http://llm-freegpt35:3040/v1/",
	"kimi":   "http://llm-kimi:8000/v1/",
	"glm4":   "http://llm-glm4:8000/v1/",
	"qwen":   "http://llm-qwen:8000/v1/",
}

// ResolveBaseURL picks the endpoint for a request. Custom endpoints are used
// verbatim, even when empty.
func ResolveBaseURL(model, baseURL string, useCustom bool) string {
	if useCustom {
		return baseURL
	}
	if endpoint, ok := modelEndpoints[model]; ok {
		return endpoint
	}
	return DefaultBaseURL
}

// ResolveAuthToken returns token, or the placeholder when it is empty.
func ResolveAuthToken(token string) string {
	if token == "" {
		return DefaultAuthToken
	}
	return token
}

// KnownModels lists the models with a built-in endpoint.
func KnownModels() []string {
	return []string{"gpt3.5", "kimi", "glm4", "qwen"}
}

// chatCompletionsURL appends the chat-completions path the way OpenAI SDKs
// do: the base is treated as a directory.
func chatCompletionsURL(baseURL string) string {
	return strings.TrimSuffix(baseURL, "/") + "/chat/completions"
}

// isOllamaModel reports whether the request should use the native Ollama API.
func isOllamaModel(req ChatRequest) bool {
	return !req.UseCustomEndpoint && strings.HasPrefix(req.Model, ollamaModelPrefix)
}
