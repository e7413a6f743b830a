package prompts

import (
	"fmt"
	"time"
)

// --- Config Messages ---

func EnterAuthToken() string {
	return "Enter LLM auth token (input hidden): "
}

// --- Ask Messages ---

func QuestionRequired() string {
	return "A question is required. Usage: askweb ask \"<question>\""
}

func UsingModel(modelName string, searchEnabled bool) string {
	search := "off"
	if searchEnabled {
		search = "on"
	}
	return fmt.Sprintf("Using model: %s (web search %s)", modelName, search)
}

func SearchingWeb() string {
	return "Searching the web..."
}

func ComposingAnswer() string {
	return "Composing answer..."
}

func AnswerFinished(duration time.Duration) string {
	return fmt.Sprintf("Answer finished in %s", duration.Round(time.Millisecond))
}

// --- Chat Session Messages ---

func ChatWelcome(modelName string) string {
	return fmt.Sprintf("askweb chat with %s. Type /search on|off, /clear, or exit.", modelName)
}

func ChatPrompt() string {
	return "> "
}

func SearchToggled(enabled bool) string {
	if enabled {
		return "Web search enabled."
	}
	return "Web search disabled."
}

func HistoryCleared() string {
	return "Conversation history cleared."
}

func UnknownChatCommand(command string) string {
	return fmt.Sprintf("Unknown command %q. Try /search on, /search off, /clear, or exit.", command)
}

func ChatGoodbye() string {
	return "Goodbye!"
}

// --- Server Messages ---

func ServerListening(addr string) string {
	return fmt.Sprintf("askweb listening on http://%s", addr)
}

func ServerShuttingDown() string {
	return "Shutting down server..."
}
