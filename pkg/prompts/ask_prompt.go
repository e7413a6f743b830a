package prompts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/alantheprice/askweb/pkg/llm"
	"github.com/alantheprice/askweb/pkg/webcontent"
)

const (
	DefaultLanguage     = "zh-CN"
	DefaultContextLimit = 11000
	DefaultHistoryLimit = 5

	// reservedContext is held back from the context budget for the system
	// prompt and history.
	reservedContext  = 2000
	truncationMarker = "... (truncated)"
)

// PromptOptions are the per-request knobs of the answer prompt.
type PromptOptions struct {
	Language     string
	ContextLimit int
	HistoryLimit int
}

// DefaultPromptOptions returns the options used when nothing is configured.
func DefaultPromptOptions() PromptOptions {
	return PromptOptions{
		Language:     DefaultLanguage,
		ContextLimit: DefaultContextLimit,
		HistoryLimit: DefaultHistoryLimit,
	}
}

var (
	answerLanguageTags = []language.Tag{
		language.SimplifiedChinese,
		language.TraditionalChinese,
		language.AmericanEnglish,
	}
	answerLanguageNames = []string{
		"Simplified Chinese",
		"Traditional Chinese",
		"English",
	}
	answerLanguageMatcher = language.NewMatcher(answerLanguageTags)
)

// AnswerLanguage maps a BCP 47 tag to the language name used in the system
// prompt. Unknown or malformed tags answer in Simplified Chinese.
func AnswerLanguage(lang string) string {
	tag, err := language.Parse(lang)
	if err != nil {
		return answerLanguageNames[0]
	}
	_, index, confidence := answerLanguageMatcher.Match(tag)
	if confidence == language.No {
		return answerLanguageNames[0]
	}
	return answerLanguageNames[index]
}

// BuildCitationContext numbers each non-empty content as [citation:i] and
// cuts the joined block to the context budget.
func BuildCitationContext(contents []webcontent.ExtractedContent, contextLimit int) string {
	refs := make([]string, 0, len(contents))
	for _, item := range contents {
		if item.Content == "" {
			continue
		}
		refs = append(refs, fmt.Sprintf("[citation:%d] %s", len(refs)+1, item.Content))
	}
	context := strings.Join(refs, "\n\n")

	limit := max(0, contextLimit-reservedContext)
	if utf8.RuneCountInString(context) > limit {
		context = string([]rune(context)[:limit]) + truncationMarker
	}
	return context
}

// AskSystemPrompt is the fixed instruction block for grounded answers.
func AskSystemPrompt(answerLanguage string) string {
	return fmt.Sprintf(`You are a helpful and knowledgeable AI assistant.
Your goal is to answer the user's question accurately based on the provided reference context and conversation history.
Please answer in %s.

Rules:
1. Use the provided context to answer. If the context has relevant info, cite it using [citation:x] format at the end of sentences.
2. If a sentence comes from multiple contexts, list all, e.g., [citation:3][citation:5].
3. Do not blindly repeat the context. Summarize and explain.
4. If the context is insufficient, rely on your general knowledge but mention that it's not from the provided context or that information is missing.
5. Maintain a professional and neutral tone.
`, answerLanguage)
}

// BuildAskMessages assembles the system prompt, the most recent history and
// the question with its reference context. The result always starts with the
// system message and ends with the question.
func BuildAskMessages(question string, contents []webcontent.ExtractedContent, history []llm.Message, opts PromptOptions) []llm.Message {
	context := BuildCitationContext(contents, opts.ContextLimit)

	recent := RecentHistory(history, opts.HistoryLimit)
	messages := make([]llm.Message, 0, len(recent)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: AskSystemPrompt(AnswerLanguage(opts.Language))})
	messages = append(messages, recent...)

	var user strings.Builder
	fmt.Fprintf(&user, "Question: %s\n\n", question)
	if context != "" {
		fmt.Fprintf(&user, "Reference Context:\n```\n%s\n```\n\n", context)
		user.WriteString("Please answer the question using the context above and our history.")
	} else {
		user.WriteString("Please answer the question based on our history and your knowledge.")
	}
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: user.String()})

	return messages
}

// RecentHistory keeps the last limit user and assistant turns. A limit of
// zero or less keeps nothing.
func RecentHistory(history []llm.Message, limit int) []llm.Message {
	if limit <= 0 {
		return nil
	}
	valid := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		if msg.Role == llm.RoleUser || msg.Role == llm.RoleAssistant {
			valid = append(valid, msg)
		}
	}
	if len(valid) > limit {
		valid = valid[len(valid)-limit:]
	}
	return valid
}
