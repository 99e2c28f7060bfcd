package generation

import (
	"strings"

	"github.com/coworker-ai/coworker/internal/domain"
)

// HistoryWindow is the number of trailing history messages included in a prompt.
const HistoryWindow = 10

// BuildPrompt renders the system prompt, up to HistoryWindow trailing history
// messages and the new user message as a single text prompt.
func BuildPrompt(systemPrompt string, history []domain.ChatMessage, message string) string {
	var b strings.Builder
	b.WriteString(systemPrompt)
	b.WriteString("\n\n")

	if len(history) > HistoryWindow {
		history = history[len(history)-HistoryWindow:]
	}
	if len(history) > 0 {
		b.WriteString("Previous conversation:\n")
		for _, msg := range history {
			b.WriteString(speaker(msg.Role))
			b.WriteString(": ")
			b.WriteString(msg.Content)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("User: ")
	b.WriteString(message)
	b.WriteString("\nAssistant:")
	return b.String()
}

func speaker(role string) string {
	if role == domain.RoleUser {
		return "User"
	}
	return "Assistant"
}
