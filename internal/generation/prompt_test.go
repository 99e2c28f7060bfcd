package generation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coworker-ai/coworker/internal/domain"
)

func TestBuildPrompt_NoHistory(t *testing.T) {
	t.Parallel()
	got := BuildPrompt("Be kind.", nil, "Hello")
	assert.Equal(t, "Be kind.\n\nUser: Hello\nAssistant:", got)
}

func TestBuildPrompt_WithHistory(t *testing.T) {
	t.Parallel()
	history := []domain.ChatMessage{
		{Role: domain.RoleUser, Content: "Hi"},
		{Role: domain.RoleAssistant, Content: "Hello there"},
	}
	got := BuildPrompt("Be kind.", history, "How are you?")
	want := "Be kind.\n\n" +
		"Previous conversation:\n" +
		"User: Hi\n" +
		"Assistant: Hello there\n" +
		"\n" +
		"User: How are you?\nAssistant:"
	assert.Equal(t, want, got)
}

func TestBuildPrompt_TruncatesToWindow(t *testing.T) {
	t.Parallel()
	history := make([]domain.ChatMessage, 0, 14)
	for i := 0; i < 14; i++ {
		role := domain.RoleUser
		if i%2 == 1 {
			role = domain.RoleAssistant
		}
		history = append(history, domain.ChatMessage{Role: role, Content: fmt.Sprintf("msg-%02d", i)})
	}

	got := BuildPrompt("sys", history, "next")

	for i := 0; i < 4; i++ {
		assert.NotContains(t, got, fmt.Sprintf("msg-%02d", i))
	}
	for i := 4; i < 14; i++ {
		assert.Contains(t, got, fmt.Sprintf("msg-%02d", i))
	}
	lines := strings.Count(got, "\nUser: ") + strings.Count(got, "\nAssistant: ")
	assert.Equal(t, HistoryWindow+1, lines, "ten history lines plus the new user line")
}

func TestTemplates(t *testing.T) {
	t.Parallel()
	all := Templates()
	assert.Len(t, all, 6)
	assert.Equal(t, DefaultTemplate, all[0].ID)

	it, ok := LookupTemplate("it-support")
	assert.True(t, ok)
	assert.Equal(t, it.SystemPrompt, PromptForTemplate("it-support"))

	assert.Equal(t, all[0].SystemPrompt, PromptForTemplate("does-not-exist"))

	all[0].Name = "mutated"
	assert.Equal(t, "Customer Service Agent", Templates()[0].Name)
}
