package domain

import "time"

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single entry in a conversation log.
// Timestamp is unix milliseconds.
type ChatMessage struct {
	Role         string `json:"role"`
	Content      string `json:"content"`
	Timestamp    int64  `json:"timestamp"`
	ResponseTime int64  `json:"responseTime,omitempty"`
}

// Time returns the message timestamp as a time.Time.
func (m ChatMessage) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Conversation is a chat session between a visitor and an agent.
type Conversation struct {
	ID        int64         `json:"id"`
	AgentID   int64         `json:"agentId"`
	UserID    *int64        `json:"userId"`
	SessionID string        `json:"sessionId"`
	Messages  []ChatMessage `json:"messages"`
	IsActive  bool          `json:"isActive"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// RecentMessages returns the last n messages of the log.
func (c *Conversation) RecentMessages(n int) []ChatMessage {
	if n >= len(c.Messages) {
		return c.Messages
	}
	return c.Messages[len(c.Messages)-n:]
}
