package domain

import "time"

// AnalyticsRow holds per-agent daily counters.
type AnalyticsRow struct {
	ID                 int64     `json:"id"`
	AgentID            int64     `json:"agentId"`
	Date               time.Time `json:"date"`
	ConversationsCount int       `json:"conversationsCount"`
	MessagesCount      int       `json:"messagesCount"`
	AvgResponseTime    int64     `json:"avgResponseTime"`
	SatisfactionScore  int       `json:"satisfactionScore"`
}
