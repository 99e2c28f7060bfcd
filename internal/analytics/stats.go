// Package analytics computes per-agent and dashboard statistics and rolls up
// daily analytics rows.
package analytics

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/store"
)

// DefaultSatisfaction is reported when no analytics row carries a score.
const DefaultSatisfaction = 96

// AgentStats summarizes the conversations of one agent.
type AgentStats struct {
	TotalConversations int `json:"totalConversations"`
	TotalMessages      int `json:"totalMessages"`
	ActiveToday        int `json:"activeToday"`
}

// AgentReport is the analytics view of one agent.
type AgentReport struct {
	Analytics []*domain.AnalyticsRow `json:"analytics"`
	Stats     AgentStats             `json:"stats"`
}

// DashboardStats summarizes every agent of a user.
type DashboardStats struct {
	ActiveAgents        int `json:"activeAgents"`
	TotalConversations  int `json:"totalConversations"`
	AverageSatisfaction int `json:"averageSatisfaction"`
}

// StartOfDay returns local midnight of t's day.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ComputeAgentStats counts conversations, messages and conversations updated
// since the start of now's day.
func ComputeAgentStats(convs []*domain.Conversation, now time.Time) AgentStats {
	midnight := StartOfDay(now)
	stats := AgentStats{TotalConversations: len(convs)}
	for _, c := range convs {
		stats.TotalMessages += len(c.Messages)
		if !c.UpdatedAt.Before(midnight) {
			stats.ActiveToday++
		}
	}
	return stats
}

// AverageSatisfaction returns the mean recorded satisfaction (1-5) of rows as
// a percentage, or DefaultSatisfaction when none is recorded.
func AverageSatisfaction(rows []*domain.AnalyticsRow) int {
	sum, n := 0, 0
	for _, r := range rows {
		if r.SatisfactionScore > 0 {
			sum += r.SatisfactionScore
			n++
		}
	}
	if n == 0 {
		return DefaultSatisfaction
	}
	return int(math.Round(float64(sum) / float64(n) * 20))
}

// Service reads analytics from the repository.
type Service struct {
	repo store.Repository
	now  func() time.Time
}

// NewService creates an analytics service.
func NewService(repo store.Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// AgentReport returns the stored rows and live stats of an agent.
func (s *Service) AgentReport(ctx context.Context, agentID int64) (*AgentReport, error) {
	rows, err := s.repo.ListAnalyticsByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list analytics: %w", err)
	}
	convs, err := s.repo.ListConversationsByAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return &AgentReport{
		Analytics: rows,
		Stats:     ComputeAgentStats(convs, s.now()),
	}, nil
}

// Dashboard aggregates the agents owned by userID.
func (s *Service) Dashboard(ctx context.Context, userID int64) (*DashboardStats, error) {
	agents, err := s.repo.ListAgentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}

	stats := &DashboardStats{}
	var rows []*domain.AnalyticsRow
	for _, a := range agents {
		if a.IsActive {
			stats.ActiveAgents++
		}
		convs, err := s.repo.ListConversationsByAgent(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list conversations for agent %d: %w", a.ID, err)
		}
		stats.TotalConversations += len(convs)

		agentRows, err := s.repo.ListAnalyticsByAgent(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("list analytics for agent %d: %w", a.ID, err)
		}
		rows = append(rows, agentRows...)
	}
	stats.AverageSatisfaction = AverageSatisfaction(rows)
	return stats, nil
}
