package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/store"
)

// StartRollupWorker runs a background goroutine that writes today's analytics
// row for every agent once at startup and then on every interval.
func StartRollupWorker(ctx context.Context, repo store.Repository, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Analytics rollup worker started", "interval", interval)

		rollup := func() {
			n, err := RollupOnce(ctx, repo, time.Now())
			if err != nil {
				slog.Error("Analytics rollup failed", "error", err)
				return
			}
			slog.Debug("Analytics rollup completed", "agents", n)
		}

		rollup()
		for {
			select {
			case <-ticker.C:
				rollup()
			case <-ctx.Done():
				slog.Info("Analytics rollup worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// RollupOnce upserts the analytics row for now's day of every agent that had
// activity that day. It returns the number of rows written.
func RollupOnce(ctx context.Context, repo store.Repository, now time.Time) (int, error) {
	agents, err := repo.ListAgents(ctx)
	if err != nil {
		return 0, fmt.Errorf("list agents: %w", err)
	}

	midnight := StartOfDay(now)
	written := 0
	for _, agent := range agents {
		if ctx.Err() != nil {
			return written, ctx.Err()
		}

		convs, err := repo.ListConversationsByAgent(ctx, agent.ID)
		if err != nil {
			slog.Warn("Rollup skipped agent", "agent_id", agent.ID, "error", err)
			continue
		}

		row := dailyRow(agent.ID, convs, midnight)
		if row.ConversationsCount == 0 {
			continue
		}
		if err := repo.UpsertAnalytics(ctx, row); err != nil {
			slog.Warn("Rollup upsert failed", "agent_id", agent.ID, "error", err)
			continue
		}
		written++
	}
	return written, nil
}

// dailyRow aggregates the messages sent on or after midnight.
func dailyRow(agentID int64, convs []*domain.Conversation, midnight time.Time) *domain.AnalyticsRow {
	row := &domain.AnalyticsRow{AgentID: agentID, Date: midnight}

	var totalResponse int64
	var replies int64
	for _, c := range convs {
		touched := false
		for _, m := range c.Messages {
			if m.Time().Before(midnight) {
				continue
			}
			touched = true
			row.MessagesCount++
			if m.Role == domain.RoleAssistant {
				totalResponse += m.ResponseTime
				replies++
			}
		}
		if touched {
			row.ConversationsCount++
		}
	}
	if replies > 0 {
		row.AvgResponseTime = totalResponse / replies
	}
	return row
}
