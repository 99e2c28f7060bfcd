package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coworker-ai/coworker/internal/domain"
)

// forEachDriver runs fn against a fresh repository for every driver.
func forEachDriver(t *testing.T, fn func(t *testing.T, repo Repository)) {
	t.Helper()

	t.Run(DriverMemory, func(t *testing.T) {
		t.Parallel()
		fn(t, NewMemory())
	})

	t.Run(DriverSQLite, func(t *testing.T) {
		t.Parallel()
		repo, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = repo.Close() })
		fn(t, repo)
	})
}

func mustCreateUser(t *testing.T, repo Repository, username, email string) *domain.User {
	t.Helper()
	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Ada",
		LastName:     "Lovelace",
	}
	require.NoError(t, repo.CreateUser(context.Background(), user))
	return user
}

func mustCreateAgent(t *testing.T, repo Repository, userID int64, name string) *domain.Agent {
	t.Helper()
	agent := &domain.Agent{
		UserID:       userID,
		Name:         name,
		Template:     "customer-service",
		SystemPrompt: "You are helpful.",
		IsActive:     true,
	}
	require.NoError(t, repo.CreateAgent(context.Background(), agent))
	return agent
}

func TestNew_InvalidDriver(t *testing.T) {
	t.Parallel()
	_, err := New("postgres", "")
	assert.True(t, errors.Is(err, ErrInvalidDriver))
}

func TestRepository_Users(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		company := "Analytical Engines"
		user := &domain.User{
			Username:     "ada",
			Email:        "ada@example.com",
			PasswordHash: "hash",
			FirstName:    "Ada",
			LastName:     "Lovelace",
			Company:      &company,
		}
		require.NoError(t, repo.CreateUser(ctx, user))
		assert.NotZero(t, user.ID)
		assert.Equal(t, domain.PlanStarter, user.Plan)

		got, err := repo.GetUser(ctx, user.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "ada", got.Username)
		require.NotNil(t, got.Company)
		assert.Equal(t, company, *got.Company)

		byEmail, err := repo.GetUserByEmail(ctx, "ada@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, user.ID, byEmail.ID)

		missing, err := repo.GetUser(ctx, 9999)
		require.NoError(t, err)
		assert.Nil(t, missing)

		dupEmail := &domain.User{Username: "other", Email: "ada@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"}
		assert.ErrorIs(t, repo.CreateUser(ctx, dupEmail), ErrDuplicateEmail)

		dupName := &domain.User{Username: "ada", Email: "new@example.com", PasswordHash: "x", FirstName: "A", LastName: "B"}
		assert.ErrorIs(t, repo.CreateUser(ctx, dupName), ErrDuplicateUsername)
	})
}

func TestRepository_AgentLifecycle(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		owner := mustCreateUser(t, repo, "owner", "owner@example.com")
		other := mustCreateUser(t, repo, "other", "other@example.com")

		first := mustCreateAgent(t, repo, owner.ID, "Support")
		second := mustCreateAgent(t, repo, owner.ID, "Sales")
		mustCreateAgent(t, repo, other.ID, "Foreign")

		mine, err := repo.ListAgentsByUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, first.ID, mine[0].ID)
		assert.Equal(t, second.ID, mine[1].ID)

		all, err := repo.ListAgents(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 3)

		desc := "Handles refunds"
		first.Name = "Refunds"
		first.Description = &desc
		first.IsActive = false
		require.NoError(t, repo.UpdateAgent(ctx, first))

		got, err := repo.GetAgent(ctx, first.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Refunds", got.Name)
		require.NotNil(t, got.Description)
		assert.Equal(t, desc, *got.Description)
		assert.False(t, got.IsActive)
		assert.Equal(t, owner.ID, got.UserID)

		assert.ErrorIs(t, repo.UpdateAgent(ctx, &domain.Agent{ID: 9999, Name: "x"}), ErrNotFound)

		deleted, err := repo.DeleteAgent(ctx, first.ID)
		require.NoError(t, err)
		assert.True(t, deleted)

		deleted, err = repo.DeleteAgent(ctx, first.ID)
		require.NoError(t, err)
		assert.False(t, deleted)

		mine, err = repo.ListAgentsByUser(ctx, owner.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, second.ID, mine[0].ID)
	})
}

func TestRepository_AgentRequiresOwner(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		err := repo.CreateAgent(context.Background(), &domain.Agent{
			UserID:       42,
			Name:         "Orphan",
			Template:     "it-support",
			SystemPrompt: "p",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestRepository_Conversations(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		owner := mustCreateUser(t, repo, "owner", "owner@example.com")
		agent := mustCreateAgent(t, repo, owner.ID, "Support")

		conv := &domain.Conversation{AgentID: agent.ID, SessionID: "sess-1", IsActive: true}
		require.NoError(t, repo.CreateConversation(ctx, conv))
		assert.NotZero(t, conv.ID)

		dup := &domain.Conversation{AgentID: agent.ID, SessionID: "sess-1", IsActive: true}
		assert.ErrorIs(t, repo.CreateConversation(ctx, dup), ErrDuplicateSession)

		orphan := &domain.Conversation{AgentID: 9999, SessionID: "sess-orphan", IsActive: true}
		assert.ErrorIs(t, repo.CreateConversation(ctx, orphan), ErrNotFound)

		now := time.Now().UnixMilli()
		messages := []domain.ChatMessage{
			{Role: domain.RoleUser, Content: "hi", Timestamp: now},
			{Role: domain.RoleAssistant, Content: "hello", Timestamp: now, ResponseTime: 120},
		}
		require.NoError(t, repo.UpdateConversationMessages(ctx, "sess-1", messages))
		assert.ErrorIs(t, repo.UpdateConversationMessages(ctx, "missing", messages), ErrNotFound)

		got, err := repo.GetConversation(ctx, "sess-1")
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Nil(t, got.UserID)
		assert.Equal(t, messages, got.Messages)

		missing, err := repo.GetConversation(ctx, "missing")
		require.NoError(t, err)
		assert.Nil(t, missing)

		uid := owner.ID
		require.NoError(t, repo.CreateConversation(ctx, &domain.Conversation{
			AgentID: agent.ID, UserID: &uid, SessionID: "sess-2", IsActive: true,
		}))

		convs, err := repo.ListConversationsByAgent(ctx, agent.ID)
		require.NoError(t, err)
		require.Len(t, convs, 2)
		assert.Equal(t, "sess-1", convs[0].SessionID)
		require.NotNil(t, convs[1].UserID)
		assert.Equal(t, owner.ID, *convs[1].UserID)
	})
}

func TestRepository_DeleteAgentCascades(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		owner := mustCreateUser(t, repo, "owner", "owner@example.com")
		agent := mustCreateAgent(t, repo, owner.ID, "Support")

		require.NoError(t, repo.CreateConversation(ctx, &domain.Conversation{
			AgentID: agent.ID, SessionID: "sess-1", IsActive: true,
		}))
		require.NoError(t, repo.UpsertAnalytics(ctx, &domain.AnalyticsRow{
			AgentID: agent.ID, Date: time.Now(), ConversationsCount: 1,
		}))

		deleted, err := repo.DeleteAgent(ctx, agent.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		conv, err := repo.GetConversation(ctx, "sess-1")
		require.NoError(t, err)
		assert.Nil(t, conv)

		rows, err := repo.ListAnalyticsByAgent(ctx, agent.ID)
		require.NoError(t, err)
		assert.Empty(t, rows)
	})
}

func TestRepository_UpsertAnalytics(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		ctx := context.Background()
		owner := mustCreateUser(t, repo, "owner", "owner@example.com")
		agent := mustCreateAgent(t, repo, owner.ID, "Support")

		morning := time.Date(2024, 3, 10, 9, 0, 0, 0, time.Local)
		evening := time.Date(2024, 3, 10, 21, 0, 0, 0, time.Local)
		yesterday := time.Date(2024, 3, 9, 12, 0, 0, 0, time.Local)

		require.NoError(t, repo.UpsertAnalytics(ctx, &domain.AnalyticsRow{
			AgentID: agent.ID, Date: morning, ConversationsCount: 1, MessagesCount: 2, SatisfactionScore: 4,
		}))
		require.NoError(t, repo.UpsertAnalytics(ctx, &domain.AnalyticsRow{
			AgentID: agent.ID, Date: evening, ConversationsCount: 3, MessagesCount: 8, AvgResponseTime: 250,
		}))
		require.NoError(t, repo.UpsertAnalytics(ctx, &domain.AnalyticsRow{
			AgentID: agent.ID, Date: yesterday, ConversationsCount: 5,
		}))

		rows, err := repo.ListAnalyticsByAgent(ctx, agent.ID)
		require.NoError(t, err)
		require.Len(t, rows, 2)

		assert.Equal(t, 5, rows[0].ConversationsCount)

		today := rows[1]
		assert.True(t, today.Date.Equal(time.Date(2024, 3, 10, 0, 0, 0, 0, time.Local)))
		assert.Equal(t, 3, today.ConversationsCount)
		assert.Equal(t, 8, today.MessagesCount)
		assert.Equal(t, int64(250), today.AvgResponseTime)
		assert.Equal(t, 4, today.SatisfactionScore, "zero score must not overwrite a recorded one")

		assert.ErrorIs(t, repo.UpsertAnalytics(ctx, &domain.AnalyticsRow{AgentID: 9999, Date: morning}), ErrNotFound)
	})
}

func TestRepository_Contact(t *testing.T) {
	t.Parallel()
	forEachDriver(t, func(t *testing.T, repo Repository) {
		contact := &domain.ContactMessage{
			FirstName: "Grace",
			LastName:  "Hopper",
			Email:     "grace@example.com",
			Message:   "Tell me more",
		}
		require.NoError(t, repo.CreateContact(context.Background(), contact))
		assert.NotZero(t, contact.ID)
		assert.False(t, contact.CreatedAt.IsZero())
		assert.NoError(t, repo.Ping(context.Background()))
	})
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	t.Parallel()
	repo := NewMemory()
	ctx := context.Background()
	owner := mustCreateUser(t, repo, "owner", "owner@example.com")
	agent := mustCreateAgent(t, repo, owner.ID, "Support")

	got, err := repo.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	got.Name = "mutated"

	again, err := repo.GetAgent(ctx, agent.ID)
	require.NoError(t, err)
	assert.Equal(t, "Support", again.Name)
}
