// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
)

// Sentinel errors returned by Repository implementations.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateEmail    = errors.New("email already registered")
	ErrDuplicateUsername = errors.New("username already taken")
	ErrDuplicateSession  = errors.New("session already exists")
	ErrInvalidDriver     = errors.New("invalid storage driver")
)

// Driver names accepted by New.
const (
	DriverSQLite = "sqlite"
	DriverMemory = "memory"
)

// Repository defines the interface for persisting users, agents,
// conversations, analytics and contact submissions.
//
// Single-record lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// GetUser retrieves a user by ID.
	GetUser(ctx context.Context, id int64) (*domain.User, error)

	// GetUserByEmail retrieves a user by email address.
	GetUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateUser inserts a user and sets its ID and CreatedAt.
	// Returns ErrDuplicateEmail or ErrDuplicateUsername on uniqueness violations.
	CreateUser(ctx context.Context, user *domain.User) error

	// ListAgents returns every agent ordered by ID.
	ListAgents(ctx context.Context) ([]*domain.Agent, error)

	// ListAgentsByUser returns the agents owned by userID ordered by ID.
	ListAgentsByUser(ctx context.Context, userID int64) ([]*domain.Agent, error)

	// GetAgent retrieves an agent by ID.
	GetAgent(ctx context.Context, id int64) (*domain.Agent, error)

	// CreateAgent inserts an agent and sets its ID and timestamps.
	CreateAgent(ctx context.Context, agent *domain.Agent) error

	// UpdateAgent persists all mutable agent fields and bumps UpdatedAt.
	// Returns ErrNotFound if the agent does not exist.
	UpdateAgent(ctx context.Context, agent *domain.Agent) error

	// DeleteAgent removes an agent along with its conversations and analytics.
	DeleteAgent(ctx context.Context, id int64) (bool, error)

	// GetConversation retrieves a conversation by its session ID.
	GetConversation(ctx context.Context, sessionID string) (*domain.Conversation, error)

	// CreateConversation inserts a conversation and sets its ID and timestamps.
	// Returns ErrDuplicateSession if the session ID is already in use.
	CreateConversation(ctx context.Context, conv *domain.Conversation) error

	// UpdateConversationMessages replaces the message log of a conversation.
	// Returns ErrNotFound if the session does not exist.
	UpdateConversationMessages(ctx context.Context, sessionID string, messages []domain.ChatMessage) error

	// ListConversationsByAgent returns the conversations of an agent ordered by ID.
	ListConversationsByAgent(ctx context.Context, agentID int64) ([]*domain.Conversation, error)

	// ListAnalyticsByAgent returns the analytics rows of an agent ordered by date.
	ListAnalyticsByAgent(ctx context.Context, agentID int64) ([]*domain.AnalyticsRow, error)

	// UpsertAnalytics inserts or replaces the row for (AgentID, Date).
	// SatisfactionScore is kept when the incoming row carries zero.
	UpsertAnalytics(ctx context.Context, row *domain.AnalyticsRow) error

	// CreateContact stores a contact form submission.
	CreateContact(ctx context.Context, contact *domain.ContactMessage) error

	// Ping verifies storage connectivity.
	Ping(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}

// New creates a repository for the named driver.
func New(driver, dbPath string) (Repository, error) {
	switch driver {
	case DriverSQLite:
		s, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidDriver, driver)
	}
}

// dayKey normalizes t to the start of its calendar day in t's location.
func dayKey(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}
