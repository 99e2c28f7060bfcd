package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
)

// MemoryStore implements Repository with in-process maps.
// Returned records are copies; callers may mutate them freely.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[int64]*domain.User
	agents        map[int64]*domain.Agent
	conversations map[string]*domain.Conversation
	analytics     map[int64]*domain.AnalyticsRow
	contacts      map[int64]*domain.ContactMessage

	nextUserID         int64
	nextAgentID        int64
	nextConversationID int64
	nextAnalyticsID    int64
	nextContactID      int64
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		users:         make(map[int64]*domain.User),
		agents:        make(map[int64]*domain.Agent),
		conversations: make(map[string]*domain.Conversation),
		analytics:     make(map[int64]*domain.AnalyticsRow),
		contacts:      make(map[int64]*domain.ContactMessage),
	}
}

// GetUser retrieves a user by ID.
func (s *MemoryStore) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// GetUserByEmail retrieves a user by email address.
func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// CreateUser inserts a user.
func (s *MemoryStore) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if strings.EqualFold(u.Email, user.Email) {
			return ErrDuplicateEmail
		}
		if u.Username == user.Username {
			return ErrDuplicateUsername
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	if user.Plan == "" {
		user.Plan = domain.PlanStarter
	}
	user.CreatedAt = time.Now()

	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// ListAgents returns every agent ordered by ID.
func (s *MemoryStore) ListAgents(_ context.Context) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterAgents(func(*domain.Agent) bool { return true }), nil
}

// ListAgentsByUser returns the agents owned by userID.
func (s *MemoryStore) ListAgentsByUser(_ context.Context, userID int64) ([]*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.filterAgents(func(a *domain.Agent) bool { return a.UserID == userID }), nil
}

func (s *MemoryStore) filterAgents(keep func(*domain.Agent) bool) []*domain.Agent {
	agents := make([]*domain.Agent, 0)
	for _, a := range s.agents {
		if keep(a) {
			cp := *a
			agents = append(agents, &cp)
		}
	}
	sort.Slice(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	return agents
}

// GetAgent retrieves an agent by ID.
func (s *MemoryStore) GetAgent(_ context.Context, id int64) (*domain.Agent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.agents[id]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, nil
}

// CreateAgent inserts an agent.
func (s *MemoryStore) CreateAgent(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[agent.UserID]; !ok {
		return ErrNotFound
	}

	s.nextAgentID++
	now := time.Now()
	agent.ID = s.nextAgentID
	agent.CreatedAt = now
	agent.UpdatedAt = now

	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

// UpdateAgent persists mutable agent fields.
func (s *MemoryStore) UpdateAgent(_ context.Context, agent *domain.Agent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.agents[agent.ID]
	if !ok {
		return ErrNotFound
	}

	agent.UserID = stored.UserID
	agent.CreatedAt = stored.CreatedAt
	agent.UpdatedAt = time.Now()

	cp := *agent
	s.agents[agent.ID] = &cp
	return nil
}

// DeleteAgent removes an agent and everything that references it.
func (s *MemoryStore) DeleteAgent(_ context.Context, id int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[id]; !ok {
		return false, nil
	}
	delete(s.agents, id)

	for sid, c := range s.conversations {
		if c.AgentID == id {
			delete(s.conversations, sid)
		}
	}
	for rid, row := range s.analytics {
		if row.AgentID == id {
			delete(s.analytics, rid)
		}
	}
	return true, nil
}

// GetConversation retrieves a conversation by session ID.
func (s *MemoryStore) GetConversation(_ context.Context, sessionID string) (*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conversations[sessionID]; ok {
		return copyConversation(c), nil
	}
	return nil, nil
}

// CreateConversation inserts a conversation.
func (s *MemoryStore) CreateConversation(_ context.Context, conv *domain.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[conv.SessionID]; ok {
		return ErrDuplicateSession
	}
	if _, ok := s.agents[conv.AgentID]; !ok {
		return ErrNotFound
	}

	s.nextConversationID++
	now := time.Now()
	conv.ID = s.nextConversationID
	conv.CreatedAt = now
	conv.UpdatedAt = now
	if conv.Messages == nil {
		conv.Messages = []domain.ChatMessage{}
	}

	s.conversations[conv.SessionID] = copyConversation(conv)
	return nil
}

// UpdateConversationMessages replaces a conversation's message log.
func (s *MemoryStore) UpdateConversationMessages(_ context.Context, sessionID string, messages []domain.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conversations[sessionID]
	if !ok {
		return ErrNotFound
	}
	c.Messages = append([]domain.ChatMessage(nil), messages...)
	c.UpdatedAt = time.Now()
	return nil
}

// ListConversationsByAgent returns the conversations of an agent.
func (s *MemoryStore) ListConversationsByAgent(_ context.Context, agentID int64) ([]*domain.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convs := make([]*domain.Conversation, 0)
	for _, c := range s.conversations {
		if c.AgentID == agentID {
			convs = append(convs, copyConversation(c))
		}
	}
	sort.Slice(convs, func(i, j int) bool { return convs[i].ID < convs[j].ID })
	return convs, nil
}

func copyConversation(c *domain.Conversation) *domain.Conversation {
	cp := *c
	cp.Messages = append([]domain.ChatMessage{}, c.Messages...)
	if c.UserID != nil {
		uid := *c.UserID
		cp.UserID = &uid
	}
	return &cp
}

// ListAnalyticsByAgent returns the analytics rows of an agent.
func (s *MemoryStore) ListAnalyticsByAgent(_ context.Context, agentID int64) ([]*domain.AnalyticsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := make([]*domain.AnalyticsRow, 0)
	for _, r := range s.analytics {
		if r.AgentID == agentID {
			cp := *r
			rows = append(rows, &cp)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows, nil
}

// UpsertAnalytics inserts or replaces the row for (AgentID, Date).
func (s *MemoryStore) UpsertAnalytics(_ context.Context, row *domain.AnalyticsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.agents[row.AgentID]; !ok {
		return ErrNotFound
	}

	row.Date = dayKey(row.Date)
	for _, existing := range s.analytics {
		if existing.AgentID == row.AgentID && existing.Date.Equal(row.Date) {
			row.ID = existing.ID
			if row.SatisfactionScore == 0 {
				row.SatisfactionScore = existing.SatisfactionScore
			}
			cp := *row
			s.analytics[row.ID] = &cp
			return nil
		}
	}

	s.nextAnalyticsID++
	row.ID = s.nextAnalyticsID
	cp := *row
	s.analytics[row.ID] = &cp
	return nil
}

// CreateContact stores a contact form submission.
func (s *MemoryStore) CreateContact(_ context.Context, contact *domain.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextContactID++
	contact.ID = s.nextContactID
	contact.CreatedAt = time.Now()
	cp := *contact
	s.contacts[contact.ID] = &cp
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(_ context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var _ Repository = (*MemoryStore)(nil)
