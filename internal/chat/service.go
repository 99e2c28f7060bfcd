// Package chat runs a chat turn: it loads or creates the session's
// conversation, asks the generator for a reply and persists both messages.
package chat

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/generation"
	"github.com/coworker-ai/coworker/internal/metrics"
	"github.com/coworker-ai/coworker/internal/store"
)

var (
	// ErrAgentUnavailable is returned when the agent is missing or inactive.
	ErrAgentUnavailable = errors.New("agent not found or inactive")
	// ErrSessionAgentMismatch is returned when the session belongs to another agent.
	ErrSessionAgentMismatch = errors.New("session belongs to a different agent")
)

const sessionLockStripes = 64

// Responder produces the assistant reply for a turn.
type Responder interface {
	Respond(ctx context.Context, systemPrompt string, history []domain.ChatMessage, message string) generation.Response
}

// TurnResult is the outcome of a chat turn.
type TurnResult struct {
	Response     string
	ResponseTime time.Duration
	Conversation *domain.Conversation
	Created      bool
}

// Service runs chat turns.
type Service struct {
	repo        store.Repository
	responder   Responder
	transcripts TranscriptLogger
	metrics     *metrics.Metrics
	logger      *slog.Logger
	now         func() time.Time

	// Striped per-session locks serialize turns on one conversation.
	locks [sessionLockStripes]sync.Mutex
}

// NewService creates a chat service. transcripts and m may be nil.
func NewService(repo store.Repository, responder Responder, transcripts TranscriptLogger, m *metrics.Metrics, logger *slog.Logger) *Service {
	if transcripts == nil {
		transcripts = NopTranscriptLogger{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		responder:   responder,
		transcripts: transcripts,
		metrics:     m,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) sessionLock(sessionID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	return &s.locks[h.Sum32()%sessionLockStripes]
}

// SendMessage appends a user message and the generated reply to the
// conversation identified by sessionID, creating it on first use.
// userID is recorded on new conversations and may be nil.
func (s *Service) SendMessage(ctx context.Context, agentID int64, sessionID, message string, userID *int64) (*TurnResult, error) {
	agent, err := s.repo.GetAgent(ctx, agentID)
	if err != nil {
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent == nil || !agent.IsActive {
		return nil, ErrAgentUnavailable
	}

	mu := s.sessionLock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	conv, created, err := s.loadOrCreate(ctx, agentID, sessionID, userID)
	if err != nil {
		return nil, err
	}

	history := conv.Messages
	userMsg := domain.ChatMessage{
		Role:      domain.RoleUser,
		Content:   message,
		Timestamp: s.now().UnixMilli(),
	}

	reply := s.responder.Respond(ctx, agent.SystemPrompt, conv.RecentMessages(generation.HistoryWindow), message)

	assistantMsg := domain.ChatMessage{
		Role:         domain.RoleAssistant,
		Content:      reply.Content,
		Timestamp:    s.now().UnixMilli(),
		ResponseTime: reply.ResponseTime.Milliseconds(),
	}

	messages := make([]domain.ChatMessage, 0, len(history)+2)
	messages = append(messages, history...)
	messages = append(messages, userMsg, assistantMsg)

	if err := s.repo.UpdateConversationMessages(ctx, sessionID, messages); err != nil {
		return nil, fmt.Errorf("save conversation: %w", err)
	}
	conv.Messages = messages

	s.metrics.RecordChatTurn(created)
	s.logTurn(agentID, sessionID, userMsg, assistantMsg, reply.Failed)
	s.logger.Info("Chat turn completed",
		"agent_id", agentID,
		"session_id", sessionID,
		"new_conversation", created,
		"messages", len(messages),
		"response_time_ms", assistantMsg.ResponseTime,
	)

	return &TurnResult{
		Response:     reply.Content,
		ResponseTime: reply.ResponseTime,
		Conversation: conv,
		Created:      created,
	}, nil
}

func (s *Service) loadOrCreate(ctx context.Context, agentID int64, sessionID string, userID *int64) (*domain.Conversation, bool, error) {
	conv, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, false, fmt.Errorf("get conversation: %w", err)
	}
	if conv != nil {
		if conv.AgentID != agentID {
			return nil, false, ErrSessionAgentMismatch
		}
		return conv, false, nil
	}

	conv = &domain.Conversation{
		AgentID:   agentID,
		UserID:    userID,
		SessionID: sessionID,
		Messages:  []domain.ChatMessage{},
		IsActive:  true,
	}
	if err := s.repo.CreateConversation(ctx, conv); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, ErrAgentUnavailable
		}
		if errors.Is(err, store.ErrDuplicateSession) {
			// Created by another process between the read and the insert.
			return s.loadOrCreate(ctx, agentID, sessionID, userID)
		}
		return nil, false, fmt.Errorf("create conversation: %w", err)
	}
	return conv, true, nil
}

func (s *Service) logTurn(agentID int64, sessionID string, userMsg, assistantMsg domain.ChatMessage, failed bool) {
	s.transcripts.Log(TranscriptEvent{
		Timestamp: time.UnixMilli(userMsg.Timestamp).UTC().Format(time.RFC3339Nano),
		AgentID:   agentID,
		SessionID: sessionID,
		Role:      userMsg.Role,
		Content:   userMsg.Content,
	})

	var meta map[string]any
	if failed {
		meta = map[string]any{"fallback": true}
	}
	s.transcripts.Log(TranscriptEvent{
		Timestamp:    time.UnixMilli(assistantMsg.Timestamp).UTC().Format(time.RFC3339Nano),
		AgentID:      agentID,
		SessionID:    sessionID,
		Role:         assistantMsg.Role,
		Content:      assistantMsg.Content,
		ResponseTime: assistantMsg.ResponseTime,
		Meta:         meta,
	})
}

// Conversation returns the conversation for sessionID, or nil if none exists.
func (s *Service) Conversation(ctx context.Context, sessionID string) (*domain.Conversation, error) {
	conv, err := s.repo.GetConversation(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return conv, nil
}
