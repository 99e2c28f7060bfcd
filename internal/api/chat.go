package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/chat"
	"github.com/coworker-ai/coworker/internal/metrics"
	"github.com/coworker-ai/coworker/internal/middleware"
)

// ChatHandler handles the public chat endpoints.
type ChatHandler struct {
	*Handler
	turns   *chat.Service
	limiter *middleware.RateLimiter
	metrics *metrics.Metrics
}

// NewChatHandler creates a chat handler. limiter and m may be nil.
func NewChatHandler(base *Handler, turns *chat.Service, limiter *middleware.RateLimiter, m *metrics.Metrics) *ChatHandler {
	return &ChatHandler{Handler: base, turns: turns, limiter: limiter, metrics: m}
}

type chatRequest struct {
	Message   string `json:"message" validate:"required,min=1"`
	SessionID string `json:"sessionId" validate:"required,max=128"`
}

type chatResponse struct {
	Response     string `json:"response"`
	ResponseTime int64  `json:"responseTime"`
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		if h.limiter != nil {
			r.Use(middleware.RateLimit(h.limiter, h.metrics))
		}
		r.Post("/api/chat/{agentId}", h.Send)
	})
	r.Get("/api/conversations/{sessionId}", h.GetConversation)
}

// Send runs one chat turn against an agent.
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	agentID, ok := parseID(w, r, "agentId")
	if !ok {
		return
	}

	var req chatRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.turns.SendMessage(r.Context(), agentID, req.SessionID, req.Message, h.optionalUserID(r))
	switch {
	case errors.Is(err, chat.ErrAgentUnavailable):
		Error(w, http.StatusNotFound, "Agent not found or inactive")
		return
	case errors.Is(err, chat.ErrSessionAgentMismatch):
		Error(w, http.StatusBadRequest, "Session belongs to a different agent")
		return
	case err != nil:
		serverError(w, r, "Failed to process message", err)
		return
	}

	JSON(w, http.StatusOK, chatResponse{
		Response:     result.Response,
		ResponseTime: result.ResponseTime.Milliseconds(),
	})
}

// optionalUserID resolves the bearer token if present. Chat is public, so an
// unknown token simply yields an anonymous conversation.
func (h *ChatHandler) optionalUserID(r *http.Request) *int64 {
	token := auth.TokenFromRequest(r)
	if token == "" {
		return nil
	}
	sess, err := h.sessions.Lookup(r.Context(), token)
	if err != nil || sess == nil {
		return nil
	}
	id := sess.UserID
	return &id
}

// GetConversation returns a conversation by session ID.
func (h *ChatHandler) GetConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := h.turns.Conversation(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		serverError(w, r, "Failed to fetch conversation", err)
		return
	}
	if conv == nil {
		Error(w, http.StatusNotFound, "Conversation not found")
		return
	}
	JSON(w, http.StatusOK, conv)
}
