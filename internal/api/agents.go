package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/generation"
	"github.com/coworker-ai/coworker/internal/store"
)

// AgentHandler handles agent CRUD endpoints and the template catalog.
type AgentHandler struct {
	*Handler
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(base *Handler) *AgentHandler {
	return &AgentHandler{Handler: base}
}

type createAgentRequest struct {
	Name         string  `json:"name" validate:"required,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=500"`
	Template     string  `json:"template" validate:"required"`
	SystemPrompt string  `json:"systemPrompt"`
	IsActive     *bool   `json:"isActive"`
}

func (req *createAgentRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Template = strings.TrimSpace(req.Template)
}

type updateAgentRequest struct {
	Name         *string `json:"name" validate:"omitnil,min=1,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=500"`
	Template     *string `json:"template" validate:"omitnil,min=1"`
	SystemPrompt *string `json:"systemPrompt"`
	IsActive     *bool   `json:"isActive"`
}

func (req *updateAgentRequest) normalize() {
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if req.Template != nil {
		template := strings.TrimSpace(*req.Template)
		req.Template = &template
	}
}

// RegisterRoutes registers agent routes.
func (h *AgentHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/templates", h.ListTemplates)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.sessions))
		r.Route("/api/agents", func(r chi.Router) {
			r.Get("/", h.List)
			r.Post("/", h.Create)
			r.Get("/{id}", h.Get)
			r.Put("/{id}", h.Update)
			r.Delete("/{id}", h.Delete)
			r.Get("/{id}/conversations", h.Conversations)
		})
	})
}

// ListTemplates returns the template catalog.
func (h *AgentHandler) ListTemplates(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, generation.Templates())
}

// List returns the current user's agents.
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	agents, err := h.repo.ListAgentsByUser(r.Context(), currentUserID(r))
	if err != nil {
		serverError(w, r, "Failed to fetch agents", err)
		return
	}
	JSON(w, http.StatusOK, agents)
}

// Create adds an agent, enforcing the plan's agent limit.
func (h *AgentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAgentRequest
	if !h.decode(w, r, &req) {
		return
	}

	userID := currentUserID(r)
	user, err := h.repo.GetUser(r.Context(), userID)
	if err != nil {
		serverError(w, r, "Failed to create agent", err)
		return
	}
	if user == nil {
		Error(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if limit := user.AgentLimit(); limit > 0 {
		existing, err := h.repo.ListAgentsByUser(r.Context(), userID)
		if err != nil {
			serverError(w, r, "Failed to create agent", err)
			return
		}
		if len(existing) >= limit {
			Error(w, http.StatusForbidden, "Agent limit reached for plan")
			return
		}
	}

	prompt := strings.TrimSpace(req.SystemPrompt)
	if prompt == "" {
		prompt = generation.PromptForTemplate(req.Template)
	}
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	agent := &domain.Agent{
		UserID:       userID,
		Name:         req.Name,
		Description:  req.Description,
		Template:     req.Template,
		SystemPrompt: prompt,
		IsActive:     active,
	}
	if err := h.repo.CreateAgent(r.Context(), agent); err != nil {
		serverError(w, r, "Failed to create agent", err)
		return
	}

	slog.Info("Agent created", "agent_id", agent.ID, "user_id", userID, "template", agent.Template)
	JSON(w, http.StatusOK, agent)
}

// Get returns one of the current user's agents.
func (h *AgentHandler) Get(w http.ResponseWriter, r *http.Request) {
	agent := h.ownedAgent(w, r, "id")
	if agent == nil {
		return
	}
	JSON(w, http.StatusOK, agent)
}

// Update applies a partial update to an agent.
func (h *AgentHandler) Update(w http.ResponseWriter, r *http.Request) {
	agent := h.ownedAgent(w, r, "id")
	if agent == nil {
		return
	}

	var req updateAgentRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Name != nil {
		agent.Name = *req.Name
	}
	if req.Description != nil {
		agent.Description = req.Description
	}
	if req.Template != nil {
		agent.Template = *req.Template
	}
	if req.SystemPrompt != nil {
		agent.SystemPrompt = *req.SystemPrompt
	}
	if req.IsActive != nil {
		agent.IsActive = *req.IsActive
	}

	if err := h.repo.UpdateAgent(r.Context(), agent); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			Error(w, http.StatusNotFound, "Agent not found")
			return
		}
		serverError(w, r, "Failed to update agent", err)
		return
	}
	JSON(w, http.StatusOK, agent)
}

// Delete removes an agent with its conversations and analytics.
func (h *AgentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	agent := h.ownedAgent(w, r, "id")
	if agent == nil {
		return
	}

	deleted, err := h.repo.DeleteAgent(r.Context(), agent.ID)
	if err != nil {
		serverError(w, r, "Failed to delete agent", err)
		return
	}
	if !deleted {
		Error(w, http.StatusNotFound, "Agent not found")
		return
	}

	slog.Info("Agent deleted", "agent_id", agent.ID, "user_id", agent.UserID)
	JSON(w, http.StatusOK, map[string]string{"message": "Agent deleted successfully"})
}

// Conversations lists the conversations of one of the current user's agents.
func (h *AgentHandler) Conversations(w http.ResponseWriter, r *http.Request) {
	agent := h.ownedAgent(w, r, "id")
	if agent == nil {
		return
	}
	convs, err := h.repo.ListConversationsByAgent(r.Context(), agent.ID)
	if err != nil {
		serverError(w, r, "Failed to fetch conversations", err)
		return
	}
	JSON(w, http.StatusOK, convs)
}
