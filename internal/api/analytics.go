package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coworker-ai/coworker/internal/analytics"
	"github.com/coworker-ai/coworker/internal/auth"
)

// AnalyticsHandler handles per-agent analytics and dashboard endpoints.
type AnalyticsHandler struct {
	*Handler
	analytics *analytics.Service
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(base *Handler, svc *analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{Handler: base, analytics: svc}
}

// RegisterRoutes registers analytics routes (requires authentication).
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.sessions))
		r.Get("/api/analytics/agent/{agentId}", h.AgentAnalytics)
		r.Get("/api/dashboard/stats", h.DashboardStats)
	})
}

// AgentAnalytics returns stored analytics rows and live stats for an agent.
func (h *AnalyticsHandler) AgentAnalytics(w http.ResponseWriter, r *http.Request) {
	agent := h.ownedAgent(w, r, "agentId")
	if agent == nil {
		return
	}
	report, err := h.analytics.AgentReport(r.Context(), agent.ID)
	if err != nil {
		serverError(w, r, "Failed to fetch analytics", err)
		return
	}
	JSON(w, http.StatusOK, report)
}

// DashboardStats summarizes the current user's agents.
func (h *AnalyticsHandler) DashboardStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analytics.Dashboard(r.Context(), currentUserID(r))
	if err != nil {
		serverError(w, r, "Failed to fetch dashboard stats", err)
		return
	}
	JSON(w, http.StatusOK, stats)
}
