// Package api provides HTTP handlers for the Coworker API.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/store"
)

const maxRequestBodySize = 1 << 20

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions auth.SessionStore
	validate *validator.Validate
}

// normalizer is implemented by request bodies that clean up their fields
// before validation.
type normalizer interface {
	normalize()
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, sessions auth.SessionStore) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		validate: newValidator(),
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
		return domain.IsValidPlan(fl.Field().String())
	}); err != nil {
		panic("api: register plan validation: " + err.Error())
	}
	return v
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"message": message})
}

// serverError logs err and writes a generic 500.
func serverError(w http.ResponseWriter, r *http.Request, message string, err error) {
	slog.Error(message, "error", err, "path", r.URL.Path)
	Error(w, http.StatusInternalServerError, message)
}

// decode reads a JSON body into v and validates it. On failure it writes a
// 400 response and returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if n, ok := v.(normalizer); ok {
		n.normalize()
	}
	if err := h.validate.Struct(v); err != nil {
		Error(w, http.StatusBadRequest, validationMessage(err))
		return false
	}
	return true
}

// validationMessage renders validator errors as a single readable sentence.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Invalid input"
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := jsonName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email")
		case "min":
			msgs = append(msgs, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("%s must be at most %s characters", field, fe.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", field, fe.Param()))
		case "plan":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s %s %s", field,
				domain.PlanStarter, domain.PlanProfessional, domain.PlanEnterprise))
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonName(field string) string {
	if field == "" {
		return field
	}
	return strings.ToLower(field[:1]) + field[1:]
}

// parseID reads a positive integer URL parameter. On failure it writes a
// 400 response and returns false.
func parseID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		Error(w, http.StatusBadRequest, "Invalid "+param)
		return 0, false
	}
	return id, true
}

// currentUserID returns the authenticated user. RequireAuth guarantees it is
// present on protected routes.
func currentUserID(r *http.Request) int64 {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// ownedAgent loads the agent named by the URL parameter and checks that the
// current user owns it. It writes 400/404/500 and returns nil on failure.
func (h *Handler) ownedAgent(w http.ResponseWriter, r *http.Request, param string) *domain.Agent {
	id, ok := parseID(w, r, param)
	if !ok {
		return nil
	}
	agent, err := h.repo.GetAgent(r.Context(), id)
	if err != nil {
		serverError(w, r, "Failed to fetch agent", err)
		return nil
	}
	if !agent.OwnedBy(currentUserID(r)) {
		Error(w, http.StatusNotFound, "Agent not found")
		return nil
	}
	return agent
}
