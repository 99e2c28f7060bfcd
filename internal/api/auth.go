package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/coworker-ai/coworker/internal/auth"
	"github.com/coworker-ai/coworker/internal/domain"
	"github.com/coworker-ai/coworker/internal/store"
)

// AuthHandler handles signup, login and session endpoints.
type AuthHandler struct {
	*Handler
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(base *Handler) *AuthHandler {
	return &AuthHandler{Handler: base}
}

type signupRequest struct {
	Username  string  `json:"username" validate:"required,min=3,max=50"`
	Email     string  `json:"email" validate:"required,email"`
	Password  string  `json:"password" validate:"required,min=6,max=72"`
	FirstName string  `json:"firstName" validate:"required"`
	LastName  string  `json:"lastName" validate:"required"`
	Company   *string `json:"company"`
	Plan      string  `json:"plan" validate:"omitempty,plan"`
}

func (req *signupRequest) normalize() {
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	req.Plan = strings.ToLower(strings.TrimSpace(req.Plan))
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	User  *domain.User `json:"user"`
	Token string       `json:"token"`
}

// RegisterRoutes registers auth routes.
func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/signup", h.Signup)
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
		r.With(auth.RequireAuth(h.sessions)).Get("/me", h.Me)
	})
}

// Signup creates an account and returns a session token.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if !h.decode(w, r, &req) {
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		Error(w, http.StatusBadRequest, fmt.Sprintf("password must be at most %d bytes", auth.MaxPasswordBytes))
		return
	}
	if err != nil {
		serverError(w, r, "Failed to create user", err)
		return
	}

	plan := req.Plan
	if plan == "" {
		plan = domain.PlanStarter
	}
	user := &domain.User{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Company:      req.Company,
		Plan:         plan,
	}
	if err := h.repo.CreateUser(r.Context(), user); err != nil {
		switch {
		case errors.Is(err, store.ErrDuplicateEmail):
			Error(w, http.StatusBadRequest, "User already exists")
		case errors.Is(err, store.ErrDuplicateUsername):
			Error(w, http.StatusBadRequest, "Username already taken")
		default:
			serverError(w, r, "Failed to create user", err)
		}
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "Failed to create session", err)
		return
	}

	slog.Info("User signed up", "user_id", user.ID, "plan", user.Plan)
	JSON(w, http.StatusOK, authResponse{User: user, Token: sess.Token})
}

// Login verifies credentials and returns a session token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decode(w, r, &req) {
		return
	}

	user, err := h.repo.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		serverError(w, r, "Failed to log in", err)
		return
	}
	if user == nil || !auth.CheckPassword(user.PasswordHash, req.Password) {
		Error(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	sess, err := h.sessions.Create(r.Context(), user.ID)
	if err != nil {
		serverError(w, r, "Failed to create session", err)
		return
	}
	JSON(w, http.StatusOK, authResponse{User: user, Token: sess.Token})
}

// Logout revokes the bearer token if one was sent.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := h.sessions.Revoke(r.Context(), token); err != nil {
			slog.Warn("Failed to revoke session", "error", err)
		}
	}
	JSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Me returns the authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.repo.GetUser(r.Context(), currentUserID(r))
	if err != nil {
		serverError(w, r, "Failed to fetch user", err)
		return
	}
	if user == nil {
		Error(w, http.StatusNotFound, "User not found")
		return
	}
	JSON(w, http.StatusOK, user)
}
