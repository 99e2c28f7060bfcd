package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coworker-ai/coworker/internal/domain"
)

// ContactHandler handles the public contact form.
type ContactHandler struct {
	*Handler
}

// NewContactHandler creates a new contact handler.
func NewContactHandler(base *Handler) *ContactHandler {
	return &ContactHandler{Handler: base}
}

type contactRequest struct {
	FirstName string  `json:"firstName" validate:"required,max=100"`
	LastName  string  `json:"lastName" validate:"required,max=100"`
	Email     string  `json:"email" validate:"required,email"`
	Company   *string `json:"company" validate:"omitempty,max=200"`
	Message   string  `json:"message" validate:"required,max=5000"`
}

// RegisterRoutes registers the contact route.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/contact", h.Submit)
}

// Submit stores a contact form submission.
func (h *ContactHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if !h.decode(w, r, &req) {
		return
	}

	contact := &domain.ContactMessage{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Company:   req.Company,
		Message:   req.Message,
	}
	if err := h.repo.CreateContact(r.Context(), contact); err != nil {
		serverError(w, r, "Failed to submit contact form", err)
		return
	}

	slog.Info("Contact form submitted", "contact_id", contact.ID)
	JSON(w, http.StatusOK, map[string]string{"message": "Contact form submitted successfully"})
}
