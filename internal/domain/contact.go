package domain

import "time"

// ContactMessage is a lead-gen form submission.
type ContactMessage struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstName"`
	LastName  string    `json:"lastName"`
	Email     string    `json:"email"`
	Company   *string   `json:"company"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
