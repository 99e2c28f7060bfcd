package domain

import "time"

// Agent is a named template+prompt configuration owned by a user.
type Agent struct {
	ID           int64     `json:"id"`
	UserID       int64     `json:"userId"`
	Name         string    `json:"name"`
	Description  *string   `json:"description"`
	Template     string    `json:"template"`
	SystemPrompt string    `json:"systemPrompt"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// OwnedBy returns true if the agent belongs to userID.
func (a *Agent) OwnedBy(userID int64) bool {
	return a != nil && a.UserID == userID
}
