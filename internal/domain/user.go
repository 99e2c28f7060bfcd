// Package domain contains core domain types for the Coworker application.
package domain

import (
	"time"
)

// Plan tiers a user can be on.
const (
	PlanStarter      = "starter"
	PlanProfessional = "professional"
	PlanEnterprise   = "enterprise"
)

// User represents an account that owns agents.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FirstName    string    `json:"firstName"`
	LastName     string    `json:"lastName"`
	Company      *string   `json:"company"`
	Plan         string    `json:"plan"`
	CreatedAt    time.Time `json:"createdAt"`
}

// AgentLimit returns the maximum number of agents the user's plan allows.
// Zero means unlimited.
func (u *User) AgentLimit() int {
	switch u.Plan {
	case PlanProfessional:
		return 10
	case PlanEnterprise:
		return 0
	default:
		return 3
	}
}

// IsValidPlan reports whether plan names a known tier.
func IsValidPlan(plan string) bool {
	switch plan {
	case PlanStarter, PlanProfessional, PlanEnterprise:
		return true
	}
	return false
}
