package auth

import (
	"time"

	"github.com/odyssey-erp/issuedesk/internal/rbac"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         rbac.Role
	Enabled      bool
	Features     []rbac.Feature
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal derives the request principal from the stored account.
func (u User) Principal() rbac.Principal {
	return rbac.Principal{
		UserID:  u.ID,
		Email:   u.Email,
		Name:    u.Name,
		Role:    u.Role,
		Enabled: u.Enabled,
		Grants:  u.Features,
	}
}

// Profile is the client-facing view of a user.
type Profile struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      rbac.Role `json:"role"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Profile strips secrets from u.
func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		Enabled:   u.Enabled,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Session is the result of a successful register or login.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      Profile   `json:"user"`
}
