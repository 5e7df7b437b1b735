package users

import (
	"time"

	"github.com/odyssey-erp/issuedesk/internal/rbac"
)

// Account represents a user account for management.
type Account struct {
	ID         int64          `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email"`
	Role       rbac.Role      `json:"role"`
	Enabled    bool           `json:"enabled"`
	Features   []rbac.Feature `json:"features"`
	IssueCount int            `json:"issueCount"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// ListFilter narrows the account listing.
type ListFilter struct {
	Search  string
	Role    *rbac.Role
	Enabled *bool
}

// DeleteResult reports what a permanent delete removed.
type DeleteResult struct {
	UserID            int64 `json:"userId"`
	DeletedIssueCount int   `json:"deletedIssueCount"`
}
