package auth

import (
	"strings"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

var validate = shared.NewValidator()

// RegisterInput is the self-registration payload.
type RegisterInput struct {
	Name     string `json:"name" validate:"required,min=2,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

func (in *RegisterInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileInput is a partial profile update.
type ProfileInput struct {
	Name  *string `json:"name" validate:"omitnil,min=2,max=50"`
	Email *string `json:"email" validate:"omitnil,email"`
}

func (in *ProfileInput) normalize() {
	if in.Name != nil {
		v := strings.TrimSpace(*in.Name)
		in.Name = &v
	}
	if in.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*in.Email))
		in.Email = &v
	}
}

// PasswordInput changes the caller's password.
type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}
