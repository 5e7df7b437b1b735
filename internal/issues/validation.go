package issues

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/issuedesk/internal/shared"
)

var validate = newValidator()

func newValidator() *shared.Validator {
	v := shared.NewValidator()
	v.Register("issue_status", "%s must be one of: open, in_progress, resolved, closed", func(fl validator.FieldLevel) bool {
		_, ok := ParseStatus(fl.Field().String())
		return ok
	})
	v.Register("issue_priority", "%s must be one of: low, medium, high, critical", func(fl validator.FieldLevel) bool {
		_, ok := ParsePriority(fl.Field().String())
		return ok
	})
	return v
}

// CreateInput is the draft submitted when creating an issue.
type CreateInput struct {
	Title       string `json:"title" validate:"required,min=3,max=50"`
	Description string `json:"description" validate:"required,min=3,max=225"`
	Priority    string `json:"priority" validate:"omitempty,issue_priority"`
	Status      string `json:"status" validate:"omitempty,issue_status"`
}

func (in *CreateInput) normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Priority = strings.TrimSpace(in.Priority)
	in.Status = strings.TrimSpace(in.Status)
}

// Validate checks every field and reports all violations together.
func (in CreateInput) Validate() error {
	in.normalize()
	return validate.Struct(in)
}

// UpdateInput is a partial update. Nil fields are left untouched.
type UpdateInput struct {
	Title            *string `json:"title" validate:"omitnil,min=3,max=50"`
	Description      *string `json:"description" validate:"omitnil,min=3,max=225"`
	Priority         *string `json:"priority" validate:"omitnil,issue_priority"`
	Status           *string `json:"status" validate:"omitnil,issue_status"`
	RemoveAttachment bool    `json:"removeAttachment"`
}

func (in *UpdateInput) normalize() {
	for _, f := range []*string{in.Title, in.Description, in.Priority, in.Status} {
		if f != nil {
			*f = strings.TrimSpace(*f)
		}
	}
}

// Validate checks the present fields.
func (in UpdateInput) Validate() error {
	in = in.clone()
	in.normalize()
	return validate.Struct(in)
}

func (in UpdateInput) clone() UpdateInput {
	cp := func(s *string) *string {
		if s == nil {
			return nil
		}
		v := *s
		return &v
	}
	return UpdateInput{
		Title:            cp(in.Title),
		Description:      cp(in.Description),
		Priority:         cp(in.Priority),
		Status:           cp(in.Status),
		RemoveAttachment: in.RemoveAttachment,
	}
}

// apply copies the present fields onto issue. Input must already be validated.
func (in UpdateInput) apply(issue *Issue) {
	in = in.clone()
	in.normalize()
	if in.Title != nil {
		issue.Title = *in.Title
	}
	if in.Description != nil {
		issue.Description = *in.Description
	}
	if in.Priority != nil {
		issue.Priority, _ = ParsePriority(*in.Priority)
	}
}

// StatusInput is the body of a status change.
type StatusInput struct {
	Status string `json:"status" validate:"required,issue_status"`
}
