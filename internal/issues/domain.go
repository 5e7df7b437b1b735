package issues

import (
	"strings"
	"time"
)

// Status is the workflow state of an issue.
type Status string

const (
	StatusOpen       Status = "open"
	StatusInProgress Status = "in_progress"
	StatusResolved   Status = "resolved"
	StatusClosed     Status = "closed"
)

// Statuses lists every status in workflow order.
func Statuses() []Status {
	return []Status{StatusOpen, StatusInProgress, StatusResolved, StatusClosed}
}

// ParseStatus accepts the canonical names as well as spaced, dashed or camel-cased forms.
func ParseStatus(raw string) (Status, bool) {
	switch normalizeEnum(raw) {
	case "open":
		return StatusOpen, true
	case "in_progress", "inprogress":
		return StatusInProgress, true
	case "resolved":
		return StatusResolved, true
	case "closed":
		return StatusClosed, true
	}
	return "", false
}

// Finished reports whether the status counts as resolved for resolvedAt purposes.
func (s Status) Finished() bool {
	return s == StatusResolved || s == StatusClosed
}

func (s Status) rank() int {
	for i, candidate := range Statuses() {
		if candidate == s {
			return i + 1
		}
	}
	return 0
}

// Priority is the urgency of an issue.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Priorities lists every priority from least to most urgent.
func Priorities() []Priority {
	return []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical}
}

// ParsePriority maps a submitted priority name to a Priority.
func ParsePriority(raw string) (Priority, bool) {
	switch normalizeEnum(raw) {
	case "low":
		return PriorityLow, true
	case "medium":
		return PriorityMedium, true
	case "high":
		return PriorityHigh, true
	case "critical":
		return PriorityCritical, true
	}
	return "", false
}

func (p Priority) rank() int {
	for i, candidate := range Priorities() {
		if candidate == p {
			return i + 1
		}
	}
	return 0
}

func normalizeEnum(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// Field limits enforced on create and update.
const (
	TitleMinLen       = 3
	TitleMaxLen       = 50
	DescriptionMinLen = 3
	DescriptionMaxLen = 225
)

// Issue is a tracked bug or task.
type Issue struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      Status     `json:"status"`
	Priority    Priority   `json:"priority"`
	CreatedBy   int64      `json:"createdBy"`
	Attachment  *string    `json:"attachment"`
	ResolvedAt  *time.Time `json:"resolvedAt"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// View is an issue joined with its creator, used for listings and exports.
type View struct {
	Issue
	CreatorName  string `json:"creatorName"`
	CreatorEmail string `json:"creatorEmail"`
}

// Stats aggregates issue counts for dashboards.
type Stats struct {
	Total      int              `json:"total"`
	ByStatus   map[Status]int   `json:"byStatus"`
	ByPriority map[Priority]int `json:"byPriority"`
}

func newStats() Stats {
	s := Stats{ByStatus: make(map[Status]int, 4), ByPriority: make(map[Priority]int, 4)}
	for _, st := range Statuses() {
		s.ByStatus[st] = 0
	}
	for _, pr := range Priorities() {
		s.ByPriority[pr] = 0
	}
	return s
}
