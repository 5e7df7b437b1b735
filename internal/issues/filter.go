package issues

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/issuedesk/internal/rbac"
	"github.com/odyssey-erp/issuedesk/internal/shared"
)

// SortField names a sortable issue column.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortTitle     SortField = "title"
	SortPriority  SortField = "priority"
	SortStatus    SortField = "status"
)

// SortFields lists the recognised sort keys.
func SortFields() []SortField {
	return []SortField{SortCreatedAt, SortUpdatedAt, SortTitle, SortPriority, SortStatus}
}

// SortOrder is the direction of a sort.
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const dateLayout = "2006-01-02"

// Filter is a listing or export request as submitted by the client.
type Filter struct {
	Status    *Status
	Priority  *Priority
	FromDate  *time.Time
	ToDate    *time.Time
	CreatedBy *int64
	Search    string
	SortBy    string
	SortOrder string
}

// Scope selects which listing path a query comes from.
type Scope int

const (
	// ScopeAll is the administrative "all issues" path.
	ScopeAll Scope = iota
	// ScopeOwn is the "my issues" path.
	ScopeOwn
)

// Predicate is the resolved set of row constraints.
type Predicate struct {
	Status      *Status
	Priority    *Priority
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	CreatedBy   *int64
	Search      string
}

// Order is the resolved sort.
type Order struct {
	Field SortField
	Dir   SortOrder
}

// DefaultOrder is used when no recognised sort is requested.
var DefaultOrder = Order{Field: SortCreatedAt, Dir: SortDesc}

// BuildQuery resolves a client filter into a predicate and order for p.
// On the own path, and for any non-admin principal, createdBy is forced to the caller.
func BuildQuery(f Filter, p rbac.Principal, scope Scope) (Predicate, Order) {
	pred := Predicate{
		Status:    f.Status,
		Priority:  f.Priority,
		CreatedBy: f.CreatedBy,
		Search:    strings.TrimSpace(f.Search),
	}
	if scope == ScopeOwn || !p.IsAdmin() {
		id := p.UserID
		pred.CreatedBy = &id
	}
	pred.CreatedFrom, pred.CreatedTo = dateBounds(f.FromDate, f.ToDate)
	return pred, resolveOrder(f.SortBy, f.SortOrder)
}

// dateBounds turns calendar dates into an inclusive timestamp range. A single bound
// covers that whole day.
func dateBounds(from, to *time.Time) (*time.Time, *time.Time) {
	switch {
	case from == nil && to == nil:
		return nil, nil
	case from != nil && to != nil:
		start, end := dayStart(*from), dayEnd(*to)
		return &start, &end
	case from != nil:
		start, end := dayStart(*from), dayEnd(*from)
		return &start, &end
	default:
		start, end := dayStart(*to), dayEnd(*to)
		return &start, &end
	}
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// dayEnd is the last representable instant of the day at store precision.
func dayEnd(t time.Time) time.Time {
	return dayStart(t).Add(24*time.Hour - time.Microsecond)
}

func resolveOrder(sortBy, sortOrder string) Order {
	field, ok := parseSortField(sortBy)
	if !ok {
		return DefaultOrder
	}
	dir := SortDesc
	if strings.EqualFold(strings.TrimSpace(sortOrder), string(SortAsc)) {
		dir = SortAsc
	}
	return Order{Field: field, Dir: dir}
}

func parseSortField(raw string) (SortField, bool) {
	raw = strings.TrimSpace(raw)
	for _, f := range SortFields() {
		if strings.EqualFold(raw, string(f)) {
			return f, true
		}
	}
	switch strings.ToLower(raw) {
	case "created_at":
		return SortCreatedAt, true
	case "updated_at":
		return SortUpdatedAt, true
	}
	return "", false
}

// ParseFilter reads a Filter from query parameters. Unknown sort keys are not errors;
// malformed status, priority, date or createdBy values are.
func ParseFilter(q url.Values) (Filter, error) {
	var f Filter
	verr := shared.NewValidationError()

	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		if st, ok := ParseStatus(raw); ok {
			f.Status = &st
		} else {
			verr.Add("status", "status must be one of: open, in_progress, resolved, closed")
		}
	}
	if raw := strings.TrimSpace(q.Get("priority")); raw != "" {
		if pr, ok := ParsePriority(raw); ok {
			f.Priority = &pr
		} else {
			verr.Add("priority", "priority must be one of: low, medium, high, critical")
		}
	}
	for _, name := range []string{"fromDate", "toDate"} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		d, err := parseDate(raw)
		if err != nil {
			verr.Add(name, name+" must be a date in YYYY-MM-DD format")
			continue
		}
		if name == "fromDate" {
			f.FromDate = &d
		} else {
			f.ToDate = &d
		}
	}
	if raw := strings.TrimSpace(q.Get("createdBy")); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			verr.Add("createdBy", "createdBy must be a positive integer")
		} else {
			f.CreatedBy = &id
		}
	}
	f.Search = q.Get("search")
	f.SortBy = q.Get("sortBy")
	f.SortOrder = q.Get("sortOrder")
	return f, verr.OrNil()
}

func parseDate(raw string) (time.Time, error) {
	if d, err := time.Parse(dateLayout, raw); err == nil {
		return d, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, err
	}
	return dayStart(t), nil
}
