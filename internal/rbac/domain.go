package rbac

import (
	"sort"
	"strings"
)

// Role is the coarse-grained authorization group of an account.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Roles lists every known role.
func Roles() []Role {
	return []Role{RoleAdmin, RoleUser}
}

// ParseRole maps a stored or submitted role name to a Role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleUser:
		return RoleUser, true
	}
	return "", false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Feature is a fine-grained capability granted to roles.
type Feature string

const (
	FeatureIssuesCreate       Feature = "issues.create"
	FeatureIssuesViewOwn      Feature = "issues.view_own"
	FeatureIssuesEditOwn      Feature = "issues.edit_own"
	FeatureIssuesViewAll      Feature = "issues.view_all"
	FeatureIssuesEditAll      Feature = "issues.edit_all"
	FeatureIssuesChangeStatus Feature = "issues.change_status"
	FeatureIssuesDelete       Feature = "issues.delete"
	FeatureIssuesExport       Feature = "issues.export"
	FeatureReportsView        Feature = "reports.view"
	FeatureProfileEdit        Feature = "profile.edit"
	FeatureUsersView          Feature = "users.view"
	FeatureUsersManage        Feature = "users.manage"
)

// Features lists every known feature key.
func Features() []Feature {
	return []Feature{
		FeatureIssuesCreate,
		FeatureIssuesViewOwn,
		FeatureIssuesEditOwn,
		FeatureIssuesViewAll,
		FeatureIssuesEditAll,
		FeatureIssuesChangeStatus,
		FeatureIssuesDelete,
		FeatureIssuesExport,
		FeatureReportsView,
		FeatureProfileEdit,
		FeatureUsersView,
		FeatureUsersManage,
	}
}

// ParseFeature maps a feature name to a Feature. Unknown names are rejected.
func ParseFeature(raw string) (Feature, bool) {
	candidate := Feature(strings.ToLower(strings.TrimSpace(raw)))
	for _, f := range Features() {
		if f == candidate {
			return f, true
		}
	}
	return "", false
}

// ParseFeatures keeps only the recognised names.
func ParseFeatures(raw []string) []Feature {
	out := make([]Feature, 0, len(raw))
	for _, name := range raw {
		if f, ok := ParseFeature(name); ok {
			out = append(out, f)
		}
	}
	return out
}

// FeatureSet is an unordered set of feature keys.
type FeatureSet map[Feature]struct{}

// NewFeatureSet builds a set from the given keys.
func NewFeatureSet(features ...Feature) FeatureSet {
	set := make(FeatureSet, len(features))
	for _, f := range features {
		set[f] = struct{}{}
	}
	return set
}

// Has reports membership.
func (s FeatureSet) Has(f Feature) bool {
	_, ok := s[f]
	return ok
}

// Sorted returns the members in lexical order.
func (s FeatureSet) Sorted() []Feature {
	out := make([]Feature, 0, len(s))
	for f := range s {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Principal describes the authenticated actor for one request.
type Principal struct {
	UserID  int64
	Email   string
	Name    string
	Role    Role
	Enabled bool
	// Grants are explicit per-account feature keys added on top of the role table.
	Grants []Feature
}

// IsAdmin reports whether the principal holds the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// Owns reports whether a record created by userID belongs to the principal.
func (p Principal) Owns(userID int64) bool {
	return p.UserID == userID
}

// Combinator decides how multiple required features are combined.
type Combinator int

const (
	// CombinatorAll requires every feature. It is the zero value.
	CombinatorAll Combinator = iota
	// CombinatorAny requires at least one feature.
	CombinatorAny
)

// Requirement is the access rule guarding an operation.
type Requirement struct {
	Roles      []Role
	Features   []Feature
	Combinator Combinator
}

// AllOf requires every listed feature.
func AllOf(features ...Feature) Requirement {
	return Requirement{Features: features, Combinator: CombinatorAll}
}

// AnyOf requires at least one listed feature.
func AnyOf(features ...Feature) Requirement {
	return Requirement{Features: features, Combinator: CombinatorAny}
}

// OnlyRoles restricts access to the listed roles.
func OnlyRoles(roles ...Role) Requirement {
	return Requirement{Roles: roles}
}

// WithRoles returns a copy of r additionally restricted to roles.
func (r Requirement) WithRoles(roles ...Role) Requirement {
	r.Roles = append(append([]Role(nil), r.Roles...), roles...)
	return r
}
