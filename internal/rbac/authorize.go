package rbac

import (
	"fmt"
	"strings"
)

// Deny reasons returned by Authorize.
const (
	ReasonRoleNotPermitted   = "role not permitted"
	ReasonMissingPermissions = "missing required permissions"
	ReasonNoMatchingFeature  = "no matching permission"
)

// Decision is the outcome of evaluating a Requirement.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Reason: reason} }

// Resolve returns the effective features of p: its role table entry plus explicit grants.
func Resolve(p Principal) FeatureSet {
	set := RoleFeatures(p.Role)
	for _, f := range p.Grants {
		set[f] = struct{}{}
	}
	return set
}

// Authorize evaluates req against p. Empty requirement fields are vacuously satisfied.
func Authorize(p Principal, req Requirement) Decision {
	if len(req.Roles) > 0 && !containsRole(req.Roles, p.Role) {
		return deny(ReasonRoleNotPermitted)
	}
	if len(req.Features) == 0 {
		return allow()
	}
	granted := Resolve(p)
	switch req.Combinator {
	case CombinatorAny:
		for _, f := range req.Features {
			if granted.Has(f) {
				return allow()
			}
		}
		return deny(ReasonNoMatchingFeature)
	default:
		for _, f := range req.Features {
			if !granted.Has(f) {
				return deny(ReasonMissingPermissions)
			}
		}
		return allow()
	}
}

// CheckRequirement reports features that no role can be granted; such a requirement could
// never pass for principals without explicit grants.
func CheckRequirement(req Requirement) error {
	var missing []string
	for _, f := range req.Features {
		if !grantable(f) {
			missing = append(missing, string(f))
		}
	}
	for _, r := range req.Roles {
		if !r.Valid() {
			missing = append(missing, "role:"+string(r))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("rbac: unsatisfiable requirement: %s", strings.Join(missing, ", "))
	}
	return nil
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
