package rbac

// roleFeatures is the baseline allow-list of every role.
var roleFeatures = map[Role]FeatureSet{
	RoleAdmin: NewFeatureSet(Features()...),
	RoleUser: NewFeatureSet(
		FeatureIssuesCreate,
		FeatureIssuesViewOwn,
		FeatureIssuesEditOwn,
		FeatureProfileEdit,
	),
}

// RoleFeatures returns a copy of the allow-list for role.
func RoleFeatures(role Role) FeatureSet {
	base := roleFeatures[role]
	out := make(FeatureSet, len(base))
	for f := range base {
		out[f] = struct{}{}
	}
	return out
}

// grantable reports whether at least one role is granted f by the table.
func grantable(f Feature) bool {
	for _, set := range roleFeatures {
		if set.Has(f) {
			return true
		}
	}
	return false
}
