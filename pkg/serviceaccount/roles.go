package serviceaccount

import "sort"

// normalizeRoles returns the sorted distinct roles, or a validation error for blank entries
func normalizeRoles(field string, roles []string) ([]string, error) {
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			return nil, invalid(field, "must not contain blank role identifiers")
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sort.Strings(out)
	return out, nil
}

// missingFrom returns the roles in want that are not in have
func missingFrom(have, want []string) []string {
	index := toSet(have)
	var out []string
	for _, r := range want {
		if _, ok := index[r]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// presentIn returns the roles in want that are also in have
func presentIn(have, want []string) []string {
	index := toSet(have)
	var out []string
	for _, r := range want {
		if _, ok := index[r]; ok {
			out = append(out, r)
		}
	}
	return out
}

func union(a, b []string) []string {
	set := toSet(a)
	for _, r := range b {
		set[r] = struct{}{}
	}
	return fromSet(set)
}

func subtract(a, b []string) []string {
	set := toSet(a)
	for _, r := range b {
		delete(set, r)
	}
	return fromSet(set)
}

func toSet(roles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		set[r] = struct{}{}
	}
	return set
}

func fromSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
