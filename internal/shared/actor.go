package shared

import "strings"

// Actor is the caller identity supplied by the identity provider. The engine
// never resolves it itself.
type Actor struct {
	ID           int64
	Roles        []string
	DepartmentID int64
}

// HasRole reports whether the actor holds role (case-insensitive).
func (a Actor) HasRole(role string) bool {
	if role == "" {
		return false
	}
	for _, r := range a.Roles {
		if strings.EqualFold(strings.TrimSpace(r), role) {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the actor holds at least one of roles.
func (a Actor) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if a.HasRole(role) {
			return true
		}
	}
	return false
}
