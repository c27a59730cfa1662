package auth

import (
	"fmt"

	"facilityfix/internal/domain"
)

// Operations gated by the capability table.
const (
	OpConcernCreate   = "concern.create"
	OpConcernEvaluate = "concern.evaluate"
	OpJobCreate       = "job.create"
	OpJobAssign       = "job.assign"
	OpJobUpdateStatus = "job.update_status"
)

// NotAuthorizedError indicates the acting user's role fails the capability
// check, or the actor has no resolvable profile at all.
type NotAuthorizedError struct {
	ActorID   string
	Operation string
}

func (e NotAuthorizedError) Error() string {
	return fmt.Sprintf("actor %s is not authorized for %s", e.ActorID, e.Operation)
}

var defaultGrants = map[string][]string{
	OpConcernCreate:   {domain.RoleTenant},
	OpConcernEvaluate: {domain.RoleAdmin},
	OpJobCreate:       {domain.RoleAdmin},
	OpJobAssign:       {domain.RoleAdmin},
	OpJobUpdateStatus: {domain.RoleAdmin, domain.RoleStaff},
}

// Policy is the single table mapping (operation, role) to allowed. Both
// workflows consult it through Require; there are no scattered role checks.
type Policy struct {
	grants map[string][]string
}

// DefaultPolicy returns the built-in grants.
func DefaultPolicy() Policy {
	return NewPolicy(nil)
}

// NewPolicy merges overrides over the default grants. An override replaces
// the role list for its operation wholesale.
func NewPolicy(overrides map[string][]string) Policy {
	grants := make(map[string][]string, len(defaultGrants))
	for op, roles := range defaultGrants {
		grants[op] = roles
	}
	for op, roles := range overrides {
		grants[op] = roles
	}
	return Policy{grants: grants}
}

// Allowed reports whether role may perform op. Matches are case- and
// type-exact; admin does not implicitly satisfy staff-only grants.
func (p Policy) Allowed(op, role string) bool {
	for _, r := range p.grants[op] {
		if r == role {
			return true
		}
	}
	return false
}

// Require checks the profile's role against the table for op.
func (p Policy) Require(profile domain.UserProfile, op string) error {
	if !p.Allowed(op, profile.Role) {
		return NotAuthorizedError{ActorID: profile.ID, Operation: op}
	}
	return nil
}

// KnownOperation reports whether op exists in the default table; config
// validation uses it to reject typoed grant overrides.
func KnownOperation(op string) bool {
	_, ok := defaultGrants[op]
	return ok
}

// Role predicates kept for call sites that need a single-role answer rather
// than an operation grant.

func IsAdmin(p domain.UserProfile) bool  { return p.Role == domain.RoleAdmin }
func IsStaff(p domain.UserProfile) bool  { return p.Role == domain.RoleStaff }
func IsTenant(p domain.UserProfile) bool { return p.Role == domain.RoleTenant }
