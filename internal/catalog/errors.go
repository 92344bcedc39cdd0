package catalog

import "errors"

// Domain errors for the role catalog.
var (
	// ErrNotFound indicates the requested role was not found.
	ErrNotFound = errors.New("role not found")
	// ErrDuplicateName indicates a role with the same name already exists.
	ErrDuplicateName = errors.New("role name already exists")
	// ErrRoleInUse blocks deletion of a role with active grants.
	ErrRoleInUse = errors.New("role has active grants and cannot be deleted")

	// Rule validation errors.
	ErrEmptyScopeValue  = errors.New("rule scope value must not be empty")
	ErrInvalidScopeType = errors.New("rule scope type is not one of User/Team/Division/Department")
	ErrInvalidDuration  = errors.New("rule max duration must be greater than zero")
	ErrInvalidPriority  = errors.New("rule priority must not be negative")
	ErrInvalidSeniority = errors.New("rule minimum seniority must not be negative")
)
