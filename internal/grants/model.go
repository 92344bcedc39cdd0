// Package grants tracks active, time-bounded role grants derived from
// approved access requests.
package grants

import "time"

// Status represents the lifecycle of a grant.
type Status string

const (
	StatusActive  Status = "Active"
	StatusExpired Status = "Expired"
	StatusRevoked Status = "Revoked"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusRevoked:
		return true
	default:
		return false
	}
}

// RevokeReasonSuperseded marks a grant replaced by a newer approval for the
// same (holder, role) pair.
const RevokeReasonSuperseded = "superseded"

// Grant is a time-bounded instance of a principal holding a role. A nil
// ExpiresAt means the grant never expires automatically.
type Grant struct {
	ID           int64      `json:"grant_id"`
	RequestID    int64      `json:"request_id"`
	RoleID       int64      `json:"role_id"`
	HolderID     int64      `json:"holder_id"`
	Status       Status     `json:"status"`
	GrantedAt    time.Time  `json:"granted_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	RevokedBy    *int64     `json:"revoked_by,omitempty"`
	RevokedAt    *time.Time `json:"revoked_at,omitempty"`
	RevokeReason *string    `json:"revoke_reason,omitempty"`
}

// WithRole joins display fields for the holder's dashboard.
type WithRole struct {
	Grant
	RoleName        string `json:"role_name"`
	RoleDescription string `json:"role_description"`
	Sensitivity     string `json:"sensitivity_level"`
}
