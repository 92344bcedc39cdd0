// Package requests implements the access request lifecycle: submission,
// approval, denial and cancellation, with grant issuance folded into the
// approving transaction.
package requests

import "time"

// Status represents the lifecycle state of an access request.
type Status string

const (
	StatusPending      Status = "Pending"
	StatusApproved     Status = "Approved"
	StatusAutoApproved Status = "AutoApproved"
	StatusDenied       Status = "Denied"
	StatusCancelled    Status = "Cancelled"
)

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusAutoApproved, StatusDenied, StatusCancelled:
		return true
	default:
		return false
	}
}

// CanDecide reports whether an approver may still act on the request.
func (s Status) CanDecide() bool { return s == StatusPending }

// CanCancel reports whether the requester may still withdraw the request.
func (s Status) CanCancel() bool { return s == StatusPending }

// IsTerminal reports whether the request reached a final state.
func (s Status) IsTerminal() bool { return s != StatusPending }

// Request is one access request covering one or more roles. Department and
// title are snapshotted at submission time so later directory changes do not
// rewrite history.
type Request struct {
	ID              int64      `json:"request_id"`
	RequesterID     int64      `json:"requester_id"`
	Status          Status     `json:"status"`
	DurationMinutes int        `json:"duration_minutes"`
	Justification   string     `json:"justification,omitempty"`
	TicketNumber    string     `json:"ticket_number,omitempty"`
	DeptSnapshot    string     `json:"requester_department"`
	TitleSnapshot   string     `json:"requester_title"`
	CreatedAt       time.Time  `json:"created_at"`
	DecidedBy       *int64     `json:"decided_by,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	DecisionReason  *string    `json:"decision_reason,omitempty"`
}

// RoleLine is one requested role with display fields.
type RoleLine struct {
	RoleID      int64  `json:"role_id"`
	RoleName    string `json:"role_name"`
	Sensitivity string `json:"sensitivity_level"`
}

// Detail joins the request with its roles and the people involved.
type Detail struct {
	Request
	Roles          []RoleLine `json:"roles"`
	RequesterName  string     `json:"requester_name"`
	RequesterLogin string     `json:"requester_login"`
	DeciderName    *string    `json:"decider_name,omitempty"`
}
