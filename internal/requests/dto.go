package requests

// SubmitRequest is the payload for creating an access request.
type SubmitRequest struct {
	RoleIDs         []int64 `json:"role_ids" validate:"required,min=1,dive,gt=0"`
	DurationMinutes int     `json:"duration_minutes" validate:"required,gt=0"`
	Justification   string  `json:"justification" validate:"max=2000"`
	TicketNumber    string  `json:"ticket_number" validate:"max=100"`
}

// DecisionRequest is the payload for approving or denying a request. The
// reason is optional for approvals and mandatory for denials.
type DecisionRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}
