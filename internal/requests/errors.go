package requests

import "errors"

var (
	ErrNotFound              = errors.New("request not found")
	ErrNoRoles               = errors.New("request must name at least one role")
	ErrUnknownRole           = errors.New("requested role does not exist")
	ErrInvalidDuration       = errors.New("duration must be a positive number of minutes")
	ErrDurationExceedsMax    = errors.New("duration exceeds the maximum allowed for the requested roles")
	ErrJustificationRequired = errors.New("a justification or ticket number is required")
	ErrReasonRequired        = errors.New("a denial reason is required")
	ErrInvalidState          = errors.New("request is not pending")
	ErrNotRequestOwner       = errors.New("only the requester may cancel a request")
	ErrSelfApproval          = errors.New("requesters may not decide their own requests")
)
