package teams

import "errors"

var (
	ErrNotFound      = errors.New("team not found")
	ErrDuplicateName = errors.New("team name already exists")
	ErrEmptyName     = errors.New("team name is required")
	ErrUnknownUser   = errors.New("member refers to an unknown user")
)
