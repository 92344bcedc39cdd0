package grants

import "errors"

var (
	ErrNotFound            = errors.New("grant not found")
	ErrNotActive           = errors.New("grant is not active")
	ErrDurationExceedsMax  = errors.New("duration exceeds the maximum allowed by policy")
	ErrIndefiniteExtension = errors.New("extension duration must be positive")
)
