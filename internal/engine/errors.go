package engine

import "errors"

var (
	ErrInvalidInterval    = errors.New("invalid interval")
	ErrInvalidSchedule    = errors.New("invalid schedule")
	ErrUnrecognizedFormat = errors.New("unrecognized rule format")
)
