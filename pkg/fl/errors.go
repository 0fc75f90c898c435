package fl

import "errors"

var (
	ErrNoUpdates     = errors.New("no diffs provided for averaging")
	ErrShapeMismatch = errors.New("parameter shape mismatch")
	ErrEmptyPayload  = errors.New("empty payload")
	ErrInvalidConfig = errors.New("invalid server config")
)
