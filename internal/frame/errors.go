package frame

import "errors"

var (
	// ErrUnavailable means orientation data does not cover the instant.
	ErrUnavailable = errors.New("frame transform unavailable")
	// ErrUnknownFrame is returned by Parse.
	ErrUnknownFrame = errors.New("unknown frame")
	// ErrInvalidInterval is returned by Preload when end precedes start.
	ErrInvalidInterval = errors.New("invalid interval")
)
