package ephem

import (
	"errors"
	"fmt"
)

var (
	// ErrStaleGeneration means a newer load superseded this one.
	ErrStaleGeneration = errors.New("stale generation")
	// ErrNoRawData means Reframe found a track without fetched samples.
	ErrNoRawData = errors.New("no raw ephemeris data")
)

// FetchError reports a spacecraft whose ephemeris could not be fetched.
type FetchError struct {
	Spacecraft string
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("ephemeris for %s: %v", e.Spacecraft, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
