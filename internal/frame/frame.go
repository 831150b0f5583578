// Package frame converts positions and vectors between the Earth-centered
// inertial frame and the Earth-fixed rotating frame.
package frame

import (
	"fmt"
	"strings"
)

// Frame identifies a reference frame.
type Frame int

const (
	// Inertial is the Earth-centered inertial frame the source data uses.
	Inertial Frame = iota
	// Fixed is the Earth-centered, Earth-fixed rotating frame.
	Fixed
)

// String returns the frame name.
func (f Frame) String() string {
	switch f {
	case Inertial:
		return "inertial"
	case Fixed:
		return "fixed"
	default:
		return "unknown"
	}
}

// Parse parses a frame name. It accepts the short names and the common
// ICRF/ECI and ITRF/ECEF aliases.
func Parse(s string) (Frame, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "inertial", "icrf", "eci", "":
		return Inertial, nil
	case "fixed", "itrf", "ecef":
		return Fixed, nil
	default:
		return Inertial, fmt.Errorf("%w: %q", ErrUnknownFrame, s)
	}
}

// Toggle returns the other frame.
func (f Frame) Toggle() Frame {
	if f == Inertial {
		return Fixed
	}
	return Inertial
}
