package viewer

import (
	"errors"

	"github.com/litescript/ls-mms/internal/ephem"
)

var (
	// ErrInvalidSettings is returned by Apply for settings that fail
	// validation. Nothing changes.
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrSuperseded means a newer Apply took over before this one finished.
	// It matches ephem.ErrStaleGeneration.
	ErrSuperseded = ephem.ErrStaleGeneration
	// ErrNoViewer means a refresh found no main viewer to update.
	ErrNoViewer = errors.New("no main viewer")
)
