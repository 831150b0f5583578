// Package viewer decides how much of the visualization a settings change
// has to rebuild, and drives the ephemeris pipeline and scenes to do it.
package viewer

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
)

// Settings is the complete desired viewer configuration.
type Settings struct {
	Range datasource.TimeRange
	Frame frame.Frame
	// Dataset1D colors the orbit path; Dataset3D draws whiskers. Empty
	// means none.
	Dataset1D        string
	Dataset3D        string
	Palette1D        string
	Palette3D        string
	FormationVisible bool
}

// Validate checks that the range is non-empty and that datasets and
// palettes exist in the catalog.
func (s Settings) Validate() error {
	if !s.Range.End.After(s.Range.Start) {
		return fmt.Errorf("%w: %w: %s", ErrInvalidSettings, datasource.ErrInvalidRange, s.Range)
	}
	if err := checkParameter(s.Dataset1D, false); err != nil {
		return err
	}
	if err := checkParameter(s.Dataset3D, true); err != nil {
		return err
	}
	for _, name := range []string{s.Palette1D, s.Palette3D} {
		if _, err := colors.Lookup(name, 2); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
		}
	}
	return nil
}

func checkParameter(id string, vector bool) error {
	p, ok, err := datasource.LookupParameter(id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if ok && p.Vector() != vector {
		kind := "scalar"
		if vector {
			kind = "vector"
		}
		return fmt.Errorf("%w: %s is not a %s parameter", ErrInvalidSettings, id, kind)
	}
	return nil
}

// ReloadRequest is the difference between the settings the viewers show and
// the desired ones. It carries the full desired snapshot.
type ReloadRequest struct {
	ID               string
	DateChanged      bool
	DatasetChanged   bool
	ColorChanged     bool
	FrameChanged     bool
	FormationToggled bool
	Settings         Settings
}

// Diff compares current against desired. A palette change only counts when
// its dataset is selected.
func Diff(current, desired Settings) ReloadRequest {
	return ReloadRequest{
		ID:             uuid.NewString(),
		DateChanged:    !current.Range.Equal(desired.Range),
		DatasetChanged: current.Dataset1D != desired.Dataset1D || current.Dataset3D != desired.Dataset3D,
		ColorChanged: (desired.Dataset1D != "" && current.Palette1D != desired.Palette1D) ||
			(desired.Dataset3D != "" && current.Palette3D != desired.Palette3D),
		FrameChanged:     current.Frame != desired.Frame,
		FormationToggled: current.FormationVisible != desired.FormationVisible,
		Settings:         desired,
	}
}

// initial is the request for the very first settings: everything changed.
func initial(desired Settings) ReloadRequest {
	return ReloadRequest{
		ID:               uuid.NewString(),
		DateChanged:      true,
		DatasetChanged:   true,
		ColorChanged:     true,
		FrameChanged:     true,
		FormationToggled: desired.FormationVisible,
		Settings:         desired,
	}
}

// merge adds the change flags of o to r. The ID and settings stay r's.
func (r ReloadRequest) merge(o ReloadRequest) ReloadRequest {
	r.DateChanged = r.DateChanged || o.DateChanged
	r.DatasetChanged = r.DatasetChanged || o.DatasetChanged
	r.ColorChanged = r.ColorChanged || o.ColorChanged
	r.FrameChanged = r.FrameChanged || o.FrameChanged
	r.FormationToggled = r.FormationToggled || o.FormationToggled
	return r
}

// Changed reports whether anything differs.
func (r ReloadRequest) Changed() bool {
	return r.DateChanged || r.DatasetChanged || r.ColorChanged || r.FrameChanged || r.FormationToggled
}

func (r ReloadRequest) String() string {
	var parts []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{r.DateChanged, "date"},
		{r.FrameChanged, "frame"},
		{r.DatasetChanged, "dataset"},
		{r.ColorChanged, "colors"},
		{r.FormationToggled, "formation"},
	} {
		if f.on {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "unchanged"
	}
	return strings.Join(parts, ",")
}

// Action is the amount of work a reload needs.
type Action int

const (
	ActionNoOp Action = iota
	ActionFormationOnly
	ActionEntityRefresh
	ActionFullRecreate
)

func (a Action) String() string {
	switch a {
	case ActionFormationOnly:
		return "formation-only"
	case ActionEntityRefresh:
		return "entity-refresh"
	case ActionFullRecreate:
		return "full-recreate"
	default:
		return "no-op"
	}
}

// Decide picks the cheapest action that realizes r. Date and frame changes
// invalidate the scenes themselves.
func Decide(r ReloadRequest) Action {
	switch {
	case r.DateChanged || r.FrameChanged:
		return ActionFullRecreate
	case r.DatasetChanged || r.ColorChanged:
		return ActionEntityRefresh
	case r.FormationToggled:
		return ActionFormationOnly
	default:
		return ActionNoOp
	}
}
