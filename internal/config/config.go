// Package config defines the viewer's process configuration and how it is
// layered from defaults, a YAML file and environment variables.
package config

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/litescript/ls-mms/internal/colors"
	"github.com/litescript/ls-mms/internal/datasource"
	"github.com/litescript/ls-mms/internal/frame"
	"github.com/litescript/ls-mms/internal/scene"
	"github.com/litescript/ls-mms/internal/viewer"
)

// DateLayout is the format of the date setting.
const DateLayout = "2006-01-02"

// Data source kinds.
const (
	SourceSynthetic = "synthetic"
	SourceDir       = "dir"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFile receives logs in interactive mode. Empty discards them.
	LogFile string `koanf:"log_file"`

	// Date is the first UTC day to load, as 2006-01-02.
	Date string `koanf:"date"`

	// Days is the number of days loaded from Date.
	Days int `koanf:"days"`

	// Frame is "inertial" or "fixed".
	Frame string `koanf:"frame"`

	// Dataset1D colors the orbit path; Dataset3D draws whiskers. Catalog
	// ids, empty for none.
	Dataset1D string `koanf:"dataset_1d"`
	Dataset3D string `koanf:"dataset_3d"`

	Palette1D string `koanf:"palette_1d"`
	Palette3D string `koanf:"palette_3d"`

	// Shades is the number of colors in a palette.
	Shades int `koanf:"shades"`

	// Formation shows the formation viewer at startup.
	Formation bool `koanf:"formation"`

	// ClockMultiplier is simulated seconds per wall-clock second.
	ClockMultiplier float64 `koanf:"clock_multiplier"`

	// Spacecraft is a comma-separated list; the first is the primary.
	Spacecraft string `koanf:"spacecraft"`

	// Source is "synthetic" or "dir".
	Source string `koanf:"source"`

	// DataDir holds <dataset>.jsond files for the dir source.
	DataDir string `koanf:"data_dir"`

	// Step is the synthetic source's sample spacing.
	Step time.Duration `koanf:"step"`

	// MetricsAddr serves /metrics when set, e.g. ":9090".
	MetricsAddr string `koanf:"metrics_addr"`
}

// New creates a Config with defaults. The default date is two days ago, the
// latest day the archive reliably covers.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		Date:            LatestDate(time.Now()).Format(DateLayout),
		Days:            1,
		Frame:           frame.Inertial.String(),
		Palette1D:       colors.DefaultPalette,
		Palette3D:       colors.DefaultPalette,
		Shades:          colors.DefaultShades,
		ClockMultiplier: scene.DefaultMultiplier,
		Spacecraft:      strings.Join(datasource.Spacecraft, ","),
		Source:          SourceSynthetic,
		Step:            datasource.DefaultStep,
	}
}

// LatestDate returns the start of the UTC day two days before now.
func LatestDate(now time.Time) time.Time {
	return datasource.DayRange(now).Start.AddDate(0, 0, -2)
}

// SpacecraftIDs splits Spacecraft.
func (c *Config) SpacecraftIDs() []string {
	var ids []string
	for _, id := range strings.Split(c.Spacecraft, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

// Range returns the configured time range.
func (c *Config) Range() (datasource.TimeRange, error) {
	d, err := time.Parse(DateLayout, c.Date)
	if err != nil {
		return datasource.TimeRange{}, fmt.Errorf("%w: date %q: %w", ErrInvalidConfig, c.Date, err)
	}
	r := datasource.DayRange(d)
	r.End = r.Start.AddDate(0, 0, c.Days)
	return r, nil
}

// Validate checks every field.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	if c.Days < 1 {
		return fmt.Errorf("%w: days must be at least 1", ErrInvalidConfig)
	}
	r, err := c.Range()
	if err != nil {
		return err
	}
	if latest := LatestDate(time.Now()); r.Start.After(latest) {
		return fmt.Errorf("%w: date %s is after %s", ErrInvalidConfig, c.Date, latest.Format(DateLayout))
	}
	if _, err := frame.Parse(c.Frame); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Shades < 2 {
		return fmt.Errorf("%w: shades must be at least 2", ErrInvalidConfig)
	}
	if c.ClockMultiplier <= 0 {
		return fmt.Errorf("%w: clock_multiplier must be positive", ErrInvalidConfig)
	}
	ids := c.SpacecraftIDs()
	if len(ids) == 0 {
		return fmt.Errorf("%w: spacecraft must not be empty", ErrInvalidConfig)
	}
	for _, id := range ids {
		if !slices.Contains(datasource.Spacecraft, id) {
			return fmt.Errorf("%w: unknown spacecraft %q", ErrInvalidConfig, id)
		}
	}
	switch c.Source {
	case SourceSynthetic:
		if c.Step <= 0 {
			return fmt.Errorf("%w: step must be positive", ErrInvalidConfig)
		}
	case SourceDir:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir is required for the dir source", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: source %q", ErrInvalidConfig, c.Source)
	}
	return nil
}

// Settings converts the viewer part of the configuration.
func (c *Config) Settings() (viewer.Settings, error) {
	r, err := c.Range()
	if err != nil {
		return viewer.Settings{}, err
	}
	fr, err := frame.Parse(c.Frame)
	if err != nil {
		return viewer.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	s := viewer.Settings{
		Range:            r,
		Frame:            fr,
		Dataset1D:        c.Dataset1D,
		Dataset3D:        c.Dataset3D,
		Palette1D:        c.Palette1D,
		Palette3D:        c.Palette3D,
		FormationVisible: c.Formation,
	}
	if err := s.Validate(); err != nil {
		return viewer.Settings{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return s, nil
}
