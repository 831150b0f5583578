// Package datasource defines how the viewer obtains time-tagged MMS datasets
// and provides offline implementations: a directory of LaTiS jsond files and
// a deterministic synthetic generator.
package datasource

import (
	"context"
	"fmt"
	"time"
)

// EphemerisDataset is the combined ephemeris dataset for all spacecraft.
const EphemerisDataset = "mms_ephemeris"

// EphemerisFields are the value columns requested from EphemerisDataset.
var EphemerisFields = []string{"x", "y", "z"}

// Spacecraft lists the MMS constellation ids.
var Spacecraft = []string{"mms1", "mms2", "mms3", "mms4"}

// TimeRange is a half-open interval [Start, End).
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// DayRange returns the UTC day containing t: [start of day, start of next day).
func DayRange(t time.Time) TimeRange {
	u := t.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// Contains reports whether t is inside the range.
func (r TimeRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the range length.
func (r TimeRange) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Equal reports whether both bounds match.
func (r TimeRange) Equal(o TimeRange) bool {
	return r.Start.Equal(o.Start) && r.End.Equal(o.End)
}

// IsZero reports whether the range is unset.
func (r TimeRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// String formats the range as dates.
func (r TimeRange) String() string {
	return fmt.Sprintf("%s..%s", r.Start.UTC().Format("2006-01-02T15:04Z"), r.End.UTC().Format("2006-01-02T15:04Z"))
}

// Query selects rows of one dataset.
type Query struct {
	Dataset string
	Range   TimeRange
	// Fields are the value columns to return, in order. Time is implicit.
	Fields []string
	// Filters are equality constraints such as sc_id=mms1.
	Filters map[string]string
}

// Row is one time-tagged record. Values line up with Query.Fields; absent
// cells are empty strings.
type Row struct {
	Time   time.Time
	Values []string
}

// Source fetches dataset rows.
type Source interface {
	Fetch(ctx context.Context, q Query) ([]Row, error)
}

// FetchError reports a failed dataset fetch.
type FetchError struct {
	Dataset string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.Dataset, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func fetchErr(dataset string, err error) error {
	return &FetchError{Dataset: dataset, Err: err}
}
