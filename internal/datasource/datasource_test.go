package datasource

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

var day = DayRange(time.Date(2024, 5, 10, 13, 45, 0, 0, time.UTC))

func TestDayRange(t *testing.T) {
	want := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	if !day.Start.Equal(want) || !day.End.Equal(want.Add(24*time.Hour)) {
		t.Errorf("DayRange = %s", day)
	}
	if !day.Contains(want) || day.Contains(day.End) {
		t.Error("range should be half-open")
	}
}

const ephemerisPayload = `{"mms_ephemeris": {
  "parameters": ["time", "sc_id", "x", "y", "z"],
  "data": [
    [1715299200000, "mms1", 1000.5, 2000, 3000],
    [1715299200000, "mms2", 1010, 2000, 3000],
    ["2024-05-10T00:00:30Z", "mms1", 1001, 2001, null],
    [1715385600000, "mms1", 9, 9, 9]
  ]
}}`

func TestDecodeAndSelect(t *testing.T) {
	table, err := DecodeJSOND(strings.NewReader(ephemerisPayload), EphemerisDataset, nil)
	if err != nil {
		t.Fatal(err)
	}

	rows, err := table.Select(Query{
		Dataset: EphemerisDataset,
		Range:   day,
		Fields:  EphemerisFields,
		Filters: map[string]string{"sc_id": "mms1"},
	})
	if err != nil {
		t.Fatal(err)
	}

	// the next-day row falls outside the half-open range
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0].Values[0] != "1000.5" || rows[0].Values[1] != "2000" {
		t.Errorf("row 0 = %v", rows[0].Values)
	}
	if !rows[1].Time.Equal(day.Start.Add(30 * time.Second)) {
		t.Errorf("ISO time parsed as %s", rows[1].Time)
	}
	if rows[1].Values[2] != "" {
		t.Errorf("null cell = %q, want empty", rows[1].Values[2])
	}
}

func TestDecodeFallbackColumns(t *testing.T) {
	payload := `{"mms1_dfg_srvy_ql": {"data": [[1715299200000, 1, 2, 3]]}}`
	table, err := DecodeJSOND(strings.NewReader(payload), "mms1_dfg_srvy_ql", []string{"Bx", "By", "Bz"})
	if err != nil {
		t.Fatal(err)
	}
	rows, err := table.Select(Query{Fields: []string{"Bz", "Bx"}})
	if err != nil {
		t.Fatal(err)
	}
	if got := rows[0].Values; got[0] != "3" || got[1] != "1" {
		t.Errorf("projection = %v", got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{`},
		{"missing dataset", `{"other": {"data": []}}`},
		{"short row", `{"mms_ephemeris": {"parameters": ["time","x"], "data": [[1]]}}`},
		{"bad time", `{"mms_ephemeris": {"parameters": ["time","x"], "data": [["yesterday", 1]]}}`},
		{"time not first", `{"mms_ephemeris": {"parameters": ["x","time"], "data": []}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeJSOND(strings.NewReader(tt.payload), EphemerisDataset, nil)
			if !errors.Is(err, ErrMalformed) {
				t.Errorf("err = %v, want ErrMalformed", err)
			}
		})
	}
}

func TestSelectUnknownField(t *testing.T) {
	table, err := DecodeJSOND(strings.NewReader(ephemerisPayload), EphemerisDataset, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := table.Select(Query{Fields: []string{"w"}}); !errors.Is(err, ErrUnknownField) {
		t.Errorf("err = %v, want ErrUnknownField", err)
	}
}

func TestDirFetch(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, EphemerisDataset+FileExt), []byte(ephemerisPayload), 0o644); err != nil {
		t.Fatal(err)
	}
	dir := NewDir(root)
	ctx := context.Background()

	q := Query{
		Dataset: EphemerisDataset,
		Range:   day,
		Fields:  EphemerisFields,
		Filters: map[string]string{"sc_id": "mms2"},
	}
	rows, err := dir.Fetch(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Values[0] != "1010" {
		t.Errorf("rows = %+v", rows)
	}

	_, err = dir.Fetch(ctx, Query{Dataset: "mms9_nothing", Range: day})
	var fe *FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want *FetchError", err)
	}
	if fe.Dataset != "mms9_nothing" || !errors.Is(err, ErrNotFound) {
		t.Errorf("FetchError = %+v", fe)
	}
}

func TestDirExportThenFetch(t *testing.T) {
	ctx := context.Background()
	src := NewSynthetic(WithStep(time.Hour))
	param := WhiskerParameters[0]
	q := param.Query("mms3", day)

	rows, err := src.Fetch(ctx, q)
	if err != nil {
		t.Fatal(err)
	}

	dir := NewDir(filepath.Join(t.TempDir(), "data"))
	if err := dir.Export(q.Dataset, q.Fields, rows); err != nil {
		t.Fatal(err)
	}
	got, err := dir.Fetch(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(rows) {
		t.Fatalf("got %d rows, want %d", len(got), len(rows))
	}
	for i := range rows {
		if !got[i].Time.Equal(rows[i].Time) {
			t.Fatalf("row %d time %s, want %s", i, got[i].Time, rows[i].Time)
		}
		for k := range rows[i].Values {
			a, _ := strconv.ParseFloat(rows[i].Values[k], 64)
			b, _ := strconv.ParseFloat(got[i].Values[k], 64)
			if math.Abs(a-b) > 1e-9 {
				t.Errorf("row %d col %d = %v, want %v", i, k, b, a)
			}
		}
	}
}

func TestSyntheticEphemeris(t *testing.T) {
	src := NewSynthetic()
	ctx := context.Background()
	q := Query{
		Dataset: EphemerisDataset,
		Range:   day,
		Fields:  EphemerisFields,
		Filters: map[string]string{"sc_id": "mms1"},
	}

	rows, err := src.Fetch(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 2880 {
		t.Errorf("got %d rows, want 2880", len(rows))
	}

	again, _ := src.Fetch(ctx, q)
	if again[100].Values[0] != rows[100].Values[0] {
		t.Error("synthetic data should be deterministic")
	}

	for _, r := range rows[:50] {
		x, _ := strconv.ParseFloat(r.Values[0], 64)
		y, _ := strconv.ParseFloat(r.Values[1], 64)
		z, _ := strconv.ParseFloat(r.Values[2], 64)
		re := math.Sqrt(x*x+y*y+z*z) / earthRadiusKm
		if re < perigeeRe-0.01 || re > apogeeRe+0.01 {
			t.Fatalf("radius %.3f Re outside orbit", re)
		}
	}
}

func TestSyntheticFormationSeparation(t *testing.T) {
	at := day.Start.Add(5 * time.Hour)
	d := OrbitPosition("mms2", at).Sub(OrbitPosition("mms1", at)).Norm()
	if math.Abs(d-10) > 1e-9 {
		t.Errorf("mms1-mms2 separation = %v km, want 10", d)
	}
}

func TestSyntheticScalarGaps(t *testing.T) {
	src := NewSynthetic()
	rows, err := src.Fetch(context.Background(), OrbitColorParameters[0].Query("mms1", day))
	if err != nil {
		t.Fatal(err)
	}
	if rows[96].Values[0] != "" {
		t.Errorf("expected gap at sample 96, got %q", rows[96].Values[0])
	}
	if rows[0].Values[0] == "" {
		t.Error("sample 0 should have a value")
	}
}

func TestSyntheticErrors(t *testing.T) {
	boom := errors.New("boom")
	src := NewSynthetic(WithFailure("mms1_dfg_srvy_ql", boom))
	ctx := context.Background()

	tests := []struct {
		name string
		q    Query
		want error
	}{
		{"injected", WhiskerParameters[0].Query("mms1", day), boom},
		{"unknown spacecraft", WhiskerParameters[0].Query("mms7", day), ErrNotFound},
		{"unknown dataset", Query{Dataset: "mms1_bogus", Range: day}, ErrNotFound},
		{"empty range", WhiskerParameters[1].Query("mms1", TimeRange{Start: day.Start, End: day.Start}), ErrInvalidRange},
		{"unknown field", Query{Dataset: "mms1_dfg_srvy_ql", Range: day, Fields: []string{"Bq"}}, ErrUnknownField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := src.Fetch(ctx, tt.q)
			var fe *FetchError
			if !errors.As(err, &fe) || !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want FetchError wrapping %v", err, tt.want)
			}
		})
	}
}

func TestSyntheticLatencyHonorsContext(t *testing.T) {
	src := NewSynthetic(WithLatency(time.Hour))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := src.Fetch(ctx, WhiskerParameters[0].Query("mms1", day))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestLookupParameter(t *testing.T) {
	p, ok, err := LookupParameter("dfg_srvy_ql")
	if err != nil || !ok || !p.Vector() || p.Dataset("mms1") != "mms1_dfg_srvy_ql" {
		t.Errorf("LookupParameter(dfg) = %+v, %v, %v", p, ok, err)
	}
	if _, ok, err := LookupParameter(""); ok || err != nil {
		t.Error("empty id should mean none")
	}
	if _, _, err := LookupParameter("nope"); !errors.Is(err, ErrUnknownParameter) {
		t.Errorf("err = %v", err)
	}
}

func TestExportRange(t *testing.T) {
	ctx := context.Background()
	src := NewSynthetic(WithStep(time.Hour))
	dir := NewDir(filepath.Join(t.TempDir(), "offline"))

	n, err := ExportRange(ctx, src, dir, day, []string{"mms1", "mms2"})
	if err != nil {
		t.Fatal(err)
	}
	if want := 1 + 2*(len(OrbitColorParameters)+len(WhiskerParameters)); n != want {
		t.Errorf("exported %d datasets, want %d", n, want)
	}

	q := Query{
		Dataset: EphemerisDataset,
		Range:   day,
		Fields:  EphemerisFields,
		Filters: map[string]string{"sc_id": "mms2"},
	}
	want, _ := src.Fetch(ctx, q)
	got, err := dir.Fetch(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != len(want) || len(got) != 24 {
		t.Fatalf("got %d rows, want %d", len(got), len(want))
	}
	x0, _ := strconv.ParseFloat(want[0].Values[0], 64)
	x1, _ := strconv.ParseFloat(got[0].Values[0], 64)
	if math.Abs(x0-x1) > 1e-9 {
		t.Errorf("x = %v, want %v", x1, x0)
	}

	q.Filters["sc_id"] = "mms3"
	if rows, err := dir.Fetch(ctx, q); err != nil || len(rows) != 0 {
		t.Errorf("mms3 was not exported: %d rows, %v", len(rows), err)
	}
	if _, err := dir.Fetch(ctx, WhiskerParameters[1].Query("mms1", day)); err != nil {
		t.Errorf("whisker dataset missing: %v", err)
	}
}
