package datasource

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"
	"time"
)

// TimeColumn is the name of the time column in jsond payloads.
const TimeColumn = "time"

// Table is a decoded jsond dataset. Cells are kept as strings; the time
// column has already been parsed.
type Table struct {
	Columns []string
	Times   []time.Time
	Cells   [][]string
}

type jsondBody struct {
	Parameters []string            `json:"parameters,omitempty"`
	Data       [][]json.RawMessage `json:"data"`
}

// DecodeJSOND decodes a LaTiS jsond payload of the form
// {"<dataset>": {"parameters": [...], "data": [[...], ...]}}.
// When "parameters" is absent the columns are assumed to be time followed by
// fallback.
func DecodeJSOND(r io.Reader, dataset string, fallback []string) (*Table, error) {
	var doc map[string]jsondBody
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	body, ok := doc[dataset]
	if !ok {
		return nil, fmt.Errorf("%w: no %q object", ErrMalformed, dataset)
	}

	cols := body.Parameters
	if len(cols) == 0 {
		cols = append([]string{TimeColumn}, fallback...)
	}
	if cols[0] != TimeColumn {
		return nil, fmt.Errorf("%w: first column is %q, want %q", ErrMalformed, cols[0], TimeColumn)
	}

	t := &Table{
		Columns: cols,
		Times:   make([]time.Time, 0, len(body.Data)),
		Cells:   make([][]string, 0, len(body.Data)),
	}
	for i, raw := range body.Data {
		if len(raw) != len(cols) {
			return nil, fmt.Errorf("%w: row %d has %d cells, want %d", ErrMalformed, i, len(raw), len(cols))
		}
		ts, err := parseTime(raw[0])
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %v", ErrMalformed, i, err)
		}
		cells := make([]string, len(cols)-1)
		for j, c := range raw[1:] {
			cells[j] = cellString(c)
		}
		t.Times = append(t.Times, ts)
		t.Cells = append(t.Cells, cells)
	}
	return t, nil
}

// Select applies q's time range, filters and projection.
func (t *Table) Select(q Query) ([]Row, error) {
	index := make(map[string]int, len(t.Columns))
	for i, c := range t.Columns[1:] {
		index[c] = i
	}

	proj := make([]int, len(q.Fields))
	for i, f := range q.Fields {
		j, ok := index[f]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
		proj[i] = j
	}

	type filter struct {
		col  int
		want string
	}
	var filters []filter
	for k, v := range q.Filters {
		j, ok := index[k]
		if !ok {
			return nil, fmt.Errorf("%w: filter %q", ErrUnknownField, k)
		}
		filters = append(filters, filter{col: j, want: v})
	}

	var rows []Row
rowLoop:
	for i, ts := range t.Times {
		if !q.Range.IsZero() && !q.Range.Contains(ts) {
			continue
		}
		cells := t.Cells[i]
		for _, f := range filters {
			if cells[f.col] != f.want {
				continue rowLoop
			}
		}
		vals := make([]string, len(proj))
		for k, j := range proj {
			vals[k] = cells[j]
		}
		rows = append(rows, Row{Time: ts, Values: vals})
	}
	return rows, nil
}

// EncodeJSOND writes rows as a jsond payload with an explicit parameters list.
// Time is written as epoch milliseconds; numeric-looking cells are written
// as numbers and empty cells as null.
func EncodeJSOND(w io.Writer, dataset string, fields []string, rows []Row) error {
	data := make([][]any, len(rows))
	for i, r := range rows {
		rec := make([]any, 0, len(fields)+1)
		rec = append(rec, r.Time.UnixMilli())
		for _, v := range r.Values {
			rec = append(rec, cellValue(v))
		}
		data[i] = rec
	}
	doc := map[string]any{
		dataset: map[string]any{
			"parameters": append([]string{TimeColumn}, fields...),
			"data":       data,
		},
	}
	enc := json.NewEncoder(w)
	return enc.Encode(doc)
}

func parseTime(raw json.RawMessage) (time.Time, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		ms, err := n.Float64()
		if err != nil {
			return time.Time{}, err
		}
		return time.UnixMilli(int64(math.Round(ms))).UTC(), nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}, fmt.Errorf("time cell %s", string(raw))
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.000", "2006-01-02T15:04:05", "2006-01-02"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("time cell %q", s)
}

func cellString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	// null and anything else count as absent
	return ""
}

func cellValue(v string) any {
	if v == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return json.Number(strconv.FormatFloat(f, 'g', -1, 64))
	}
	return v
}
