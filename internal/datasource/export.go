package datasource

import (
	"context"
	"fmt"
)

// ExportRange copies the ephemeris of every spacecraft and every catalog
// parameter over r from src into dst, so dst can later serve the range
// offline. It returns the number of datasets written.
func ExportRange(ctx context.Context, src Source, dst *Dir, r TimeRange, spacecraft []string) (int, error) {
	// the combined ephemeris keeps sc_id so Dir can filter on it
	fields := append([]string{"sc_id"}, EphemerisFields...)
	var ephem []Row
	for _, sc := range spacecraft {
		rows, err := src.Fetch(ctx, Query{
			Dataset: EphemerisDataset,
			Range:   r,
			Fields:  fields,
			Filters: map[string]string{"sc_id": sc},
		})
		if err != nil {
			return 0, err
		}
		ephem = append(ephem, rows...)
	}
	if err := dst.Export(EphemerisDataset, fields, ephem); err != nil {
		return 0, err
	}
	n := 1

	params := append(append([]Parameter(nil), OrbitColorParameters...), WhiskerParameters...)
	for _, sc := range spacecraft {
		for _, p := range params {
			q := p.Query(sc, r)
			rows, err := src.Fetch(ctx, q)
			if err != nil {
				return n, err
			}
			if err := dst.Export(q.Dataset, q.Fields, rows); err != nil {
				return n, fmt.Errorf("export %s: %w", q.Dataset, err)
			}
			n++
		}
	}
	return n, nil
}
