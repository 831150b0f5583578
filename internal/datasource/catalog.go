package datasource

import (
	"fmt"
)

// Parameter describes a plottable MMS quantity.
type Parameter struct {
	// ID is the dataset suffix, e.g. "dfg_srvy_ql".
	ID    string
	Name  string
	Units string
	// Fields are the value columns; three for vector parameters.
	Fields []string
}

// Vector reports whether the parameter has three components.
func (p Parameter) Vector() bool {
	return len(p.Fields) == 3
}

// Dataset returns the per-spacecraft dataset name.
func (p Parameter) Dataset(sc string) string {
	return sc + "_" + p.ID
}

// Query builds the fetch for this parameter over r.
func (p Parameter) Query(sc string, r TimeRange) Query {
	return Query{Dataset: p.Dataset(sc), Range: r, Fields: p.Fields}
}

// OrbitColorParameters are scalar parameters used to color the orbit path.
var OrbitColorParameters = []Parameter{
	{
		ID:     "fpi_fast_ql_des",
		Name:   "FPI Fast Ion Number Density",
		Units:  "cm^-3",
		Fields: []string{"des_numberdensity_fast"},
	},
	{
		ID:     "hpca_srvy_l1b_moments",
		Name:   "HPCA H+ Scalar Temperature",
		Units:  "eV",
		Fields: []string{"hpca_hplus_scalar_temperature"},
	},
	{
		ID:     "hpca_srvy_l1b_moments_nd",
		Name:   "HPCA H+ Number Density",
		Units:  "cm^-3",
		Fields: []string{"hpca_hplus_number_density"},
	},
}

// WhiskerParameters are vector parameters drawn as whiskers along the orbit.
var WhiskerParameters = []Parameter{
	{
		ID:     "dfg_srvy_ql",
		Name:   "Magnetic Field Vector",
		Units:  "nT",
		Fields: []string{"Bx", "By", "Bz"},
	},
	{
		ID:     "fpi_fast_ql_des_bulkv_dbcs",
		Name:   "Electron Bulk Velocity Vector",
		Units:  "km/s",
		Fields: []string{"Vx", "Vy", "Vz"},
	},
}

// LookupParameter finds a catalog parameter by id. The empty id means "none"
// and returns ok=false without error.
func LookupParameter(id string) (Parameter, bool, error) {
	if id == "" {
		return Parameter{}, false, nil
	}
	for _, p := range OrbitColorParameters {
		if p.ID == id {
			return p, true, nil
		}
	}
	for _, p := range WhiskerParameters {
		if p.ID == id {
			return p, true, nil
		}
	}
	return Parameter{}, false, fmt.Errorf("%w: %q", ErrUnknownParameter, id)
}
