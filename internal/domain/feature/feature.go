// Package feature defines the canonical feature schema shared by training and serving.
//
// The order of Schema is the column order of every matrix the model sees. Nothing else
// in the module may hard-code feature names or their order.
package feature

import (
	"fmt"
	"math"
)

// Name identifies a feature column.
type Name string

// Feature names in canonical order.
const (
	Hour          Name = "hour"
	LightingScore Name = "lighting_score"
	PoliceStnDist Name = "police_stn_dist"
	PastIncidents Name = "past_incidents"
	CrowdDensity  Name = "crowd_density"
)

const (
	// Target is the label column.
	Target = "risk_score"
	// BlockID is the informational grouping column, never a model input.
	BlockID = "block_id"
)

// Kind is the numeric type of a feature.
type Kind string

// Feature kinds.
const (
	Integer Kind = "integer"
	Float   Kind = "float"
)

// Field describes one input column: its key, type, domain and serve-time default.
type Field struct {
	Name    Name
	Kind    Kind
	Min     float64
	Max     float64 // +Inf when unbounded
	Default float64
	Unit    string
}

// InDomain reports whether v lies within the field's documented domain.
func (f Field) InDomain(v float64) bool {
	return v >= f.Min && v <= f.Max
}

var schema = [...]Field{
	{Name: Hour, Kind: Integer, Min: 0, Max: 23, Default: 12, Unit: "hour of day"},
	{Name: LightingScore, Kind: Integer, Min: 0, Max: 10, Default: 5, Unit: "0=dark, 10=bright"},
	{Name: PoliceStnDist, Kind: Float, Min: 0, Max: math.Inf(1), Default: 1.0, Unit: "km"},
	{Name: PastIncidents, Kind: Integer, Min: 0, Max: math.Inf(1), Default: 0, Unit: "count"},
	{Name: CrowdDensity, Kind: Integer, Min: 0, Max: 10, Default: 5, Unit: "0=empty, 10=crowded"},
}

// Count is the number of model inputs.
const Count = len(schema)

// Schema returns the input fields in canonical order.
func Schema() []Field {
	out := make([]Field, Count)
	copy(out, schema[:])
	return out
}

// Names returns the input column names in canonical order.
func Names() []string {
	out := make([]string, Count)
	for i, f := range schema {
		out[i] = string(f.Name)
	}
	return out
}

// Columns returns the full tabular header: block id, inputs, target.
func Columns() []string {
	cols := make([]string, 0, Count+2)
	cols = append(cols, BlockID)
	cols = append(cols, Names()...)
	return append(cols, Target)
}

// Lookup returns the field definition by name.
func Lookup(n Name) (Field, bool) {
	for _, f := range schema {
		if f.Name == n {
			return f, true
		}
	}
	return Field{}, false
}

// SameOrder reports whether names equals the canonical input order exactly.
func SameOrder(names []string) bool {
	if len(names) != Count {
		return false
	}
	for i, f := range schema {
		if names[i] != string(f.Name) {
			return false
		}
	}
	return true
}

// Vector is one set of model inputs.
type Vector struct {
	Hour          int     `json:"hour" yaml:"hour"`
	LightingScore int     `json:"lighting_score" yaml:"lighting_score"`
	PoliceStnDist float64 `json:"police_stn_dist" yaml:"police_stn_dist"`
	PastIncidents int     `json:"past_incidents" yaml:"past_incidents"`
	CrowdDensity  int     `json:"crowd_density" yaml:"crowd_density"`
}

// Defaults returns the vector used when a caller supplies no fields at all.
func Defaults() Vector {
	var v Vector
	for _, f := range schema {
		v.set(f.Name, f.Default)
	}
	return v
}

// Get returns the value of the named feature.
func (v Vector) Get(n Name) float64 {
	switch n {
	case Hour:
		return float64(v.Hour)
	case LightingScore:
		return float64(v.LightingScore)
	case PoliceStnDist:
		return v.PoliceStnDist
	case PastIncidents:
		return float64(v.PastIncidents)
	case CrowdDensity:
		return float64(v.CrowdDensity)
	}
	return math.NaN()
}

func (v *Vector) set(n Name, x float64) {
	switch n {
	case Hour:
		v.Hour = int(x)
	case LightingScore:
		v.LightingScore = int(x)
	case PoliceStnDist:
		v.PoliceStnDist = x
	case PastIncidents:
		v.PastIncidents = int(x)
	case CrowdDensity:
		v.CrowdDensity = int(x)
	}
}

// Values returns the inputs as a single matrix row in canonical order.
func (v Vector) Values() []float64 {
	out := make([]float64, Count)
	for i, f := range schema {
		out[i] = v.Get(f.Name)
	}
	return out
}

// FromValues builds a Vector from a row in canonical order.
func FromValues(row []float64) (Vector, error) {
	if len(row) != Count {
		return Vector{}, fmt.Errorf("expected %d values, got %d", Count, len(row))
	}
	var v Vector
	for i, f := range schema {
		v.set(f.Name, row[i])
	}
	return v, nil
}

// OutOfRange lists the fields whose values fall outside their documented domain.
func (v Vector) OutOfRange() []Name {
	var out []Name
	for _, f := range schema {
		if !f.InDomain(v.Get(f.Name)) {
			out = append(out, f.Name)
		}
	}
	return out
}
