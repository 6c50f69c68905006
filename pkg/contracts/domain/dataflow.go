package domain

// DataflowStatus describes the validity of a remote dataflow as observed
// during metadata sync.
type DataflowStatus string

const (
	DataflowLive       DataflowStatus = "live"
	DataflowDeprecated DataflowStatus = "deprecated"
	DataflowEmpty      DataflowStatus = "empty"
)

// DimensionSpec describes one disaggregation axis of a dataflow (sex,
// age, wealth quintile, residence, maternal education, ...).
type DimensionSpec struct {
	Name         string   `json:"name" yaml:"name"`
	AllowedCodes []string `json:"allowed_codes,omitempty" yaml:"allowed_codes,omitempty"`
	HasTotalCode bool     `json:"has_total_code" yaml:"has_total_code"`
}

// Dataflow is a named remote dataset definition. One dataflow may host
// many indicators; one indicator may appear in several dataflows.
type Dataflow struct {
	ID             string            `json:"id" yaml:"id" validate:"required"`
	Agency         string            `json:"agency" yaml:"agency" validate:"required"`
	Version        string            `json:"version,omitempty" yaml:"version,omitempty"`
	Name           string            `json:"name,omitempty" yaml:"name,omitempty"`
	Status         DataflowStatus    `json:"status" yaml:"status"`
	Dimensions     []DimensionSpec   `json:"dimensions" yaml:"dimensions"`
	DefaultFilters map[string]string `json:"default_filters,omitempty" yaml:"default_filters,omitempty"`
}

// DimensionNames returns the declared dimension names in schema order.
// The remote API is positional, so this order is load-bearing for query
// construction.
func (d Dataflow) DimensionNames() []string {
	names := make([]string, 0, len(d.Dimensions))
	for _, dim := range d.Dimensions {
		names = append(names, dim.Name)
	}
	return names
}

// Dimension looks up a DimensionSpec by name.
func (d Dataflow) Dimension(name string) (DimensionSpec, bool) {
	for _, dim := range d.Dimensions {
		if dim.Name == name {
			return dim, true
		}
	}
	return DimensionSpec{}, false
}

// TotalCode returns the aggregate ("total") code used by this dataflow
// for omitted dimensions. The API family targeted here uses _T across
// all known dataflows.
func (d Dataflow) TotalCode(dimension string) string {
	if v, ok := d.DefaultFilters[dimension]; ok {
		return v
	}
	return "_T"
}
