package domain

// PeriodMode selects how the time window of a query is interpreted.
type PeriodMode string

const (
	PeriodYear       PeriodMode = "year"   // a single year
	PeriodRange      PeriodMode = "range"  // an inclusive year range
	PeriodLatest     PeriodMode = "latest" // most recent observation per series
	PeriodMostRecent PeriodMode = "mrv"    // most recent N observations per series
	PeriodCirca      PeriodMode = "circa"  // observation nearest to a target year
)

// PeriodSpec describes the requested time window. Latest, MostRecent and
// Circa are resolved client-side after fetch; Year and Range are pushed
// down to the remote API as startPeriod/endPeriod.
type PeriodSpec struct {
	Mode  PeriodMode `json:"mode" yaml:"mode" validate:"required,oneof=year range latest mrv circa"`
	Year  int        `json:"year,omitempty" yaml:"year,omitempty"`
	Start int        `json:"start,omitempty" yaml:"start,omitempty"`
	End   int        `json:"end,omitempty" yaml:"end,omitempty"`
	N     int        `json:"n,omitempty" yaml:"n,omitempty"`
}

// ClientSide reports whether this period spec is resolved after fetch
// rather than rendered into the query string.
func (p PeriodSpec) ClientSide() bool {
	switch p.Mode {
	case PeriodLatest, PeriodMostRecent, PeriodCirca:
		return true
	}
	return false
}

// OutputFormat selects the shape of the returned table.
type OutputFormat string

const (
	FormatLong          OutputFormat = "long"
	FormatWideYear      OutputFormat = "wide-year"
	FormatWideIndicator OutputFormat = "wide-indicator"
)

// QuerySpec is the fully resolved description of one data request. Two
// identical QuerySpecs must always produce byte-identical query strings.
type QuerySpec struct {
	DataflowID       string              `json:"dataflow_id" yaml:"dataflow_id" validate:"required"`
	Agency           string              `json:"agency" yaml:"agency" validate:"required"`
	Indicators       []string            `json:"indicators" yaml:"indicators" validate:"required,min=1,dive,required"`
	Countries        []string            `json:"countries" yaml:"countries" validate:"dive,len=3"`
	Period           PeriodSpec          `json:"period" yaml:"period"`
	Filters          map[string][]string `json:"filters,omitempty" yaml:"filters,omitempty"`
	BypassFilters    bool                `json:"bypass_filters" yaml:"bypass_filters"`
	ClientSideFilter bool                `json:"client_side_filter" yaml:"client_side_filter"`
}
