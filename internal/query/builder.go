// Package query renders QuerySpecs into SDMX REST query strings. The
// remote API is positional: the filter expression must follow the
// dataflow schema's declared dimension order, never request order. The
// builder is deterministic, so identical specs always produce
// byte-identical query strings.
package query

import (
	"fmt"
	"sort"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// Dimension names with fixed roles in the key.
const (
	dimRefArea   = "REF_AREA"
	dimIndicator = "INDICATOR"
)

// multiValueSep joins multiple values within one key position.
const multiValueSep = "+"

// Builder renders query strings for one response format.
type Builder struct {
	format string
}

// NewBuilder creates a builder emitting the given response format
// (typically "csv").
func NewBuilder(format string) *Builder {
	if format == "" {
		format = "csv"
	}
	return &Builder{format: format}
}

// Build renders the spec against the dataflow schema into a relative
// query path like
//
//	data/UNICEF,CME,1.0/BRA+USA.CME_MRY0T4._T?format=csv&startPeriod=2020&endPeriod=2020
//
// Multi-value positions join sorted values with "+"; omitted dimensions
// default to the dataflow's total code unless BypassFilters leaves them
// unconstrained.
func (b *Builder) Build(flow domain.Dataflow, spec domain.QuerySpec) (string, error) {
	if err := b.checkFilters(flow, spec); err != nil {
		return "", err
	}

	segments := make([]string, 0, len(flow.Dimensions))
	for _, dim := range flow.Dimensions {
		switch dim.Name {
		case dimRefArea:
			segments = append(segments, joinSorted(spec.Countries))
		case dimIndicator:
			segments = append(segments, joinSorted(spec.Indicators))
		default:
			segments = append(segments, b.dimensionSegment(flow, dim, spec))
		}
	}

	version := flow.Version
	if version == "" {
		version = "1.0"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "data/%s,%s,%s/%s?format=%s", flow.Agency, flow.ID, version, strings.Join(segments, "."), b.format)

	switch spec.Period.Mode {
	case domain.PeriodYear:
		fmt.Fprintf(&sb, "&startPeriod=%d&endPeriod=%d", spec.Period.Year, spec.Period.Year)
	case domain.PeriodRange:
		fmt.Fprintf(&sb, "&startPeriod=%d&endPeriod=%d", spec.Period.Start, spec.Period.End)
	}
	// Latest, most-recent and circa are resolved client-side after
	// fetch, so no period bound is rendered for them.

	return sb.String(), nil
}

// BuildURL renders a full URL against the API base.
func (b *Builder) BuildURL(baseURL string, flow domain.Dataflow, spec domain.QuerySpec) (string, error) {
	path, err := b.Build(flow, spec)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(baseURL, "/") + "/" + path, nil
}

// dimensionSegment renders one disaggregation position: the requested
// filter values, the total code, or unconstrained.
func (b *Builder) dimensionSegment(flow domain.Dataflow, dim domain.DimensionSpec, spec domain.QuerySpec) string {
	if spec.BypassFilters {
		return ""
	}
	if values, ok := spec.Filters[dim.Name]; ok && len(values) > 0 {
		return joinSorted(values)
	}
	if dim.HasTotalCode {
		return flow.TotalCode(dim.Name)
	}
	return ""
}

// checkFilters rejects filters on dimensions the dataflow does not
// declare; the positional key would silently shift otherwise.
func (b *Builder) checkFilters(flow domain.Dataflow, spec domain.QuerySpec) error {
	for name := range spec.Filters {
		if name == dimRefArea || name == dimIndicator {
			return apperrors.NewValidationError(
				fmt.Sprintf("dimension %s is set via countries/indicators, not filters", name), nil)
		}
		if _, ok := flow.Dimension(name); !ok {
			return apperrors.NewValidationError(
				fmt.Sprintf("dataflow %s has no dimension %q", flow.ID, name), nil).
				WithContext("dimensions", flow.DimensionNames())
		}
	}
	return nil
}

// joinSorted joins a copy of values in sorted order. Sorting is what
// makes the builder deterministic for set-valued inputs.
func joinSorted(values []string) string {
	if len(values) == 0 {
		return ""
	}
	sorted := make([]string, len(values))
	copy(sorted, values)
	sort.Strings(sorted)
	return strings.Join(sorted, multiValueSep)
}
