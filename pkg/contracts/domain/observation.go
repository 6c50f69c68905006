package domain

import (
	"fmt"
	"strings"
)

// Observation is one canonical long-format record. Period is always an
// integer year; Value is nil when the remote reported an explicit
// missing value (never zero, never a sentinel string).
type Observation struct {
	Indicator   string            `json:"indicator"`
	ISO3        string            `json:"iso3"`
	CountryName string            `json:"country_name,omitempty"`
	Period      int               `json:"period"`
	Value       *float64          `json:"value"`
	Dimensions  map[string]string `json:"dimensions,omitempty"`
}

// Dimension returns the value of a disaggregation dimension, or "" when
// the observation does not carry it.
func (o Observation) Dimension(name string) string {
	return o.Dimensions[name]
}

// keySep never occurs in SDMX codes, so joined keys cannot collide.
const keySep = "\x1f"

// CompositeKey builds the unique row identifier from the core fields
// plus the given dimension columns, in order. The dimension list is
// computed at runtime from whichever disaggregation columns the
// response actually carried.
func (o Observation) CompositeKey(dimensions []string) string {
	parts := make([]string, 0, 3+len(dimensions))
	parts = append(parts, o.Indicator, o.ISO3, fmt.Sprintf("%d", o.Period))
	for _, d := range dimensions {
		parts = append(parts, o.Dimensions[d])
	}
	return strings.Join(parts, keySep)
}

// Warning is a non-fatal data-quality signal attached to a result
// instead of failing the query.
type Warning struct {
	Code      string `json:"code"`
	Dimension string `json:"dimension,omitempty"`
	Count     int    `json:"count,omitempty"`
	Message   string `json:"message"`
}

// WarningFilterNotHonored signals that the remote server returned rows
// outside a requested dimension filter. Known upstream defect; the
// over-broad data is still returned.
const WarningFilterNotHonored = "FILTER_NOT_HONORED"

// WarningStaleCache signals that the metadata snapshot used for
// resolution is older than the configured TTL.
const WarningStaleCache = "STALE_CACHE"

// WarningReducedFidelity signals that the metadata snapshot was enriched
// by the fallback schema parser and may classify fewer indicators.
const WarningReducedFidelity = "REDUCED_FIDELITY"

// Table is a set of observations in canonical long format together with
// the ordered list of disaggregation columns present in the response.
type Table struct {
	Observations     []Observation `json:"observations"`
	DimensionColumns []string      `json:"dimension_columns,omitempty"`
	Warnings         []Warning     `json:"warnings,omitempty"`
}

// HasDimension reports whether the table carries the named
// disaggregation column.
func (t *Table) HasDimension(name string) bool {
	for _, d := range t.DimensionColumns {
		if d == name {
			return true
		}
	}
	return false
}
