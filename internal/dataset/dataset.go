// Package dataset applies post-fetch integrity checks to normalized
// tables: composite-key deduplication and validation of disaggregation
// filters the remote server was asked to apply.
package dataset

import (
	"fmt"
	"sort"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// Deduplicate verifies the composite key is unique across the table.
// The key is built from whichever disaggregation columns are actually
// present, so an indicator with sex+wealth disaggregation gets a 4-part
// key and one with none a 2-part key. A duplicate indicates a parsing
// bug, since the server does not emit true duplicates.
func Deduplicate(table *domain.Table) error {
	seen := make(map[string]bool, len(table.Observations))
	for _, obs := range table.Observations {
		key := obs.CompositeKey(table.DimensionColumns)
		if seen[key] {
			return apperrors.NewDuplicateObservationError(describeKey(obs, table.DimensionColumns))
		}
		seen[key] = true
	}
	return nil
}

// ValidateFilters checks returned rows against the requested dimension
// filters. The remote server is known to sometimes ignore certain
// filters; that is an upstream fidelity defect, so non-compliant rows
// produce a FilterNotHonoredWarning per dimension while the over-broad
// data is still returned. The pipeline never silently pretends the
// filter worked.
func ValidateFilters(table *domain.Table, filters map[string][]string) []domain.Warning {
	if len(filters) == 0 {
		return nil
	}

	dimensions := make([]string, 0, len(filters))
	for name := range filters {
		dimensions = append(dimensions, name)
	}
	sort.Strings(dimensions)

	var warnings []domain.Warning
	for _, name := range dimensions {
		canonical := canonicalDimension(name)
		if !table.HasDimension(canonical) {
			continue
		}
		allowed := make(map[string]bool, len(filters[name]))
		for _, v := range filters[name] {
			allowed[v] = true
		}

		offending := 0
		for _, obs := range table.Observations {
			if v, ok := obs.Dimensions[canonical]; ok && !allowed[v] {
				offending++
			}
		}
		if offending > 0 {
			warnings = append(warnings, domain.Warning{
				Code:      domain.WarningFilterNotHonored,
				Dimension: canonical,
				Count:     offending,
				Message: fmt.Sprintf("server returned %d rows outside the requested %s filter",
					offending, canonical),
			})
		}
	}
	return warnings
}

// ApplyClientFilter drops rows outside the requested filters. This is
// the explicit opt-in convenience for servers that ignore filters; it
// is never applied silently.
func ApplyClientFilter(table *domain.Table, filters map[string][]string) *domain.Table {
	if len(filters) == 0 {
		return table
	}

	allowed := make(map[string]map[string]bool, len(filters))
	for name, values := range filters {
		set := make(map[string]bool, len(values))
		for _, v := range values {
			set[v] = true
		}
		allowed[canonicalDimension(name)] = set
	}

	out := &domain.Table{
		DimensionColumns: table.DimensionColumns,
		Warnings:         table.Warnings,
	}
	for _, obs := range table.Observations {
		keep := true
		for name, set := range allowed {
			if v, ok := obs.Dimensions[name]; ok && !set[v] {
				keep = false
				break
			}
		}
		if keep {
			out.Observations = append(out.Observations, obs)
		}
	}
	return out
}

// Merge combines per-indicator tables into one, unioning dimension
// columns in first-seen order and concatenating warnings.
func Merge(tables []*domain.Table) *domain.Table {
	out := &domain.Table{}
	seen := make(map[string]bool)
	for _, t := range tables {
		if t == nil {
			continue
		}
		for _, d := range t.DimensionColumns {
			if !seen[d] {
				seen[d] = true
				out.DimensionColumns = append(out.DimensionColumns, d)
			}
		}
		out.Observations = append(out.Observations, t.Observations...)
		out.Warnings = append(out.Warnings, t.Warnings...)
	}
	return out
}

// canonicalDimension lowercases remote dimension names so filters can
// be given either as SEX or sex.
func canonicalDimension(name string) string {
	return strings.ToLower(name)
}

func describeKey(obs domain.Observation, dimensions []string) string {
	desc := fmt.Sprintf("%s/%s/%d", obs.Indicator, obs.ISO3, obs.Period)
	for _, d := range dimensions {
		if v, ok := obs.Dimensions[d]; ok {
			desc += fmt.Sprintf("/%s=%s", d, v)
		}
	}
	return desc
}
