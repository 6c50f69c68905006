// Package reshape produces the long, wide-by-year and wide-by-indicator
// views of a normalized table. Pivots preserve row uniqueness and never
// drop observations: melting a wide result reproduces the original long
// set exactly.
package reshape

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// yearColumnPrefix names pivoted period columns (yr2020, yr2021, ...).
const yearColumnPrefix = "yr"

// Core key column names used in wide views.
const (
	colIndicator   = "indicator"
	colISO3        = "iso3"
	colCountryName = "country_name"
)

// SelectFormat maps mutually exclusive format switches onto one output
// format. Requesting two at once is an error, never a precedence rule.
func SelectFormat(long, wideYear, wideIndicator bool) (domain.OutputFormat, error) {
	var selected []string
	if long {
		selected = append(selected, string(domain.FormatLong))
	}
	if wideYear {
		selected = append(selected, string(domain.FormatWideYear))
	}
	if wideIndicator {
		selected = append(selected, string(domain.FormatWideIndicator))
	}
	switch len(selected) {
	case 0:
		return domain.FormatLong, nil
	case 1:
		return domain.OutputFormat(selected[0]), nil
	default:
		return "", apperrors.NewConflictingFormatError(selected)
	}
}

// WideTable is a pivoted view. Values holds only cells that exist in
// the long set; a present-but-nil cell is an observation with a missing
// value, an absent key is no observation at all.
type WideTable struct {
	KeyColumns   []string
	PivotColumns []string
	Rows         []WideRow
}

// WideRow is one pivoted row, keys aligned with KeyColumns.
type WideRow struct {
	Keys   []string
	Values map[string]*float64
}

// WideByYear pivots period into yrNNNN columns. Row identifiers are the
// remaining composite-key columns (indicator, iso3, disaggregations).
func WideByYear(table *domain.Table) (*WideTable, error) {
	keyCols := keyColumns(table, true)

	years := map[int]bool{}
	for _, obs := range table.Observations {
		years[obs.Period] = true
	}
	pivotCols := make([]string, 0, len(years))
	for y := range years {
		pivotCols = append(pivotCols, fmt.Sprintf("%s%d", yearColumnPrefix, y))
	}
	sort.Strings(pivotCols)

	wide, err := pivot(table, keyCols, pivotCols, func(obs domain.Observation) string {
		return fmt.Sprintf("%s%d", yearColumnPrefix, obs.Period)
	})
	if err != nil {
		return nil, err
	}
	return wide, verifyNoLoss(wide, len(table.Observations))
}

// WideByIndicator pivots indicator codes into columns. Only valid for
// indicators from the same dataflow; the resolver enforces that before
// any network call.
func WideByIndicator(table *domain.Table) (*WideTable, error) {
	keyCols := keyColumns(table, false)

	codes := map[string]bool{}
	for _, obs := range table.Observations {
		codes[obs.Indicator] = true
	}
	pivotCols := make([]string, 0, len(codes))
	for c := range codes {
		pivotCols = append(pivotCols, c)
	}
	sort.Strings(pivotCols)

	wide, err := pivot(table, keyCols, pivotCols, func(obs domain.Observation) string {
		return obs.Indicator
	})
	if err != nil {
		return nil, err
	}
	return wide, verifyNoLoss(wide, len(table.Observations))
}

// keyColumns lists the row-identifier columns for a pivot. byYear keeps
// indicator and drops period; by-indicator keeps period and drops
// indicator. country_name rides along only when present, so it can be
// restored on melt.
func keyColumns(table *domain.Table, byYear bool) []string {
	cols := make([]string, 0, 3+len(table.DimensionColumns))
	if byYear {
		cols = append(cols, colIndicator)
	}
	cols = append(cols, colISO3)
	if hasCountryName(table) {
		cols = append(cols, colCountryName)
	}
	if !byYear {
		cols = append(cols, "period")
	}
	cols = append(cols, table.DimensionColumns...)
	return cols
}

// pivot groups observations by key columns and spreads them across the
// pivot dimension. A collision on (key, pivot column) means a duplicate
// composite key, which is a parsing bug upstream.
func pivot(table *domain.Table, keyCols, pivotCols []string, pivotOf func(domain.Observation) string) (*WideTable, error) {
	index := make(map[string]int)
	wide := &WideTable{KeyColumns: keyCols, PivotColumns: pivotCols}

	for _, obs := range table.Observations {
		keys := keyValues(obs, keyCols)
		rowKey := strings.Join(keys, "\x1f")

		i, ok := index[rowKey]
		if !ok {
			i = len(wide.Rows)
			index[rowKey] = i
			wide.Rows = append(wide.Rows, WideRow{Keys: keys, Values: make(map[string]*float64)})
		}

		col := pivotOf(obs)
		if _, dup := wide.Rows[i].Values[col]; dup {
			return nil, apperrors.NewDataCorruptionError(
				fmt.Sprintf("pivot would duplicate row identifier %v at column %s", keys, col), nil)
		}
		wide.Rows[i].Values[col] = obs.Value
	}

	sort.Slice(wide.Rows, func(a, b int) bool {
		return strings.Join(wide.Rows[a].Keys, "\x1f") < strings.Join(wide.Rows[b].Keys, "\x1f")
	})
	return wide, nil
}

// verifyNoLoss checks the reshape invariant: cell capacity must cover
// every original observation, and the populated cells must match the
// observation count exactly.
func verifyNoLoss(wide *WideTable, observations int) error {
	if len(wide.Rows)*len(wide.PivotColumns) < observations {
		return apperrors.NewDataCorruptionError(
			fmt.Sprintf("pivot lost observations: %d cells for %d observations",
				len(wide.Rows)*len(wide.PivotColumns), observations), nil)
	}
	cells := 0
	for _, row := range wide.Rows {
		cells += len(row.Values)
	}
	if cells != observations {
		return apperrors.NewDataCorruptionError(
			fmt.Sprintf("pivot holds %d cells but table had %d observations", cells, observations), nil)
	}
	return nil
}

// MeltByYear reverses WideByYear, reproducing the long set.
func MeltByYear(wide *WideTable) (*domain.Table, error) {
	return melt(wide, func(obs *domain.Observation, col string) error {
		year, err := strconv.Atoi(strings.TrimPrefix(col, yearColumnPrefix))
		if err != nil {
			return apperrors.NewParsingError(fmt.Sprintf("column %q is not a year column", col), err)
		}
		obs.Period = year
		return nil
	})
}

// MeltByIndicator reverses WideByIndicator.
func MeltByIndicator(wide *WideTable) (*domain.Table, error) {
	return melt(wide, func(obs *domain.Observation, col string) error {
		obs.Indicator = col
		return nil
	})
}

func melt(wide *WideTable, assign func(*domain.Observation, string) error) (*domain.Table, error) {
	table := &domain.Table{}
	for _, keyCol := range wide.KeyColumns {
		switch keyCol {
		case colIndicator, colISO3, colCountryName, "period":
			continue
		}
		table.DimensionColumns = append(table.DimensionColumns, keyCol)
	}

	for _, row := range wide.Rows {
		base := domain.Observation{Dimensions: make(map[string]string)}
		for i, keyCol := range wide.KeyColumns {
			switch keyCol {
			case colIndicator:
				base.Indicator = row.Keys[i]
			case colISO3:
				base.ISO3 = row.Keys[i]
			case colCountryName:
				base.CountryName = row.Keys[i]
			case "period":
				year, err := strconv.Atoi(row.Keys[i])
				if err != nil {
					return nil, apperrors.NewParsingError("period key is not an integer", err)
				}
				base.Period = year
			default:
				if row.Keys[i] != "" {
					base.Dimensions[keyCol] = row.Keys[i]
				}
			}
		}

		for _, col := range wide.PivotColumns {
			value, ok := row.Values[col]
			if !ok {
				continue
			}
			obs := base
			obs.Dimensions = make(map[string]string, len(base.Dimensions))
			for k, v := range base.Dimensions {
				obs.Dimensions[k] = v
			}
			if err := assign(&obs, col); err != nil {
				return nil, err
			}
			obs.Value = value
			table.Observations = append(table.Observations, obs)
		}
	}

	return table, nil
}

func keyValues(obs domain.Observation, keyCols []string) []string {
	keys := make([]string, len(keyCols))
	for i, col := range keyCols {
		switch col {
		case colIndicator:
			keys[i] = obs.Indicator
		case colISO3:
			keys[i] = obs.ISO3
		case colCountryName:
			keys[i] = obs.CountryName
		case "period":
			keys[i] = strconv.Itoa(obs.Period)
		default:
			keys[i] = obs.Dimensions[col]
		}
	}
	return keys
}

func hasCountryName(table *domain.Table) bool {
	for _, obs := range table.Observations {
		if obs.CountryName != "" {
			return true
		}
	}
	return false
}
