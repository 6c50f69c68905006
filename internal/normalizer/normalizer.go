// Package normalizer parses raw SDMX payloads (delimited text or XML)
// into canonical long-format observations with standardized field names
// and types. Periods are always integer years; values are numeric or
// explicitly missing, never empty strings or sentinel text.
package normalizer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

// Canonical column names.
const (
	colIndicator   = "indicator"
	colISO3        = "iso3"
	colCountryName = "country_name"
	colPeriod      = "period"
	colValue       = "value"
)

// renameTable maps remote dimension codes to canonical lowercase names.
// Fixed by the API contract.
var renameTable = map[string]string{
	"INDICATOR":        colIndicator,
	"REF_AREA":         colISO3,
	"TIME_PERIOD":      colPeriod,
	"OBS_VALUE":        colValue,
	"SEX":              "sex",
	"AGE":              "age",
	"WEALTH_QUINTILE":  "wealth_quintile",
	"RESIDENCE":        "residence",
	"MATERNAL_EDU_LVL": "maternal_edu_lvl",
}

// ignoredColumns are attribute columns that are neither core fields nor
// disaggregation dimensions.
var ignoredColumns = map[string]bool{
	"DATAFLOW":         true,
	"UNIT_MEASURE":     true,
	"UNIT_MULTIPLIER":  true,
	"OBS_STATUS":       true,
	"OBS_CONF":         true,
	"OBS_FOOTNOTE":     true,
	"SERIES_FOOTNOTE":  true,
	"LOWER_BOUND":      true,
	"UPPER_BOUND":      true,
	"DATA_SOURCE":      true,
	"SOURCE_LINK":      true,
	"CUSTODIAN":        true,
	"REF_PERIOD":       true,
	"COVERAGE_TIME":    true,
	"WGTD_SAMPL_SIZE":  true,
	"TIME_PERIOD_METHOD": true,
}

// missing value sentinels treated as explicitly absent, never zero.
var missingSentinels = map[string]bool{
	"":    true,
	"na":  true,
	"n/a": true,
	"null": true,
	"nan": true,
}

var leadingYearRe = regexp.MustCompile(`^(\d{4})`)

// Normalizer parses raw payloads into canonical tables.
type Normalizer struct{}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{}
}

// Normalize detects the payload format and parses it. A payload whose
// first non-space byte is '<' is treated as SDMX-ML, anything else as
// delimited text.
func (n *Normalizer) Normalize(payload []byte) (*domain.Table, error) {
	trimmed := bytes.TrimLeft(payload, " \t\r\n\xef\xbb\xbf")
	if len(trimmed) == 0 {
		return &domain.Table{}, nil
	}
	if trimmed[0] == '<' {
		return n.parseXML(trimmed)
	}
	return n.parseCSV(trimmed)
}

// columnKind classifies a header column.
type columnKind int

const (
	kindIgnore columnKind = iota
	kindCore
	kindDimension
)

type column struct {
	kind columnKind
	name string // canonical name
}

// classifyColumn maps one remote header to its canonical role. Headers
// may carry a label suffix ("REF_AREA:Geographic area"); only the code
// part counts. Unknown non-attribute columns are kept as extra
// disaggregation dimensions under their lowercase name.
func classifyColumn(header string) column {
	code := strings.TrimSpace(header)
	if i := strings.Index(code, ":"); i >= 0 {
		code = strings.TrimSpace(code[:i])
	}
	code = strings.ToUpper(code)

	if ignoredColumns[code] {
		return column{kind: kindIgnore}
	}
	if canonical, ok := renameTable[code]; ok {
		switch canonical {
		case colIndicator, colISO3, colPeriod, colValue:
			return column{kind: kindCore, name: canonical}
		}
		return column{kind: kindDimension, name: canonical}
	}
	return column{kind: kindDimension, name: strings.ToLower(code)}
}

// parseCSV parses delimited text with a header row.
func (n *Normalizer) parseCSV(payload []byte) (*domain.Table, error) {
	reader := csv.NewReader(bytes.NewReader(payload))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, apperrors.NewParsingError("failed to read response header", err)
	}

	columns := make([]column, len(header))
	seen := make(map[string]bool)
	var dimensionOrder []string
	for i, h := range header {
		columns[i] = classifyColumn(h)
		if columns[i].kind == kindDimension && !seen[columns[i].name] {
			seen[columns[i].name] = true
			dimensionOrder = append(dimensionOrder, columns[i].name)
		}
	}
	for _, core := range []string{colISO3, colPeriod, colValue} {
		if !hasCore(columns, core) {
			return nil, apperrors.NewParsingError(
				fmt.Sprintf("response is missing required column %s", core), nil)
		}
	}

	table := &domain.Table{DimensionColumns: dimensionOrder}
	rowNum := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("malformed row %d", rowNum), err)
		}
		rowNum++

		obs := domain.Observation{Dimensions: make(map[string]string)}
		for i, cell := range record {
			if i >= len(columns) {
				break
			}
			col := columns[i]
			code, label := splitCodeLabel(cell)
			switch col.kind {
			case kindIgnore:
				continue
			case kindCore:
				switch col.name {
				case colIndicator:
					obs.Indicator = code
				case colISO3:
					obs.ISO3 = code
					if label != "" {
						obs.CountryName = label
					}
				case colPeriod:
					year, err := ParseYear(code)
					if err != nil {
						return nil, err
					}
					obs.Period = year
				case colValue:
					value, err := parseValue(cell, rowNum)
					if err != nil {
						return nil, err
					}
					obs.Value = value
				}
			case kindDimension:
				if code != "" {
					obs.Dimensions[col.name] = code
				}
			}
		}
		table.Observations = append(table.Observations, obs)
	}

	table.DimensionColumns = presentDimensions(table)
	return table, nil
}

// ParseYear extracts the leading 4-digit year from a period code, so
// sub-annual codes like "2020-Q1" collapse to 2020.
func ParseYear(raw string) (int, error) {
	m := leadingYearRe.FindString(strings.TrimSpace(raw))
	if m == "" {
		return 0, apperrors.NewMalformedPeriodError(raw)
	}
	return strconv.Atoi(m)
}

// parseValue coerces an observation value. Missing sentinels map to
// nil; anything else that fails numeric parsing is data corruption,
// never a silent drop, because silent drops would change observation
// counts unexpectedly.
func parseValue(raw string, row int) (*float64, error) {
	s := strings.TrimSpace(raw)
	if missingSentinels[strings.ToLower(s)] {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, apperrors.NewDataCorruptionError(
			fmt.Sprintf("unparseable value %q at row %d", raw, row), err)
	}
	return &v, nil
}

// splitCodeLabel separates "CODE: Label" cells emitted when the server
// includes labels. Plain codes pass through unchanged.
func splitCodeLabel(cell string) (code, label string) {
	cell = strings.TrimSpace(cell)
	if i := strings.Index(cell, ": "); i > 0 {
		return strings.TrimSpace(cell[:i]), strings.TrimSpace(cell[i+2:])
	}
	return cell, ""
}

// presentDimensions keeps only dimension columns that actually carry a
// value somewhere in the table, preserving header order. The composite
// key is computed from this list.
func presentDimensions(table *domain.Table) []string {
	var out []string
	for _, name := range table.DimensionColumns {
		for _, obs := range table.Observations {
			if _, ok := obs.Dimensions[name]; ok {
				out = append(out, name)
				break
			}
		}
	}
	return out
}

func hasCore(columns []column, name string) bool {
	for _, c := range columns {
		if c.kind == kindCore && c.name == name {
			return true
		}
	}
	return false
}
