package exporter

import (
	"strconv"

	"sdmxcli/internal/reshape"
	"sdmxcli/pkg/contracts/domain"
)

// TabularLong renders a long table as headers plus string records.
// Missing values render as empty cells, never as zero.
func TabularLong(table *domain.Table) ([]string, [][]string) {
	headers := []string{"indicator", "iso3", "country_name", "period"}
	headers = append(headers, table.DimensionColumns...)
	headers = append(headers, "value")

	records := make([][]string, 0, len(table.Observations))
	for _, obs := range table.Observations {
		record := []string{obs.Indicator, obs.ISO3, obs.CountryName, strconv.Itoa(obs.Period)}
		for _, d := range table.DimensionColumns {
			record = append(record, obs.Dimensions[d])
		}
		record = append(record, formatValue(obs.Value))
		records = append(records, record)
	}
	return headers, records
}

// TabularWide renders a pivoted table.
func TabularWide(wide *reshape.WideTable) ([]string, [][]string) {
	headers := append([]string{}, wide.KeyColumns...)
	headers = append(headers, wide.PivotColumns...)

	records := make([][]string, 0, len(wide.Rows))
	for _, row := range wide.Rows {
		record := append([]string{}, row.Keys...)
		for _, col := range wide.PivotColumns {
			if v, ok := row.Values[col]; ok {
				record = append(record, formatValue(v))
			} else {
				record = append(record, "")
			}
		}
		records = append(records, record)
	}
	return headers, records
}

func formatValue(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'g', -1, 64)
}
