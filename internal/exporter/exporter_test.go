package exporter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"sdmxcli/internal/reshape"
	"sdmxcli/pkg/contracts/domain"
)

func fv(v float64) *float64 { return &v }

func TestTabularLong(t *testing.T) {
	table := &domain.Table{
		DimensionColumns: []string{"sex"},
		Observations: []domain.Observation{
			{Indicator: "CME_MRY0T4", ISO3: "BRA", CountryName: "Brazil", Period: 2020, Value: fv(13.9), Dimensions: map[string]string{"sex": "_T"}},
			{Indicator: "CME_MRY0T4", ISO3: "KEN", CountryName: "Kenya", Period: 2020, Value: nil, Dimensions: map[string]string{"sex": "_T"}},
		},
	}

	headers, records := TabularLong(table)
	assert.Equal(t, []string{"indicator", "iso3", "country_name", "period", "sex", "value"}, headers)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"CME_MRY0T4", "BRA", "Brazil", "2020", "_T", "13.9"}, records[0])
	// Missing values render empty, never as zero.
	assert.Equal(t, "", records[1][5])
}

func TestTabularWide(t *testing.T) {
	wide := &reshape.WideTable{
		KeyColumns:   []string{"indicator", "iso3"},
		PivotColumns: []string{"yr2019", "yr2020"},
		Rows: []reshape.WideRow{
			{Keys: []string{"CME_MRY0T4", "BRA"}, Values: map[string]*float64{"yr2019": fv(14.2), "yr2020": fv(13.9)}},
			{Keys: []string{"CME_MRY0T4", "KEN"}, Values: map[string]*float64{"yr2020": nil}},
		},
	}

	headers, records := TabularWide(wide)
	assert.Equal(t, []string{"indicator", "iso3", "yr2019", "yr2020"}, headers)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"CME_MRY0T4", "BRA", "14.2", "13.9"}, records[0])
	// Absent cell and present-nil cell both render empty.
	assert.Equal(t, []string{"CME_MRY0T4", "KEN", "", ""}, records[1])
}

func TestCSVWriter_WriteSimpleCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "data.csv")

	err := NewCSVWriter(nil).WriteSimpleCSV(path,
		[]string{"indicator", "iso3", "value"},
		[][]string{{"CME_MRY0T4", "BRA", "13.9"}})
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xEF, 0xBB, 0xBF}, data[:3], "BOM prefix for spreadsheet compatibility")
	assert.Contains(t, string(data), "indicator,iso3,value\n")
	assert.Contains(t, string(data), "CME_MRY0T4,BRA,13.9\n")
}

func TestCSVWriter_Append(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.csv")
	w := NewCSVWriter(nil)

	require.NoError(t, w.WriteCSV(path, WriteOptions{
		Headers: []string{"a"},
		Records: [][]string{{"1"}},
	}))
	require.NoError(t, w.WriteCSV(path, WriteOptions{
		Records: [][]string{{"2"}},
		Append:  true,
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a\n1\n2\n", string(data))
}

func TestXLSXWriter_WriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.xlsx")

	err := NewXLSXWriter(nil).WriteXLSX(path,
		[]string{"indicator", "iso3", "value"},
		[][]string{
			{"CME_MRY0T4", "BRA", "13.9"},
			{"CME_MRY0T4", "KEN", ""},
		})
	require.NoError(t, err)

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Data")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"indicator", "iso3", "value"}, rows[0])
	assert.Equal(t, "13.9", rows[1][2])
}
