package normalizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sdmxcli/internal/errors"
)

func TestNormalize_CSV(t *testing.T) {
	payload := []byte(`DATAFLOW,REF_AREA:Geographic area,INDICATOR,SEX,TIME_PERIOD,OBS_VALUE,OBS_STATUS
UNICEF:CME(1.0),BRA: Brazil,CME_MRY0T4,_T,2020,13.9,A
UNICEF:CME(1.0),BRA: Brazil,CME_MRY0T4,_T,2021,13.6,A
UNICEF:CME(1.0),KEN: Kenya,CME_MRY0T4,_T,2020,31.7,A
`)

	table, err := New().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, table.Observations, 3)
	assert.Equal(t, []string{"sex"}, table.DimensionColumns)

	first := table.Observations[0]
	assert.Equal(t, "CME_MRY0T4", first.Indicator)
	assert.Equal(t, "BRA", first.ISO3)
	assert.Equal(t, "Brazil", first.CountryName)
	assert.Equal(t, 2020, first.Period)
	require.NotNil(t, first.Value)
	assert.InDelta(t, 13.9, *first.Value, 1e-9)
	assert.Equal(t, "_T", first.Dimensions["sex"])
}

func TestNormalize_CSV_MissingValuesNeverZero(t *testing.T) {
	tests := []struct {
		name     string
		sentinel string
	}{
		{"empty cell", ""},
		{"NA", "NA"},
		{"n/a", "n/a"},
		{"null", "null"},
		{"NaN", "NaN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := []byte("REF_AREA,INDICATOR,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,2020," + tt.sentinel + "\n")
			table, err := New().Normalize(payload)
			require.NoError(t, err)
			require.Len(t, table.Observations, 1)
			assert.Nil(t, table.Observations[0].Value)
		})
	}
}

func TestNormalize_CSV_UnparseableValueIsCorruption(t *testing.T) {
	payload := []byte("REF_AREA,INDICATOR,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,2020,not-a-number\n")
	_, err := New().Normalize(payload)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeDataCorruption))
}

func TestNormalize_CSV_SubAnnualPeriodCollapsesToYear(t *testing.T) {
	payload := []byte("REF_AREA,INDICATOR,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,2020-Q1,1.5\nBRA,NT_ANT_HAZ_NE2,2019-06,2.5\n")
	table, err := New().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, table.Observations, 2)
	assert.Equal(t, 2020, table.Observations[0].Period)
	assert.Equal(t, 2019, table.Observations[1].Period)
}

func TestNormalize_CSV_PeriodWithoutYearFails(t *testing.T) {
	payload := []byte("REF_AREA,INDICATOR,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,recent,1.5\n")
	_, err := New().Normalize(payload)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPeriod))
}

func TestNormalize_CSV_MissingRequiredColumn(t *testing.T) {
	payload := []byte("REF_AREA,INDICATOR,OBS_VALUE\nBRA,CME_MRY0T4,1.5\n")
	_, err := New().Normalize(payload)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParsing))
}

func TestNormalize_CSV_UnknownColumnBecomesDimension(t *testing.T) {
	payload := []byte("REF_AREA,INDICATOR,DISABILITY_STATUS,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,PWD,2020,1.5\n")
	table, err := New().Normalize(payload)
	require.NoError(t, err)
	assert.Equal(t, []string{"disability_status"}, table.DimensionColumns)
	assert.Equal(t, "PWD", table.Observations[0].Dimensions["disability_status"])
}

func TestNormalize_CSV_EmptyDimensionColumnsDropped(t *testing.T) {
	// SEX is declared in the header but empty everywhere, so it must not
	// participate in the composite key.
	payload := []byte("REF_AREA,INDICATOR,SEX,TIME_PERIOD,OBS_VALUE\nBRA,CME_MRY0T4,,2020,1.5\n")
	table, err := New().Normalize(payload)
	require.NoError(t, err)
	assert.Empty(t, table.DimensionColumns)
}

func TestNormalize_EmptyPayload(t *testing.T) {
	table, err := New().Normalize([]byte("  \n"))
	require.NoError(t, err)
	assert.Empty(t, table.Observations)
}

func TestNormalize_XML(t *testing.T) {
	payload := []byte(`<?xml version="1.0" encoding="UTF-8"?>
<message:GenericData xmlns:message="http://www.sdmx.org/resources/sdmxml/schemas/v2_1/message">
  <message:DataSet>
    <Series>
      <SeriesKey>
        <Value id="REF_AREA" value="BRA"/>
        <Value id="INDICATOR" value="CME_MRY0T4"/>
        <Value id="SEX" value="_T"/>
      </SeriesKey>
      <Obs>
        <ObsDimension value="2020"/>
        <ObsValue value="13.9"/>
      </Obs>
      <Obs>
        <ObsDimension value="2021"/>
        <ObsValue value=""/>
      </Obs>
    </Series>
  </message:DataSet>
</message:GenericData>`)

	table, err := New().Normalize(payload)
	require.NoError(t, err)
	require.Len(t, table.Observations, 2)
	assert.Equal(t, []string{"sex"}, table.DimensionColumns)

	first := table.Observations[0]
	assert.Equal(t, "CME_MRY0T4", first.Indicator)
	assert.Equal(t, "BRA", first.ISO3)
	assert.Equal(t, 2020, first.Period)
	require.NotNil(t, first.Value)
	assert.InDelta(t, 13.9, *first.Value, 1e-9)

	// Empty ObsValue is an explicit missing value.
	assert.Nil(t, table.Observations[1].Value)
}

func TestParseYear(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{input: "2020", want: 2020},
		{input: "2020-Q1", want: 2020},
		{input: "2019-06", want: 2019},
		{input: " 2018 ", want: 2018},
		{input: "Q1-2020", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseYear(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeMalformedPeriod))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSplitCodeLabel(t *testing.T) {
	code, label := splitCodeLabel("BRA: Brazil")
	assert.Equal(t, "BRA", code)
	assert.Equal(t, "Brazil", label)

	code, label = splitCodeLabel("BRA")
	assert.Equal(t, "BRA", code)
	assert.Empty(t, label)
}
