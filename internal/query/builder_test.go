package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/pkg/contracts/domain"
)

func testDataflow() domain.Dataflow {
	return domain.Dataflow{
		ID:      "CME",
		Agency:  "UNICEF",
		Version: "1.0",
		Status:  domain.DataflowLive,
		Dimensions: []domain.DimensionSpec{
			{Name: "REF_AREA"},
			{Name: "INDICATOR"},
			{Name: "SEX", HasTotalCode: true},
			{Name: "WEALTH_QUINTILE", HasTotalCode: true},
		},
	}
}

func TestBuilder_Build(t *testing.T) {
	flow := testDataflow()

	tests := []struct {
		name    string
		spec    domain.QuerySpec
		want    string
		wantErr bool
	}{
		{
			name: "single indicator and country with totals defaulted",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Countries:  []string{"BRA"},
				Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
			},
			want: "data/UNICEF,CME,1.0/BRA.CME_MRY0T4._T._T?format=csv&startPeriod=2020&endPeriod=2020",
		},
		{
			name: "multi-value positions join sorted with plus",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Countries:  []string{"USA", "BRA", "KEN"},
				Period:     domain.PeriodSpec{Mode: domain.PeriodRange, Start: 2015, End: 2020},
			},
			want: "data/UNICEF,CME,1.0/BRA+KEN+USA.CME_MRY0T4._T._T?format=csv&startPeriod=2015&endPeriod=2020",
		},
		{
			name: "explicit filter replaces the total code",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Countries:  []string{"BRA"},
				Filters:    map[string][]string{"SEX": {"M", "F"}},
				Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
			},
			want: "data/UNICEF,CME,1.0/BRA.CME_MRY0T4.F+M._T?format=csv&startPeriod=2020&endPeriod=2020",
		},
		{
			name: "bypass leaves every disaggregation unconstrained",
			spec: domain.QuerySpec{
				Indicators:    []string{"CME_MRY0T4"},
				Countries:     []string{"BRA"},
				BypassFilters: true,
				Period:        domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
			},
			want: "data/UNICEF,CME,1.0/BRA.CME_MRY0T4..?format=csv&startPeriod=2020&endPeriod=2020",
		},
		{
			name: "latest renders no period bounds",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Countries:  []string{"BRA"},
				Period:     domain.PeriodSpec{Mode: domain.PeriodLatest},
			},
			want: "data/UNICEF,CME,1.0/BRA.CME_MRY0T4._T._T?format=csv",
		},
		{
			name: "filter on undeclared dimension fails",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Countries:  []string{"BRA"},
				Filters:    map[string][]string{"AGE": {"Y0T4"}},
				Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
			},
			wantErr: true,
		},
		{
			name: "filter on REF_AREA fails",
			spec: domain.QuerySpec{
				Indicators: []string{"CME_MRY0T4"},
				Filters:    map[string][]string{"REF_AREA": {"BRA"}},
				Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewBuilder("csv").Build(flow, tt.spec)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, apperrors.ErrTypeValidation))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuilder_Build_Deterministic(t *testing.T) {
	flow := testDataflow()
	// Same value set in different request orders must render
	// byte-identical query strings.
	specA := domain.QuerySpec{
		Indicators: []string{"CME_MRY0T4", "CME_MRM0"},
		Countries:  []string{"USA", "BRA"},
		Filters:    map[string][]string{"SEX": {"F", "M"}},
		Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
	}
	specB := domain.QuerySpec{
		Indicators: []string{"CME_MRM0", "CME_MRY0T4"},
		Countries:  []string{"BRA", "USA"},
		Filters:    map[string][]string{"SEX": {"M", "F"}},
		Period:     domain.PeriodSpec{Mode: domain.PeriodYear, Year: 2020},
	}

	a, err := NewBuilder("csv").Build(flow, specA)
	require.NoError(t, err)
	b, err := NewBuilder("csv").Build(flow, specB)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestBuilder_Build_SchemaOrder(t *testing.T) {
	// Reordering the schema reorders the key positions, proving the
	// builder follows declaration order rather than request order.
	flow := testDataflow()
	flow.Dimensions = []domain.DimensionSpec{
		{Name: "SEX", HasTotalCode: true},
		{Name: "REF_AREA"},
		{Name: "WEALTH_QUINTILE", HasTotalCode: true},
		{Name: "INDICATOR"},
	}

	got, err := NewBuilder("csv").Build(flow, domain.QuerySpec{
		Indicators: []string{"CME_MRY0T4"},
		Countries:  []string{"BRA"},
		Filters:    map[string][]string{"SEX": {"F"}},
		Period:     domain.PeriodSpec{Mode: domain.PeriodLatest},
	})
	require.NoError(t, err)
	assert.Equal(t, "data/UNICEF,CME,1.0/F.BRA._T.CME_MRY0T4?format=csv", got)
}

func TestBuilder_Build_DefaultFilterOverridesTotal(t *testing.T) {
	flow := testDataflow()
	flow.DefaultFilters = map[string]string{"WEALTH_QUINTILE": "TOTAL"}

	got, err := NewBuilder("csv").Build(flow, domain.QuerySpec{
		Indicators: []string{"CME_MRY0T4"},
		Countries:  []string{"BRA"},
		Period:     domain.PeriodSpec{Mode: domain.PeriodLatest},
	})
	require.NoError(t, err)
	assert.Equal(t, "data/UNICEF,CME,1.0/BRA.CME_MRY0T4._T.TOTAL?format=csv", got)
}

func TestBuilder_BuildURL(t *testing.T) {
	got, err := NewBuilder("csv").BuildURL("https://example.org/rest/", testDataflow(), domain.QuerySpec{
		Indicators: []string{"CME_MRY0T4"},
		Countries:  []string{"BRA"},
		Period:     domain.PeriodSpec{Mode: domain.PeriodLatest},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/rest/data/UNICEF,CME,1.0/BRA.CME_MRY0T4._T._T?format=csv", got)
}

func TestBuilder_Build_VersionDefault(t *testing.T) {
	flow := testDataflow()
	flow.Version = ""

	got, err := NewBuilder("").Build(flow, domain.QuerySpec{
		Indicators: []string{"CME_MRY0T4"},
		Period:     domain.PeriodSpec{Mode: domain.PeriodLatest},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "data/UNICEF,CME,1.0/")
	assert.Contains(t, got, "format=csv")
}
