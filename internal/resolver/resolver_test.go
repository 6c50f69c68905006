package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/internal/metadata"
	"sdmxcli/pkg/contracts/domain"
)

func testSnapshot() *metadata.Snapshot {
	return &metadata.Snapshot{
		Dataflows: map[string]domain.Dataflow{
			"CME": {
				ID: "CME", Agency: "UNICEF", Status: domain.DataflowLive,
				Dimensions: []domain.DimensionSpec{
					{Name: "REF_AREA"}, {Name: "INDICATOR"}, {Name: "SEX", HasTotalCode: true},
				},
			},
			"GLOBAL_DATAFLOW": {
				ID: "GLOBAL_DATAFLOW", Agency: "UNICEF", Status: domain.DataflowLive,
				Dimensions: []domain.DimensionSpec{
					{Name: "REF_AREA"}, {Name: "INDICATOR"}, {Name: "SEX", HasTotalCode: true},
					{Name: "AGE", HasTotalCode: true}, {Name: "WEALTH_QUINTILE", HasTotalCode: true},
				},
			},
			"NUTRITION": {
				ID: "NUTRITION", Agency: "UNICEF", Status: domain.DataflowLive,
				Dimensions: []domain.DimensionSpec{
					{Name: "REF_AREA"}, {Name: "INDICATOR"}, {Name: "SEX", HasTotalCode: true},
				},
			},
		},
		Indicators: map[string]domain.Indicator{
			"CME_MRY0T4":     {Code: "CME_MRY0T4", ParentDataflow: "CME"},
			"CME_MRM0":       {Code: "CME_MRM0", ParentDataflow: "CME"},
			"NT_ANT_HAZ_NE2": {Code: "NT_ANT_HAZ_NE2", ParentDataflow: "NT"},
			"ED_CR_L1":       {Code: "ED_CR_L1", ParentDataflow: "ED"},
		},
		IndicatorDataflows: map[string][]string{
			"CME_MRY0T4":     {"CME", "GLOBAL_DATAFLOW"},
			"CME_MRM0":       {"CME"},
			"NT_ANT_HAZ_NE2": {"GLOBAL_DATAFLOW", "NUTRITION"},
			"ED_CR_L1":       {"CME", "NUTRITION"},
		},
		Tiers: map[string]domain.TierClassification{
			"CME_MRY0T4": {IndicatorCode: "CME_MRY0T4", Tier: domain.Tier1},
		},
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := New(testSnapshot(), "UNICEF")

	tests := []struct {
		name     string
		codes    []string
		override string
		single   bool
		want     []Resolution
		wantType apperrors.ErrorType
	}{
		{
			name:  "single dataflow resolves directly",
			codes: []string{"CME_MRM0"},
			want:  []Resolution{{IndicatorCode: "CME_MRM0", Agency: "UNICEF", DataflowID: "CME"}},
		},
		{
			name:  "parent hint wins over other candidates",
			codes: []string{"CME_MRY0T4"},
			want:  []Resolution{{IndicatorCode: "CME_MRY0T4", Agency: "UNICEF", DataflowID: "CME"}},
		},
		{
			name:  "fewest dimensions wins when the hint misses",
			codes: []string{"NT_ANT_HAZ_NE2"},
			want:  []Resolution{{IndicatorCode: "NT_ANT_HAZ_NE2", Agency: "UNICEF", DataflowID: "NUTRITION"}},
		},
		{
			name:     "tied candidates with no hint are ambiguous",
			codes:    []string{"ED_CR_L1"},
			wantType: apperrors.ErrTypeAmbiguousIndicator,
		},
		{
			name:     "unknown indicator",
			codes:    []string{"NO_SUCH_CODE"},
			wantType: apperrors.ErrTypeUnknownIndicator,
		},
		{
			name:     "override applies to every code and skips detection",
			codes:    []string{"CME_MRY0T4", "NO_SUCH_CODE"},
			override: "WHO.GHO",
			want: []Resolution{
				{IndicatorCode: "CME_MRY0T4", Agency: "WHO", DataflowID: "GHO"},
				{IndicatorCode: "NO_SUCH_CODE", Agency: "WHO", DataflowID: "GHO"},
			},
		},
		{
			name:     "override without agency prefix is invalid",
			codes:    []string{"CME_MRY0T4"},
			override: "justadataflow",
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name:     "no codes",
			codes:    nil,
			wantType: apperrors.ErrTypeValidation,
		},
		{
			name:     "mixed dataflows rejected before any network call",
			codes:    []string{"CME_MRM0", "NT_ANT_HAZ_NE2"},
			single:   true,
			wantType: apperrors.ErrTypeIncompatibleDataflows,
		},
		{
			name:   "same dataflow passes the single-dataflow check",
			codes:  []string{"CME_MRM0", "CME_MRY0T4"},
			single: true,
			want: []Resolution{
				{IndicatorCode: "CME_MRM0", Agency: "UNICEF", DataflowID: "CME"},
				{IndicatorCode: "CME_MRY0T4", Agency: "UNICEF", DataflowID: "CME"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.codes, tt.override, tt.single)
			if tt.wantType != "" {
				require.Error(t, err)
				assert.True(t, apperrors.IsType(err, tt.wantType), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolver_Tier(t *testing.T) {
	r := New(testSnapshot(), "UNICEF")

	cls := r.Tier("CME_MRY0T4")
	assert.Equal(t, domain.Tier1, cls.Tier)

	orphan := r.Tier("NO_SUCH_CODE")
	assert.Equal(t, domain.TierOrphan, orphan.Tier)
	assert.Equal(t, "NO_SUCH_CODE", orphan.IndicatorCode)
}
