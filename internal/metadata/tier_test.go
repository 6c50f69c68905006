package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"sdmxcli/pkg/contracts/domain"
)

func TestTierClassifier_Classify(t *testing.T) {
	c := NewTierClassifier()

	live := domain.Dataflow{ID: "CME", Status: domain.DataflowLive}
	deprecated := domain.Dataflow{ID: "CME_OLD", Status: domain.DataflowDeprecated}
	empty := domain.Dataflow{ID: "CME_DRAFT", Status: domain.DataflowEmpty}

	tests := []struct {
		name  string
		flows []domain.Dataflow
		want  domain.Tier
	}{
		{name: "no dataflows is orphan", flows: nil, want: domain.TierOrphan},
		{name: "live dataflow is tier 1", flows: []domain.Dataflow{live}, want: domain.Tier1},
		{name: "live wins over deprecated", flows: []domain.Dataflow{deprecated, live}, want: domain.Tier1},
		{name: "live wins over empty", flows: []domain.Dataflow{empty, live}, want: domain.Tier1},
		{name: "deprecated only is tier 2", flows: []domain.Dataflow{deprecated}, want: domain.Tier2},
		{name: "deprecated wins over empty", flows: []domain.Dataflow{empty, deprecated}, want: domain.Tier2},
		{name: "empty only is tier 3", flows: []domain.Dataflow{empty}, want: domain.Tier3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cls := c.Classify("CME_MRY0T4", tt.flows)
			assert.Equal(t, tt.want, cls.Tier)
			assert.Equal(t, "CME_MRY0T4", cls.IndicatorCode)
			assert.NotEmpty(t, cls.Reason)
		})
	}
}

func TestTierClassifier_Monotonic(t *testing.T) {
	// Reclassifying against the same schema never demotes: one live
	// dataflow keeps the indicator at tier 1 no matter how many invalid
	// candidates accumulate around it.
	c := NewTierClassifier()
	flows := []domain.Dataflow{
		{ID: "A", Status: domain.DataflowDeprecated},
		{ID: "B", Status: domain.DataflowEmpty},
		{ID: "C", Status: domain.DataflowLive},
		{ID: "D", Status: domain.DataflowDeprecated},
	}

	first := c.Classify("CME_MRY0T4", flows)
	second := c.Classify("CME_MRY0T4", flows)
	assert.Equal(t, domain.Tier1, first.Tier)
	assert.Equal(t, first.Tier, second.Tier)
}
