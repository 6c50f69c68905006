package metadata

import (
	"fmt"
	"time"

	"sdmxcli/pkg/contracts/domain"
)

// TierClassifier assigns governance tiers to indicators from the
// current dataflow validity. Classifications are derived, never
// authoritative: they are recomputed wholesale on every sync.
type TierClassifier struct {
	now func() time.Time
}

// NewTierClassifier creates a classifier using the wall clock.
func NewTierClassifier() *TierClassifier {
	return &TierClassifier{now: time.Now}
}

// Classify computes the tier of one indicator given the dataflows it
// maps to. An indicator with at least one live dataflow is tier 1
// regardless of what else it maps to, so reclassification against the
// same schema can never demote it.
func (c *TierClassifier) Classify(indicatorCode string, flows []domain.Dataflow) domain.TierClassification {
	cls := domain.TierClassification{
		IndicatorCode: indicatorCode,
		ClassifiedAt:  c.now(),
	}

	if len(flows) == 0 {
		cls.Tier = domain.TierOrphan
		cls.Reason = "no dataflow hosts this indicator"
		return cls
	}

	var deprecated, empty string
	for _, f := range flows {
		switch f.Status {
		case domain.DataflowLive:
			cls.Tier = domain.Tier1
			cls.Reason = fmt.Sprintf("verified dataflow %s", f.ID)
			return cls
		case domain.DataflowDeprecated:
			deprecated = f.ID
		case domain.DataflowEmpty:
			empty = f.ID
		}
	}

	if deprecated != "" {
		cls.Tier = domain.Tier2
		cls.Reason = fmt.Sprintf("dataflow %s is deprecated or limited", deprecated)
		return cls
	}

	cls.Tier = domain.Tier3
	cls.Reason = fmt.Sprintf("dataflow %s is empty or a placeholder", empty)
	return cls
}
