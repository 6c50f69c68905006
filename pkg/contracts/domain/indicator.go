package domain

import (
	"time"
)

// Indicator represents a statistical indicator from the remote codelist.
// Indicators are immutable once fetched and replaced wholesale on every
// metadata sync.
type Indicator struct {
	Code              string `json:"code" yaml:"code" validate:"required"`
	Name              string `json:"name" yaml:"name"`
	Description       string `json:"description,omitempty" yaml:"description,omitempty"`
	ParentDataflow    string `json:"parent_dataflow,omitempty" yaml:"parent_dataflow,omitempty"`
	DataflowIDs       []string `json:"dataflow_ids,omitempty" yaml:"dataflow_ids,omitempty"`
	Dimensions        []string `json:"dimensions,omitempty" yaml:"dimensions,omitempty"`
	TotalledDimension map[string]bool `json:"totalled_dimensions,omitempty" yaml:"totalled_dimensions,omitempty"`
}

// Tier is the governance classification of an indicator's data
// availability. It is derived from dataflow validity and recomputed on
// every sync, never stored authoritatively.
type Tier string

const (
	Tier1      Tier = "1"      // at least one valid, verified dataflow
	Tier2      Tier = "2"      // dataflow present but deprecated or limited
	Tier3      Tier = "3"      // dataflow present but empty or placeholder
	TierOrphan Tier = "orphan" // no dataflow edge at all
)

// TierClassification records the tier assigned to one indicator and the
// reason it was assigned.
type TierClassification struct {
	IndicatorCode string    `json:"indicator_code" yaml:"indicator_code"`
	Tier          Tier      `json:"tier" yaml:"tier"`
	Reason        string    `json:"reason" yaml:"reason"`
	ClassifiedAt  time.Time `json:"classified_at" yaml:"classified_at"`
}
