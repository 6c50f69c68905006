// Package resolver maps indicator codes to the dataflow that hosts
// them, using the metadata cache snapshot. Resolution happens before
// any network call, so incompatible requests fail fast.
package resolver

import (
	"fmt"
	"regexp"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/internal/metadata"
	"sdmxcli/pkg/contracts/domain"
)

// overrideRe matches an explicit AGENCY.DATAFLOW override string.
var overrideRe = regexp.MustCompile(`^([A-Z0-9]+)\.(.+)$`)

// Resolution is the resolved (agency, dataflow) pair for one indicator.
type Resolution struct {
	IndicatorCode string
	Agency        string
	DataflowID    string
}

// Resolver resolves indicators against an immutable snapshot. Inject a
// synthetic snapshot in tests; there is no ambient global cache.
type Resolver struct {
	snap          *metadata.Snapshot
	defaultAgency string
}

// New creates a resolver over the given snapshot.
func New(snap *metadata.Snapshot, defaultAgency string) *Resolver {
	return &Resolver{snap: snap, defaultAgency: defaultAgency}
}

// Resolve maps each indicator code to a dataflow. An explicit override
// takes precedence over auto-detection, and its agency component
// overrides any agency inferred from indicator metadata. When
// requireSingleDataflow is set (the wide-by-indicator reshape), all
// codes must land on the same dataflow.
func (r *Resolver) Resolve(codes []string, override string, requireSingleDataflow bool) ([]Resolution, error) {
	if len(codes) == 0 {
		return nil, apperrors.NewValidationError("at least one indicator code is required", nil)
	}

	var resolutions []Resolution

	if override != "" {
		m := overrideRe.FindStringSubmatch(override)
		if m == nil {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("dataflow override %q must have the form AGENCY.DATAFLOW", override), nil)
		}
		for _, code := range codes {
			resolutions = append(resolutions, Resolution{
				IndicatorCode: code,
				Agency:        m[1],
				DataflowID:    m[2],
			})
		}
		return resolutions, nil
	}

	for _, code := range codes {
		res, err := r.resolveOne(code)
		if err != nil {
			return nil, err
		}
		resolutions = append(resolutions, res)
	}

	if requireSingleDataflow {
		first := resolutions[0].DataflowID
		for _, res := range resolutions[1:] {
			if res.DataflowID != first {
				return nil, apperrors.NewIncompatibleDataflowsError(
					fmt.Sprintf("wide-by-indicator requires one dataflow, got %s and %s",
						first, res.DataflowID))
			}
		}
	}

	return resolutions, nil
}

// resolveOne picks a dataflow for one indicator. With several
// candidates the fallback sequence is most-specific first: the dataflow
// named by the indicator's own hint, then the candidate with the
// fewest dimensions. A tie with no canonical choice is ambiguous.
func (r *Resolver) resolveOne(code string) (Resolution, error) {
	flowIDs := r.snap.IndicatorDataflows[code]
	if len(flowIDs) == 0 {
		return Resolution{}, apperrors.NewUnknownIndicatorError(code)
	}

	var chosen string
	switch {
	case len(flowIDs) == 1:
		chosen = flowIDs[0]
	default:
		if hint := r.snap.Indicators[code].ParentDataflow; hint != "" && contains(flowIDs, hint) {
			chosen = hint
			break
		}
		best, unique := mostSpecific(flowIDs, r.snap)
		if !unique {
			return Resolution{}, apperrors.NewAmbiguousIndicatorError(code, flowIDs)
		}
		chosen = best
	}

	agency := r.defaultAgency
	if flow, ok := r.snap.Dataflow(chosen); ok && flow.Agency != "" {
		agency = flow.Agency
	}

	return Resolution{IndicatorCode: code, Agency: agency, DataflowID: chosen}, nil
}

// mostSpecific returns the candidate with the fewest dimensions and
// whether that minimum is unique.
func mostSpecific(flowIDs []string, snap *metadata.Snapshot) (string, bool) {
	best := ""
	bestDims := -1
	unique := false
	for _, id := range flowIDs {
		flow, ok := snap.Dataflow(id)
		if !ok {
			continue
		}
		dims := len(flow.Dimensions)
		switch {
		case bestDims == -1 || dims < bestDims:
			best, bestDims, unique = id, dims, true
		case dims == bestDims:
			unique = false
		}
	}
	return best, best != "" && unique
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// Tier reports the cached governance tier of an indicator. Indicators
// missing from the tier map are orphans by definition.
func (r *Resolver) Tier(code string) domain.TierClassification {
	if cls, ok := r.snap.Tiers[code]; ok {
		return cls
	}
	return domain.TierClassification{
		IndicatorCode: code,
		Tier:          domain.TierOrphan,
		Reason:        "indicator not present in metadata cache",
	}
}
