package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	apperrors "sdmxcli/internal/errors"
	"sdmxcli/internal/fetcher"
	"sdmxcli/pkg/contracts/domain"
)

// Codelist identifiers on the remote registry.
const (
	indicatorCodelist = "CL_INDICATORS"
	countryCodelist   = "CL_COUNTRY"
	regionCodelist    = "CL_REGION"
)

// StructureSource supplies raw structure and codelist documents.
// Implemented over HTTP in production and by fixtures in tests.
type StructureSource interface {
	FetchStructures(ctx context.Context) ([]byte, error)
	FetchCodelist(ctx context.Context, codelistID string) ([]byte, error)
}

// RemoteSource fetches structure documents from the SDMX registry.
type RemoteSource struct {
	client  *fetcher.Client
	baseURL string
	agency  string
}

// NewRemoteSource creates a source against the given registry base URL.
func NewRemoteSource(client *fetcher.Client, baseURL, agency string) *RemoteSource {
	return &RemoteSource{
		client:  client,
		baseURL: strings.TrimRight(baseURL, "/"),
		agency:  agency,
	}
}

// FetchStructures implements StructureSource.
func (s *RemoteSource) FetchStructures(ctx context.Context) ([]byte, error) {
	url := fmt.Sprintf("%s/dataflow/%s/all/latest?references=all", s.baseURL, s.agency)
	out, err := s.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if out.Kind == fetcher.OutcomeEmpty {
		return nil, apperrors.NewServerError(out.Status, "registry returned no structures")
	}
	return out.Payload, nil
}

// FetchCodelist implements StructureSource.
func (s *RemoteSource) FetchCodelist(ctx context.Context, codelistID string) ([]byte, error) {
	url := fmt.Sprintf("%s/codelist/%s/%s/latest", s.baseURL, s.agency, codelistID)
	out, err := s.client.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	if out.Kind == fetcher.OutcomeEmpty {
		return nil, apperrors.NewServerError(out.Status, fmt.Sprintf("registry returned no codelist %s", codelistID))
	}
	return out.Payload, nil
}

// SyncerOptions configures a Syncer.
type SyncerOptions struct {
	TTL            time.Duration
	MaxSyncHistory int
	SourceURL      string
	Logger         *slog.Logger
}

// Syncer rebuilds the metadata snapshot from the remote registry. Each
// run recreates the snapshot wholesale; the enrichment phases are
// idempotent and each phase's write is atomic, so an aborted run never
// leaves a partially-enriched file masquerading as a complete one.
type Syncer struct {
	store      *Store
	source     StructureSource
	parsers    []SchemaParser
	classifier *TierClassifier
	opts       SyncerOptions
	now        func() time.Time
}

// NewSyncer creates a syncer with the preferred parser first and the
// flat parser as fallback.
func NewSyncer(store *Store, source StructureSource, opts SyncerOptions) *Syncer {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxSyncHistory <= 0 {
		opts.MaxSyncHistory = 20
	}
	return &Syncer{
		store:      store,
		source:     source,
		parsers:    []SchemaParser{NewStructureParser(), NewFallbackParser()},
		classifier: NewTierClassifier(),
		opts:       opts,
		now:        time.Now,
	}
}

// Run performs a sync. When force is false a fresh, complete snapshot
// short-circuits the run. Returns the snapshot in effect afterwards.
func (s *Syncer) Run(ctx context.Context, force bool) (*Snapshot, error) {
	logger := s.opts.Logger

	if !force {
		if snap, err := s.store.Load(); err == nil && snap.Complete() && !snap.Stale(s.opts.TTL) {
			logger.Info("metadata cache is fresh, skipping sync",
				slog.Time("synced_at", snap.Watermark.SyncedAt))
			return snap, nil
		}
	}

	raw, err := s.source.FetchStructures(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch structure document: %w", err)
	}

	flows, parser, err := s.parseStructures(raw)
	if err != nil {
		return nil, err
	}
	logger.Info("parsed dataflow structures",
		slog.String("parser", parser.Name()),
		slog.Int("dataflows", len(flows)))

	snap := &Snapshot{
		Watermark: Watermark{
			Platform: "go",
			Version:  SnapshotVersion,
			SyncedAt: s.now().UTC(),
			Source:   s.opts.SourceURL,
			Parser:   parser.Name(),
		},
		Dataflows:          make(map[string]domain.Dataflow, len(flows)),
		Indicators:         make(map[string]domain.Indicator),
		Codelists:          make(map[string][]Code),
		Countries:          make(map[string]Country),
		Regions:            make(map[string]Region),
		IndicatorDataflows: make(map[string][]string),
		Tiers:              make(map[string]domain.TierClassification),
	}
	for _, f := range flows {
		snap.Dataflows[f.ID] = f
	}
	snap.Watermark.Dataflows = len(snap.Dataflows)

	if err := s.loadCodelists(ctx, parser, snap); err != nil {
		return nil, err
	}

	// Preserve history from the previous snapshot, if any.
	if prev, err := s.store.Load(); err == nil {
		snap.SyncHistory = prev.SyncHistory
	}

	phases := []struct {
		name string
		run  func(*Snapshot)
	}{
		{"attach_dataflows", s.phaseAttachDataflows},
		{"classify_tiers", s.phaseClassifyTiers},
		{"attach_dimensions", s.phaseAttachDimensions},
	}

	for i, phase := range phases {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.NewTransportError("sync cancelled", err)
		}
		phase.run(snap)
		snap.Watermark.Phase = i + 1
		if snap.Watermark.Phase == PhaseCount {
			snap.SyncHistory = appendHistory(snap.SyncHistory, snap.Watermark, s.opts.MaxSyncHistory)
		}
		if err := s.store.Save(snap); err != nil {
			return nil, fmt.Errorf("failed to persist snapshot after phase %s: %w", phase.name, err)
		}
		logger.Info("sync phase complete",
			slog.String("phase", phase.name),
			slog.Int("indicators", snap.Watermark.Indicators))
	}

	return snap, nil
}

// parseStructures tries the preferred parser first and falls back to
// the flat parser, so a structure document the rich parser chokes on
// still yields a usable (if reduced-fidelity) snapshot.
func (s *Syncer) parseStructures(raw []byte) ([]domain.Dataflow, SchemaParser, error) {
	var lastErr error
	for _, p := range s.parsers {
		flows, err := p.ParseStructures(raw)
		if err == nil {
			return flows, p, nil
		}
		lastErr = err
		s.opts.Logger.Warn("schema parser failed, trying next",
			slog.String("parser", p.Name()),
			slog.String("error", err.Error()))
	}
	return nil, nil, fmt.Errorf("all schema parsers failed: %w", lastErr)
}

// loadCodelists populates indicators, countries and regions. The
// indicator list is required; reference lists only degrade enrichment.
func (s *Syncer) loadCodelists(ctx context.Context, parser SchemaParser, snap *Snapshot) error {
	indRaw, err := s.source.FetchCodelist(ctx, indicatorCodelist)
	if err != nil {
		return fmt.Errorf("failed to fetch indicator codelist: %w", err)
	}
	indicators, err := parser.ParseCodelist(indRaw)
	if err != nil {
		return fmt.Errorf("failed to parse indicator codelist: %w", err)
	}
	snap.Codelists[indicatorCodelist] = indicators
	for _, c := range indicators {
		snap.Indicators[c.ID] = domain.Indicator{
			Code:           c.ID,
			Name:           c.Name,
			Description:    c.Description,
			ParentDataflow: dataflowHint(c.ID),
		}
	}

	for _, clID := range []string{countryCodelist, regionCodelist} {
		raw, err := s.source.FetchCodelist(ctx, clID)
		if err != nil {
			s.opts.Logger.Warn("failed to fetch codelist, continuing without it",
				slog.String("codelist", clID),
				slog.String("error", err.Error()))
			continue
		}
		codes, err := parser.ParseCodelist(raw)
		if err != nil {
			s.opts.Logger.Warn("failed to parse codelist, continuing without it",
				slog.String("codelist", clID),
				slog.String("error", err.Error()))
			continue
		}
		snap.Codelists[clID] = codes
		switch clID {
		case countryCodelist:
			for _, c := range codes {
				snap.Countries[c.ID] = Country{ISO3: c.ID, Name: c.Name}
			}
		case regionCodelist:
			for _, c := range codes {
				snap.Regions[c.ID] = Region{Code: c.ID, Name: c.Name}
			}
		}
	}

	return nil
}

// dataflowHint guesses the hosting dataflow from the indicator code
// prefix (CME_MRY0T4 lives in CME). It is only a hint: phase 1 builds
// the authoritative map from the dataflow schemas.
func dataflowHint(code string) string {
	if i := strings.Index(code, "_"); i > 0 {
		return code[:i]
	}
	return ""
}

// phaseAttachDataflows builds the indicator-to-dataflow edge set by
// scanning each dataflow's INDICATOR dimension. Dataflows whose schema
// carried no indicator codes (the flat parser cannot recover them)
// contribute edges only through the code-prefix hint.
func (s *Syncer) phaseAttachDataflows(snap *Snapshot) {
	edges := make(map[string]map[string]bool)
	addEdge := func(code, flowID string) {
		if edges[code] == nil {
			edges[code] = make(map[string]bool)
		}
		edges[code][flowID] = true
	}

	for _, flow := range snap.Dataflows {
		dim, ok := flow.Dimension(dimIndicator)
		if ok && len(dim.AllowedCodes) > 0 {
			for _, code := range dim.AllowedCodes {
				addEdge(code, flow.ID)
			}
			continue
		}
		for code, ind := range snap.Indicators {
			if ind.ParentDataflow == flow.ID {
				addEdge(code, flow.ID)
			}
		}
	}

	snap.IndicatorDataflows = make(map[string][]string, len(edges))
	for code, flowSet := range edges {
		ids := make([]string, 0, len(flowSet))
		for id := range flowSet {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		snap.IndicatorDataflows[code] = ids

		ind, ok := snap.Indicators[code]
		if !ok {
			// Indicator present in a schema but missing from the
			// codelist; still resolvable, just unnamed.
			ind = domain.Indicator{Code: code, ParentDataflow: dataflowHint(code)}
		}
		ind.DataflowIDs = ids
		snap.Indicators[code] = ind
	}

	snap.Watermark.Indicators = len(snap.Indicators)
}

// phaseClassifyTiers recomputes every indicator's tier from current
// dataflow validity.
func (s *Syncer) phaseClassifyTiers(snap *Snapshot) {
	counts := make(map[domain.Tier]int)
	for code := range snap.Indicators {
		flows := make([]domain.Dataflow, 0, len(snap.IndicatorDataflows[code]))
		for _, id := range snap.IndicatorDataflows[code] {
			if f, ok := snap.Dataflows[id]; ok {
				flows = append(flows, f)
			}
		}
		cls := s.classifier.Classify(code, flows)
		snap.Tiers[code] = cls
		counts[cls.Tier]++
	}
	snap.Watermark.TierCounts = counts
}

// phaseAttachDimensions attaches the union of disaggregation dimensions
// (and their total-code availability) from each indicator's dataflows.
func (s *Syncer) phaseAttachDimensions(snap *Snapshot) {
	for code, ind := range snap.Indicators {
		dims := make(map[string]bool)
		totalled := make(map[string]bool)
		for _, id := range snap.IndicatorDataflows[code] {
			flow, ok := snap.Dataflows[id]
			if !ok {
				continue
			}
			for _, d := range flow.Dimensions {
				if d.Name == dimRefArea || d.Name == dimIndicator {
					continue
				}
				dims[d.Name] = true
				if d.HasTotalCode {
					totalled[d.Name] = true
				}
			}
		}
		names := make([]string, 0, len(dims))
		for name := range dims {
			names = append(names, name)
		}
		sort.Strings(names)
		ind.Dimensions = names
		if len(totalled) > 0 {
			ind.TotalledDimension = totalled
		}
		snap.Indicators[code] = ind
	}
}

func appendHistory(history []Watermark, wm Watermark, max int) []Watermark {
	history = append(history, wm)
	if len(history) > max {
		history = history[len(history)-max:]
	}
	return history
}
