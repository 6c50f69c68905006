// Package pipeline wires the full query path: indicator resolution,
// query construction, fetch, normalization, filter validation,
// deduplication, client-side period selection and reshape. Each call is
// synchronous and self-contained; the only shared state is the
// immutable metadata snapshot loaded at the start.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"sdmxcli/internal/config"
	"sdmxcli/internal/dataset"
	apperrors "sdmxcli/internal/errors"
	"sdmxcli/internal/fetcher"
	"sdmxcli/internal/infrastructure"
	"sdmxcli/internal/metadata"
	"sdmxcli/internal/normalizer"
	"sdmxcli/internal/query"
	"sdmxcli/internal/resolver"
	"sdmxcli/internal/reshape"
	"sdmxcli/pkg/contracts/domain"
)

// Request describes one data query as the host surface supplies it.
type Request struct {
	Indicators       []string            `json:"indicators" validate:"required,min=1,dive,required"`
	Countries        []string            `json:"countries,omitempty" validate:"dive,len=3"`
	Period           domain.PeriodSpec   `json:"period"`
	Filters          map[string][]string `json:"filters,omitempty"`
	Format           domain.OutputFormat `json:"format,omitempty"`
	DataflowOverride string              `json:"dataflow,omitempty"`
	BypassFilters    bool                `json:"bypass_filters,omitempty"`
	ClientSideFilter bool                `json:"client_side_filter,omitempty"`
}

// Result is the outcome of a query: a long table, optionally a wide
// view, and the structured warning list. EmptyResult distinguishes a
// valid zero-row outcome from a failed request, which is an error.
type Result struct {
	Format      domain.OutputFormat `json:"format"`
	Table       *domain.Table       `json:"table"`
	Wide        *reshape.WideTable  `json:"wide,omitempty"`
	Warnings    []domain.Warning    `json:"warnings,omitempty"`
	EmptyResult bool                `json:"empty_result"`
	Queries     []string            `json:"queries,omitempty"`
}

// Client runs queries end to end.
type Client struct {
	cfg    *config.Config
	store  *metadata.Store
	fetch  *fetcher.Client
	build  *query.Builder
	norm   *normalizer.Normalizer
	logger *slog.Logger
}

// New creates a pipeline client. The store provides the immutable
// metadata snapshot; pass a store over a synthetic cache in tests.
func New(cfg *config.Config, store *metadata.Store, fetch *fetcher.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		store:  store,
		fetch:  fetch,
		build:  query.NewBuilder(cfg.API.Format),
		norm:   normalizer.New(),
		logger: logger,
	}
}

// Run executes one query. Resolution and all compatibility checks
// happen before any network call.
func (c *Client) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := infrastructure.Tracer().Start(ctx, "pipeline.Run")
	defer span.End()

	if req.Format == "" {
		req.Format = domain.FormatLong
	}

	snap, err := c.store.Load()
	if err != nil {
		return nil, fmt.Errorf("metadata cache unavailable, run sync first: %w", err)
	}
	if !snap.Complete() {
		return nil, apperrors.NewStorageError(
			fmt.Sprintf("metadata cache is partially enriched (phase %d of %d), re-run sync",
				snap.Watermark.Phase, metadata.PhaseCount), nil)
	}

	var warnings []domain.Warning
	if snap.Stale(c.cfg.Cache.TTL) {
		warnings = append(warnings, domain.Warning{
			Code:    domain.WarningStaleCache,
			Message: fmt.Sprintf("metadata snapshot from %s is older than the %s TTL", snap.Watermark.SyncedAt.Format("2006-01-02"), c.cfg.Cache.TTL),
		})
	}
	if snap.ReducedFidelity() {
		warnings = append(warnings, domain.Warning{
			Code:    domain.WarningReducedFidelity,
			Message: "metadata snapshot was enriched by the fallback schema parser",
		})
	}

	resolutions, err := resolver.New(snap, c.cfg.API.DefaultAgency).
		Resolve(req.Indicators, req.DataflowOverride, req.Format == domain.FormatWideIndicator)
	if err != nil {
		return nil, err
	}

	filters := upperKeys(req.Filters)

	// Each indicator is fetched and normalized independently; the merge
	// is a pure join over immutable per-call tables.
	tables := make([]*domain.Table, len(resolutions))
	queries := make([]string, len(resolutions))
	g, gctx := errgroup.WithContext(ctx)
	for i, res := range resolutions {
		g.Go(func() error {
			table, url, err := c.fetchOne(gctx, snap, res, req, filters)
			if err != nil {
				return err
			}
			tables[i] = table
			queries[i] = url
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := dataset.Merge(tables)

	// Post-fetch validation: filtering was requested server-side, but
	// the server is known to sometimes ignore certain dimensions.
	if !req.BypassFilters {
		filterWarnings := dataset.ValidateFilters(merged, filters)
		warnings = append(warnings, filterWarnings...)
		if req.ClientSideFilter && len(filterWarnings) > 0 {
			merged = dataset.ApplyClientFilter(merged, filters)
		}
	}

	if err := dataset.Deduplicate(merged); err != nil {
		return nil, err
	}

	if req.Period.ClientSide() {
		merged = selectPeriods(merged, req.Period)
	}

	sortTable(merged)

	result := &Result{
		Format:      req.Format,
		Table:       merged,
		Warnings:    warnings,
		EmptyResult: len(merged.Observations) == 0,
		Queries:     queries,
	}

	switch req.Format {
	case domain.FormatWideYear:
		result.Wide, err = reshape.WideByYear(merged)
	case domain.FormatWideIndicator:
		result.Wide, err = reshape.WideByIndicator(merged)
	}
	if err != nil {
		return nil, err
	}

	c.logger.Info("query complete",
		slog.Int("observations", len(merged.Observations)),
		slog.Int("warnings", len(warnings)),
		slog.String("format", string(req.Format)))

	return result, nil
}

// fetchOne builds, executes and normalizes the query for a single
// indicator.
func (c *Client) fetchOne(ctx context.Context, snap *metadata.Snapshot, res resolver.Resolution, req Request, filters map[string][]string) (*domain.Table, string, error) {
	flow, ok := snap.Dataflow(res.DataflowID)
	if !ok {
		// Explicit override of a dataflow the cache does not know:
		// query with the minimal positional key.
		flow = domain.Dataflow{
			ID:     res.DataflowID,
			Agency: res.Agency,
			Dimensions: []domain.DimensionSpec{
				{Name: "REF_AREA"},
				{Name: "INDICATOR"},
			},
		}
	}
	flow.Agency = res.Agency

	spec := domain.QuerySpec{
		DataflowID:    res.DataflowID,
		Agency:        res.Agency,
		Indicators:    []string{res.IndicatorCode},
		Countries:     req.Countries,
		Period:        req.Period,
		Filters:       filters,
		BypassFilters: req.BypassFilters,
	}

	url, err := c.build.BuildURL(c.cfg.API.BaseURL, flow, spec)
	if err != nil {
		return nil, "", err
	}

	c.logger.Debug("fetching indicator",
		slog.String("indicator", res.IndicatorCode),
		slog.String("url", url))

	outcome, err := c.fetch.Fetch(ctx, url)
	if err != nil {
		return nil, url, err
	}
	if outcome.Kind == fetcher.OutcomeEmpty {
		return &domain.Table{}, url, nil
	}

	table, err := c.norm.Normalize(outcome.Payload)
	if err != nil {
		return nil, url, err
	}

	for i := range table.Observations {
		obs := &table.Observations[i]
		if obs.Indicator == "" {
			obs.Indicator = res.IndicatorCode
		}
		if obs.CountryName == "" {
			obs.CountryName = snap.CountryName(obs.ISO3)
		}
	}

	return table, url, nil
}

// selectPeriods applies the client-side period modes: latest, most
// recent N, and nearest-to-year (circa, ties resolved to the later
// year). Selection is per series, i.e. per composite key minus period.
func selectPeriods(table *domain.Table, period domain.PeriodSpec) *domain.Table {
	groups := make(map[string][]domain.Observation)
	var order []string
	for _, obs := range table.Observations {
		key := seriesKey(obs, table.DimensionColumns)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], obs)
	}

	out := &domain.Table{DimensionColumns: table.DimensionColumns, Warnings: table.Warnings}
	for _, key := range order {
		series := groups[key]
		sort.Slice(series, func(a, b int) bool { return series[a].Period < series[b].Period })

		switch period.Mode {
		case domain.PeriodLatest:
			out.Observations = append(out.Observations, series[len(series)-1])
		case domain.PeriodMostRecent:
			n := period.N
			if n > len(series) {
				n = len(series)
			}
			out.Observations = append(out.Observations, series[len(series)-n:]...)
		case domain.PeriodCirca:
			best := series[0]
			for _, obs := range series[1:] {
				if distance(obs.Period, period.Year) < distance(best.Period, period.Year) ||
					(distance(obs.Period, period.Year) == distance(best.Period, period.Year) && obs.Period > best.Period) {
					best = obs
				}
			}
			out.Observations = append(out.Observations, best)
		}
	}
	return out
}

func seriesKey(obs domain.Observation, dimensions []string) string {
	parts := []string{obs.Indicator, obs.ISO3}
	for _, d := range dimensions {
		parts = append(parts, obs.Dimensions[d])
	}
	return strings.Join(parts, "\x1f")
}

func distance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

// sortTable orders observations deterministically so repeated runs of
// the same query render identically.
func sortTable(table *domain.Table) {
	sort.Slice(table.Observations, func(a, b int) bool {
		oa, ob := table.Observations[a], table.Observations[b]
		ka := oa.CompositeKey(table.DimensionColumns)
		kb := ob.CompositeKey(table.DimensionColumns)
		return ka < kb
	})
}

func upperKeys(filters map[string][]string) map[string][]string {
	if len(filters) == 0 {
		return nil
	}
	out := make(map[string][]string, len(filters))
	for k, v := range filters {
		out[strings.ToUpper(k)] = v
	}
	return out
}
