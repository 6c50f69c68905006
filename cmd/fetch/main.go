// Command fetch queries the remote SDMX API for indicator data and
// renders the result as a terminal table, CSV or XLSX.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"

	"sdmxcli/internal/config"
	"sdmxcli/internal/exporter"
	"sdmxcli/internal/fetcher"
	"sdmxcli/internal/infrastructure"
	"sdmxcli/internal/metadata"
	"sdmxcli/internal/pipeline"
	"sdmxcli/internal/query"
	"sdmxcli/internal/reshape"
	"sdmxcli/pkg/contracts/domain"
)

// filterFlags collects repeated -filter DIM=V1,V2 flags.
type filterFlags map[string][]string

func (f filterFlags) String() string {
	parts := make([]string, 0, len(f))
	for k, v := range f {
		parts = append(parts, fmt.Sprintf("%s=%s", k, strings.Join(v, ",")))
	}
	return strings.Join(parts, " ")
}

func (f filterFlags) Set(s string) error {
	name, values, ok := strings.Cut(s, "=")
	if !ok || name == "" || values == "" {
		return fmt.Errorf("filter must have the form DIMENSION=VALUE[,VALUE...], got %q", s)
	}
	f[name] = append(f[name], strings.Split(values, ",")...)
	return nil
}

func main() {
	indicators := flag.String("indicators", "", "comma-separated indicator codes (required)")
	countries := flag.String("countries", "", "comma-separated ISO3 country codes")
	period := flag.String("period", "latest", "period: YYYY, YYYY-YYYY, latest, mrv:N or circa:YYYY")
	wideYear := flag.Bool("wide-year", false, "pivot periods into yrNNNN columns")
	wideIndicator := flag.Bool("wide-indicator", false, "pivot indicators into columns (same dataflow only)")
	dataflow := flag.String("dataflow", "", "explicit AGENCY.DATAFLOW override")
	bypass := flag.Bool("bypass-filters", false, "leave all dimensions unconstrained")
	clientFilter := flag.Bool("client-filter", false, "drop rows the server returned outside the requested filters")
	out := flag.String("out", "", "output file (.csv or .xlsx); omit for a terminal table")
	filters := filterFlags{}
	flag.Var(filters, "filter", "dimension filter DIM=V1,V2 (repeatable)")
	flag.Parse()

	if *indicators == "" {
		fmt.Fprintln(os.Stderr, "Error: -indicators is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		os.Exit(1)
	}
	paths, err := config.NewPaths(cfg.Paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve paths: %v\n", err)
		os.Exit(1)
	}

	logger := infrastructure.MustInitializeLogger(cfg.Logging)
	defer infrastructure.CloseLogFile()

	format, err := reshape.SelectFormat(false, *wideYear, *wideIndicator)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	periodSpec, err := query.ParsePeriod(*period)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := fetcher.New(fetcher.Options{
		Timeout:      cfg.Fetch.Timeout,
		MaxRetries:   cfg.Fetch.MaxRetries,
		RetryBackoff: cfg.Fetch.RetryBackoff,
		PageSize:     cfg.Fetch.PageSize,
		RateLimit:    cfg.Fetch.RateLimit,
		RateBurst:    cfg.Fetch.RateBurst,
		Logger:       logger,
	})
	store := metadata.NewStore(paths.CacheDir)
	pl := pipeline.New(cfg, store, client, logger)

	result, err := pl.Run(ctx, pipeline.Request{
		Indicators:       splitList(*indicators),
		Countries:        splitList(*countries),
		Period:           periodSpec,
		Filters:          filters,
		Format:           format,
		DataflowOverride: *dataflow,
		BypassFilters:    *bypass,
		ClientSideFilter: *clientFilter,
	})
	if err != nil {
		logger.Error("query failed", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	for _, warning := range result.Warnings {
		fmt.Fprintf(os.Stderr, "Warning [%s]: %s\n", warning.Code, warning.Message)
	}
	if result.EmptyResult {
		fmt.Println("No observations match this query.")
		return
	}

	headers, records := renderTabular(result)
	if *out != "" {
		if err := export(*out, headers, records, logger); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Wrote %d rows to %s\n", len(records), *out)
		return
	}

	printTable(headers, records)
}

func renderTabular(result *pipeline.Result) ([]string, [][]string) {
	if result.Format == domain.FormatLong {
		return exporter.TabularLong(result.Table)
	}
	return exporter.TabularWide(result.Wide)
}

func export(path string, headers []string, records [][]string, logger *slog.Logger) error {
	switch {
	case strings.HasSuffix(path, ".xlsx"):
		return exporter.NewXLSXWriter(logger).WriteXLSX(path, headers, records)
	case strings.HasSuffix(path, ".csv"):
		return exporter.NewCSVWriter(logger).WriteSimpleCSV(path, headers, records)
	default:
		return fmt.Errorf("unsupported output extension on %q (want .csv or .xlsx)", path)
	}
}

func printTable(headers []string, records [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	headerRow := make(table.Row, len(headers))
	for i, h := range headers {
		headerRow[i] = h
	}
	t.AppendHeader(headerRow)

	for _, record := range records {
		row := make(table.Row, len(record))
		for i, cell := range record {
			row[i] = cell
		}
		t.AppendRow(row)
	}

	t.Render()
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
