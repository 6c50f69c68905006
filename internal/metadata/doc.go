// Package metadata maintains the on-disk snapshot of remote SDMX
// metadata: dataflows, indicators, codelists, countries, regions, the
// indicator-to-dataflow map, and the derived tier classifications.
//
// The snapshot is versioned and replaced wholesale on every sync, never
// mutated in place, so concurrent readers always see a consistent view.
// Writes go through a temp-file-plus-rename so a half-written cache is
// never observable.
//
// Sync is a three-phase enrichment pipeline, each phase idempotent and
// independently re-runnable:
//
//  1. Attach dataflow membership to each indicator.
//  2. Compute a governance tier and reason from dataflow validity.
//  3. Attach the disaggregation dimensions (and which of them carry a
//     total code) from the dataflow schemas.
//
// The snapshot watermark records which schema parser produced it; the
// fallback parser may classify fewer indicators than the preferred one
// and that reduced fidelity must stay visible, never silent.
package metadata
