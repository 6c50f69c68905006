// Package exporter writes query results to CSV and XLSX files. Long
// tables and wide (pivoted) tables share one tabular rendering, so the
// two output formats always agree on headers and cell values.
package exporter
