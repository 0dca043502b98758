// Package exporter writes generated reports as JSON, CSV or XLSX.
//
// A report is first laid out as sheets (ReportSheets): one per aggregate,
// then the metrics, the counts, the matched rows of a search and the
// diagnostics log. CSVWriter emits the sheets as titled sections of one
// UTF-8 file with a BOM so Excel opens it correctly; XLSXWriter writes one
// worksheet per sheet with numeric cells kept numeric.
//
// Example usage:
//
//	exp := exporter.New(logger)
//	format, err := exporter.ParseFormat("xlsx")
//	...
//	err = exp.WriteFile("out/top-pis.xlsx", format, report)
package exporter
