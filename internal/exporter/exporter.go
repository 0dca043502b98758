package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"ebidash/pkg/contracts/domain"
)

// Exporter writes a report in any supported format
type Exporter struct {
	csv  *CSVWriter
	xlsx *XLSXWriter
}

// New creates an exporter
func New(logger *slog.Logger) *Exporter {
	return &Exporter{
		csv:  NewCSVWriter(logger),
		xlsx: NewXLSXWriter(logger),
	}
}

// Write encodes rep to out
func (e *Exporter) Write(out io.Writer, format Format, rep *domain.Report) error {
	switch format {
	case FormatJSON, "":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case FormatCSV:
		return e.csv.WriteReport(out, rep)
	case FormatXLSX:
		return e.xlsx.WriteReport(out, rep)
	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

// WriteFile writes rep to path in the given format
func (e *Exporter) WriteFile(path string, format Format, rep *domain.Report) error {
	if format == FormatCSV {
		return e.csv.WriteFile(path, rep)
	}
	return writeFile(path, func(w io.Writer) error { return e.Write(w, format, rep) })
}
