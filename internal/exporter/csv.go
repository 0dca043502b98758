package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"ebidash/pkg/contracts/domain"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	logger *slog.Logger
}

// NewCSVWriter creates a new CSV writer instance
func NewCSVWriter(logger *slog.Logger) *CSVWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVWriter{logger: logger.With(slog.String("component", "csv_exporter"))}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	Headers   []string
	Records   [][]string
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
}

// WriteCSV writes headers and records to out
func (w *CSVWriter) WriteCSV(out io.Writer, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := out.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	if len(options.Headers) > 0 {
		if err := writer.Write(options.Headers); err != nil {
			return fmt.Errorf("failed to write headers: %w", err)
		}
	}
	for i, record := range options.Records {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteSheet writes a single sheet as a plain CSV table
func (w *CSVWriter) WriteSheet(out io.Writer, s Sheet, bom bool) error {
	return w.WriteCSV(out, WriteOptions{
		Headers:   s.Header,
		Records:   sheetRecords(s),
		BOMPrefix: bom,
	})
}

// WriteReport writes every sheet of a report as consecutive sections. Each
// section starts with a one-cell title row and ends with an empty line.
func (w *CSVWriter) WriteReport(out io.Writer, rep *domain.Report) error {
	sheets := ReportSheets(rep)
	w.logger.Debug("writing report CSV",
		slog.String("report", rep.Name),
		slog.Int("sections", len(sheets)))

	if _, err := out.Write(utf8BOM); err != nil {
		return fmt.Errorf("failed to write BOM: %w", err)
	}
	writer := csv.NewWriter(out)
	for _, s := range sheets {
		if err := writer.Write([]string{s.Name}); err != nil {
			return fmt.Errorf("failed to write section %s: %w", s.Name, err)
		}
		if err := writer.Write(s.Header); err != nil {
			return fmt.Errorf("failed to write section %s: %w", s.Name, err)
		}
		if err := writer.WriteAll(sheetRecords(s)); err != nil {
			return fmt.Errorf("failed to write section %s: %w", s.Name, err)
		}
		if err := writer.Write([]string{""}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes the report CSV to path, creating parent directories
func (w *CSVWriter) WriteFile(path string, rep *domain.Report) error {
	w.logger.Info("Writing CSV file",
		slog.String("file_path", path),
		slog.String("report", rep.Name))
	return writeFile(path, func(out io.Writer) error { return w.WriteReport(out, rep) })
}

// writeFile creates path and its directories and fills it with write
func writeFile(path string, write func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := write(file); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

func sheetRecords(s Sheet) [][]string {
	records := make([][]string, len(s.Rows))
	for i, row := range s.Rows {
		rec := make([]string, len(row))
		for j, v := range row {
			rec[j] = cellText(v)
		}
		records[i] = rec
	}
	return records
}
