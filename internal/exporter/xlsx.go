package exporter

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"ebidash/pkg/contracts/domain"
)

// maxSheetName is Excel's limit on worksheet names
const maxSheetName = 31

// XLSXWriter exports reports as workbooks, one worksheet per sheet
type XLSXWriter struct {
	logger *slog.Logger
}

// NewXLSXWriter creates a workbook writer
func NewXLSXWriter(logger *slog.Logger) *XLSXWriter {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXWriter{logger: logger.With(slog.String("component", "xlsx_exporter"))}
}

// WriteReport writes the report workbook to out
func (x *XLSXWriter) WriteReport(out io.Writer, rep *domain.Report) error {
	sheets := ReportSheets(rep)
	x.logger.Debug("writing report workbook",
		slog.String("report", rep.Name),
		slog.Int("sheets", len(sheets)))
	return x.WriteSheets(out, sheets)
}

// WriteSheets writes one worksheet per sheet. Numbers stay numeric cells.
func (x *XLSXWriter) WriteSheets(out io.Writer, sheets []Sheet) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	used := map[string]bool{}
	first := ""
	for _, s := range sheets {
		name := sheetName(s.Name, used)
		if first == "" {
			first = name
			// the default sheet is reused so the workbook has no empty tab
			if err := f.SetSheetName("Sheet1", name); err != nil {
				return fmt.Errorf("failed to name sheet %s: %w", name, err)
			}
		} else if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}

		header := make([]any, len(s.Header))
		for i, h := range s.Header {
			header[i] = h
		}
		if err := f.SetSheetRow(name, "A1", &header); err != nil {
			return fmt.Errorf("failed to write header of %s: %w", name, err)
		}
		if len(s.Header) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(s.Header), 1)
			if err := f.SetCellStyle(name, "A1", last, bold); err != nil {
				return fmt.Errorf("failed to style header of %s: %w", name, err)
			}
		}

		for i, row := range s.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, i+2)
			values := append([]any(nil), row...)
			if err := f.SetSheetRow(name, cell, &values); err != nil {
				return fmt.Errorf("failed to write row %d of %s: %w", i+1, name, err)
			}
		}
	}

	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// sheetName makes a valid, unique worksheet name
func sheetName(name string, used map[string]bool) string {
	clean := strings.Map(func(r rune) rune {
		if strings.ContainsRune(`[]:*?/\`, r) {
			return '_'
		}
		return r
	}, name)
	if clean == "" {
		clean = "sheet"
	}
	if len(clean) > maxSheetName {
		clean = clean[:maxSheetName]
	}

	candidate := clean
	for i := 2; used[strings.ToLower(candidate)]; i++ {
		suffix := fmt.Sprintf("~%d", i)
		base := clean
		if len(base)+len(suffix) > maxSheetName {
			base = base[:maxSheetName-len(suffix)]
		}
		candidate = base + suffix
	}
	used[strings.ToLower(candidate)] = true
	return candidate
}
