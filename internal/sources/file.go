package sources

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/xuri/excelize/v2"

	apperrors "ebidash/internal/errors"
	"ebidash/pkg/contracts/domain"
)

// FileRef locates a ledger on disk. Sheet applies to workbooks only; empty
// means the first sheet.
type FileRef struct {
	Path  string `yaml:"path" json:"path" validate:"required"`
	Sheet string `yaml:"sheet" json:"sheet,omitempty"`
}

// ExcelSource reads ledgers exported as xlsx workbooks
type ExcelSource struct {
	refs   map[domain.SourceID]FileRef
	logger *slog.Logger
}

// NewExcelSource creates a workbook source
func NewExcelSource(refs map[domain.SourceID]FileRef, logger *slog.Logger) *ExcelSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExcelSource{refs: copyRefs(refs), logger: logger.With(slog.String("component", "excel_source"))}
}

// Load opens the workbook for id and reads its sheet
func (s *ExcelSource) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	ref, err := lookupRef(s.refs, id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err)
	}

	f, err := excelize.OpenFile(ref.Path)
	if err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err).WithContext("path", ref.Path)
	}
	defer f.Close()

	sheet := ref.Sheet
	if sheet == "" {
		list := f.GetSheetList()
		if len(list) == 0 {
			return nil, apperrors.NewParsingError("workbook has no sheets", nil).
				WithContext("source", id.String()).
				WithContext("path", ref.Path)
		}
		sheet = list[0]
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err).
			WithContext("path", ref.Path).
			WithContext("sheet", sheet)
	}

	t := TableFromRows(id, StringRows(rows), s.logger)
	s.logger.InfoContext(ctx, "workbook loaded",
		slog.String("source", id.String()),
		slog.String("path", ref.Path),
		slog.String("sheet", sheet),
		slog.Int("rows", t.Len()),
	)
	return t, nil
}

// CSVSource reads ledgers exported as csv. A UTF-8 byte order mark is ignored.
type CSVSource struct {
	refs   map[domain.SourceID]FileRef
	logger *slog.Logger
}

// NewCSVSource creates a csv source
func NewCSVSource(refs map[domain.SourceID]FileRef, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{refs: copyRefs(refs), logger: logger.With(slog.String("component", "csv_source"))}
}

// Load reads the csv file for id
func (s *CSVSource) Load(ctx context.Context, id domain.SourceID) (*domain.Table, error) {
	ref, err := lookupRef(s.refs, id)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err)
	}

	f, err := os.Open(ref.Path)
	if err != nil {
		return nil, apperrors.NewRetrievalError(id.String(), err).WithContext("path", ref.Path)
	}
	defer f.Close()

	rows, err := ReadCSV(f)
	if err != nil {
		return nil, apperrors.NewParsingError("read csv", err).
			WithContext("source", id.String()).
			WithContext("path", ref.Path)
	}

	t := TableFromRows(id, StringRows(rows), s.logger)
	s.logger.InfoContext(ctx, "csv loaded",
		slog.String("source", id.String()),
		slog.String("path", ref.Path),
		slog.Int("rows", t.Len()),
	)
	return t, nil
}

// ReadCSV reads every record, tolerating ragged rows and a leading BOM
func ReadCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return rows, nil
}

func lookupRef(refs map[domain.SourceID]FileRef, id domain.SourceID) (FileRef, error) {
	ref, ok := refs[id]
	if !ok {
		return FileRef{}, apperrors.NewConfigError(fmt.Sprintf("no file configured for source %q", id), nil).
			WithContext("source", id.String())
	}
	return ref, nil
}

func copyRefs(refs map[domain.SourceID]FileRef) map[domain.SourceID]FileRef {
	out := make(map[domain.SourceID]FileRef, len(refs))
	for id, ref := range refs {
		out[id] = ref
	}
	return out
}
