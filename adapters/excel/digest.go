package excel

import (
	"context"
	"fmt"
	"strings"

	"firecarbon/domain/core"
	"firecarbon/domain/soil"
	"firecarbon/internal"
	"firecarbon/ports"

	"github.com/xuri/excelize/v2"
)

// DigestLoader extracts digest replicate rows from laboratory workbooks.
// Each worksheet holds one sample. The sample label is the last non-blank
// cell of the label column; header and comment rows above it carry other
// text and are skipped because their label cell does not match.
type DigestLoader struct {
	Path           string
	Sheets         []int // 0-based worksheet indices
	LabelColumn    string
	PositionColumn string
	DataColumn     string

	logger *internal.Logger
}

var _ ports.DigestSource = (*DigestLoader)(nil)

// NewDigestLoader validates the column letters up front.
func NewDigestLoader(path string, sheets []int, label, position, data string, logger *internal.Logger) (*DigestLoader, error) {
	for _, col := range []string{label, position, data} {
		if _, err := excelize.ColumnNameToNumber(col); err != nil {
			return nil, core.NewConfigurationError("invalid column letter %q", col)
		}
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &DigestLoader{
		Path:           path,
		Sheets:         sheets,
		LabelColumn:    strings.ToUpper(label),
		PositionColumn: strings.ToUpper(position),
		DataColumn:     strings.ToUpper(data),
		logger:         logger.WithComponent("digests"),
	}, nil
}

// LoadDigests reads every configured sheet in order and concatenates the
// matching rows. All values are returned as text.
func (l *DigestLoader) LoadDigests(ctx context.Context) ([]soil.DigestRow, error) {
	f, err := excelize.OpenFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook %s: %v", core.ErrDataLoad, l.Path, err)
	}
	defer f.Close()

	labelIdx, _ := excelize.ColumnNameToNumber(l.LabelColumn)
	posIdx, _ := excelize.ColumnNameToNumber(l.PositionColumn)
	dataIdx, _ := excelize.ColumnNameToNumber(l.DataColumn)

	sheets := f.GetSheetList()
	var out []soil.DigestRow
	for _, idx := range l.Sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if idx < 0 || idx >= len(sheets) {
			return nil, fmt.Errorf("%w: %s has %d sheets, index %d requested", core.ErrDataLoad, l.Path, len(sheets), idx)
		}
		sheet := sheets[idx]

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read sheet %q: %v", core.ErrDataLoad, sheet, err)
		}

		label := lastNonBlank(rows, labelIdx-1)
		if label == "" {
			return nil, core.NewNoSampleLabelError(l.Path, sheet, l.LabelColumn)
		}

		kept := 0
		for _, row := range rows {
			if cell(row, labelIdx-1) != label {
				continue
			}
			out = append(out, soil.DigestRow{
				Sheet:       sheet,
				SampleLabel: label,
				Position:    cell(row, posIdx-1),
				RawValue:    cell(row, dataIdx-1),
			})
			kept++
		}
		l.logger.Debug("sheet %q: sample %q, %d digest rows", sheet, label, kept)
	}

	l.logger.Info("loaded %d digest rows from %d sheets of %s", len(out), len(l.Sheets), l.Path)
	return out, nil
}

func lastNonBlank(rows [][]string, col int) string {
	for i := len(rows) - 1; i >= 0; i-- {
		if v := cell(rows[i], col); v != "" {
			return v
		}
	}
	return ""
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}
