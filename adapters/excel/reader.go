package excel

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"firecarbon/domain/core"
	"firecarbon/internal"

	"github.com/xuri/excelize/v2"
)

// TableReader reads a header-plus-rows table from .xlsx or .csv files. For
// workbooks the first sheet is used unless Sheet is set.
type TableReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	Sheet    string
	logger   *internal.Logger
}

// NewTableReader picks the format from the file extension.
func NewTableReader(filePath string, logger *internal.Logger) *TableReader {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	fileType := "xlsx"
	if strings.EqualFold(filepath.Ext(filePath), ".csv") {
		fileType = "csv"
	}
	return &TableReader{filePath: filePath, fileType: fileType, logger: logger.WithComponent("excel")}
}

// Read loads the whole table.
func (r *TableReader) Read(ctx context.Context) (*Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := os.Stat(r.filePath); err != nil {
		return nil, fmt.Errorf("%w: %s file not found: %s", core.ErrDataLoad, strings.ToUpper(r.fileType), r.filePath)
	}

	start := time.Now()
	var rows [][]string
	var err error
	switch r.fileType {
	case "csv":
		rows, err = r.readCSV()
	default:
		rows, err = r.readWorkbook()
	}
	if err != nil {
		return nil, err
	}
	r.logger.Debug("%s read in %.2fms (%d rows)", r.filePath, float64(time.Since(start).Nanoseconds())/1e6, len(rows))

	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s must have a header row and at least one data row", core.ErrDataLoad, r.filePath)
	}
	return processRows(rows), nil
}

func (r *TableReader) readWorkbook() ([][]string, error) {
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open workbook: %v", core.ErrDataLoad, err)
	}
	defer f.Close()

	sheet := r.Sheet
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read sheet %q: %v", core.ErrDataLoad, sheet, err)
	}
	return rows, nil
}

func (r *TableReader) readCSV() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open CSV file: %v", core.ErrDataLoad, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV file: %v", core.ErrDataLoad, err)
	}
	return rows, nil
}

// processRows keys every data row by the trimmed header. Short rows leave
// the missing cells empty; fully blank rows are dropped.
func processRows(rows [][]string) *Table {
	headers := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		headers[i] = strings.TrimSpace(h)
	}

	t := &Table{Headers: headers}
	for _, row := range rows[1:] {
		raw := make(RawRow, len(headers))
		blank := true
		for j, h := range headers {
			if j < len(row) {
				raw[h] = strings.TrimSpace(row[j])
			}
			if raw[h] != "" {
				blank = false
			}
		}
		if !blank {
			t.Rows = append(t.Rows, raw)
		}
	}
	return t
}

// ColumnLetter converts a 0-based column index to its letter (A, ..., Z, AA).
func ColumnLetter(colIdx int) string {
	result := ""
	colIdx++
	for colIdx > 0 {
		colIdx--
		result = string(rune('A'+(colIdx%26))) + result
		colIdx /= 26
	}
	return result
}
