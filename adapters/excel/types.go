package excel

// RawRow is one data row keyed by trimmed header.
type RawRow map[string]string

// Table is a header row plus data rows read from a workbook or CSV file.
type Table struct {
	Headers []string
	Rows    []RawRow
}

// Has reports whether the table carries a column.
func (t *Table) Has(header string) bool {
	for _, h := range t.Headers {
		if h == header {
			return true
		}
	}
	return false
}
