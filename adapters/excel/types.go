package excel

import "strings"

// Table is a raw tabular dataset: trimmed headers and string cells
type Table struct {
	Headers []string
	Rows    [][]string
}

// ColumnIndex returns the position of a header, matched case-insensitively
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Headers {
		if strings.EqualFold(h, name) {
			return i, true
		}
	}
	return 0, false
}

// Cell returns the trimmed cell, empty when the row is short
func (t *Table) Cell(row, col int) string {
	r := t.Rows[row]
	if col >= len(r) {
		return ""
	}
	return r[col]
}
