package fetcher

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// RawTable is a header plus string rows as read from a tabular file.
type RawTable struct {
	Header []string
	Rows   [][]string

	index map[string]int
}

// NewRawTable builds a RawTable. Short rows are padded to the header width.
func NewRawTable(header []string, rows [][]string) *RawTable {
	t := &RawTable{Header: header, Rows: rows, index: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.index[FoldHeader(h)]; !dup {
			t.index[FoldHeader(h)] = i
		}
	}
	for i, row := range t.Rows {
		if len(row) < len(header) {
			padded := make([]string, len(header))
			copy(padded, row)
			t.Rows[i] = padded
		}
	}
	return t
}

// Index returns the position of a column, matching names with FoldHeader.
func (t *RawTable) Index(name string) (int, bool) {
	i, ok := t.index[FoldHeader(name)]
	return i, ok
}

// Value returns the cell for row and column name, or "" when absent.
func (t *RawTable) Value(row []string, name string) string {
	i, ok := t.Index(name)
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// TableOptions configures ReadTable.
type TableOptions struct {
	Charset string
	// Sheet selects an XLSX sheet by name; the first sheet is used when empty.
	Sheet string
}

// ReadTable reads a CSV or XLSX file into a RawTable, dispatching on the
// file extension. The first row is the header.
func ReadTable(path string, opts TableOptions) (*RawTable, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{SheetName: opts.Sheet})
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, eris.Errorf("fetcher: %s has no header row", path)
		}
		return NewRawTable(rows[0], rows[1:]), nil
	case ".csv", ".txt":
		return ReadCSVFile(path, CSVOptions{Charset: opts.Charset, TrimSpace: true})
	default:
		return nil, eris.Errorf("fetcher: unsupported table format %q", filepath.Ext(path))
	}
}
