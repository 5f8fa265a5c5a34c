package export

import (
	"io"
	"math"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/odflow/internal/table"
)

// Sheet is one worksheet of an XLSX workbook.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]any
}

// TableSheet converts a keyed table into a sheet.
func TableSheet[K comparable](name string, t *table.Table[K], key KeyFormat[K]) Sheet {
	s := Sheet{
		Name:   name,
		Header: append(append([]string{}, key.Header...), t.Columns()...),
	}
	for _, k := range t.Keys() {
		row, _ := t.Row(k)
		rec := make([]any, 0, len(s.Header))
		for _, part := range key.Format(k) {
			rec = append(rec, part)
		}
		for _, v := range row {
			rec = append(rec, v)
		}
		s.Rows = append(s.Rows, rec)
	}
	return s
}

// WriteXLSX saves the sheets as one workbook.
func WriteXLSX(path string, sheets ...Sheet) error {
	if len(sheets) == 0 {
		return eris.New("export: xlsx needs at least one sheet")
	}
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.Name)
		if err != nil {
			return eris.Wrapf(err, "export: add sheet %s", s.Name)
		}
		header := sheet.AddRow()
		for _, h := range s.Header {
			header.AddCell().SetString(h)
		}
		for _, r := range s.Rows {
			row := sheet.AddRow()
			for _, v := range r {
				setCell(row.AddCell(), v)
			}
		}
	}
	return writeFile(path, func(w io.Writer) error { return f.Write(w) })
}

func setCell(c *xlsx.Cell, v any) {
	switch v := v.(type) {
	case string:
		c.SetString(v)
	case int:
		c.SetInt(v)
	case int64:
		c.SetInt64(v)
	case float64:
		if math.IsNaN(v) {
			return
		}
		c.SetFloat(v)
	case nil:
	default:
		c.SetValue(v)
	}
}
