// Package table provides a small keyed numeric table used to pass
// intermediate results between pipeline stages. Missing values are NaN.
package table

import (
	"math"
	"slices"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/odflow/internal/model"
)

// Table is an ordered set of rows keyed by K with named float64 columns.
type Table[K comparable] struct {
	name   string
	cols   []string
	colIdx map[string]int
	keys   []K
	keyIdx map[K]int
	rows   [][]float64
}

// New creates an empty table with the given columns.
func New[K comparable](name string, columns []string) *Table[K] {
	t := &Table[K]{
		name:   name,
		colIdx: make(map[string]int, len(columns)),
		keyIdx: make(map[K]int),
	}
	for _, c := range columns {
		if _, ok := t.colIdx[c]; ok {
			continue
		}
		t.colIdx[c] = len(t.cols)
		t.cols = append(t.cols, c)
	}
	return t
}

// Name returns the table name used in error messages.
func (t *Table[K]) Name() string { return t.name }

// Columns returns a copy of the column names in order.
func (t *Table[K]) Columns() []string { return slices.Clone(t.cols) }

// Keys returns a copy of the row keys in order.
func (t *Table[K]) Keys() []K { return slices.Clone(t.keys) }

// Len returns the number of rows.
func (t *Table[K]) Len() int { return len(t.keys) }

// HasColumn reports whether the table has the named column.
func (t *Table[K]) HasColumn(name string) bool {
	_, ok := t.colIdx[name]
	return ok
}

// HasKey reports whether the table has a row for key.
func (t *Table[K]) HasKey(key K) bool {
	_, ok := t.keyIdx[key]
	return ok
}

// Append adds a row. Keys must be unique and values must match the columns.
func (t *Table[K]) Append(key K, values []float64) error {
	if _, ok := t.keyIdx[key]; ok {
		return eris.Errorf("table: %s: duplicate key %v", t.name, key)
	}
	if len(values) != len(t.cols) {
		return eris.Errorf("table: %s: row has %d values, want %d", t.name, len(values), len(t.cols))
	}
	t.keyIdx[key] = len(t.keys)
	t.keys = append(t.keys, key)
	t.rows = append(t.rows, slices.Clone(values))
	return nil
}

// AddColumn appends a column filled with NaN.
func (t *Table[K]) AddColumn(name string) error {
	if _, ok := t.colIdx[name]; ok {
		return eris.Errorf("table: %s: duplicate column %q", t.name, name)
	}
	t.colIdx[name] = len(t.cols)
	t.cols = append(t.cols, name)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], math.NaN())
	}
	return nil
}

// Set writes one cell. The row and column must exist.
func (t *Table[K]) Set(key K, column string, v float64) error {
	r, ok := t.keyIdx[key]
	if !ok {
		return eris.Errorf("table: %s: unknown key %v", t.name, key)
	}
	c, ok := t.colIdx[column]
	if !ok {
		return eris.Errorf("table: %s: unknown column %q", t.name, column)
	}
	t.rows[r][c] = v
	return nil
}

// Get returns one cell. ok is false when the row or column is absent.
func (t *Table[K]) Get(key K, column string) (float64, bool) {
	r, ok := t.keyIdx[key]
	if !ok {
		return math.NaN(), false
	}
	c, ok := t.colIdx[column]
	if !ok {
		return math.NaN(), false
	}
	return t.rows[r][c], true
}

// Row returns a copy of the row for key.
func (t *Table[K]) Row(key K) ([]float64, bool) {
	r, ok := t.keyIdx[key]
	if !ok {
		return nil, false
	}
	return slices.Clone(t.rows[r]), true
}

// Column returns a copy of a column in row order.
func (t *Table[K]) Column(name string) ([]float64, error) {
	c, ok := t.colIdx[name]
	if !ok {
		return nil, &model.SchemaError{Table: t.name, Missing: []string{name}}
	}
	out := make([]float64, len(t.rows))
	for i, row := range t.rows {
		out[i] = row[c]
	}
	return out, nil
}

// Require returns a SchemaError listing every column not in the table.
func (t *Table[K]) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if _, ok := t.colIdx[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return &model.SchemaError{Table: t.name, Missing: missing}
	}
	return nil
}

// Select returns a new table with only the given columns, in that order.
func (t *Table[K]) Select(columns ...string) (*Table[K], error) {
	if err := t.Require(columns...); err != nil {
		return nil, err
	}
	out := New[K](t.name, columns)
	idx := make([]int, len(columns))
	for i, c := range columns {
		idx[i] = t.colIdx[c]
	}
	for r, key := range t.keys {
		vals := make([]float64, len(idx))
		for i, c := range idx {
			vals[i] = t.rows[r][c]
		}
		if err := out.Append(key, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Drop returns a new table without the given columns. Unknown names are ignored.
func (t *Table[K]) Drop(columns ...string) *Table[K] {
	keep := make([]string, 0, len(t.cols))
	for _, c := range t.cols {
		if !slices.Contains(columns, c) {
			keep = append(keep, c)
		}
	}
	out, _ := t.Select(keep...)
	return out
}

// Rename returns a copy of the table with every column renamed by fn.
func (t *Table[K]) Rename(fn func(string) string) (*Table[K], error) {
	cols := make([]string, len(t.cols))
	seen := make(map[string]bool, len(t.cols))
	for i, c := range t.cols {
		cols[i] = fn(c)
		if seen[cols[i]] {
			return nil, eris.Errorf("table: %s: rename produces duplicate column %q", t.name, cols[i])
		}
		seen[cols[i]] = true
	}
	out := New[K](t.name, cols)
	for r, key := range t.keys {
		if err := out.Append(key, t.rows[r]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Suffixed returns a copy with suffix appended to every column name.
func (t *Table[K]) Suffixed(suffix string) *Table[K] {
	out, _ := t.Rename(func(c string) string { return c + suffix })
	return out
}

// FillNaN replaces every missing value with v in place.
func (t *Table[K]) FillNaN(v float64) {
	for _, row := range t.rows {
		for i, x := range row {
			if math.IsNaN(x) {
				row[i] = v
			}
		}
	}
}

// SortKeys reorders rows by cmp.
func (t *Table[K]) SortKeys(cmp func(a, b K) int) {
	order := make([]int, len(t.keys))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int { return cmp(t.keys[a], t.keys[b]) })

	keys := make([]K, len(order))
	rows := make([][]float64, len(order))
	for i, o := range order {
		keys[i] = t.keys[o]
		rows[i] = t.rows[o]
		t.keyIdx[keys[i]] = i
	}
	t.keys = keys
	t.rows = rows
}

// Dense copies the given columns into a rows-by-columns matrix.
func (t *Table[K]) Dense(columns []string) (*mat.Dense, error) {
	sel, err := t.Select(columns...)
	if err != nil {
		return nil, err
	}
	if sel.Len() == 0 || len(columns) == 0 {
		return nil, eris.Errorf("table: %s: empty matrix (%d rows, %d columns)", t.name, sel.Len(), len(columns))
	}
	data := make([]float64, 0, sel.Len()*len(columns))
	for _, row := range sel.rows {
		data = append(data, row...)
	}
	return mat.NewDense(sel.Len(), len(columns), data), nil
}
