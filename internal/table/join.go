package table

import (
	"math"

	"github.com/rotisserie/eris"
)

// OuterJoin joins two tables with the same key type on their keys. Rows
// present on only one side get NaN for the other side's columns. Column
// names present on both sides get lsuffix and rsuffix. Keys keep left order,
// followed by right-only keys in right order.
func OuterJoin[K comparable](left, right *Table[K], lsuffix, rsuffix string) (*Table[K], error) {
	lcols, rcols := joinColumns(left.cols, right.cols, lsuffix, rsuffix)
	cols := append(append([]string{}, lcols...), rcols...)
	out := New[K](left.name, cols)
	if len(out.cols) != len(cols) {
		return nil, eris.Errorf("table: join %s/%s: ambiguous column names", left.name, right.name)
	}

	for r, key := range left.keys {
		vals := nanRow(len(cols))
		copy(vals, left.rows[r])
		if rr, ok := right.keyIdx[key]; ok {
			copy(vals[len(lcols):], right.rows[rr])
		}
		if err := out.Append(key, vals); err != nil {
			return nil, err
		}
	}
	for rr, key := range right.keys {
		if left.HasKey(key) {
			continue
		}
		vals := nanRow(len(cols))
		copy(vals[len(lcols):], right.rows[rr])
		if err := out.Append(key, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// LeftJoin keeps every left row and appends right's columns by key.
// Overlapping column names are an error.
func LeftJoin[K comparable](left, right *Table[K]) (*Table[K], error) {
	return LeftJoinOn(left, right, func(k K) K { return k }, "")
}

// LeftJoinOn keeps every left row and appends right's columns, suffixed,
// looked up through key. Rows with no match get NaN.
func LeftJoinOn[K, J comparable](left *Table[K], right *Table[J], key func(K) J, suffix string) (*Table[K], error) {
	cols := left.Columns()
	for _, c := range right.cols {
		cols = append(cols, c+suffix)
	}
	out := New[K](left.name, cols)
	if len(out.cols) != len(cols) {
		return nil, eris.Errorf("table: join %s/%s: overlapping columns without suffix", left.name, right.name)
	}

	for r, k := range left.keys {
		vals := nanRow(len(cols))
		copy(vals, left.rows[r])
		if rr, ok := right.keyIdx[key(k)]; ok {
			copy(vals[len(left.cols):], right.rows[rr])
		}
		if err := out.Append(k, vals); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func joinColumns(l, r []string, lsuffix, rsuffix string) ([]string, []string) {
	inLeft := make(map[string]bool, len(l))
	for _, c := range l {
		inLeft[c] = true
	}
	inRight := make(map[string]bool, len(r))
	for _, c := range r {
		inRight[c] = true
	}

	lcols := make([]string, len(l))
	for i, c := range l {
		lcols[i] = c
		if inRight[c] {
			lcols[i] = c + lsuffix
		}
	}
	rcols := make([]string, len(r))
	for i, c := range r {
		rcols[i] = c
		if inLeft[c] {
			rcols[i] = c + rsuffix
		}
	}
	return lcols, rcols
}

func nanRow(n int) []float64 {
	row := make([]float64, n)
	for i := range row {
		row[i] = math.NaN()
	}
	return row
}
