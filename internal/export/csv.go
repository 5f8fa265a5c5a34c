// Package export writes run results to local files and PostGIS.
package export

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/table"
)

// KeyFormat names the key columns of a table and renders a key into them.
type KeyFormat[K comparable] struct {
	Header []string
	Format func(K) []string
}

// ZoneKey renders zone-keyed tables with a single column.
func ZoneKey(header string) KeyFormat[string] {
	return KeyFormat[string]{
		Header: []string{header},
		Format: func(id string) []string { return []string{id} },
	}
}

// PairKey renders pair-keyed tables as Origen, Destino.
var PairKey = KeyFormat[model.Pair]{
	Header: []string{"Origen", "Destino"},
	Format: func(p model.Pair) []string { return []string{p.Origin, p.Destination} },
}

// WriteTableCSV writes t with its key columns first. NaN cells are empty.
func WriteTableCSV[K comparable](path string, t *table.Table[K], key KeyFormat[K]) error {
	return writeFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		if err := cw.Write(append(append([]string{}, key.Header...), t.Columns()...)); err != nil {
			return err
		}
		for _, k := range t.Keys() {
			row, _ := t.Row(k)
			rec := key.Format(k)
			for _, v := range row {
				rec = append(rec, formatFloat(v))
			}
			if err := cw.Write(rec); err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	})
}

// WriteRecordsCSV writes typed rows using their csv struct tags. An empty
// slice still produces the header.
func WriteRecordsCSV[T any](path string, rows []T) error {
	return writeFile(path, func(w io.Writer) error {
		cw := csv.NewWriter(w)
		enc := csvutil.NewEncoder(cw)
		if len(rows) == 0 {
			var zero T
			if err := enc.EncodeHeader(zero); err != nil {
				return err
			}
		} else if err := enc.Encode(rows); err != nil {
			return err
		}
		cw.Flush()
		return cw.Error()
	})
}

// ModeSplitTable lays mode-split rows out as a pair-keyed table with one
// column per mode.
func ModeSplitTable(rows []model.ModeSplitRow) (*table.Table[model.Pair], error) {
	t := table.New[model.Pair]("mode_split", model.ModeColumns())
	for _, r := range rows {
		vals := make([]float64, model.NumModes)
		for i, c := range r.Counts {
			vals[i] = float64(c)
		}
		if err := t.Append(r.Pair, vals); err != nil {
			return nil, eris.Wrap(err, "export: mode split table")
		}
	}
	return t, nil
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func writeFile(path string, fn func(io.Writer) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "export: create dir for %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return eris.Wrapf(err, "export: write %s", path)
	}
	return eris.Wrapf(f.Close(), "export: close %s", path)
}
