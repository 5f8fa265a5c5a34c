// Package ingest loads the raw pipeline inputs (survey, zones, points of
// interest, census blocks) into model values and tables.
package ingest

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/zoning"
)

// ODOptions configures survey loading.
type ODOptions struct {
	OriginColumn      string
	DestinationColumn string
	Charset           string
	Sheet             string
}

func (o ODOptions) withDefaults() ODOptions {
	if o.OriginColumn == "" {
		o.OriginColumn = "Origen"
	}
	if o.DestinationColumn == "" {
		o.DestinationColumn = "Destino"
	}
	return o
}

// LoadOD reads an OD survey table (CSV or XLSX).
func LoadOD(path string, opts ODOptions) ([]model.ODRecord, error) {
	raw, err := fetcher.ReadTable(path, fetcher.TableOptions{Charset: opts.Charset, Sheet: opts.Sheet})
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read od survey %s", path)
	}
	return ParseOD(raw, opts)
}

// ParseOD converts survey rows into records. Every column other than the
// origin and destination keys is a count column; the one named Total fills
// ODRecord.Total. Rows are kept as read, including a trailing grand-total
// row, and unparsable counts become NaN.
func ParseOD(raw *fetcher.RawTable, opts ODOptions) ([]model.ODRecord, error) {
	opts = opts.withDefaults()

	oi, oOK := raw.Index(opts.OriginColumn)
	di, dOK := raw.Index(opts.DestinationColumn)
	var missing []string
	if !oOK {
		missing = append(missing, opts.OriginColumn)
	}
	if !dOK {
		missing = append(missing, opts.DestinationColumn)
	}
	if len(missing) > 0 {
		return nil, &model.SchemaError{Table: "od_survey", Missing: missing}
	}

	type countCol struct {
		idx   int
		name  string
		total bool
	}
	var cols []countCol
	for i, h := range raw.Header {
		if i == oi || i == di || strings.TrimSpace(h) == "" {
			continue
		}
		cols = append(cols, countCol{
			idx:   i,
			name:  strings.TrimSpace(h),
			total: fetcher.FoldHeader(h) == strings.ToLower(string(model.ModeTotal)),
		})
	}

	records := make([]model.ODRecord, 0, len(raw.Rows))
	for _, row := range raw.Rows {
		rec := model.ODRecord{
			Pair: model.Pair{
				Origin:      NormalizeID(row[oi]),
				Destination: NormalizeID(row[di]),
			},
			Total:  math.NaN(),
			Counts: make([]model.ModeCount, 0, len(cols)),
		}
		for _, c := range cols {
			v := zoning.ParseNumber(row[c.idx])
			if c.total {
				rec.Total = v
				continue
			}
			rec.Counts = append(rec.Counts, model.ModeCount{Column: c.name, Count: v})
		}
		records = append(records, rec)
	}

	zap.L().Debug("ingest: od survey parsed",
		zap.Int("records", len(records)),
		zap.Int("count_columns", len(cols)),
	)
	return records, nil
}

// NormalizeID trims a zone id and drops a spreadsheet's ".0" suffix from
// integral numeric ids, so 12 and "12.0" name the same zone.
func NormalizeID(s string) string {
	s = strings.TrimSpace(s)
	if !strings.Contains(s, ".") {
		return s
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v != math.Trunc(v) || math.Abs(v) > 1e15 {
		return s
	}
	return strconv.FormatInt(int64(v), 10)
}
