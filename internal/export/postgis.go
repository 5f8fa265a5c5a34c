package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/db"
	"github.com/sells-group/odflow/internal/flows"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/zoning"
)

// PostGIS table names.
const (
	TableModeSplit = "mode_split"
	TableZoneTrips = "zone_trips"
)

// PostGIS writes run results into a PostGIS schema. Geometries are EWKB
// with SRID 4326.
type PostGIS struct {
	pool   db.Pool
	schema string
	upsert bool
}

// NewPostGIS returns an exporter for schema. With upsert set, exporting a
// run twice replaces its rows instead of failing on the primary key.
func NewPostGIS(pool db.Pool, schema string, upsert bool) *PostGIS {
	return &PostGIS{pool: pool, schema: schema, upsert: upsert}
}

// modeColumns are the lower-cased mode names used as SQL columns.
func modeColumns() []string {
	cols := make([]string, model.NumModes)
	for i, m := range model.Modes {
		cols[i] = strings.ToLower(string(m))
	}
	return cols
}

// Migrate creates the schema and result tables.
func (p *PostGIS) Migrate(ctx context.Context) error {
	schema := pgx.Identifier{p.schema}.Sanitize()
	var counts []string
	for _, c := range modeColumns() {
		counts = append(counts, fmt.Sprintf("\t%s BIGINT NOT NULL", pgx.Identifier{c}.Sanitize()))
	}
	ddl := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS postgis;
CREATE SCHEMA IF NOT EXISTS %[1]s;

CREATE TABLE IF NOT EXISTS %[1]s.%[2]s (
	run_id  TEXT NOT NULL,
	origen  TEXT NOT NULL,
	destino TEXT NOT NULL,
%[4]s,
	geom    geometry(LineString, %[5]d),
	PRIMARY KEY (run_id, origen, destino)
);

CREATE TABLE IF NOT EXISTS %[1]s.%[3]s (
	run_id         TEXT NOT NULL,
	zone_id        TEXT NOT NULL,
	viajes_origen  BIGINT NOT NULL,
	viajes_destino BIGINT NOT NULL,
	geom           geometry(MultiPolygon, %[5]d),
	PRIMARY KEY (run_id, zone_id)
);
`, schema, pgx.Identifier{TableModeSplit}.Sanitize(), pgx.Identifier{TableZoneTrips}.Sanitize(),
		strings.Join(counts, ",\n"), zoning.SRID)

	_, err := p.pool.Exec(ctx, ddl)
	return eris.Wrap(err, "postgis: migrate")
}

// WriteModeSplit stores one row per edge. Edges without coordinates get a
// NULL geometry.
func (p *PostGIS) WriteModeSplit(ctx context.Context, runID string, edges []flows.FlowEdge) (int64, error) {
	cols := append([]string{"run_id", "origen", "destino"}, modeColumns()...)
	cols = append(cols, "geom")

	rows := make([][]any, 0, len(edges))
	for _, e := range edges {
		row := []any{runID, e.Origin, e.Destination}
		for _, c := range e.Counts() {
			row = append(row, c)
		}
		var g any
		if e.Located() {
			wkb, err := zoning.EncodeEWKB(orb.LineString{{e.PXOrigin, e.PYOrigin}, {e.PXDest, e.PYDest}})
			if err != nil {
				return 0, eris.Wrapf(err, "postgis: encode edge %s->%s", e.Origin, e.Destination)
			}
			g = wkb
		}
		rows = append(rows, append(row, g))
	}
	return p.write(ctx, TableModeSplit, cols, []string{"run_id", "origen", "destino"}, rows)
}

// WriteZoneTrips stores one row per zone with its polygon.
func (p *PostGIS) WriteZoneTrips(ctx context.Context, runID string, nodes []flows.ZoneNode) (int64, error) {
	cols := []string{"run_id", "zone_id", "viajes_origen", "viajes_destino", "geom"}
	rows := make([][]any, 0, len(nodes))
	for _, n := range nodes {
		var g any
		if len(n.Geometry) > 0 {
			wkb, err := zoning.EncodeEWKB(n.Geometry)
			if err != nil {
				return 0, eris.Wrapf(err, "postgis: encode zone %s", n.ZoneID)
			}
			g = wkb
		}
		rows = append(rows, []any{runID, n.ZoneID, n.TripsOriginating, n.TripsTerminating, g})
	}
	return p.write(ctx, TableZoneTrips, cols, []string{"run_id", "zone_id"}, rows)
}

func (p *PostGIS) write(ctx context.Context, table string, cols, keys []string, rows [][]any) (int64, error) {
	var (
		n   int64
		err error
	)
	if p.upsert {
		n, err = db.BulkUpsert(ctx, p.pool, db.UpsertConfig{
			Table:        p.schema + "." + table,
			Columns:      cols,
			ConflictKeys: keys,
		}, rows)
	} else {
		n, err = db.CopyFrom(ctx, p.pool, p.schema, table, cols, rows)
	}
	if err != nil {
		return 0, eris.Wrapf(err, "postgis: write %s", table)
	}
	zap.L().Info("postgis: rows written",
		zap.String("table", p.schema+"."+table),
		zap.Int64("rows", n),
	)
	return n, nil
}
