package export

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/flows"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/table"
)

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func totals(t *testing.T) *table.Table[string] {
	t.Helper()
	tt := table.New[string]("zone_totals", []string{"Total_destino", "Total_origen"})
	require.NoError(t, tt.Append("A", []float64{2, 15}))
	require.NoError(t, tt.Append("C", []float64{5, math.NaN()}))
	return tt
}

func splitRows() []model.ModeSplitRow {
	return []model.ModeSplitRow{
		{Pair: model.Pair{Origin: "A", Destination: "B"}, Counts: [model.NumModes]int64{3, 1, 0, 0, 0, 6, 0, 10}},
		{Pair: model.Pair{Origin: "B", Destination: "A"}, Counts: [model.NumModes]int64{0, 0, 0, 0, 0, 2, 0, 2}},
	}
}

func TestWriteTableCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "totals.csv")
	require.NoError(t, WriteTableCSV(path, totals(t), ZoneKey("Ubicación")))

	assert.Equal(t, "Ubicación,Total_destino,Total_origen\nA,2,15\nC,5,\n", readFile(t, path))
}

func TestWriteModeSplitCSV(t *testing.T) {
	ms, err := ModeSplitTable(splitRows())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "ms.csv")
	require.NoError(t, WriteTableCSV(path, ms, PairKey))

	lines := strings.Split(strings.TrimSpace(readFile(t, path)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Origen,Destino,Caminando,Transporte_Colectivo,Taxi,Bicicleta,Motocicleta,Vehiculo,Otros,Total", lines[0])
	assert.Equal(t, "A,B,3,1,0,0,0,6,0,10", lines[1])
}

func TestWriteRecordsCSV(t *testing.T) {
	dir := t.TempDir()
	trips := []model.TripRow{{ZoneID: "A", TripsOriginating: 12, TripsTerminating: 7}}
	require.NoError(t, WriteRecordsCSV(filepath.Join(dir, "trips.csv"), trips))
	assert.Equal(t, "zone_id,Viajes Origen,Viajes Destino\nA,12,7\n", readFile(t, filepath.Join(dir, "trips.csv")))

	require.NoError(t, WriteRecordsCSV(filepath.Join(dir, "empty.csv"), []model.TripRow{}))
	assert.Equal(t, "zone_id,Viajes Origen,Viajes Destino\n", readFile(t, filepath.Join(dir, "empty.csv")))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	require.NoError(t, WriteXLSX(path,
		TableSheet("zone_totals", totals(t), ZoneKey("Ubicación")),
		tripSheet([]model.TripRow{{ZoneID: "A", TripsOriginating: 12, TripsTerminating: 7}}),
	))

	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: "trips"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"zone_id", "Viajes Origen", "Viajes Destino"}, rows[0])
	assert.Equal(t, []string{"A", "12", "7"}, rows[1])

	rows, err = fetcher.ReadXLSX(path, fetcher.XLSXOptions{SheetName: "zone_totals"})
	require.NoError(t, err)
	assert.Equal(t, "Ubicación", rows[0][0])
	assert.Equal(t, "C", rows[2][0])

	assert.Error(t, WriteXLSX(path))
}

func TestLocalWrite(t *testing.T) {
	dir := t.TempDir()
	sq := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	edges, err := flows.Edges(splitRows(), map[string]model.Coordinate{"A": {X: 0, Y: 0}, "B": {X: 1, Y: 1}})
	require.NoError(t, err)

	files, err := Local{Dir: dir, XLSX: true, GeoJSON: true}.Write(Bundle{
		ZoneTotals: totals(t),
		Trips:      []model.TripRow{{ZoneID: "A", TripsOriginating: 1}},
		ModeSplit:  splitRows(),
		Edges:      edges,
		Nodes:      []flows.ZoneNode{{ZoneID: "A", Geometry: orb.MultiPolygon{sq}}},
	})
	require.NoError(t, err)

	var names []string
	for _, f := range files {
		names = append(names, filepath.Base(f))
	}
	assert.Equal(t, []string{
		FileZoneTotals, FileTrips, FileModeSplit, FileFlows,
		FileFlowsJSON, FileZonesJSON, FileWorkbook,
	}, names)

	fc, err := geojson.UnmarshalFeatureCollection([]byte(readFile(t, filepath.Join(dir, FileFlowsJSON))))
	require.NoError(t, err)
	assert.Len(t, fc.Features, 2)

	assert.Contains(t, readFile(t, filepath.Join(dir, FileFlows)), "PX_Origen,PY_Origen,PX_Destino,PY_Destino")
}

func TestLocalWriteCSVOnly(t *testing.T) {
	dir := t.TempDir()
	files, err := Local{Dir: dir}.Write(Bundle{ZoneTotals: totals(t)})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, FileZoneTotals)}, files)
}

func edgesAndNodes(t *testing.T) ([]flows.FlowEdge, []flows.ZoneNode) {
	t.Helper()
	edges, err := flows.Edges(splitRows(), map[string]model.Coordinate{"A": {X: -103.3, Y: 20.6}})
	require.NoError(t, err)
	sq := orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}}
	nodes := []flows.ZoneNode{
		{ZoneID: "A", TripsOriginating: 5, TripsTerminating: 3, Geometry: orb.MultiPolygon{sq}},
		{ZoneID: "B"},
	}
	return edges, nodes
}

func TestPostGIS_Copy(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	edges, nodes := edgesAndNodes(t)
	msCols := []string{"run_id", "origen", "destino", "caminando", "transporte_colectivo", "taxi",
		"bicicleta", "motocicleta", "vehiculo", "otros", "total", "geom"}
	mock.ExpectCopyFrom(pgx.Identifier{"odflow", "mode_split"}, msCols).WillReturnResult(2)
	mock.ExpectCopyFrom(pgx.Identifier{"odflow", "zone_trips"},
		[]string{"run_id", "zone_id", "viajes_origen", "viajes_destino", "geom"}).WillReturnResult(2)

	p := NewPostGIS(mock, "odflow", false)
	n, err := p.WriteModeSplit(context.Background(), "run-1", edges)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = p.WriteZoneTrips(context.Background(), "run-1", nodes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Upsert(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, nodes := edgesAndNodes(t)
	cols := []string{"run_id", "zone_id", "viajes_origen", "viajes_destino", "geom"}
	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_odflow_zone_trips"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_odflow_zone_trips"}, cols).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "odflow"."zone_trips" .* ON CONFLICT \("run_id", "zone_id"\)`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := NewPostGIS(mock, "odflow", true).WriteZoneTrips(context.Background(), "run-1", nodes)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostGIS_Migrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec(`CREATE SCHEMA IF NOT EXISTS "odflow"; CREATE TABLE IF NOT EXISTS "odflow"."mode_split"`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, NewPostGIS(mock, "odflow", false).Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
