package ingest

import (
	"archive/zip"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseOD(t *testing.T) {
	raw := fetcher.NewRawTable(
		[]string{"Origen", "Destino", "Caminando", "Auto_Conductor", "Total"},
		[][]string{
			{"A", "B", "4", "6", "10"},
			{"A", "C", "5", "", "5"},
			{"12.0", "B", "1", "1", "2"},
			{"", "", "10", "7", "17"},
		},
	)

	records, err := ParseOD(raw, ODOptions{})
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, model.Pair{Origin: "A", Destination: "B"}, records[0].Pair)
	assert.Equal(t, 10.0, records[0].Total)
	assert.Equal(t, 6.0, records[0].Value("Auto_Conductor"))
	assert.True(t, math.IsNaN(records[1].Value("Auto_Conductor")))
	assert.True(t, records[1].HasMissing())
	assert.Equal(t, "12", records[2].Origin)
	assert.True(t, records[3].HasMissing())
	assert.Equal(t, []string{"Caminando", "Auto_Conductor", "Total"}, model.ODColumns(records))
}

func TestParseODMissingKeys(t *testing.T) {
	raw := fetcher.NewRawTable([]string{"Origin", "Caminando"}, nil)

	_, err := ParseOD(raw, ODOptions{})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Origen", "Destino"}, se.Missing)
}

func TestLoadODFromCSV(t *testing.T) {
	path := writeFile(t, "od.csv", "ORIGEN,DESTINO,Taxi,Total\nA,B,3,3\n")

	records, err := LoadOD(path, ODOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 3.0, records[0].Value("Taxi"))
}

func TestNormalizeID(t *testing.T) {
	tests := map[string]string{
		" 14 ":   "14",
		"14.0":   "14",
		"14.5":   "14.5",
		"A.1":    "A.1",
		"140010": "140010",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeID(in), "input %q", in)
	}
}

func TestLoadDENUE(t *testing.T) {
	path := writeFile(t, "denue.csv",
		"id,Código_Act,Latitud,Longitud\n"+
			"1,722515,20.5,-103.3\n"+
			"2,812110,20.6,-103.4\n"+
			"3,722515,,\n")

	points, err := LoadDENUE(path, "codigo_act", "")
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, orb.Point{-103.3, 20.5}, points[0].Point)
	assert.Equal(t, "722515", points[0].Key)
	assert.Equal(t, "812110", points[1].Key)
}

func TestLoadDENUEMissingColumn(t *testing.T) {
	path := writeFile(t, "denue.csv", "id,latitud,longitud\n1,20,-103\n")

	_, err := LoadDENUE(path, "", "")
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"codigo_act"}, se.Missing)
}

func TestLoadMiBiciKeepsInService(t *testing.T) {
	path := writeFile(t, "mibici.csv",
		"id,name,latitude,longitude,status\n"+
			"1,a,20.1,-103.1,IN_SERVICE\n"+
			"2,b,20.2,-103.2,NOT_IN_SERVICE\n"+
			"3,c,20.3,-103.3,in_service\n")

	points, err := LoadMiBici(path, "")
	require.NoError(t, err)
	assert.Equal(t, []orb.Point{{-103.1, 20.1}, {-103.3, 20.3}}, points)
}

func TestLoadGTFSStopsFromZip(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "gtfs.zip")
	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	w, err := zw.Create("feed/stops.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("stop_id,stop_name,stop_lat,stop_lon\nS1,Centro,20.67,-103.34\nS2,Norte,20.70,-103.35\n"))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	points, err := LoadGTFSStops(zipPath, dir)
	require.NoError(t, err)
	assert.Equal(t, []orb.Point{{-103.34, 20.67}, {-103.35, 20.70}}, points)
	_, statErr := os.Stat(filepath.Join(dir, "stops.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestParseAttributes(t *testing.T) {
	raw := fetcher.NewRawTable(
		[]string{"CODIGO_MZ", "name", "sum_POBTOT", "act_722515"},
		[][]string{
			{"1.0", "north", "10", "*"},
			{"2", "south", "20", "3"},
			{"", "blank", "1", "1"},
		},
	)

	out, err := ParseAttributes(raw, "codigo_mz")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, out.Keys())
	assert.Equal(t, []string{"sum_POBTOT", "act_722515"}, out.Columns())

	v, _ := out.Get("1", "act_722515")
	assert.True(t, math.IsNaN(v))
	v, _ = out.Get("2", "sum_POBTOT")
	assert.Equal(t, 20.0, v)

	_, err = ParseAttributes(raw, "ZONA")
	assert.Error(t, err)
}

const zonesGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {"type": "Feature", "properties": {"codigo_mz": 1, "POBTOT": 5, "VPH_AUTOM": 2},
     "geometry": {"type": "Polygon", "coordinates": [[[0,0],[2,0],[2,2],[0,2],[0,0]]]}},
    {"type": "Feature", "properties": {"codigo_mz": 2, "POBTOT": "*", "VPH_AUTOM": 1},
     "geometry": {"type": "Polygon", "coordinates": [[[2,0],[4,0],[4,2],[2,2],[2,0]]]}}
  ]
}`

func TestLoadZonesAndCoordinates(t *testing.T) {
	path := writeFile(t, "zones.geojson", zonesGeoJSON)

	zones, err := LoadZones(path, "CODIGO_MZ")
	require.NoError(t, err)
	require.Len(t, zones, 2)
	assert.Equal(t, "1", zones[0].ID)
	assert.Equal(t, "2", zones[1].ID)

	coords := Coordinates(zones)
	assert.InDelta(t, 1.0, coords[0].X, 1e-9)
	assert.InDelta(t, 1.0, coords[0].Y, 1e-9)
	assert.InDelta(t, 3.0, coords[1].X, 1e-9)
}

func TestLoadCensusBlocks(t *testing.T) {
	path := writeFile(t, "blocks.geojson", zonesGeoJSON)

	blocks, err := LoadCensusBlocks(path, []string{"POBTOT", "VPH_AUTOM"})
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	assert.Equal(t, 5.0, blocks[0].Values["POBTOT"])
	assert.True(t, math.IsNaN(blocks[1].Values["POBTOT"]))
	assert.InDelta(t, 1.0, blocks[0].Point[0], 1e-9)

	_, err = LoadCensusBlocks(path, []string{"TVIVPARHAB"})
	var se *model.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "census_blocks", se.Table)
}
