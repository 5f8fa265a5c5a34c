package export

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/flows"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/odagg"
	"github.com/sells-group/odflow/internal/table"
)

// Output file names.
const (
	FileZoneTotals = "zone_totals.csv"
	FileZones      = "zone_attributes.csv"
	FileFeatures   = "zone_features.csv"
	FileTravelTime = "travel_times.csv"
	FileTrips      = "trips.csv"
	FileModeSplit  = "mode_split.csv"
	FileFlows      = "flows.csv"
	FileFlowsJSON  = "flows.geojson"
	FileZonesJSON  = "zones.geojson"
	FileWorkbook   = "odflow.xlsx"
)

// Bundle is everything a run exports. Nil parts are skipped.
type Bundle struct {
	ZoneTotals *table.Table[string]
	Zones      *table.Table[string]
	Trips      []model.TripRow
	ModeSplit  []model.ModeSplitRow
	Edges      []flows.FlowEdge
	Nodes      []flows.ZoneNode
}

// Local writes bundles under Dir.
type Local struct {
	Dir     string
	XLSX    bool
	GeoJSON bool
}

// Write exports b and returns the paths written.
func (l Local) Write(b Bundle) ([]string, error) {
	var written []string
	path := func(name string) string { return filepath.Join(l.Dir, name) }
	done := func(name string) { written = append(written, path(name)) }

	var modeSplit *table.Table[model.Pair]
	if b.ModeSplit != nil {
		var err error
		if modeSplit, err = ModeSplitTable(b.ModeSplit); err != nil {
			return written, err
		}
	}

	if b.ZoneTotals != nil {
		if err := WriteTableCSV(path(FileZoneTotals), b.ZoneTotals, ZoneKey(odagg.KeyColumn)); err != nil {
			return written, err
		}
		done(FileZoneTotals)
	}
	if b.Zones != nil {
		if err := WriteTableCSV(path(FileZones), b.Zones, ZoneKey("zone_id")); err != nil {
			return written, err
		}
		done(FileZones)
	}
	if b.Trips != nil {
		if err := WriteRecordsCSV(path(FileTrips), b.Trips); err != nil {
			return written, err
		}
		done(FileTrips)
	}
	if modeSplit != nil {
		if err := WriteTableCSV(path(FileModeSplit), modeSplit, PairKey); err != nil {
			return written, err
		}
		done(FileModeSplit)
	}
	if b.Edges != nil {
		if err := WriteRecordsCSV(path(FileFlows), b.Edges); err != nil {
			return written, err
		}
		done(FileFlows)
		if l.GeoJSON {
			if err := WriteGeoJSON(path(FileFlowsJSON), flows.EdgeCollection(b.Edges)); err != nil {
				return written, err
			}
			done(FileFlowsJSON)
		}
	}
	if b.Nodes != nil && l.GeoJSON {
		if err := WriteGeoJSON(path(FileZonesJSON), flows.NodeCollection(b.Nodes)); err != nil {
			return written, err
		}
		done(FileZonesJSON)
	}

	if l.XLSX {
		var sheets []Sheet
		if b.ZoneTotals != nil {
			sheets = append(sheets, TableSheet("zone_totals", b.ZoneTotals, ZoneKey(odagg.KeyColumn)))
		}
		if b.Trips != nil {
			sheets = append(sheets, tripSheet(b.Trips))
		}
		if modeSplit != nil {
			sheets = append(sheets, TableSheet("mode_split", modeSplit, PairKey))
		}
		if len(sheets) > 0 {
			if err := WriteXLSX(path(FileWorkbook), sheets...); err != nil {
				return written, eris.Wrap(err, "export: workbook")
			}
			done(FileWorkbook)
		}
	}

	zap.L().Info("export: files written", zap.String("dir", l.Dir), zap.Int("files", len(written)))
	return written, nil
}

func tripSheet(trips []model.TripRow) Sheet {
	s := Sheet{Name: "trips", Header: []string{"zone_id", "Viajes Origen", "Viajes Destino"}}
	for _, t := range trips {
		s.Rows = append(s.Rows, []any{t.ZoneID, t.TripsOriginating, t.TripsTerminating})
	}
	return s
}
