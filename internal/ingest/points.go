package ingest

import (
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/spatial"
	"github.com/sells-group/odflow/internal/zoning"
)

// StatusInService marks an active MiBici station.
const StatusInService = "IN_SERVICE"

type denueRow struct {
	Latitude  string `csv:"latitud"`
	Longitude string `csv:"longitud"`
}

type stationRow struct {
	Latitude  string `csv:"latitude"`
	Longitude string `csv:"longitude"`
	Status    string `csv:"status"`
}

type stopRow struct {
	ID        string `csv:"stop_id"`
	Latitude  string `csv:"stop_lat"`
	Longitude string `csv:"stop_lon"`
}

// LoadDENUE reads DENUE establishments as points tagged with the value of
// activityField (the SCIAN activity code).
func LoadDENUE(path, activityField, charset string) ([]spatial.Tagged, error) {
	if activityField == "" {
		activityField = "codigo_act"
	}
	var points []spatial.Tagged
	var skipped int
	err := decodeCSV(path, charset, "denue", []string{"latitud", "longitud", activityField},
		func(dec *csvutil.Decoder) error {
			var row denueRow
			if err := dec.Decode(&row); err != nil {
				return err
			}
			p, ok := lonLat(row.Longitude, row.Latitude)
			if !ok {
				skipped++
				return nil
			}
			points = append(points, spatial.Tagged{Point: p, Key: NormalizeID(column(dec, activityField))})
			return nil
		})
	if err != nil {
		return nil, err
	}
	logSkipped("denue", skipped)
	return points, nil
}

// LoadMiBici reads bike-share stations and keeps those in service.
func LoadMiBici(path, charset string) ([]orb.Point, error) {
	var points []orb.Point
	var skipped int
	err := decodeCSV(path, charset, "mibici", []string{"latitude", "longitude", "status"},
		func(dec *csvutil.Decoder) error {
			var row stationRow
			if err := dec.Decode(&row); err != nil {
				return err
			}
			if !strings.EqualFold(strings.TrimSpace(row.Status), StatusInService) {
				return nil
			}
			p, ok := lonLat(row.Longitude, row.Latitude)
			if !ok {
				skipped++
				return nil
			}
			points = append(points, p)
			return nil
		})
	if err != nil {
		return nil, err
	}
	logSkipped("mibici", skipped)
	return points, nil
}

// LoadGTFSStops reads stops.txt from a GTFS feed. path may be the zip
// archive or an extracted stops.txt.
func LoadGTFSStops(path, workDir string) ([]orb.Point, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		extracted, err := fetcher.ExtractZIPFile(path, "stops.txt", workDir)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: extract stops.txt from %s", path)
		}
		defer os.Remove(extracted) //nolint:errcheck
		path = extracted
	}

	var points []orb.Point
	var skipped int
	err := decodeCSV(path, "", "gtfs_stops", []string{"stop_lat", "stop_lon"},
		func(dec *csvutil.Decoder) error {
			var row stopRow
			if err := dec.Decode(&row); err != nil {
				return err
			}
			p, ok := lonLat(row.Longitude, row.Latitude)
			if !ok {
				skipped++
				return nil
			}
			points = append(points, p)
			return nil
		})
	if err != nil {
		return nil, err
	}
	logSkipped("gtfs_stops", skipped)
	return points, nil
}

// decodeCSV opens a delimited file, folds its header so column lookups are
// case- and accent-insensitive, checks the required columns and calls next
// until the input is exhausted.
func decodeCSV(path, charset, tableName string, required []string, next func(*csvutil.Decoder) error) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	reader, err := fetcher.NewCSVReader(f, fetcher.CSVOptions{Charset: charset, TrimSpace: true})
	if err != nil {
		return err
	}
	header, err := reader.Read()
	if err != nil {
		return eris.Wrapf(err, "ingest: read header of %s", path)
	}
	folded := make([]string, len(header))
	present := make(map[string]bool, len(header))
	for i, h := range header {
		folded[i] = fetcher.FoldHeader(h)
		present[folded[i]] = true
	}
	var missing []string
	for _, r := range required {
		if !present[fetcher.FoldHeader(r)] {
			missing = append(missing, r)
		}
	}
	if len(missing) > 0 {
		return &model.SchemaError{Table: tableName, Missing: missing}
	}

	dec, err := csvutil.NewDecoder(reader, folded...)
	if err != nil {
		return eris.Wrapf(err, "ingest: decoder for %s", path)
	}
	for {
		err := next(dec)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return eris.Wrapf(err, "ingest: decode %s", path)
		}
	}
}

// column returns the current record's value for a header name.
func column(dec *csvutil.Decoder, name string) string {
	want := fetcher.FoldHeader(name)
	record := dec.Record()
	for i, h := range dec.Header() {
		if h == want && i < len(record) {
			return strings.TrimSpace(record[i])
		}
	}
	return ""
}

func lonLat(lon, lat string) (orb.Point, bool) {
	x, y := zoning.ParseNumber(lon), zoning.ParseNumber(lat)
	if math.IsNaN(x) || math.IsNaN(y) {
		return orb.Point{}, false
	}
	return orb.Point{x, y}, true
}

func logSkipped(layer string, skipped int) {
	if skipped == 0 {
		return
	}
	zap.L().Warn("ingest: skipped rows without coordinates",
		zap.String("layer", layer),
		zap.Int("skipped", skipped),
	)
}
