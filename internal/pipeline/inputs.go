package pipeline

import (
	"context"
	"strings"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/odflow/internal/config"
	"github.com/sells-group/odflow/internal/features"
	"github.com/sells-group/odflow/internal/fetcher"
	"github.com/sells-group/odflow/internal/ingest"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/odagg"
	"github.com/sells-group/odflow/internal/predict"
	"github.com/sells-group/odflow/internal/spatial"
	"github.com/sells-group/odflow/internal/table"
)

// Part selects which inputs Load reads.
type Part uint8

const (
	PartZones Part = 1 << iota
	PartAttributes
	PartOD
	PartModels

	PartAll = PartZones | PartAttributes | PartOD | PartModels
)

// Inputs holds everything read before the core stages start.
type Inputs struct {
	Zones []spatial.Zone
	// Attributes is the precomputed zone attribute table, when configured.
	Attributes *table.Table[string]
	// Layers are the point layers summarised per zone when no attribute
	// table is configured.
	Layers features.Layers
	OD     []model.ODRecord

	Origin      predict.Predictor
	Destination predict.Predictor
	ModeSplit   predict.Predictor
}

// ZoneIDs returns the zone ids in zone order.
func (in *Inputs) ZoneIDs() []string {
	ids := make([]string, len(in.Zones))
	for i, z := range in.Zones {
		ids[i] = z.ID
	}
	return ids
}

// Loader resolves and reads run inputs.
type Loader struct {
	cfg      *config.Config
	resolver *fetcher.Resolver
}

// NewLoader creates a Loader.
func NewLoader(cfg *config.Config, resolver *fetcher.Resolver) *Loader {
	return &Loader{cfg: cfg, resolver: resolver}
}

// Load reads the requested inputs concurrently. Each goroutine writes its
// own field of Inputs. Any failure cancels the remaining reads.
func (l *Loader) Load(ctx context.Context, parts Part) (*Inputs, error) {
	in := &Inputs{}
	g, gCtx := errgroup.WithContext(ctx)

	load := func(name, location string, fn func(path string) error) {
		g.Go(func() error {
			path, err := l.resolver.Resolve(gCtx, location)
			if err != nil {
				return eris.Wrapf(err, "pipeline: resolve %s", name)
			}
			if err := fn(path); err != nil {
				return eris.Wrapf(err, "pipeline: load %s", name)
			}
			return nil
		})
	}

	ic := l.cfg.Inputs
	if parts&PartZones != 0 {
		load("zones", ic.Zones, func(path string) error {
			zones, err := ingest.LoadZones(path, ic.ZoneIDField)
			if err != nil {
				return err
			}
			in.Zones = zones
			return nil
		})
	}

	if parts&PartAttributes != 0 {
		if ic.Attributes != "" {
			load("attributes", ic.Attributes, func(path string) error {
				attrs, err := ingest.LoadAttributes(path, ic.ZoneIDField, fetcher.TableOptions{Charset: ic.Encoding})
				if err != nil {
					return err
				}
				in.Attributes = attrs
				return nil
			})
		} else {
			l.loadLayers(in, load)
		}
	}

	if parts&PartOD != 0 {
		load("od survey", ic.ODSurvey, func(path string) error {
			records, err := ingest.LoadOD(path, ingest.ODOptions{
				OriginColumn:      l.cfg.OD.OriginColumn,
				DestinationColumn: l.cfg.OD.DestinationColumn,
				Charset:           ic.Encoding,
				Sheet:             ic.ODSheet,
			})
			if err != nil {
				return err
			}
			in.OD = records
			return nil
		})
	}

	if parts&PartModels != 0 {
		mc := l.cfg.Models
		for name, src := range map[string]struct {
			location string
			dest     *predict.Predictor
		}{
			"origin model":      {mc.Origin, &in.Origin},
			"destination model": {mc.Destination, &in.Destination},
			"mode split model":  {mc.ModeSplit, &in.ModeSplit},
		} {
			load(name, src.location, func(path string) error {
				m, err := predict.Load(path, mc.RemoteTimeout)
				if err != nil {
					return err
				}
				*src.dest = m
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	zap.L().Info("pipeline: inputs loaded",
		zap.Int("zones", len(in.Zones)),
		zap.Int("od_records", len(in.OD)),
		zap.Bool("precomputed_attributes", in.Attributes != nil),
	)
	return in, nil
}

// loadLayers schedules the census, DENUE, MiBici and GTFS reads. Layers
// without a configured location are skipped.
func (l *Loader) loadLayers(in *Inputs, load func(string, string, func(string) error)) {
	ic := l.cfg.Inputs
	in.Layers.CensusFields = ic.CensusFields

	if ic.CensusBlocks != "" {
		load("census blocks", ic.CensusBlocks, func(path string) error {
			blocks, err := ingest.LoadCensusBlocks(path, ic.CensusFields)
			if err != nil {
				return err
			}
			in.Layers.Blocks = blocks
			return nil
		})
	}
	if ic.DENUE != "" {
		load("denue", ic.DENUE, func(path string) error {
			points, err := ingest.LoadDENUE(path, ic.DENUEActivity, ic.Encoding)
			if err != nil {
				return err
			}
			in.Layers.DENUE = points
			return nil
		})
	}
	if ic.MiBici != "" {
		load("mibici", ic.MiBici, func(path string) error {
			stations, err := ingest.LoadMiBici(path, ic.Encoding)
			if err != nil {
				return err
			}
			in.Layers.MiBici = nonNil(stations)
			return nil
		})
	}
	if ic.GTFS != "" {
		load("gtfs", ic.GTFS, func(path string) error {
			stops, err := ingest.LoadGTFSStops(path, l.cfg.Fetch.CacheDir)
			if err != nil {
				return err
			}
			in.Layers.Stops = nonNil(stops)
			return nil
		})
	}
}

// nonNil keeps an empty layer distinct from a skipped one.
func nonNil(points []orb.Point) []orb.Point {
	if points == nil {
		return []orb.Point{}
	}
	return points
}

// Describe summarises the configured inputs for the run record.
func Describe(cfg *config.Config) model.RunInputs {
	attrs := cfg.Inputs.Attributes
	if attrs == "" {
		attrs = cfg.Inputs.CensusBlocks
	}
	return model.RunInputs{
		Zones:      cfg.Inputs.Zones,
		Attributes: attrs,
		ODSurvey:   cfg.Inputs.ODSurvey,
		Models:     strings.Join([]string{cfg.Models.Origin, cfg.Models.Destination, cfg.Models.ModeSplit}, ","),
	}
}

// ZoneTables are the zone-level tables derived from the inputs.
type ZoneTables struct {
	// Totals is the per-zone survey aggregate.
	Totals *table.Table[string]
	// Attributes is the raw attribute table the features are drawn from.
	Attributes *table.Table[string]
	Features   *table.Table[string]
}

// Totals aggregates the survey per zone. Zones seen on one side only get 0
// for the other side when fill is set.
func Totals(records []model.ODRecord, dropTrailing, fill bool) (*table.Table[string], error) {
	totals, err := odagg.ZoneTotals(records, dropTrailing)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: zone totals")
	}
	if fill {
		totals.FillNaN(0)
	}
	return totals, nil
}

// BuildZoneTables derives the survey totals, the attribute table and the
// feature table. A precomputed attribute table is used as-is; otherwise the
// point layers and totals are summarised per zone.
func BuildZoneTables(cfg *config.Config, in *Inputs) (*ZoneTables, error) {
	out := &ZoneTables{}
	if in.OD != nil {
		totals, err := Totals(in.OD, cfg.OD.DropTrailing, cfg.OD.FillMissingTotals)
		if err != nil {
			return nil, err
		}
		out.Totals = totals
	}

	out.Attributes = in.Attributes
	if out.Attributes == nil {
		layers := in.Layers
		layers.Totals = out.Totals
		attrs, err := features.BuildAttributes(spatial.NewIndex(in.Zones), layers)
		if err != nil {
			return nil, err
		}
		out.Attributes = attrs
	}

	feats, err := features.Build(in.ZoneIDs(), out.Attributes, features.Schema{
		Columns:     cfg.Features.Columns,
		Numerator:   cfg.Features.VehicleHouseholds,
		Denominator: cfg.Features.Dwellings,
	})
	if err != nil {
		return nil, err
	}
	out.Features = feats
	return out, nil
}

// PairZoneTable is the per-zone table joined onto each OD pair: every
// attribute column, the derived features and the trip estimates, one row per
// zone in ids order. Zones missing from the attribute table get 0. Derived
// and trip columns replace attribute columns of the same name.
func PairZoneTable(ids []string, attrs, feats, trips *table.Table[string]) (*table.Table[string], error) {
	zones := table.New[string]("zones", nil)
	for _, id := range ids {
		if err := zones.Append(id, nil); err != nil {
			return nil, eris.Wrap(err, "pipeline: zone index")
		}
	}

	out := zones
	if attrs != nil {
		drop := append(feats.Columns(), trips.Columns()...)
		joined, err := table.LeftJoin(zones, attrs.Drop(drop...))
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: join attributes")
		}
		joined.FillNaN(0)
		out = joined
	}

	out, err := table.LeftJoin(out, feats)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: join features")
	}
	if out, err = table.LeftJoin(out, trips); err != nil {
		return nil, eris.Wrap(err, "pipeline: join trips")
	}
	return out, nil
}
