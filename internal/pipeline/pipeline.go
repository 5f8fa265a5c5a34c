// Package pipeline runs the end-to-end flow estimation: input loading,
// zone features, survey aggregation, travel-time matrices, trip generation,
// mode split, flow assembly and export.
package pipeline

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/odflow/internal/config"
	"github.com/sells-group/odflow/internal/export"
	"github.com/sells-group/odflow/internal/flows"
	"github.com/sells-group/odflow/internal/ingest"
	"github.com/sells-group/odflow/internal/metrics"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/modesplit"
	"github.com/sells-group/odflow/internal/odagg"
	"github.com/sells-group/odflow/internal/quota"
	"github.com/sells-group/odflow/internal/resilience"
	"github.com/sells-group/odflow/internal/store"
	"github.com/sells-group/odflow/internal/table"
	"github.com/sells-group/odflow/internal/traveltime"
	"github.com/sells-group/odflow/internal/tripgen"
)

// Phase names, in execution order.
const (
	PhaseLoad       = "1_load_inputs"
	PhaseOD         = "2_od_aggregate"
	PhaseFeatures   = "3_features"
	PhaseTravelTime = "4_travel_time"
	PhaseTripGen    = "5_trip_generation"
	PhasePairTable  = "6_pair_table"
	PhaseModeSplit  = "7_mode_split"
	PhaseAssembly   = "8_assembly"
	PhaseExport     = "9_export"
)

// Pipeline orchestrates a single flow estimation run.
type Pipeline struct {
	cfg       *config.Config
	store     store.Store
	loader    *Loader
	builder   *traveltime.Builder
	scheduler *quota.Scheduler
	local     export.Local
	postgis   *export.PostGIS
	metrics   *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPostGIS exports mode split and zone trips to PostGIS.
func WithPostGIS(pg *export.PostGIS) Option {
	return func(p *Pipeline) { p.postgis = pg }
}

// WithMetrics records phase and run metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline. The scheduler must be the one the builder
// acquires quota from; its counters feed the run result.
func New(cfg *config.Config, st store.Store, loader *Loader, builder *traveltime.Builder, scheduler *quota.Scheduler, opts ...Option) *Pipeline {
	p := &Pipeline{
		cfg:       cfg,
		store:     st,
		loader:    loader,
		builder:   builder,
		scheduler: scheduler,
		local: export.Local{
			Dir:     cfg.Output.Dir,
			XLSX:    cfg.Output.XLSX,
			GeoJSON: cfg.Output.GeoJSON,
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Output is what a successful run produced.
type Output struct {
	RunID     string
	Result    *model.RunResult
	Trips     []model.TripRow
	ModeSplit []model.ModeSplitRow
	Edges     []flows.FlowEdge
	Nodes     []flows.ZoneNode
	Files     []string
}

// Run executes every stage in order. Stages are not retried; a failure
// marks the run failed and records whether restarting it may help.
func (p *Pipeline) Run(ctx context.Context) (*Output, error) {
	run, err := p.store.CreateRun(ctx, Describe(p.cfg))
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	log := zap.L().With(zap.String("run_id", run.ID))
	log.Info("pipeline: starting run")

	result := &model.RunResult{}
	out := &Output{RunID: run.ID, Result: result}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
	}

	trackPhase := func(name string, fn func() (*model.PhaseResult, error)) error {
		phase, phaseErr := p.store.CreatePhase(ctx, run.ID, name)
		if phaseErr != nil {
			log.Warn("pipeline: failed to create phase", zap.String("phase", name), zap.Error(phaseErr))
		}

		start := time.Now()
		phaseResult, fnErr := fn()
		elapsed := time.Since(start)

		if phaseResult == nil {
			phaseResult = &model.PhaseResult{}
		}
		phaseResult.Name = name
		phaseResult.Duration = elapsed.Milliseconds()

		if fnErr != nil {
			phaseResult.Status = model.PhaseStatusFailed
			phaseResult.Error = fnErr.Error()
			log.Error("pipeline: phase failed",
				zap.String("phase", name),
				zap.Int64("duration_ms", phaseResult.Duration),
				zap.Error(fnErr),
			)
		} else {
			phaseResult.Status = model.PhaseStatusComplete
			log.Info("pipeline: phase complete",
				zap.String("phase", name),
				zap.Int64("duration_ms", phaseResult.Duration),
			)
		}

		if phase != nil {
			_ = p.store.CompletePhase(ctx, phase.ID, phaseResult)
		}
		if p.metrics != nil {
			p.metrics.ObservePhase(name, elapsed, phaseResult.Status)
		}
		result.Phases = append(result.Phases, *phaseResult)
		return fnErr
	}

	err = p.execute(ctx, out, setStatus, trackPhase)

	calls, cooldowns := p.scheduler.Stats()
	result.MatrixCalls = calls
	result.Cooldowns = cooldowns

	status := model.RunStatusComplete
	if err != nil {
		status = model.RunStatusFailed
		result.Error = err.Error()
		result.Restartable = resilience.Restartable(err)
		log.Error("pipeline: run failed",
			zap.String("class", string(resilience.Classify(err))),
			zap.Bool("restartable", result.Restartable),
			zap.Error(err),
		)
	}
	if updateErr := p.store.UpdateRunResult(ctx, run.ID, status, result); updateErr != nil {
		log.Warn("pipeline: failed to record run result", zap.Error(updateErr))
	}
	if p.metrics != nil {
		p.metrics.ObserveRun(status)
	}
	if err != nil {
		return out, err
	}

	log.Info("pipeline: run complete",
		zap.Int("zones", result.Zones),
		zap.Int("pairs", result.Pairs),
		zap.Int("matrix_calls", calls),
		zap.Int("cooldowns", cooldowns),
	)
	return out, nil
}

type phaseFunc func(name string, fn func() (*model.PhaseResult, error)) error

func (p *Pipeline) execute(ctx context.Context, out *Output, setStatus func(model.RunStatus), trackPhase phaseFunc) error {
	result := out.Result

	// ===== Phase 1: Load inputs (concurrent) =====
	setStatus(model.RunStatusLoading)
	var in *Inputs
	if err := trackPhase(PhaseLoad, func() (*model.PhaseResult, error) {
		loaded, err := p.loader.Load(ctx, PartAll)
		if err != nil {
			return nil, err
		}
		in = loaded
		result.Zones = len(in.Zones)
		return &model.PhaseResult{Metadata: map[string]any{
			"zones":      len(in.Zones),
			"od_records": len(in.OD),
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 2: OD aggregation =====
	setStatus(model.RunStatusFeatures)
	var od *table.Table[model.Pair]
	var totals *table.Table[string]
	if err := trackPhase(PhaseOD, func() (*model.PhaseResult, error) {
		var err error
		if totals, err = Totals(in.OD, p.cfg.OD.DropTrailing, p.cfg.OD.FillMissingTotals); err != nil {
			return nil, err
		}
		if od, err = odagg.Pairwise(in.OD); err != nil {
			return nil, err
		}
		result.Pairs = od.Len()
		return &model.PhaseResult{Metadata: map[string]any{
			"zones_in_survey": totals.Len(),
			"pairs":           od.Len(),
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 3: Zone features =====
	var zones *ZoneTables
	if err := trackPhase(PhaseFeatures, func() (*model.PhaseResult, error) {
		var err error
		if zones, err = BuildZoneTables(p.cfg, in); err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"features": len(zones.Features.Columns()),
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 4: Travel-time matrices (driving, cool-down, walking) =====
	setStatus(model.RunStatusTravelTime)
	coords := ingest.Coordinates(in.Zones)
	var travel *table.Table[model.Pair]
	if err := trackPhase(PhaseTravelTime, func() (*model.PhaseResult, error) {
		var err error
		if travel, err = p.builder.BuildAll(ctx, in.ZoneIDs(), coords); err != nil {
			return nil, err
		}
		calls, cooldowns := p.scheduler.Stats()
		return &model.PhaseResult{Metadata: map[string]any{
			"pairs":        travel.Len(),
			"matrix_calls": calls,
			"cooldowns":    cooldowns,
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 5: Trip generation =====
	setStatus(model.RunStatusPredicting)
	var tripTable *table.Table[string]
	if err := trackPhase(PhaseTripGen, func() (*model.PhaseResult, error) {
		var err error
		out.Trips, tripTable, err = tripgen.Predict(ctx, zones.Features, in.Origin, in.Destination,
			tripgen.Options{ClampNegative: p.cfg.TripGen.ClampNegative})
		if err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{"zones": len(out.Trips)}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 6: Pair table =====
	var pairs *table.Table[model.Pair]
	if err := trackPhase(PhasePairTable, func() (*model.PhaseResult, error) {
		zoneTable, err := PairZoneTable(in.ZoneIDs(), zones.Attributes, zones.Features, tripTable)
		if err != nil {
			return nil, err
		}
		if pairs, err = modesplit.BuildPairTable(od, zoneTable, travel); err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{
			"pairs":   pairs.Len(),
			"columns": len(pairs.Columns()),
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 7: Mode split =====
	if err := trackPhase(PhaseModeSplit, func() (*model.PhaseResult, error) {
		var err error
		if out.ModeSplit, err = modesplit.Predict(ctx, pairs, in.ModeSplit, modesplit.DefaultSchema()); err != nil {
			return nil, err
		}
		return &model.PhaseResult{Metadata: map[string]any{"pairs": len(out.ModeSplit)}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 8: Flow assembly =====
	if err := trackPhase(PhaseAssembly, func() (*model.PhaseResult, error) {
		byZone := make(map[string]model.Coordinate, len(coords))
		for i, z := range in.Zones {
			byZone[z.ID] = coords[i]
		}
		var err error
		if out.Edges, err = flows.Edges(out.ModeSplit, byZone); err != nil {
			return nil, err
		}
		out.Nodes = flows.Nodes(in.Zones, out.Trips)
		return &model.PhaseResult{Metadata: map[string]any{
			"edges": len(out.Edges),
			"nodes": len(out.Nodes),
		}}, nil
	}); err != nil {
		return err
	}

	// ===== Phase 9: Export =====
	setStatus(model.RunStatusExporting)
	return trackPhase(PhaseExport, func() (*model.PhaseResult, error) {
		files, err := p.local.Write(export.Bundle{
			ZoneTotals: totals,
			Zones:      zones.Features,
			Trips:      out.Trips,
			ModeSplit:  out.ModeSplit,
			Edges:      out.Edges,
			Nodes:      out.Nodes,
		})
		out.Files = files
		if err != nil {
			return nil, err
		}

		meta := map[string]any{"files": len(files)}
		if p.postgis != nil {
			edges, err := p.postgis.WriteModeSplit(ctx, out.RunID, out.Edges)
			if err != nil {
				return nil, err
			}
			nodes, err := p.postgis.WriteZoneTrips(ctx, out.RunID, out.Nodes)
			if err != nil {
				return nil, err
			}
			meta["postgis_mode_split"] = edges
			meta["postgis_zone_trips"] = nodes
		}

		names, err := p.storeArtifacts(ctx, out)
		if err != nil {
			return nil, err
		}
		result.Artifacts = names
		meta["artifacts"] = len(names)
		return &model.PhaseResult{Metadata: meta}, nil
	})
}
