// Package traveltime builds zone-to-zone travel-time matrices from the
// routing service, one batch of source zones at a time.
package traveltime

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/odflow/internal/matrixcache"
	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/quota"
	"github.com/sells-group/odflow/internal/table"
	"github.com/sells-group/odflow/pkg/ors"
)

// DefaultBatchSize is the number of source zones per matrix call.
const DefaultBatchSize = 7

// CallObserver receives the outcome of every matrix call.
type CallObserver func(profile model.Profile, elapsed time.Duration, err error)

// Builder issues batched matrix calls paced by a quota scheduler.
type Builder struct {
	client    ors.Client
	scheduler *quota.Scheduler
	cache     matrixcache.Cache
	batchSize int
	observe   CallObserver
	log       *zap.Logger
}

// Option configures a Builder.
type Option func(*Builder)

// WithBatchSize sets the number of sources per call.
func WithBatchSize(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.batchSize = n
		}
	}
}

// WithCache enables the batch cache. Hits do not consume quota.
func WithCache(c matrixcache.Cache) Option {
	return func(b *Builder) { b.cache = c }
}

// WithObserver registers a per-call observer.
func WithObserver(fn CallObserver) Option {
	return func(b *Builder) { b.observe = fn }
}

// NewBuilder creates a Builder.
func NewBuilder(client ors.Client, scheduler *quota.Scheduler, opts ...Option) *Builder {
	b := &Builder{
		client:    client,
		scheduler: scheduler,
		batchSize: DefaultBatchSize,
		log:       zap.L().With(zap.String("component", "traveltime")),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns the N×N duration matrix for profile, where N is
// len(coords). Each batch of sources is requested against every zone as
// destination. Any call failure or a response of the wrong shape aborts the
// build; nothing is retried.
func (b *Builder) Build(ctx context.Context, coords []model.Coordinate, profile model.Profile) (*mat.Dense, error) {
	n := len(coords)
	if n == 0 {
		return nil, eris.New("traveltime: no zones")
	}

	locations := make([][2]float64, n)
	for i, c := range coords {
		locations[i] = [2]float64{c.X, c.Y}
	}

	out := mat.NewDense(n, n, nil)
	batches := PlanBatches(n, b.batchSize)
	b.log.Info("building travel-time matrix",
		zap.String("profile", string(profile)),
		zap.Int("zones", n),
		zap.Int("batches", len(batches)),
	)

	var hits int
	for i, batch := range batches {
		rows, cached, err := b.fetch(ctx, profile, locations, batch)
		if err != nil {
			return nil, eris.Wrapf(err, "traveltime: %s batch %d/%d", profile, i+1, len(batches))
		}
		if cached {
			hits++
		}
		if err := checkShape(rows, batch.Len(), n); err != nil {
			return nil, eris.Wrapf(err, "traveltime: %s batch %d/%d", profile, i+1, len(batches))
		}
		for r, row := range rows {
			out.SetRow(batch.Start+r, row)
		}
	}

	b.log.Info("travel-time matrix complete",
		zap.String("profile", string(profile)),
		zap.Int("cache_hits", hits),
	)
	return out, nil
}

func (b *Builder) fetch(ctx context.Context, profile model.Profile, locations [][2]float64, batch Batch) ([][]float64, bool, error) {
	key := matrixcache.Key{Profile: string(profile), Locations: locations, Sources: batch.Sources()}
	if b.cache != nil {
		rows, ok, err := b.cache.Get(ctx, key)
		if err != nil {
			b.log.Warn("matrix cache lookup failed", zap.Error(err))
		} else if ok && checkShape(rows, batch.Len(), len(locations)) == nil {
			return rows, true, nil
		}
	}

	if err := b.scheduler.Acquire(ctx); err != nil {
		return nil, false, err
	}

	start := time.Now()
	resp, err := b.client.Matrix(ctx, ors.MatrixRequest{
		Profile:   string(profile),
		Locations: locations,
		Sources:   key.Sources,
		Metrics:   []string{ors.MetricDuration},
	})
	if b.observe != nil {
		b.observe(profile, time.Since(start), err)
	}
	if err != nil {
		return nil, false, err
	}

	rows := resp.Rows()
	if b.cache != nil && checkShape(rows, batch.Len(), len(locations)) == nil {
		if err := b.cache.Put(ctx, key, rows); err != nil {
			b.log.Warn("matrix cache store failed", zap.Error(err))
		}
	}
	return rows, false, nil
}

func checkShape(rows [][]float64, wantRows, wantCols int) error {
	if len(rows) != wantRows {
		return eris.Wrapf(model.ErrShape, "got %d rows, want %d", len(rows), wantRows)
	}
	for i, row := range rows {
		if len(row) != wantCols {
			return eris.Wrapf(model.ErrShape, "row %d has %d columns, want %d", i, len(row), wantCols)
		}
	}
	return nil
}

// BuildAll builds the driving matrix, pauses for the quota cool-down, then
// builds the walking matrix. The result is a long table keyed by
// (origin, destination) with one travel-time column per profile; missing
// values are 0.
func (b *Builder) BuildAll(ctx context.Context, ids []string, coords []model.Coordinate) (*table.Table[model.Pair], error) {
	if len(ids) != len(coords) {
		return nil, eris.Errorf("traveltime: %d ids for %d coordinates", len(ids), len(coords))
	}

	var joined *table.Table[model.Pair]
	for i, profile := range model.Profiles {
		if i > 0 {
			if err := b.scheduler.Cooldown(ctx); err != nil {
				return nil, eris.Wrap(err, "traveltime: cooldown between profiles")
			}
		}
		m, err := b.Build(ctx, coords, profile)
		if err != nil {
			return nil, err
		}
		long, err := Long(ids, m, profile.Column())
		if err != nil {
			return nil, err
		}
		if joined == nil {
			joined = long
			continue
		}
		if joined, err = table.OuterJoin(joined, long, "", ""); err != nil {
			return nil, eris.Wrap(err, "traveltime: join profiles")
		}
	}
	joined.FillNaN(0)
	return joined, nil
}

// Long reshapes a square matrix into one row per (origin, destination)
// with the value in column.
func Long(ids []string, m *mat.Dense, column string) (*table.Table[model.Pair], error) {
	r, c := m.Dims()
	if r != len(ids) || c != len(ids) {
		return nil, eris.Wrapf(model.ErrShape, "traveltime: matrix is %dx%d for %d zones", r, c, len(ids))
	}
	out := table.New[model.Pair]("travel_time", []string{column})
	for i, o := range ids {
		for j, d := range ids {
			if err := out.Append(model.Pair{Origin: o, Destination: d}, []float64{m.At(i, j)}); err != nil {
				return nil, eris.Wrap(err, "traveltime: reshape")
			}
		}
	}
	return out, nil
}
