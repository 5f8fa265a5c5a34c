package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odflow/internal/model"
)

func newTestSQLite(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() }) //nolint:errcheck
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

var testInputs = model.RunInputs{
	Zones:      "zonas.shp",
	Attributes: "atributos.csv",
	ODSurvey:   "datosOD.xlsx",
	Models:     "models/",
}

func storeTestSuite(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("CreateAndGetRun", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testInputs)
		require.NoError(t, err)
		assert.NotEmpty(t, run.ID)
		assert.Equal(t, model.RunStatusQueued, run.Status)

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, run.ID, got.ID)
		assert.Equal(t, model.RunStatusQueued, got.Status)
		assert.Equal(t, testInputs, got.Inputs)
		assert.Nil(t, got.Result)
	})

	t.Run("GetRunNotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetRun(context.Background(), "nope")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunStatus", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testInputs)
		require.NoError(t, err)
		require.NoError(t, s.UpdateRunStatus(ctx, run.ID, model.RunStatusTravelTime))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusTravelTime, got.Status)
	})

	t.Run("UpdateRunStatusNotFound", func(t *testing.T) {
		s := newStore(t)
		err := s.UpdateRunStatus(context.Background(), "nonexistent-id", model.RunStatusFailed)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("UpdateRunResult", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testInputs)
		require.NoError(t, err)

		result := &model.RunResult{
			Zones:       14,
			Pairs:       196,
			MatrixCalls: 4,
			Cooldowns:   1,
			Error:       "matrix service quota exceeded",
			Phases: []model.PhaseResult{
				{Name: "features", Status: model.PhaseStatusComplete, Duration: 12},
			},
		}
		require.NoError(t, s.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, result))

		got, err := s.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, model.RunStatusFailed, got.Status)
		require.NotNil(t, got.Result)
		assert.Equal(t, 196, got.Result.Pairs)
		assert.Equal(t, "matrix service quota exceeded", got.Result.Error)
		assert.False(t, got.Result.Restartable)
		require.Len(t, got.Result.Phases, 1)
		assert.Equal(t, "features", got.Result.Phases[0].Name)
	})

	t.Run("ListRuns", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var ids []string
		for i := 0; i < 3; i++ {
			run, err := s.CreateRun(ctx, testInputs)
			require.NoError(t, err)
			ids = append(ids, run.ID)
		}
		require.NoError(t, s.UpdateRunStatus(ctx, ids[1], model.RunStatusComplete))

		all, err := s.ListRuns(ctx, RunFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 3)

		done, err := s.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
		require.NoError(t, err)
		require.Len(t, done, 1)
		assert.Equal(t, ids[1], done[0].ID)

		limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)

		rest, err := s.ListRuns(ctx, RunFilter{Limit: 2, Offset: 2})
		require.NoError(t, err)
		assert.Len(t, rest, 1)
	})

	t.Run("Phases", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testInputs)
		require.NoError(t, err)

		p1, err := s.CreatePhase(ctx, run.ID, "features")
		require.NoError(t, err)
		assert.Equal(t, model.PhaseStatusRunning, p1.Status)
		time.Sleep(2 * time.Millisecond)
		_, err = s.CreatePhase(ctx, run.ID, "od")
		require.NoError(t, err)

		require.NoError(t, s.CompletePhase(ctx, p1.ID, &model.PhaseResult{
			Name:     "features",
			Status:   model.PhaseStatusComplete,
			Duration: 40,
			Metadata: map[string]any{"zones": float64(14)},
		}))

		phases, err := s.ListPhases(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, phases, 2)
		assert.Equal(t, "features", phases[0].Name)
		assert.Equal(t, model.PhaseStatusComplete, phases[0].Status)
		require.NotNil(t, phases[0].Result)
		assert.Equal(t, int64(40), phases[0].Result.Duration)
		assert.Equal(t, float64(14), phases[0].Result.Metadata["zones"])
		assert.Equal(t, "od", phases[1].Name)
		assert.Nil(t, phases[1].Result)

		err = s.CompletePhase(ctx, "missing", &model.PhaseResult{Status: model.PhaseStatusFailed})
		assert.True(t, errors.Is(err, ErrNotFound))
	})

	t.Run("Artifacts", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		run, err := s.CreateRun(ctx, testInputs)
		require.NoError(t, err)

		require.NoError(t, s.PutArtifact(ctx, model.Artifact{
			RunID: run.ID, Name: "zone_totals", ContentType: "application/json", Data: []byte(`[1]`),
		}))
		require.NoError(t, s.PutArtifact(ctx, model.Artifact{
			RunID: run.ID, Name: "mode_split", ContentType: "application/json", Data: []byte(`[]`),
		}))
		require.NoError(t, s.PutArtifact(ctx, model.Artifact{
			RunID: run.ID, Name: "zone_totals", ContentType: "application/json", Data: []byte(`[2]`),
		}))

		a, err := s.GetArtifact(ctx, run.ID, "zone_totals")
		require.NoError(t, err)
		assert.Equal(t, `[2]`, string(a.Data))
		assert.Equal(t, "application/json", a.ContentType)

		list, err := s.ListArtifacts(ctx, run.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "mode_split", list[0].Name)
		assert.Nil(t, list[0].Data)

		_, err = s.GetArtifact(ctx, run.ID, "flows")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestSQLiteStore(t *testing.T) {
	storeTestSuite(t, newTestSQLite)
}

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	s := newTestSQLite(t)
	require.NoError(t, s.Migrate(context.Background()))
}
