package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/store"
)

func newTestServer(t *testing.T, runs RunReader, opts ...Option) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(New(runs, opts...).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func seededStore(t *testing.T) (*store.SQLiteStore, string) {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	ctx := context.Background()
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.RunInputs{Zones: "zonas.geojson"})
	require.NoError(t, err)
	phase, err := st.CreatePhase(ctx, run.ID, "features")
	require.NoError(t, err)
	require.NoError(t, st.CompletePhase(ctx, phase.ID, &model.PhaseResult{Name: "features", Status: model.PhaseStatusComplete}))
	require.NoError(t, st.PutArtifact(ctx, model.Artifact{
		RunID: run.ID, Name: "zone_totals", ContentType: "application/json", Data: []byte(`[{"Ubicación":"A"}]`),
	}))
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, model.RunStatusComplete, &model.RunResult{Zones: 3, Pairs: 9}))
	return st, run.ID
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, body
}

func TestHealth(t *testing.T) {
	st, _ := seededStore(t)
	srv := newTestServer(t, st)

	resp, body := get(t, srv.URL+"/health")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestListRuns(t *testing.T) {
	st, id := seededStore(t)
	srv := newTestServer(t, st)

	resp, body := get(t, srv.URL+"/runs?status=complete")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var runs []model.Run
	require.NoError(t, json.Unmarshal(body, &runs))
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, 9, runs[0].Result.Pairs)

	_, body = get(t, srv.URL+"/runs?status=failed")
	assert.JSONEq(t, `[]`, string(body))

	resp, _ = get(t, srv.URL+"/runs?limit=abc")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetRun(t *testing.T) {
	st, id := seededStore(t)
	srv := newTestServer(t, st)

	resp, body := get(t, srv.URL+"/runs/"+id)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail RunDetail
	require.NoError(t, json.Unmarshal(body, &detail))
	assert.Equal(t, id, detail.ID)
	assert.Equal(t, model.RunStatusComplete, detail.Status)
	require.Len(t, detail.Phases, 1)
	assert.Equal(t, "features", detail.Phases[0].Name)
	require.Len(t, detail.Artifacts, 1)
	assert.Equal(t, "zone_totals", detail.Artifacts[0].Name)

	resp, _ = get(t, srv.URL+"/runs/does-not-exist")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetArtifact(t *testing.T) {
	st, id := seededStore(t)
	srv := newTestServer(t, st)

	resp, body := get(t, srv.URL+"/runs/"+id+"/artifacts/zone_totals")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.JSONEq(t, `[{"Ubicación":"A"}]`, string(body))

	resp, _ = get(t, srv.URL+"/runs/"+id+"/artifacts/flows")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

type brokenStore struct{ RunReader }

func (brokenStore) ListRuns(context.Context, store.RunFilter) ([]model.Run, error) {
	return nil, errors.New("connection reset")
}

func TestStoreErrorIs500(t *testing.T) {
	srv := newTestServer(t, brokenStore{})
	resp, body := get(t, srv.URL+"/runs")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"error":"internal error"}`, string(body))
}

func TestMetricsAndCORS(t *testing.T) {
	st, _ := seededStore(t)
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "odflow_runs_total 1\n") //nolint:errcheck
	})
	srv := newTestServer(t, st, WithMetrics(metrics), WithCORSOrigins([]string{"https://maps.example.org"}))

	resp, body := get(t, srv.URL+"/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "odflow_runs_total 1\n", string(body))

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://maps.example.org")
	cresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer cresp.Body.Close() //nolint:errcheck
	assert.Equal(t, "https://maps.example.org", cresp.Header.Get("Access-Control-Allow-Origin"))
}
