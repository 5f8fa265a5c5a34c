package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/odflow/internal/config"
	"github.com/sells-group/odflow/internal/model"
)

func TestInitStore_SQLite(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "test.db"),
		},
	}

	st, err := initStore(context.Background())
	require.NoError(t, err)
	require.NotNil(t, st)
	defer st.Close() //nolint:errcheck
}

func TestInitStore_SQLiteDefaultDSN(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "sqlite"},
	}

	st, err := openStore(context.Background())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, statErr := os.Stat(filepath.Join(tmpDir, "odflow.db"))
	assert.NoError(t, statErr)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{Driver: "mysql"},
	}

	_, err := initStore(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitResolver(t *testing.T) {
	cfg = &config.Config{Fetch: config.FetchConfig{CacheDir: t.TempDir()}}

	r := initResolver()
	assert.Equal(t, cfg.Fetch.CacheDir, r.CacheDir)
	assert.NotNil(t, r.HTTP)
	assert.NotNil(t, r.FTP)
}

func TestBuildHandler(t *testing.T) {
	cfg = &config.Config{
		Store: config.StoreConfig{
			Driver:      "sqlite",
			DatabaseURL: filepath.Join(t.TempDir(), "serve.db"),
		},
		Server: config.ServerConfig{Port: 8080, CORSOrigins: []string{"*"}},
	}
	ctx := context.Background()
	st, err := openStore(ctx)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	run, err := st.CreateRun(ctx, model.RunInputs{Zones: "zonas.shp"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateRunResult(ctx, run.ID, model.RunStatusFailed, &model.RunResult{Restartable: true}))

	handler, err := buildHandler(st)
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `odflow_recorded_runs{status="failed"} 1`)
	assert.Contains(t, string(body), "odflow_restartable_runs 1")

	runResp, err := http.Get(srv.URL + "/runs/" + run.ID)
	require.NoError(t, err)
	defer runResp.Body.Close() //nolint:errcheck
	assert.Equal(t, http.StatusOK, runResp.StatusCode)
}
