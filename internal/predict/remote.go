package predict

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"

	"github.com/sells-group/odflow/internal/resilience"
)

// Remote calls an HTTP inference endpoint. The request body is
// {"columns": [...], "rows": [[...]]} and the response is
// {"predictions": [[...]]} with one row per input row and one column per
// target.
type Remote struct {
	name     string
	endpoint string
	schema   Schema
	http     *http.Client
}

type remoteRequest struct {
	Model   string      `json:"model"`
	Columns []string    `json:"columns"`
	Rows    [][]float64 `json:"rows"`
}

type remoteResponse struct {
	Predictions [][]float64 `json:"predictions"`
}

// RemoteOption configures a Remote model.
type RemoteOption func(*Remote)

// WithTimeout bounds each inference call.
func WithTimeout(d time.Duration) RemoteOption {
	return func(r *Remote) {
		if d > 0 {
			r.http.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) RemoteOption {
	return func(r *Remote) { r.http = hc }
}

// NewRemote creates a remote model.
func NewRemote(name, endpoint string, schema Schema, opts ...RemoteOption) *Remote {
	r := &Remote{
		name:     name,
		endpoint: endpoint,
		schema:   schema,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Schema returns the model's declared columns.
func (r *Remote) Schema() Schema { return r.schema }

// Predict sends every row in one request. No retries are made.
func (r *Remote) Predict(ctx context.Context, x *mat.Dense) (*mat.Dense, error) {
	if err := checkInput(r.name, r.schema, x); err != nil {
		return nil, err
	}
	rows, _ := x.Dims()
	body := remoteRequest{Model: r.name, Columns: r.schema.Predictors(), Rows: make([][]float64, rows)}
	for i := range body.Rows {
		body.Rows[i] = mat.Row(nil, i, x)
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return nil, eris.Wrapf(err, "predict: %s: marshal request", r.name)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(buf))
	if err != nil {
		return nil, eris.Wrapf(err, "predict: %s: create request", r.name)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "predict: %s: request", r.name)
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrapf(err, "predict: %s: read body", r.name)
	}
	if resp.StatusCode != http.StatusOK {
		statusErr := eris.Errorf("predict: %s: endpoint returned status %d: %s", r.name, resp.StatusCode, bytes.TrimSpace(data))
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(statusErr, resp.StatusCode)
		}
		return nil, statusErr
	}

	var out remoteResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, eris.Wrapf(err, "predict: %s: decode response", r.name)
	}
	targets := len(r.schema.Targets)
	if len(out.Predictions) != rows {
		return nil, eris.Errorf("predict: %s: %d predictions for %d rows", r.name, len(out.Predictions), rows)
	}
	y := mat.NewDense(rows, targets, nil)
	for i, p := range out.Predictions {
		if len(p) != targets {
			return nil, eris.Errorf("predict: %s: prediction %d has %d values, want %d", r.name, i, len(p), targets)
		}
		y.SetRow(i, p)
	}
	return y, nil
}
