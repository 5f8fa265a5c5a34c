// Package ors is a client for the openrouteservice matrix API.
package ors

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/odflow/internal/model"
	"github.com/sells-group/odflow/internal/resilience"
)

// Default base URL for the public openrouteservice API.
const defaultBaseURL = "https://api.openrouteservice.org"

// MetricDuration requests travel times in seconds.
const MetricDuration = "duration"

// Client defines the matrix operation.
type Client interface {
	Matrix(ctx context.Context, req MatrixRequest) (*MatrixResponse, error)
}

// MatrixRequest is the body for POST /v2/matrix/{profile}. Locations are
// [lon, lat] pairs; Sources and Destinations index into Locations.
type MatrixRequest struct {
	Profile      string       `json:"-"`
	Locations    [][2]float64 `json:"locations"`
	Sources      []int        `json:"sources,omitempty"`
	Destinations []int        `json:"destinations,omitempty"`
	Metrics      []string     `json:"metrics,omitempty"`
}

// MatrixResponse is the response from POST /v2/matrix/{profile}. An
// unreachable pair has a null duration.
type MatrixResponse struct {
	Durations    [][]*float64 `json:"durations"`
	Sources      []Location   `json:"sources,omitempty"`
	Destinations []Location   `json:"destinations,omitempty"`
}

// Location is a snapped input location.
type Location struct {
	Location        [2]float64 `json:"location"`
	SnappedDistance float64    `json:"snapped_distance,omitempty"`
}

// Rows returns the durations with null entries as NaN.
func (r *MatrixResponse) Rows() [][]float64 {
	rows := make([][]float64, len(r.Durations))
	for i, src := range r.Durations {
		rows[i] = make([]float64, len(src))
		for j, d := range src {
			if d == nil {
				rows[i][j] = math.NaN()
				continue
			}
			rows[i][j] = *d
		}
	}
	return rows
}

// APIError is returned when openrouteservice responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ors: HTTP %d: %s", e.StatusCode, e.Body)
}

// Unwrap exposes model.ErrQuotaExceeded for 429 responses.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return model.ErrQuotaExceeded
	}
	return nil
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *httpClient) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithRateLimit sets the requests-per-second rate limit.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	apiKey  string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new openrouteservice client.
func NewClient(apiKey string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(1, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Matrix requests a duration matrix. Failures are returned as-is; 429
// responses match model.ErrQuotaExceeded and 5xx responses are marked
// transient.
func (c *httpClient) Matrix(ctx context.Context, req MatrixRequest) (*MatrixResponse, error) {
	if req.Profile == "" {
		return nil, eris.New("ors: matrix profile is required")
	}
	if len(req.Locations) == 0 {
		return nil, eris.New("ors: matrix needs at least one location")
	}
	if len(req.Metrics) == 0 {
		req.Metrics = []string{MetricDuration}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "ors: rate limit")
	}

	var resp MatrixResponse
	if err := c.post(ctx, "/v2/matrix/"+req.Profile, req, &resp); err != nil {
		return nil, eris.Wrapf(err, "ors: matrix %s", req.Profile)
	}
	return &resp, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", c.apiKey)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(data)}
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return resilience.NewTransientError(apiErr, resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}
	return nil
}
