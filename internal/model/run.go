package model

import "time"

// RunStatus represents the current state of a flow run.
type RunStatus string

const (
	RunStatusQueued     RunStatus = "queued"
	RunStatusLoading    RunStatus = "loading"
	RunStatusFeatures   RunStatus = "features"
	RunStatusTravelTime RunStatus = "travel_time"
	RunStatusPredicting RunStatus = "predicting"
	RunStatusExporting  RunStatus = "exporting"
	RunStatusComplete   RunStatus = "complete"
	RunStatusFailed     RunStatus = "failed"
)

// RunInputs records which inputs a run was started with.
type RunInputs struct {
	Zones      string `json:"zones"`
	Attributes string `json:"attributes"`
	ODSurvey   string `json:"od_survey"`
	Models     string `json:"models"`
}

// Run represents a single end-to-end pipeline run.
type Run struct {
	ID        string     `json:"id"`
	Inputs    RunInputs  `json:"inputs"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult holds the final outcome of a run.
type RunResult struct {
	Zones       int           `json:"zones"`
	Pairs       int           `json:"pairs"`
	MatrixCalls int           `json:"matrix_calls"`
	Cooldowns   int           `json:"cooldowns"`
	Phases      []PhaseResult `json:"phases"`
	Artifacts   []string      `json:"artifacts,omitempty"`
	Error       string        `json:"error,omitempty"`
	// Restartable is set on failed runs whose cause looks transient.
	Restartable bool `json:"restartable,omitempty"`
}

// RunPhase represents a phase within a run.
type RunPhase struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    PhaseStatus  `json:"status"`
	Result    *PhaseResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Artifact is a named output document attached to a run.
type Artifact struct {
	RunID       string    `json:"run_id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	Data        []byte    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
}
