package models

// RunStatus is the lifecycle state of an asynchronous run.
type RunStatus string

const (
	RunProcessing RunStatus = "processing"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunCanceled   RunStatus = "canceled"
)

// Done reports whether the run has reached a terminal state.
func (s RunStatus) Done() bool {
	return s != RunProcessing
}

// RunResponse is the immediate response for POST /api/v1/runs.
type RunResponse struct {
	ID     string    `json:"id"`
	Status RunStatus `json:"status"`
}

// RunStatusResponse is the response for GET /api/v1/runs/:id.
type RunStatusResponse struct {
	ID         string          `json:"id"`
	Status     RunStatus       `json:"status"`
	Platform   string          `json:"platform"`
	Statuses   []StatusMessage `json:"statuses"`
	Result     *ScrapeResult   `json:"result,omitempty"`
	Error      *ErrorResponse  `json:"error,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	FinishedAt int64           `json:"finished_at,omitempty"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status      string      `json:"status"` // "healthy" or "degraded"
	Uptime      string      `json:"uptime"`
	WorkerStats WorkerStats `json:"worker_stats"`
	Version     string      `json:"version"`
}

// WorkerStats reports the state of the worker concurrency limiter.
type WorkerStats struct {
	MaxWorkers    int `json:"max_workers"`
	ActiveWorkers int `json:"active_workers"`
	Queued        int `json:"queued"`
}

// PlatformsResponse is the response for GET /api/v1/platforms.
type PlatformsResponse struct {
	Platforms []string `json:"platforms"`
	Default   string   `json:"default"`
}
