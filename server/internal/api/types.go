package api

import "github.com/logship/logship/pkg/types"

// HealthResponse is the JSON body for GET /api/v1/health.
type HealthResponse struct {
	Status  string   `json:"status"`
	Sources []string `json:"sources"`
	Batches int      `json:"batches"`
	Events  int      `json:"events"`
}

// IngestResponse is the JSON body returned for an accepted batch.
type IngestResponse struct {
	BatchID  string `json:"batchId"`
	Accepted int    `json:"accepted"`
}

// LogsResponse is the JSON body for GET /api/v1/logs.
type LogsResponse struct {
	Source string           `json:"source,omitempty"`
	Count  int              `json:"count"`
	Logs   []types.LogEvent `json:"logs"`
}

type errorResponse struct {
	Error string `json:"error"`
}
