package model

import "time"

// RunStatus describes how a hunt run finished.
type RunStatus string

const (
	RunComplete RunStatus = "complete"
	RunDegraded RunStatus = "degraded"
	RunAborted  RunStatus = "aborted"
)

// SourceStats accumulates per-source counters for one run.
type SourceStats struct {
	RecordsFetched int    `json:"records_fetched"`
	Normalized     int    `json:"normalized"`
	Skipped        int    `json:"skipped"`
	Unplaceable    int    `json:"unplaceable"`
	Error          string `json:"error,omitempty"`
}

// RunReport is the user-visible outcome of one pipeline run. A degraded
// run lists the sources that failed; incidents from healthy sources are
// always returned.
type RunReport struct {
	RunID           string                     `json:"run_id"`
	Status          RunStatus                  `json:"status"`
	From            time.Time                  `json:"from"`
	To              time.Time                  `json:"to"`
	Sources         map[SourceType]SourceStats `json:"sources"`
	DegradedSources []SourceType               `json:"degraded_sources,omitempty"`
	ClusterCount    int                        `json:"cluster_count"`
	IncidentCount   int                        `json:"incident_count"`
	ReviewCount     int                        `json:"review_count"`
	StartedAt       time.Time                  `json:"started_at"`
	FinishedAt      time.Time                  `json:"finished_at"`
}
