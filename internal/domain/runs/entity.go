package runs

import "time"

// Run records one workflow execution: its parameters, phase timestamps and
// per-run counters. A row is inserted when the run starts and updated as
// phases complete, so an aborted run leaves a visible trace.
type Run struct {
	ID         string `json:"id"`
	Parameters string `json:"parameters,omitempty"`

	StartedAt       time.Time  `json:"started_at"`
	CollectStart    *time.Time `json:"collect_start,omitempty"`
	CollectEnd      *time.Time `json:"collect_end,omitempty"`
	DetailsAddedAt  *time.Time `json:"details_added_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	DurationSeconds *int64     `json:"duration_seconds,omitempty"`

	CollectedCount *int `json:"collected_count,omitempty"`
	NewCount       *int `json:"new_count,omitempty"`
	ReportedCount  *int `json:"reported_count,omitempty"`

	ArtifactURL string `json:"artifact_url,omitempty"`
	// ExceptionLog carries the failure chain when the run aborted.
	ExceptionLog *string `json:"exception_log,omitempty"`
}

// MarkEnded stamps the end timestamp and derives the duration.
func (r *Run) MarkEnded(now time.Time) {
	r.EndedAt = &now
	d := int64(now.Sub(r.StartedAt).Seconds())
	r.DurationSeconds = &d
}
