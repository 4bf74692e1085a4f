package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxReportedErrors bounds the failure reasons kept in a BulkReport.
const MaxReportedErrors = 5

// BulkReport summarizes one bulk indexing call.
type BulkReport struct {
	Indexed   int      `json:"indexed"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	FailedIDs []string `json:"failed_ids,omitempty"`
	Errors    []string `json:"errors,omitempty"`
}

// AddFailure records a failed document, keeping only the first few reasons.
func (r *BulkReport) AddFailure(id, reason string) {
	r.Failed++
	r.FailedIDs = append(r.FailedIDs, id)
	if len(r.Errors) < MaxReportedErrors {
		r.Errors = append(r.Errors, id+": "+reason)
	}
}

// ReindexStatus is the state of a reindex run.
type ReindexStatus string

const (
	ReindexRunning   ReindexStatus = "running"
	ReindexCompleted ReindexStatus = "completed"
	ReindexFailed    ReindexStatus = "failed"
	ReindexCancelled ReindexStatus = "cancelled"
)

// ReindexRun is the audit record of one reindex sweep.
type ReindexRun struct {
	ID         uuid.UUID     `json:"id"`
	Fresh      bool          `json:"fresh"`
	Status     ReindexStatus `json:"status"`
	Indexed    int           `json:"indexed"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// IndexStats describes the live index.
type IndexStats struct {
	Exists        bool  `json:"exists"`
	Documents     int64 `json:"documents"`
	SchemaVersion int   `json:"schema_version"`
}

// ReindexOverview is the active run, if any, and the latest recorded runs.
type ReindexOverview struct {
	Active *ReindexRun  `json:"active"`
	Recent []ReindexRun `json:"recent"`
}
