// internal/models/run.go
package models

import "time"

// RunStatus is the lifecycle state of a validation run.
//
// Pending -> Processing -> (Completed | PartiallyFailed | Failed)
//
// PartiallyFailed means some requirements errored but the run finished;
// Failed means a run-fatal error aborted the loop before completion.
type RunStatus string

const (
	RunPending         RunStatus = "PENDING"
	RunProcessing      RunStatus = "PROCESSING"
	RunCompleted       RunStatus = "COMPLETED"
	RunPartiallyFailed RunStatus = "PARTIALLY_FAILED"
	RunFailed          RunStatus = "FAILED"
)

// Terminal reports whether the run has reached a final state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartiallyFailed, RunFailed:
		return true
	}
	return false
}

// ValidationRun is the durable per-run summary record holding the
// progress counters read by dashboards.
type ValidationRun struct {
	RunID          string    `json:"runId"`
	UnitIdentifier string    `json:"unitIdentifier"`
	OrgIdentifier  string    `json:"orgIdentifier"`
	PromptVersion  string    `json:"promptVersion"`
	TotalCount     int       `json:"totalCount"`
	CompletedCount int       `json:"completedCount"`
	FailedCount    int       `json:"failedCount"`
	Status         RunStatus `json:"status"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// SuccessRate scores the run with PartiallyMet counted as half a pass.
// Error results count as attempted but unsuccessful.
func SuccessRate(results []ValidationResult) float64 {
	if len(results) == 0 {
		return 0
	}
	var score float64
	for _, r := range results {
		switch r.Status {
		case StatusMet:
			score += 1
		case StatusPartiallyMet:
			score += 0.5
		}
	}
	return score / float64(len(results))
}
