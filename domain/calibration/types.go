// Package calibration defines the CalibrationRun audit record for IRT
// calibration jobs (§3, §6).
package calibration

import (
	"gohypo/domain/core"
)

// Status mirrors the original_source schemas' CalibrationJobStatus enum
// (pending/running/completed/failed).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Run is the audit record for one calibration job.
type Run struct {
	JobID           core.CalibrationID `json:"job_id"`
	Status          Status             `json:"status"`
	StartedAt       core.Timestamp     `json:"started_at"`
	CompletedAt     *core.Timestamp    `json:"completed_at,omitempty"`
	Calibrated      int                `json:"calibrated"`
	Skipped         int                `json:"skipped"`
	MeanA           *float64           `json:"mean_a,omitempty"`
	MeanB           *float64           `json:"mean_b,omitempty"`
	ErrorMessage    string             `json:"error_message,omitempty"`
}

// Duration returns the elapsed wall time, or 0 if the run hasn't completed.
func (r *Run) Duration() float64 {
	if r.CompletedAt == nil {
		return 0
	}
	return r.CompletedAt.Sub(r.StartedAt).Seconds()
}

// MarkCompleted finalizes a successful run.
func (r *Run) MarkCompleted(calibrated, skipped int, meanA, meanB float64) {
	now := core.Now()
	r.Status = StatusCompleted
	r.CompletedAt = &now
	r.Calibrated = calibrated
	r.Skipped = skipped
	if calibrated > 0 {
		r.MeanA = &meanA
		r.MeanB = &meanB
	}
}

// MarkFailed finalizes a failed run without disturbing prior item
// parameters (§4.E idempotence / §7 ConvergenceFailure semantics).
func (r *Run) MarkFailed(reason string) {
	now := core.Now()
	r.Status = StatusFailed
	r.CompletedAt = &now
	r.ErrorMessage = reason
}
