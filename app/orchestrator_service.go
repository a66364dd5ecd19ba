package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"gohypo/domain/core"
)

// Orchestrator ties the per-submission hook and the scheduled batch jobs
// together (§5): a bounded on-submission hook that scores a just-completed
// session (which itself runs validity checks, §4.D), plus nightly
// readiness and weekly recalibration sweeps. Each run is logged as a
// single structured heartbeat line so an operator can grep stdout for job
// health.
type Orchestrator struct {
	ctt         *CTTService
	scoring     *ScoringService
	readiness   *ReadinessService
	calib       *CalibrationService
	hookTimeout time.Duration
}

// NewOrchestrator wires every service the orchestrator schedules or invokes
// from a hook.
func NewOrchestrator(
	ctt *CTTService,
	scoring *ScoringService,
	readiness *ReadinessService,
	calib *CalibrationService,
	hookTimeout time.Duration,
) *Orchestrator {
	return &Orchestrator{
		ctt: ctt, scoring: scoring, readiness: readiness, calib: calib, hookTimeout: hookTimeout,
	}
}

// heartbeat is the structured line the orchestrator emits after each job,
// matching §6's "one JSON line per job run" operability requirement.
type heartbeat struct {
	Job       string `json:"job"`
	Status    string `json:"status"`
	DurationMs int64  `json:"duration_ms"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (o *Orchestrator) emit(job, status, detail string, start time.Time) {
	hb := heartbeat{
		Job:        job,
		Status:     status,
		DurationMs: time.Since(start).Milliseconds(),
		Detail:     detail,
		Timestamp:  core.Now().String(),
	}
	line, err := json.Marshal(hb)
	if err != nil {
		log.Printf("orchestrator: failed to marshal heartbeat for job %s: %v", job, err)
		return
	}
	fmt.Println(string(line))
}

// OnSubmission runs synchronously after a response is recorded: it scores
// the session if complete and flags validity concerns, all bounded by
// cfg.HookTimeout so a slow recompute never blocks the submission path
// (§5). A timeout or a failed sub-step is logged and swallowed — the
// submission itself has already succeeded.
func (o *Orchestrator) OnSubmission(ctx context.Context, sessionID core.SessionID, sessionComplete bool) {
	start := time.Now()
	hookCtx, cancel := context.WithTimeout(ctx, o.hookTimeout)
	defer cancel()

	if !sessionComplete {
		o.emit("on_submission", "skipped", "session still in progress", start)
		return
	}

	if _, err := o.scoring.Score(hookCtx, sessionID); err != nil {
		o.emit("on_submission", "failed", err.Error(), start)
		return
	}
	o.emit("on_submission", "ok", fmt.Sprintf("scored session %s", sessionID), start)
}

// RunNightlyReadiness recomputes the global CAT readiness snapshot.
func (o *Orchestrator) RunNightlyReadiness(ctx context.Context) error {
	start := time.Now()
	if err := o.readiness.Evaluate(ctx); err != nil {
		o.emit("nightly_readiness", "failed", err.Error(), start)
		return err
	}
	o.emit("nightly_readiness", "ok", "", start)
	return nil
}

// RunWeeklyRecalibration runs a full CTT recompute followed by an IRT
// calibration pass, and writes the audit CalibrationRun row (§5, §6).
func (o *Orchestrator) RunWeeklyRecalibration(ctx context.Context) error {
	start := time.Now()

	if err := o.ctt.RecomputeAll(ctx); err != nil {
		o.emit("weekly_recalibration", "failed", "ctt recompute: "+err.Error(), start)
		return err
	}

	jobID := core.NewCalibrationID()
	run, err := o.calib.Run(ctx, jobID)
	if err != nil {
		o.emit("weekly_recalibration", "failed", "irt calibration: "+err.Error(), start)
		return err
	}

	o.emit("weekly_recalibration", "ok",
		fmt.Sprintf("calibrated=%d skipped=%d", run.Calibrated, run.Skipped), start)
	return nil
}
