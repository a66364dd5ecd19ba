package app

import (
	"context"
	"fmt"
	"math/rand"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	irtAlgo "gohypo/domain/psychometrics/irt"
	"gohypo/domain/psychometrics/matrix"
	"gohypo/internal/config"
	appErrors "gohypo/internal/errors"
	"gohypo/ports"
)

// CalibrationService runs the 2-PL MML-EM calibration job over every
// eligible item and persists the resulting parameters, writing a
// CalibrationRun audit record for the job (§4.E, §6).
type CalibrationService struct {
	store   ports.ResponseStore
	rngPort ports.RNGPort
	cfg     config.PsychometricsConfig
}

// NewCalibrationService wires a CalibrationService against the response
// store and the shared RNG port.
func NewCalibrationService(store ports.ResponseStore, rngPort ports.RNGPort, cfg config.PsychometricsConfig) *CalibrationService {
	return &CalibrationService{store: store, rngPort: rngPort, cfg: cfg}
}

// Run executes one calibration job: it builds the response matrix over
// items with enough responses, calibrates every column, and persists the
// IRT parameters for items that converged. Items that fail to converge
// keep their prior parameters (§7) and are counted as skipped.
func (s *CalibrationService) Run(ctx context.Context, jobID core.CalibrationID) (calibration.Run, error) {
	run := calibration.Run{JobID: jobID, Status: calibration.StatusRunning, StartedAt: core.Now()}
	if err := s.store.WriteCalibrationRun(ctx, run); err != nil {
		return run, fmt.Errorf("writing calibration run %s: %w", jobID, err)
	}

	last, err := s.store.LatestCompletedCalibrationRun(ctx)
	if err != nil && appErrors.GetCode(err) != appErrors.CodeNotFound {
		run.MarkFailed(err.Error())
		s.persist(ctx, run)
		return run, fmt.Errorf("fetching latest completed calibration run: %w", err)
	}
	if last != nil && last.CompletedAt != nil {
		since := last.CompletedAt
		newResponses, err := s.store.ListResponses(ctx, ports.ResponseFilters{Since: since})
		if err != nil {
			run.MarkFailed(err.Error())
			s.persist(ctx, run)
			return run, fmt.Errorf("listing responses since last calibration run: %w", err)
		}
		if len(newResponses) == 0 {
			run.MarkCompleted(0, 0, 0, 0)
			s.persist(ctx, run)
			return run, nil
		}
	}

	responses, err := s.store.ListResponses(ctx, ports.ResponseFilters{})
	if err != nil {
		run.MarkFailed(err.Error())
		s.persist(ctx, run)
		return run, fmt.Errorf("listing responses: %w", err)
	}
	minResp := s.cfg.MinResponses
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{MinResponseCount: &minResp, ExcludeInactive: true})
	if err != nil {
		run.MarkFailed(err.Error())
		s.persist(ctx, run)
		return run, fmt.Errorf("fetching items: %w", err)
	}

	bundle, err := matrix.Build(responses, items, nil, matrix.BuildOptions{
		MinResponses:        s.cfg.MinResponses,
		MinSessionsRequired: 1,
		MinItemsRequired:    1,
	})
	if err != nil {
		run.MarkFailed(err.Error())
		s.persist(ctx, run)
		return run, err
	}

	rng, err := irtAlgo.SeedFromPort(ctx, s.rngPort, jobID.String(), 1)
	if err != nil {
		rng = rand.New(rand.NewSource(1))
	}

	itemIDs := make([]string, len(bundle.Columns))
	for j, c := range bundle.Columns {
		itemIDs[j] = c.ItemID.String()
	}

	results, err := irtAlgo.Calibrate(ctx, itemIDs, bundle.Data, s.cfg, rng)
	if err != nil {
		run.MarkFailed(err.Error())
		s.persist(ctx, run)
		return run, err
	}

	itemsByID := make(map[core.ItemID]item.Item, len(items))
	for _, it := range items {
		itemsByID[it.ID] = it
	}

	calibrated, skipped := 0, 0
	var sumA, sumB float64
	for j, col := range bundle.Columns {
		r, ok := results[itemIDs[j]]
		if !ok || !r.Converged {
			skipped++
			continue
		}
		calibrated++
		sumA += r.A
		sumB += r.B

		now := core.Now()
		irtParams := &item.IRTParams{
			A: r.A, B: r.B, SEA: r.SEA, SEB: r.SEB,
			InformationPeak: r.InformationPeak,
			CalibratedAt:    &now,
		}
		patch := ports.ItemStatsPatch{
			ExpectedResponseCount: itemsByID[col.ItemID].CTT.ResponseCount,
			IRT:                   irtParams,
		}
		if err := s.store.UpdateItemStats(ctx, col.ItemID, patch); err != nil {
			return run, fmt.Errorf("persisting IRT params for item %s: %w", col.ItemID, err)
		}
	}

	meanA, meanB := 0.0, 0.0
	if calibrated > 0 {
		meanA = sumA / float64(calibrated)
		meanB = sumB / float64(calibrated)
	}
	run.MarkCompleted(calibrated, skipped, meanA, meanB)
	s.persist(ctx, run)
	return run, nil
}

func (s *CalibrationService) persist(ctx context.Context, run calibration.Run) {
	status := run.Status
	completedAt := run.CompletedAt
	calibratedN := run.Calibrated
	skippedN := run.Skipped
	errMsg := run.ErrorMessage
	_ = s.store.UpdateCalibrationRun(ctx, run.JobID, ports.CalibrationRunPatch{
		Status:       &status,
		CompletedAt:  completedAt,
		Calibrated:   &calibratedN,
		Skipped:      &skippedN,
		MeanA:        run.MeanA,
		MeanB:        run.MeanB,
		ErrorMessage: &errMsg,
	})
}
