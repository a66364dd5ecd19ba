package app

import (
	"context"
	"fmt"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/psychometrics/ctt"
	"gohypo/domain/psychometrics/matrix"
	"gohypo/domain/response"
	"gohypo/internal/config"
	"gohypo/ports"
)

// CTTService recomputes classical-test-theory statistics for every item in
// one full rebuild, then persists each item's updated CTTStats and quality
// tier via the response store (§4.B, §5). It has no per-submission or
// per-item incremental path; the submission hook does not call it.
type CTTService struct {
	store ports.ResponseStore
	cfg   config.PsychometricsConfig
}

// NewCTTService wires a CTTService against the response store.
func NewCTTService(store ports.ResponseStore, cfg config.PsychometricsConfig) *CTTService {
	return &CTTService{store: store, cfg: cfg}
}

// RecomputeAll rebuilds the full response matrix and recomputes every
// item's CTT statistics; the orchestrator calls it at the start of the
// weekly recalibration (§5).
func (s *CTTService) RecomputeAll(ctx context.Context) error {
	responses, err := s.store.ListResponses(ctx, ports.ResponseFilters{})
	if err != nil {
		return fmt.Errorf("listing responses: %w", err)
	}
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{})
	if err != nil {
		return fmt.Errorf("fetching items: %w", err)
	}

	bundle, err := matrix.Build(responses, items, nil, matrix.BuildOptions{
		MinResponses:        0,
		MinSessionsRequired: 1,
		MinItemsRequired:    1,
	})
	if err != nil {
		return fmt.Errorf("building response matrix: %w", err)
	}

	choices := buildOptionChoices(bundle, responses)
	recomputed := ctt.Compute(bundle, choices, s.cfg)

	itemsByID := make(map[core.ItemID]item.Item, len(items))
	for _, it := range items {
		itemsByID[it.ID] = it
	}

	for j, col := range bundle.Columns {
		stats := recomputed[j]
		flag := ctt.QualityTier(stats)
		expected := itemsByID[col.ItemID].CTT.ResponseCount

		if it, ok := itemsByID[col.ItemID]; ok {
			check := ctt.ValidateDifficultyLabel(it.DifficultyLabel, stats, s.cfg)
			stats.DifficultyCheck = &check
		}

		patch := ports.ItemStatsPatch{
			ExpectedResponseCount: expected,
			CTT:                   &stats,
			QualityFlag:           &flag,
		}
		if err := s.store.UpdateItemStats(ctx, col.ItemID, patch); err != nil {
			return fmt.Errorf("updating stats for item %s: %w", col.ItemID, err)
		}
	}
	return nil
}

// buildOptionChoices reconstructs, for each matrix column, the chosen
// option text per row in bundle's row order, so ctt.Compute can run
// distractor quartile analysis alongside difficulty/discrimination.
func buildOptionChoices(bundle *matrix.Bundle, responses []response.Response) map[int][]string {
	rowIndex := make(map[core.SessionID]int, len(bundle.SessionIDs))
	for i, sid := range bundle.SessionIDs {
		rowIndex[sid] = i
	}
	colIndex := make(map[core.ItemID]int, len(bundle.Columns))
	for j, col := range bundle.Columns {
		colIndex[col.ItemID] = j
	}

	choices := make(map[int][]string, len(bundle.Columns))
	for j := range bundle.Columns {
		choices[j] = make([]string, len(bundle.SessionIDs))
	}

	for _, r := range responses {
		row, ok := rowIndex[r.SessionID]
		if !ok {
			continue
		}
		col, ok := colIndex[r.ItemID]
		if !ok {
			continue
		}
		choices[col][row] = r.ChosenOption
	}
	return choices
}
