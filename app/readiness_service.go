package app

import (
	"context"
	"fmt"

	"gohypo/domain/core"
	"gohypo/domain/psychometrics/readiness"
	"gohypo/internal/config"
	"gohypo/ports"
)

// ReadinessService evaluates and persists the global CAT readiness
// snapshot (§4.G). CATSessionService does not read the snapshot; the
// caller decides from it whether a new adaptive session may start.
type ReadinessService struct {
	store ports.ResponseStore
	cfg   config.PsychometricsConfig
}

// NewReadinessService wires a ReadinessService against the response store.
func NewReadinessService(store ports.ResponseStore, cfg config.PsychometricsConfig) *ReadinessService {
	return &ReadinessService{store: store, cfg: cfg}
}

// Evaluate recomputes the readiness state from the current item bank and
// persists it under the `cat_readiness` system config key (§6).
func (s *ReadinessService) Evaluate(ctx context.Context) error {
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{ExcludeInactive: true})
	if err != nil {
		return fmt.Errorf("fetching items: %w", err)
	}
	state := readiness.Evaluate(items, s.cfg, core.Now())
	if err := s.store.SetSystemConfig(ctx, "cat_readiness", state); err != nil {
		return fmt.Errorf("persisting cat readiness: %w", err)
	}
	return nil
}
