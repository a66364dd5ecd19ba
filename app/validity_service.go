package app

import (
	"context"
	"fmt"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/psychometrics/validity"
	"gohypo/internal/config"
	"gohypo/ports"
)

// ValidityService runs the validity detector engine over a single
// session's responses and reports the aggregate verdict (§4.D), invoked
// synchronously from the submission hook (§5).
type ValidityService struct {
	store  ports.ResponseStore
	cfg    config.PsychometricsConfig
	engine *validity.Engine
}

// NewValidityService wires a ValidityService against the response store.
func NewValidityService(store ports.ResponseStore, cfg config.PsychometricsConfig) *ValidityService {
	return &ValidityService{store: store, cfg: cfg, engine: validity.NewEngine()}
}

// Evaluate loads a session's full response history and the calibrated
// parameters of every item it touched, then runs every detector
// concurrently (§4.D).
func (s *ValidityService) Evaluate(ctx context.Context, sessionID core.SessionID) (validity.Verdict, []error, error) {
	responses, err := s.store.ListResponses(ctx, ports.ResponseFilters{SessionID: &sessionID})
	if err != nil {
		return validity.Verdict{}, nil, fmt.Errorf("listing responses for session %s: %w", sessionID, err)
	}

	itemIDs := make([]core.ItemID, len(responses))
	for i, r := range responses {
		itemIDs[i] = r.ItemID
	}
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{IDs: itemIDs})
	if err != nil {
		return validity.Verdict{}, nil, fmt.Errorf("fetching items for session %s: %w", sessionID, err)
	}

	itemsByID := make(map[string]item.Item, len(items))
	for _, it := range items {
		itemsByID[it.ID.String()] = it
	}

	data := validity.SessionData{Responses: responses, Items: itemsByID}
	flags, detectorErrs := s.engine.Run(ctx, data, s.cfg)
	verdict := validity.ClassifyVerdict(flags)
	return verdict, detectorErrs, nil
}
