package app

import (
	"context"
	"fmt"

	"gohypo/domain/core"
	"gohypo/domain/item"
	catEngine "gohypo/domain/psychometrics/cat"
	"gohypo/domain/session"
	"gohypo/internal/config"
	"gohypo/internal/errors"
	"gohypo/ports"
)

// CATSessionService drives one adaptive session end to end: selecting the
// next item, recording a response, and persisting the updated ability
// history (§4.F). Only well-calibrated items participate in selection;
// when global readiness is false the caller should fall back to a
// fixed-form session instead of constructing this service.
type CATSessionService struct {
	store ports.ResponseStore
	cfg   config.PsychometricsConfig
}

// NewCATSessionService wires a CATSessionService against the response store.
func NewCATSessionService(store ports.ResponseStore, cfg config.PsychometricsConfig) *CATSessionService {
	return &CATSessionService{store: store, cfg: cfg}
}

// NextItem loads the session, rebuilds its machine state from
// AbilityHistory, and selects the next item to administer.
func (s *CATSessionService) NextItem(ctx context.Context, sessionID core.SessionID) (item.Item, error) {
	sess, err := s.store.FetchSession(ctx, sessionID)
	if err != nil {
		return item.Item{}, fmt.Errorf("fetching session %s: %w", sessionID, err)
	}
	if sess.Status != session.StatusInProgress {
		return item.Item{}, errors.InvalidInput("session is not in progress")
	}

	pool, err := s.eligiblePool(ctx)
	if err != nil {
		return item.Item{}, err
	}

	administered := make(map[string]bool, len(sess.AdministeredItemIDs))
	for _, id := range sess.AdministeredItemIDs {
		administered[id.String()] = true
	}

	candidates := make([]catEngine.EligibleItem, 0, len(pool))
	for _, it := range pool {
		candidates = append(candidates, catEngine.EligibleItem{
			ID:     it.ID.String(),
			Domain: it.Domain,
			A:      it.IRT.A,
			B:      it.IRT.B,
		})
	}

	theta, _ := sess.LatestAbility()
	selected, err := catEngine.SelectNext(candidates, administered, theta, s.cfg.PerDomainExposureCap, sessionID.String())
	if err != nil {
		return item.Item{}, err
	}

	for _, it := range pool {
		if it.ID.String() == selected.ID {
			return it, nil
		}
	}
	return item.Item{}, errors.PoolExhausted(sessionID.String())
}

// RecordResponse updates the session's ability history with the EAP
// estimate after incorporating this response, and evaluates the stopping
// rules (§4.F).
func (s *CATSessionService) RecordResponse(ctx context.Context, sessionID core.SessionID, answeredItem item.Item, correct bool) (session.Session, error) {
	sess, err := s.store.FetchSession(ctx, sessionID)
	if err != nil {
		return session.Session{}, fmt.Errorf("fetching session %s: %w", sessionID, err)
	}

	machine := rehydrateMachine(sess, s.cfg)
	machine.RecordResponse(catEngine.EligibleItem{
		ID: answeredItem.ID.String(), A: answeredItem.IRT.A, B: answeredItem.IRT.B,
	}, correct)

	sess.AdministeredItemIDs = append(sess.AdministeredItemIDs, answeredItem.ID)
	sess.AbilityHistory = append(sess.AbilityHistory, session.AbilityStep{
		ItemID: answeredItem.ID,
		Theta:  machine.Theta,
		SE:     machine.SE,
	})

	if machine.State == catEngine.StateStopping {
		reason := machine.Finish()
		sess.Status = session.StatusCompleted
		sess.StoppingReason = string(reason)
		now := core.Now()
		sess.CompletedAt = &now
	}

	if err := s.store.SaveSession(ctx, *sess); err != nil {
		return session.Session{}, fmt.Errorf("saving session %s: %w", sessionID, err)
	}
	return *sess, nil
}

// eligiblePool fetches every well-calibrated, active item across all
// domains.
func (s *CATSessionService) eligiblePool(ctx context.Context) ([]item.Item, error) {
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{ExcludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("fetching item pool: %w", err)
	}
	var pool []item.Item
	for _, it := range items {
		if it.IRT != nil && it.IRT.WellCalibrated(s.cfg.MaxSEA, s.cfg.MaxSEB) {
			pool = append(pool, it)
		}
	}
	return pool, nil
}

// rehydrateMachine replays a session's AbilityHistory into a fresh
// Machine, since the state machine itself is not persisted directly (only
// its derived theta/SE trail is, per §3's Session shape).
func rehydrateMachine(sess *session.Session, cfg config.PsychometricsConfig) *catEngine.Machine {
	m := catEngine.NewMachine(cfg)
	if len(sess.AbilityHistory) > 0 {
		last := sess.AbilityHistory[len(sess.AbilityHistory)-1]
		m.Theta = last.Theta
		m.SE = last.SE
	}
	m.State = catEngine.StateSelecting
	return m
}
