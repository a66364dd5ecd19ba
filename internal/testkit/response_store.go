package testkit

import (
	"context"
	"fmt"
	"sync"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/readiness"
	"gohypo/domain/response"
	"gohypo/domain/result"
	"gohypo/domain/session"
	"gohypo/internal/errors"
	"gohypo/ports"
)

// InMemoryResponseStore is a mutex-guarded, map-backed ports.ResponseStore
// for unit and integration tests, mirroring the shape of
// InMemoryLedgerAdapter: no persistence, no concurrency control beyond the
// single mutex, CAS semantics on ItemStatsPatch enforced in-process.
type InMemoryResponseStore struct {
	mu sync.RWMutex

	responses map[core.ResponseID]response.Response
	sessions  map[core.SessionID]session.Session
	items     map[core.ItemID]item.Item
	results   map[core.SessionID]result.Result
	runs      map[core.CalibrationID]calibration.Run
	sysConfig map[string]interface{}
}

// NewInMemoryResponseStore builds an empty store.
func NewInMemoryResponseStore() *InMemoryResponseStore {
	return &InMemoryResponseStore{
		responses: make(map[core.ResponseID]response.Response),
		sessions:  make(map[core.SessionID]session.Session),
		items:     make(map[core.ItemID]item.Item),
		results:   make(map[core.SessionID]result.Result),
		runs:      make(map[core.CalibrationID]calibration.Run),
		sysConfig: make(map[string]interface{}),
	}
}

// SeedItems preloads the item bank, for tests that need a fixed set of
// calibrated/uncalibrated items without going through RecordResponse.
func (s *InMemoryResponseStore) SeedItems(items ...item.Item) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, it := range items {
		s.items[it.ID] = it
	}
}

// SeedSession preloads a session.
func (s *InMemoryResponseStore) SeedSession(sess session.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
}

func (s *InMemoryResponseStore) ListResponses(ctx context.Context, filters ports.ResponseFilters) ([]response.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	itemSet := make(map[core.ItemID]bool, len(filters.ItemIDs))
	for _, id := range filters.ItemIDs {
		itemSet[id] = true
	}

	var out []response.Response
	for _, r := range s.responses {
		if filters.SessionID != nil && r.SessionID != *filters.SessionID {
			continue
		}
		if len(itemSet) > 0 && !itemSet[r.ItemID] {
			continue
		}
		if filters.Since != nil && r.SubmittedAt.Before(*filters.Since) {
			continue
		}
		out = append(out, r)
	}
	sortResponses(out)
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *InMemoryResponseStore) RecordResponse(ctx context.Context, r response.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.responses {
		if existing.SessionID == r.SessionID && existing.ItemID == r.ItemID {
			return errors.InvalidInput(fmt.Sprintf("duplicate response for session %s item %s", r.SessionID, r.ItemID))
		}
	}
	if r.ID == "" {
		r.ID = core.ResponseID(core.NewID())
	}
	s.responses[r.ID] = r
	return nil
}

func (s *InMemoryResponseStore) FetchSession(ctx context.Context, id core.SessionID) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, errors.NotFound("session", id.String())
	}
	return &sess, nil
}

func (s *InMemoryResponseStore) ListSessions(ctx context.Context, filters ports.SessionFilters) ([]session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []session.Session
	for _, sess := range s.sessions {
		if filters.UserID != nil && sess.UserID != *filters.UserID {
			continue
		}
		if filters.Status != nil && sess.Status != *filters.Status {
			continue
		}
		out = append(out, sess)
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

func (s *InMemoryResponseStore) SaveSession(ctx context.Context, sess session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return nil
}

func (s *InMemoryResponseStore) FetchItems(ctx context.Context, filters ports.ItemFilters) ([]item.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idSet := make(map[core.ItemID]bool, len(filters.IDs))
	for _, id := range filters.IDs {
		idSet[id] = true
	}

	var out []item.Item
	for _, it := range s.items {
		if len(idSet) > 0 && !idSet[it.ID] {
			continue
		}
		if filters.Domain != nil && it.Domain != *filters.Domain {
			continue
		}
		if filters.ExcludeInactive && it.QualityFlag == item.QualityDeactivated {
			continue
		}
		if filters.MinResponseCount != nil && it.CTT.ResponseCount < *filters.MinResponseCount {
			continue
		}
		out = append(out, it)
	}
	return out, nil
}

// UpdateItemStats applies patch atomically, CAS'd on ExpectedResponseCount;
// callers racing a stale response_count get errors.ConcurrentModification
// (§5 "optimistic counters").
func (s *InMemoryResponseStore) UpdateItemStats(ctx context.Context, id core.ItemID, patch ports.ItemStatsPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return errors.NotFound("item", id.String())
	}
	if it.CTT.ResponseCount != patch.ExpectedResponseCount {
		return errors.ConcurrentModification("item", id.String())
	}
	if patch.CTT != nil {
		it.CTT = *patch.CTT
	}
	if patch.IRT != nil {
		it.IRT = patch.IRT
	}
	if patch.QualityFlag != nil {
		it.QualityFlag = *patch.QualityFlag
	}
	s.items[id] = it
	return nil
}

func (s *InMemoryResponseStore) WriteCalibrationRun(ctx context.Context, run calibration.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[run.JobID] = run
	return nil
}

func (s *InMemoryResponseStore) UpdateCalibrationRun(ctx context.Context, jobID core.CalibrationID, patch ports.CalibrationRunPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[jobID]
	if !ok {
		return errors.NotFound("calibration_run", jobID.String())
	}
	if patch.Status != nil {
		run.Status = *patch.Status
	}
	if patch.CompletedAt != nil {
		run.CompletedAt = patch.CompletedAt
	}
	if patch.Calibrated != nil {
		run.Calibrated = *patch.Calibrated
	}
	if patch.Skipped != nil {
		run.Skipped = *patch.Skipped
	}
	if patch.MeanA != nil {
		run.MeanA = patch.MeanA
	}
	if patch.MeanB != nil {
		run.MeanB = patch.MeanB
	}
	if patch.ErrorMessage != nil {
		run.ErrorMessage = *patch.ErrorMessage
	}
	s.runs[jobID] = run
	return nil
}

func (s *InMemoryResponseStore) FetchCalibrationRun(ctx context.Context, jobID core.CalibrationID) (*calibration.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[jobID]
	if !ok {
		return nil, errors.NotFound("calibration_run", jobID.String())
	}
	return &run, nil
}

func (s *InMemoryResponseStore) LatestCompletedCalibrationRun(ctx context.Context) (*calibration.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *calibration.Run
	for _, run := range s.runs {
		run := run
		if run.Status != calibration.StatusCompleted {
			continue
		}
		if latest == nil || (run.CompletedAt != nil && latest.CompletedAt != nil && run.CompletedAt.After(*latest.CompletedAt)) {
			latest = &run
		}
	}
	if latest == nil {
		return nil, errors.NotFound("calibration_run", "latest_completed")
	}
	return latest, nil
}

func (s *InMemoryResponseStore) WriteResult(ctx context.Context, sessionID core.SessionID, res result.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[sessionID] = res
	return nil
}

func (s *InMemoryResponseStore) FetchResult(ctx context.Context, sessionID core.SessionID) (*result.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res, ok := s.results[sessionID]
	if !ok {
		return nil, errors.NotFound("result", sessionID.String())
	}
	return &res, nil
}

func (s *InMemoryResponseStore) SetSystemConfig(ctx context.Context, key string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sysConfig[key] = value
	return nil
}

func (s *InMemoryResponseStore) GetCATReadiness(ctx context.Context) (*readiness.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.sysConfig["cat_readiness"]
	if !ok {
		return nil, errors.NotFound("system_config", "cat_readiness")
	}
	state, ok := v.(readiness.State)
	if !ok {
		return nil, fmt.Errorf("cat_readiness system config has unexpected type %T", v)
	}
	return &state, nil
}

// sortResponses orders by (session_id, id) per ResponseFilters' documented
// contract, so CAT/CTT replay sees submission order.
func sortResponses(rs []response.Response) {
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && less(rs[j], rs[j-1]); j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
}

func less(a, b response.Response) bool {
	if a.SessionID != b.SessionID {
		return a.SessionID < b.SessionID
	}
	return a.ID < b.ID
}

var _ ports.ResponseStore = (*InMemoryResponseStore)(nil)
