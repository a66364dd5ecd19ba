// Package session defines the Session entity and the per-step ability
// history an adaptive session accumulates.
package session

import (
	"gohypo/domain/core"
)

// Status is the session's lifecycle state (§3).
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// AbilityStep records the θ/SE estimate after one administered item, for
// adaptive sessions (§4.F).
type AbilityStep struct {
	ItemID core.ItemID `json:"item_id"`
	Theta  float64     `json:"theta"`
	SE     float64     `json:"se"`
}

// Session is a single user's attempt at a test.
type Session struct {
	ID                  core.SessionID  `json:"id"`
	UserID              core.UserID     `json:"user_id"`
	IsAdaptive          bool            `json:"is_adaptive"`
	Status              Status          `json:"status"`
	AdministeredItemIDs []core.ItemID   `json:"administered_item_ids"`
	AbilityHistory      []AbilityStep   `json:"ability_history,omitempty"` // empty for non-adaptive sessions
	StoppingReason       string         `json:"stopping_reason,omitempty"`
	TimeLimitExceeded    bool           `json:"time_limit_exceeded"`
	StartedAt            core.Timestamp `json:"started_at"`
	CompletedAt          *core.Timestamp `json:"completed_at,omitempty"`
}

// HasAdministered reports whether itemID has already been given in this
// session (CAT item selection must exclude it, §4.F).
func (s *Session) HasAdministered(itemID core.ItemID) bool {
	for _, id := range s.AdministeredItemIDs {
		if id == itemID {
			return true
		}
	}
	return false
}

// LatestAbility returns the most recent θ/SE pair, or (0, 1) for a session
// that has not administered any item yet (θ₀=0, SE₀=1 per §4.F).
func (s *Session) LatestAbility() (theta, se float64) {
	if len(s.AbilityHistory) == 0 {
		return 0, 1
	}
	last := s.AbilityHistory[len(s.AbilityHistory)-1]
	return last.Theta, last.SE
}
