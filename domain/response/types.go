// Package response defines the Response entity: a single (session, item)
// submission.
package response

import (
	"gohypo/domain/core"
)

// Response is one user's answer to one item within a session.
//
// Invariant: at most one Response per (SessionID, ItemID) — enforced by the
// store's unique constraint (§3 invariant v).
type Response struct {
	ID              core.ResponseID `json:"id"`
	SessionID       core.SessionID  `json:"session_id"`
	ItemID          core.ItemID     `json:"item_id"`
	ChosenOption    string          `json:"chosen_option"`
	IsCorrect       bool            `json:"is_correct"`
	TimeSpentSeconds float64        `json:"time_spent_seconds"`
	SubmittedAt     core.Timestamp  `json:"submitted_at"`
}
