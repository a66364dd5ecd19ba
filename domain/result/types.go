// Package result defines the terminal aggregate written once a session
// completes. Results are immutable once written (§3 Lifecycle).
package result

import (
	"gohypo/domain/core"
)

// ScoringMethod records which model produced the final ability estimate.
type ScoringMethod string

const (
	ScoringCTT ScoringMethod = "ctt"
	ScoringIRT ScoringMethod = "irt"
)

// ValidityStatus is the overall verdict from the validity analyzer (§4.D).
type ValidityStatus string

const (
	ValidityValid   ValidityStatus = "valid"
	ValiditySuspect ValidityStatus = "suspect"
	ValidityInvalid ValidityStatus = "invalid"
)

// DomainScore summarizes correctness within one cognitive domain.
type DomainScore struct {
	Correct int      `json:"correct"`
	Total   int      `json:"total"`
	Pct     *float64 `json:"pct"` // nil when Total == 0
}

// NewDomainScore computes Pct from Correct/Total, leaving Pct nil on an
// empty domain rather than dividing by zero.
func NewDomainScore(correct, total int) DomainScore {
	ds := DomainScore{Correct: correct, Total: total}
	if total > 0 {
		pct := float64(correct) / float64(total)
		ds.Pct = &pct
	}
	return ds
}

// Result is the immutable terminal aggregate of a completed session.
type Result struct {
	ID                core.ResultID           `json:"id"`
	SessionID         core.SessionID          `json:"session_id"`
	RawScore          int                     `json:"raw_score"`
	ScoringMethod     ScoringMethod           `json:"scoring_method"`
	FinalTheta        *float64                `json:"final_theta,omitempty"`
	FinalSE           *float64                `json:"final_se,omitempty"`
	DomainScores      map[string]DomainScore  `json:"domain_scores"`
	ValidityStatus    ValidityStatus          `json:"validity_status"`
	ValidityFlags     []string                `json:"validity_flags,omitempty"`
	ResponseTimeFlags []string                `json:"response_time_flags,omitempty"`

	// Shadow-CAT fields (§4.F): populated retrospectively, never influence
	// the fields above (§3 invariant vii).
	ShadowTheta    *float64 `json:"shadow_theta,omitempty"`
	ShadowSE       *float64 `json:"shadow_se,omitempty"`
	ShadowIQ       *float64 `json:"shadow_iq,omitempty"`
	ThetaIQDelta   *float64 `json:"theta_iq_delta,omitempty"`

	CreatedAt core.Timestamp `json:"created_at"`
}
