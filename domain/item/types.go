// Package item defines the Item aggregate: its declared metadata, its
// empirically-derived CTT statistics, and its IRT calibration parameters.
package item

import (
	"gohypo/domain/core"
)

// Domain identifies the cognitive domain an item measures.
type Domain string

const (
	DomainPattern Domain = "pattern"
	DomainLogic   Domain = "logic"
	DomainSpatial Domain = "spatial"
	DomainMath    Domain = "math"
	DomainVerbal  Domain = "verbal"
	DomainMemory  Domain = "memory"
)

// AllDomains lists the fixed six cognitive domains the readiness evaluator
// gates on (§4.G).
var AllDomains = []Domain{DomainPattern, DomainLogic, DomainSpatial, DomainMath, DomainVerbal, DomainMemory}

// IsValid reports whether d is one of the six defined domains.
func (d Domain) IsValid() bool {
	for _, known := range AllDomains {
		if d == known {
			return true
		}
	}
	return false
}

// DifficultyLabel is the declared (pre-calibration) difficulty band.
type DifficultyLabel string

const (
	DifficultyEasy   DifficultyLabel = "easy"
	DifficultyMedium DifficultyLabel = "medium"
	DifficultyHard   DifficultyLabel = "hard"
)

// QualityFlag records the item's operational status (§3).
type QualityFlag string

const (
	QualityNormal       QualityFlag = "normal"
	QualityUnderReview  QualityFlag = "under_review"
	QualityDeactivated  QualityFlag = "deactivated"
)

// AnswerOption is one ordered response option for an item.
type AnswerOption struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// DistractorStatus classifies how often an option is actually being chosen
// (§4.B): functioning distractors are worth keeping, non-functioning ones
// are candidates for replacement.
type DistractorStatus string

const (
	DistractorFunctioning    DistractorStatus = "functioning"
	DistractorWeak           DistractorStatus = "weak"
	DistractorNonFunctioning DistractorStatus = "non_functioning"
)

// DistractorDiscrimination labels whether an option is being selected more
// by low scorers (good), more by high scorers (inverted, a warning sign),
// or roughly evenly (neutral) (§4.B).
type DistractorDiscrimination string

const (
	DistractorGood     DistractorDiscrimination = "good"
	DistractorInverted DistractorDiscrimination = "inverted"
	DistractorNeutral  DistractorDiscrimination = "neutral"
)

// DistractorStat captures selection counts for a single answer option,
// split by top/bottom quartile scorers, plus its derived status and
// discrimination label (§4.B).
type DistractorStat struct {
	Count   int `json:"count"`
	TopQ    int `json:"top_q"`
	BottomQ int `json:"bottom_q"`

	Status         DistractorStatus         `json:"status,omitempty"`
	Discrimination DistractorDiscrimination `json:"discrimination,omitempty"`
}

// DiscriminationTier buckets an item's point-biserial discrimination into
// the six named quality bands (§4.B).
type DiscriminationTier string

const (
	TierExcellent DiscriminationTier = "excellent"
	TierGood      DiscriminationTier = "good"
	TierAcceptable DiscriminationTier = "acceptable"
	TierPoor      DiscriminationTier = "poor"
	TierVeryPoor  DiscriminationTier = "very_poor"
	TierNegative  DiscriminationTier = "negative"
)

// DifficultySeverity grades how far an item's empirical difficulty strays
// from the range expected of its declared DifficultyLabel (§4.B).
type DifficultySeverity string

const (
	SeverityNone     DifficultySeverity = "none"
	SeverityMinor    DifficultySeverity = "minor"
	SeverityMajor    DifficultySeverity = "major"
	SeveritySevere   DifficultySeverity = "severe"
	SeverityInsufficientData DifficultySeverity = "insufficient_data"
)

// DifficultyValidation is the outcome of comparing an item's declared
// DifficultyLabel against its empirical difficulty (§4.B).
type DifficultyValidation struct {
	Label    DifficultyLabel    `json:"label"`
	Expected DifficultyLabel    `json:"expected_label"`
	Severity DifficultySeverity `json:"severity"`
}

// CTTStats holds the classical-test-theory statistics that mutate on every
// submission (§3 Lifecycle).
type CTTStats struct {
	ResponseCount       int                       `json:"response_count"`
	CorrectCount        int                       `json:"correct_count"`
	EmpiricalDifficulty float64                   `json:"empirical_difficulty"`     // p, undefined (0) until ResponseCount > 0
	Discrimination      *float64                  `json:"discrimination,omitempty"` // nil until ResponseCount >= MinResponses
	DiscriminationTier  DiscriminationTier        `json:"discrimination_tier,omitempty"`
	DistractorStats     map[string]DistractorStat `json:"distractor_stats,omitempty"`
	DifficultyCheck     *DifficultyValidation     `json:"difficulty_validation,omitempty"`
}

// IRTParams holds the 2-PL item parameters, set only inside a calibration
// job (§3 invariant ii).
type IRTParams struct {
	A               float64        `json:"a"` // discrimination, > 0
	B               float64        `json:"b"` // difficulty
	SEA             float64        `json:"se_a"`
	SEB             float64        `json:"se_b"`
	InformationPeak float64        `json:"information_peak"`
	CalibratedAt    *core.Timestamp `json:"irt_calibrated_at,omitempty"`
}

// IsCalibrated reports whether IRT parameters have been set by a
// calibration job (invariant ii requires CalibratedAt to be set).
func (p *IRTParams) IsCalibrated() bool {
	return p != nil && p.CalibratedAt != nil
}

// WellCalibrated reports whether both SEs fall under the configured maxima.
func (p *IRTParams) WellCalibrated(maxSEA, maxSEB float64) bool {
	return p.IsCalibrated() && p.SEA <= maxSEA && p.SEB <= maxSEB
}

// Item is the full aggregate: identity, declared metadata, and derived stats.
type Item struct {
	ID              core.ItemID      `json:"id"`
	Domain          Domain           `json:"domain"`
	DifficultyLabel DifficultyLabel  `json:"difficulty_label"`
	Options         []AnswerOption   `json:"options"`
	CTT             CTTStats         `json:"ctt_stats"`
	IRT             *IRTParams       `json:"irt_params,omitempty"`
	IsAnchor        bool             `json:"is_anchor"`
	QualityFlag     QualityFlag      `json:"quality_flag"`
	CreatedAt       core.Timestamp   `json:"created_at"`
}

// IsEligibleForNewTests reports invariant (iv): a deactivated item never
// appears in new tests.
func (it *Item) IsEligibleForNewTests() bool {
	return it.QualityFlag != QualityDeactivated
}

// CorrectOptionText returns the text of the single correct answer option,
// if present.
func (it *Item) CorrectOptionText() (string, bool) {
	for _, opt := range it.Options {
		if opt.IsCorrect {
			return opt.Text, true
		}
	}
	return "", false
}
