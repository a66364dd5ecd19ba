// Package readiness defines the ReadinessState record (§3, §4.G).
package readiness

import (
	"gohypo/domain/core"
	"gohypo/domain/item"
)

// DomainCounts holds the per-domain calibration counts the readiness
// evaluator gates on.
type DomainCounts struct {
	Domain          item.Domain `json:"domain"`
	TotalCalibrated int         `json:"total_calibrated"`
	WellCalibrated  int         `json:"well_calibrated"`
	EasyCount       int         `json:"easy_count"`   // IRT b < -1
	MediumCount     int         `json:"medium_count"` // -1 <= b <= 1
	HardCount       int         `json:"hard_count"`   // b > 1
	IsReady         bool        `json:"is_ready"`
	Reasons         []string    `json:"reasons,omitempty"`
}

// Thresholds documents the thresholds a State was evaluated against,
// matching original_source's CATReadinessThresholds shape.
type Thresholds struct {
	MinCalibratedItemsPerDomain int     `json:"min_calibrated_items_per_domain"`
	MaxSEDifficulty             float64 `json:"max_se_difficulty"`
	MaxSEDiscrimination         float64 `json:"max_se_discrimination"`
	MinItemsPerDifficultyBand   int     `json:"min_items_per_difficulty_band"`
}

// State is the global readiness snapshot written to system config under
// the key `cat_readiness` (§6).
type State struct {
	IsGloballyReady bool           `json:"is_globally_ready"`
	CATEnabled      bool           `json:"cat_enabled"`
	EvaluatedAt     core.Timestamp `json:"evaluated_at"`
	Thresholds      Thresholds     `json:"thresholds"`
	Domains         []DomainCounts `json:"domains"`
}
