// Package reliability defines the ReliabilityMetric record type (§3). The
// computations that produce these records live in
// domain/psychometrics/reliability.
package reliability

import (
	"gohypo/domain/core"
)

// MetricType tags which reliability estimate a Metric reports.
type MetricType string

const (
	MetricCronbachsAlpha MetricType = "cronbachs_alpha"
	MetricTestRetest     MetricType = "test_retest"
	MetricSplitHalf      MetricType = "split_half"
)

// Metric is one computed reliability estimate with its supporting sample
// size and method-specific details.
type Metric struct {
	Type          MetricType             `json:"metric_type"`
	Value         float64                `json:"value"`
	SampleSize    int                    `json:"sample_size"`
	CalculatedAt  core.Timestamp         `json:"calculated_at"`
	Details       map[string]interface{} `json:"details,omitempty"`
}
