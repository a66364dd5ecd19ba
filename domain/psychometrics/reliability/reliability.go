// Package reliability computes Cronbach's alpha, test-retest correlation,
// and split-half reliability with Spearman-Brown correction (§4.C).
//
// The record type persisted from these computations lives in
// gohypo/domain/reliability; this package holds the algorithms that
// produce it.
package reliability

import (
	"sort"

	"github.com/montanaflynn/stats"

	"gohypo/domain/psychometrics/matrix"
	"gohypo/internal/errors"
)

// CronbachAlpha computes internal-consistency reliability over bundle:
//
//	alpha = (K / (K-1)) * (1 - sum(item variances) / variance(total score))
//
// Requires at least two items and minSessions respondents (§4.C).
func CronbachAlpha(bundle *matrix.Bundle, minSessions int) (float64, error) {
	k := len(bundle.Columns)
	n := len(bundle.Data)
	if k < 2 {
		return 0, errors.InsufficientSample("cronbach's alpha requires at least two items", k, 2)
	}
	if n < minSessions {
		return 0, errors.InsufficientSample("cronbach's alpha requires more respondents", n, minSessions)
	}

	itemVarSum := 0.0
	for j := 0; j < k; j++ {
		col := bundle.Column(j)
		v, err := variance(col)
		if err != nil {
			return 0, errors.Wrap(err, "computing item variance")
		}
		itemVarSum += v
	}

	totals := bundle.RowTotals()
	totalVar, err := varianceInts(totals)
	if err != nil {
		return 0, errors.Wrap(err, "computing total score variance")
	}
	if totalVar == 0 {
		return 0, nil
	}

	kf := float64(k)
	alpha := (kf / (kf - 1)) * (1 - itemVarSum/totalVar)
	return alpha, nil
}

// TestRetestPair is one respondent's score on two administrations
// separated in time (§4.C).
type TestRetestPair struct {
	First  float64
	Second float64
}

// TestRetest computes the Pearson correlation between two administrations
// of the same respondents. Requires at least minPairs observations.
func TestRetest(pairs []TestRetestPair, minPairs int) (float64, error) {
	if len(pairs) < minPairs {
		return 0, errors.InsufficientSample("test-retest reliability requires more paired sessions", len(pairs), minPairs)
	}
	x := make([]float64, len(pairs))
	y := make([]float64, len(pairs))
	for i, p := range pairs {
		x[i] = p.First
		y[i] = p.Second
	}
	r, err := stats.Correlation(stats.Float64Data(x), stats.Float64Data(y))
	if err != nil {
		return 0, errors.Wrap(err, "computing test-retest correlation")
	}
	return r, nil
}

// SplitHalfResult holds the raw half-test correlation and its Spearman-Brown
// corrected full-length estimate.
type SplitHalfResult struct {
	RawCorrelation       float64
	SpearmanBrownCorrected float64
}

// SplitHalf computes odd/even split-half reliability and applies the
// Spearman-Brown prophecy formula to project it to full-test length (§4.C):
//
//	r_full = 2*r_half / (1 + r_half)
func SplitHalf(bundle *matrix.Bundle) (SplitHalfResult, error) {
	k := len(bundle.Columns)
	if k < 4 {
		return SplitHalfResult{}, errors.InsufficientSample("split-half reliability requires at least four items", k, 4)
	}

	// stable odd/even split by column index, sorted by item ID for
	// determinism independent of storage order.
	order := make([]int, k)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return bundle.Columns[order[a]].ItemID < bundle.Columns[order[b]].ItemID
	})

	oddTotals := make([]float64, len(bundle.Data))
	evenTotals := make([]float64, len(bundle.Data))
	for pos, j := range order {
		col := bundle.Column(j)
		for i, v := range col {
			if v == matrix.Missing {
				continue
			}
			if pos%2 == 0 {
				oddTotals[i] += float64(v)
			} else {
				evenTotals[i] += float64(v)
			}
		}
	}

	r, err := stats.Correlation(stats.Float64Data(oddTotals), stats.Float64Data(evenTotals))
	if err != nil {
		return SplitHalfResult{}, errors.Wrap(err, "computing split-half correlation")
	}

	corrected := r
	if 1+r != 0 {
		corrected = (2 * r) / (1 + r)
	}

	return SplitHalfResult{RawCorrelation: r, SpearmanBrownCorrected: corrected}, nil
}

// variance computes the variance of col, excluding sessions that never
// answered this item (matrix.Missing) rather than counting them as 0.
func variance(col []int) (float64, error) {
	data := make([]float64, 0, len(col))
	for _, v := range col {
		if v == matrix.Missing {
			continue
		}
		data = append(data, float64(v))
	}
	return stats.Variance(stats.Float64Data(data))
}

func varianceInts(col []int) (float64, error) {
	return variance(col)
}
