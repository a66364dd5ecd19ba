// Package ctt computes classical-test-theory item statistics: empirical
// difficulty (p), point-biserial discrimination, and distractor analysis
// (§4.B).
package ctt

import (
	"sort"

	"github.com/montanaflynn/stats"

	"gohypo/domain/item"
	"gohypo/domain/psychometrics/matrix"
	"gohypo/internal/config"
)

// Compute recomputes CTTStats for every column in bundle. rowTotals[i] is
// the raw score for bundle.SessionIDs[i]; optionChoices[j][i] is the option
// text session i chose on item j ("" if unanswered), used for distractor
// quartile splits.
//
// Returns one item.CTTStats per column, in bundle.Columns order.
func Compute(bundle *matrix.Bundle, optionChoices map[int][]string, cfg config.PsychometricsConfig) []item.CTTStats {
	rowTotals := bundle.RowTotals()
	quartiles := quartileAssignment(rowTotals)

	out := make([]item.CTTStats, len(bundle.Columns))
	for j := range bundle.Columns {
		col := bundle.Column(j)
		out[j] = computeColumn(col, rowTotals, quartiles, optionChoices[j], cfg)
	}
	return out
}

// computeColumn derives p, point-biserial r, and distractor stats for one
// item column. col may contain matrix.Missing for sessions that never
// answered this item; those rows are excluded from every statistic below
// rather than treated as incorrect.
func computeColumn(col []int, rowTotals []int, quartiles []int, choices []string, cfg config.PsychometricsConfig) item.CTTStats {
	n := 0
	correct := 0
	for _, v := range col {
		if v == matrix.Missing {
			continue
		}
		n++
		correct += v
	}

	s := item.CTTStats{
		ResponseCount:       n,
		CorrectCount:        correct,
		EmpiricalDifficulty: 0,
	}
	if n > 0 {
		s.EmpiricalDifficulty = float64(correct) / float64(n)
	}

	if n >= cfg.MinResponses {
		if r, err := pointBiserial(col, rowTotals); err == nil {
			s.Discrimination = &r
			s.DiscriminationTier = ClassifyDiscriminationTier(r)
		}
	}

	if choices != nil {
		s.DistractorStats = distractorStats(choices, quartiles)
	}

	return s
}

// ClassifyDiscriminationTier buckets a point-biserial coefficient into the
// six named quality bands (§4.B): excellent r>0.40, good [0.30,0.40],
// acceptable [0.20,0.30], poor [0.10,0.20], very_poor [0,0.10), negative r<0.
func ClassifyDiscriminationTier(r float64) item.DiscriminationTier {
	switch {
	case r < 0:
		return item.TierNegative
	case r < 0.10:
		return item.TierVeryPoor
	case r < 0.20:
		return item.TierPoor
	case r < 0.30:
		return item.TierAcceptable
	case r <= 0.40:
		return item.TierGood
	default:
		return item.TierExcellent
	}
}

// expectedDifficultyBand maps a declared difficulty label to its expected
// empirical-p range (§4.B).
func expectedDifficultyBand(label item.DifficultyLabel) (lo, hi float64) {
	switch label {
	case item.DifficultyEasy:
		return 0.70, 1.00
	case item.DifficultyMedium:
		return 0.40, 0.70
	default: // item.DifficultyHard
		return 0.00, 0.40
	}
}

// bandOf returns which difficulty band an empirical p actually falls in.
func bandOf(p float64) item.DifficultyLabel {
	switch {
	case p >= 0.70:
		return item.DifficultyEasy
	case p >= 0.40:
		return item.DifficultyMedium
	default:
		return item.DifficultyHard
	}
}

// bandIndex orders the three bands from hardest (0) to easiest (2) so the
// distance between a declared and an observed band can be measured.
func bandIndex(label item.DifficultyLabel) int {
	switch label {
	case item.DifficultyHard:
		return 0
	case item.DifficultyMedium:
		return 1
	default: // item.DifficultyEasy
		return 2
	}
}

// ValidateDifficultyLabel compares an item's declared difficulty label
// against its empirical difficulty (§4.B). Severity is minor when the
// empirical band is one step off the declared label, major when two steps
// off, and severe at the extremes (e.g. p>0.90 declared hard). Returns
// SeverityInsufficientData when n < cfg.MinResponses.
func ValidateDifficultyLabel(label item.DifficultyLabel, s item.CTTStats, cfg config.PsychometricsConfig) item.DifficultyValidation {
	out := item.DifficultyValidation{Label: label}
	if s.ResponseCount < cfg.MinResponses {
		out.Severity = item.SeverityInsufficientData
		return out
	}

	p := s.EmpiricalDifficulty
	expected := bandOf(p)
	out.Expected = expected

	lo, hi := expectedDifficultyBand(label)
	if p >= lo && p <= hi {
		out.Severity = item.SeverityNone
		return out
	}

	steps := bandIndex(expected) - bandIndex(label)
	if steps < 0 {
		steps = -steps
	}

	switch {
	case label == item.DifficultyHard && p > 0.90:
		out.Severity = item.SeveritySevere
	case label == item.DifficultyEasy && p < 0.10:
		out.Severity = item.SeveritySevere
	case steps >= 2:
		out.Severity = item.SeverityMajor
	default:
		out.Severity = item.SeverityMinor
	}
	return out
}

// pointBiserial is the Pearson product-moment correlation between the
// binary item score and the continuous total score, which is algebraically
// equivalent to the point-biserial coefficient (§4.B).
func pointBiserial(item []int, total []int) (float64, error) {
	x := make([]float64, 0, len(item))
	y := make([]float64, 0, len(total))
	for i := range item {
		if item[i] == matrix.Missing {
			continue
		}
		x = append(x, float64(item[i]))
		y = append(y, float64(total[i]))
	}
	return stats.Correlation(stats.Float64Data(x), stats.Float64Data(y))
}

// quartileAssignment labels each row 1 (bottom quartile of total score) or
// 4 (top quartile), 0 otherwise, using the standard inclusive-median split.
func quartileAssignment(totals []int) []int {
	n := len(totals)
	labels := make([]int, n)
	if n == 0 {
		return labels
	}

	sorted := make([]float64, n)
	for i, t := range totals {
		sorted[i] = float64(t)
	}
	data := append([]float64(nil), sorted...)
	sort.Float64s(data)

	q1, err1 := stats.Percentile(stats.Float64Data(data), 25)
	q3, err3 := stats.Percentile(stats.Float64Data(data), 75)
	if err1 != nil || err3 != nil {
		return labels
	}

	for i, t := range totals {
		v := float64(t)
		switch {
		case v <= q1:
			labels[i] = 1
		case v >= q3:
			labels[i] = 4
		default:
			labels[i] = 0
		}
	}
	return labels
}

// distractorStats tallies each chosen option's total count plus its count
// among bottom-quartile (label 1) and top-quartile (label 4) scorers, then
// derives each option's distractor status and discrimination label (§4.B).
func distractorStats(choices []string, quartiles []int) map[string]item.DistractorStat {
	out := make(map[string]item.DistractorStat)
	selectors := 0
	for i, choice := range choices {
		if choice == "" {
			continue
		}
		selectors++
		d := out[choice]
		d.Count++
		switch quartiles[i] {
		case 1:
			d.BottomQ++
		case 4:
			d.TopQ++
		}
		out[choice] = d
	}

	for choice, d := range out {
		d.Status = distractorStatus(d.Count, selectors)
		d.Discrimination = distractorDiscrimination(d)
		out[choice] = d
	}
	return out
}

// distractorStatus rates an option's selection rate: functioning >= 5% of
// respondents, weak 2-5%, non_functioning below 2% (§4.B).
func distractorStatus(count, selectors int) item.DistractorStatus {
	rate := 0.0
	if selectors > 0 {
		rate = float64(count) / float64(selectors)
	}
	switch {
	case rate >= 0.05:
		return item.DistractorFunctioning
	case rate >= 0.02:
		return item.DistractorWeak
	default:
		return item.DistractorNonFunctioning
	}
}

// distractorDiscrimination labels an option good if bottom-quartile
// scorers pick it meaningfully more than top-quartile scorers do,
// inverted if the reverse holds, else neutral (§4.B).
func distractorDiscrimination(d item.DistractorStat) item.DistractorDiscrimination {
	threshold := 0.10 * float64(d.Count)
	diff := float64(d.BottomQ - d.TopQ)
	switch {
	case diff > threshold:
		return item.DistractorGood
	case -diff > threshold:
		return item.DistractorInverted
	default:
		return item.DistractorNeutral
	}
}

// QualityTier classifies an item's operational status from its recomputed
// CTT stats per §4.B: a negative or very_poor discrimination tier at
// adequate sample size (n >= 150) auto-flags the item under_review, as
// does extreme empirical difficulty; there is otherwise no automatic path
// to deactivated — that's an admin override (§4.D "overrides ... recorded
// as non-negative admin IDs").
func QualityTier(s item.CTTStats) item.QualityFlag {
	if s.ResponseCount == 0 || s.Discrimination == nil {
		return item.QualityNormal
	}
	tier := s.DiscriminationTier
	if (tier == item.TierNegative || tier == item.TierVeryPoor) && s.ResponseCount >= 150 {
		return item.QualityUnderReview
	}
	if s.EmpiricalDifficulty < 0.05 || s.EmpiricalDifficulty > 0.95 {
		return item.QualityUnderReview
	}
	return item.QualityNormal
}
