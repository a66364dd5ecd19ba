// Package readiness evaluates whether the calibrated item bank is deep
// enough per domain to enable CAT administration (§4.G).
package readiness

import (
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/readiness"
	"gohypo/internal/config"
)

// Evaluate groups items by domain and tests each domain's calibrated depth
// against cfg's thresholds, then ANDs every domain's readiness into a
// single global flag (§4.G): CAT cannot be enabled for any user until every
// domain clears the bar, since the item selector must be able to draw from
// all six domains.
func Evaluate(items []item.Item, cfg config.PsychometricsConfig, evaluatedAt core.Timestamp) readiness.State {
	byDomain := make(map[item.Domain][]item.Item)
	for _, d := range item.AllDomains {
		byDomain[d] = nil
	}
	for _, it := range items {
		if !it.Domain.IsValid() {
			continue
		}
		byDomain[it.Domain] = append(byDomain[it.Domain], it)
	}

	domains := make([]readiness.DomainCounts, 0, len(item.AllDomains))
	globallyReady := true
	for _, d := range item.AllDomains {
		dc := evaluateDomain(d, byDomain[d], cfg)
		if !dc.IsReady {
			globallyReady = false
		}
		domains = append(domains, dc)
	}

	return readiness.State{
		IsGloballyReady: globallyReady,
		CATEnabled:      globallyReady,
		EvaluatedAt:     evaluatedAt,
		Thresholds: readiness.Thresholds{
			MinCalibratedItemsPerDomain: cfg.MinCalibratedItemsPerDomain,
			MaxSEDifficulty:             cfg.MaxSEB,
			MaxSEDiscrimination:         cfg.MaxSEA,
			MinItemsPerDifficultyBand:   cfg.MinItemsPerDifficultyBand,
		},
		Domains: domains,
	}
}

func evaluateDomain(d item.Domain, items []item.Item, cfg config.PsychometricsConfig) readiness.DomainCounts {
	dc := readiness.DomainCounts{Domain: d, IsReady: true}

	for _, it := range items {
		if it.IRT == nil || !it.IRT.IsCalibrated() {
			continue
		}
		dc.TotalCalibrated++
		if it.IRT.WellCalibrated(cfg.MaxSEA, cfg.MaxSEB) {
			dc.WellCalibrated++
			switch {
			case it.IRT.B < cfg.EasyBCutoff:
				dc.EasyCount++
			case it.IRT.B > cfg.HardBCutoff:
				dc.HardCount++
			default:
				dc.MediumCount++
			}
		}
	}

	if dc.WellCalibrated < cfg.MinCalibratedItemsPerDomain {
		dc.IsReady = false
		dc.Reasons = append(dc.Reasons, "fewer than the required well-calibrated items")
	}
	if dc.EasyCount < cfg.MinItemsPerDifficultyBand {
		dc.IsReady = false
		dc.Reasons = append(dc.Reasons, "insufficient easy-band coverage")
	}
	if dc.MediumCount < cfg.MinItemsPerDifficultyBand {
		dc.IsReady = false
		dc.Reasons = append(dc.Reasons, "insufficient medium-band coverage")
	}
	if dc.HardCount < cfg.MinItemsPerDifficultyBand {
		dc.IsReady = false
		dc.Reasons = append(dc.Reasons, "insufficient hard-band coverage")
	}

	return dc
}
