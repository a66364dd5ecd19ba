package app

import (
	"context"
	"fmt"
	"sort"

	"gohypo/domain/core"
	domainReliability "gohypo/domain/reliability"
	"gohypo/domain/psychometrics/matrix"
	psychReliability "gohypo/domain/psychometrics/reliability"
	"gohypo/domain/session"
	"gohypo/internal/config"
	"gohypo/internal/errors"
	"gohypo/ports"
)

// ReliabilityService computes Cronbach's alpha, test-retest, and
// split-half reliability over the current response matrix (§4.C), run by
// the run_reliability_report command.
type ReliabilityService struct {
	store ports.ResponseStore
	cfg   config.PsychometricsConfig
}

// NewReliabilityService wires a ReliabilityService against the response store.
func NewReliabilityService(store ports.ResponseStore, cfg config.PsychometricsConfig) *ReliabilityService {
	return &ReliabilityService{store: store, cfg: cfg}
}

// ComputeAlpha reports Cronbach's alpha over every response in the store;
// responses are not filtered by session status.
func (s *ReliabilityService) ComputeAlpha(ctx context.Context) (domainReliability.Metric, error) {
	bundle, err := s.buildBundle(ctx)
	if err != nil {
		return domainReliability.Metric{}, err
	}
	alpha, err := psychReliability.CronbachAlpha(bundle, s.cfg.MinSessionsForAlpha)
	if err != nil {
		return domainReliability.Metric{}, err
	}
	return domainReliability.Metric{
		Type:         domainReliability.MetricCronbachsAlpha,
		Value:        alpha,
		SampleSize:   len(bundle.SessionIDs),
		CalculatedAt: core.Now(),
	}, nil
}

// ComputeSplitHalf reports odd/even split-half reliability with its
// Spearman-Brown corrected full-test projection.
func (s *ReliabilityService) ComputeSplitHalf(ctx context.Context) (domainReliability.Metric, error) {
	bundle, err := s.buildBundle(ctx)
	if err != nil {
		return domainReliability.Metric{}, err
	}
	result, err := psychReliability.SplitHalf(bundle)
	if err != nil {
		return domainReliability.Metric{}, err
	}
	return domainReliability.Metric{
		Type:         domainReliability.MetricSplitHalf,
		Value:        result.SpearmanBrownCorrected,
		SampleSize:   len(bundle.SessionIDs),
		CalculatedAt: core.Now(),
		Details: map[string]interface{}{
			"raw_correlation": result.RawCorrelation,
		},
	}, nil
}

// ComputeTestRetest pairs each user's earliest completed session with the
// first later one that falls within [MinIntervalDays, MaxIntervalDays] and
// correlates their raw scores, also reporting the mean practice-effect
// delta between the two administrations (§4.C).
func (s *ReliabilityService) ComputeTestRetest(ctx context.Context) (domainReliability.Metric, error) {
	completed := session.StatusCompleted
	sessions, err := s.store.ListSessions(ctx, ports.SessionFilters{Status: &completed})
	if err != nil {
		return domainReliability.Metric{}, fmt.Errorf("listing sessions: %w", err)
	}

	byUser := make(map[core.UserID][]session.Session)
	for _, sess := range sessions {
		byUser[sess.UserID] = append(byUser[sess.UserID], sess)
	}

	var pairs []psychReliability.TestRetestPair
	var deltaSum float64
	for _, userSessions := range byUser {
		if len(userSessions) < 2 {
			continue
		}
		first, second := pickRetestPair(userSessions, s.cfg)
		if first == nil || second == nil {
			continue
		}
		r1, err := s.store.FetchResult(ctx, first.ID)
		if err != nil || r1 == nil {
			continue
		}
		r2, err := s.store.FetchResult(ctx, second.ID)
		if err != nil || r2 == nil {
			continue
		}
		score1, score2 := float64(r1.RawScore), float64(r2.RawScore)
		pairs = append(pairs, psychReliability.TestRetestPair{First: score1, Second: score2})
		deltaSum += score2 - score1
	}

	r, err := psychReliability.TestRetest(pairs, s.cfg.MinRetestPairs)
	if err != nil {
		return domainReliability.Metric{}, err
	}

	meanDelta := 0.0
	if len(pairs) > 0 {
		meanDelta = deltaSum / float64(len(pairs))
	}
	return domainReliability.Metric{
		Type:         domainReliability.MetricTestRetest,
		Value:        r,
		SampleSize:   len(pairs),
		CalculatedAt: core.Now(),
		Details: map[string]interface{}{
			"mean_practice_effect": meanDelta,
		},
	}, nil
}

// pickRetestPair finds the earliest session and the first later session
// within the configured day window, per §4.C.
func pickRetestPair(sessions []session.Session, cfg config.PsychometricsConfig) (*session.Session, *session.Session) {
	minGap := float64(cfg.MinIntervalDays) * 24
	maxGap := float64(cfg.MaxIntervalDays) * 24

	sorted := make([]session.Session, 0, len(sessions))
	for _, sess := range sessions {
		if sess.CompletedAt != nil {
			sorted = append(sorted, sess)
		}
	}
	sort.Slice(sorted, func(a, b int) bool { return sorted[a].CompletedAt.Before(*sorted[b].CompletedAt) })
	sessions = sorted

	for i := range sessions {
		if sessions[i].CompletedAt == nil {
			continue
		}
		for j := range sessions {
			if i == j || sessions[j].CompletedAt == nil {
				continue
			}
			gapHours := sessions[j].CompletedAt.Sub(*sessions[i].CompletedAt).Hours()
			if gapHours >= minGap && gapHours <= maxGap {
				return &sessions[i], &sessions[j]
			}
		}
	}
	return nil, nil
}

func (s *ReliabilityService) buildBundle(ctx context.Context) (*matrix.Bundle, error) {
	responses, err := s.store.ListResponses(ctx, ports.ResponseFilters{})
	if err != nil {
		return nil, fmt.Errorf("listing responses: %w", err)
	}
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{ExcludeInactive: true})
	if err != nil {
		return nil, fmt.Errorf("fetching items: %w", err)
	}
	bundle, err := matrix.Build(responses, items, nil, matrix.BuildOptions{
		MinResponses:        s.cfg.MinResponses,
		MinSessionsRequired: 1,
		MinItemsRequired:    2,
	})
	if err != nil {
		return nil, errors.Wrap(err, "building response matrix for reliability analysis")
	}
	return bundle, nil
}
