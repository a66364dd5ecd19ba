package app

import (
	"context"
	"fmt"

	"gohypo/domain/core"
	"gohypo/domain/item"
	catEngine "gohypo/domain/psychometrics/cat"
	"gohypo/domain/psychometrics/irt"
	"gohypo/domain/response"
	"gohypo/domain/result"
	"gohypo/internal/config"
	"gohypo/ports"
)

// ScoringService computes the terminal Result for a completed session
// (§3): raw score and domain breakdown always; final θ/SE when the
// session was adaptive; a retrospective shadow-CAT run when it was not,
// per the shadow-safety invariant that such a run never influences
// result.raw_score or result.scoring_method.
type ScoringService struct {
	store    ports.ResponseStore
	validity *ValidityService
	cfg      config.PsychometricsConfig
}

// NewScoringService wires a ScoringService against the response store and
// a ValidityService used to populate validity_status/validity_flags.
func NewScoringService(store ports.ResponseStore, validitySvc *ValidityService, cfg config.PsychometricsConfig) *ScoringService {
	return &ScoringService{store: store, validity: validitySvc, cfg: cfg}
}

// Score builds and persists the Result for sessionID. The store's
// WriteResult is idempotent on session ID (§6), so Score may be safely
// re-run.
func (s *ScoringService) Score(ctx context.Context, sessionID core.SessionID) (result.Result, error) {
	sess, err := s.store.FetchSession(ctx, sessionID)
	if err != nil {
		return result.Result{}, fmt.Errorf("fetching session %s: %w", sessionID, err)
	}

	responses, err := s.store.ListResponses(ctx, ports.ResponseFilters{SessionID: &sessionID})
	if err != nil {
		return result.Result{}, fmt.Errorf("listing responses for session %s: %w", sessionID, err)
	}

	itemIDs := make([]core.ItemID, len(responses))
	for i, r := range responses {
		itemIDs[i] = r.ItemID
	}
	items, err := s.store.FetchItems(ctx, ports.ItemFilters{IDs: itemIDs})
	if err != nil {
		return result.Result{}, fmt.Errorf("fetching items for session %s: %w", sessionID, err)
	}
	itemsByID := make(map[core.ItemID]item.Item, len(items))
	for _, it := range items {
		itemsByID[it.ID] = it
	}

	rawScore := 0
	domainTotals := make(map[string]int)
	domainCorrect := make(map[string]int)
	for _, r := range responses {
		if r.IsCorrect {
			rawScore++
		}
		it, ok := itemsByID[r.ItemID]
		domain := "unknown"
		if ok {
			domain = string(it.Domain)
		}
		domainTotals[domain]++
		if r.IsCorrect {
			domainCorrect[domain]++
		}
	}
	domainScores := make(map[string]result.DomainScore, len(domainTotals))
	for d, total := range domainTotals {
		domainScores[d] = result.NewDomainScore(domainCorrect[d], total)
	}

	res := result.Result{
		ID:           core.ResultID(core.NewID()),
		SessionID:    sessionID,
		RawScore:     rawScore,
		DomainScores: domainScores,
		CreatedAt:    core.Now(),
	}

	if sess.IsAdaptive && len(sess.AbilityHistory) > 0 {
		res.ScoringMethod = result.ScoringIRT
		last := sess.AbilityHistory[len(sess.AbilityHistory)-1]
		theta, se := last.Theta, last.SE
		res.FinalTheta = &theta
		res.FinalSE = &se
	} else {
		res.ScoringMethod = result.ScoringCTT
		s.runShadowCAT(&res, responses, itemsByID)
	}

	if s.validity != nil {
		verdict, detectorErrs, err := s.validity.Evaluate(ctx, sessionID)
		if err == nil {
			res.ValidityStatus = result.ValidityStatus(verdict.Status)
			for _, f := range verdict.Flags {
				res.ValidityFlags = append(res.ValidityFlags, f.Detector)
			}
		} else {
			res.ValidityStatus = result.ValidityValid
		}
		// §7: validity analysis never blocks result creation; any
		// detector error or evaluation failure still surfaces as a flag
		// so downstream review knows the verdict may be incomplete.
		if err != nil || len(detectorErrs) > 0 {
			res.ValidityFlags = append(res.ValidityFlags, "validity_check_error")
		}
	}

	if err := s.store.WriteResult(ctx, sessionID, res); err != nil {
		return result.Result{}, fmt.Errorf("writing result for session %s: %w", sessionID, err)
	}
	return res, nil
}

// runShadowCAT replays a fixed-form session's responses through the CAT
// EAP update to produce shadow_theta/shadow_se/shadow_iq and their delta
// vs the CTT-derived IQ, without ever touching res.RawScore or
// res.ScoringMethod (§3 invariant vii, SPEC_FULL §9 shadow safety).
func (s *ScoringService) runShadowCAT(res *result.Result, responses []response.Response, itemsByID map[core.ItemID]item.Item) {
	quad := irt.NewQuadrature(s.cfg.QuadraturePoints, s.cfg.QuadratureMin, s.cfg.QuadratureMax)

	var as, bs []float64
	var corrects []bool
	for _, r := range responses {
		it, ok := itemsByID[r.ItemID]
		if !ok || it.IRT == nil || !it.IRT.IsCalibrated() {
			continue
		}
		as = append(as, it.IRT.A)
		bs = append(bs, it.IRT.B)
		corrects = append(corrects, r.IsCorrect)
	}
	if len(as) == 0 {
		return
	}

	est := catEngine.UpdateEAP(quad, as, bs, corrects)
	theta, se := est.Theta, est.SE
	iq := thetaToIQ(theta)
	res.ShadowTheta = &theta
	res.ShadowSE = &se
	res.ShadowIQ = &iq

	if total := len(responses); total > 0 {
		ctt := 100.0 + 15.0*normalizeRawScoreToZ(res.RawScore, total)
		delta := theta - zFromIQ(ctt)
		res.ThetaIQDelta = &delta
	}
}

// thetaToIQ rescales a standard-normal ability estimate to the
// conventional IQ metric (mean 100, SD 15).
func thetaToIQ(theta float64) float64 {
	return 100.0 + 15.0*theta
}

func zFromIQ(iq float64) float64 {
	return (iq - 100.0) / 15.0
}

// normalizeRawScoreToZ approximates a z-score for a raw proportion-correct
// score assuming it is roughly normally distributed around 50% for a
// well-targeted fixed form; used only to anchor theta_iq_delta, not to
// produce any user-facing score.
func normalizeRawScoreToZ(correct, total int) float64 {
	if total == 0 {
		return 0
	}
	p := float64(correct) / float64(total)
	return (p - 0.5) / 0.5 * 2
}
