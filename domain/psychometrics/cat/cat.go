// Package cat implements the computerized adaptive testing engine: the
// Starting -> Selecting -> AwaitingResponse -> Updating -> Selecting|Stopping
// -> Done state machine, EAP ability estimation, Fisher-information item
// selection with exposure control, and shadow-CAT replay (§4.F).
package cat

import (
	"math"
	"sort"

	"gohypo/domain/item"
	"gohypo/domain/psychometrics/irt"
	"gohypo/internal/config"
	"gohypo/internal/errors"
)

// State names the CAT session's position in its state machine (§4.F).
type State string

const (
	StateStarting         State = "starting"
	StateSelecting        State = "selecting"
	StateAwaitingResponse  State = "awaiting_response"
	StateUpdating         State = "updating"
	StateStopping         State = "stopping"
	StateDone             State = "done"
)

// StopReason names why CAT stopped administering items.
type StopReason string

const (
	StopTargetSEReached StopReason = "target_se_reached"
	StopMaxItems        StopReason = "max_items_reached"
	StopPlateau         StopReason = "se_plateau"
	StopPoolExhausted   StopReason = "pool_exhausted"
)

// AbilityEstimate is the EAP point estimate and posterior standard
// deviation after incorporating some number of responses.
type AbilityEstimate struct {
	Theta float64
	SE    float64
}

// UpdateEAP recomputes the expected-a-posteriori ability estimate over the
// fixed quadrature given every (item, correctness) pair administered so
// far (§4.F). This is the same quadrature-based posterior used by IRT
// calibration's E-step, applied here to a single respondent.
func UpdateEAP(quad irt.Quadrature, as, bs []float64, responses []bool) AbilityEstimate {
	q := len(quad.Nodes)
	logLik := make([]float64, q)
	for qi, theta := range quad.Nodes {
		ll := 0.0
		for i := range responses {
			p := clampProb(irt.Prob2PL(theta, as[i], bs[i]))
			if responses[i] {
				ll += math.Log(p)
			} else {
				ll += math.Log(1 - p)
			}
		}
		logLik[qi] = ll
	}

	maxLL := logLik[0]
	for _, v := range logLik {
		if v > maxLL {
			maxLL = v
		}
	}
	weights := make([]float64, q)
	sum := 0.0
	for qi := range logLik {
		w := quad.Weights[qi] * math.Exp(logLik[qi]-maxLL)
		weights[qi] = w
		sum += w
	}
	if sum == 0 {
		return AbilityEstimate{Theta: 0, SE: 1}
	}

	mean := 0.0
	for qi, w := range weights {
		mean += (w / sum) * quad.Nodes[qi]
	}
	variance := 0.0
	for qi, w := range weights {
		d := quad.Nodes[qi] - mean
		variance += (w / sum) * d * d
	}
	return AbilityEstimate{Theta: mean, SE: math.Sqrt(variance)}
}

func clampProb(p float64) float64 {
	const eps = 1e-6
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// EligibleItem is one calibrated item the selector may consider, carrying
// its exposure count within the current recalibration window.
type EligibleItem struct {
	ID            string
	Domain        item.Domain
	A, B          float64
	ExposureCount int
}

// SelectNext chooses the next item to administer: maximum Fisher
// information at the current theta among items not yet administered in
// this session, excluding any item whose exposure count has hit the
// per-domain cap, with ties broken by lowest exposure then by ID for
// determinism (§4.F).
//
// Before falling back to pure information-maximizing selection, it
// enforces a balanced warm-up: as long as some domain represented among
// candidates has not yet had an item administered this session, selection
// is restricted to candidates from an unrepresented domain (still ranked
// by Fisher information within that restricted set), so no domain can be
// skipped entirely by an early high-information run in another domain.
//
// Returns errors.PoolExhausted if no eligible item remains.
func SelectNext(candidates []EligibleItem, administered map[string]bool, theta float64, exposureCap int, sessionID string) (EligibleItem, error) {
	pool := eligibleCandidates(candidates, administered, exposureCap)
	if len(pool) == 0 {
		return EligibleItem{}, errors.PoolExhausted(sessionID)
	}

	if warmup := warmupCandidates(pool, candidates, administered); len(warmup) > 0 {
		pool = warmup
	}

	best := bestByInformation(pool, theta)
	return best, nil
}

// warmupCandidates restricts pool to items from domains not yet
// represented among administered items, or returns nil once every domain
// present in pool has had at least one item administered (§4.F balanced
// warm-up). administeredDomains are looked up against the full candidate
// set since administered items are, by definition, absent from pool.
func warmupCandidates(pool, candidates []EligibleItem, administered map[string]bool) []EligibleItem {
	seenDomains := make(map[item.Domain]bool)
	for _, c := range candidates {
		if administered[c.ID] {
			seenDomains[c.Domain] = true
		}
	}

	var warmup []EligibleItem
	for _, c := range pool {
		if !seenDomains[c.Domain] {
			warmup = append(warmup, c)
		}
	}
	return warmup
}

// eligibleCandidates filters out already-administered items and items at
// their exposure cap.
func eligibleCandidates(candidates []EligibleItem, administered map[string]bool, exposureCap int) []EligibleItem {
	var pool []EligibleItem
	for _, c := range candidates {
		if administered[c.ID] {
			continue
		}
		if exposureCap > 0 && c.ExposureCount >= exposureCap {
			continue
		}
		pool = append(pool, c)
	}
	return pool
}

// bestByInformation picks the argmax-information candidate from pool,
// breaking ties by lowest exposure then lowest ID.
func bestByInformation(pool []EligibleItem, theta float64) EligibleItem {
	var best []EligibleItem
	bestInfo := math.Inf(-1)

	for _, c := range pool {
		info := irt.Information2PL(theta, c.A, c.B)
		switch {
		case info > bestInfo:
			bestInfo = info
			best = []EligibleItem{c}
		case info == bestInfo:
			best = append(best, c)
		}
	}

	sort.Slice(best, func(i, j int) bool {
		if best[i].ExposureCount != best[j].ExposureCount {
			return best[i].ExposureCount < best[j].ExposureCount
		}
		return best[i].ID < best[j].ID
	})
	return best[0]
}

// ShouldStop evaluates the stopping rules in priority order: target SE
// reached, max items reached, SE plateau over the trailing window, or pool
// exhaustion (signaled by the caller when SelectNext fails) (§4.F).
func ShouldStop(itemsAdministered int, se float64, seHistory []float64, cfg config.PsychometricsConfig) (bool, StopReason) {
	if itemsAdministered < cfg.MinItemsPerSession {
		return false, ""
	}
	if se <= cfg.TargetSE {
		return true, StopTargetSEReached
	}
	if itemsAdministered >= cfg.MaxItemsPerSession {
		return true, StopMaxItems
	}
	if len(seHistory) >= cfg.MinDeltaSEWindow {
		window := seHistory[len(seHistory)-cfg.MinDeltaSEWindow:]
		maxDelta := 0.0
		for i := 1; i < len(window); i++ {
			d := math.Abs(window[i-1] - window[i])
			if d > maxDelta {
				maxDelta = d
			}
		}
		if maxDelta < cfg.MinDeltaSE {
			return true, StopPlateau
		}
	}
	return false, ""
}

// Machine drives one session's adaptive loop: each step selects an item,
// transitions to AwaitingResponse, and on RecordResponse transitions
// through Updating back to Selecting or to Stopping/Done (§4.F).
type Machine struct {
	State State

	Quad irt.Quadrature
	cfg  config.PsychometricsConfig

	administeredIDs []string
	administeredAs  []float64
	administeredBs  []float64
	responses       []bool
	seHistory       []float64

	Theta float64
	SE    float64
}

// NewMachine starts a session at the prior N(0,1) (§4.F).
func NewMachine(cfg config.PsychometricsConfig) *Machine {
	return &Machine{
		State: StateStarting,
		Quad:  irt.NewQuadrature(cfg.QuadraturePoints, cfg.QuadratureMin, cfg.QuadratureMax),
		cfg:   cfg,
		Theta: 0,
		SE:    1,
	}
}

// administeredSet reports which items this machine has already shown.
func (m *Machine) administeredSet() map[string]bool {
	set := make(map[string]bool, len(m.administeredIDs))
	for _, id := range m.administeredIDs {
		set[id] = true
	}
	return set
}

// Select transitions Starting/Selecting -> AwaitingResponse by choosing the
// next item.
func (m *Machine) Select(candidates []EligibleItem, sessionID string) (EligibleItem, error) {
	if m.State != StateStarting && m.State != StateSelecting {
		return EligibleItem{}, errors.InvalidInput("cannot select an item outside Starting/Selecting state")
	}
	next, err := SelectNext(candidates, m.administeredSet(), m.Theta, m.cfg.PerDomainExposureCap, sessionID)
	if err != nil {
		m.State = StateStopping
		return EligibleItem{}, err
	}
	m.State = StateAwaitingResponse
	return next, nil
}

// RecordResponse transitions AwaitingResponse -> Updating -> Selecting or
// Stopping, updating theta/SE via EAP over every response so far.
func (m *Machine) RecordResponse(selected EligibleItem, correct bool) {
	if m.State != StateAwaitingResponse {
		return
	}
	m.State = StateUpdating

	m.administeredIDs = append(m.administeredIDs, selected.ID)
	m.administeredAs = append(m.administeredAs, selected.A)
	m.administeredBs = append(m.administeredBs, selected.B)
	m.responses = append(m.responses, correct)

	est := UpdateEAP(m.Quad, m.administeredAs, m.administeredBs, m.responses)
	m.Theta = est.Theta
	m.SE = est.SE
	m.seHistory = append(m.seHistory, m.SE)

	if stop, _ := ShouldStop(len(m.administeredIDs), m.SE, m.seHistory, m.cfg); stop {
		m.State = StateStopping
		return
	}
	m.State = StateSelecting
}

// Finish transitions Stopping -> Done and reports the stop reason.
func (m *Machine) Finish() StopReason {
	_, reason := ShouldStop(len(m.administeredIDs), m.SE, m.seHistory, m.cfg)
	if reason == "" && len(m.administeredIDs) >= m.cfg.MaxItemsPerSession {
		reason = StopMaxItems
	}
	m.State = StateDone
	return reason
}

// AdministeredCount reports how many items this machine has scored.
func (m *Machine) AdministeredCount() int { return len(m.administeredIDs) }
