// Package validity runs the response-pattern and response-time detectors
// that flag a session suspect or invalid (§4.D). Detectors run concurrently
// and fan their findings back into a single Verdict, in the tagged-variant
// fan-out/fan-in style the rest of the analysis engine uses for independent
// per-session checks.
package validity

import (
	"context"
	"math"
	"sort"

	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/internal/config"
	"gohypo/internal/errors"
)

// Flag is one detector's verdict on a single session.
type Flag struct {
	Detector    string
	Description string
}

// SessionData is everything a detector needs about one session: its
// ordered responses and the item record of each item answered, keyed by
// item ID.
type SessionData struct {
	Responses []response.Response
	Items     map[string]item.Item // keyed by ItemID.String()
}

// Detector is one independent validity check. Implementations must not
// mutate SessionData and must be safe to call concurrently with other
// detectors over the same SessionData.
type Detector interface {
	Name() string
	Detect(ctx context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error)
}

// Engine fans SessionData out to every registered Detector concurrently and
// collects whichever flags fire.
type Engine struct {
	detectors []Detector
}

// NewEngine builds the standard detector set (§4.D): speed-floor,
// fast-on-hard-item, rushed-session mean response time, Guttman-error
// count, and person-fit (lz*). No detector flags overly slow responses;
// TooSlowSeconds is not read.
func NewEngine() *Engine {
	return &Engine{
		detectors: []Detector{
			SpeedFloorDetector{},
			SlownessDetector{},
			RushedSessionDetector{},
			GuttmanDetector{},
			PersonFitDetector{},
		},
	}
}

// Run executes every detector concurrently and returns every flag that
// fired. A detector error is recorded as a ValidityCheckError but does not
// stop the remaining detectors (§7: "callers continue with the remaining
// detectors").
func (e *Engine) Run(ctx context.Context, data SessionData, cfg config.PsychometricsConfig) ([]Flag, []error) {
	type outcome struct {
		flag *Flag
		err  error
		idx  int
	}

	results := make(chan outcome, len(e.detectors))
	for i, d := range e.detectors {
		go func(i int, d Detector) {
			flag, err := d.Detect(ctx, data, cfg)
			if err != nil {
				err = errors.ValidityCheckError(d.Name(), err)
			}
			results <- outcome{flag: flag, err: err, idx: i}
		}(i, d)
	}

	flags := make([]Flag, 0, len(e.detectors))
	var errs []error
	collected := make([]outcome, len(e.detectors))
	for i := 0; i < len(e.detectors); i++ {
		o := <-results
		collected[o.idx] = o
	}
	for _, o := range collected {
		if o.err != nil {
			errs = append(errs, o.err)
			continue
		}
		if o.flag != nil {
			flags = append(flags, *o.flag)
		}
	}
	return flags, errs
}

// Verdict is the aggregate result of running every detector over one
// session (§4.D): a session is "suspect" with any single flag and
// "invalid" once it accumulates two or more, or trips a hard detector
// (Guttman or person-fit) on its own.
type Verdict struct {
	Status string // matches result.ValidityStatus string values
	Flags  []Flag
}

const (
	statusValid   = "valid"
	statusSuspect = "suspect"
	statusInvalid = "invalid"
)

// ClassifyVerdict classifies the collected flags into an overall status.
func ClassifyVerdict(flags []Flag) Verdict {
	if len(flags) == 0 {
		return Verdict{Status: statusValid}
	}

	hardDetectors := map[string]bool{"guttman_error": true, "person_fit_lz": true}
	for _, f := range flags {
		if hardDetectors[f.Detector] {
			return Verdict{Status: statusInvalid, Flags: flags}
		}
	}
	if len(flags) >= 2 {
		return Verdict{Status: statusInvalid, Flags: flags}
	}
	return Verdict{Status: statusSuspect, Flags: flags}
}

// --- speed-floor: any response answered faster than a human can read the
// item is an automatic flag (§4.D).

type SpeedFloorDetector struct{}

func (SpeedFloorDetector) Name() string { return "speed_floor" }

func (d SpeedFloorDetector) Detect(_ context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error) {
	for _, r := range data.Responses {
		if r.TimeSpentSeconds < cfg.TooFastSeconds {
			return &Flag{Detector: d.Name(), Description: "response faster than the speed floor"}, nil
		}
	}
	return nil, nil
}

// --- fast on hard item: a hard item (b above the hard cutoff) answered faster than
// FastOnHardSeconds suggests guessing rather than genuine solving.

type SlownessDetector struct{}

func (SlownessDetector) Name() string { return "fast_on_hard_item" }

func (d SlownessDetector) Detect(_ context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error) {
	for _, r := range data.Responses {
		it, ok := data.Items[r.ItemID.String()]
		if !ok || it.IRT == nil || !it.IRT.IsCalibrated() {
			continue
		}
		if it.IRT.B > cfg.HardBCutoff && r.TimeSpentSeconds < cfg.FastOnHardSeconds {
			return &Flag{Detector: d.Name(), Description: "hard item answered faster than plausible"}, nil
		}
	}
	return nil, nil
}

// --- rushed session: mean response time across the whole session below
// RushedSessionMeanSecs (§4.D).

type RushedSessionDetector struct{}

func (RushedSessionDetector) Name() string { return "rushed_session" }

func (d RushedSessionDetector) Detect(_ context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error) {
	if len(data.Responses) == 0 {
		return nil, nil
	}
	total := 0.0
	for _, r := range data.Responses {
		total += r.TimeSpentSeconds
	}
	mean := total / float64(len(data.Responses))
	if mean < cfg.RushedSessionMeanSecs {
		return &Flag{Detector: d.Name(), Description: "session mean response time below plausible floor"}, nil
	}
	return nil, nil
}

// --- Guttman errors: count of correct-above-incorrect-below inversions
// when responses are sorted by item difficulty, normalized by the max
// possible inversions (§4.D).

type GuttmanDetector struct{}

func (GuttmanDetector) Name() string { return "guttman_error" }

func (d GuttmanDetector) Detect(_ context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error) {
	type scored struct {
		b       float64
		correct bool
	}
	var rows []scored
	for _, r := range data.Responses {
		it, ok := data.Items[r.ItemID.String()]
		if !ok || it.IRT == nil || !it.IRT.IsCalibrated() {
			continue
		}
		rows = append(rows, scored{b: it.IRT.B, correct: r.IsCorrect})
	}
	n := len(rows)
	if n < 2 {
		return nil, nil
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].b < rows[j].b })

	errorsCount := 0
	maxPairs := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			maxPairs++
			// easier item (i) missed while harder item (j) correct is a
			// Guttman error.
			if !rows[i].correct && rows[j].correct {
				errorsCount++
			}
		}
	}
	if maxPairs == 0 {
		return nil, nil
	}
	rate := float64(errorsCount) / float64(maxPairs)
	if rate > cfg.GuttmanThreshold {
		return &Flag{Detector: d.Name(), Description: "response pattern violates the expected Guttman ordering"}, nil
	}
	return nil, nil
}

// --- person-fit lz*: standardized log-likelihood of the observed response
// pattern under the calibrated 2-PL model, relative to the expected
// distribution for a well-fitting respondent (§4.D).

type PersonFitDetector struct{}

func (PersonFitDetector) Name() string { return "person_fit_lz" }

func (d PersonFitDetector) Detect(_ context.Context, data SessionData, cfg config.PsychometricsConfig) (*Flag, error) {
	var bs, as []float64
	var responses []bool
	for _, r := range data.Responses {
		it, ok := data.Items[r.ItemID.String()]
		if !ok || it.IRT == nil || !it.IRT.IsCalibrated() {
			continue
		}
		as = append(as, it.IRT.A)
		bs = append(bs, it.IRT.B)
		responses = append(responses, r.IsCorrect)
	}
	n := len(responses)
	if n < 5 {
		return nil, nil
	}

	theta := estimateThetaCrude(as, bs, responses)

	l0 := 0.0
	varL := 0.0
	for i := range responses {
		p := probCorrect(as[i], bs[i], theta)
		p = clampProb(p)
		q := 1 - p
		logOdds := math.Log(p / q)
		if responses[i] {
			l0 += math.Log(p)
		} else {
			l0 += math.Log(q)
		}
		varL += p * q * logOdds * logOdds
	}
	if varL <= 0 {
		return nil, nil
	}

	expectedL0 := 0.0
	for i := range responses {
		p := clampProb(probCorrect(as[i], bs[i], theta))
		q := 1 - p
		expectedL0 += p*math.Log(p) + q*math.Log(q)
	}

	lzStar := (l0 - expectedL0) / math.Sqrt(varL)
	if math.Abs(lzStar) > cfg.PersonFitLZThreshold {
		return &Flag{Detector: d.Name(), Description: "response pattern does not fit the calibrated item model"}, nil
	}
	return nil, nil
}

func probCorrect(a, b, theta float64) float64 {
	return 1.0 / (1.0 + math.Exp(-a*(theta-b)))
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

// estimateThetaCrude performs a short Newton search for the theta that
// maximizes the likelihood of the observed pattern, used only to anchor the
// lz* expectation (the authoritative ability estimate comes from the CAT
// engine's EAP update, §4.F).
func estimateThetaCrude(as, bs []float64, responses []bool) float64 {
	theta := 0.0
	for iter := 0; iter < 20; iter++ {
		grad, info := 0.0, 0.0
		for i := range responses {
			p := probCorrect(as[i], bs[i], theta)
			y := 0.0
			if responses[i] {
				y = 1.0
			}
			grad += as[i] * (y - p)
			info += as[i] * as[i] * p * (1 - p)
		}
		if info == 0 {
			break
		}
		step := grad / info
		theta += step
		if math.Abs(step) < 1e-5 {
			break
		}
	}
	return theta
}
