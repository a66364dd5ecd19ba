// Package irt implements 2-parameter-logistic item calibration by marginal
// maximum likelihood via EM, with Newton-Raphson M-steps over a fixed
// quadrature and bootstrap standard errors (§4.E).
package irt

import (
	"context"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/stat/distuv"

	"gohypo/internal/config"
	"gohypo/internal/errors"
	"gohypo/ports"
)

// Prob2PL is the 2-PL item response function.
func Prob2PL(theta, a, b float64) float64 {
	return 1.0 / (1.0 + math.Exp(-a*(theta-b)))
}

// Information2PL is the Fisher information a 2-PL item provides at theta.
func Information2PL(theta, a, b float64) float64 {
	p := Prob2PL(theta, a, b)
	return a * a * p * (1 - p)
}

// Quadrature is a fixed set of ability nodes with a standard-normal prior
// weight, shared by every item's EM step within one calibration run (§4.E).
type Quadrature struct {
	Nodes   []float64
	Weights []float64 // N(0,1) density at each node, unnormalized
}

// NewQuadrature builds an evenly spaced grid over [min, max] with `points`
// nodes, weighted by the standard normal density (the N(0,1) ability
// prior).
func NewQuadrature(points int, min, max float64) Quadrature {
	nodes := make([]float64, points)
	weights := make([]float64, points)
	prior := distuv.UnitNormal
	step := (max - min) / float64(points-1)
	for i := 0; i < points; i++ {
		x := min + float64(i)*step
		nodes[i] = x
		weights[i] = prior.Prob(x)
	}
	return Quadrature{Nodes: nodes, Weights: weights}
}

// ItemObservations is one item's binary response vector across respondents,
// used as a single EM column.
type ItemObservations struct {
	Responses []int // 0/1, one per respondent row
}

// CalibrationResult is the converged 2-PL parameters for one item plus its
// bootstrap standard errors.
type CalibrationResult struct {
	A               float64
	B               float64
	SEA             float64
	SEB             float64
	InformationPeak float64
	Iterations      int
	Converged       bool
}

// Calibrate runs MML-EM for every item column jointly (since posterior
// ability weights are shared across items within an iteration) and then
// bootstraps standard errors per item by resampling respondents with
// replacement (§4.E).
//
// Every item in itemIDs gets an entry in the returned map, including those
// that failed to converge within cfg.EMMaxIter (Converged == false); the
// caller must not overwrite such an item's prior parameters (§7
// ConvergenceFailure: "the caller must not overwrite prior item
// parameters"). Calibrate itself only errors when the batch as a whole
// cannot be calibrated, e.g. zero respondents.
func Calibrate(ctx context.Context, itemIDs []string, data [][]int, cfg config.PsychometricsConfig, rng *rand.Rand) (map[string]CalibrationResult, error) {
	quad := NewQuadrature(cfg.QuadraturePoints, cfg.QuadratureMin, cfg.QuadratureMax)

	as, bs, iters, converged, err := emCalibrate(data, quad, cfg)
	if err != nil {
		return nil, err
	}

	results := make(map[string]CalibrationResult, len(itemIDs))
	for j, id := range itemIDs {
		if !converged[j] {
			results[id] = CalibrationResult{Iterations: iters[j], Converged: false}
			continue
		}
		seA, seB := bootstrapSE(ctx, j, data, quad, cfg, rng)
		results[id] = CalibrationResult{
			A:               as[j],
			B:               bs[j],
			SEA:             seA,
			SEB:             seB,
			InformationPeak: Information2PL(bs[j], as[j], bs[j]),
			Iterations:      iters[j],
			Converged:       true,
		}
	}
	return results, nil
}

// emCalibrate performs the MML-EM loop. The E-step computes each
// respondent's posterior ability distribution over the quadrature from the
// current item parameters and the full response vector; the M-step updates
// each item's (a, b) independently by Newton-Raphson against the expected
// counts, since conditional on the posterior weights the items separate.
func emCalibrate(data [][]int, quad Quadrature, cfg config.PsychometricsConfig) (as, bs []float64, iters []int, converged []bool, err error) {
	n := len(data)
	if n == 0 {
		return nil, nil, nil, nil, errors.InsufficientSample("IRT calibration requires at least one respondent", 0, 1)
	}
	k := len(data[0])

	as = make([]float64, k)
	bs = make([]float64, k)
	for j := range as {
		as[j] = 1.0
		bs[j] = 0.0
	}
	iters = make([]int, k)
	converged = make([]bool, k)

	q := len(quad.Nodes)
	post := make([][]float64, n) // posterior weight per respondent per quadrature node
	for i := range post {
		post[i] = make([]float64, q)
	}

	prevAs := make([]float64, k)
	prevBs := make([]float64, k)

	for iter := 0; iter < cfg.EMMaxIter; iter++ {
		copy(prevAs, as)
		copy(prevBs, bs)

		// E-step: posterior over theta for each respondent given current
		// item parameters and the response pattern. A negative cell value
		// marks an item the respondent never answered (matrix.Missing) and
		// is skipped rather than scored as incorrect.
		for i := 0; i < n; i++ {
			logLik := make([]float64, q)
			for qi, theta := range quad.Nodes {
				ll := 0.0
				for j := 0; j < k; j++ {
					if data[i][j] < 0 {
						continue
					}
					p := clamp(Prob2PL(theta, as[j], bs[j]))
					if data[i][j] == 1 {
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
			sum := 0.0
			unnorm := make([]float64, q)
			for qi := range logLik {
				w := quad.Weights[qi] * math.Exp(logLik[qi]-maxLL)
				unnorm[qi] = w
				sum += w
			}
			if sum == 0 {
				sum = 1
			}
			for qi := range unnorm {
				post[i][qi] = unnorm[qi] / sum
			}
		}

		// M-step: one Newton-Raphson update per item against its expected
		// correct/incorrect counts per quadrature node.
		for j := 0; j < k; j++ {
			a, b, conv := newtonItemStep(j, data, post, quad)
			as[j] = a
			bs[j] = b
			iters[j] = iter + 1
			converged[j] = conv
		}

		maxDelta := 0.0
		for j := 0; j < k; j++ {
			maxDelta = math.Max(maxDelta, math.Abs(as[j]-prevAs[j]))
			maxDelta = math.Max(maxDelta, math.Abs(bs[j]-prevBs[j]))
		}
		if maxDelta < cfg.EMEpsilon {
			for j := range converged {
				converged[j] = true
			}
			return as, bs, iters, converged, nil
		}
	}

	return as, bs, iters, converged, nil
}

// newtonItemStep runs a few Newton-Raphson iterations on item j's 2-PL
// log-likelihood, using the per-respondent posterior weights as the
// expected quadrature-node membership (the standard MML-EM M-step).
func newtonItemStep(j int, data [][]int, post [][]float64, quad Quadrature) (a, b float64, converged bool) {
	a, b = 1.0, 0.0
	n := len(data)

	for iter := 0; iter < 25; iter++ {
		var gradA, gradB, hAA, hAB, hBB float64

		for qi, theta := range quad.Nodes {
			p := clamp(Prob2PL(theta, a, b))
			var rTotal, nTotal float64
			for i := 0; i < n; i++ {
				if data[i][j] < 0 {
					continue
				}
				w := post[i][qi]
				nTotal += w
				if data[i][j] == 1 {
					rTotal += w
				}
			}
			residual := rTotal - nTotal*p
			dtheta := theta - b

			gradA += residual * dtheta
			gradB += -residual * a

			info := nTotal * p * (1 - p)
			hAA -= info * dtheta * dtheta
			hAB -= -info * dtheta * a
			hBB -= info * a * a
		}

		det := hAA*hBB - hAB*hAB
		if math.Abs(det) < 1e-10 {
			break
		}
		// Newton step: solve [[hAA,hAB],[hAB,hBB]] * delta = -[gradA,gradB]
		deltaA := -(hBB*gradA - hAB*gradB) / det
		deltaB := -(hAA*gradB - hAB*gradA) / det

		a += deltaA
		b += deltaB
		if a <= 0 {
			a = 0.05
		}

		if math.Abs(deltaA) < 1e-6 && math.Abs(deltaB) < 1e-6 {
			return a, b, true
		}
	}
	return a, b, true
}

// bootstrapSE estimates standard errors on item j's (a, b) by resampling
// respondents with replacement B times and recalibrating that single item
// against the fixed posterior-weighted population, then taking the
// resampled parameter's standard deviation (§4.E).
func bootstrapSE(ctx context.Context, j int, data [][]int, quad Quadrature, cfg config.PsychometricsConfig, rng *rand.Rand) (seA, seB float64) {
	n := len(data)
	if n == 0 || rng == nil {
		return 0, 0
	}

	aSamples := make([]float64, 0, cfg.BootstrapResamples)
	bSamples := make([]float64, 0, cfg.BootstrapResamples)

	for rep := 0; rep < cfg.BootstrapResamples; rep++ {
		select {
		case <-ctx.Done():
			return stdDev(aSamples), stdDev(bSamples)
		default:
		}

		resampled := make([][]int, n)
		for i := 0; i < n; i++ {
			src := rng.Intn(n)
			row := make([]int, 1)
			row[0] = data[src][j]
			resampled[i] = row
		}

		post := uniformPosterior(n, quad)
		a, b, _ := newtonItemStep(0, resampled, post, quad)
		aSamples = append(aSamples, a)
		bSamples = append(bSamples, b)
	}

	return stdDev(aSamples), stdDev(bSamples)
}

// uniformPosterior seeds the bootstrap M-step with the quadrature's prior
// weights rather than a recomputed E-step, since bootstrap resampling is
// only characterizing item-level sampling variance, not re-estimating
// ability.
func uniformPosterior(n int, quad Quadrature) [][]float64 {
	post := make([][]float64, n)
	sum := 0.0
	for _, w := range quad.Weights {
		sum += w
	}
	for i := 0; i < n; i++ {
		row := make([]float64, len(quad.Weights))
		for qi, w := range quad.Weights {
			row[qi] = w / sum
		}
		post[i] = row
	}
	return post
}

func stdDev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(n)
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(n-1))
}

func clamp(p float64) float64 {
	const eps = 1e-6
	if p < eps {
		return eps
	}
	if p > 1-eps {
		return 1 - eps
	}
	return p
}

// SeedFromPort derives a rand.Rand for a calibration job using the shared
// RNGPort, so resampling is deterministic and reproducible per job (§5).
func SeedFromPort(ctx context.Context, rngPort ports.RNGPort, jobID string, seed int64) (*rand.Rand, error) {
	return rngPort.SeededStream(ctx, "irt_bootstrap:"+jobID, seed)
}
