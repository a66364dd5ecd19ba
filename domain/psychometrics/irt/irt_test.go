package irt

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/internal/config"
)

func TestProb2PL_MonotonicInTheta(t *testing.T) {
	low := Prob2PL(-2, 1, 0)
	high := Prob2PL(2, 1, 0)
	assert.Less(t, low, high)
}

func TestInformation2PL_PeaksNearDifficulty(t *testing.T) {
	atB := Information2PL(0.5, 1.5, 0.5)
	farFromB := Information2PL(4, 1.5, 0.5)
	assert.Greater(t, atB, farFromB)
}

func TestNewQuadrature_WeightsSymmetric(t *testing.T) {
	q := NewQuadrature(41, -4, 4)
	require.Len(t, q.Nodes, 41)
	// node 0 and the last node are symmetric around zero, so their
	// standard-normal weights should match.
	assert.InDelta(t, q.Weights[0], q.Weights[len(q.Weights)-1], 1e-9)
}

func simulateResponses(n, k int, trueA, trueB []float64, thetas []float64) [][]int {
	data := make([][]int, n)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < n; i++ {
		row := make([]int, k)
		for j := 0; j < k; j++ {
			p := Prob2PL(thetas[i], trueA[j], trueB[j])
			if rng.Float64() < p {
				row[j] = 1
			}
		}
		data[i] = row
	}
	return data
}

func TestCalibrate_RecoversApproximateParameters(t *testing.T) {
	trueA := []float64{1.0, 1.2, 0.8}
	trueB := []float64{-1.0, 0.0, 1.0}
	n := 200
	thetas := make([]float64, n)
	rng := rand.New(rand.NewSource(1))
	for i := range thetas {
		thetas[i] = rng.NormFloat64()
	}
	data := simulateResponses(n, 3, trueA, trueB, thetas)

	cfg := config.PsychometricsConfig{
		EMMaxIter:          50,
		EMEpsilon:          1e-3,
		QuadraturePoints:   21,
		QuadratureMin:      -4,
		QuadratureMax:      4,
		BootstrapResamples: 5,
	}

	results, err := Calibrate(context.Background(), []string{"i1", "i2", "i3"}, data, cfg, rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	require.Len(t, results, 3)
	for _, id := range []string{"i1", "i2", "i3"} {
		r, ok := results[id]
		require.True(t, ok)
		assert.True(t, r.Converged)
		assert.Greater(t, r.A, 0.0)
	}
}
