package app

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/psychometrics/irt"
	"gohypo/domain/response"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
	"gohypo/ports"
)

func seedCalibrationFixture(t *testing.T, store *testkit.InMemoryResponseStore) {
	trueA := []float64{1.0, 1.2, 0.8}
	trueB := []float64{-1.0, 0.0, 1.0}
	itemIDs := []core.ItemID{"i1", "i2", "i3"}

	for _, it := range itemIDs {
		store.SeedItems(item.Item{ID: it, Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 200}})
	}

	n := 200
	rng := rand.New(rand.NewSource(1))
	ctx := context.Background()
	for i := 0; i < n; i++ {
		theta := rng.NormFloat64()
		sid := core.SessionID(core.NewID())
		for j, id := range itemIDs {
			p := irt.Prob2PL(theta, trueA[j], trueB[j])
			correct := rng.Float64() < p
			require.NoError(t, store.RecordResponse(ctx, response.Response{
				ID: core.ResponseID(core.NewID()), SessionID: sid, ItemID: id, IsCorrect: correct, SubmittedAt: core.Now(),
			}))
		}
	}
}

func TestCalibrationService_RunPersistsConvergedParameters(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedCalibrationFixture(t, store)

	cfg := config.PsychometricsConfig{
		MinResponses:       50,
		EMMaxIter:          50,
		EMEpsilon:          1e-3,
		QuadraturePoints:   21,
		QuadratureMin:      -4,
		QuadratureMax:      4,
		BootstrapResamples: 5,
	}
	svc := NewCalibrationService(store, &testkit.RNGAdapter{}, cfg)

	jobID := core.CalibrationID(core.NewID())
	run, err := svc.Run(context.Background(), jobID)
	require.NoError(t, err)

	assert.Equal(t, calibration.StatusCompleted, run.Status)
	assert.Equal(t, 3, run.Calibrated)
	assert.Equal(t, 0, run.Skipped)

	items, err := store.FetchItems(context.Background(), ports.ItemFilters{IDs: []core.ItemID{"i1", "i2", "i3"}})
	require.NoError(t, err)
	for _, it := range items {
		require.NotNil(t, it.IRT)
		assert.True(t, it.IRT.IsCalibrated())
		assert.Greater(t, it.IRT.A, 0.0)
	}
}
