package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

func readinessTestCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		MinCalibratedItemsPerDomain: 3,
		MinItemsPerDifficultyBand:   1,
		MaxSEA:                      0.3,
		MaxSEB:                      0.3,
		EasyBCutoff:                 -1,
		HardBCutoff:                 1,
	}
}

func calibratedTestItem(id core.ItemID, d item.Domain, b float64) item.Item {
	now := core.NewTimestamp(time.Now())
	return item.Item{
		ID:     id,
		Domain: d,
		IRT:    &item.IRTParams{A: 1, B: b, SEA: 0.1, SEB: 0.1, CalibratedAt: &now},
	}
}

func TestReadinessService_EvaluatePersistsGloballyReadyState(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	for _, d := range item.AllDomains {
		for _, b := range []float64{-2, 0, 2} {
			store.SeedItems(calibratedTestItem(core.ItemID(core.NewID()), d, b))
		}
	}

	svc := NewReadinessService(store, readinessTestCfg())
	require.NoError(t, svc.Evaluate(context.Background()))

	state, err := store.GetCATReadiness(context.Background())
	require.NoError(t, err)
	assert.True(t, state.IsGloballyReady)
	assert.True(t, state.CATEnabled)
}

func TestReadinessService_EvaluateNotReadyWithSparseBank(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	store.SeedItems(calibratedTestItem("i1", item.DomainLogic, 0))

	svc := NewReadinessService(store, readinessTestCfg())
	require.NoError(t, svc.Evaluate(context.Background()))

	state, err := store.GetCATReadiness(context.Background())
	require.NoError(t, err)
	assert.False(t, state.IsGloballyReady)
}
