package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

func validityTestCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		TooFastSeconds:        3,
		FastOnHardSeconds:     5,
		RushedSessionMeanSecs: 15,
		GuttmanThreshold:      0.25,
		PersonFitLZThreshold:  2.0,
		HardBCutoff:           1,
	}
}

func TestValidityService_EvaluateFlagsSpeedFloorViolations(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	store.SeedItems(item.Item{ID: "i1", Domain: item.DomainLogic})
	ctx := context.Background()
	require.NoError(t, store.RecordResponse(ctx, response.Response{
		ID: "r1", SessionID: "s1", ItemID: "i1", TimeSpentSeconds: 1, SubmittedAt: core.Now(),
	}))

	svc := NewValidityService(store, validityTestCfg())
	verdict, detectorErrs, err := svc.Evaluate(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, detectorErrs)
	assert.NotEmpty(t, verdict.Flags)
}

func TestValidityService_EvaluateValidWhenNothingFires(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	store.SeedItems(item.Item{ID: "i1", Domain: item.DomainLogic})
	ctx := context.Background()
	require.NoError(t, store.RecordResponse(ctx, response.Response{
		ID: "r1", SessionID: "s1", ItemID: "i1", TimeSpentSeconds: 20, SubmittedAt: core.Now(),
	}))

	svc := NewValidityService(store, validityTestCfg())
	verdict, _, err := svc.Evaluate(ctx, "s1")
	require.NoError(t, err)
	assert.EqualValues(t, "valid", verdict.Status)
}
