package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	domainReliability "gohypo/domain/reliability"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

func seedReliabilityFixture(t *testing.T, store *testkit.InMemoryResponseStore) {
	store.SeedItems(
		item.Item{ID: "i1", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 4}},
		item.Item{ID: "i2", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 4}},
	)
	ctx := context.Background()
	pattern := [][2]bool{{true, true}, {true, false}, {false, true}, {false, false}}
	for i, p := range pattern {
		sid := core.SessionID("s" + string(rune('0'+i)))
		require.NoError(t, store.RecordResponse(ctx, response.Response{
			ID: core.ResponseID("r" + string(rune('0'+i)) + "a"), SessionID: sid, ItemID: "i1", IsCorrect: p[0], SubmittedAt: core.Now(),
		}))
		require.NoError(t, store.RecordResponse(ctx, response.Response{
			ID: core.ResponseID("r" + string(rune('0'+i)) + "b"), SessionID: sid, ItemID: "i2", IsCorrect: p[1], SubmittedAt: core.Now(),
		}))
	}
}

func TestReliabilityService_ComputeAlphaOverRealMatrix(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedReliabilityFixture(t, store)

	svc := NewReliabilityService(store, config.PsychometricsConfig{MinSessionsForAlpha: 1})
	metric, err := svc.ComputeAlpha(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domainReliability.MetricCronbachsAlpha, metric.Type)
	assert.Equal(t, 4, metric.SampleSize)
}

func TestReliabilityService_ComputeAlphaInsufficientSample(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedReliabilityFixture(t, store)

	svc := NewReliabilityService(store, config.PsychometricsConfig{MinSessionsForAlpha: 1000})
	_, err := svc.ComputeAlpha(context.Background())
	assert.Error(t, err)
}
