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
	"gohypo/ports"
)

func TestCTTService_RecomputeAllPersistsDifficultyAndQualityTier(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	store.SeedItems(item.Item{ID: "i1", Domain: item.DomainLogic, Options: []item.AnswerOption{{Text: "A", IsCorrect: true}, {Text: "B"}}})

	ctx := context.Background()
	for s := 0; s < 4; s++ {
		correct := s%2 == 0
		choice := "B"
		if correct {
			choice = "A"
		}
		require.NoError(t, store.RecordResponse(ctx, response.Response{
			ID:           core.ResponseID("r" + string(rune('0'+s))),
			SessionID:    core.SessionID("s" + string(rune('0'+s))),
			ItemID:       "i1",
			ChosenOption: choice,
			IsCorrect:    correct,
			SubmittedAt:  core.Now(),
		}))
	}

	svc := NewCTTService(store, config.PsychometricsConfig{MinResponses: 2})
	require.NoError(t, svc.RecomputeAll(ctx))

	got, err := store.FetchItems(ctx, ports.ItemFilters{IDs: []core.ItemID{"i1"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.5, got[0].CTT.EmpiricalDifficulty)
}
