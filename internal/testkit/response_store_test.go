package testkit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/readiness"
	"gohypo/domain/response"
	"gohypo/ports"
)

func TestInMemoryResponseStore_RecordResponseRejectsDuplicate(t *testing.T) {
	store := NewInMemoryResponseStore()
	ctx := context.Background()

	r := response.Response{ID: "r1", SessionID: "s1", ItemID: "i1"}
	require.NoError(t, store.RecordResponse(ctx, r))

	dup := response.Response{ID: "r2", SessionID: "s1", ItemID: "i1"}
	err := store.RecordResponse(ctx, dup)
	assert.Error(t, err)
}

func TestInMemoryResponseStore_UpdateItemStatsRejectsStaleCAS(t *testing.T) {
	store := NewInMemoryResponseStore()
	ctx := context.Background()
	store.SeedItems(item.Item{ID: "i1", CTT: item.CTTStats{ResponseCount: 10}})

	err := store.UpdateItemStats(ctx, "i1", ports.ItemStatsPatch{
		ExpectedResponseCount: 9,
		CTT:                   &item.CTTStats{ResponseCount: 11},
	})
	assert.Error(t, err)

	require.NoError(t, store.UpdateItemStats(ctx, "i1", ports.ItemStatsPatch{
		ExpectedResponseCount: 10,
		CTT:                   &item.CTTStats{ResponseCount: 11},
	}))

	items, err := store.FetchItems(ctx, ports.ItemFilters{IDs: []core.ItemID{"i1"}})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 11, items[0].CTT.ResponseCount)
}

func TestInMemoryResponseStore_ListResponsesFiltersBySession(t *testing.T) {
	store := NewInMemoryResponseStore()
	ctx := context.Background()
	require.NoError(t, store.RecordResponse(ctx, response.Response{ID: "r1", SessionID: "s1", ItemID: "i1"}))
	require.NoError(t, store.RecordResponse(ctx, response.Response{ID: "r2", SessionID: "s2", ItemID: "i1"}))

	sid := core.SessionID("s1")
	out, err := store.ListResponses(ctx, ports.ResponseFilters{SessionID: &sid})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, core.ResponseID("r1"), out[0].ID)
}

func TestInMemoryResponseStore_SystemConfigRoundTrips(t *testing.T) {
	store := NewInMemoryResponseStore()
	ctx := context.Background()

	_, err := store.GetCATReadiness(ctx)
	assert.Error(t, err)

	require.NoError(t, store.SetSystemConfig(ctx, "cat_readiness", readiness.State{IsGloballyReady: true}))
	got, err := store.GetCATReadiness(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsGloballyReady)
}
