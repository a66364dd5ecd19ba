package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/session"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

func catTestCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		QuadraturePoints:     41,
		QuadratureMin:        -4,
		QuadratureMax:        4,
		TargetSE:             0.3,
		MaxItemsPerSession:   10,
		MinItemsPerSession:   2,
		MinDeltaSE:           0.01,
		MinDeltaSEWindow:     3,
		PerDomainExposureCap: 0,
		MaxSEA:               0.3,
		MaxSEB:               0.3,
	}
}

func seedCATPool(store *testkit.InMemoryResponseStore) {
	now := core.NewTimestamp(time.Now())
	store.SeedItems(
		item.Item{ID: "easy", Domain: item.DomainLogic, IRT: &item.IRTParams{A: 1, B: -2, SEA: 0.1, SEB: 0.1, CalibratedAt: &now}},
		item.Item{ID: "matched", Domain: item.DomainLogic, IRT: &item.IRTParams{A: 1.5, B: 0, SEA: 0.1, SEB: 0.1, CalibratedAt: &now}},
		item.Item{ID: "hard", Domain: item.DomainLogic, IRT: &item.IRTParams{A: 1, B: 2, SEA: 0.1, SEB: 0.1, CalibratedAt: &now}},
	)
}

func TestCATSessionService_NextItemPicksMaxInformationAtTheta(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedCATPool(store)
	store.SeedSession(session.Session{ID: "s1", UserID: "u1", IsAdaptive: true, Status: session.StatusInProgress, StartedAt: core.Now()})

	svc := NewCATSessionService(store, catTestCfg())
	next, err := svc.NextItem(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, core.ItemID("matched"), next.ID)
}

func TestCATSessionService_NextItemRejectsNonInProgressSession(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedCATPool(store)
	store.SeedSession(session.Session{ID: "s1", UserID: "u1", IsAdaptive: true, Status: session.StatusCompleted, StartedAt: core.Now()})

	svc := NewCATSessionService(store, catTestCfg())
	_, err := svc.NextItem(context.Background(), "s1")
	assert.Error(t, err)
}

func TestCATSessionService_RecordResponseAppendsAbilityHistory(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedCATPool(store)
	store.SeedSession(session.Session{ID: "s1", UserID: "u1", IsAdaptive: true, Status: session.StatusInProgress, StartedAt: core.Now()})

	svc := NewCATSessionService(store, catTestCfg())
	matched := item.Item{ID: "matched", IRT: &item.IRTParams{A: 1.5, B: 0}}

	updated, err := svc.RecordResponse(context.Background(), "s1", matched, true)
	require.NoError(t, err)
	require.Len(t, updated.AbilityHistory, 1)
	assert.Equal(t, core.ItemID("matched"), updated.AdministeredItemIDs[0])
}
