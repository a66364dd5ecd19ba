package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/domain/session"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

func seedScoringFixture(t *testing.T, store *testkit.InMemoryResponseStore, sessionID core.SessionID, adaptive bool) {
	items := []item.Item{
		{ID: "i1", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 100}},
		{ID: "i2", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 100}},
		{ID: "i3", Domain: item.DomainMath, CTT: item.CTTStats{ResponseCount: 100}},
	}
	store.SeedItems(items...)

	responses := []response.Response{
		{ID: "r1", SessionID: sessionID, ItemID: "i1", IsCorrect: true, SubmittedAt: core.Now()},
		{ID: "r2", SessionID: sessionID, ItemID: "i2", IsCorrect: false, SubmittedAt: core.Now()},
		{ID: "r3", SessionID: sessionID, ItemID: "i3", IsCorrect: true, SubmittedAt: core.Now()},
	}
	for _, r := range responses {
		require.NoError(t, store.RecordResponse(context.Background(), r))
	}

	sess := session.Session{
		ID:         sessionID,
		UserID:     "u1",
		IsAdaptive: adaptive,
		Status:     session.StatusCompleted,
		StartedAt:  core.Now(),
	}
	if adaptive {
		sess.AbilityHistory = []session.AbilityStep{
			{ItemID: "i1", Theta: 0.5, SE: 0.4},
			{ItemID: "i2", Theta: 0.3, SE: 0.3},
		}
	}
	store.SeedSession(sess)
}

func testPsychCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		QuadraturePoints: 41,
		QuadratureMin:    -4,
		QuadratureMax:    4,
	}
}

func TestScoringService_CTTSessionScoresRawAndDomains(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	sessionID := core.SessionID("s1")
	seedScoringFixture(t, store, sessionID, false)

	validitySvc := NewValidityService(store, testPsychCfg())
	svc := NewScoringService(store, validitySvc, testPsychCfg())

	res, err := svc.Score(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RawScore)
	assert.EqualValues(t, "ctt", res.ScoringMethod)
	assert.Nil(t, res.FinalTheta)

	logicScore, ok := res.DomainScores[string(item.DomainLogic)]
	require.True(t, ok)
	assert.Equal(t, 2, logicScore.Total)
	assert.Equal(t, 1, logicScore.Correct)

	stored, err := store.FetchResult(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, res.RawScore, stored.RawScore)
}

func TestScoringService_AdaptiveSessionUsesFinalAbility(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	sessionID := core.SessionID("s2")
	seedScoringFixture(t, store, sessionID, true)

	validitySvc := NewValidityService(store, testPsychCfg())
	svc := NewScoringService(store, validitySvc, testPsychCfg())

	res, err := svc.Score(context.Background(), sessionID)
	require.NoError(t, err)

	assert.EqualValues(t, "irt", res.ScoringMethod)
	require.NotNil(t, res.FinalTheta)
	assert.Equal(t, 0.3, *res.FinalTheta)
	assert.Nil(t, res.ShadowTheta)
}

func TestScoringService_ShadowSafety_DoesNotMutateRawScoreOrMethod(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	sessionID := core.SessionID("s3")
	seedScoringFixture(t, store, sessionID, false)

	now := core.Now()

	// Calibrate the items so shadow-CAT has something to replay.
	calibrated := []item.Item{
		{ID: "i1", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 100}, IRT: &item.IRTParams{A: 1.2, B: -0.2, CalibratedAt: &now}},
		{ID: "i2", Domain: item.DomainLogic, CTT: item.CTTStats{ResponseCount: 100}, IRT: &item.IRTParams{A: 0.9, B: 0.5, CalibratedAt: &now}},
		{ID: "i3", Domain: item.DomainMath, CTT: item.CTTStats{ResponseCount: 100}, IRT: &item.IRTParams{A: 1.0, B: 0.0, CalibratedAt: &now}},
	}
	store.SeedItems(calibrated...)

	validitySvc := NewValidityService(store, testPsychCfg())
	svc := NewScoringService(store, validitySvc, testPsychCfg())

	res, err := svc.Score(context.Background(), sessionID)
	require.NoError(t, err)

	assert.Equal(t, 2, res.RawScore)
	assert.EqualValues(t, "ctt", res.ScoringMethod)
	require.NotNil(t, res.ShadowTheta)
	require.NotNil(t, res.ShadowSE)
	require.NotNil(t, res.ShadowIQ)
}
