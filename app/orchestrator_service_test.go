package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/domain/session"
	"gohypo/internal/config"
	"gohypo/internal/testkit"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything it printed. The orchestrator logs heartbeats with fmt.Println
// rather than through an injectable writer, matching the teacher's
// stats_sweep_service.go, so tests observe it the same way an operator
// tailing the process's stdout would.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	r, w, err := os.Pipe()
	require.NoError(t, err)
	orig := os.Stdout
	os.Stdout = w
	defer func() { os.Stdout = orig }()

	fn()

	require.NoError(t, w.Close())
	var buf bytes.Buffer
	_, err = io.Copy(&buf, r)
	require.NoError(t, err)
	os.Stdout = orig
	return buf.String()
}

func orchestratorTestCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		QuadraturePoints:            41,
		QuadratureMin:               -4,
		QuadratureMax:               4,
		MinCalibratedItemsPerDomain: 3,
		MinItemsPerDifficultyBand:   1,
		MaxSEA:                      0.3,
		MaxSEB:                      0.3,
		EasyBCutoff:                 -1,
		HardBCutoff:                 1,
		TooFastSeconds:              3,
		FastOnHardSeconds:           5,
		RushedSessionMeanSecs:       15,
		GuttmanThreshold:            0.25,
		PersonFitLZThreshold:        2.0,
		MinResponses:                50,
		EMMaxIter:                   50,
		EMEpsilon:                   1e-3,
		BootstrapResamples:          5,
	}
}

func newTestOrchestrator(store *testkit.InMemoryResponseStore, cfg config.PsychometricsConfig) *Orchestrator {
	validitySvc := NewValidityService(store, cfg)
	scoringSvc := NewScoringService(store, validitySvc, cfg)
	cttSvc := NewCTTService(store, cfg)
	readinessSvc := NewReadinessService(store, cfg)
	calibSvc := NewCalibrationService(store, &testkit.RNGAdapter{}, cfg)
	return NewOrchestrator(cttSvc, scoringSvc, readinessSvc, calibSvc, 5*time.Second)
}

func decodeHeartbeats(t *testing.T, out string) []heartbeat {
	t.Helper()
	var hbs []heartbeat
	dec := json.NewDecoder(bytes.NewBufferString(out))
	for dec.More() {
		var hb heartbeat
		require.NoError(t, dec.Decode(&hb))
		hbs = append(hbs, hb)
	}
	return hbs
}

func TestOrchestrator_OnSubmissionSkipsIncompleteSession(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	o := newTestOrchestrator(store, orchestratorTestCfg())

	out := captureStdout(t, func() {
		o.OnSubmission(context.Background(), "s1", false)
	})

	hbs := decodeHeartbeats(t, out)
	require.Len(t, hbs, 1)
	assert.Equal(t, "on_submission", hbs[0].Job)
	assert.Equal(t, "skipped", hbs[0].Status)
}

func TestOrchestrator_OnSubmissionScoresCompletedSession(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	store.SeedItems(item.Item{ID: "i1", Domain: item.DomainLogic})
	store.SeedSession(session.Session{ID: "s1", UserID: "u1", Status: session.StatusCompleted, StartedAt: core.Now()})
	ctx := context.Background()
	require.NoError(t, store.RecordResponse(ctx, response.Response{
		ID: "r1", SessionID: "s1", ItemID: "i1", IsCorrect: true, TimeSpentSeconds: 20, SubmittedAt: core.Now(),
	}))

	o := newTestOrchestrator(store, orchestratorTestCfg())

	out := captureStdout(t, func() {
		o.OnSubmission(ctx, "s1", true)
	})

	hbs := decodeHeartbeats(t, out)
	require.Len(t, hbs, 1)
	assert.Equal(t, "on_submission", hbs[0].Job)
	assert.Equal(t, "ok", hbs[0].Status)

	res, err := store.FetchResult(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, res.RawScore)
}

func TestOrchestrator_RunNightlyReadinessEmitsHeartbeat(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	o := newTestOrchestrator(store, orchestratorTestCfg())

	var runErr error
	out := captureStdout(t, func() {
		runErr = o.RunNightlyReadiness(context.Background())
	})
	require.NoError(t, runErr)

	hbs := decodeHeartbeats(t, out)
	require.Len(t, hbs, 1)
	assert.Equal(t, "nightly_readiness", hbs[0].Job)
	assert.Equal(t, "ok", hbs[0].Status)

	state, err := store.GetCATReadiness(context.Background())
	require.NoError(t, err)
	assert.False(t, state.IsGloballyReady)
}

func TestOrchestrator_RunWeeklyRecalibrationEmitsHeartbeatWithCounts(t *testing.T) {
	store := testkit.NewInMemoryResponseStore()
	seedCalibrationFixture(t, store)
	o := newTestOrchestrator(store, orchestratorTestCfg())

	var runErr error
	out := captureStdout(t, func() {
		runErr = o.RunWeeklyRecalibration(context.Background())
	})
	require.NoError(t, runErr)

	hbs := decodeHeartbeats(t, out)
	require.Len(t, hbs, 1)
	assert.Equal(t, "weekly_recalibration", hbs[0].Job)
	assert.Equal(t, "ok", hbs[0].Status)
	assert.Contains(t, hbs[0].Detail, "calibrated=3")
}
