package cat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/item"
	"gohypo/internal/config"
)

func testCfg() config.PsychometricsConfig {
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
	}
}

func TestSelectNext_PicksMaxInformation(t *testing.T) {
	candidates := []EligibleItem{
		{ID: "easy", Domain: item.DomainLogic, A: 1, B: -3},
		{ID: "matched", Domain: item.DomainLogic, A: 1.5, B: 0},
		{ID: "hard", Domain: item.DomainLogic, A: 1, B: 3},
	}
	best, err := SelectNext(candidates, map[string]bool{}, 0, 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, "matched", best.ID)
}

func TestSelectNext_ExcludesAdministeredAndExposureCapped(t *testing.T) {
	candidates := []EligibleItem{
		{ID: "a", Domain: item.DomainLogic, A: 1, B: 0, ExposureCount: 10},
		{ID: "b", Domain: item.DomainLogic, A: 1, B: 0, ExposureCount: 0},
		{ID: "c", Domain: item.DomainLogic, A: 2, B: 0, ExposureCount: 0},
	}
	best, err := SelectNext(candidates, map[string]bool{"c": true}, 0, 5, "s1")
	require.NoError(t, err)
	assert.Equal(t, "b", best.ID)
}

func TestSelectNext_PoolExhausted(t *testing.T) {
	_, err := SelectNext(nil, map[string]bool{}, 0, 0, "s1")
	assert.Error(t, err)
}

func TestSelectNext_BalancedWarmup(t *testing.T) {
	// "logic-strong" has far higher information than anything in spatial,
	// but logic has already had an item administered this session, so
	// warm-up must restrict the pick to the unrepresented spatial domain.
	candidates := []EligibleItem{
		{ID: "logic-done", Domain: item.DomainLogic, A: 1, B: 0},
		{ID: "logic-strong", Domain: item.DomainLogic, A: 3, B: 0},
		{ID: "spatial-weak", Domain: item.DomainSpatial, A: 0.5, B: 0},
	}
	administered := map[string]bool{"logic-done": true}

	best, err := SelectNext(candidates, administered, 0, 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, "spatial-weak", best.ID)
}

func TestSelectNext_NoWarmupOnceEveryDomainSeen(t *testing.T) {
	candidates := []EligibleItem{
		{ID: "logic-done", Domain: item.DomainLogic, A: 1, B: 0},
		{ID: "spatial-done", Domain: item.DomainSpatial, A: 1, B: 0},
		{ID: "logic-strong", Domain: item.DomainLogic, A: 3, B: 0},
	}
	administered := map[string]bool{"logic-done": true, "spatial-done": true}

	best, err := SelectNext(candidates, administered, 0, 0, "s1")
	require.NoError(t, err)
	assert.Equal(t, "logic-strong", best.ID)
}

func TestShouldStop_TargetSEReached(t *testing.T) {
	stop, reason := ShouldStop(5, 0.2, nil, testCfg())
	assert.True(t, stop)
	assert.Equal(t, StopTargetSEReached, reason)
}

func TestShouldStop_RespectsMinItems(t *testing.T) {
	stop, _ := ShouldStop(1, 0.01, nil, testCfg())
	assert.False(t, stop)
}

func TestShouldStop_MaxItems(t *testing.T) {
	stop, reason := ShouldStop(10, 0.9, nil, testCfg())
	assert.True(t, stop)
	assert.Equal(t, StopMaxItems, reason)
}

func TestMachine_FullSession(t *testing.T) {
	m := NewMachine(testCfg())
	candidates := []EligibleItem{
		{ID: "i1", A: 1, B: -1},
		{ID: "i2", A: 1, B: 0},
		{ID: "i3", A: 1, B: 1},
		{ID: "i4", A: 1, B: 0.5},
		{ID: "i5", A: 1, B: -0.5},
	}

	for i := 0; i < 5; i++ {
		next, err := m.Select(candidates, "s1")
		require.NoError(t, err)
		m.RecordResponse(next, i%2 == 0)
		if m.State == StateStopping {
			break
		}
	}
	assert.GreaterOrEqual(t, m.AdministeredCount(), 2)
}
