package readiness

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/internal/config"
)

func calibratedItem(d item.Domain, b, seA, seB float64) item.Item {
	now := core.NewTimestamp(time.Now())
	return item.Item{
		Domain: d,
		IRT:    &item.IRTParams{A: 1, B: b, SEA: seA, SEB: seB, CalibratedAt: &now},
	}
}

func testCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		MinCalibratedItemsPerDomain: 3,
		MinItemsPerDifficultyBand:   1,
		MaxSEA:                      0.3,
		MaxSEB:                      0.3,
		EasyBCutoff:                 -1,
		HardBCutoff:                 1,
	}
}

func TestEvaluate_NotReadyWithoutEnoughItems(t *testing.T) {
	items := []item.Item{calibratedItem(item.DomainLogic, 0, 0.1, 0.1)}
	state := Evaluate(items, testCfg(), core.NewTimestamp(time.Now()))
	assert.False(t, state.IsGloballyReady)
	assert.False(t, state.CATEnabled)
}

func TestEvaluate_ReadyWhenEveryDomainClearsBar(t *testing.T) {
	cfg := testCfg()
	var items []item.Item
	for _, d := range item.AllDomains {
		items = append(items,
			calibratedItem(d, -2, 0.1, 0.1),
			calibratedItem(d, 0, 0.1, 0.1),
			calibratedItem(d, 2, 0.1, 0.1),
		)
	}
	state := Evaluate(items, cfg, core.NewTimestamp(time.Now()))
	assert.True(t, state.IsGloballyReady)
	assert.True(t, state.CATEnabled)
	assert.Len(t, state.Domains, len(item.AllDomains))
}

func TestEvaluate_PoorlyCalibratedItemsDontCount(t *testing.T) {
	cfg := testCfg()
	var items []item.Item
	for _, d := range item.AllDomains {
		items = append(items,
			calibratedItem(d, -2, 0.9, 0.9), // SE too high
			calibratedItem(d, 0, 0.9, 0.9),
			calibratedItem(d, 2, 0.9, 0.9),
		)
	}
	state := Evaluate(items, cfg, core.NewTimestamp(time.Now()))
	assert.False(t, state.IsGloballyReady)
}
