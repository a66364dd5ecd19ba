package validity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/internal/config"
)

func testCfg() config.PsychometricsConfig {
	return config.PsychometricsConfig{
		TooFastSeconds:        3,
		FastOnHardSeconds:     5,
		RushedSessionMeanSecs: 15,
		GuttmanThreshold:      0.25,
		PersonFitLZThreshold:  2.0,
		HardBCutoff:           1,
	}
}

func calibratedItem(id core.ItemID, b float64) item.Item {
	now := core.NewTimestamp(time.Now())
	return item.Item{ID: id, IRT: &item.IRTParams{A: 1, B: b, CalibratedAt: &now}}
}

func TestSpeedFloorDetector(t *testing.T) {
	d := SpeedFloorDetector{}
	data := SessionData{Responses: []response.Response{{ItemID: "i1", TimeSpentSeconds: 1}}}
	flag, err := d.Detect(context.Background(), data, testCfg())
	require.NoError(t, err)
	require.NotNil(t, flag)
	assert.Equal(t, "speed_floor", flag.Detector)
}

func TestSpeedFloorDetector_NoFlagWhenSlow(t *testing.T) {
	d := SpeedFloorDetector{}
	data := SessionData{Responses: []response.Response{{ItemID: "i1", TimeSpentSeconds: 10}}}
	flag, err := d.Detect(context.Background(), data, testCfg())
	require.NoError(t, err)
	assert.Nil(t, flag)
}

func TestRushedSessionDetector(t *testing.T) {
	d := RushedSessionDetector{}
	data := SessionData{Responses: []response.Response{
		{TimeSpentSeconds: 2}, {TimeSpentSeconds: 3}, {TimeSpentSeconds: 2},
	}}
	flag, err := d.Detect(context.Background(), data, testCfg())
	require.NoError(t, err)
	require.NotNil(t, flag)
}

func TestGuttmanDetector_FlagsInconsistentPattern(t *testing.T) {
	items := map[string]item.Item{
		"easy": calibratedItem("easy", -2),
		"hard": calibratedItem("hard", 2),
	}
	data := SessionData{
		Responses: []response.Response{
			{ItemID: "easy", IsCorrect: false},
			{ItemID: "hard", IsCorrect: true},
		},
		Items: items,
	}
	d := GuttmanDetector{}
	flag, err := d.Detect(context.Background(), data, testCfg())
	require.NoError(t, err)
	require.NotNil(t, flag)
}

func TestClassifyVerdict(t *testing.T) {
	assert.Equal(t, statusValid, ClassifyVerdict(nil).Status)
	assert.Equal(t, statusSuspect, ClassifyVerdict([]Flag{{Detector: "speed_floor"}}).Status)
	assert.Equal(t, statusInvalid, ClassifyVerdict([]Flag{{Detector: "speed_floor"}, {Detector: "rushed_session"}}).Status)
	assert.Equal(t, statusInvalid, ClassifyVerdict([]Flag{{Detector: "guttman_error"}}).Status)
}

func TestEngine_RunCollectsFlagsConcurrently(t *testing.T) {
	e := NewEngine()
	data := SessionData{
		Responses: []response.Response{
			{ItemID: "i1", TimeSpentSeconds: 1, IsCorrect: true},
		},
		Items: map[string]item.Item{},
	}
	flags, errs := e.Run(context.Background(), data, testCfg())
	assert.Empty(t, errs)
	assert.NotEmpty(t, flags)
}
