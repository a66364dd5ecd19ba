package reliability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/psychometrics/matrix"
)

func TestCronbachAlpha_InsufficientItems(t *testing.T) {
	bundle := &matrix.Bundle{
		Columns: []matrix.ColumnMeta{{ItemID: "i1"}},
		Data:    [][]int{{1}, {0}},
	}
	_, err := CronbachAlpha(bundle, 1)
	assert.Error(t, err)
}

func TestCronbachAlpha_PerfectlyConsistentItems(t *testing.T) {
	// every respondent answers both items identically: alpha should be
	// very high (bounded at/near 1).
	bundle := &matrix.Bundle{
		Columns: []matrix.ColumnMeta{{ItemID: "i1"}, {ItemID: "i2"}},
		Data: [][]int{
			{1, 1},
			{1, 1},
			{0, 0},
			{0, 0},
			{1, 1},
			{0, 0},
		},
	}
	alpha, err := CronbachAlpha(bundle, 2)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, alpha, 0.01)
}

func TestTestRetest_InsufficientPairs(t *testing.T) {
	_, err := TestRetest([]TestRetestPair{{First: 1, Second: 1}}, 5)
	assert.Error(t, err)
}

func TestTestRetest_PerfectCorrelation(t *testing.T) {
	pairs := []TestRetestPair{
		{First: 1, Second: 1.1},
		{First: 2, Second: 2.1},
		{First: 3, Second: 3.1},
	}
	r, err := TestRetest(pairs, 3)
	require.NoError(t, err)
	assert.InDelta(t, 1.0, r, 0.01)
}

func TestSplitHalf_RequiresFourItems(t *testing.T) {
	bundle := &matrix.Bundle{
		Columns: []matrix.ColumnMeta{{ItemID: "i1"}, {ItemID: "i2"}},
		Data:    [][]int{{1, 1}, {0, 0}},
	}
	_, err := SplitHalf(bundle)
	assert.Error(t, err)
}

func TestSplitHalf_SpearmanBrownIncreasesReliability(t *testing.T) {
	bundle := &matrix.Bundle{
		Columns: []matrix.ColumnMeta{{ItemID: "i1"}, {ItemID: "i2"}, {ItemID: "i3"}, {ItemID: "i4"}},
		Data: [][]int{
			{1, 1, 1, 1},
			{1, 0, 1, 0},
			{0, 0, 0, 1},
			{0, 0, 0, 0},
			{1, 1, 0, 1},
		},
	}
	res, err := SplitHalf(bundle)
	require.NoError(t, err)
	if res.RawCorrelation > 0 {
		assert.Greater(t, res.SpearmanBrownCorrected, res.RawCorrelation)
	}
}
