package matrix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/domain/result"
)

func makeItem(id core.ItemID, d item.Domain, respCount int) item.Item {
	return item.Item{
		ID:          id,
		Domain:      d,
		QualityFlag: item.QualityNormal,
		CTT:         item.CTTStats{ResponseCount: respCount},
		CreatedAt:   core.NewTimestamp(time.Now()),
	}
}

func TestBuild_ExcludesDeactivatedAndLowResponseItems(t *testing.T) {
	items := []item.Item{
		makeItem("i1", item.DomainLogic, 100),
		{ID: "i2", Domain: item.DomainLogic, QualityFlag: item.QualityDeactivated, CTT: item.CTTStats{ResponseCount: 100}},
		makeItem("i3", item.DomainLogic, 1), // below MinResponses
	}

	responses := []response.Response{
		{SessionID: "s1", ItemID: "i1", IsCorrect: true},
		{SessionID: "s1", ItemID: "i2", IsCorrect: false},
		{SessionID: "s1", ItemID: "i3", IsCorrect: true},
		{SessionID: "s2", ItemID: "i1", IsCorrect: false},
	}

	_, err := Build(responses, items, nil, BuildOptions{MinResponses: 50, MinSessionsRequired: 1, MinItemsRequired: 1})
	// i1 is the only eligible column but has both 0 and 1 (variance), so it
	// should survive; i2/i3 excluded entirely.
	require.NoError(t, err)
}

func TestBuild_DropsInvalidSessions(t *testing.T) {
	items := []item.Item{makeItem("i1", item.DomainLogic, 100), makeItem("i2", item.DomainLogic, 100)}
	responses := []response.Response{
		{SessionID: "s1", ItemID: "i1", IsCorrect: true},
		{SessionID: "s1", ItemID: "i2", IsCorrect: false},
		{SessionID: "s2", ItemID: "i1", IsCorrect: false},
		{SessionID: "s2", ItemID: "i2", IsCorrect: true},
		{SessionID: "s3", ItemID: "i1", IsCorrect: false},
		{SessionID: "s3", ItemID: "i2", IsCorrect: true},
	}
	results := map[core.SessionID]result.Result{
		"s2": {ValidityStatus: result.ValidityInvalid},
	}

	bundle, err := Build(responses, items, results, BuildOptions{MinResponses: 50, MinSessionsRequired: 1, MinItemsRequired: 1})
	require.NoError(t, err)
	assert.NotContains(t, bundle.SessionIDs, core.SessionID("s2"))
}

func TestBuild_InsufficientSample(t *testing.T) {
	items := []item.Item{makeItem("i1", item.DomainLogic, 100)}
	responses := []response.Response{
		{SessionID: "s1", ItemID: "i1", IsCorrect: true},
	}
	_, err := Build(responses, items, nil, BuildOptions{MinResponses: 50, MinSessionsRequired: 5, MinItemsRequired: 1})
	assert.Error(t, err)
}

func TestRowTotals(t *testing.T) {
	b := &Bundle{Data: [][]int{{1, 0, 1}, {0, 0, 0}}}
	assert.Equal(t, []int{2, 0}, b.RowTotals())
}
