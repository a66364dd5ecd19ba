// Package matrix assembles user×item 0/1 response matrices for downstream
// CTT, reliability, and validity computations (§4.A).
package matrix

import (
	"sort"

	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/response"
	"gohypo/domain/result"
	"gohypo/internal/errors"
)

// ColumnMeta tags one matrix column with its item identity and domain.
type ColumnMeta struct {
	ItemID core.ItemID
	Domain item.Domain
}

// Missing marks a cell in Bundle.Data where the session never answered
// that item, distinct from 0 (answered incorrectly). A fixed-form test
// administers every kept item to every kept session, but a CAT-derived or
// otherwise sparse response set will not, and treating an unanswered cell
// as incorrect would corrupt every downstream statistic that depends on
// item/total variance (p-values, point-biserial, Cronbach's alpha).
const Missing = -1

// Bundle is an N×K response matrix with row/column identity retained.
//
// Data[row][col] == 1 iff the session at SessionIDs[row] answered the item
// at Columns[col] correctly, == 0 if answered incorrectly, or == Missing
// if that session never answered that item.
type Bundle struct {
	SessionIDs []core.SessionID
	Columns    []ColumnMeta
	Data       [][]int
}

// BuildOptions configures which sessions/items are included (§4.A).
type BuildOptions struct {
	MinResponses       int // items below this response_count are excluded
	MinSessionsRequired int
	MinItemsRequired    int
}

// Build assembles a Bundle from the raw responses/items/sessions/results
// already fetched from the store. It excludes:
//   - items below MinResponses, inactive/deactivated items (§3 invariant iv)
//   - sessions with validity_status == invalid
//   - items with zero variance (every response identical) once the matrix
//     is assembled, since such a column cannot support correlation-based
//     analytics
//
// Returns InsufficientSample if the pruned matrix still falls below the
// requested minimum sessions/items (§4.A).
func Build(
	responses []response.Response,
	items []item.Item,
	results map[core.SessionID]result.Result,
	opts BuildOptions,
) (*Bundle, error) {
	eligibleItems := make(map[core.ItemID]item.Item)
	for _, it := range items {
		if !it.IsEligibleForNewTests() {
			continue
		}
		if it.CTT.ResponseCount < opts.MinResponses {
			continue
		}
		eligibleItems[it.ID] = it
	}

	// index responses by session, keeping only eligible items and
	// sessions that did not come back invalid.
	bySession := make(map[core.SessionID]map[core.ItemID]int)
	for _, r := range responses {
		if _, ok := eligibleItems[r.ItemID]; !ok {
			continue
		}
		if res, ok := results[r.SessionID]; ok && res.ValidityStatus == result.ValidityInvalid {
			continue
		}
		row, ok := bySession[r.SessionID]
		if !ok {
			row = make(map[core.ItemID]int)
			bySession[r.SessionID] = row
		}
		if r.IsCorrect {
			row[r.ItemID] = 1
		} else {
			row[r.ItemID] = 0
		}
	}

	sessionIDs := make([]core.SessionID, 0, len(bySession))
	for sid := range bySession {
		sessionIDs = append(sessionIDs, sid)
	}
	sort.Slice(sessionIDs, func(i, j int) bool { return sessionIDs[i] < sessionIDs[j] })

	itemIDs := make([]core.ItemID, 0, len(eligibleItems))
	for id := range eligibleItems {
		itemIDs = append(itemIDs, id)
	}
	sort.Slice(itemIDs, func(i, j int) bool { return itemIDs[i] < itemIDs[j] })

	// drop zero-variance columns: every observed value identical.
	keptCols := make([]core.ItemID, 0, len(itemIDs))
	for _, id := range itemIDs {
		seenZero, seenOne := false, false
		for _, sid := range sessionIDs {
			v, ok := bySession[sid][id]
			if !ok {
				continue
			}
			if v == 0 {
				seenZero = true
			} else {
				seenOne = true
			}
			if seenZero && seenOne {
				break
			}
		}
		if seenZero && seenOne {
			keptCols = append(keptCols, id)
		}
	}

	// drop sessions with no responses to any kept column.
	keptSessions := make([]core.SessionID, 0, len(sessionIDs))
	for _, sid := range sessionIDs {
		row := bySession[sid]
		hasAny := false
		for _, id := range keptCols {
			if _, ok := row[id]; ok {
				hasAny = true
				break
			}
		}
		if hasAny {
			keptSessions = append(keptSessions, sid)
		}
	}

	if len(keptSessions) < opts.MinSessionsRequired || len(keptCols) < opts.MinItemsRequired {
		return nil, errors.InsufficientSample(
			"response matrix below required size",
			min(len(keptSessions), len(keptCols)),
			min(opts.MinSessionsRequired, opts.MinItemsRequired),
		)
	}

	data := make([][]int, len(keptSessions))
	for i, sid := range keptSessions {
		row := make([]int, len(keptCols))
		for j, id := range keptCols {
			if v, ok := bySession[sid][id]; ok {
				row[j] = v
			} else {
				row[j] = Missing
			}
		}
		data[i] = row
	}

	columns := make([]ColumnMeta, len(keptCols))
	for j, id := range keptCols {
		columns[j] = ColumnMeta{ItemID: id, Domain: eligibleItems[id].Domain}
	}

	return &Bundle{SessionIDs: keptSessions, Columns: columns, Data: data}, nil
}

// RowTotals returns each session's raw score: the sum of its row, counting
// only items it actually answered (Missing cells contribute nothing,
// neither correct nor incorrect).
func (b *Bundle) RowTotals() []int {
	totals := make([]int, len(b.Data))
	for i, row := range b.Data {
		sum := 0
		for _, v := range row {
			if v == Missing {
				continue
			}
			sum += v
		}
		totals[i] = sum
	}
	return totals
}

// Column returns the 0/1 vector for column index j.
func (b *Bundle) Column(j int) []int {
	col := make([]int, len(b.Data))
	for i, row := range b.Data {
		col[i] = row[j]
	}
	return col
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
