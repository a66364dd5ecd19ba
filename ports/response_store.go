package ports

import (
	"context"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/readiness"
	"gohypo/domain/response"
	"gohypo/domain/result"
	"gohypo/domain/session"
)

// ResponseFilters narrows list_responses queries (§6). Results are always
// ordered by (session_id, id) so CAT/CTT replay sees submission order.
type ResponseFilters struct {
	SessionID *core.SessionID
	ItemIDs   []core.ItemID
	Since     *core.Timestamp
	Limit     int
}

// SessionFilters narrows list_sessions queries.
type SessionFilters struct {
	UserID *core.UserID
	Status *session.Status
	Limit  int
}

// ItemFilters narrows fetch_items queries.
type ItemFilters struct {
	IDs              []core.ItemID
	Domain           *item.Domain
	ExcludeInactive  bool // excludes QualityDeactivated items
	MinResponseCount *int
}

// ItemStatsPatch is an atomic, compare-and-swap patch applied to an item's
// derived statistics. ExpectedResponseCount pins the CAS: the store must
// reject (or internally retry) the patch if the item's current
// response_count has moved on (§5 "optimistic counters").
type ItemStatsPatch struct {
	ExpectedResponseCount int
	CTT                   *item.CTTStats
	IRT                   *item.IRTParams
	QualityFlag           *item.QualityFlag
}

// CalibrationRunPatch partially updates a CalibrationRun audit row.
type CalibrationRunPatch struct {
	Status       *calibration.Status
	CompletedAt  *core.Timestamp
	Calibrated   *int
	Skipped      *int
	MeanA        *float64
	MeanB        *float64
	ErrorMessage *string
}

// ResponseStore is the single persistence port consumed by the core (§6).
// It is implemented by adapters/db/postgres for production and by
// internal/testkit for tests.
type ResponseStore interface {
	ListResponses(ctx context.Context, filters ResponseFilters) ([]response.Response, error)
	RecordResponse(ctx context.Context, r response.Response) error

	FetchSession(ctx context.Context, id core.SessionID) (*session.Session, error)
	ListSessions(ctx context.Context, filters SessionFilters) ([]session.Session, error)
	SaveSession(ctx context.Context, s session.Session) error

	FetchItems(ctx context.Context, filters ItemFilters) ([]item.Item, error)
	// UpdateItemStats applies patch atomically, CAS'd on response_count.
	UpdateItemStats(ctx context.Context, id core.ItemID, patch ItemStatsPatch) error

	WriteCalibrationRun(ctx context.Context, run calibration.Run) error
	UpdateCalibrationRun(ctx context.Context, jobID core.CalibrationID, patch CalibrationRunPatch) error
	FetchCalibrationRun(ctx context.Context, jobID core.CalibrationID) (*calibration.Run, error)
	LatestCompletedCalibrationRun(ctx context.Context) (*calibration.Run, error)

	// WriteResult is idempotent on SessionID (§6).
	WriteResult(ctx context.Context, sessionID core.SessionID, res result.Result) error
	FetchResult(ctx context.Context, sessionID core.SessionID) (*result.Result, error)

	// SetSystemConfig stores process-wide scalars such as the
	// `cat_readiness` snapshot (§6); GetCATReadiness reads that snapshot back.
	SetSystemConfig(ctx context.Context, key string, value interface{}) error
	GetCATReadiness(ctx context.Context) (*readiness.State, error)
}
