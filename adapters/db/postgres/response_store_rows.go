package postgres

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/result"
	"gohypo/domain/session"
)

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505), the signal RecordResponse uses to enforce the
// (session_id, item_id) invariant without a pre-check query.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// pqStringArray converts a nil/empty Go slice to a nil pointer so the
// "= ANY($1)" clause's IS NULL branch short-circuits instead of matching
// against an empty array.
func pqStringArray(ss []string) interface{} {
	if len(ss) == 0 {
		return nil
	}
	return pq.Array(ss)
}

// nullableJSON turns a possibly-empty json.RawMessage into a driver-level
// NULL so UpdateItemStats's COALESCE leaves the column untouched when the
// caller's patch didn't set that field.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}

// sessionRow is the wire shape sessions round-trips through sqlx.StructScan.
type sessionRow struct {
	ID                  string         `db:"id"`
	UserID              string         `db:"user_id"`
	IsAdaptive          bool           `db:"is_adaptive"`
	Status              string         `db:"status"`
	AdministeredItemIDs []byte         `db:"administered_item_ids"`
	AbilityHistory      []byte         `db:"ability_history"`
	StoppingReason      string         `db:"stopping_reason"`
	TimeLimitExceeded   bool           `db:"time_limit_exceeded"`
	StartedAt           time.Time      `db:"started_at"`
	CompletedAt         sql.NullTime   `db:"completed_at"`
}

func (r sessionRow) toDomain() (session.Session, error) {
	var administered []core.ItemID
	if len(r.AdministeredItemIDs) > 0 {
		if err := json.Unmarshal(r.AdministeredItemIDs, &administered); err != nil {
			return session.Session{}, err
		}
	}
	var ability []session.AbilityStep
	if len(r.AbilityHistory) > 0 {
		if err := json.Unmarshal(r.AbilityHistory, &ability); err != nil {
			return session.Session{}, err
		}
	}
	sess := session.Session{
		ID:                  core.SessionID(r.ID),
		UserID:              core.UserID(r.UserID),
		IsAdaptive:          r.IsAdaptive,
		Status:              session.Status(r.Status),
		AdministeredItemIDs: administered,
		AbilityHistory:      ability,
		StoppingReason:      r.StoppingReason,
		TimeLimitExceeded:   r.TimeLimitExceeded,
		StartedAt:           core.NewTimestamp(r.StartedAt),
	}
	if r.CompletedAt.Valid {
		ts := core.NewTimestamp(r.CompletedAt.Time)
		sess.CompletedAt = &ts
	}
	return sess, nil
}

// itemRow is the wire shape items round-trips through sqlx.StructScan.
type itemRow struct {
	ID              string  `db:"id"`
	Domain          string  `db:"domain"`
	DifficultyLabel string  `db:"difficulty_label"`
	Options         []byte  `db:"options"`
	ResponseCount   int     `db:"response_count"`
	CTTStats        []byte  `db:"ctt_stats"`
	IRTParams       []byte  `db:"irt_params"`
	IsAnchor        bool    `db:"is_anchor"`
	QualityFlag     string  `db:"quality_flag"`
	CreatedAt       time.Time `db:"created_at"`
}

func (r itemRow) toDomain() (item.Item, error) {
	var options []item.AnswerOption
	if len(r.Options) > 0 {
		if err := json.Unmarshal(r.Options, &options); err != nil {
			return item.Item{}, err
		}
	}
	var ctt item.CTTStats
	if len(r.CTTStats) > 0 {
		if err := json.Unmarshal(r.CTTStats, &ctt); err != nil {
			return item.Item{}, err
		}
	}
	var irt *item.IRTParams
	if len(r.IRTParams) > 0 {
		irt = &item.IRTParams{}
		if err := json.Unmarshal(r.IRTParams, irt); err != nil {
			return item.Item{}, err
		}
	}
	return item.Item{
		ID:              core.ItemID(r.ID),
		Domain:          item.Domain(r.Domain),
		DifficultyLabel: item.DifficultyLabel(r.DifficultyLabel),
		Options:         options,
		CTT:             ctt,
		IRT:             irt,
		IsAnchor:        r.IsAnchor,
		QualityFlag:     item.QualityFlag(r.QualityFlag),
		CreatedAt:       core.NewTimestamp(r.CreatedAt),
	}, nil
}

// calibrationRunRow is the wire shape calibration_runs round-trips through
// sqlx.StructScan.
type calibrationRunRow struct {
	JobID        string         `db:"job_id"`
	Status       string         `db:"status"`
	StartedAt    time.Time      `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	Calibrated   int            `db:"calibrated"`
	Skipped      int            `db:"skipped"`
	MeanA        sql.NullFloat64 `db:"mean_a"`
	MeanB        sql.NullFloat64 `db:"mean_b"`
	ErrorMessage string         `db:"error_message"`
}

func (r calibrationRunRow) toDomain() calibration.Run {
	run := calibration.Run{
		JobID:        core.CalibrationID(r.JobID),
		Status:       calibration.Status(r.Status),
		StartedAt:    core.NewTimestamp(r.StartedAt),
		Calibrated:   r.Calibrated,
		Skipped:      r.Skipped,
		ErrorMessage: r.ErrorMessage,
	}
	if r.CompletedAt.Valid {
		ts := core.NewTimestamp(r.CompletedAt.Time)
		run.CompletedAt = &ts
	}
	if r.MeanA.Valid {
		v := r.MeanA.Float64
		run.MeanA = &v
	}
	if r.MeanB.Valid {
		v := r.MeanB.Float64
		run.MeanB = &v
	}
	return run
}

// resultRow is the wire shape results round-trips through sqlx.StructScan.
type resultRow struct {
	SessionID         string          `db:"session_id"`
	ID                string          `db:"id"`
	RawScore          int             `db:"raw_score"`
	ScoringMethod     string          `db:"scoring_method"`
	FinalTheta        sql.NullFloat64 `db:"final_theta"`
	FinalSE           sql.NullFloat64 `db:"final_se"`
	DomainScores      []byte          `db:"domain_scores"`
	ValidityStatus    string          `db:"validity_status"`
	ValidityFlags     []byte          `db:"validity_flags"`
	ResponseTimeFlags []byte          `db:"response_time_flags"`
	ShadowTheta       sql.NullFloat64 `db:"shadow_theta"`
	ShadowSE          sql.NullFloat64 `db:"shadow_se"`
	ShadowIQ          sql.NullFloat64 `db:"shadow_iq"`
	ThetaIQDelta      sql.NullFloat64 `db:"theta_iq_delta"`
	CreatedAt         time.Time       `db:"created_at"`
}

func (r resultRow) toDomain() (result.Result, error) {
	var domainScores map[string]result.DomainScore
	if len(r.DomainScores) > 0 {
		if err := json.Unmarshal(r.DomainScores, &domainScores); err != nil {
			return result.Result{}, err
		}
	}
	var validityFlags []string
	if len(r.ValidityFlags) > 0 {
		if err := json.Unmarshal(r.ValidityFlags, &validityFlags); err != nil {
			return result.Result{}, err
		}
	}
	var responseTimeFlags []string
	if len(r.ResponseTimeFlags) > 0 {
		if err := json.Unmarshal(r.ResponseTimeFlags, &responseTimeFlags); err != nil {
			return result.Result{}, err
		}
	}

	res := result.Result{
		ID:                core.ResultID(r.ID),
		SessionID:         core.SessionID(r.SessionID),
		RawScore:          r.RawScore,
		ScoringMethod:     result.ScoringMethod(r.ScoringMethod),
		DomainScores:      domainScores,
		ValidityStatus:    result.ValidityStatus(r.ValidityStatus),
		ValidityFlags:     validityFlags,
		ResponseTimeFlags: responseTimeFlags,
		CreatedAt:         core.NewTimestamp(r.CreatedAt),
	}
	if r.FinalTheta.Valid {
		v := r.FinalTheta.Float64
		res.FinalTheta = &v
	}
	if r.FinalSE.Valid {
		v := r.FinalSE.Float64
		res.FinalSE = &v
	}
	if r.ShadowTheta.Valid {
		v := r.ShadowTheta.Float64
		res.ShadowTheta = &v
	}
	if r.ShadowSE.Valid {
		v := r.ShadowSE.Float64
		res.ShadowSE = &v
	}
	if r.ShadowIQ.Valid {
		v := r.ShadowIQ.Float64
		res.ShadowIQ = &v
	}
	if r.ThetaIQDelta.Valid {
		v := r.ThetaIQDelta.Float64
		res.ThetaIQDelta = &v
	}
	return res, nil
}
