package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"gohypo/domain/calibration"
	"gohypo/domain/core"
	"gohypo/domain/item"
	"gohypo/domain/readiness"
	"gohypo/domain/response"
	"gohypo/domain/result"
	"gohypo/domain/session"
	apperrors "gohypo/internal/errors"
	"gohypo/ports"
)

// ResponseStoreImpl implements ports.ResponseStore for PostgreSQL. It
// mirrors the JSONB-marshaling, $N-placeholder style of
// HypothesisRepositoryImpl: domain sub-structures (CTTStats, IRTParams,
// ability history, domain scores) round-trip as JSONB columns rather than
// being normalized into their own tables.
type ResponseStoreImpl struct {
	db *sqlx.DB
}

// NewResponseStore creates a PostgreSQL-backed ResponseStore.
func NewResponseStore(db *sqlx.DB) ports.ResponseStore {
	return &ResponseStoreImpl{db: db}
}

func (s *ResponseStoreImpl) ListResponses(ctx context.Context, filters ports.ResponseFilters) ([]response.Response, error) {
	query := `
		SELECT id, session_id, item_id, chosen_option, is_correct, time_spent_seconds, submitted_at
		FROM responses
		WHERE ($1::text IS NULL OR session_id = $1)
		  AND ($2::timestamptz IS NULL OR submitted_at >= $2)
		ORDER BY session_id, id`

	var sessionID *string
	if filters.SessionID != nil {
		v := filters.SessionID.String()
		sessionID = &v
	}
	var since *time.Time
	if filters.Since != nil {
		v := filters.Since.Time()
		since = &v
	}

	rows, err := s.db.QueryContext(ctx, query, sessionID, since)
	if err != nil {
		return nil, apperrors.StoreError("list_responses", err)
	}
	defer rows.Close()

	itemSet := make(map[core.ItemID]bool, len(filters.ItemIDs))
	for _, id := range filters.ItemIDs {
		itemSet[id] = true
	}

	var out []response.Response
	for rows.Next() {
		var r response.Response
		var submittedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.SessionID, &r.ItemID, &r.ChosenOption, &r.IsCorrect, &r.TimeSpentSeconds, &submittedAt); err != nil {
			return nil, apperrors.StoreError("list_responses scan", err)
		}
		if submittedAt.Valid {
			r.SubmittedAt = core.NewTimestamp(submittedAt.Time)
		}
		if len(itemSet) > 0 && !itemSet[r.ItemID] {
			continue
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.StoreError("list_responses rows", err)
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, nil
}

// RecordResponse inserts one response and enforces the (session, item)
// uniqueness invariant. It does not change the item's response_count:
// CTTService recomputes and persists CTT stats via UpdateItemStats.
func (s *ResponseStoreImpl) RecordResponse(ctx context.Context, r response.Response) error {
	if r.ID == "" {
		r.ID = core.ResponseID(core.NewID())
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO responses (id, session_id, item_id, chosen_option, is_correct, time_spent_seconds, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		r.ID, r.SessionID, r.ItemID, r.ChosenOption, r.IsCorrect, r.TimeSpentSeconds, r.SubmittedAt.Time())
	if err != nil {
		if isUniqueViolation(err) {
			return apperrors.InvalidInput(fmt.Sprintf("duplicate response for session %s item %s", r.SessionID, r.ItemID))
		}
		return apperrors.StoreError("record_response", err)
	}
	return nil
}

func (s *ResponseStoreImpl) FetchSession(ctx context.Context, id core.SessionID) (*session.Session, error) {
	var row sessionRow
	err := s.db.QueryRowxContext(ctx, `
		SELECT id, user_id, is_adaptive, status, administered_item_ids, ability_history,
		       stopping_reason, time_limit_exceeded, started_at, completed_at
		FROM sessions WHERE id = $1`, id).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("session", id.String())
	}
	if err != nil {
		return nil, apperrors.StoreError("fetch_session", err)
	}
	sess, err := row.toDomain()
	if err != nil {
		return nil, apperrors.StoreError("fetch_session decode", err)
	}
	return &sess, nil
}

func (s *ResponseStoreImpl) ListSessions(ctx context.Context, filters ports.SessionFilters) ([]session.Session, error) {
	query := `
		SELECT id, user_id, is_adaptive, status, administered_item_ids, ability_history,
		       stopping_reason, time_limit_exceeded, started_at, completed_at
		FROM sessions
		WHERE ($1::text IS NULL OR user_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY started_at DESC`

	var userID *string
	if filters.UserID != nil {
		v := filters.UserID.String()
		userID = &v
	}
	var status *string
	if filters.Status != nil {
		v := string(*filters.Status)
		status = &v
	}

	rows, err := s.db.QueryxContext(ctx, query, userID, status)
	if err != nil {
		return nil, apperrors.StoreError("list_sessions", err)
	}
	defer rows.Close()

	var out []session.Session
	for rows.Next() {
		var row sessionRow
		if err := rows.StructScan(&row); err != nil {
			return nil, apperrors.StoreError("list_sessions scan", err)
		}
		sess, err := row.toDomain()
		if err != nil {
			return nil, apperrors.StoreError("list_sessions decode", err)
		}
		out = append(out, sess)
	}
	if filters.Limit > 0 && len(out) > filters.Limit {
		out = out[:filters.Limit]
	}
	return out, rows.Err()
}

func (s *ResponseStoreImpl) SaveSession(ctx context.Context, sess session.Session) error {
	administeredJSON, err := json.Marshal(sess.AdministeredItemIDs)
	if err != nil {
		return apperrors.StoreError("save_session marshal administered_item_ids", err)
	}
	abilityJSON, err := json.Marshal(sess.AbilityHistory)
	if err != nil {
		return apperrors.StoreError("save_session marshal ability_history", err)
	}
	var completedAt interface{}
	if sess.CompletedAt != nil {
		completedAt = sess.CompletedAt.Time()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, is_adaptive, status, administered_item_ids, ability_history,
		                       stopping_reason, time_limit_exceeded, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			is_adaptive           = EXCLUDED.is_adaptive,
			status                = EXCLUDED.status,
			administered_item_ids = EXCLUDED.administered_item_ids,
			ability_history       = EXCLUDED.ability_history,
			stopping_reason       = EXCLUDED.stopping_reason,
			time_limit_exceeded   = EXCLUDED.time_limit_exceeded,
			completed_at          = EXCLUDED.completed_at`,
		sess.ID, sess.UserID, sess.IsAdaptive, sess.Status, administeredJSON, abilityJSON,
		sess.StoppingReason, sess.TimeLimitExceeded, sess.StartedAt.Time(), completedAt)
	if err != nil {
		return apperrors.StoreError("save_session", err)
	}
	return nil
}

func (s *ResponseStoreImpl) FetchItems(ctx context.Context, filters ports.ItemFilters) ([]item.Item, error) {
	query := `
		SELECT id, domain, difficulty_label, options, response_count, ctt_stats, irt_params,
		       is_anchor, quality_flag, created_at
		FROM items
		WHERE ($1::text[] IS NULL OR id = ANY($1))
		  AND ($2::text IS NULL OR domain = $2)
		  AND (NOT $3 OR quality_flag != 'deactivated')
		  AND ($4::int IS NULL OR response_count >= $4)`

	var ids []string
	for _, id := range filters.IDs {
		ids = append(ids, id.String())
	}
	var domain *string
	if filters.Domain != nil {
		v := string(*filters.Domain)
		domain = &v
	}

	rows, err := s.db.QueryxContext(ctx, query, pqStringArray(ids), domain, filters.ExcludeInactive, filters.MinResponseCount)
	if err != nil {
		return nil, apperrors.StoreError("fetch_items", err)
	}
	defer rows.Close()

	var out []item.Item
	for rows.Next() {
		var row itemRow
		if err := rows.StructScan(&row); err != nil {
			return nil, apperrors.StoreError("fetch_items scan", err)
		}
		it, err := row.toDomain()
		if err != nil {
			return nil, apperrors.StoreError("fetch_items decode", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// UpdateItemStats applies patch atomically, CAS'd on response_count: the
// UPDATE's WHERE clause pins the expected count, and RowsAffected == 0
// distinguishes a missing item from a lost race (§5 "optimistic counters").
func (s *ResponseStoreImpl) UpdateItemStats(ctx context.Context, id core.ItemID, patch ports.ItemStatsPatch) error {
	var cttJSON, irtJSON []byte
	var qualityFlag *string
	newResponseCount := patch.ExpectedResponseCount

	if patch.CTT != nil {
		b, err := json.Marshal(patch.CTT)
		if err != nil {
			return apperrors.StoreError("update_item_stats marshal ctt", err)
		}
		cttJSON = b
		newResponseCount = patch.CTT.ResponseCount
	}
	if patch.IRT != nil {
		b, err := json.Marshal(patch.IRT)
		if err != nil {
			return apperrors.StoreError("update_item_stats marshal irt", err)
		}
		irtJSON = b
	}
	if patch.QualityFlag != nil {
		v := string(*patch.QualityFlag)
		qualityFlag = &v
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			ctt_stats      = COALESCE($1, ctt_stats),
			irt_params     = COALESCE($2, irt_params),
			quality_flag   = COALESCE($3, quality_flag),
			response_count = $4
		WHERE id = $5 AND response_count = $6`,
		nullableJSON(cttJSON), nullableJSON(irtJSON), qualityFlag, newResponseCount, id, patch.ExpectedResponseCount)
	if err != nil {
		return apperrors.StoreError("update_item_stats", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.StoreError("update_item_stats rows_affected", err)
	}
	if affected == 0 {
		var exists bool
		if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM items WHERE id = $1)`, id).Scan(&exists); err != nil {
			return apperrors.StoreError("update_item_stats existence check", err)
		}
		if !exists {
			return apperrors.NotFound("item", id.String())
		}
		return apperrors.ConcurrentModification("item", id.String())
	}
	return nil
}

func (s *ResponseStoreImpl) WriteCalibrationRun(ctx context.Context, run calibration.Run) error {
	var completedAt interface{}
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.Time()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO calibration_runs (job_id, status, started_at, completed_at, calibrated, skipped, mean_a, mean_b, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (job_id) DO UPDATE SET
			status        = EXCLUDED.status,
			completed_at  = EXCLUDED.completed_at,
			calibrated    = EXCLUDED.calibrated,
			skipped       = EXCLUDED.skipped,
			mean_a        = EXCLUDED.mean_a,
			mean_b        = EXCLUDED.mean_b,
			error_message = EXCLUDED.error_message`,
		run.JobID, run.Status, run.StartedAt.Time(), completedAt, run.Calibrated, run.Skipped, run.MeanA, run.MeanB, run.ErrorMessage)
	if err != nil {
		return apperrors.StoreError("write_calibration_run", err)
	}
	return nil
}

func (s *ResponseStoreImpl) UpdateCalibrationRun(ctx context.Context, jobID core.CalibrationID, patch ports.CalibrationRunPatch) error {
	var status *string
	if patch.Status != nil {
		v := string(*patch.Status)
		status = &v
	}
	var completedAt interface{}
	if patch.CompletedAt != nil {
		completedAt = patch.CompletedAt.Time()
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE calibration_runs SET
			status        = COALESCE($1, status),
			completed_at  = COALESCE($2, completed_at),
			calibrated    = COALESCE($3, calibrated),
			skipped       = COALESCE($4, skipped),
			mean_a        = COALESCE($5, mean_a),
			mean_b        = COALESCE($6, mean_b),
			error_message = COALESCE($7, error_message)
		WHERE job_id = $8`,
		status, completedAt, patch.Calibrated, patch.Skipped, patch.MeanA, patch.MeanB, patch.ErrorMessage, jobID)
	if err != nil {
		return apperrors.StoreError("update_calibration_run", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return apperrors.StoreError("update_calibration_run rows_affected", err)
	}
	if affected == 0 {
		return apperrors.NotFound("calibration_run", jobID.String())
	}
	return nil
}

func (s *ResponseStoreImpl) FetchCalibrationRun(ctx context.Context, jobID core.CalibrationID) (*calibration.Run, error) {
	var row calibrationRunRow
	err := s.db.QueryRowxContext(ctx, `
		SELECT job_id, status, started_at, completed_at, calibrated, skipped, mean_a, mean_b, error_message
		FROM calibration_runs WHERE job_id = $1`, jobID).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("calibration_run", jobID.String())
	}
	if err != nil {
		return nil, apperrors.StoreError("fetch_calibration_run", err)
	}
	run := row.toDomain()
	return &run, nil
}

func (s *ResponseStoreImpl) LatestCompletedCalibrationRun(ctx context.Context) (*calibration.Run, error) {
	var row calibrationRunRow
	err := s.db.QueryRowxContext(ctx, `
		SELECT job_id, status, started_at, completed_at, calibrated, skipped, mean_a, mean_b, error_message
		FROM calibration_runs
		WHERE status = 'completed'
		ORDER BY completed_at DESC
		LIMIT 1`).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("calibration_run", "latest_completed")
	}
	if err != nil {
		return nil, apperrors.StoreError("latest_completed_calibration_run", err)
	}
	run := row.toDomain()
	return &run, nil
}

func (s *ResponseStoreImpl) WriteResult(ctx context.Context, sessionID core.SessionID, res result.Result) error {
	domainScoresJSON, err := json.Marshal(res.DomainScores)
	if err != nil {
		return apperrors.StoreError("write_result marshal domain_scores", err)
	}
	validityFlagsJSON, err := json.Marshal(res.ValidityFlags)
	if err != nil {
		return apperrors.StoreError("write_result marshal validity_flags", err)
	}
	responseTimeFlagsJSON, err := json.Marshal(res.ResponseTimeFlags)
	if err != nil {
		return apperrors.StoreError("write_result marshal response_time_flags", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO results (session_id, id, raw_score, scoring_method, final_theta, final_se, domain_scores,
		                      validity_status, validity_flags, response_time_flags,
		                      shadow_theta, shadow_se, shadow_iq, theta_iq_delta, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (session_id) DO UPDATE SET
			raw_score           = EXCLUDED.raw_score,
			scoring_method      = EXCLUDED.scoring_method,
			final_theta         = EXCLUDED.final_theta,
			final_se            = EXCLUDED.final_se,
			domain_scores       = EXCLUDED.domain_scores,
			validity_status     = EXCLUDED.validity_status,
			validity_flags      = EXCLUDED.validity_flags,
			response_time_flags = EXCLUDED.response_time_flags,
			shadow_theta        = EXCLUDED.shadow_theta,
			shadow_se           = EXCLUDED.shadow_se,
			shadow_iq           = EXCLUDED.shadow_iq,
			theta_iq_delta      = EXCLUDED.theta_iq_delta`,
		sessionID, res.ID, res.RawScore, res.ScoringMethod, res.FinalTheta, res.FinalSE, domainScoresJSON,
		res.ValidityStatus, validityFlagsJSON, responseTimeFlagsJSON,
		res.ShadowTheta, res.ShadowSE, res.ShadowIQ, res.ThetaIQDelta, res.CreatedAt.Time())
	if err != nil {
		return apperrors.StoreError("write_result", err)
	}
	return nil
}

func (s *ResponseStoreImpl) FetchResult(ctx context.Context, sessionID core.SessionID) (*result.Result, error) {
	var row resultRow
	err := s.db.QueryRowxContext(ctx, `
		SELECT session_id, id, raw_score, scoring_method, final_theta, final_se, domain_scores,
		       validity_status, validity_flags, response_time_flags,
		       shadow_theta, shadow_se, shadow_iq, theta_iq_delta, created_at
		FROM results WHERE session_id = $1`, sessionID).StructScan(&row)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("result", sessionID.String())
	}
	if err != nil {
		return nil, apperrors.StoreError("fetch_result", err)
	}
	res, err := row.toDomain()
	if err != nil {
		return nil, apperrors.StoreError("fetch_result decode", err)
	}
	return &res, nil
}

func (s *ResponseStoreImpl) SetSystemConfig(ctx context.Context, key string, value interface{}) error {
	valueJSON, err := json.Marshal(value)
	if err != nil {
		return apperrors.StoreError("set_system_config marshal", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO system_config (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, valueJSON)
	if err != nil {
		return apperrors.StoreError("set_system_config", err)
	}
	return nil
}

func (s *ResponseStoreImpl) GetCATReadiness(ctx context.Context) (*readiness.State, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM system_config WHERE key = 'cat_readiness'`).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, apperrors.NotFound("system_config", "cat_readiness")
	}
	if err != nil {
		return nil, apperrors.StoreError("get_cat_readiness", err)
	}
	var state readiness.State
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, apperrors.StoreError("get_cat_readiness decode", err)
	}
	return &state, nil
}

var _ ports.ResponseStore = (*ResponseStoreImpl)(nil)
