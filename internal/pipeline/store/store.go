// internal/pipeline/store/store.go

// Package store persists validation runs and per-requirement results.
// Postgres is the source of truth; Redis carries a best-effort progress
// mirror for cheap polling plus the cooperative cancellation flag.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
)

// Cancellation flags expire on their own so an abandoned run cannot
// block a future run reusing the same id.
const cancelTTL = 24 * time.Hour

type ResultStore struct {
	db     *sql.DB
	redis  *redis.Client
	logger logger.Logger
}

func New(db *sql.DB, rdb *redis.Client, log logger.Logger) *ResultStore {
	return &ResultStore{
		db:     db,
		redis:  rdb,
		logger: log.With(map[string]interface{}{"component": "store"}),
	}
}

func progressKey(runID string) string { return fmt.Sprintf("run:%s:progress", runID) }
func cancelKey(runID string) string   { return fmt.Sprintf("run:%s:cancelled", runID) }

// CreateRun inserts the run summary row in PENDING state, resetting
// any existing row for the same run id, and seeds the Redis progress
// mirror.
func (s *ResultStore) CreateRun(ctx context.Context, run *models.ValidationRun) error {
	// Jobs arrive at least once: a run redelivered after a crash
	// re-enters here with the same run id and starts over, so the
	// existing row is reset rather than treated as a conflict.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO validation_runs (
			run_id, unit_identifier, org_identifier, prompt_version,
			total_count, completed_count, failed_count, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, 0, 0, $6, NOW(), NOW())
		ON CONFLICT (run_id) DO UPDATE SET
			unit_identifier = EXCLUDED.unit_identifier,
			org_identifier = EXCLUDED.org_identifier,
			prompt_version = EXCLUDED.prompt_version,
			total_count = EXCLUDED.total_count,
			completed_count = 0,
			failed_count = 0,
			status = EXCLUDED.status,
			updated_at = NOW()`,
		run.RunID,
		run.UnitIdentifier,
		run.OrgIdentifier,
		run.PromptVersion,
		run.TotalCount,
		string(models.RunPending),
	)
	if err != nil {
		return stderrors.NewQueryExecutionFailedError("create run", err)
	}

	s.mirrorProgress(ctx, run.RunID, 0, 0, run.TotalCount, models.RunPending)
	return nil
}

// UpsertResult writes one requirement's result and refreshes the run's
// progress counters in the same transaction. The write is keyed on
// (run_id, requirement_id), so retries and revalidations replace the
// existing row instead of inflating the counters.
func (s *ResultStore) UpsertResult(ctx context.Context, runID string, res models.ValidationResult) error {
	citationsJSON, err := json.Marshal(res.Citations)
	if err != nil {
		return stderrors.NewResultWriteFailedError(runID, res.RequirementID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stderrors.NewResultWriteFailedError(runID, res.RequirementID, err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_results (
			run_id, requirement_id, status, reasoning,
			mapped_content, unmapped_content, recommendations, citations,
			smart_question, benchmark_answer, confidence, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW(), NOW())
		ON CONFLICT (run_id, requirement_id) DO UPDATE SET
			status = EXCLUDED.status,
			reasoning = EXCLUDED.reasoning,
			mapped_content = EXCLUDED.mapped_content,
			unmapped_content = EXCLUDED.unmapped_content,
			recommendations = EXCLUDED.recommendations,
			citations = EXCLUDED.citations,
			smart_question = EXCLUDED.smart_question,
			benchmark_answer = EXCLUDED.benchmark_answer,
			confidence = EXCLUDED.confidence,
			updated_at = NOW()`,
		runID,
		res.RequirementID,
		string(res.Status),
		res.Reasoning,
		res.MappedContent,
		res.UnmappedContent,
		res.Recommendations,
		citationsJSON,
		res.SmartQuestion,
		res.BenchmarkAnswer,
		res.Confidence,
	)
	if err != nil {
		return stderrors.NewResultWriteFailedError(runID, res.RequirementID, err)
	}

	// Counters are recomputed from the result rows rather than
	// incremented, so an upsert that replaced a row stays accurate.
	var completed, failed, total int
	err = tx.QueryRowContext(ctx, `
		UPDATE validation_runs SET
			completed_count = (SELECT COUNT(*) FROM validation_results WHERE run_id = $1 AND status <> $2),
			failed_count = (SELECT COUNT(*) FROM validation_results WHERE run_id = $1 AND status = $2),
			updated_at = NOW()
		WHERE run_id = $1
		RETURNING completed_count, failed_count, total_count`,
		runID,
		string(models.StatusError),
	).Scan(&completed, &failed, &total)
	if err != nil {
		return stderrors.NewResultWriteFailedError(runID, res.RequirementID, err)
	}

	if err := tx.Commit(); err != nil {
		return stderrors.NewResultWriteFailedError(runID, res.RequirementID, err)
	}

	s.mirrorProgress(ctx, runID, completed, failed, total, models.RunProcessing)
	return nil
}

// GetRun loads the run summary row.
func (s *ResultStore) GetRun(ctx context.Context, runID string) (*models.ValidationRun, error) {
	var run models.ValidationRun
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, unit_identifier, org_identifier, prompt_version,
		       total_count, completed_count, failed_count, status, created_at, updated_at
		FROM validation_runs WHERE run_id = $1`,
		runID,
	).Scan(
		&run.RunID,
		&run.UnitIdentifier,
		&run.OrgIdentifier,
		&run.PromptVersion,
		&run.TotalCount,
		&run.CompletedCount,
		&run.FailedCount,
		&run.Status,
		&run.CreatedAt,
		&run.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, stderrors.NewRunNotFoundError(runID)
	}
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get run", err)
	}
	return &run, nil
}

// ListRuns returns an organisation's runs, newest first.
func (s *ResultStore) ListRuns(ctx context.Context, orgIdentifier string) ([]models.ValidationRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, unit_identifier, org_identifier, prompt_version,
		       total_count, completed_count, failed_count, status, created_at, updated_at
		FROM validation_runs WHERE org_identifier = $1
		ORDER BY created_at DESC`,
		orgIdentifier,
	)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("list runs", err)
	}
	defer rows.Close()

	var runs []models.ValidationRun
	for rows.Next() {
		var run models.ValidationRun
		if err := rows.Scan(
			&run.RunID,
			&run.UnitIdentifier,
			&run.OrgIdentifier,
			&run.PromptVersion,
			&run.TotalCount,
			&run.CompletedCount,
			&run.FailedCount,
			&run.Status,
			&run.CreatedAt,
			&run.UpdatedAt,
		); err != nil {
			return nil, stderrors.NewQueryExecutionFailedError("list runs", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("list runs", err)
	}
	return runs, nil
}

// GetResults returns every result for a run ordered by requirement id.
func (s *ResultStore) GetResults(ctx context.Context, runID string) ([]models.ValidationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT requirement_id, status, reasoning,
		       mapped_content, unmapped_content, recommendations, citations,
		       smart_question, benchmark_answer, confidence, created_at
		FROM validation_results WHERE run_id = $1
		ORDER BY requirement_id`,
		runID,
	)
	if err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get results", err)
	}
	defer rows.Close()

	var results []models.ValidationResult
	for rows.Next() {
		var res models.ValidationResult
		var citationsJSON []byte
		if err := rows.Scan(
			&res.RequirementID,
			&res.Status,
			&res.Reasoning,
			&res.MappedContent,
			&res.UnmappedContent,
			&res.Recommendations,
			&citationsJSON,
			&res.SmartQuestion,
			&res.BenchmarkAnswer,
			&res.Confidence,
			&res.CreatedAt,
		); err != nil {
			return nil, stderrors.NewQueryExecutionFailedError("get results", err)
		}
		if len(citationsJSON) > 0 {
			if err := json.Unmarshal(citationsJSON, &res.Citations); err != nil {
				s.logger.Warn("unreadable citations column", map[string]interface{}{
					"runId":         runID,
					"requirementId": res.RequirementID,
					"error":         err.Error(),
				})
			}
		}
		if res.Citations == nil {
			res.Citations = []models.Citation{}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, stderrors.NewQueryExecutionFailedError("get results", err)
	}
	return results, nil
}

// UpdateRunStatus moves the run to a new lifecycle state.
func (s *ResultStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE validation_runs SET status = $2, updated_at = NOW() WHERE run_id = $1`,
		runID,
		string(status),
	)
	if err != nil {
		return stderrors.NewQueryExecutionFailedError("update run status", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return stderrors.NewRunNotFoundError(runID)
	}

	if s.redis != nil {
		if err := s.redis.HSet(ctx, progressKey(runID), "status", string(status)).Err(); err != nil {
			s.logger.Warn("progress mirror update failed", map[string]interface{}{
				"runId": runID,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// RequestCancel raises the cooperative cancellation flag. The runner
// checks it between requirements; the in-flight model call is allowed
// to finish and its result is persisted.
func (s *ResultStore) RequestCancel(ctx context.Context, runID string) error {
	if err := s.redis.Set(ctx, cancelKey(runID), "1", cancelTTL).Err(); err != nil {
		return fmt.Errorf("failed to set cancellation flag for run %s: %w", runID, err)
	}
	return nil
}

// IsCancelled reports whether cancellation has been requested. A Redis
// failure is treated as not cancelled; the run keeps going.
func (s *ResultStore) IsCancelled(ctx context.Context, runID string) bool {
	if s.redis == nil {
		return false
	}
	val, err := s.redis.Get(ctx, cancelKey(runID)).Result()
	if err == redis.Nil {
		return false
	}
	if err != nil {
		s.logger.Warn("cancellation check failed", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
		return false
	}
	return val == "1"
}

// Progress returns (completed, failed, total) from the Redis mirror,
// falling back to Postgres when the mirror is missing.
func (s *ResultStore) Progress(ctx context.Context, runID string) (completed, failed, total int, status models.RunStatus, err error) {
	if s.redis != nil {
		fields, rerr := s.redis.HGetAll(ctx, progressKey(runID)).Result()
		if rerr == nil && len(fields) > 0 {
			completed, cerr := strconv.Atoi(fields["completed"])
			failed, ferr := strconv.Atoi(fields["failed"])
			total, terr := strconv.Atoi(fields["total"])
			// A corrupt mirror falls through to Postgres rather than
			// reporting zero counts.
			if cerr == nil && ferr == nil && terr == nil {
				return completed, failed, total, models.RunStatus(fields["status"]), nil
			}
			s.logger.Warn("progress mirror unreadable, falling back to database", map[string]interface{}{
				"runId": runID,
			})
		}
	}

	run, err := s.GetRun(ctx, runID)
	if err != nil {
		return 0, 0, 0, "", err
	}
	return run.CompletedCount, run.FailedCount, run.TotalCount, run.Status, nil
}

func (s *ResultStore) mirrorProgress(ctx context.Context, runID string, completed, failed, total int, status models.RunStatus) {
	if s.redis == nil {
		return
	}
	err := s.redis.HSet(ctx, progressKey(runID),
		"completed", completed,
		"failed", failed,
		"total", total,
		"status", string(status),
	).Err()
	if err != nil {
		s.logger.Warn("progress mirror update failed", map[string]interface{}{
			"runId": runID,
			"error": err.Error(),
		})
	}
}
