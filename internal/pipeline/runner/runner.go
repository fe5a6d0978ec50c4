// internal/pipeline/runner/runner.go

// Package runner drives a validation run end to end: normalize the
// unit's requirements, build the session context, then validate each
// requirement with exactly one model call and persist its result
// before moving to the next.
package runner

import (
	"context"
	"time"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/genai"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/common/metrics"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/citations"
	"assessment-workers/internal/pipeline/parser"
	"assessment-workers/internal/pipeline/prompt"
	"assessment-workers/internal/pipeline/session"
)

// RequirementSource loads a unit's requirements in canonical order.
type RequirementSource interface {
	Normalize(ctx context.Context, unitIdentifier string, categories ...models.RequirementCategory) ([]models.Requirement, error)
}

// Store is the persistence surface the runner depends on.
type Store interface {
	CreateRun(ctx context.Context, run *models.ValidationRun) error
	UpsertResult(ctx context.Context, runID string, res models.ValidationResult) error
	GetRun(ctx context.Context, runID string) (*models.ValidationRun, error)
	UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error
	IsCancelled(ctx context.Context, runID string) bool
}

// ModelCaller issues one rate-limited, retried model call.
type ModelCaller interface {
	Call(ctx context.Context, payload prompt.RequestPayload, sess models.SessionContext) (*genai.Response, error)
}

type Runner struct {
	source        RequirementSource
	store         Store
	caller        ModelCaller
	parser        *parser.Parser
	registry      *prompt.Registry
	promptVersion string
	logger        logger.Logger
}

func New(source RequirementSource, st Store, caller ModelCaller, p *parser.Parser, registry *prompt.Registry, promptVersion string, log logger.Logger) *Runner {
	return &Runner{
		source:        source,
		store:         st,
		caller:        caller,
		parser:        p,
		registry:      registry,
		promptVersion: promptVersion,
		logger:        log.With(map[string]interface{}{"component": "runner"}),
	}
}

// RunRequest describes one validation run.
type RunRequest struct {
	RunID          string
	UnitIdentifier string
	OrgIdentifier  string
	Documents      []models.DocumentReference
	// Categories restricts the run; empty means all five.
	Categories []models.RequirementCategory
}

// RunSummary is the terminal outcome of a run.
type RunSummary struct {
	RunID       string           `json:"runId"`
	Status      models.RunStatus `json:"status"`
	Total       int              `json:"total"`
	Completed   int              `json:"completed"`
	Failed      int              `json:"failed"`
	SuccessRate float64          `json:"successRate"`
}

// Execute runs the whole validation loop. Requirement-scoped failures
// are recorded as Error results and the loop continues; run-fatal
// errors mark the run FAILED and abort. The returned error is non-nil
// only for run-fatal outcomes.
func (r *Runner) Execute(ctx context.Context, req RunRequest) (*RunSummary, error) {
	metrics.RunsActive.Inc()
	defer metrics.RunsActive.Dec()
	start := time.Now()

	requirements, err := r.source.Normalize(ctx, req.UnitIdentifier, req.Categories...)
	if err != nil {
		r.recordAbortedRun(ctx, req, 0, err)
		return nil, err
	}

	sess, err := session.Build(req.RunID, req.UnitIdentifier, req.OrgIdentifier, req.Documents)
	if err != nil {
		r.recordAbortedRun(ctx, req, len(requirements), err)
		return nil, err
	}

	run := &models.ValidationRun{
		RunID:          req.RunID,
		UnitIdentifier: req.UnitIdentifier,
		OrgIdentifier:  req.OrgIdentifier,
		PromptVersion:  r.promptVersion,
		TotalCount:     len(requirements),
		Status:         models.RunPending,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return nil, err
	}
	if err := r.store.UpdateRunStatus(ctx, req.RunID, models.RunProcessing); err != nil {
		return nil, err
	}

	r.logger.Info("validation run started", map[string]interface{}{
		"runId":     req.RunID,
		"unit":      req.UnitIdentifier,
		"total":     len(requirements),
		"sessionId": sess.SessionID,
	})

	var results []models.ValidationResult
	for i, requirement := range requirements {
		if err := ctx.Err(); err != nil {
			r.finishRun(ctx, req.RunID, models.RunFailed, start)
			return nil, err
		}
		if r.store.IsCancelled(ctx, req.RunID) {
			r.logger.Info("validation run cancelled", map[string]interface{}{
				"runId":     req.RunID,
				"processed": i,
			})
			r.finishRun(ctx, req.RunID, models.RunFailed, start)
			return nil, stderrors.NewRunCancelledError(req.RunID)
		}

		result, err := r.validateOne(ctx, sess.AtPosition(i+1, len(requirements)), requirement)
		if err != nil {
			r.finishRun(ctx, req.RunID, models.RunFailed, start)
			return nil, err
		}

		if err := r.store.UpsertResult(ctx, req.RunID, result); err != nil {
			// Nothing can be recorded without the store, so the run
			// cannot meaningfully continue.
			r.finishRun(ctx, req.RunID, models.RunFailed, start)
			return nil, err
		}
		results = append(results, result)
	}

	summary := r.summarize(req.RunID, results)
	r.finishRun(ctx, req.RunID, summary.Status, start)

	r.logger.Info("validation run finished", map[string]interface{}{
		"runId":       req.RunID,
		"status":      string(summary.Status),
		"completed":   summary.Completed,
		"failed":      summary.Failed,
		"successRate": summary.SuccessRate,
	})
	return summary, nil
}

// RevalidateRequirement re-runs a single requirement of an existing run
// under a fresh session and replaces its stored result.
func (r *Runner) RevalidateRequirement(ctx context.Context, runID string, requirementID int64, documents []models.DocumentReference) (*models.ValidationResult, error) {
	run, err := r.store.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	requirements, err := r.source.Normalize(ctx, run.UnitIdentifier)
	if err != nil {
		return nil, err
	}
	var target *models.Requirement
	for i := range requirements {
		if requirements[i].ID == requirementID {
			target = &requirements[i]
			break
		}
	}
	if target == nil {
		return nil, stderrors.NewRequirementsNotFoundError(run.UnitIdentifier)
	}

	sess, err := session.Build(runID, run.UnitIdentifier, run.OrgIdentifier, documents)
	if err != nil {
		return nil, err
	}

	result, err := r.validateOne(ctx, sess.AtPosition(1, 1), *target)
	if err != nil {
		return nil, err
	}
	if err := r.store.UpsertResult(ctx, runID, result); err != nil {
		return nil, err
	}

	r.logger.Info("requirement revalidated", map[string]interface{}{
		"runId":         runID,
		"requirementId": requirementID,
		"status":        string(result.Status),
	})
	return &result, nil
}

// validateOne performs the per-requirement pipeline: assemble, call,
// parse, merge citations. Every failure except a run-fatal one
// collapses into an Error result so the run keeps its one-result-per-
// requirement shape.
func (r *Runner) validateOne(ctx context.Context, sess models.SessionContext, requirement models.Requirement) (models.ValidationResult, error) {
	tmpl, err := r.registry.Lookup(requirement.Category, r.promptVersion)
	if err != nil {
		return models.ValidationResult{}, err
	}

	payload, err := prompt.Assemble(requirement, sess, tmpl)
	if err != nil {
		return r.errorResult(requirement, err), nil
	}

	resp, err := r.caller.Call(ctx, payload, sess)
	if err != nil {
		if ctx.Err() != nil {
			return models.ValidationResult{}, ctx.Err()
		}
		if stderrors.IsRunFatal(err) {
			return models.ValidationResult{}, err
		}
		r.logger.Warn("requirement validation failed", map[string]interface{}{
			"requirementId": requirement.ID,
			"category":      string(requirement.Category),
			"error":         err.Error(),
		})
		return r.errorResult(requirement, err), nil
	}

	out := r.parser.Parse(requirement.ID, resp.Text)
	result := out.Result
	result.Citations = citations.Merge(result.Citations, resp.Grounding, sess.Documents)

	metrics.RequirementsValidated.WithLabelValues(string(requirement.Category), string(result.Status)).Inc()
	return result, nil
}

func (r *Runner) errorResult(requirement models.Requirement, cause error) models.ValidationResult {
	metrics.RequirementsValidated.WithLabelValues(string(requirement.Category), string(models.StatusError)).Inc()
	return models.ValidationResult{
		RequirementID: requirement.ID,
		Status:        models.StatusError,
		Reasoning:     "validation failed: " + cause.Error(),
		Citations:     []models.Citation{},
		Confidence:    0,
		CreatedAt:     time.Now().UTC(),
	}
}

func (r *Runner) summarize(runID string, results []models.ValidationResult) *RunSummary {
	summary := &RunSummary{
		RunID:       runID,
		Total:       len(results),
		SuccessRate: models.SuccessRate(results),
	}
	for _, res := range results {
		if res.Status == models.StatusError {
			summary.Failed++
		} else {
			summary.Completed++
		}
	}
	// FAILED is reserved for runs that abort before the loop finishes;
	// a run whose every requirement was attempted is at worst partially
	// failed, even when every result is an error.
	if summary.Failed == 0 {
		summary.Status = models.RunCompleted
	} else {
		summary.Status = models.RunPartiallyFailed
	}
	return summary
}

// recordAbortedRun persists a FAILED run row for runs that die before
// the loop starts, so the failure is visible to progress queries.
func (r *Runner) recordAbortedRun(ctx context.Context, req RunRequest, total int, cause error) {
	r.logger.Error("validation run aborted before processing", map[string]interface{}{
		"runId": req.RunID,
		"unit":  req.UnitIdentifier,
		"error": cause.Error(),
	})
	run := &models.ValidationRun{
		RunID:          req.RunID,
		UnitIdentifier: req.UnitIdentifier,
		OrgIdentifier:  req.OrgIdentifier,
		PromptVersion:  r.promptVersion,
		TotalCount:     total,
		Status:         models.RunPending,
	}
	if err := r.store.CreateRun(ctx, run); err != nil {
		return
	}
	if err := r.store.UpdateRunStatus(ctx, req.RunID, models.RunFailed); err != nil {
		r.logger.Warn("failed to mark aborted run", map[string]interface{}{
			"runId": req.RunID,
			"error": err.Error(),
		})
	}
}

func (r *Runner) finishRun(ctx context.Context, runID string, status models.RunStatus, start time.Time) {
	if err := r.store.UpdateRunStatus(ctx, runID, status); err != nil {
		r.logger.Error("failed to record terminal run status", map[string]interface{}{
			"runId":  runID,
			"status": string(status),
			"error":  err.Error(),
		})
	}
	metrics.RunDuration.WithLabelValues(string(status)).Observe(time.Since(start).Seconds())
}
