// internal/workers/validation/run-validation/handler.go
package runvalidation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/runner"
)

const (
	TaskType = "run-validation"
)

// RunExecutor is the pipeline entry point; the production runner
// implements it.
type RunExecutor interface {
	Execute(ctx context.Context, req runner.RunRequest) (*runner.RunSummary, error)
}

type Handler struct {
	runner  RunExecutor
	errors  *stderrors.ErrorHandler
	timeout time.Duration
	logger  logger.Logger
}

func NewHandler(config *Config, exec RunExecutor, log logger.Logger) *Handler {
	return &Handler{
		runner:  exec,
		errors:  stderrors.NewErrorHandler(log),
		timeout: config.Timeout,
		logger:  log.With(map[string]interface{}{"taskType": TaskType}),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.failJob(client, job, "PARSE_ERROR", fmt.Sprintf("parse input: %v", err))
		return
	}
	if err := input.validate(); err != nil {
		h.failJob(client, job, "INVALID_INPUT", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	h.completeJob(client, job, output)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	runID := input.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	req := runner.RunRequest{
		RunID:          runID,
		UnitIdentifier: input.UnitIdentifier,
		OrgIdentifier:  input.OrgIdentifier,
		Documents:      toDocumentReferences(input.Documents),
		Categories:     toCategories(input.Categories),
	}

	summary, err := h.runner.Execute(ctx, req)
	if err != nil {
		return nil, err
	}

	return &Output{
		RunID:       summary.RunID,
		Status:      string(summary.Status),
		Total:       summary.Total,
		Completed:   summary.Completed,
		Failed:      summary.Failed,
		SuccessRate: summary.SuccessRate,
	}, nil
}

func (input *Input) validate() error {
	if input.UnitIdentifier == "" {
		return fmt.Errorf("unitIdentifier is required")
	}
	if input.OrgIdentifier == "" {
		return fmt.Errorf("orgIdentifier is required")
	}
	if len(input.Documents) == 0 {
		return fmt.Errorf("at least one document is required")
	}
	for i, doc := range input.Documents {
		if doc.ProviderFileURI == "" {
			return fmt.Errorf("document %d (%s) has no providerFileUri", i, doc.FileName)
		}
	}
	for _, c := range input.Categories {
		if !models.RequirementCategory(c).IsValid() {
			return fmt.Errorf("unknown category: %s", c)
		}
	}
	return nil
}

func toDocumentReferences(docs []DocumentInput) []models.DocumentReference {
	out := make([]models.DocumentReference, len(docs))
	for i, doc := range docs {
		uploadedAt, err := time.Parse(time.RFC3339, doc.UploadedAt)
		if err != nil {
			uploadedAt = time.Time{}
		}
		out[i] = models.DocumentReference{
			FileName:        doc.FileName,
			DocumentType:    doc.DocumentType,
			MimeType:        doc.MimeType,
			ProviderFileURI: doc.ProviderFileURI,
			UploadedAt:      uploadedAt,
		}
	}
	return out
}

func toCategories(raw []string) []models.RequirementCategory {
	out := make([]models.RequirementCategory, len(raw))
	for i, c := range raw {
		out[i] = models.RequirementCategory(c)
	}
	return out
}

func (h *Handler) completeJob(client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	_, err = cmd.Send(context.Background())
	if err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	} else {
		h.logger.Info("job completed successfully", map[string]interface{}{
			"jobKey": job.Key,
			"runId":  output.RunID,
			"status": output.Status,
		})
	}
}

func (h *Handler) failJob(client worker.JobClient, job entities.Job, errorCode, errorMessage string) {
	h.logger.Error("job failed", map[string]interface{}{
		"jobKey":       job.Key,
		"errorCode":    errorCode,
		"errorMessage": errorMessage,
	})

	_, err := client.NewThrowErrorCommand().
		JobKey(job.Key).
		ErrorCode(errorCode).
		ErrorMessage(errorMessage).
		Send(context.Background())
	if err != nil {
		h.logger.Error("failed to throw error", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
