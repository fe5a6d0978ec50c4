// internal/api/handlers.go
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/runner"
)

// RunService is what the handlers need from the pipeline runner.
type RunService interface {
	Execute(ctx context.Context, req runner.RunRequest) (*runner.RunSummary, error)
	RevalidateRequirement(ctx context.Context, runID string, requirementID int64, documents []models.DocumentReference) (*models.ValidationResult, error)
}

// RunStore is the read/cancel surface the handlers need from the store.
type RunStore interface {
	GetRun(ctx context.Context, runID string) (*models.ValidationRun, error)
	ListRuns(ctx context.Context, orgIdentifier string) ([]models.ValidationRun, error)
	GetResults(ctx context.Context, runID string) ([]models.ValidationResult, error)
	Progress(ctx context.Context, runID string) (completed, failed, total int, status models.RunStatus, err error)
	RequestCancel(ctx context.Context, runID string) error
}

// HealthCheck probes one backing dependency for the health endpoint.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

type Handlers struct {
	runs   RunService
	store  RunStore
	logger logger.Logger
	checks []HealthCheck

	// runTimeout bounds the detached run goroutine spawned by StartRun.
	runTimeout time.Duration
}

func NewHandlers(runs RunService, store RunStore, runTimeout time.Duration, log logger.Logger) *Handlers {
	return &Handlers{
		runs:       runs,
		store:      store,
		runTimeout: runTimeout,
		logger:     log.With(map[string]interface{}{"component": "api"}),
	}
}

type documentRequest struct {
	FileName        string `json:"fileName"`
	DocumentType    string `json:"documentType"`
	MimeType        string `json:"mimeType"`
	ProviderFileURI string `json:"providerFileUri"`
	UploadedAt      string `json:"uploadedAt"`
}

type startRunRequest struct {
	UnitIdentifier string            `json:"unitIdentifier"`
	OrgIdentifier  string            `json:"orgIdentifier"`
	Documents      []documentRequest `json:"documents"`
	Categories     []string          `json:"categories,omitempty"`
}

type startRunResponse struct {
	RunID  string `json:"runId"`
	Status string `json:"status"`
}

type progressResponse struct {
	RunID     string `json:"runId"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
}

type revalidateRequest struct {
	Documents []documentRequest `json:"documents"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WithHealthChecks registers dependency probes reported by the health
// endpoint.
func (h *Handlers) WithHealthChecks(checks ...HealthCheck) *Handlers {
	h.checks = checks
	return h
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	deps := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.Probe(ctx); err != nil {
			deps[check.Name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		deps[check.Name] = "ok"
	}

	body := map[string]interface{}{"status": "ok"}
	if status != http.StatusOK {
		body["status"] = "degraded"
	}
	if len(deps) > 0 {
		body["dependencies"] = deps
	}
	writeJSON(w, status, body)
}

// StartRun kicks off a validation run in the background and returns
// immediately; callers poll the progress endpoint.
func (h *Handlers) StartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return
	}
	if req.UnitIdentifier == "" || req.OrgIdentifier == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unitIdentifier and orgIdentifier are required")
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, http.StatusBadRequest, "EMPTY_DOCUMENT_SET", "at least one document is required")
		return
	}
	for _, c := range req.Categories {
		if !models.RequirementCategory(c).IsValid() {
			h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "unknown category: "+c)
			return
		}
	}

	runID := uuid.New().String()
	runReq := runner.RunRequest{
		RunID:          runID,
		UnitIdentifier: req.UnitIdentifier,
		OrgIdentifier:  req.OrgIdentifier,
		Documents:      toDocumentReferences(req.Documents),
		Categories:     toCategories(req.Categories),
	}

	// The run outlives the HTTP request.
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.runTimeout)
		defer cancel()
		if _, err := h.runs.Execute(ctx, runReq); err != nil {
			h.logger.Error("background run failed", map[string]interface{}{
				"runId": runID,
				"error": err.Error(),
			})
		}
	}()

	writeJSON(w, http.StatusAccepted, startRunResponse{
		RunID:  runID,
		Status: string(models.RunPending),
	})
}

func (h *Handlers) ListRuns(w http.ResponseWriter, r *http.Request) {
	org := r.URL.Query().Get("org")
	if org == "" {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "org query parameter is required")
		return
	}

	runs, err := h.store.ListRuns(r.Context(), org)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if runs == nil {
		runs = []models.ValidationRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *Handlers) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handlers) GetProgress(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	completed, failed, total, status, err := h.store.Progress(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, progressResponse{
		RunID:     runID,
		Status:    string(status),
		Total:     total,
		Completed: completed,
		Failed:    failed,
	})
}

func (h *Handlers) GetResults(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		h.writeStoreError(w, err)
		return
	}
	results, err := h.store.GetResults(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if results == nil {
		results = []models.ValidationResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (h *Handlers) CancelRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if run.Status.Terminal() {
		h.writeError(w, http.StatusConflict, "RUN_ALREADY_FINISHED", "run is already in a terminal state")
		return
	}
	if err := h.store.RequestCancel(r.Context(), runID); err != nil {
		h.writeError(w, http.StatusInternalServerError, "CANCEL_FAILED", err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"runId":  runID,
		"status": "cancellation requested",
	})
}

func (h *Handlers) Revalidate(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	requirementID, err := strconv.ParseInt(chi.URLParam(r, "requirementID"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "requirementID must be an integer")
		return
	}

	var req revalidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "request body is not valid JSON")
		return
	}
	if len(req.Documents) == 0 {
		h.writeError(w, http.StatusBadRequest, "EMPTY_DOCUMENT_SET", "at least one document is required")
		return
	}

	result, err := h.runs.RevalidateRequirement(r.Context(), runID, requirementID, toDocumentReferences(req.Documents))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// writeStoreError maps pipeline error codes onto HTTP statuses.
func (h *Handlers) writeStoreError(w http.ResponseWriter, err error) {
	code := stderrors.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case stderrors.ErrCodeRunNotFound, stderrors.ErrCodeRequirementsNotFound:
		status = http.StatusNotFound
	case stderrors.ErrCodeEmptyDocumentSet:
		status = http.StatusBadRequest
	}
	if code == "" {
		code = "INTERNAL_ERROR"
	}
	h.writeError(w, status, string(code), err.Error())
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: errorBody{Code: code, Message: message}})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func toDocumentReferences(docs []documentRequest) []models.DocumentReference {
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
