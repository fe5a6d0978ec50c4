// internal/api/handlers_test.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/runner"
)

type fakeRunService struct {
	mu         sync.Mutex
	executed   []runner.RunRequest
	execDone   chan struct{}
	revalidate *models.ValidationResult
	revalErr   error
}

func (f *fakeRunService) Execute(ctx context.Context, req runner.RunRequest) (*runner.RunSummary, error) {
	f.mu.Lock()
	f.executed = append(f.executed, req)
	f.mu.Unlock()
	if f.execDone != nil {
		close(f.execDone)
	}
	return &runner.RunSummary{RunID: req.RunID, Status: models.RunCompleted}, nil
}

func (f *fakeRunService) RevalidateRequirement(ctx context.Context, runID string, requirementID int64, documents []models.DocumentReference) (*models.ValidationResult, error) {
	if f.revalErr != nil {
		return nil, f.revalErr
	}
	return f.revalidate, nil
}

type fakeRunStore struct {
	runs      map[string]*models.ValidationRun
	results   map[string][]models.ValidationResult
	cancelled map[string]bool
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:      make(map[string]*models.ValidationRun),
		results:   make(map[string][]models.ValidationResult),
		cancelled: make(map[string]bool),
	}
}

func (f *fakeRunStore) GetRun(ctx context.Context, runID string) (*models.ValidationRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, stderrors.NewRunNotFoundError(runID)
	}
	return run, nil
}

func (f *fakeRunStore) ListRuns(ctx context.Context, orgIdentifier string) ([]models.ValidationRun, error) {
	var out []models.ValidationRun
	for _, run := range f.runs {
		if run.OrgIdentifier == orgIdentifier {
			out = append(out, *run)
		}
	}
	return out, nil
}

func (f *fakeRunStore) GetResults(ctx context.Context, runID string) ([]models.ValidationResult, error) {
	return f.results[runID], nil
}

func (f *fakeRunStore) Progress(ctx context.Context, runID string) (int, int, int, models.RunStatus, error) {
	run, ok := f.runs[runID]
	if !ok {
		return 0, 0, 0, "", stderrors.NewRunNotFoundError(runID)
	}
	return run.CompletedCount, run.FailedCount, run.TotalCount, run.Status, nil
}

func (f *fakeRunStore) RequestCancel(ctx context.Context, runID string) error {
	f.cancelled[runID] = true
	return nil
}

func newTestRouter(t *testing.T, svc *fakeRunService, store *fakeRunStore) http.Handler {
	t.Helper()
	handlers := NewHandlers(svc, store, time.Minute, logger.NewTestLogger(t))
	return newRouter(handlers)
}

func startRunBody() []byte {
	body, _ := json.Marshal(startRunRequest{
		UnitIdentifier: "BSBWHS411",
		OrgIdentifier:  "org-9",
		Documents: []documentRequest{
			{FileName: "tool.pdf", MimeType: "application/pdf", ProviderFileURI: "files/abc", UploadedAt: "2026-03-01T10:00:00Z"},
		},
	})
	return body
}

func TestStartRun_Accepted(t *testing.T) {
	svc := &fakeRunService{execDone: make(chan struct{})}
	router := newTestRouter(t, svc, newFakeRunStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader(startRunBody())))

	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp startRunResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.RunID)
	assert.Equal(t, "PENDING", resp.Status)

	select {
	case <-svc.execDone:
	case <-time.After(2 * time.Second):
		t.Fatal("background run never started")
	}
	svc.mu.Lock()
	defer svc.mu.Unlock()
	require.Len(t, svc.executed, 1)
	assert.Equal(t, resp.RunID, svc.executed[0].RunID)
	assert.Equal(t, "BSBWHS411", svc.executed[0].UnitIdentifier)
}

func TestStartRun_RejectsMissingFields(t *testing.T) {
	router := newTestRouter(t, &fakeRunService{}, newFakeRunStore())

	tests := []struct {
		name     string
		body     string
		wantCode string
	}{
		{"not json", "{", "INVALID_REQUEST"},
		{"no unit", `{"orgIdentifier":"org-9","documents":[{"providerFileUri":"files/a"}]}`, "INVALID_REQUEST"},
		{"no documents", `{"unitIdentifier":"BSBWHS411","orgIdentifier":"org-9"}`, "EMPTY_DOCUMENT_SET"},
		{"bad category", `{"unitIdentifier":"BSBWHS411","orgIdentifier":"org-9","documents":[{"providerFileUri":"files/a"}],"categories":["vibes"]}`, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", bytes.NewReader([]byte(tt.body))))

			require.Equal(t, http.StatusBadRequest, rec.Code)
			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Error.Code)
		})
	}
}

func TestGetProgress(t *testing.T) {
	store := newFakeRunStore()
	store.runs["run-1"] = &models.ValidationRun{
		RunID:          "run-1",
		TotalCount:     12,
		CompletedCount: 7,
		FailedCount:    1,
		Status:         models.RunProcessing,
	}
	router := newTestRouter(t, &fakeRunService{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/progress", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp progressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 12, resp.Total)
	assert.Equal(t, 7, resp.Completed)
	assert.Equal(t, 1, resp.Failed)
	assert.Equal(t, "PROCESSING", resp.Status)
}

func TestGetProgress_UnknownRun(t *testing.T) {
	router := newTestRouter(t, &fakeRunService{}, newFakeRunStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing/progress", nil))

	require.Equal(t, http.StatusNotFound, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "RUN_NOT_FOUND", resp.Error.Code)
}

func TestGetResults_EmptyIsJSONArray(t *testing.T) {
	store := newFakeRunStore()
	store.runs["run-1"] = &models.ValidationRun{RunID: "run-1", Status: models.RunProcessing}
	router := newTestRouter(t, &fakeRunService{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/results", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "[]\n", rec.Body.String())
}

func TestCancelRun(t *testing.T) {
	store := newFakeRunStore()
	store.runs["run-1"] = &models.ValidationRun{RunID: "run-1", Status: models.RunProcessing}
	router := newTestRouter(t, &fakeRunService{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/cancel", nil))

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, store.cancelled["run-1"])
}

func TestCancelRun_TerminalRunConflicts(t *testing.T) {
	store := newFakeRunStore()
	store.runs["run-1"] = &models.ValidationRun{RunID: "run-1", Status: models.RunCompleted}
	router := newTestRouter(t, &fakeRunService{}, store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/cancel", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, store.cancelled["run-1"])
}

func TestRevalidate(t *testing.T) {
	svc := &fakeRunService{revalidate: &models.ValidationResult{
		RequirementID: 42,
		Status:        models.StatusMet,
		Confidence:    0.9,
	}}
	router := newTestRouter(t, svc, newFakeRunStore())

	body := `{"documents":[{"fileName":"tool.pdf","providerFileUri":"files/abc"}]}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/requirements/42/revalidate", bytes.NewReader([]byte(body))))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp models.ValidationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.RequirementID)
	assert.Equal(t, models.StatusMet, resp.Status)
}

func TestRevalidate_BadRequirementID(t *testing.T) {
	router := newTestRouter(t, &fakeRunService{}, newFakeRunStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs/run-1/requirements/abc/revalidate", bytes.NewReader([]byte(`{}`))))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListRuns_RequiresOrg(t *testing.T) {
	router := newTestRouter(t, &fakeRunService{}, newFakeRunStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, &fakeRunService{}, newFakeRunStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthz_ReportsUnavailableDependency(t *testing.T) {
	handlers := NewHandlers(&fakeRunService{}, newFakeRunStore(), time.Minute, logger.NewTestLogger(t)).
		WithHealthChecks(
			HealthCheck{Name: "postgres", Probe: func(ctx context.Context) error { return nil }},
			HealthCheck{Name: "redis", Probe: func(ctx context.Context) error { return assert.AnError }},
		)
	router := newRouter(handlers)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "degraded", body["status"])
	deps := body["dependencies"].(map[string]interface{})
	assert.Equal(t, "ok", deps["postgres"])
	assert.Equal(t, "unavailable", deps["redis"])
}
