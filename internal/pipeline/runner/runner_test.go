// internal/pipeline/runner/runner_test.go

package runner

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	stderrors "assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/genai"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
	"assessment-workers/internal/pipeline/parser"
	"assessment-workers/internal/pipeline/prompt"
)

type fakeSource struct {
	requirements []models.Requirement
	err          error
}

func (f *fakeSource) Normalize(ctx context.Context, unitIdentifier string, categories ...models.RequirementCategory) ([]models.Requirement, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.requirements, nil
}

type fakeStore struct {
	runs        map[string]*models.ValidationRun
	results     map[int64]models.ValidationResult
	resultOrder []int64
	statuses    []models.RunStatus
	upsertErr   error

	// cancelAfter flips the cancellation flag once that many results
	// have been persisted. Zero means never.
	cancelAfter int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:    make(map[string]*models.ValidationRun),
		results: make(map[int64]models.ValidationResult),
	}
}

func (f *fakeStore) CreateRun(ctx context.Context, run *models.ValidationRun) error {
	f.runs[run.RunID] = run
	return nil
}

func (f *fakeStore) UpsertResult(ctx context.Context, runID string, res models.ValidationResult) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if _, seen := f.results[res.RequirementID]; !seen {
		f.resultOrder = append(f.resultOrder, res.RequirementID)
	}
	f.results[res.RequirementID] = res
	return nil
}

func (f *fakeStore) GetRun(ctx context.Context, runID string) (*models.ValidationRun, error) {
	run, ok := f.runs[runID]
	if !ok {
		return nil, stderrors.NewRunNotFoundError(runID)
	}
	return run, nil
}

func (f *fakeStore) UpdateRunStatus(ctx context.Context, runID string, status models.RunStatus) error {
	f.statuses = append(f.statuses, status)
	return nil
}

func (f *fakeStore) IsCancelled(ctx context.Context, runID string) bool {
	return f.cancelAfter > 0 && len(f.results) >= f.cancelAfter
}

// fakeCaller answers each call from responses keyed by requirement id;
// missing ids get a generic Met response.
type fakeCaller struct {
	responses map[int64]*genai.Response
	errs      map[int64]error
	calls     int
}

func (f *fakeCaller) Call(ctx context.Context, payload prompt.RequestPayload, sess models.SessionContext) (*genai.Response, error) {
	f.calls++
	id := payload.Requirement.ID
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	if resp, ok := f.responses[id]; ok {
		return resp, nil
	}
	return &genai.Response{Text: metJSON("requirement addressed")}, nil
}

func metJSON(reasoning string) string {
	return fmt.Sprintf(`{"status":"Met","reasoning":"%s","confidence":0.9,"citations":[]}`, reasoning)
}

func testRequirements(n int) []models.Requirement {
	reqs := make([]models.Requirement, n)
	for i := range reqs {
		reqs[i] = models.Requirement{
			ID:             int64(i + 1),
			UnitIdentifier: "BSBWHS411",
			Category:       models.CategoryKnowledgeEvidence,
			Number:         fmt.Sprintf("%d", i+1),
			Text:           fmt.Sprintf("knowledge item %d", i+1),
		}
	}
	return reqs
}

func testDocuments() []models.DocumentReference {
	return []models.DocumentReference{
		{FileName: "assessment-tool.pdf", DocumentType: "assessment_tool", MimeType: "application/pdf", ProviderFileURI: "files/abc", UploadedAt: time.Now()},
	}
}

func newTestRunner(t *testing.T, source RequirementSource, st Store, caller ModelCaller) *Runner {
	t.Helper()
	p, err := parser.New(prompt.OutputSchema)
	require.NoError(t, err)
	return New(source, st, caller, p, prompt.DefaultRegistry(), "v1", logger.NewTestLogger(t))
}

func testRequest() RunRequest {
	return RunRequest{
		RunID:          "run-1",
		UnitIdentifier: "BSBWHS411",
		OrgIdentifier:  "org-9",
		Documents:      testDocuments(),
	}
}

func TestExecute_AllRequirementsMet(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(3)}, st, caller)

	summary, err := r.Execute(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, summary.Status)
	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 3, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.InDelta(t, 1.0, summary.SuccessRate, 0.001)
	assert.Equal(t, 3, caller.calls, "exactly one call per requirement")
	assert.Len(t, st.results, 3)
	assert.Equal(t, []models.RunStatus{models.RunProcessing, models.RunCompleted}, st.statuses)
}

func TestExecute_RequirementErrorDoesNotAbortRun(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{errs: map[int64]error{
		2: stderrors.NewRetriesExhaustedError(3, assert.AnError),
	}}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(3)}, st, caller)

	summary, err := r.Execute(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, models.RunPartiallyFailed, summary.Status)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, models.StatusError, st.results[2].Status)
	assert.Contains(t, st.results[2].Reasoning, "validation failed")
	assert.NotNil(t, st.results[2].Citations)
}

func TestExecute_EveryRequirementFailing(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{errs: map[int64]error{
		1: stderrors.NewProviderRejectedError(assert.AnError),
		2: stderrors.NewProviderRejectedError(assert.AnError),
	}}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(2)}, st, caller)

	summary, err := r.Execute(context.Background(), testRequest())

	// Every requirement was attempted and persisted, so the run is
	// partially failed, not FAILED; FAILED means the loop aborted.
	require.NoError(t, err)
	assert.Equal(t, models.RunPartiallyFailed, summary.Status)
	assert.Equal(t, 0, summary.Completed)
	assert.Equal(t, 2, summary.Failed)
	assert.Len(t, st.results, 2)
	assert.Equal(t, models.RunPartiallyFailed, st.statuses[len(st.statuses)-1])
}

func TestExecute_UnparseableResponseBecomesErrorResult(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{responses: map[int64]*genai.Response{
		1: {Text: "I am unable to produce JSON for this requirement."},
	}}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(2)}, st, caller)

	summary, err := r.Execute(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, models.RunPartiallyFailed, summary.Status)
	assert.Equal(t, models.StatusError, st.results[1].Status)
	assert.Equal(t, models.StatusMet, st.results[2].Status)
}

func TestExecute_CancellationStopsBetweenRequirements(t *testing.T) {
	st := newFakeStore()
	st.cancelAfter = 1
	caller := &fakeCaller{}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(5)}, st, caller)

	_, err := r.Execute(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeRunCancelled, stderrors.CodeOf(err))
	assert.Equal(t, 1, caller.calls, "in-flight work finishes, nothing new starts")
	assert.Len(t, st.results, 1, "completed result is kept")
	assert.Equal(t, models.RunFailed, st.statuses[len(st.statuses)-1])
}

func TestExecute_NormalizeFailureMarksRunFailed(t *testing.T) {
	st := newFakeStore()
	r := newTestRunner(t, &fakeSource{err: stderrors.NewRequirementsNotFoundError("BSBWHS411")}, st, &fakeCaller{})

	_, err := r.Execute(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeRequirementsNotFound, stderrors.CodeOf(err))
	require.Contains(t, st.runs, "run-1", "aborted run still gets a row")
	assert.Equal(t, models.RunFailed, st.statuses[len(st.statuses)-1])
}

func TestExecute_EmptyDocumentSetIsRunFatal(t *testing.T) {
	st := newFakeStore()
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(2)}, st, &fakeCaller{})

	req := testRequest()
	req.Documents = nil
	_, err := r.Execute(context.Background(), req)

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeEmptyDocumentSet, stderrors.CodeOf(err))
	assert.Len(t, st.results, 0)
}

func TestExecute_StoreFailureAbortsRun(t *testing.T) {
	st := newFakeStore()
	st.upsertErr = stderrors.NewResultWriteFailedError("run-1", 1, assert.AnError)
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(3)}, st, &fakeCaller{})

	_, err := r.Execute(context.Background(), testRequest())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeResultWriteFailed, stderrors.CodeOf(err))
	assert.Equal(t, models.RunFailed, st.statuses[len(st.statuses)-1])
}

func TestExecute_HallucinatedCitationDropped(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{responses: map[int64]*genai.Response{
		1: {Text: `{"status":"Met","reasoning":"ok","confidence":0.8,"citations":[
			{"documentName":"assessment-tool.pdf","location":"p2"},
			{"documentName":"never-uploaded.docx","location":"p9"}
		]}`},
	}}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(1)}, st, caller)

	_, err := r.Execute(context.Background(), testRequest())

	require.NoError(t, err)
	citations := st.results[1].Citations
	require.Len(t, citations, 1)
	assert.Equal(t, "assessment-tool.pdf", citations[0].DocumentName)
}

func TestExecute_PartiallyMetScoresHalf(t *testing.T) {
	st := newFakeStore()
	caller := &fakeCaller{responses: map[int64]*genai.Response{
		2: {Text: `{"status":"Partially Met","reasoning":"covers half","confidence":0.6,"citations":[]}`},
	}}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(2)}, st, caller)

	summary, err := r.Execute(context.Background(), testRequest())

	require.NoError(t, err)
	assert.Equal(t, models.RunCompleted, summary.Status)
	assert.InDelta(t, 0.75, summary.SuccessRate, 0.001)
}

func TestRevalidateRequirement_ReplacesStoredResult(t *testing.T) {
	st := newFakeStore()
	st.runs["run-1"] = &models.ValidationRun{
		RunID:          "run-1",
		UnitIdentifier: "BSBWHS411",
		OrgIdentifier:  "org-9",
		Status:         models.RunPartiallyFailed,
	}
	st.results[2] = models.ValidationResult{RequirementID: 2, Status: models.StatusError}

	caller := &fakeCaller{}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(3)}, st, caller)

	result, err := r.RevalidateRequirement(context.Background(), "run-1", 2, testDocuments())

	require.NoError(t, err)
	assert.Equal(t, models.StatusMet, result.Status)
	assert.Equal(t, 1, caller.calls)
	assert.Equal(t, models.StatusMet, st.results[2].Status)
}

func TestRevalidateRequirement_UnknownRun(t *testing.T) {
	r := newTestRunner(t, &fakeSource{}, newFakeStore(), &fakeCaller{})

	_, err := r.RevalidateRequirement(context.Background(), "missing", 1, testDocuments())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeRunNotFound, stderrors.CodeOf(err))
}

func TestRevalidateRequirement_UnknownRequirement(t *testing.T) {
	st := newFakeStore()
	st.runs["run-1"] = &models.ValidationRun{RunID: "run-1", UnitIdentifier: "BSBWHS411"}
	r := newTestRunner(t, &fakeSource{requirements: testRequirements(2)}, st, &fakeCaller{})

	_, err := r.RevalidateRequirement(context.Background(), "run-1", 99, testDocuments())

	require.Error(t, err)
	assert.Equal(t, stderrors.ErrCodeRequirementsNotFound, stderrors.CodeOf(err))
}
