// internal/pipeline/normalizer/normalizer_test.go
package normalizer

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assessment-workers/internal/common/errors"
	"assessment-workers/internal/common/logger"
	"assessment-workers/internal/models"
)

const unitLink = "https://training.gov.au/training/details/CPCCWHS1001"

func newTestNormalizer(t *testing.T) (*Normalizer, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return New(db, logger.NewTestLogger(t)), mock
}

func expectUnitLookup(mock sqlmock.Sqlmock, code, link string) {
	rows := sqlmock.NewRows([]string{"code", "link"}).AddRow(code, link)
	mock.ExpectQuery(`SELECT code, link FROM units`).
		WithArgs(code).
		WillReturnRows(rows)
}

func TestNormalize_PrefersURLShapedLink(t *testing.T) {
	n, mock := newTestNormalizer(t)

	expectUnitLookup(mock, "CPCCWHS1001", unitLink)

	// Every category query must be keyed by unit_link, not unit_code.
	mock.ExpectQuery(`FROM knowledge_evidence WHERE unit_link`).
		WithArgs(unitLink).
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_number", "knowledge_text"}).
			AddRow(int64(1), "1.1", "Explain WHS duty holder responsibilities").
			AddRow(int64(2), "1.2", "Explain lockout/tagout procedures"))

	reqs, err := n.Normalize(context.Background(), "CPCCWHS1001", models.CategoryKnowledgeEvidence)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, int64(1), reqs[0].ID)
	assert.Equal(t, "1.1", reqs[0].Number)
	assert.Equal(t, models.CategoryKnowledgeEvidence, reqs[0].Category)
	assert.Equal(t, "CPCCWHS1001", reqs[0].UnitIdentifier)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalize_FallsBackToUnitCode(t *testing.T) {
	n, mock := newTestNormalizer(t)

	// Unit record exists but has no URL-shaped link.
	expectUnitLookup(mock, "CPCCWHS1001", "")

	mock.ExpectQuery(`FROM performance_evidence WHERE unit_code`).
		WithArgs("CPCCWHS1001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_number", "evidence_text"}).
			AddRow(int64(10), nil, "Demonstrate safe manual handling"))

	reqs, err := n.Normalize(context.Background(), "CPCCWHS1001", models.CategoryPerformanceEvidence)
	require.NoError(t, err)
	require.Len(t, reqs, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNormalize_SynthesizesNumberWhenAbsent(t *testing.T) {
	n, mock := newTestNormalizer(t)

	expectUnitLookup(mock, "CPCCWHS1001", "")

	mock.ExpectQuery(`FROM assessment_conditions WHERE unit_code`).
		WithArgs("CPCCWHS1001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "condition_text"}).
			AddRow(int64(30), "Assessment must occur in a simulated workplace").
			AddRow(int64(31), "Assessor must hold a current trade qualification"))

	reqs, err := n.Normalize(context.Background(), "CPCCWHS1001", models.CategoryAssessmentConditions)
	require.NoError(t, err)
	require.Len(t, reqs, 2)

	assert.Equal(t, "1", reqs[0].Number)
	assert.Equal(t, "2", reqs[1].Number)
}

func TestNormalize_PerformanceCriteriaCarriesParentElement(t *testing.T) {
	n, mock := newTestNormalizer(t)

	expectUnitLookup(mock, "CPCCWHS1001", "")

	mock.ExpectQuery(`FROM performance_criteria WHERE unit_code`).
		WithArgs("CPCCWHS1001").
		WillReturnRows(sqlmock.NewRows([]string{"id", "criterion_number", "criterion_text", "element_name"}).
			AddRow(int64(20), "1.3", "Identify hazards in the work area", "Element 1: Prepare for work"))

	reqs, err := n.Normalize(context.Background(), "CPCCWHS1001", models.CategoryElementsPerformanceCriteria)
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	assert.Equal(t, "1.3", reqs[0].Number)
	assert.Equal(t, "Element 1: Prepare for work", reqs[0].ParentElement)
}

func TestNormalize_UnknownUnit_SameErrorAsEmpty(t *testing.T) {
	n, mock := newTestNormalizer(t)

	// No unit record at all: fall through to a code-keyed lookup that
	// finds nothing.
	mock.ExpectQuery(`SELECT code, link FROM units`).
		WithArgs("MADEUP999").
		WillReturnRows(sqlmock.NewRows([]string{"code", "link"}))

	mock.ExpectQuery(`FROM knowledge_evidence WHERE unit_code`).
		WithArgs("MADEUP999").
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_number", "knowledge_text"}))

	_, err := n.Normalize(context.Background(), "MADEUP999", models.CategoryKnowledgeEvidence)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeRequirementsNotFound, errors.CodeOf(err))
}

func TestNormalize_AllCategoriesInOrder(t *testing.T) {
	n, mock := newTestNormalizer(t)

	expectUnitLookup(mock, "CPCCWHS1001", "")

	mock.ExpectQuery(`FROM knowledge_evidence`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_number", "knowledge_text"}).
			AddRow(int64(1), "1", "KE one"))
	mock.ExpectQuery(`FROM performance_evidence`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "evidence_number", "evidence_text"}).
			AddRow(int64(2), "1", "PE one"))
	mock.ExpectQuery(`FROM foundation_skills`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "skill_name", "skill_description"}).
			AddRow(int64(3), "Reading", "Interprets safety signage"))
	mock.ExpectQuery(`FROM performance_criteria`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "criterion_number", "criterion_text", "element_name"}).
			AddRow(int64(4), "1.1", "PC one", "Element 1"))
	mock.ExpectQuery(`FROM assessment_conditions`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "condition_text"}).
			AddRow(int64(5), "AC one"))

	reqs, err := n.Normalize(context.Background(), "CPCCWHS1001")
	require.NoError(t, err)
	require.Len(t, reqs, 5)

	assert.Equal(t, models.CategoryKnowledgeEvidence, reqs[0].Category)
	assert.Equal(t, models.CategoryPerformanceEvidence, reqs[1].Category)
	assert.Equal(t, models.CategoryFoundationSkills, reqs[2].Category)
	assert.Equal(t, models.CategoryElementsPerformanceCriteria, reqs[3].Category)
	assert.Equal(t, models.CategoryAssessmentConditions, reqs[4].Category)

	// Foundation skills prepend the skill name to the statement.
	assert.Equal(t, "Reading: Interprets safety signage", reqs[2].Text)
}

func TestNormalize_UnknownCategoryRejected(t *testing.T) {
	n, _ := newTestNormalizer(t)

	_, err := n.Normalize(context.Background(), "CPCCWHS1001", models.RequirementCategory("nonsense"))
	require.Error(t, err)
}
