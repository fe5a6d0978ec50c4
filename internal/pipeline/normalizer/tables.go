// internal/pipeline/normalizer/tables.go
package normalizer

import (
	"database/sql"
	"fmt"

	"assessment-workers/internal/models"
)

// The five source tables carry inconsistent column names and optional
// fields; each gets its own query and scan shape, normalized into the
// one Requirement struct. Every query filters on whichever linking key
// the unit resolved to and orders by id so a run's requirement order
// is stable.

type tableSpec struct {
	category models.RequirementCategory
	query    func(keyColumn string) string
	scan     func(rows *sql.Rows) (models.Requirement, error)
}

var tableSpecs = []tableSpec{
	{
		category: models.CategoryKnowledgeEvidence,
		query: func(key string) string {
			return fmt.Sprintf(
				`SELECT id, evidence_number, knowledge_text FROM knowledge_evidence WHERE %s = $1 ORDER BY id`, key)
		},
		scan: func(rows *sql.Rows) (models.Requirement, error) {
			var r models.Requirement
			var number sql.NullString
			if err := rows.Scan(&r.ID, &number, &r.Text); err != nil {
				return r, err
			}
			r.Number = number.String
			return r, nil
		},
	},
	{
		category: models.CategoryPerformanceEvidence,
		query: func(key string) string {
			return fmt.Sprintf(
				`SELECT id, evidence_number, evidence_text FROM performance_evidence WHERE %s = $1 ORDER BY id`, key)
		},
		scan: func(rows *sql.Rows) (models.Requirement, error) {
			var r models.Requirement
			var number sql.NullString
			if err := rows.Scan(&r.ID, &number, &r.Text); err != nil {
				return r, err
			}
			r.Number = number.String
			return r, nil
		},
	},
	{
		category: models.CategoryFoundationSkills,
		query: func(key string) string {
			return fmt.Sprintf(
				`SELECT id, skill_name, skill_description FROM foundation_skills WHERE %s = $1 ORDER BY id`, key)
		},
		scan: func(rows *sql.Rows) (models.Requirement, error) {
			var r models.Requirement
			var skillName string
			if err := rows.Scan(&r.ID, &skillName, &r.Text); err != nil {
				return r, err
			}
			// Foundation skills carry no ordinal; the skill name is
			// the closest human-facing label.
			if skillName != "" {
				r.Text = fmt.Sprintf("%s: %s", skillName, r.Text)
			}
			return r, nil
		},
	},
	{
		category: models.CategoryElementsPerformanceCriteria,
		query: func(key string) string {
			return fmt.Sprintf(
				`SELECT id, criterion_number, criterion_text, element_name FROM performance_criteria WHERE %s = $1 ORDER BY id`, key)
		},
		scan: func(rows *sql.Rows) (models.Requirement, error) {
			var r models.Requirement
			var number, element sql.NullString
			if err := rows.Scan(&r.ID, &number, &r.Text, &element); err != nil {
				return r, err
			}
			r.Number = number.String
			r.ParentElement = element.String
			return r, nil
		},
	},
	{
		category: models.CategoryAssessmentConditions,
		query: func(key string) string {
			return fmt.Sprintf(
				`SELECT id, condition_text FROM assessment_conditions WHERE %s = $1 ORDER BY id`, key)
		},
		scan: func(rows *sql.Rows) (models.Requirement, error) {
			var r models.Requirement
			if err := rows.Scan(&r.ID, &r.Text); err != nil {
				return r, err
			}
			return r, nil
		},
	},
}
