// internal/models/requirement.go
package models

// RequirementCategory identifies which of the five source tables a
// requirement was loaded from. The category decides the prompt template
// and the output schema used for validation.
type RequirementCategory string

const (
	CategoryKnowledgeEvidence           RequirementCategory = "knowledge_evidence"
	CategoryPerformanceEvidence         RequirementCategory = "performance_evidence"
	CategoryFoundationSkills            RequirementCategory = "foundation_skills"
	CategoryElementsPerformanceCriteria RequirementCategory = "performance_criteria"
	CategoryAssessmentConditions        RequirementCategory = "assessment_conditions"
)

// AllCategories lists every category in the order requirements are
// processed within a run.
var AllCategories = []RequirementCategory{
	CategoryKnowledgeEvidence,
	CategoryPerformanceEvidence,
	CategoryFoundationSkills,
	CategoryElementsPerformanceCriteria,
	CategoryAssessmentConditions,
}

// IsValid reports whether c is one of the five known categories.
func (c RequirementCategory) IsValid() bool {
	for _, known := range AllCategories {
		if c == known {
			return true
		}
	}
	return false
}

// Requirement is one unit of competency to validate. ID is immutable
// once created and unique within a unit.
type Requirement struct {
	ID             int64               `json:"id"`
	UnitIdentifier string              `json:"unitIdentifier"`
	Category       RequirementCategory `json:"category"`
	Number         string              `json:"number"`
	Text           string              `json:"text"`
	ParentElement  string              `json:"parentElement,omitempty"`
}
