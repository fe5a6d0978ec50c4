// pkg/unitfile/schema.go
package unitfile

// UnitFile is the JSON interchange format for a unit of competency and
// its requirement sets. Section shapes mirror the five source tables so
// a file round-trips into the database without loss.
type UnitFile struct {
	Version              string                `json:"version"`
	LastUpdated          string                `json:"lastUpdated"`
	Code                 string                `json:"code"`
	Title                string                `json:"title"`
	Link                 string                `json:"link,omitempty"`
	KnowledgeEvidence    []EvidenceItem        `json:"knowledgeEvidence"`
	PerformanceEvidence  []EvidenceItem        `json:"performanceEvidence"`
	FoundationSkills     []FoundationSkill     `json:"foundationSkills"`
	PerformanceCriteria  []PerformanceCriterion `json:"performanceCriteria"`
	AssessmentConditions []string              `json:"assessmentConditions"`
}

// EvidenceItem is a numbered requirement line, shared by the knowledge
// and performance evidence sections.
type EvidenceItem struct {
	Number string `json:"number,omitempty"`
	Text   string `json:"text"`
}

type FoundationSkill struct {
	Skill       string `json:"skill"`
	Description string `json:"description"`
}

// PerformanceCriterion carries the element it nests under, e.g.
// criterion 1.2 under element "Prepare for work".
type PerformanceCriterion struct {
	Number  string `json:"number"`
	Text    string `json:"text"`
	Element string `json:"element,omitempty"`
}
