// internal/models/result.go
package models

import "time"

// ValidationStatus is the canonical outcome of validating one
// requirement. Nothing outside this set ever escapes the response
// parser, regardless of the raw strings the model produces.
type ValidationStatus string

const (
	StatusMet          ValidationStatus = "MET"
	StatusPartiallyMet ValidationStatus = "PARTIALLY_MET"
	StatusNotMet       ValidationStatus = "NOT_MET"
	StatusError        ValidationStatus = "ERROR"
)

// IsValid reports whether s is one of the four canonical statuses.
func (s ValidationStatus) IsValid() bool {
	switch s {
	case StatusMet, StatusPartiallyMet, StatusNotMet, StatusError:
		return true
	}
	return false
}

// Citation is one piece of supporting evidence for a validation
// outcome, reconciled from the model's self-reported citations and the
// provider's grounding metadata.
type Citation struct {
	DocumentName  string `json:"documentName"`
	Location      string `json:"location"`
	Excerpt       string `json:"excerpt,omitempty"`
	RelevanceNote string `json:"relevanceNote,omitempty"`
}

// ValidationResult is the durable outcome of validating one
// requirement. At most one exists per (runID, requirementID); a
// revalidation replaces the row wholesale, never patches it.
type ValidationResult struct {
	RequirementID   int64            `json:"requirementId"`
	Status          ValidationStatus `json:"status"`
	Reasoning       string           `json:"reasoning"`
	MappedContent   string           `json:"mappedContent,omitempty"`
	UnmappedContent string           `json:"unmappedContent,omitempty"`
	Recommendations string           `json:"recommendations,omitempty"`
	Citations       []Citation       `json:"citations"`
	SmartQuestion   string           `json:"smartQuestion,omitempty"`
	BenchmarkAnswer string           `json:"benchmarkAnswer,omitempty"`
	Confidence      float64          `json:"confidence"`
	CreatedAt       time.Time        `json:"createdAt"`
}
