// pkg/unitfile/unitfile.go
package unitfile

import (
	"encoding/json"
	"fmt"
	"os"
)

// Load reads and decodes a unit file from disk. It does not validate;
// call Validate separately when completeness matters.
func Load(path string) (*UnitFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var uf UnitFile
	if err := json.Unmarshal(data, &uf); err != nil {
		return nil, fmt.Errorf("failed to parse unit file %s: %w", path, err)
	}
	return &uf, nil
}

// Save writes the unit file as indented JSON.
func Save(uf *UnitFile, path string) error {
	data, err := json.MarshalIndent(uf, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal unit file: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}
	return nil
}

// Validate checks structural completeness: a unit code, and at least
// one requirement across the five sections. Individual entries must
// carry text.
func (uf *UnitFile) Validate() error {
	if uf.Code == "" {
		return fmt.Errorf("unit file missing required field: code")
	}

	total := 0
	for i, e := range uf.KnowledgeEvidence {
		if e.Text == "" {
			return fmt.Errorf("knowledgeEvidence[%d] missing text", i)
		}
		total++
	}
	for i, e := range uf.PerformanceEvidence {
		if e.Text == "" {
			return fmt.Errorf("performanceEvidence[%d] missing text", i)
		}
		total++
	}
	for i, s := range uf.FoundationSkills {
		if s.Description == "" {
			return fmt.Errorf("foundationSkills[%d] missing description", i)
		}
		total++
	}
	for i, c := range uf.PerformanceCriteria {
		if c.Text == "" {
			return fmt.Errorf("performanceCriteria[%d] missing text", i)
		}
		total++
	}
	for i, c := range uf.AssessmentConditions {
		if c == "" {
			return fmt.Errorf("assessmentConditions[%d] is empty", i)
		}
		total++
	}

	if total == 0 {
		return fmt.Errorf("unit file for %s contains no requirements", uf.Code)
	}
	return nil
}

// RequirementCount returns the total number of requirement entries
// across all five sections.
func (uf *UnitFile) RequirementCount() int {
	return len(uf.KnowledgeEvidence) +
		len(uf.PerformanceEvidence) +
		len(uf.FoundationSkills) +
		len(uf.PerformanceCriteria) +
		len(uf.AssessmentConditions)
}
