// internal/pipeline/prompt/templates.go

// Package prompt holds the versioned prompt template registry and the
// assembler that turns one requirement plus its session context into
// the final model request payload.
package prompt

import (
	"fmt"

	"assessment-workers/internal/common/errors"
	"assessment-workers/internal/models"
)

// Template is one category-specific prompt: guidance text for the
// model and the JSON schema its output must match.
type Template struct {
	Category     models.RequirementCategory
	Version      string
	Guidance     string
	OutputSchema string
}

type registryKey struct {
	category models.RequirementCategory
	version  string
}

// Registry resolves templates by (category, version). The version is
// pinned per run so a run's prompts never change under it, even when a
// newer template set ships mid-run.
type Registry struct {
	templates map[registryKey]Template
}

func NewRegistry() *Registry {
	return &Registry{templates: make(map[registryKey]Template)}
}

// Register adds a template, replacing any previous registration for
// the same (category, version).
func (r *Registry) Register(t Template) {
	r.templates[registryKey{t.Category, t.Version}] = t
}

// Lookup returns the template for a category/version pair, failing
// fast when it is missing rather than substituting a generic prompt.
func (r *Registry) Lookup(category models.RequirementCategory, version string) (Template, error) {
	t, ok := r.templates[registryKey{category, version}]
	if !ok {
		return Template{}, errors.NewTemplateNotFoundError(string(category), version)
	}
	return t, nil
}

// OutputSchema is the JSON schema every validation response must
// match, shared across categories so the parser's expectations stay
// fixed regardless of requirement type.
const OutputSchema = `{
  "type": "object",
  "properties": {
    "status": {
      "type": "string",
      "enum": ["Met", "Partially Met", "Not Met"]
    },
    "reasoning": {"type": "string"},
    "mappedContent": {"type": "string"},
    "unmappedContent": {"type": "string"},
    "recommendations": {"type": "string"},
    "citations": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "documentName": {"type": "string"},
          "location": {"type": "string"},
          "excerpt": {"type": "string"},
          "relevanceNote": {"type": "string"}
        },
        "required": ["documentName", "location"]
      }
    },
    "smartQuestion": {"type": "string"},
    "benchmarkAnswer": {"type": "string"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1}
  },
  "required": ["status", "reasoning"]
}`

const commonRules = `Rules:
- Judge the requirement ONLY against the documents listed in the session header. Evidence from anywhere else is invalid.
- Cite the document name and the location (section, page, question number) for every piece of evidence.
- If the evidence only partially addresses the requirement, say exactly what is covered and what is missing.
- When the status is "Not Met" or "Partially Met", propose one smartQuestion an assessor could add, with a benchmarkAnswer.
- Return a confidence score between 0.0 and 1.0.`

var guidanceByCategory = map[models.RequirementCategory]string{
	models.CategoryKnowledgeEvidence: `You are validating a Knowledge Evidence requirement from a unit of competency.
Determine whether the assessment documents require the learner to demonstrate this knowledge. Look for written questions, scenarios, and knowledge checks that address the requirement directly, not merely mention its topic.`,

	models.CategoryPerformanceEvidence: `You are validating a Performance Evidence requirement from a unit of competency.
Determine whether the assessment documents require the learner to actually perform this task and have that performance observed or recorded. Knowledge questions alone do not satisfy performance evidence.`,

	models.CategoryFoundationSkills: `You are validating a Foundation Skills requirement (language, literacy, numeracy, employment skills) from a unit of competency.
Determine whether the assessment tasks give the learner an opportunity to apply this skill and whether its application is assessed. The skill may be embedded in other tasks rather than assessed standalone.`,

	models.CategoryElementsPerformanceCriteria: `You are validating a Performance Criterion belonging to an element of a unit of competency.
The parent element is included with the requirement. Determine whether the assessment documents assess the criterion to the standard the element requires, in the workplace context the unit describes.`,

	models.CategoryAssessmentConditions: `You are validating an Assessment Conditions requirement from a unit of competency.
Determine whether the assessment documents establish that assessment occurs under these conditions: required environment, equipment, supervision arrangements, and assessor requirements.`,
}

// DefaultRegistry returns the registry pre-loaded with the v1 template
// set for all five categories.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for category, guidance := range guidanceByCategory {
		r.Register(Template{
			Category:     category,
			Version:      "v1",
			Guidance:     fmt.Sprintf("%s\n\n%s", guidance, commonRules),
			OutputSchema: OutputSchema,
		})
	}
	return r
}
