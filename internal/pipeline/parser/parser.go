// internal/pipeline/parser/parser.go

// Package parser turns raw model output into exactly one typed
// ValidationResult. LLM output is not a reliable machine protocol, so
// parsing is layered: fence strip, direct parse, balanced-span
// extraction, schema check and status coercion, and finally a sentinel
// result. The rest of the system never sees raw text past this
// boundary and never sees an error from it.
package parser

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"

	"assessment-workers/internal/common/metrics"
	"assessment-workers/internal/models"
)

// Fallback layers, recorded per parse for observability.
const (
	LayerDirect    = "direct"
	LayerExtracted = "extracted"
	LayerSentinel  = "sentinel"
)

// maxExcerptLen bounds the raw-text excerpt carried into a sentinel
// result's reasoning.
const maxExcerptLen = 500

// ModelOutput is the parse outcome for one requirement. Citations on
// the result are the model's self-reported ones; the citation merger
// reconciles them with provider grounding afterwards.
type ModelOutput struct {
	Result        models.ValidationResult
	FallbackLayer string
	SchemaValid   bool
}

// Parser validates parsed objects against the expected response schema.
type Parser struct {
	schema *gojsonschema.Schema
}

// New compiles the expected output schema. The schema is shared across
// categories, so one parser serves the whole pipeline.
func New(schemaJSON string) (*Parser, error) {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}
	return &Parser{schema: schema}, nil
}

// wireResponse tolerates the field shapes the model actually produces.
type wireResponse struct {
	Status          string         `json:"status"`
	Reasoning       string         `json:"reasoning"`
	MappedContent   string         `json:"mappedContent"`
	UnmappedContent string         `json:"unmappedContent"`
	Recommendations string         `json:"recommendations"`
	Citations       []wireCitation `json:"citations"`
	SmartQuestion   string         `json:"smartQuestion"`
	BenchmarkAnswer string         `json:"benchmarkAnswer"`
	Confidence      *float64       `json:"confidence"`
}

type wireCitation struct {
	DocumentName  string `json:"documentName"`
	Location      string `json:"location"`
	Excerpt       string `json:"excerpt"`
	RelevanceNote string `json:"relevanceNote"`
}

// Parse extracts a ValidationResult from raw model text. It never
// fails: malformed input degrades to a sentinel Error result so the
// one-requirement-in, one-result-out contract holds unconditionally.
func (p *Parser) Parse(requirementID int64, raw string) ModelOutput {
	stripped := stripFences(raw)

	if out, ok := p.tryParse(requirementID, stripped, LayerDirect); ok {
		return out
	}

	if span, found := balancedSpan(stripped); found {
		if out, ok := p.tryParse(requirementID, span, LayerExtracted); ok {
			return out
		}
	}

	metrics.ParseFallbacks.WithLabelValues(LayerSentinel).Inc()
	return ModelOutput{
		Result:        sentinelResult(requirementID, raw),
		FallbackLayer: LayerSentinel,
	}
}

func (p *Parser) tryParse(requirementID int64, text, layer string) (ModelOutput, bool) {
	var wire wireResponse
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return ModelOutput{}, false
	}

	status, ok := CoerceStatus(wire.Status)
	if !ok {
		return ModelOutput{}, false
	}

	schemaValid := false
	if result, err := p.schema.Validate(gojsonschema.NewStringLoader(text)); err == nil {
		schemaValid = result.Valid()
	}

	confidence := 0.5
	if wire.Confidence != nil {
		confidence = *wire.Confidence
		if confidence < 0 || confidence > 1 {
			confidence = 0.5
		}
	}

	citations := make([]models.Citation, 0, len(wire.Citations))
	for _, c := range wire.Citations {
		citations = append(citations, models.Citation{
			DocumentName:  c.DocumentName,
			Location:      c.Location,
			Excerpt:       c.Excerpt,
			RelevanceNote: c.RelevanceNote,
		})
	}

	metrics.ParseFallbacks.WithLabelValues(layer).Inc()
	return ModelOutput{
		Result: models.ValidationResult{
			RequirementID:   requirementID,
			Status:          status,
			Reasoning:       wire.Reasoning,
			MappedContent:   wire.MappedContent,
			UnmappedContent: wire.UnmappedContent,
			Recommendations: wire.Recommendations,
			Citations:       citations,
			SmartQuestion:   wire.SmartQuestion,
			BenchmarkAnswer: wire.BenchmarkAnswer,
			Confidence:      confidence,
			CreatedAt:       time.Now().UTC(),
		},
		FallbackLayer: layer,
		SchemaValid:   schemaValid,
	}, true
}

func sentinelResult(requirementID int64, raw string) models.ValidationResult {
	excerpt := strings.TrimSpace(raw)
	if len(excerpt) > maxExcerptLen {
		// Cut on a rune boundary so the excerpt stays valid UTF-8.
		cut := maxExcerptLen
		for cut > 0 && !utf8.RuneStart(excerpt[cut]) {
			cut--
		}
		excerpt = excerpt[:cut] + "..."
	}
	return models.ValidationResult{
		RequirementID: requirementID,
		Status:        models.StatusError,
		Reasoning:     fmt.Sprintf("model response could not be parsed as JSON; raw output: %s", excerpt),
		Citations:     []models.Citation{},
		Confidence:    0,
		CreatedAt:     time.Now().UTC(),
	}
}

// CoerceStatus maps the status-string variants seen in real model
// output onto the canonical three-value enum.
func CoerceStatus(raw string) (models.ValidationStatus, bool) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	normalized = strings.NewReplacer("-", " ", "_", " ").Replace(normalized)
	normalized = strings.Join(strings.Fields(normalized), " ")

	switch normalized {
	case "met", "fully met", "satisfied":
		return models.StatusMet, true
	case "partially met", "partial met", "partial", "partially", "partly met":
		return models.StatusPartiallyMet, true
	case "not met", "notmet", "unmet", "not satisfied":
		return models.StatusNotMet, true
	}
	return "", false
}

// stripFences removes a surrounding markdown code fence, with or
// without a language tag.
func stripFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	// Drop the opening fence line (``` or ```json).
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	} else {
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "```"))
	}

	if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
		trimmed = trimmed[:idx]
	}
	return strings.TrimSpace(trimmed)
}

// balancedSpan locates the first balanced {...} object in text,
// tracking string and escape state so braces inside JSON strings do
// not confuse the depth count.
func balancedSpan(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1], true
				}
			}
		}
	}
	return "", false
}
