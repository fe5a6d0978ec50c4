// internal/pipeline/citations/merger.go

// Package citations reconciles the model's self-reported citations
// with the provider's grounding metadata into one canonical evidence
// list.
package citations

import (
	"strings"

	"assessment-workers/internal/common/genai"
	"assessment-workers/internal/models"
)

// Merge builds the canonical evidence list for one validation result.
//
// Provider grounding is authoritative for document identity: the
// provider cannot attribute a document that was not retrieved, so a
// model citation naming a document outside the session's manifest is
// discarded. The model's inline text is authoritative for the
// human-readable relevance explanation. When both sources describe
// what is plausibly the same evidence span, they combine into one
// entry rather than duplicating. Deduplication key is
// (documentName, location).
func Merge(modelCitations []models.Citation, grounding []genai.GroundingAttribution, manifest []models.DocumentReference) []models.Citation {
	known := manifestIndex(manifest)

	merged := make([]models.Citation, 0, len(modelCitations)+len(grounding))
	seen := make(map[citationKey]bool)

	// Model citations first, in the model's order, filtered to the
	// session manifest.
	for _, c := range modelCitations {
		name, ok := known[normalizeName(c.DocumentName)]
		if !ok {
			continue
		}
		c.DocumentName = name

		key := keyOf(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, c)
	}

	// Grounding attributions either enrich an existing entry for the
	// same document or append as a new one.
	for _, g := range grounding {
		name := resolveGroundingDoc(g, manifest)
		if name == "" {
			continue
		}

		if i := matchForEnrichment(merged, name, g); i >= 0 {
			if merged[i].Excerpt == "" {
				merged[i].Excerpt = groundingExcerpt(g)
			}
			continue
		}

		c := models.Citation{
			DocumentName: name,
			Location:     g.Segment,
			Excerpt:      groundingExcerpt(g),
		}
		key := keyOf(c)
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, c)
	}

	return merged
}

type citationKey struct {
	document string
	location string
}

func keyOf(c models.Citation) citationKey {
	return citationKey{
		document: normalizeName(c.DocumentName),
		location: strings.ToLower(strings.TrimSpace(c.Location)),
	}
}

func manifestIndex(manifest []models.DocumentReference) map[string]string {
	idx := make(map[string]string, len(manifest))
	for _, doc := range manifest {
		idx[normalizeName(doc.FileName)] = doc.FileName
	}
	return idx
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// resolveGroundingDoc maps an attribution back to a manifest document,
// by provider file URI first and display title second. Attributions
// that resolve to nothing in the manifest are dropped: they belong to
// another session.
func resolveGroundingDoc(g genai.GroundingAttribution, manifest []models.DocumentReference) string {
	for _, doc := range manifest {
		if g.DocumentURI != "" && g.DocumentURI == doc.ProviderFileURI {
			return doc.FileName
		}
	}
	for _, doc := range manifest {
		if g.Title != "" && normalizeName(g.Title) == normalizeName(doc.FileName) {
			return doc.FileName
		}
	}
	return ""
}

// matchForEnrichment finds a model citation for the same document that
// plausibly describes the same span: either its excerpt overlaps the
// grounding excerpt, or it is the only citation for that document.
func matchForEnrichment(merged []models.Citation, docName string, g genai.GroundingAttribution) int {
	candidate := -1
	count := 0
	excerpt := groundingExcerpt(g)

	for i, c := range merged {
		if normalizeName(c.DocumentName) != normalizeName(docName) {
			continue
		}
		count++
		if candidate < 0 {
			candidate = i
		}
		if excerpt != "" && c.Excerpt != "" && overlaps(c.Excerpt, excerpt) {
			return i
		}
	}

	if count == 1 {
		return candidate
	}
	return -1
}

func overlaps(a, b string) bool {
	a, b = strings.ToLower(a), strings.ToLower(b)
	const window = 40
	probe := b
	if len(probe) > window {
		probe = probe[:window]
	}
	if strings.Contains(a, probe) {
		return true
	}
	probe = a
	if len(probe) > window {
		probe = probe[:window]
	}
	return strings.Contains(b, probe)
}

func groundingExcerpt(g genai.GroundingAttribution) string {
	if g.Excerpt != "" {
		return g.Excerpt
	}
	return g.Segment
}
