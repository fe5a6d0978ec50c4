// internal/pipeline/prompt/assembler.go
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"

	"assessment-workers/internal/models"
)

// RequestPayload is the assembled request for one model call. One
// requirement maps to exactly one payload; batching requirements into
// a single call degrades citation precision and dilutes context, so it
// is deliberately not supported.
type RequestPayload struct {
	Requirement models.Requirement
	Text        string
}

// Assemble builds the request payload for one requirement. The
// requirement is serialized as a JSON array of length 1 so the schema
// documented in the prompt stays fixed regardless of category.
func Assemble(req models.Requirement, session models.SessionContext, tmpl Template) (RequestPayload, error) {
	reqJSON, err := json.Marshal([]models.Requirement{req})
	if err != nil {
		return RequestPayload{}, fmt.Errorf("marshal requirement %d: %w", req.ID, err)
	}

	var b strings.Builder
	writeSessionHeader(&b, session)

	b.WriteString(tmpl.Guidance)
	b.WriteString("\n\n")

	b.WriteString("The requirement to validate is provided as a JSON array:\n")
	b.Write(reqJSON)
	b.WriteString("\n\n")

	b.WriteString("Respond with a single JSON object matching this schema, and nothing else:\n")
	b.WriteString(tmpl.OutputSchema)
	b.WriteString("\n")

	return RequestPayload{Requirement: req, Text: b.String()}, nil
}

// writeSessionHeader emits the clearly delimited isolation envelope.
// The ordinal tells the model where it is in the batch without
// exposing any other requirement's content.
func writeSessionHeader(b *strings.Builder, session models.SessionContext) {
	b.WriteString("=== VALIDATION SESSION ===\n")
	fmt.Fprintf(b, "Session ID: %s\n", session.SessionID)
	fmt.Fprintf(b, "Unit of competency: %s\n", session.UnitIdentifier)
	fmt.Fprintf(b, "Organisation: %s\n", session.OrgIdentifier)
	fmt.Fprintf(b, "Requirement %d of %d in this validation run\n", session.PositionInBatch, session.BatchSize)
	b.WriteString("Documents available as evidence, in manifest order:\n")
	for i, doc := range session.Documents {
		fmt.Fprintf(b, "  %d. %s (%s)\n", i+1, doc.FileName, doc.DocumentType)
	}
	b.WriteString("Evidence drawn from any document not listed above is invalid and must not be cited.\n")
	b.WriteString("=== END SESSION ===\n\n")
}
