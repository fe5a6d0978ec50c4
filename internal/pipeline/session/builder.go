// internal/pipeline/session/builder.go

// Package session constructs the isolation envelope attached to every
// model call in a validation run. Evidence scoping is never left to
// ambient call order or timestamps: each call carries its own explicit
// SessionContext, so citations from one run cannot bleed into another.
package session

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"assessment-workers/internal/common/errors"
	"assessment-workers/internal/models"
)

// Build creates the SessionContext for one validation run. Documents
// are ordered by (UploadedAt, FileName) so repeated runs over the same
// inputs produce byte-identical context text. A run without documents
// is rejected: a validation call with no source material cannot judge
// anything.
func Build(runID, unitIdentifier, orgIdentifier string, documents []models.DocumentReference) (models.SessionContext, error) {
	if len(documents) == 0 {
		return models.SessionContext{}, errors.NewEmptyDocumentSetError(runID)
	}

	ordered := make([]models.DocumentReference, len(documents))
	copy(ordered, documents)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].UploadedAt.Equal(ordered[j].UploadedAt) {
			return ordered[i].UploadedAt.Before(ordered[j].UploadedAt)
		}
		return ordered[i].FileName < ordered[j].FileName
	})

	return models.SessionContext{
		SessionID:      uuid.NewString(),
		CreatedAt:      time.Now().UTC(),
		UnitIdentifier: unitIdentifier,
		OrgIdentifier:  orgIdentifier,
		Documents:      ordered,
	}, nil
}

// Contains reports whether uri belongs to the session's document
// manifest. Any reference used in a call must pass this check.
func Contains(session models.SessionContext, uri string) bool {
	for _, doc := range session.Documents {
		if doc.ProviderFileURI == uri {
			return true
		}
	}
	return false
}
