// internal/models/session.go
package models

import "time"

// SessionContext is the isolation envelope attached to every model call
// in a validation run. It is created once at the start of a run and
// immutable thereafter; a model call may only consider documents listed
// in its session's manifest.
type SessionContext struct {
	SessionID       string              `json:"sessionId"`
	CreatedAt       time.Time           `json:"createdAt"`
	UnitIdentifier  string              `json:"unitIdentifier"`
	OrgIdentifier   string              `json:"orgIdentifier"`
	Documents       []DocumentReference `json:"documents"`
	PositionInBatch int                 `json:"positionInBatch"`
	BatchSize       int                 `json:"batchSize"`
}

// AtPosition returns a copy of the context with the batch ordinal set.
// The shared fields (session id, manifest, identifiers) never change
// per call, only the position does.
func (s SessionContext) AtPosition(position, total int) SessionContext {
	s.PositionInBatch = position
	s.BatchSize = total
	return s
}
