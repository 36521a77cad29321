// Package reassign triggers the external matching collaborator after an
// assignment expires. The engine only fires the request with its exclusion
// constraint; the matching algorithm itself lives elsewhere.
package reassign

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Request asks the matching collaborator to find a new doctor for a case.
// Duplicate requests for the same case and exclusion set are tolerated by
// the matcher, so the caller may fire at-least-once.
type Request struct {
	CaseID            uuid.UUID   `json:"case_id"`
	ExcludedDoctorIDs []uuid.UUID `json:"excluded_doctor_ids"`
	Attempt           int         `json:"attempt"`
	RequestedAt       time.Time   `json:"requested_at"`
}

// Requester fires reassignment requests toward the matching collaborator.
type Requester interface {
	Request(ctx context.Context, req Request) error
	Close() error
}

// NopRequester discards requests; used in development and tests.
type NopRequester struct{}

func (NopRequester) Request(ctx context.Context, req Request) error { return nil }
func (NopRequester) Close() error                                   { return nil }
