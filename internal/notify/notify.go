// Package notify carries notification intents to the external delivery
// collaborator. The engine only says what should be sent and to whom;
// transport to email/SMS/push is someone else's job.
package notify

import (
	"context"

	"github.com/google/uuid"
)

// Kind classifies a notification intent.
type Kind string

const (
	KindAssignmentExpired    Kind = "assignment_expired"
	KindAssignmentEscalation Kind = "assignment_escalation"
	KindAssignmentReminder   Kind = "assignment_reminder"
)

// RoleAdmin addresses operators rather than a specific recipient.
const RoleAdmin = "admin"

// Notification is one intent to notify a recipient (or a role) about an
// assignment lifecycle event.
type Notification struct {
	Kind        Kind           `json:"kind"`
	RecipientID *uuid.UUID     `json:"recipient_id,omitempty"`
	Role        string         `json:"role,omitempty"`
	Payload     map[string]any `json:"payload"`
}

// Emitter hands notification intents to the delivery collaborator.
// Emission is fire-and-forget from the engine's perspective: a failed emit
// is logged by the caller and never rolls back persisted state.
type Emitter interface {
	Emit(ctx context.Context, n Notification) error
	Close() error
}

// NopEmitter discards notifications; used in development when no broker is
// available and in tests.
type NopEmitter struct{}

func (NopEmitter) Emit(ctx context.Context, n Notification) error { return nil }
func (NopEmitter) Close() error                                   { return nil }
