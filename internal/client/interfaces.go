package client

import (
	"context"

	"github.com/invoq-hq/be-approvals/internal/repository"
)

// DocumentStore is the engine's view of the document (invoice) service. The
// engine reads amounts and pushes status transitions; everything else about
// documents is somebody else's problem.
type DocumentStore interface {
	// GetAmount returns the document's total amount in cents.
	GetAmount(ctx context.Context, entityID, documentID string) (int64, error)
	// SetStatus propagates an approval outcome to the document.
	SetStatus(ctx context.Context, entityID, documentID, status string) error
}

// Document statuses the engine propagates.
const (
	DocumentStatusInReview = "in_review"
	DocumentStatusApproved = "approved"
	DocumentStatusRejected = "rejected"
	DocumentStatusDraft    = "draft"
)

// IdentityResolver answers "may this actor decide at this step" and reports
// the roles an actor holds, so role-form approver entries work both for
// authorization and for the pending-approvals inbox.
type IdentityResolver interface {
	IsApprover(ctx context.Context, entityID, actorID string, step repository.Step) (bool, error)
	Roles(ctx context.Context, entityID, actorID string) ([]string, error)
}

// NotificationDispatcher delivers workflow events best-effort. Implementations
// never return errors to callers; failures are logged and dropped.
type NotificationDispatcher interface {
	Send(ctx context.Context, event *NotificationEvent)
}

// Event types published on instance state changes.
const (
	EventSubmitted    = "submitted"
	EventAutoApproved = "auto_approved"
	EventStepAdvanced = "step_advanced"
	EventApproved     = "approved"
	EventRejected     = "rejected"
	EventCancelled    = "cancelled"
)

// NotificationEvent is the JSON schema published to the notification stream.
type NotificationEvent struct {
	EventType  string         `json:"event_type"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients"`
	InstanceID string         `json:"instance_id"`
	DocumentID string         `json:"document_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}
