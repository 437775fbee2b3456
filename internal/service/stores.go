package service

import (
	"context"
	"time"

	"github.com/invoq-hq/be-approvals/internal/repository"
)

// Store interfaces are declared service-side so the services can be exercised
// against in-memory fakes; the repository types satisfy them.

// DefinitionStore is the workflow definition persistence surface.
type DefinitionStore interface {
	Create(ctx context.Context, def *repository.WorkflowDefinition) error
	GetByID(ctx context.Context, id, entityID string) (*repository.WorkflowDefinition, error)
	ListActive(ctx context.Context, entityID string) ([]*repository.WorkflowDefinition, error)
	Update(ctx context.Context, def *repository.WorkflowDefinition) error
	Deactivate(ctx context.Context, id, entityID string) error
}

// InstanceStore is the approval instance persistence surface.
type InstanceStore interface {
	Create(ctx context.Context, inst *repository.ApprovalInstance, hook repository.TxHook) error
	GetByID(ctx context.Context, id string) (*repository.ApprovalInstance, error)
	GetOpenByDocumentID(ctx context.Context, entityID, documentID string) (*repository.ApprovalInstance, error)
	RecordDecision(ctx context.Context, w repository.DecisionWrite) error
}

// ActionStore reads the append-only action log.
type ActionStore interface {
	ListByInstance(ctx context.Context, instanceID string) ([]*repository.ApprovalAction, error)
	ListByInstanceStep(ctx context.Context, instanceID string, stepIndex int) ([]*repository.ApprovalAction, error)
}

// StatsStore runs the read-only aggregation queries.
type StatsStore interface {
	PendingForApprover(ctx context.Context, entityID string, approverKeys []string) ([]*repository.ApprovalInstance, error)
	Aggregate(ctx context.Context, entityID string, from, to time.Time) (*repository.ApprovalStats, error)
}
