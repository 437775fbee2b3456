package repository

import (
	"context"
	"time"
)

// ── Domain types for the approval workflow engine ────────────────────────────

// Instance statuses. Once an instance leaves StatusPending it is terminal.
const (
	StatusPending   = "pending"
	StatusApproved  = "approved"
	StatusRejected  = "rejected"
	StatusCancelled = "cancelled"
)

// Decisions recorded by approval actions.
const (
	DecisionApprove = "approve"
	DecisionReject  = "reject"
)

// Step is one ordered stage of a workflow with its own approver set.
// It is embedded in definitions and snapshotted verbatim into instances.
type Step struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Approvers   []string `json:"approvers"`
}

// WorkflowDefinition is a named, reusable template of ordered approval steps.
// Steps are replaced wholesale on update; in-flight instances are unaffected
// because they carry a snapshot.
type WorkflowDefinition struct {
	ID          string
	EntityID    string
	Name        string
	Description *string
	Steps       []Step // stored as JSONB
	// RequireAllApprovers selects the step satisfaction rule: every approver
	// must consent vs. any single one suffices.
	RequireAllApprovers bool
	// AutoApproveThreshold, in cents; submissions at or below it bypass
	// human approval entirely. Nil disables the shortcut.
	AutoApproveThreshold *int64
	IsActive             bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// WorkflowSnapshot is the immutable copy of a definition's steps and rules
// taken at submission time. Instances are always evaluated against their
// snapshot, never against a later-edited definition.
type WorkflowSnapshot struct {
	WorkflowID           string `json:"workflow_id"`
	Name                 string `json:"name"`
	Steps                []Step `json:"steps"`
	RequireAllApprovers  bool   `json:"require_all_approvers"`
	AutoApproveThreshold *int64 `json:"auto_approve_threshold,omitempty"`
}

// ApprovalInstance is one run of a workflow against a specific document.
// Version increases on every successful mutation and guards concurrent writes.
type ApprovalInstance struct {
	ID               string
	EntityID         string
	DocumentID       string
	Snapshot         WorkflowSnapshot // stored as JSONB
	CurrentStepIndex int
	Status           string
	Version          int
	SubmittedBy      string
	SubmissionNotes  *string
	SubmittedAt      time.Time
	DecidedAt        *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ApprovalAction is one immutable approve/reject record. Append-only.
type ApprovalAction struct {
	ID         string
	InstanceID string
	StepIndex  int
	ActorID    string
	Decision   string
	Comments   *string
	ActedAt    time.Time
}

// ApprovalStats is the read-only aggregation returned by the stats queries.
type ApprovalStats struct {
	PendingCount  int64
	ApprovedCount int64
	RejectedCount int64
	// AverageDecisionLatencySeconds covers instances decided in the period;
	// zero when none were.
	AverageDecisionLatencySeconds float64
}

// TxHook runs inside the transaction that commits an instance write, after
// the row changes but before commit. A non-nil error aborts the whole write.
// Used to propagate document status so the instance change and the document
// update land together or not at all.
type TxHook func(ctx context.Context) error

// InstanceMutation describes the instance-row change of a decision write.
type InstanceMutation struct {
	Status    string // new status; StatusPending when the instance stays open
	StepIndex int
	DecidedAt *time.Time
}

// DecisionWrite is one atomic unit applied by InstanceRepository.RecordDecision:
// a version-guarded instance check or mutation, an optional action append, and
// an optional in-transaction hook.
type DecisionWrite struct {
	InstanceID      string
	ExpectedVersion int
	// Mutation is nil when the decision leaves the instance row unchanged
	// (an approval that does not yet satisfy the step). The version guard
	// still applies.
	Mutation *InstanceMutation
	// Action is nil for cancellations, which mutate the instance without
	// recording an approve/reject action.
	Action *ApprovalAction
	Hook   TxHook
}
