package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/client"
	"github.com/invoq-hq/be-approvals/internal/logger"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// SubmissionService creates approval instances for documents. It snapshots
// the chosen workflow at submission time and applies the amount-based
// auto-approval shortcut when eligible.
type SubmissionService struct {
	defs      DefinitionStore
	instances InstanceStore
	documents client.DocumentStore
	notifier  client.NotificationDispatcher
	log       *logger.Logger
}

// NewSubmissionService creates a new SubmissionService.
func NewSubmissionService(
	defs DefinitionStore,
	instances InstanceStore,
	documents client.DocumentStore,
	notifier client.NotificationDispatcher,
	log *logger.Logger,
) *SubmissionService {
	return &SubmissionService{
		defs:      defs,
		instances: instances,
		documents: documents,
		notifier:  notifier,
		log:       log,
	}
}

// SubmitRequest starts an approval run for a document. The workflow id is
// always explicit; picking "some active workflow" is a caller-side
// convenience the engine does not provide.
type SubmitRequest struct {
	EntityID    string  `json:"entity_id"`
	DocumentID  string  `json:"document_id"`
	WorkflowID  string  `json:"workflow_id"`
	SubmittedBy string  `json:"submitted_by"`
	Notes       *string `json:"notes,omitempty"`
}

// Submit creates a new approval instance. Only one open instance may exist
// per document; a second submission while one is pending fails with a
// conflict. Documents at or below the workflow's auto-approve threshold are
// approved immediately with no human actions recorded.
func (s *SubmissionService) Submit(ctx context.Context, req *SubmitRequest) (*repository.ApprovalInstance, error) {
	if req.DocumentID == "" {
		return nil, apperr.InvalidInput("document_id", "document id is required")
	}
	if req.WorkflowID == "" {
		return nil, apperr.InvalidInput("workflow_id", "workflow id is required")
	}
	if req.SubmittedBy == "" {
		return nil, apperr.InvalidInput("submitted_by", "submitter is required")
	}

	def, err := s.defs.GetByID(ctx, req.WorkflowID, req.EntityID)
	if err != nil {
		if apperr.IsCode(err, apperr.ErrCodeNotFound) {
			return nil, apperr.Newf(apperr.ErrCodeConfiguration,
				"workflow %s does not exist", req.WorkflowID)
		}
		return nil, err
	}
	if !def.IsActive {
		return nil, apperr.Newf(apperr.ErrCodeConfiguration,
			"workflow %s is not active", req.WorkflowID)
	}

	open, err := s.instances.GetOpenByDocumentID(ctx, req.EntityID, req.DocumentID)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return nil, apperr.Newf(apperr.ErrCodeConflict,
			"document %s already has an open approval instance", req.DocumentID)
	}

	amount, err := s.documents.GetAmount(ctx, req.EntityID, req.DocumentID)
	if err != nil {
		return nil, err
	}

	inst := &repository.ApprovalInstance{
		ID:         uuid.NewString(),
		EntityID:   req.EntityID,
		DocumentID: req.DocumentID,
		Snapshot: repository.WorkflowSnapshot{
			WorkflowID:           def.ID,
			Name:                 def.Name,
			Steps:                def.Steps,
			RequireAllApprovers:  def.RequireAllApprovers,
			AutoApproveThreshold: def.AutoApproveThreshold,
		},
		CurrentStepIndex: 0,
		Status:           repository.StatusPending,
		Version:          1,
		SubmittedBy:      req.SubmittedBy,
		SubmissionNotes:  req.Notes,
	}

	autoApproved := def.AutoApproveThreshold != nil && amount <= *def.AutoApproveThreshold
	documentStatus := client.DocumentStatusInReview
	if autoApproved {
		now := time.Now().UTC()
		inst.Status = repository.StatusApproved
		inst.CurrentStepIndex = len(def.Steps)
		inst.DecidedAt = &now
		documentStatus = client.DocumentStatusApproved
	}

	// The document status change rides in the creation transaction: if it
	// fails, no instance is committed.
	err = s.instances.Create(ctx, inst, func(ctx context.Context) error {
		return s.documents.SetStatus(ctx, req.EntityID, req.DocumentID, documentStatus)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("document_id", req.DocumentID).
		Str("workflow_id", def.ID).
		Int64("amount", amount).
		Bool("auto_approved", autoApproved).
		Msg("Approval instance created")

	if autoApproved {
		s.notifier.Send(ctx, &client.NotificationEvent{
			EventType:  client.EventAutoApproved,
			EntityID:   req.EntityID,
			ActorID:    req.SubmittedBy,
			Recipients: []string{req.SubmittedBy},
			InstanceID: inst.ID,
			DocumentID: req.DocumentID,
			Payload:    map[string]any{"amount": amount},
		})
	} else {
		s.notifier.Send(ctx, &client.NotificationEvent{
			EventType:  client.EventSubmitted,
			EntityID:   req.EntityID,
			ActorID:    req.SubmittedBy,
			Recipients: def.Steps[0].Approvers,
			InstanceID: inst.ID,
			DocumentID: req.DocumentID,
			Payload:    map[string]any{"step": def.Steps[0].Name},
		})
	}

	return inst, nil
}
