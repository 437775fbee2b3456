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

// ActionService is the approval state machine. Every approve, reject and
// cancel flows through here; all instance writes are guarded by the version
// the caller read, so concurrent decisions cannot double-advance a step.
type ActionService struct {
	instances InstanceStore
	actions   ActionStore
	documents client.DocumentStore
	identity  client.IdentityResolver
	notifier  client.NotificationDispatcher
	log       *logger.Logger
}

// NewActionService creates a new ActionService.
func NewActionService(
	instances InstanceStore,
	actions ActionStore,
	documents client.DocumentStore,
	identity client.IdentityResolver,
	notifier client.NotificationDispatcher,
	log *logger.Logger,
) *ActionService {
	return &ActionService{
		instances: instances,
		actions:   actions,
		documents: documents,
		identity:  identity,
		notifier:  notifier,
		log:       log,
	}
}

// ActRequest is one approve or reject decision against an instance.
// ExpectedVersion must be the version the caller last read; a mismatch means
// the instance moved underneath them and they must re-fetch.
type ActRequest struct {
	InstanceID      string  `json:"instance_id"`
	ActorID         string  `json:"actor_id"`
	Decision        string  `json:"decision"`
	Comments        *string `json:"comments,omitempty"`
	ExpectedVersion int     `json:"expected_version"`
}

// Act applies one decision and returns the instance as it stands afterwards.
//
// A reject from any eligible approver is immediately terminal. An approve is
// recorded, then the current step is re-resolved: satisfied-and-last
// finalizes the instance, satisfied-and-not-last advances it, not-satisfied
// leaves it where it is. A repeat approve by the same actor on the same step
// is a no-op success with no new action recorded.
func (s *ActionService) Act(ctx context.Context, req *ActRequest) (*repository.ApprovalInstance, error) {
	if req.Decision != repository.DecisionApprove && req.Decision != repository.DecisionReject {
		return nil, apperr.InvalidInput("decision", "decision must be approve or reject")
	}
	if req.ActorID == "" {
		return nil, apperr.InvalidInput("actor_id", "actor id is required")
	}

	inst, err := s.instances.GetByID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != repository.StatusPending {
		return nil, apperr.Newf(apperr.ErrCodeAlreadyDecided,
			"instance %s is already %s", inst.ID, inst.Status)
	}

	step := inst.Snapshot.Steps[inst.CurrentStepIndex]
	eligible, err := s.identity.IsApprover(ctx, inst.EntityID, req.ActorID, step)
	if err != nil {
		return nil, err
	}
	if !eligible {
		return nil, apperr.Newf(apperr.ErrCodeUnauthorized,
			"actor %s is not an approver for step %d", req.ActorID, inst.CurrentStepIndex)
	}

	stepActions, err := s.actions.ListByInstanceStep(ctx, inst.ID, inst.CurrentStepIndex)
	if err != nil {
		return nil, err
	}

	// Idempotence: a repeat approve produces no new effect and no error.
	if req.Decision == repository.DecisionApprove &&
		HasApproved(req.ActorID, inst.CurrentStepIndex, stepActions) {
		s.log.Debug().
			Str("instance_id", inst.ID).
			Str("actor_id", req.ActorID).
			Int("step_index", inst.CurrentStepIndex).
			Msg("Repeat approval ignored")
		return inst, nil
	}

	action := &repository.ApprovalAction{
		ID:         uuid.NewString(),
		InstanceID: inst.ID,
		StepIndex:  inst.CurrentStepIndex,
		ActorID:    req.ActorID,
		Decision:   req.Decision,
		Comments:   req.Comments,
	}

	if req.Decision == repository.DecisionReject {
		return s.reject(ctx, inst, action, req.ExpectedVersion)
	}
	return s.approve(ctx, inst, action, stepActions, req.ExpectedVersion)
}

// reject terminates the instance. Rejection is never overridden by a later
// approval; the document needs a brand-new submission afterwards.
func (s *ActionService) reject(
	ctx context.Context,
	inst *repository.ApprovalInstance,
	action *repository.ApprovalAction,
	expectedVersion int,
) (*repository.ApprovalInstance, error) {
	now := time.Now().UTC()
	err := s.instances.RecordDecision(ctx, repository.DecisionWrite{
		InstanceID:      inst.ID,
		ExpectedVersion: expectedVersion,
		Mutation: &repository.InstanceMutation{
			Status:    repository.StatusRejected,
			StepIndex: inst.CurrentStepIndex,
			DecidedAt: &now,
		},
		Action: action,
		Hook: func(ctx context.Context) error {
			return s.documents.SetStatus(ctx, inst.EntityID, inst.DocumentID, client.DocumentStatusRejected)
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("actor_id", action.ActorID).
		Int("step_index", action.StepIndex).
		Msg("Instance rejected")

	s.publish(ctx, inst, client.EventRejected, action.ActorID, []string{inst.SubmittedBy})
	return s.instances.GetByID(ctx, inst.ID)
}

// approve records the action and advances the instance as far as the step
// resolution allows.
func (s *ActionService) approve(
	ctx context.Context,
	inst *repository.ApprovalInstance,
	action *repository.ApprovalAction,
	stepActions []*repository.ApprovalAction,
	expectedVersion int,
) (*repository.ApprovalInstance, error) {
	satisfied := StepSatisfied(inst.Snapshot, inst.CurrentStepIndex,
		append(stepActions, action))
	lastStep := inst.CurrentStepIndex == len(inst.Snapshot.Steps)-1

	write := repository.DecisionWrite{
		InstanceID:      inst.ID,
		ExpectedVersion: expectedVersion,
		Action:          action,
	}

	var event string
	var recipients []string
	switch {
	case !satisfied:
		// The step still needs more approvals. The append leaves status and
		// step untouched but still advances the version, so co-approvers who
		// read the same version serialize: one records, the other conflicts,
		// re-fetches and re-resolves satisfaction with both actions visible.
		event = ""

	case lastStep:
		now := time.Now().UTC()
		write.Mutation = &repository.InstanceMutation{
			Status:    repository.StatusApproved,
			StepIndex: inst.CurrentStepIndex + 1,
			DecidedAt: &now,
		}
		write.Hook = func(ctx context.Context) error {
			return s.documents.SetStatus(ctx, inst.EntityID, inst.DocumentID, client.DocumentStatusApproved)
		}
		event = client.EventApproved
		recipients = []string{inst.SubmittedBy}

	default:
		write.Mutation = &repository.InstanceMutation{
			Status:    repository.StatusPending,
			StepIndex: inst.CurrentStepIndex + 1,
		}
		event = client.EventStepAdvanced
		recipients = inst.Snapshot.Steps[inst.CurrentStepIndex+1].Approvers
	}

	if err := s.instances.RecordDecision(ctx, write); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("actor_id", action.ActorID).
		Int("step_index", action.StepIndex).
		Bool("step_satisfied", satisfied).
		Msg("Approval recorded")

	if event != "" {
		s.publish(ctx, inst, event, action.ActorID, recipients)
	}
	return s.instances.GetByID(ctx, inst.ID)
}

// CancelRequest withdraws a pending instance. Only the submitter may cancel.
type CancelRequest struct {
	InstanceID      string `json:"instance_id"`
	CancelledBy     string `json:"cancelled_by"`
	ExpectedVersion int    `json:"expected_version"`
}

// Cancel terminates a pending instance and returns the document to draft.
// It follows the same guarded-write discipline as decisions, so stale actors
// observe the cancellation as AlreadyDecided on their next attempt.
func (s *ActionService) Cancel(ctx context.Context, req *CancelRequest) (*repository.ApprovalInstance, error) {
	inst, err := s.instances.GetByID(ctx, req.InstanceID)
	if err != nil {
		return nil, err
	}
	if inst.Status != repository.StatusPending {
		return nil, apperr.Newf(apperr.ErrCodeAlreadyDecided,
			"instance %s is already %s", inst.ID, inst.Status)
	}
	if req.CancelledBy != inst.SubmittedBy {
		return nil, apperr.New(apperr.ErrCodeUnauthorized,
			"only the submitter can cancel an approval instance")
	}

	now := time.Now().UTC()
	err = s.instances.RecordDecision(ctx, repository.DecisionWrite{
		InstanceID:      inst.ID,
		ExpectedVersion: req.ExpectedVersion,
		Mutation: &repository.InstanceMutation{
			Status:    repository.StatusCancelled,
			StepIndex: inst.CurrentStepIndex,
			DecidedAt: &now,
		},
		Hook: func(ctx context.Context) error {
			return s.documents.SetStatus(ctx, inst.EntityID, inst.DocumentID, client.DocumentStatusDraft)
		},
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("instance_id", inst.ID).
		Str("cancelled_by", req.CancelledBy).
		Msg("Instance cancelled")

	s.publish(ctx, inst, client.EventCancelled, req.CancelledBy,
		inst.Snapshot.Steps[inst.CurrentStepIndex].Approvers)
	return s.instances.GetByID(ctx, inst.ID)
}

// publish emits one notification event, best-effort.
func (s *ActionService) publish(ctx context.Context, inst *repository.ApprovalInstance, eventType, actorID string, recipients []string) {
	s.notifier.Send(ctx, &client.NotificationEvent{
		EventType:  eventType,
		EntityID:   inst.EntityID,
		ActorID:    actorID,
		Recipients: recipients,
		InstanceID: inst.ID,
		DocumentID: inst.DocumentID,
	})
}
