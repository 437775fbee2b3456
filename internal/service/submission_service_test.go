package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/client"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// setupWorkflow creates a definition and registers a document amount.
func setupWorkflow(t *testing.T, e *engine, mutate func(*CreateDefinitionRequest)) *repository.WorkflowDefinition {
	t.Helper()
	req := validCreateRequest()
	if mutate != nil {
		mutate(req)
	}
	def, err := e.definitionSvc.Create(context.Background(), req)
	require.NoError(t, err)
	return def
}

func submitReq(workflowID, documentID string) *SubmitRequest {
	return &SubmitRequest{
		EntityID:    "acme",
		DocumentID:  documentID,
		WorkflowID:  workflowID,
		SubmittedBy: "sam",
	}
}

func TestSubmitCreatesPendingInstance(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	e.documents.amounts["doc-1"] = 50_000

	inst, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.NoError(t, err)
	require.Equal(t, repository.StatusPending, inst.Status)
	require.Equal(t, 0, inst.CurrentStepIndex)
	require.Equal(t, 1, inst.Version)
	require.Equal(t, def.ID, inst.Snapshot.WorkflowID)
	require.Len(t, inst.Snapshot.Steps, 2)
	require.Nil(t, inst.DecidedAt)

	require.Equal(t, client.DocumentStatusInReview, e.documents.lastStatus("doc-1"))
	require.Equal(t, []string{client.EventSubmitted}, e.notifier.eventTypes())
}

func TestSubmitAutoApproval(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	threshold := int64(10_000)
	def := setupWorkflow(t, e, func(r *CreateDefinitionRequest) {
		r.AutoApproveThreshold = &threshold
	})
	e.documents.amounts["doc-small"] = 10_000 // boundary: amount == threshold qualifies

	inst, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-small"))
	require.NoError(t, err)
	require.Equal(t, repository.StatusApproved, inst.Status)
	require.Equal(t, len(def.Steps), inst.CurrentStepIndex)
	require.NotNil(t, inst.DecidedAt)

	// No human actions exist for an auto-approved instance.
	history, err := e.actions.ListByInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Empty(t, history)

	require.Equal(t, client.DocumentStatusApproved, e.documents.lastStatus("doc-small"))
	require.Equal(t, []string{client.EventAutoApproved}, e.notifier.eventTypes())
}

func TestSubmitAboveThresholdGoesThroughSteps(t *testing.T) {
	e := newEngine()
	threshold := int64(10_000)
	def := setupWorkflow(t, e, func(r *CreateDefinitionRequest) {
		r.AutoApproveThreshold = &threshold
	})
	e.documents.amounts["doc-big"] = 10_001

	inst, err := e.submissionSvc.Submit(context.Background(), submitReq(def.ID, "doc-big"))
	require.NoError(t, err)
	require.Equal(t, repository.StatusPending, inst.Status)
}

func TestSubmitUnknownWorkflow(t *testing.T) {
	e := newEngine()
	e.documents.amounts["doc-1"] = 100

	_, err := e.submissionSvc.Submit(context.Background(), submitReq("missing", "doc-1"))
	require.Error(t, err)
	require.Equal(t, apperr.ErrCodeConfiguration, apperr.CodeOf(err))
}

func TestSubmitInactiveWorkflow(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	require.NoError(t, e.definitionSvc.Deactivate(ctx, def.ID, "acme"))
	e.documents.amounts["doc-1"] = 100

	_, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.Error(t, err)
	require.Equal(t, apperr.ErrCodeConfiguration, apperr.CodeOf(err))
}

func TestSubmitRejectsSecondOpenInstance(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	e.documents.amounts["doc-1"] = 100

	_, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.NoError(t, err)

	_, err = e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.Error(t, err)
	require.Equal(t, apperr.ErrCodeConflict, apperr.CodeOf(err))
}

func TestCreateEnforcesSingleOpenInstance(t *testing.T) {
	// Two racing submissions can both pass the open-instance pre-check; the
	// store itself must reject the second pending insert, like the partial
	// unique index does in Postgres.
	e := newEngine()
	ctx := context.Background()

	mk := func(id string) *repository.ApprovalInstance {
		return &repository.ApprovalInstance{
			ID:         id,
			EntityID:   "acme",
			DocumentID: "doc-1",
			Status:     repository.StatusPending,
			Snapshot: repository.WorkflowSnapshot{
				Steps: []repository.Step{{Name: "manager review", Approvers: []string{"mgr"}}},
			},
			Version:     1,
			SubmittedBy: "sam",
		}
	}

	require.NoError(t, e.instances.Create(ctx, mk("inst-1"), nil))

	err := e.instances.Create(ctx, mk("inst-2"), nil)
	require.Error(t, err)
	require.Equal(t, apperr.ErrCodeConflict, apperr.CodeOf(err))
}

func TestSubmitAllowedAfterTerminalInstance(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	e.documents.amounts["doc-1"] = 100

	first, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.NoError(t, err)

	// Reject the first run, then a brand-new submission is allowed.
	_, err = e.actionSvc.Act(ctx, &ActRequest{
		InstanceID:      first.ID,
		ActorID:         "mgr",
		Decision:        repository.DecisionReject,
		ExpectedVersion: first.Version,
	})
	require.NoError(t, err)

	second, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.NoError(t, err)
	require.NotEqual(t, first.ID, second.ID)
}

func TestSubmitDocumentUpdateFailureAbortsCreation(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	e.documents.amounts["doc-1"] = 100
	e.documents.failNext = apperr.New(apperr.ErrCodeInternal, "documents service down")

	_, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.Error(t, err)

	// Nothing was committed: the document has no open instance.
	open, err := e.instances.GetOpenByDocumentID(ctx, "acme", "doc-1")
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestSubmitValidatesInput(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	for _, req := range []*SubmitRequest{
		{EntityID: "acme", WorkflowID: "wf", SubmittedBy: "sam"}, // no document
		{EntityID: "acme", DocumentID: "doc", SubmittedBy: "sam"}, // no workflow
		{EntityID: "acme", DocumentID: "doc", WorkflowID: "wf"},   // no submitter
	} {
		_, err := e.submissionSvc.Submit(ctx, req)
		require.Error(t, err)
		require.Equal(t, apperr.ErrCodeValidation, apperr.CodeOf(err))
	}
}

func TestSnapshotUnaffectedByLaterEdit(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	def := setupWorkflow(t, e, nil)
	e.documents.amounts["doc-1"] = 100

	inst, err := e.submissionSvc.Submit(ctx, submitReq(def.ID, "doc-1"))
	require.NoError(t, err)

	// Edit the definition after submission.
	_, err = e.definitionSvc.Update(ctx, def.ID, "acme", &UpdateDefinitionRequest{
		Name:     "changed",
		Steps:    []repository.Step{{Name: "other", Approvers: []string{"someone-else"}}},
		IsActive: true,
	})
	require.NoError(t, err)

	// The original approver still decides the in-flight instance.
	got, err := e.actionSvc.Act(ctx, &ActRequest{
		InstanceID:      inst.ID,
		ActorID:         "mgr",
		Decision:        repository.DecisionApprove,
		ExpectedVersion: inst.Version,
	})
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentStepIndex)
}
