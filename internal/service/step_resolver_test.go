package service

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/invoq-hq/be-approvals/internal/repository"
)

func snapshot(requireAll bool, approvers ...[]string) repository.WorkflowSnapshot {
	snap := repository.WorkflowSnapshot{
		WorkflowID:          "wf-1",
		Name:                "test",
		RequireAllApprovers: requireAll,
	}
	for i, set := range approvers {
		snap.Steps = append(snap.Steps, repository.Step{
			Name:      "step-" + string(rune('a'+i)),
			Approvers: set,
		})
	}
	return snap
}

func approveAt(actor string, step int) *repository.ApprovalAction {
	return &repository.ApprovalAction{
		InstanceID: "inst-1",
		StepIndex:  step,
		ActorID:    actor,
		Decision:   repository.DecisionApprove,
	}
}

func TestStepSatisfiedAnyApprover(t *testing.T) {
	snap := snapshot(false, []string{"alice", "bob"})

	require.False(t, StepSatisfied(snap, 0, nil))
	require.True(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{approveAt("alice", 0)}))
	require.True(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{approveAt("bob", 0)}))
}

func TestStepSatisfiedRequireAll(t *testing.T) {
	snap := snapshot(true, []string{"alice", "bob"})

	t.Run("single approval is not enough", func(t *testing.T) {
		require.False(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{approveAt("alice", 0)}))
	})

	t.Run("order independent", func(t *testing.T) {
		require.True(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{
			approveAt("bob", 0), approveAt("alice", 0),
		}))
		require.True(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{
			approveAt("alice", 0), approveAt("bob", 0),
		}))
	})

	t.Run("duplicates count once", func(t *testing.T) {
		require.False(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{
			approveAt("alice", 0), approveAt("alice", 0),
		}))
	})

	t.Run("rejects do not satisfy", func(t *testing.T) {
		reject := &repository.ApprovalAction{StepIndex: 0, ActorID: "bob", Decision: repository.DecisionReject}
		require.False(t, StepSatisfied(snap, 0, []*repository.ApprovalAction{
			approveAt("alice", 0), reject,
		}))
	})
}

func TestStepSatisfiedIgnoresOtherSteps(t *testing.T) {
	snap := snapshot(false, []string{"alice"}, []string{"alice"})

	// An approval recorded at step 0 does not carry over to step 1.
	require.False(t, StepSatisfied(snap, 1, []*repository.ApprovalAction{approveAt("alice", 0)}))
	require.True(t, StepSatisfied(snap, 1, []*repository.ApprovalAction{approveAt("alice", 1)}))
}

func TestStepSatisfiedOutOfRange(t *testing.T) {
	snap := snapshot(false, []string{"alice"})

	require.False(t, StepSatisfied(snap, -1, nil))
	require.False(t, StepSatisfied(snap, 1, []*repository.ApprovalAction{approveAt("alice", 1)}))
}

func TestApproverInStep(t *testing.T) {
	step := repository.Step{Name: "review", Approvers: []string{"alice", "bob"}}

	require.True(t, ApproverInStep("alice", step))
	require.False(t, ApproverInStep("mallory", step))
}

func TestHasApproved(t *testing.T) {
	actions := []*repository.ApprovalAction{
		approveAt("alice", 0),
		{StepIndex: 1, ActorID: "bob", Decision: repository.DecisionReject},
	}

	require.True(t, HasApproved("alice", 0, actions))
	require.False(t, HasApproved("alice", 1, actions))
	require.False(t, HasApproved("bob", 1, actions)) // a reject is not an approval
}

func TestIsRoleEntry(t *testing.T) {
	require.True(t, IsRoleEntry("role:FINANCE_MANAGER"))
	require.False(t, IsRoleEntry("alice"))
}
