package service

import (
	"strings"

	"github.com/invoq-hq/be-approvals/internal/repository"
)

// Step resolution is pure: given a snapshot, a step index and the actions
// recorded at that step, decide whether the step is satisfied. Rejections are
// handled before resolution by the action processor, so only approvals count
// here.

// roleEntryPrefix marks an approver entry that names a role instead of a
// user id. Role entries are resolved by the identity collaborator at action
// time and are only allowed in any-one-suffices workflows (enforced at
// definition save time), because "every role holder" is not a closed set.
const roleEntryPrefix = "role:"

// IsRoleEntry reports whether an approver entry names a role.
func IsRoleEntry(approver string) bool {
	return strings.HasPrefix(approver, roleEntryPrefix)
}

// ApproverInStep reports whether the actor is named directly in the step's
// approver set.
func ApproverInStep(actorID string, step repository.Step) bool {
	for _, p := range step.Approvers {
		if p == actorID {
			return true
		}
	}
	return false
}

// HasApproved reports whether the actor already has an approve action
// recorded at the given step.
func HasApproved(actorID string, stepIndex int, actions []*repository.ApprovalAction) bool {
	for _, a := range actions {
		if a.StepIndex == stepIndex && a.ActorID == actorID && a.Decision == repository.DecisionApprove {
			return true
		}
	}
	return false
}

// StepSatisfied reports whether the step at stepIndex is satisfied by the
// recorded actions.
//
// With require-all off, any single approve recorded at the step suffices:
// the action processor only records actions from eligible approvers, and a
// step carrying role entries admits actors the snapshot cannot name.
// With require-all on, every distinct named approver must have approved;
// order does not matter and duplicate approvals from the same approver count
// once. Approvals recorded before the instance reached this step never exist
// by construction (actions carry the step index they were recorded against).
func StepSatisfied(snap repository.WorkflowSnapshot, stepIndex int, actions []*repository.ApprovalAction) bool {
	if stepIndex < 0 || stepIndex >= len(snap.Steps) {
		return false
	}
	step := snap.Steps[stepIndex]

	approved := make(map[string]struct{})
	for _, a := range actions {
		if a.StepIndex != stepIndex || a.Decision != repository.DecisionApprove {
			continue
		}
		approved[a.ActorID] = struct{}{}
	}

	if !snap.RequireAllApprovers {
		return len(approved) > 0
	}
	for _, p := range step.Approvers {
		if _, ok := approved[p]; !ok {
			return false
		}
	}
	return true
}
