package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/logger"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// DefinitionService owns workflow templates: create, read, update, deactivate.
// Malformed definitions are rejected here, at the write boundary, so every
// snapshot taken downstream is structurally valid by construction.
type DefinitionService struct {
	defs DefinitionStore
	log  *logger.Logger
}

// NewDefinitionService creates a new DefinitionService.
func NewDefinitionService(defs DefinitionStore, log *logger.Logger) *DefinitionService {
	return &DefinitionService{defs: defs, log: log}
}

// CreateDefinitionRequest carries a new workflow template.
type CreateDefinitionRequest struct {
	EntityID             string            `json:"entity_id"`
	Name                 string            `json:"name"`
	Description          *string           `json:"description,omitempty"`
	Steps                []repository.Step `json:"steps"`
	RequireAllApprovers  bool              `json:"require_all_approvers"`
	AutoApproveThreshold *int64            `json:"auto_approve_threshold,omitempty"`
}

// Create validates and persists a new workflow definition.
func (s *DefinitionService) Create(ctx context.Context, req *CreateDefinitionRequest) (*repository.WorkflowDefinition, error) {
	def := &repository.WorkflowDefinition{
		ID:                   uuid.NewString(),
		EntityID:             req.EntityID,
		Name:                 req.Name,
		Description:          req.Description,
		Steps:                req.Steps,
		RequireAllApprovers:  req.RequireAllApprovers,
		AutoApproveThreshold: req.AutoApproveThreshold,
		IsActive:             true,
	}

	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	if err := s.defs.Create(ctx, def); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", def.ID).
		Str("entity_id", def.EntityID).
		Str("name", def.Name).
		Int("steps", len(def.Steps)).
		Msg("Workflow definition created")

	return def, nil
}

// Get retrieves a definition by id.
func (s *DefinitionService) Get(ctx context.Context, id, entityID string) (*repository.WorkflowDefinition, error) {
	return s.defs.GetByID(ctx, id, entityID)
}

// ListActive returns the active definitions for an entity.
func (s *DefinitionService) ListActive(ctx context.Context, entityID string) ([]*repository.WorkflowDefinition, error) {
	return s.defs.ListActive(ctx, entityID)
}

// UpdateDefinitionRequest replaces a definition's content wholesale. There is
// no partial step mutation; the steps list always arrives complete.
type UpdateDefinitionRequest struct {
	Name                 string            `json:"name"`
	Description          *string           `json:"description,omitempty"`
	Steps                []repository.Step `json:"steps"`
	RequireAllApprovers  bool              `json:"require_all_approvers"`
	AutoApproveThreshold *int64            `json:"auto_approve_threshold,omitempty"`
	IsActive             bool              `json:"is_active"`
}

// Update validates and persists changes to an existing definition. In-flight
// instances are unaffected; they carry their own snapshot.
func (s *DefinitionService) Update(ctx context.Context, id, entityID string, req *UpdateDefinitionRequest) (*repository.WorkflowDefinition, error) {
	def, err := s.defs.GetByID(ctx, id, entityID)
	if err != nil {
		return nil, err
	}

	def.Name = req.Name
	def.Description = req.Description
	def.Steps = req.Steps
	def.RequireAllApprovers = req.RequireAllApprovers
	def.AutoApproveThreshold = req.AutoApproveThreshold
	def.IsActive = req.IsActive

	if err := validateDefinition(def); err != nil {
		return nil, err
	}
	if err := s.defs.Update(ctx, def); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("workflow_id", def.ID).
		Str("entity_id", def.EntityID).
		Int("steps", len(def.Steps)).
		Msg("Workflow definition updated")

	return def, nil
}

// Deactivate retires a definition from new submissions.
func (s *DefinitionService) Deactivate(ctx context.Context, id, entityID string) error {
	if err := s.defs.Deactivate(ctx, id, entityID); err != nil {
		return err
	}
	s.log.Info().
		Str("workflow_id", id).
		Str("entity_id", entityID).
		Msg("Workflow definition deactivated")
	return nil
}

// validateDefinition enforces the write-time invariants: a name, at least one
// step, per-step non-empty deduplicated approver sets, and role entries only
// in any-one-suffices workflows.
func validateDefinition(def *repository.WorkflowDefinition) error {
	if def.EntityID == "" {
		return apperr.InvalidInput("entity_id", "entity id is required")
	}
	if def.Name == "" {
		return apperr.InvalidInput("name", "workflow name is required")
	}
	if len(def.Steps) == 0 {
		return apperr.InvalidInput("steps", "workflow must have at least 1 step")
	}
	if def.AutoApproveThreshold != nil && *def.AutoApproveThreshold < 0 {
		return apperr.InvalidInput("auto_approve_threshold", "threshold cannot be negative")
	}

	for i, step := range def.Steps {
		if step.Name == "" {
			return apperr.Newf(apperr.ErrCodeValidation, "steps[%d]: step name is required", i)
		}
		if len(step.Approvers) == 0 {
			return apperr.Newf(apperr.ErrCodeValidation, "steps[%d]: step must have at least 1 approver", i)
		}
		seen := make(map[string]struct{}, len(step.Approvers))
		for _, p := range step.Approvers {
			if p == "" {
				return apperr.Newf(apperr.ErrCodeValidation, "steps[%d]: empty approver entry", i)
			}
			if _, dup := seen[p]; dup {
				return apperr.Newf(apperr.ErrCodeValidation, "steps[%d]: duplicate approver %q", i, p)
			}
			seen[p] = struct{}{}
			if def.RequireAllApprovers && IsRoleEntry(p) {
				return apperr.Newf(apperr.ErrCodeValidation,
					"steps[%d]: role entry %q not allowed when all approvers are required", i, p)
			}
		}
	}
	return nil
}
