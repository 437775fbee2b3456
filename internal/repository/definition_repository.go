package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/database"
)

// DefinitionRepository handles CRUD for workflow definitions.
// Validation happens in the service layer; this is pure data access.
type DefinitionRepository struct {
	db *database.DB
}

// NewDefinitionRepository creates a new DefinitionRepository.
func NewDefinitionRepository(db *database.DB) *DefinitionRepository {
	return &DefinitionRepository{db: db}
}

// Create inserts a new workflow definition. Steps are stored as JSONB.
func (r *DefinitionRepository) Create(ctx context.Context, def *WorkflowDefinition) error {
	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal workflow steps")
	}

	query := `
		INSERT INTO approval_workflows
		    (id, entity_id, name, description,
		     steps, require_all_approvers, auto_approve_threshold, is_active)
		VALUES ($1, $2, $3, $4,
		        $5, $6, $7, $8)
		RETURNING created_at, updated_at
	`

	err = r.db.QueryRow(ctx, query,
		def.ID,
		def.EntityID,
		def.Name,
		def.Description,
		stepsJSON,
		def.RequireAllApprovers,
		def.AutoApproveThreshold,
		def.IsActive,
	).Scan(&def.CreatedAt, &def.UpdatedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create workflow definition")
	}
	return nil
}

// GetByID retrieves a definition by primary key, scoped to an entity.
func (r *DefinitionRepository) GetByID(ctx context.Context, id, entityID string) (*WorkflowDefinition, error) {
	query := `
		SELECT id, entity_id, name, description,
		       steps, require_all_approvers, auto_approve_threshold, is_active,
		       created_at, updated_at
		FROM approval_workflows
		WHERE id = $1 AND entity_id = $2
	`

	def, err := r.scanDefinition(r.db.QueryRow(ctx, query, id, entityID))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("workflow", id)
	}
	return def, err
}

// ListActive returns all active definitions for an entity ordered by name.
func (r *DefinitionRepository) ListActive(ctx context.Context, entityID string) ([]*WorkflowDefinition, error) {
	query := `
		SELECT id, entity_id, name, description,
		       steps, require_all_approvers, auto_approve_threshold, is_active,
		       created_at, updated_at
		FROM approval_workflows
		WHERE entity_id = $1 AND is_active = TRUE
		ORDER BY name ASC
	`

	rows, err := r.db.Query(ctx, query, entityID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list workflow definitions")
	}
	defer rows.Close()

	var defs []*WorkflowDefinition
	for rows.Next() {
		def, err := r.scanDefinition(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan workflow definition")
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// Update replaces a definition's fields, steps included, wholesale.
func (r *DefinitionRepository) Update(ctx context.Context, def *WorkflowDefinition) error {
	stepsJSON, err := json.Marshal(def.Steps)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal workflow steps")
	}

	query := `
		UPDATE approval_workflows
		SET name                   = $3,
		    description            = $4,
		    steps                  = $5,
		    require_all_approvers  = $6,
		    auto_approve_threshold = $7,
		    is_active              = $8,
		    updated_at             = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING updated_at
	`

	err = r.db.QueryRow(ctx, query,
		def.ID,
		def.EntityID,
		def.Name,
		def.Description,
		stepsJSON,
		def.RequireAllApprovers,
		def.AutoApproveThreshold,
		def.IsActive,
	).Scan(&def.UpdatedAt)

	if err == pgx.ErrNoRows {
		return apperr.NotFound("workflow", def.ID)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to update workflow definition")
	}
	return nil
}

// Deactivate flips is_active off; in-flight instances keep their snapshot.
func (r *DefinitionRepository) Deactivate(ctx context.Context, id, entityID string) error {
	query := `
		UPDATE approval_workflows
		SET is_active  = FALSE,
		    updated_at = NOW()
		WHERE id = $1 AND entity_id = $2
		RETURNING id
	`

	var returnedID string
	err := r.db.QueryRow(ctx, query, id, entityID).Scan(&returnedID)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("workflow", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to deactivate workflow definition")
	}
	return nil
}

// ── scan helper ──────────────────────────────────────────────────────────────

type definitionScanner interface {
	Scan(dest ...any) error
}

func (r *DefinitionRepository) scanDefinition(row definitionScanner) (*WorkflowDefinition, error) {
	def := &WorkflowDefinition{}
	var stepsJSON []byte

	err := row.Scan(
		&def.ID,
		&def.EntityID,
		&def.Name,
		&def.Description,
		&stepsJSON,
		&def.RequireAllApprovers,
		&def.AutoApproveThreshold,
		&def.IsActive,
		&def.CreatedAt,
		&def.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(stepsJSON, &def.Steps); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to unmarshal workflow steps")
	}
	return def, nil
}
