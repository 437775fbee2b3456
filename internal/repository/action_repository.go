package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/database"
)

// ActionRepository reads the append-only approval action log. Writes happen
// inside InstanceRepository.RecordDecision so an action and the instance
// change it caused always commit together.
type ActionRepository struct {
	db *database.DB
}

// NewActionRepository creates a new ActionRepository.
func NewActionRepository(db *database.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// ListByInstance returns the full action history for an instance, oldest first.
func (r *ActionRepository) ListByInstance(ctx context.Context, instanceID string) ([]*ApprovalAction, error) {
	query := selectAction + `
		WHERE instance_id = $1
		ORDER BY acted_at ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list approval actions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// ListByInstanceStep returns actions recorded against one step of an instance.
func (r *ActionRepository) ListByInstanceStep(ctx context.Context, instanceID string, stepIndex int) ([]*ApprovalAction, error) {
	query := selectAction + `
		WHERE instance_id = $1 AND step_index = $2
		ORDER BY acted_at ASC
	`

	rows, err := r.db.Query(ctx, query, instanceID, stepIndex)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list step actions")
	}
	defer rows.Close()

	return r.scanRows(rows)
}

// insertAction appends one action inside an open transaction.
func insertAction(ctx context.Context, tx pgx.Tx, a *ApprovalAction) error {
	query := `
		INSERT INTO approval_actions
		    (id, instance_id, step_index, actor_id, decision, comments)
		VALUES ($1, $2, $3, $4, $5::approval_decision, $6)
		RETURNING acted_at
	`

	err := tx.QueryRow(ctx, query,
		a.ID,
		a.InstanceID,
		a.StepIndex,
		a.ActorID,
		a.Decision,
		a.Comments,
	).Scan(&a.ActedAt)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to record approval action")
	}
	return nil
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectAction = `
	SELECT id, instance_id, step_index, actor_id, decision, comments, acted_at
	FROM approval_actions`

func (r *ActionRepository) scanRows(rows pgx.Rows) ([]*ApprovalAction, error) {
	var actions []*ApprovalAction
	for rows.Next() {
		a := &ApprovalAction{}
		err := rows.Scan(
			&a.ID,
			&a.InstanceID,
			&a.StepIndex,
			&a.ActorID,
			&a.Decision,
			&a.Comments,
			&a.ActedAt,
		)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan approval action")
		}
		actions = append(actions, a)
	}
	return actions, rows.Err()
}
