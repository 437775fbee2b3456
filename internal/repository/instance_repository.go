package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/database"
)

// InstanceRepository persists approval instances. All writes after creation
// go through RecordDecision, which enforces the optimistic version guard:
// every state-changing statement is conditioned on the version the caller
// read, so concurrent actors cannot double-advance an instance.
type InstanceRepository struct {
	db *database.DB
}

// NewInstanceRepository creates a new InstanceRepository.
func NewInstanceRepository(db *database.DB) *InstanceRepository {
	return &InstanceRepository{db: db}
}

// Create inserts a new instance. When hook is non-nil it runs inside the same
// transaction, so the instance row and the document status update commit
// together or not at all.
func (r *InstanceRepository) Create(ctx context.Context, inst *ApprovalInstance, hook TxHook) error {
	snapshotJSON, err := json.Marshal(inst.Snapshot)
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to marshal workflow snapshot")
	}

	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		query := `
			INSERT INTO approval_instances
			    (id, entity_id, document_id, workflow_snapshot,
			     current_step_index, status, version,
			     submitted_by, submission_notes, decided_at)
			VALUES ($1, $2, $3, $4,
			        $5, $6::approval_instance_status, $7,
			        $8, $9, $10)
			RETURNING submitted_at, created_at, updated_at
		`

		err := tx.QueryRow(ctx, query,
			inst.ID,
			inst.EntityID,
			inst.DocumentID,
			snapshotJSON,
			inst.CurrentStepIndex,
			inst.Status,
			inst.Version,
			inst.SubmittedBy,
			inst.SubmissionNotes,
			inst.DecidedAt,
		).Scan(&inst.SubmittedAt, &inst.CreatedAt, &inst.UpdatedAt)
		if err != nil {
			// The partial unique index on (entity_id, document_id) WHERE
			// status = 'pending' backs the single-open-instance rule; two
			// concurrent submissions race past the pre-check and the index
			// decides.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return apperr.Newf(apperr.ErrCodeConflict,
					"document %s already has an open approval instance", inst.DocumentID)
			}
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to create approval instance")
		}

		if hook != nil {
			return hook(ctx)
		}
		return nil
	})
}

// GetByID retrieves an instance by primary key.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*ApprovalInstance, error) {
	query := selectInstance + ` WHERE id = $1`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, id))
	if err == pgx.ErrNoRows {
		return nil, apperr.NotFound("approval_instance", id)
	}
	return inst, err
}

// GetOpenByDocumentID returns the pending instance for a document, or nil
// when the document has no open instance.
func (r *InstanceRepository) GetOpenByDocumentID(ctx context.Context, entityID, documentID string) (*ApprovalInstance, error) {
	query := selectInstance + `
		WHERE entity_id = $1 AND document_id = $2 AND status = 'pending'
		ORDER BY submitted_at DESC
		LIMIT 1
	`

	inst, err := r.scanInstance(r.db.QueryRow(ctx, query, entityID, documentID))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return inst, err
}

// RecordDecision applies one decision atomically: the version-guarded
// instance write, the optional action append, and the optional hook share a
// single transaction. A guard miss yields ConflictError while the instance is
// still pending, AlreadyDecidedError once it is terminal, and NotFoundError
// when the row is gone.
func (r *InstanceRepository) RecordDecision(ctx context.Context, w DecisionWrite) error {
	return r.db.InTransaction(ctx, func(tx pgx.Tx) error {
		var version int
		var err error

		if w.Mutation != nil {
			query := `
				UPDATE approval_instances
				SET status             = $3::approval_instance_status,
				    current_step_index = $4,
				    decided_at         = $5,
				    version            = version + 1,
				    updated_at         = NOW()
				WHERE id = $1 AND version = $2 AND status = 'pending'
				RETURNING version
			`
			err = tx.QueryRow(ctx, query,
				w.InstanceID,
				w.ExpectedVersion,
				w.Mutation.Status,
				w.Mutation.StepIndex,
				w.Mutation.DecidedAt,
			).Scan(&version)
		} else {
			// The instance row keeps its status and step, but the action
			// append is still a mutation: the version advances so concurrent
			// co-approvers serialize through the guard. The loser re-fetches
			// and re-resolves step satisfaction against the winner's action.
			query := `
				UPDATE approval_instances
				SET version    = version + 1,
				    updated_at = NOW()
				WHERE id = $1 AND version = $2 AND status = 'pending'
				RETURNING version
			`
			err = tx.QueryRow(ctx, query, w.InstanceID, w.ExpectedVersion).Scan(&version)
		}

		if err == pgx.ErrNoRows {
			return r.classifyGuardMiss(ctx, tx, w.InstanceID)
		}
		if err != nil {
			return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to update approval instance")
		}

		if w.Action != nil {
			if err := insertAction(ctx, tx, w.Action); err != nil {
				return err
			}
		}

		if w.Hook != nil {
			return w.Hook(ctx)
		}
		return nil
	})
}

// classifyGuardMiss distinguishes why a guarded write affected no rows.
func (r *InstanceRepository) classifyGuardMiss(ctx context.Context, tx pgx.Tx, id string) error {
	var status string
	err := tx.QueryRow(ctx, `SELECT status FROM approval_instances WHERE id = $1`, id).Scan(&status)
	if err == pgx.ErrNoRows {
		return apperr.NotFound("approval_instance", id)
	}
	if err != nil {
		return apperr.Wrap(err, apperr.ErrCodeInternal, "failed to inspect approval instance")
	}
	if status != StatusPending {
		return apperr.Newf(apperr.ErrCodeAlreadyDecided,
			"instance %s is already %s", id, status)
	}
	return apperr.Newf(apperr.ErrCodeConflict,
		"instance %s has moved on; re-fetch and retry", id)
}

// ── scan helpers ─────────────────────────────────────────────────────────────

const selectInstance = `
	SELECT id, entity_id, document_id, workflow_snapshot,
	       current_step_index, status, version,
	       submitted_by, submission_notes,
	       submitted_at, decided_at,
	       created_at, updated_at
	FROM approval_instances`

type instanceScanner interface {
	Scan(dest ...any) error
}

func (r *InstanceRepository) scanInstance(row instanceScanner) (*ApprovalInstance, error) {
	inst := &ApprovalInstance{}
	var snapshotJSON []byte

	err := row.Scan(
		&inst.ID,
		&inst.EntityID,
		&inst.DocumentID,
		&snapshotJSON,
		&inst.CurrentStepIndex,
		&inst.Status,
		&inst.Version,
		&inst.SubmittedBy,
		&inst.SubmissionNotes,
		&inst.SubmittedAt,
		&inst.DecidedAt,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(snapshotJSON, &inst.Snapshot); err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to unmarshal workflow snapshot")
	}
	return inst, nil
}
