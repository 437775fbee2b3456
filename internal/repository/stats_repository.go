package repository

import (
	"context"
	"time"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/database"
)

// StatsRepository runs the read-only aggregation queries. It never mutates
// state.
type StatsRepository struct {
	db *database.DB
}

// NewStatsRepository creates a new StatsRepository.
func NewStatsRepository(db *database.DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// PendingForApprover returns pending instances whose current step names any
// of the given approver keys, oldest submission first. Callers pass the
// actor's id plus the role-form entries for every role the actor holds, so
// role-addressed steps land in the right inboxes. The approver set lives
// inside the JSONB snapshot, so the containment check happens in SQL.
func (r *StatsRepository) PendingForApprover(ctx context.Context, entityID string, approverKeys []string) ([]*ApprovalInstance, error) {
	query := selectInstance + `
		WHERE entity_id = $1
		  AND status = 'pending'
		  AND (workflow_snapshot->'steps'->current_step_index->'approvers') ?| $2
		ORDER BY submitted_at ASC
	`

	rows, err := r.db.Query(ctx, query, entityID, approverKeys)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to list pending approvals")
	}
	defer rows.Close()

	var instances []*ApprovalInstance
	ir := &InstanceRepository{db: r.db}
	for rows.Next() {
		inst, err := ir.scanInstance(rows)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to scan approval instance")
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

// Aggregate computes counters and the average decision latency for instances
// submitted in [from, to).
func (r *StatsRepository) Aggregate(ctx context.Context, entityID string, from, to time.Time) (*ApprovalStats, error) {
	query := `
		SELECT COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'approved'),
		       COUNT(*) FILTER (WHERE status = 'rejected'),
		       COALESCE(EXTRACT(EPOCH FROM AVG(decided_at - submitted_at)
		                        FILTER (WHERE decided_at IS NOT NULL)), 0)
		FROM approval_instances
		WHERE entity_id = $1
		  AND submitted_at >= $2
		  AND submitted_at < $3
	`

	stats := &ApprovalStats{}
	err := r.db.QueryRow(ctx, query, entityID, from, to).Scan(
		&stats.PendingCount,
		&stats.ApprovedCount,
		&stats.RejectedCount,
		&stats.AverageDecisionLatencySeconds,
	)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.ErrCodeInternal, "failed to aggregate approval stats")
	}
	return stats, nil
}
