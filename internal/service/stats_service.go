package service

import (
	"context"
	"time"

	"github.com/invoq-hq/be-approvals/internal/client"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// StatsService serves the read-only views: instance lookups, action history,
// pending-approvals inboxes and aggregate counters. It never mutates state.
type StatsService struct {
	instances InstanceStore
	actions   ActionStore
	stats     StatsStore
	identity  client.IdentityResolver
}

// NewStatsService creates a new StatsService.
func NewStatsService(instances InstanceStore, actions ActionStore, stats StatsStore, identity client.IdentityResolver) *StatsService {
	return &StatsService{instances: instances, actions: actions, stats: stats, identity: identity}
}

// GetInstance returns one instance by id.
func (s *StatsService) GetInstance(ctx context.Context, id string) (*repository.ApprovalInstance, error) {
	return s.instances.GetByID(ctx, id)
}

// GetHistory returns the ordered action trail for an instance.
func (s *StatsService) GetHistory(ctx context.Context, instanceID string) ([]*repository.ApprovalAction, error) {
	// Resolve the instance first so unknown ids surface as NotFound rather
	// than an empty list.
	if _, err := s.instances.GetByID(ctx, instanceID); err != nil {
		return nil, err
	}
	return s.actions.ListByInstance(ctx, instanceID)
}

// ListPendingFor returns the instances currently awaiting a decision from
// the actor, oldest submission first. The match covers the actor's id and
// the role-form entries for every role the actor holds, so steps addressed
// to a role show up in its holders' inboxes.
func (s *StatsService) ListPendingFor(ctx context.Context, entityID, actorID string) ([]*repository.ApprovalInstance, error) {
	roles, err := s.identity.Roles(ctx, entityID, actorID)
	if err != nil {
		return nil, err
	}

	keys := make([]string, 0, len(roles)+1)
	keys = append(keys, actorID)
	for _, r := range roles {
		keys = append(keys, roleEntryPrefix+r)
	}
	return s.stats.PendingForApprover(ctx, entityID, keys)
}

// defaultStatsPeriod is used when the caller gives no period bounds.
const defaultStatsPeriod = 30 * 24 * time.Hour

// GetStats aggregates instance counters and average decision latency for
// instances submitted in [from, to). Zero bounds default to the last 30 days.
func (s *StatsService) GetStats(ctx context.Context, entityID string, from, to time.Time) (*repository.ApprovalStats, error) {
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if from.IsZero() {
		from = to.Add(-defaultStatsPeriod)
	}
	return s.stats.Aggregate(ctx, entityID, from, to)
}
