package service

import (
	"context"
	"sync"
	"time"

	"github.com/invoq-hq/be-approvals/internal/apperr"
	"github.com/invoq-hq/be-approvals/internal/client"
	"github.com/invoq-hq/be-approvals/internal/logger"
	"github.com/invoq-hq/be-approvals/internal/repository"
)

// In-memory fakes implementing the service-side store and collaborator
// interfaces. The instance fake mirrors the repository's guard semantics:
// version mismatch while pending is a conflict, terminal status is
// already-decided, and a failing hook aborts the whole write.

type fakeDefinitionStore struct {
	mu   sync.Mutex
	defs map[string]*repository.WorkflowDefinition
}

func newFakeDefinitionStore() *fakeDefinitionStore {
	return &fakeDefinitionStore{defs: make(map[string]*repository.WorkflowDefinition)}
}

func (s *fakeDefinitionStore) Create(_ context.Context, def *repository.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	def.CreatedAt, def.UpdatedAt = now, now
	cp := *def
	s.defs[def.ID] = &cp
	return nil
}

func (s *fakeDefinitionStore) GetByID(_ context.Context, id, entityID string) (*repository.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok || def.EntityID != entityID {
		return nil, apperr.NotFound("workflow", id)
	}
	cp := *def
	return &cp, nil
}

func (s *fakeDefinitionStore) ListActive(_ context.Context, entityID string) ([]*repository.WorkflowDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.WorkflowDefinition
	for _, def := range s.defs {
		if def.EntityID == entityID && def.IsActive {
			cp := *def
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeDefinitionStore) Update(_ context.Context, def *repository.WorkflowDefinition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.defs[def.ID]; !ok {
		return apperr.NotFound("workflow", def.ID)
	}
	def.UpdatedAt = time.Now().UTC()
	cp := *def
	s.defs[def.ID] = &cp
	return nil
}

func (s *fakeDefinitionStore) Deactivate(_ context.Context, id, entityID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	def, ok := s.defs[id]
	if !ok || def.EntityID != entityID {
		return apperr.NotFound("workflow", id)
	}
	def.IsActive = false
	return nil
}

type fakeActionStore struct {
	mu      sync.Mutex
	actions []*repository.ApprovalAction
}

func (s *fakeActionStore) ListByInstance(_ context.Context, instanceID string) ([]*repository.ApprovalAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.ApprovalAction
	for _, a := range s.actions {
		if a.InstanceID == instanceID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeActionStore) ListByInstanceStep(_ context.Context, instanceID string, stepIndex int) ([]*repository.ApprovalAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*repository.ApprovalAction
	for _, a := range s.actions {
		if a.InstanceID == instanceID && a.StepIndex == stepIndex {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeActionStore) append(a *repository.ApprovalAction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.actions = append(s.actions, &cp)
}

type fakeInstanceStore struct {
	mu        sync.Mutex
	instances map[string]*repository.ApprovalInstance
	actions   *fakeActionStore
}

func newFakeInstanceStore(actions *fakeActionStore) *fakeInstanceStore {
	return &fakeInstanceStore{
		instances: make(map[string]*repository.ApprovalInstance),
		actions:   actions,
	}
}

func (s *fakeInstanceStore) Create(ctx context.Context, inst *repository.ApprovalInstance, hook repository.TxHook) error {
	if hook != nil {
		if err := hook(ctx); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Mirrors the partial unique index on (entity_id, document_id) WHERE
	// status = 'pending'.
	if inst.Status == repository.StatusPending {
		for _, cur := range s.instances {
			if cur.EntityID == inst.EntityID && cur.DocumentID == inst.DocumentID &&
				cur.Status == repository.StatusPending {
				return apperr.Newf(apperr.ErrCodeConflict,
					"document %s already has an open approval instance", inst.DocumentID)
			}
		}
	}
	now := time.Now().UTC()
	inst.SubmittedAt, inst.CreatedAt, inst.UpdatedAt = now, now, now
	cp := *inst
	s.instances[inst.ID] = &cp
	return nil
}

func (s *fakeInstanceStore) GetByID(_ context.Context, id string) (*repository.ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.instances[id]
	if !ok {
		return nil, apperr.NotFound("approval_instance", id)
	}
	cp := *inst
	return &cp, nil
}

func (s *fakeInstanceStore) GetOpenByDocumentID(_ context.Context, entityID, documentID string) (*repository.ApprovalInstance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, inst := range s.instances {
		if inst.EntityID == entityID && inst.DocumentID == documentID && inst.Status == repository.StatusPending {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeInstanceStore) RecordDecision(ctx context.Context, w repository.DecisionWrite) error {
	s.mu.Lock()
	cur, ok := s.instances[w.InstanceID]
	if !ok {
		s.mu.Unlock()
		return apperr.NotFound("approval_instance", w.InstanceID)
	}
	if cur.Status != repository.StatusPending {
		status := cur.Status
		s.mu.Unlock()
		return apperr.Newf(apperr.ErrCodeAlreadyDecided, "instance %s is already %s", w.InstanceID, status)
	}
	if cur.Version != w.ExpectedVersion {
		s.mu.Unlock()
		return apperr.Newf(apperr.ErrCodeConflict, "instance %s has moved on; re-fetch and retry", w.InstanceID)
	}
	s.mu.Unlock()

	if w.Hook != nil {
		if err := w.Hook(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if w.Mutation != nil {
		cur.Status = w.Mutation.Status
		cur.CurrentStepIndex = w.Mutation.StepIndex
		cur.DecidedAt = w.Mutation.DecidedAt
	}
	// Every accepted write is a mutation, action-only appends included.
	cur.Version++
	cur.UpdatedAt = time.Now().UTC()
	if w.Action != nil {
		w.Action.ActedAt = time.Now().UTC()
		s.actions.append(w.Action)
	}
	return nil
}

type fakeDocumentStore struct {
	mu       sync.Mutex
	amounts  map[string]int64
	statuses map[string][]string // documentID -> status transitions
	failNext error
}

func newFakeDocumentStore() *fakeDocumentStore {
	return &fakeDocumentStore{
		amounts:  make(map[string]int64),
		statuses: make(map[string][]string),
	}
}

func (s *fakeDocumentStore) GetAmount(_ context.Context, _, documentID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	amount, ok := s.amounts[documentID]
	if !ok {
		return 0, apperr.NotFound("document", documentID)
	}
	return amount, nil
}

func (s *fakeDocumentStore) SetStatus(_ context.Context, _, documentID, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.statuses[documentID] = append(s.statuses[documentID], status)
	return nil
}

func (s *fakeDocumentStore) lastStatus(documentID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	transitions := s.statuses[documentID]
	if len(transitions) == 0 {
		return ""
	}
	return transitions[len(transitions)-1]
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []*client.NotificationEvent
}

func (n *fakeNotifier) Send(_ context.Context, event *client.NotificationEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) eventTypes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []string
	for _, e := range n.events {
		out = append(out, e.EventType)
	}
	return out
}

// fakeStatsStore answers the inbox query from the instance fake and records
// the aggregation window it was asked for.
type fakeStatsStore struct {
	instances *fakeInstanceStore

	aggregateFrom time.Time
	aggregateTo   time.Time
	aggregate     *repository.ApprovalStats
}

func (s *fakeStatsStore) PendingForApprover(_ context.Context, entityID string, approverKeys []string) ([]*repository.ApprovalInstance, error) {
	keys := make(map[string]struct{}, len(approverKeys))
	for _, k := range approverKeys {
		keys[k] = struct{}{}
	}

	s.instances.mu.Lock()
	defer s.instances.mu.Unlock()
	var out []*repository.ApprovalInstance
	for _, inst := range s.instances.instances {
		if inst.EntityID != entityID || inst.Status != repository.StatusPending {
			continue
		}
		for _, approver := range inst.Snapshot.Steps[inst.CurrentStepIndex].Approvers {
			if _, ok := keys[approver]; ok {
				cp := *inst
				out = append(out, &cp)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStatsStore) Aggregate(_ context.Context, _ string, from, to time.Time) (*repository.ApprovalStats, error) {
	s.aggregateFrom, s.aggregateTo = from, to
	if s.aggregate != nil {
		return s.aggregate, nil
	}
	return &repository.ApprovalStats{}, nil
}

// engine bundles fakes and services for tests.
type engine struct {
	defs      *fakeDefinitionStore
	actions   *fakeActionStore
	instances *fakeInstanceStore
	documents *fakeDocumentStore
	notifier  *fakeNotifier
	stats     *fakeStatsStore

	definitionSvc *DefinitionService
	submissionSvc *SubmissionService
	actionSvc     *ActionService
	statsSvc      *StatsService
}

func newEngine() *engine {
	log := logger.New(logger.Config{Level: "error", ServiceName: "test"})
	actions := &fakeActionStore{}
	e := &engine{
		defs:      newFakeDefinitionStore(),
		actions:   actions,
		instances: newFakeInstanceStore(actions),
		documents: newFakeDocumentStore(),
		notifier:  &fakeNotifier{},
	}
	e.definitionSvc = NewDefinitionService(e.defs, log)
	e.submissionSvc = NewSubmissionService(e.defs, e.instances, e.documents, e.notifier, log)
	e.actionSvc = NewActionService(e.instances, e.actions, e.documents,
		client.SnapshotIdentityResolver{}, e.notifier, log)
	e.stats = &fakeStatsStore{instances: e.instances}
	e.statsSvc = NewStatsService(e.instances, e.actions, e.stats, client.SnapshotIdentityResolver{})
	return e
}
