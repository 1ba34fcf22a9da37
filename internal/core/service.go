// Package core hosts the entity graph Service: transactional CRUD over roles,
// issues, tags and users, association maintenance, nested projections and
// snapshot backups, with logging, audit, metrics and tracing around each call.
package core

import (
	"context"
	"errors"
	"time"

	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/pkg/domain"
)

// Service exposes transactional operations over a PersistentStore.
type Service struct {
	store   domain.PersistentStore
	clock   Clock
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...ServiceOption) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:   store,
		clock:   o.clock,
		logger:  o.logger,
		audit:   o.audit,
		metrics: o.metrics,
		tracer:  o.tracer,
	}
}

// NewInMemoryService creates a service over a fresh in-memory store.
func NewInMemoryService(engine *domain.RulesEngine, opts ...ServiceOption) *Service {
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore { return s.store }

type operationMetadata struct {
	entity domain.EntityType
	action domain.Action
}

// mutatingOperations lists the operations that produce audit entries.
var mutatingOperations = map[string]operationMetadata{
	"create_role":      {domain.EntityRole, domain.ActionCreate},
	"update_role":      {domain.EntityRole, domain.ActionUpdate},
	"delete_role":      {domain.EntityRole, domain.ActionDelete},
	"create_issue":     {domain.EntityIssue, domain.ActionCreate},
	"update_issue":     {domain.EntityIssue, domain.ActionUpdate},
	"delete_issue":     {domain.EntityIssue, domain.ActionDelete},
	"create_tag":       {domain.EntityTag, domain.ActionCreate},
	"update_tag":       {domain.EntityTag, domain.ActionUpdate},
	"delete_tag":       {domain.EntityTag, domain.ActionDelete},
	"create_user":      {domain.EntityUser, domain.ActionCreate},
	"update_user":      {domain.EntityUser, domain.ActionUpdate},
	"delete_user":      {domain.EntityUser, domain.ActionDelete},
	"assign_user_role": {domain.EntityUser, domain.ActionUpdate},
	"link_user_tag":    {domain.EntityUserTag, domain.ActionLink},
	"unlink_user_tag":  {domain.EntityUserTag, domain.ActionUnlink},
	"link_tag_issue":   {domain.EntityTagIssue, domain.ActionLink},
	"unlink_tag_issue": {domain.EntityTagIssue, domain.ActionUnlink},
	"restore_snapshot": {domain.EntitySnapshot, domain.ActionRestore},
}

// run wraps an operation with tracing, metrics, logging and, for mutations, audit.
// fn returns the id of the entity it touched, or 0 when there is none.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) (int64, error)) error {
	start := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	s.logger.Debug("operation started", "operation", op)

	id, err := fn(ctx)
	duration := time.Since(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	_, mutating := mutatingOperations[op]
	switch {
	case err == nil && mutating:
		s.logger.Info("operation completed", "operation", op, "entity_id", id, "duration", duration)
		s.recordAudit(ctx, op, id, duration, nil)
	case err == nil:
		s.logger.Debug("operation completed", "operation", op, "entity_id", id, "duration", duration)
	default:
		if isDomainError(err) {
			s.logger.Warn("operation rejected", "operation", op, "entity_id", id, "error", err)
		} else {
			s.logger.Error("operation failed", "operation", op, "entity_id", id, "error", err)
		}
		s.recordAudit(ctx, op, id, duration, err)
	}
	return err
}

func (s *Service) recordAudit(ctx context.Context, op string, id int64, duration time.Duration, err error) {
	meta, ok := mutatingOperations[op]
	if !ok {
		return
	}
	entry := AuditEntry{
		Operation: op,
		Entity:    meta.entity,
		Action:    meta.action,
		EntityID:  id,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	s.audit.Record(ctx, entry)
}

// isDomainError reports whether err is a caller-facing rejection rather than
// an infrastructure failure.
func isDomainError(err error) bool {
	var rv domain.RuleViolationError
	return errors.Is(err, domain.ErrNotFound) ||
		errors.Is(err, domain.ErrDuplicateID) ||
		errors.Is(err, domain.ErrValidation) ||
		errors.Is(err, domain.ErrReferentialIntegrity) ||
		errors.Is(err, domain.ErrDanglingReference) ||
		errors.As(err, &rv)
}

// mutate runs fn inside a store transaction under the run wrapper.
func (s *Service) mutate(ctx context.Context, op string, fn func(tx domain.Transaction) (int64, error)) (domain.Result, error) {
	var res domain.Result
	err := s.run(ctx, op, func(ctx context.Context) (int64, error) {
		var id int64
		var err error
		res, err = s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			var ferr error
			id, ferr = fn(tx)
			return ferr
		})
		return id, err
	})
	return res, err
}

// read runs fn against a committed view under the run wrapper.
func (s *Service) read(ctx context.Context, op string, id int64, fn func(view domain.TransactionView) error) error {
	return s.run(ctx, op, func(ctx context.Context) (int64, error) {
		return id, s.store.View(ctx, fn)
	})
}
