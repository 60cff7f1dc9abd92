// Package core implements the design engine: tree composition, multi-criteria
// search, version chains, role vocabulary and lifecycle management, exposed
// through a Service facade that wraps every operation with logging, metrics,
// tracing and auditing.
package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"designcore/internal/infra/blob"
	"designcore/internal/infra/persistence/memory"
	"designcore/pkg/domain"
)

// Default composition bounds.
const (
	DefaultMaxDepth    = 32
	DefaultConcurrency = 16
)

// TreeCache caches composed trees by design id. Invalidate with no ids
// drops every entry.
type TreeCache interface {
	Get(ctx context.Context, id string) (domain.DesignTree, bool, error)
	Set(ctx context.Context, tree domain.DesignTree) error
	Invalidate(ctx context.Context, ids ...string) error
}

// Service is the entry point for every design operation.
type Service struct {
	store       domain.PersistentStore
	registry    *RoleRegistry
	roles       RoleValidator
	cache       TreeCache
	blobs       blob.Store
	logger      Logger
	metrics     MetricsRecorder
	tracer      Tracer
	audit       AuditRecorder
	clock       Clock
	maxDepth    int
	concurrency int

	// epoch counts committed writes. Compose only caches a tree when no
	// write committed while it was being built.
	epoch atomic.Uint64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetricsRecorder sets the metrics sink.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithTracer sets the tracer.
func WithTracer(t Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithAuditRecorder sets the audit sink.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithClock overrides the time source.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithCache enables read-through caching of composed trees.
func WithCache(c TreeCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithBlobStore sets the destination for ExportDesigns.
func WithBlobStore(b blob.Store) Option {
	return func(s *Service) { s.blobs = b }
}

// WithRoleValidator replaces the store-backed role registry as the source of
// truth for role checks.
func WithRoleValidator(v RoleValidator) Option {
	return func(s *Service) {
		if v != nil {
			s.roles = v
		}
	}
}

// WithComposeLimits bounds nesting depth and per-group fan-out. Non-positive
// values keep the defaults.
func WithComposeLimits(maxDepth, concurrency int) Option {
	return func(s *Service) {
		if maxDepth > 0 {
			s.maxDepth = maxDepth
		}
		if concurrency > 0 {
			s.concurrency = concurrency
		}
	}
}

// NewService constructs a service over store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	registry := NewRoleRegistry(store)
	s := &Service{
		store:       store,
		registry:    registry,
		roles:       registry,
		logger:      noopLogger{},
		metrics:     noopMetricsRecorder{},
		tracer:      noopTracer{},
		audit:       noopAuditRecorder{},
		clock:       ClockFunc(func() time.Time { return time.Now().UTC() }),
		maxDepth:    DefaultMaxDepth,
		concurrency: DefaultConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine installs the default rules.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return NewService(memory.NewStore(engine), opts...)
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore { return s.store }

// Roles returns the store-backed role registry.
func (s *Service) Roles() *RoleRegistry { return s.registry }

// run wraps an operation with tracing, metrics, audit and logging. fn
// returns the id of the entity it touched, if any.
func (s *Service) run(ctx context.Context, op string, actor Actor, fn func(context.Context) (string, error)) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	entityID, err := fn(ctx)
	end := s.clock.Now()
	duration := end.Sub(start)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)

	entry := AuditEntry{
		Operation: op,
		Status:    AuditStatusSuccess,
		Actor:     actor.OwnerID,
		EntityID:  entityID,
		Timestamp: end,
		Duration:  duration,
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
		entry.ErrorKind = domain.KindOf(err)
		s.logger.Error("operation failed", "operation", op, "kind", entry.ErrorKind, "error", err)
	} else {
		s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration", duration)
	}
	s.audit.Record(ctx, entry)
	return err
}

// view runs fn against the store, classifying backend failures.
func (s *Service) view(ctx context.Context, op string, fn func(domain.TransactionView) error) error {
	return storeError(op, s.store.View(ctx, fn))
}

// write runs fn in a store transaction and drops cached trees on success.
func (s *Service) write(ctx context.Context, op string, fn func(domain.Transaction) error) error {
	res, err := s.store.RunInTransaction(ctx, fn)
	for _, v := range res.Violations {
		if v.Severity == domain.SeverityWarn {
			s.logger.Warn("rule warning", "operation", op, "rule", v.Rule, "entity_id", v.EntityID, "message", v.Message)
		}
	}
	if err != nil {
		return storeError(op, err)
	}
	s.invalidate(ctx)
	return nil
}

func (s *Service) invalidate(ctx context.Context) {
	s.epoch.Add(1)
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("tree cache invalidation failed", "error", err)
	}
}

func storeError(op string, err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return domain.WrapStore(op, err)
}
