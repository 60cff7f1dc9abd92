package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"designcore/pkg/domain"
)

type captureAuditRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, entry)
}

func (c *captureAuditRecorder) has(op string, status AuditStatus, predicate func(AuditEntry) bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, entry := range c.entries {
		if entry.Operation == op && entry.Status == status {
			if predicate == nil || predicate(entry) {
				return true
			}
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	mu    sync.Mutex
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	mu      sync.Mutex
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

func (c *captureTracer) has(op string, success bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, record := range c.ended {
		if record.op == op && (record.err == nil) == success {
			return true
		}
	}
	return false
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.mu.Lock()
	defer s.tracer.mu.Unlock()
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

type logLine struct {
	level string
	msg   string
	args  []any
}

type captureLogger struct {
	mu    sync.Mutex
	lines []logLine
}

func (l *captureLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, logLine{level: level, msg: msg, args: args})
}

func (l *captureLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *captureLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *captureLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *captureLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *captureLogger) count(level, msg string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, line := range l.lines {
		if line.level == level && line.msg == msg {
			n++
		}
	}
	return n
}

// newTestService returns an in-memory service with the default role
// vocabulary installed.
func newTestService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	svc := NewInMemoryService(nil, opts...)
	if _, err := svc.SeedDefaultRoles(context.Background(), Actor{}); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	return svc
}

func mustPart(t *testing.T, svc *Service, actor Actor, spec PartSpec) string {
	t.Helper()
	id, err := svc.CreatePart(context.Background(), actor, spec)
	if err != nil {
		t.Fatalf("create part %q: %v", spec.Name, err)
	}
	return id
}

func mustDevice(t *testing.T, svc *Service, actor Actor, name string, subs ...string) string {
	t.Helper()
	id, err := svc.CreateDevice(context.Background(), actor, DeviceSpec{Name: name, SubDesignIDs: subs})
	if err != nil {
		t.Fatalf("create device %q: %v", name, err)
	}
	return id
}

func mustModule(t *testing.T, svc *Service, actor Actor, designID, role string) string {
	t.Helper()
	id, err := svc.CreateModule(context.Background(), actor, domain.Module{Name: role + " module", DesignID: designID, Role: role})
	if err != nil {
		t.Fatalf("create module %s: %v", role, err)
	}
	return id
}

func mustCompose(t *testing.T, svc *Service, id string) domain.DesignTree {
	t.Helper()
	trees, err := svc.Compose(context.Background(), []string{id}, ComposeOptions{})
	if err != nil {
		t.Fatalf("compose %s: %v", id, err)
	}
	if len(trees) != 1 {
		t.Fatalf("expected one tree, got %d", len(trees))
	}
	return trees[0]
}

func expectKind(t *testing.T, err, kind error) {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
}

func designIDs(trees []domain.DesignTree) []string {
	out := make([]string, len(trees))
	for i, tree := range trees {
		out[i] = tree.Design.ID
	}
	return out
}

func sameIDs(got, want []string) bool {
	return fmt.Sprint(got) == fmt.Sprint(want)
}

// countStatus counts documents of entity with status across the store.
func countStatus(t *testing.T, svc *Service, entity domain.EntityType, status domain.StatusFilter) int {
	t.Helper()
	var n int
	if err := svc.Store().View(context.Background(), func(v domain.TransactionView) error {
		docs, err := v.FindDocuments(entity, domain.Query{Status: status})
		n = len(docs)
		return err
	}); err != nil {
		t.Fatalf("count %s: %v", entity, err)
	}
	return n
}
