package core

import (
	"context"
	"encoding/json"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"designcore/pkg/domain"
)

var expvarSeq atomic.Uint64

// OperationStats aggregates outcomes of one operation.
type OperationStats struct {
	Success int64   `json:"success"`
	Errors  int64   `json:"errors"`
	TotalMS float64 `json:"total_ms"`
	MaxMS   float64 `json:"max_ms"`
}

// ExpvarMetricsRecorder keeps per-operation totals and publishes them under
// an expvar name, for deployments without a metrics backend.
type ExpvarMetricsRecorder struct {
	name string
	mu   sync.Mutex
	ops  map[string]*OperationStats
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty or
// already published name gets a generated one.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	for name == "" || expvar.Get(name) != nil {
		name = fmt.Sprintf("designcore_service_metrics_%d", expvarSeq.Add(1))
	}
	rec := &ExpvarMetricsRecorder{name: name, ops: make(map[string]*OperationStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Snapshot copies the current totals.
func (r *ExpvarMetricsRecorder) Snapshot() map[string]OperationStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]OperationStats, len(r.ops))
	for op, stats := range r.ops {
		out[op] = *stats
	}
	return out
}

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	ms := float64(duration) / float64(time.Millisecond)
	r.mu.Lock()
	defer r.mu.Unlock()
	stats, ok := r.ops[operation]
	if !ok {
		stats = &OperationStats{}
		r.ops[operation] = stats
	}
	if success {
		stats.Success++
	} else {
		stats.Errors++
	}
	stats.TotalMS += ms
	if ms > stats.MaxMS {
		stats.MaxMS = ms
	}
}

// SpanRecord is one finished span written by JSONTracer.
type SpanRecord struct {
	SpanID     uint64    `json:"span_id"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS float64   `json:"duration_ms"`
}

// JSONTracer writes each finished span as one JSON line and keeps the most
// recent spans in memory.
type JSONTracer struct {
	mu    sync.Mutex
	enc   *json.Encoder
	seq   uint64
	keep  int
	spans []SpanRecord
	nowFn func() time.Time
}

// NewJSONTracer returns a tracer writing to w, which may be nil. keep bounds
// the retained spans; non-positive keeps 1024.
func NewJSONTracer(w io.Writer, keep int) *JSONTracer {
	if keep <= 0 {
		keep = 1024
	}
	t := &JSONTracer{keep: keep, nowFn: func() time.Time { return time.Now().UTC() }}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Spans returns the retained spans, oldest first.
func (t *JSONTracer) Spans() []SpanRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]SpanRecord(nil), t.spans...)
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.mu.Unlock()
	return ctx, &jsonSpan{tracer: t, id: id, operation: operation, started: t.nowFn()}
}

type jsonSpan struct {
	tracer    *JSONTracer
	id        uint64
	operation string
	started   time.Time
	once      sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() { s.tracer.finish(s, err) })
}

func (t *JSONTracer) finish(s *jsonSpan, err error) {
	rec := SpanRecord{
		SpanID:     s.id,
		Operation:  s.operation,
		Status:     "ok",
		StartedAt:  s.started,
		DurationMS: float64(t.nowFn().Sub(s.started)) / float64(time.Millisecond),
	}
	if err != nil {
		rec.Status = "error"
		rec.Error = err.Error()
		rec.ErrorKind = domain.KindOf(err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = append(t.spans, rec)
	if len(t.spans) > t.keep {
		t.spans = t.spans[len(t.spans)-t.keep:]
	}
	if t.enc != nil {
		_ = t.enc.Encode(rec)
	}
}
