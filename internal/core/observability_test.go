package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"entitygraph/pkg/domain"
)

type auditCapture struct {
	mu      sync.Mutex
	entries []AuditEntry
}

func (a *auditCapture) Record(_ context.Context, entry AuditEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

type metricsCapture struct {
	mu    sync.Mutex
	calls []string
	fails int
}

func (m *metricsCapture) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, op)
	if !success {
		m.fails++
	}
}

type spanCapture struct {
	op  string
	err error
	end int
}

func (s *spanCapture) End(err error) {
	s.err = err
	s.end++
}

type tracerCapture struct {
	spans []*spanCapture
}

func (t *tracerCapture) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	span := &spanCapture{op: op}
	t.spans = append(t.spans, span)
	return ctx, span
}

type logCapture struct {
	mu    sync.Mutex
	lines map[string][]string
}

func (l *logCapture) add(level, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.lines == nil {
		l.lines = make(map[string][]string)
	}
	l.lines[level] = append(l.lines[level], msg)
}

func (l *logCapture) Debug(msg string, _ ...any) { l.add("debug", msg) }
func (l *logCapture) Info(msg string, _ ...any)  { l.add("info", msg) }
func (l *logCapture) Warn(msg string, _ ...any)  { l.add("warn", msg) }
func (l *logCapture) Error(msg string, _ ...any) { l.add("error", msg) }

type failingStore struct{ err error }

func (f failingStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, f.err
}

func (f failingStore) View(context.Context, func(domain.TransactionView) error) error {
	return f.err
}

func TestServiceAuditsMutationsOnly(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	audit := &auditCapture{}
	svc := newTestService(t, WithAuditRecorder(audit), WithClock(ClockFunc(func() time.Time { return fixed })))
	ctx := context.Background()

	if _, _, err := svc.CreateRole(ctx, domain.Role{Name: "admin", Gender: domain.GenderMale}); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if _, err := svc.GetRole(ctx, 1); err != nil {
		t.Fatalf("get role: %v", err)
	}
	if _, err := svc.DeleteRole(ctx, 7); err == nil {
		t.Fatalf("expected delete of missing role to fail")
	}

	if len(audit.entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %+v", audit.entries)
	}
	created := audit.entries[0]
	if created.Operation != "create_role" || created.Entity != domain.EntityRole || created.Action != domain.ActionCreate ||
		created.EntityID != 1 || created.Status != AuditStatusSuccess || !created.Timestamp.Equal(fixed) {
		t.Fatalf("unexpected create entry %+v", created)
	}
	failed := audit.entries[1]
	if failed.Status != AuditStatusError || failed.EntityID != 7 || failed.Error == "" {
		t.Fatalf("unexpected failure entry %+v", failed)
	}
}

func TestServiceMetricsTracingAndLogging(t *testing.T) {
	metrics := &metricsCapture{}
	tracer := &tracerCapture{}
	logs := &logCapture{}
	svc := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(logs))
	ctx := context.Background()

	if _, _, err := svc.CreateIssue(ctx, domain.Issue{Name: "login"}); err != nil {
		t.Fatalf("create issue: %v", err)
	}
	if _, err := svc.GetIssue(ctx, 1); err != nil {
		t.Fatalf("get issue: %v", err)
	}
	if _, err := svc.GetIssue(ctx, 2); err == nil {
		t.Fatalf("expected not found")
	}

	if len(metrics.calls) != 3 || metrics.fails != 1 {
		t.Fatalf("unexpected metrics %+v", metrics)
	}
	if len(tracer.spans) != 3 || tracer.spans[0].op != "create_issue" {
		t.Fatalf("unexpected spans %+v", tracer.spans)
	}
	for _, span := range tracer.spans {
		if span.end != 1 {
			t.Fatalf("span %s ended %d times", span.op, span.end)
		}
	}
	if !errors.Is(tracer.spans[2].err, domain.ErrNotFound) {
		t.Fatalf("expected span error recorded, got %v", tracer.spans[2].err)
	}
	if len(logs.lines["info"]) != 1 || len(logs.lines["warn"]) != 1 || len(logs.lines["error"]) != 0 {
		t.Fatalf("unexpected log levels %+v", logs.lines)
	}
}

func TestServiceLogsInfrastructureFailuresAtError(t *testing.T) {
	logs := &logCapture{}
	audit := &auditCapture{}
	boom := errors.New("disk full")
	svc := NewService(failingStore{err: boom}, WithLogger(logs), WithAuditRecorder(audit))

	if _, _, err := svc.CreateTag(context.Background(), domain.Tag{Name: "x"}); !errors.Is(err, boom) {
		t.Fatalf("expected store error, got %v", err)
	}
	if len(logs.lines["error"]) != 1 {
		t.Fatalf("expected one error log, got %+v", logs.lines)
	}
	if len(audit.entries) != 1 || audit.entries[0].Status != AuditStatusError {
		t.Fatalf("expected failed audit entry, got %+v", audit.entries)
	}
}

func TestNilOptionsKeepDefaults(t *testing.T) {
	svc := NewInMemoryService(nil, WithClock(nil), WithLogger(nil), WithAuditRecorder(nil), WithMetricsRecorder(nil), WithTracer(nil))
	if svc.clock == nil || svc.logger == nil || svc.audit == nil || svc.metrics == nil || svc.tracer == nil {
		t.Fatalf("nil options must not clear defaults")
	}
	if _, _, err := svc.CreateTag(context.Background(), domain.Tag{Name: "ok"}); err != nil {
		t.Fatalf("noop hooks should not interfere: %v", err)
	}
	if svc.clock.Now().Location() != time.UTC {
		t.Fatalf("expected default clock in UTC")
	}
}

func TestExpvarMetricsRecorder(t *testing.T) {
	rec := NewExpvarMetricsRecorder("")
	if rec.Name() == "" || expvar.Get(rec.Name()) == nil {
		t.Fatalf("expected recorder published under %q", rec.Name())
	}
	ctx := context.Background()
	rec.Observe(ctx, "create_tag", true, 2*time.Millisecond)
	rec.Observe(ctx, "create_tag", false, 3*time.Millisecond)
	rec.Observe(ctx, "", true, time.Second)

	snap := rec.Snapshot()
	if snap.DurationsMS["create_tag"] != 5 {
		t.Fatalf("expected 5ms total, got %v", snap.DurationsMS)
	}
	if snap.Results["create_tag"]["success"] != 1 || snap.Results["create_tag"]["error"] != 1 {
		t.Fatalf("unexpected results %v", snap.Results)
	}
	if len(snap.Results) != 1 {
		t.Fatalf("empty operation names must be ignored, got %v", snap.Results)
	}
	snap.Results["create_tag"]["success"] = 99
	if rec.Snapshot().Results["create_tag"]["success"] != 1 {
		t.Fatalf("snapshot must be a copy")
	}
}

func TestPrometheusMetricsRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec, err := NewPrometheusMetricsRecorder(reg)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()
	rec.Observe(ctx, "link_user_tag", true, time.Millisecond)
	rec.Observe(ctx, "link_user_tag", true, time.Millisecond)
	rec.Observe(ctx, "link_user_tag", false, time.Millisecond)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	counts := map[string]float64{}
	var histograms uint64
	for _, fam := range families {
		for _, m := range fam.GetMetric() {
			var status string
			for _, label := range m.GetLabel() {
				if label.GetName() == "status" {
					status = label.GetValue()
				}
			}
			switch fam.GetName() {
			case "entitygraph_service_operations_total":
				counts[status] = m.GetCounter().GetValue()
			case "entitygraph_service_operation_duration_seconds":
				histograms += m.GetHistogram().GetSampleCount()
			}
		}
	}
	if counts["success"] != 2 || counts["error"] != 1 || histograms != 3 {
		t.Fatalf("unexpected metrics counts=%v histograms=%d", counts, histograms)
	}

	if _, err := NewPrometheusMetricsRecorder(reg); err == nil {
		t.Fatalf("expected duplicate registration to fail")
	}
}

func TestJSONTracerWritesEntries(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	svc := newTestService(t, WithTracer(tracer))
	ctx := context.Background()
	if _, _, err := svc.CreateTag(ctx, domain.Tag{Name: "ops"}); err != nil {
		t.Fatalf("create tag: %v", err)
	}
	if _, err := svc.GetTag(ctx, 9); err == nil {
		t.Fatalf("expected not found")
	}

	entries := tracer.Entries()
	if len(entries) != 2 || entries[0].Status != "success" || entries[1].Status != "error" || entries[1].Error == "" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	dec := json.NewDecoder(&buf)
	var first JSONTraceEntry
	if err := dec.Decode(&first); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if first.Operation != "create_tag" || first.EndedAt.Before(first.StartedAt) {
		t.Fatalf("unexpected encoded entry %+v", first)
	}

	silent := NewJSONTracer(nil)
	_, span := silent.Start(ctx, "noop")
	span.End(nil)
	if len(silent.Entries()) != 1 {
		t.Fatalf("expected entry retained without writer")
	}
}

func TestRejectedListOptionsAreObserved(t *testing.T) {
	metrics := &metricsCapture{}
	tracer := &tracerCapture{}
	logs := &logCapture{}
	svc := newTestService(t, WithMetricsRecorder(metrics), WithTracer(tracer), WithLogger(logs))
	ctx := context.Background()
	bad := ListOptions{OrderBy: "age"}

	if _, err := svc.ListRoles(ctx, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ListIssues(ctx, bad); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ListTags(ctx, ListOptions{Offset: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.ListUsers(ctx, ListOptions{Limit: -1}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	want := []string{"list_roles", "list_issues", "list_tags", "list_users"}
	if len(metrics.calls) != len(want) || metrics.fails != len(want) {
		t.Fatalf("expected %v as failures, got %v (fails=%d)", want, metrics.calls, metrics.fails)
	}
	for i, op := range want {
		if metrics.calls[i] != op || tracer.spans[i].op != op || !errors.Is(tracer.spans[i].err, domain.ErrValidation) {
			t.Fatalf("operation %d: metric %q span %+v", i, metrics.calls[i], tracer.spans[i])
		}
	}
	if got := len(logs.lines["warn"]); got != len(want) {
		t.Fatalf("expected %d warn lines, got %v", len(want), logs.lines)
	}
}
