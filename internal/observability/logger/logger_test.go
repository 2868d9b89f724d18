package logger

import (
	"context"
	"testing"

	obscontext "github.com/smallbiznis/scholara/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextIncludesTrace(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	orig := zap.L()
	zap.ReplaceGlobals(zap.New(core))
	defer zap.ReplaceGlobals(orig)

	traceID, _ := trace.TraceIDFromHex("0123456789abcdef0123456789abcdef")
	spanID, _ := trace.SpanIDFromHex("0123456789abcdef")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	FromContext(ctx).Info("hello")
	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["trace_id"] != traceID.String() {
		t.Fatalf("expected trace_id %q, got %q", traceID.String(), fields["trace_id"])
	}
	if fields["span_id"] != spanID.String() {
		t.Fatalf("expected span_id %q, got %q", spanID.String(), fields["span_id"])
	}
}

func TestWithContextIncludesJobAndActor(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	ctx := obscontext.WithJob(context.Background(), "archive_invoices")
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	WithContext(ctx, zap.New(core)).Info("tick")

	fields := logs.All()[0].ContextMap()
	if fields["job"] != "archive_invoices" {
		t.Fatalf("expected job field, got %v", fields["job"])
	}
	if fields["actor_type"] != "system" || fields["actor_id"] != "scheduler" {
		t.Fatalf("expected actor fields, got %v/%v", fields["actor_type"], fields["actor_id"])
	}
}

func TestOperationFromSQL(t *testing.T) {
	cases := map[string]string{
		"SELECT 1": "SELECT",
		"WITH moved AS (DELETE FROM invoices_2020_q1 RETURNING *) INSERT INTO invoices_archive_2020_q1 SELECT * FROM moved": "DELETE",
		`VACUUM FULL "invoices_2020_q1"`:                    "VACUUM",
		`ALTER TABLE "invoices_2020_q1" ALTER COLUMN x SET`: "ALTER",
		"": "UNKNOWN",
	}
	for sql, want := range cases {
		if got := operationFromSQL(sql); got != want {
			t.Fatalf("operationFromSQL(%q) = %q, want %q", sql, got, want)
		}
	}
}
