package tracing

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestSafeAttributesDropsStudentText(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("class_id", "c1"),
		attribute.String("feedback", "great essay"),
		attribute.String("auth_token", "x"),
	)
	if len(attrs) != 1 || attrs[0].Key != "class_id" {
		t.Fatalf("expected only class_id to survive, got %v", attrs)
	}
}

func TestEndRecordsErrorStatus(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	defer otel.SetTracerProvider(orig)

	_, span := Start(context.Background(), "test", "op")
	End(span, errors.New("relation \"invoices_2020_q1\" does not exist"))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if spans[0].Status().Code != codes.Error {
		t.Fatalf("expected error status, got %v", spans[0].Status().Code)
	}
	if got := spans[0].Events()[0].Attributes; len(got) == 0 {
		t.Fatalf("expected recorded error event")
	}
}
