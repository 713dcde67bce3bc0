package observe

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// useTestTracer installs an in-memory tracer as the global provider for the
// duration of the test.
func useTestTracer(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	orig := otel.GetTracerProvider()
	otel.SetTracerProvider(tp)
	t.Cleanup(func() {
		otel.SetTracerProvider(orig)
		_ = tp.Shutdown(context.Background())
	})
	return exp
}

// captureLogs redirects the default logger into a buffer.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(orig) })
	return &buf
}

func TestCorrelationID(t *testing.T) {
	useTestTracer(t)

	if got := CorrelationID(context.Background()); got != "" {
		t.Errorf("CorrelationID(background) = %q, want empty", got)
	}

	seen := make(map[string]bool)
	for range 50 {
		ctx, span := StartSpan(context.Background(), "op")
		cid := CorrelationID(ctx)
		span.End()
		if b, err := hex.DecodeString(cid); err != nil || len(b) != 16 {
			t.Fatalf("correlation ID %q is not a 16-byte hex trace ID", cid)
		}
		if seen[cid] {
			t.Fatalf("duplicate correlation ID %s", cid)
		}
		seen[cid] = true
	}
}

func TestStartSpan_SessionAttribute(t *testing.T) {
	exp := useTestTracer(t)

	ctx := WithSessionID(context.Background(), "sess-42")
	_, span := StartSpan(ctx, "buddy.connect")
	span.End()
	_, plain := StartSpan(context.Background(), "content.image")
	plain.End()

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("spans = %d, want 2", len(spans))
	}
	hasSession := func(attrs []attribute.KeyValue) bool {
		for _, kv := range attrs {
			if kv.Key == "session.id" && kv.Value.AsString() == "sess-42" {
				return true
			}
		}
		return false
	}
	if !hasSession(spans[0].Attributes) {
		t.Errorf("%s attributes = %v, want session.id", spans[0].Name, spans[0].Attributes)
	}
	if hasSession(spans[1].Attributes) {
		t.Errorf("%s carries a session.id it was never given", spans[1].Name)
	}
}

func TestSessionID_Empty(t *testing.T) {
	t.Parallel()
	if got := SessionID(context.Background()); got != "" {
		t.Errorf("SessionID = %q, want empty", got)
	}
}

func TestLogger_Fields(t *testing.T) {
	useTestTracer(t)
	buf := captureLogs(t)

	ctx, span := StartSpan(WithSessionID(context.Background(), "sess-7"), "log-test")
	defer span.End()
	Logger(ctx).Info("hello")

	out := buf.String()
	for _, want := range []string{"trace_id=", "span_id=", "session_id=sess-7"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

func TestLogger_NoSpan(t *testing.T) {
	buf := captureLogs(t)

	Logger(context.Background()).Info("hello")
	if out := buf.String(); strings.Contains(out, "trace_id") || strings.Contains(out, "session_id") {
		t.Errorf("log output has context fields without context: %s", out)
	}
}
