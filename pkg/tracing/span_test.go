package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestSpanTree(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "req-1")
	_, child := StartChildSpan(ctx, "index:genes")
	child.SetAttr("results", 3)
	child.End()

	if len(root.Children) != 1 || root.Children[0].TraceID != "req-1" {
		t.Fatalf("children = %+v", root.Children)
	}
	if SpanFromContext(ctx) != root {
		t.Error("context does not carry the root span")
	}

	var buf bytes.Buffer
	tracer := NewTracer(true, 1, slog.New(slog.NewTextHandler(&buf, nil)))
	tracer.Finish(root)
	out := buf.String()
	if strings.Count(out, "msg=span") != 2 || !strings.Contains(out, "results=3") {
		t.Errorf("log output:\n%s", out)
	}
}

func TestTracerDisabled(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewTracer(false, 1, slog.New(slog.NewTextHandler(&buf, nil)))
	_, root := StartSpan(context.Background(), "search", "req-1")
	tracer.Finish(root)
	if buf.Len() != 0 {
		t.Errorf("disabled tracer logged %q", buf.String())
	}
	var nilTracer *Tracer
	nilTracer.Finish(root)
}
