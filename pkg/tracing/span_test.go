package tracing

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestChildSpansInheritTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "search", "trace-1")
	_, child := StartChildSpan(ctx, "pagerank")
	child.SetAttr("nodes", 12)
	child.End()
	root.End()

	if child.TraceID != "trace-1" || len(root.Children) != 1 {
		t.Fatalf("child not linked: %+v", root)
	}

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	if !strings.Contains(out, "span=pagerank") || !strings.Contains(out, "nodes=12") || !strings.Contains(out, "depth=1") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestLogSkippedAboveDebug(t *testing.T) {
	_, span := StartSpan(context.Background(), "search", "t")
	span.End()
	var buf bytes.Buffer
	span.Log(slog.New(slog.NewTextHandler(&buf, nil)))
	if buf.Len() != 0 {
		t.Errorf("expected no output at info level, got %q", buf.String())
	}
}

func TestDetachedChild(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	if span.TraceID != "" {
		t.Errorf("detached span got trace id %q", span.TraceID)
	}
}
