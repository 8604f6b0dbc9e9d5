package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/uuid"
)

func TestSlogBridge_AddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "debug", Component: "search"}, &buf)
	log := NewSlog(&zl)

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithCollection(ctx, "naip")
	log.InfoContext(ctx, "store query", "rows", 3)

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-1" || line["collection"] != "naip" || line["component"] != "search" {
		t.Fatalf("missing context fields: %v", line)
	}
	if line["msg"] != "store query" || line["rows"] != float64(3) {
		t.Fatalf("unexpected line: %v", line)
	}
}

func TestWithRequestID_Generates(t *testing.T) {
	ctx := WithRequestID(context.Background(), "")
	if _, err := uuid.Parse(RequestID(ctx)); err != nil {
		t.Fatalf("expected generated uuid, got %q: %v", RequestID(ctx), err)
	}
	ctx = WithCollection(ctx, "naip")
	if RequestID(WithComponent(ctx, "http")) != RequestID(ctx) {
		t.Fatal("adding fields dropped the request id")
	}
}

func TestSlogBridge_GroupsAndLevel(t *testing.T) {
	var buf bytes.Buffer
	zl := Build(Config{Level: "info"}, &buf)
	log := NewSlog(&zl)

	log.Debug("dropped")
	if buf.Len() != 0 {
		t.Fatalf("debug line written at info level: %q", buf.String())
	}

	log.WithGroup("store").Info("opened", "href", "a.sqlite", slog.Group("pool", "size", 4))
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if line["store.href"] != "a.sqlite" || line["store.pool.size"] != float64(4) {
		t.Fatalf("group keys not flattened: %v", line)
	}
}
