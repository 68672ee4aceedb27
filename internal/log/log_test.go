package log

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *Logger {
	h := slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: level})
	return NewWithHandler(h)
}

func TestLogger_Module(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	child := l.Module("prove")

	child.Info("receipt created")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if entry["module"] != "prove" {
		t.Fatalf("module = %v, want %q", entry["module"], "prove")
	}
	if entry["msg"] != "receipt created" {
		t.Fatalf("msg = %v, want %q", entry["msg"], "receipt created")
	}
}

func TestLogger_ModuleChain(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	child := l.Module("httpapi").With("receipt_id", "abc123")

	child.Info("request handled")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v (raw: %s)", err, buf.String())
	}
	if entry["module"] != "httpapi" {
		t.Fatalf("module = %v, want %q", entry["module"], "httpapi")
	}
	if entry["receipt_id"] != "abc123" {
		t.Fatalf("receipt_id = %v, want %q", entry["receipt_id"], "abc123")
	}
}

func TestLogger_Levels(t *testing.T) {
	tests := []struct {
		level  slog.Level
		logFn  func(l *Logger)
		expect bool
	}{
		{slog.LevelInfo, func(l *Logger) { l.Debug("nope") }, false},
		{slog.LevelInfo, func(l *Logger) { l.Info("proving started") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Warn("webhook retry") }, true},
		{slog.LevelInfo, func(l *Logger) { l.Error("verify failed") }, true},
		{slog.LevelWarn, func(l *Logger) { l.Info("nope") }, false},
		{slog.LevelWarn, func(l *Logger) { l.Warn("rate limited") }, true},
		{slog.LevelDebug, func(l *Logger) { l.Debug("cache miss") }, true},
	}

	for i, tt := range tests {
		var buf bytes.Buffer
		l := newTestLogger(&buf, tt.level)
		tt.logFn(l)

		got := buf.Len() > 0
		if got != tt.expect {
			t.Errorf("test %d: output=%v, want %v (level=%v, buf=%s)",
				i, got, tt.expect, tt.level, buf.String())
		}
	}
}

func TestLogger_KeyValueArgs(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)

	l.Info("proof verified", "receipt_id", "r-1", "prove_time_ms", 420)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := entry["prove_time_ms"].(float64); !ok || v != 420 {
		t.Fatalf("prove_time_ms = %v, want 420", entry["prove_time_ms"])
	}
	if entry["receipt_id"] != "r-1" {
		t.Fatalf("receipt_id = %v, want %q", entry["receipt_id"], "r-1")
	}
}

func TestDefaultLogger(t *testing.T) {
	if Default() == nil {
		t.Fatal("Default() returned nil")
	}

	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelInfo)
	SetDefault(l)
	defer SetDefault(New(slog.LevelInfo))

	Info("model registry loaded", "count", 3)
	if !strings.Contains(buf.String(), "model registry loaded") {
		t.Fatalf("output missing message: %s", buf.String())
	}

	// SetDefault(nil) must be a no-op.
	SetDefault(nil)
	if Default() != l {
		t.Fatal("SetDefault(nil) replaced the logger")
	}
}

func TestPackageLevelFunctions(t *testing.T) {
	var buf bytes.Buffer
	l := newTestLogger(&buf, slog.LevelDebug)
	SetDefault(l)
	defer SetDefault(New(slog.LevelInfo))

	Debug("preprocessing started")
	Info("preprocessing complete")
	Warn("webhook delivery retrying")
	Error("proof verification failed")

	out := buf.String()
	for _, msg := range []string{"preprocessing started", "preprocessing complete", "webhook delivery retrying", "proof verification failed"} {
		if !strings.Contains(out, msg) {
			t.Errorf("missing message %q in output", msg)
		}
	}
}
