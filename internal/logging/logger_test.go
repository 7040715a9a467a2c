package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogger_ConsoleAndFile(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{enabled: true}
	l.SetConsole(&buf)

	path := filepath.Join(t.TempDir(), "access.log")
	if err := l.SetOutput(path); err != nil {
		t.Fatalf("SetOutput failed: %v", err)
	}
	defer l.Close()

	hit := true
	l.Log(&RequestLog{RequestID: "r1", Method: "GET", Path: "/api/cache/a", Status: 200, Hit: &hit})
	l.Log(&RequestLog{RequestID: "r2", Method: "POST", Path: "/api/cache/b", Status: 500, Error: "boom"})

	out := buf.String()
	if !strings.Contains(out, "✓ r1 GET /api/cache/a 200") || !strings.Contains(out, "[hit]") {
		t.Fatalf("unexpected console output: %q", out)
	}
	if !strings.Contains(out, "✗ r2") || !strings.Contains(out, "error: boom") {
		t.Fatalf("expected failure line with error, got: %q", out)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 JSON lines, got %d", len(lines))
	}
	var rec RequestLog
	if err := json.Unmarshal([]byte(lines[1]), &rec); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if rec.RequestID != "r2" || rec.Status != 500 || rec.Timestamp.IsZero() {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestLogger_Disabled(t *testing.T) {
	var buf bytes.Buffer
	l := &Logger{}
	l.SetConsole(&buf)
	l.SetEnabled(false)

	l.Log(&RequestLog{RequestID: "r1"})
	if buf.Len() != 0 {
		t.Fatalf("disabled logger wrote %q", buf.String())
	}
}

func TestSetLevelFromString(t *testing.T) {
	defer SetLevelFromString("info")

	SetLevelFromString("debug")
	if !Op().Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug level should enable debug records")
	}
	SetLevelFromString("WARN")
	if Op().Enabled(context.Background(), slog.LevelInfo) {
		t.Fatal("warn level should suppress info records")
	}
}

func TestInitStructuredTo_JSON(t *testing.T) {
	defer InitStructured("text", "info")

	var buf bytes.Buffer
	InitStructuredTo(&buf, "json", "info")
	OpWithTrace("abc", "def").Info("sweep finished", "deleted", 3)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "sweep finished" || rec["trace_id"] != "abc" || rec["span_id"] != "def" || rec["service"] != "pulsar" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
		ok   bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"Warning", slog.LevelWarn, true},
		{"error", slog.LevelError, true},
		{"verbose", slog.LevelInfo, false},
	}
	for _, tt := range tests {
		got, ok := ParseLevel(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseLevel(%q) = %v, %v; want %v, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestRequestLogContext(t *testing.T) {
	if RequestLogFrom(context.Background()) != nil {
		t.Fatal("expected no record on a bare context")
	}
	Annotate(context.Background(), "get", "k")

	entry := &RequestLog{}
	ctx := WithRequestLog(context.Background(), entry)
	Annotate(ctx, "get", "k")
	AnnotateHit(ctx, true)

	if entry.Operation != "get" || entry.Key != "k" {
		t.Fatalf("unexpected record %+v", entry)
	}
	if entry.Hit == nil || !*entry.Hit {
		t.Fatal("expected hit to be recorded")
	}
}
