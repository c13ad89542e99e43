package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/raysh454/zapdash/internal/logging"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestWriterLogger_EmitsJSONWithComponentAndFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger(&buf, "reconciler")

	l.Info("tick started", logging.Field{Key: "pending", Value: 3})

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0]["msg"] != "tick started" {
		t.Errorf("unexpected msg: %v", lines[0]["msg"])
	}
	if lines[0]["component"] != "reconciler" {
		t.Errorf("unexpected component: %v", lines[0]["component"])
	}
	if lines[0]["pending"] != float64(3) {
		t.Errorf("unexpected pending field: %v", lines[0]["pending"])
	}
}

func TestWriterLogger_ErrorValuesRenderAsMessage(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger(&buf, "")

	l.Warn("query failed", logging.Field{Key: "error", Value: errors.New("connection refused")})

	lines := decodeLines(t, &buf)
	if lines[0]["error"] != "connection refused" {
		t.Errorf("expected error message, got %v", lines[0]["error"])
	}
}

func TestWith_AddsPersistentFields(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	l := logging.NewWriterLogger(&buf, "app").With(logging.Field{Key: "record_id", Value: "r1"})

	l.Debug("one")
	l.Error("two")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		if line["record_id"] != "r1" {
			t.Errorf("expected persistent record_id, got %v", line["record_id"])
		}
	}
}

func TestNewLogger_FileSink(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "logs", "zapdash.log")
	l, closer, err := logging.NewLogger(logging.Config{Level: "debug", File: path}, "test")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closer.Close()
	l.Info("hello")
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	t.Parallel()
	l, closer, err := logging.NewLogger(logging.Config{Level: "loud", Format: "text"}, "")
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	defer closer.Close()
	if l == nil {
		t.Fatal("expected logger")
	}
}
