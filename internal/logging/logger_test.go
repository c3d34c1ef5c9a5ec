package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"vidmill/internal/services"
)

func TestConsoleHandlerFormatsComponent(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger = NewComponentLogger(logger, "orchestrator")
	logger.Info("batch started", Int("tasks", 5), String("batch_id", "b-1"))

	line := buf.String()
	if !strings.Contains(line, "INFO orchestrator: batch started") {
		t.Fatalf("unexpected line: %q", line)
	}
	if !strings.Contains(line, "tasks=5") || !strings.Contains(line, "batch_id=b-1") {
		t.Fatalf("missing attrs in line: %q", line)
	}
}

func TestConsoleHandlerQuotesValues(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	logger.Warn("task failed", String("reason", "remote says no"))
	if !strings.Contains(buf.String(), `reason="remote says no"`) {
		t.Fatalf("expected quoted value, got %q", buf.String())
	}
}

func TestWithContextAddsFields(t *testing.T) {
	var buf bytes.Buffer
	lvl := new(slog.LevelVar)
	logger := slog.New(newConsoleHandler(&buf, lvl))

	ctx := services.WithBatchID(context.Background(), "batch-7")
	ctx = services.WithTaskID(ctx, "task-3")
	ctx = services.WithStage(ctx, "polling")

	WithContext(ctx, logger).Info("checking")
	line := buf.String()
	for _, want := range []string{"batch_id=batch-7", "task_id=task-3", "stage=polling"} {
		if !strings.Contains(line, want) {
			t.Fatalf("missing %q in %q", want, line)
		}
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New(Options{Format: "yaml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}
