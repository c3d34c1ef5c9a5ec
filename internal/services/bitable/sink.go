package bitable

import (
	"context"
	"log/slog"

	"vidmill/internal/logging"
	"vidmill/internal/task"
)

// statusLabels maps internal statuses to the values operators see in the
// status column. Intermediate poll states are deliberately not written; the
// table only needs the coarse milestones.
var statusLabels = map[task.Status]string{
	task.StatusSubmitted: "Processing",
	task.StatusFinished:  "Completed",
	task.StatusFailed:    "Failed",
}

// StatusSink mirrors task milestones back into the source table. Write
// failures are logged and swallowed so the table can never stall the batch.
type StatusSink struct {
	client *Client
	logger *slog.Logger
}

// NewStatusSink builds a sink around an existing client.
func NewStatusSink(client *Client, logger *slog.Logger) *StatusSink {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &StatusSink{client: client, logger: logging.NewComponentLogger(logger, "bitable")}
}

// OnTaskStatusChanged writes the new status to the task's source row, if any.
func (s *StatusSink) OnTaskStatusChanged(ctx context.Context, t *task.Task) {
	if s == nil || s.client == nil || t.SourceRowID == "" {
		return
	}
	label, ok := statusLabels[t.Status]
	if !ok {
		return
	}
	errorMessage := ""
	if t.Status == task.StatusFailed {
		errorMessage = t.ErrorMessage
	}
	if err := s.client.UpdateStatus(ctx, t.SourceRowID, label, errorMessage); err != nil {
		s.logger.WarnContext(ctx, "status write-back failed", logging.Args(
			logging.String(logging.FieldTaskID, t.ID),
			logging.String("record_id", t.SourceRowID),
			logging.Error(err))...)
	}
}

// OnBatchFinished satisfies the orchestrator listener surface; the table has
// no batch-level cell to update.
func (s *StatusSink) OnBatchFinished(ctx context.Context, finished, failed int) {}
