package notifications

import (
	"context"
	"log/slog"
	"time"

	"vidmill/internal/logging"
	"vidmill/internal/task"
)

// BatchListener adapts the notification service to the orchestrator's
// listener surface. Send failures are logged and swallowed.
type BatchListener struct {
	service   Service
	logger    *slog.Logger
	startedAt time.Time
}

// NewBatchListener wraps a service for use as an orchestrator listener.
func NewBatchListener(service Service, logger *slog.Logger) *BatchListener {
	return &BatchListener{
		service:   service,
		logger:    logging.NewComponentLogger(logger, "notifications"),
		startedAt: time.Now(),
	}
}

// OnTaskStatusChanged pushes an alert for every terminal failure.
func (l *BatchListener) OnTaskStatusChanged(ctx context.Context, t *task.Task) {
	if l == nil || l.service == nil || t.Status != task.StatusFailed {
		return
	}
	if err := l.service.NotifyTaskFailed(ctx, t.Title, t.ErrorMessage); err != nil {
		l.logger.WarnContext(ctx, "task failure notification not delivered", logging.Args(
			logging.String(logging.FieldTaskID, t.ID),
			logging.Error(err))...)
	}
}

// OnBatchFinished pushes the batch summary.
func (l *BatchListener) OnBatchFinished(ctx context.Context, finished, failed int) {
	if l == nil || l.service == nil {
		return
	}
	if err := l.service.NotifyBatchCompleted(ctx, finished, failed, time.Since(l.startedAt)); err != nil {
		l.logger.WarnContext(ctx, "batch notification not delivered", logging.Error(err))
	}
}
