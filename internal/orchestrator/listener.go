package orchestrator

import (
	"context"

	"vidmill/internal/task"
)

// Listener observes batch progress. Implementations receive a private clone
// of the task and must not block for long: callbacks run on stage goroutines.
// Listeners are registered at construction and never change afterwards.
type Listener interface {
	// OnTaskStatusChanged fires after every committed state transition.
	OnTaskStatusChanged(ctx context.Context, t *task.Task)
	// OnBatchFinished fires once, when every task has reached a terminal state.
	OnBatchFinished(ctx context.Context, finished, failed int)
}

func (o *Orchestrator) notifyStatus(ctx context.Context, snapshot *task.Task) {
	for _, listener := range o.listeners {
		listener.OnTaskStatusChanged(ctx, snapshot)
	}
}

func (o *Orchestrator) notifyBatchFinished(ctx context.Context, finished, failed int) {
	for _, listener := range o.listeners {
		listener.OnBatchFinished(ctx, finished, failed)
	}
}
