package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"vidmill/internal/logging"
	"vidmill/internal/services"
	"vidmill/internal/services/coze"
	"vidmill/internal/task"
)

// pollLoop is the single background loop that drives every in-flight task
// to a terminal state. It is the only goroutine with a sleep/wake cycle.
func (o *Orchestrator) pollLoop(ctx context.Context) {
	defer close(o.done)
	defer o.synthWG.Wait()

	for {
		if ctx.Err() != nil {
			o.logger.InfoContext(ctx, "batch stopped before quiescence",
				logging.Args(logging.String(logging.FieldBatchID, o.batchID))...)
			return
		}

		inflight := o.snapshotByStatus(task.StatusSubmitted, task.StatusRunning)
		if len(inflight) == 0 {
			if o.quiescent() {
				o.finishBatch(ctx)
				return
			}
			// Synthesis is still draining; check again shortly.
			o.sleep(ctx, o.cfg.PollInterval)
			continue
		}

		o.checkTasks(ctx, inflight)
		o.logProgress(ctx)
		o.sleep(ctx, o.cfg.PollInterval)
	}
}

// checkTasks polls every snapshotted task under the checker ceiling. Tasks
// that complete in this pass are dispatched to synthesis before the pass
// returns, not on the next loop iteration.
func (o *Orchestrator) checkTasks(ctx context.Context, ids []string) {
	sem := make(chan struct{}, o.cfg.PollCheckers)
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.checkTask(services.WithTaskID(ctx, id), id)
		}(id)
	}
	wg.Wait()
}

func (o *Orchestrator) checkTask(ctx context.Context, id string) {
	o.mu.Lock()
	t, ok := o.tasks[id]
	if !ok || (t.Status != task.StatusSubmitted && t.Status != task.StatusRunning) {
		o.mu.Unlock()
		return
	}
	executeID := t.ExecuteID
	o.mu.Unlock()

	result, err := o.runner.Poll(ctx, executeID)

	o.mu.Lock()
	if t.Status != task.StatusSubmitted && t.Status != task.StatusRunning {
		o.mu.Unlock()
		return
	}

	if err != nil {
		// One poll error is not a task failure; only a run of them is.
		t.PollFailures++
		if t.PollFailures >= o.cfg.MaxPollFailures {
			_ = t.MarkFailed(fmt.Sprintf("status checks failed %d consecutive times: %v", t.PollFailures, err))
			snapshot := t.Clone()
			o.mu.Unlock()
			o.logger.ErrorContext(ctx, "task failed after repeated poll errors", logging.Args(
				logging.String(logging.FieldTaskID, id),
				logging.Int("poll_failures", snapshot.PollFailures),
				logging.Error(err))...)
			o.notifyStatus(ctx, snapshot)
			return
		}
		failures := t.PollFailures
		o.mu.Unlock()
		o.logger.WarnContext(ctx, "status check failed, will retry next pass", logging.Args(
			logging.String(logging.FieldTaskID, id),
			logging.Int("poll_failures", failures),
			logging.Error(err))...)
		return
	}
	t.PollFailures = 0

	switch result.State {
	case coze.StateRunning:
		if t.Status == task.StatusRunning {
			o.mu.Unlock()
			return
		}
		if err := t.MarkRunning(); err != nil {
			o.mu.Unlock()
			return
		}
		snapshot := t.Clone()
		o.mu.Unlock()
		o.notifyStatus(ctx, snapshot)

	case coze.StateSuccess:
		if err := t.MarkCompleted(result.Payload); err != nil {
			o.mu.Unlock()
			return
		}
		snapshot := t.Clone()
		o.mu.Unlock()
		o.logger.InfoContext(ctx, "remote execution completed", logging.Args(
			logging.String(logging.FieldTaskID, id))...)
		o.notifyStatus(ctx, snapshot)
		o.dispatchSynthesis(ctx, id)

	case coze.StateFailure:
		_ = t.MarkFailed(result.Message)
		snapshot := t.Clone()
		o.mu.Unlock()
		o.logger.ErrorContext(ctx, "remote execution failed", logging.Args(
			logging.String(logging.FieldTaskID, id),
			logging.String("reason", result.Message))...)
		o.notifyStatus(ctx, snapshot)

	default:
		o.mu.Unlock()
	}
}

// dispatchSynthesis hands one completed task to the synthesis pool. The
// worker takes a slot before transitioning to SYNTHESIZING, so the number
// of concurrent Synthesize calls never exceeds MaxSynthesisWorkers.
func (o *Orchestrator) dispatchSynthesis(ctx context.Context, id string) {
	o.synthWG.Add(1)
	go func() {
		defer o.synthWG.Done()
		select {
		case o.synthSlots <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-o.synthSlots }()

		o.mu.Lock()
		t, ok := o.tasks[id]
		if !ok || t.MarkSynthesizing() != nil {
			o.mu.Unlock()
			return
		}
		snapshot := t.Clone()
		o.mu.Unlock()
		o.notifyStatus(ctx, snapshot)

		outputPath, err := o.synthesizeSafely(ctx, snapshot)

		o.mu.Lock()
		if err != nil {
			_ = t.MarkFailed("synthesis failed: " + err.Error())
		} else {
			_ = t.MarkFinished(outputPath)
		}
		terminal := t.Clone()
		o.mu.Unlock()

		if err != nil {
			o.logger.ErrorContext(ctx, "synthesis failed", logging.Args(
				logging.String(logging.FieldTaskID, id),
				logging.Error(err))...)
		} else {
			o.logger.InfoContext(ctx, "task finished", logging.Args(
				logging.String(logging.FieldTaskID, id),
				logging.String("output", outputPath))...)
		}
		o.notifyStatus(ctx, terminal)
	}()
}

// synthesizeSafely contains panics from the synthesis implementation; a
// panicking worker maps to a failed task, never a crashed pool.
func (o *Orchestrator) synthesizeSafely(ctx context.Context, snapshot *task.Task) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("synthesis panic: %v", r)
		}
	}()
	return o.synth.Synthesize(services.WithStage(services.WithTaskID(ctx, snapshot.ID), "synthesis"), snapshot)
}

func (o *Orchestrator) finishBatch(ctx context.Context) {
	o.mu.Lock()
	o.finishedAt = time.Now().UTC()
	var finished, failed int
	for _, t := range o.tasks {
		switch t.Status {
		case task.StatusFinished:
			finished++
		case task.StatusFailed:
			failed++
		}
	}
	elapsed := o.finishedAt.Sub(o.startedAt)
	o.mu.Unlock()

	o.logger.InfoContext(ctx, "batch finished", logging.Args(
		logging.String(logging.FieldBatchID, o.batchID),
		logging.Int("finished", finished),
		logging.Int("failed", failed),
		logging.Duration("elapsed", elapsed))...)
	o.notifyBatchFinished(ctx, finished, failed)
}

func (o *Orchestrator) logProgress(ctx context.Context) {
	stats := o.Stats()
	o.logger.InfoContext(ctx, "batch progress", logging.Args(
		logging.String(logging.FieldBatchID, o.batchID),
		logging.Int("pending", stats.Pending),
		logging.Int("submitted", stats.Submitted),
		logging.Int("running", stats.Running),
		logging.Int("completed", stats.Completed),
		logging.Int("synthesizing", stats.Synthesizing),
		logging.Int("finished", stats.Finished),
		logging.Int("failed", stats.Failed))...)
}
