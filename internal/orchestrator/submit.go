package orchestrator

import (
	"context"
	"sync"
	"time"

	"vidmill/internal/logging"
	"vidmill/internal/services"
	"vidmill/internal/task"
)

// runSubmission drains every pending task through the runner under the
// submission ceiling. It returns once every submission RPC has resolved;
// remote completion is the polling loop's concern.
func (o *Orchestrator) runSubmission(ctx context.Context) {
	pending := o.snapshotByStatus(task.StatusPending)
	if len(pending) == 0 {
		return
	}

	sem := make(chan struct{}, o.cfg.MaxSubmitConcurrent)
	var wg sync.WaitGroup
	for _, id := range pending {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			o.submitTask(services.WithTaskID(ctx, id), id)
		}(id)
	}
	wg.Wait()
}

// submitTask submits one task, retrying transient failures in place up to
// MaxRetries. Submission failures never touch sibling tasks.
func (o *Orchestrator) submitTask(ctx context.Context, id string) {
	for {
		o.mu.Lock()
		t, ok := o.tasks[id]
		if !ok || t.Status != task.StatusPending {
			o.mu.Unlock()
			return
		}
		params := map[string]any{
			"content":          t.Content,
			"digital_human_id": t.DigitalHumanID,
			"voice_id":         t.VoiceID,
			"title":            t.Title,
			"project_name":     t.ProjectName,
		}
		attempt := t.RetryCount
		o.mu.Unlock()

		executeID, err := o.runner.Submit(ctx, params)

		o.mu.Lock()
		if err == nil {
			if terr := t.MarkSubmitted(executeID); terr != nil {
				o.mu.Unlock()
				return
			}
			snapshot := t.Clone()
			o.mu.Unlock()
			o.logger.InfoContext(ctx, "task submitted", logging.Args(
				logging.String(logging.FieldTaskID, id),
				logging.String("execute_id", executeID))...)
			o.notifyStatus(ctx, snapshot)
			return
		}

		if attempt < o.cfg.MaxRetries && ctx.Err() == nil {
			t.RetryCount++
			o.mu.Unlock()
			o.logger.WarnContext(ctx, "submission failed, retrying", logging.Args(
				logging.String(logging.FieldTaskID, id),
				logging.Int("attempt", attempt+1),
				logging.Int("max_retries", o.cfg.MaxRetries),
				logging.Error(err))...)
			o.sleep(ctx, o.cfg.SubmitRetryDelay)
			continue
		}

		_ = t.MarkFailed("submission failed: " + err.Error())
		snapshot := t.Clone()
		o.mu.Unlock()
		o.logger.ErrorContext(ctx, "task failed at submission", logging.Args(
			logging.String(logging.FieldTaskID, id),
			logging.Int("retries", attempt),
			logging.Error(err))...)
		o.notifyStatus(ctx, snapshot)
		return
	}
}

// sleep waits for the delay unless the context ends first.
func (o *Orchestrator) sleep(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
