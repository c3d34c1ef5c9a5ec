package orchestrator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"vidmill/internal/task"
)

// Stats is a point-in-time count of tasks per state plus batch timing.
type Stats struct {
	Total        int        `json:"total"`
	Pending      int        `json:"pending"`
	Submitted    int        `json:"submitted"`
	Running      int        `json:"running"`
	Completed    int        `json:"completed"`
	Synthesizing int        `json:"synthesizing"`
	Finished     int        `json:"finished"`
	Failed       int        `json:"failed"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	SuccessRate  float64    `json:"success_rate"`
}

// Terminal reports whether every task has reached a terminal state.
func (s Stats) Terminal() bool {
	return s.Total > 0 && s.Finished+s.Failed == s.Total
}

// Stats computes the current per-state counts under the table lock.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()

	stats := Stats{Total: len(o.tasks), StartedAt: o.startedAt}
	if !o.finishedAt.IsZero() {
		finishedAt := o.finishedAt
		stats.FinishedAt = &finishedAt
	}
	for _, t := range o.tasks {
		switch t.Status {
		case task.StatusPending:
			stats.Pending++
		case task.StatusSubmitted:
			stats.Submitted++
		case task.StatusRunning:
			stats.Running++
		case task.StatusCompleted:
			stats.Completed++
		case task.StatusSynthesizing:
			stats.Synthesizing++
		case task.StatusFinished:
			stats.Finished++
		case task.StatusFailed:
			stats.Failed++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Finished) / float64(stats.Total)
	}
	return stats
}

// Results returns clones of every task in insertion order.
func (o *Orchestrator) Results() []*task.Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	results := make([]*task.Task, 0, len(o.order))
	for _, id := range o.order {
		results = append(results, o.tasks[id].Clone())
	}
	return results
}

type resultsDocument struct {
	BatchID string       `json:"batch_id"`
	Stats   Stats        `json:"stats"`
	Tasks   []*task.Task `json:"tasks"`
}

// SaveResults exports the batch outcome, one entry per task, as JSON.
func (o *Orchestrator) SaveResults(path string) error {
	document := resultsDocument{
		BatchID: o.batchID,
		Stats:   o.Stats(),
		Tasks:   o.Results(),
	}
	encoded, err := json.MarshalIndent(document, "", "  ")
	if err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create results dir: %w", err)
		}
	}
	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}
