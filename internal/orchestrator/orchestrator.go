package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"vidmill/internal/config"
	"vidmill/internal/logging"
	"vidmill/internal/services"
	"vidmill/internal/services/coze"
	"vidmill/internal/synthesis"
	"vidmill/internal/task"
)

// Config carries the concurrency and polling knobs for one batch run. The
// zero value is usable: missing fields fall back to the defaults below.
type Config struct {
	MaxSubmitConcurrent int
	MaxSynthesisWorkers int
	PollCheckers        int
	PollInterval        time.Duration
	MaxRetries          int
	MaxPollFailures     int
	SubmitRetryDelay    time.Duration
}

// FromConfig converts the TOML orchestrator section.
func FromConfig(section config.Orchestrator) Config {
	return Config{
		MaxSubmitConcurrent: section.MaxSubmitConcurrent,
		MaxSynthesisWorkers: section.MaxSynthesisWorkers,
		PollCheckers:        section.PollCheckers,
		PollInterval:        time.Duration(section.PollInterval) * time.Second,
		MaxRetries:          section.MaxRetries,
		MaxPollFailures:     section.MaxPollFailures,
		SubmitRetryDelay:    time.Duration(section.SubmitRetryDelay) * time.Second,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxSubmitConcurrent <= 0 {
		c.MaxSubmitConcurrent = 16
	}
	if c.MaxSynthesisWorkers <= 0 {
		c.MaxSynthesisWorkers = 4
	}
	if c.PollCheckers <= 0 {
		c.PollCheckers = 8
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxPollFailures <= 0 {
		c.MaxPollFailures = 10
	}
	if c.SubmitRetryDelay <= 0 {
		c.SubmitRetryDelay = 2 * time.Second
	}
	return c
}

// Orchestrator owns the task table for one batch.
type Orchestrator struct {
	cfg       Config
	runner    coze.Runner
	synth     synthesis.Service
	logger    *slog.Logger
	listeners []Listener
	batchID   string

	mu    sync.Mutex
	tasks map[string]*task.Task
	order []string

	started    bool
	cancel     context.CancelFunc
	done       chan struct{}
	synthWG    sync.WaitGroup
	synthSlots chan struct{}
	startedAt  time.Time
	finishedAt time.Time
}

// New constructs an orchestrator. Listeners are fixed at construction.
func New(cfg Config, runner coze.Runner, synth synthesis.Service, logger *slog.Logger, listeners ...Listener) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		cfg:        cfg,
		runner:     runner,
		synth:      synth,
		logger:     logging.NewComponentLogger(logger, "orchestrator"),
		listeners:  listeners,
		batchID:    uuid.NewString(),
		tasks:      make(map[string]*task.Task),
		done:       make(chan struct{}),
		synthSlots: make(chan struct{}, cfg.MaxSynthesisWorkers),
	}
}

// BatchID returns the identifier assigned to this batch run.
func (o *Orchestrator) BatchID() string { return o.batchID }

// AddTask appends one pending task to the table and returns a clone of it.
func (o *Orchestrator) AddTask(p task.Params) *task.Task {
	t := task.New(p)
	o.mu.Lock()
	o.tasks[t.ID] = t
	o.order = append(o.order, t.ID)
	o.mu.Unlock()
	return t.Clone()
}

// AddTasks appends a batch of pending tasks.
func (o *Orchestrator) AddTasks(params []task.Params) []*task.Task {
	added := make([]*task.Task, 0, len(params))
	for _, p := range params {
		added = append(added, o.AddTask(p))
	}
	return added
}

// StartBatchProcessing runs the submission stage synchronously, then starts
// the polling loop in the background and returns. Callers follow up with
// WaitForCompletion.
func (o *Orchestrator) StartBatchProcessing(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return errors.New("batch already started")
	}
	if len(o.tasks) == 0 {
		o.mu.Unlock()
		return errors.New("no tasks loaded")
	}
	o.started = true
	o.startedAt = time.Now().UTC()
	total := len(o.tasks)
	runCtx, cancel := context.WithCancel(services.WithBatchID(ctx, o.batchID))
	o.cancel = cancel
	o.mu.Unlock()

	o.logger.InfoContext(runCtx, "batch started", logging.Args(
		logging.String(logging.FieldBatchID, o.batchID),
		logging.Int("tasks", total))...)

	o.runSubmission(runCtx)
	go o.pollLoop(runCtx)
	return nil
}

// WaitForCompletion blocks until the polling loop has signaled quiescence
// and returns the final statistics.
func (o *Orchestrator) WaitForCompletion() Stats {
	<-o.done
	return o.Stats()
}

// Stop requests cooperative termination of the batch. In-flight RPCs see
// their context canceled; Stop does not wait for them.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// snapshotByStatus returns the ids of tasks currently in any of the given
// statuses, in insertion order.
func (o *Orchestrator) snapshotByStatus(statuses ...task.Status) []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	var ids []string
	for _, id := range o.order {
		current := o.tasks[id].Status
		for _, status := range statuses {
			if current == status {
				ids = append(ids, id)
				break
			}
		}
	}
	return ids
}

// quiescent reports whether no task remains in a non-terminal state. A task
// in COMPLETED is still active: it is waiting for a synthesis slot.
func (o *Orchestrator) quiescent() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, t := range o.tasks {
		if !t.Status.IsTerminal() {
			return false
		}
	}
	return true
}
