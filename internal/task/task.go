package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Status represents the lifecycle of a task.
type Status string

const (
	StatusPending      Status = "pending"
	StatusSubmitted    Status = "submitted"
	StatusRunning      Status = "running"
	StatusCompleted    Status = "completed"
	StatusSynthesizing Status = "synthesizing"
	StatusFinished     Status = "finished"
	StatusFailed       Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusSubmitted,
	StatusRunning,
	StatusCompleted,
	StatusSynthesizing,
	StatusFinished,
	StatusFailed,
}

// legalTransitions maps each status to the statuses reachable from it.
// Failed is reachable from every non-terminal state; finished and failed
// are terminal.
var legalTransitions = map[Status][]Status{
	StatusPending:      {StatusSubmitted, StatusFailed},
	StatusSubmitted:    {StatusRunning, StatusCompleted, StatusFailed},
	StatusRunning:      {StatusCompleted, StatusFailed},
	StatusCompleted:    {StatusSynthesizing, StatusFailed},
	StatusSynthesizing: {StatusFinished, StatusFailed},
	StatusFinished:     {},
	StatusFailed:       {},
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	for _, status := range allStatuses {
		if status == normalized {
			return normalized, true
		}
	}
	return "", false
}

// IsTerminal reports whether a status admits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range legalTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Task is one unit of work carried end-to-end through remote execution and
// synthesis. Identity (ID) never changes; state mutations happen under the
// orchestrator's table lock.
type Task struct {
	ID             string     `json:"task_id"`
	Content        string     `json:"content"`
	DigitalHumanID string     `json:"digital_human_id"`
	VoiceID        string     `json:"voice_id"`
	Title          string     `json:"title"`
	ProjectName    string     `json:"project_name"`
	SourceRowID    string     `json:"source_row_id,omitempty"`
	ExecuteID      string     `json:"execute_id,omitempty"`
	Status         Status     `json:"status"`
	SubmittedAt    *time.Time `json:"submitted_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	ResultPayload  string     `json:"result_payload,omitempty"`
	OutputPath     string     `json:"output_path,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	RetryCount     int        `json:"retry_count"`
	PollFailures   int        `json:"-"`
}

// Params carries the caller-supplied fields for a new task.
type Params struct {
	Content        string
	DigitalHumanID string
	VoiceID        string
	Title          string
	ProjectName    string
	SourceRowID    string
}

// New creates a pending task with a fresh identifier.
func New(p Params) *Task {
	return &Task{
		ID:             uuid.NewString(),
		Content:        p.Content,
		DigitalHumanID: p.DigitalHumanID,
		VoiceID:        p.VoiceID,
		Title:          p.Title,
		ProjectName:    p.ProjectName,
		SourceRowID:    p.SourceRowID,
		Status:         StatusPending,
	}
}

// Transition moves the task to the next status, rejecting illegal moves.
func (t *Task) Transition(next Status) error {
	if !t.Status.CanTransition(next) {
		return fmt.Errorf("illegal transition %s -> %s for task %s", t.Status, next, t.ID)
	}
	t.Status = next
	return nil
}

// MarkSubmitted records a successful submission.
func (t *Task) MarkSubmitted(executeID string) error {
	if err := t.Transition(StatusSubmitted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.ExecuteID = executeID
	t.SubmittedAt = &now
	return nil
}

// MarkRunning records that polling observed the remote run in progress.
// The submitted -> running move is idempotent: observing running twice is
// not an error.
func (t *Task) MarkRunning() error {
	if t.Status == StatusRunning {
		return nil
	}
	return t.Transition(StatusRunning)
}

// MarkCompleted records a successful remote execution with its payload.
// CompletedAt is provisional here; it is finalized by the terminal
// transition out of synthesis.
func (t *Task) MarkCompleted(payload string) error {
	if err := t.Transition(StatusCompleted); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.ResultPayload = payload
	t.CompletedAt = &now
	return nil
}

// MarkSynthesizing records dispatch into the synthesis pool.
func (t *Task) MarkSynthesizing() error {
	return t.Transition(StatusSynthesizing)
}

// MarkFinished records successful synthesis and the produced artifact path.
func (t *Task) MarkFinished(outputPath string) error {
	if err := t.Transition(StatusFinished); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.OutputPath = outputPath
	t.CompletedAt = &now
	return nil
}

// MarkFailed records a terminal failure with its message.
func (t *Task) MarkFailed(message string) error {
	if err := t.Transition(StatusFailed); err != nil {
		return err
	}
	now := time.Now().UTC()
	t.ErrorMessage = message
	t.CompletedAt = &now
	return nil
}

// Clone returns a shallow copy safe to hand to callers outside the table lock.
func (t *Task) Clone() *Task {
	cp := *t
	return &cp
}
