package task_test

import (
	"testing"

	"vidmill/internal/task"
)

func newTask(t *testing.T) *task.Task {
	t.Helper()
	tk := task.New(task.Params{
		Content:        "hello world",
		DigitalHumanID: "dh-1",
		VoiceID:        "voice-1",
		Title:          "Demo",
		ProjectName:    "demo-project",
	})
	if tk.ID == "" {
		t.Fatal("expected task ID assigned")
	}
	if tk.Status != task.StatusPending {
		t.Fatalf("expected pending, got %s", tk.Status)
	}
	return tk
}

func TestHappyPathTransitions(t *testing.T) {
	tk := newTask(t)

	if err := tk.MarkSubmitted("exec-1"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	if tk.ExecuteID != "exec-1" || tk.SubmittedAt == nil {
		t.Fatalf("submission fields not recorded: %+v", tk)
	}
	if err := tk.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := tk.MarkRunning(); err != nil {
		t.Fatalf("MarkRunning should be idempotent: %v", err)
	}
	if err := tk.MarkCompleted(`{"video_url":"u"}`); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if tk.ResultPayload == "" || tk.CompletedAt == nil {
		t.Fatalf("completion fields not recorded: %+v", tk)
	}
	if err := tk.MarkSynthesizing(); err != nil {
		t.Fatalf("MarkSynthesizing: %v", err)
	}
	if err := tk.MarkFinished("/tmp/out.json"); err != nil {
		t.Fatalf("MarkFinished: %v", err)
	}
	if tk.OutputPath != "/tmp/out.json" {
		t.Fatalf("output path not recorded: %+v", tk)
	}
	if !tk.Status.IsTerminal() {
		t.Fatal("finished must be terminal")
	}
}

func TestCompletedDirectlyFromSubmitted(t *testing.T) {
	tk := newTask(t)
	if err := tk.MarkSubmitted("exec-2"); err != nil {
		t.Fatalf("MarkSubmitted: %v", err)
	}
	// Polling may observe success without ever seeing the running state.
	if err := tk.MarkCompleted("{}"); err != nil {
		t.Fatalf("MarkCompleted from submitted: %v", err)
	}
}

func TestFailedReachableFromEveryNonTerminalState(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*task.Task)
	}{
		{"pending", func(*task.Task) {}},
		{"submitted", func(tk *task.Task) { _ = tk.MarkSubmitted("e") }},
		{"running", func(tk *task.Task) { _ = tk.MarkSubmitted("e"); _ = tk.MarkRunning() }},
		{"completed", func(tk *task.Task) { _ = tk.MarkSubmitted("e"); _ = tk.MarkCompleted("{}") }},
		{"synthesizing", func(tk *task.Task) {
			_ = tk.MarkSubmitted("e")
			_ = tk.MarkCompleted("{}")
			_ = tk.MarkSynthesizing()
		}},
	}
	for _, tc := range cases {
		tk := newTask(t)
		tc.setup(tk)
		if err := tk.MarkFailed("boom"); err != nil {
			t.Errorf("%s: MarkFailed: %v", tc.name, err)
			continue
		}
		if tk.ErrorMessage != "boom" || tk.CompletedAt == nil {
			t.Errorf("%s: failure fields not recorded: %+v", tc.name, tk)
		}
	}
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	finished := newTask(t)
	_ = finished.MarkSubmitted("e")
	_ = finished.MarkCompleted("{}")
	_ = finished.MarkSynthesizing()
	_ = finished.MarkFinished("/out")

	failed := newTask(t)
	_ = failed.MarkFailed("nope")

	for _, tk := range []*task.Task{finished, failed} {
		for _, next := range task.AllStatuses() {
			if err := tk.Transition(next); err == nil {
				t.Fatalf("expected terminal %s to reject transition to %s", tk.Status, next)
			}
		}
	}
}

func TestIllegalSkipsRejected(t *testing.T) {
	tk := newTask(t)
	if err := tk.MarkSynthesizing(); err == nil {
		t.Fatal("pending -> synthesizing must be rejected")
	}
	if err := tk.MarkFinished("/out"); err == nil {
		t.Fatal("pending -> finished must be rejected")
	}
	if err := tk.MarkRunning(); err == nil {
		t.Fatal("pending -> running must be rejected")
	}
}

func TestParseStatus(t *testing.T) {
	if s, ok := task.ParseStatus(" Finished "); !ok || s != task.StatusFinished {
		t.Fatalf("ParseStatus finished: %v %v", s, ok)
	}
	if _, ok := task.ParseStatus("nonsense"); ok {
		t.Fatal("expected unknown status to fail parsing")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tk := newTask(t)
	cp := tk.Clone()
	cp.Title = "changed"
	if tk.Title == "changed" {
		t.Fatal("clone must not share mutable fields")
	}
}
