package notifications_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"vidmill/internal/notifications"
	"vidmill/internal/task"
	"vidmill/internal/testsupport"
)

type capturedRequest struct {
	title    string
	message  string
	tags     string
	priority string
}

func newNtfyService(t *testing.T) (notifications.Service, *[]capturedRequest) {
	t.Helper()
	var requests []capturedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests = append(requests, capturedRequest{
			title:    r.Header.Get("Title"),
			message:  string(body),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
		})
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	return notifications.NewService(cfg), &requests
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := notifications.NewService(cfg)
	if err := svc.NotifyBatchStarted(context.Background(), 5); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	svc, requests := newNtfyService(t)
	ctx := context.Background()

	if err := svc.NotifyBatchStarted(ctx, 7); err != nil {
		t.Fatalf("NotifyBatchStarted: %v", err)
	}
	if err := svc.NotifyBatchCompleted(ctx, 6, 1, 90*time.Second); err != nil {
		t.Fatalf("NotifyBatchCompleted: %v", err)
	}
	if err := svc.NotifyTaskFailed(ctx, "City Walk", "remote execution failed"); err != nil {
		t.Fatalf("NotifyTaskFailed: %v", err)
	}

	got := *requests
	if len(got) != 3 {
		t.Fatalf("expected 3 requests, got %d", len(got))
	}
	if got[0].title != "vidmill - Batch Started" || got[0].message != "Started processing batch with 7 tasks" {
		t.Fatalf("batch started: %+v", got[0])
	}
	if got[1].title != "vidmill - Batch Complete (with errors)" ||
		got[1].message != "Batch complete: 6 succeeded, 1 failed in 1m30s" {
		t.Fatalf("batch completed: %+v", got[1])
	}
	if got[2].priority != "high" || got[2].tags != "vidmill,task,failed" {
		t.Fatalf("task failed: %+v", got[2])
	}
}

func TestNtfyServiceSurfacesHTTPErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	t.Cleanup(server.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithNtfyTopic(server.URL))
	svc := notifications.NewService(cfg)
	if err := svc.TestNotification(context.Background()); err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}

func TestBatchListenerPushesOnlyFailures(t *testing.T) {
	svc, requests := newNtfyService(t)
	listener := notifications.NewBatchListener(svc, nil)
	ctx := context.Background()

	finished := task.New(task.Params{Title: "ok"})
	_ = finished.MarkSubmitted("e")
	_ = finished.MarkCompleted("{}")
	_ = finished.MarkSynthesizing()
	_ = finished.MarkFinished("/out")
	listener.OnTaskStatusChanged(ctx, finished)

	failed := task.New(task.Params{Title: "broken"})
	_ = failed.MarkFailed("boom")
	listener.OnTaskStatusChanged(ctx, failed)

	listener.OnBatchFinished(ctx, 1, 1)

	got := *requests
	if len(got) != 2 {
		t.Fatalf("expected failure + summary, got %d requests", len(got))
	}
	if got[0].title != "vidmill - Task Failed" {
		t.Fatalf("first request: %+v", got[0])
	}
	if got[1].title != "vidmill - Batch Complete (with errors)" {
		t.Fatalf("second request: %+v", got[1])
	}
}
