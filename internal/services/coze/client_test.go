package coze_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"vidmill/internal/services"
	"vidmill/internal/services/coze"
)

func newClient(t *testing.T, handler http.Handler) *coze.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return coze.NewClient(coze.Config{
		BaseURL:       server.URL,
		Token:         "test-token",
		WorkflowID:    "wf-123",
		RatePerSecond: 1000,
	})
}

func TestSubmitReturnsExecuteID(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"code":0,"msg":"","execute_id":"exec-42"}`))
	}))

	executeID, err := client.Submit(context.Background(), map[string]any{"content": "hi"})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if executeID != "exec-42" {
		t.Fatalf("expected exec-42, got %q", executeID)
	}
	if gotAuth != "Bearer test-token" {
		t.Fatalf("authorization header: %q", gotAuth)
	}
	if gotPath != "/v1/workflow/run" {
		t.Fatalf("path: %q", gotPath)
	}
	if gotBody["workflow_id"] != "wf-123" {
		t.Fatalf("workflow id not sent: %+v", gotBody)
	}
	if gotBody["is_async"] != true {
		t.Fatalf("expected async submission: %+v", gotBody)
	}
}

func TestSubmitAPIErrorIsRemote(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":4000,"msg":"invalid parameters"}`))
	}))

	_, err := client.Submit(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if services.IsTransient(err) {
		t.Fatalf("api rejection must not be transient: %v", err)
	}
}

func TestSubmitServerErrorIsTransient(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream boom", http.StatusBadGateway)
	}))

	_, err := client.Submit(context.Background(), nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsTransient(err) {
		t.Fatalf("5xx must be transient: %v", err)
	}
}

func TestPollStates(t *testing.T) {
	cases := []struct {
		name     string
		response string
		state    coze.RunState
		payload  string
		message  string
	}{
		{
			name:     "running",
			response: `{"code":0,"data":[{"execute_status":"Running"}]}`,
			state:    coze.StateRunning,
		},
		{
			name:     "success",
			response: `{"code":0,"data":[{"execute_status":"Success","output":"{\"video_url\":\"u\"}"}]}`,
			state:    coze.StateSuccess,
			payload:  `{"video_url":"u"}`,
		},
		{
			name:     "failure",
			response: `{"code":0,"data":[{"execute_status":"Fail","error_code":"720701","error_message":"node timeout"}]}`,
			state:    coze.StateFailure,
			message:  "node timeout (code 720701)",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/workflows/wf-123/run_histories/exec-1" {
					t.Errorf("unexpected path %q", r.URL.Path)
				}
				_, _ = w.Write([]byte(tc.response))
			}))

			result, err := client.Poll(context.Background(), "exec-1")
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}
			if result.State != tc.state {
				t.Fatalf("state: got %v want %v", result.State, tc.state)
			}
			if result.Payload != tc.payload {
				t.Fatalf("payload: got %q want %q", result.Payload, tc.payload)
			}
			if result.Message != tc.message {
				t.Fatalf("message: got %q want %q", result.Message, tc.message)
			}
		})
	}
}

func TestPollNetworkFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	client := coze.NewClient(coze.Config{
		BaseURL:       server.URL,
		Token:         "t",
		WorkflowID:    "wf-123",
		RatePerSecond: 1000,
	})
	server.Close()

	_, err := client.Poll(context.Background(), "exec-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !services.IsTransient(err) {
		t.Fatalf("connection refused must be transient: %v", err)
	}
}

func TestPollRejectsEmptyExecuteID(t *testing.T) {
	client := newClient(t, http.NotFoundHandler())
	if _, err := client.Poll(context.Background(), "  "); err == nil {
		t.Fatal("expected validation error")
	}
}
