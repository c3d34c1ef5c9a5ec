package bitable_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"vidmill/internal/services/bitable"
	"vidmill/internal/task"
)

func newClient(t *testing.T, handler http.Handler) *bitable.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return bitable.NewClient(bitable.Config{
		BaseURL:     server.URL,
		Token:       "tenant-token",
		AppToken:    "app-1",
		TableID:     "tbl-1",
		StatusField: "Status",
		ErrorField:  "Error",
	})
}

func TestSearchFollowsPagination(t *testing.T) {
	var filters []map[string]any
	pages := []string{
		`{"code":0,"data":{"has_more":true,"page_token":"p2","items":[
			{"record_id":"rec-1","fields":{"Content":[{"text":"hello "},{"text":"world"}],"Status":"Pending"}}
		]}}`,
		`{"code":0,"data":{"has_more":false,"items":[
			{"record_id":"rec-2","fields":{"Content":"plain text","Status":"Pending"}}
		]}}`,
	}
	call := 0
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/tables/tbl-1/records/search") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if call == 1 && r.URL.Query().Get("page_token") != "p2" {
			t.Errorf("expected page token on second call, got %q", r.URL.Query().Get("page_token"))
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		filters = append(filters, body)
		_, _ = w.Write([]byte(pages[call]))
		call++
	}))

	records, err := client.Search(context.Background(), bitable.Condition{
		FieldName: "Status",
		Operator:  "is",
		Value:     []string{"Pending"},
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID != "rec-1" || records[1].ID != "rec-2" {
		t.Fatalf("record ids: %+v", records)
	}
	if bitable.FieldString(records[0].Fields["Content"]) != "hello world" {
		t.Fatalf("rich text not flattened: %v", records[0].Fields["Content"])
	}
	if bitable.FieldString(records[1].Fields["Content"]) != "plain text" {
		t.Fatalf("plain text field: %v", records[1].Fields["Content"])
	}
	if len(filters) != 2 {
		t.Fatalf("expected filter sent on both pages, got %d", len(filters))
	}
	if _, ok := filters[0]["filter"]; !ok {
		t.Fatalf("filter missing from request: %+v", filters[0])
	}
}

func TestSearchAPIError(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":91402,"msg":"NOTEXIST"}`))
	}))
	if _, err := client.Search(context.Background()); err == nil {
		t.Fatal("expected error for non-zero api code")
	}
}

func TestUpdateStatusWritesConfiguredColumns(t *testing.T) {
	var gotMethod, gotPath string
	var gotFields map[string]any
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotFields = body.Fields
		_, _ = w.Write([]byte(`{"code":0}`))
	}))

	if err := client.UpdateStatus(context.Background(), "rec-9", "Failed", "remote boom"); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if gotMethod != http.MethodPut {
		t.Fatalf("method: %s", gotMethod)
	}
	if !strings.HasSuffix(gotPath, "/records/rec-9") {
		t.Fatalf("path: %s", gotPath)
	}
	if gotFields["Status"] != "Failed" || gotFields["Error"] != "remote boom" {
		t.Fatalf("fields: %+v", gotFields)
	}
}

func TestStatusSinkMapsMilestones(t *testing.T) {
	updates := map[string]string{}
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Split(r.URL.Path, "/")
		recordID := parts[len(parts)-1]
		var body struct {
			Fields map[string]any `json:"fields"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		updates[recordID] = fmt.Sprintf("%v", body.Fields["Status"])
		_, _ = w.Write([]byte(`{"code":0}`))
	}))
	sink := bitable.NewStatusSink(client, nil)

	submitted := task.New(task.Params{Content: "a", SourceRowID: "rec-a"})
	_ = submitted.MarkSubmitted("e1")
	sink.OnTaskStatusChanged(context.Background(), submitted)

	running := task.New(task.Params{Content: "b", SourceRowID: "rec-b"})
	_ = running.MarkSubmitted("e2")
	_ = running.MarkRunning()
	sink.OnTaskStatusChanged(context.Background(), running)

	failed := task.New(task.Params{Content: "c", SourceRowID: "rec-c"})
	_ = failed.MarkFailed("boom")
	sink.OnTaskStatusChanged(context.Background(), failed)

	noRow := task.New(task.Params{Content: "d"})
	_ = noRow.MarkFailed("boom")
	sink.OnTaskStatusChanged(context.Background(), noRow)

	if updates["rec-a"] != "Processing" {
		t.Fatalf("submitted milestone: %+v", updates)
	}
	if _, ok := updates["rec-b"]; ok {
		t.Fatalf("running must not be written back: %+v", updates)
	}
	if updates["rec-c"] != "Failed" {
		t.Fatalf("failed milestone: %+v", updates)
	}
	if len(updates) != 2 {
		t.Fatalf("unexpected writes: %+v", updates)
	}
}
