package ingest_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidmill/internal/ingest"
	"vidmill/internal/services/bitable"
)

func TestFromRecordsSkipsEmptyContent(t *testing.T) {
	records := []bitable.Record{
		{
			ID: "rec-1",
			Fields: map[string]any{
				"Content":      []any{map[string]any{"text": "hello "}, map[string]any{"text": "world"}},
				"DigitalHuman": "dh-7",
				"Voice":        "voice-2",
				"Title":        "Greeting",
				"Project":      "greetings",
			},
		},
		{ID: "rec-2", Fields: map[string]any{"Title": "no content"}},
		{ID: "rec-3", Fields: map[string]any{"Content": "plain"}},
	}

	params, skipped := ingest.FromRecords(records)
	if skipped != 1 {
		t.Fatalf("skipped: %d", skipped)
	}
	if len(params) != 2 {
		t.Fatalf("params: %d", len(params))
	}
	first := params[0]
	if first.Content != "hello world" || first.DigitalHumanID != "dh-7" || first.SourceRowID != "rec-1" {
		t.Fatalf("first param: %+v", first)
	}
	if params[1].SourceRowID != "rec-3" {
		t.Fatalf("second param: %+v", params[1])
	}
}

func TestFetchPendingFiltersOnStatus(t *testing.T) {
	var gotFilter string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotFilter = string(body)
		_, _ = w.Write([]byte(`{"code":0,"data":{"has_more":false,"items":[
			{"record_id":"rec-1","fields":{"Content":"write me","Status":"Pending"}}
		]}}`))
	}))
	t.Cleanup(server.Close)

	client := bitable.NewClient(bitable.Config{
		BaseURL:  server.URL,
		Token:    "t",
		AppToken: "app",
		TableID:  "tbl",
	})
	params, skipped, err := ingest.FetchPending(context.Background(), client, "Status")
	if err != nil {
		t.Fatalf("FetchPending: %v", err)
	}
	if skipped != 0 || len(params) != 1 || params[0].Content != "write me" {
		t.Fatalf("params: %+v skipped=%d", params, skipped)
	}
	for _, want := range []string{"Status", "is", "Pending"} {
		if !strings.Contains(gotFilter, want) {
			t.Fatalf("filter missing %q: %s", want, gotFilter)
		}
	}
}

func TestLoadTasksFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	content := `[
		{"content":"first script","digital_human_id":"dh","voice_id":"v","title":"One","project_name":"p1"},
		{"content":"second script","title":"Two"}
	]`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	params, err := ingest.LoadTasksFile(path)
	if err != nil {
		t.Fatalf("LoadTasksFile: %v", err)
	}
	if len(params) != 2 || params[0].Content != "first script" || params[1].Title != "Two" {
		t.Fatalf("params: %+v", params)
	}
}

func TestLoadTasksFileRejectsEmptyContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(`[{"title":"no content"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ingest.LoadTasksFile(path); err == nil {
		t.Fatal("expected error for entry without content")
	}
}

func TestLoadTasksFileRejectsEmptyList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ingest.LoadTasksFile(path); err == nil {
		t.Fatal("expected error for empty tasks file")
	}
}
