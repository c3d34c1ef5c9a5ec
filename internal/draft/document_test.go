package draft_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/tidwall/gjson"

	"vidmill/internal/draft"
)

func TestNewDocumentSeedsTemplate(t *testing.T) {
	doc, err := draft.NewDocument("demo-project")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	raw := doc.JSON()
	if gjson.Get(raw, "name").String() != "demo-project" {
		t.Fatalf("name not set: %s", gjson.Get(raw, "name"))
	}
	if gjson.Get(raw, "id").String() == "" {
		t.Fatal("id not assigned")
	}
	if gjson.Get(raw, "canvas_config.ratio").String() != "9:16" {
		t.Fatal("template canvas lost")
	}
}

func TestNewDocumentRequiresName(t *testing.T) {
	if _, err := draft.NewDocument("  "); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestSegmentsLandOnTypedTracks(t *testing.T) {
	doc, err := draft.NewDocument("p")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if err := doc.AddVideo("https://cdn.example/a.mp4", 5000); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	if err := doc.AddVideo("https://cdn.example/b.mp4", 3000); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}
	if err := doc.AddAudio("https://cdn.example/v.mp3", 8000); err != nil {
		t.Fatalf("AddAudio: %v", err)
	}
	if err := doc.AddTitle("Big Title", 3000); err != nil {
		t.Fatalf("AddTitle: %v", err)
	}
	if err := doc.AddSubtitle("line one", 0, 2500); err != nil {
		t.Fatalf("AddSubtitle: %v", err)
	}

	raw := doc.JSON()
	tracks := gjson.Get(raw, "tracks").Array()
	if len(tracks) != 3 {
		t.Fatalf("expected video/audio/text tracks, got %d", len(tracks))
	}

	byType := map[string]gjson.Result{}
	for _, track := range tracks {
		byType[track.Get("type").String()] = track
	}
	videoSegments := byType["video"].Get("segments").Array()
	if len(videoSegments) != 2 {
		t.Fatalf("video segments: %d", len(videoSegments))
	}
	// Second clip starts where the first ends.
	if start := videoSegments[1].Get("target_timerange.start").Int(); start != 5000*1000 {
		t.Fatalf("second clip start: %d", start)
	}
	if n := len(byType["text"].Get("segments").Array()); n != 2 {
		t.Fatalf("text segments: %d", n)
	}

	// Timeline spans the longest track (8s of audio).
	if doc.Duration() != 8000 {
		t.Fatalf("duration: %d", doc.Duration())
	}

	// Every segment references an existing material.
	materialIDs := map[string]bool{}
	for _, group := range []string{"videos", "audios", "texts"} {
		for _, material := range gjson.Get(raw, "materials."+group).Array() {
			materialIDs[material.Get("id").String()] = true
		}
	}
	for _, track := range tracks {
		for _, segment := range track.Get("segments").Array() {
			if !materialIDs[segment.Get("material_id").String()] {
				t.Fatalf("dangling material reference in %s track", track.Get("type"))
			}
		}
	}
}

func TestSubtitleRejectsEmptyWindow(t *testing.T) {
	doc, err := draft.NewDocument("p")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if err := doc.AddSubtitle("x", 1000, 1000); err == nil {
		t.Fatal("expected error for empty window")
	}
}

func TestSaveWritesProjectFolder(t *testing.T) {
	dir := t.TempDir()
	doc, err := draft.NewDocument("my/project")
	if err != nil {
		t.Fatalf("NewDocument: %v", err)
	}
	if err := doc.AddVideo("https://cdn.example/a.mp4", 1000); err != nil {
		t.Fatalf("AddVideo: %v", err)
	}

	path, err := doc.Save(dir)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != draft.ContentFileName {
		t.Fatalf("unexpected file name: %s", path)
	}
	// Separator in the project name must not escape the draft dir.
	rel, err := filepath.Rel(dir, path)
	if err != nil || len(rel) == 0 || rel[0] == '.' {
		t.Fatalf("draft written outside draft dir: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read saved draft: %v", err)
	}
	if !gjson.ValidBytes(data) {
		t.Fatal("saved draft is not valid JSON")
	}
}
