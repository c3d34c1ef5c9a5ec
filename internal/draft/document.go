package draft

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

//go:embed template.json
var templateJSON string

// ContentFileName is the document file name the editor expects inside a
// draft folder.
const ContentFileName = "draft_content.json"

const (
	TrackVideo = "video"
	TrackAudio = "audio"
	TrackText  = "text"
)

// Document is a draft project under construction. Timeline positions are
// kept in microseconds to match the editor's schema; the public API takes
// milliseconds.
type Document struct {
	raw  string
	name string
	err  error
}

// NewDocument starts a draft project from the embedded template.
func NewDocument(projectName string) (*Document, error) {
	projectName = strings.TrimSpace(projectName)
	if projectName == "" {
		return nil, fmt.Errorf("draft: project name required")
	}
	now := time.Now().Unix()
	raw := templateJSON
	for _, patch := range []struct {
		path  string
		value any
	}{
		{"id", strings.ToUpper(uuid.NewString())},
		{"name", projectName},
		{"create_time", now},
		{"update_time", now},
	} {
		var err error
		raw, err = sjson.Set(raw, patch.path, patch.value)
		if err != nil {
			return nil, fmt.Errorf("draft: seed template: %w", err)
		}
	}
	return &Document{raw: raw, name: projectName}, nil
}

// Name returns the project name.
func (d *Document) Name() string { return d.name }

// Duration returns the current timeline length in milliseconds.
func (d *Document) Duration() int64 {
	return gjson.Get(d.raw, "duration").Int() / 1000
}

// AddVideo appends a video clip at the end of the video track.
func (d *Document) AddVideo(url string, durationMs int64) error {
	materialID, err := d.appendMaterial("materials.videos", map[string]any{
		"id":            strings.ToUpper(uuid.NewString()),
		"type":          "video",
		"path":          url,
		"remote_url":    url,
		"duration":      durationMs * 1000,
		"width":         1080,
		"height":        1920,
		"material_name": filepath.Base(url),
	})
	if err != nil {
		return err
	}
	return d.appendSegment(TrackVideo, materialID, d.trackEndUs(TrackVideo), durationMs*1000, nil)
}

// AddAudio appends an audio clip at the end of the audio track.
func (d *Document) AddAudio(url string, durationMs int64) error {
	materialID, err := d.appendMaterial("materials.audios", map[string]any{
		"id":         strings.ToUpper(uuid.NewString()),
		"type":       "extract_music",
		"path":       url,
		"remote_url": url,
		"duration":   durationMs * 1000,
		"name":       filepath.Base(url),
	})
	if err != nil {
		return err
	}
	return d.appendSegment(TrackAudio, materialID, d.trackEndUs(TrackAudio), durationMs*1000, nil)
}

// AddTitle places a headline text segment at the start of the timeline,
// shown for the given duration.
func (d *Document) AddTitle(text string, durationMs int64) error {
	return d.addText(text, 0, durationMs, map[string]any{
		"font_size":    12.0,
		"text_align":   1,
		"shadow":       true,
		"sub_type":     "title",
		"border_width": 0.08,
	})
}

// AddSubtitle places one subtitle segment on the text track for the
// given window.
func (d *Document) AddSubtitle(text string, startMs, endMs int64) error {
	if endMs <= startMs {
		return fmt.Errorf("draft: subtitle window %d-%dms is empty", startMs, endMs)
	}
	return d.addText(text, startMs, endMs-startMs, map[string]any{
		"font_size":  8.0,
		"text_align": 1,
		"sub_type":   "subtitle",
	})
}

// AddKeywordSticker places a short emphasis text at the given moment.
func (d *Document) AddKeywordSticker(keyword string, atMs, durationMs int64) error {
	return d.addText(keyword, atMs, durationMs, map[string]any{
		"font_size":  10.0,
		"text_align": 1,
		"sub_type":   "keyword",
	})
}

func (d *Document) addText(text string, startMs, durationMs int64, style map[string]any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return fmt.Errorf("draft: text segment requires content")
	}
	material := map[string]any{
		"id":      strings.ToUpper(uuid.NewString()),
		"type":    "text",
		"content": text,
	}
	for key, value := range style {
		material[key] = value
	}
	materialID, err := d.appendMaterial("materials.texts", material)
	if err != nil {
		return err
	}
	return d.appendSegment(TrackText, materialID, startMs*1000, durationMs*1000, style)
}

func (d *Document) appendMaterial(path string, material map[string]any) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	raw, err := sjson.Set(d.raw, path+".-1", material)
	if err != nil {
		d.err = fmt.Errorf("draft: append material: %w", err)
		return "", d.err
	}
	d.raw = raw
	return material["id"].(string), nil
}

func (d *Document) appendSegment(trackType, materialID string, startUs, durationUs int64, extra map[string]any) error {
	if d.err != nil {
		return d.err
	}
	trackIndex, err := d.ensureTrack(trackType)
	if err != nil {
		return err
	}
	segment := map[string]any{
		"id":          strings.ToUpper(uuid.NewString()),
		"material_id": materialID,
		"target_timerange": map[string]any{
			"start":    startUs,
			"duration": durationUs,
		},
		"source_timerange": map[string]any{
			"start":    0,
			"duration": durationUs,
		},
		"visible": true,
	}
	path := fmt.Sprintf("tracks.%d.segments.-1", trackIndex)
	raw, err := sjson.Set(d.raw, path, segment)
	if err != nil {
		d.err = fmt.Errorf("draft: append segment: %w", err)
		return d.err
	}
	d.raw = raw

	// Timeline duration is the furthest segment end across all tracks.
	if end := startUs + durationUs; end > gjson.Get(d.raw, "duration").Int() {
		raw, err = sjson.Set(d.raw, "duration", end)
		if err != nil {
			d.err = fmt.Errorf("draft: update duration: %w", err)
			return d.err
		}
		d.raw = raw
	}
	return nil
}

func (d *Document) ensureTrack(trackType string) (int, error) {
	tracks := gjson.Get(d.raw, "tracks").Array()
	for i, track := range tracks {
		if track.Get("type").String() == trackType {
			return i, nil
		}
	}
	raw, err := sjson.Set(d.raw, "tracks.-1", map[string]any{
		"id":       strings.ToUpper(uuid.NewString()),
		"type":     trackType,
		"segments": []any{},
	})
	if err != nil {
		d.err = fmt.Errorf("draft: create %s track: %w", trackType, err)
		return 0, d.err
	}
	d.raw = raw
	return len(tracks), nil
}

// trackEndUs returns where the next segment on a track should start.
func (d *Document) trackEndUs(trackType string) int64 {
	for _, track := range gjson.Get(d.raw, "tracks").Array() {
		if track.Get("type").String() != trackType {
			continue
		}
		var end int64
		for _, segment := range track.Get("segments").Array() {
			segEnd := segment.Get("target_timerange.start").Int() + segment.Get("target_timerange.duration").Int()
			if segEnd > end {
				end = segEnd
			}
		}
		return end
	}
	return 0
}

// JSON returns the current document text.
func (d *Document) JSON() string { return d.raw }

// Save writes the document into draftDir/<project name>/draft_content.json
// and returns the written path.
func (d *Document) Save(draftDir string) (string, error) {
	if d.err != nil {
		return "", d.err
	}
	raw, err := sjson.Set(d.raw, "update_time", time.Now().Unix())
	if err != nil {
		return "", fmt.Errorf("draft: stamp update time: %w", err)
	}
	d.raw = raw

	projectDir := filepath.Join(draftDir, sanitizeName(d.name))
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		return "", fmt.Errorf("draft: create project dir: %w", err)
	}
	path := filepath.Join(projectDir, ContentFileName)
	if err := os.WriteFile(path, []byte(d.raw), 0o644); err != nil {
		return "", fmt.Errorf("draft: write document: %w", err)
	}
	return path, nil
}

func sanitizeName(name string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	cleaned := strings.TrimSpace(replacer.Replace(name))
	if cleaned == "" {
		cleaned = "untitled"
	}
	return cleaned
}
