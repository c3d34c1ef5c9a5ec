package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"vidmill/internal/services/bitable"
	"vidmill/internal/task"
)

// Column names expected in the source table.
const (
	FieldContent      = "Content"
	FieldDigitalHuman = "DigitalHuman"
	FieldVoice        = "Voice"
	FieldTitle        = "Title"
	FieldProject      = "Project"
)

// PendingStatusValue is the status-column value marking rows awaiting
// processing.
const PendingStatusValue = "Pending"

// FromRecords converts table rows into task parameters. Rows without
// content are skipped; the skip count is returned so callers can report it.
func FromRecords(records []bitable.Record) ([]task.Params, int) {
	params := make([]task.Params, 0, len(records))
	skipped := 0
	for _, record := range records {
		content := bitable.FieldString(record.Fields[FieldContent])
		if content == "" {
			skipped++
			continue
		}
		params = append(params, task.Params{
			Content:        content,
			DigitalHumanID: bitable.FieldString(record.Fields[FieldDigitalHuman]),
			VoiceID:        bitable.FieldString(record.Fields[FieldVoice]),
			Title:          bitable.FieldString(record.Fields[FieldTitle]),
			ProjectName:    bitable.FieldString(record.Fields[FieldProject]),
			SourceRowID:    record.ID,
		})
	}
	return params, skipped
}

// FetchPending pulls rows whose status column marks them as awaiting
// processing and converts them to task parameters.
func FetchPending(ctx context.Context, client *bitable.Client, statusField string) ([]task.Params, int, error) {
	statusField = strings.TrimSpace(statusField)
	if statusField == "" {
		statusField = "Status"
	}
	records, err := client.Search(ctx, bitable.Condition{
		FieldName: statusField,
		Operator:  "is",
		Value:     []string{PendingStatusValue},
	})
	if err != nil {
		return nil, 0, fmt.Errorf("fetch pending rows: %w", err)
	}
	params, skipped := FromRecords(records)
	return params, skipped, nil
}

type taskFileEntry struct {
	Content        string `json:"content"`
	DigitalHumanID string `json:"digital_human_id"`
	VoiceID        string `json:"voice_id"`
	Title          string `json:"title"`
	ProjectName    string `json:"project_name"`
}

// LoadTasksFile reads a JSON array of task entries from disk.
func LoadTasksFile(path string) ([]task.Params, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tasks file: %w", err)
	}
	var entries []taskFileEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse tasks file: %w", err)
	}
	params := make([]task.Params, 0, len(entries))
	for i, entry := range entries {
		if strings.TrimSpace(entry.Content) == "" {
			return nil, fmt.Errorf("tasks file entry %d: content required", i)
		}
		params = append(params, task.Params{
			Content:        strings.TrimSpace(entry.Content),
			DigitalHumanID: strings.TrimSpace(entry.DigitalHumanID),
			VoiceID:        strings.TrimSpace(entry.VoiceID),
			Title:          strings.TrimSpace(entry.Title),
			ProjectName:    strings.TrimSpace(entry.ProjectName),
		})
	}
	if len(params) == 0 {
		return nil, fmt.Errorf("tasks file %s contains no tasks", path)
	}
	return params, nil
}
