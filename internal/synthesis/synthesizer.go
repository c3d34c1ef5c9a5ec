package synthesis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"

	"vidmill/internal/draft"
	"vidmill/internal/logging"
	"vidmill/internal/services"
	"vidmill/internal/services/asr"
	"vidmill/internal/services/keywords"
	"vidmill/internal/task"
)

const (
	defaultClipMs  = 15000
	titleWindowMs  = 3000
	stickerSpanMs  = 2000
	maxStickerRows = 3
)

// Service is the synthesis surface the orchestrator dispatches completed
// tasks to.
type Service interface {
	Synthesize(ctx context.Context, t *task.Task) (string, error)
}

// Config captures synthesizer settings.
type Config struct {
	DraftDir string
}

// Synthesizer assembles draft projects. Transcription and keyword
// extraction are optional enrichments: their failures degrade the draft
// instead of failing the task.
type Synthesizer struct {
	cfg         Config
	transcriber asr.Transcriber
	extractor   keywords.Extractor
	logger      *slog.Logger
}

// Option customizes the synthesizer.
type Option func(*Synthesizer)

// WithTranscriber enables subtitle generation from the voiceover audio.
func WithTranscriber(t asr.Transcriber) Option {
	return func(s *Synthesizer) { s.transcriber = t }
}

// WithKeywordExtractor enables keyword sticker generation.
func WithKeywordExtractor(e keywords.Extractor) Option {
	return func(s *Synthesizer) { s.extractor = e }
}

// New constructs a synthesizer writing drafts under cfg.DraftDir.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "synthesis"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synthesize builds and saves the draft for one completed task, returning
// the written project path.
func (s *Synthesizer) Synthesize(ctx context.Context, t *task.Task) (string, error) {
	payload := parsePayload(t.ResultPayload)
	videoURL := strings.TrimSpace(payload.Get("video_url").String())
	if videoURL == "" {
		return "", services.Wrap(services.ErrValidation, "synthesis", "parse", "result payload missing video_url", nil)
	}
	audioURL := strings.TrimSpace(payload.Get("audio_url").String())
	durationMs := payload.Get("duration").Int()

	var utterances []asr.Utterance
	if s.transcriber != nil && audioURL != "" {
		var err error
		utterances, err = s.transcriber.Transcribe(ctx, audioURL)
		if err != nil {
			s.logger.WarnContext(ctx, "transcription failed, draft will have no subtitles", logging.Args(
				logging.String(logging.FieldTaskID, t.ID),
				logging.Error(err))...)
			utterances = nil
		}
	}
	if durationMs == 0 {
		if n := len(utterances); n > 0 {
			durationMs = utterances[n-1].EndMs
		} else {
			durationMs = defaultClipMs
		}
	}

	doc, err := draft.NewDocument(projectName(t))
	if err != nil {
		return "", err
	}
	if err := doc.AddVideo(videoURL, durationMs); err != nil {
		return "", err
	}
	if audioURL != "" {
		if err := doc.AddAudio(audioURL, durationMs); err != nil {
			return "", err
		}
	}
	if title := strings.TrimSpace(t.Title); title != "" {
		window := int64(titleWindowMs)
		if durationMs < window {
			window = durationMs
		}
		if err := doc.AddTitle(title, window); err != nil {
			return "", err
		}
	}
	for _, utterance := range utterances {
		if err := doc.AddSubtitle(utterance.Text, utterance.StartMs, utterance.EndMs); err != nil {
			s.logger.WarnContext(ctx, "skipping subtitle segment", logging.Args(
				logging.String(logging.FieldTaskID, t.ID),
				logging.Error(err))...)
		}
	}

	if s.extractor != nil {
		if narration := joinUtterances(utterances, t.Content); narration != "" {
			s.addKeywordStickers(ctx, doc, t, narration, durationMs)
		}
	}

	path, err := doc.Save(s.cfg.DraftDir)
	if err != nil {
		return "", err
	}
	s.logger.InfoContext(ctx, "draft assembled", logging.Args(
		logging.String(logging.FieldTaskID, t.ID),
		logging.String("project", doc.Name()),
		logging.Int64("duration_ms", durationMs),
		logging.String("path", path))...)
	return path, nil
}

func (s *Synthesizer) addKeywordStickers(ctx context.Context, doc *draft.Document, t *task.Task, narration string, durationMs int64) {
	extracted, err := s.extractor.Extract(ctx, narration)
	if err != nil {
		s.logger.WarnContext(ctx, "keyword extraction failed, draft will have no stickers", logging.Args(
			logging.String(logging.FieldTaskID, t.ID),
			logging.Error(err))...)
		return
	}
	if len(extracted) > maxStickerRows {
		extracted = extracted[:maxStickerRows]
	}
	if len(extracted) == 0 {
		return
	}
	// Spread stickers evenly across the clip.
	step := durationMs / int64(len(extracted)+1)
	for i, keyword := range extracted {
		at := step * int64(i+1)
		span := int64(stickerSpanMs)
		if at+span > durationMs {
			span = durationMs - at
		}
		if span <= 0 {
			continue
		}
		if err := doc.AddKeywordSticker(keyword, at, span); err != nil {
			s.logger.WarnContext(ctx, "skipping keyword sticker", logging.Args(
				logging.String(logging.FieldTaskID, t.ID),
				logging.Error(err))...)
		}
	}
}

// parsePayload tolerates double-encoded output: some workflows return the
// result object serialized into a JSON string.
func parsePayload(raw string) gjson.Result {
	parsed := gjson.Parse(raw)
	if parsed.Type == gjson.String {
		return gjson.Parse(parsed.String())
	}
	return parsed
}

func joinUtterances(utterances []asr.Utterance, fallback string) string {
	if len(utterances) == 0 {
		return strings.TrimSpace(fallback)
	}
	parts := make([]string, 0, len(utterances))
	for _, u := range utterances {
		parts = append(parts, u.Text)
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

func projectName(t *task.Task) string {
	if name := strings.TrimSpace(t.ProjectName); name != "" {
		return name
	}
	if title := strings.TrimSpace(t.Title); title != "" {
		return title
	}
	return fmt.Sprintf("task-%s", t.ID)
}
