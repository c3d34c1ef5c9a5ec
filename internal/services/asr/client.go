package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"vidmill/internal/services"
)

const defaultHTTPTimeout = 60 * time.Second

// Utterance is one recognized span of speech with millisecond timestamps.
type Utterance struct {
	Text    string
	StartMs int64
	EndMs   int64
}

// Transcriber is the recognition surface the synthesis stage depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, audioURL string) ([]Utterance, error)
}

// Config captures the settings for the recognition backend.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestTimeout int
}

// Client calls the recognition API with a remote audio URL and returns the
// utterance list in timeline order.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client (used in tests).
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient constructs a recognition client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			APIKey:         strings.TrimSpace(cfg.APIKey),
			RequestTimeout: cfg.RequestTimeout,
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Transcribe submits the audio URL for recognition and returns utterances.
func (c *Client) Transcribe(ctx context.Context, audioURL string) ([]Utterance, error) {
	audioURL = strings.TrimSpace(audioURL)
	if audioURL == "" {
		return nil, services.Wrap(services.ErrValidation, "asr", "transcribe", "audio url required", nil)
	}

	encoded, err := json.Marshal(map[string]any{
		"url":    audioURL,
		"format": "mp3",
	})
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "asr", "transcribe", "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/api/v1/asr", bytes.NewReader(encoded))
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "asr", "transcribe", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "asr", "transcribe", "http call", err)
		}
		return nil, services.Wrap(services.ErrTransient, "asr", "transcribe", "http call", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "asr", "transcribe", "read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.Wrap(services.ErrTransient, "asr", "transcribe", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, services.Wrap(services.ErrRemote, "asr", "transcribe", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code").Int(); code != 0 {
		msg := strings.TrimSpace(parsed.Get("message").String())
		return nil, services.Wrap(services.ErrRemote, "asr", "transcribe", fmt.Sprintf("api code %d: %s", code, msg), nil)
	}

	items := parsed.Get("result.utterances")
	if !items.Exists() {
		return nil, services.Wrap(services.ErrValidation, "asr", "transcribe", "response missing utterances", nil)
	}
	utterances := make([]Utterance, 0, len(items.Array()))
	for _, item := range items.Array() {
		text := strings.TrimSpace(item.Get("text").String())
		if text == "" {
			continue
		}
		utterances = append(utterances, Utterance{
			Text:    text,
			StartMs: item.Get("start_time").Int(),
			EndMs:   item.Get("end_time").Int(),
		})
	}
	return utterances, nil
}
