package coze

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
	"golang.org/x/time/rate"

	"vidmill/internal/services"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	userAgent          = "vidmill/0.1"

	statusRunning = "Running"
	statusSuccess = "Success"
	statusFail    = "Fail"
	statusFailed  = "Failed"
)

// RunState classifies the remote status of an asynchronous workflow run.
type RunState int

const (
	StateRunning RunState = iota
	StateSuccess
	StateFailure
)

// PollResult is the tagged union returned by Poll: a run is still in
// progress, succeeded with an opaque payload, or failed with a message.
type PollResult struct {
	State   RunState
	Payload string
	Message string
}

// Runner is the submit/poll surface the orchestrator depends on.
type Runner interface {
	Submit(ctx context.Context, parameters map[string]any) (string, error)
	Poll(ctx context.Context, executeID string) (PollResult, error)
}

// Config captures the runtime settings required to talk to the workflow API.
type Config struct {
	BaseURL        string
	Token          string
	WorkflowID     string
	RequestTimeout int
	RatePerSecond  float64
}

// Client implements Runner against the HTTP API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
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

// NewClient constructs a workflow API client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	perSecond := cfg.RatePerSecond
	if perSecond <= 0 {
		perSecond = 8
	}
	client := &Client{
		cfg: Config{
			BaseURL:        strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:          strings.TrimSpace(cfg.Token),
			WorkflowID:     strings.TrimSpace(cfg.WorkflowID),
			RequestTimeout: cfg.RequestTimeout,
			RatePerSecond:  perSecond,
		},
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), int(perSecond)+1),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

type runRequest struct {
	WorkflowID string         `json:"workflow_id"`
	Parameters map[string]any `json:"parameters"`
	IsAsync    bool           `json:"is_async"`
}

// Submit issues one asynchronous run request and returns the execute id.
func (c *Client) Submit(ctx context.Context, parameters map[string]any) (string, error) {
	if c.cfg.WorkflowID == "" {
		return "", services.Wrap(services.ErrConfiguration, "coze", "submit", "workflow id required", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", services.Wrap(services.ErrTransient, "coze", "submit", "rate limiter", err)
	}

	encoded, err := json.Marshal(runRequest{
		WorkflowID: c.cfg.WorkflowID,
		Parameters: parameters,
		IsAsync:    true,
	})
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "coze", "submit", "encode body", err)
	}

	body, err := c.do(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/workflow/run", bytes.NewReader(encoded))
	if err != nil {
		return "", err
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code").Int(); code != 0 {
		msg := strings.TrimSpace(parsed.Get("msg").String())
		return "", services.Wrap(services.ErrRemote, "coze", "submit", fmt.Sprintf("api code %d: %s", code, msg), nil)
	}
	executeID := strings.TrimSpace(parsed.Get("execute_id").String())
	if executeID == "" {
		return "", services.Wrap(services.ErrValidation, "coze", "submit", "response missing execute_id", nil)
	}
	return executeID, nil
}

// Poll fetches the run history for an execute id and classifies its state.
// Network errors surface as transient; callers must not fail a task on a
// single transient poll error.
func (c *Client) Poll(ctx context.Context, executeID string) (PollResult, error) {
	executeID = strings.TrimSpace(executeID)
	if executeID == "" {
		return PollResult{}, services.Wrap(services.ErrValidation, "coze", "poll", "execute id required", nil)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return PollResult{}, services.Wrap(services.ErrTransient, "coze", "poll", "rate limiter", err)
	}

	endpoint := fmt.Sprintf("%s/v1/workflows/%s/run_histories/%s", c.cfg.BaseURL, c.cfg.WorkflowID, executeID)
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PollResult{}, err
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code").Int(); code != 0 {
		msg := strings.TrimSpace(parsed.Get("msg").String())
		return PollResult{}, services.Wrap(services.ErrRemote, "coze", "poll", fmt.Sprintf("api code %d: %s", code, msg), nil)
	}

	history := parsed.Get("data.0")
	if !history.Exists() {
		return PollResult{}, services.Wrap(services.ErrValidation, "coze", "poll", "response missing run history", nil)
	}

	switch status := history.Get("execute_status").String(); status {
	case statusRunning, "":
		return PollResult{State: StateRunning}, nil
	case statusSuccess:
		return PollResult{State: StateSuccess, Payload: history.Get("output").String()}, nil
	case statusFail, statusFailed:
		message := strings.TrimSpace(history.Get("error_message").String())
		if message == "" {
			message = "remote execution failed"
		}
		if code := history.Get("error_code").String(); code != "" && code != "0" {
			message = fmt.Sprintf("%s (code %s)", message, code)
		}
		return PollResult{State: StateFailure, Message: message}, nil
	default:
		return PollResult{}, services.Wrap(services.ErrValidation, "coze", "poll", fmt.Sprintf("unknown execute_status %q", status), nil)
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "coze", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "coze", "request", "http call", err)
		}
		return nil, services.Wrap(services.ErrTransient, "coze", "request", "http call", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "coze", "request", "read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.Wrap(services.ErrTransient, "coze", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, services.Wrap(services.ErrRemote, "coze", "request",
			fmt.Sprintf("http %d: %s", resp.StatusCode, snippet(payload)), nil)
	}
	return payload, nil
}

func snippet(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	const limit = 200
	if len(trimmed) > limit {
		return trimmed[:limit] + "..."
	}
	return trimmed
}
