package bitable

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

const (
	defaultHTTPTimeout = 15 * time.Second
	searchPageSize     = 100
)

// Record is one table row: its stable record id plus the raw field map.
type Record struct {
	ID     string
	Fields map[string]any
}

// Config captures the settings needed to reach one table.
type Config struct {
	BaseURL        string
	Token          string
	AppToken       string
	TableID        string
	StatusField    string
	ErrorField     string
	RequestTimeout int
}

// Client talks to the Bitable records API.
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

// NewClient constructs a Bitable client.
func NewClient(cfg Config, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.RequestTimeout > 0 {
		timeout = time.Duration(cfg.RequestTimeout) * time.Second
	}
	client := &Client{
		cfg: Config{
			BaseURL:     strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
			Token:       strings.TrimSpace(cfg.Token),
			AppToken:    strings.TrimSpace(cfg.AppToken),
			TableID:     strings.TrimSpace(cfg.TableID),
			StatusField: strings.TrimSpace(cfg.StatusField),
			ErrorField:  strings.TrimSpace(cfg.ErrorField),
		},
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Condition is one field comparison inside a search filter.
type Condition struct {
	FieldName string   `json:"field_name"`
	Operator  string   `json:"operator"`
	Value     []string `json:"value"`
}

type searchFilter struct {
	Conjunction string      `json:"conjunction"`
	Conditions  []Condition `json:"conditions"`
}

type searchRequest struct {
	Filter *searchFilter `json:"filter,omitempty"`
}

// Search returns every record matching all the given conditions, following
// pagination until the table is exhausted.
func (c *Client) Search(ctx context.Context, conditions ...Condition) ([]Record, error) {
	if c.cfg.AppToken == "" || c.cfg.TableID == "" {
		return nil, services.Wrap(services.ErrConfiguration, "bitable", "search", "app token and table id required", nil)
	}

	request := searchRequest{}
	if len(conditions) > 0 {
		request.Filter = &searchFilter{Conjunction: "and", Conditions: conditions}
	}
	encoded, err := json.Marshal(request)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "bitable", "search", "encode filter", err)
	}

	var records []Record
	pageToken := ""
	for {
		endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/search?page_size=%d",
			c.cfg.BaseURL, c.cfg.AppToken, c.cfg.TableID, searchPageSize)
		if pageToken != "" {
			endpoint += "&page_token=" + pageToken
		}
		body, err := c.do(ctx, http.MethodPost, endpoint, bytes.NewReader(encoded))
		if err != nil {
			return nil, err
		}

		parsed := gjson.ParseBytes(body)
		if code := parsed.Get("code").Int(); code != 0 {
			msg := strings.TrimSpace(parsed.Get("msg").String())
			return nil, services.Wrap(services.ErrRemote, "bitable", "search", fmt.Sprintf("api code %d: %s", code, msg), nil)
		}

		for _, item := range parsed.Get("data.items").Array() {
			record := Record{
				ID:     item.Get("record_id").String(),
				Fields: map[string]any{},
			}
			item.Get("fields").ForEach(func(key, value gjson.Result) bool {
				record.Fields[key.String()] = value.Value()
				return true
			})
			records = append(records, record)
		}

		if !parsed.Get("data.has_more").Bool() {
			return records, nil
		}
		pageToken = parsed.Get("data.page_token").String()
		if pageToken == "" {
			return records, nil
		}
	}
}

// UpdateStatus writes the status column (and optionally the error column)
// of one record.
func (c *Client) UpdateStatus(ctx context.Context, recordID, status, errorMessage string) error {
	fields := map[string]any{}
	if c.cfg.StatusField != "" {
		fields[c.cfg.StatusField] = status
	}
	if c.cfg.ErrorField != "" && errorMessage != "" {
		fields[c.cfg.ErrorField] = errorMessage
	}
	if len(fields) == 0 {
		return nil
	}
	return c.UpdateFields(ctx, recordID, fields)
}

// UpdateFields patches arbitrary columns of one record.
func (c *Client) UpdateFields(ctx context.Context, recordID string, fields map[string]any) error {
	recordID = strings.TrimSpace(recordID)
	if recordID == "" {
		return services.Wrap(services.ErrValidation, "bitable", "update", "record id required", nil)
	}
	encoded, err := json.Marshal(map[string]any{"fields": fields})
	if err != nil {
		return services.Wrap(services.ErrValidation, "bitable", "update", "encode fields", err)
	}

	endpoint := fmt.Sprintf("%s/open-apis/bitable/v1/apps/%s/tables/%s/records/%s",
		c.cfg.BaseURL, c.cfg.AppToken, c.cfg.TableID, recordID)
	body, err := c.do(ctx, http.MethodPut, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return err
	}

	parsed := gjson.ParseBytes(body)
	if code := parsed.Get("code").Int(); code != 0 {
		msg := strings.TrimSpace(parsed.Get("msg").String())
		return services.Wrap(services.ErrRemote, "bitable", "update", fmt.Sprintf("api code %d: %s", code, msg), nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "bitable", "request", "build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, services.Wrap(services.ErrTimeout, "bitable", "request", "http call", err)
		}
		return nil, services.Wrap(services.ErrTransient, "bitable", "request", "http call", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "bitable", "request", "read body", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, services.Wrap(services.ErrTransient, "bitable", "request", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, services.Wrap(services.ErrRemote, "bitable", "request", fmt.Sprintf("http %d", resp.StatusCode), nil)
	}
	return payload, nil
}

// FieldString flattens a Bitable field value to plain text. Text columns
// arrive either as strings or as rich-text segment arrays.
func FieldString(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	case []any:
		var sb strings.Builder
		for _, segment := range v {
			if m, ok := segment.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					sb.WriteString(text)
				}
			}
		}
		return strings.TrimSpace(sb.String())
	case map[string]any:
		if text, ok := v["text"].(string); ok {
			return strings.TrimSpace(text)
		}
		return ""
	default:
		return ""
	}
}
