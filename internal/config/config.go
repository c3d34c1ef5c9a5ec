package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	DraftDir  string `toml:"draft_dir"`
	OutputDir string `toml:"output_dir"`
	LogDir    string `toml:"log_dir"`
}

// Coze contains configuration for the remote workflow-execution API.
type Coze struct {
	BaseURL        string  `toml:"base_url"`
	Token          string  `toml:"token"`
	WorkflowID     string  `toml:"workflow_id"`
	RequestTimeout int     `toml:"request_timeout"`
	RatePerSecond  float64 `toml:"rate_per_second"`
}

// Bitable contains configuration for the spreadsheet-style table backend.
type Bitable struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	Token          string `toml:"token"`
	AppToken       string `toml:"app_token"`
	TableID        string `toml:"table_id"`
	StatusField    string `toml:"status_field"`
	ErrorField     string `toml:"error_field"`
	RequestTimeout int    `toml:"request_timeout"`
}

// ASR contains configuration for the speech recognition backend.
type ASR struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Keywords contains LLM connection settings for keyword extraction.
type Keywords struct {
	Enabled        bool   `toml:"enabled"`
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Orchestrator contains concurrency and polling knobs for batch processing.
type Orchestrator struct {
	MaxSubmitConcurrent int `toml:"max_submit_concurrent"`
	MaxSynthesisWorkers int `toml:"max_synthesis_workers"`
	PollCheckers        int `toml:"poll_checkers"`
	PollInterval        int `toml:"poll_interval"`
	MaxRetries          int `toml:"max_retries"`
	MaxPollFailures     int `toml:"max_poll_failures"`
	SubmitRetryDelay    int `toml:"submit_retry_delay"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for vidmill.
//
// Configuration sections by subsystem:
//   - Paths: draft/output/log directories
//   - Coze: remote workflow-execution API (submit + run histories)
//   - Bitable: spreadsheet-style task source and status sink
//   - ASR: speech recognition used during synthesis
//   - Keywords: LLM keyword extraction used during synthesis
//   - Orchestrator: concurrency ceilings, polling, retry bounds
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Coze          Coze          `toml:"coze"`
	Bitable       Bitable       `toml:"bitable"`
	ASR           ASR           `toml:"asr"`
	Keywords      Keywords      `toml:"keywords"`
	Orchestrator  Orchestrator  `toml:"orchestrator"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// SampleConfig returns the embedded annotated sample configuration.
func SampleConfig() string {
	return sampleConfig
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vidmill/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("vidmill.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// EnsureDirectories creates the directories batch runs write into.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DraftDir, c.Paths.OutputDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	for _, field := range []*string{&c.Paths.DraftDir, &c.Paths.OutputDir, &c.Paths.LogDir} {
		expanded, err := expandPath(*field)
		if err != nil {
			return err
		}
		*field = expanded
	}
	c.Coze.BaseURL = strings.TrimRight(strings.TrimSpace(c.Coze.BaseURL), "/")
	c.Bitable.BaseURL = strings.TrimRight(strings.TrimSpace(c.Bitable.BaseURL), "/")
	c.ASR.BaseURL = strings.TrimRight(strings.TrimSpace(c.ASR.BaseURL), "/")
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}
