package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateCoze(); err != nil {
		return err
	}
	if err := c.validateBitable(); err != nil {
		return err
	}
	if err := c.validateASR(); err != nil {
		return err
	}
	if err := c.validateKeywords(); err != nil {
		return err
	}
	if err := c.validateOrchestrator(); err != nil {
		return err
	}
	if c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateCoze() error {
	if strings.TrimSpace(c.Coze.Token) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vidmill/config.toml"
		}
		return fmt.Errorf("coze.token is required. Edit %s (create with 'vidmill config init')", defaultPath)
	}
	if strings.TrimSpace(c.Coze.WorkflowID) == "" {
		return errors.New("coze.workflow_id must be set")
	}
	if strings.TrimSpace(c.Coze.BaseURL) == "" {
		return errors.New("coze.base_url must be set")
	}
	if c.Coze.RequestTimeout <= 0 {
		return errors.New("coze.request_timeout must be positive (seconds)")
	}
	if c.Coze.RatePerSecond <= 0 {
		return errors.New("coze.rate_per_second must be positive")
	}
	return nil
}

func (c *Config) validateBitable() error {
	if !c.Bitable.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Bitable.Token) == "" {
		return errors.New("bitable.token must be set when bitable.enabled is true")
	}
	if strings.TrimSpace(c.Bitable.AppToken) == "" {
		return errors.New("bitable.app_token must be set when bitable.enabled is true")
	}
	if strings.TrimSpace(c.Bitable.TableID) == "" {
		return errors.New("bitable.table_id must be set when bitable.enabled is true")
	}
	if strings.TrimSpace(c.Bitable.StatusField) == "" {
		return errors.New("bitable.status_field must be set when bitable.enabled is true")
	}
	if c.Bitable.RequestTimeout <= 0 {
		return errors.New("bitable.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateASR() error {
	if !c.ASR.Enabled {
		return nil
	}
	if strings.TrimSpace(c.ASR.BaseURL) == "" {
		return errors.New("asr.base_url must be set when asr.enabled is true")
	}
	if c.ASR.RequestTimeout <= 0 {
		return errors.New("asr.request_timeout must be positive (seconds)")
	}
	return nil
}

func (c *Config) validateKeywords() error {
	if !c.Keywords.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Keywords.APIKey) == "" {
		return errors.New("keywords.api_key must be set when keywords.enabled is true")
	}
	if strings.TrimSpace(c.Keywords.Model) == "" {
		return errors.New("keywords.model must be set when keywords.enabled is true")
	}
	if c.Keywords.TimeoutSeconds <= 0 {
		return errors.New("keywords.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateOrchestrator() error {
	positives := map[string]int{
		"orchestrator.max_submit_concurrent": c.Orchestrator.MaxSubmitConcurrent,
		"orchestrator.max_synthesis_workers": c.Orchestrator.MaxSynthesisWorkers,
		"orchestrator.poll_checkers":         c.Orchestrator.PollCheckers,
		"orchestrator.poll_interval":         c.Orchestrator.PollInterval,
		"orchestrator.max_poll_failures":     c.Orchestrator.MaxPollFailures,
	}
	for _, key := range []string{
		"orchestrator.max_submit_concurrent",
		"orchestrator.max_synthesis_workers",
		"orchestrator.poll_checkers",
		"orchestrator.poll_interval",
		"orchestrator.max_poll_failures",
	} {
		if positives[key] <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	if c.Orchestrator.MaxRetries < 0 {
		return errors.New("orchestrator.max_retries must not be negative")
	}
	if c.Orchestrator.SubmitRetryDelay < 0 {
		return errors.New("orchestrator.submit_retry_delay must not be negative")
	}
	return nil
}
