package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig(t *testing.T) Config {
	t.Helper()
	cfg := Default()
	cfg.Coze.Token = "test-token"
	cfg.Coze.WorkflowID = "wf-1"
	base := t.TempDir()
	cfg.Paths.DraftDir = filepath.Join(base, "drafts")
	cfg.Paths.OutputDir = filepath.Join(base, "output")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	return cfg
}

func TestDefaultValidatesWithRequiredFields(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
}

func TestValidateRequiresCozeToken(t *testing.T) {
	cfg := validConfig(t)
	cfg.Coze.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when coze.token is empty")
	}
}

func TestValidateBitableOnlyWhenEnabled(t *testing.T) {
	cfg := validConfig(t)
	cfg.Bitable.Enabled = false
	cfg.Bitable.AppToken = ""
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled bitable should not be validated: %v", err)
	}

	cfg.Bitable.Enabled = true
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when bitable enabled without credentials")
	}
}

func TestValidateRejectsNonPositiveCeilings(t *testing.T) {
	cfg := validConfig(t)
	cfg.Orchestrator.MaxSynthesisWorkers = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for zero synthesis workers")
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
[paths]
draft_dir = "` + filepath.Join(dir, "drafts") + `"
output_dir = "` + filepath.Join(dir, "out") + `"
log_dir = "` + filepath.Join(dir, "logs") + `"

[coze]
token = "tok"
workflow_id = "wf"
base_url = "https://api.coze.cn/"

[orchestrator]
max_submit_concurrent = 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("expected resolved existing path %q, got %q exists=%v", path, resolved, exists)
	}
	if cfg.Coze.BaseURL != "https://api.coze.cn" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Coze.BaseURL)
	}
	if cfg.Orchestrator.MaxSubmitConcurrent != 4 {
		t.Fatalf("expected override applied, got %d", cfg.Orchestrator.MaxSubmitConcurrent)
	}
	if cfg.Orchestrator.MaxSynthesisWorkers != defaultMaxSynthesisWorkers {
		t.Fatalf("expected default preserved, got %d", cfg.Orchestrator.MaxSynthesisWorkers)
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := validConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DraftDir, cfg.Paths.OutputDir, cfg.Paths.LogDir} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Fatalf("expected directory %q, err=%v", dir, err)
		}
	}
}
