package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeCLIConfig writes a minimal valid config rooted in a temp directory
// and returns its path plus the base directory.
func writeCLIConfig(t *testing.T, cozeBaseURL string, extra string) (string, string) {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
draft_dir = %q
output_dir = %q
log_dir = %q

[coze]
base_url = %q
token = "test-token"
workflow_id = "wf-test"

[orchestrator]
poll_interval = 1
%s`,
		filepath.Join(base, "drafts"),
		filepath.Join(base, "output"),
		filepath.Join(base, "logs"),
		cozeBaseURL,
		extra,
	)

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path, base
}

func runCLI(t *testing.T, args []string, configPath string) (string, error) {
	t.Helper()

	if configPath != "" {
		args = append([]string{"--config", configPath}, args...)
	}
	cmd := newRootCommand()
	cmd.SetArgs(args)

	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}
