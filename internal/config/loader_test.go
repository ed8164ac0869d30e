package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

// TestLoadDefaults returns the built-in values when no files exist.
func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkflowEngine.MaxRetries != 3 {
		t.Errorf("max_retries = %d, want 3", cfg.WorkflowEngine.MaxRetries)
	}
	if cfg.WorkflowEngine.RetryDelay != 2 {
		t.Errorf("retry_delay = %v, want 2", cfg.WorkflowEngine.RetryDelay)
	}
	if cfg.WorkflowEngine.Timeout != 600 {
		t.Errorf("timeout = %v, want 600", cfg.WorkflowEngine.Timeout)
	}
}

// TestLoadPrecedence applies project config over global over defaults.
func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	global := writeFile(t, dir, "global.json", `{"workflow_engine": {"max_retries": 5, "retry_delay": 1, "timeout": 600}}`)
	project := writeFile(t, dir, "project.json", `{"workflow_engine": {"max_retries": 7, "retry_delay": 1, "timeout": 600}}`)

	cfg, err := Load(global, project)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.WorkflowEngine.MaxRetries != 7 {
		t.Errorf("max_retries = %d, want project value 7", cfg.WorkflowEngine.MaxRetries)
	}
	if cfg.WorkflowEngine.RetryDelay != 1 {
		t.Errorf("retry_delay = %v, want global value 1", cfg.WorkflowEngine.RetryDelay)
	}
}

// TestLoadMissingFilesTolerated ignores nonexistent paths.
func TestLoadMissingFilesTolerated(t *testing.T) {
	if _, err := Load("/nonexistent/a.json", "/nonexistent/b.json"); err != nil {
		t.Fatalf("missing files must not error: %v", err)
	}
}

// TestLoadMalformedJSON is an error.
func TestLoadMalformedJSON(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.json", `{`)
	if _, err := Load(bad, ""); err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

// TestValidateRanges rejects out-of-range engine settings.
func TestValidateRanges(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "retries too high", mutate: func(c *Config) { c.WorkflowEngine.MaxRetries = 11 }, wantErr: "max_retries"},
		{name: "retries negative", mutate: func(c *Config) { c.WorkflowEngine.MaxRetries = -1 }, wantErr: "max_retries"},
		{name: "delay too high", mutate: func(c *Config) { c.WorkflowEngine.RetryDelay = 61 }, wantErr: "retry_delay"},
		{name: "timeout too high", mutate: func(c *Config) { c.WorkflowEngine.Timeout = 3601 }, wantErr: "timeout"},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "loud" }, wantErr: "log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

// TestSaveRoundTrip writes then reloads a config.
func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.json")

	cfg := DefaultConfig()
	cfg.WorkflowEngine.MaxRetries = 1
	if err := Save(cfg, path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path, "")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.WorkflowEngine.MaxRetries != 1 {
		t.Errorf("max_retries = %d, want 1", loaded.WorkflowEngine.MaxRetries)
	}
}
