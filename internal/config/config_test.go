package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "127.0.0.1:7467" {
		t.Errorf("Expected default listen address, got %s", cfg.Listen)
	}
	if len(cfg.Harnesses) != 4 {
		t.Errorf("Expected 4 default harnesses, got %d", len(cfg.Harnesses))
	}
	if cfg.Harnesses[0].ID != "claude" || cfg.Harnesses[0].FallbackPriority != 1 {
		t.Errorf("Expected claude as the primary harness, got %+v", cfg.Harnesses[0])
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: "0.0.0.0:9000"
db: "/tmp/hazel-test.db"
workspace: "/srv/code"
classifier:
  endpoint: "https://llm.example.com/v1/chat/completions"
  model: "small-fast"
harnesses:
  - id: aider
    command: aider
    fallback_priority: 1
guard_terms:
  - "rm -rf"
interval_jobs:
  - id: repo-check
    command: "check for new issues"
    interval: 15m
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Listen != "0.0.0.0:9000" {
		t.Errorf("Expected overridden listen, got %s", cfg.Listen)
	}
	if cfg.DBPath != "/tmp/hazel-test.db" {
		t.Errorf("Expected overridden db path, got %s", cfg.DBPath)
	}
	if cfg.Classifier.Endpoint == "" || cfg.Classifier.Model != "small-fast" {
		t.Errorf("Expected classifier config, got %+v", cfg.Classifier)
	}
	if len(cfg.Harnesses) != 1 || cfg.Harnesses[0].ID != "aider" {
		t.Errorf("Expected single configured harness, got %+v", cfg.Harnesses)
	}
	if len(cfg.IntervalJobs) != 1 {
		t.Fatalf("Expected one interval job, got %+v", cfg.IntervalJobs)
	}
	if cfg.IntervalJobs[0].Interval != 15*time.Minute {
		t.Errorf("Expected 15m interval, got %v", cfg.IntervalJobs[0].Interval)
	}
}

func TestLoadPartialFileBackfills(t *testing.T) {
	path := writeConfig(t, `workspace: "/srv/code"`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Workspace != "/srv/code" {
		t.Errorf("Expected workspace override, got %s", cfg.Workspace)
	}
	if cfg.Listen == "" || cfg.DBPath == "" || len(cfg.Harnesses) == 0 {
		t.Errorf("Expected defaults backfilled, got %+v", cfg)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := writeConfig(t, "listen: [not a\n  string")
	if _, err := Load(path); err == nil {
		t.Error("Expected parse error")
	}
}

func TestClassifierAPIKey(t *testing.T) {
	cfg := Default()
	cfg.Classifier.APIKeyEnv = "HAZEL_TEST_KEY"
	t.Setenv("HAZEL_TEST_KEY", "secret")
	if got := cfg.ClassifierAPIKey(); got != "secret" {
		t.Errorf("Expected key from env, got %q", got)
	}

	cfg.Classifier.APIKeyEnv = ""
	if got := cfg.ClassifierAPIKey(); got != "" {
		t.Errorf("Expected empty key without env name, got %q", got)
	}
}
