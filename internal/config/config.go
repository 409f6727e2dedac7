// Package config loads the Hazel daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mvold/hazel/internal/harness"
	"gopkg.in/yaml.v3"
)

// ClassifierConfig points at the hosted intent classifier. An empty
// endpoint disables the LLM and leaves the rule-based fallback in charge.
type ClassifierConfig struct {
	Endpoint  string `yaml:"endpoint"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

// IntervalJobConfig declares a periodic job registered at daemon start.
type IntervalJobConfig struct {
	ID       string        `yaml:"id"`
	Command  string        `yaml:"command"`
	Interval time.Duration `yaml:"interval"`
}

// UnmarshalYAML accepts the interval in Go duration syntax ("15m", "1h").
func (j *IntervalJobConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		ID       string `yaml:"id"`
		Command  string `yaml:"command"`
		Interval string `yaml:"interval"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	j.ID = raw.ID
	j.Command = raw.Command
	if raw.Interval == "" {
		j.Interval = 0
		return nil
	}
	d, err := time.ParseDuration(raw.Interval)
	if err != nil {
		return fmt.Errorf("interval for job %q: %w", raw.ID, err)
	}
	j.Interval = d
	return nil
}

// Config is the daemon configuration.
type Config struct {
	Listen       string               `yaml:"listen"`
	DBPath       string               `yaml:"db"`
	Workspace    string               `yaml:"workspace"`
	Classifier   ClassifierConfig     `yaml:"classifier"`
	Harnesses    []harness.Descriptor `yaml:"harnesses"`
	GuardTerms   []string             `yaml:"guard_terms"`
	IntervalJobs []IntervalJobConfig  `yaml:"interval_jobs"`
}

// Default returns the built-in configuration: the common coding-agent
// CLIs in priority order, with claude tried first.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Listen:    "127.0.0.1:7467",
		DBPath:    filepath.Join(homeDir, ".hazel", "hazel.db"),
		Workspace: "",
		Classifier: ClassifierConfig{
			APIKeyEnv: "HAZEL_CLASSIFIER_KEY",
		},
		Harnesses: []harness.Descriptor{
			{
				ID:               "claude",
				Command:          "claude",
				Args:             []string{"-p"},
				FallbackPriority: 1,
				TriggerTerms:     []string{"refactor", "review", "explain", "debug"},
			},
			{
				ID:               "gemini",
				Command:          "gemini",
				Args:             []string{"-p"},
				FallbackPriority: 2,
				TriggerTerms:     []string{"research", "summarize"},
			},
			{
				ID:               "copilot",
				Command:          "copilot",
				Args:             []string{"-p"},
				FallbackPriority: 3,
				TriggerTerms:     []string{"autocomplete", "boilerplate"},
			},
			{
				ID:               "codex",
				Command:          "codex",
				Args:             []string{"exec"},
				FallbackPriority: 4,
			},
		},
	}
}

// Load reads the config file at path, falling back to defaults for any
// field left unset. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Listen == "" {
		cfg.Listen = Default().Listen
	}
	if cfg.DBPath == "" {
		cfg.DBPath = Default().DBPath
	}
	if len(cfg.Harnesses) == 0 {
		cfg.Harnesses = Default().Harnesses
	}
	return cfg, nil
}

// DefaultPath is where the daemon looks for its config file.
func DefaultPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".hazel", "config.yaml")
}

// ClassifierAPIKey resolves the classifier API key from the environment.
func (c *Config) ClassifierAPIKey() string {
	if c.Classifier.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Classifier.APIKeyEnv)
}
