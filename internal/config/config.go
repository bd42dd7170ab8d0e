// Package config handles coordinator configuration
package config

import (
	"fmt"
	"os"
	"time"
)

// Config holds coordinator configuration, loaded from environment
// variables with sensible defaults.
type Config struct {
	// Worktree settings
	WorktreeDir string // subdirectory of the project holding worker worktrees

	// Parallelism
	MaxWorkers int // bounded to [1,5] by the coordinator

	// Coordinator loop
	PollInterval time.Duration

	// Agent settings
	AgentPath  string // path to the code-generation agent binary
	ModelTag   string
	AgentModel string // <AGENT>_AGENT_MODEL override: haiku|sonnet|opus|inherit

	// Tracker settings
	TrackerAPIKey  string
	TrackerBaseURL string

	// Notifier settings
	SlackWebhookURL string
	SlackChannel    string

	// Persona catalog directory (external collaborator detail)
	PersonasDir string

	Verbose bool
}

const (
	defaultWorktreeDir  = ".workers"
	defaultMaxWorkers   = 2
	defaultPollInterval = 2 * time.Second
	defaultAgentPath    = "agent"
	defaultSlackChannel = "new-channel"
)

// Load loads configuration from environment and defaults.
func Load() (*Config, error) {
	cfg := &Config{
		WorktreeDir:  defaultWorktreeDir,
		MaxWorkers:   defaultMaxWorkers,
		PollInterval: defaultPollInterval,
		AgentPath:    defaultAgentPath,
		ModelTag:     "haiku",
		AgentModel:   "inherit",
		SlackChannel: defaultSlackChannel,
	}

	if v := os.Getenv("COORDINATOR_WORKTREE_DIR"); v != "" {
		cfg.WorktreeDir = v
	}
	if v := os.Getenv("COORDINATOR_MAX_WORKERS"); v != "" {
		cfg.MaxWorkers = parseIntOrDefault(v, defaultMaxWorkers)
	}
	if v := os.Getenv("COORDINATOR_POLL_INTERVAL"); v != "" {
		cfg.PollInterval = parseDurationOrDefault(v, defaultPollInterval)
	}
	if v := os.Getenv("COORDINATOR_AGENT_PATH"); v != "" {
		cfg.AgentPath = v
	}
	if v := os.Getenv("COORDINATOR_MODEL"); v != "" {
		cfg.ModelTag = v
	}
	if v := os.Getenv("AGENT_MODEL"); v != "" {
		cfg.AgentModel = v
	}
	if v := os.Getenv("TRACKER_API_KEY"); v != "" {
		cfg.TrackerAPIKey = v
	}
	if v := os.Getenv("TRACKER_BASE_URL"); v != "" {
		cfg.TrackerBaseURL = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.SlackWebhookURL = v
	}
	if v := os.Getenv("SLACK_CHANNEL"); v != "" {
		cfg.SlackChannel = v
	}
	if v := os.Getenv("ACADEMY_PERSONAS_DIR"); v != "" {
		cfg.PersonasDir = v
	}
	if v := os.Getenv("COORDINATOR_VERBOSE"); v != "" {
		cfg.Verbose = v == "true" || v == "1"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks invariants that must hold before a run starts.
func (c *Config) Validate() error {
	if c.MaxWorkers < 1 || c.MaxWorkers > 5 {
		return fmt.Errorf("max workers %d out of range [1,5]", c.MaxWorkers)
	}
	return nil
}

func parseIntOrDefault(s string, def int) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return def
	}
	return i
}

func parseDurationOrDefault(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
