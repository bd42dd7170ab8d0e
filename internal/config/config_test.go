package config

import (
	"os"
	"testing"
	"time"
)

func TestParseIntOrDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      int
		expected int
	}{
		{"5", 10, 5},
		{"100", 0, 100},
		{"-3", 10, -3},
		{"abc", 10, 10}, // invalid returns default
		{"", 10, 10},    // empty returns default
		{"3.14", 10, 3}, // parses integer prefix (3)
		{"7xyz", 10, 7}, // parses prefix
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseIntOrDefault(tt.input, tt.def)
			if result != tt.expected {
				t.Errorf("parseIntOrDefault(%q, %d) = %d; want %d", tt.input, tt.def, result, tt.expected)
			}
		})
	}
}

func TestParseDurationOrDefault(t *testing.T) {
	tests := []struct {
		input    string
		def      time.Duration
		expected time.Duration
	}{
		{"60m", 10 * time.Minute, 60 * time.Minute},
		{"2h", 10 * time.Minute, 2 * time.Hour},
		{"90s", 10 * time.Minute, 90 * time.Second},
		{"1h30m", 10 * time.Minute, 90 * time.Minute},
		{"invalid", 10 * time.Minute, 10 * time.Minute}, // invalid returns default
		{"", 10 * time.Minute, 10 * time.Minute},        // empty returns default
		{"500ms", time.Second, 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseDurationOrDefault(tt.input, tt.def)
			if result != tt.expected {
				t.Errorf("parseDurationOrDefault(%q, %v) = %v; want %v", tt.input, tt.def, result, tt.expected)
			}
		})
	}
}

func TestValidate_MaxWorkersRange(t *testing.T) {
	tests := []struct {
		workers int
		wantErr bool
	}{
		{0, true},
		{1, false},
		{2, false},
		{5, false},
		{6, true},
		{-1, true},
	}

	for _, tt := range tests {
		cfg := &Config{MaxWorkers: tt.workers}
		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate() with MaxWorkers=%d error = %v, wantErr %v", tt.workers, err, tt.wantErr)
		}
	}
}

func TestLoad_EnvVarOverrides(t *testing.T) {
	envKeys := []string{
		"COORDINATOR_WORKTREE_DIR", "COORDINATOR_MAX_WORKERS", "COORDINATOR_POLL_INTERVAL",
		"COORDINATOR_AGENT_PATH", "COORDINATOR_MODEL", "TRACKER_API_KEY",
		"SLACK_WEBHOOK_URL", "SLACK_CHANNEL",
	}
	original := make(map[string]string)
	for _, key := range envKeys {
		original[key] = os.Getenv(key)
	}
	defer func() {
		for key, value := range original {
			os.Setenv(key, value)
		}
	}()

	for _, key := range envKeys {
		os.Unsetenv(key)
	}
	os.Setenv("COORDINATOR_MAX_WORKERS", "4")
	os.Setenv("SLACK_CHANNEL", "builds")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MaxWorkers != 4 {
		t.Errorf("MaxWorkers = %d, want 4", cfg.MaxWorkers)
	}
	if cfg.SlackChannel != "builds" {
		t.Errorf("SlackChannel = %q, want %q", cfg.SlackChannel, "builds")
	}
	if cfg.WorktreeDir != defaultWorktreeDir {
		t.Errorf("WorktreeDir = %q, want default %q", cfg.WorktreeDir, defaultWorktreeDir)
	}
}

func TestLoad_RejectsOutOfRangeWorkers(t *testing.T) {
	original := os.Getenv("COORDINATOR_MAX_WORKERS")
	defer os.Setenv("COORDINATOR_MAX_WORKERS", original)

	os.Setenv("COORDINATOR_MAX_WORKERS", "9")
	if _, err := Load(); err == nil {
		t.Error("Load() with MAX_WORKERS=9 should have returned an error")
	}
}
