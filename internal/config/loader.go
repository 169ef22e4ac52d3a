package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/agentcrew/crew/internal/util"
)

// Load loads configuration for a workspace rooted at workspaceDir.
// Missing optional sources are skipped with a debug log; a broken workspace
// config is fatal because it is the source the operator actually edits.
func Load(workspaceDir string) (*Config, error) {
	cfg := Default()

	// User config (~/.crew/config.yaml)
	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, CrewDir, ConfigFileName)
		if _, err := os.Stat(userPath); err == nil {
			if err := mergeFromFile(cfg, userPath); err != nil {
				slog.Warn("failed to load user config", "path", userPath, "error", err)
			}
		}
	}

	// Workspace config (.crew/config.yaml)
	wsPath := filepath.Join(workspaceDir, CrewDir, ConfigFileName)
	if _, err := os.Stat(wsPath); err == nil {
		if err := mergeFromFile(cfg, wsPath); err != nil {
			return nil, err
		}
	}

	// Environment variables
	ApplyEnvVars(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// mergeFromFile merges configuration from a YAML file into cfg.
// Fields absent from the file keep their current values.
func mergeFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the workspace config file atomically.
func Save(workspaceDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	path := filepath.Join(workspaceDir, CrewDir, ConfigFileName)
	if err := util.AtomicWriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
