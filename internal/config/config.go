package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	BaseURL      string
	Environment  string
	AgentID      string
	AgentVersion string
	LogDir       string
	LogMaxFiles  int
	// Debug enables verbose engine logging
	Debug bool

	Engine EngineConfig
}

// EngineConfig is the optional YAML-tunable part of the engine: the tool
// suppress list, the agent-identity to mode table, the search-kind
// substring rules and the timer durations. Every field has a compiled-in
// default; the file only overrides what it names.
type EngineConfig struct {
	SuppressedTools []string          `yaml:"suppressed_tools"`
	AgentModes      map[string]string `yaml:"agent_modes"`
	SearchKinds     []SearchKindRule  `yaml:"search_kinds"`

	AutoConfirmSeconds    int `yaml:"auto_confirm_seconds"`
	RenewThresholdSeconds int `yaml:"renew_threshold_seconds"`
	TickIntervalMs        int `yaml:"tick_interval_ms"`
}

// SearchKindRule maps a selected-agent identifier substring to a search kind.
type SearchKindRule struct {
	Substring string `yaml:"substring"`
	Kind      string `yaml:"kind"`
}

// AutoConfirmDelay returns the configured countdown, zero when unset.
func (e EngineConfig) AutoConfirmDelay() time.Duration {
	return time.Duration(e.AutoConfirmSeconds) * time.Second
}

// RenewThreshold returns the configured renewal bound, zero when unset.
func (e EngineConfig) RenewThreshold() time.Duration {
	return time.Duration(e.RenewThresholdSeconds) * time.Second
}

// TickInterval returns the keep-alive check resolution, zero when unset.
func (e EngineConfig) TickInterval() time.Duration {
	return time.Duration(e.TickIntervalMs) * time.Millisecond
}

func Load() *Config {
	env := getEnv("ENVIRONMENT", "dev")

	cfg := &Config{
		BaseURL:      getEnv("CHATFLOW_BASE_URL", "http://localhost:8080"),
		Environment:  env,
		AgentID:      getEnv("CHATFLOW_AGENT_ID", ""),
		AgentVersion: getEnv("CHATFLOW_AGENT_VERSION", "1"),
		LogDir:       getEnv("CHATFLOW_LOG_DIR", "logs"),
		LogMaxFiles:  getEnvInt("CHATFLOW_LOG_MAX_FILES", 5),
		// Debug defaults on outside production
		Debug: getEnv("DEBUG", getDefaultDebug(env)) == "true",
	}

	if path := getEnv("CHATFLOW_CONFIG", "chatflow.yaml"); path != "" {
		if err := loadEngineFile(path, &cfg.Engine); err != nil {
			// Missing file keeps defaults; a broken file is worth a warning.
			if !os.IsNotExist(err) {
				fmt.Fprintf(os.Stderr, "warning: engine config %s ignored: %v\n", path, err)
			}
		}
	}

	return cfg
}

func loadEngineFile(path string, out *EngineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	return nil
}

// getDefaultDebug returns the default debug setting based on environment
func getDefaultDebug(env string) string {
	if env == "prod" {
		return "false"
	}
	return "true"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
