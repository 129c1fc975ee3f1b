package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all fieldflow server configuration.
// Priority: env vars > settings.json > defaults.
type Config struct {
	DBPath            string `json:"db_path"`
	LogLevel          string `json:"log_level"`
	RetentionSchedule string `json:"retention_schedule"`
	RetentionMaxAge   string `json:"retention_max_age"`
	VacuumAfterSweep  bool   `json:"vacuum_after_sweep"`
}

func defaultConfig() Config {
	return Config{
		DBPath:            filepath.Join(fieldflowDir(), "fieldflow.db"),
		LogLevel:          "info",
		RetentionSchedule: "0 3 * * *",
		RetentionMaxAge:   "720h", // 30 days
	}
}

func fieldflowDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".fieldflow"
	}
	return filepath.Join(home, ".fieldflow")
}

func settingsPath() string {
	return filepath.Join(fieldflowDir(), "settings.json")
}

func loadConfig() Config {
	cfg := defaultConfig()

	// Layer 2: settings.json (ignore if missing).
	if data, err := os.ReadFile(settingsPath()); err == nil {
		_ = json.Unmarshal(data, &cfg)
	}

	// Layer 3: env vars override.
	if v := os.Getenv("FIELDFLOW_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("FIELDFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("FIELDFLOW_RETENTION_SCHEDULE"); v != "" {
		cfg.RetentionSchedule = v
	}
	if v := os.Getenv("FIELDFLOW_RETENTION_MAX_AGE"); v != "" {
		cfg.RetentionMaxAge = v
	}
	if v := os.Getenv("FIELDFLOW_VACUUM_AFTER_SWEEP"); v != "" {
		cfg.VacuumAfterSweep = v == "true" || v == "1"
	}

	return cfg
}

// retentionMaxAge parses the configured retention window, falling back to the
// default on a malformed duration.
func (c Config) retentionMaxAge() time.Duration {
	d, err := time.ParseDuration(c.RetentionMaxAge)
	if err != nil || d <= 0 {
		return 720 * time.Hour
	}
	return d
}
