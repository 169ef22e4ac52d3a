package config

import (
	"log/slog"
	"os"
	"strconv"
)

// EnvVarMapping documents the environment variables crew honors. Values are
// applied after all file sources, so they always win.
var EnvVarMapping = map[string]string{
	"CREW_LOCK_DEFAULT_TTL_MINUTES": "lock.default_ttl_minutes",
	"CREW_LOCK_MAX_TTL_MINUTES":     "lock.max_ttl_minutes",
	"CREW_LOCK_STALE_CHECK_MINUTES": "lock.stale_check_interval_minutes",
	"CREW_JOURNAL_ENABLED":          "journal.enabled",
	"CREW_JOURNAL_RETENTION_DAYS":   "journal.retention_days",
	"CREW_INDEX_CACHE_TTL_SECONDS":  "index.cache_ttl_seconds",
}

// ApplyEnvVars overrides cfg fields from CREW_* environment variables.
// Malformed values are logged and ignored rather than failing the load.
func ApplyEnvVars(cfg *Config) {
	if v, ok := envInt("CREW_LOCK_DEFAULT_TTL_MINUTES"); ok {
		cfg.Lock.DefaultTTLMinutes = v
	}
	if v, ok := envInt("CREW_LOCK_MAX_TTL_MINUTES"); ok {
		cfg.Lock.MaxTTLMinutes = v
	}
	if v, ok := envInt("CREW_LOCK_STALE_CHECK_MINUTES"); ok {
		cfg.Lock.StaleCheckIntervalMinutes = v
	}
	if v, ok := envBool("CREW_JOURNAL_ENABLED"); ok {
		cfg.Journal.Enabled = v
	}
	if v, ok := envInt("CREW_JOURNAL_RETENTION_DAYS"); ok {
		cfg.Journal.RetentionDays = v
	}
	if v, ok := envInt("CREW_INDEX_CACHE_TTL_SECONDS"); ok {
		cfg.Index.CacheTTLSeconds = v
	}
}

func envInt(name string) (int, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("ignoring malformed environment variable", "name", name, "value", raw)
		return 0, false
	}
	return v, true
}

func envBool(name string) (bool, bool) {
	raw, ok := os.LookupEnv(name)
	if !ok || raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		slog.Warn("ignoring malformed environment variable", "name", name, "value", raw)
		return false, false
	}
	return v, true
}
