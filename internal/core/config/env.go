package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides applies environment variable overrides to the configuration.
// Pattern: SCRIPTLS_[SECTION]_[KEY] (e.g., SCRIPTLS_HOST_ADDRESS).
func ApplyEnvOverrides(cfg *Config) {
	// Scheduler
	setEnvInt(&cfg.Scheduler.LoadBatch, "SCRIPTLS_SCHEDULER_LOAD_BATCH")
	setEnvInt(&cfg.Scheduler.ParseBatch, "SCRIPTLS_SCHEDULER_PARSE_BATCH")
	setEnvInt(&cfg.Scheduler.PostProcessBatch, "SCRIPTLS_SCHEDULER_POST_PROCESS_BATCH")
	setEnvInt(&cfg.Scheduler.ResolveBatch, "SCRIPTLS_SCHEDULER_RESOLVE_BATCH")
	setEnvDuration(&cfg.Scheduler.TickInterval, "SCRIPTLS_SCHEDULER_TICK_INTERVAL")

	// Edits
	setEnvDuration(&cfg.Edits.Debounce, "SCRIPTLS_EDITS_DEBOUNCE")

	// Host
	setEnvBoolPtr(&cfg.Host.Enabled, "SCRIPTLS_HOST_ENABLED")
	setEnvString(&cfg.Host.Address, "SCRIPTLS_HOST_ADDRESS")
	setEnvDuration(&cfg.Host.RequestDelay, "SCRIPTLS_HOST_REQUEST_DELAY")
	setEnvDuration(&cfg.Host.StallTimeout, "SCRIPTLS_HOST_STALL_TIMEOUT")
	setEnvDuration(&cfg.Host.ConnectTimeout, "SCRIPTLS_HOST_CONNECT_TIMEOUT")
	setEnvDuration(&cfg.Host.ReconnectBackoff, "SCRIPTLS_HOST_RECONNECT_BACKOFF")

	// Queries
	setEnvDuration(&cfg.Queries.PollInterval, "SCRIPTLS_QUERIES_POLL_INTERVAL")
	setEnvInt(&cfg.Queries.ModulesPerStep, "SCRIPTLS_QUERIES_MODULES_PER_STEP")

	// Diagnostics
	setEnvBool(&cfg.Diagnostics.NamingConvention, "SCRIPTLS_DIAGNOSTICS_NAMING_CONVENTION")
	setEnvBool(&cfg.Diagnostics.StoreEnabled, "SCRIPTLS_DIAGNOSTICS_STORE_ENABLED")
	setEnvString(&cfg.Diagnostics.StorePath, "SCRIPTLS_DIAGNOSTICS_STORE_PATH")

	// Watch
	setEnvBool(&cfg.Watch.Enabled, "SCRIPTLS_WATCH_ENABLED")
	setEnvDuration(&cfg.Watch.Debounce, "SCRIPTLS_WATCH_DEBOUNCE")

	// Observability
	setEnvBool(&cfg.Observability.Enabled, "SCRIPTLS_OBSERVABILITY_ENABLED")
	setEnvString(&cfg.Observability.Address, "SCRIPTLS_OBSERVABILITY_ADDRESS")
	setEnvString(&cfg.Observability.OTLPEndpoint, "SCRIPTLS_OBSERVABILITY_OTLP_ENDPOINT")
	setEnvBool(&cfg.Observability.EnableTracing, "SCRIPTLS_OBSERVABILITY_ENABLE_TRACING")
	setEnvBool(&cfg.Observability.EnableMetrics, "SCRIPTLS_OBSERVABILITY_ENABLE_METRICS")

	// Log
	setEnvString(&cfg.Log.Level, "SCRIPTLS_LOG_LEVEL")
}

func setEnvString(target *string, key string) {
	if val, ok := os.LookupEnv(key); ok {
		slog.Debug("applying env override", "key", key, "value", val)
		*target = val
	}
}

func setEnvInt(target *int, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = i
		}
	}
}

func setEnvBool(target *bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = b
		}
	}
}

func setEnvBoolPtr(target **bool, key string) {
	if val, ok := os.LookupEnv(key); ok {
		b, err := strconv.ParseBool(strings.ToLower(val))
		if err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = &b
		}
	}
}

func setEnvDuration(target *time.Duration, key string) {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			slog.Debug("applying env override", "key", key, "value", val)
			*target = d
		}
	}
}
