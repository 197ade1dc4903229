package config

import (
	"strings"
	"time"
)

func applyDefaults(cfg *Config) {
	if cfg.Version == 0 {
		cfg.Version = 1
	}

	if len(cfg.Workspace.Roots) == 0 {
		cfg.Workspace.Roots = []string{"."}
	}
	if len(cfg.Workspace.Extensions) == 0 {
		cfg.Workspace.Extensions = []string{".as"}
	}
	if cfg.Workspace.Exclude.Dirs == nil {
		cfg.Workspace.Exclude.Dirs = []string{".git", "Binaries", "Intermediate", "Saved"}
	}

	if cfg.Scheduler.LoadBatch <= 0 {
		cfg.Scheduler.LoadBatch = 200
	}
	if cfg.Scheduler.ParseBatch <= 0 {
		cfg.Scheduler.ParseBatch = 10
	}
	if cfg.Scheduler.PostProcessBatch <= 0 {
		cfg.Scheduler.PostProcessBatch = 50
	}
	if cfg.Scheduler.ResolveBatch <= 0 {
		cfg.Scheduler.ResolveBatch = 20
	}
	if cfg.Scheduler.TickInterval <= 0 {
		cfg.Scheduler.TickInterval = time.Millisecond
	}
	if cfg.Scheduler.SweepBatch <= 0 {
		cfg.Scheduler.SweepBatch = 20
	}
	if cfg.Scheduler.SweepInterval <= 0 {
		cfg.Scheduler.SweepInterval = time.Millisecond
	}

	if cfg.Edits.Debounce <= 0 {
		cfg.Edits.Debounce = 100 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Host.Address) == "" {
		cfg.Host.Address = "127.0.0.1:27099"
	}
	if cfg.Host.RequestDelay <= 0 {
		cfg.Host.RequestDelay = time.Second
	}
	if cfg.Host.StallTimeout <= 0 {
		cfg.Host.StallTimeout = time.Second
	}
	if cfg.Host.ConnectTimeout <= 0 {
		cfg.Host.ConnectTimeout = 20 * time.Second
	}
	if cfg.Host.ReconnectBackoff <= 0 {
		cfg.Host.ReconnectBackoff = 5 * time.Second
	}
	if cfg.Host.DialTimeout <= 0 {
		cfg.Host.DialTimeout = 2 * time.Second
	}

	if cfg.Queries.PollInterval <= 0 {
		cfg.Queries.PollInterval = time.Millisecond
	}
	if cfg.Queries.ModulesPerStep <= 0 {
		cfg.Queries.ModulesPerStep = 10
	}
	if cfg.Queries.RequestRate <= 0 {
		cfg.Queries.RequestRate = 20
	}
	if cfg.Queries.RequestBurst <= 0 {
		cfg.Queries.RequestBurst = 5
	}

	if strings.TrimSpace(cfg.Diagnostics.StorePath) == "" {
		cfg.Diagnostics.StorePath = ".scriptls/diagnostics.db"
	}
	if cfg.Diagnostics.QueueCapacity <= 0 {
		cfg.Diagnostics.QueueCapacity = 1024
	}
	if cfg.Diagnostics.BatchSize <= 0 {
		cfg.Diagnostics.BatchSize = 64
	}
	if cfg.Diagnostics.FlushInterval <= 0 {
		cfg.Diagnostics.FlushInterval = 250 * time.Millisecond
	}
	if cfg.Diagnostics.DrainTimeout <= 0 {
		cfg.Diagnostics.DrainTimeout = 5 * time.Second
	}

	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 200 * time.Millisecond
	}

	if strings.TrimSpace(cfg.Observability.Address) == "" {
		cfg.Observability.Address = "127.0.0.1:9464"
	}
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
}

func normalize(cfg *Config) {
	cfg.Host.Address = strings.TrimSpace(cfg.Host.Address)
	cfg.Diagnostics.StorePath = strings.TrimSpace(cfg.Diagnostics.StorePath)
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	for i, ext := range cfg.Workspace.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		cfg.Workspace.Extensions[i] = ext
	}
}
