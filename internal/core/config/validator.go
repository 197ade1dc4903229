package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/gobwas/glob"
)

// Validate returns every problem found in cfg.
func Validate(cfg *Config) []error {
	var errs []error
	errs = append(errs, validateVersion(cfg)...)
	errs = append(errs, validateWorkspace(cfg)...)
	errs = append(errs, validateScheduler(cfg)...)
	errs = append(errs, validateHost(cfg)...)
	errs = append(errs, validateDiagnostics(cfg)...)
	errs = append(errs, validateObservability(cfg)...)
	errs = append(errs, validateLog(cfg)...)
	return errs
}

func validateVersion(cfg *Config) []error {
	if cfg.Version != 1 {
		return []error{fmt.Errorf("unsupported config version %d; supported version is 1", cfg.Version)}
	}
	return nil
}

func validateWorkspace(cfg *Config) []error {
	var errs []error
	for i, root := range cfg.Workspace.Roots {
		if strings.TrimSpace(root) == "" {
			errs = append(errs, fmt.Errorf("workspace.roots[%d] must not be empty", i))
		}
	}
	for i, ext := range cfg.Workspace.Extensions {
		if ext == "" || ext == "." {
			errs = append(errs, fmt.Errorf("workspace.extensions[%d] must not be empty", i))
		}
	}
	for _, pattern := range cfg.Workspace.Exclude.Dirs {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid workspace.exclude.dirs pattern %q: %w", pattern, err))
		}
	}
	for _, pattern := range cfg.Workspace.Exclude.Files {
		if _, err := glob.Compile(pattern); err != nil {
			errs = append(errs, fmt.Errorf("invalid workspace.exclude.files pattern %q: %w", pattern, err))
		}
	}
	return errs
}

func validateScheduler(cfg *Config) []error {
	var errs []error
	s := cfg.Scheduler
	batches := map[string]int{
		"load_batch":         s.LoadBatch,
		"parse_batch":        s.ParseBatch,
		"post_process_batch": s.PostProcessBatch,
		"resolve_batch":      s.ResolveBatch,
		"sweep_batch":        s.SweepBatch,
	}
	for _, name := range []string{"load_batch", "parse_batch", "post_process_batch", "resolve_batch", "sweep_batch"} {
		if batches[name] > 10000 {
			errs = append(errs, fmt.Errorf("scheduler.%s must be <= 10000, got %d", name, batches[name]))
		}
	}
	if cfg.Queries.ModulesPerStep > 10000 {
		errs = append(errs, fmt.Errorf("queries.modules_per_step must be <= 10000, got %d", cfg.Queries.ModulesPerStep))
	}
	return errs
}

func validateHost(cfg *Config) []error {
	if !cfg.Host.HostEnabled() {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.Host.Address); err != nil {
		errs = append(errs, fmt.Errorf("host.address %q must be host:port: %w", cfg.Host.Address, err))
	}
	if cfg.Host.StallTimeout > cfg.Host.ConnectTimeout {
		errs = append(errs, fmt.Errorf("host.stall_timeout (%s) must not exceed host.connect_timeout (%s)", cfg.Host.StallTimeout, cfg.Host.ConnectTimeout))
	}
	return errs
}

func validateDiagnostics(cfg *Config) []error {
	if cfg.Diagnostics.StoreEnabled && cfg.Diagnostics.StorePath == "" {
		return []error{fmt.Errorf("diagnostics.store_path must not be empty when the store is enabled")}
	}
	return nil
}

func validateObservability(cfg *Config) []error {
	if !cfg.Observability.Enabled {
		return nil
	}
	var errs []error
	if _, _, err := net.SplitHostPort(cfg.Observability.Address); err != nil {
		errs = append(errs, fmt.Errorf("observability.address %q must be host:port: %w", cfg.Observability.Address, err))
	}
	if cfg.Observability.EnableTracing && strings.TrimSpace(cfg.Observability.OTLPEndpoint) == "" {
		errs = append(errs, fmt.Errorf("observability.otlp_endpoint is required when tracing is enabled"))
	}
	return errs
}

func validateLog(cfg *Config) []error {
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		return nil
	default:
		return []error{fmt.Errorf("log.level must be one of: debug, info, warn, error; got %q", cfg.Log.Level)}
	}
}
