package config

import (
	"errors"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

const DefaultFile = "scriptls.toml"

type Config struct {
	Version       int           `toml:"version"`
	Workspace     Workspace     `toml:"workspace"`
	Scheduler     Scheduler     `toml:"scheduler"`
	Edits         Edits         `toml:"edits"`
	Host          Host          `toml:"host"`
	Queries       Queries       `toml:"queries"`
	Diagnostics   Diagnostics   `toml:"diagnostics"`
	Watch         Watch         `toml:"watch"`
	Observability Observability `toml:"observability"`
	Log           Log           `toml:"log"`
}

type Workspace struct {
	Roots      []string `toml:"roots"`
	Extensions []string `toml:"extensions"`
	Exclude    Exclude  `toml:"exclude"`
}

type Exclude struct {
	Dirs  []string `toml:"dirs"`
	Files []string `toml:"files"`
}

type Scheduler struct {
	LoadBatch        int           `toml:"load_batch"`
	ParseBatch       int           `toml:"parse_batch"`
	PostProcessBatch int           `toml:"post_process_batch"`
	ResolveBatch     int           `toml:"resolve_batch"`
	TickInterval     time.Duration `toml:"tick_interval"`
	SweepBatch       int           `toml:"sweep_batch"`
	SweepInterval    time.Duration `toml:"sweep_interval"`
	Dedupe           *bool         `toml:"dedupe"`
}

type Edits struct {
	Debounce time.Duration `toml:"debounce"`
}

type Host struct {
	Enabled          *bool         `toml:"enabled"`
	Address          string        `toml:"address"`
	RequestDelay     time.Duration `toml:"request_delay"`
	StallTimeout     time.Duration `toml:"stall_timeout"`
	ConnectTimeout   time.Duration `toml:"connect_timeout"`
	ReconnectBackoff time.Duration `toml:"reconnect_backoff"`
	DialTimeout      time.Duration `toml:"dial_timeout"`
}

type Queries struct {
	PollInterval   time.Duration `toml:"poll_interval"`
	ModulesPerStep int           `toml:"modules_per_step"`
	RequestRate    float64       `toml:"request_rate"`
	RequestBurst   int           `toml:"request_burst"`
}

type Diagnostics struct {
	NamingConvention bool          `toml:"naming_convention"`
	StoreEnabled     bool          `toml:"store_enabled"`
	StorePath        string        `toml:"store_path"`
	QueueCapacity    int           `toml:"queue_capacity"`
	BatchSize        int           `toml:"batch_size"`
	FlushInterval    time.Duration `toml:"flush_interval"`
	DrainTimeout     time.Duration `toml:"drain_timeout"`
}

type Watch struct {
	Enabled  bool          `toml:"enabled"`
	Debounce time.Duration `toml:"debounce"`
}

type Observability struct {
	Enabled       bool   `toml:"enabled"`
	Address       string `toml:"address"`
	EnableMetrics bool   `toml:"enable_metrics"`
	EnableTracing bool   `toml:"enable_tracing"`
	OTLPEndpoint  string `toml:"otlp_endpoint"`
	OTLPInsecure  bool   `toml:"otlp_insecure"`
}

type Log struct {
	Level string `toml:"level"`
}

// HostEnabled defaults to true when unset.
func (h Host) HostEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

func (s Scheduler) DedupeEnabled() bool {
	return s.Dedupe == nil || *s.Dedupe
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)
	normalize(&cfg)

	if errs := Validate(&cfg); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}
