// Package config handles configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/ferry/internal/core"
)

// Config is the top-level configuration, mapped to the `ferry:` root key.
type Config struct {
	Input   InputConfig   `mapstructure:"input" yaml:"input"`
	Filter  FilterConfig  `mapstructure:"filter" yaml:"filter"`
	Session SessionConfig `mapstructure:"session" yaml:"session"`
	Entropy EntropyConfig `mapstructure:"entropy" yaml:"entropy"`
	Batch   BatchConfig   `mapstructure:"batch" yaml:"batch"`
	Sink    SinkConfig    `mapstructure:"sink" yaml:"sink"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
}

// ─── Input ───

// InputConfig selects where frames come from.
type InputConfig struct {
	Path         string   `mapstructure:"path" yaml:"path"`           // file path, "-" = stdin
	Interface    string   `mapstructure:"interface" yaml:"interface"` // live AF_PACKET capture, linux only
	Mode         string   `mapstructure:"mode" yaml:"mode"`           // auto | packet | log | null
	Skip         int      `mapstructure:"skip" yaml:"skip"`
	Count        int      `mapstructure:"count" yaml:"count"` // records to send, 0 = unlimited
	SnapLen      int      `mapstructure:"snap_len" yaml:"snap_len"`
	BPF          []string `mapstructure:"bpf" yaml:"bpf"` // raw "op jt jf k" instructions
	MaxLineBytes int      `mapstructure:"max_line_bytes" yaml:"max_line_bytes"`
}

// ─── Processing ───

// FilterConfig configures the deny-list matcher.
type FilterConfig struct {
	Rules  string `mapstructure:"rules" yaml:"rules"`   // rule file; empty disables matching
	Engine string `mapstructure:"engine" yaml:"engine"` // regexp | hyperscan
	Watch  bool   `mapstructure:"watch" yaml:"watch"`
}

// SessionConfig configures per-flow sampling. Packet input only.
type SessionConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled"`
	MinSampleSize int  `mapstructure:"min_sample_size" yaml:"min_sample_size"`
	MaxSampleSize int  `mapstructure:"max_sample_size" yaml:"max_sample_size"`
	MaxFlows      int  `mapstructure:"max_flows" yaml:"max_flows"`
}

// EntropyConfig configures high-entropy payload flagging.
type EntropyConfig struct {
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
	Threshold float64 `mapstructure:"threshold" yaml:"threshold"`
	MinSize   int     `mapstructure:"min_size" yaml:"min_size"`
}

// BatchConfig bounds a MessageBatch before it is handed to the sink.
type BatchConfig struct {
	Tag        string            `mapstructure:"tag" yaml:"tag"`
	MaxBytes   int               `mapstructure:"max_bytes" yaml:"max_bytes"`
	MaxEntries int               `mapstructure:"max_entries" yaml:"max_entries"`
	Options    map[string]string `mapstructure:"options" yaml:"options"`
}

// ─── Sink ───

// SinkConfig selects the writer and the producer's flushing policy.
type SinkConfig struct {
	Type          string         `mapstructure:"type" yaml:"type"` // kafka | nats | file | null
	FlushBytes    int            `mapstructure:"flush_bytes" yaml:"flush_bytes"`
	FlushInterval time.Duration  `mapstructure:"flush_interval" yaml:"flush_interval"`
	Retry         RetryConfig    `mapstructure:"retry" yaml:"retry"`
	Options       map[string]any `mapstructure:"options" yaml:"options"` // writer-specific
}

// RetryConfig is the exponential backoff applied to failed writes.
type RetryConfig struct {
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level      string           `mapstructure:"level" yaml:"level"`   // trace / debug / info / warn / error
	Format     string           `mapstructure:"format" yaml:"format"` // json / text / pattern
	Pattern    string           `mapstructure:"pattern" yaml:"pattern"`
	TimeFormat string           `mapstructure:"time_format" yaml:"time_format"`
	File       FileOutputConfig `mapstructure:"file" yaml:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled" yaml:"enabled"`
	Path     string         `mapstructure:"path" yaml:"path"`
	Rotation RotationConfig `mapstructure:"rotation" yaml:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days" yaml:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups" yaml:"max_backups"`
	Compress   bool `mapstructure:"compress" yaml:"compress"`
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `ferry: ...`.
type configRoot struct {
	Ferry Config `mapstructure:"ferry"`
}

const rootKey = "ferry"

// LoadOption adjusts the viper instance after the file is read, before
// unmarshalling. Used by the CLI to apply flag overrides.
type LoadOption func(v *viper.Viper)

// WithOverride sets key (relative to the root, e.g. "input.path") to value.
func WithOverride(key string, value any) LoadOption {
	return func(v *viper.Viper) {
		v.Set(rootKey+"."+key, value)
	}
}

// Load loads configuration from file. An empty path loads defaults and
// environment only. Env vars use the FERRY_ prefix (e.g. FERRY_LOG_LEVEL).
func Load(path string, opts ...LoadOption) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// The `ferry.` key prefix maps to `FERRY_` through the key replacer.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for _, opt := range opts {
		opt(v)
	}

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Ferry

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values. All keys carry the "ferry." prefix.
func setDefaults(v *viper.Viper) {
	v.SetDefault("ferry.input.path", "")
	v.SetDefault("ferry.input.interface", "")
	v.SetDefault("ferry.input.mode", "auto")
	v.SetDefault("ferry.input.skip", 0)
	v.SetDefault("ferry.input.count", 0)
	v.SetDefault("ferry.input.snap_len", 65535)
	v.SetDefault("ferry.input.max_line_bytes", 1<<20)

	v.SetDefault("ferry.filter.rules", "")
	v.SetDefault("ferry.filter.engine", "regexp")
	v.SetDefault("ferry.filter.watch", false)

	v.SetDefault("ferry.session.enabled", false)
	v.SetDefault("ferry.session.min_sample_size", 128)
	v.SetDefault("ferry.session.max_sample_size", 2048)
	v.SetDefault("ferry.session.max_flows", 65536)

	v.SetDefault("ferry.entropy.enabled", false)
	v.SetDefault("ferry.entropy.threshold", 7.0)
	v.SetDefault("ferry.entropy.min_size", 64)

	v.SetDefault("ferry.batch.tag", "ferry")
	v.SetDefault("ferry.batch.max_bytes", 1<<20)
	v.SetDefault("ferry.batch.max_entries", 1000)

	v.SetDefault("ferry.sink.type", "")
	v.SetDefault("ferry.sink.flush_bytes", 1<<20)
	v.SetDefault("ferry.sink.flush_interval", "1s")
	v.SetDefault("ferry.sink.retry.max_retries", 3)
	v.SetDefault("ferry.sink.retry.initial_interval", "100ms")
	v.SetDefault("ferry.sink.retry.max_interval", "5s")

	v.SetDefault("ferry.metrics.enabled", false)
	v.SetDefault("ferry.metrics.listen", ":9091")
	v.SetDefault("ferry.metrics.path", "/metrics")

	v.SetDefault("ferry.log.level", "info")
	v.SetDefault("ferry.log.format", "text")
	v.SetDefault("ferry.log.file.enabled", false)
	v.SetDefault("ferry.log.file.path", "/var/log/ferry/ferry.log")
	v.SetDefault("ferry.log.file.rotation.max_size_mb", 100)
	v.SetDefault("ferry.log.file.rotation.max_age_days", 30)
	v.SetDefault("ferry.log.file.rotation.max_backups", 5)
	v.SetDefault("ferry.log.file.rotation.compress", true)
}

var (
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"json": true, "text": true, "pattern": true}
	validModes   = map[string]bool{"auto": true, "packet": true, "log": true, "null": true}
	validEngines = map[string]bool{"regexp": true, "hyperscan": true}
	validSinks   = map[string]bool{"kafka": true, "nats": true, "file": true, "null": true}
)

// ValidateAndApplyDefaults validates configuration and fills runtime
// defaults. Every failure wraps core.ErrConfigInvalid.
func (cfg *Config) ValidateAndApplyDefaults() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	// ── Log ──
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if !validFormats[strings.ToLower(cfg.Log.Format)] {
		return invalid("invalid log format: %s (must be json/text/pattern)", cfg.Log.Format)
	}

	// ── Input ──
	if cfg.Input.Path != "" && cfg.Input.Interface != "" {
		return invalid("input.path and input.interface are mutually exclusive")
	}
	if !validModes[cfg.Input.Mode] {
		return invalid("invalid input.mode: %s (must be auto/packet/log/null)", cfg.Input.Mode)
	}
	if cfg.Input.Skip < 0 || cfg.Input.Count < 0 {
		return invalid("input.skip and input.count must not be negative")
	}
	if cfg.Input.MaxLineBytes <= 0 {
		cfg.Input.MaxLineBytes = 1 << 20
	}
	if cfg.Input.SnapLen <= 0 {
		cfg.Input.SnapLen = 65535
	}

	// ── Filter ──
	if !validEngines[cfg.Filter.Engine] {
		return invalid("invalid filter.engine: %s (must be regexp/hyperscan)", cfg.Filter.Engine)
	}
	if cfg.Filter.Watch && cfg.Filter.Rules == "" {
		return invalid("filter.watch requires filter.rules")
	}

	// ── Session ──
	if cfg.Session.Enabled {
		if cfg.Session.MinSampleSize <= 0 || cfg.Session.MaxSampleSize <= 0 {
			return invalid("session sample sizes must be positive")
		}
		if cfg.Session.MinSampleSize > cfg.Session.MaxSampleSize {
			return invalid("session.min_sample_size (%d) exceeds session.max_sample_size (%d)",
				cfg.Session.MinSampleSize, cfg.Session.MaxSampleSize)
		}
		if cfg.Session.MaxFlows <= 0 {
			return invalid("session.max_flows must be positive")
		}
	}

	// ── Entropy ──
	if cfg.Entropy.Enabled && (cfg.Entropy.Threshold <= 0 || cfg.Entropy.Threshold > 8) {
		return invalid("entropy.threshold must be in (0, 8], got %v", cfg.Entropy.Threshold)
	}

	// ── Batch ──
	if cfg.Batch.MaxBytes <= 0 {
		return invalid("batch.max_bytes must be positive")
	}
	if cfg.Batch.MaxEntries < 0 {
		return invalid("batch.max_entries must not be negative")
	}

	// ── Sink ──
	if cfg.Sink.Type == "" {
		return invalid("no sink destination and no output file configured (set sink.type)")
	}
	if !validSinks[cfg.Sink.Type] {
		return invalid("unsupported sink.type: %s (must be kafka/nats/file/null)", cfg.Sink.Type)
	}
	if cfg.Sink.FlushBytes < 0 || cfg.Sink.FlushInterval < 0 {
		return invalid("sink.flush_bytes and sink.flush_interval must not be negative")
	}
	if cfg.Sink.Retry.MaxRetries < 0 {
		return invalid("sink.retry.max_retries must not be negative")
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}
