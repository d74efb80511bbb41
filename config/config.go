package config

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Runs      RunsConfig      `mapstructure:"runs"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string `mapstructure:"host"` // default: "0.0.0.0"
	Port int    `mapstructure:"port"` // default: 8080
	Mode string `mapstructure:"mode"` // "debug", "release", "test"; default: "release"

	// ShutdownTimeout is how long in-flight requests get on SIGTERM.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"` // default: 10s
}

// WorkerConfig controls how scraper workers are launched.
type WorkerConfig struct {
	// Executable runs every worker script. PYTHON_PATH is honoured too.
	Executable string `mapstructure:"executable"` // default: "venv/bin/python3"

	// ScriptDir is where platform scripts live.
	ScriptDir string `mapstructure:"script_dir"` // default: "scripts"

	// Platforms maps a platform name to its script file in ScriptDir.
	Platforms map[string]string `mapstructure:"platforms"`

	// DefaultPlatform is used for empty or unknown platform names.
	DefaultPlatform string `mapstructure:"default_platform"` // default: "default"

	// Timeout bounds one worker run. Zero disables the limit, which some
	// platforms need while a human clicks an email verification link.
	Timeout time.Duration `mapstructure:"timeout"` // default: 10m

	// MaxTimeout caps the per-request timeout a client may ask for.
	MaxTimeout time.Duration `mapstructure:"max_timeout"` // default: 30m

	// KillGrace is the delay between SIGINT and SIGKILL on cancellation.
	KillGrace time.Duration `mapstructure:"kill_grace"` // default: 5s

	// MaxConcurrent is the number of workers allowed to run at once.
	MaxConcurrent int `mapstructure:"max_concurrent"` // default: 4

	// MaxQueue is how many requests may wait for a slot; -1 is unbounded.
	MaxQueue int `mapstructure:"max_queue"` // default: 16

	// Env is extra KEY=VALUE pairs passed to every worker.
	Env []string `mapstructure:"env"`
}

// RateLimitConfig controls per-client rate limiting.
type RateLimitConfig struct {
	// Enabled toggles the limiter.
	Enabled bool `mapstructure:"enabled"` // default: true

	// RequestsPerSecond is the sustained rate per client IP.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"` // default: 1

	// Burst is the maximum burst size per client IP.
	Burst int `mapstructure:"burst"` // default: 5
}

// RunsConfig controls the asynchronous run store.
type RunsConfig struct {
	// TTL is how long finished runs stay queryable.
	TTL time.Duration `mapstructure:"ttl"` // default: 1h

	// MaxEntries caps the number of stored runs.
	MaxEntries int `mapstructure:"max_entries"` // default: 1000
}

// NotifyConfig controls run completion notifications.
type NotifyConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig enables publishing run events to Kafka when Brokers is set.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`         // default: "jobscrape.runs"
	BatchTimeout time.Duration `mapstructure:"batch_timeout"` // default: 1s
	WriteTimeout time.Duration `mapstructure:"write_timeout"` // default: 10s
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // default: "info"
	Format string `mapstructure:"format"` // "json" or "text"; default: "json"
}

// Addr is the HTTP listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// builtinPlatforms are always present; a config file adds to or overrides
// them but never drops them.
var builtinPlatforms = map[string]string{
	"default": "my_scraper.py",
	"jobsdb":  "jobsdb_scraper.py",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("worker.executable", "venv/bin/python3")
	v.SetDefault("worker.script_dir", "scripts")
	v.SetDefault("worker.platforms", maps.Clone(builtinPlatforms))
	v.SetDefault("worker.default_platform", "default")
	v.SetDefault("worker.timeout", 10*time.Minute)
	v.SetDefault("worker.max_timeout", 30*time.Minute)
	v.SetDefault("worker.kill_grace", 5*time.Second)
	v.SetDefault("worker.max_concurrent", 4)
	v.SetDefault("worker.max_queue", 16)
	v.SetDefault("worker.env", []string{})

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_second", 1.0)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("runs.ttl", time.Hour)
	v.SetDefault("runs.max_entries", 1000)

	v.SetDefault("notify.kafka.brokers", []string{})
	v.SetDefault("notify.kafka.topic", "jobscrape.runs")
	v.SetDefault("notify.kafka.batch_timeout", time.Second)
	v.SetDefault("notify.kafka.write_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads configuration from defaults, an optional YAML file and
// JOBSCRAPE_* environment variables, in increasing precedence.
//
// path names the config file explicitly; when empty, JOBSCRAPE_CONFIG is
// consulted and then ./config.yaml, which may be absent.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("JOBSCRAPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("worker.executable", "JOBSCRAPE_WORKER_EXECUTABLE", "PYTHON_PATH"); err != nil {
		return nil, err
	}

	if path == "" {
		path = os.Getenv("JOBSCRAPE_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// MustLoad is Load for main packages: it logs and exits on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		slog.Error("can't load config", "error", err)
		os.Exit(1)
	}
	return cfg
}

func (c *Config) normalise() error {
	platforms := make(map[string]string, len(builtinPlatforms)+len(c.Worker.Platforms))
	for name, script := range builtinPlatforms {
		platforms[name] = script
	}
	for name, script := range c.Worker.Platforms {
		platforms[strings.ToLower(strings.TrimSpace(name))] = script
	}
	c.Worker.Platforms = platforms
	c.Worker.DefaultPlatform = strings.ToLower(strings.TrimSpace(c.Worker.DefaultPlatform))
	if c.Worker.Platforms[c.Worker.DefaultPlatform] == "" {
		return fmt.Errorf("worker.default_platform %q has no script in worker.platforms", c.Worker.DefaultPlatform)
	}

	if c.Worker.MaxConcurrent < 1 {
		c.Worker.MaxConcurrent = 1
	}
	if c.Worker.MaxTimeout > 0 && c.Worker.Timeout > c.Worker.MaxTimeout {
		c.Worker.MaxTimeout = c.Worker.Timeout
	}
	return nil
}
