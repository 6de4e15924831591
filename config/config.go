// Package config loads dispatcher configuration from a config file and
// environment variables, with sane defaults for every knob.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configName = "taskmesh"
	configType = "yaml"
	envPrefix  = "TASKMESH"
)

// Engine configures the connection to the workflow engine's REST API.
type Engine struct {
	// BaseURL is the engine REST root, e.g. http://localhost:8080/engine-rest.
	BaseURL string `mapstructure:"base_url"`
	// RequestTimeout bounds one engine round trip outside of long polls.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

// Dispatch configures the claim/route/report loop.
type Dispatch struct {
	// WorkerID overrides the generated worker identity.
	WorkerID string `mapstructure:"worker_id"`
	// Topics lists the external task topics to subscribe to.
	Topics []string `mapstructure:"topics"`
	// LockDuration bounds how long a claimed task stays exclusively leased.
	LockDuration time.Duration `mapstructure:"lock_duration"`
	// MaxTasksPerPoll caps one fetch-and-lock batch.
	MaxTasksPerPoll int `mapstructure:"max_tasks_per_poll"`
	// LongPollTimeout holds an empty poll open until work arrives.
	LongPollTimeout time.Duration `mapstructure:"long_poll_timeout"`
	// PollInterval is an extra pause between empty polls, on top of any
	// long-poll wait.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// Workers is the number of concurrent dispatch loops.
	Workers int `mapstructure:"workers"`
	// InvocationTimeout bounds one service handler call.
	InvocationTimeout time.Duration `mapstructure:"invocation_timeout"`
	// RetryDelay is the retry hint reported with transient failures.
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	// InitialRetries seeds the retry budget for tasks the engine handed
	// over without one.
	InitialRetries int `mapstructure:"initial_retries"`
	// DrainTimeout bounds in-flight reports during shutdown.
	DrainTimeout time.Duration `mapstructure:"drain_timeout"`
	// PrefetchLimit caps predicted definitions warmed per reported task.
	PrefetchLimit int `mapstructure:"prefetch_limit"`
}

// Cache configures the definition cache TTLs.
type Cache struct {
	DefinitionTTL time.Duration `mapstructure:"definition_ttl"`
	PropertyTTL   time.Duration `mapstructure:"property_ttl"`
	// SweepInterval is the period of the background expiry sweep.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// Completion configures the completion detector.
type Completion struct {
	// PollInterval is the period between detector evaluation rounds.
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// IdleThreshold is how long an instance must stay idle before the
	// failsafe declares it complete.
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
	// WarmupDelay suppresses the idle failsafe right after first sight of
	// an instance.
	WarmupDelay time.Duration `mapstructure:"warmup_delay"`
}

// Service declares an HTTP-backed service handler registered at startup.
// Handlers with code of their own are registered programmatically instead.
type Service struct {
	Name     string `mapstructure:"name"`
	Endpoint string `mapstructure:"endpoint"`
	// Version registers the handler under an explicit version; empty means
	// the default version.
	Version string `mapstructure:"version"`
	// AssistantID marks the service conversational; a thread per process
	// instance is resolved and forwarded with every invocation.
	AssistantID string        `mapstructure:"assistant_id"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// Logging configures the log output.
type Logging struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Config is the full dispatcher configuration.
type Config struct {
	Engine     Engine     `mapstructure:"engine"`
	Dispatch   Dispatch   `mapstructure:"dispatch"`
	Cache      Cache      `mapstructure:"cache"`
	Completion Completion `mapstructure:"completion"`
	Services   []Service  `mapstructure:"services"`
	Logging    Logging    `mapstructure:"logging"`
}

// Load reads configuration from the given paths (the current directory when
// none are given), overlaid by TASKMESH_* environment variables. A missing
// config file is not an error; defaults and environment carry the day.
func Load(paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType(configType)
	if len(paths) == 0 {
		paths = []string{"."}
	}
	for _, p := range paths {
		v.AddConfigPath(p)
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration, as Load would produce it with
// no file and no environment overrides.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are well-formed; Unmarshal over them cannot fail.
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Validate rejects configurations that cannot run.
func (c *Config) Validate() error {
	if c.Engine.BaseURL == "" {
		return errors.New("engine.base_url is required")
	}
	if c.Dispatch.Workers < 1 {
		return fmt.Errorf("dispatch.workers must be at least 1, got %d", c.Dispatch.Workers)
	}
	if c.Dispatch.MaxTasksPerPoll < 1 {
		return fmt.Errorf("dispatch.max_tasks_per_poll must be at least 1, got %d", c.Dispatch.MaxTasksPerPoll)
	}
	if c.Dispatch.LockDuration <= 0 {
		return errors.New("dispatch.lock_duration must be positive")
	}
	if c.Cache.DefinitionTTL <= 0 || c.Cache.PropertyTTL <= 0 {
		return errors.New("cache TTLs must be positive")
	}
	if c.Completion.IdleThreshold <= 0 {
		return errors.New("completion.idle_threshold must be positive")
	}
	for i, svc := range c.Services {
		if svc.Name == "" || svc.Endpoint == "" {
			return fmt.Errorf("services[%d] needs both name and endpoint", i)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("engine.base_url", "http://localhost:8080/engine-rest")
	v.SetDefault("engine.request_timeout", 30*time.Second)

	v.SetDefault("dispatch.topics", []string{})
	v.SetDefault("dispatch.lock_duration", 5*time.Minute)
	v.SetDefault("dispatch.max_tasks_per_poll", 10)
	v.SetDefault("dispatch.long_poll_timeout", 30*time.Second)
	v.SetDefault("dispatch.poll_interval", time.Duration(0))
	v.SetDefault("dispatch.workers", 4)
	v.SetDefault("dispatch.invocation_timeout", 60*time.Second)
	v.SetDefault("dispatch.retry_delay", 10*time.Second)
	v.SetDefault("dispatch.initial_retries", 3)
	v.SetDefault("dispatch.drain_timeout", 30*time.Second)
	v.SetDefault("dispatch.prefetch_limit", 2)

	v.SetDefault("cache.definition_ttl", 30*time.Minute)
	v.SetDefault("cache.property_ttl", 30*time.Minute)
	v.SetDefault("cache.sweep_interval", 60*time.Minute)

	v.SetDefault("completion.poll_interval", 10*time.Second)
	v.SetDefault("completion.idle_threshold", 5*time.Minute)
	v.SetDefault("completion.warmup_delay", 30*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}
