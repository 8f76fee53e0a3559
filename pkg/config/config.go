package config

import (
	"runtime"
	"time"

	"github.com/ajitpratap0/beanpool/pkg/errors"
	"github.com/ajitpratap0/beanpool/pkg/logger"
)

// ContainerConfig is the root configuration document.
type ContainerConfig struct {
	// Name identifies the container instance in logs and traces
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Logging configures the zap logger
	Logging logger.Config `yaml:"logging" json:"logging" mapstructure:"logging"`

	// Observability settings for metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Defaults is the pool policy applied to every deployment
	Defaults PoolConfig `yaml:"defaults" json:"defaults" mapstructure:"defaults"`

	// Deployments lists the stateless beans to deploy
	Deployments []DeploymentConfig `yaml:"deployments" json:"deployments" mapstructure:"deployments"`
}

// PoolConfig is the pool policy of one deployment.
type PoolConfig struct {
	// MaxSize is the pool capacity. Under strict pooling it bounds live
	// instances; otherwise it bounds idle instances only.
	MaxSize int `yaml:"max_size" json:"max_size" mapstructure:"max_size"`
	// MinSize instances are created at deploy time and survive idle eviction
	MinSize int `yaml:"min_size" json:"min_size" mapstructure:"min_size"`
	// StrictPooling makes MaxSize a hard ceiling; callers block when exhausted
	StrictPooling bool `yaml:"strict_pooling" json:"strict_pooling" mapstructure:"strict_pooling"`
	// AccessTimeout bounds how long GetInstance waits on an exhausted strict pool.
	// Zero means fail immediately.
	AccessTimeout time.Duration `yaml:"access_timeout" json:"access_timeout" mapstructure:"access_timeout"`
	// CloseTimeout bounds how long Undeploy waits for checked-out instances.
	// Zero means the default.
	CloseTimeout time.Duration `yaml:"close_timeout" json:"close_timeout" mapstructure:"close_timeout"`
	// IdleTimeout evicts instances idle for longer (0 = never)
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	// MaxAge evicts instances older than this (0 = never)
	MaxAge time.Duration `yaml:"max_age" json:"max_age" mapstructure:"max_age"`
	// SweepInterval is the period of the eviction sweeper (0 = no sweeper)
	SweepInterval time.Duration `yaml:"sweep_interval" json:"sweep_interval" mapstructure:"sweep_interval"`
	// ReplaceAged constructs a replacement when an aged instance is evicted
	ReplaceAged bool `yaml:"replace_aged" json:"replace_aged" mapstructure:"replace_aged"`
	// ReplaceFlushed constructs a replacement when a flushed instance is evicted
	ReplaceFlushed bool `yaml:"replace_flushed" json:"replace_flushed" mapstructure:"replace_flushed"`
	// CallbackThreads bounds concurrent construction during prefill and
	// replacement. Zero means the default.
	CallbackThreads int `yaml:"callback_threads" json:"callback_threads" mapstructure:"callback_threads"`
}

// PoolOverrides holds per-deployment overrides; nil fields inherit the defaults.
type PoolOverrides struct {
	MaxSize         *int           `yaml:"max_size,omitempty" json:"max_size,omitempty" mapstructure:"max_size"`
	MinSize         *int           `yaml:"min_size,omitempty" json:"min_size,omitempty" mapstructure:"min_size"`
	StrictPooling   *bool          `yaml:"strict_pooling,omitempty" json:"strict_pooling,omitempty" mapstructure:"strict_pooling"`
	AccessTimeout   *time.Duration `yaml:"access_timeout,omitempty" json:"access_timeout,omitempty" mapstructure:"access_timeout"`
	CloseTimeout    *time.Duration `yaml:"close_timeout,omitempty" json:"close_timeout,omitempty" mapstructure:"close_timeout"`
	IdleTimeout     *time.Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty" mapstructure:"idle_timeout"`
	MaxAge          *time.Duration `yaml:"max_age,omitempty" json:"max_age,omitempty" mapstructure:"max_age"`
	SweepInterval   *time.Duration `yaml:"sweep_interval,omitempty" json:"sweep_interval,omitempty" mapstructure:"sweep_interval"`
	ReplaceAged     *bool          `yaml:"replace_aged,omitempty" json:"replace_aged,omitempty" mapstructure:"replace_aged"`
	ReplaceFlushed  *bool          `yaml:"replace_flushed,omitempty" json:"replace_flushed,omitempty" mapstructure:"replace_flushed"`
	CallbackThreads *int           `yaml:"callback_threads,omitempty" json:"callback_threads,omitempty" mapstructure:"callback_threads"`
}

// DeploymentConfig describes one deployment.
type DeploymentConfig struct {
	// ID is the deployment identifier used to select the pool
	ID string `yaml:"id" json:"id" mapstructure:"id"`
	// Name is a human readable bean name; defaults to ID
	Name string `yaml:"name" json:"name" mapstructure:"name"`
	// Bean names the registered bean type used by the simulator
	Bean string `yaml:"bean" json:"bean" mapstructure:"bean"`

	PoolOverrides `yaml:",inline" json:",inline" mapstructure:",squash"`
}

// ObservabilityConfig contains monitoring settings.
type ObservabilityConfig struct {
	// EnableMetrics serves Prometheus metrics on MetricsAddress
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// MetricsAddress is the listen address of the /metrics endpoint
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address" mapstructure:"metrics_address"`
	// EnableTracing exports spans to stdout
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
}

// DefaultPoolConfig returns the stateless container defaults.
func DefaultPoolConfig() PoolConfig {
	callbackThreads := runtime.NumCPU()
	if callbackThreads > 5 {
		callbackThreads = 5
	}
	return PoolConfig{
		MaxSize:         10,
		MinSize:         0,
		StrictPooling:   true,
		AccessTimeout:   30 * time.Second,
		CloseTimeout:    5 * time.Minute,
		IdleTimeout:     0,
		MaxAge:          0,
		SweepInterval:   5 * time.Minute,
		ReplaceAged:     true,
		ReplaceFlushed:  false,
		CallbackThreads: callbackThreads,
	}
}

// NewContainerConfig creates a ContainerConfig with sensible defaults.
func NewContainerConfig(name string) *ContainerConfig {
	return &ContainerConfig{
		Name: name,
		Logging: logger.Config{
			Level:    "info",
			Encoding: "json",
		},
		Observability: ObservabilityConfig{
			EnableMetrics:     false,
			MetricsAddress:    ":9090",
			EnableTracing:     false,
			TracingSampleRate: 0.1,
		},
		Defaults: DefaultPoolConfig(),
	}
}

// Resolve merges the deployment overrides over the given defaults.
func (d DeploymentConfig) Resolve(defaults PoolConfig) PoolConfig {
	cfg := defaults
	o := d.PoolOverrides
	if o.MaxSize != nil {
		cfg.MaxSize = *o.MaxSize
	}
	if o.MinSize != nil {
		cfg.MinSize = *o.MinSize
	}
	if o.StrictPooling != nil {
		cfg.StrictPooling = *o.StrictPooling
	}
	if o.AccessTimeout != nil {
		cfg.AccessTimeout = *o.AccessTimeout
	}
	if o.CloseTimeout != nil {
		cfg.CloseTimeout = *o.CloseTimeout
	}
	if o.IdleTimeout != nil {
		cfg.IdleTimeout = *o.IdleTimeout
	}
	if o.MaxAge != nil {
		cfg.MaxAge = *o.MaxAge
	}
	if o.SweepInterval != nil {
		cfg.SweepInterval = *o.SweepInterval
	}
	if o.ReplaceAged != nil {
		cfg.ReplaceAged = *o.ReplaceAged
	}
	if o.ReplaceFlushed != nil {
		cfg.ReplaceFlushed = *o.ReplaceFlushed
	}
	if o.CallbackThreads != nil {
		cfg.CallbackThreads = *o.CallbackThreads
	}
	return cfg
}

// DisplayName returns Name, or ID when no name is set.
func (d DeploymentConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// Validate checks the pool policy.
func (p PoolConfig) Validate() error {
	if p.MaxSize < 0 {
		return invalid("max_size", p.MaxSize, "must not be negative")
	}
	if p.MinSize < 0 {
		return invalid("min_size", p.MinSize, "must not be negative")
	}
	if p.MinSize > p.MaxSize {
		return errors.Newf(errors.ErrorTypeConfig,
			"min_size cannot be greater than max_size: min_size=%d, max_size=%d", p.MinSize, p.MaxSize).
			WithDetail("min_size", p.MinSize).
			WithDetail("max_size", p.MaxSize)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"access_timeout", p.AccessTimeout},
		{"close_timeout", p.CloseTimeout},
		{"idle_timeout", p.IdleTimeout},
		{"max_age", p.MaxAge},
		{"sweep_interval", p.SweepInterval},
	}
	for _, d := range durations {
		if d.value < 0 {
			return invalid(d.name, d.value, "must not be negative")
		}
	}
	if p.CallbackThreads < 0 {
		return invalid("callback_threads", p.CallbackThreads, "must not be negative")
	}
	return nil
}

// WithDefaults fills the fields a policy may leave zero to mean "use the
// container default": CallbackThreads and CloseTimeout.
func (p PoolConfig) WithDefaults() PoolConfig {
	defaults := DefaultPoolConfig()
	if p.CallbackThreads <= 0 {
		p.CallbackThreads = defaults.CallbackThreads
	}
	if p.CloseTimeout <= 0 {
		p.CloseTimeout = defaults.CloseTimeout
	}
	return p
}

// Validate checks the whole document, including every resolved deployment policy.
func (c *ContainerConfig) Validate() error {
	if err := c.Defaults.Validate(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid defaults")
	}
	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return invalid("tracing_sample_rate", c.Observability.TracingSampleRate, "must be within [0, 1]")
	}

	seen := make(map[string]struct{}, len(c.Deployments))
	for i, d := range c.Deployments {
		if d.ID == "" {
			return errors.Newf(errors.ErrorTypeConfig, "deployment %d has no id", i)
		}
		if _, dup := seen[d.ID]; dup {
			return errors.Newf(errors.ErrorTypeConfig, "duplicate deployment id %q", d.ID)
		}
		seen[d.ID] = struct{}{}

		if err := d.Resolve(c.Defaults).Validate(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid deployment "+d.ID)
		}
	}
	return nil
}

func invalid(field string, value interface{}, reason string) error {
	return errors.Newf(errors.ErrorTypeConfig, "%s %s", field, reason).
		WithDetail("field", field).
		WithDetail("value", value)
}
