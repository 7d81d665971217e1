package client

import (
	"fmt"
	"net/url"
	"time"

	"github.com/kbukum/webquery/auth"
	"github.com/kbukum/webquery/cache"
	"github.com/kbukum/webquery/cache/rediscache"
	"github.com/kbukum/webquery/cache/sqlcache"
	"github.com/kbukum/webquery/config"
	"github.com/kbukum/webquery/resilience"
	"github.com/kbukum/webquery/retry"
	"github.com/kbukum/webquery/transport"
	"github.com/kbukum/webquery/validation"
)

// Cache backends Config can build.
const (
	BackendNone   = "none"
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Content formats for request entities and response content.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Config holds client-wide defaults. Request fields take precedence over
// these, and hard defaults apply when neither is set.
type Config struct {
	// Name labels the client in logs and spans. Defaults to "webquery".
	Name string `yaml:"name" mapstructure:"name"`

	// Authority is the scheme and host every relative path is resolved
	// against, e.g. "https://api.example.com".
	Authority string `yaml:"authority" mapstructure:"authority" validate:"omitempty,url"`

	// VersionPath is inserted between Authority and the request path.
	VersionPath string `yaml:"version_path" mapstructure:"version_path"`

	// Method is the default method. Empty picks GET or POST from the body.
	Method string `yaml:"method" mapstructure:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD OPTIONS"`

	// Timeout is the per-exchange watchdog. Defaults to 300s.
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`

	// UserAgent overrides the default User-Agent.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent"`

	// Proxy routes every exchange through this proxy URL.
	Proxy string `yaml:"proxy" mapstructure:"proxy" validate:"omitempty,url"`

	// Headers are sent with every request.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`

	// Parameters are added to every request.
	Parameters map[string]string `yaml:"parameters" mapstructure:"parameters"`

	// Format selects the default serializer. Defaults to json.
	Format string `yaml:"format" mapstructure:"format" validate:"omitempty,oneof=json yaml"`

	// DisableCompression stops negotiating gzip and deflate.
	DisableCompression bool `yaml:"disable_compression" mapstructure:"disable_compression"`

	// Transport configures the network transport.
	Transport transport.Config `yaml:"transport" mapstructure:"transport"`

	// Cache configures the cache store and default cache options.
	Cache CacheConfig `yaml:"cache" mapstructure:"cache"`

	// Retry is the default retry policy. Nil disables retries.
	Retry *RetryConfig `yaml:"retry" mapstructure:"retry"`

	// Auth signs every request unless the request carries credentials.
	Auth *auth.Config `yaml:"auth" mapstructure:"auth"`

	// Credentials are named authorizers a request selects with
	// CredentialsName.
	Credentials map[string]auth.Config `yaml:"credentials" mapstructure:"credentials"`

	// RateLimiter paces outgoing exchanges. Nil disables it.
	RateLimiter *resilience.RateLimiterConfig `yaml:"rate_limiter" mapstructure:"rate_limiter"`

	// Breaker fails fast when the target keeps failing. Nil disables it.
	Breaker *resilience.BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// CacheConfig selects the cache store.
type CacheConfig struct {
	// Backend is none, memory, redis or sqlite. Defaults to none.
	Backend string `yaml:"backend" mapstructure:"backend" validate:"omitempty,oneof=none memory redis sqlite"`
	// Defaults apply to requests that enable caching without options.
	Defaults cache.Options `yaml:"defaults" mapstructure:"defaults"`
	// Redis configures the redis backend.
	Redis *rediscache.Config `yaml:"redis" mapstructure:"redis"`
	// SQLite configures the sqlite backend.
	SQLite *sqlcache.Config `yaml:"sqlite" mapstructure:"sqlite"`
}

// RetryConfig is the serializable form of a retry policy.
type RetryConfig struct {
	MaxRetries     int                       `yaml:"max_retries" mapstructure:"max_retries" validate:"gte=0"`
	OnNetworkError bool                      `yaml:"on_network_error" mapstructure:"on_network_error"`
	OnTimeout      bool                      `yaml:"on_timeout" mapstructure:"on_timeout"`
	OnServerError  bool                      `yaml:"on_server_error" mapstructure:"on_server_error"`
	OnStatus       []int                     `yaml:"on_status" mapstructure:"on_status"`
	Combine        string                    `yaml:"combine" mapstructure:"combine" validate:"omitempty,oneof=any all"`
	Backoff        *resilience.BackoffConfig `yaml:"backoff" mapstructure:"backoff"`
}

// ApplyDefaults fills in zero-value fields.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "webquery"
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.Format == "" {
		c.Format = FormatJSON
	}
	if c.Cache.Backend == "" {
		c.Cache.Backend = BackendNone
	}
	if c.Cache.Backend == BackendRedis && c.Cache.Redis != nil {
		c.Cache.Redis.ApplyDefaults()
	}
	c.Transport.ApplyDefaults()
	if c.Auth != nil {
		c.Auth.ApplyDefaults()
	}
	if c.RateLimiter != nil && c.RateLimiter.Name == "" {
		c.RateLimiter.Name = c.Name
	}
	if c.Breaker != nil && c.Breaker.Name == "" {
		c.Breaker.Name = c.Name
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if c.Authority != "" {
		u, err := url.Parse(c.Authority)
		if err != nil || !u.IsAbs() {
			return fmt.Errorf("client: authority %q must be an absolute url", c.Authority)
		}
	}
	if err := c.Transport.Validate(); err != nil {
		return fmt.Errorf("client.transport: %w", err)
	}
	if err := c.Cache.Defaults.Validate(); err != nil {
		return fmt.Errorf("client.cache: %w", err)
	}
	switch c.Cache.Backend {
	case BackendRedis:
		if c.Cache.Redis == nil {
			return fmt.Errorf("client.cache: redis backend needs a redis section")
		}
		if err := c.Cache.Redis.Validate(); err != nil {
			return fmt.Errorf("client.cache: %w", err)
		}
	case BackendSQLite:
		if c.Cache.SQLite == nil {
			return fmt.Errorf("client.cache: sqlite backend needs a sqlite section")
		}
		if err := c.Cache.SQLite.Validate(); err != nil {
			return fmt.Errorf("client.cache: %w", err)
		}
	}
	if c.Auth != nil {
		if err := c.Auth.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// LoadConfig reads a client configuration named name from YAML files,
// .env files and WEBQUERY_ prefixed environment variables.
func LoadConfig(name string, opts ...config.LoaderOption) (Config, error) {
	var cfg Config
	if err := config.LoadConfig(name, &cfg, opts...); err != nil {
		return Config{}, err
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Policy converts the configuration into a retry policy.
func (r *RetryConfig) Policy() *retry.Policy {
	if r == nil {
		return nil
	}
	p := &retry.Policy{
		MaxRetries: r.MaxRetries,
		Combine:    retry.Combine(r.Combine),
		Backoff:    r.Backoff,
	}
	if r.OnNetworkError {
		p.Conditions = append(p.Conditions, retry.OnNetworkError())
	}
	if r.OnTimeout {
		p.Conditions = append(p.Conditions, retry.OnTimeout())
	}
	if r.OnServerError {
		p.Conditions = append(p.Conditions, retry.OnServerError())
	}
	if len(r.OnStatus) > 0 {
		p.Conditions = append(p.Conditions, retry.OnStatus(r.OnStatus...))
	}
	return p
}
