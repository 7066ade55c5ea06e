package fulltext

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full service configuration. Every recognised option is
// listed here; unknown YAML keys are ignored.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Restrict bool   `yaml:"restrict"` // links and short cache lifetime only for key holders
	Listen   string `yaml:"listen"`

	DefaultEntries        int `yaml:"default_entries"`
	MaxEntries            int `yaml:"max_entries"`
	DefaultEntriesWithKey int `yaml:"default_entries_with_key"`
	MaxEntriesWithKey     int `yaml:"max_entries_with_key"`

	RewriteRelativeURLs bool   `yaml:"rewrite_relative_urls"`
	ExcludeItemsOnFail  string `yaml:"exclude_items_on_fail"` // user | true | false
	ExtractionPattern   string `yaml:"extraction_pattern"`    // user | auto | <pattern>

	MessageToPrepend        string `yaml:"message_to_prepend"`
	MessageToAppend         string `yaml:"message_to_append"`
	MessageToPrependWithKey string `yaml:"message_to_prepend_with_key"`
	MessageToAppendWithKey  string `yaml:"message_to_append_with_key"`
	ErrorMessage            string `yaml:"error_message"`
	ErrorMessageWithKey     string `yaml:"error_message_with_key"`

	BlockedURLs           []string `yaml:"blocked_urls"`
	AllowedURLs           []string `yaml:"allowed_urls"`
	BlockPrivateAddresses bool     `yaml:"block_private_addresses"`
	APIKeys               []string `yaml:"api_keys"`
	AlternativeURL        string   `yaml:"alternative_url"`

	Caching   bool            `yaml:"caching"`
	Cache     CacheConfig     `yaml:"cache"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Feed      FeedConfig      `yaml:"feed"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	MCP       MCPConfig       `yaml:"mcp"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// CacheConfig selects the persistent cache backend and tier lifetimes.
type CacheConfig struct {
	Backend        string        `yaml:"backend"` // file | sqlite | memory
	Dir            string        `yaml:"dir"`
	DirectoryLevel int           `yaml:"directory_level"`
	DBPath         string        `yaml:"db_path"`
	MemoryMB       int           `yaml:"memory_mb"`
	TTLWithKey     time.Duration `yaml:"ttl_with_key"`
	TTL            time.Duration `yaml:"ttl"`
	HTTPResponses  bool          `yaml:"http_responses"`
	HTTPTTL        time.Duration `yaml:"http_ttl"`
}

// FetchConfig configures the page fetch agent.
type FetchConfig struct {
	Timeout        time.Duration `yaml:"timeout"`
	MaxRedirects   int           `yaml:"max_redirects"`
	MaxParallel    int           `yaml:"max_parallel"`
	Parallel       bool          `yaml:"parallel"`
	MinimiseMemory bool          `yaml:"minimise_memory"`
	UserAgent      string        `yaml:"user_agent"`
	MaxBytes       int64         `yaml:"max_bytes"`
}

// FeedConfig configures source feed retrieval and output decoration.
type FeedConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	XSL     string        `yaml:"xsl"`
}

// PubSubConfig configures hub advertisement for keyed pubsub requests.
type PubSubConfig struct {
	Hubs        []string `yaml:"hubs"`
	RedirectURL string   `yaml:"redirect_url"`
}

// RateLimitConfig configures per-IP inbound limiting. PerMinute 0 disables it.
type RateLimitConfig struct {
	PerMinute float64 `yaml:"per_minute"`
	Burst     int     `yaml:"burst"`
}

// MCPConfig toggles the MCP endpoint.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig configures the feed-build metrics database.
type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	DBPath        string        `yaml:"db_path"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Retention     time.Duration `yaml:"retention"`
}

const defaultErrorMessage = "[unable to retrieve full-text content]"

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:               true,
		Listen:                ":8080",
		DefaultEntries:        5,
		MaxEntries:            10,
		DefaultEntriesWithKey: 5,
		MaxEntriesWithKey:     10,
		RewriteRelativeURLs:   true,
		ExcludeItemsOnFail:    "user",
		ExtractionPattern:     "user",
		ErrorMessage:          defaultErrorMessage,
		ErrorMessageWithKey:   defaultErrorMessage,
		BlockPrivateAddresses: true,
		Cache: CacheConfig{
			Backend:    "file",
			Dir:        "cache",
			DBPath:     "cache/cache.db",
			MemoryMB:   64,
			TTLWithKey: 10 * time.Minute,
			TTL:        20 * time.Minute,
			HTTPTTL:    30 * time.Minute,
		},
		Fetch: FetchConfig{
			Timeout:      10 * time.Second,
			MaxRedirects: 5,
			MaxParallel:  5,
			Parallel:     true,
			UserAgent:    "fulltext/1.0",
			MaxBytes:     10 << 20,
		},
		Feed: FeedConfig{
			Timeout: 20 * time.Second,
			XSL:     "css/feed.xsl",
		},
		RateLimit: RateLimitConfig{Burst: 10},
		Metrics: MetricsConfig{
			DBPath:        "data/metrics.db",
			FlushInterval: 5 * time.Second,
			Retention:     30 * 24 * time.Hour,
		},
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if c.DefaultEntries <= 0 || c.MaxEntries <= 0 {
		return fmt.Errorf("default_entries and max_entries must be > 0")
	}
	if c.DefaultEntriesWithKey <= 0 || c.MaxEntriesWithKey <= 0 {
		return fmt.Errorf("default_entries_with_key and max_entries_with_key must be > 0")
	}
	switch c.ExcludeItemsOnFail {
	case "user", "true", "false":
	default:
		return fmt.Errorf("unsupported exclude_items_on_fail %q (use user, true or false)", c.ExcludeItemsOnFail)
	}
	if c.ExtractionPattern == "" {
		return fmt.Errorf("extraction_pattern is required (use user, auto or a pattern)")
	}
	switch c.Cache.Backend {
	case "file":
		if c.Cache.Dir == "" {
			return fmt.Errorf("cache.dir is required for the file backend")
		}
		if c.Cache.DirectoryLevel < 0 {
			return fmt.Errorf("cache.directory_level must be >= 0")
		}
	case "sqlite":
		if c.Cache.DBPath == "" {
			return fmt.Errorf("cache.db_path is required for the sqlite backend")
		}
	case "memory":
		if c.Cache.MemoryMB <= 0 {
			return fmt.Errorf("cache.memory_mb must be > 0")
		}
		if int64(c.Cache.MemoryMB)<<20 <= c.Fetch.MaxBytes {
			return fmt.Errorf("cache.memory_mb must exceed fetch.max_bytes")
		}
	default:
		return fmt.Errorf("unsupported cache.backend %q (use file, sqlite or memory)", c.Cache.Backend)
	}
	if c.Cache.TTL <= 0 || c.Cache.TTLWithKey <= 0 || c.Cache.HTTPTTL <= 0 {
		return fmt.Errorf("cache lifetimes must be > 0")
	}
	if c.Fetch.MaxParallel <= 0 {
		return fmt.Errorf("fetch.max_parallel must be > 0")
	}
	if c.RateLimit.PerMinute < 0 {
		return fmt.Errorf("rate_limit.per_minute must be >= 0")
	}
	if c.Metrics.Enabled {
		if c.Metrics.DBPath == "" {
			return fmt.Errorf("metrics.db_path is required when metrics are enabled")
		}
		if c.Metrics.FlushInterval <= 0 || c.Metrics.Retention <= 0 {
			return fmt.Errorf("metrics.flush_interval and metrics.retention must be > 0")
		}
	}
	for i, k := range c.APIKeys {
		if k == "" {
			return fmt.Errorf("api_keys[%d]: empty key", i)
		}
	}
	return nil
}

// unkeyedTTL is the retention of the unkeyed tier: the short lifetime
// applies to everyone unless the service is restricted.
func (c *Config) unkeyedTTL() time.Duration {
	if c.Restrict {
		return c.Cache.TTL
	}
	return c.Cache.TTLWithKey
}
