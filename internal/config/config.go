// Package config defines the extension host configuration and its loader.
//
// Values are layered: defaults from New, an optional YAML file, EXT_*
// variables, then the variables the hosting platform injects into every
// content process (CONNECT_SERVER, CONNECT_API_KEY, ...).
package config

import (
	"runtime"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is "text" or "json".
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// ConnectServer is the platform root URL, e.g. https://connect.example.com.
	ConnectServer string `koanf:"connect_server"`
	// ConnectAPIKey authenticates the service (publisher) identity.
	ConnectAPIKey string `koanf:"connect_api_key"`
	// HTTPTimeoutMS bounds every platform API call.
	HTTPTimeoutMS int `koanf:"http_timeout_ms"`

	// VisitorCacheTTLSeconds is how long a visitor client stays cached.
	VisitorCacheTTLSeconds int `koanf:"visitor_cache_ttl_s"`
	// CacheCleanupIntervalSeconds is the janitor period for TTL caches.
	CacheCleanupIntervalSeconds int `koanf:"cache_cleanup_interval_s"`
	// VisitorCacheMaxEntries caps cached visitor clients; 0 means unbounded.
	VisitorCacheMaxEntries int `koanf:"visitor_cache_max_entries"`

	// KillPollAttempts and KillPollIntervalMS bound the wait for a killed job.
	KillPollAttempts   int `koanf:"kill_poll_attempts"`
	KillPollIntervalMS int `koanf:"kill_poll_interval_ms"`
	// KillQueueSize bounds pending asynchronous kill requests.
	KillQueueSize int `koanf:"kill_queue_size"`
	// KillWorkerCount sets the number of kill workers.
	KillWorkerCount int `koanf:"kill_worker_count"`
	// ListConcurrency bounds parallel per-content job listing.
	ListConcurrency int `koanf:"list_concurrency"`

	// DataDir holds the DAG artifact database.
	DataDir string `koanf:"data_dir"`
	// DeployPollAttempts and DeployPollIntervalMS bound the wait for a publish task.
	DeployPollAttempts   int `koanf:"deploy_poll_attempts"`
	DeployPollIntervalMS int `koanf:"deploy_poll_interval_ms"`

	// AnthropicAPIKey enables the chat extension against the Anthropic API.
	AnthropicAPIKey string `koanf:"anthropic_api_key"`
	// ClaudeModel overrides the default chat model.
	ClaudeModel string `koanf:"claude_model"`
	// UseBedrock routes chat through Amazon Bedrock with the default AWS
	// credential chain when no API key is set.
	UseBedrock bool `koanf:"use_bedrock"`
	// AWSRegion overrides the region of the AWS credential chain for Bedrock.
	AWSRegion string `koanf:"aws_region"`
	// AnthropicBaseURL points the chat client at a gateway or a private
	// Bedrock runtime endpoint.
	AnthropicBaseURL string `koanf:"anthropic_base_url"`
	// ChatMaxTokens caps a single reply.
	ChatMaxTokens int `koanf:"chat_max_tokens"`
	// ChatSessionTTLSeconds expires idle chat transcripts.
	ChatSessionTTLSeconds int `koanf:"chat_session_ttl_s"`

	// MonitoredContentGUID is the content checked by the health monitor.
	MonitoredContentGUID string `koanf:"monitored_content_guid"`
	// HealthTimeoutMS bounds the content URL probe.
	HealthTimeoutMS int `koanf:"health_timeout_ms"`

	// OTelEndpoint enables trace export when set.
	OTelEndpoint string `koanf:"otel_endpoint"`
	// ServiceName is reported to tracing backends.
	ServiceName string `koanf:"service_name"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:                    "info",
		LogFormat:                   "text",
		Addr:                        ":8080",
		HTTPTimeoutMS:               30_000,
		VisitorCacheTTLSeconds:      3600,
		CacheCleanupIntervalSeconds: 60,
		KillPollAttempts:            30,
		KillPollIntervalMS:          1000,
		KillQueueSize:               1024,
		KillWorkerCount:             runtime.NumCPU(),
		ListConcurrency:             8,
		DataDir:                     "data",
		DeployPollAttempts:          120,
		DeployPollIntervalMS:        1000,
		ChatMaxTokens:               4096,
		ChatSessionTTLSeconds:       3600,
		HealthTimeoutMS:             60_000,
		ServiceName:                 "connect-extensions",
	}
}

// HTTPTimeout returns HTTPTimeoutMS as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutMS) * time.Millisecond
}

// VisitorCacheTTL returns VisitorCacheTTLSeconds as a duration.
func (c *Config) VisitorCacheTTL() time.Duration {
	return time.Duration(c.VisitorCacheTTLSeconds) * time.Second
}

// CacheCleanupInterval returns CacheCleanupIntervalSeconds as a duration.
func (c *Config) CacheCleanupInterval() time.Duration {
	return time.Duration(c.CacheCleanupIntervalSeconds) * time.Second
}

// KillPollInterval returns KillPollIntervalMS as a duration.
func (c *Config) KillPollInterval() time.Duration {
	return time.Duration(c.KillPollIntervalMS) * time.Millisecond
}

// DeployPollInterval returns DeployPollIntervalMS as a duration.
func (c *Config) DeployPollInterval() time.Duration {
	return time.Duration(c.DeployPollIntervalMS) * time.Millisecond
}

// ChatSessionTTL returns ChatSessionTTLSeconds as a duration.
func (c *Config) ChatSessionTTL() time.Duration {
	return time.Duration(c.ChatSessionTTLSeconds) * time.Second
}

// HealthTimeout returns HealthTimeoutMS as a duration.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.HealthTimeoutMS) * time.Millisecond
}

// ChatEnabled reports whether any LLM credentials are configured.
func (c *Config) ChatEnabled() bool {
	return c.AnthropicAPIKey != "" || c.UseBedrock
}

// BedrockChat reports whether chat goes through Amazon Bedrock. An API key
// takes precedence.
func (c *Config) BedrockChat() bool {
	return c.UseBedrock && c.AnthropicAPIKey == ""
}
