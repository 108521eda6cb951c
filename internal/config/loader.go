package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of host-specific environment variables.
const EnvPrefix = "EXT_"

// platformEnv maps variables set by the hosting platform onto config keys.
var platformEnv = map[string]string{
	"CONNECT_SERVER":              "connect_server",
	"CONNECT_API_KEY":             "connect_api_key",
	"ANTHROPIC_API_KEY":           "anthropic_api_key",
	"ANTHROPIC_BASE_URL":          "anthropic_base_url",
	"CLAUDE_MODEL":                "claude_model",
	"CLAUDE_CODE_USE_BEDROCK":     "use_bedrock",
	"MONITORED_CONTENT_GUID":      "monitored_content_guid",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "otel_endpoint",
	"PORT":                        "addr",
}

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New)
//  2. file (YAML) if EXT_CONFIG is set
//  3. env (prefix EXT_)
//  4. platform variables (CONNECT_SERVER, ...)
func Load(_ context.Context) (*Config, error) {
	base := New()

	k := koanf.New(".")

	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// EXT_KILL_POLL_ATTEMPTS -> kill_poll_attempts (flat keys). Blank values are skipped.
	envProvider := env.ProviderWithValue(EnvPrefix, ".", func(key, value string) (string, any) {
		if value == "" {
			return "", nil
		}
		return strings.TrimPrefix(strings.ToLower(key), strings.ToLower(EnvPrefix)), value
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	platformProvider := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		mapped, ok := platformEnv[key]
		if !ok || value == "" {
			return "", nil
		}
		if mapped == "addr" && !strings.Contains(value, ":") {
			value = ":" + value
		}
		if mapped == "use_bedrock" {
			return mapped, ParseBool(value, false)
		}
		return mapped, value
	})
	if err := k.Load(platformProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: platform env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the invariants the rest of the host relies on.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.KillPollAttempts < 1:
		return fmt.Errorf("%w: kill_poll_attempts must be at least 1", ErrInvalidConfig)
	case c.KillPollIntervalMS < 0:
		return fmt.Errorf("%w: kill_poll_interval_ms must not be negative", ErrInvalidConfig)
	case c.DeployPollAttempts < 1:
		return fmt.Errorf("%w: deploy_poll_attempts must be at least 1", ErrInvalidConfig)
	case c.VisitorCacheTTLSeconds <= 0:
		return fmt.Errorf("%w: visitor_cache_ttl_s must be positive", ErrInvalidConfig)
	case c.ChatSessionTTLSeconds <= 0:
		return fmt.Errorf("%w: chat_session_ttl_s must be positive", ErrInvalidConfig)
	case c.CacheCleanupIntervalSeconds <= 0:
		return fmt.Errorf("%w: cache_cleanup_interval_s must be positive", ErrInvalidConfig)
	case c.KillQueueSize < 1 || c.KillWorkerCount < 1:
		return fmt.Errorf("%w: kill queue size and worker count must be at least 1", ErrInvalidConfig)
	case c.ListConcurrency < 1:
		return fmt.Errorf("%w: list_concurrency must be at least 1", ErrInvalidConfig)
	}
	return nil
}
