package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "LEGACYGW"
	envConfigDefaultPath = "LEGACYGW_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, configPath, err
	}

	return cfg, configPath, nil
}

// Validate rejects settings the gateway cannot run with.
func (c *Config) Validate() error {
	g := c.Gateway
	switch {
	case g.HeartbeatInterval <= 0:
		return fmt.Errorf("gateway.heartbeat_interval must be positive")
	case g.ResumeTimeout <= 0:
		return fmt.Errorf("gateway.resume_timeout must be positive")
	case g.ReplayBufferSize <= 0:
		return fmt.Errorf("gateway.replay_buffer_size must be positive")
	case g.ReleaseCookie == "":
		return fmt.Errorf("gateway.release_cookie is required")
	case c.JWTSecret == "":
		return fmt.Errorf("jwt_secret is required")
	}
	return nil
}

// setDefaults registers every key so env overrides work without a config file.
func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("addr", cfg.Addr)
	v.SetDefault("read_header_timeout", cfg.ReadHeaderTimeout)
	v.SetDefault("shutdown_timeout", cfg.ShutdownTimeout)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_format", cfg.LogFormat)
	v.SetDefault("database_path", cfg.DatabasePath)
	v.SetDefault("jwt_secret", cfg.JWTSecret)
	v.SetDefault("jwt_issuer", cfg.JWTIssuer)
	v.SetDefault("jwt_audience", cfg.JWTAudience)
	v.SetDefault("token_ttl", cfg.TokenTTL)

	v.SetDefault("gateway.url", cfg.Gateway.URL)
	v.SetDefault("gateway.heartbeat_interval", cfg.Gateway.HeartbeatInterval)
	v.SetDefault("gateway.heartbeat_grace", cfg.Gateway.HeartbeatGrace)
	v.SetDefault("gateway.resume_timeout", cfg.Gateway.ResumeTimeout)
	v.SetDefault("gateway.replay_buffer_size", cfg.Gateway.ReplayBufferSize)
	v.SetDefault("gateway.max_message_bytes", cfg.Gateway.MaxMessageBytes)
	v.SetDefault("gateway.rate_limit_per_minute", cfg.Gateway.RateLimitPerMinute)
	v.SetDefault("gateway.dispatch_concurrency", cfg.Gateway.DispatchConcurrency)
	v.SetDefault("gateway.multi_session", cfg.Gateway.MultiSession)
	v.SetDefault("gateway.release_cookie", cfg.Gateway.ReleaseCookie)
	v.SetDefault("gateway.allowed_releases", cfg.Gateway.AllowedReleases)
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
