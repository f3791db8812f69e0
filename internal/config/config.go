package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	LogLevel  string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	JWTSecret   string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	TokenTTL    time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`

	Gateway GatewayConfig `mapstructure:"gateway" yaml:"gateway"`
}

// GatewayConfig holds the real-time gateway settings.
type GatewayConfig struct {
	// URL is advertised by GET /api/gateway.
	URL string `mapstructure:"url" yaml:"url"`

	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	// HeartbeatGrace is added to the interval before a silent connection is dropped.
	HeartbeatGrace time.Duration `mapstructure:"heartbeat_grace" yaml:"heartbeat_grace"`
	ResumeTimeout  time.Duration `mapstructure:"resume_timeout" yaml:"resume_timeout"`

	ReplayBufferSize    int   `mapstructure:"replay_buffer_size" yaml:"replay_buffer_size"`
	MaxMessageBytes     int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute  int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	DispatchConcurrency int   `mapstructure:"dispatch_concurrency" yaml:"dispatch_concurrency"`

	// MultiSession keeps concurrent logins of one account instead of superseding.
	MultiSession bool `mapstructure:"multi_session" yaml:"multi_session"`

	ReleaseCookie   string   `mapstructure:"release_cookie" yaml:"release_cookie"`
	AllowedReleases []string `mapstructure:"allowed_releases" yaml:"allowed_releases"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		DatabasePath:      "legacy-gateway.db",
		JWTSecret:         "change-me",
		JWTIssuer:         "legacy-gateway",
		JWTAudience:       "legacy-clients",
		TokenTTL:          30 * 24 * time.Hour,
		Gateway: GatewayConfig{
			URL:                 "ws://localhost:8080/gateway",
			HeartbeatInterval:   41250 * time.Millisecond,
			HeartbeatGrace:      20 * time.Second,
			ResumeTimeout:       2 * time.Minute,
			ReplayBufferSize:    500,
			MaxMessageBytes:     1 << 20,
			RateLimitPerMinute:  120,
			DispatchConcurrency: 32,
			ReleaseCookie:       "release_date",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
	if other.JWTSecret != "" {
		c.JWTSecret = other.JWTSecret
	}
	if other.Gateway.URL != "" {
		c.Gateway.URL = other.Gateway.URL
	}
	if other.Gateway.HeartbeatInterval != 0 {
		c.Gateway.HeartbeatInterval = other.Gateway.HeartbeatInterval
	}
	if other.Gateway.ResumeTimeout != 0 {
		c.Gateway.ResumeTimeout = other.Gateway.ResumeTimeout
	}
	if other.Gateway.MultiSession {
		c.Gateway.MultiSession = true
	}
}
