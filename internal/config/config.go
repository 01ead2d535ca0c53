package config

import "time"

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	// QueueCapacity bounds each session's outbound queue.
	QueueCapacity int `mapstructure:"queue_capacity" yaml:"queue_capacity"`
	// OverflowLimit is the consecutive-drop count after which a session is
	// closed as unhealthy.
	OverflowLimit     int64         `mapstructure:"overflow_limit" yaml:"overflow_limit"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		DatabasePath:      "chatwire.db",
		LogLevel:          "info",
		JWTIssuer:         "chatwire",
		JWTAudience:       "chatwire-clients",
		QueueCapacity:     256,
		OverflowLimit:     32,
		HeartbeatInterval: 30 * time.Second,
	}
}
