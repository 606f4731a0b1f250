package config

import "time"

// Blob backends.
const (
	BlobBackendDisk = "disk"
	BlobBackendS3   = "s3"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	DatabasePath string `mapstructure:"database_path" yaml:"database_path"`

	MaxMessageBytes    int64 `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	BroadcastEcho      bool  `mapstructure:"broadcast_echo" yaml:"broadcast_echo"`

	AuthRequired bool          `mapstructure:"auth_required" yaml:"auth_required"`
	JWTSecret    string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer    string        `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience  string        `mapstructure:"jwt_audience" yaml:"jwt_audience"`
	JWTTTL       time.Duration `mapstructure:"jwt_ttl" yaml:"jwt_ttl"`

	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`
}

// BlobConfig selects where uploaded files are kept.
type BlobConfig struct {
	Backend string `mapstructure:"backend" yaml:"backend"`
	// Root is the server root; stored handles are relative to it.
	Root string `mapstructure:"root" yaml:"root"`
	Dir  string `mapstructure:"dir" yaml:"dir"`

	S3Bucket    string `mapstructure:"s3_bucket" yaml:"s3_bucket"`
	S3Region    string `mapstructure:"s3_region" yaml:"s3_region"`
	S3Endpoint  string `mapstructure:"s3_endpoint" yaml:"s3_endpoint"`
	S3AccessKey string `mapstructure:"s3_access_key" yaml:"s3_access_key"`
	S3SecretKey string `mapstructure:"s3_secret_key" yaml:"s3_secret_key"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":3000",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "chat.db",
		MaxMessageBytes:    32 << 20,
		RateLimitPerMinute: 600,
		BroadcastEcho:      false,
		AuthRequired:       false,
		JWTSecret:          "change-me",
		JWTIssuer:          "lanchat",
		JWTAudience:        "lanchat",
		JWTTTL:             24 * time.Hour,
		Blob: BlobConfig{
			Backend:  BlobBackendDisk,
			Root:     ".",
			Dir:      "uploads",
			S3Region: "us-east-1",
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
	if other.DatabasePath != "" {
		c.DatabasePath = other.DatabasePath
	}
}
