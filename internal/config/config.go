// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Converter ConverterConfig
	Defaults  DefaultsConfig
	Session   SessionConfig
	Database  DatabaseConfig
	Archive   ArchiveConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-streaming requests, including the wait for
	// the conversion service (default: 3m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"3m"`
}

// ConverterConfig locates the remote conversion service.
type ConverterConfig struct {
	// BaseURL is scheme://host:port of the service (default: http://localhost:8000)
	BaseURL string `env:"CONVERTER_BASE_URL" default:"http://localhost:8000"`

	// Timeout bounds a single call to the service (default: 2m)
	Timeout time.Duration `env:"CONVERTER_TIMEOUT" default:"2m"`

	// MaxFileSize is the largest spreadsheet accepted from a browser (default: 50MB)
	MaxFileSize int64 `env:"CONVERTER_MAX_FILE_SIZE" default:"52428800"`

	// MaxConcurrent caps service calls in flight across all sessions (default: 8)
	MaxConcurrent int `env:"CONVERTER_MAX_CONCURRENT" default:"8"`

	// QueueWait is how long a call waits for a free slot (default: 30s)
	QueueWait time.Duration `env:"CONVERTER_QUEUE_WAIT" default:"30s"`
}

// DefaultsConfig holds the initial generation parameters of a new session.
type DefaultsConfig struct {
	TenantID      int64 `env:"DEFAULT_TENANT_ID" default:"1"`
	OperatedByUID int64 `env:"DEFAULT_OPERATED_BY_UID" default:"1"`
	StartingUID   int64 `env:"DEFAULT_STARTING_UID" default:"1000"`
}

// SessionConfig bounds the per-browser workflow cache.
type SessionConfig struct {
	// MaxEntries is the number of concurrent sessions kept (default: 256)
	MaxEntries int `env:"SESSION_MAX_ENTRIES" default:"256"`

	// TTL is how long an idle session survives (default: 2h)
	TTL time.Duration `env:"SESSION_TTL" default:"2h"`

	// CookieName carries the session ID (default: excelsql_session)
	CookieName string `env:"SESSION_COOKIE_NAME" default:"excelsql_session"`

	// SecureCookie marks the cookie Secure; enable behind HTTPS (default: false)
	SecureCookie bool `env:"SESSION_SECURE_COOKIE" default:"false"`
}

// DatabaseConfig holds database connection settings.
// History is kept in memory when URL is empty.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// HistorySize is how many runs the in-memory history keeps (default: 200)
	HistorySize int `env:"HISTORY_MEMORY_SIZE" default:"200"`
}

// ArchiveConfig holds object storage settings for artifact copies.
// Archiving is disabled when Endpoint is empty.
type ArchiveConfig struct {
	Endpoint  string `env:"ARCHIVE_S3_ENDPOINT"`
	Region    string `env:"ARCHIVE_S3_REGION" default:"us-east-1"`
	AccessKey string `env:"ARCHIVE_S3_ACCESS_KEY" envAlt:"MINIO_ROOT_USER"`
	SecretKey string `env:"ARCHIVE_S3_SECRET_KEY" envAlt:"MINIO_ROOT_PASSWORD"`
	Bucket    string `env:"ARCHIVE_S3_BUCKET" default:"excelsql-artifacts"`
	Prefix    string `env:"ARCHIVE_S3_PREFIX" default:"sql"`
	UseSSL    bool   `env:"ARCHIVE_S3_USE_SSL" default:"false"`
}

// Enabled reports whether an archive endpoint is configured.
func (c *ArchiveConfig) Enabled() bool {
	return c.Endpoint != ""
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey protects the JSON API with X-API-Key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
