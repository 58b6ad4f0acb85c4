// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivescan. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	OAuth   OAuthConfig   `toml:"oauth"`
	Jobs    JobsConfig    `toml:"jobs"`
	Results ResultsConfig `toml:"results"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
}

// ServerConfig controls the HTTP service started by `drivescan serve`.
type ServerConfig struct {
	Listen          string `toml:"listen"`
	PIDFile         string `toml:"pid_file"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// OAuthConfig identifies the Google OAuth client and where its token lives.
// RedirectURL is the service's /oauth/callback as registered with Google.
type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
	TokenFile    string `toml:"token_file"`
}

// JobsConfig selects the job store and bounds concurrent walks.
type JobsConfig struct {
	Store         string `toml:"store"`
	DBPath        string `toml:"db_path"`
	MaxConcurrent int    `toml:"max_concurrent"`
}

// ResultsConfig selects where exported CSV artifacts are kept.
type ResultsConfig struct {
	Backend     string `toml:"backend"`
	Dir         string `toml:"dir"`
	Retention   string `toml:"retention"`
	S3Endpoint  string `toml:"s3_endpoint"`
	S3Bucket    string `toml:"s3_bucket"`
	S3AccessKey string `toml:"s3_access_key"`
	S3SecretKey string `toml:"s3_secret_key"`
	S3UseSSL    bool   `toml:"s3_use_ssl"`
	S3Prefix    string `toml:"s3_prefix"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the Drive HTTP client.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Listen     *string // serve --listen
}

// Job store and result backend names.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	BackendLocal  = "local"
	BackendS3     = "s3"
	FormatAuto    = "auto"
	FormatText    = "text"
	FormatJSON    = "json"
	defaultFormat = FormatAuto
)

// ShutdownTimeout returns the parsed server.shutdown_timeout. Validate has
// already rejected unparseable values.
func (c *Config) ShutdownTimeout() time.Duration {
	return mustDuration(c.Server.ShutdownTimeout, defaultShutdownTimeout)
}

// ConnectTimeout returns the parsed network.connect_timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return mustDuration(c.Network.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeout returns the parsed network.data_timeout.
func (c *Config) DataTimeout() time.Duration {
	return mustDuration(c.Network.DataTimeout, defaultDataTimeout)
}

// ResultRetention returns the parsed results.retention. Zero disables
// cleanup.
func (c *Config) ResultRetention() time.Duration {
	return mustDuration(c.Results.Retention, defaultRetention)
}

// mustDuration parses value, falling back to the default literal.
func mustDuration(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
