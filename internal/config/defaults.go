package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain. Empty path defaults are filled from the
// platform data directory by fillPathDefaults.
const (
	defaultListen          = "127.0.0.1:8000"
	defaultShutdownTimeout = "30s"
	defaultRedirectURL     = "http://localhost:8000/oauth/callback"
	defaultJobStore        = StoreMemory
	defaultMaxConcurrent   = 4
	defaultResultsBackend  = BackendLocal
	defaultRetention       = "0s"
	defaultLogLevel        = "info"
	defaultLogFormat       = defaultFormat
	defaultConnectTimeout  = "10s"
	defaultDataTimeout     = "60s"

	tokenFileName  = "token.json"
	dbFileName     = "jobs.db"
	resultsDirName = "results"
	pidFileName    = "drivescan.pid"
)

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Listen:          defaultListen,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		OAuth: OAuthConfig{
			RedirectURL: defaultRedirectURL,
		},
		Jobs: JobsConfig{
			Store:         defaultJobStore,
			MaxConcurrent: defaultMaxConcurrent,
		},
		Results: ResultsConfig{
			Backend:   defaultResultsBackend,
			Retention: defaultRetention,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
	}
}
