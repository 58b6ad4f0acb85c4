package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "DRIVESCAN_CONFIG"
	EnvClientID     = "DRIVESCAN_CLIENT_ID"
	EnvClientSecret = "DRIVESCAN_CLIENT_SECRET"
	EnvListen       = "DRIVESCAN_LISTEN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // DRIVESCAN_CONFIG: override config file path
	ClientID     string // DRIVESCAN_CLIENT_ID: OAuth client id
	ClientSecret string // DRIVESCAN_CLIENT_SECRET: OAuth client secret
	Listen       string // DRIVESCAN_LISTEN: HTTP listen address
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		Listen:       os.Getenv(EnvListen),
	}
}
