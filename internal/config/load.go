package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags. It returns
// the resolved config and the config file path it was read from.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	// 1. Resolve config path: CLI > env > default
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// 2. Load config file (returns defaults if no file exists)
	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, cfgPath, err
	}

	// 3. Apply env overrides
	if env.ClientID != "" {
		cfg.OAuth.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.OAuth.ClientSecret = env.ClientSecret
	}

	if env.Listen != "" {
		cfg.Server.Listen = env.Listen
	}

	// 4. Apply CLI overrides (pointer fields: nil = not specified)
	if cli.Listen != nil {
		cfg.Server.Listen = *cli.Listen
	}

	fillPathDefaults(cfg, DefaultDataDir())

	// 5. Validate the final resolved config
	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

// fillPathDefaults places unset state files under dataDir.
func fillPathDefaults(cfg *Config, dataDir string) {
	if cfg.OAuth.TokenFile == "" {
		cfg.OAuth.TokenFile = filepath.Join(dataDir, tokenFileName)
	}

	if cfg.Jobs.DBPath == "" {
		cfg.Jobs.DBPath = filepath.Join(dataDir, dbFileName)
	}

	if cfg.Results.Dir == "" {
		cfg.Results.Dir = filepath.Join(dataDir, resultsDirName)
	}

	if cfg.Server.PIDFile == "" {
		cfg.Server.PIDFile = filepath.Join(dataDir, pidFileName)
	}
}

// RequireOAuthClient reports a missing OAuth client id, which every command
// that talks to Google needs.
func (c *Config) RequireOAuthClient() error {
	if c.OAuth.ClientID == "" {
		return fmt.Errorf("oauth client id not configured: set %s or [oauth] client_id in the config file", EnvClientID)
	}

	return nil
}
