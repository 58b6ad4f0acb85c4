package config

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	appName        = "drivescan"
	configFileName = "config.toml"
)

// dirKind describes one XDG base directory and its fallback below $HOME.
type dirKind struct {
	xdgVar   string
	fallback []string
}

var (
	configDirKind = dirKind{xdgVar: "XDG_CONFIG_HOME", fallback: []string{".config"}}
	dataDirKind   = dirKind{xdgVar: "XDG_DATA_HOME", fallback: []string{".local", "share"}}
)

// DefaultConfigDir returns the directory holding config.toml. Linux honors
// XDG_CONFIG_HOME; macOS uses ~/Library/Application Support/drivescan.
func DefaultConfigDir() string {
	return appDir(configDirKind, runtime.GOOS)
}

// DefaultDataDir returns the directory for the job database, token file,
// local results and pid file. Linux honors XDG_DATA_HOME; on macOS it is
// the same directory as the config.
func DefaultDataDir() string {
	return appDir(dataDirKind, runtime.GOOS)
}

// DefaultConfigPath is used when neither DRIVESCAN_CONFIG nor --config is
// given. Empty when the home directory cannot be determined.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

func appDir(kind dirKind, goos string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return resolveAppDir(kind, goos, home, os.Getenv(kind.xdgVar))
}

// resolveAppDir is appDir without the environment lookups.
func resolveAppDir(kind dirKind, goos, home, xdg string) string {
	switch {
	case goos == "darwin":
		return filepath.Join(home, "Library", "Application Support", appName)
	case goos == "linux" && xdg != "":
		return filepath.Join(xdg, appName)
	default:
		parts := append([]string{home}, kind.fallback...)
		return filepath.Join(append(parts, appName)...)
	}
}
