package config

import "sync/atomic"

// Holder is the live config of a running server. The serve command, its
// SIGHUP handler and the file watcher share one Holder.
type Holder struct {
	cfg  atomic.Pointer[Config]
	path string
}

// NewHolder creates a Holder for cfg, loaded from path.
func NewHolder(cfg *Config, path string) *Holder {
	h := &Holder{path: path}
	h.cfg.Store(cfg)

	return h
}

// Config returns the current snapshot. Callers must not mutate it.
func (h *Holder) Config() *Config {
	return h.cfg.Load()
}

// Path returns the config file the holder reloads from.
func (h *Holder) Path() string {
	return h.path
}

// Swap replaces the config and returns the one it replaced.
func (h *Holder) Swap(cfg *Config) *Config {
	return h.cfg.Swap(cfg)
}
