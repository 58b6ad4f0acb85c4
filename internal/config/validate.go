package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minMaxConcurrent   = 1
	maxMaxConcurrent   = 64
	minShutdownTimeout = 1 * time.Second
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateOAuth(&cfg.OAuth)...)
	errs = append(errs, validateJobs(&cfg.Jobs)...)
	errs = append(errs, validateResults(&cfg.Results)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)

	return errors.Join(errs...)
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if _, _, err := net.SplitHostPort(s.Listen); err != nil {
		errs = append(errs, fmt.Errorf("listen: must be host:port, got %q", s.Listen))
	}

	errs = append(errs, validateDurationMin("shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout)...)

	return errs
}

func validateOAuth(o *OAuthConfig) []error {
	if o.RedirectURL == "" {
		return nil
	}

	u, err := url.Parse(o.RedirectURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []error{fmt.Errorf("redirect_url: must be an absolute URL, got %q", o.RedirectURL)}
	}

	return nil
}

var validJobStores = map[string]bool{
	StoreMemory: true,
	StoreSQLite: true,
}

func validateJobs(j *JobsConfig) []error {
	var errs []error

	if !validJobStores[j.Store] {
		errs = append(errs, fmt.Errorf("store: must be one of memory, sqlite; got %q", j.Store))
	}

	if j.MaxConcurrent < minMaxConcurrent || j.MaxConcurrent > maxMaxConcurrent {
		errs = append(errs, fmt.Errorf("max_concurrent: must be between %d and %d, got %d",
			minMaxConcurrent, maxMaxConcurrent, j.MaxConcurrent))
	}

	return errs
}

func validateResults(r *ResultsConfig) []error {
	var errs []error

	switch r.Backend {
	case BackendLocal:
	case BackendS3:
		if r.S3Endpoint == "" {
			errs = append(errs, errors.New("s3_endpoint: required when backend is \"s3\""))
		}

		if r.S3Bucket == "" {
			errs = append(errs, errors.New("s3_bucket: required when backend is \"s3\""))
		}
	default:
		errs = append(errs, fmt.Errorf("backend: must be one of local, s3; got %q", r.Backend))
	}

	errs = append(errs, validateDurationNonNeg("retention", r.Retention)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	switch l.LogFormat {
	case FormatAuto, FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateDurationNonNeg(field, value string) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < 0 {
		return []error{fmt.Errorf("%s: must be >= 0, got %s", field, d)}
	}

	return nil
}
