package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/tonimelisma/drivescan/internal/config"
	"github.com/tonimelisma/drivescan/internal/gdrive"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/scan"
	"github.com/tonimelisma/drivescan/internal/walk"
)

// newHTTPClient builds the client used for Drive and OAuth requests. The
// connect timeout bounds dialing; the data timeout bounds waiting for
// response headers. Bodies are not capped so long listings can stream.
func newHTTPClient(cfg *config.Config) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{Timeout: cfg.ConnectTimeout()}).DialContext
	transport.TLSHandshakeTimeout = cfg.ConnectTimeout()
	transport.ResponseHeaderTimeout = cfg.DataTimeout()

	return &http.Client{Transport: transport}
}

// newAuthenticator builds the credential provider for the configured client.
func newAuthenticator(cc *CLIContext, httpClient *http.Client) (*gdrive.Authenticator, error) {
	if err := cc.Cfg.RequireOAuthClient(); err != nil {
		return nil, err
	}

	return gdrive.NewAuthenticator(gdrive.AuthConfig{
		ClientID:     cc.Cfg.OAuth.ClientID,
		ClientSecret: cc.Cfg.OAuth.ClientSecret,
		RedirectURL:  cc.Cfg.OAuth.RedirectURL,
		TokenPath:    cc.Cfg.OAuth.TokenFile,
		HTTPClient:   httpClient,
	}, cc.Logger), nil
}

// listerFactory binds Drive listings to a job's credential.
func listerFactory(cc *CLIContext, httpClient *http.Client) scan.ListerFactory {
	return func(ts gdrive.TokenSource) walk.Lister {
		client := gdrive.NewClient(gdrive.DefaultBaseURL, httpClient, ts, cc.Logger, cc.Cfg.Network.UserAgent)
		return walk.NewDriveLister(client)
	}
}

// openJobStore returns the configured job store and a func that releases it.
func openJobStore(ctx context.Context, cc *CLIContext) (scan.Store, func(), error) {
	switch cc.Cfg.Jobs.Store {
	case config.StoreSQLite:
		s, err := scan.OpenSQLiteStore(ctx, cc.Cfg.Jobs.DBPath, cc.Logger)
		if err != nil {
			return nil, nil, err
		}

		return s, func() {
			if err := s.Close(); err != nil {
				cc.Logger.Warn("closing job store", slog.String("error", err.Error()))
			}
		}, nil
	default:
		return scan.NewMemoryStore(), func() {}, nil
	}
}

// openResultStore returns the configured artifact backend.
func openResultStore(ctx context.Context, cc *CLIContext) (results.Store, error) {
	r := cc.Cfg.Results

	switch r.Backend {
	case config.BackendS3:
		s, err := results.NewS3Store(ctx, results.S3Config{
			Endpoint:  r.S3Endpoint,
			Bucket:    r.S3Bucket,
			AccessKey: r.S3AccessKey,
			SecretKey: r.S3SecretKey,
			UseSSL:    r.S3UseSSL,
			Prefix:    r.S3Prefix,
		}, cc.Logger)
		if err != nil {
			return nil, fmt.Errorf("opening result bucket: %w", err)
		}

		return s, nil
	default:
		return results.NewLocalStore(r.Dir, cc.Logger), nil
	}
}
