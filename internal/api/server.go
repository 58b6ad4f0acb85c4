// Package api serves the scan service over HTTP: job submission, status
// polling, CSV download, live progress over websocket, and the OAuth
// redirect target that completes authorization.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonimelisma/drivescan/internal/metrics"
	"github.com/tonimelisma/drivescan/internal/scan"
)

// Jobs is the part of the scan coordinator the API drives.
type Jobs interface {
	Submit(ctx context.Context, rootID string) (string, error)
	Status(ctx context.Context, id string) (scan.Snapshot, error)
	Result(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
	Subscribe(ctx context.Context, id string) (<-chan scan.Snapshot, func(), error)
}

// Authorizer redeems the code Google sends to the redirect URL.
type Authorizer interface {
	CompleteAuthorization(ctx context.Context, state, code string) error
}

// Options tunes the server. The zero value is usable.
type Options struct {
	// OriginPatterns are extra hosts allowed to open event websockets from
	// a browser page served elsewhere.
	OriginPatterns []string
}

// Server holds the HTTP handlers.
type Server struct {
	jobs   Jobs
	auth   Authorizer
	opts   Options
	logger *slog.Logger
	engine *gin.Engine
}

// New builds a Server and its routes. auth may be nil, in which case the
// OAuth callback reports that authorization is not available.
func New(jobs Jobs, auth Authorizer, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		jobs:   jobs,
		auth:   auth,
		opts:   opts,
		logger: logger,
	}

	s.engine = s.routes()

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() *gin.Engine {
	router := gin.New()
	router.Use(s.observe(), s.recovery())

	router.GET("/healthz", s.healthz)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/oauth/callback", s.oauthCallback)

	api := router.Group("/api/scan")
	{
		api.POST("", s.startScan)
		api.GET("/:job_id/status", s.scanStatus)
		api.GET("/:job_id/download", s.downloadResult)
		api.GET("/:job_id/events", s.scanEvents)
		api.DELETE("/:job_id", s.deleteScan)
	}

	return router
}
