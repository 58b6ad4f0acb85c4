package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tonimelisma/drivescan/internal/gdrive"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/scan"
)

// Response messages shared with clients.
const (
	msgScanStarted     = "Scan started"
	msgJobNotFound     = "Job not found"
	msgNotCompleted    = "Scan not completed yet"
	msgResultNotFound  = "Result file not found"
	msgFolderRequired  = "folder_id is required"
	msgStillProcessing = "Scan is still processing"
	msgInternal        = "Internal server error"
)

type scanRequest struct {
	FolderID string `json:"folder_id"`
}

type scanResponse struct {
	JobID   string `json:"job_id"`
	Message string `json:"message"`
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) startScan(c *gin.Context) {
	var req scanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	jobID, err := s.jobs.Submit(c.Request.Context(), req.FolderID)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, scanResponse{JobID: jobID, Message: msgScanStarted})
}

func (s *Server) scanStatus(c *gin.Context) {
	snap, err := s.jobs.Status(c.Request.Context(), c.Param("job_id"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, snap)
}

func (s *Server) downloadResult(c *gin.Context) {
	jobID := c.Param("job_id")

	rc, err := s.jobs.Result(c.Request.Context(), jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer rc.Close()

	c.DataFromReader(http.StatusOK, -1, results.ContentType, rc, map[string]string{
		"Content-Disposition": fmt.Sprintf("attachment; filename=%q", results.DownloadName),
	})
}

func (s *Server) deleteScan(c *gin.Context) {
	if err := s.jobs.Delete(c.Request.Context(), c.Param("job_id")); err != nil {
		s.writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) oauthCallback(c *gin.Context) {
	if s.auth == nil {
		c.String(http.StatusNotFound, "Authorization is not configured")
		return
	}

	if errParam := c.Query("error"); errParam != "" {
		c.String(http.StatusBadRequest, "Authorization failed: "+errParam)
		return
	}

	state, code := c.Query("state"), c.Query("code")
	if state == "" || code == "" {
		c.String(http.StatusBadRequest, "Missing state or authorization code")
		return
	}

	if err := s.auth.CompleteAuthorization(c.Request.Context(), state, code); err != nil {
		if errors.Is(err, gdrive.ErrUnknownState) {
			c.String(http.StatusBadRequest, "Authorization link expired or already used")
			return
		}

		s.logger.Error("completing authorization", slog.String("error", err.Error()))
		c.String(http.StatusBadGateway, "Authorization failed")

		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")
	c.String(http.StatusOK, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and start a new scan.</p></body></html>")
}

// writeError maps coordinator errors onto HTTP statuses.
func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, scan.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgJobNotFound})
	case errors.Is(err, results.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": msgResultNotFound})
	case errors.Is(err, scan.ErrNotCompleted):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgNotCompleted})
	case errors.Is(err, scan.ErrInvalidRoot):
		c.JSON(http.StatusBadRequest, gin.H{"error": msgFolderRequired})
	case errors.Is(err, scan.ErrStillRunning):
		c.JSON(http.StatusConflict, gin.H{"error": msgStillProcessing})
	default:
		s.logger.Error("request failed",
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msgInternal})
	}
}
