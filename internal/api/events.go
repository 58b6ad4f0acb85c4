package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"

	"github.com/tonimelisma/drivescan/internal/metrics"
)

// eventWriteTimeout bounds a single snapshot write to a slow client.
const eventWriteTimeout = 10 * time.Second

// scanEvents streams the job's snapshots as JSON websocket messages until
// the job reaches a terminal state, then closes normally.
func (s *Server) scanEvents(c *gin.Context) {
	jobID := c.Param("job_id")

	updates, cancel, err := s.jobs.Subscribe(c.Request.Context(), jobID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	defer cancel()

	conn, err := websocket.Accept(upgradeWriter(c), c.Request, &websocket.AcceptOptions{
		OriginPatterns: s.opts.OriginPatterns,
	})
	if err != nil {
		// Accept has already written the error response.
		s.logger.Debug("websocket upgrade failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)

		return
	}
	defer conn.CloseNow()

	defer metrics.EventStreamOpened()()

	// Clients never send; CloseRead handles their close frame and cancels ctx.
	ctx := conn.CloseRead(c.Request.Context())

	for {
		select {
		case <-ctx.Done():
			return

		case snap, ok := <-updates:
			if !ok {
				conn.Close(websocket.StatusNormalClosure, "scan finished")
				return
			}

			if err := writeSnapshot(ctx, conn, snap); err != nil {
				s.logger.Debug("event stream write failed",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)

				return
			}
		}
	}
}

// upgradeWriter returns the net/http writer beneath gin's. gin refuses to
// hijack once the header is flushed, and websocket.Accept flushes gin
// writers before hijacking.
func upgradeWriter(c *gin.Context) http.ResponseWriter {
	if u, ok := c.Writer.(interface{ Unwrap() http.ResponseWriter }); ok {
		return u.Unwrap()
	}

	return c.Writer
}

func writeSnapshot(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()

	return wsjson.Write(ctx, conn, v)
}
