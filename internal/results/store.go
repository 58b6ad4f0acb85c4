package results

import (
	"context"
	"io"

	"github.com/tonimelisma/drivescan/internal/walk"
)

// Store persists one CSV artifact per job.
type Store interface {
	// Save writes entries as the job's artifact and returns the row count.
	// No partial artifact is observable if Save fails.
	Save(ctx context.Context, jobID string, entries []walk.Entry) (int, error)
	// Open returns the artifact for reading, or ErrNotFound.
	Open(ctx context.Context, jobID string) (io.ReadCloser, error)
	// Remove deletes the artifact. A missing artifact is not an error.
	Remove(ctx context.Context, jobID string) error
}
