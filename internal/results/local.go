package results

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tonimelisma/drivescan/internal/walk"
)

const (
	filePerms = 0o600
	dirPerms  = 0o700
)

// LocalStore keeps artifacts as files in a single directory.
// Safe for concurrent use across distinct job ids.
type LocalStore struct {
	dir    string
	logger *slog.Logger
}

// NewLocalStore creates a LocalStore rooted at dir. The directory is created
// lazily on first Save.
func NewLocalStore(dir string, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}

	return &LocalStore{dir: dir, logger: logger}
}

// Path returns the artifact path for jobID.
func (s *LocalStore) Path(jobID string) string {
	return filepath.Join(s.dir, objectName(jobID))
}

// Save writes the artifact atomically: a temp file in the same directory is
// written, fsynced and renamed into place.
func (s *LocalStore) Save(_ context.Context, jobID string, entries []walk.Entry) (int, error) {
	if err := os.MkdirAll(s.dir, dirPerms); err != nil {
		return 0, fmt.Errorf("results: creating directory %s: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".scan-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("results: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, filePerms); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("results: setting permissions: %w", err)
	}

	bw := bufio.NewWriter(tmp)

	n, err := WriteCSV(bw, entries)
	if err != nil {
		tmp.Close()
		return 0, err
	}

	if err := bw.Flush(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("results: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("results: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("results: closing: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path(jobID)); err != nil {
		return 0, fmt.Errorf("results: renaming: %w", err)
	}

	success = true

	s.logger.Debug("result saved",
		slog.String("job_id", jobID),
		slog.Int("rows", n),
		slog.String("path", s.Path(jobID)),
	)

	return n, nil
}

// Open returns the artifact for jobID.
func (s *LocalStore) Open(_ context.Context, jobID string) (io.ReadCloser, error) {
	f, err := os.Open(s.Path(jobID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
	}

	if err != nil {
		return nil, fmt.Errorf("results: opening artifact: %w", err)
	}

	return f, nil
}

// Remove deletes the artifact for jobID.
func (s *LocalStore) Remove(_ context.Context, jobID string) error {
	err := os.Remove(s.Path(jobID))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("results: removing artifact: %w", err)
	}

	return nil
}

// CleanStale removes artifacts and abandoned temp files older than maxAge.
// Returns the number of files deleted.
func (s *LocalStore) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("results: reading directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() || !isManaged(e.Name()) {
			continue
		}

		info, err := e.Info()
		if err != nil {
			continue
		}

		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn("failed to clean stale result",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		s.logger.Info("deleted stale result",
			slog.String("file", e.Name()),
			slog.Duration("age", time.Since(info.ModTime())),
		)

		deleted++
	}

	return deleted, nil
}

func isManaged(name string) bool {
	if strings.HasPrefix(name, "scan_results_") && strings.HasSuffix(name, ".csv") {
		return true
	}

	return strings.HasPrefix(name, ".scan-") && strings.HasSuffix(name, ".tmp")
}
