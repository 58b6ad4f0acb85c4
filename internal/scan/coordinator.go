package scan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/tonimelisma/drivescan/internal/gdrive"
	"github.com/tonimelisma/drivescan/internal/metrics"
	"github.com/tonimelisma/drivescan/internal/results"
	"github.com/tonimelisma/drivescan/internal/walk"
)

// Job progress milestones and messages.
const (
	progressScanning  = 10
	progressExporting = 90

	msgQueued         = "Scan queued"
	msgAuthenticating = "Authenticating"
	msgScanning       = "Scanning Google Drive"
	msgExporting      = "Writing results"
)

// progressInterval throttles walk progress writes to the job store.
const progressInterval = 500 * time.Millisecond

// CredentialProvider yields the credential used to list the remote.
// An *gdrive.AuthRequiredError means the user must authorize first.
type CredentialProvider interface {
	Credential(ctx context.Context) (gdrive.TokenSource, error)
}

// ListerFactory binds a Lister to a credential.
type ListerFactory func(gdrive.TokenSource) walk.Lister

// Config holds the coordinator's collaborators.
type Config struct {
	Store         Store
	Results       results.Store
	Credentials   CredentialProvider
	NewLister     ListerFactory
	MaxConcurrent int
	Logger        *slog.Logger
}

// Coordinator accepts jobs, runs each in its own goroutine and answers
// status and result queries.
type Coordinator struct {
	store     Store
	results   results.Store
	creds     CredentialProvider
	newLister ListerFactory
	sem       *semaphore.Weighted
	logger    *slog.Logger

	nowFunc func() time.Time
	newID   func() string

	wg sync.WaitGroup

	subsMu sync.Mutex
	subs   map[string][]chan Snapshot
}

// NewCoordinator creates a Coordinator. MaxConcurrent below 1 means 1.
func NewCoordinator(cfg Config) *Coordinator {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.MaxConcurrent
	if limit < 1 {
		limit = 1
	}

	return &Coordinator{
		store:     cfg.Store,
		results:   cfg.Results,
		creds:     cfg.Credentials,
		newLister: cfg.NewLister,
		sem:       semaphore.NewWeighted(int64(limit)),
		logger:    logger,
		nowFunc:   time.Now,
		newID:     uuid.NewString,
		subs:      make(map[string][]chan Snapshot),
	}
}

// Submit registers a new job for rootID and starts it in the background.
// It returns as soon as the job is recorded.
func (c *Coordinator) Submit(ctx context.Context, rootID string) (string, error) {
	rootID = strings.TrimSpace(rootID)
	if rootID == "" {
		return "", ErrInvalidRoot
	}

	now := c.nowFunc()
	job := &Job{
		ID:        c.newID(),
		RootID:    rootID,
		State:     Processing{Progress: 0, Message: msgQueued},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := c.store.Put(ctx, job); err != nil {
		return "", fmt.Errorf("scan: recording job: %w", err)
	}

	metrics.RecordJobSubmitted()
	c.logger.Info("scan submitted",
		slog.String("job_id", job.ID),
		slog.String("root_id", rootID),
	)

	c.wg.Add(1)

	// The job outlives the submitting request.
	go func() {
		defer c.wg.Done()
		c.run(job.ID, rootID, now)
	}()

	return job.ID, nil
}

// Status returns the job's current snapshot.
func (c *Coordinator) Status(ctx context.Context, id string) (Snapshot, error) {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return Snapshot{}, err
	}

	return job.Snapshot(), nil
}

// Result opens the completed job's exported table. The caller closes it.
// A job still processing yields ErrNotCompleted; a job that ended without
// completing has no artifact and yields results.ErrNotFound.
func (c *Coordinator) Result(ctx context.Context, id string) (io.ReadCloser, error) {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.State.(type) {
	case Processing:
		return nil, ErrNotCompleted
	case Completed:
	default:
		return nil, fmt.Errorf("scan: job %s ended %s: %w", id, job.State.Status(), results.ErrNotFound)
	}

	rc, err := c.results.Open(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("scan: opening result for job %s: %w", id, err)
	}

	return rc, nil
}

// Delete forgets a terminal job and removes its artifact.
func (c *Coordinator) Delete(ctx context.Context, id string) error {
	job, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}

	if !IsTerminal(job.State) {
		return ErrStillRunning
	}

	if err := c.results.Remove(ctx, id); err != nil {
		return fmt.Errorf("scan: removing result for job %s: %w", id, err)
	}

	if err := c.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("scan: deleting job %s: %w", id, err)
	}

	c.logger.Info("scan deleted", slog.String("job_id", id))

	return nil
}

// Wait blocks until every started job has reached a terminal state.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

// run is the job's execution routine. It is the job's only writer.
func (c *Coordinator) run(jobID, rootID string, submitted time.Time) {
	ctx := context.Background()
	logger := c.logger.With(slog.String("job_id", jobID))

	if err := c.sem.Acquire(ctx, 1); err != nil {
		c.finish(ctx, jobID, Failed{Message: errorMessage(err)}, submitted, logger)
		return
	}
	defer c.sem.Release(1)

	release := metrics.JobStarted()
	defer release()

	final := c.execute(ctx, jobID, rootID, logger)
	c.finish(ctx, jobID, final, submitted, logger)
}

// execute performs authentication, the walk and the export, returning the
// terminal state to record.
func (c *Coordinator) execute(ctx context.Context, jobID, rootID string, logger *slog.Logger) State {
	c.advance(ctx, jobID, Processing{Progress: 0, Message: msgAuthenticating}, logger)

	token, err := c.creds.Credential(ctx)
	if err != nil {
		var authErr *gdrive.AuthRequiredError
		if errors.As(err, &authErr) {
			logger.Info("scan needs authorization")
			return AuthRequired{AuthorizationURL: authErr.URL}
		}

		return Failed{Message: errorMessage(err), Progress: 0}
	}

	c.advance(ctx, jobID, Processing{Progress: progressScanning, Message: msgScanning}, logger)

	w := walk.New(c.newLister(token), logger)

	var lastReport time.Time

	w.OnFolder(func(p walk.Progress) {
		now := c.nowFunc()
		if now.Sub(lastReport) < progressInterval {
			return
		}

		lastReport = now
		c.advance(ctx, jobID, Processing{
			Progress: progressScanning,
			Message:  fmt.Sprintf("%s: %d items found", msgScanning, p.EntriesFound),
		}, logger)
	})

	entries, err := w.Walk(ctx, rootID)
	if err != nil {
		return Failed{Message: errorMessage(err), Progress: progressScanning}
	}

	c.advance(ctx, jobID, Processing{Progress: progressExporting, Message: msgExporting}, logger)

	n, err := c.results.Save(ctx, jobID, entries)
	if err != nil {
		c.discardResult(ctx, jobID, logger)
		return Failed{Message: errorMessage(err), Progress: progressExporting}
	}

	return Completed{EntryCount: n}
}

// finish records the terminal state. A completed job whose state cannot be
// recorded must not leave an artifact behind.
func (c *Coordinator) finish(ctx context.Context, jobID string, final State, submitted time.Time, logger *slog.Logger) {
	err := c.transition(ctx, jobID, final)
	if err != nil {
		logger.Error("recording terminal state failed",
			slog.String("status", string(final.Status())),
			slog.String("error", err.Error()),
		)

		if _, ok := final.(Completed); ok {
			c.discardResult(ctx, jobID, logger)
		}

		return
	}

	entries := 0
	if done, ok := final.(Completed); ok {
		entries = done.EntryCount
	}

	metrics.RecordJobFinished(string(final.Status()), c.nowFunc().Sub(submitted), entries)

	attrs := []any{slog.String("status", string(final.Status()))}
	if f, ok := final.(Failed); ok {
		attrs = append(attrs, slog.String("message", f.Message))
		logger.Warn("scan failed", attrs...)

		return
	}

	attrs = append(attrs, slog.Int("entries", entries))
	logger.Info("scan finished", attrs...)
}

// advance records an intermediate state. Failures are logged, not fatal:
// the job keeps running and its terminal state is what matters.
func (c *Coordinator) advance(ctx context.Context, jobID string, next Processing, logger *slog.Logger) {
	if err := c.transition(ctx, jobID, next); err != nil {
		logger.Warn("recording progress failed",
			slog.Int("progress", next.Progress),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Coordinator) transition(ctx context.Context, jobID string, next State) error {
	job, err := c.store.Get(ctx, jobID)
	if err != nil {
		return err
	}

	if err := checkTransition(job.State, next); err != nil {
		return err
	}

	job.State = next
	job.UpdatedAt = c.nowFunc()

	if err := c.store.Put(ctx, job); err != nil {
		return err
	}

	c.publish(job.Snapshot())

	return nil
}

func (c *Coordinator) discardResult(ctx context.Context, jobID string, logger *slog.Logger) {
	if err := c.results.Remove(ctx, jobID); err != nil {
		logger.Warn("removing partial result failed", slog.String("error", err.Error()))
	}
}

func errorMessage(err error) string {
	return "Error: " + err.Error()
}
