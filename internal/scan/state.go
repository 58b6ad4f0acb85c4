// Package scan runs folder enumerations as background jobs and tracks their
// lifecycle. A job starts in Processing and ends in exactly one of
// AuthRequired, Completed or Failed; terminal states never change again.
package scan

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrJobNotFound  = errors.New("scan: job not found")
	ErrNotCompleted = errors.New("scan: scan not completed yet")
	ErrInvalidRoot  = errors.New("scan: root folder id is required")
	ErrTerminal     = errors.New("scan: job already in a terminal state")
	ErrRegression   = errors.New("scan: progress cannot decrease")
	ErrStillRunning = errors.New("scan: job is still processing")
)

// Status is the externally visible name of a job state.
type Status string

// Job statuses.
const (
	StatusProcessing   Status = "processing"
	StatusAuthRequired Status = "auth_required"
	StatusCompleted    Status = "completed"
	StatusFailed       Status = "failed"
)

// State is one of Processing, AuthRequired, Completed or Failed.
type State interface {
	Status() Status
	// progress is the percentage this state reports.
	progress() int
	// message is the human-readable status line.
	message() string
}

// Processing is the only non-terminal state.
type Processing struct {
	Progress int
	Message  string
}

// AuthRequired means no usable credential was available. The job ends here;
// the user authorizes out-of-band and submits a new job.
type AuthRequired struct {
	AuthorizationURL string
}

// Completed carries the number of rows in the exported table.
type Completed struct {
	EntryCount int
}

// Failed keeps the progress reached before the failure.
type Failed struct {
	Message  string
	Progress int
}

func (Processing) Status() Status   { return StatusProcessing }
func (AuthRequired) Status() Status { return StatusAuthRequired }
func (Completed) Status() Status    { return StatusCompleted }
func (Failed) Status() Status       { return StatusFailed }

func (s Processing) progress() int { return s.Progress }
func (AuthRequired) progress() int { return 0 }
func (Completed) progress() int    { return 100 }
func (s Failed) progress() int     { return s.Progress }

func (s Processing) message() string { return s.Message }
func (AuthRequired) message() string { return "Authorization required" }
func (s Completed) message() string  { return fmt.Sprintf("Found %d files and folders", s.EntryCount) }
func (s Failed) message() string     { return s.Message }

// IsTerminal reports whether s can no longer change.
func IsTerminal(s State) bool {
	_, processing := s.(Processing)
	return !processing
}

// checkTransition enforces that terminal states are final and progress is
// monotonic.
func checkTransition(from, to State) error {
	if IsTerminal(from) {
		return fmt.Errorf("%w: %s", ErrTerminal, from.Status())
	}

	if to.progress() < from.progress() {
		return fmt.Errorf("%w: %d -> %d", ErrRegression, from.progress(), to.progress())
	}

	return nil
}

// Job is one enumeration request and its current state.
type Job struct {
	ID        string
	RootID    string
	State     State
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Snapshot is the externally visible view of a job.
type Snapshot struct {
	JobID            string `json:"job_id"`
	Status           Status `json:"status"`
	Message          string `json:"message"`
	Progress         int    `json:"progress"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
	EntryCount       *int   `json:"entry_count,omitempty"`
}

// Terminal reports whether the snapshot is the job's last.
func (s Snapshot) Terminal() bool {
	return s.Status != StatusProcessing
}

// Snapshot renders the job for clients.
func (j *Job) Snapshot() Snapshot {
	snap := Snapshot{
		JobID:    j.ID,
		Status:   j.State.Status(),
		Message:  j.State.message(),
		Progress: j.State.progress(),
	}

	switch s := j.State.(type) {
	case AuthRequired:
		snap.AuthorizationURL = s.AuthorizationURL
	case Completed:
		n := s.EntryCount
		snap.EntryCount = &n
	}

	return snap
}
