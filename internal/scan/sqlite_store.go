package scan

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// InterruptedMessage is the failure message given to jobs that were still
// processing when their process died.
const InterruptedMessage = "Error: interrupted by restart"

const (
	sqlGetJob = `SELECT id, root_id, status, message, progress,
		authorization_url, entry_count, created_at, updated_at
		FROM jobs WHERE id = ?`

	sqlUpsertJob = `INSERT INTO jobs
		(id, root_id, status, message, progress, authorization_url,
		 entry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
		 status = excluded.status,
		 message = excluded.message,
		 progress = excluded.progress,
		 authorization_url = excluded.authorization_url,
		 entry_count = excluded.entry_count,
		 updated_at = excluded.updated_at`

	sqlDeleteJob = `DELETE FROM jobs WHERE id = ?`

	sqlFailInterrupted = `UPDATE jobs SET status = 'failed', message = ?, updated_at = ?
		WHERE status = 'processing'`

	sqlListJobs = `SELECT id, root_id, status, message, progress,
		authorization_url, entry_count, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, id LIMIT ?`
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// SQLiteStore persists jobs in a SQLite database so status survives a
// restart.
type SQLiteStore struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time
}

// OpenSQLiteStore opens (creating if needed) the database at dbPath and runs
// migrations. The process that owns job execution must call
// RecoverInterrupted before accepting work.
func OpenSQLiteStore(ctx context.Context, dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("scan: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("job store opened", slog.String("db_path", dbPath))

	return &SQLiteStore{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Close releases the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecoverInterrupted fails every job a previous process left in processing.
// No routine survives a restart to finish them.
func (s *SQLiteStore) RecoverInterrupted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlFailInterrupted, InterruptedMessage, s.nowFunc().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("scan: failing interrupted jobs: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("scan: failing interrupted jobs: %w", err)
	}

	if n > 0 {
		s.logger.Warn("failed jobs interrupted by restart", slog.Int64("count", n))
	}

	return n, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Job, error) {
	j, err := scanJob(s.db.QueryRowContext(ctx, sqlGetJob, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("scan: reading job %s: %w", id, err)
	}

	return j, nil
}

// List returns up to limit jobs, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, sqlListJobs, limit)
	if err != nil {
		return nil, fmt.Errorf("scan: listing jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job

	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: listing jobs: %w", err)
		}

		jobs = append(jobs, *j)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan: listing jobs: %w", err)
	}

	return jobs, nil
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		j                  Job
		status, message    string
		progress           int
		authURL            sql.NullString
		entryCount         sql.NullInt64
		createdAt, updated int64
	)

	if err := row.Scan(
		&j.ID, &j.RootID, &status, &message, &progress,
		&authURL, &entryCount, &createdAt, &updated,
	); err != nil {
		return nil, err
	}

	state, err := decodeState(Status(status), message, progress, authURL, entryCount)
	if err != nil {
		return nil, err
	}

	j.State = state
	j.CreatedAt = time.Unix(0, createdAt).UTC()
	j.UpdatedAt = time.Unix(0, updated).UTC()

	return &j, nil
}

func (s *SQLiteStore) Put(ctx context.Context, job *Job) error {
	var (
		authURL    sql.NullString
		entryCount sql.NullInt64
	)

	switch st := job.State.(type) {
	case AuthRequired:
		authURL = sql.NullString{String: st.AuthorizationURL, Valid: true}
	case Completed:
		entryCount = sql.NullInt64{Int64: int64(st.EntryCount), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, sqlUpsertJob,
		job.ID, job.RootID, string(job.State.Status()), job.State.message(), job.State.progress(),
		authURL, entryCount, job.CreatedAt.UnixNano(), job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("scan: writing job %s: %w", job.ID, err)
	}

	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, sqlDeleteJob, id); err != nil {
		return fmt.Errorf("scan: deleting job %s: %w", id, err)
	}

	return nil
}

func decodeState(status Status, message string, progress int, authURL sql.NullString, entryCount sql.NullInt64) (State, error) {
	switch status {
	case StatusProcessing:
		return Processing{Progress: progress, Message: message}, nil
	case StatusAuthRequired:
		return AuthRequired{AuthorizationURL: authURL.String}, nil
	case StatusCompleted:
		return Completed{EntryCount: int(entryCount.Int64)}, nil
	case StatusFailed:
		return Failed{Message: message, Progress: progress}, nil
	default:
		return nil, fmt.Errorf("unknown status %q", status)
	}
}
