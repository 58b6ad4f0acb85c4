package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const (
	pidFilePerms = 0o644
	pidDirPerms  = 0o755
)

// errServerRunning means another serve process holds the pid file lock and
// therefore owns the job store.
var errServerRunning = errors.New("another drivescan serve is already running")

// writePIDFile records the current pid in path under an exclusive,
// non-blocking flock held for the life of the process. The returned
// release func removes the file and drops the lock.
func writePIDFile(path string) (release func(), err error) {
	if path == "" {
		return nil, errors.New("pid file path is empty: cannot determine data directory")
	}

	if err := os.MkdirAll(filepath.Dir(path), pidDirPerms); err != nil {
		return nil, fmt.Errorf("creating pid file directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, pidFilePerms)
	if err != nil {
		return nil, fmt.Errorf("opening pid file: %w", err)
	}

	if err := lockAndWritePID(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

func lockAndWritePID(f *os.File) error {
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		return errServerRunning
	}

	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncating: %w", err)
	}

	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0); err != nil {
		return fmt.Errorf("writing: %w", err)
	}

	return f.Sync()
}

// readPIDFile parses the pid stored at path.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading pid file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s: %q", path, strings.TrimSpace(string(data)))
	}

	return pid, nil
}

// sendSIGHUP asks the server recorded in pidPath to reload its config. A
// pid file whose process is gone is removed.
func sendSIGHUP(pidPath string) error {
	pid, err := readPIDFile(pidPath)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no running server found (no pid file at %s)", pidPath)
	}

	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process %d: %w", pid, err)
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		os.Remove(pidPath)
		return fmt.Errorf("server (pid %d) is not running; removed stale pid file", pid)
	}

	if err := proc.Signal(syscall.SIGHUP); err != nil {
		return fmt.Errorf("sending SIGHUP to pid %d: %w", pid, err)
	}

	return nil
}
