package packaging

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/pkgrender/internal/logger"
)

// LockFilename marks that a run is writing the repository right now.
const LockFilename = ".pkgrender.lock"

// ErrLocked is returned when another live run holds the lock.
var ErrLocked = errors.New("packaging repository is locked by another run")

// Lock is a held repository lock.
type Lock struct {
	path string
}

// Acquire takes the repository lock under root. A lock left by a process that
// no longer runs is removed and taken over.
func Acquire(ctx context.Context, root string) (*Lock, error) {
	if err := os.MkdirAll(root, directoryMode); err != nil {
		return nil, fmt.Errorf("create repository root: %w", err)
	}

	path := filepath.Join(filepath.Clean(root), LockFilename)

	lock, err := create(path)
	if err == nil {
		return lock, nil
	}

	if !errors.Is(err, os.ErrExist) {
		return nil, err
	}

	if isHeldByLiveProcess(ctx, path) {
		return nil, fmt.Errorf("%s: %w", path, ErrLocked)
	}

	logger.InfoKV(ctx, "Removing stale repository lock", "path", path)

	if err = os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale lock: %w", err)
	}

	return create(path)
}

// Release removes the lock file.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock: %w", err)
	}

	return nil
}

// create writes "<pid> <executable>" into a new lock file.
func create(path string) (*Lock, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	_, err = fmt.Fprintf(file, "%d %s\n", os.Getpid(), currentExecutable())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		_ = os.Remove(path)

		return nil, fmt.Errorf("write lock: %w", err)
	}

	return &Lock{path: path}, nil
}

// isHeldByLiveProcess reports whether the process recorded in the lock still
// runs the same executable. Unreadable locks are treated as live.
func isHeldByLiveProcess(ctx context.Context, path string) bool {
	contents, err := os.ReadFile(path)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist)
	}

	pidText, executable, _ := strings.Cut(strings.TrimSpace(string(contents)), " ")

	pid, err := strconv.Atoi(pidText)
	if err != nil {
		logger.WarnKV(ctx, "Repository lock is malformed", "path", path)

		return false
	}

	process, err := ps.FindProcess(pid)
	if err != nil {
		logger.WarnKV(ctx, "Unable to inspect lock owner", "pid", pid, "error", err)

		return true
	}

	if process == nil {
		return false
	}

	return executable == "" || process.Executable() == executable
}

func currentExecutable() string {
	processes, err := ps.FindProcess(os.Getpid())
	if err == nil && processes != nil {
		return processes.Executable()
	}

	return filepath.Base(os.Args[0])
}
