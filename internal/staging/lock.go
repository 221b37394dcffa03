package staging

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const (
	// StaleLockThreshold is how long a lock may go untouched before it's
	// considered stale. A held lock is touched every HeartbeatInterval, so
	// only an abandoned lock ever gets this old.
	StaleLockThreshold = 6 * time.Hour

	// HeartbeatInterval is how often a held lock's mtime is refreshed.
	HeartbeatInterval = 10 * time.Minute

	lockFileName = "mscbundle.lock"
)

var ErrLockExists = errors.New("staging lock exists: another build may be running")

// Lock is an exclusive claim on a staging directory. While held, a
// background heartbeat keeps the lock file's mtime fresh.
type Lock struct {
	path string
	file *os.File

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// AcquireLock creates the lock file in dir with O_CREATE|O_EXCL. An existing
// lock is reclaimed only when it is older than StaleLockThreshold and the
// process that wrote it is gone.
func AcquireLock(ctx context.Context, dir string) (*Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, lockFileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if !isLockAbandoned(ctx, lockPath) {
			return nil, ErrLockExists
		}
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	lockData := fmt.Sprintf("pid=%d\ntimestamp=%s\n", os.Getpid(), time.Now().UTC().Format(time.RFC3339))
	if _, err := file.WriteString(lockData); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("write lock data: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}

	l := &Lock{
		path: lockPath,
		file: file,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go l.heartbeat(HeartbeatInterval)
	return l, nil
}

// Touch refreshes the lock file's mtime.
func (l *Lock) Touch() error {
	if l.path == "" {
		return nil
	}
	now := time.Now()
	return os.Chtimes(l.path, now, now)
}

func (l *Lock) heartbeat(every time.Duration) {
	defer close(l.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.Touch()
		}
	}
}

// Release stops the heartbeat and removes the lock file. Releasing twice is
// fine.
func (l *Lock) Release() error {
	l.once.Do(func() {
		if l.stop != nil {
			close(l.stop)
			<-l.done
		}
	})

	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

// isLockAbandoned reports whether the lock at lockPath is stale and its
// holder no longer runs. A lock without a readable pid falls back to age
// alone.
func isLockAbandoned(ctx context.Context, lockPath string) bool {
	info, err := os.Stat(lockPath)
	if err != nil {
		return false
	}
	if time.Since(info.ModTime()) <= StaleLockThreshold {
		return false
	}

	pid, ok := readLockPID(lockPath)
	if !ok {
		return true
	}
	alive, err := process.PidExistsWithContext(ctx, pid)
	if err != nil {
		return false
	}
	return !alive
}

func readLockPID(lockPath string) (int32, bool) {
	f, err := os.Open(lockPath)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		value, found := strings.CutPrefix(scanner.Text(), "pid=")
		if !found {
			continue
		}
		pid, err := strconv.ParseInt(strings.TrimSpace(value), 10, 32)
		if err != nil || pid <= 0 {
			return 0, false
		}
		return int32(pid), true
	}
	return 0, false
}
