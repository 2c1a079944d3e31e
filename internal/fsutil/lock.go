package fsutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

var (
	// ErrWouldBlock is returned by TryLock when the lock is held by another
	// process.
	ErrWouldBlock = errors.New("fsutil: lock would block")

	// errInodeMismatch is an internal sentinel indicating the lock file was
	// replaced between open and flock. Callers retry.
	errInodeMismatch = errors.New("fsutil: lock file replaced")
)

// Locker provides exclusive file-based locking using flock(2).
//
// flock locks an inode (the open file), not a pathname, so Locker verifies
// the inode at path still matches the open descriptor immediately after
// acquiring the lock; a caller that races a file replacement retries rather
// than silently locking a file nobody else sees at that path anymore.
type Locker struct {
	fs FS
}

// NewLocker creates a Locker that uses the given filesystem for file operations.
func NewLocker(fs FS) *Locker {
	return &Locker{fs: fs}
}

// Lock represents a held exclusive lock. Call [Lock.Close] to release it.
type Lock struct {
	file File
}

// Close releases the lock and closes the underlying file descriptor.
// Idempotent.
func (lk *Lock) Close() error {
	if lk.file == nil {
		return nil
	}

	fd := int(lk.file.Fd())
	unlockErr := flockRetryEINTR(fd, unix.LOCK_UN)
	closeErr := lk.file.Close()
	lk.file = nil

	if unlockErr != nil {
		return fmt.Errorf("unlocking lock: %w", unlockErr)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock fd: %w", closeErr)
	}
	return nil
}

// Lock acquires an exclusive lock on the file at path, blocking until the
// lock is available. Parent directories are created lazily.
func (l *Locker) Lock(path string) (*Lock, error) {
	for {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, true)
		if err == nil {
			return &Lock{file: file}, nil
		}

		_ = file.Close()

		if errors.Is(err, errInodeMismatch) {
			continue
		}
		return nil, err
	}
}

// TryLock attempts to acquire an exclusive lock without blocking. Returns
// [ErrWouldBlock] immediately if the lock is held by another process.
func (l *Locker) TryLock(path string) (*Lock, error) {
	for {
		file, err := l.openLockFile(path)
		if err != nil {
			return nil, fmt.Errorf("opening lockfile: %w", err)
		}

		err = l.acquire(file, path, false)
		if err == nil {
			return &Lock{file: file}, nil
		}

		_ = file.Close()

		if errors.Is(err, errInodeMismatch) {
			return nil, fmt.Errorf("%w: lock file was replaced while acquiring lock", ErrWouldBlock)
		}
		return nil, err
	}
}

const (
	lockFilePerm = 0o600
	lockDirPerm  = 0o755
)

func (l *Locker) openLockFile(path string) (File, error) {
	f, err := l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
	if err == nil || !errors.Is(err, os.ErrNotExist) {
		return f, err
	}

	if err := l.fs.MkdirAll(filepath.Dir(path), lockDirPerm); err != nil {
		return nil, err
	}
	return l.fs.OpenFile(path, os.O_RDWR|os.O_CREATE, lockFilePerm)
}

// acquire flocks file and verifies the inode at path still matches. On
// failure the file is unlocked (if needed) but not closed.
func (l *Locker) acquire(file File, path string, blocking bool) error {
	fd := int(file.Fd())

	how := unix.LOCK_EX
	if !blocking {
		how |= unix.LOCK_NB
	}

	if err := flockRetryEINTR(fd, how); err != nil {
		if isWouldBlock(err) {
			return ErrWouldBlock
		}
		return err
	}

	match, err := l.inodeMatchesPath(path, file)
	if err != nil {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)
		if errors.Is(err, os.ErrNotExist) {
			return errInodeMismatch
		}
		return fmt.Errorf("verifying inode match: %w", err)
	}
	if !match {
		_ = flockRetryEINTR(fd, unix.LOCK_UN)
		return errInodeMismatch
	}
	return nil
}

func (l *Locker) inodeMatchesPath(path string, f File) (bool, error) {
	openInfo, err := f.Stat()
	if err != nil {
		return false, err
	}

	openID, err := identityOf(openInfo)
	if err != nil {
		return false, err
	}

	pathInfo, err := l.fs.Stat(path)
	if err != nil {
		return false, err
	}

	pathID, err := identityOf(pathInfo)
	if err != nil {
		return false, err
	}

	return openID == pathID, nil
}

func isWouldBlock(err error) bool {
	return errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EAGAIN)
}

// flockRetryEINTR wraps flock, retrying on EINTR. Capped to avoid spinning
// forever under pathological signal storms; in practice this limit is never
// hit.
func flockRetryEINTR(fd int, how int) error {
	const maxEINTRRetries = 10000

	var err error
	for range maxEINTRRetries {
		err = unix.Flock(fd, how)
		if err == nil || !errors.Is(err, unix.EINTR) {
			return err
		}
	}
	return err
}

// LockWithTimeout attempts to acquire an exclusive lock, retrying with
// exponential backoff until the timeout expires.
func (l *Locker) LockWithTimeout(path string, timeout time.Duration) (*Lock, error) {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		lock, err := l.TryLock(path)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrWouldBlock) {
			return nil, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: timed out after %s", ErrWouldBlock, timeout)
		}

		sleep := backoff
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)

		if backoff < 25*time.Millisecond {
			backoff *= 2
			if backoff > 25*time.Millisecond {
				backoff = 25 * time.Millisecond
			}
		}
	}
}
