package reftable

import (
	"os"

	"github.com/cockroachdb/errors"
)

// LockFile implements the exclusive-creation mutex spec.md §4.2
// describes: presence of <path> means some mutator holds the stack (or
// a subtable range, for compaction's per-table locks). It is promoted
// onto its target by rename, or discarded by unlink; callers acquire
// it, do their I/O, then either Promote or Abort it before returning.
type LockFile struct {
	path     string
	f        *os.File
	promoted bool
	closed   bool
	removed  bool
}

// acquireLock creates path exclusively. EEXIST is surfaced as
// ErrLockFailure (transient); any other failure is a fatal IOError.
func acquireLock(path string) (*LockFile, error) {
	f, err := os.OpenFile(path, os.O_EXCL|os.O_CREATE|os.O_WRONLY, 0644)
	if os.IsExist(err) {
		return nil, ErrLockFailure
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reftable: acquire lock %s", path)
	}
	return &LockFile{path: path, f: f}, nil
}

// Write writes b to the lock file's contents — the intended next
// contents of the file it will be promoted onto.
func (l *LockFile) Write(b []byte) error {
	if _, err := l.f.Write(b); err != nil {
		return errors.Wrapf(err, "reftable: write lock %s", l.path)
	}
	return nil
}

// Close closes the underlying file descriptor. It is safe to call
// more than once and safe to call after Promote: rename does not
// invalidate the descriptor, but nothing should unlink the now-renamed
// path while the descriptor from this handle is still open, so close
// always precedes any unlink attempt below.
func (l *LockFile) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// Promote commits the lock file onto dest via rename — the
// linearization point for every stack mutation (spec.md §5). On
// success, Abort becomes a no-op for this handle: the path named by
// l.path no longer refers to a lock file once renamed.
func (l *LockFile) Promote(dest string) error {
	if err := os.Rename(l.path, dest); err != nil {
		return errors.Wrapf(err, "reftable: promote lock %s -> %s", l.path, dest)
	}
	l.promoted = true
	return nil
}

// Abort closes the descriptor and, unless this lock was already
// promoted, unlinks the lock file. It is idempotent and is the single
// cleanup path every lock acquisition should defer immediately.
func (l *LockFile) Abort() error {
	closeErr := l.Close()
	if l.promoted || l.removed {
		return closeErr
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		if closeErr != nil {
			return closeErr
		}
		return errors.Wrapf(err, "reftable: remove lock %s", l.path)
	}
	l.removed = true
	return closeErr
}
