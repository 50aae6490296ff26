package reftable

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/kvstack/reftable/internal/table"
)

// Add produces one new table from write and publishes it atomically,
// then runs AutoCompact. On ErrLockFailure from the underlying
// attempt, the stack is reloaded so the caller's retry sees a current
// view (spec.md §4.4).
func (st *Stack) Add(write func(w *table.Writer) error) error {
	if err := st.add(write); err != nil {
		if errors.Is(err, ErrLockFailure) {
			st.reload()
		}
		return err
	}
	return st.AutoCompact()
}

// add is the private, non-reloading half of Add: the Appender
// protocol from spec.md §4.4.
func (st *Stack) add(write func(w *table.Writer) error) error {
	lock, err := acquireLock(st.lockPath())
	if err != nil {
		return err
	}
	defer lock.Abort()

	if ok, err := st.UpToDate(); err != nil {
		return err
	} else if !ok {
		return ErrLockFailure
	}

	var names []string
	for _, r := range st.stack {
		names = append(names, r.Name())
	}

	next := st.NextUpdateIndex()
	prefix := formatName(next, next)

	tmp, err := os.CreateTemp(st.reftableDir, prefix+"*")
	if err != nil {
		return errors.Wrap(err, "reftable: create temp table")
	}
	tmpRemoved := false
	defer func() {
		if !tmpRemoved {
			os.Remove(tmp.Name())
		}
	}()

	wr, err := table.NewWriter(tmp, &st.cfg)
	if err != nil {
		return err
	}

	if err := write(wr); err != nil {
		return err
	}
	if err := wr.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "reftable: close temp table")
	}

	if wr.MinUpdateIndex() < next {
		return ErrAPIMisuse
	}

	dest := formatName(wr.MinUpdateIndex(), wr.MaxUpdateIndex()) + ".ref"
	names = append(names, dest)
	destPath := st.tablePath(dest)

	if err := os.Rename(tmp.Name(), destPath); err != nil {
		return errors.Wrapf(err, "reftable: publish table %s", dest)
	}
	tmpRemoved = true

	if err := lock.Write(formatNameList(names)); err != nil {
		os.Remove(destPath)
		return err
	}
	if err := lock.Close(); err != nil {
		os.Remove(destPath)
		return errors.Wrap(err, "reftable: close lock file")
	}
	if err := lock.Promote(st.listFile); err != nil {
		os.Remove(destPath)
		return err
	}

	return st.reload()
}
