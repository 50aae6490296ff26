package reftable

import (
	"math"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/kvstack/reftable/internal/table"
)

// CompactAll compacts every table in the stack into one.
func (st *Stack) CompactAll() error {
	_, err := st.compactRangeStats(0, len(st.stack)-1)
	return err
}

// AutoCompact runs compaction over whatever range the compaction
// policy (policy.go) suggests, if any.
func (st *Stack) AutoCompact() error {
	sizes := st.tableSizesForCompaction()
	seg := suggestCompactionSegment(sizes)
	if seg == nil {
		return nil
	}
	_, err := st.compactRangeStats(seg.start, seg.end-1)
	return err
}

func (st *Stack) compactRangeStats(first, last int) (bool, error) {
	ok, err := st.compactRange(first, last)
	if !ok && err == nil {
		st.Stats.Failures++
		st.obs.incFailure()
	}
	return ok, err
}

// compactRange replaces tables [first,last] with one equivalent
// table, per the Compactor protocol in spec.md §4.5. It returns
// (true, nil) on success or a true no-op, (false, nil) on a transient
// failure a caller may retry, and (false, err) on a fatal failure.
func (st *Stack) compactRange(first, last int) (bool, error) {
	if first >= last {
		return true, nil
	}
	st.Stats.Attempts++
	st.obs.incAttempt()
	done := st.obs.startAttempt()
	defer done()

	id := shortID()

	listLock, err := acquireLock(st.lockPath())
	if errors.Is(err, ErrLockFailure) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	// listLock is released (unlocked, not promoted) once the subtable
	// locks are in place, below — see step 4 of spec.md §4.5. Keep
	// this defer anyway: every early-return path before that point
	// must still release it, and Abort is a no-op once already
	// released via Close+Remove.
	defer listLock.Abort()

	if ok, err := st.UpToDate(); err != nil {
		return false, err
	} else if !ok {
		return false, nil
	}

	subtableLocks := make([]*LockFile, 0, last-first+1)
	deleteOnSuccess := make([]string, 0, last-first+1)
	defer func() {
		for _, l := range subtableLocks {
			l.Abort()
		}
	}()

	for i := first; i <= last; i++ {
		subtab := st.tablePath(st.stack[i].Name())
		l, err := acquireLock(subtab + ".lock")
		if errors.Is(err, ErrLockFailure) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		subtableLocks = append(subtableLocks, l)
		deleteOnSuccess = append(deleteOnSuccess, subtab)
	}

	// Release the list lock now: the subtable locks reserve this
	// range against concurrent compaction, so appends to the top of
	// the stack may proceed while the (potentially slow) merge runs.
	if err := listLock.Abort(); err != nil {
		return false, err
	}
	if st.testingAfterListLockReleased != nil {
		st.testingAfterListLockReleased()
	}

	st.log.Infof("compact[%s]: merging %s..%s", id, st.stack[first].Name(), st.stack[last].Name())

	tmpName, err := st.compactLocked(first, last)
	if err != nil {
		return false, err
	}
	tmpRemoved := false
	defer func() {
		if !tmpRemoved {
			os.Remove(tmpName)
		}
	}()

	newListLock, err := acquireLock(st.lockPath())
	if errors.Is(err, ErrLockFailure) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer newListLock.Abort()

	// Tables appended while the list lock was released sit above
	// [first,last] in the on-disk list, not in st.stack; keep them.
	onDisk, err := readNameList(st.listFile)
	if err != nil {
		return false, err
	}

	fn := formatName(st.stack[first].MinUpdateIndex(), st.stack[last].MaxUpdateIndex()) + ".ref"
	destTable := st.tablePath(fn)

	if err := os.Rename(tmpName, destTable); err != nil {
		return false, errors.Wrapf(err, "reftable: publish compacted table %s", fn)
	}
	tmpRemoved = true

	var names []string
	for i := 0; i < first; i++ {
		names = append(names, st.stack[i].Name())
	}
	names = append(names, fn)
	for i := last + 1; i < len(onDisk); i++ {
		names = append(names, onDisk[i])
	}

	if err := newListLock.Write(formatNameList(names)); err != nil {
		os.Remove(destTable)
		return false, err
	}
	if err := newListLock.Promote(st.listFile); err != nil {
		os.Remove(destTable)
		return false, err
	}

	for _, nm := range deleteOnSuccess {
		os.Remove(nm)
	}

	st.log.Infof("compact[%s]: published %s, removed %d tables", id, fn, len(deleteOnSuccess))
	return true, st.reload()
}

// compactLocked writes the compacted replacement for tables
// [first,last] to a temp file under reftableDir and returns its path.
func (st *Stack) compactLocked(first, last int) (string, error) {
	fn := formatName(st.stack[first].MinUpdateIndex(), st.stack[last].MaxUpdateIndex())

	tmp, err := os.CreateTemp(st.reftableDir, fn+"_*")
	if err != nil {
		return "", errors.Wrap(err, "reftable: create compaction temp table")
	}
	removed := false
	defer func() {
		if !removed {
			os.Remove(tmp.Name())
		}
		tmp.Close()
	}()

	wr, err := table.NewWriter(tmp, &st.cfg)
	if err != nil {
		return "", err
	}
	if err := st.writeCompact(wr, first, last); err != nil {
		return "", err
	}
	if err := wr.Close(); err != nil {
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", errors.Wrap(err, "reftable: close compaction temp table")
	}

	removed = true
	return tmp.Name(), nil
}

// writeCompact drives the actual merge: every ref record survives
// except tombstones when compacting from the bottom of the stack
// (first == 0), plus every log record, unfiltered.
func (st *Stack) writeCompact(wr *table.Writer, first, last int) error {
	wr.SetLimits(st.stack[first].MinUpdateIndex(), st.stack[last].MaxUpdateIndex())

	subtabs := make([]*table.Reader, 0, last-first+1)
	for i := first; i <= last; i++ {
		subtabs = append(subtabs, st.stack[i])
	}

	merged, err := table.NewMerged(subtabs)
	if err != nil {
		return err
	}

	var bytesIn uint64
	for _, t := range subtabs {
		bytesIn += uint64(t.Size())
	}
	st.Stats.Bytes += bytesIn
	st.obs.addBytes(bytesIn)

	refIt, err := merged.SeekRef("")
	if err != nil {
		return err
	}
	for {
		var rec table.RefRecord
		ok, err := refIt.NextRef(&rec)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if first == 0 && rec.IsDeletion() {
			continue
		}
		if err := wr.AddRef(&rec); err != nil {
			return err
		}
	}

	logIt, err := merged.SeekLog("", math.MaxUint64)
	if err != nil {
		return err
	}
	for {
		var rec table.LogRecord
		ok, err := logIt.NextLog(&rec)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		if err := wr.AddLog(&rec); err != nil {
			return err
		}
	}
	return nil
}
