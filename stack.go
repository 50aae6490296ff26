// Package reftable implements the mutation protocol on a stack of
// immutable, sorted reference tables: atomic appends, torn-free
// reloads, and range compaction under a single lock-file-protected
// list file. The binary table format itself (block compression,
// restart-point indexing) lives in internal/table and is treated as
// an external collaborator, per spec.
package reftable

import (
	"fmt"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/kvstack/reftable/internal/table"
)

// Stack is an auto-compacting stack of reftables rooted at a
// directory. A single handle is meant to be used by one caller at a
// time; coordination across processes or handles happens purely
// through the lock-file protocol on disk (spec.md §5).
type Stack struct {
	listFile    string
	reftableDir string
	cfg         Config
	log         Logger
	id          string

	stack  []*table.Reader
	merged *table.Merged

	Stats CompactionStats
	obs   *metricsObserver

	// testingAfterListLockReleased is an optional test-only hook
	// invoked once compactRange has released the list lock in favor
	// of its per-table locks (spec.md §4.5 step 4) — the window
	// during which a concurrent Add is expected to be able to
	// proceed. nil in production use.
	testingAfterListLockReleased func()
}

// NewStack opens (or initializes) a stack rooted at dir, whose
// membership pointer is listFile. listFile is typically named "refs"
// and need not exist yet — a missing list file is an empty stack.
func NewStack(dir, listFile string, cfg Config) (*Stack, error) {
	st := &Stack{
		listFile:    listFile,
		reftableDir: dir,
		cfg:         cfg.Default(),
		log:         defaultLogger,
		id:          uuid.NewString()[:8],
	}

	if err := st.reload(); err != nil {
		return nil, err
	}
	return st, nil
}

// SetLogger overrides the Logger diagnostics are written to.
func (st *Stack) SetLogger(l Logger) {
	if l != nil {
		st.log = l
	}
}

// Merged returns the current merged view of the stack. It is a
// borrowed reference, valid only until the next mutating or reload
// call on st.
func (st *Stack) Merged() *table.Merged {
	return st.merged
}

// NextUpdateIndex returns the update index at which the next table
// must start, per spec.md §3 invariant 2.
func (st *Stack) NextUpdateIndex() uint64 {
	if n := len(st.stack); n > 0 {
		return st.stack[n-1].MaxUpdateIndex() + 1
	}
	return 1
}

// Close releases every open reader's file descriptor. The Stack
// itself must not be used afterward.
func (st *Stack) Close() {
	for _, r := range st.stack {
		r.Close()
	}
	st.stack = nil
	st.merged = nil
}

func (st *Stack) lockPath() string {
	return st.listFile + ".lock"
}

func (st *Stack) tablePath(name string) string {
	return filepath.Join(st.reftableDir, name)
}

// formatName renders a table's [min,max] update-index bounds as the
// 12-hex-digit filename grammar from spec.md §6, sans extension.
func formatName(min, max uint64) string {
	return fmt.Sprintf("%012x-%012x", min, max)
}
