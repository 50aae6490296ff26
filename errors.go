package reftable

import "github.com/cockroachdb/errors"

// ErrLockFailure is returned when a mutation cannot proceed because
// another mutator holds the list-file lock, or because the in-memory
// view of the stack is stale relative to the list file. Per spec.md
// §7, this is the transient band: callers reload and retry.
var ErrLockFailure = errors.New("reftable: lock failure")

// ErrAPIMisuse is returned when a write callback violates the
// Appender contract (spec.md §4.4 step 5): the finalized writer's
// MinUpdateIndex must be >= the stack's next update index.
var ErrAPIMisuse = errors.New("reftable: api misuse, writer limits below next update index")
