package reftable

import "github.com/kvstack/reftable/internal/table"

// Config is the writer/reader configuration threaded through NewStack
// and every table Writer it creates (spec.md §6 cites Writer/Reader
// configuration as an external contract). It is a thin alias over the
// table package's Config so callers of this package never need to
// import internal/table themselves.
type Config = table.Config
