package table

import (
	"io"

	"github.com/cockroachdb/errors"
)

// Writer accumulates ref and log records for a single table and
// serializes them on Close. Per the contract spec.md §6 cites,
// records must be added in ascending key order; Writer enforces this
// rather than silently re-sorting, matching pebble's sstable.Writer
// which likewise rejects out-of-order keys.
type Writer struct {
	w   io.Writer
	cfg Config

	refs []RefRecord
	logs []LogRecord

	limitsSet bool
	min, max  uint64

	lastRefName string
	lastLogKey  string

	closed bool
}

// NewWriter returns a Writer that serializes a table to w on Close.
func NewWriter(w io.Writer, cfg *Config) (*Writer, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	return &Writer{w: w, cfg: cfg.Default()}, nil
}

// SetLimits pins the table's reported update-index bounds explicitly,
// used by compaction so the replacement table spans the same range as
// the tables it replaces even if some indices carry no record after
// tombstone collapse.
func (wr *Writer) SetLimits(min, max uint64) {
	wr.limitsSet = true
	wr.min, wr.max = min, max
}

func (wr *Writer) observe(idx uint64) {
	if wr.limitsSet {
		return
	}
	if len(wr.refs) == 0 && len(wr.logs) == 0 {
		wr.min = idx
	}
	if idx < wr.min {
		wr.min = idx
	}
	if idx > wr.max {
		wr.max = idx
	}
}

// AddRef appends a ref record. Records must arrive in non-descending
// RefName order; violating that returns an API error. Note this only
// enforces ordering, not uniqueness — two records for the same name in
// one table are both kept, since masking by name is a Reader/Merged
// concern (spec.md's out-of-scope MergedTable composition), not the
// Writer's. Every call site in this package only ever hands Writer an
// already-deduplicated sequence, so this has never mattered in
// practice.
func (wr *Writer) AddRef(rec *RefRecord) error {
	if wr.closed {
		return errors.New("table: write to closed writer")
	}
	if wr.lastRefName != "" && rec.RefName < wr.lastRefName {
		return errors.Newf("table: ref %q out of order after %q", rec.RefName, wr.lastRefName)
	}
	wr.lastRefName = rec.RefName
	wr.observe(rec.UpdateIndex)
	wr.refs = append(wr.refs, *rec)
	return nil
}

// AddLog appends a log record, subject to the same ordering contract
// as AddRef.
func (wr *Writer) AddLog(rec *LogRecord) error {
	if wr.closed {
		return errors.New("table: write to closed writer")
	}
	if wr.lastLogKey != "" && rec.RefName < wr.lastLogKey {
		return errors.Newf("table: log %q out of order after %q", rec.RefName, wr.lastLogKey)
	}
	wr.lastLogKey = rec.RefName
	wr.observe(rec.UpdateIndex)
	wr.logs = append(wr.logs, *rec)
	return nil
}

// MinUpdateIndex returns the table's lower update-index bound.
func (wr *Writer) MinUpdateIndex() uint64 { return wr.min }

// MaxUpdateIndex returns the table's upper update-index bound.
func (wr *Writer) MaxUpdateIndex() uint64 { return wr.max }

// Close flushes the ref block, log block, and footer to the
// underlying writer. It does not close the underlying io.Writer.
func (wr *Writer) Close() error {
	if wr.closed {
		return nil
	}
	wr.closed = true

	var refRaw []byte
	for i := range wr.refs {
		refRaw = encodeRef(refRaw, &wr.refs[i])
	}
	var logRaw []byte
	for i := range wr.logs {
		logRaw = encodeLog(logRaw, &wr.logs[i])
	}

	refBlock := packBlock(refRaw, wr.cfg.Compression)
	logBlock := packBlock(logRaw, wr.cfg.Compression)

	var written int64
	if _, err := wr.w.Write(refBlock); err != nil {
		return errors.Wrap(err, "table: write ref block")
	}
	refOff := written
	written += int64(len(refBlock))

	if _, err := wr.w.Write(logBlock); err != nil {
		return errors.Wrap(err, "table: write log block")
	}
	logOff := written
	written += int64(len(logBlock))

	var flags byte
	if wr.cfg.Compression {
		flags |= flagCompressed
	}
	f := footer{
		flags:          flags,
		minUpdateIndex: wr.min,
		maxUpdateIndex: wr.max,
		refCount:       uint32(len(wr.refs)),
		logCount:       uint32(len(wr.logs)),
		refOff:         uint64(refOff),
		refLen:         uint64(len(refBlock)),
		logOff:         uint64(logOff),
		logLen:         uint64(len(logBlock)),
	}
	if _, err := wr.w.Write(f.marshal()); err != nil {
		return errors.Wrap(err, "table: write footer")
	}
	return nil
}
