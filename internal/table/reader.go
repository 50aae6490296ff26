package table

import (
	"path/filepath"
	"sort"

	"github.com/cockroachdb/errors"
)

// Reader is an opened, parsed table. Per spec.md §3 it carries a name,
// size, and update-index bounds; restart-point indexing is out of
// scope, so a Reader simply decodes both blocks into memory once at
// Open and serves Seek/Next via binary search and a slice index.
type Reader struct {
	name string
	size int64
	min  uint64
	max  uint64

	src BlockSource

	refs []RefRecord
	logs []LogRecord
}

// NewReader parses a table from src. name is the table's basename,
// used for reader identity during stack reloads (spec.md §4.3).
func NewReader(src BlockSource, name string) (*Reader, error) {
	size, err := src.Size()
	if err != nil {
		return nil, err
	}
	if size < footerSize {
		return nil, errors.Newf("table: %s too small to contain a footer", name)
	}

	footerBuf := make([]byte, footerSize)
	if _, err := src.ReadAt(footerBuf, size-footerSize); err != nil {
		return nil, errors.Wrapf(err, "table: read footer of %s", name)
	}
	f, err := unmarshalFooter(footerBuf)
	if err != nil {
		return nil, errors.Wrapf(err, "table: %s", name)
	}
	compressed := f.flags&flagCompressed != 0

	refRaw, err := readBlockAt(src, int64(f.refOff), int64(f.refLen), compressed)
	if err != nil {
		return nil, errors.Wrapf(err, "table: %s ref block", name)
	}
	logRaw, err := readBlockAt(src, int64(f.logOff), int64(f.logLen), compressed)
	if err != nil {
		return nil, errors.Wrapf(err, "table: %s log block", name)
	}

	refs := make([]RefRecord, 0, f.refCount)
	rr := &byteReader{buf: refRaw}
	for !rr.done() {
		rec, err := decodeRef(rr)
		if err != nil {
			return nil, errors.Wrapf(err, "table: %s decode ref", name)
		}
		refs = append(refs, rec)
	}

	logs := make([]LogRecord, 0, f.logCount)
	lr := &byteReader{buf: logRaw}
	for !lr.done() {
		rec, err := decodeLog(lr)
		if err != nil {
			return nil, errors.Wrapf(err, "table: %s decode log", name)
		}
		logs = append(logs, rec)
	}

	return &Reader{
		name: filepath.Base(name),
		size: size,
		min:  f.minUpdateIndex,
		max:  f.maxUpdateIndex,
		src:  src,
		refs: refs,
		logs: logs,
	}, nil
}

func readBlockAt(src BlockSource, off, length int64, compressed bool) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	if _, err := src.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return unpackBlock(buf, compressed)
}

// Name returns the table's basename.
func (r *Reader) Name() string { return r.name }

// Size returns the table's on-disk size in bytes.
func (r *Reader) Size() int64 { return r.size }

// MinUpdateIndex returns the table's lower update-index bound.
func (r *Reader) MinUpdateIndex() uint64 { return r.min }

// MaxUpdateIndex returns the table's upper update-index bound.
func (r *Reader) MaxUpdateIndex() uint64 { return r.max }

// Close releases the underlying block source.
func (r *Reader) Close() error {
	if r.src == nil {
		return nil
	}
	err := r.src.Close()
	r.src = nil
	return err
}

// RefIterator yields ref records in ascending name order starting
// from a Seek point.
type RefIterator struct {
	recs []RefRecord
	pos  int
}

// NextRef advances the iterator, returning false when exhausted.
func (it *RefIterator) NextRef(rec *RefRecord) (bool, error) {
	if it.pos >= len(it.recs) {
		return false, nil
	}
	*rec = it.recs[it.pos]
	it.pos++
	return true, nil
}

// SeekRef returns an iterator positioned at the first ref record whose
// name is >= name.
func (r *Reader) SeekRef(name string) (*RefIterator, error) {
	i := sort.Search(len(r.refs), func(i int) bool { return r.refs[i].RefName >= name })
	return &RefIterator{recs: r.refs, pos: i}, nil
}

// LogIterator yields log records in the order the table stores them
// (ascending name, as Writer enforces; within one name, the order they
// were added in) starting from a Seek point, filtered to entries whose
// UpdateIndex is <= the ceiling passed to SeekLog.
type LogIterator struct {
	recs    []LogRecord
	pos     int
	ceiling uint64
}

// NextLog advances the iterator, returning false when exhausted.
func (it *LogIterator) NextLog(rec *LogRecord) (bool, error) {
	for it.pos < len(it.recs) {
		cand := it.recs[it.pos]
		it.pos++
		if cand.UpdateIndex > it.ceiling {
			continue
		}
		*rec = cand
		return true, nil
	}
	return false, nil
}

// SeekLog returns an iterator over log records for name >= the given
// name, with UpdateIndex <= maxUpdateIndex.
func (r *Reader) SeekLog(name string, maxUpdateIndex uint64) (*LogIterator, error) {
	i := sort.Search(len(r.logs), func(i int) bool { return r.logs[i].RefName >= name })
	return &LogIterator{recs: r.logs, pos: i, ceiling: maxUpdateIndex}, nil
}
