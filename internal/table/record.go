package table

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
)

// RefRecord is a single reference record: a logical name (e.g.
// "refs/heads/main") mapping to a target value as of UpdateIndex. A
// nil Value marks a tombstone: the name is deleted as of UpdateIndex,
// masking any same-named record in older tables during a merge.
type RefRecord struct {
	RefName     string
	UpdateIndex uint64
	Value       []byte // nil means tombstone
}

// IsDeletion reports whether this record is a tombstone. Compaction
// from the bottom of the stack (spec §4.5 step 5) drops these, since a
// tombstone only has meaning relative to older tables being removed.
func (r *RefRecord) IsDeletion() bool { return r.Value == nil }

// LogRecord is a single reflog entry for RefName as of UpdateIndex.
type LogRecord struct {
	RefName     string
	UpdateIndex uint64
	Old         []byte
	New         []byte
	Name        string
	Email       string
	Time        int64
	Message     string
}

func (r *LogRecord) IsDeletion() bool { return r.Old == nil && r.New == nil }

func putUvarint(buf []byte, x uint64) []byte {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], x)
	return append(buf, tmp[:n]...)
}

func putBytes(buf []byte, b []byte) []byte {
	buf = putUvarint(buf, uint64(len(b)))
	return append(buf, b...)
}

func putString(buf []byte, s string) []byte {
	return putBytes(buf, []byte(s))
}

type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) ReadByte() (byte, error) {
	if r.pos >= len(r.buf) {
		return 0, errors.New("table: truncated record stream")
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *byteReader) uvarint() (uint64, error) {
	x, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, errors.Wrap(err, "table: decode varint")
	}
	return x, nil
}

func (r *byteReader) bytes() ([]byte, error) {
	n, err := r.uvarint()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	if r.pos+int(n) > len(r.buf) {
		return nil, errors.New("table: truncated record payload")
	}
	b := r.buf[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

func (r *byteReader) string() (string, error) {
	b, err := r.bytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *byteReader) done() bool { return r.pos >= len(r.buf) }

// encodeRef appends the wire encoding of rec to buf.
func encodeRef(buf []byte, rec *RefRecord) []byte {
	buf = putString(buf, rec.RefName)
	buf = putUvarint(buf, rec.UpdateIndex)
	if rec.Value == nil {
		buf = append(buf, 0)
	} else {
		buf = append(buf, 1)
		buf = putBytes(buf, rec.Value)
	}
	return buf
}

func decodeRef(r *byteReader) (RefRecord, error) {
	var rec RefRecord
	name, err := r.string()
	if err != nil {
		return rec, err
	}
	idx, err := r.uvarint()
	if err != nil {
		return rec, err
	}
	tag, err := r.ReadByte()
	if err != nil {
		return rec, err
	}
	rec.RefName = name
	rec.UpdateIndex = idx
	if tag == 1 {
		val, err := r.bytes()
		if err != nil {
			return rec, err
		}
		if val == nil {
			val = []byte{}
		}
		rec.Value = val
	}
	return rec, nil
}

// encodeLog appends the wire encoding of rec to buf.
func encodeLog(buf []byte, rec *LogRecord) []byte {
	buf = putString(buf, rec.RefName)
	buf = putUvarint(buf, rec.UpdateIndex)
	buf = putBytes(buf, rec.Old)
	buf = putBytes(buf, rec.New)
	buf = putString(buf, rec.Name)
	buf = putString(buf, rec.Email)
	buf = putUvarint(buf, uint64(rec.Time))
	buf = putString(buf, rec.Message)
	return buf
}

func decodeLog(r *byteReader) (LogRecord, error) {
	var rec LogRecord
	var err error
	if rec.RefName, err = r.string(); err != nil {
		return rec, err
	}
	if rec.UpdateIndex, err = r.uvarint(); err != nil {
		return rec, err
	}
	if rec.Old, err = r.bytes(); err != nil {
		return rec, err
	}
	if rec.New, err = r.bytes(); err != nil {
		return rec, err
	}
	if rec.Name, err = r.string(); err != nil {
		return rec, err
	}
	if rec.Email, err = r.string(); err != nil {
		return rec, err
	}
	t, err := r.uvarint()
	if err != nil {
		return rec, err
	}
	rec.Time = int64(t)
	if rec.Message, err = r.string(); err != nil {
		return rec, err
	}
	return rec, nil
}
