package table

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
)

// magic identifies a reftable block file. Real reftable uses "REFT";
// kept here for the same reason pebble's sstable keeps a magic number
// at a fixed footer offset: a cheap sanity check on Open.
var magic = [4]byte{'R', 'E', 'F', 'T'}

const (
	flagCompressed byte = 1 << 0

	// footerSize is fixed: magic(4) + version(1) + flags(1) +
	// min(8) + max(8) + refCount(4) + logCount(4) + refOff(8) +
	// refLen(8) + logOff(8) + logLen(8) + checksum(8).
	footerSize = 4 + 1 + 1 + 8 + 8 + 4 + 4 + 8 + 8 + 8 + 8 + 8

	formatVersion byte = 1
)

type footer struct {
	flags          byte
	minUpdateIndex uint64
	maxUpdateIndex uint64
	refCount       uint32
	logCount       uint32
	refOff, refLen uint64
	logOff, logLen uint64
}

func (f *footer) marshal() []byte {
	buf := make([]byte, 0, footerSize)
	buf = append(buf, magic[:]...)
	buf = append(buf, formatVersion, f.flags)
	buf = appendU64(buf, f.minUpdateIndex)
	buf = appendU64(buf, f.maxUpdateIndex)
	buf = appendU32(buf, f.refCount)
	buf = appendU32(buf, f.logCount)
	buf = appendU64(buf, f.refOff)
	buf = appendU64(buf, f.refLen)
	buf = appendU64(buf, f.logOff)
	buf = appendU64(buf, f.logLen)
	sum := xxhash.Sum64(buf)
	buf = appendU64(buf, sum)
	return buf
}

func unmarshalFooter(b []byte) (footer, error) {
	var f footer
	if len(b) != footerSize {
		return f, errors.Newf("table: bad footer size %d", len(b))
	}
	if string(b[:4]) != string(magic[:]) {
		return f, errors.New("table: bad magic, not a reftable block file")
	}
	version := b[4]
	if version != formatVersion {
		return f, errors.Newf("table: unsupported format version %d", version)
	}
	body := b[:footerSize-8]
	wantSum := xxhash.Sum64(body)
	gotSum := binary.BigEndian.Uint64(b[footerSize-8:])
	if wantSum != gotSum {
		return f, errors.New("table: footer checksum mismatch, corrupt table")
	}

	f.flags = b[5]
	off := 6
	f.minUpdateIndex, off = readU64(b, off)
	f.maxUpdateIndex, off = readU64(b, off)
	f.refCount, off = readU32(b, off)
	f.logCount, off = readU32(b, off)
	f.refOff, off = readU64(b, off)
	f.refLen, off = readU64(b, off)
	f.logOff, off = readU64(b, off)
	f.logLen, _ = readU64(b, off)
	return f, nil
}

func appendU64(buf []byte, v uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	return append(buf, tmp[:]...)
}

func appendU32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

func readU64(b []byte, off int) (uint64, int) {
	return binary.BigEndian.Uint64(b[off : off+8]), off + 8
}

func readU32(b []byte, off int) (uint32, int) {
	return binary.BigEndian.Uint32(b[off : off+4]), off + 4
}
