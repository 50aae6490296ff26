package table

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
)

// encoderPool amortizes zstd encoder/decoder setup cost across the
// many small tables a stack writes over its lifetime, the same
// motivation pebble's sstable writer has for pooling block compressors.
var (
	encoderPool = sync.Pool{New: func() any {
		enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		return enc
	}}
	decoderPool = sync.Pool{New: func() any {
		dec, _ := zstd.NewReader(nil)
		return dec
	}}
)

// packBlock serializes raw record bytes into an on-disk block: an
// optionally-compressed payload followed by an 8-byte xxhash64
// checksum of the uncompressed bytes.
func packBlock(raw []byte, compress bool) []byte {
	payload := raw
	if compress {
		enc := encoderPool.Get().(*zstd.Encoder)
		payload = enc.EncodeAll(raw, nil)
		encoderPool.Put(enc)
	}
	sum := xxhash.Sum64(raw)
	out := make([]byte, 0, len(payload)+8)
	out = append(out, payload...)
	out = appendU64(out, sum)
	return out
}

// unpackBlock reverses packBlock, verifying the checksum.
func unpackBlock(data []byte, compressed bool) ([]byte, error) {
	if len(data) < 8 {
		return nil, errors.New("table: block too short")
	}
	payload := data[:len(data)-8]
	wantSum, _ := readU64(data, len(data)-8)

	raw := payload
	if compressed {
		dec := decoderPool.Get().(*zstd.Decoder)
		out, err := dec.DecodeAll(payload, nil)
		decoderPool.Put(dec)
		if err != nil {
			return nil, errors.Wrap(err, "table: decompress block")
		}
		raw = out
	}
	if xxhash.Sum64(raw) != wantSum {
		return nil, errors.New("table: block checksum mismatch, corrupt table")
	}
	return raw, nil
}
