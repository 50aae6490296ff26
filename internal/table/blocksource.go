package table

import (
	"os"

	"github.com/cockroachdb/errors"
)

// BlockSource is a byte-addressed handle to a table's backing bytes,
// the same seam pebble's sstable package draws between a Reader and
// its underlying vfs.File: the reader never calls os.Open itself.
type BlockSource interface {
	ReadAt(p []byte, off int64) (int, error)
	Size() (int64, error)
	Close() error
}

// FileBlockSource is a BlockSource backed by an *os.File.
type FileBlockSource struct {
	f *os.File
}

// NewFileBlockSource opens path for reading and wraps it as a BlockSource.
func NewFileBlockSource(path string) (*FileBlockSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "table: open %s", path)
	}
	return &FileBlockSource{f: f}, nil
}

func (b *FileBlockSource) ReadAt(p []byte, off int64) (int, error) {
	return b.f.ReadAt(p, off)
}

func (b *FileBlockSource) Size() (int64, error) {
	fi, err := b.f.Stat()
	if err != nil {
		return 0, errors.Wrap(err, "table: stat")
	}
	return fi.Size(), nil
}

func (b *FileBlockSource) Close() error {
	return b.f.Close()
}
