package table

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

type memBlockSource struct{ buf []byte }

func (m *memBlockSource) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	return n, nil
}
func (m *memBlockSource) Size() (int64, error) { return int64(len(m.buf)), nil }
func (m *memBlockSource) Close() error         { return nil }

func writeTable(t *testing.T, cfg Config, refs []RefRecord, logs []LogRecord, min, max uint64, explicitLimits bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	wr, err := NewWriter(&buf, &cfg)
	require.NoError(t, err)
	if explicitLimits {
		wr.SetLimits(min, max)
	}
	for i := range refs {
		require.NoError(t, wr.AddRef(&refs[i]))
	}
	for i := range logs {
		require.NoError(t, wr.AddLog(&logs[i]))
	}
	require.NoError(t, wr.Close())
	return buf.Bytes()
}

func TestWriterReaderRoundTrip(t *testing.T) {
	for _, compress := range []bool{false, true} {
		refs := []RefRecord{
			{RefName: "refs/heads/a", UpdateIndex: 1, Value: []byte("11111111111111111111")},
			{RefName: "refs/heads/b", UpdateIndex: 2, Value: []byte("22222222222222222222")},
			{RefName: "refs/heads/c", UpdateIndex: 2, Value: nil},
		}
		logs := []LogRecord{
			{RefName: "refs/heads/a", UpdateIndex: 1, New: []byte("11111111111111111111"), Message: "create"},
		}

		data := writeTable(t, Config{Compression: compress}, refs, logs, 0, 0, false)

		rd, err := NewReader(&memBlockSource{buf: data}, "0001-0002.ref")
		require.NoError(t, err)
		require.Equal(t, "0001-0002.ref", rd.Name())
		require.Equal(t, uint64(1), rd.MinUpdateIndex())
		require.Equal(t, uint64(2), rd.MaxUpdateIndex())

		it, err := rd.SeekRef("")
		require.NoError(t, err)
		var got []RefRecord
		for {
			var rec RefRecord
			ok, err := it.NextRef(&rec)
			require.NoError(t, err)
			if !ok {
				break
			}
			got = append(got, rec)
		}
		require.Len(t, got, 3)
		require.Equal(t, "refs/heads/c", got[2].RefName)
		require.True(t, got[2].IsDeletion())

		logIt, err := rd.SeekLog("", 100)
		require.NoError(t, err)
		var gotLogs []LogRecord
		for {
			var rec LogRecord
			ok, err := logIt.NextLog(&rec)
			require.NoError(t, err)
			if !ok {
				break
			}
			gotLogs = append(gotLogs, rec)
		}
		require.Len(t, gotLogs, 1)
		require.NoError(t, rd.Close())
	}
}

func TestWriterRejectsOutOfOrderRefs(t *testing.T) {
	var buf bytes.Buffer
	wr, err := NewWriter(&buf, &Config{})
	require.NoError(t, err)
	require.NoError(t, wr.AddRef(&RefRecord{RefName: "refs/heads/b", UpdateIndex: 1, Value: []byte("x")}))
	err = wr.AddRef(&RefRecord{RefName: "refs/heads/a", UpdateIndex: 1, Value: []byte("y")})
	require.Error(t, err)
}

func TestExplicitLimitsSurviveEmptyWriter(t *testing.T) {
	data := writeTable(t, Config{}, nil, nil, 5, 9, true)
	rd, err := NewReader(&memBlockSource{buf: data}, "t")
	require.NoError(t, err)
	require.Equal(t, uint64(5), rd.MinUpdateIndex())
	require.Equal(t, uint64(9), rd.MaxUpdateIndex())
}

func TestCorruptFooterDetected(t *testing.T) {
	data := writeTable(t, Config{}, []RefRecord{{RefName: "a", UpdateIndex: 1, Value: []byte("x")}}, nil, 0, 0, false)
	data[len(data)-1] ^= 0xFF
	_, err := NewReader(&memBlockSource{buf: data}, "t")
	require.Error(t, err)
}
