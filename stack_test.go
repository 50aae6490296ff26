package reftable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/kvstack/reftable/internal/table"
	"github.com/stretchr/testify/require"
)

func newTestStack(t *testing.T) (*Stack, string) {
	t.Helper()
	dir := t.TempDir()
	st, err := NewStack(dir, filepath.Join(dir, "refs"), Config{})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st, dir
}

func seekOneRef(t *testing.T, st *Stack, name string) (table.RefRecord, bool) {
	t.Helper()
	it, err := st.Merged().SeekRef(name)
	require.NoError(t, err)
	var rec table.RefRecord
	ok, err := it.NextRef(&rec)
	require.NoError(t, err)
	if !ok || rec.RefName != name {
		return table.RefRecord{}, false
	}
	return rec, true
}

// Scenario 1: empty stack, first write.
func TestScenario_EmptyToFirstWrite(t *testing.T) {
	st, dir := newTestStack(t)

	require.Equal(t, uint64(1), st.NextUpdateIndex())

	err := st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: 1, Value: []byte("AAAAAAAAAAAAAAAAAAAA")})
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(dir, "000000000001-000000000001.ref"))
	require.NoError(t, err)

	listData, err := os.ReadFile(filepath.Join(dir, "refs"))
	require.NoError(t, err)
	require.Equal(t, "000000000001-000000000001.ref\n", string(listData))

	rec, ok := seekOneRef(t, st, "refs/heads/m")
	require.True(t, ok)
	require.Equal(t, []byte("AAAAAAAAAAAAAAAAAAAA"), rec.Value)

	require.Equal(t, uint64(2), st.NextUpdateIndex())
}

// Scenario 2: two writes, then auto_compact merges them.
func TestScenario_AutoCompactAfterTwoWrites(t *testing.T) {
	st, dir := newTestStack(t)

	require.NoError(t, st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: 1, Value: []byte("1111111111111111111a")})
	}))
	require.NoError(t, st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: 2, Value: []byte("2222222222222222222b")})
	}))

	listData, err := os.ReadFile(filepath.Join(dir, "refs"))
	require.NoError(t, err)
	require.Equal(t, "000000000001-000000000002.ref\n", string(listData),
		"two similarly-sized tables should bucket together and auto-compact into one")

	rec, ok := seekOneRef(t, st, "refs/heads/m")
	require.True(t, ok)
	require.Equal(t, []byte("2222222222222222222b"), rec.Value)

	require.Equal(t, 1, st.Stats.Attempts)
	require.Equal(t, 0, st.Stats.Failures)
}

// Scenario 3: tombstone collapse on a full compaction.
func TestScenario_TombstoneCollapse(t *testing.T) {
	st, _ := newTestStack(t)

	require.NoError(t, st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/x", UpdateIndex: 1, Value: []byte("H1H1H1H1H1H1H1H1H1H1")})
	}))
	require.NoError(t, st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/x", UpdateIndex: 2, Value: []byte("H2H2H2H2H2H2H2H2H2H2")})
	}))
	require.NoError(t, st.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/x", UpdateIndex: 3, Value: nil})
	}))

	require.NoError(t, st.CompactAll())

	_, ok := seekOneRef(t, st, "refs/x")
	require.False(t, ok, "tombstone should not survive a full compaction")
}

// Scenario 4: staleness on Add with two handles over the same directory.
func TestScenario_StaleAddObservesLockFailure(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "refs")

	a, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer b.Close()

	require.NoError(t, a.Add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: 1, Value: []byte("aaaaaaaaaaaaaaaaaaaa")})
	}))

	entriesBefore, err := os.ReadDir(dir)
	require.NoError(t, err)

	err = b.add(func(w *table.Writer) error {
		return w.AddRef(&table.RefRecord{RefName: "refs/heads/n", UpdateIndex: 1, Value: []byte("bbbbbbbbbbbbbbbbbbbb")})
	})
	require.ErrorIs(t, err, ErrLockFailure)

	entriesAfter, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entriesAfter, len(entriesBefore), "no temp file or extra table should remain")
}

// Scenario 5: compaction releases the list lock while holding subtable
// locks, allowing a concurrent append to land on top before the
// compactor republishes the list.
func TestScenario_CompactionConcurrentWithAppend(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "refs")

	st, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer st.Close()

	// add, not Add: Add would auto-compact these equal-sized tables.
	for i := uint64(1); i <= 4; i++ {
		idx := i
		require.NoError(t, st.add(func(w *table.Writer) error {
			return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: idx, Value: []byte("vvvvvvvvvvvvvvvvvvvv")})
		}))
	}
	require.Len(t, st.stack, 4)

	other, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer other.Close()

	st.testingAfterListLockReleased = func() {
		require.NoError(t, other.Add(func(w *table.Writer) error {
			return w.AddRef(&table.RefRecord{RefName: "refs/heads/n", UpdateIndex: 5, Value: []byte("wwwwwwwwwwwwwwwwwwww")})
		}))
	}

	require.NoError(t, st.CompactAll())

	names, err := readNameList(listPath)
	require.NoError(t, err)
	require.Equal(t, []string{"000000000001-000000000004.ref", "000000000005-000000000005.ref"}, names)

	rec, ok := seekOneRef(t, st, "refs/heads/n")
	require.True(t, ok)
	require.Equal(t, []byte("wwwwwwwwwwwwwwwwwwww"), rec.Value)
}

// Scenario 6: reload recovers after another handle has compacted away
// and deleted the tables a reader had loaded, picking up the
// replacement named by the rewritten list file.
func TestScenario_ReloadOverDeletedTable(t *testing.T) {
	dir := t.TempDir()
	listPath := filepath.Join(dir, "refs")

	st, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer st.Close()

	// add, not Add: Add would auto-compact these equal-sized tables.
	for i := uint64(1); i <= 3; i++ {
		idx := i
		require.NoError(t, st.add(func(w *table.Writer) error {
			return w.AddRef(&table.RefRecord{RefName: "refs/heads/m", UpdateIndex: idx, Value: []byte("vvvvvvvvvvvvvvvvvvvv")})
		}))
	}
	require.Len(t, st.stack, 3)

	reader, err := NewStack(dir, listPath, Config{})
	require.NoError(t, err)
	defer reader.Close()
	require.Len(t, reader.stack, 3)

	// Through the other handle, compact all three tables into one,
	// deleting the files the reader still has loaded, and republish
	// the list under the new name.
	require.NoError(t, st.CompactAll())

	require.NoError(t, reader.reload())
	require.Len(t, reader.stack, 1)
	rec, ok := seekOneRef(t, reader, "refs/heads/m")
	require.True(t, ok)
	require.Equal(t, []byte("vvvvvvvvvvvvvvvvvvvv"), rec.Value)
}
