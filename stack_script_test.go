package reftable

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/datadriven"
	"github.com/kvstack/reftable/internal/table"
	"github.com/stretchr/testify/require"
)

// TestStackScripts drives the stack through scripted scenarios under
// testdata/, the same datadriven-fixture pattern pebble's own test
// suite uses for compaction and iterator behavior.
func TestStackScripts(t *testing.T) {
	datadriven.Walk(t, "testdata", func(t *testing.T, path string) {
		dir := t.TempDir()
		st, err := NewStack(dir, filepath.Join(dir, "refs"), Config{})
		require.NoError(t, err)
		defer st.Close()

		datadriven.RunTest(t, path, func(t *testing.T, d *datadriven.TestData) string {
			switch d.Cmd {
			case "add":
				name := d.CmdArgs[0].Vals[0]
				var index uint64
				fmt.Sscanf(d.CmdArgs[1].Vals[0], "%d", &index)
				value := []byte(d.CmdArgs[2].Vals[0])
				err := st.Add(func(w *table.Writer) error {
					return w.AddRef(&table.RefRecord{RefName: name, UpdateIndex: index, Value: value})
				})
				if err != nil {
					return "error: " + err.Error() + "\n"
				}
				return "ok\n"

			case "del":
				name := d.CmdArgs[0].Vals[0]
				var index uint64
				fmt.Sscanf(d.CmdArgs[1].Vals[0], "%d", &index)
				err := st.Add(func(w *table.Writer) error {
					return w.AddRef(&table.RefRecord{RefName: name, UpdateIndex: index, Value: nil})
				})
				if err != nil {
					return "error: " + err.Error() + "\n"
				}
				return "ok\n"

			case "seek":
				name := d.CmdArgs[0].Vals[0]
				it, err := st.Merged().SeekRef(name)
				if err != nil {
					return "error: " + err.Error() + "\n"
				}
				var rec table.RefRecord
				ok, err := it.NextRef(&rec)
				if err != nil {
					return "error: " + err.Error() + "\n"
				}
				if !ok || rec.RefName != name {
					return "not found\n"
				}
				if rec.IsDeletion() {
					return fmt.Sprintf("%s -> <tombstone>\n", rec.RefName)
				}
				return fmt.Sprintf("%s -> %s\n", rec.RefName, rec.Value)

			case "compact_all":
				if err := st.CompactAll(); err != nil {
					return "error: " + err.Error() + "\n"
				}
				return "ok\n"

			case "next_update_index":
				return fmt.Sprintf("%d\n", st.NextUpdateIndex())

			default:
				t.Fatalf("unknown command %q", d.Cmd)
				return ""
			}
		})
	})
}
