package reftable

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// CollectOrphans removes temp tables and stale lock files left behind
// by a crashed mutator, per spec.md §3 invariant 4: "any orphan
// *XXXXXX temporary or stale .lock files are safe to remove after a
// deadline." It never touches a file named in the current list file,
// and only removes files whose modification time is older than
// olderThan, so it is safe to run concurrently with an active
// mutator (a lock or temp file younger than olderThan is left alone).
//
// Grounded on the same reconcile-against-manifest sweep
// dolthub-dolt's table_set.go performs when pruning tables that
// fell out of the current manifest.
func (st *Stack) CollectOrphans(olderThan time.Duration) (removed []string, err error) {
	live, err := readNameList(st.listFile)
	if err != nil {
		return nil, err
	}
	liveSet := make(map[string]bool, len(live))
	for _, n := range live {
		liveSet[n] = true
	}

	entries, err := os.ReadDir(st.reftableDir)
	if err != nil {
		return nil, errors.Wrapf(err, "reftable: list %s", st.reftableDir)
	}

	deadline := time.Now().Add(-olderThan)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if liveSet[name] {
			continue
		}
		if !isOrphanCandidate(name) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(deadline) {
			continue
		}
		path := filepath.Join(st.reftableDir, name)
		if err := os.Remove(path); err == nil {
			removed = append(removed, name)
		}
	}
	return removed, nil
}

// isOrphanCandidate reports whether name looks like an unrenamed temp
// table (CreateTemp's random suffix is appended directly after the
// "NNN-MMM" or "NNN-MMM_" prefix, per spec.md §6's extensionless
// <NNN>-<MMM>XXXXXX temp-file grammar — only a successful rename ever
// produces a ".ref" name) or a stale lock file. Published tables and
// the list file itself never match.
func isOrphanCandidate(name string) bool {
	if strings.HasSuffix(name, ".lock") {
		return true
	}
	if strings.HasSuffix(name, ".ref") {
		return false
	}
	return strings.Contains(name, "-")
}
