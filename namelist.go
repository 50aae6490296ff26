package reftable

import (
	"bytes"
	"os"

	"github.com/cockroachdb/errors"
)

// parseNameList splits the newline-delimited list file grammar
// (spec.md §6: `( name '\n' )*`) into an ordered sequence of table
// names. Empty trailing entries are discarded; a missing file parses
// to the empty sequence, never an error.
func parseNameList(contents []byte) []string {
	lines := bytes.Split(contents, []byte("\n"))
	var res []string
	for _, l := range lines {
		if len(l) > 0 {
			res = append(res, string(l))
		}
	}
	return res
}

// formatNameList is the inverse of parseNameList: each name followed
// by a newline.
func formatNameList(names []string) []byte {
	buf := bytes.NewBuffer([]byte{})
	for _, n := range names {
		buf.WriteString(n)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

// readNameList reads and parses path, treating a missing file as an
// empty stack rather than an error.
func readNameList(path string) ([]string, error) {
	c, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reftable: read list file %s", path)
	}
	return parseNameList(c), nil
}
