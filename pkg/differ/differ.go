// Package differ compares two consecutive snapshots of a table.
package differ

import "github.com/MathewBravo/realtime-db/pkg/rowset"

// Diff reports whether current differs from previous as an ordered sequence
// of rows, and which rows of current look new.
//
// A row of current is new only when no equal row exists anywhere in previous.
// Multiplicity is ignored: if previous holds one copy of R and current holds
// two, neither copy of R is new. Removed rows are not computed; listeners that
// want the prior state receive the whole previous snapshot.
func Diff(previous, current rowset.Snapshot) (bool, rowset.Snapshot) {
	if rowset.EqualSnapshots(previous, current) {
		return false, rowset.Snapshot{}
	}
	return true, NewValues(previous, current)
}

// NewValues returns the rows of current with no equal counterpart in
// previous, in the order they appear in current.
func NewValues(previous, current rowset.Snapshot) rowset.Snapshot {
	seen := make(map[uint64][]rowset.Row, len(previous))
	for _, r := range previous {
		fp := rowset.Fingerprint(r)
		seen[fp] = append(seen[fp], r)
	}

	out := rowset.Snapshot{}
	for _, r := range current {
		if !contains(seen[rowset.Fingerprint(r)], r) {
			out = append(out, r)
		}
	}
	return out
}

func contains(bucket []rowset.Row, r rowset.Row) bool {
	for _, candidate := range bucket {
		if rowset.Equal(candidate, r) {
			return true
		}
	}
	return false
}
