package reftable

// tableOverhead is the fixed per-table amount (spec.md §4.6) the
// policy deducts before bucketing, so small tables still bucket
// together instead of each looking like its own size class. A table
// with no records in internal/table's format is 86 bytes (two 8-byte
// block checksums plus the 70-byte footer), so the deduction is a few
// bytes more than that fixed cost; sizes at or below it count as 1.
const tableOverhead = 91

// tableSizesForCompaction returns each table's size, net of
// tableOverhead, oldest first — the input the compaction policy
// partitions into segments.
func (st *Stack) tableSizesForCompaction() []uint64 {
	sizes := make([]uint64, 0, len(st.stack))
	for _, t := range st.stack {
		sz := uint64(t.Size())
		if sz > tableOverhead {
			sz -= tableOverhead
		} else {
			sz = 1
		}
		sizes = append(sizes, sz)
	}
	return sizes
}

// segment is a compaction candidate: a contiguous range of tables
// sharing a log2 size bucket.
type segment struct {
	start int
	end   int // exclusive
	log   int
	bytes uint64
}

func (s segment) size() int { return s.end - s.start }

// log2 returns floor(log2(x)) for x >= 1 (so log2(1) == 0) and panics
// on 0. The policy only compares buckets for equality and order.
func log2(sz uint64) int {
	if sz == 0 {
		panic("reftable: log2(0)")
	}
	l := 0
	for sz > 0 {
		l++
		sz /= 2
	}
	return l - 1
}

// sizesToSegments partitions sizes into maximal runs sharing the same
// log2 bucket.
func sizesToSegments(sizes []uint64) []segment {
	var res []segment
	var cur segment
	for i, sz := range sizes {
		l := log2(sz)
		if cur.log != l && cur.bytes > 0 {
			res = append(res, cur)
			cur = segment{start: i}
		}
		cur.log = l
		cur.end = i + 1
		cur.bytes += sz
	}
	res = append(res, cur)
	return res
}

// suggestCompactionSegment chooses a compaction range that keeps the
// stack geometrically balanced, per spec.md §4.6: among segments of
// size >= 2, pick the smallest log bucket (ties to first occurrence),
// then extend it leftward while doing so keeps it dominant over its
// new neighbor. Returns nil if no segment of size >= 2 exists.
func suggestCompactionSegment(sizes []uint64) *segment {
	if len(sizes) == 0 {
		return nil
	}
	segs := sizesToSegments(sizes)

	best := segment{log: 64}
	found := false
	for _, s := range segs {
		if s.size() < 2 {
			continue
		}
		if !found || s.log < best.log {
			best = s
			found = true
		}
	}
	if !found {
		return nil
	}

	for best.start > 0 {
		prev := best.start - 1
		if log2(best.bytes) < log2(sizes[prev]) {
			break
		}
		best.start = prev
		best.bytes += sizes[prev]
	}

	return &best
}
