package table

import "container/heap"

// Merged composes an ordered sequence of Readers (oldest first) into
// a single queryable view with last-writer-wins semantics on ref
// names, the same composition spec.md §1 says to treat MergedTable's
// internals as out of scope for while specifying how it is built from
// readers.
type Merged struct {
	readers []*Reader
}

// NewMerged returns a MergedTable over readers, ordered oldest first.
func NewMerged(readers []*Reader) (*Merged, error) {
	return &Merged{readers: readers}, nil
}

// MergedRefIterator yields the masked (last-writer-wins) ref view.
type MergedRefIterator struct {
	h refHeap
}

type refHeapEntry struct {
	it     *RefIterator
	src    int // index into readers, higher = newer
	cur    RefRecord
	curSet bool
}

type refHeap []*refHeapEntry

func (h refHeap) Len() int { return len(h) }
func (h refHeap) Less(i, j int) bool {
	if h[i].cur.RefName != h[j].cur.RefName {
		return h[i].cur.RefName < h[j].cur.RefName
	}
	// Same name: prefer the newer source to sort first, so the
	// merge can discard the older duplicates beneath it.
	return h[i].src > h[j].src
}
func (h refHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *refHeap) Push(x any)        { *h = append(*h, x.(*refHeapEntry)) }
func (h *refHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *refHeap) fill(e *refHeapEntry) error {
	var rec RefRecord
	ok, err := e.it.NextRef(&rec)
	if err != nil {
		return err
	}
	if !ok {
		e.curSet = false
		return nil
	}
	e.cur = rec
	e.curSet = true
	return nil
}

// SeekRef returns a MergedRefIterator positioned at the first name >= name.
func (m *Merged) SeekRef(name string) (*MergedRefIterator, error) {
	mi := &MergedRefIterator{}
	for i, r := range m.readers {
		it, err := r.SeekRef(name)
		if err != nil {
			return nil, err
		}
		e := &refHeapEntry{it: it, src: i}
		if err := mi.h.fill(e); err != nil {
			return nil, err
		}
		if e.curSet {
			mi.h = append(mi.h, e)
		}
	}
	heap.Init(&mi.h)
	return mi, nil
}

// NextRef advances the iterator, returning the masked next ref
// record: the newest table's value for each distinct name.
func (mi *MergedRefIterator) NextRef(out *RefRecord) (bool, error) {
	for mi.h.Len() > 0 {
		top := mi.h[0]
		name := top.cur.RefName
		*out = top.cur

		// Drain every entry sharing this name so older duplicates
		// never surface; only the first popped (newest source,
		// per refHeap.Less) is returned.
		for mi.h.Len() > 0 && mi.h[0].cur.RefName == name {
			e := heap.Pop(&mi.h).(*refHeapEntry)
			if err := mi.h.fill(e); err != nil {
				return false, err
			}
			if e.curSet {
				heap.Push(&mi.h, e)
			}
		}
		return true, nil
	}
	return false, nil
}

// MergedLogIterator yields every log record from every reader, merged
// by ascending name, without masking: reflog history is cumulative,
// not overwritten.
type MergedLogIterator struct {
	h logHeap
}

type logHeapEntry struct {
	it     *LogIterator
	src    int
	cur    LogRecord
	curSet bool
}

type logHeap []*logHeapEntry

func (h logHeap) Len() int { return len(h) }
func (h logHeap) Less(i, j int) bool {
	if h[i].cur.RefName != h[j].cur.RefName {
		return h[i].cur.RefName < h[j].cur.RefName
	}
	if h[i].cur.UpdateIndex != h[j].cur.UpdateIndex {
		return h[i].cur.UpdateIndex > h[j].cur.UpdateIndex
	}
	return h[i].src > h[j].src
}
func (h logHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *logHeap) Push(x any)   { *h = append(*h, x.(*logHeapEntry)) }
func (h *logHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

func (h *logHeap) fill(e *logHeapEntry) error {
	var rec LogRecord
	ok, err := e.it.NextLog(&rec)
	if err != nil {
		return err
	}
	if !ok {
		e.curSet = false
		return nil
	}
	e.cur = rec
	e.curSet = true
	return nil
}

// SeekLog returns a MergedLogIterator over every table for names
// >= name with UpdateIndex <= maxUpdateIndex.
func (m *Merged) SeekLog(name string, maxUpdateIndex uint64) (*MergedLogIterator, error) {
	mi := &MergedLogIterator{}
	for i, r := range m.readers {
		it, err := r.SeekLog(name, maxUpdateIndex)
		if err != nil {
			return nil, err
		}
		e := &logHeapEntry{it: it, src: i}
		if err := mi.h.fill(e); err != nil {
			return nil, err
		}
		if e.curSet {
			mi.h = append(mi.h, e)
		}
	}
	heap.Init(&mi.h)
	return mi, nil
}

// NextLog advances the iterator.
func (mi *MergedLogIterator) NextLog(out *LogRecord) (bool, error) {
	if mi.h.Len() == 0 {
		return false, nil
	}
	e := heap.Pop(&mi.h).(*logHeapEntry)
	*out = e.cur
	if err := mi.h.fill(e); err != nil {
		return false, err
	}
	if e.curSet {
		heap.Push(&mi.h, e)
	}
	return true, nil
}
