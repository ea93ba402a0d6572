package jit

// StackEntry is one slot of the virtual stack, a singly-linked list,
// top-first (spec §3). pushed means the machine stack pointer has
// actually been moved to make room for it; until then the push is
// deferred per the protocol in spec §4.3.
type StackEntry struct {
	value     *Value
	size      int
	index     int // index from bottom of frame, in words
	next      *StackEntry
	pushEvent *PushEvent
	pushSite  Site
	pushed    bool
}

func (e *StackEntry) Value() *Value { return e.value }
func (e *StackEntry) Size() int     { return e.size }
func (e *StackEntry) Index() int    { return e.index }
func (e *StackEntry) Next() *StackEntry { return e.next }

// stackDepthWords returns the number of words from entry to the bottom of the
// linked segment, inclusive of entry.
func stackDepthWords(entry *StackEntry) int {
	n := 0
	for e := entry; e != nil; e = e.next {
		n += e.size
	}
	return n
}

// contiguousUnpushedPrefix walks from top downward collecting entries that
// are not yet pushed, stopping at the first already-pushed entry — the
// prefix pushNow materializes together (spec §4.3: "Entries are pushed in
// order from the deeper to the shallower end of the segment").
func contiguousUnpushedPrefix(top *StackEntry) []*StackEntry {
	var prefix []*StackEntry
	for e := top; e != nil && !e.pushed; e = e.next {
		prefix = append(prefix, e)
	}
	// reverse so index 0 is deepest
	for i, j := 0, len(prefix)-1; i < j; i, j = i+1, j-1 {
		prefix[i], prefix[j] = prefix[j], prefix[i]
	}
	return prefix
}
