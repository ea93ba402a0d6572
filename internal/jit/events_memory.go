package jit

// MemoryEvent reads base (and, if present, index) into registers and binds
// the result to a constructed MemorySite rather than emitting any
// instruction of its own — the memory access happens lazily, the first
// time something actually reads the resulting Value (spec §4.5). index is
// zero-extended to a full word first if the word size is 8 bytes and the
// supplied index is narrower, matching the teacher's codegen_amd64.go
// convention of always indexing with a 64-bit register on amd64.
type MemoryEvent struct {
	EventBase
	baseVal *Value
	index   *Value
	offset  int64
	scale   int
	result  *Value
}

func (e *MemoryEvent) Compile(c *Context) {
	baseSite := e.reads[0].value.source.(*RegisterSite)
	indexReg := -1
	if e.index != nil {
		idxSite := e.reads[1].value.source.(*RegisterSite)
		indexReg = idxSite.Low
	}
	site := NewMemorySite(c.rf, baseSite.Low, e.offset, indexReg, e.scale)
	site.Acquire(c, e.result)
	e.result.addSite(site)
}

// Memory records an access at base+offset(+index*scale), returning a
// Value whose only site is the resulting MemorySite (spec §6's memory).
// size is the eventual access width; index may be nil for a plain
// base+offset access.
func (c *Context) Memory(size int, base *Value, offset int64, index *Value, scale int) *Value {
	if index != nil && index.size < wordSize {
		index = c.Loadz(index.size, index)
	}
	result := c.arena.newValue(size)
	e := &MemoryEvent{baseVal: base, index: index, offset: offset, scale: scale, result: result}
	c.recordEvent(e)
	c.addRead(e, base, wordSize, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
	if index != nil {
		c.addRead(e, index, wordSize, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
	}
	return result
}
