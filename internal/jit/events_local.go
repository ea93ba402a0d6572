package jit

// LocalEvent materializes a write to a local variable's frame slot. A new
// binding shadows whatever LocalSlot previously owned that index (old),
// so a later ClobberLocalEvent can tell which bindings a branch or call
// invalidated (spec §4.5).
type LocalEvent struct {
	EventBase
	slot *LocalSlot
}

func (e *LocalEvent) Compile(c *Context) {
	src := e.reads[0].value.source
	c.asm.Apply(Move, e.slot.size, src.AsOperand(c), e.slot.site.AsOperand(c))
}

// localOffset places every local index, parameters included, in ascending
// order just below the saved frame pointer.
func localOffset(index int) int64 {
	return -int64(index+1) * wordSize
}

// StoreLocal records a write of value to the local at index, shadowing
// any prior binding there (spec §6's storeLocal).
func (c *Context) StoreLocal(index, size int, value *Value) {
	site := &MemorySite{rf: c.rf, Base: c.rf.base, Offset: localOffset(index), Index: -1}
	slot := &LocalSlot{size: size, index: index, value: value, site: site}
	if index < len(c.locals) {
		slot.old = c.locals[index]
		slot.Reuse = slot.old != nil && slot.old.size == size
		c.locals[index] = slot
	}
	e := &LocalEvent{slot: slot}
	c.recordEvent(e)
	c.addRead(e, value, size, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
	value.addSite(site)
}

// LoadLocal returns the value currently bound to the local at index (spec
// §6's loadLocal(size, index) — spec S2 calls it before any storeLocal for
// that index, since the callee's parameters already live in their frame
// slots by the time the function body starts running). A parameter index
// (index < paramCount) with no explicit binding yet is bound lazily to a
// fresh value backed directly by its frame slot's MemorySite. Reading an
// unset non-parameter local is still a front-end bug, not a runtime
// condition this layer recovers from.
func (c *Context) LoadLocal(size, index int) *Value {
	if index >= len(c.locals) {
		abort(InvariantViolation, "loadLocal: local index %d out of range", index)
	}
	if c.locals[index] == nil {
		if index >= c.paramCount {
			abort(InvariantViolation, "loadLocal: no binding recorded for local %d", index)
		}
		site := &MemorySite{rf: c.rf, Base: c.rf.base, Offset: localOffset(index), Index: -1}
		value := c.arena.newValue(size)
		value.addSite(site)
		c.locals[index] = &LocalSlot{size: size, index: index, value: value, site: site}
	}
	return c.locals[index].value
}

// ClobberLocalEvent invalidates every local binding still holding a
// register-only site ahead of a branch or call, forcing each to its
// memory site so the join point (or the callee, which may spill
// caller-saved registers) sees a consistent value. Locals already backed
// solely by a MemorySite are left untouched (spec §4.5).
type ClobberLocalEvent struct {
	EventBase
	locals []*LocalSlot
}

func (e *ClobberLocalEvent) Compile(c *Context) {
	for _, slot := range e.locals {
		if slot == nil || slot.value == nil {
			continue
		}
		// This event records no reads of its own (clobberLocals only
		// snapshots the locals array), so slot.value.source may be stale or
		// never set at all — derive the current source straight from
		// slot.value.sites instead of trusting that cache.
		src := pick(slot.value.sites, slot.site)
		if src == nil || src == slot.site {
			continue
		}
		c.asm.Apply(Move, slot.size, src.AsOperand(c), slot.site.AsOperand(c))
		slot.value.addSite(slot.site)
	}
}

// clobberLocals snapshots the current locals array into a ClobberLocalEvent
// (called ahead of CallEvent/BranchEvent compilation).
func (c *Context) clobberLocals() {
	if len(c.locals) == 0 {
		return
	}
	e := &ClobberLocalEvent{locals: append([]*LocalSlot(nil), c.locals...)}
	c.recordEvent(e)
}
