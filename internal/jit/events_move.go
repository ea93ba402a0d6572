package jit

// MoveEvent moves a value from its current site into a new one, per spec
// §4.5's MoveEvent. dst is removed from the value's site list after emit
// when store is true (a pure memory store — the value doesn't newly
// "live" at the address it was just written to).
//
// The skipMove peephole (spec §4.3/§4.5: elide a move whose destination is
// immediately consumed by an active push) is not implemented — every Load/
// Store/push sequence goes through a real register move even when a
// following PushEvent would have been able to consume the source directly.
type MoveEvent struct {
	EventBase
	op    Op
	size  int
	src   *Value
	dst   *Value
	store bool
}

func (e *MoveEvent) Compile(c *Context) {
	srcOp := e.reads[0].value.source.AsOperand(c)

	var targetSite Site
	switch {
	case e.store:
		// A pure store writes through dst's existing (memory) site rather
		// than binding a new one — dst isn't gaining a lifetime here, the
		// address it already names is simply being written to.
		targetSite = pick(e.dst.sites, nil)
		if targetSite == nil {
			abort(InvariantViolation, "store: destination value has no site")
		}
	case e.dst.target != nil:
		targetSite = c.resolveTarget(e.dst, e.dst.target)
	default:
		targetSite = c.freshRegisterSite(e.dst, c.rf.GeneralMask())
	}

	c.asm.Apply(e.op, e.size, srcOp, targetSite.AsOperand(c))
	if e.store {
		e.dst.removeSite(targetSite)
	} else {
		e.dst.addSite(targetSite)
	}
}

func (c *Context) recordMove(op Op, size int, src, dst *Value, targetHint Site, store bool) *MoveEvent {
	e := &MoveEvent{op: op, size: size, src: src, dst: dst, store: store}
	c.recordEvent(e)
	c.addRead(e, src, size, targetHint)
	return e
}

// Load reads src into a fresh general-purpose register (spec §6's load).
func (c *Context) Load(size int, src *Value) *Value {
	dst := c.arena.newValue(size)
	c.recordMove(Move, size, src, dst, &VirtualSite{RegisterMask: c.rf.GeneralMask()}, false)
	return dst
}

// Loadz zero-extends src into a full-word register (spec §6's loadz).
func (c *Context) Loadz(size int, src *Value) *Value {
	dst := c.arena.newValue(wordSize)
	c.recordMove(MoveZeroExtend, size, src, dst, &VirtualSite{RegisterMask: c.rf.GeneralMask()}, false)
	return dst
}

// Load4To8 sign-extends a 4-byte src into an 8-byte register (spec §6's
// load4To8).
func (c *Context) Load4To8(src *Value) *Value {
	dst := c.arena.newValue(8)
	c.recordMove(MoveSignExtend4To8, 4, src, dst, &VirtualSite{RegisterMask: c.rf.GeneralMask()}, false)
	return dst
}

// Store writes value into dst's current site (spec §6's store); dst's
// site is not retained as a new site for value since this is a pure
// write, not a binding.
func (c *Context) Store(size int, value, dst *Value) {
	c.recordMove(Move, size, value, dst, nil, true)
}
