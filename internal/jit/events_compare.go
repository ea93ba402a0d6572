package jit

// CompareEvent emits a compare and consumes both operands without
// producing a result (spec §4.5).
type CompareEvent struct {
	EventBase
	size int
	a, b *Value
}

func (e *CompareEvent) Compile(c *Context) {
	aOp := e.reads[0].value.source.AsOperand(c)
	bOp := e.reads[1].value.source.AsOperand(c)
	c.asm.Apply(Compare, e.size, aOp, bOp)
}

// Cmp records a comparison of a against b.
func (c *Context) Cmp(size int, a, b *Value) {
	e := &CompareEvent{size: size, a: a, b: b}
	c.recordEvent(e)
	c.addRead(e, a, size, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
	c.addRead(e, b, size, nil)
}

// BranchEvent is a terminator. A StackSyncEvent is appended before every
// branch and the virtual stack is reset so that every stack entry's value
// is, from this point forward, backed solely by its push-site — the
// join-point assumption every successor relies on (spec §4.5/§4.6).
type BranchEvent struct {
	EventBase
	op     Op
	target int
}

func (e *BranchEvent) Compile(c *Context) {
	li := c.logicalFor(e.target)
	c.asm.Apply(e.op, wordSize, Operand{Type: AddressOperand, Promise: &ipPromise{cb: c.cb, li: li}}, Operand{})
}

func (c *Context) branch(op Op, target int) {
	c.stackSyncNow()
	c.clobberLocals()
	e := &BranchEvent{op: op, target: target}
	c.recordEvent(e)
	c.VisitLogicalIp(target)
}

func (c *Context) Jmp(target int)                    { c.branch(Jump, target) }
func (c *Context) Jl(target int)                      { c.branch(JumpIfLess, target) }
func (c *Context) Jg(target int)                      { c.branch(JumpIfGreater, target) }
func (c *Context) Jle(target int)                     { c.branch(JumpIfLessOrEqual, target) }
func (c *Context) Jge(target int)                     { c.branch(JumpIfGreaterOrEqual, target) }
func (c *Context) Je(target int)                      { c.branch(JumpIfEqual, target) }
func (c *Context) Jne(target int)                     { c.branch(JumpIfNotEqual, target) }

// StackSyncEvent forces every live stack value into memory; used before
// branches and before junction targets (spec §4.5/§4.6).
type StackSyncEvent struct {
	EventBase
	top *StackEntry
}

func (e *StackSyncEvent) Compile(c *Context) {
	for entry := e.top; entry != nil; entry = entry.next {
		if entry.pushEvent != nil {
			entry.pushEvent.active = true
		}
	}
	saved := c.stackTop
	c.stackTop = e.top
	c.compilePendingPushes()
	c.stackTop = saved

	for entry := e.top; entry != nil; entry = entry.next {
		fresh := c.arena.newValue(entry.size)
		fresh.addSite(entry.pushSite)
		entry.value = fresh
	}
}

// stackSyncNow records a StackSyncEvent over the current stack, per spec
// §4.5 ("A StackSyncEvent is appended before every branch").
func (c *Context) stackSyncNow() {
	if c.stackTop == nil {
		return
	}
	e := &StackSyncEvent{top: c.stackTop}
	c.recordEvent(e)
}

// emitStackSyncFor appends a StackSyncEvent built from a specific
// predecessor's own stack/locals snapshot to that predecessor's last
// event (spec §4.6's junction handling — not the current context's
// live stack, which may have moved on since that predecessor was
// recorded).
func (c *Context) emitStackSyncFor(predecessor *LogicalInstruction, stack *StackEntry, locals []*LocalSlot) {
	e := &StackSyncEvent{top: stack}
	e.logical = predecessor
	c.seq++
	e.sequence = c.seq
	if predecessor.lastEvent == nil {
		predecessor.firstEvent = e
	} else {
		predecessor.lastEvent.base().next = e
	}
	predecessor.lastEvent = e
}
