package jit

// BoundsCheckEvent guards an index against an array-like object's length
// field. When the index is a compile-time-visible literal the negativity
// check's runtime jump is skipped — the front end is trusted to have
// produced a non-negative literal, and a negative one aborts instead of
// branching. The upper-bound comparison against the object's length always
// runs regardless of constIndex (spec S5): a length load via a MemorySite,
// cmp index,length, jg handler, falling through past the handler call on
// success.
type BoundsCheckEvent struct {
	EventBase
	object       *Value
	index        *Value
	lengthOffset int64
	constIndex   bool
}

func (e *BoundsCheckEvent) Compile(c *Context) {
	indexOp := e.reads[0].value.source.AsOperand(c)

	var negJump *codePromise
	if !e.constIndex {
		c.asm.Apply(Compare, wordSize, indexOp, Operand{Type: ConstantOperand, Promise: &resolvedPromise{0}})
		negJump = &codePromise{cb: c.cb}
		c.asm.Apply(JumpIfLess, wordSize, Operand{Type: AddressOperand, Promise: negJump}, Operand{})
	}

	objSite := e.reads[1].value.source.(*RegisterSite)
	lengthSite := NewMemorySite(c.rf, objSite.Low, e.lengthOffset, -1, 0)
	lenResult := c.arena.newValue(wordSize)
	lenSite := c.freshRegisterSite(lenResult, c.rf.GeneralMask())
	c.asm.Apply(Move, wordSize, lengthSite.AsOperand(c), lenSite.AsOperand(c))
	c.asm.Apply(Compare, wordSize, indexOp, lenSite.AsOperand(c))
	rangeJump := &codePromise{cb: c.cb}
	c.asm.Apply(JumpIfGreater, wordSize, Operand{Type: AddressOperand, Promise: rangeJump}, Operand{})

	skip := &codePromise{cb: c.cb}
	c.asm.Apply(Jump, wordSize, Operand{Type: AddressOperand, Promise: skip}, Operand{})

	handlerOffset := int64(c.asm.Length())
	if negJump != nil {
		negJump.bind(handlerOffset)
	}
	rangeJump.bind(handlerOffset)
	if c.client == nil {
		abort(UnimplementedLowering, "checkBounds requires a CompilerClient to resolve the handler address")
	}
	c.asm.Apply(Call, wordSize, Operand{Type: AddressOperand, Promise: c.client.GetBoundsCheckHandler()}, Operand{})

	skip.bind(int64(c.asm.Length()))
}

// CheckBounds records a guard of index against object's length field at
// lengthOffset (spec §6's checkBounds). A compile-time-constant index skips
// the runtime negativity check (asserted here instead, per Open Question 1
// — see DESIGN.md) but the upper-bound comparison against the object's
// length is always emitted, matching spec S5.
func (c *Context) CheckBounds(object, index *Value, lengthOffset int64) {
	constIndex := isCompileTimeConstant(index)
	if constIndex && constantValue(index) < 0 {
		abort(InvariantViolation, "checkBounds: compile-time-constant index %d is negative", constantValue(index))
	}
	e := &BoundsCheckEvent{object: object, index: index, lengthOffset: lengthOffset, constIndex: constIndex}
	c.recordEvent(e)
	c.addRead(e, index, wordSize, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
	c.addRead(e, object, wordSize, &VirtualSite{RegisterMask: c.rf.GeneralMask()})
}

// isCompileTimeConstant reports whether value was produced by Constant
// (as opposed to PromiseConstant, whose value isn't known until the
// promise resolves).
func isCompileTimeConstant(value *Value) bool {
	if len(value.sites) != 1 {
		return false
	}
	cs, ok := value.sites[0].(*ConstantSite)
	if !ok {
		return false
	}
	_, ok = cs.Promise.(*resolvedPromise)
	return ok
}

// constantValue returns the literal backing a compile-time-constant value.
// Only valid when isCompileTimeConstant(value) is true.
func constantValue(value *Value) int64 {
	cs := value.sites[0].(*ConstantSite)
	return cs.Promise.(*resolvedPromise).value
}
