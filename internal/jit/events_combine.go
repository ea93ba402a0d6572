package jit

// CombineEvent is a binary operation resolved against the assembler's
// plan() query (spec §4.5). If the plan reports thunk=true the operation
// is lowered to a runtime helper call instead (S6); otherwise both
// operands are read under plan-derived masks (shift ops always read their
// first operand at 4 bytes, regardless of the result size) and Compile
// pre-copies the second operand to a fresh register before the
// destructive two-operand emit if it still has later reads and is
// single-sited; the second operand keeps the copy and the result takes
// over the site the operation overwrote.
type CombineEvent struct {
	EventBase
	op     Op
	size   int
	first  *Value
	second *Value
	result *Value
}

func (e *CombineEvent) Compile(c *Context) {
	firstOperand := e.reads[0].value.source.AsOperand(c)

	second := e.second
	secondSite := second.source
	// second.reads still holds this event's own read until finishReads.
	if len(second.reads) > 1 && len(second.sites) == 1 {
		fresh := c.freshRegisterSite(second, c.rf.GeneralMask())
		c.emitMove(secondSite, fresh, e.size)
		second.addSite(fresh)
	}

	c.asm.Apply(e.op, e.size, firstOperand, secondSite.AsOperand(c))
	c.transferSite(second, e.result, secondSite)
}

func isShift(op Op) bool {
	return op == ShiftLeft || op == ShiftRight || op == UnsignedShiftRight
}

// recordCombine is shared by the binary arithmetic façade methods below.
func (c *Context) recordCombine(op Op, size int, first, second *Value) *Value {
	plan := c.asm.Plan(op, size)
	if plan.Thunk {
		return c.lowerThunk(op, size, first, second)
	}

	result := c.arena.newValue(size)
	e := &CombineEvent{op: op, size: size, first: first, second: second, result: result}
	c.recordEvent(e)

	firstSize := size
	if isShift(op) {
		firstSize = 4
	}
	c.addRead(e, first, firstSize, &VirtualSite{RegisterMask: plan.SrcRegMask})
	c.addRead(e, second, size, &VirtualSite{RegisterMask: plan.DstRegMask})
	return result
}

// lowerThunk passes both operands through Call (argument registers where
// the target has them, pushed otherwise) to the helper routine the
// CompilerClient resolves for (op, size) — the out-of-line path the
// assembler's plan() declines to inline (spec S6: 64-bit divide on a
// target whose encoder has no single instruction for it).
func (c *Context) lowerThunk(op Op, size int, first, second *Value) *Value {
	if c.client == nil {
		abort(UnimplementedLowering, "plan(%v,%d) requires a thunk but no CompilerClient is wired", op, size)
	}
	thunk := c.client.GetThunk(op, size)
	addr := c.PromiseConstant(wordSize, thunk)
	return c.Call(addr, size, []*Value{first, second}, false)
}

// TranslateEvent is the unary variant of combine.
type TranslateEvent struct {
	EventBase
	op     Op
	size   int
	src    *Value
	result *Value
}

func (e *TranslateEvent) Compile(c *Context) {
	src := e.reads[0].value
	srcSite := src.source
	srcOperand := srcSite.AsOperand(c)
	c.asm.Apply(e.op, e.size, srcOperand, Operand{})
	c.transferSite(src, e.result, srcSite)
}

func (c *Context) recordTranslate(op Op, size int, src *Value) *Value {
	plan := c.asm.Plan(op, size)
	if plan.Thunk {
		return c.lowerThunk(op, size, src, nil)
	}
	result := c.arena.newValue(size)
	e := &TranslateEvent{op: op, size: size, src: src, result: result}
	c.recordEvent(e)
	c.addRead(e, src, size, &VirtualSite{RegisterMask: plan.DstRegMask})
	return result
}

// Arithmetic/bitwise façade methods (spec §6).
func (c *Context) Add(size int, a, b *Value) *Value  { return c.recordCombine(Add, size, a, b) }
func (c *Context) Sub(size int, a, b *Value) *Value  { return c.recordCombine(Subtract, size, a, b) }
func (c *Context) Mul(size int, a, b *Value) *Value  { return c.recordCombine(Multiply, size, a, b) }
func (c *Context) Div(size int, a, b *Value) *Value  { return c.recordCombine(Divide, size, a, b) }
func (c *Context) Rem(size int, a, b *Value) *Value  { return c.recordCombine(Remainder, size, a, b) }
func (c *Context) Shl(size int, a, b *Value) *Value  { return c.recordCombine(ShiftLeft, size, a, b) }
func (c *Context) Shr(size int, a, b *Value) *Value  { return c.recordCombine(ShiftRight, size, a, b) }
func (c *Context) Ushr(size int, a, b *Value) *Value {
	return c.recordCombine(UnsignedShiftRight, size, a, b)
}
func (c *Context) And(size int, a, b *Value) *Value { return c.recordCombine(And, size, a, b) }
func (c *Context) Or(size int, a, b *Value) *Value  { return c.recordCombine(Or, size, a, b) }
func (c *Context) Xor(size int, a, b *Value) *Value { return c.recordCombine(Xor, size, a, b) }
func (c *Context) Neg(size int, a *Value) *Value    { return c.recordTranslate(Negate, size, a) }
