package jit

// CallEvent pins argument values to architecture argument registers where
// available and pushes the rest (deepest argument pushed first — right to
// left, per S3's expectation of "two pushes (2 then 1)" for args (1, 2));
// the callee address is read under a mask excluding every argument
// register (spec §4.5). Grounded on no teacher file directly — nova never
// models calls below its own VM's CALL/CALL_HELPER bytecode opcodes,
// which builder.go lowers straight to an IR call instruction without an
// intervening allocator negotiation; the register-pin/push split and
// address-mask exclusion is the spec's own design, read from
// original_source/src/compiler.cpp's CallEvent.
type CallEvent struct {
	EventBase
	addr          *Value
	regArgs       []*Value
	stackArgWords int
	padWords      int
	resultSize    int
	noReturn      bool
	result        *Value
}

func (e *CallEvent) Compile(c *Context) {
	c.compilePendingPushes()

	addrOperand := e.addr.source.AsOperand(c)
	c.asm.Apply(Call, wordSize, addrOperand, Operand{})

	cp := &codePromise{cb: c.cb, offset: int64(c.asm.Length()), bound: true}
	c.trace.TraceCallSite(cp)

	if e.resultSize > 0 {
		reg := c.rf.retLow
		c.rf.release(c.rf.Get(reg))
		site := NewRegisterSite(c.rf, reg, -1, 1<<uint(reg))
		c.rf.Get(reg).value = e.result
		c.rf.Get(reg).site = site
		e.result.addSite(site)
	}

	discard := e.stackArgWords + e.padWords
	if discard > 0 && !e.noReturn {
		c.asm.Apply(Add, wordSize,
			Operand{Type: ConstantOperand, Promise: &resolvedPromise{int64(discard * wordSize)}},
			Operand{Type: RegisterOperand, Reg: c.rf.stack})
	}
}

// Call records a call to addr with argCount arguments (args, in source
// order), returning a fresh Value for the result if resultSize > 0.
func (c *Context) Call(addr *Value, resultSize int, args []*Value, noReturn bool) *Value {
	c.clobberLocals()
	e := &CallEvent{resultSize: resultSize, noReturn: noReturn}
	if resultSize > 0 {
		e.result = c.arena.newValue(resultSize)
	}
	c.recordEvent(e)

	// Snapshot the stack as it stood before this call's own arguments go
	// on it — those are pushed to memory below and need no protection.
	liveStack := c.stackTop

	argRegN := len(c.rf.argRegs)
	regArgs, stackArgs := args, []*Value(nil)
	if len(args) > argRegN {
		regArgs, stackArgs = args[:argRegN], args[argRegN:]
	}

	// SysV requires rsp % 16 == 0 at the call instruction. Each pushed
	// argument is one 8-byte word, so an odd count needs a padding word,
	// pushed deepest (first) so it doesn't disturb the argument layout the
	// callee expects at [rsp], [rsp+8], ...
	if c.cfg.AlignCallStack && len(stackArgs)%2 != 0 {
		entry := c.Push(1, c.Constant(wordSize, 0))
		entry.pushEvent.active = true
		e.padWords++
	}

	for i := len(stackArgs) - 1; i >= 0; i-- {
		entry := c.Push(1, stackArgs[i])
		entry.pushEvent.active = true
		e.stackArgWords++
	}

	excludeMask := c.rf.GeneralMask()
	for _, r := range c.rf.argRegs {
		excludeMask &^= 1 << uint(r)
	}

	// Every value still live on the virtual stack ahead of this call — not
	// just this call's own arguments — is constrained to non-argument
	// registers, so the callee's argument-register writes can't clobber it
	// (spec: "All live stack values are also constrained to non-argument
	// registers"). Resolved before regArgs below so a value sitting in an
	// argument register this call needs is moved out first.
	for entry := liveStack; entry != nil; entry = entry.next {
		c.addRead(e, entry.value, entry.size, &VirtualSite{RegisterMask: excludeMask})
	}

	for i, a := range regArgs {
		reg := c.rf.argRegs[i]
		c.addRead(e, a, wordSize, NewRegisterSite(c.rf, reg, -1, 1<<uint(reg)))
	}
	c.addRead(e, addr, wordSize, &VirtualSite{RegisterMask: excludeMask})
	e.addr = addr
	e.regArgs = regArgs

	return e.result
}

// ReturnEvent moves the return value into the return register, restores
// the frame pointer, and emits the return instruction (spec §4.5).
type ReturnEvent struct {
	EventBase
	size  int
	value *Value
}

func (e *ReturnEvent) Compile(c *Context) {
	c.asm.EmitEpilogue()
}

// Return records the function's exit point.
func (c *Context) Return(size int, value *Value) {
	e := &ReturnEvent{size: size, value: value}
	c.recordEvent(e)
	if value != nil {
		reg := c.rf.retLow
		c.addRead(e, value, size, NewRegisterSite(c.rf, reg, -1, 1<<uint(reg)))
	}
}
