package jit

// Promise is a late-bound integer address, resolvable only once the
// machine-code buffer has been placed (spec §3/§6). Four kinds, adapted
// from the teacher's x64_asm.go relocation table (x64Reloc{offset, target,
// size}, patched in resolveRelocations): that mechanism handles exactly
// one promise kind (a forward jump target); we generalize the same
// "record now, resolve once the buffer exists" idea to all four kinds the
// spec names.
type Promise interface {
	// Value returns the resolved int64 address. Except for resolvedPromise,
	// a literal available at any time, it panics with UnresolvedPromise if
	// called before the owning Context has placed its machine-code buffer.
	Value() int64
}

// codeBase is shared by every promise kind produced by one Context; its
// placed flag is set only once WriteTo has placed the final buffer address.
type codeBase struct {
	base     int64
	poolBase int64
	placed   bool
}

func (c *codeBase) place(base, poolBase int64) {
	c.base = base
	c.poolBase = poolBase
	c.placed = true
}

type resolvedPromise struct {
	value int64
}

func (p *resolvedPromise) Value() int64 { return p.value }

// poolPromise resolves to machineCode + padded(length) + key*wordSize —
// a slot in the constant pool trailing the code.
type poolPromise struct {
	cb  *codeBase
	key int64
}

func (p *poolPromise) Value() int64 {
	if !p.cb.placed {
		abort(UnresolvedPromise, "pool promise queried before writeTo")
	}
	return p.cb.poolBase + p.key*int64(wordSize)
}

// codePromise resolves to machineCode + offset, where offset is filled in
// at the moment the event owning the promise finishes compiling (the
// assembler's length() at that point).
type codePromise struct {
	cb     *codeBase
	offset int64
	bound  bool
}

func (p *codePromise) bind(offset int64) {
	p.offset = offset
	p.bound = true
}

func (p *codePromise) Value() int64 {
	if !p.cb.placed {
		abort(UnresolvedPromise, "code promise queried before writeTo")
	}
	if !p.bound {
		abort(UnresolvedPromise, "code promise never bound to an offset")
	}
	return p.cb.base + p.offset
}

// ipPromise resolves to machineCode + logicalCode[ip].machineOffset.
type ipPromise struct {
	cb *codeBase
	li *LogicalInstruction
}

func (p *ipPromise) Value() int64 {
	if !p.cb.placed {
		abort(UnresolvedPromise, "ip promise queried before writeTo")
	}
	return p.cb.base + int64(p.li.machineOffset)
}
