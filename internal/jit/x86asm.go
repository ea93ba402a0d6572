package jit

import "encoding/binary"

// X86Reg names the sixteen general-purpose x86-64 registers in the same
// numbering RegisterFile uses throughout the allocator (0=RAX .. 15=R15),
// adapted from the teacher's x64_asm.go X64Reg enum.
type X86Reg int

const (
	RAX X86Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

func (r X86Reg) String() string {
	names := [...]string{
		"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
		"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
	}
	if int(r) < len(names) {
		return names[r]
	}
	return "???"
}

func (r X86Reg) extended() bool { return r >= R8 }
func (r X86Reg) low3() byte     { return byte(r) & 0x7 }

// X86Assembler is the one concrete Assembler this module ships: x86-64,
// SysV ABI (RDI, RSI, RDX, RCX, R8, R9 argument registers; RAX/RDX return;
// RBP/RSP/R15 reserved as base/stack/thread). Adapted from the teacher's
// x64_asm.go (rex/modrm helpers, emitMemOperand's RSP/R12 SIB and RBP/R13
// disp8 special cases, relocation-by-offset-lookup style) merged with
// codegen_amd64.go's EmitPrologue/EmitEpilogue, word for word what spec S1
// expects.
type X86Assembler struct {
	code    []byte
	client  AssemblerClient
	patches []pendingPatch
}

type patchKind int

const (
	patchAbs64 patchKind = iota
	patchRel32
)

// pendingPatch records a spot in code that embeds a Promise's eventual
// value: an absolute 8-byte address (movabs immediates, far-call targets)
// or a rel32 displacement (near jumps/calls to an in-buffer target). Both
// kinds are resolved in WriteTo, once the destination buffer's address has
// been placed on the shared codeBase — a rel32 patch cancels out that base
// on both sides of the subtraction, so it resolves correctly even though
// the promise reports an absolute address.
type pendingPatch struct {
	offset   int
	instrEnd int // only meaningful for patchRel32
	kind     patchKind
	promise  Promise
}

func NewX86Assembler() *X86Assembler {
	return &X86Assembler{code: make([]byte, 0, 256)}
}

func (a *X86Assembler) RegisterCount() int         { return 16 }
func (a *X86Assembler) Base() int                  { return int(RBP) }
func (a *X86Assembler) Stack() int                 { return int(RSP) }
func (a *X86Assembler) Thread() int                { return int(R15) }
func (a *X86Assembler) ArgumentRegisterCount() int  { return len(sysvArgRegs) }
func (a *X86Assembler) ArgumentRegister(i int) int  { return int(sysvArgRegs[i]) }
func (a *X86Assembler) ReturnLow() int              { return int(RAX) }
func (a *X86Assembler) ReturnHigh() int             { return int(RDX) }
func (a *X86Assembler) Length() int                 { return len(a.code) }
func (a *X86Assembler) SetClient(client AssemblerClient) { a.client = client }

var sysvArgRegs = [...]X86Reg{RDI, RSI, RDX, RCX, R8, R9}

// --- low-level encoding, adapted from x64_asm.go ---

func (a *X86Assembler) emit(bytes ...byte) { a.code = append(a.code, bytes...) }

func (a *X86Assembler) emitU32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	a.code = append(a.code, buf[:]...)
}

func (a *X86Assembler) emitU64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	a.code = append(a.code, buf[:]...)
}

func rex(w, r, x, b bool) byte {
	v := byte(0x40)
	if w {
		v |= 0x08
	}
	if r {
		v |= 0x04
	}
	if x {
		v |= 0x02
	}
	if b {
		v |= 0x01
	}
	return v
}

func modrm(mod, reg, rm byte) byte {
	return (mod << 6) | ((reg & 0x7) << 3) | (rm & 0x7)
}

// emitMemOperand encodes a [base(+index*scale)+disp] operand. RSP/R12 as
// base require a SIB byte even with no index; RBP/R13 as base require an
// explicit disp8 of 0 since mod=00,rm=101 is the RIP-relative escape.
func (a *X86Assembler) emitMemOperand(reg byte, base X86Reg, index X86Reg, scale int, offset int64) {
	needSIB := base == RSP || base == R12 || index >= 0
	forceDisp8 := base == RBP || base == R13

	var mod byte
	switch {
	case offset == 0 && !forceDisp8:
		mod = 0
	case offset >= -128 && offset <= 127:
		mod = 1
	default:
		mod = 2
	}

	rm := base.low3()
	if needSIB {
		rm = 4
	}
	a.emit(modrm(mod, reg, rm))
	if needSIB {
		var sib byte
		if index >= 0 {
			sib = byte(scaleBits(scale))<<6 | (index.low3() << 3) | base.low3()
		} else {
			sib = 0<<6 | (4 << 3) | base.low3() // index=RSP means "none"
		}
		a.emit(sib)
	}
	switch mod {
	case 1:
		a.emit(byte(int8(offset)))
	case 2:
		a.emitU32(uint32(int32(offset)))
	}
}

func scaleBits(scale int) int {
	switch scale {
	case 1:
		return 0
	case 2:
		return 1
	case 4:
		return 2
	case 8:
		return 3
	default:
		abort(InvariantViolation, "unsupported memory scale %d", scale)
		return 0
	}
}

// --- Operand decoding helpers ---

func regOf(op Operand) X86Reg { return X86Reg(op.Reg) }

// addAbs64Patch reserves an 8-byte immediate slot. If the promise is
// already resolved (a compile-time literal), the value is embedded
// directly; otherwise the slot is zeroed and queued for WriteTo.
func (a *X86Assembler) addAbs64Patch(p Promise) {
	if rp, ok := p.(*resolvedPromise); ok {
		a.emitU64(uint64(rp.value))
		return
	}
	a.patches = append(a.patches, pendingPatch{offset: len(a.code), kind: patchAbs64, promise: p})
	a.emitU64(0)
}

func (a *X86Assembler) addRel32Patch(p Promise) {
	a.patches = append(a.patches, pendingPatch{offset: len(a.code), kind: patchRel32, promise: p})
	a.emitU32(0)
	a.patches[len(a.patches)-1].instrEnd = len(a.code)
}

// --- data movement ---

func (a *X86Assembler) movRegReg(dst, src X86Reg, size int) {
	if size == 4 {
		a.emit(rex(false, src.extended(), false, dst.extended()))
		a.emit(0x89)
	} else {
		a.emit(rex(true, src.extended(), false, dst.extended()))
		a.emit(0x89)
	}
	a.emit(modrm(3, src.low3(), dst.low3()))
}

func (a *X86Assembler) movRegMem(dst X86Reg, base, index X86Reg, scale int, offset int64, size int) {
	a.emit(rex(size == 8, dst.extended(), index >= 0 && index.extended(), base.extended()))
	a.emit(0x8B)
	a.emitMemOperand(dst.low3(), base, index, scale, offset)
}

func (a *X86Assembler) movMemReg(base, index X86Reg, scale int, offset int64, src X86Reg, size int) {
	a.emit(rex(size == 8, src.extended(), index >= 0 && index.extended(), base.extended()))
	a.emit(0x89)
	a.emitMemOperand(src.low3(), base, index, scale, offset)
}

func (a *X86Assembler) movRegImm64(dst X86Reg, p Promise) {
	a.emit(rex(true, false, false, dst.extended()))
	a.emit(0xB8 + dst.low3())
	a.addAbs64Patch(p)
}

func (a *X86Assembler) movzxReg(dst, src X86Reg) {
	a.emit(rex(true, dst.extended(), false, src.extended()))
	a.emit(0x0F, 0xB6)
	a.emit(modrm(3, dst.low3(), src.low3()))
}

func (a *X86Assembler) movsxd(dst, src X86Reg) {
	a.emit(rex(true, dst.extended(), false, src.extended()))
	a.emit(0x63)
	a.emit(modrm(3, dst.low3(), src.low3()))
}

// --- arithmetic/bitwise, two-register destructive form: op dst, src ---

var arithOpcode = map[Op]byte{
	Add: 0x01, Subtract: 0x29, And: 0x21, Or: 0x09, Xor: 0x31, Compare: 0x39,
}

func (a *X86Assembler) arithRegReg(op Op, dst, src X86Reg, size int) {
	a.emit(rex(size == 8, src.extended(), false, dst.extended()))
	a.emit(arithOpcode[op])
	a.emit(modrm(3, src.low3(), dst.low3()))
}

// arithExt is the ModR/M reg-field extension for the x86 group-1
// opcodes (0x80-0x83), used by both the register-immediate and the
// compare-against-memory/immediate forms below.
var arithExt = map[Op]byte{Add: 0, Or: 1, And: 4, Subtract: 5, Xor: 6, Compare: 7}

func (a *X86Assembler) arithRegImm(op Op, dst X86Reg, value int64, size int) {
	a.emit(rex(size == 8, false, false, dst.extended()))
	if value >= -128 && value <= 127 {
		a.emit(0x83)
		a.emit(modrm(3, arithExt[op], dst.low3()))
		a.emit(byte(int8(value)))
		return
	}
	a.emit(0x81)
	a.emit(modrm(3, arithExt[op], dst.low3()))
	a.emitU32(uint32(int32(value)))
}

func (a *X86Assembler) cmpRegMem(reg, base, index X86Reg, scale int, offset int64, size int) {
	a.emit(rex(size == 8, reg.extended(), index >= 0 && index.extended(), base.extended()))
	a.emit(0x3B)
	a.emitMemOperand(reg.low3(), base, index, scale, offset)
}

// applyCompare emits a's CMP for CompareEvent's (aOp, bOp) pair. aOp (the
// Apply src operand) is always a register — Cmp's own addRead pins it to
// one — but bOp (the Apply dst operand) reaches here as whatever site the
// value already occupied, which Cmp never forces into a register (spec
// §6's cmp leaves its second operand wherever it is).
func (a *X86Assembler) applyCompare(size int, aOp, bOp Operand) {
	reg := regOf(aOp)
	switch bOp.Type {
	case RegisterOperand:
		a.arithRegReg(Compare, reg, regOf(bOp), size)
	case MemoryOperand:
		a.cmpRegMem(reg, X86Reg(bOp.Base), indexOrNone(bOp), bOp.Scale, bOp.Offset, size)
	case ConstantOperand, AddressOperand:
		if rp, ok := bOp.Promise.(*resolvedPromise); ok && rp.value >= -0x80000000 && rp.value <= 0x7fffffff {
			a.arithRegImm(Compare, reg, rp.value, size)
			return
		}
		tmp := X86Reg(a.client.AcquireTemporary(generalRegMask() &^ (1 << uint(reg))))
		a.movRegImm64(tmp, bOp.Promise)
		a.arithRegReg(Compare, reg, tmp, size)
		a.client.ReleaseTemporary(int(tmp))
	default:
		abort(UnimplementedLowering, "X86Assembler: unsupported compare operand %v", bOp.Type)
	}
}

func (a *X86Assembler) imulRegReg(dst, src X86Reg, size int) {
	a.emit(rex(size == 8, dst.extended(), false, src.extended()))
	a.emit(0x0F, 0xAF)
	a.emit(modrm(3, dst.low3(), src.low3()))
}

func (a *X86Assembler) negReg(reg X86Reg, size int) {
	a.emit(rex(size == 8, false, false, reg.extended()))
	a.emit(0xF7)
	a.emit(modrm(3, 3, reg.low3()))
}

var shiftExt = map[Op]byte{ShiftLeft: 4, ShiftRight: 7, UnsignedShiftRight: 5}

// shiftRegCL emits shl/sar/shr dst, cl (shift count always sourced from
// CL per Plan's SrcRegMask restriction on the count operand).
func (a *X86Assembler) shiftRegCL(op Op, dst X86Reg, size int) {
	a.emit(rex(size == 8, false, false, dst.extended()))
	a.emit(0xD3)
	a.emit(modrm(3, shiftExt[op], dst.low3()))
}

// --- stack ---

func (a *X86Assembler) pushReg(reg X86Reg) {
	if reg.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x50 + reg.low3())
}

func (a *X86Assembler) popReg(reg X86Reg) {
	if reg.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0x58 + reg.low3())
}

func (a *X86Assembler) pushImm(p Promise) {
	if rp, ok := p.(*resolvedPromise); ok && rp.value >= -0x80000000 && rp.value <= 0x7fffffff {
		a.emit(0x68)
		a.emitU32(uint32(int32(rp.value)))
		return
	}
	// A push of a non-literal promise doesn't fit in a single push imm32;
	// materialize it through a temporary register instead.
	tmp := X86Reg(a.client.AcquireTemporary(generalRegMask()))
	a.movRegImm64(tmp, p)
	a.pushReg(tmp)
	a.client.ReleaseTemporary(int(tmp))
}

func (a *X86Assembler) pushMem(base, index X86Reg, scale int, offset int64) {
	a.emit(rex(false, false, index >= 0 && index.extended(), base.extended()))
	a.emit(0xFF)
	a.emitMemOperand(6, base, index, scale, offset)
}

// --- jumps/calls ---

var jccOpcode = map[Op][2]byte{
	JumpIfLess: {0x0F, 0x8C}, JumpIfGreater: {0x0F, 0x8F},
	JumpIfLessOrEqual: {0x0F, 0x8E}, JumpIfGreaterOrEqual: {0x0F, 0x8D},
	JumpIfEqual: {0x0F, 0x84}, JumpIfNotEqual: {0x0F, 0x85},
}

func (a *X86Assembler) jmpRel32(promise Promise) {
	a.emit(0xE9)
	a.addRel32Patch(promise)
}

func (a *X86Assembler) jccRel32(op Op, promise Promise) {
	oc := jccOpcode[op]
	a.emit(oc[0], oc[1])
	a.addRel32Patch(promise)
}

func (a *X86Assembler) callReg(reg X86Reg) {
	if reg.extended() {
		a.emit(rex(false, false, false, true))
	}
	a.emit(0xFF)
	a.emit(modrm(3, 2, reg.low3()))
}

// callAddress calls a far promise-backed address by materializing it into
// a scratch register first — the assembler's own client dance (spec §6's
// AssemblerClient) since a bare call has no encoding for an 8-byte
// absolute immediate target.
func (a *X86Assembler) callAddress(promise Promise) {
	tmp := X86Reg(a.client.AcquireTemporary(generalRegMask()))
	a.movRegImm64(tmp, promise)
	a.callReg(tmp)
	a.client.ReleaseTemporary(int(tmp))
}

func generalRegMask() uint64 {
	var m uint64
	for r := X86Reg(0); r < 16; r++ {
		if r != RBP && r != RSP && r != R15 {
			m |= 1 << uint(r)
		}
	}
	return m
}

// --- Assembler interface ---

func (a *X86Assembler) Apply(op Op, size int, src, dst Operand) {
	switch op {
	case Move:
		a.applyMove(size, src, dst, false)
	case MoveZeroExtend:
		a.applyZeroExtend(size, src, dst)
	case MoveSignExtend4To8:
		a.applySignExtend(src, dst)
	case Add, Subtract, And, Or, Xor:
		a.arithRegReg(op, regOf(dst), regOf(src), size)
	case Multiply:
		a.imulRegReg(regOf(dst), regOf(src), size)
	case Negate:
		a.negReg(regOf(src), size)
	case ShiftLeft, ShiftRight, UnsignedShiftRight:
		a.shiftRegCL(op, regOf(dst), size)
	case Compare:
		a.applyCompare(size, src, dst)
	case Jump:
		a.jmpRel32(src.Promise)
	case JumpIfLess, JumpIfGreater, JumpIfLessOrEqual, JumpIfGreaterOrEqual, JumpIfEqual, JumpIfNotEqual:
		a.jccRel32(op, src.Promise)
	case Call:
		if src.Type == RegisterOperand {
			a.callReg(regOf(src))
		} else {
			a.callAddress(src.Promise)
		}
	case Return:
		// handled by EmitEpilogue
	case Push:
		a.applyPush(size, src)
	case Pop:
		a.popReg(regOf(dst))
	default:
		abort(UnimplementedLowering, "X86Assembler: no lowering for op %v", op)
	}
}

func (a *X86Assembler) applyMove(size int, src, dst Operand, _ bool) {
	switch {
	case src.Type == RegisterOperand && dst.Type == RegisterOperand:
		if regOf(src) == regOf(dst) {
			return
		}
		a.movRegReg(regOf(dst), regOf(src), size)
	case src.Type == MemoryOperand && dst.Type == RegisterOperand:
		a.movRegMem(regOf(dst), X86Reg(src.Base), indexOrNone(src), src.Scale, src.Offset, size)
	case src.Type == RegisterOperand && dst.Type == MemoryOperand:
		a.movMemReg(X86Reg(dst.Base), indexOrNone(dst), dst.Scale, dst.Offset, regOf(src), size)
	case (src.Type == ConstantOperand || src.Type == AddressOperand) && dst.Type == RegisterOperand:
		a.movRegImm64(regOf(dst), src.Promise)
	default:
		abort(UnimplementedLowering, "X86Assembler: unsupported move %v -> %v", src.Type, dst.Type)
	}
}

func (a *X86Assembler) applyZeroExtend(size int, src, dst Operand) {
	if src.Type != RegisterOperand || dst.Type != RegisterOperand {
		abort(UnimplementedLowering, "X86Assembler: zero-extend requires register operands")
	}
	if size >= 4 {
		a.movRegReg(regOf(dst), regOf(src), 4) // a 32-bit mov already zeroes the upper half
		return
	}
	a.movzxReg(regOf(dst), regOf(src))
}

func (a *X86Assembler) applySignExtend(src, dst Operand) {
	if src.Type != RegisterOperand || dst.Type != RegisterOperand {
		abort(UnimplementedLowering, "X86Assembler: sign-extend requires register operands")
	}
	a.movsxd(regOf(dst), regOf(src))
}

func (a *X86Assembler) applyPush(size int, src Operand) {
	switch src.Type {
	case RegisterOperand:
		a.pushReg(regOf(src))
	case ConstantOperand, AddressOperand:
		a.pushImm(src.Promise)
	case MemoryOperand:
		a.pushMem(X86Reg(src.Base), indexOrNone(src), src.Scale, src.Offset)
	case NoOperand:
		// reserving stack space with no value: handled by the caller via
		// a bare Subtract on the stack register, never reaches here.
	default:
		abort(UnimplementedLowering, "X86Assembler: unsupported push operand %v", src.Type)
	}
}

func indexOrNone(op Operand) X86Reg {
	if op.Index < 0 {
		return -1
	}
	return X86Reg(op.Index)
}

// Plan answers which operand kinds/register masks CombineEvent/
// TranslateEvent may use for op/size, per spec §4.1's plan() query.
// Divide/Remainder are always lowered to a thunk here: SysV's div/idiv
// destructively pin RDX:RAX and require a CQO/xor-RDX dance the generic
// two-register CombineEvent model has no room for, so this assembler
// always declines to inline them (spec S6's scenario).
func (a *X86Assembler) Plan(op Op, size int) PlanResult {
	general := generalRegMask()
	switch op {
	case Add, Subtract, And, Or, Xor, Multiply:
		return PlanResult{SrcTypeMask: uint64(1) << uint(RegisterOperand), SrcRegMask: general,
			DstTypeMask: uint64(1) << uint(RegisterOperand), DstRegMask: general}
	case Divide, Remainder:
		return PlanResult{Thunk: true}
	case ShiftLeft, ShiftRight, UnsignedShiftRight:
		return PlanResult{SrcTypeMask: uint64(1) << uint(RegisterOperand), SrcRegMask: 1 << uint(RCX),
			DstTypeMask: uint64(1) << uint(RegisterOperand), DstRegMask: general &^ (1 << uint(RCX))}
	case Negate:
		return PlanResult{DstTypeMask: uint64(1) << uint(RegisterOperand), DstRegMask: general}
	default:
		abort(UnimplementedLowering, "X86Assembler: no plan for op %v", op)
		return PlanResult{}
	}
}

// EmitPrologue/EmitEpilogue match spec S1 exactly: push rbp; mov rbp,rsp;
// sub rsp,N / mov rsp,rbp; pop rbp; ret.
func (a *X86Assembler) EmitPrologue(frameSize int) {
	a.pushReg(RBP)
	a.movRegReg(RBP, RSP, 8)
	if frameSize > 0 {
		a.emit(rex(true, false, false, false))
		a.emit(0x81)
		a.emit(modrm(3, 5, RSP.low3()))
		a.emitU32(uint32(int32(frameSize)))
	}
}

func (a *X86Assembler) EmitEpilogue() {
	a.movRegReg(RSP, RBP, 8)
	a.popReg(RBP)
	a.emit(0xC3)
}

// WriteTo copies the assembled code into dst and resolves every pending
// promise-backed patch. The caller (Context.WriteTo) must have already
// placed the shared codeBase, since resolving a patch calls Promise.Value.
func (a *X86Assembler) WriteTo(dst []byte) {
	copy(dst, a.code)
	base := uintptrOf(dst)
	for _, p := range a.patches {
		switch p.kind {
		case patchAbs64:
			binary.LittleEndian.PutUint64(dst[p.offset:], uint64(p.promise.Value()))
		case patchRel32:
			rel := p.promise.Value() - (base + int64(p.instrEnd))
			binary.LittleEndian.PutUint32(dst[p.offset:], uint32(int32(rel)))
		}
	}
}
