package jit

// Op is a machine-independent operation code the core event kinds emit
// through the Assembler. The set mirrors what the teacher's two x86-64
// encoders (x64_asm.go, codegen_amd64.go) actually implement.
type Op int

const (
	Move Op = iota
	MoveZeroExtend
	MoveSignExtend4To8
	Add
	Subtract
	Multiply
	Divide
	Remainder
	ShiftLeft
	ShiftRight
	UnsignedShiftRight
	And
	Or
	Xor
	Negate
	Compare
	Jump
	JumpIfLess
	JumpIfGreater
	JumpIfLessOrEqual
	JumpIfGreaterOrEqual
	JumpIfEqual
	JumpIfNotEqual
	Call
	Return
	Push
	Pop
)

// OperandType classifies what kind of Site backs an Operand passed to
// Assembler.Apply, matching spec §3's Site variants that can actually be
// emitted (VirtualSite/PushSite never reach Apply — they resolve to a
// concrete site before compile time).
type OperandType int

const (
	NoOperand OperandType = iota
	ConstantOperand
	AddressOperand
	RegisterOperand
	MemoryOperand
)

// Operand is what event.compile hands the assembler: a site rendered into
// the shape Apply needs, with no remaining indirection through the Site
// interface.
type Operand struct {
	Type OperandType

	// RegisterOperand
	Reg     int
	RegHigh int // -1 if the value is single-word

	// MemoryOperand
	Base   int
	Index  int // -1 if none
	Scale  int
	Offset int64

	// ConstantOperand / AddressOperand
	Promise Promise
}

// PlanResult is the answer to Assembler.Plan: which operand kinds and
// register masks are legal for a given op/size, and whether the op must
// be lowered to a runtime helper call instead of emitted inline.
type PlanResult struct {
	SrcTypeMask uint64
	SrcRegMask  uint64
	DstTypeMask uint64
	DstRegMask  uint64
	Thunk       bool
}

// Assembler is the machine-specific instruction encoder the core backend
// consumes. Out of scope per spec §1 as a *design* concern, but the
// library ships one concrete implementation (X86Assembler) so its own
// test suite has something to assert emitted bytes against.
type Assembler interface {
	RegisterCount() int
	Base() int
	Stack() int
	Thread() int
	ArgumentRegisterCount() int
	ArgumentRegister(i int) int
	ReturnLow() int
	ReturnHigh() int
	Length() int

	Apply(op Op, size int, src, dst Operand)
	Plan(op Op, size int) PlanResult

	// EmitPrologue/EmitEpilogue bracket one compiled unit's frame (spec
	// S1: "push base; mov stack,base" / "mov base,stack; pop base; ret").
	EmitPrologue(frameSize int)
	EmitEpilogue()

	SetClient(client AssemblerClient)
	WriteTo(buffer []byte)
}

// AssemblerClient is what the allocator exposes back to the assembler for
// instruction encoders that need scratch space mid-emit (e.g. a temporary
// register to compute an address into before a memory operation).
type AssemblerClient interface {
	AcquireTemporary(mask uint64) int
	ReleaseTemporary(reg int)
	Save(reg int)
	Restore(reg int)
}

// CompilerClient maps an (op, size) pair the assembler declined to inline
// to a helper-routine address — e.g. 64-bit division on a target whose
// assembler has no single-instruction encoding for it (S6).
type CompilerClient interface {
	GetThunk(op Op, size int) Promise

	// GetBoundsCheckHandler returns the address of the runtime routine a
	// failed BoundsCheckEvent calls into (spec S5).
	GetBoundsCheckHandler() Promise
}

// TraceHandler receives a CodePromise at every call site so a runtime can
// record return-address metadata for stack walking. A NoopTraceHandler is
// provided for callers (chiefly tests) that don't need this.
type TraceHandler interface {
	TraceCallSite(p Promise)
}

type NoopTraceHandler struct{}

func (NoopTraceHandler) TraceCallSite(Promise) {}
