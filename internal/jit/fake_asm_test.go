package jit

import "fmt"

// fakeAssembler is a recording Assembler used to assert on the shape of
// the instruction stream the core backend emits, without depending on
// x86asm.go's actual byte encoding — the concrete encoder has its own
// tests in x86asm_test.go. Length() advances by one per Apply/prologue/
// epilogue call, which is enough to give codePromise/ipPromise distinct,
// ordered offsets for control-flow assertions.
type fakeAssembler struct {
	client    AssemblerClient
	ops       []string
	length    int
	argRegN   int
	planTable map[Op]PlanResult
}

func newFakeAssembler(argRegN int) *fakeAssembler {
	return &fakeAssembler{argRegN: argRegN}
}

func (a *fakeAssembler) RegisterCount() int        { return 8 }
func (a *fakeAssembler) Base() int                 { return 5 }
func (a *fakeAssembler) Stack() int                { return 4 }
func (a *fakeAssembler) Thread() int               { return 7 }
func (a *fakeAssembler) ArgumentRegisterCount() int { return a.argRegN }
func (a *fakeAssembler) ArgumentRegister(i int) int { return i }
func (a *fakeAssembler) ReturnLow() int             { return 0 }
func (a *fakeAssembler) ReturnHigh() int            { return 2 }
func (a *fakeAssembler) Length() int                { return a.length }

func (a *fakeAssembler) Apply(op Op, size int, src, dst Operand) {
	a.ops = append(a.ops, fmt.Sprintf("%s/%d %s -> %s", opName(op), size, describeOperand(src), describeOperand(dst)))
	a.length++
}

func (a *fakeAssembler) Plan(op Op, size int) PlanResult {
	if p, ok := a.planTable[op]; ok {
		return p
	}
	general := uint64(0xff) &^ ((1 << uint(a.Base())) | (1 << uint(a.Stack())) | (1 << uint(a.Thread())))
	switch op {
	case Divide, Remainder:
		return PlanResult{Thunk: true}
	default:
		return PlanResult{SrcRegMask: general, DstRegMask: general}
	}
}

func (a *fakeAssembler) EmitPrologue(frameSize int) {
	a.ops = append(a.ops, fmt.Sprintf("prologue(%d)", frameSize))
	a.length++
}

func (a *fakeAssembler) EmitEpilogue() {
	a.ops = append(a.ops, "epilogue")
	a.length++
}

func (a *fakeAssembler) SetClient(client AssemblerClient) { a.client = client }

func (a *fakeAssembler) WriteTo(buffer []byte) {}

func opName(op Op) string {
	names := [...]string{
		"Move", "MoveZeroExtend", "MoveSignExtend4To8", "Add", "Subtract",
		"Multiply", "Divide", "Remainder", "ShiftLeft", "ShiftRight",
		"UnsignedShiftRight", "And", "Or", "Xor", "Negate", "Compare",
		"Jump", "JumpIfLess", "JumpIfGreater", "JumpIfLessOrEqual",
		"JumpIfGreaterOrEqual", "JumpIfEqual", "JumpIfNotEqual", "Call",
		"Return", "Push", "Pop",
	}
	if int(op) < len(names) {
		return names[op]
	}
	return "?"
}

func describeOperand(op Operand) string {
	switch op.Type {
	case NoOperand:
		return "none"
	case ConstantOperand:
		return fmt.Sprintf("const(%d)", op.Promise.Value())
	case AddressOperand:
		return "addr"
	case RegisterOperand:
		return fmt.Sprintf("r%d", op.Reg)
	case MemoryOperand:
		return fmt.Sprintf("[r%d+%d]", op.Base, op.Offset)
	default:
		return "?"
	}
}

// fakeClient supplies fixed thunk/bounds-check-handler promises, recording
// which (op, size) pairs were actually requested.
type fakeClient struct {
	thunkRequests [][2]int
}

func (c *fakeClient) GetThunk(op Op, size int) Promise {
	c.thunkRequests = append(c.thunkRequests, [2]int{int(op), size})
	return &resolvedPromise{value: 0xdead}
}

func (c *fakeClient) GetBoundsCheckHandler() Promise {
	return &resolvedPromise{value: 0xbeef}
}
