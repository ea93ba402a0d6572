package jit

import "testing"

type noopClient struct{}

func (noopClient) AcquireTemporary(mask uint64) int { return 0 }
func (noopClient) ReleaseTemporary(reg int)         {}
func (noopClient) Save(reg int)                     {}
func (noopClient) Restore(reg int)                  {}

func regOperand(r X86Reg) Operand { return Operand{Type: RegisterOperand, Reg: int(r)} }

func TestX86MovRegReg(t *testing.T) {
	a := NewX86Assembler()
	a.Apply(Move, 8, regOperand(RAX), regOperand(RCX))
	want := []byte{0x48, 0x89, 0xC1}
	if string(a.code) != string(want) {
		t.Fatalf("mov rcx,rax: got % x, want % x", a.code, want)
	}
}

func TestX86AddRegReg(t *testing.T) {
	a := NewX86Assembler()
	a.Apply(Add, 8, regOperand(RAX), regOperand(RCX))
	want := []byte{0x48, 0x01, 0xC1}
	if string(a.code) != string(want) {
		t.Fatalf("add rcx,rax: got % x, want % x", a.code, want)
	}
}

func TestX86PushReg(t *testing.T) {
	a := NewX86Assembler()
	a.Apply(Push, 8, regOperand(RCX), Operand{})
	want := []byte{0x51}
	if string(a.code) != string(want) {
		t.Fatalf("push rcx: got % x, want % x", a.code, want)
	}
}

func TestX86PushExtendedReg(t *testing.T) {
	a := NewX86Assembler()
	a.Apply(Push, 8, regOperand(R9), Operand{})
	want := []byte{0x41, 0x51}
	if string(a.code) != string(want) {
		t.Fatalf("push r9: got % x, want % x", a.code, want)
	}
}

func TestX86PrologueNoLocals(t *testing.T) {
	a := NewX86Assembler()
	a.EmitPrologue(0)
	want := []byte{0x55, 0x48, 0x89, 0xE5}
	if string(a.code) != string(want) {
		t.Fatalf("prologue(0): got % x, want % x", a.code, want)
	}
}

func TestX86PrologueWithFrame(t *testing.T) {
	a := NewX86Assembler()
	a.EmitPrologue(32)
	want := []byte{0x55, 0x48, 0x89, 0xE5, 0x48, 0x81, 0xEC, 0x20, 0x00, 0x00, 0x00}
	if string(a.code) != string(want) {
		t.Fatalf("prologue(32): got % x, want % x", a.code, want)
	}
}

func TestX86Epilogue(t *testing.T) {
	a := NewX86Assembler()
	a.EmitEpilogue()
	want := []byte{0x48, 0x89, 0xEC, 0x5D, 0xC3}
	if string(a.code) != string(want) {
		t.Fatalf("epilogue: got % x, want % x", a.code, want)
	}
}

func TestX86PlanDivideAlwaysThunks(t *testing.T) {
	a := NewX86Assembler()
	if p := a.Plan(Divide, 8); !p.Thunk {
		t.Fatal("Divide must always plan as a thunk")
	}
	if p := a.Plan(Remainder, 8); !p.Thunk {
		t.Fatal("Remainder must always plan as a thunk")
	}
}

func TestX86PlanShiftPinsCountToRCX(t *testing.T) {
	a := NewX86Assembler()
	p := a.Plan(ShiftLeft, 4)
	if p.SrcRegMask != 1<<uint(RCX) {
		t.Fatalf("shift src mask must be RCX only, got %#x", p.SrcRegMask)
	}
	if p.DstRegMask&(1<<uint(RCX)) != 0 {
		t.Fatal("shift dst mask must exclude RCX")
	}
}

func TestX86CompareRegAgainstResolvedConstant(t *testing.T) {
	a := NewX86Assembler()
	a.SetClient(noopClient{})
	a.Apply(Compare, 8, regOperand(RAX), Operand{Type: ConstantOperand, Promise: &resolvedPromise{value: 5}})
	// rex.w, 0x83 /7 (cmp r/m64, imm8), modrm(3,7,rax=0), imm8=5
	want := []byte{0x48, 0x83, 0xF8, 0x05}
	if string(a.code) != string(want) {
		t.Fatalf("cmp rax,5: got % x, want % x", a.code, want)
	}
}

func TestX86CompareRegAgainstLargeConstantMaterializesTemp(t *testing.T) {
	a := NewX86Assembler()
	a.SetClient(noopClient{}) // AcquireTemporary always returns rax (0)
	a.Apply(Compare, 8, regOperand(RCX), Operand{Type: ConstantOperand, Promise: &resolvedPromise{value: 0x123456789}})
	if len(a.code) == 0 {
		t.Fatal("expected non-empty encoding for a wide-constant compare")
	}
	// movRegImm64 rax, <imm> followed by cmp rcx,rax; verify the movabs
	// opcode (0xB8 + rax=0 => 0xB8) appears right after the REX.W prefix.
	if a.code[0] != 0x48 || a.code[1] != 0xB8 {
		t.Fatalf("expected a movabs rax,imm64 to materialize the wide constant, got % x", a.code[:2])
	}
}

func TestX86CompareRegAgainstMemory(t *testing.T) {
	a := NewX86Assembler()
	a.Apply(Compare, 8, regOperand(RAX), Operand{Type: MemoryOperand, Base: int(RBX), Index: -1, Offset: 16})
	// rex.w, 0x3B, modrm(mod=1,reg=rax=0,rm=rbx=3), disp8=16
	want := []byte{0x48, 0x3B, 0x43, 0x10}
	if string(a.code) != string(want) {
		t.Fatalf("cmp rax,[rbx+16]: got % x, want % x", a.code, want)
	}
}

// TestX86WriteToResolvesRel32Patch mirrors how Context.WriteTo actually
// places a codeBase: base is derived from dst's own address, and a
// codePromise's target offset (20) is relative to that same base — so the
// resolved rel32 must equal target_offset - instrEnd regardless of where
// dst happens to live in memory.
func TestX86WriteToResolvesRel32Patch(t *testing.T) {
	a := NewX86Assembler()
	cb := &codeBase{}
	target := &codePromise{cb: cb, offset: 20, bound: true}
	a.jmpRel32(target)

	dst := make([]byte, a.Length())
	base := uintptrOf(dst)
	cb.place(base, base+int64(a.Length()))
	a.WriteTo(dst)

	if dst[0] != 0xE9 {
		t.Fatalf("expected jmp rel32 opcode, got %#x", dst[0])
	}
	gotRel := int32(uint32(dst[1]) | uint32(dst[2])<<8 | uint32(dst[3])<<16 | uint32(dst[4])<<24)
	wantRel := int32(20 - 5) // target offset - instruction-end offset; base cancels
	if gotRel != wantRel {
		t.Fatalf("rel32 patch: got %d, want %d", gotRel, wantRel)
	}
}

// TestX86WriteToResolvesAbs64Patch checks a poolPromise's absolute value —
// poolBase + key*wordSize — lands byte-for-byte in the movabs immediate.
func TestX86WriteToResolvesAbs64Patch(t *testing.T) {
	a := NewX86Assembler()
	cb := &codeBase{}
	p := &poolPromise{cb: cb, key: 3}
	a.movRegImm64(RAX, p)

	dst := make([]byte, a.Length())
	base := uintptrOf(dst)
	poolBase := base + 1000
	cb.place(base, poolBase)
	a.WriteTo(dst)

	got := uint64(dst[2]) | uint64(dst[3])<<8 | uint64(dst[4])<<16 | uint64(dst[5])<<24 |
		uint64(dst[6])<<32 | uint64(dst[7])<<40 | uint64(dst[8])<<48 | uint64(dst[9])<<56
	want := uint64(poolBase + 3*wordSize)
	if got != want {
		t.Fatalf("abs64 patch: got %#x, want %#x", got, want)
	}
}
