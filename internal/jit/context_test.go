package jit

import (
	"strings"
	"testing"

	"github.com/hakanerp/avian/internal/config"
)

func countOps(ops []string, prefix string) int {
	n := 0
	for _, op := range ops {
		if strings.HasPrefix(op, prefix) {
			n++
		}
	}
	return n
}

func firstIndex(ops []string, prefix string) int {
	for i, op := range ops {
		if strings.HasPrefix(op, prefix) {
			return i
		}
	}
	return -1
}

func lastIndex(ops []string, prefix string) int {
	idx := -1
	for i, op := range ops {
		if strings.HasPrefix(op, prefix) {
			idx = i
		}
	}
	return idx
}

// TestS3CallWithStackedArguments matches spec S3: calling a function with
// more arguments than the target has argument registers pushes the extras
// deepest-first (right to left) before the call, then discards them off the
// stack after it returns.
func TestS3CallWithStackedArguments(t *testing.T) {
	asm := newFakeAssembler(0)
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{AlignCallStack: true})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	fn := ctx.Constant(wordSize, 0x1000)
	a1 := ctx.Constant(4, 1)
	a2 := ctx.Constant(4, 2)
	result := ctx.Call(fn, 4, []*Value{a1, a2}, false)
	ctx.Return(4, result)
	ctx.Compile()

	pushes := 0
	var pushOrder []string
	for _, op := range asm.ops {
		if strings.HasPrefix(op, "Push") {
			pushes++
			pushOrder = append(pushOrder, op)
		}
	}
	if pushes != 2 {
		t.Fatalf("expected 2 pushes, got %d: %v", pushes, asm.ops)
	}
	if !strings.Contains(pushOrder[0], "const(2)") {
		t.Fatalf("expected first push to be const(2) (deepest argument), got %q", pushOrder[0])
	}
	if !strings.Contains(pushOrder[1], "const(1)") {
		t.Fatalf("expected second push to be const(1), got %q", pushOrder[1])
	}

	callIdx := firstIndex(asm.ops, "Call")
	lastPushIdx := lastIndex(asm.ops, "Push")
	if callIdx < 0 || callIdx < lastPushIdx {
		t.Fatalf("expected Call after both pushes: %v", asm.ops)
	}

	addIdx := firstIndex(asm.ops, "Add")
	if addIdx < 0 || addIdx < callIdx {
		t.Fatalf("expected a stack-discard Add after Call: %v", asm.ops)
	}
	if !strings.Contains(asm.ops[addIdx], "const(16)") {
		t.Fatalf("expected discard of 16 bytes (2 words, no padding), got %q", asm.ops[addIdx])
	}
}

// TestS3CallOddArgCountPadsStack checks the AlignCallStack padding path: an
// odd count of stacked arguments gets one extra pushed word so rsp stays
// 16-byte aligned at the call, and the post-call discard accounts for it.
func TestS3CallOddArgCountPadsStack(t *testing.T) {
	asm := newFakeAssembler(0)
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{AlignCallStack: true})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	fn := ctx.Constant(wordSize, 0x1000)
	a1 := ctx.Constant(4, 1)
	a2 := ctx.Constant(4, 2)
	a3 := ctx.Constant(4, 3)
	result := ctx.Call(fn, 4, []*Value{a1, a2, a3}, false)
	ctx.Return(4, result)
	ctx.Compile()

	if got := countOps(asm.ops, "Push"); got != 4 {
		t.Fatalf("expected 4 pushes (1 padding + 3 args), got %d: %v", got, asm.ops)
	}
	addIdx := firstIndex(asm.ops, "Add")
	if addIdx < 0 || !strings.Contains(asm.ops[addIdx], "const(32)") {
		t.Fatalf("expected discard of 32 bytes (3 args + 1 pad word), got %v", asm.ops)
	}
}

// TestCallProtectsLiveStackValueFromArgumentRegisters guards spec.md's
// "All live stack values are also constrained to non-argument registers":
// a value that was already sitting in an argument register before the
// call — and isn't one of this call's own arguments — must be moved out
// before that register gets clobbered with an argument write.
func TestCallProtectsLiveStackValueFromArgumentRegisters(t *testing.T) {
	asm := newFakeAssembler(2) // registers 0 and 1 are argument registers
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	stackVal := ctx.arena.newValue(wordSize)
	site := NewRegisterSite(ctx.rf, 0, -1, 1<<0)
	stackVal.addSite(site)
	ctx.rf.Get(0).value = stackVal
	ctx.rf.Get(0).site = site
	ctx.stackTop = &StackEntry{value: stackVal, size: 1}

	fn := ctx.Constant(wordSize, 0x1000)
	arg := ctx.Constant(wordSize, 7)
	ctx.Call(fn, 0, []*Value{arg}, false)
	ctx.Return(0, nil)
	ctx.Compile()

	for _, s := range stackVal.Sites() {
		if rs, ok := s.(*RegisterSite); ok && rs.Low == 0 {
			t.Fatalf("live stack value was left in argument register 0 the call needed: %v", asm.ops)
		}
	}

	saveIdx, argIdx := -1, -1
	for i, op := range asm.ops {
		if saveIdx < 0 && strings.HasPrefix(op, "Move/") && strings.Contains(op, " r0 -> r") {
			saveIdx = i
		}
		if argIdx < 0 && strings.HasPrefix(op, "Move/") && strings.HasSuffix(op, "const(7) -> r0") {
			argIdx = i
		}
	}
	if saveIdx < 0 || argIdx < 0 || saveIdx > argIdx {
		t.Fatalf("expected the live stack value to be moved out of r0 before the argument write: %v", asm.ops)
	}
}

// TestClobberLocalMaterializesRegisterOnlyLocal exercises
// ClobberLocalEvent.Compile directly: it records no reads of its own, so
// it must derive its move's source from the local value's current sites
// rather than a stale (or never-set) Value.source. No other test in this
// package records a call or branch while locals exist, so this is the only
// coverage of the event at all.
func TestClobberLocalMaterializesRegisterOnlyLocal(t *testing.T) {
	asm := newFakeAssembler(0)
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{})
	ctx.Init(1, 0, 1)
	ctx.StartLogicalIp(0)

	value := ctx.arena.newValue(wordSize)
	regSite := NewRegisterSite(ctx.rf, 3, -1, 1<<3)
	value.addSite(regSite)
	ctx.rf.Get(3).value = value
	ctx.rf.Get(3).site = regSite

	memSite := &MemorySite{rf: ctx.rf, Base: ctx.rf.base, Offset: localOffset(0), Index: -1}
	slot := &LocalSlot{size: wordSize, index: 0, value: value, site: memSite}
	ctx.locals = []*LocalSlot{slot}

	ctx.clobberLocals()
	ctx.Return(0, nil)
	ctx.Compile()

	moveIdx := firstIndex(asm.ops, "Move")
	if moveIdx < 0 {
		t.Fatalf("expected ClobberLocalEvent to flush the register-only local with a Move: %v", asm.ops)
	}
	if !strings.Contains(asm.ops[moveIdx], "r3") {
		t.Fatalf("expected the move's source to name register 3, got %q", asm.ops[moveIdx])
	}
}

// TestS4BranchMaterializesLiveStack matches spec S4: a value still on the
// deferred-push stack when a branch is emitted must be materialized (a real
// Push instruction) before the branch instruction itself, since the
// join-point on the far side can only assume it's in memory.
func TestS4BranchMaterializesLiveStack(t *testing.T) {
	asm := newFakeAssembler(2)
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	v := ctx.Constant(wordSize, 42)
	ctx.Push(1, v)

	a := ctx.Constant(wordSize, 1)
	b := ctx.Constant(wordSize, 0)
	ctx.Cmp(wordSize, a, b)
	ctx.Jne(10)

	ctx.StartLogicalIp(10)
	ctx.Return(wordSize, nil)
	ctx.Compile()

	pushIdx := firstIndex(asm.ops, "Push")
	branchIdx := firstIndex(asm.ops, "JumpIfNotEqual")
	if pushIdx < 0 {
		t.Fatalf("expected the deferred stack entry to materialize as a Push: %v", asm.ops)
	}
	if branchIdx < 0 {
		t.Fatalf("expected a JumpIfNotEqual branch instruction: %v", asm.ops)
	}
	if pushIdx > branchIdx {
		t.Fatalf("expected Push before branch, got push@%d branch@%d: %v", pushIdx, branchIdx, asm.ops)
	}
}

// TestS5BoundsCheckStructure matches spec S5: a compile-time-constant index
// skips the negativity check but always emits the length load, the
// index-vs-length compare, the forward jg to the handler call, and the jump
// that skips over it on the success path.
func TestS5BoundsCheckStructure(t *testing.T) {
	asm := newFakeAssembler(2)
	client := &fakeClient{}
	ctx := NewContext(asm, client, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	obj := ctx.Thread()
	idx := ctx.Constant(wordSize, 3)
	ctx.CheckBounds(obj, idx, 8)
	ctx.Return(0, nil)
	ctx.Compile()

	if got := countOps(asm.ops, "JumpIfLess"); got != 0 {
		t.Fatalf("constant index must skip the negativity check, found %d JumpIfLess: %v", got, asm.ops)
	}
	moveIdx := firstIndex(asm.ops, "Move")
	cmpIdx := firstIndex(asm.ops, "Compare")
	jgIdx := firstIndex(asm.ops, "JumpIfGreater")
	jmpIdx := firstIndex(asm.ops, "Jump/")
	callIdx := firstIndex(asm.ops, "Call")
	if moveIdx < 0 || cmpIdx < moveIdx || jgIdx < cmpIdx || jmpIdx < jgIdx || callIdx < jmpIdx {
		t.Fatalf("expected length-load, compare, jg, jmp-skip, call in order: %v", asm.ops)
	}
}

// TestS5BoundsCheckNonConstIndexChecksNegativity checks the general (non-
// literal) index path still emits the negativity guard ahead of the
// upper-bound comparison.
func TestS5BoundsCheckNonConstIndexChecksNegativity(t *testing.T) {
	asm := newFakeAssembler(2)
	client := &fakeClient{}
	ctx := NewContext(asm, client, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	obj := ctx.Thread()
	idx := ctx.Load(wordSize, ctx.Thread())
	ctx.CheckBounds(obj, idx, 8)
	ctx.Return(0, nil)
	ctx.Compile()

	jlIdx := firstIndex(asm.ops, "JumpIfLess")
	jgIdx := firstIndex(asm.ops, "JumpIfGreater")
	if jlIdx < 0 {
		t.Fatalf("expected a negativity check for a non-constant index: %v", asm.ops)
	}
	if jgIdx < 0 || jlIdx > jgIdx {
		t.Fatalf("expected negativity check before the upper-bound check: %v", asm.ops)
	}
}

// TestS6DivideAlwaysThunked matches spec S6: divide/remainder always
// lowers to a helper call (fakeAssembler.Plan reports Thunk for both,
// matching the real X86Assembler's Plan) rather than emitting an inline
// instruction, with both operands passed through the ordinary call path.
func TestS6DivideAlwaysThunked(t *testing.T) {
	asm := newFakeAssembler(0)
	client := &fakeClient{}
	ctx := NewContext(asm, client, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	a := ctx.Constant(wordSize, 10)
	b := ctx.Constant(wordSize, 3)
	result := ctx.Div(wordSize, a, b)
	ctx.Return(wordSize, result)
	ctx.Compile()

	if len(client.thunkRequests) != 1 {
		t.Fatalf("expected exactly one thunk request, got %d", len(client.thunkRequests))
	}
	if client.thunkRequests[0] != [2]int{int(Divide), wordSize} {
		t.Fatalf("expected a Divide thunk request, got %v", client.thunkRequests[0])
	}
	if got := countOps(asm.ops, "Divide"); got != 0 {
		t.Fatalf("expected no inline Divide instruction, found %d: %v", got, asm.ops)
	}
	if got := countOps(asm.ops, "Call"); got != 1 {
		t.Fatalf("expected the thunk to be reached via one Call, got %d: %v", got, asm.ops)
	}
}

// TestCompareAgainstConstantResolvesBothOperands checks that Cmp's second
// operand may be a bare constant rather than a register: the compile must
// still succeed and the Compare must name the constant as its second
// operand.
func TestCompareAgainstConstantResolvesBothOperands(t *testing.T) {
	asm := newFakeAssembler(2)
	ctx := NewContext(asm, &fakeClient{}, nil, config.Config{})
	ctx.Init(1, 0, 0)
	ctx.StartLogicalIp(0)

	a := ctx.Load(wordSize, ctx.Thread())
	b := ctx.Constant(wordSize, 0)
	ctx.Cmp(wordSize, a, b)
	ctx.Jne(5)
	ctx.StartLogicalIp(5)
	ctx.Return(0, nil)
	ctx.Compile()

	cmpIdx := firstIndex(asm.ops, "Compare")
	if cmpIdx < 0 {
		t.Fatalf("expected a Compare instruction: %v", asm.ops)
	}
	if !strings.Contains(asm.ops[cmpIdx], "const(0)") {
		t.Fatalf("expected the compare's second operand to resolve to the constant, got %q", asm.ops[cmpIdx])
	}
}
