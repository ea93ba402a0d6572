package jit

import (
	"fmt"

	"github.com/hakanerp/avian/internal/config"
	"go.uber.org/zap"
)

// Context is the public compiler façade (spec §6) and the record/compile
// driver (spec §2/§4.4/§9). One Context is single-use: Init, a sequence of
// record-phase calls, Compile, WriteTo, Dispose.
//
// Grounded on the teacher's compiler.go JITCompiler for the outer shape of
// a stateful compiler object exposing a Compile entry point; the hotspot
// cache and async-recompile machinery there has no analogue here (see
// DESIGN.md "Rejected teacher components").
type Context struct {
	arena  *Arena
	rf     *RegisterFile
	asm    Assembler
	client CompilerClient
	trace  TraceHandler
	cfg    config.Config
	log    *zap.SugaredLogger

	seq int

	logicalsByIP map[int]*LogicalInstruction
	logicalOrder []*LogicalInstruction
	current      *LogicalInstruction

	stackTop  *StackEntry
	stackSize int
	locals    []*LocalSlot

	paramCount int
	localCount int
	codeLen    int

	cb          *codeBase
	poolEntries []Promise
	savedTemps  map[int]bool

	disposed bool
}

// NewContext wires an Assembler and (optionally) a CompilerClient/
// TraceHandler/Config into a fresh Context. cfg's zero value is a valid
// default (no debug trace, no register-count override).
func NewContext(asm Assembler, client CompilerClient, trace TraceHandler, cfg config.Config) *Context {
	if trace == nil {
		trace = NoopTraceHandler{}
	}
	regCount := asm.RegisterCount()
	if cfg.RegisterCount > 0 {
		regCount = cfg.RegisterCount
	}
	rf := NewRegisterFile(regCount, asm.Base(), asm.Stack(), asm.Thread(), argRegs(asm), asm.ReturnLow(), asm.ReturnHigh())
	c := &Context{
		arena:        NewArena(),
		rf:           rf,
		asm:          asm,
		client:       client,
		trace:        trace,
		cfg:          cfg,
		log:          newLogger(cfg),
		logicalsByIP: make(map[int]*LogicalInstruction),
		cb:           &codeBase{},
	}
	rf.ctx = c
	asm.SetClient(c)
	return c
}

func argRegs(asm Assembler) []int {
	n := asm.ArgumentRegisterCount()
	regs := make([]int, n)
	for i := 0; i < n; i++ {
		regs[i] = asm.ArgumentRegister(i)
	}
	return regs
}

// Init establishes the frame shape: code length (for pool sizing),
// parameter count, and local-slot count (spec §6's init(codeLen,
// paramCount, localCount)).
func (c *Context) Init(codeLen, paramCount, localCount int) {
	c.codeLen = codeLen
	c.paramCount = paramCount
	c.localCount = localCount
	c.locals = make([]*LocalSlot, localCount)
}

// StartLogicalIp begins recording events for a new logical IP, inheriting
// the stack/locals snapshot from the immediately preceding IP.
func (c *Context) StartLogicalIp(ip int) *LogicalInstruction {
	li := c.logicalFor(ip)
	if c.current != nil && li.immediatePredecessor == nil && li != c.current {
		li.immediatePredecessor = c.current
		li.stackSnapshot = c.stackTop
		li.localsSnapshot = append([]*LocalSlot(nil), c.locals...)
	}
	c.logicalOrder = append(c.logicalOrder, li)
	c.current = li
	return li
}

// logicalFor returns the LogicalInstruction for ip, creating an as-yet-
// unstarted placeholder if a forward branch references it before the
// front end has recorded it — this keeps identity stable so an ipPromise
// taken now still points at the right node once Compile fills in
// machineOffset later.
func (c *Context) logicalFor(ip int) *LogicalInstruction {
	if li, ok := c.logicalsByIP[ip]; ok {
		return li
	}
	li := &LogicalInstruction{ip: ip}
	c.logicalsByIP[ip] = li
	return li
}

// VisitLogicalIp records that control can reach an already-started IP
// from the current one — a junction (spec §4.6). The predecessor's stack/
// locals snapshot *at this moment* is recorded; StackSync events are
// inserted for every junction once recording ends, in resolveJunctions.
func (c *Context) VisitLogicalIp(ip int) {
	target := c.logicalFor(ip)
	if target.firstEvent == nil && target.immediatePredecessor == nil {
		// Not started yet — nothing to join against; the eventual
		// StartLogicalIp(ip) call records the ordinary predecessor link.
		return
	}
	target.junctions = append(target.junctions, junction{
		predecessor: c.current,
		stack:       c.stackTop,
		locals:      append([]*LocalSlot(nil), c.locals...),
	})
}

// Mark is an alias for VisitLogicalIp used by branch targets (spec §6).
func (c *Context) Mark(ip int) { c.VisitLogicalIp(ip) }

// resolveJunctions appends a StackSyncEvent built from each junction's own
// snapshot to its predecessor's last event, per spec §4.6.
func (c *Context) resolveJunctions() {
	for _, li := range c.logicalOrder {
		for _, j := range li.junctions {
			if j.predecessor == nil {
				continue
			}
			c.emitStackSyncFor(j.predecessor, j.stack, j.locals)
		}
	}
}

// recordEvent assigns a sequence number, links the event onto the current
// logical IP's forward list, and snapshots stack/locals at creation time.
func (c *Context) recordEvent(e Event) {
	b := e.base()
	b.logical = c.current
	b.stackAtCreation = c.stackTop
	b.localsAtCreation = append([]*LocalSlot(nil), c.locals...)
	c.seq++
	b.sequence = c.seq
	if c.current.firstEvent == nil {
		c.current.firstEvent = e
	} else {
		c.current.lastEvent.base().next = e
	}
	c.current.lastEvent = e
}

// addRead pre-declares a future use of value at the given event, per spec
// §4.4.
func (c *Context) addRead(e Event, value *Value, size int, target Site) *Read {
	r := c.arena.newRead(size, value, target, e)
	r.sequence = e.base().sequence
	e.base().reads = append(e.base().reads, r)
	value.reads = append(value.reads, r)
	return r
}

// satisfies reports whether an existing site already matches a read's
// target hint closely enough to use directly, without an intervening
// move.
func satisfies(existing, target Site) bool {
	if target == nil || existing == nil {
		return existing != nil
	}
	switch t := target.(type) {
	case *VirtualSite:
		if rs, ok := existing.(*RegisterSite); ok {
			return t.RegisterMask&(1<<uint(rs.Low)) != 0
		}
		return false
	case *RegisterSite:
		if rs, ok := existing.(*RegisterSite); ok {
			return rs.Low == t.Low
		}
		return false
	case *MemorySite:
		if ms, ok := existing.(*MemorySite); ok {
			return ms.Base == t.Base && ms.Offset == t.Offset && ms.Index == t.Index && ms.Scale == t.Scale
		}
		return false
	case *ConstantSite:
		_, ok := existing.(*ConstantSite)
		return ok
	default:
		return false
	}
}

// resolveTarget materializes a concrete site for target, acquiring a
// register from the allocator if target is a placeholder mask.
func (c *Context) resolveTarget(value *Value, target Site) Site {
	switch t := target.(type) {
	case *VirtualSite:
		reg := c.rf.Acquire(t.RegisterMask, value, nil)
		site := NewRegisterSite(c.rf, reg, -1, t.RegisterMask)
		c.rf.Get(reg).site = site
		return site
	case *RegisterSite:
		reg := c.rf.Acquire(t.Mask, value, nil)
		site := NewRegisterSite(c.rf, reg, t.High, t.Mask)
		c.rf.Get(reg).site = site
		return site
	default:
		return t
	}
}

// freshRegisterSite acquires any register from mask for value, with no
// target-hint involved (used by event compile bodies that need a plain
// temporary result register).
func (c *Context) freshRegisterSite(value *Value, mask uint64) *RegisterSite {
	reg := c.rf.Acquire(mask, value, nil)
	site := NewRegisterSite(c.rf, reg, -1, mask)
	c.rf.Get(reg).site = site
	return site
}

func (c *Context) emitMove(src, dst Site, size int) {
	c.asm.Apply(Move, size, src.AsOperand(c), dst.AsOperand(c))
}

// transferSite reassigns site's ownership from src to dst after a
// destructive in-place operation (CombineEvent's second operand,
// TranslateEvent's operand) has overwritten what it holds. Just adding
// the site to dst's list isn't enough: if a register site is left in
// src's list too, src's next clearSites (once its last read finishes)
// releases the register out from under dst, and the register file's own
// Get(reg).value still names src, so a later steal() would act on the
// wrong owner.
func (c *Context) transferSite(src, dst *Value, site Site) {
	src.removeSite(site)
	dst.addSite(site)
	if rs, ok := site.(*RegisterSite); ok {
		c.rf.Get(rs.Low).value = dst
		if rs.High >= 0 {
			c.rf.Get(rs.High).value = dst
		}
	}
}

// readSource resolves one Read to a concrete Operand, inserting a move if
// the best currently-available site doesn't already satisfy the read's
// target hint (spec §4.4).
func (c *Context) readSource(r *Read) Operand {
	existing := pick(r.value.sites, r.target)
	if existing != nil && satisfies(existing, r.target) {
		r.value.source = existing
		return existing.AsOperand(c)
	}
	if r.target == nil {
		if existing == nil {
			abort(InvariantViolation, "readSource: value has no site and no target hint")
		}
		r.value.source = existing
		return existing.AsOperand(c)
	}
	target := c.resolveTarget(r.value, r.target)
	if existing != nil {
		c.emitMove(existing, target, r.size)
	}
	r.value.addSite(target)
	r.value.source = target
	return target.AsOperand(c)
}

// freezeSources/thawSources implement spec §4.4/§5's "all chosen sources
// are frozen for the duration of event.compile, thawed after" rule.
func (c *Context) freezeSources(reads []*Read) {
	for _, r := range reads {
		if r.value.source != nil {
			r.value.source.Freeze(c)
		}
	}
}

func (c *Context) thawSources(reads []*Read) {
	for _, r := range reads {
		if r.value.source != nil {
			r.value.source.Thaw(c)
		}
	}
}

func (c *Context) finishReads(reads []*Read) {
	for _, r := range reads {
		r.value.nextRead(c, r)
	}
}

// --- stack model (spec §4.3) ---

func (c *Context) Push(size int, value *Value) *StackEntry {
	e := c.arena.newStackEntry(value, size, c.stackSize, c.stackTop)
	c.stackSize += size
	c.stackTop = e
	pe := &PushEvent{}
	e.pushEvent = pe
	c.recordEvent(pe)
	pe.entry = e
	return e
}

// Pop removes count words from the top of the stack, emitting a PopEvent
// (spec §4.3's PopEvent.compile).
func (c *Context) Pop(count int, ignore bool) {
	pe := &PopEvent{count: count, ignore: ignore}
	c.recordEvent(pe)
	for i := 0; i < count && c.stackTop != nil; {
		i += c.stackTop.size
		c.stackSize -= c.stackTop.size
		c.stackTop = c.stackTop.next
	}
}

func (c *Context) Pushed() bool {
	return c.stackTop != nil && c.stackTop.pushed
}

func (c *Context) Popped() *Value {
	if c.stackTop == nil {
		return nil
	}
	return c.stackTop.value
}

func (c *Context) Peek(index int) *StackEntry {
	e := c.stackTop
	for i := 0; i < index && e != nil; i++ {
		e = e.next
	}
	return e
}

type stackState struct {
	top  *StackEntry
	size int
}

func (c *Context) SaveStack() stackState { return stackState{c.stackTop, c.stackSize} }

func (c *Context) ResetStack(s stackState) {
	c.stackTop = s.top
	c.stackSize = s.size
}

func (c *Context) PushState() stackState { return c.SaveStack() }
func (c *Context) PopState(s stackState) { c.ResetStack(s) }

// findStackEntry locates value on the virtual stack, for steal's
// "materialize via deferred push" path (spec §4.2).
func (c *Context) findStackEntry(v *Value) *StackEntry {
	for e := c.stackTop; e != nil; e = e.next {
		if e.value == v {
			return e
		}
	}
	return nil
}

// activatePush sets PushEvent.active for entry and every shallower entry
// back to the most recent already-pushed entry, per spec §4.3.
func (c *Context) activatePush(entry *StackEntry) {
	for e := entry; e != nil && !e.pushed; e = e.next {
		if e.pushEvent != nil {
			e.pushEvent.active = true
		}
	}
}

// compilePendingPushes runs pushNow immediately for any activated,
// not-yet-pushed prefix. Used by steal, CallEvent, and StackSyncEvent.
func (c *Context) compilePendingPushes() {
	prefix := contiguousUnpushedPrefix(c.stackTop)
	for _, e := range prefix {
		if e.pushEvent != nil && e.pushEvent.active && !e.pushed {
			c.pushNow(e)
		}
	}
}

// pushNow materializes one stack entry onto the machine stack (spec
// §4.3).
func (c *Context) pushNow(e *StackEntry) {
	var src Operand
	hasSite := len(e.value.sites) > 0
	if hasSite {
		site := pick(e.value.sites, nil)
		for _, s := range e.value.sites {
			if ms, ok := s.(*MemorySite); ok {
				e.value.removeSite(ms)
			}
		}
		src = site.AsOperand(c)
		c.asm.Apply(Push, e.size*wordSize, src, Operand{})
	} else {
		c.asm.Apply(Subtract, wordSize, Operand{Type: ConstantOperand, Promise: &resolvedPromise{int64(e.size * wordSize)}}, Operand{Type: RegisterOperand, Reg: c.rf.stack})
	}
	site := &MemorySite{rf: c.rf, Base: c.rf.stack, Offset: int64(e.index * wordSize)}
	e.value.addSite(site)
	e.pushSite = site
	e.pushed = true
}

func (c *Context) emitRegisterSwap(a, b int) {
	c.asm.Apply(Move, wordSize, Operand{Type: RegisterOperand, Reg: a}, Operand{Type: RegisterOperand, Reg: b})
}

// --- operand constructors (spec §6) ---

func (c *Context) Constant(size int, value int64) *Value {
	v := c.arena.newValue(size)
	v.addSite(&ConstantSite{Promise: &resolvedPromise{value}})
	return v
}

func (c *Context) PromiseConstant(size int, p Promise) *Value {
	v := c.arena.newValue(size)
	v.addSite(&ConstantSite{Promise: p})
	return v
}

func (c *Context) Address(size int, p Promise) *Value {
	v := c.arena.newValue(size)
	v.addSite(&AddressSite{Promise: p})
	return v
}

func (c *Context) Base() *Value {
	v := c.arena.newValue(wordSize)
	v.addSite(NewRegisterSite(c.rf, c.rf.base, -1, 1<<uint(c.rf.base)))
	return v
}

func (c *Context) Thread() *Value {
	v := c.arena.newValue(wordSize)
	v.addSite(NewRegisterSite(c.rf, c.rf.thread, -1, 1<<uint(c.rf.thread)))
	return v
}

func (c *Context) Stack() *Value {
	v := c.arena.newValue(wordSize)
	v.addSite(NewRegisterSite(c.rf, c.rf.stack, -1, 1<<uint(c.rf.stack)))
	return v
}

func (c *Context) Label() int {
	return c.seq
}

// --- driver (spec §2/§4.4) ---

// Compile walks every logical instruction in introduction order, resolves
// reads, dispatches compile, and returns the final code length.
func (c *Context) Compile() int {
	c.resolveJunctions()
	c.emitPrologue()
	for _, li := range c.logicalOrder {
		li.machineOffset = c.asm.Length()
		for e := li.firstEvent; e != nil; e = e.base().next {
			b := e.base()
			for _, r := range b.reads {
				c.readSource(r)
			}
			c.freezeSources(b.reads)
			e.Compile(c)
			c.thawSources(b.reads)
			c.finishReads(b.reads)
			for _, p := range b.promises {
				if cp, ok := p.(*codePromise); ok {
					cp.bind(int64(c.asm.Length()))
				}
			}
		}
	}
	return c.asm.Length()
}

// CompileRecover is a convenience wrapper returning a Go error instead of
// panicking, for hosts that prefer not to let an invariant violation
// unwind past their own boundary. The bare façade methods above and
// Compile itself still panic directly, per spec §7.
func (c *Context) CompileRecover() (length int, err error) {
	defer func() {
		if r := recover(); r != nil {
			if ie, ok := r.(*InvariantError); ok {
				err = ie
				return
			}
			err = fmt.Errorf("panic during compile: %v", r)
		}
	}()
	length = c.Compile()
	return
}

func (c *Context) PoolSize() int {
	return len(c.poolEntries) * wordSize
}

func (c *Context) emitPrologue() {
	frameSize := padded(c.localCount * wordSize)
	c.asm.EmitPrologue(frameSize)
}

func padded(n int) int {
	const align = 16
	return (n + align - 1) &^ (align - 1)
}

// WriteTo copies the finalized code into dst, placing every outstanding
// promise (spec §6). No constant-pool bytes are written: poolBase is only
// placed, just past the padded code, for poolPromise resolution. base/poolBase must be
// computed and placed before the assembler copies its buffer, since
// Assembler.WriteTo itself resolves any pending promise-backed patches
// (absolute call/jump targets, pool entries) by calling Promise.Value(),
// which aborts if queried before placement.
func (c *Context) WriteTo(dst []byte) {
	base := int64(uintptrOf(dst))
	poolBase := base + int64(padded(c.asm.Length()))
	c.cb.place(base, poolBase)
	c.asm.WriteTo(dst)
	c.log.Debugw("writeTo", "length", c.asm.Length(), "poolSize", c.PoolSize())
}

func (c *Context) Dispose() {
	if c.disposed {
		return
	}
	c.arena.Reset()
	c.disposed = true
}

// --- AssemblerClient (spec §6) ---

func (c *Context) AcquireTemporary(mask uint64) int {
	n := c.rf.PickRegister(mask)
	r := c.rf.Get(n)
	if r.value != nil {
		c.Save(n)
	}
	return n
}

func (c *Context) ReleaseTemporary(reg int) {
	if c.savedTemps[reg] {
		c.Restore(reg)
	}
}

func (c *Context) Save(reg int) {
	c.asm.Apply(Push, wordSize, Operand{Type: RegisterOperand, Reg: reg}, Operand{})
	if c.savedTemps == nil {
		c.savedTemps = make(map[int]bool)
	}
	c.savedTemps[reg] = true
}

func (c *Context) Restore(reg int) {
	c.asm.Apply(Pop, wordSize, Operand{}, Operand{Type: RegisterOperand, Reg: reg})
	c.savedTemps[reg] = false
}
