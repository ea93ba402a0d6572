package jit

// Event is the recorded-operation abstraction (spec §3/§4.4): a record
// phase (already run by the time it exists — reads and target hints are
// attached during construction) and a compile phase dispatched here.
//
// Grounded on the teacher's builder.go three-pass shape (identifyBlocks /
// createBlocks / convertInstructions: mark first, build nodes, then fill
// them in) for the general "record now, resolve later" idea; no teacher
// file has a per-node compile closure the way spec.md's Event does —
// nova's IR instructions are flat opcode+operand tuples executed by a
// single codegen pass, not reified do-it-yourself-later objects.
type Event interface {
	base() *EventBase
	Compile(c *Context)
}

// EventBase is embedded by every concrete event kind.
type EventBase struct {
	next             Event
	logical          *LogicalInstruction
	stackAtCreation  *StackEntry
	localsAtCreation []*LocalSlot
	reads            []*Read
	promises         []Promise
	sequence         int
	stackReset       bool
}

func (b *EventBase) base() *EventBase { return b }

func (b *EventBase) Sequence() int    { return b.sequence }
func (b *EventBase) Reads() []*Read   { return b.reads }

// LogicalInstruction is one per front-end instruction address (spec §3).
type LogicalInstruction struct {
	ip                   int
	firstEvent           Event
	lastEvent            Event
	immediatePredecessor *LogicalInstruction
	stackSnapshot        *StackEntry
	localsSnapshot       []*LocalSlot
	machineOffset        int
	stackSaved           bool

	// junctions records predecessors discovered after the first visit,
	// each with the stack/locals snapshot as they stood at that
	// predecessor (spec §4.6).
	junctions []junction
}

type junction struct {
	predecessor *LogicalInstruction
	stack       *StackEntry
	locals      []*LocalSlot
}
