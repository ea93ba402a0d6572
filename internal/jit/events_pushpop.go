package jit

// PushEvent defers materializing a stack entry until something actually
// forces it to memory — a steal, a call, a branch's StackSyncEvent, or an
// explicit activation. active is flipped by whichever of those triggers
// fires first; compile is then a no-op if pushNow already ran it eagerly
// via compilePendingPushes (spec §4.3).
type PushEvent struct {
	EventBase
	active bool
	entry  *StackEntry
}

func (e *PushEvent) Compile(c *Context) {
	if !e.active || e.entry.pushed {
		return
	}
	c.pushNow(e.entry)
}

// PopEvent discards count words off the top of the stack. For each entry
// that was actually pushed, its push-site is dropped; if the value still
// has live reads and the caller did not pass ignore, the value is popped
// into its preferred target register, with any leading run of dead or
// ignored words folded into one preceding stack-pointer add. Entries never
// materialized onto the machine stack need no instruction at all — their
// value already lives wherever it was left (spec §4.3).
type PopEvent struct {
	EventBase
	count  int
	ignore bool
}

func (e *PopEvent) Compile(c *Context) {
	entries := e.poppedEntries()
	ignoredWords := 0
	flushIgnored := func() {
		if ignoredWords == 0 {
			return
		}
		c.asm.Apply(Add, wordSize,
			Operand{Type: ConstantOperand, Promise: &resolvedPromise{int64(ignoredWords * wordSize)}},
			Operand{Type: RegisterOperand, Reg: c.rf.stack})
		ignoredWords = 0
	}
	for _, entry := range entries {
		if !entry.pushed {
			continue
		}
		if entry.pushSite != nil {
			entry.value.removeSite(entry.pushSite)
			entry.pushSite.Release(c, entry.value)
			entry.pushSite = nil
		}
		if entry.value.HasReads() && !e.ignore {
			flushIgnored()
			target := entry.value.target
			if target == nil {
				target = &VirtualSite{RegisterMask: c.rf.GeneralMask()}
			}
			dst := c.resolveTarget(entry.value, target)
			c.asm.Apply(Pop, entry.size*wordSize, Operand{}, dst.AsOperand(c))
			entry.value.addSite(dst)
		} else {
			ignoredWords += entry.size
		}
	}
	flushIgnored()
}

// poppedEntries recovers, from the stack/locals snapshot taken when this
// event was recorded, the entries this Pop removed — recordEvent snapshots
// stackAtCreation before Context.Pop itself advances c.stackTop.
func (e *PopEvent) poppedEntries() []*StackEntry {
	var entries []*StackEntry
	remaining := e.count
	for entry := e.stackAtCreation; entry != nil && remaining > 0; entry = entry.next {
		entries = append(entries, entry)
		remaining -= entry.size
	}
	return entries
}
