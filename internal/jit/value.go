package jit

// Value is the core abstraction: a virtual SSA-like result produced once
// and consumed by a totally ordered list of Reads (spec §3).
type Value struct {
	size   int
	sites  []Site
	reads  []*Read
	target Site // preferred target site hint, if any
	source Site // transient source chosen for the currently-compiling event
}

func (v *Value) Size() int { return v.size }

func (v *Value) Sites() []Site { return v.sites }

func (v *Value) addSite(s Site) {
	for _, existing := range v.sites {
		if existing == s {
			return
		}
	}
	v.sites = append(v.sites, s)
}

func (v *Value) removeSite(s Site) {
	for i, existing := range v.sites {
		if existing == s {
			v.sites = append(v.sites[:i], v.sites[i+1:]...)
			return
		}
	}
}

func (v *Value) replaceSite(old, new Site) {
	for i, existing := range v.sites {
		if existing == old {
			v.sites[i] = new
			return
		}
	}
}

// clearSites releases every current site. Called once reads are
// exhausted (spec invariant 4).
func (v *Value) clearSites(c *Context) {
	for _, s := range v.sites {
		s.Release(c, v)
	}
	v.sites = nil
}

// HasReads reports whether the value still has pending uses.
func (v *Value) HasReads() bool { return len(v.reads) > 0 }

// nextReadHint is the target hint of the head-of-queue read. Nothing in
// the package calls it (the skipMove peephole is not implemented).
func (v *Value) nextReadHint() Site {
	if len(v.reads) == 0 {
		return nil
	}
	return v.reads[0].target
}

// nextRead advances the value's read cursor past the given read, and
// releases every site once reads are exhausted (spec §3 invariant,
// invariant 4 of §8).
func (v *Value) nextRead(c *Context, r *Read) {
	if len(v.reads) == 0 || v.reads[0] != r {
		abort(InvariantViolation, "nextRead: read is not at head of value's queue")
	}
	v.reads = v.reads[1:]
	if len(v.reads) == 0 {
		v.clearSites(c)
	}
}

// Read is one future use of a value (spec §3).
type Read struct {
	size     int
	value    *Value
	target   Site
	event    Event
	sequence int
}
