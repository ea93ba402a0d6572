package jit

// SiteType tags the Site variants (spec §9's "tagged union over
// {Constant, Address, Register, Memory, Virtual, Push}").
type SiteType int

const (
	ConstantSiteType SiteType = iota
	AddressSiteType
	RegisterSiteType
	MemorySiteType
	VirtualSiteType
	PushSiteType
)

// Site is the full capability set every variant implements (spec §3/§9):
// type, copyCost, acquire, release, freeze, thaw, asOperand, readTarget.
type Site interface {
	Type() SiteType
	CopyCost(target Site) int
	Acquire(c *Context, value *Value)
	Release(c *Context, value *Value)
	Freeze(c *Context)
	Thaw(c *Context)
	AsOperand(c *Context) Operand
	// ReadTarget returns the site itself for every variant, VirtualSite
	// included; placeholders are resolved by Context.resolveTarget, not
	// here.
	ReadTarget(c *Context) Site
}

// pick scans sites and returns the one with the lowest CopyCost against
// target, ties broken by insertion order (spec §4.1).
func pick(sites []Site, target Site) Site {
	if len(sites) == 0 {
		return nil
	}
	best := sites[0]
	bestCost := best.CopyCost(target)
	for _, s := range sites[1:] {
		cost := s.CopyCost(target)
		if cost < bestCost {
			best = s
			bestCost = cost
		}
	}
	return best
}

// ConstantSite holds a late-bound integer promise. Zero cost to emit;
// copy cost 1 to any other site.
type ConstantSite struct {
	Promise Promise
}

func (s *ConstantSite) Type() SiteType            { return ConstantSiteType }
func (s *ConstantSite) CopyCost(Site) int         { return 1 }
func (s *ConstantSite) Acquire(*Context, *Value)  {}
func (s *ConstantSite) Release(*Context, *Value)  {}
func (s *ConstantSite) Freeze(*Context)           {}
func (s *ConstantSite) Thaw(*Context)             {}
func (s *ConstantSite) ReadTarget(c *Context) Site { return s }
func (s *ConstantSite) AsOperand(*Context) Operand {
	return Operand{Type: ConstantOperand, Promise: s.Promise}
}

// AddressSite holds a late-bound absolute address promise. Copy cost 3.
type AddressSite struct {
	Promise Promise
}

func (s *AddressSite) Type() SiteType            { return AddressSiteType }
func (s *AddressSite) CopyCost(Site) int         { return 3 }
func (s *AddressSite) Acquire(*Context, *Value)  {}
func (s *AddressSite) Release(*Context, *Value)  {}
func (s *AddressSite) Freeze(*Context)           {}
func (s *AddressSite) Thaw(*Context)             {}
func (s *AddressSite) ReadTarget(c *Context) Site { return s }
func (s *AddressSite) AsOperand(*Context) Operand {
	return Operand{Type: AddressOperand, Promise: s.Promise}
}

// RegisterSite owns one or two registers (low/high for double-word
// values). Copy cost 0 to itself or a compatible register site, else 2.
type RegisterSite struct {
	rf        *RegisterFile
	Low, High int // High is -1 for single-word values
	Mask      uint64
}

func NewRegisterSite(rf *RegisterFile, low, high int, mask uint64) *RegisterSite {
	return &RegisterSite{rf: rf, Low: low, High: high, Mask: mask}
}

func (s *RegisterSite) Type() SiteType { return RegisterSiteType }

func (s *RegisterSite) CopyCost(target Site) int {
	if rt, ok := target.(*RegisterSite); ok {
		if rt == s {
			return 0
		}
		if rt.Mask&(1<<uint(s.Low)) != 0 {
			return 0
		}
	}
	return 2
}

func (s *RegisterSite) Acquire(*Context, *Value) {}
func (s *RegisterSite) Release(c *Context, v *Value) {
	s.rf.release(s.rf.Get(s.Low))
	if s.High >= 0 {
		s.rf.release(s.rf.Get(s.High))
	}
}
func (s *RegisterSite) Freeze(*Context) {
	s.rf.Freeze(s.Low)
	if s.High >= 0 {
		s.rf.Freeze(s.High)
	}
}
func (s *RegisterSite) Thaw(*Context) {
	s.rf.Thaw(s.Low)
	if s.High >= 0 {
		s.rf.Thaw(s.High)
	}
}
func (s *RegisterSite) ReadTarget(c *Context) Site { return s }
func (s *RegisterSite) AsOperand(*Context) Operand {
	return Operand{Type: RegisterOperand, Reg: s.Low, RegHigh: s.High}
}

// MemorySite is {base-reg, offset, index-reg?, scale}. Acquire/release
// increment/decrement refcounts on base and index registers so they are
// not reclaimed out from under the memory operand. Copy cost 0 to an
// identical memory site, else 4.
type MemorySite struct {
	rf             *RegisterFile
	Base           int
	Offset         int64
	Index          int // -1 if none
	Scale          int
}

func NewMemorySite(rf *RegisterFile, base int, offset int64, index, scale int) *MemorySite {
	return &MemorySite{rf: rf, Base: base, Offset: offset, Index: index, Scale: scale}
}

func (s *MemorySite) Type() SiteType { return MemorySiteType }

func (s *MemorySite) CopyCost(target Site) int {
	if mt, ok := target.(*MemorySite); ok {
		if mt.Base == s.Base && mt.Offset == s.Offset && mt.Index == s.Index && mt.Scale == s.Scale {
			return 0
		}
	}
	return 4
}

func (s *MemorySite) Acquire(*Context, *Value) {
	s.rf.Get(s.Base).refCount++
	if s.Index >= 0 {
		s.rf.Get(s.Index).refCount++
	}
}
func (s *MemorySite) Release(*Context, *Value) {
	if s.rf.Get(s.Base).refCount > 0 {
		s.rf.Get(s.Base).refCount--
	}
	if s.Index >= 0 && s.rf.Get(s.Index).refCount > 0 {
		s.rf.Get(s.Index).refCount--
	}
}
func (s *MemorySite) Freeze(*Context) {
	s.rf.Freeze(s.Base)
	if s.Index >= 0 {
		s.rf.Freeze(s.Index)
	}
}
func (s *MemorySite) Thaw(*Context) {
	s.rf.Thaw(s.Base)
	if s.Index >= 0 {
		s.rf.Thaw(s.Index)
	}
}
func (s *MemorySite) ReadTarget(c *Context) Site { return s }
func (s *MemorySite) AsOperand(*Context) Operand {
	return Operand{Type: MemoryOperand, Base: s.Base, Index: s.Index, Scale: s.Scale, Offset: s.Offset}
}

// VirtualSite is a record-phase placeholder describing a desired
// (type-mask, register-mask); it resolves at compile time to a concrete
// site and is never itself emitted.
type VirtualSite struct {
	TypeMask     uint64
	RegisterMask uint64
}

func (s *VirtualSite) Type() SiteType           { return VirtualSiteType }
func (s *VirtualSite) CopyCost(Site) int        { return 1 << 30 }
func (s *VirtualSite) Acquire(*Context, *Value) {}
func (s *VirtualSite) Release(*Context, *Value) {}
func (s *VirtualSite) Freeze(*Context)          {}
func (s *VirtualSite) Thaw(*Context)            {}
func (s *VirtualSite) AsOperand(*Context) Operand {
	abort(InvariantViolation, "VirtualSite must resolve to a concrete site before emit")
	return Operand{}
}

// ReadTarget returns the VirtualSite unchanged; RegisterMask is fixed when
// the site is built and is not recomputed at query time. readSource (via
// resolveTarget) acquires a register under RegisterMask.
func (s *VirtualSite) ReadTarget(c *Context) Site { return s }

// PushSite is a record-phase placeholder for a pending push: the value's
// eventual location is "wherever pushNow decides to materialize it."
type PushSite struct {
	Entry *StackEntry
}

func (s *PushSite) Type() SiteType           { return PushSiteType }
func (s *PushSite) CopyCost(Site) int        { return 1 << 30 }
func (s *PushSite) Acquire(*Context, *Value) {}
func (s *PushSite) Release(*Context, *Value) {}
func (s *PushSite) Freeze(*Context)          {}
func (s *PushSite) Thaw(*Context)            {}
func (s *PushSite) ReadTarget(c *Context) Site { return s }
func (s *PushSite) AsOperand(*Context) Operand {
	abort(InvariantViolation, "PushSite must resolve to a concrete memory site before emit")
	return Operand{}
}
