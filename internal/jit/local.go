package jit

// LocalSlot is a named variable at an offset from the base pointer (spec
// §3). A new binding for a local shadows the prior one via old, so a
// later ClobberLocalEvent can release every shadowed binding.
//
// Reuse is carried over from original_source/src/compiler.cpp's Local
// struct (SPEC_FULL.md §3 supplement). StoreLocal sets it when the new
// binding shadows an earlier one of the same size at that index. Nothing
// reads it: StoreLocal always builds a fresh memory site and always
// records the store (Open Question 2: the disabled aliasing optimization
// is not reinstated).
type LocalSlot struct {
	size  int
	index int
	value *Value
	site  Site
	old   *LocalSlot
	Reuse bool
}

func (l *LocalSlot) Value() *Value { return l.value }
func (l *LocalSlot) Site() Site    { return l.site }
