package jit

import "unsafe"

// uintptrOf returns the runtime address backing a byte slice, used to
// place promises once WriteTo has copied the final buffer (spec §6's
// "Resolve only after the machine-code buffer is assigned").
func uintptrOf(b []byte) int64 {
	if len(b) == 0 {
		return 0
	}
	return int64(uintptr(unsafe.Pointer(&b[0])))
}
