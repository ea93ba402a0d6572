//go:build !unix

package jit

import "errors"

// CodeCache is a stub on platforms without an mmap-style executable
// memory API. The teacher carries a parallel mem_windows.go rather than
// abstracting the two; we collapse that to a single stub since no
// SPEC_FULL.md scenario exercises non-unix installation.
type CodeCache struct{}

func NewCodeCache(bufferSize int) *CodeCache { return &CodeCache{} }

var errUnsupportedPlatform = errors.New("jit: executable memory is not supported on this platform")

func (cc *CodeCache) Install(code []byte) (uintptr, error) {
	return 0, errUnsupportedPlatform
}

func (cc *CodeCache) Free() error { return nil }

func (cc *CodeCache) Stats() (totalSize, usedSize int) { return 0, 0 }
