//go:build unix

package jit

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// CodeCache manages executable memory arenas for compiled functions,
// adapted from the teacher's mem_linux.go CodeCache/ExecutableBuffer pair.
// Code is written into RW pages and switched to RX before anything runs
// on it (W^X, per memory.go's own security note) rather than mapped
// RWX up front.
type CodeCache struct {
	buffers    []*executableBuffer
	current    *executableBuffer
	bufferSize int
}

// NewCodeCache creates a cache whose arenas are bufferSize bytes each,
// growing to fit any single allocation larger than that.
func NewCodeCache(bufferSize int) *CodeCache {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &CodeCache{bufferSize: bufferSize}
}

const defaultBufferSize = 64 * 1024

// Install writes code into the cache, finalizes it executable, and
// returns its entry address. The caller (Context.WriteTo's consumer)
// resolves promises against this address before installing.
func (cc *CodeCache) Install(code []byte) (uintptr, error) {
	if cc.current == nil || cc.current.available() < len(code) {
		allocSize := cc.bufferSize
		if len(code) > allocSize {
			allocSize = len(code) + unix.Getpagesize()
		}
		buf, err := newExecutableBuffer(allocSize)
		if err != nil {
			return 0, err
		}
		cc.buffers = append(cc.buffers, buf)
		cc.current = buf
	}
	return cc.current.write(code)
}

// Free releases every arena the cache holds.
func (cc *CodeCache) Free() error {
	var lastErr error
	for _, buf := range cc.buffers {
		if err := buf.free(); err != nil {
			lastErr = err
		}
	}
	cc.buffers = nil
	cc.current = nil
	return lastErr
}

// Stats reports total and used bytes across every arena.
func (cc *CodeCache) Stats() (totalSize, usedSize int) {
	for _, buf := range cc.buffers {
		totalSize += buf.size
		usedSize += buf.used
	}
	return
}

// executableBuffer is one mmap'd arena. write() appends and mprotects
// the whole arena RX; a second write to an already-executable arena
// mprotects back to RW first, matching the W^X toggle memory.go calls
// out but never actually implements.
type executableBuffer struct {
	mem  []byte
	size int
	used int
	rw   bool
}

func newExecutableBuffer(size int) (*executableBuffer, error) {
	pageSize := unix.Getpagesize()
	aligned := (size + pageSize - 1) &^ (pageSize - 1)

	mem, err := unix.Mmap(-1, 0, aligned, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("mmap executable arena: %w", err)
	}
	return &executableBuffer{mem: mem, size: aligned, rw: true}, nil
}

func (b *executableBuffer) available() int { return b.size - b.used }

func (b *executableBuffer) write(code []byte) (uintptr, error) {
	if len(code) > b.available() {
		return 0, fmt.Errorf("executable buffer overflow: need %d, have %d", len(code), b.available())
	}
	if !b.rw {
		if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_WRITE); err != nil {
			return 0, fmt.Errorf("mprotect rw: %w", err)
		}
		b.rw = true
	}

	writeOffset := b.used
	copy(b.mem[writeOffset:], code)
	b.used += len(code)
	b.used = (b.used + 15) &^ 15

	if err := unix.Mprotect(b.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return 0, fmt.Errorf("mprotect rx: %w", err)
	}
	b.rw = false

	return uintptr(uintptrOf(b.mem[writeOffset:])), nil
}

func (b *executableBuffer) free() error {
	if b.mem == nil {
		return nil
	}
	err := unix.Munmap(b.mem)
	b.mem = nil
	b.size, b.used = 0, 0
	return err
}
