// Package exec provides a minimal executable-memory arena: the "JIT
// loader" spec.md §6 names as an out-of-scope external collaborator,
// offered here as a separately-importable convenience rather than
// folded into internal/target (keeping the backend's own concurrency
// and resource model — spec.md §5 — untouched: the backend itself still
// manages no executable memory and synthesizes no memory barriers).
package exec

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Arena owns one mmap'd region of memory that can hold JIT-compiled
// function bodies. Committed bytes become executable and read-only;
// Alloc reserves writable, non-executable space ahead of that.
type Arena struct {
	mem    []byte
	used   int
	execed bool
}

// NewArena reserves size bytes of anonymous, writable memory. size is
// rounded up by the kernel to a whole number of pages.
func NewArena(size int) (*Arena, error) {
	mem, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("exec: mmap: %w", err)
	}
	return &Arena{mem: mem}, nil
}

// Alloc copies code into the arena's writable region and returns its
// offset from the arena's base. Panics if code does not fit the
// reserved size — a caller that sized the arena from the sum of its
// Program.Code lengths never hits this; it marks a programming error.
func (a *Arena) Alloc(code []byte) int {
	if a.execed {
		panic("exec: Alloc called after Commit")
	}
	off := a.used
	if off+len(code) > len(a.mem) {
		panic("exec: arena too small for requested allocation")
	}
	copy(a.mem[off:], code)
	a.used += len(code)
	return off
}

// Base returns the arena's base address, for computing absolute
// relocation targets before Commit.
func (a *Arena) Base() uintptr {
	if len(a.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.mem[0]))
}

// Commit switches the arena from writable to executable-and-read-only
// and flushes the instruction cache so the CPU observes the bytes
// Alloc wrote (spec.md §5: "the JIT loader... is responsible for memory
// permissions and instruction-cache flush after target_rebase"). No
// further Alloc calls are permitted afterward.
func (a *Arena) Commit() error {
	if err := unix.Mprotect(a.mem, unix.PROT_READ|unix.PROT_EXEC); err != nil {
		return fmt.Errorf("exec: mprotect: %w", err)
	}
	flushICache(a.mem)
	a.execed = true
	return nil
}

// Close releases the arena's memory back to the kernel.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	err := unix.Munmap(a.mem)
	a.mem = nil
	return err
}

// FuncAt returns the absolute address of the code previously placed at
// offset off by Alloc (Base()+off). The address is only executable once
// Commit has run; turning it into something callable, with the calling
// convention of the code at off, is left to the caller — this package
// only manages memory, not calling conventions.
func (a *Arena) FuncAt(off int) uintptr {
	return a.Base() + uintptr(off)
}
