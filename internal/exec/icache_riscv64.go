//go:build linux && riscv64

package exec

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// flushICache issues the riscv_flush_icache syscall so the hart
// observes newly written instruction bytes; RISC-V does not guarantee
// instruction-cache coherence with the data cache after a plain memory
// write (unlike x86).
func flushICache(mem []byte) {
	if len(mem) == 0 {
		return
	}
	start := uintptr(unsafe.Pointer(&mem[0]))
	end := start + uintptr(len(mem))
	// SYS_RISCV_FLUSH_ICACHE = 259, flags=0 (SYS_RISCV_FLUSH_ICACHE_LOCAL unset: flush on all harts).
	unix.Syscall(259, start, end, 0)
}
