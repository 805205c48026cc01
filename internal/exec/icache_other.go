//go:build !(linux && riscv64)

package exec

// flushICache is a no-op on hosts that are not the RISC-V target itself
// (e.g. cross-compiling/testing this backend from amd64/arm64): nothing
// on the build host will ever execute the emitted bytes, so there is no
// instruction cache to reconcile.
func flushICache(mem []byte) {}
