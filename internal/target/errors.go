// Package target wires the machinization, prologue/epilogue synthesis,
// and pattern-matching passes into the operation set an external code
// generator drives one function at a time (spec §6 "Exposed").
package target

import (
	"errors"
	"fmt"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
	"github.com/wiguwbe/mir-riscv64gen/internal/machinize"
	"github.com/wiguwbe/mir-riscv64gen/internal/pattern"
)

// ErrCallOp wraps machinize.ErrCallOp: an argument configuration the ABI
// cannot represent (spec §7's call_op_error). The caller's compilation
// aborts; there is no local recovery.
type ErrCallOp struct {
	Reason string
}

func (e *ErrCallOp) Error() string { return "call_op_error: " + e.Reason }

// ErrPatternMiss wraps pattern.ErrNoMatch: no table entry matches an
// instruction's opcode and operand shapes after machinization (spec §7's
// pattern_miss, a fatal backend bug rather than bad user input).
type ErrPatternMiss struct {
	Op ir.Op
}

func (e *ErrPatternMiss) Error() string {
	return fmt.Sprintf("pattern_miss: no matching encoding for opcode %v", e.Op)
}

// wrapMachinizeErr translates a machinize error into the typed target
// error spec §7 names, preserving the original via errors.Unwrap.
func wrapMachinizeErr(err error) error {
	if err == nil {
		return nil
	}
	var callErr *machinize.ErrCallOp
	if errors.As(err, &callErr) {
		return &ErrCallOp{Reason: callErr.Reason}
	}
	return err
}

// wrapPatternErr translates a pattern error into the typed target error
// spec §7 names.
func wrapPatternErr(err error) error {
	if err == nil {
		return nil
	}
	var noMatch *pattern.ErrNoMatch
	if errors.As(err, &noMatch) {
		return &ErrPatternMiss{Op: noMatch.Op}
	}
	return err
}
