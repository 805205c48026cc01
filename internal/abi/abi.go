// Package abi implements the RV64 LP64D argument-classification algorithm
// (spec §4.1, mir-gen-riscv64.c's get_arg_reg): walking a single
// argument's type and assigning it to a GPR, an FPR, or the stack.
package abi

import "github.com/wiguwbe/mir-riscv64gen/internal/ir"

// Counters tracks the running GPR/FPR consumption across a sequence of
// ClassifyArg calls for one argument list (mirrors get_arg_reg's
// int_arg_num/fp_arg_num out-parameters).
type Counters struct {
	IntArgNum int
	FPArgNum  int
}

// Class is the result of classifying one argument.
type Class struct {
	// Reg is the assigned hard register, or ir.NoHardReg if the argument
	// goes on the stack.
	Reg ir.HardReg
	// MoveOp is the opcode that should move the value into/out of Reg
	// (or the stack slot), matching the argument's representation.
	MoveOp ir.Op
}

// onStack returns the "stack" sentinel class for a given move opcode.
func onStack(mov ir.Op) Class { return Class{Reg: ir.NoHardReg, MoveOp: mov} }

// ClassifyArg assigns one argument to a hard register or the stack,
// following the RV64 LP64D rules (spec §4.1):
//
//   - F/D and not variadic: consumed from FA0..FA7; beyond 7, stack.
//   - everything else (variadic F/D, long-double, block, ref-block):
//     consumed from A0..A7; long-double requires an even-indexed pair
//     and consumes two slots.
//
// c is mutated in place; call ClassifyArg once per argument, in order.
func ClassifyArg(argType ir.Type, varargP bool, c *Counters) Class {
	if !varargP && argType.FPType() {
		var reg ir.HardReg = ir.NoHardReg
		if c.FPArgNum < 8 {
			reg = ir.FA0 + ir.HardReg(c.FPArgNum)
		}
		c.FPArgNum++
		mov := ir.OpDMOV
		if argType == ir.TF {
			mov = ir.OpFMOV
		}
		if reg == ir.NoHardReg {
			return onStack(mov)
		}
		return Class{Reg: reg, MoveOp: mov}
	}

	// Includes LD, BLK, RBLK, and variadic F/D (which are passed in GPRs).
	if argType == ir.TLD && c.IntArgNum%2 != 0 {
		c.IntArgNum++
	}
	var reg ir.HardReg = ir.NoHardReg
	if c.IntArgNum < 8 {
		reg = ir.A0 + ir.HardReg(c.IntArgNum)
	}
	c.IntArgNum++
	if argType != ir.TLD {
		if reg == ir.NoHardReg {
			return onStack(ir.OpMOV)
		}
		return Class{Reg: reg, MoveOp: ir.OpMOV}
	}
	// Long-double consumes a second GPR slot for its second half.
	c.IntArgNum++
	if reg == ir.NoHardReg {
		return onStack(ir.OpLDMOV)
	}
	return Class{Reg: reg, MoveOp: ir.OpLDMOV}
}
