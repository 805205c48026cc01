// Package prologue synthesizes a function's prologue and epilogue once
// the register allocator has settled on a final used-hard-register set
// and stack-slot count (spec §7, mirroring mir-gen-riscv64.c's
// target_make_prolog_epilog): frame-pointer setup, callee-saved register
// spill/reload, the vararg integer-register save area, and the
// small-aggregate copy-slot reservation machinize.Machinize left behind.
package prologue

import (
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
	"github.com/wiguwbe/mir-riscv64gen/internal/machinize"
)

// HardRegSet is a bitset over ir.HardReg (GPRs and FPRs both fit a
// single uint64, the highest hard register number being ir.MaxHardReg).
type HardRegSet uint64

// Has reports whether r is a member of s.
func (s HardRegSet) Has(r ir.HardReg) bool { return s&(1<<uint(r)) != 0 }

// With returns s with r added.
func (s HardRegSet) With(r ir.HardReg) HardRegSet { return s | 1<<uint(r) }

// NewHardRegSet builds a HardRegSet from the given hard registers.
func NewHardRegSet(regs ...ir.HardReg) HardRegSet {
	var s HardRegSet
	for _, r := range regs {
		s = s.With(r)
	}
	return s
}

// immThreshold is the largest magnitude a plain I-type immediate can
// hold (12-bit signed); frame offsets at or beyond it route through a
// temporary register instead.
const immThreshold = 1 << 11

func gen(f *ir.Func, anchor *ir.Insn, op ir.Op, ops ...ir.Operand) *ir.Insn {
	insn := ir.NewInsn(op, ops...)
	f.InsertBefore(anchor, insn)
	return insn
}

// isave stores hard register r into mem[base+disp], used to spill the
// incoming vararg integer argument registers into the save area.
func isave(f *ir.Func, anchor *ir.Insn, disp int64, base, r ir.HardReg) {
	gen(f, anchor, ir.OpMOV, ir.MemOp(ir.TI64, disp, base, ir.NoHardReg, 1), ir.HardRegOp(ir.TI64, r))
}

func callUsed(r ir.HardReg) bool { return ir.CallUsed(r, false) }

func roundUp16(n int64) int64 {
	if n%16 != 0 {
		return (n + 15) / 16 * 16
	}
	return n
}

// MakeProlugEpilog inserts f's prologue at its head and its epilogue
// before its trailing RET, given the allocator's final used-hard-register
// set and spill-slot count. Functions needing no frame at all (leaves
// with no alloca, no saved registers, no varargs, no stack slots, no
// block-arg-by-address parameters, no small-aggregate copies, and an
// unused return address) are left untouched.
func MakeProlugEpilog(f *ir.Func, st *machinize.State, usedHardRegs HardRegSet, stackSlotsNum int) {
	var savedIregsNum, savedFregsNum int
	for i := ir.HardReg(0); i <= ir.MaxHardReg; i++ {
		if !callUsed(i) && usedHardRegs.Has(i) && i != ir.FP {
			if i < ir.FirstFPR {
				savedIregsNum++
			} else {
				savedFregsNum++
			}
		}
	}
	if st.LeafP && !st.AllocaP && savedIregsNum == 0 && savedFregsNum == 0 && !f.VarargP &&
		stackSlotsNum == 0 && !st.BlockArgFuncP && st.SmallAggregateSaveArea == 0 &&
		!usedHardRegs.Has(ir.RA) {
		return
	}

	spOp := ir.HardRegOp(ir.TI64, ir.SP)
	fpOp := ir.HardRegOp(ir.TI64, ir.FP)

	// Prologue.
	anchor := f.Insns()
	var frameSize int64
	if f.VarargP && st.NonVarargIntArgsNum < 8 {
		frameSize = int64(8-st.NonVarargIntArgsNum) * 8
	}
	for i := ir.HardReg(0); i <= ir.MaxHardReg; i++ {
		if !callUsed(i) && usedHardRegs.Has(i) {
			frameSize += 8
		}
	}
	frameSize = roundUp16(frameSize)
	frameSizeAfterSavedRegs := frameSize
	frameSize += int64(stackSlotsNum) * 8
	frameSize = roundUp16(frameSize)

	savePrevStackP := f.VarargP || st.BlockArgFuncP
	t1Op := ir.HardRegOp(ir.TI64, ir.T1)
	if savePrevStackP {
		gen(f, anchor, ir.OpMOV, t1Op, spOp) // t1 = sp, before the frame is carved out
		frameSize += 16
	}
	frameSize += 16 // ra, fp

	if frameSize < immThreshold {
		gen(f, anchor, ir.OpSUB, spOp, spOp, ir.IntOp(frameSize))
	} else {
		t2Op := ir.HardRegOp(ir.TI64, ir.T2)
		gen(f, anchor, ir.OpMOV, t2Op, ir.IntOp(frameSize))
		gen(f, anchor, ir.OpSUB, spOp, spOp, t2Op)
	}
	if savePrevStackP {
		gen(f, anchor, ir.OpMOV, ir.MemOp(ir.TI64, 16, ir.SP, ir.NoHardReg, 1), t1Op)
	}
	gen(f, anchor, ir.OpMOV, ir.MemOp(ir.TI64, 8, ir.SP, ir.NoHardReg, 1), ir.HardRegOp(ir.TI64, ir.RA))
	gen(f, anchor, ir.OpMOV, ir.MemOp(ir.TI64, 0, ir.SP, ir.NoHardReg, 1), fpOp)
	gen(f, anchor, ir.OpMOV, fpOp, spOp)

	if f.VarargP && st.NonVarargIntArgsNum < 8 {
		base := ir.SP
		regSaveAreaSize := int64(8 * (8 - st.NonVarargIntArgsNum))
		start := frameSize - regSaveAreaSize
		if start+regSaveAreaSize >= immThreshold {
			gen(f, anchor, ir.OpMOV, t1Op, ir.IntOp(start))
			start = 0
			base = ir.T1
		}
		for r := ir.A0 + ir.HardReg(st.NonVarargIntArgsNum); r <= ir.A7; r++ {
			isave(f, anchor, start, base, r)
			start += 8
		}
	}

	// Saving callee-saved hard registers.
	offset := frameSize - frameSizeAfterSavedRegs
	baseReg := ir.FP
	if offset+int64(ir.MaxHardReg)*8 >= immThreshold {
		baseReg = ir.T2
		baseOp := ir.HardRegOp(ir.TI64, baseReg)
		gen(f, anchor, ir.OpMOV, baseOp, ir.IntOp(offset))
		gen(f, anchor, ir.OpADD, baseOp, baseOp, fpOp)
		offset = 0
	}
	for i := ir.HardReg(0); i <= ir.MaxHardReg; i++ {
		if !callUsed(i) && usedHardRegs.Has(i) && i != ir.FP {
			if i < ir.FirstFPR {
				gen(f, anchor, ir.OpMOV, ir.MemOp(ir.TI64, offset, baseReg, ir.NoHardReg, 1), ir.HardRegOp(ir.TI64, i))
			} else {
				gen(f, anchor, ir.OpDMOV, ir.MemOp(ir.TD, offset, baseReg, ir.NoHardReg, 1), ir.HardRegOp(ir.TD, i))
			}
			offset += 8
		}
	}

	if st.SmallAggregateSaveArea != 0 {
		area := roundUp16(st.SmallAggregateSaveArea)
		gen(f, anchor, ir.OpSUB, spOp, spOp, ir.IntOp(area))
	}

	// Epilogue. A RET already eliminated by dead-code elimination in favor
	// of a loop-back JMP needs no restore sequence.
	tail := f.Tail()
	if tail == nil || tail.Op == ir.OpJMP {
		return
	}
	anchor = tail

	offset = frameSize - frameSizeAfterSavedRegs
	baseReg = ir.FP
	if offset+int64(ir.MaxHardReg)*8 >= immThreshold {
		baseReg = ir.T2
		baseOp := ir.HardRegOp(ir.TI64, baseReg)
		gen(f, anchor, ir.OpMOV, baseOp, ir.IntOp(offset))
		gen(f, anchor, ir.OpADD, baseOp, baseOp, fpOp)
		offset = 0
	}
	for i := ir.HardReg(0); i <= ir.MaxHardReg; i++ {
		if !callUsed(i) && usedHardRegs.Has(i) && i != ir.FP {
			if i < ir.FirstFPR {
				gen(f, anchor, ir.OpMOV, ir.HardRegOp(ir.TI64, i), ir.MemOp(ir.TI64, offset, baseReg, ir.NoHardReg, 1))
			} else {
				gen(f, anchor, ir.OpDMOV, ir.HardRegOp(ir.TD, i), ir.MemOp(ir.TD, offset, baseReg, ir.NoHardReg, 1))
			}
			offset += 8
		}
	}

	gen(f, anchor, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.RA), ir.MemOp(ir.TI64, 8, ir.FP, ir.NoHardReg, 1))
	if frameSize < immThreshold {
		gen(f, anchor, ir.OpADD, spOp, fpOp, ir.IntOp(frameSize))
	} else {
		gen(f, anchor, ir.OpMOV, t1Op, ir.IntOp(frameSize))
		gen(f, anchor, ir.OpADD, spOp, fpOp, t1Op)
	}
	gen(f, anchor, ir.OpMOV, fpOp, ir.MemOp(ir.TI64, 0, ir.FP, ir.NoHardReg, 1))
}
