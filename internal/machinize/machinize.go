// Package machinize lowers a function's IR into RV64-encodable form: it
// resolves formal-argument locations against the calling convention,
// rewrites opcodes that have no direct machine encoding (short compares,
// fused float/double/long-double compare-and-branch, long-double
// arithmetic, vararg access), and hands call instructions to
// machinize_call's two-pass argument lowering (spec §4.2, mirroring
// mir-gen-riscv64.c's target_machinize).
package machinize

import (
	"github.com/wiguwbe/mir-riscv64gen/internal/abi"
	"github.com/wiguwbe/mir-riscv64gen/internal/builtin"
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// ErrCallOp reports a malformed call site or an unsupported return-value
// combination — the two error conditions mir-gen-riscv64.c raises via
// MIR_call_op_error / MIR_ret_error during machinization.
type ErrCallOp struct {
	Reason string
}

func (e *ErrCallOp) Error() string { return "call_op_error: " + e.Reason }

// State carries the per-function bookkeeping machinization accumulates
// (spec §3 "Function lowering state"): whether any argument needed the
// caller's stack base in T0, the size reserved for small-aggregate copy
// slots, and the leaf/alloca facts the prologue pass needs afterward.
type State struct {
	BlockArgFuncP        bool
	SmallAggregateSaveArea int64
	NonVarargIntArgsNum  int
	AllocaP              bool
	LeafP                bool
}

// gen inserts a new instruction immediately before anchor and returns it,
// mirroring gen_mov's role as the one place new machine moves are spliced
// into the instruction stream.
func gen(f *ir.Func, anchor *ir.Insn, op ir.Op, ops ...ir.Operand) *ir.Insn {
	insn := ir.NewInsn(op, ops...)
	f.InsertBefore(anchor, insn)
	return insn
}

// Machinize runs target_machinize over f: prologue-side argument lowering
// followed by an instruction-by-instruction rewrite pass. It returns the
// accumulated State for the prologue/epilogue pass to consume.
func Machinize(f *ir.Func) (*State, error) {
	st := &State{LeafP: true}
	anchor := f.Insns() // first real instruction; arg setup goes before it

	if err := lowerParams(f, st, anchor); err != nil {
		return nil, err
	}

	for insn := f.Insns(); insn != nil; {
		next := insn.Next()
		if err := lowerInsn(f, st, insn); err != nil {
			return nil, err
		}
		insn = next
	}
	return st, nil
}

// lowerParams implements the prologue-side half of target_machinize: for
// each formal parameter, materialize arg_var = hard_reg | stack_mem |
// stack_addr before the function's first real instruction (spec §4.2).
func lowerParams(f *ir.Func, st *State, anchor *ir.Insn) error {
	var c abi.Counters
	memSize := int64(0)

	for i, p := range f.Params {
		dst := ir.RegOp(p.Type, paramVReg(i))

		if p.Type.BlockType() && p.Type != ir.TRBLK {
			qwords := int64(p.Size+7) / 8
			if qwords <= 2 {
				if err := lowerSmallAggregateParam(f, st, anchor, p, dst, qwords, &c, &memSize); err != nil {
					return err
				}
				continue
			}
			// Fully on stack: pass the address, per the ≤2-qword cutoff
			// in spec §4.2 ("If both halves are on stack: emits an
			// address computation").
			ensureBlockArgBase(f, st, anchor)
			gen(f, anchor, ir.OpADD, dst, ir.HardRegOp(ir.TI64, ir.T0), ir.IntOp(memSize))
			memSize += qwords * 8
			continue
		}

		cls := abi.ClassifyArg(p.Type, false, &c)
		if cls.Reg != ir.NoHardReg {
			gen(f, anchor, cls.MoveOp, dst, ir.HardRegOp(p.Type, cls.Reg))
			continue
		}

		ensureBlockArgBase(f, st, anchor)
		memType := memoryMoveType(p.Type)
		mem := ir.MemOp(memType, memSize, ir.T0, ir.NoHardReg, 1)
		gen(f, anchor, cls.MoveOp, dst, mem)
		if p.Type == ir.TLD {
			memSize += 16
		} else {
			memSize += 8
		}
	}
	st.NonVarargIntArgsNum = c.IntArgNum
	return nil
}

// lowerSmallAggregateParam handles a ≤2-qword block-aggregate formal,
// copying it into the small-aggregate save area from whichever GPR/FPR
// (or straddling stack half) the classifier assigned it to (spec §4.2).
func lowerSmallAggregateParam(f *ir.Func, st *State, anchor *ir.Insn, p ir.Param, dst ir.Operand, qwords int64, c *abi.Counters, memSize *int64) error {
	packedDouble := p.Type == ir.TBLK2
	if p.Type == ir.TBLK1 {
		c.IntArgNum = (c.IntArgNum + 1) / 2 * 2
	}

	var baseArgReg ir.HardReg
	var argRegNum int
	fits := false
	if packedDouble {
		argRegNum = c.FPArgNum
		baseArgReg = ir.FA0
		fits = c.FPArgNum < 8
	} else {
		argRegNum = c.IntArgNum
		baseArgReg = ir.A0
		fits = c.IntArgNum < 8
	}
	if !fits {
		// Fully on stack: the argument becomes the address of the block
		// in the caller's stack area; no save-area slot is reserved.
		ensureBlockArgBase(f, st, anchor)
		gen(f, anchor, ir.OpADD, dst, ir.HardRegOp(ir.TI64, ir.T0), ir.IntOp(*memSize))
		*memSize += qwords * 8
		return nil
	}

	movCode := ir.OpMOV
	memType := ir.TI64
	if packedDouble {
		movCode = ir.OpDMOV
		memType = ir.TD
	}

	st.SmallAggregateSaveArea += qwords * 8
	if st.SmallAggregateSaveArea >= 1<<11 {
		return &ErrCallOp{Reason: "small aggregate save area overflowed its 12-bit displacement budget"}
	}
	slot := ir.IntOp(st.SmallAggregateSaveArea)
	gen(f, anchor, ir.OpSUB, dst, ir.HardRegOp(ir.TI64, ir.FP), slot)
	if qwords == 0 {
		return nil
	}

	// dst already points at the slot (fp - save area), so the halves go
	// at dst+0 and dst+8.
	savedDisp := int64(0)
	gen(f, anchor, movCode, ir.VRegMemOp(memType, savedDisp, dst.Reg), ir.HardRegOp(memType, baseArgReg+ir.HardReg(argRegNum)))
	if qwords != 2 {
		if packedDouble {
			c.FPArgNum += int(qwords)
		} else {
			c.IntArgNum += int(qwords)
		}
		return nil
	}

	if argRegNum < 7 {
		gen(f, anchor, movCode, ir.VRegMemOp(memType, savedDisp+8, dst.Reg), ir.HardRegOp(memType, baseArgReg+ir.HardReg(argRegNum+1)))
	} else {
		ensureBlockArgBase(f, st, anchor)
		scratch := ir.TempInt1
		if packedDouble {
			scratch = ir.TempFloat1
		}
		tmp := ir.HardRegOp(memType, scratch)
		gen(f, anchor, movCode, tmp, ir.MemOp(memType, *memSize, ir.T0, ir.NoHardReg, 1))
		gen(f, anchor, movCode, ir.VRegMemOp(memType, savedDisp+8, dst.Reg), tmp)
		*memSize += 8
	}
	if packedDouble {
		c.FPArgNum += int(qwords)
	} else {
		c.IntArgNum += int(qwords)
	}
	return nil
}

// ensureBlockArgBase emits the one-time "t0 = [fp+16]" load that gives
// subsequent stack-passed-argument lowering a base pointer into the
// caller's outgoing-argument area (spec §4.2, BlockArgFuncP).
func ensureBlockArgBase(f *ir.Func, st *State, anchor *ir.Insn) {
	if st.BlockArgFuncP {
		return
	}
	st.BlockArgFuncP = true
	gen(f, anchor, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.T0), ir.MemOp(ir.TI64, 16, ir.FP, ir.NoHardReg, 1))
}

// memoryMoveType picks the memory operand type for a stack-passed scalar
// argument: F/D/LD keep their own representation, everything else is
// moved as a plain 64-bit word (spec §4.2).
func memoryMoveType(t ir.Type) ir.Type {
	switch t {
	case ir.TF, ir.TD, ir.TLD:
		return t
	default:
		return ir.TI64
	}
}

// paramVReg is the formal-parameter virtual register this backend lowers
// into: one per parameter, indexed in declaration order. The host
// framework normally hands these out (spec §6); this stands in the same
// way ir.Func.NewTempVReg does for machinization's own temporaries.
func paramVReg(i int) ir.VReg { return ir.VReg(i + 1) }

// lowerInsn dispatches one instruction to its rewrite, per the opcode
// switch in target_machinize (spec §4.2).
func lowerInsn(f *ir.Func, st *State, insn *ir.Insn) error {
	if ext, full, ok := ir.ShortCompareLowering(insn.Op); ok {
		lowerShortCompare(f, insn, ext, full)
		return nil
	}

	if plain, ok := ir.PlainCompare(insn.Op); ok && ir.CompareBranchOp(insn.Op) {
		cmp := lowerCompareBranch(f, insn, plain)
		// A long-double compare has no encoding either; lower it now, as
		// the main loop has already moved past its position.
		if d, nargs, ok := builtin.Lookup(plain); ok {
			st.LeafP = false
			return lowerBuiltinCall(f, cmp, d, nargs)
		}
		return nil
	}

	if insn.Op == ir.OpVA_ARG || insn.Op == ir.OpVA_BLOCK_ARG {
		st.LeafP = false
		return lowerVAAccess(f, insn)
	}

	if d, nargs, ok := builtin.Lookup(insn.Op); ok {
		st.LeafP = false
		return lowerBuiltinCall(f, insn, d, nargs)
	}

	switch insn.Op {
	case ir.OpVA_START:
		lowerVAStart(f, st, insn)
		f.Delete(insn)
		return nil
	case ir.OpVA_END:
		f.Delete(insn)
		return nil
	case ir.OpALLOCA:
		st.AllocaP = true
		return nil
	case ir.OpRET:
		return lowerRet(f, insn)
	}

	if ir.CallOp(insn.Op) {
		st.LeafP = false
		return MachinizeCall(f, insn)
	}

	return nil
}

// lowerShortCompare rewrites a 32-bit-truncated compare/branch in place:
// both operands are extended to 64 bits via ext, then the opcode is
// swapped for its full-width equivalent (spec §4.2).
func lowerShortCompare(f *ir.Func, insn *ir.Insn, ext, full ir.Op) {
	lhsT := f.NewTempVReg()
	lhs := ir.RegOp(ir.TI64, lhsT)
	gen(f, insn, ext, lhs, insn.Ops[1])

	rhsT := f.NewTempVReg()
	rhs := ir.RegOp(ir.TI64, rhsT)
	gen(f, insn, ext, rhs, insn.Ops[2])

	insn.Op = full
	insn.Ops[1] = lhs
	insn.Ops[2] = rhs
}

// lowerCompareBranch splits a fused F/D/LD compare-and-branch into a
// plain compare producing 0/1 in a temp, followed by a BT on that temp
// (spec §4.2). It returns the new compare instruction.
func lowerCompareBranch(f *ir.Func, insn *ir.Insn, plain ir.Op) *ir.Insn {
	dst := ir.RegOp(ir.TI64, f.NewTempVReg())
	cmp := ir.NewInsn(plain, dst, insn.Ops[1], insn.Ops[2])
	f.InsertBefore(insn, cmp)

	bt := ir.NewInsn(ir.OpBT, insn.Ops[0], dst)
	f.InsertAfter(cmp, bt)
	f.Delete(insn)
	return cmp
}

// lowerBuiltinCall rewrites a long-double arithmetic/compare/conversion
// opcode (the only opcodes that reach here — VA_ARG/VA_BLOCK_ARG are
// intercepted by lowerVAAccess before this runs) into: mov freg, <builtin
// ref>; call proto, freg, res, op[, op2] (spec §4.2, mir-gen-riscv64.c's
// get_builtin dispatch). The generated CALL is itself run back through
// MachinizeCall before returning — mirroring target_machinize's
// next_insn = new_insn — since the main Machinize loop's iterator has
// already moved past insn's old position and would otherwise never visit
// it, leaving its arguments/results unplaced.
func lowerBuiltinCall(f *ir.Func, insn *ir.Insn, d builtin.Desc, nargs int) error {
	item := &ir.Item{Kind: ir.ItemImport, Name: d.Name, Trampoline: d.Trampoline}
	freg := ir.RegOp(ir.TI64, f.NewTempVReg())
	movRef := ir.NewInsn(ir.OpMOV, freg, ir.RefOp(item))
	f.InsertBefore(insn, movRef)

	nres := len(d.ResTypes)
	ops := make([]ir.Operand, 0, 2+nres+nargs)
	ops = append(ops, ir.RefOp(&ir.Item{Kind: ir.ItemProto, Name: d.ProtoName, ArgTypes: d.ArgTypes, ResultTypes: d.ResTypes}), freg)
	ops = append(ops, insn.Ops[:nres+nargs]...)
	call := ir.NewInsn(ir.OpCALL, ops...)
	f.InsertBefore(insn, call)
	f.Delete(insn)
	return MachinizeCall(f, call)
}

// lowerVAStart rewrites VA_START into "prev_sp = [fp+16][+ (non_vararg_int_args_num-8)*8]; va_ptr[0] = prev_sp"
// (spec §4.2), pointing the va-list at the first vararg slot in the
// caller's outgoing-argument area.
func lowerVAStart(f *ir.Func, st *State, insn *ir.Insn) {
	prevSP := ir.RegOp(ir.TI64, f.NewTempVReg())
	gen(f, insn, ir.OpMOV, prevSP, ir.MemOp(ir.TI64, 16, ir.FP, ir.NoHardReg, 1))
	if st.NonVarargIntArgsNum != 8 {
		gen(f, insn, ir.OpADD, prevSP, prevSP, ir.IntOp(int64(st.NonVarargIntArgsNum-8)*8))
	}
	vaPtr := insn.Ops[0]
	gen(f, insn, ir.OpMOV, ir.VRegMemOp(ir.TI64, 0, vaPtr.Reg), prevSP)
}

// lowerVAAccess rewrites VA_ARG/VA_BLOCK_ARG into a builtin call, the one
// respect in which vararg access differs from the generic no-encoding-
// opcode rewrite in lowerBuiltinCall: VA_ARG's type operand is a constant
// (the requested MIR type tag, carried as a memory operand's Mem.Type —
// mirrored the same way a block argument's size rides in Mem.Disp) that
// must be materialized with its own mov before the call, rather than
// passed through as-is (spec §4.2, mir-gen-riscv64.c's VA_ARG/VA_BLOCK_ARG
// branch of get_builtin dispatch). Like lowerBuiltinCall, the generated
// CALL is run back through MachinizeCall immediately — the main
// Machinize loop's pre-captured iterator never revisits it otherwise, so
// its operands would reach the encoder unplaced (see lowerBuiltinCall).
func lowerVAAccess(f *ir.Func, insn *ir.Insn) error {
	d, _, ok := builtin.Lookup(insn.Op)
	if !ok {
		return nil
	}
	item := &ir.Item{Kind: ir.ItemImport, Name: d.Name, Trampoline: d.Trampoline}
	freg := ir.RegOp(ir.TI64, f.NewTempVReg())
	gen(f, insn, ir.OpMOV, freg, ir.RefOp(item))

	proto := ir.RefOp(&ir.Item{Kind: ir.ItemProto, Name: d.ProtoName, ArgTypes: d.ArgTypes, ResultTypes: d.ResTypes})

	if insn.Op == ir.OpVA_ARG {
		res, vaReg, typeOp := insn.Ops[0], insn.Ops[1], insn.Ops[2]
		typeReg := ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, insn, ir.OpMOV, typeReg, ir.IntOp(int64(typeOp.Mem.Type)))
		call := ir.NewInsn(ir.OpCALL, proto, freg, res, vaReg, typeReg)
		f.InsertBefore(insn, call)
		f.Delete(insn)
		return MachinizeCall(f, call)
	}

	// VA_BLOCK_ARG: dst, va_reg, size — the destination is filled in place
	// by the callee, so unlike VA_ARG there is no separate result operand
	// (spec §4.2, matching this backend's VA_BLOCK_ARG builtin proto of
	// exactly three arguments and no result).
	dst, vaReg, size := insn.Ops[0], insn.Ops[1], insn.Ops[2]
	call := ir.NewInsn(ir.OpCALL, proto, freg, dst, vaReg, size)
	f.InsertBefore(insn, call)
	f.Delete(insn)
	return MachinizeCall(f, call)
}

// lowerRet assigns RET's result operands to their ABI return registers in
// order: up to two F/D results in FA0/FA1, up to two integer results
// (long-double consuming a pair) in A0/A1, per spec §4.2.
func lowerRet(f *ir.Func, insn *ir.Insn) error {
	nFP, nInt := 0, 0
	for i, op := range insn.Ops {
		t := op.OperandType
		var reg ir.HardReg
		var mov ir.Op
		switch {
		case t.FPType() && nFP < 2:
			if t == ir.TF {
				mov = ir.OpFMOV
			} else {
				mov = ir.OpDMOV
			}
			reg = ir.FA0 + ir.HardReg(nFP)
			nFP++
		case t == ir.TLD && nInt < 2:
			mov = ir.OpLDMOV
			reg = ir.A0 + ir.HardReg(nInt)
			nInt += 2
		case !t.FPType() && t != ir.TLD && nInt < 2:
			mov = ir.OpMOV
			reg = ir.A0 + ir.HardReg(nInt)
			nInt++
		default:
			return &ErrCallOp{Reason: "riscv cannot handle this combination of return values"}
		}
		regOp := ir.HardRegOp(t, reg)
		gen(f, insn, mov, regOp, op)
		insn.Ops[i] = regOp
	}
	return nil
}

