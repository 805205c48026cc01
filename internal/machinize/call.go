package machinize

import (
	"github.com/wiguwbe/mir-riscv64gen/internal/abi"
	"github.com/wiguwbe/mir-riscv64gen/internal/builtin"
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// callLayout is the fixed shape of a CALL/INLINE instruction's operand
// list: Ops[0] is the callee proto reference, Ops[1] is the callee
// target (register or item reference), Ops[2:2+nres] are the result
// destinations, and the remainder are the argument operands (spec §4.3,
// mir-gen-riscv64.c's machinize_call).
const (
	callProtoIdx  = 0
	callTargetIdx = 1
	callArgsBase  = 2
)

// protoOf recovers the call's proto item — the one place this backend
// reads a call's static argument/result type shape from.
func protoOf(insn *ir.Insn) (*ir.Item, bool) {
	op := insn.Ops[callProtoIdx]
	if op.Kind != ir.OpndRef || op.Ref == nil || op.Ref.Kind != ir.ItemProto {
		return nil, false
	}
	return op.Ref, true
}

// blockQwords reads a BLK-family argument operand's size, in qwords,
// rounded up. MIR overloads a block operand's Mem.Disp as its byte size
// rather than a displacement (the operand never has a real offset — it
// always names the whole aggregate) — mirrored here rather than adding a
// separate Size field to ir.Mem, since the only consumer of this shape is
// this package.
func blockQwords(op ir.Operand) int64 { return (op.Mem.Disp + 7) / 8 }

// MachinizeCall lowers one CALL/INLINE instruction in place: pass 1 sizes
// the by-address block-argument area, pass 2 emits the argument moves
// (spec §4.3).
func MachinizeCall(f *ir.Func, call *ir.Insn) error {
	// Captured before any argument-lowering instructions are spliced in, so
	// the stack-reservation SUB can be inserted ahead of every argument
	// store that depends on SP already being decremented (spec §4.3).
	prevCall := call.Prev()

	if call.Op == ir.OpINLINE {
		call.Op = ir.OpCALL
	}
	proto, ok := protoOf(call)
	if !ok {
		return &ErrCallOp{Reason: "call instruction's first operand is not a proto reference"}
	}
	nres := len(proto.ResultTypes)
	argsStart := callArgsBase + nres
	nargs := len(proto.ArgTypes)
	if len(call.Ops) < argsStart || (!proto.Vararg && len(call.Ops)-argsStart != nargs) {
		return &ErrCallOp{Reason: "call instruction argument count does not match its proto"}
	}

	if call.Ops[callTargetIdx].Kind != ir.OpndVReg && call.Ops[callTargetIdx].Kind != ir.OpndHardReg {
		temp := ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, call, ir.OpMOV, temp, call.Ops[callTargetIdx])
		call.Ops[callTargetIdx] = temp
	}

	argType := func(i int) ir.Type {
		if i < nargs {
			return proto.ArgTypes[i]
		}
		return call.Ops[argsStart+i].OperandType
	}

	blkOffset := measureBlkOffset(call, argsStart, nargs, argType)

	var c abi.Counters
	memSize := int64(0)
	for i := argsStart; i < len(call.Ops); i++ {
		t := argType(i - argsStart)
		arg := call.Ops[i]

		if ext, ok := extCodeFor(t); ok {
			temp := ir.RegOp(ir.TI64, f.NewTempVReg())
			gen(f, call, ext, temp, arg)
			arg = temp
			call.Ops[i] = arg
		}

		if t.BlockType() && t != ir.TRBLK {
			qwords := blockQwords(arg)
			if qwords <= 2 {
				emitSmallBlockArg(f, call, arg, t, qwords, &c, &memSize)
				continue
			}
			addr := ir.RegOp(ir.TI64, f.NewTempVReg())
			genBlkMov(f, call, blkOffset, ir.SP, arg.Mem.BaseVReg, arg.Mem.Base, arg.Mem.BaseIsVReg, qwords, c.IntArgNum)
			gen(f, call, ir.OpADD, addr, ir.HardRegOp(ir.TI64, ir.SP), ir.IntOp(blkOffset))
			arg = addr
			blkOffset += qwords * 8
		}

		varargP := i-argsStart >= nargs
		cls := abi.ClassifyArg(pickType(t), varargP, &c)
		if t == ir.TRBLK {
			// Passed as a pointer: move the referenced address itself.
			base := ir.RegOp(ir.TI64, f.NewTempVReg())
			if arg.Mem.BaseIsVReg {
				gen(f, call, ir.OpMOV, base, ir.RegOp(ir.TI64, arg.Mem.BaseVReg))
			} else {
				gen(f, call, ir.OpMOV, base, ir.HardRegOp(ir.TI64, arg.Mem.Base))
			}
			arg = base
		}
		if cls.Reg != ir.NoHardReg {
			reg := ir.HardRegOp(t, cls.Reg)
			if cls.MoveOp == ir.OpMOV && t.FPType() && varargP {
				unspec := ir.NewInsn(ir.OpUNSPEC, reg, arg)
				if t == ir.TF {
					unspec.Code = ir.UnspecFMVXW
				} else {
					unspec.Code = ir.UnspecFMVXD
				}
				f.InsertBefore(call, unspec)
			} else {
				gen(f, call, cls.MoveOp, reg, arg)
			}
			call.Ops[i] = reg
			if t == ir.TLD {
				// Second half already accounted for by ClassifyArg's
				// IntArgNum += 2; nothing further to move here — the
				// callee reads the pair via LDMOV semantics.
			}
			continue
		}

		memType := pickType(t)
		mem := ir.MemOp(memType, memSize, ir.SP, ir.NoHardReg, 1)
		gen(f, call, cls.MoveOp, mem, arg)
		call.Ops[i] = mem
		if t == ir.TLD {
			memSize += 16
		} else {
			memSize += 8
		}
	}

	blkOffset = roundUp16(blkOffset)
	if blkOffset != 0 {
		memSize = blkOffset
	}

	if err := lowerCallResults(f, call, proto, nres); err != nil {
		return err
	}

	if memSize != 0 {
		memSize = roundUp16(memSize)
		if prevCall == nil {
			return &ErrCallOp{Reason: "call instruction has no predecessor to anchor its stack reservation"}
		}

		subSize := ir.RegOp(ir.TI64, f.NewTempVReg())
		movSub := ir.NewInsn(ir.OpMOV, subSize, ir.IntOp(memSize))
		f.InsertAfter(prevCall, movSub)
		sub := ir.NewInsn(ir.OpSUB, ir.HardRegOp(ir.TI64, ir.SP), ir.HardRegOp(ir.TI64, ir.SP), subSize)
		f.InsertAfter(movSub, sub)

		addSize := ir.RegOp(ir.TI64, f.NewTempVReg())
		addSizeMov := ir.NewInsn(ir.OpMOV, addSize, ir.IntOp(memSize))
		f.InsertAfter(call, addSizeMov)
		add := ir.NewInsn(ir.OpADD, ir.HardRegOp(ir.TI64, ir.SP), ir.HardRegOp(ir.TI64, ir.SP), addSize)
		f.InsertAfter(addSizeMov, add)
	}
	return nil
}

// pickType maps a BLK/RBLK argument's "memory representation" to the
// scalar type ClassifyArg and the move opcode operate on: blocks already
// decomposed into a ≤16-qword copy or passed by address are always
// moved as plain 64-bit words.
func pickType(t ir.Type) ir.Type {
	if t.BlockType() {
		return ir.TI64
	}
	return t
}

// extCodeFor returns the sign/zero-extension opcode a sub-word scalar
// argument needs before entering an argument register (spec §4.3); block
// types and already-64-bit types need none.
func extCodeFor(t ir.Type) (ir.Op, bool) {
	switch t {
	case ir.TI8:
		return ir.OpEXT8, true
	case ir.TI16:
		return ir.OpEXT16, true
	case ir.TI32:
		return ir.OpEXT32, true
	case ir.TU8:
		return ir.OpUEXT8, true
	case ir.TU16:
		return ir.OpUEXT16, true
	case ir.TU32:
		return ir.OpUEXT32, true
	default:
		return 0, false
	}
}

// measureBlkOffset replays the classifier with no emission (spec §4.3
// pass 1) purely to compute the total stack space that by-address block
// arguments will need below the outgoing-argument area.
func measureBlkOffset(call *ir.Insn, argsStart, nargs int, argType func(int) ir.Type) int64 {
	var intArgNum, fpArgNum, blkOffset int64
	for i := argsStart; i < len(call.Ops); i++ {
		t := argType(i - argsStart)
		switch {
		case t == ir.TBLK2 && blockQwords(call.Ops[i]) <= 2:
			q := blockQwords(call.Ops[i])
			if fpArgNum+q > 8 {
				extra := q
				if fpArgNum+q == 9 {
					extra--
				}
				blkOffset += extra * 8
			}
			fpArgNum += q
		case t.BlockType() && t != ir.TRBLK && blockQwords(call.Ops[i]) <= 2:
			q := blockQwords(call.Ops[i])
			if t == ir.TBLK1 {
				intArgNum = (intArgNum + 1) / 2 * 2
			}
			if intArgNum+q > 8 {
				extra := q
				if intArgNum+q == 9 {
					extra--
				}
				blkOffset += extra * 8
			}
			intArgNum += q
		case t.BlockType():
			if t == ir.TLD {
				intArgNum = (intArgNum + 1) / 2 * 2
			}
			if intArgNum >= 8 {
				blkOffset += 8
				if t == ir.TLD {
					blkOffset += 8
				}
			}
			intArgNum++
			if t == ir.TLD {
				intArgNum++
			}
		case t == ir.TLD:
			intArgNum = (intArgNum + 1) / 2 * 2
			if intArgNum >= 8 {
				blkOffset += 16
			}
			intArgNum += 2
		case t.FPType():
			if i-argsStart >= nargs {
				if intArgNum >= 8 {
					blkOffset += 8
				}
				intArgNum++
			} else {
				if fpArgNum >= 8 {
					blkOffset += 8
				}
				fpArgNum++
			}
		default:
			if intArgNum >= 8 {
				blkOffset += 8
			}
			intArgNum++
		}
	}
	return roundUp16(blkOffset)
}

// emitSmallBlockArg decomposes a ≤2-qword packed-int (TBLK1) or
// packed-double (TBLK2) block argument into 1-2 word-sized moves,
// straddling halves spilled to the outgoing-argument stack area when the
// register file is exhausted (spec §4.3).
func emitSmallBlockArg(f *ir.Func, call *ir.Insn, arg ir.Operand, t ir.Type, qwords int64, c *abi.Counters, memSize *int64) {
	packedDouble := t == ir.TBLK2
	if t == ir.TBLK1 {
		c.IntArgNum = (c.IntArgNum + 1) / 2 * 2
	}
	base := func(n int64) ir.Operand {
		if arg.Mem.BaseIsVReg {
			return ir.VRegMemOp(ir.TI64, n*8, arg.Mem.BaseVReg)
		}
		return ir.MemOp(ir.TI64, n*8, arg.Mem.Base, ir.NoHardReg, 1)
	}
	for n := int64(0); n < qwords; n++ {
		if packedDouble {
			if c.FPArgNum < 8 {
				reg := ir.HardRegOp(ir.TD, ir.FA0+ir.HardReg(c.FPArgNum))
				gen(f, call, ir.OpDMOV, reg, base(n))
				c.FPArgNum++
			} else {
				temp := ir.RegOp(ir.TD, f.NewTempVReg())
				gen(f, call, ir.OpDMOV, temp, base(n))
				gen(f, call, ir.OpDMOV, ir.MemOp(ir.TD, *memSize, ir.SP, ir.NoHardReg, 1), temp)
				*memSize += 8
			}
			continue
		}
		if c.IntArgNum < 8 {
			reg := ir.HardRegOp(ir.TI64, ir.A0+ir.HardReg(c.IntArgNum))
			gen(f, call, ir.OpMOV, reg, base(n))
			c.IntArgNum++
		} else {
			temp := ir.RegOp(ir.TI64, f.NewTempVReg())
			gen(f, call, ir.OpMOV, temp, base(n))
			gen(f, call, ir.OpMOV, ir.MemOp(ir.TI64, *memSize, ir.SP, ir.NoHardReg, 1), temp)
			*memSize += 8
		}
	}
}

// genBlkMov copies a >2-qword block argument to the outgoing-argument
// area below the call: inline word-at-a-time for ≤16 qwords, otherwise a
// call through the mir.blk_mov builtin with A0-A2 saved around it (spec
// §4.3, mir-gen-riscv64.c's gen_blk_mov).
func genBlkMov(f *ir.Func, call *ir.Insn, toDisp int64, toBase ir.HardReg, fromVReg ir.VReg, fromHard ir.HardReg, fromIsVReg bool, qwords int64, saveRegs int) {
	fromMem := func(disp int64) ir.Operand {
		if fromIsVReg {
			return ir.VRegMemOp(ir.TI64, disp, fromVReg)
		}
		return ir.MemOp(ir.TI64, disp, fromHard, ir.NoHardReg, 1)
	}

	if qwords <= 16 {
		toAddr := ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, call, ir.OpMOV, toAddr, ir.IntOp(toDisp))
		gen(f, call, ir.OpADD, toAddr, toAddr, ir.HardRegOp(ir.TI64, toBase))
		fromDisp := int64(0)
		for n := int64(0); n < qwords; n++ {
			tmp := ir.RegOp(ir.TI64, f.NewTempVReg())
			gen(f, call, ir.OpMOV, tmp, fromMem(fromDisp))
			gen(f, call, ir.OpMOV, ir.VRegMemOp(ir.TI64, n*8, toAddr.Reg), tmp)
			fromDisp += 8
		}
		return
	}

	var saveA0, saveA1, saveA2 ir.Operand
	if saveRegs > 0 {
		saveA0 = ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, call, ir.OpMOV, saveA0, ir.HardRegOp(ir.TI64, ir.A0))
	}
	if saveRegs > 1 {
		saveA1 = ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, call, ir.OpMOV, saveA1, ir.HardRegOp(ir.TI64, ir.A1))
	}
	if saveRegs > 2 {
		saveA2 = ir.RegOp(ir.TI64, f.NewTempVReg())
		gen(f, call, ir.OpMOV, saveA2, ir.HardRegOp(ir.TI64, ir.A2))
	}

	d := builtin.BlkMov
	item := &ir.Item{Kind: ir.ItemImport, Name: d.Name, Trampoline: d.Trampoline}
	freg := ir.RegOp(ir.TI64, f.NewTempVReg())
	gen(f, call, ir.OpMOV, freg, ir.RefOp(item))

	toOff := ir.RegOp(ir.TI64, f.NewTempVReg())
	gen(f, call, ir.OpMOV, toOff, ir.IntOp(toDisp))
	gen(f, call, ir.OpADD, ir.HardRegOp(ir.TI64, ir.A0), ir.HardRegOp(ir.TI64, toBase), toOff)
	if fromIsVReg {
		gen(f, call, ir.OpADD, ir.HardRegOp(ir.TI64, ir.A1), ir.RegOp(ir.TI64, fromVReg), ir.IntOp(0))
	} else {
		gen(f, call, ir.OpADD, ir.HardRegOp(ir.TI64, ir.A1), ir.HardRegOp(ir.TI64, fromHard), ir.IntOp(0))
	}
	gen(f, call, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A2), ir.IntOp(qwords))

	proto := &ir.Item{Kind: ir.ItemProto, Name: d.ProtoName, ArgTypes: d.ArgTypes, ResultTypes: d.ResTypes}
	blkCall := ir.NewInsn(ir.OpCALL, ir.RefOp(proto), freg, ir.HardRegOp(ir.TI64, ir.A0), ir.HardRegOp(ir.TI64, ir.A1), ir.HardRegOp(ir.TI64, ir.A2))
	f.InsertBefore(call, blkCall)

	if saveRegs > 0 {
		gen(f, call, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A0), saveA0)
	}
	if saveRegs > 1 {
		gen(f, call, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A1), saveA1)
	}
	if saveRegs > 2 {
		gen(f, call, ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A2), saveA2)
	}
}

// roundUp16 rounds n up to the next multiple of 16 (the stack-alignment
// rounding every outgoing-argument size in spec §4.3 goes through).
func roundUp16(n int64) int64 { return (n + 15) / 16 * 16 }

// lowerCallResults assigns each call result operand to its ABI return
// register — (FA0,FA1), (A0,A1), or a single (A0,A1) long-double pair —
// mirroring the prologue's RET classifier but capped at two results
// (spec §4.3).
func lowerCallResults(f *ir.Func, call *ir.Insn, proto *ir.Item, nres int) error {
	var nInt, nFP int
	anchor := call
	for i := 0; i < nres; i++ {
		dst := call.Ops[callArgsBase+i]
		t := proto.ResultTypes[i]
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
		case !t.FPType() && nInt < 2:
			mov = ir.OpMOV
			reg = ir.A0 + ir.HardReg(nInt)
			nInt++
		default:
			return &ErrCallOp{Reason: "riscv cannot handle this combination of call results"}
		}
		regOp := ir.HardRegOp(t, reg)
		after := ir.NewInsn(mov, dst, regOp)
		f.InsertAfter(anchor, after)
		anchor = after
		call.Ops[callArgsBase+i] = regOp
		if ext, ok := extCodeFor(t); ok {
			extInsn := ir.NewInsn(ext, dst, dst)
			f.InsertAfter(anchor, extInsn)
			anchor = extInsn
		}
	}
	return nil
}
