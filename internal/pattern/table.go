package pattern

import (
	"fmt"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// RV64 base opcodes (inst[6:0]).
const (
	opLoad    = 0x03
	opLoadFP  = 0x07
	opOpImm   = 0x13
	opAUIPC   = 0x17
	opStore   = 0x23
	opStoreFP = 0x27
	opOp      = 0x33
	opLUI     = 0x37
	opOpImm32 = 0x1b
	opOp32    = 0x3b
	opOpFP    = 0x53
	opBranch  = 0x63
	opJALR    = 0x67
	opJAL     = 0x6f
)

// Load/store funct3 values.
const (
	f3LB, f3LH, f3LW, f3LD, f3LBU, f3LHU, f3LWU = 0, 1, 2, 3, 4, 5, 6
	f3SB, f3SH, f3SW, f3SD                      = 0, 1, 2, 3
)

// Branch funct3 values.
const (
	f3BEQ, f3BNE, f3BLT, f3BGE, f3BLTU, f3BGEU = 0, 1, 4, 5, 6, 7
)

// OP/OP-32 funct3/funct7 (base + M-extension).
const (
	f3ADD, f3SLL, f3SLT, f3SLTU, f3XOR, f3SRL, f3OR, f3AND = 0, 1, 2, 3, 4, 5, 6, 7
	f7Base, f7Sub, f7MExt                                  = 0, 0x20, 1
	f3MUL, f3MULH, f3MULHSU, f3MULHU                       = 0, 1, 2, 3
	f3DIV, f3DIVU, f3REM, f3REMU                           = 4, 5, 6, 7
)

// OP-FP funct7 (fmt encoded in low 2 bits: 00=S, 01=D).
const (
	f7FADD_S, f7FADD_D     = 0x00, 0x01
	f7FSUB_S, f7FSUB_D     = 0x04, 0x05
	f7FMUL_S, f7FMUL_D     = 0x08, 0x09
	f7FDIV_S, f7FDIV_D     = 0x0c, 0x0d
	f7FSGNJ_S, f7FSGNJ_D   = 0x10, 0x11
	f7FCMP_S, f7FCMP_D     = 0x50, 0x51
	f7FMVX_S, f7FMVX_D     = 0x70, 0x71
)

const (
	f3FSGNJ, f3FSGNJN            = 0, 1
	f3FLE, f3FLT, f3FEQ          = 0, 1, 2
	rs2FMVX                      = 0
)

// Pattern is one entry in the pattern table: an opcode plus the
// position-sensitive operand shape it matches, plus the per-word
// encoding directives that produce its machine code (spec §4.5).
type Pattern struct {
	Op    ir.Op
	Shape []ShapeTerm
	Words []Word

	// CodeSet/Code restrict this entry to OpUNSPEC instructions carrying
	// the given UnspecCode (spec §4.5: UNSPEC dispatches on code, not on
	// an operand shape).
	CodeSet bool
	Code    ir.UnspecCode
}

// Word is one 32-bit instruction word's worth of field directives.
type Word []Directive

func mustShape(s string) []ShapeTerm {
	t, err := ParseShape(s)
	if err != nil {
		panic(err)
	}
	return t
}

func p(op ir.Op, shape string, words ...Word) Pattern {
	return Pattern{Op: op, Shape: mustShape(shape), Words: words}
}

func rtype(opcode, f3, f7 uint32) Word {
	return Word{Op(opcode), F3(f3), F7(f7), Rd(0), Rs1(1), Rs2(2)}
}

func itypeImm(opcode, f3 uint32) Word {
	return Word{Op(opcode), F3(f3), Rd(0), Rs1(1), Imm(2)}
}

func fcmp(f7, f3 uint32) Word {
	return Word{Op(opOpFP), F3(f3), F7(f7), Rd(0), Rs1(1), Rs2(2)}
}

// Table is the full set of patterns this backend knows how to emit.
// Every opcode machinization ever produces has at least one entry here;
// each covers the operand shapes machinize and the prologue/epilogue
// synthesizer actually generate (spec §9's "representative subset"
// design note — see DESIGN.md).
var Table = buildValidatedTable()

func buildValidatedTable() []Pattern {
	t := buildTable()
	for i := range t {
		for wi, w := range t[i].Words {
			var seen uint32
			for _, d := range w {
				m := d.mask()
				if seen&m != 0 {
					panic(fmt.Sprintf("pattern: overlapping field directives in opcode %d word %d", t[i].Op, wi))
				}
				seen |= m
			}
		}
	}
	return t
}

func buildTable() []Pattern {
	var t []Pattern

	// --- Data movement --------------------------------------------------
	t = append(t,
		p(ir.OpMOV, "r r", Word{Op(opOpImm), F3(f3ADD), Rd(0), Rs1(1), ImmLit(0)}),
		p(ir.OpMOV, "r i", Word{Op(opOpImm), F3(f3ADD), Rd(0), HRs1(uint32(ir.ZERO)), Imm(1)}),
		p(ir.OpMOV, "r ia", Word{Op(opLUI), Rd(0), SplitHi(1)}, Word{Op(opOpImm), F3(f3ADD), Rd(0), Rs1(0), SplitLo(1)}),
		p(ir.OpMOV, "r I", Word{Op(opAUIPC), Rd(0), ConstPool(1)}, Word{Op(opLoad), F3(f3LD), Rd(0), Rs1(0), ConstPool(1)}),
		p(ir.OpMOV, "r m3", Word{Op(opLoad), F3(f3LD), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r ms2", Word{Op(opLoad), F3(f3LW), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r mu2", Word{Op(opLoad), F3(f3LWU), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r ms1", Word{Op(opLoad), F3(f3LH), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r mu1", Word{Op(opLoad), F3(f3LHU), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r ms0", Word{Op(opLoad), F3(f3LB), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "r mu0", Word{Op(opLoad), F3(f3LBU), MemLoad(1), Rd(0)}),
		p(ir.OpMOV, "m3 r", Word{Op(opStore), F3(f3SD), MemStore(0), Rs2(1)}),
		p(ir.OpMOV, "m2 r", Word{Op(opStore), F3(f3SW), MemStore(0), Rs2(1)}),
		p(ir.OpMOV, "m1 r", Word{Op(opStore), F3(f3SH), MemStore(0), Rs2(1)}),
		p(ir.OpMOV, "m0 r", Word{Op(opStore), F3(f3SB), MemStore(0), Rs2(1)}),
	)
	t = append(t,
		p(ir.OpFMOV, "r r", Word{Op(opOpFP), F3(f3FSGNJ), F7(f7FSGNJ_S), Rd(0), Rs1(1), Rs2(1)}),
		p(ir.OpFMOV, "r mf", Word{Op(opLoadFP), F3(f3LW), MemLoad(1), Rd(0)}),
		p(ir.OpFMOV, "mf r", Word{Op(opStoreFP), F3(f3SW), MemStore(0), Rs2(1)}),
		p(ir.OpDMOV, "r r", Word{Op(opOpFP), F3(f3FSGNJ), F7(f7FSGNJ_D), Rd(0), Rs1(1), Rs2(1)}),
		p(ir.OpDMOV, "r md", Word{Op(opLoadFP), F3(f3LD), MemLoad(1), Rd(0)}),
		p(ir.OpDMOV, "md r", Word{Op(opStoreFP), F3(f3SD), MemStore(0), Rs2(1)}),
		p(ir.OpLDMOV, "r r", Word{Op(opOpImm), F3(f3ADD), Rd(0), Rs1(1), ImmLit(0)}),
		p(ir.OpLDMOV, "r mld",
			Word{Op(opLoad), F3(f3LD), MemLoad(1), Rd(0)}),
		p(ir.OpLDMOV, "mld r",
			Word{Op(opStore), F3(f3SD), MemStore(0), Rs2(1)}),
	)

	// --- Extensions ------------------------------------------------------
	t = append(t,
		p(ir.OpEXT8, "r r", Word{Op(opOpImm), F3(f3SLL), Rd(0), Rs1(1), Shift6Lit(56)}, Word{Op(opOpImm), F3(f3SRL), F6(0x10), Rd(0), Rs1(0), Shift6Lit(56)}),
		p(ir.OpEXT16, "r r", Word{Op(opOpImm), F3(f3SLL), Rd(0), Rs1(1), Shift6Lit(48)}, Word{Op(opOpImm), F3(f3SRL), F6(0x10), Rd(0), Rs1(0), Shift6Lit(48)}),
		p(ir.OpEXT32, "r r", Word{Op(opOpImm32), F3(f3ADD), Rd(0), Rs1(1), ImmLit(0)}),
		p(ir.OpUEXT8, "r r", Word{Op(opOpImm), F3(f3AND), Rd(0), Rs1(1), ImmLit(0xff)}),
		p(ir.OpUEXT16, "r r", Word{Op(opOpImm), F3(f3SLL), Rd(0), Rs1(1), Shift6Lit(48)}, Word{Op(opOpImm), F3(f3SRL), Rd(0), Rs1(0), Shift6Lit(48)}),
		p(ir.OpUEXT32, "r r", Word{Op(opOpImm), F3(f3SLL), Rd(0), Rs1(1), Shift6Lit(32)}, Word{Op(opOpImm), F3(f3SRL), Rd(0), Rs1(0), Shift6Lit(32)}),
	)

	// --- Integer arithmetic (64-bit) ------------------------------------
	t = append(t,
		p(ir.OpADD, "r r r", rtype(opOp, f3ADD, f7Base)),
		p(ir.OpADD, "r r i", itypeImm(opOpImm, f3ADD)),
		p(ir.OpSUB, "r r r", rtype(opOp, f3ADD, f7Sub)),
		p(ir.OpSUB, "r r j", Word{Op(opOpImm), F3(f3ADD), Rd(0), Rs1(1), ImmNeg(2)}),
		p(ir.OpMUL, "r r r", rtype(opOp, f3MUL, f7MExt)),
		p(ir.OpDIV, "r r r", rtype(opOp, f3DIV, f7MExt)),
		p(ir.OpUDIV, "r r r", rtype(opOp, f3DIVU, f7MExt)),
		p(ir.OpMOD, "r r r", rtype(opOp, f3REM, f7MExt)),
		p(ir.OpUMOD, "r r r", rtype(opOp, f3REMU, f7MExt)),
		p(ir.OpAND, "r r r", rtype(opOp, f3AND, f7Base)),
		p(ir.OpAND, "r r i", itypeImm(opOpImm, f3AND)),
		p(ir.OpOR, "r r r", rtype(opOp, f3OR, f7Base)),
		p(ir.OpOR, "r r i", itypeImm(opOpImm, f3OR)),
		p(ir.OpXOR, "r r r", rtype(opOp, f3XOR, f7Base)),
		p(ir.OpXOR, "r r i", itypeImm(opOpImm, f3XOR)),
		p(ir.OpLSH, "r r r", rtype(opOp, f3SLL, f7Base)),
		p(ir.OpLSH, "r r s", Word{Op(opOpImm), F3(f3SLL), Rd(0), Rs1(1), Shift6(2)}),
		p(ir.OpRSH, "r r r", rtype(opOp, f3SRL|0, f7Sub)),
		p(ir.OpRSH, "r r s", Word{Op(opOpImm), F3(f3SRL), F6(0x10), Rd(0), Rs1(1), Shift6(2)}),
		p(ir.OpURSH, "r r r", rtype(opOp, f3SRL, f7Base)),
		p(ir.OpURSH, "r r s", Word{Op(opOpImm), F3(f3SRL), Rd(0), Rs1(1), Shift6(2)}),
		p(ir.OpNEG, "r r", Word{Op(opOp), F3(f3ADD), F7(f7Sub), Rd(0), HRs1(uint32(ir.ZERO)), Rs2(1)}),
		p(ir.OpNOT, "r r", Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(1), ImmLit(0xfff)}),
	)

	// --- Integer arithmetic (32-bit "S" variants) -----------------------
	t = append(t,
		p(ir.OpADDS, "r r r", rtype(opOp32, f3ADD, f7Base)),
		p(ir.OpADDS, "r r i", itypeImm(opOpImm32, f3ADD)),
		p(ir.OpSUBS, "r r r", rtype(opOp32, f3ADD, f7Sub)),
		p(ir.OpMULS, "r r r", rtype(opOp32, f3MUL, f7MExt)),
	)

	// --- Float/double/long-double arithmetic ----------------------------
	t = append(t,
		p(ir.OpFADD, "r r r", fcmp(f7FADD_S, 0)),
		p(ir.OpDADD, "r r r", fcmp(f7FADD_D, 0)),
		p(ir.OpFSUB, "r r r", fcmp(f7FSUB_S, 0)),
		p(ir.OpDSUB, "r r r", fcmp(f7FSUB_D, 0)),
		p(ir.OpFMUL, "r r r", fcmp(f7FMUL_S, 0)),
		p(ir.OpDMUL, "r r r", fcmp(f7FMUL_D, 0)),
		p(ir.OpFDIV, "r r r", fcmp(f7FDIV_S, 0)),
		p(ir.OpDDIV, "r r r", fcmp(f7FDIV_D, 0)),
		p(ir.OpFNEG, "r r", Word{Op(opOpFP), F3(f3FSGNJN), F7(f7FSGNJ_S), Rd(0), Rs1(1), Rs2(1)}),
		p(ir.OpDNEG, "r r", Word{Op(opOpFP), F3(f3FSGNJN), F7(f7FSGNJ_D), Rd(0), Rs1(1), Rs2(1)}),
		// Long-double arithmetic is always routed through the builtin
		// trampolines during machinization (spec §4.3) — no direct
		// hardware pattern exists for LDADD/LDSUB/LDMUL/LDDIV/LDNEG.
	)

	// --- Integer compares (produce 0/1) ----------------------------------
	t = append(t,
		p(ir.OpLT, "r r r", rtype(opOp, f3SLT, f7Base)),
		p(ir.OpULT, "r r r", rtype(opOp, f3SLTU, f7Base)),
		p(ir.OpEQ, "r r r", rtype(opOp, f3XOR, f7Base), Word{Op(opOpImm), F3(f3SLTU), Rd(0), Rs1(0), ImmLit(1)}),
		p(ir.OpNE, "r r r", rtype(opOp, f3XOR, f7Base), Word{Op(opOp), F3(f3SLTU), F7(f7Base), Rd(0), HRs1(uint32(ir.ZERO)), Rs2(0)}),
	)
	// GT/UGT reuse LT/ULT encodings with rs1/rs2 swapped (a > b is b < a);
	// GE/UGE negate LT/ULT (a >= b is !(a < b)) and LE/ULE negate the
	// swapped form (a <= b is !(b < a)). The swap is encoded directly in
	// the directive operand indices instead of duplicating rtype().
	t = append(t,
		p(ir.OpGT, "r r r", Word{Op(opOp), F3(f3SLT), F7(f7Base), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpUGT, "r r r", Word{Op(opOp), F3(f3SLTU), F7(f7Base), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpGE, "r r r", Word{Op(opOp), F3(f3SLT), F7(f7Base), Rd(0), Rs1(1), Rs2(2)}, Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
		p(ir.OpUGE, "r r r", Word{Op(opOp), F3(f3SLTU), F7(f7Base), Rd(0), Rs1(1), Rs2(2)}, Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
		p(ir.OpLE, "r r r", Word{Op(opOp), F3(f3SLT), F7(f7Base), Rd(0), Rs1(2), Rs2(1)}, Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
		p(ir.OpULE, "r r r", Word{Op(opOp), F3(f3SLTU), F7(f7Base), Rd(0), Rs1(2), Rs2(1)}, Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
	)

	// --- Float/double compares (produce 0/1) ----------------------------
	t = append(t,
		p(ir.OpFEQ, "r r r", fcmp(f7FCMP_S, f3FEQ)),
		p(ir.OpFLT, "r r r", fcmp(f7FCMP_S, f3FLT)),
		p(ir.OpFLE, "r r r", fcmp(f7FCMP_S, f3FLE)),
		p(ir.OpDEQ, "r r r", fcmp(f7FCMP_D, f3FEQ)),
		p(ir.OpDLT, "r r r", fcmp(f7FCMP_D, f3FLT)),
		p(ir.OpDLE, "r r r", fcmp(f7FCMP_D, f3FLE)),
		p(ir.OpFGT, "r r r", Word{Op(opOpFP), F3(f3FLT), F7(f7FCMP_S), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpFGE, "r r r", Word{Op(opOpFP), F3(f3FLE), F7(f7FCMP_S), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpDGT, "r r r", Word{Op(opOpFP), F3(f3FLT), F7(f7FCMP_D), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpDGE, "r r r", Word{Op(opOpFP), F3(f3FLE), F7(f7FCMP_D), Rd(0), Rs1(2), Rs2(1)}),
		p(ir.OpFNE, "r r r", fcmp(f7FCMP_S, f3FEQ), Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
		p(ir.OpDNE, "r r r", fcmp(f7FCMP_D, f3FEQ), Word{Op(opOpImm), F3(f3XOR), Rd(0), Rs1(0), ImmLit(1)}),
	)

	// --- Fused compare-and-branch for integers --------------------------
	t = append(t,
		p(ir.OpBEQ, "l r r", Word{Op(opBranch), F3(f3BEQ), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpBNE, "l r r", Word{Op(opBranch), F3(f3BNE), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpBLT, "l r r", Word{Op(opBranch), F3(f3BLT), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpUBLT, "l r r", Word{Op(opBranch), F3(f3BLTU), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpBGE, "l r r", Word{Op(opBranch), F3(f3BGE), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpUBGE, "l r r", Word{Op(opBranch), F3(f3BGEU), Rs1(1), Rs2(2), LabelShort(0)}),
		p(ir.OpBGT, "l r r", Word{Op(opBranch), F3(f3BLT), Rs1(2), Rs2(1), LabelShort(0)}),
		p(ir.OpUBGT, "l r r", Word{Op(opBranch), F3(f3BLTU), Rs1(2), Rs2(1), LabelShort(0)}),
		p(ir.OpBLE, "l r r", Word{Op(opBranch), F3(f3BGE), Rs1(2), Rs2(1), LabelShort(0)}),
		p(ir.OpUBLE, "l r r", Word{Op(opBranch), F3(f3BGEU), Rs1(2), Rs2(1), LabelShort(0)}),
	)

	// --- Control flow -----------------------------------------------------
	t = append(t,
		p(ir.OpJMP, "L", Word{Op(opJAL), HRd(uint32(ir.ZERO)), LabelLong(0)}),
		p(ir.OpBT, "l r", Word{Op(opBranch), F3(f3BNE), Rs1(1), HRs2(uint32(ir.ZERO)), LabelShort(0)}),
		p(ir.OpBF, "l r", Word{Op(opBranch), F3(f3BEQ), Rs1(1), HRs2(uint32(ir.ZERO)), LabelShort(0)}),
		p(ir.OpRET, "X", Word{Op(opJALR), HRd(uint32(ir.ZERO)), HRs1(uint32(ir.RA)), ImmLit(0)}),
	)

	// --- Calls -------------------------------------------------------------
	// Operand 0 is the proto reference MachinizeCall leaves in place for
	// the encoder's own bookkeeping (it carries no bits of its own here);
	// operand 1 is the hard register holding the callee's resolved
	// address; everything after that is the call's result/argument tail,
	// already placed into ABI registers by machinization (spec §4.3) and
	// not encoded here.
	t = append(t,
		p(ir.OpCALL, "I r X", Word{Op(opJALR), HRd(uint32(ir.RA)), Rs1(1), ImmLit(0)}),
	)

	// --- ALLOCA: dst = sp after bumping sp down by a 16-byte-aligned size:
	//   addi t5, size, 15 ; andi t5, t5, -16 ; sub sp, sp, t5 ; addi dst, sp, 0
	t = append(t,
		p(ir.OpALLOCA, "r r",
			Word{Op(opOpImm), F3(f3ADD), HRd(uint32(ir.TempInt1)), Rs1(1), ImmLit(15)},
			Word{Op(opOpImm), F3(f3AND), HRd(uint32(ir.TempInt1)), HRs1(uint32(ir.TempInt1)), ImmLit(0xff0)},
			Word{Op(opOp), F3(f3ADD), F7(f7Sub), HRd(uint32(ir.SP)), HRs1(uint32(ir.SP)), HRs2(uint32(ir.TempInt1))},
			Word{Op(opOpImm), F3(f3ADD), Rd(0), HRs1(uint32(ir.SP)), ImmLit(0)},
		),
	)

	// --- SWITCH: indirect dispatch through a post-code jump table of
	// PC-relative deltas (spec §4.5's "T" directive, spec §8's
	// switch-table relocation list):
	//   auipc t5, %hi(table-pc)        ; t5 = table_base_approx
	//   slli  t6, idx, 3               ; t6 = idx*8
	//   add   t5, t5, t6               ; t5 = table_base_approx + idx*8
	//   ld    t6, %lo(table)(t5)       ; t6 = delta = target - entry_addr
	//   addi  t5, t5, %lo(table)       ; t5 = entry_addr
	//   add   t6, t6, t5               ; t6 = target address
	//   jalr  x0, t6, 0
	t = append(t,
		p(ir.OpSWITCH, "r L X",
			Word{Op(opAUIPC), HRd(uint32(ir.TempInt1)), SwitchTable()},
			Word{Op(opOpImm), F3(f3SLL), HRd(uint32(ir.TempInt2)), Rs1(0), ImmLit(3)},
			Word{Op(opOp), F3(f3ADD), F7(f7Base), HRd(uint32(ir.TempInt1)), HRs1(uint32(ir.TempInt1)), HRs2(uint32(ir.TempInt2))},
			Word{Op(opLoad), F3(f3LD), HRd(uint32(ir.TempInt2)), HRs1(uint32(ir.TempInt1)), SwitchTable()},
			Word{Op(opOpImm), F3(f3ADD), HRd(uint32(ir.TempInt1)), HRs1(uint32(ir.TempInt1)), SwitchTable()},
			Word{Op(opOp), F3(f3ADD), F7(f7Base), HRd(uint32(ir.TempInt2)), HRs1(uint32(ir.TempInt2)), HRs2(uint32(ir.TempInt1))},
			Word{Op(opJALR), HRd(uint32(ir.ZERO)), HRs1(uint32(ir.TempInt2)), ImmLit(0)},
		),
	)

	// --- UNSPEC: fmv.x.w / fmv.x.d, the only two synthetic pseudo-insns
	// this backend introduces (spec glossary, "Unspec insn").
	fmvxw := p(ir.OpUNSPEC, "r r", Word{Op(opOpFP), F3(0), F7(f7FMVX_S), Rd(0), Rs1(1), HRs2(rs2FMVX)})
	fmvxw.CodeSet, fmvxw.Code = true, ir.UnspecFMVXW
	fmvxd := p(ir.OpUNSPEC, "r r", Word{Op(opOpFP), F3(0), F7(f7FMVX_D), Rd(0), Rs1(1), HRs2(rs2FMVX)})
	fmvxd.CodeSet, fmvxd.Code = true, ir.UnspecFMVXD
	t = append(t, fmvxw, fmvxd)

	return t
}
