package ir

// Op is an IR opcode. The set here covers every opcode spec.md's
// component design names: integer/float/double/long-double arithmetic,
// compares, fused compare-and-branch, extensions, memory moves, calls,
// returns, vararg access, allocation, switch, and the synthetic unspec
// ops the backend introduces during lowering.
type Op int

const (
	OpInvalid Op = iota

	// Data movement.
	OpMOV  // integer/pointer move (register, memory, or 32/64-bit immediate)
	OpFMOV // float move
	OpDMOV // double move
	OpLDMOV // long-double move (register pair or memory)

	// Sign/zero extension.
	OpEXT8
	OpEXT16
	OpEXT32
	OpUEXT8
	OpUEXT16
	OpUEXT32

	// Integer arithmetic (64-bit).
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpUDIV
	OpMOD
	OpUMOD
	OpAND
	OpOR
	OpXOR
	OpLSH
	OpRSH
	OpURSH
	OpNEG
	OpNOT

	// Integer arithmetic (32-bit, "S" suffix in the original naming).
	OpADDS
	OpSUBS
	OpMULS

	// Float/double/long-double arithmetic.
	OpFADD
	OpDADD
	OpLDADD
	OpFSUB
	OpDSUB
	OpLDSUB
	OpFMUL
	OpDMUL
	OpLDMUL
	OpFDIV
	OpDDIV
	OpLDDIV
	OpFNEG
	OpDNEG
	OpLDNEG

	// Integer compares (produce 0/1).
	OpEQ
	OpNE
	OpLT
	OpULT
	OpLE
	OpULE
	OpGT
	OpUGT
	OpGE
	OpUGE

	// Short (32-bit truncated) integer compares, rewritten during
	// machinization into full-width compares (spec §4.2).
	OpEQS
	OpNES
	OpLTS
	OpULTS
	OpLES
	OpULES
	OpGTS
	OpUGTS
	OpGES
	OpUGES

	// Compare-and-branch, fused forms for integers.
	OpBEQ
	OpBNE
	OpBLT
	OpUBLT
	OpBLE
	OpUBLE
	OpBGT
	OpUBGT
	OpBGE
	OpUBGE
	OpBEQS
	OpBNES
	OpBLTS
	OpUBLTS
	OpBLES
	OpUBLES
	OpBGTS
	OpUBGTS
	OpBGES
	OpUBGES

	// Float/double/long-double compares and fused compare-and-branch,
	// split during machinization into a plain compare plus BT (spec §4.2).
	OpFEQ
	OpFNE
	OpFLT
	OpFLE
	OpFGT
	OpFGE
	OpFBEQ
	OpFBNE
	OpFBLT
	OpFBLE
	OpFBGT
	OpFBGE
	OpDEQ
	OpDNE
	OpDLT
	OpDLE
	OpDGT
	OpDGE
	OpDBEQ
	OpDBNE
	OpDBLT
	OpDBLE
	OpDBGT
	OpDBGE
	OpLDEQ
	OpLDNE
	OpLDLT
	OpLDLE
	OpLDGT
	OpLDGE
	OpLDBEQ
	OpLDBNE
	OpLDBLT
	OpLDBLE
	OpLDBGT
	OpLDBGE

	// Conversions.
	OpI2F
	OpI2D
	OpI2LD
	OpUI2LD
	OpF2LD
	OpD2LD
	OpLD2I
	OpLD2F
	OpLD2D

	// Control flow.
	OpLABEL // zero-size position marker; Ops[0] is a LabelOp
	OpJMP
	OpBT
	OpBF
	OpSWITCH
	OpCALL
	OpINLINE
	OpRET

	// Allocation and vararg access.
	OpALLOCA
	OpVA_ARG
	OpVA_BLOCK_ARG
	OpVA_START
	OpVA_END

	// Synthetic, backend-introduced pseudo-instruction (spec glossary:
	// "Unspec insn"). Used for fmv.x.w / fmv.x.d transfers.
	OpUNSPEC
)

// UnspecCode distinguishes OpUNSPEC variants. Registered at target.Init
// time (spec §6, "target_init").
type UnspecCode int32

const (
	UnspecFMVXW UnspecCode = 0
	UnspecFMVXD UnspecCode = 1
)

// CallOp reports whether op is one of the call-family opcodes.
func CallOp(op Op) bool { return op == OpCALL || op == OpINLINE }

// CompareBranchOp reports whether op is a fused F/D/LD compare-and-branch
// opcode that machinization must split into compare+BT (spec §4.2).
func CompareBranchOp(op Op) bool {
	switch op {
	case OpFBEQ, OpFBNE, OpFBLT, OpFBLE, OpFBGT, OpFBGE,
		OpDBEQ, OpDBNE, OpDBLT, OpDBLE, OpDBGT, OpDBGE,
		OpLDBEQ, OpLDBNE, OpLDBLT, OpLDBLE, OpLDBGT, OpLDBGE:
		return true
	default:
		return false
	}
}

// compareBranchPlain maps a fused compare-and-branch opcode to its plain
// compare form (spec §4.2's FBEQ..LDBLE splitting table).
var compareBranchPlain = map[Op]Op{
	OpFBEQ: OpFEQ, OpFBNE: OpFNE, OpFBLT: OpFLT, OpFBLE: OpFLE, OpFBGT: OpFGT, OpFBGE: OpFGE,
	OpDBEQ: OpDEQ, OpDBNE: OpDNE, OpDBLT: OpDLT, OpDBLE: OpDLE, OpDBGT: OpDGT, OpDBGE: OpDGE,
	OpLDBEQ: OpLDEQ, OpLDBNE: OpLDNE, OpLDBLT: OpLDLT, OpLDBLE: OpLDLE, OpLDBGT: OpLDGT, OpLDBGE: OpLDGE,
}

// PlainCompare returns the non-branching compare form of a fused
// compare-and-branch opcode, and whether op was such an opcode.
func PlainCompare(op Op) (Op, bool) {
	p, ok := compareBranchPlain[op]
	return p, ok
}

// shortCompareExt maps a short-integer compare/branch opcode to the
// extension opcode machinization must apply to both operands before
// performing the full-width compare (spec §4.2).
var shortCompareExt = map[Op]Op{
	OpEQS: OpEXT32, OpNES: OpEXT32, OpLTS: OpEXT32, OpLES: OpEXT32, OpGTS: OpEXT32, OpGES: OpEXT32,
	OpBEQS: OpEXT32, OpBNES: OpEXT32, OpBLTS: OpEXT32, OpBLES: OpEXT32, OpBGTS: OpEXT32, OpBGES: OpEXT32,
	OpULTS: OpUEXT32, OpULES: OpUEXT32, OpUGTS: OpUEXT32, OpUGES: OpUEXT32,
	OpUBLTS: OpUEXT32, OpUBLES: OpUEXT32, OpUBGTS: OpUEXT32, OpUBGES: OpUEXT32,
}

// shortCompareFull maps a short-integer compare/branch opcode to the
// equivalent full-width opcode applied after extension.
var shortCompareFull = map[Op]Op{
	OpEQS: OpEQ, OpNES: OpNE, OpLTS: OpLT, OpLES: OpLE, OpGTS: OpGT, OpGES: OpGE,
	OpULTS: OpULT, OpULES: OpULE, OpUGTS: OpUGT, OpUGES: OpUGE,
	OpBEQS: OpBEQ, OpBNES: OpBNE, OpBLTS: OpBLT, OpBLES: OpBLE, OpBGTS: OpBGT, OpBGES: OpBGE,
	OpUBLTS: OpUBLT, OpUBLES: OpUBLE, OpUBGTS: OpUBGT, OpUBGES: OpUBGE,
}

// ShortCompareLowering returns the extension opcode to apply to both
// operands and the full-width opcode to use afterward, for a short
// (32-bit truncated) compare/branch opcode.
func ShortCompareLowering(op Op) (ext, full Op, ok bool) {
	ext, ok = shortCompareExt[op]
	if !ok {
		return 0, 0, false
	}
	full = shortCompareFull[op]
	return ext, full, true
}
