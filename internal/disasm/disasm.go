// Package disasm renders RV64IMFD machine words emitted by
// internal/pattern back into a human-readable mnemonic line, for the
// cmd/mirgenrv64 CLI's "disasm" subcommand. It covers the instruction
// forms this backend's own pattern table actually emits (spec.md §4.5);
// it is not a general RV64GC disassembler.
package disasm

import "fmt"

var gprNames = [32]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"fp", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

var fprNames = [32]string{
	"ft0", "ft1", "ft2", "ft3", "ft4", "ft5", "ft6", "ft7",
	"fs0", "fs1", "fa0", "fa1", "fa2", "fa3", "fa4", "fa5",
	"fa6", "fa7", "fs2", "fs3", "fs4", "fs5", "fs6", "fs7",
	"fs8", "fs9", "fs10", "fs11", "ft8", "ft9", "ft10", "ft11",
}

func gpr(n uint32) string { return gprNames[n&0x1f] }
func fpr(n uint32) string { return fprNames[n&0x1f] }

func fields(w uint32) (opcode, rd, funct3, rs1, rs2, funct7 uint32) {
	opcode = w & 0x7f
	rd = (w >> 7) & 0x1f
	funct3 = (w >> 12) & 0x7
	rs1 = (w >> 15) & 0x1f
	rs2 = (w >> 20) & 0x1f
	funct7 = (w >> 25) & 0x7f
	return
}

func signExtend(v uint32, bits int) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

func iImm(w uint32) int32 { return signExtend(w>>20, 12) }

func sImm(w uint32) int32 {
	lo := (w >> 7) & 0x1f
	hi := (w >> 25) & 0x7f
	return signExtend(hi<<5|lo, 12)
}

func bImm(w uint32) int32 {
	b11 := (w >> 7) & 1
	b4_1 := (w >> 8) & 0xf
	b10_5 := (w >> 25) & 0x3f
	b12 := (w >> 31) & 1
	v := b12<<12 | b11<<11 | b10_5<<5 | b4_1<<1
	return signExtend(v, 13)
}

func jImm(w uint32) int32 {
	b19_12 := (w >> 12) & 0xff
	b11 := (w >> 20) & 1
	b10_1 := (w >> 21) & 0x3ff
	b20 := (w >> 31) & 1
	v := b20<<20 | b19_12<<12 | b11<<11 | b10_1<<1
	return signExtend(v, 21)
}

// Word renders one 32-bit instruction word to its mnemonic text.
func Word(w uint32) string {
	opcode, rd, f3, rs1, rs2, f7 := fields(w)
	switch opcode {
	case 0x33: // R-type integer
		return rType(f3, f7, rd, rs1, rs2)
	case 0x3b: // R-type 32-bit ("W" forms)
		return rType32(f3, f7, rd, rs1, rs2)
	case 0x13: // I-type ALU
		return iTypeALU(f3, rd, rs1, iImm(w), w)
	case 0x03: // load
		return fmt.Sprintf("%-7s %s, %d(%s)", loadMnemonic(f3), gpr(rd), iImm(w), gpr(rs1))
	case 0x23: // store
		return fmt.Sprintf("%-7s %s, %d(%s)", storeMnemonic(f3), gpr(rs2), sImm(w), gpr(rs1))
	case 0x63: // branch
		return fmt.Sprintf("%-7s %s, %s, %+d", branchMnemonic(f3), gpr(rs1), gpr(rs2), bImm(w))
	case 0x6f: // jal
		return fmt.Sprintf("%-7s %s, %+d", "jal", gpr(rd), jImm(w))
	case 0x67: // jalr
		return fmt.Sprintf("%-7s %s, %s, %d", "jalr", gpr(rd), gpr(rs1), iImm(w))
	case 0x37: // lui
		return fmt.Sprintf("%-7s %s, %#x", "lui", gpr(rd), w&0xfffff000)
	case 0x17: // auipc
		return fmt.Sprintf("%-7s %s, %#x", "auipc", gpr(rd), w&0xfffff000)
	case 0x07: // FP load (flw/fld)
		mn := "flw"
		if f3 == 3 {
			mn = "fld"
		}
		return fmt.Sprintf("%-7s %s, %d(%s)", mn, fpr(rd), iImm(w), gpr(rs1))
	case 0x27: // FP store (fsw/fsd)
		mn := "fsw"
		if f3 == 3 {
			mn = "fsd"
		}
		return fmt.Sprintf("%-7s %s, %d(%s)", mn, fpr(rs2), sImm(w), gpr(rs1))
	case 0x53: // FP arithmetic (F/D)
		return fpArith(f7, rd, rs1, rs2)
	default:
		return fmt.Sprintf(".word %#08x", w)
	}
}

func rType(f3, f7, rd, rs1, rs2 uint32) string {
	mn, ok := map[[2]uint32]string{
		{0, 0}: "add", {0, 0x20}: "sub", {0, 1}: "mul",
		{1, 0}: "sll", {1, 1}: "mulh",
		{2, 0}: "slt", {3, 0}: "sltu",
		{4, 0}: "xor", {4, 1}: "div",
		{5, 0}: "srl", {5, 0x20}: "sra", {5, 1}: "divu",
		{6, 0}: "or", {6, 1}: "rem",
		{7, 0}: "and", {7, 1}: "remu",
	}[[2]uint32{f3, f7}]
	if !ok {
		mn = fmt.Sprintf("r.f3=%d.f7=%d", f3, f7)
	}
	return fmt.Sprintf("%-7s %s, %s, %s", mn, gpr(rd), gpr(rs1), gpr(rs2))
}

func rType32(f3, f7, rd, rs1, rs2 uint32) string {
	mn, ok := map[[2]uint32]string{
		{0, 0}: "addw", {0, 0x20}: "subw", {0, 1}: "mulw",
		{4, 1}: "divw", {5, 1}: "divuw", {6, 1}: "remw", {7, 1}: "remuw",
		{5, 0}: "srlw", {5, 0x20}: "sraw", {1, 0}: "sllw",
	}[[2]uint32{f3, f7}]
	if !ok {
		mn = fmt.Sprintf("r32.f3=%d.f7=%d", f3, f7)
	}
	return fmt.Sprintf("%-7s %s, %s, %s", mn, gpr(rd), gpr(rs1), gpr(rs2))
}

func iTypeALU(f3, rd, rs1 uint32, imm int32, w uint32) string {
	switch f3 {
	case 0:
		return fmt.Sprintf("%-7s %s, %s, %d", "addi", gpr(rd), gpr(rs1), imm)
	case 1:
		return fmt.Sprintf("%-7s %s, %s, %d", "slli", gpr(rd), gpr(rs1), imm&0x3f)
	case 2:
		return fmt.Sprintf("%-7s %s, %s, %d", "slti", gpr(rd), gpr(rs1), imm)
	case 3:
		return fmt.Sprintf("%-7s %s, %s, %d", "sltiu", gpr(rd), gpr(rs1), imm)
	case 4:
		return fmt.Sprintf("%-7s %s, %s, %d", "xori", gpr(rd), gpr(rs1), imm)
	case 5:
		if (w>>30)&1 == 1 {
			return fmt.Sprintf("%-7s %s, %s, %d", "srai", gpr(rd), gpr(rs1), imm&0x3f)
		}
		return fmt.Sprintf("%-7s %s, %s, %d", "srli", gpr(rd), gpr(rs1), imm&0x3f)
	case 6:
		return fmt.Sprintf("%-7s %s, %s, %d", "ori", gpr(rd), gpr(rs1), imm)
	case 7:
		return fmt.Sprintf("%-7s %s, %s, %d", "andi", gpr(rd), gpr(rs1), imm)
	default:
		return fmt.Sprintf("i.f3=%d", f3)
	}
}

func loadMnemonic(f3 uint32) string {
	return map[uint32]string{0: "lb", 1: "lh", 2: "lw", 3: "ld", 4: "lbu", 5: "lhu", 6: "lwu"}[f3]
}

func storeMnemonic(f3 uint32) string {
	return map[uint32]string{0: "sb", 1: "sh", 2: "sw", 3: "sd"}[f3]
}

func branchMnemonic(f3 uint32) string {
	return map[uint32]string{0: "beq", 1: "bne", 4: "blt", 5: "bge", 6: "bltu", 7: "bgeu"}[f3]
}

func fpArith(f7, rd, rs1, rs2 uint32) string {
	isDouble := f7&1 == 1
	suffix := ".s"
	rdName, rs1Name, rs2Name := fpr(rd), fpr(rs1), fpr(rs2)
	if isDouble {
		suffix = ".d"
	}
	switch f7 >> 2 {
	case 0:
		return fmt.Sprintf("%-7s %s, %s, %s", "fadd"+suffix, rdName, rs1Name, rs2Name)
	case 1:
		return fmt.Sprintf("%-7s %s, %s, %s", "fsub"+suffix, rdName, rs1Name, rs2Name)
	case 2:
		return fmt.Sprintf("%-7s %s, %s, %s", "fmul"+suffix, rdName, rs1Name, rs2Name)
	case 3:
		return fmt.Sprintf("%-7s %s, %s, %s", "fdiv"+suffix, rdName, rs1Name, rs2Name)
	default:
		return fmt.Sprintf("fp.f7=%d %s, %s, %s", f7, rdName, rs1Name, rs2Name)
	}
}

// Listing renders every 4-byte-aligned word in code as an address-
// prefixed line. Constant-pool and switch-table bytes past the last
// real instruction decode as nonsense opcodes; callers that know where
// the instruction stream ends (e.g. from label positions) should slice
// code before calling Listing.
func Listing(code []byte) []string {
	var lines []string
	for off := 0; off+4 <= len(code); off += 4 {
		w := uint32(code[off]) | uint32(code[off+1])<<8 | uint32(code[off+2])<<16 | uint32(code[off+3])<<24
		lines = append(lines, fmt.Sprintf("%6d:  %08x  %s", off, w, Word(w)))
	}
	return lines
}
