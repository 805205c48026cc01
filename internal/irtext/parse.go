// Package irtext parses the small assembler-ish textual IR format the
// cmd/mirgenrv64 CLI reads, so the library can be exercised end to end
// (machinize -> prologue/epilogue -> translate) without requiring the
// external IR-construction framework spec.md §6 otherwise assumes. This
// is a harness convenience, not part of the backend's own contract.
package irtext

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

var typeNames = map[string]ir.Type{
	"i8": ir.TI8, "u8": ir.TU8, "i16": ir.TI16, "u16": ir.TU16,
	"i32": ir.TI32, "u32": ir.TU32, "i64": ir.TI64, "u64": ir.TU64,
	"f": ir.TF, "d": ir.TD, "ld": ir.TLD,
}

var opNames = map[string]ir.Op{
	"mov": ir.OpMOV, "fmov": ir.OpFMOV, "dmov": ir.OpDMOV, "ldmov": ir.OpLDMOV,
	"add": ir.OpADD, "sub": ir.OpSUB, "mul": ir.OpMUL, "div": ir.OpDIV, "udiv": ir.OpUDIV,
	"mod": ir.OpMOD, "umod": ir.OpUMOD, "and": ir.OpAND, "or": ir.OpOR, "xor": ir.OpXOR,
	"lsh": ir.OpLSH, "rsh": ir.OpRSH, "ursh": ir.OpURSH, "neg": ir.OpNEG, "not": ir.OpNOT,
	"fadd": ir.OpFADD, "dadd": ir.OpDADD, "ldadd": ir.OpLDADD,
	"fsub": ir.OpFSUB, "dsub": ir.OpDSUB, "ldsub": ir.OpLDSUB,
	"fmul": ir.OpFMUL, "dmul": ir.OpDMUL, "ldmul": ir.OpLDMUL,
	"fdiv": ir.OpFDIV, "ddiv": ir.OpDDIV, "lddiv": ir.OpLDDIV,
	"eq": ir.OpEQ, "ne": ir.OpNE, "lt": ir.OpLT, "ult": ir.OpULT,
	"le": ir.OpLE, "ule": ir.OpULE, "gt": ir.OpGT, "ugt": ir.OpUGT,
	"ge": ir.OpGE, "uge": ir.OpUGE,
	"beq": ir.OpBEQ, "bne": ir.OpBNE, "blt": ir.OpBLT, "ublt": ir.OpUBLT,
	"ble": ir.OpBLE, "uble": ir.OpUBLE, "bgt": ir.OpBGT, "ubgt": ir.OpUBGT,
	"bge": ir.OpBGE, "ubge": ir.OpUBGE,
	"jmp": ir.OpJMP, "bt": ir.OpBT, "bf": ir.OpBF, "switch": ir.OpSWITCH,
	"call": ir.OpCALL, "ret": ir.OpRET, "alloca": ir.OpALLOCA,
}

var hardRegNames = map[string]ir.HardReg{
	"zero": ir.ZERO, "ra": ir.RA, "sp": ir.SP, "gp": ir.GP, "tp": ir.TP,
	"t0": ir.T0, "t1": ir.T1, "t2": ir.T2, "fp": ir.FP, "s0": ir.S0, "s1": ir.S1,
	"a0": ir.A0, "a1": ir.A1, "a2": ir.A2, "a3": ir.A3, "a4": ir.A4, "a5": ir.A5, "a6": ir.A6, "a7": ir.A7,
	"s2": ir.S2, "s3": ir.S3, "s4": ir.S4, "s5": ir.S5, "s6": ir.S6, "s7": ir.S7, "s8": ir.S8, "s9": ir.S9,
	"s10": ir.S10, "s11": ir.S11, "t3": ir.T3, "t4": ir.T4, "t5": ir.T5, "t6": ir.T6,
	"ft0": ir.FT0, "ft1": ir.FT1, "ft2": ir.FT2, "ft3": ir.FT3, "ft4": ir.FT4, "ft5": ir.FT5, "ft6": ir.FT6, "ft7": ir.FT7,
	"fs0": ir.FS0, "fs1": ir.FS1,
	"fa0": ir.FA0, "fa1": ir.FA1, "fa2": ir.FA2, "fa3": ir.FA3, "fa4": ir.FA4, "fa5": ir.FA5, "fa6": ir.FA6, "fa7": ir.FA7,
	"fs2": ir.FS2, "fs3": ir.FS3, "fs4": ir.FS4, "fs5": ir.FS5, "fs6": ir.FS6, "fs7": ir.FS7, "fs8": ir.FS8, "fs9": ir.FS9,
	"fs10": ir.FS10, "fs11": ir.FS11, "ft8": ir.FT8, "ft9": ir.FT9, "ft10": ir.FT10, "ft11": ir.FT11,
}

// Parse reads one function definition from r:
//
//	func name(i64, i64) i64 [vararg]
//	  add a0, a0, a1
//	  ret a0
//	end
//
// Labels are written "L0:" on their own line and referenced as "L0" in
// an operand position. Hard registers use their ABI names; immediates
// are decimal or 0x-prefixed hex; memory operands are "[base+disp]".
func Parse(r io.Reader) (*ir.Func, error) {
	sc := bufio.NewScanner(r)
	var f *ir.Func
	labels := map[string]ir.Label{}
	nextLabel := ir.Label(1)
	labelOf := func(name string) ir.Label {
		if l, ok := labels[name]; ok {
			return l
		}
		l := nextLabel
		nextLabel++
		labels[name] = l
		return l
	}

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if line == "end" {
			continue
		}
		if strings.HasPrefix(line, "func ") {
			var err error
			f, err = parseFuncHeader(line)
			if err != nil {
				return nil, fmt.Errorf("irtext: line %d: %w", lineNo, err)
			}
			continue
		}
		if f == nil {
			return nil, fmt.Errorf("irtext: line %d: instruction before func header", lineNo)
		}
		if strings.HasSuffix(line, ":") {
			name := strings.TrimSuffix(line, ":")
			f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(labelOf(name))))
			continue
		}
		insn, err := parseInsn(line, labelOf)
		if err != nil {
			return nil, fmt.Errorf("irtext: line %d: %w", lineNo, err)
		}
		f.Append(insn)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("irtext: no function definition found")
	}
	return f, nil
}

func parseFuncHeader(line string) (*ir.Func, error) {
	rest := strings.TrimPrefix(line, "func ")
	open := strings.Index(rest, "(")
	closeIdx := strings.Index(rest, ")")
	if open < 0 || closeIdx < open {
		return nil, fmt.Errorf("malformed func header %q", line)
	}
	name := strings.TrimSpace(rest[:open])
	paramStr := rest[open+1 : closeIdx]
	tail := strings.Fields(rest[closeIdx+1:])

	f := &ir.Func{Name: name}
	if paramStr = strings.TrimSpace(paramStr); paramStr != "" {
		for _, p := range strings.Split(paramStr, ",") {
			t, ok := typeNames[strings.TrimSpace(p)]
			if !ok {
				return nil, fmt.Errorf("unknown param type %q", p)
			}
			f.Params = append(f.Params, ir.Param{Type: t})
		}
	}
	for _, tok := range tail {
		if tok == "vararg" {
			f.VarargP = true
			continue
		}
		if t, ok := typeNames[tok]; ok {
			f.ResTypes = append(f.ResTypes, t)
		}
	}
	return f, nil
}

func parseInsn(line string, labelOf func(string) ir.Label) (*ir.Insn, error) {
	fields := strings.SplitN(line, " ", 2)
	mnemonic := strings.ToLower(fields[0])
	op, ok := opNames[mnemonic]
	if !ok {
		return nil, fmt.Errorf("unknown opcode %q", mnemonic)
	}
	var ops []ir.Operand
	if len(fields) == 2 {
		for _, tok := range strings.Split(fields[1], ",") {
			tok = strings.TrimSpace(tok)
			if tok == "" {
				continue
			}
			operand, err := parseOperand(tok, labelOf)
			if err != nil {
				return nil, err
			}
			ops = append(ops, operand)
		}
	}
	return ir.NewInsn(op, ops...), nil
}

func parseOperand(tok string, labelOf func(string) ir.Label) (ir.Operand, error) {
	if r, ok := hardRegNames[strings.ToLower(tok)]; ok {
		t := ir.TI64
		if r.IsFPR() {
			t = ir.TD
		}
		return ir.HardRegOp(t, r), nil
	}
	if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
		return parseMem(tok)
	}
	if strings.HasPrefix(tok, "L") && len(tok) > 1 && isDigits(tok[1:]) {
		return ir.LabelOp(labelOf(tok)), nil
	}
	if v, err := strconv.ParseInt(tok, 0, 64); err == nil {
		return ir.IntOp(v), nil
	}
	return ir.Operand{}, fmt.Errorf("unrecognized operand %q", tok)
}

func parseMem(tok string) (ir.Operand, error) {
	inner := tok[1 : len(tok)-1]
	plus := strings.IndexByte(inner, '+')
	baseName := inner
	var disp int64
	if plus >= 0 {
		baseName = inner[:plus]
		d, err := strconv.ParseInt(strings.TrimSpace(inner[plus+1:]), 0, 64)
		if err != nil {
			return ir.Operand{}, fmt.Errorf("bad displacement in %q: %w", tok, err)
		}
		disp = d
	}
	base, ok := hardRegNames[strings.ToLower(strings.TrimSpace(baseName))]
	if !ok {
		return ir.Operand{}, fmt.Errorf("unknown base register in %q", tok)
	}
	return ir.MemOp(ir.TI64, disp, base, ir.NoHardReg, 1), nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
