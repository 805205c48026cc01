// Package builtin holds the table of runtime helper functions the RV64
// backend calls into when an IR op has no direct machine encoding:
// long-double arithmetic/conversions/comparisons, block moves, and
// va_arg/va_block_arg support (spec §2 item 2, §6 "Builtin names").
package builtin

import (
	"fmt"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// Desc describes one builtin: its exported name, its proto symbol name,
// the argument/result type shapes the backend must set up before calling
// it, and the host trampoline function pointer once bound (spec §9
// design note: "provide them via a small trampoline registration
// interface").
type Desc struct {
	Name      string
	ProtoName string
	ArgTypes  []ir.Type
	ResTypes  []ir.Type
	// Trampoline is filled in by Registry.Bind; nil until bound.
	Trampoline uintptr
}

// Op-indexed list of builtins, grounded on mir-gen-riscv64.c:539-657
// (get_builtin): every long-double arithmetic/comparison/conversion op
// has no machine encoding and must lower to one of these calls, plus the
// vararg-access and block-move helpers machinize_call/gen_blk_mov need.
var table = map[ir.Op]Desc{
	ir.OpLDADD: {Name: "mir.ldadd", ProtoName: "mir.ldadd.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpLDSUB: {Name: "mir.ldsub", ProtoName: "mir.ldsub.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpLDMUL: {Name: "mir.ldmul", ProtoName: "mir.ldmul.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpLDDIV: {Name: "mir.lddiv", ProtoName: "mir.lddiv.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpLDNEG: {Name: "mir.ldneg", ProtoName: "mir.ldneg.p", ArgTypes: []ir.Type{ir.TLD}, ResTypes: []ir.Type{ir.TLD}},

	ir.OpI2LD:  {Name: "mir.i2ld", ProtoName: "mir.i2ld.p", ArgTypes: []ir.Type{ir.TI64}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpUI2LD: {Name: "mir.ui2ld", ProtoName: "mir.ui2ld.p", ArgTypes: []ir.Type{ir.TU64}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpF2LD:  {Name: "mir.f2ld", ProtoName: "mir.f2ld.p", ArgTypes: []ir.Type{ir.TF}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpD2LD:  {Name: "mir.d2ld", ProtoName: "mir.d2ld.p", ArgTypes: []ir.Type{ir.TD}, ResTypes: []ir.Type{ir.TLD}},
	ir.OpLD2I:  {Name: "mir.ld2i", ProtoName: "mir.ld2i.p", ArgTypes: []ir.Type{ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLD2F:  {Name: "mir.ld2f", ProtoName: "mir.ld2f.p", ArgTypes: []ir.Type{ir.TLD}, ResTypes: []ir.Type{ir.TF}},
	ir.OpLD2D:  {Name: "mir.ld2d", ProtoName: "mir.ld2d.p", ArgTypes: []ir.Type{ir.TLD}, ResTypes: []ir.Type{ir.TD}},

	ir.OpLDEQ: {Name: "mir.ldeq", ProtoName: "mir.ldeq.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLDNE: {Name: "mir.ldne", ProtoName: "mir.ldne.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLDLT: {Name: "mir.ldlt", ProtoName: "mir.ldlt.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLDLE: {Name: "mir.ldle", ProtoName: "mir.ldle.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLDGT: {Name: "mir.ldgt", ProtoName: "mir.ldgt.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpLDGE: {Name: "mir.ldge", ProtoName: "mir.ldge.p", ArgTypes: []ir.Type{ir.TLD, ir.TLD}, ResTypes: []ir.Type{ir.TI64}},

	ir.OpVA_ARG:       {Name: "mir.va_arg", ProtoName: "mir.va_arg.p", ArgTypes: []ir.Type{ir.TI64, ir.TI64}, ResTypes: []ir.Type{ir.TI64}},
	ir.OpVA_BLOCK_ARG: {Name: "mir.va_block_arg", ProtoName: "mir.va_block_arg.p", ArgTypes: []ir.Type{ir.TI64, ir.TI64, ir.TI64}, ResTypes: nil},
}

// BlkMov is the block-move builtin used by gen_blk_mov for large (>16
// qword) by-value aggregate copies (spec §4.3). It is not keyed by an IR
// opcode — machinize_call calls it directly by name, never via a
// one-to-one opcode-to-builtin mapping like the table above.
var BlkMov = Desc{
	Name:      "mir.blk_mov",
	ProtoName: "mir.blk_mov.p",
	ArgTypes:  []ir.Type{ir.TI64, ir.TI64, ir.TI64}, // to, from, nwords
	ResTypes:  nil,
}

// Lookup returns the builtin descriptor for op and the number of IR
// operands it consumes (1 for unary, 2 for binary — matches get_builtin's
// nargs return), or ok=false if op has a machine encoding and needs no
// builtin.
func Lookup(op ir.Op) (Desc, int, bool) {
	d, ok := table[op]
	if !ok {
		return Desc{}, 0, false
	}
	return d, len(d.ArgTypes), true
}

// All returns every builtin descriptor keyed by its IR opcode, for
// registration at target.Init time.
func All() map[ir.Op]Desc {
	out := make(map[ir.Op]Desc, len(table)+1)
	for op, d := range table {
		out[op] = d
	}
	return out
}

// Bind sets the host trampoline address for the builtin behind op (spec
// §9's "small trampoline registration interface"). Called once per
// process before any function reaching that op is translated.
func Bind(op ir.Op, trampoline uintptr) error {
	d, ok := table[op]
	if !ok {
		return fmt.Errorf("builtin: no builtin registered for op %v", op)
	}
	d.Trampoline = trampoline
	table[op] = d
	return nil
}

// BindBlkMov sets mir.blk_mov's trampoline; it is looked up by name, not
// by opcode, so it is bound separately from Bind.
func BindBlkMov(trampoline uintptr) { BlkMov.Trampoline = trampoline }
