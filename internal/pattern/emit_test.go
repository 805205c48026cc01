package pattern

import (
	"encoding/binary"
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/enc"
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func newFunc(insns ...*ir.Insn) *ir.Func {
	f := &ir.Func{Name: "test"}
	for _, insn := range insns {
		f.Append(insn)
	}
	return f
}

func wordAt(code []byte, off int) uint32 {
	return binary.LittleEndian.Uint32(code[off : off+4])
}

func TestAssembleSimpleAddSequence(t *testing.T) {
	f := newFunc(
		ir.NewInsn(ir.OpADD, ir.HardRegOp(ir.TI64, ir.A0), ir.HardRegOp(ir.TI64, ir.A1), ir.HardRegOp(ir.TI64, ir.A2)),
		ir.NewInsn(ir.OpRET),
	)
	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Code) == 0 || len(prog.Code)%16 != 0 {
		t.Fatalf("Code length %d is not 16-byte aligned", len(prog.Code))
	}
	add := wordAt(prog.Code, 0)
	wantAdd := enc.R(0x33, 0, 0, 10, 11, 12) // add a0, a1, a2
	if add != wantAdd {
		t.Fatalf("ADD word = %#08x, want %#08x", add, wantAdd)
	}
	ret := wordAt(prog.Code, 4)
	wantRet := enc.I(0x67, 0, 0, 1, 0) // jalr x0, ra, 0
	if ret != wantRet {
		t.Fatalf("RET word = %#08x, want %#08x", ret, wantRet)
	}
}

func TestAssembleShortBranchToForwardLabel(t *testing.T) {
	lbl := ir.Label(1)
	f := newFunc(
		ir.NewInsn(ir.OpBEQ, ir.LabelOp(lbl), ir.HardRegOp(ir.TI64, ir.A0), ir.HardRegOp(ir.TI64, ir.A1)),
		ir.NewInsn(ir.OpADD, ir.HardRegOp(ir.TI64, ir.A2), ir.HardRegOp(ir.TI64, ir.A2), ir.HardRegOp(ir.TI64, ir.A2)),
		ir.NewInsn(ir.OpLABEL, ir.LabelOp(lbl)),
		ir.NewInsn(ir.OpRET),
	)
	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if prog.Labels[lbl] != 8 {
		t.Fatalf("label position = %d, want 8", prog.Labels[lbl])
	}
	beq := wordAt(prog.Code, 0)
	wantBEQ := enc.B(0x63, 0, 10, 11, 8) // beq a0, a1, +8
	if beq != wantBEQ {
		t.Fatalf("BEQ word = %#08x, want %#08x", beq, wantBEQ)
	}
}

func TestAssembleWidenedBranchTrampoline(t *testing.T) {
	lbl := ir.Label(1)
	f := &ir.Func{Name: "wide"}
	f.Append(ir.NewInsn(ir.OpBEQ, ir.LabelOp(lbl), ir.HardRegOp(ir.TI64, ir.A0), ir.HardRegOp(ir.TI64, ir.A1)))
	// Pad with enough NOPs (as ADD instructions) to push the label out of
	// B-format's +-4KiB range, forcing the branch to widen.
	for i := 0; i < 1200; i++ {
		f.Append(ir.NewInsn(ir.OpADD, ir.HardRegOp(ir.TI64, ir.A2), ir.HardRegOp(ir.TI64, ir.A2), ir.HardRegOp(ir.TI64, ir.A2)))
	}
	f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(lbl)))
	f.Append(ir.NewInsn(ir.OpRET))

	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	word0 := wordAt(prog.Code, 0)
	// Inverted condition (BNE) skipping +8 over the JAL trampoline word.
	wantSkip := enc.B(0x63, 1, 10, 11, 8)
	if word0 != wantSkip {
		t.Fatalf("widened branch word0 = %#08x, want %#08x (inverted BNE, +8 skip)", word0, wantSkip)
	}
	word1 := wordAt(prog.Code, 4)
	if word1&0x7f != 0x6f {
		t.Fatalf("widened branch word1 opcode = %#x, want JAL (0x6f)", word1&0x7f)
	}
}

func TestAssembleConstantPoolDeduplicatesAndRoundTrips(t *testing.T) {
	const val = uint64(0xdeadbeefcafebabe)
	f := newFunc(
		ir.NewInsn(ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A0), ir.Operand{Kind: ir.OpndUInt, OperandType: ir.TI64, UInt: val}),
		ir.NewInsn(ir.OpMOV, ir.HardRegOp(ir.TI64, ir.A1), ir.Operand{Kind: ir.OpndUInt, OperandType: ir.TI64, UInt: val}),
		ir.NewInsn(ir.OpRET),
	)
	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	// Both MOVs reference the same pool slot: the pool must contain the
	// value exactly once, and each auipc+ld pair must decode back to the
	// same 64-bit constant.
	readConst := func(auipcOff int) uint64 {
		auipc := wordAt(prog.Code, auipcOff)
		ld := wordAt(prog.Code, auipcOff+4)
		hi := int32(auipc & 0xfffff000)
		lo := int32(ld) >> 20
		addr := auipcOff + int(hi) + int(lo)
		return binary.LittleEndian.Uint64(prog.Code[addr : addr+8])
	}
	if got := readConst(0); got != val {
		t.Fatalf("first MOV constant = %#x, want %#x", got, val)
	}
	if got := readConst(8); got != val {
		t.Fatalf("second MOV constant = %#x, want %#x", got, val)
	}
}

func TestAssembleSwitchTableDispatch(t *testing.T) {
	l1, l2 := ir.Label(1), ir.Label(2)
	f := &ir.Func{Name: "sw"}
	f.Append(ir.NewInsn(ir.OpSWITCH, ir.HardRegOp(ir.TI64, ir.A0), ir.LabelOp(l1), ir.LabelOp(l2)))
	f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(l1)))
	f.Append(ir.NewInsn(ir.OpADD, ir.HardRegOp(ir.TI64, ir.A1), ir.HardRegOp(ir.TI64, ir.A1), ir.HardRegOp(ir.TI64, ir.A1)))
	f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(l2)))
	f.Append(ir.NewInsn(ir.OpRET))

	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if prog.Labels[l1] == 0 && prog.Labels[l2] == 0 {
		t.Fatal("switch targets did not record label positions")
	}
	// The table is appended after all code (constant pool first, empty
	// here), 8-byte aligned; it holds one PC-relative delta per target.
	instrBytes := 7*4 /* SWITCH */ + 4 /* ADD */ + 4 /* RET */
	tableOff := enc.AlignUp(instrBytes, 8)
	delta := int64(binary.LittleEndian.Uint64(prog.Code[tableOff : tableOff+8]))
	wantDelta := int64(prog.Labels[l1]) - int64(tableOff)
	if delta != wantDelta {
		t.Fatalf("switch table entry 0 delta = %d, want %d", delta, wantDelta)
	}
	delta2 := int64(binary.LittleEndian.Uint64(prog.Code[tableOff+8 : tableOff+16]))
	wantDelta2 := int64(prog.Labels[l2]) - int64(tableOff+8)
	if delta2 != wantDelta2 {
		t.Fatalf("switch table entry 1 delta = %d, want %d", delta2, wantDelta2)
	}
}

func TestAssembleRecordsRelocationForFuncRef(t *testing.T) {
	callee := &ir.Item{Kind: ir.ItemFunc, Name: "callee"}
	f := newFunc(
		ir.NewInsn(ir.OpMOV, ir.HardRegOp(ir.TI64, ir.T0), ir.RefOp(callee)),
		ir.NewInsn(ir.OpRET),
	)
	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Relocs) != 1 {
		t.Fatalf("Relocs = %d entries, want 1", len(prog.Relocs))
	}
	if prog.Relocs[0].Target != callee {
		t.Fatal("relocation target should be the referenced item")
	}
	if got := binary.LittleEndian.Uint64(prog.Code[prog.Relocs[0].Offset : prog.Relocs[0].Offset+8]); got != 0 {
		t.Fatalf("unresolved pool slot = %#x, want 0 placeholder", got)
	}
}

func TestAssembleImportRefNeedsNoRelocation(t *testing.T) {
	imp := &ir.Item{Kind: ir.ItemImport, Name: "mir.ldadd", Trampoline: 0xdeadbeef}
	f := newFunc(
		ir.NewInsn(ir.OpMOV, ir.HardRegOp(ir.TI64, ir.T0), ir.RefOp(imp)),
		ir.NewInsn(ir.OpRET),
	)
	prog, err := Assemble(f)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(prog.Relocs) != 0 {
		t.Fatalf("Relocs = %d entries, want 0 (import trampolines are already resolved)", len(prog.Relocs))
	}
}

func TestAssembleUndefinedLabelErrors(t *testing.T) {
	f := newFunc(
		ir.NewInsn(ir.OpJMP, ir.LabelOp(ir.Label(99))),
	)
	if _, err := Assemble(f); err == nil {
		t.Fatal("expected an error for a jump to an undefined label")
	}
}
