package machinize

import (
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func countOp(f *ir.Func, op ir.Op) int {
	n := 0
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == op {
			n++
		}
	}
	return n
}

func TestMachinizeLowersScalarIntParamsFromArgRegs(t *testing.T) {
	f := &ir.Func{Name: "f", Params: []ir.Param{{Type: ir.TI64}, {Type: ir.TI64}}}
	f.Append(ir.NewInsn(ir.OpRET))

	st, err := Machinize(f)
	if err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if st.BlockArgFuncP {
		t.Fatal("no stack-passed or block arg present, BlockArgFuncP should stay false")
	}

	first := f.Insns()
	if first.Op != ir.OpMOV {
		t.Fatalf("first insn op = %v, want OpMOV", first.Op)
	}
	if first.Ops[1].Kind != ir.OpndHardReg || first.Ops[1].Hard != ir.A0 {
		t.Fatalf("first param source = %+v, want hard reg a0", first.Ops[1])
	}
	second := first.Next()
	if second.Ops[1].Hard != ir.A1 {
		t.Fatalf("second param source = %+v, want hard reg a1", second.Ops[1])
	}
}

func TestMachinizeSpillsStackPassedScalarParam(t *testing.T) {
	params := make([]ir.Param, 9)
	for i := range params {
		params[i] = ir.Param{Type: ir.TI64}
	}
	f := &ir.Func{Name: "f", Params: params}
	f.Append(ir.NewInsn(ir.OpRET))

	st, err := Machinize(f)
	if err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if !st.BlockArgFuncP {
		t.Fatal("9th integer param is stack-passed, BlockArgFuncP should be set")
	}

	var baseLoad *ir.Insn
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpMOV && insn.Ops[0].Kind == ir.OpndHardReg && insn.Ops[0].Hard == ir.T0 {
			baseLoad = insn
			break
		}
	}
	if baseLoad == nil {
		t.Fatal("expected a t0 = [fp+16] base load for the stack-passed param")
	}
	if baseLoad.Ops[1].Mem.Base != ir.FP || baseLoad.Ops[1].Mem.Disp != 16 {
		t.Fatalf("base load source = %+v, want [fp+16]", baseLoad.Ops[1])
	}
}

func TestMachinizeRewritesShortCompareBranch(t *testing.T) {
	f := &ir.Func{Name: "f"}
	lbl := ir.Label(1)
	f.Append(ir.NewInsn(ir.OpBEQS, ir.LabelOp(lbl), ir.HardRegOp(ir.TI32, ir.A0), ir.HardRegOp(ir.TI32, ir.A1)))
	f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(lbl)))
	f.Append(ir.NewInsn(ir.OpRET))

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}

	if n := countOp(f, ir.OpEXT32); n != 2 {
		t.Fatalf("EXT32 count = %d, want 2 (both compare operands widened)", n)
	}
	var beq *ir.Insn
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpBEQ {
			beq = insn
		}
	}
	if beq == nil {
		t.Fatal("expected the short BEQS to be rewritten into a full-width BEQ")
	}
	if beq.Ops[1].OperandType != ir.TI64 || beq.Ops[2].OperandType != ir.TI64 {
		t.Fatal("widened BEQ operands should carry TI64")
	}
}

func TestMachinizeSplitsFusedDoubleCompareBranch(t *testing.T) {
	f := &ir.Func{Name: "f"}
	lbl := ir.Label(1)
	f.Append(ir.NewInsn(ir.OpDBLT, ir.LabelOp(lbl), ir.HardRegOp(ir.TD, ir.FA0), ir.HardRegOp(ir.TD, ir.FA1)))
	f.Append(ir.NewInsn(ir.OpLABEL, ir.LabelOp(lbl)))
	f.Append(ir.NewInsn(ir.OpRET))

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if countOp(f, ir.OpDBLT) != 0 {
		t.Fatal("fused DBLT should not survive machinization")
	}
	if countOp(f, ir.OpDLT) != 1 {
		t.Fatal("expected one plain DLT compare")
	}
	if countOp(f, ir.OpBT) != 1 {
		t.Fatal("expected one BT consuming the compare result")
	}
}

func TestMachinizeRewritesRETWithOneIntResult(t *testing.T) {
	f := &ir.Func{Name: "f", ResTypes: []ir.Type{ir.TI64}}
	ret := ir.NewInsn(ir.OpRET, ir.RegOp(ir.TI64, f.NewTempVReg()))
	f.Append(ret)

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if ret.Ops[0].Kind != ir.OpndHardReg || ret.Ops[0].Hard != ir.A0 {
		t.Fatalf("RET operand = %+v, want hard reg a0", ret.Ops[0])
	}
	var mov *ir.Insn
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpMOV && insn != ret {
			mov = insn
		}
	}
	if mov == nil {
		t.Fatal("expected a mov feeding the result into a0 before RET")
	}
}

func TestMachinizeRejectsOverflowingRETCombination(t *testing.T) {
	f := &ir.Func{Name: "f", ResTypes: []ir.Type{ir.TI64, ir.TI64, ir.TI64}}
	ops := make([]ir.Operand, 3)
	for i := range ops {
		ops[i] = ir.RegOp(ir.TI64, f.NewTempVReg())
	}
	f.Append(ir.NewInsn(ir.OpRET, ops...))

	if _, err := Machinize(f); err == nil {
		t.Fatal("expected an error for a third integer return value")
	}
}

func TestMachinizeLowersVAStart(t *testing.T) {
	f := &ir.Func{Name: "f", VarargP: true, Params: []ir.Param{{Type: ir.TI64}}}
	vaPtr := ir.RegOp(ir.TI64, f.NewTempVReg())
	f.Append(ir.NewInsn(ir.OpVA_START, vaPtr))
	f.Append(ir.NewInsn(ir.OpRET))

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if countOp(f, ir.OpVA_START) != 0 {
		t.Fatal("VA_START should be deleted after lowering")
	}
	// Expect: [param mov], mov prevSP <- [fp+16], add prevSP, prevSP, -56, mov [vaPtr] <- prevSP
	found := false
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpMOV && insn.Ops[0].Kind == ir.OpndMem && insn.Ops[0].Mem.BaseIsVReg {
			found = true
		}
	}
	if !found {
		t.Fatal("expected a store through the lowered va-list pointer")
	}
}

func TestMachinizeDeletesVAEnd(t *testing.T) {
	f := &ir.Func{Name: "f"}
	f.Append(ir.NewInsn(ir.OpVA_END, ir.RegOp(ir.TI64, f.NewTempVReg())))
	f.Append(ir.NewInsn(ir.OpRET))

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if countOp(f, ir.OpVA_END) != 0 {
		t.Fatal("VA_END should be deleted")
	}
}

func TestMachinizeMarksAllocaAndLeaf(t *testing.T) {
	f := &ir.Func{Name: "f"}
	f.Append(ir.NewInsn(ir.OpALLOCA, ir.RegOp(ir.TI64, f.NewTempVReg()), ir.IntOp(64)))
	f.Append(ir.NewInsn(ir.OpRET))

	st, err := Machinize(f)
	if err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	if !st.AllocaP {
		t.Fatal("ALLOCA should set State.AllocaP")
	}
	if !st.LeafP {
		t.Fatal("a function with no calls should stay marked as a leaf")
	}
}

func TestMachinizeSmallAggregateParamEvenAlignment(t *testing.T) {
	// a0 (scalar) then a BLK1 (packed-int) aggregate: its first half must
	// land in an even-numbered arg register (a2), not a1.
	f := &ir.Func{Name: "f", Params: []ir.Param{
		{Type: ir.TI64},
		{Type: ir.TBLK1, Size: 16},
	}}
	f.Append(ir.NewInsn(ir.OpRET))

	if _, err := Machinize(f); err != nil {
		t.Fatalf("Machinize: %v", err)
	}
	var sub *ir.Insn
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpSUB {
			sub = insn
		}
	}
	if sub == nil {
		t.Fatal("expected a save-area address computation (sub dst, fp, slot) for the block param")
	}
	var firstHalfMov *ir.Insn
	for insn := sub; insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpMOV && insn.Ops[0].Kind == ir.OpndMem && insn.Ops[0].Mem.BaseIsVReg {
			firstHalfMov = insn
			break
		}
	}
	if firstHalfMov == nil {
		t.Fatal("expected a store of the block's first half into the save area")
	}
	if firstHalfMov.Ops[1].Hard != ir.A2 {
		t.Fatalf("BLK1's first half source = %v, want a2 (even alignment skips a1)", firstHalfMov.Ops[1].Hard)
	}
}
