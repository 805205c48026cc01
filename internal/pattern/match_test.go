package pattern

import (
	"errors"
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func reg(t ir.Type, h ir.HardReg) ir.Operand { return ir.HardRegOp(t, h) }

func TestMatchFindsRegRegReg(t *testing.T) {
	insn := ir.NewInsn(ir.OpADD, reg(ir.TI64, ir.A0), reg(ir.TI64, ir.A1), reg(ir.TI64, ir.A2))
	pat, err := Match(insn)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if pat.Op != ir.OpADD || len(pat.Shape) != 3 {
		t.Fatalf("matched pattern = %+v", pat)
	}
}

func TestMatchPicksImmediateVariantOverRegister(t *testing.T) {
	insn := ir.NewInsn(ir.OpADD, reg(ir.TI64, ir.A0), reg(ir.TI64, ir.A1), ir.IntOp(5))
	pat, err := Match(insn)
	if err != nil {
		t.Fatalf("Match: %v", err)
	}
	if len(pat.Words) != 1 || len(pat.Words[0]) == 0 {
		t.Fatalf("unexpected pattern for ADD r,r,i: %+v", pat)
	}
	foundImm := false
	for _, d := range pat.Words[0] {
		if d.Kind == DImm {
			foundImm = true
		}
	}
	if !foundImm {
		t.Fatalf("expected ADD r,r,i to encode via DImm, got %+v", pat.Words[0])
	}
}

func TestMatchNoMatchError(t *testing.T) {
	insn := ir.NewInsn(ir.OpADD, reg(ir.TI64, ir.A0))
	_, err := Match(insn)
	if err == nil {
		t.Fatal("expected ErrNoMatch for a mismatched operand count")
	}
	var noMatch *ErrNoMatch
	if !errors.As(err, &noMatch) {
		t.Fatalf("expected *ErrNoMatch, got %T: %v", err, err)
	}
	if noMatch.Op != ir.OpADD {
		t.Fatalf("ErrNoMatch.Op = %v, want OpADD", noMatch.Op)
	}
}

func TestMatchUnspecDispatchesOnCode(t *testing.T) {
	w := ir.NewInsn(ir.OpUNSPEC, reg(ir.TI64, ir.A0), reg(ir.TF, ir.FA0))
	w.Code = ir.UnspecFMVXW
	pat, err := Match(w)
	if err != nil {
		t.Fatalf("Match fmv.x.w: %v", err)
	}
	if pat.Code != ir.UnspecFMVXW {
		t.Fatalf("matched pattern code = %v, want UnspecFMVXW", pat.Code)
	}

	d := ir.NewInsn(ir.OpUNSPEC, reg(ir.TI64, ir.A0), reg(ir.TD, ir.FA0))
	d.Code = ir.UnspecFMVXD
	pat, err = Match(d)
	if err != nil {
		t.Fatalf("Match fmv.x.d: %v", err)
	}
	if pat.Code != ir.UnspecFMVXD {
		t.Fatalf("matched pattern code = %v, want UnspecFMVXD", pat.Code)
	}
}

func TestMatchCallTargetRegister(t *testing.T) {
	proto := ir.RefOp(&ir.Item{Kind: ir.ItemProto, Name: "p", ResultTypes: []ir.Type{ir.TI64}})
	insn := ir.NewInsn(ir.OpCALL, proto, reg(ir.TI64, ir.T1), reg(ir.TI64, ir.A0))
	if _, err := Match(insn); err != nil {
		t.Fatalf("Match CALL: %v", err)
	}
}

func TestMatchCallRejectsMissingTargetRegister(t *testing.T) {
	proto := ir.RefOp(&ir.Item{Kind: ir.ItemProto, Name: "p"})
	insn := ir.NewInsn(ir.OpCALL, proto)
	if _, err := Match(insn); err == nil {
		t.Fatal("expected a pattern miss for a CALL with no target register operand")
	}
}

func TestMatchSwitchWildcardTail(t *testing.T) {
	insn := ir.NewInsn(ir.OpSWITCH,
		reg(ir.TI64, ir.A0),
		ir.LabelOp(ir.Label(1)),
		ir.LabelOp(ir.Label(2)),
		ir.LabelOp(ir.Label(3)),
	)
	pat, err := Match(insn)
	if err != nil {
		t.Fatalf("Match SWITCH: %v", err)
	}
	if len(pat.Words) != 7 {
		t.Fatalf("SWITCH pattern has %d words, want 7", len(pat.Words))
	}
}
