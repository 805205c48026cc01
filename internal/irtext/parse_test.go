package irtext

import (
	"strings"
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func TestParseSimpleAddFunction(t *testing.T) {
	src := `
func add(i64, i64) i64
  add a0, a0, a1
  ret a0
end
`
	f, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Name != "add" || len(f.Params) != 2 || len(f.ResTypes) != 1 {
		t.Fatalf("func header mismatch: %+v", f)
	}
	first := f.Insns()
	if first.Op != ir.OpADD || first.Ops[0].Hard != ir.A0 || first.Ops[2].Hard != ir.A1 {
		t.Fatalf("first insn = %+v", first)
	}
	second := first.Next()
	if second.Op != ir.OpRET || second.Ops[0].Hard != ir.A0 {
		t.Fatalf("second insn = %+v", second)
	}
}

func TestParseLabelsAndBranch(t *testing.T) {
	src := `
func f(i64) i64
  beq L1, a0, zero
  add a0, a0, a0
L1:
  ret a0
end
`
	f, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	beq := f.Insns()
	if beq.Op != ir.OpBEQ || beq.Ops[0].Kind != ir.OpndLabel {
		t.Fatalf("expected a BEQ with a label operand, got %+v", beq)
	}
	lbl := beq.Ops[0].Label
	found := false
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		if insn.Op == ir.OpLABEL && insn.Ops[0].Label == lbl {
			found = true
		}
	}
	if !found {
		t.Fatal("label definition not found with matching id")
	}
}

func TestParseVarargAndMemOperand(t *testing.T) {
	src := `
func printf(i64) i64 vararg
  mov a0, [sp+16]
  ret a0
end
`
	f, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !f.VarargP {
		t.Fatal("expected VarargP to be set")
	}
	mov := f.Insns()
	if mov.Ops[1].Kind != ir.OpndMem || mov.Ops[1].Mem.Disp != 16 || mov.Ops[1].Mem.Base != ir.SP {
		t.Fatalf("mem operand = %+v", mov.Ops[1])
	}
}

func TestParseRejectsUnknownOpcode(t *testing.T) {
	src := "func f() i64\n  frobnicate a0\nend\n"
	if _, err := Parse(strings.NewReader(src)); err == nil {
		t.Fatal("expected an error for an unknown opcode")
	}
}
