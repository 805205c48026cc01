package pattern

import (
	"testing"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

func TestParseShapeBasicTerms(t *testing.T) {
	cases := map[string]ShapeTermKind{
		"r":  ShapeReg,
		"i":  ShapeImmSigned12,
		"iu": ShapeImmUpper,
		"ia": ShapeImmAny32,
		"I":  ShapeImm64,
		"j":  ShapeImmNegatable,
		"ju": ShapeImmNegRound,
		"s":  ShapeShift5,
		"S":  ShapeShift6,
		"l":  ShapeLabelShort,
		"L":  ShapeLabelLong,
		"X":  ShapeWildcard,
		"mf": ShapeMemF,
		"md": ShapeMemD,
		"mld": ShapeMemLD,
	}
	for in, want := range cases {
		terms, err := ParseShape(in)
		if err != nil {
			t.Fatalf("ParseShape(%q): %v", in, err)
		}
		if len(terms) != 1 || terms[0].kind != want {
			t.Fatalf("ParseShape(%q) = %+v, want kind %v", in, terms, want)
		}
	}
}

func TestParseShapeMemVariants(t *testing.T) {
	cases := []struct {
		in      string
		sign    SignKind
		memSize int
	}{
		{"m0", SignAgnostic, 0},
		{"m3", SignAgnostic, 3},
		{"ms2", SignSigned, 2},
		{"mu1", SignUnsigned, 1},
	}
	for _, c := range cases {
		terms, err := ParseShape(c.in)
		if err != nil {
			t.Fatalf("ParseShape(%q): %v", c.in, err)
		}
		term := terms[0]
		if term.kind != ShapeMem || term.Kind != c.sign || term.MemSize != c.memSize {
			t.Fatalf("ParseShape(%q) = %+v, want sign=%v size=%d", c.in, term, c.sign, c.memSize)
		}
	}
}

func TestParseShapeLiteralAndMultiTerm(t *testing.T) {
	terms, err := ParseShape("r r c5")
	if err != nil {
		t.Fatalf("ParseShape: %v", err)
	}
	if len(terms) != 3 {
		t.Fatalf("len(terms) = %d, want 3", len(terms))
	}
	if terms[2].kind != ShapeLiteral || terms[2].Literal != 5 {
		t.Fatalf("terms[2] = %+v, want literal 5", terms[2])
	}
}

func TestParseShapeRejectsGarbage(t *testing.T) {
	if _, err := ParseShape("zz"); err == nil {
		t.Fatal("expected error for unrecognized shape term")
	}
	if _, err := ParseShape("m9"); err == nil {
		t.Fatal("expected error for out-of-range memory size")
	}
}

func TestShapeTermMatchReg(t *testing.T) {
	term := ShapeTerm{kind: ShapeReg}
	vreg := ir.RegOp(ir.TI64, ir.VReg(1))
	hreg := ir.HardRegOp(ir.TI64, ir.A0)
	imm := ir.IntOp(1)
	if !term.Match(vreg) || !term.Match(hreg) {
		t.Fatal("ShapeReg should match both virtual and hard registers")
	}
	if term.Match(imm) {
		t.Fatal("ShapeReg should not match an immediate operand")
	}
}

func TestShapeTermMatchImmSigned12(t *testing.T) {
	term := ShapeTerm{kind: ShapeImmSigned12}
	if !term.Match(ir.IntOp(2047)) || !term.Match(ir.IntOp(-2048)) {
		t.Fatal("boundary 12-bit immediates should match")
	}
	if term.Match(ir.IntOp(2048)) || term.Match(ir.IntOp(-2049)) {
		t.Fatal("out-of-range immediates should not match")
	}
}

func TestShapeTermMatchImm64AcceptsItemRef(t *testing.T) {
	term := ShapeTerm{kind: ShapeImm64}
	item := &ir.Item{Kind: ir.ItemFunc, Name: "callee"}
	if !term.Match(ir.RefOp(item)) {
		t.Fatal("a 64-bit constant-pool slot must accept an item reference (call target address)")
	}
	if !term.Match(ir.IntOp(1 << 40)) {
		t.Fatal("a 64-bit constant-pool slot must still accept a plain large immediate")
	}
}

func TestShapeTermMatchMemSignAgreement(t *testing.T) {
	term := ShapeTerm{kind: ShapeMem, Kind: SignSigned, MemSize: 2}
	signedOp := ir.MemOp(ir.TI32, 0, ir.SP, ir.NoHardReg, 1)
	unsignedOp := ir.MemOp(ir.TU32, 0, ir.SP, ir.NoHardReg, 1)
	if !term.Match(signedOp) {
		t.Fatal("signed mem shape should match a TI32 memory operand")
	}
	if term.Match(unsignedOp) {
		t.Fatal("signed mem shape should not match a TU32 memory operand")
	}

	uterm := ShapeTerm{kind: ShapeMem, Kind: SignUnsigned, MemSize: 2}
	if !uterm.Match(unsignedOp) {
		t.Fatal("unsigned mem shape should match a TU32 memory operand")
	}
	if uterm.Match(signedOp) {
		t.Fatal("unsigned mem shape should not match a TI32 memory operand")
	}
}

func TestShapeTermMatchMemDisplacementBounds(t *testing.T) {
	term := ShapeTerm{kind: ShapeMem, Kind: SignAgnostic, MemSize: 3}
	ok := ir.MemOp(ir.TI64, 2047, ir.SP, ir.NoHardReg, 1)
	bad := ir.MemOp(ir.TI64, 2048, ir.SP, ir.NoHardReg, 1)
	indexed := ir.MemOp(ir.TI64, 0, ir.SP, ir.T0, 1)
	if !term.Match(ok) {
		t.Fatal("in-range displacement should match")
	}
	if term.Match(bad) {
		t.Fatal("out-of-range displacement should not match")
	}
	if term.Match(indexed) {
		t.Fatal("indexed memory operand should never match")
	}
}

func TestShapeTermMatchLongDoubleMemPairBound(t *testing.T) {
	term := ShapeTerm{kind: ShapeMemLD}
	ok := ir.MemOp(ir.TLD, 2039, ir.SP, ir.NoHardReg, 1)
	bad := ir.MemOp(ir.TLD, 2040, ir.SP, ir.NoHardReg, 1)
	if !term.Match(ok) {
		t.Fatal("disp+8 within range should match")
	}
	if term.Match(bad) {
		t.Fatal("disp+8 at/over range should not match")
	}
}
