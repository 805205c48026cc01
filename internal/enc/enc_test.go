package enc

import "testing"

func TestRAddEncoding(t *testing.T) {
	// add a0, a0, a1 => opcode 0x33, funct3 0, funct7 0, rd=10, rs1=10, rs2=11
	got := R(0x33, 0, 0, 10, 10, 11)
	want := uint32(0)<<25 | uint32(11)<<20 | uint32(10)<<15 | uint32(0)<<12 | uint32(10)<<7 | 0x33
	if got != want {
		t.Fatalf("R() = %#x, want %#x", got, want)
	}
}

func TestIAddiEncoding(t *testing.T) {
	// addi rd,rs1,-1
	got := I(0x13, 0, 5, 6, -1)
	if (got>>20)&0xfff != 0xfff {
		t.Fatalf("imm field = %#x, want 0xfff (sign-extended -1)", (got>>20)&0xfff)
	}
	if (got>>7)&0x1f != 5 {
		t.Fatalf("rd field = %d, want 5", (got>>7)&0x1f)
	}
}

func TestSAndBRoundTripImmediate(t *testing.T) {
	// S-type: reconstruct the original 12-bit immediate from the split fields.
	imm := int32(-100)
	w := S(0x23, 3, 2, 1, imm)
	lo := (w >> 7) & 0x1f
	hi := (w >> 25) & 0x7f
	reconstructed := int32(hi<<5 | lo)
	if reconstructed > 0x7ff {
		reconstructed -= 0x1000
	}
	if reconstructed != imm {
		t.Fatalf("S-type round trip = %d, want %d", reconstructed, imm)
	}
}

func TestBFormatRoundTrip(t *testing.T) {
	for _, disp := range []int32{4, -4, 2046, -2048, 100, -100} {
		w := B(0x63, 0, 1, 2, disp)
		got := decodeBImm(w)
		if got != disp {
			t.Fatalf("B-format round trip for %d: got %d", disp, got)
		}
	}
}

func TestJFormatRoundTrip(t *testing.T) {
	for _, disp := range []int32{4, -4, 1 << 19, -(1 << 19), 100000, -100000} {
		w := J(0x6f, 1, disp)
		got := decodeJImm(w)
		if got != disp {
			t.Fatalf("J-format round trip for %d: got %d", disp, got)
		}
	}
}

// decodeBImm un-scrambles a B-type immediate back to a byte displacement,
// mirroring what a disassembler (or this package's own fixup-verification
// code) must do to check round_trip_labels (spec §8).
func decodeBImm(w uint32) int32 {
	bit12 := (w >> 31) & 1
	bits10_5 := (w >> 25) & 0x3f
	bits4_1 := (w >> 8) & 0xf
	bit11 := (w >> 7) & 1
	v := bit12<<12 | bit11<<11 | bits10_5<<5 | bits4_1<<1
	sv := int32(v)
	if bit12 == 1 {
		sv |= ^int32(0x1fff) // sign extend from bit 12
	}
	return sv
}

func decodeJImm(w uint32) int32 {
	packed := w >> 12
	bit20 := (packed >> 19) & 1
	bits10_1 := (packed >> 9) & 0x3ff
	bit11 := (packed >> 8) & 1
	bits19_12 := packed & 0xff
	v := bit20<<20 | bits19_12<<12 | bit11<<11 | bits10_1<<1
	sv := int32(v)
	if bit20 == 1 {
		sv |= ^int32(0x1fffff)
	}
	return sv
}

func TestSplitHiLo20Roundtrip(t *testing.T) {
	for _, v := range []int32{0, 1, -1, 0x7ff, 0x800, -0x800, 4096, -4096, 123456, -123456} {
		hi, lo := SplitHiLo20(v)
		if hi+lo != v {
			t.Fatalf("SplitHiLo20(%d) = (%d,%d), sum %d != %d", v, hi, lo, hi+lo, v)
		}
		if lo < -2048 || lo > 2047 {
			t.Fatalf("SplitHiLo20(%d): lo12=%d out of signed-12 range", v, lo)
		}
		if hi&0xfff != 0 {
			t.Fatalf("SplitHiLo20(%d): hi20=%d not a multiple of 0x1000", v, hi)
		}
	}
}

func TestAlignUp(t *testing.T) {
	cases := [][3]int{{0, 8, 0}, {1, 8, 8}, {8, 8, 8}, {9, 16, 16}, {17, 16, 32}}
	for _, c := range cases {
		if got := AlignUp(c[0], c[1]); got != c[2] {
			t.Fatalf("AlignUp(%d,%d) = %d, want %d", c[0], c[1], got, c[2])
		}
	}
}

func TestFitsSigned12(t *testing.T) {
	if !FitsSigned12(2047) || !FitsSigned12(-2048) {
		t.Fatal("boundary values should fit")
	}
	if FitsSigned12(2048) || FitsSigned12(-2049) {
		t.Fatal("out-of-range values should not fit")
	}
}
