package pattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// ShapeTermKind is the kind of one position in an operand-shape string
// (spec §4.5's "operand-shape mini-language").
type ShapeTermKind int

const (
	ShapeReg ShapeTermKind = iota
	ShapeMem
	ShapeMemF
	ShapeMemD
	ShapeMemLD
	ShapeImmSigned12  // "i"
	ShapeImmUpper     // "iu" - 32-bit signed, low 12 bits zero
	ShapeImmAny32     // "ia"
	ShapeImm64        // "I"
	ShapeImmNegatable // "j"
	ShapeImmNegRound  // "ju"
	ShapeShift5       // "s"
	ShapeShift6       // "S"
	ShapeLabelShort   // "l" - B-format, 13-bit
	ShapeLabelLong    // "L" - J-format, 21-bit
	ShapeLiteral      // "c<N>" - exact integer match (unspec code)
	ShapeWildcard     // "X"
	ShapeEnd          // "$"
)

// ShapeTerm is one parsed position of a pattern's operand-shape string.
type ShapeTerm struct {
	Kind SignKind
	kind ShapeTermKind
	// MemSize is 1<<MemSize bytes, for Mem* kinds ("m[s|u]?[0-3]").
	MemSize int
	// Literal is the value a ShapeLiteral position must match exactly.
	Literal int64
}

// SignKind distinguishes signed/unsigned/agnostic memory-shape variants.
type SignKind int

const (
	SignAgnostic SignKind = iota
	SignSigned
	SignUnsigned
)

// ParseShape parses a position-sensitive operand-shape string (space
// separated terms) into a slice of ShapeTerm, per spec §4.5.
func ParseShape(s string) ([]ShapeTerm, error) {
	fields := strings.Fields(s)
	out := make([]ShapeTerm, 0, len(fields))
	for _, f := range fields {
		t, err := parseShapeTerm(f)
		if err != nil {
			return nil, fmt.Errorf("pattern: bad shape term %q in %q: %w", f, s, err)
		}
		out = append(out, t)
	}
	return out, nil
}

func parseShapeTerm(f string) (ShapeTerm, error) {
	switch {
	case f == "r":
		return ShapeTerm{kind: ShapeReg}, nil
	case f == "mf":
		return ShapeTerm{kind: ShapeMemF}, nil
	case f == "md":
		return ShapeTerm{kind: ShapeMemD}, nil
	case f == "mld":
		return ShapeTerm{kind: ShapeMemLD}, nil
	case f == "i":
		return ShapeTerm{kind: ShapeImmSigned12}, nil
	case f == "iu":
		return ShapeTerm{kind: ShapeImmUpper}, nil
	case f == "ia":
		return ShapeTerm{kind: ShapeImmAny32}, nil
	case f == "I":
		return ShapeTerm{kind: ShapeImm64}, nil
	case f == "j":
		return ShapeTerm{kind: ShapeImmNegatable}, nil
	case f == "ju":
		return ShapeTerm{kind: ShapeImmNegRound}, nil
	case f == "s":
		return ShapeTerm{kind: ShapeShift5}, nil
	case f == "S":
		return ShapeTerm{kind: ShapeShift6}, nil
	case f == "l":
		return ShapeTerm{kind: ShapeLabelShort}, nil
	case f == "L":
		return ShapeTerm{kind: ShapeLabelLong}, nil
	case f == "X":
		return ShapeTerm{kind: ShapeWildcard}, nil
	case f == "$":
		return ShapeTerm{kind: ShapeEnd}, nil
	case strings.HasPrefix(f, "m"):
		return parseMemShape(f)
	case strings.HasPrefix(f, "c"):
		n, err := strconv.ParseInt(f[1:], 10, 64)
		if err != nil {
			return ShapeTerm{}, err
		}
		return ShapeTerm{kind: ShapeLiteral, Literal: n}, nil
	}
	return ShapeTerm{}, fmt.Errorf("unrecognized shape term")
}

func parseMemShape(f string) (ShapeTerm, error) {
	rest := f[1:]
	sign := SignAgnostic
	if strings.HasPrefix(rest, "s") {
		sign = SignSigned
		rest = rest[1:]
	} else if strings.HasPrefix(rest, "u") {
		sign = SignUnsigned
		rest = rest[1:]
	}
	if rest == "" {
		return ShapeTerm{}, fmt.Errorf("memory shape missing size digit")
	}
	size, err := strconv.Atoi(rest)
	if err != nil || size < 0 || size > 3 {
		return ShapeTerm{}, fmt.Errorf("memory shape size %q out of range 0..3", rest)
	}
	return ShapeTerm{kind: ShapeMem, Kind: sign, MemSize: size}, nil
}

// Match reports whether operand op matches shape term t.
func (t ShapeTerm) Match(op ir.Operand) bool {
	switch t.kind {
	case ShapeReg:
		return op.Kind == ir.OpndVReg || op.Kind == ir.OpndHardReg
	case ShapeWildcard:
		return true
	case ShapeMem:
		return matchMem(op, t)
	case ShapeMemF:
		return op.Kind == ir.OpndMem && op.Mem.Type == ir.TF && memDispOK(op.Mem, false)
	case ShapeMemD:
		return op.Kind == ir.OpndMem && op.Mem.Type == ir.TD && memDispOK(op.Mem, false)
	case ShapeMemLD:
		return op.Kind == ir.OpndMem && op.Mem.Type == ir.TLD && memDispOK(op.Mem, true)
	case ShapeImmSigned12:
		return op.Kind == ir.OpndInt && op.Int >= -2048 && op.Int <= 2047
	case ShapeImmUpper:
		return op.Kind == ir.OpndInt && op.Int&0xfff == 0 && op.Int >= -(1<<31) && op.Int <= (1<<31)-1
	case ShapeImmAny32:
		return op.Kind == ir.OpndInt && op.Int >= -(1<<31) && op.Int <= (1<<31)-1
	case ShapeImm64:
		return op.Kind == ir.OpndInt || op.Kind == ir.OpndUInt || op.Kind == ir.OpndRef
	case ShapeImmNegatable:
		// Excludes the minimum signed value so negation stays representable.
		return op.Kind == ir.OpndInt && op.Int > -2048 && op.Int <= 2047
	case ShapeImmNegRound:
		return op.Kind == ir.OpndInt && (-op.Int)&0xfff == 0
	case ShapeShift5:
		return op.Kind == ir.OpndInt && op.Int >= 0 && op.Int < 32
	case ShapeShift6:
		return op.Kind == ir.OpndInt && op.Int >= 0 && op.Int < 64
	case ShapeLabelShort, ShapeLabelLong:
		return op.Kind == ir.OpndLabel
	case ShapeLiteral:
		return op.Kind == ir.OpndInt && op.Int == t.Literal
	case ShapeEnd:
		return false // the matcher has no special case for "$": it never matches an operand
	default:
		return false
	}
}

func matchMem(op ir.Operand, t ShapeTerm) bool {
	if op.Kind != ir.OpndMem {
		return false
	}
	want := 1 << t.MemSize
	if op.Mem.Type.Size() != want {
		return false
	}
	switch t.Kind {
	case SignSigned:
		if !op.Mem.Type.SignedInt() {
			return false
		}
	case SignUnsigned:
		if !op.Mem.Type.UnsignedInt() {
			return false
		}
	}
	return memDispOK(op.Mem, false)
}

// memDispOK enforces the universal memory-operand constraints from spec
// §4.5/§8: displacement in [-2048,2047] (and disp+8 < 2048 for
// long-double pairs), and no index register.
func memDispOK(m ir.Mem, pair bool) bool {
	if m.Index != ir.NoHardReg {
		return false
	}
	if m.Disp < -2048 || m.Disp > 2047 {
		return false
	}
	if pair && m.Disp+8 >= 2048 {
		return false
	}
	return true
}
