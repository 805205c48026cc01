package pattern

import (
	"fmt"

	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// ErrNoMatch is returned by Match when no table entry fits an
// instruction's opcode and operand shapes (spec §7's ErrPatternMiss
// surfaces this one level up, in package target).
type ErrNoMatch struct {
	Op ir.Op
}

func (e *ErrNoMatch) Error() string {
	return fmt.Sprintf("pattern: no matching encoding for opcode %d", e.Op)
}

// byOp indexes Table by opcode for fast lookup; built once at package
// init alongside Table.
var byOp = buildIndex()

func buildIndex() map[ir.Op][]Pattern {
	m := make(map[ir.Op][]Pattern)
	for _, pat := range Table {
		m[pat.Op] = append(m[pat.Op], pat)
	}
	return m
}

// Match finds the first pattern table entry whose shape matches insn's
// operand list (spec §4.5's "pattern_match_p": the first entry in
// declaration order whose shape matches wins — earlier, more specific
// shapes are listed before general fallbacks in Table).
func Match(insn *ir.Insn) (*Pattern, error) {
	candidates := byOp[insn.Op]
	for i := range candidates {
		pat := &candidates[i]
		if pat.CodeSet && pat.Code != insn.Code {
			continue
		}
		if shapeMatches(pat.Shape, insn.Ops) {
			return pat, nil
		}
	}
	return nil, &ErrNoMatch{Op: insn.Op}
}

// shapeMatches reports whether ops satisfies shape. A trailing "X" term
// matches zero or more remaining operands (CALL's variadic argument
// tail, RET's variadic live-out tail — spec §4.5); every other term
// matches exactly one operand at the same position.
func shapeMatches(shape []ShapeTerm, ops []ir.Operand) bool {
	trailingWildcard := len(shape) > 0 && shape[len(shape)-1].kind == ShapeWildcard
	fixed := len(shape)
	if trailingWildcard {
		fixed--
	}
	if trailingWildcard {
		if len(ops) < fixed {
			return false
		}
	} else if len(ops) != fixed {
		return false
	}
	for i := 0; i < fixed; i++ {
		if !shape[i].Match(ops[i]) {
			return false
		}
	}
	return true
}
