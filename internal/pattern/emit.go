package pattern

import (
	"fmt"
	"sort"

	"github.com/wiguwbe/mir-riscv64gen/internal/enc"
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
)

// Program is the fully resolved output of assembling one function: the
// instruction stream followed by its constant pool and switch-jump
// tables, 16-byte aligned at the end (spec §4.5, §8).
type Program struct {
	Code []byte
	// Labels maps every label the function defines to its final byte
	// offset within Code, for callers that want to cross-check (e.g.
	// tests asserting round_trip_labels, spec §8).
	Labels map[ir.Label]int
	// Relocs lists constant-pool slots holding the placeholder (zero)
	// address of another compiled function, by byte offset into Code.
	// target.Context.Rebase patches these once that function's final
	// address is known (spec §4.5/§10's relocation list — switch-table
	// entries need no such patch here since they are emitted as
	// PC-relative deltas, see DESIGN.md).
	Relocs []Reloc
}

// Reloc is one deferred absolute-address patch: the byte offset of an
// 8-byte little-endian slot in Program.Code, and the item whose final
// address belongs there.
type Reloc struct {
	Offset int
	Target *ir.Item
}

// nopWord is addi x0, x0, 0 — used only to pad Code up to the final
// 16-byte alignment (spec §4.5).
var nopWord = enc.I(0x13, 0, 0, 0, 0)

func loNum(r ir.HardReg) uint8 {
	if r.IsFPR() {
		return uint8(r - ir.FirstFPR)
	}
	return uint8(r)
}

func hardRegAt(ops []ir.Operand, idx int) (ir.HardReg, error) {
	if idx >= len(ops) {
		return 0, fmt.Errorf("pattern: operand index %d out of range (have %d)", idx, len(ops))
	}
	op := ops[idx]
	if op.Kind != ir.OpndHardReg {
		return 0, fmt.Errorf("pattern: operand %d is not a hard register (kind %d) — register allocation must complete before emission", idx, op.Kind)
	}
	return op.Hard, nil
}

func immAt(ops []ir.Operand, idx int) (int64, error) {
	if idx >= len(ops) {
		return 0, fmt.Errorf("pattern: operand index %d out of range (have %d)", idx, len(ops))
	}
	op := ops[idx]
	switch op.Kind {
	case ir.OpndInt:
		return op.Int, nil
	case ir.OpndUInt:
		return int64(op.UInt), nil
	default:
		return 0, fmt.Errorf("pattern: operand %d is not an immediate (kind %d)", idx, op.Kind)
	}
}

func uint64At(ops []ir.Operand, idx int) (uint64, error) {
	op := ops[idx]
	switch op.Kind {
	case ir.OpndInt:
		return uint64(op.Int), nil
	case ir.OpndUInt:
		return op.UInt, nil
	default:
		return 0, fmt.Errorf("pattern: operand %d is not a 64-bit immediate (kind %d)", idx, op.Kind)
	}
}

// refTargetAt resolves a constant-pool operand that names an item rather
// than carrying a raw value: an import's host trampoline address is
// already known and is returned directly; a reference to another
// compiled function has no known address yet and is reported as a
// relocation the caller must patch in later (Reloc, Program.Relocs).
func refTargetAt(ops []ir.Operand, idx int) (val uint64, needsReloc bool, target *ir.Item, err error) {
	op := ops[idx]
	if op.Kind != ir.OpndRef {
		v, err := uint64At(ops, idx)
		return v, false, nil, err
	}
	if op.Ref.Kind == ir.ItemImport {
		return uint64(op.Ref.Trampoline), false, nil, nil
	}
	return 0, true, op.Ref, nil
}

func labelAt(ops []ir.Operand, idx int) (ir.Label, error) {
	if idx >= len(ops) || ops[idx].Kind != ir.OpndLabel {
		return 0, fmt.Errorf("pattern: operand %d is not a label", idx)
	}
	return ops[idx].Label, nil
}

// insnSize reports how many 4-byte words insn occupies, given whether it
// is in the wide set (only meaningful for B-format conditional branches:
// a short branch that overflows is rewritten to a 2-word trampoline, an
// inverted branch around a JAL).
func insnSize(pat *Pattern, wide bool) int {
	if wide && len(pat.Words) == 1 && hasLabelShort(pat.Words[0]) {
		return 2
	}
	return len(pat.Words)
}

func hasLabelShort(w Word) bool {
	for _, d := range w {
		if d.Kind == DLabelShort {
			return true
		}
	}
	return false
}

// collect walks f's instruction list into a flat slice, in program order.
func collect(f *ir.Func) []*ir.Insn {
	var out []*ir.Insn
	for insn := f.Insns(); insn != nil; insn = insn.Next() {
		out = append(out, insn)
	}
	return out
}

// layout computes, by fixed-point iteration, which short-branch
// instructions must widen into a 2-word trampoline, the final byte
// position of every label, and the total code size. Convergence is
// guaranteed because the wide set only grows (spec §8, "assembly is
// deterministic": the same input always converges to the same layout).
func layout(insns []*ir.Insn) (map[*ir.Insn]bool, map[ir.Label]int, int, error) {
	wide := map[*ir.Insn]bool{}
	for iter := 0; iter < len(insns)+2; iter++ {
		labelPos := map[ir.Label]int{}
		pc := 0
		type branchSite struct {
			insn   *ir.Insn
			pc     int
			target ir.Label
		}
		var sites []branchSite

		for _, insn := range insns {
			if insn.Op == ir.OpLABEL {
				l, err := labelAt(insn.Ops, 0)
				if err != nil {
					return nil, nil, 0, err
				}
				labelPos[l] = pc
				continue
			}
			pat, err := Match(insn)
			if err != nil {
				return nil, nil, 0, err
			}
			if len(pat.Words) == 1 && hasLabelShort(pat.Words[0]) {
				l, err := labelAt(insn.Ops, labelOperandIndex(pat.Words[0]))
				if err != nil {
					return nil, nil, 0, err
				}
				sites = append(sites, branchSite{insn, pc, l})
			}
			pc += insnSize(pat, wide[insn]) * 4
		}

		changed := false
		for _, s := range sites {
			if wide[s.insn] {
				continue
			}
			target, ok := labelPos[s.target]
			if !ok {
				// Every label of the function is already in labelPos, so
				// this is an undefined label; Assemble reports it.
				continue
			}
			disp := int64(target - s.pc)
			if !enc.FitsSigned13(disp) {
				wide[s.insn] = true
				changed = true
			}
		}
		if !changed {
			return wide, labelPos, pc, nil
		}
	}
	return nil, nil, 0, fmt.Errorf("pattern: branch layout did not converge")
}

func labelOperandIndex(w Word) int {
	for _, d := range w {
		if d.Kind == DLabelShort || d.Kind == DLabelLong {
			return d.OperandIndex
		}
	}
	return 0
}

// Assemble lowers f's already-machinized, already-register-allocated
// instruction list into a flat machine-code Program (spec §4.5's
// "target_translate"). Every register operand must already carry a
// concrete ir.HardReg; Assemble never allocates registers.
func Assemble(f *ir.Func) (*Program, error) {
	insns := collect(f)

	wide, labelPos, codeSize, err := layout(insns)
	if err != nil {
		return nil, err
	}

	code := make([]byte, 0, codeSize+64)
	var poolValues []uint64
	poolIndex := map[uint64]int{}
	refPoolIndex := map[*ir.Item]int{}
	poolItemRelocs := map[int]*ir.Item{}
	var tableTargets [][]ir.Label
	type pendingHiLo struct {
		offset    int // byte offset of the word to patch
		anchorOff int // byte offset of the auipc this word's split is relative to
		kind      fixupTargetKind
		index     int // pool or table index
		loOccur   bool
	}
	var pending []pendingHiLo

	for _, insn := range insns {
		if insn.Op == ir.OpLABEL {
			continue
		}
		pat, err := Match(insn)
		if err != nil {
			return nil, err
		}

		if wide[insn] && len(pat.Words) == 1 && hasLabelShort(pat.Words[0]) {
			word0, err := buildInvertedSkip(pat.Words[0], insn)
			if err != nil {
				return nil, err
			}
			jalOff := len(code) + 4
			code = enc.AppendWord(code, word0)
			l, err := labelAt(insn.Ops, labelOperandIndex(pat.Words[0]))
			if err != nil {
				return nil, err
			}
			target, ok := labelPos[l]
			if !ok {
				return nil, fmt.Errorf("pattern: undefined label target for insn op=%v", insn.Op)
			}
			disp := int32(target - jalOff)
			if !enc.FitsSigned21(int64(disp)) {
				return nil, fmt.Errorf("pattern: widened jump displacement %d out of range", disp)
			}
			code = enc.AppendWord(code, enc.J(0x6f, 0, disp))
			continue
		}

		words := pat.Words
		constOcc, switchOcc := 0, 0
		constAnchor, switchAnchor := 0, 0
		for _, w := range words {
			wordOff := len(code)
			val, err := applyStaticFields(w, insn)
			if err != nil {
				return nil, fmt.Errorf("insn op=%v: %w", insn.Op, err)
			}

			for _, d := range w {
				switch d.Kind {
				case DLabelShort:
					l, _ := labelAt(insn.Ops, d.OperandIndex)
					target, ok := labelPos[l]
					if !ok {
						return nil, fmt.Errorf("pattern: undefined label target for insn op=%v", insn.Op)
					}
					disp := int32(target - wordOff)
					if !enc.FitsSigned13(int64(disp)) {
						return nil, fmt.Errorf("pattern: branch displacement %d out of range after layout (internal inconsistency)", disp)
					}
					val = applyBranchDisp(val, disp)
				case DLabelLong:
					l, _ := labelAt(insn.Ops, d.OperandIndex)
					target, ok := labelPos[l]
					if !ok {
						return nil, fmt.Errorf("pattern: undefined label target for insn op=%v", insn.Op)
					}
					disp := int32(target - wordOff)
					if !enc.FitsSigned21(int64(disp)) {
						return nil, fmt.Errorf("pattern: jump displacement %d out of range for J-format", disp)
					}
					val = applyJumpDisp(val, disp)
				case DConstPool:
					v, needsReloc, target, err := refTargetAt(insn.Ops, d.OperandIndex)
					if err != nil {
						return nil, err
					}
					var idx int
					var ok bool
					if target != nil {
						idx, ok = refPoolIndex[target]
						if !ok {
							idx = len(poolValues)
							poolValues = append(poolValues, v)
							refPoolIndex[target] = idx
							if needsReloc {
								poolItemRelocs[idx] = target
							}
						}
					} else {
						idx, ok = poolIndex[v]
						if !ok {
							idx = len(poolValues)
							poolValues = append(poolValues, v)
							poolIndex[v] = idx
						}
					}
					if constOcc == 0 {
						constAnchor = wordOff
					}
					pending = append(pending, pendingHiLo{offset: wordOff, anchorOff: constAnchor, kind: fixupPool, index: idx, loOccur: constOcc > 0})
					constOcc++
				case DSwitchTable:
					targets, err := switchTargets(insn)
					if err != nil {
						return nil, err
					}
					idx := len(tableTargets)
					if switchOcc == 0 {
						tableTargets = append(tableTargets, targets)
						switchAnchor = wordOff
					} else {
						idx = len(tableTargets) - 1
					}
					pending = append(pending, pendingHiLo{offset: wordOff, anchorOff: switchAnchor, kind: fixupSwitch, index: idx, loOccur: switchOcc > 0})
					switchOcc++
				}
			}
			code = enc.AppendWord(code, val)
		}
	}

	// Constant pool: 8-byte aligned, one 64-bit little-endian word per
	// distinct value, in first-use order (spec §4.5, §8).
	for len(code)%8 != 0 {
		code = append(code, 0)
	}
	poolBase := len(code)
	for _, v := range poolValues {
		code = enc.AppendDWord(code, v)
	}

	// Switch tables: one 8-byte PC-relative delta per case target,
	// appended after the constant pool (spec §4.5's "T" directive).
	tableBase := make([]int, len(tableTargets))
	for i, targets := range tableTargets {
		tableBase[i] = len(code)
		for j, l := range targets {
			entryOff := len(code)
			target, ok := labelPos[l]
			if !ok {
				return nil, fmt.Errorf("pattern: switch table entry %d targets an undefined label", j)
			}
			delta := int64(target - entryOff)
			code = enc.AppendDWord(code, uint64(delta))
		}
	}

	// Resolve every deferred auipc/ld pair now that pool/table addresses
	// are final.
	for _, fx := range pending {
		var dataAddr int
		switch fx.kind {
		case fixupPool:
			dataAddr = poolBase + fx.index*8
		case fixupSwitch:
			dataAddr = tableBase[fx.index]
		}
		hi, lo := enc.SplitHiLo20(int32(dataAddr - fx.anchorOff))
		w := enc.ReadWord(code, fx.offset)
		if !fx.loOccur {
			w = enc.U(w&0x7f, uint8((w>>7)&0x1f), hi)
		} else {
			rd := uint8((w >> 7) & 0x1f)
			rs1 := uint8((w >> 15) & 0x1f)
			w = enc.I(w&0x7f, (w>>12)&0x7, rd, rs1, lo)
		}
		enc.PutWord(code, fx.offset, w)
	}

	for len(code)%16 != 0 {
		code = enc.AppendWord(code, nopWord)
	}

	var relocs []Reloc
	for idx, item := range poolItemRelocs {
		relocs = append(relocs, Reloc{Offset: poolBase + idx*8, Target: item})
	}
	sort.Slice(relocs, func(i, j int) bool { return relocs[i].Offset < relocs[j].Offset })

	return &Program{Code: code, Labels: labelPos, Relocs: relocs}, nil
}

type fixupTargetKind int

const (
	fixupPool fixupTargetKind = iota
	fixupSwitch
)

func switchTargets(insn *ir.Insn) ([]ir.Label, error) {
	var out []ir.Label
	for i := 1; i < len(insn.Ops); i++ {
		if insn.Ops[i].Kind != ir.OpndLabel {
			return nil, fmt.Errorf("pattern: switch operand %d is not a label", i)
		}
		out = append(out, insn.Ops[i].Label)
	}
	return out, nil
}

// applyStaticFields builds the bits contributed by every directive in w
// except the four that need layout-wide information (DLabelShort,
// DLabelLong, DConstPool, DSwitchTable) — those are resolved by the
// caller once label positions / pool / table addresses are known.
func applyStaticFields(w Word, insn *ir.Insn) (uint32, error) {
	var val uint32
	for _, d := range w {
		switch d.Kind {
		case DLabelShort, DLabelLong, DConstPool, DSwitchTable:
			continue
		case DOpcode:
			val |= d.Value & 0x7f
		case DFunct3:
			val |= (d.Value & 0x7) << 12
		case DFunct7:
			val |= (d.Value & 0x7f) << 25
		case DFunct6:
			val |= (d.Value & 0x3f) << 26
		case DRd:
			r, err := hardRegAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= uint32(loNum(r)&0x1f) << 7
		case DHardRd:
			val |= (d.Value & 0x1f) << 7
		case DRs1:
			r, err := hardRegAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= uint32(loNum(r)&0x1f) << 15
		case DHardRs1:
			val |= (d.Value & 0x1f) << 15
		case DRs2:
			r, err := hardRegAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= uint32(loNum(r)&0x1f) << 20
		case DHardRs2:
			val |= (d.Value & 0x1f) << 20
		case DMemLoad:
			m := insn.Ops[d.OperandIndex].Mem
			val |= uint32(loNum(m.Base)&0x1f) << 15
			val |= (uint32(m.Disp) & 0xfff) << 20
		case DMemStore:
			m := insn.Ops[d.OperandIndex].Mem
			lo := uint32(m.Disp) & 0x1f
			hi := (uint32(m.Disp) >> 5) & 0x7f
			val |= uint32(loNum(m.Base)&0x1f) << 15
			val |= lo << 7
			val |= hi << 25
		case DImm:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= (uint32(n) & 0xfff) << 20
		case DImmNeg:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= (uint32(-n) & 0xfff) << 20
		case DImmLit:
			val |= (d.Value & 0xfff) << 20
		case DImmUpper:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= uint32(n) & 0xfffff000
		case DImmSplitHi:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			hi, _ := enc.SplitHiLo20(int32(n))
			val |= uint32(hi) & 0xfffff000
		case DImmSplitLo:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			_, lo := enc.SplitHiLo20(int32(n))
			val |= (uint32(lo) & 0xfff) << 20
		case DShift5:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= (uint32(n) & 0x1f) << 20
		case DShift6:
			n, err := immAt(insn.Ops, d.OperandIndex)
			if err != nil {
				return 0, err
			}
			val |= (uint32(n) & 0x3f) << 20
		case DShift6Lit:
			val |= (d.Value & 0x3f) << 20
		default:
			return 0, fmt.Errorf("pattern: unhandled directive kind %d", d.Kind)
		}
	}
	return val, nil
}

// applyJumpDisp patches the J-format immediate fields of an already
// fully-formed jump word, leaving every other field untouched.
func applyJumpDisp(word uint32, disp int32) uint32 {
	rest := word & 0xfff
	u := uint32(disp)
	bit20 := (u >> 20) & 1
	bits10_1 := (u >> 1) & 0x3ff
	bit11 := (u >> 11) & 1
	bits19_12 := (u >> 12) & 0xff
	packed := bit20<<19 | bits10_1<<9 | bit11<<8 | bits19_12
	return rest | packed<<12
}

// applyBranchDisp patches the B-format immediate fields of an already
// fully-formed branch word (opcode/funct3/rs1/rs2 already set) to carry
// disp, leaving every other field untouched.
func applyBranchDisp(word uint32, disp int32) uint32 {
	const immMask = 0xfe000f80
	rest := word &^ immMask
	u := uint32(disp)
	bit12 := (u >> 12) & 1
	bits10_5 := (u >> 5) & 0x3f
	bits4_1 := (u >> 1) & 0xf
	bit11 := (u >> 11) & 1
	hi := bit12<<6 | bits10_5
	lo := bits4_1<<1 | bit11
	return rest | hi<<25 | lo<<7
}

// buildInvertedSkip builds the first word of a widened branch trampoline
// (spec §4.5/§8: when a B-format target falls outside the 13-bit signed
// range, rewrite into branch-around-and-jump): the original condition
// inverted, with a fixed +8 displacement that skips the JAL word emitted
// right after it.
func buildInvertedSkip(w Word, insn *ir.Insn) (uint32, error) {
	var val uint32
	for _, d := range w {
		switch d.Kind {
		case DFunct3:
			inv, ok := invertedF3[d.Value]
			if !ok {
				return 0, fmt.Errorf("pattern: no inverse for branch funct3 %d", d.Value)
			}
			val |= (inv & 0x7) << 12
		case DLabelShort:
			// handled below via the fixed +8 displacement, not an operand lookup
		default:
			sub, err := applyStaticFields(Word{d}, insn)
			if err != nil {
				return 0, err
			}
			val |= sub
		}
	}
	return applyBranchDisp(val, 8), nil
}

var invertedF3 = map[uint32]uint32{
	f3BEQ: f3BNE, f3BNE: f3BEQ,
	f3BLT: f3BGE, f3BGE: f3BLT,
	f3BLTU: f3BGEU, f3BGEU: f3BLTU,
}
