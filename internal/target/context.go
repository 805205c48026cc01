package target

import (
	"fmt"
	"log/slog"

	"github.com/wiguwbe/mir-riscv64gen/internal/builtin"
	"github.com/wiguwbe/mir-riscv64gen/internal/ir"
	"github.com/wiguwbe/mir-riscv64gen/internal/machinize"
	"github.com/wiguwbe/mir-riscv64gen/internal/obslog"
	"github.com/wiguwbe/mir-riscv64gen/internal/pattern"
	"github.com/wiguwbe/mir-riscv64gen/internal/prologue"
)

// stackSlotBase16/stackSlotBase32 are the byte offsets target_get_stack_slot_offset adds
// before the 8*slot term. Vararg and block-arg functions share base 32
// even though only one extra save area is active at a time; this skips
// a slot in the plain 16-reserved-for-RA+FP case, which spec.md §9
// explicitly directs implementations to preserve rather than "fix".
const stackSlotBase16 = 16
const stackSlotBase32 = 32

// Context is one per-compilation backend context (spec §5/§6's
// target_ctx): it holds no mutable state of its own beyond an optional
// diagnostic logger, since every pass here operates purely on the
// *ir.Func passed to it. Distinct logical workers must use distinct
// Contexts; the pattern table itself is read-only and already shared
// across every Context (package-level in internal/pattern).
type Context struct {
	log *slog.Logger
}

// NewContext returns a Context with diagnostic logging disabled. Call
// Init before machinizing or translating any function.
func NewContext() *Context {
	return &Context{log: obslog.Discard}
}

// SetLogger attaches a diagnostic logger (see internal/obslog) used to
// trace machinization and pattern-matching decisions. Passing nil
// disables logging again.
func (c *Context) SetLogger(log *slog.Logger) {
	if log == nil {
		log = obslog.Discard
	}
	c.log = log
}

// Init registers the host trampolines builtin calls will need, binding
// each by the Op it backs and the block-move helper by name (spec §9's
// "small trampoline registration interface"). trampolines keys by the
// same Desc.Name strings spec §6's builtin-name table lists; a missing
// entry for a builtin a translated function actually reaches surfaces
// as a pattern_miss at Translate time, not here — Init does not know in
// advance which builtins a given function needs.
func (c *Context) Init(trampolines map[string]uintptr) error {
	for op, d := range builtin.All() {
		fn, ok := trampolines[d.Name]
		if !ok {
			continue
		}
		if err := builtin.Bind(op, fn); err != nil {
			return fmt.Errorf("target: init: %w", err)
		}
	}
	if fn, ok := trampolines[builtin.BlkMov.Name]; ok {
		builtin.BindBlkMov(fn)
	}
	return nil
}

// Finish releases c's scratch state. This Context holds none beyond its
// logger, so Finish is a no-op kept for symmetry with target_finish and
// to give callers a stable place to release resources if that changes.
func (c *Context) Finish() {}

// Machinize lowers f in place, returning the accumulated State the
// prologue/epilogue pass needs.
func (c *Context) Machinize(f *ir.Func) (*machinize.State, error) {
	st, err := machinize.Machinize(f)
	if err != nil {
		return nil, wrapMachinizeErr(err)
	}
	c.log.Debug("machinized", "func", f.Name, "leaf", st.LeafP, "vararg", f.VarargP)
	return st, nil
}

// MakeProlugEpilog splices f's entry/exit sequences given the register
// allocator's used-hard-register set and stack-slot count.
func (c *Context) MakeProlugEpilog(f *ir.Func, st *machinize.State, usedHardRegs prologue.HardRegSet, stackSlotsNum int) {
	prologue.MakeProlugEpilog(f, st, usedHardRegs, stackSlotsNum)
	c.log.Debug("prologue/epilogue built", "func", f.Name, "stackSlots", stackSlotsNum)
}

// Translate assembles f's current instruction stream into a Program:
// machine code, label positions, and any deferred call-target
// relocations. The returned Program is valid independent of c; nothing
// here mutates shared Context state.
func (c *Context) Translate(f *ir.Func) (*pattern.Program, error) {
	prog, err := pattern.Assemble(f)
	if err != nil {
		return nil, wrapPatternErr(err)
	}
	c.log.Debug("translated", "func", f.Name, "bytes", len(prog.Code), "relocs", len(prog.Relocs))
	return prog, nil
}

// Rebase patches prog's deferred call-target relocations now that every
// referenced function's final address is known. resolve must return the
// absolute address for a relocation's target item and ok=false if it
// cannot (e.g. the item was never placed) — Rebase then reports an
// error rather than silently leaving the zero placeholder in place.
//
// Switch-table entries need no call into Rebase: Translate already
// emitted them as PC-relative deltas from the table itself, so they
// stay correct under any base address without a patch (see
// internal/pattern's Program.Relocs doc and DESIGN.md).
func (c *Context) Rebase(prog *pattern.Program, resolve func(*ir.Item) (uint64, bool)) error {
	for _, r := range prog.Relocs {
		addr, ok := resolve(r.Target)
		if !ok {
			return fmt.Errorf("target: rebase: unresolved call target %q", r.Target.Name)
		}
		putUint64LE(prog.Code[r.Offset:r.Offset+8], addr)
	}
	return nil
}

func putUint64LE(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

// InsnOK reports whether some pattern table entry matches insn, for a
// legalizer to consult before committing to an instruction shape.
func (c *Context) InsnOK(insn *ir.Insn) bool {
	_, err := pattern.Match(insn)
	return err == nil
}

// EarlyClobberedHardRegs reports the hard registers insn clobbers before
// reading its other operands. The integer remainder opcodes (MOD, UMOD)
// report T2; every other opcode reports nothing. The MOD/UMOD table
// patterns are single rem/remu words that write no scratch register, so
// the T2 report is conservative.
func EarlyClobberedHardRegs(insn *ir.Insn) []ir.HardReg {
	switch insn.Op {
	case ir.OpMOD, ir.OpUMOD:
		return []ir.HardReg{ir.T2}
	default:
		return nil
	}
}

// StackSlotOffset returns the byte offset of stack slot "slot" within
// the frame, per target_get_stack_slot_offset. varargOrBlockArg is true
// when the function is vararg or takes block-structured arguments by
// address, both of which reserve a 32-byte head (vararg GPR save area /
// incoming-stack-base slot) instead of the plain 16 bytes (RA+FP) a
// leaner function reserves.
func StackSlotOffset(slot int, varargOrBlockArg bool) int64 {
	base := int64(stackSlotBase16)
	if varargOrBlockArg {
		base = stackSlotBase32
	}
	return int64(slot)*8 + base
}

// ValidMemOffset reports whether offset fits the encoder's memory-
// operand displacement field for type t: a signed 12-bit immediate,
// with an extra 8 bytes of headroom reserved for long-double's
// two-word access pattern.
func ValidMemOffset(t ir.Type, offset int64) bool {
	if offset < -2048 || offset > 2047 {
		return false
	}
	if t == ir.TLD && offset+8 >= 2048 {
		return false
	}
	return true
}

// HardRegTypeOK reports whether a value of type t may live in hard
// register r: long-double never occupies an FPR, and no scalar value
// may occupy a fixed/reserved register.
func HardRegTypeOK(t ir.Type, r ir.HardReg) bool {
	if ir.Fixed(r) {
		return false
	}
	if r.IsFPR() {
		return t.FPType()
	}
	return !t.FPType()
}

// FixedHardReg reports whether r is permanently unavailable to the
// register allocator.
func FixedHardReg(r ir.HardReg) bool { return ir.Fixed(r) }

// CallUsedHardReg reports whether a call may clobber r for a value of
// the given type.
func CallUsedHardReg(r ir.HardReg, isLongDouble bool) bool { return ir.CallUsed(r, isLongDouble) }

// LocsNum returns the number of hard-register "locations" a value of
// type t occupies: two consecutive GPRs for long-double (it never lives
// in an FPR pair), one register for everything else.
func LocsNum(t ir.Type) int {
	if t == ir.TLD {
		return 2
	}
	return 1
}

// NthLoc returns the nth hard-register location a value based at r
// occupies, per LocsNum(t). Long-double's second word lives in the next
// register after r.
func NthLoc(t ir.Type, r ir.HardReg, n int) ir.HardReg {
	if t == ir.TLD && n == 1 {
		return r + 1
	}
	return r
}
