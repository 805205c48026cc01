package ir

// Type names the handful of MIR value types this backend cares about.
// Block aggregates are tagged as in the original: BLK (generic), BLK1
// (packed integers, even-GPR-aligned), BLK2 (packed doubles), RBLK
// (reference/pointer to a block passed by address) — spec glossary.
type Type int

const (
	TUndef Type = iota
	TI8
	TU8
	TI16
	TU16
	TI32
	TU32
	TI64
	TU64
	TF
	TD
	TLD
	TBLK
	TBLK1
	TBLK2
	TRBLK
)

// BlockType reports whether t is one of the block-aggregate tags.
func (t Type) BlockType() bool {
	return t == TBLK || t == TBLK1 || t == TBLK2 || t == TRBLK
}

// FPType reports whether t is a hardware-float scalar type (F or D —
// long-double is deliberately excluded, it is never kept in an FPR).
func (t Type) FPType() bool { return t == TF || t == TD }

// SignedInt reports whether t is a signed sub-word/word/dword integer type.
func (t Type) SignedInt() bool {
	return t == TI8 || t == TI16 || t == TI32 || t == TI64
}

// UnsignedInt reports whether t is an unsigned sub-word/word/dword integer type.
func (t Type) UnsignedInt() bool {
	return t == TU8 || t == TU16 || t == TU32 || t == TU64
}

// Size returns the natural size in bytes of a scalar type. Block types
// carry their own size out of band (Operand.Size / formal arg size).
func (t Type) Size() int {
	switch t {
	case TI8, TU8:
		return 1
	case TI16, TU16:
		return 2
	case TI32, TU32, TF:
		return 4
	case TI64, TU64, TD:
		return 8
	case TLD:
		return 16
	default:
		return 8
	}
}

// OperandKind discriminates the Operand union.
type OperandKind int

const (
	OpndVReg OperandKind = iota
	OpndHardReg
	OpndInt
	OpndUInt
	OpndFloat
	OpndDouble
	OpndLongDouble
	OpndMem
	OpndLabel
	OpndRef
)

// VReg is a virtual register identifier, assigned by the host framework
// before this backend ever sees the function (spec §3).
type VReg uint32

// Label is an opaque position marker a branch/jump targets.
type Label uint32

// Mem is a memory reference operand: type + base hard register + index
// hard register (NoHardReg if absent) + byte displacement + scale.
//
// Before register allocation, machinization sometimes needs a memory
// operand whose base is still a pseudo (e.g. a block-aggregate formal
// parameter's own address). BaseVReg carries that case; BaseIsVReg
// discriminates it from the normal hard-register-base form Base holds.
// The pattern matcher and encoder only ever see the hard-register form —
// by the time a function reaches target.Translate, the host's register
// allocator (spec §6, an out-of-scope external collaborator) has already
// rewritten every BaseVReg into a Base.
type Mem struct {
	Type      Type
	Base      HardReg
	BaseVReg  VReg
	BaseIsVReg bool
	Index     HardReg // ir.NoHardReg if no index register is used
	Disp      int64
	Scale     int32
}

// Operand is a tagged-union IR operand (spec §3): a virtual register,
// hard register, one of the immediate kinds, a memory reference, a label
// reference, or an item reference.
type Operand struct {
	Kind OperandKind

	Reg     VReg
	Hard    HardReg
	Int     int64
	UInt    uint64
	Float32 float32
	Float64 float64
	// LongDouble holds the raw 128-bit long-double payload as two 64-bit
	// words (host-endian halves); the backend never computes on this
	// value directly, it only ever moves it through builtin calls.
	LongDoubleLo, LongDoubleHi uint64

	Mem   Mem
	Label Label
	Ref   *Item

	// OperandType is the MIR type this operand carries, needed by the
	// classifier and pattern matcher independent of Kind (e.g. a VReg
	// holding an F value vs. an I64 value encode into different
	// instructions).
	OperandType Type
}

// RegOp constructs a virtual-register operand of the given type.
func RegOp(t Type, r VReg) Operand { return Operand{Kind: OpndVReg, OperandType: t, Reg: r} }

// HardRegOp constructs a hard-register operand of the given type.
func HardRegOp(t Type, h HardReg) Operand { return Operand{Kind: OpndHardReg, OperandType: t, Hard: h} }

// IntOp constructs a signed-immediate operand.
func IntOp(v int64) Operand { return Operand{Kind: OpndInt, OperandType: TI64, Int: v} }

// MemOp constructs a memory-reference operand.
func MemOp(t Type, disp int64, base, index HardReg, scale int32) Operand {
	return Operand{Kind: OpndMem, OperandType: t, Mem: Mem{Type: t, Base: base, Index: index, Disp: disp, Scale: scale}}
}

// VRegMemOp constructs a memory-reference operand based on a still-
// virtual register (pre-register-allocation), index-free. Machinization
// uses this for block-aggregate parameter addresses; see Mem.BaseIsVReg.
func VRegMemOp(t Type, disp int64, base VReg) Operand {
	return Operand{Kind: OpndMem, OperandType: t, Mem: Mem{Type: t, BaseVReg: base, BaseIsVReg: true, Index: NoHardReg, Disp: disp, Scale: 1}}
}

// LabelOp constructs a label-reference operand.
func LabelOp(l Label) Operand { return Operand{Kind: OpndLabel, Label: l} }

// RefOp constructs an item-reference operand (function/proto/import).
func RefOp(it *Item) Operand { return Operand{Kind: OpndRef, Ref: it} }

// ItemKind discriminates Item.
type ItemKind int

const (
	ItemFunc ItemKind = iota
	ItemProto
	ItemImport
	ItemData
)

// Item is a named function/proto/import/data reference — what a CALL's
// first operand and builtin trampolines point at (spec §3).
type Item struct {
	Kind ItemKind
	Name string

	// Proto fields (valid when Kind == ItemProto).
	ArgTypes    []Type
	ResultTypes []Type
	Vararg      bool

	// Import fields (valid when Kind == ItemImport): the host trampoline
	// this import resolves to once bound (spec §9 design note).
	Trampoline uintptr

	// Func fields (valid when Kind == ItemFunc).
	Func *Func
}
