package ir

// Insn is an opcode plus an ordered operand list, doubly-linked within
// its function's instruction list. The host framework normally owns
// DLIST primitives for this (spec §6); this type stands in for that
// contract so machinization has something concrete to rewrite in place.
type Insn struct {
	Op   Op
	Ops  []Operand
	Code UnspecCode // valid only when Op == OpUNSPEC

	prev, next *Insn
}

// Prev returns the previous instruction in program order, or nil.
func (i *Insn) Prev() *Insn { return i.prev }

// Next returns the next instruction in program order, or nil.
func (i *Insn) Next() *Insn { return i.next }

// NewInsn constructs a detached instruction with the given opcode and
// operands.
func NewInsn(op Op, ops ...Operand) *Insn {
	return &Insn{Op: op, Ops: ops}
}

// Param is one formal parameter: its type and, for block-aggregate
// types, its size in bytes.
type Param struct {
	Type Type
	Size int // only meaningful when Type.BlockType()
	Name string
}

// Func is a function body being compiled: its formal parameters, result
// types, vararg flag, and its instruction list.
type Func struct {
	Name       string
	Params     []Param
	ResTypes   []Type
	VarargP    bool

	head, tail *Insn
	nextTemp   uint32
}

// Insns returns the head of the instruction list; walk with Insn.Next.
func (f *Func) Insns() *Insn { return f.head }

// Tail returns the last instruction in the list.
func (f *Func) Tail() *Insn { return f.tail }

// Append adds insn at the end of the function's instruction list.
func (f *Func) Append(insn *Insn) {
	if f.tail == nil {
		f.head, f.tail = insn, insn
		insn.prev, insn.next = nil, nil
		return
	}
	f.tail.next = insn
	insn.prev = f.tail
	insn.next = nil
	f.tail = insn
}

// InsertBefore splices newInsn immediately before anchor in f's
// instruction list.
func (f *Func) InsertBefore(anchor, newInsn *Insn) {
	if anchor == nil {
		f.Append(newInsn)
		return
	}
	newInsn.prev = anchor.prev
	newInsn.next = anchor
	if anchor.prev != nil {
		anchor.prev.next = newInsn
	} else {
		f.head = newInsn
	}
	anchor.prev = newInsn
}

// InsertAfter splices newInsn immediately after anchor in f's
// instruction list.
func (f *Func) InsertAfter(anchor, newInsn *Insn) {
	if anchor == nil {
		f.Append(newInsn)
		return
	}
	newInsn.next = anchor.next
	newInsn.prev = anchor
	if anchor.next != nil {
		anchor.next.prev = newInsn
	} else {
		f.tail = newInsn
	}
	anchor.next = newInsn
}

// Delete removes insn from f's instruction list.
func (f *Func) Delete(insn *Insn) {
	if insn.prev != nil {
		insn.prev.next = insn.next
	} else {
		f.head = insn.next
	}
	if insn.next != nil {
		insn.next.prev = insn.prev
	} else {
		f.tail = insn.prev
	}
	insn.prev, insn.next = nil, nil
}

// NewTempVReg allocates a virtual register id not otherwise used by f.
// Real register allocators receive these as any other VReg; the host
// framework's real allocator would instead hand out ids from a
// module-wide counter (spec §6), but for a self-contained function body
// a local counter is equivalent and keeps this package free of any
// global mutable state (spec §5: all mutation confined to owning state).
func (f *Func) NewTempVReg() VReg {
	f.nextTemp++
	return VReg(0x80000000 | f.nextTemp)
}
