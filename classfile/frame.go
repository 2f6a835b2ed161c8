/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

// Abstract types are packed 32-bit integers: a 4-bit kind tag in the low
// nibble, a 28-bit payload above it.
const (
	kindShift = 4
	kindMask  = 0xF

	ConstantKind     = 1
	ReferenceKind    = 2
	UninitializedKind = 3
	LocalKind        = 4
	StackKind        = 5
)

// Constant-kind payload values -- the primitive lattice members.
const (
	Top  = 0
	Int  = 1
	Float = 2
	Double = 3
	Long  = 4
	Null  = 5
	UninitializedThis = 6
)

func packConstant(payload int) int32    { return int32(payload<<kindShift | ConstantKind) }
func packReference(typeIndex int) int32 { return int32(typeIndex<<kindShift | ReferenceKind) }
func packUninitialized(recordIndex int) int32 {
	return int32(recordIndex<<kindShift | UninitializedKind)
}
func packLocal(delta int) int32 { return int32(delta<<kindShift | LocalKind) }
func packStack(delta int) int32 { return int32(delta<<kindShift | StackKind) }

func abstractKind(t int32) int    { return int(t) & kindMask }
func abstractPayload(t int32) int { return int(t) >> kindShift }

var (
	tTop               = packConstant(Top)
	tInt               = packConstant(Int)
	tFloat             = packConstant(Float)
	tLong              = packConstant(Long)
	tDouble            = packConstant(Double)
	tNull              = packConstant(Null)
	tUninitializedThis = packConstant(UninitializedThis)
)

// uninitializedRecord is a (NEW-instruction offset, type) pair; Frame
// refers to these by index via UninitializedKind types.
type uninitializedRecord struct {
	newInsnOffset int
	typ           string
}

// symbolTypeTable maps internal class names to a stable per-method index,
// so REFERENCE_KIND types can be packed into the abstract-type int
// without embedding a pointer. Owned by the MethodWriter for the
// duration of one method's frame computation.
type symbolTypeTable struct {
	names []string
	index map[string]int
	uninit []uninitializedRecord
}

func newSymbolTypeTable() *symbolTypeTable {
	return &symbolTypeTable{index: make(map[string]int)}
}

func (t *symbolTypeTable) typeFor(internalName string) int32 {
	if i, ok := t.index[internalName]; ok {
		return packReference(i)
	}
	i := len(t.names)
	t.names = append(t.names, internalName)
	t.index[internalName] = i
	return packReference(i)
}

func (t *symbolTypeTable) nameOf(i int) string { return t.names[i] }

func (t *symbolTypeTable) uninitializedTypeFor(newInsnOffset int, typ string) int32 {
	for i, r := range t.uninit {
		if r.newInsnOffset == newInsnOffset && r.typ == typ {
			return packUninitialized(i)
		}
	}
	i := len(t.uninit)
	t.uninit = append(t.uninit, uninitializedRecord{newInsnOffset, typ})
	return packUninitialized(i)
}

// Frame is a stack-map frame: the abstract state of locals and operand
// stack at the start (input) and end (output) of one basic block.
// Output arrays are expressed relative to the input, via LOCAL_KIND/
// STACK_KIND deltas, until resolved to absolute types at merge time.
type Frame struct {
	Owner *Label

	InputLocals []int32
	InputStack  []int32

	OutputLocals []int32
	OutputStack  []int32
	OutputStackStart int // index, within OutputLocals-relative numbering, of the first real output-stack push
	outputStackTop   int

	// Initializations records NEW-instruction offsets that this block's
	// execution turned from UNINITIALIZED into their initialized type,
	// used to re-map other frames' stale UNINITIALIZED references at
	// merge time.
	Initializations map[int]int32
}

func newFrame(owner *Label) *Frame {
	return &Frame{Owner: owner, Initializations: make(map[int]int32)}
}

// setInput seeds the frame's input locals/stack, e.g. from the method
// descriptor at the entry block, or a one-element stack at an exception
// handler.
func (f *Frame) setInput(locals, stack []int32) {
	f.InputLocals = locals
	f.InputStack = stack
}

// push appends a type to the frame's *output* stack (tracked relative to
// input as the block executes); widened types (long/double) push a
// trailing TOP per JVMS verification_type_info layout rules.
func (f *Frame) push(t int32) {
	f.OutputStack = append(f.OutputStack, t)
	f.outputStackTop++
	if isWide(t) {
		f.OutputStack = append(f.OutputStack, tTop)
	}
}

func (f *Frame) pop() int32 {
	if len(f.OutputStack) == 0 {
		return tTop
	}
	t := f.OutputStack[len(f.OutputStack)-1]
	f.OutputStack = f.OutputStack[:len(f.OutputStack)-1]
	return t
}

func isWide(t int32) bool {
	return abstractKind(t) == ConstantKind && (abstractPayload(t) == Long || abstractPayload(t) == Double)
}

// mergeType implements the lattice join used by the all-frames fixpoint:
// commutative, idempotent, and monotone. Returns the merged type and
// whether it differs from dst.
func mergeType(dst, src int32) (int32, bool) {
	if dst == src {
		return dst, false
	}
	if abstractKind(dst) == ConstantKind && abstractPayload(dst) == Top {
		return dst, false // TOP absorbs everything: already bottom-most
	}
	if abstractKind(src) == ConstantKind && abstractPayload(src) == Top {
		return tTop, dst != tTop
	}
	if abstractKind(dst) == ReferenceKind && abstractKind(src) == ReferenceKind {
		// Without a supertype oracle (out of scope: no classpath
		// resolution here), two distinct reference types merge to
		// java/lang/Object, the always-sound upper bound.
		object := packReference(-1) // -1 is the sentinel for "Object", resolved by caller
		return object, dst != object
	}
	if dst == tTop {
		return tTop, false
	}
	return tTop, true
}

// mergeFrames merges src into dst's input frame (the join of all
// predecessor outputs reaching a block). Returns true if dst changed and
// must be re-enqueued.
func mergeFrames(dst *Frame, srcLocals, srcStack []int32) bool {
	changed := false
	for i := range dst.InputLocals {
		if i >= len(srcLocals) {
			if dst.InputLocals[i] != tTop {
				dst.InputLocals[i] = tTop
				changed = true
			}
			continue
		}
		merged, c := mergeType(dst.InputLocals[i], srcLocals[i])
		if c {
			dst.InputLocals[i] = merged
			changed = true
		}
	}
	for i := range dst.InputStack {
		if i >= len(srcStack) {
			continue
		}
		merged, c := mergeType(dst.InputStack[i], srcStack[i])
		if c {
			dst.InputStack[i] = merged
			changed = true
		}
	}
	return changed
}
