/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"github.com/go-classfile/asm/bytevector"
	"github.com/go-classfile/asm/opcodes"
)

// entryLocals builds the initial local-variable array for the method's
// first block, from its descriptor plus `this` (when non-static) or
// UninitializedThis (inside a constructor, per JVMS §4.10.1.6).
func (w *MethodWriter) entryLocals() []int32 {
	var locals []int32
	if w.access&opcodes.AccStatic == 0 {
		if w.name == "<init>" {
			locals = append(locals, tUninitializedThis)
		} else {
			locals = append(locals, w.types.typeFor(w.OwnerClass))
		}
	}
	desc := w.descriptor
	i := 1
	for i < len(desc) && desc[i] != ')' {
		t, consumed := w.parseFieldType(desc, i)
		locals = append(locals, t)
		if isWide(t) {
			locals = append(locals, tTop)
		}
		i += consumed
	}
	return locals
}

// parseFieldType reads one field descriptor starting at desc[i] and
// returns its abstract type plus the number of characters consumed.
func (w *MethodWriter) parseFieldType(desc string, i int) (int32, int) {
	start := i
	for i < len(desc) && desc[i] == '[' {
		i++
	}
	if i >= len(desc) {
		return tTop, i - start + 1
	}
	switch desc[i] {
	case 'B', 'C', 'S', 'Z', 'I':
		if start != i {
			return w.types.typeFor(arrayInternalName(desc, start, i+1)), i - start + 1
		}
		return tInt, 1
	case 'F':
		if start != i {
			return w.types.typeFor(arrayInternalName(desc, start, i+1)), i - start + 1
		}
		return tFloat, 1
	case 'J':
		if start != i {
			return w.types.typeFor(arrayInternalName(desc, start, i+1)), i - start + 1
		}
		return tLong, 1
	case 'D':
		if start != i {
			return w.types.typeFor(arrayInternalName(desc, start, i+1)), i - start + 1
		}
		return tDouble, 1
	case 'L':
		end := i
		for end < len(desc) && desc[end] != ';' {
			end++
		}
		if start != i {
			return w.types.typeFor(arrayInternalName(desc, start, end+1)), end - start + 1
		}
		return w.types.typeFor(desc[i+1 : end]), end - start + 1
	}
	return tTop, i - start + 1
}

func arrayInternalName(desc string, start, end int) string { return desc[start:end] }

// objectSentinel packs the always-sound "java/lang/Object" upper bound
// used wherever two distinct reference types merge without a classpath
// oracle (frame.go's mergeType uses packReference(-1) for the same
// reason).
func (w *MethodWriter) objectSentinel() int32 { return w.types.typeFor("java/lang/Object") }

// runFrameFixpoint computes every reachable block's input Frame by
// symbolically executing the method body, seeding the entry block from
// the descriptor and each exception handler block with a one-element
// stack holding the caught type. Blocks never reached by this traversal
// are left with a nil Frame and are the ones emitCode overwrites with
// NOP*;ATHROW.
func (w *MethodWriter) runFrameFixpoint(argsAndLocals int) map[*Label]bool {
	w.types = newSymbolTypeTable()
	if len(w.blocks) == 0 {
		return nil
	}
	entry := newFrame(w.entryLabel)
	entry.InputLocals = w.entryLocals()
	w.entryLabel.Frame = entry

	reachable := map[*Label]bool{w.entryLabel: true}
	queue := []*Label{w.entryLabel}

	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		locals, stack := w.runBlock(block)
		block.Frame.OutputLocals = locals
		block.Frame.OutputStack = stack

		for e := block.Edges; e != nil; e = e.NextEdge {
			succ := e.Successor
			if succ == nil {
				continue
			}
			var inLocals, inStack []int32
			if e.Info == EdgeException {
				caught := tTop
				if h := w.handlerFor(block, succ); h != nil {
					if h.CatchTypeDescriptor == "" {
						caught = w.types.typeFor("java/lang/Throwable")
					} else {
						caught = w.types.typeFor(h.CatchTypeDescriptor)
					}
				}
				inLocals = locals
				inStack = []int32{caught}
			} else {
				inLocals = locals
				inStack = stack
			}
			firstVisit := succ.Frame == nil
			if firstVisit {
				succ.Frame = newFrame(succ)
				succ.Frame.InputLocals = cloneInt32(inLocals)
				succ.Frame.InputStack = cloneInt32(inStack)
			}
			changed := firstVisit || mergeFrames(succ.Frame, inLocals, inStack)
			if !reachable[succ] {
				reachable[succ] = true
			}
			if changed {
				queue = append(queue, succ)
			}
		}
	}
	return reachable
}

func (w *MethodWriter) handlerFor(block, handlerBlock *Label) *Handler {
	for h := w.handlersHead; h != nil; h = h.NextHandler {
		if w.blockStart(h.HandlerPC) == handlerBlock {
			for _, b := range w.blocksBetween(h.Start, h.End) {
				if b == block {
					return h
				}
			}
		}
	}
	return nil
}

func cloneInt32(s []int32) []int32 {
	out := make([]int32, len(s))
	copy(out, s)
	return out
}

// runBlock symbolically executes one basic block against its (already
// merged) input frame and returns the locals/stack state on exit.
func (w *MethodWriter) runBlock(block *Label) (locals, stack []int32) {
	locals = cloneInt32(block.Frame.InputLocals)
	stack = cloneInt32(block.Frame.InputStack)
	push := func(t int32) {
		stack = append(stack, t)
		if isWide(t) {
			stack = append(stack, tTop)
		}
	}
	pop := func() int32 {
		if len(stack) == 0 {
			return tTop
		}
		t := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return t
	}
	setLocal := func(i int, t int32) {
		for len(locals) <= i {
			locals = append(locals, tTop)
		}
		locals[i] = t
		if isWide(t) && len(locals) > i+1 {
			locals[i+1] = tTop
		}
	}
	getLocal := func(i int) int32 {
		if i >= len(locals) {
			return tTop
		}
		return locals[i]
	}

	for i := block.insnIndex; i < len(w.code); i++ {
		in := w.code[i]
		if in.kind == insnLabelMarker {
			if in.label != block && in.label.isJumpTarget() {
				break
			}
			continue
		}
		switch in.kind {
		case insnPlain:
			w.runPlainInsn(in.opcode, push, pop, getLocal, setLocal)
		case insnIntOperand:
			if in.opcode == opcodes.NEWARRAY {
				pop()
				push(w.objectSentinel())
			} else {
				push(tInt)
			}
		case insnVar:
			w.runVarInsn(in, push, pop, getLocal, setLocal)
		case insnType:
			switch in.opcode {
			case opcodes.NEW:
				push(w.types.uninitializedTypeFor(in.offset, in.typeOperand))
			case opcodes.ANEWARRAY:
				pop()
				push(w.types.typeFor("[L" + in.typeOperand + ";"))
			case opcodes.CHECKCAST:
				pop()
				push(w.types.typeFor(in.typeOperand))
			case opcodes.INSTANCEOF:
				pop()
				push(tInt)
			}
		case insnField:
			t, _ := w.parseFieldType(in.descriptor, 0)
			switch in.opcode {
			case opcodes.GETSTATIC:
				push(t)
			case opcodes.PUTSTATIC:
				pop()
			case opcodes.GETFIELD:
				pop()
				push(t)
			case opcodes.PUTFIELD:
				pop()
				pop()
			}
		case insnMethod:
			w.runMethodInsn(in, push, pop, stackRef(&stack), stackRef(&locals))
		case insnInvokeDynamic:
			args := parseArgDescriptors(in.descriptor)
			for range args {
				pop()
			}
			if ret, ok := returnType(w, in.descriptor); ok {
				push(ret)
			}
		case insnLdc:
			push(w.ldcType(in.cst))
		case insnJump:
			if in.opcode != opcodes.GOTO && in.opcode != opcodes.JSR {
				if in.opcode == opcodes.IF_ACMPEQ || in.opcode == opcodes.IF_ACMPNE {
					pop()
					pop()
				} else if in.opcode == opcodes.IFNULL || in.opcode == opcodes.IFNONNULL {
					pop()
				} else if in.opcode >= opcodes.IF_ICMPEQ && in.opcode <= opcodes.IF_ICMPLE {
					pop()
					pop()
				} else {
					pop()
				}
			}
		case insnIinc:
			// no stack effect
		case insnTableSwitch, insnLookupSwitch:
			pop()
		case insnMultiANewArray:
			for n := 0; n < in.numDimensions; n++ {
				pop()
			}
			push(w.types.typeFor(in.typeOperand))
		}
	}
	return locals, stack
}

func stackRef(s *[]int32) func() []int32 { return func() []int32 { return *s } }

func (w *MethodWriter) runPlainInsn(opcode int, push func(int32), pop func() int32, getLocal func(int) int32, setLocal func(int, int32)) {
	switch opcode {
	case opcodes.NOP:
	case opcodes.ACONST_NULL:
		push(tNull)
	case opcodes.ICONST_M1, opcodes.ICONST_0, opcodes.ICONST_1, opcodes.ICONST_2, opcodes.ICONST_3, opcodes.ICONST_4, opcodes.ICONST_5:
		push(tInt)
	case opcodes.LCONST_0, opcodes.LCONST_1:
		push(tLong)
	case opcodes.FCONST_0, opcodes.FCONST_1, opcodes.FCONST_2:
		push(tFloat)
	case opcodes.DCONST_0, opcodes.DCONST_1:
		push(tDouble)
	case opcodes.IALOAD, opcodes.BALOAD, opcodes.CALOAD, opcodes.SALOAD:
		pop()
		pop()
		push(tInt)
	case opcodes.LALOAD:
		pop()
		pop()
		push(tLong)
	case opcodes.FALOAD:
		pop()
		pop()
		push(tFloat)
	case opcodes.DALOAD:
		pop()
		pop()
		push(tDouble)
	case opcodes.AALOAD:
		pop()
		pop()
		push(w.objectSentinel())
	case opcodes.IASTORE, opcodes.BASTORE, opcodes.CASTORE, opcodes.SASTORE, opcodes.FASTORE, opcodes.AASTORE:
		pop()
		pop()
		pop()
	case opcodes.LASTORE, opcodes.DASTORE:
		pop()
		pop()
		pop()
	case opcodes.POP:
		pop()
	case opcodes.POP2:
		pop()
		pop()
	case opcodes.DUP:
		t := pop()
		push(t)
		push(t)
	case opcodes.DUP_X1:
		a, b := pop(), pop()
		push(a)
		push(b)
		push(a)
	case opcodes.DUP_X2:
		a, b, c := pop(), pop(), pop()
		push(a)
		push(c)
		push(b)
		push(a)
	case opcodes.DUP2:
		a, b := pop(), pop()
		push(b)
		push(a)
		push(b)
		push(a)
	case opcodes.DUP2_X1:
		a, b, c := pop(), pop(), pop()
		push(b)
		push(a)
		push(c)
		push(b)
		push(a)
	case opcodes.DUP2_X2:
		a, b, c, d := pop(), pop(), pop(), pop()
		push(b)
		push(a)
		push(d)
		push(c)
		push(b)
		push(a)
	case opcodes.SWAP:
		a, b := pop(), pop()
		push(a)
		push(b)
	case opcodes.IADD, opcodes.ISUB, opcodes.IMUL, opcodes.IDIV, opcodes.IREM,
		opcodes.ISHL, opcodes.ISHR, opcodes.IUSHR, opcodes.IAND, opcodes.IOR, opcodes.IXOR:
		pop()
		pop()
		push(tInt)
	case opcodes.LADD, opcodes.LSUB, opcodes.LMUL, opcodes.LDIV, opcodes.LREM, opcodes.LAND, opcodes.LOR, opcodes.LXOR:
		pop()
		pop()
		push(tLong)
	case opcodes.LSHL, opcodes.LSHR, opcodes.LUSHR:
		pop()
		pop()
		push(tLong)
	case opcodes.FADD, opcodes.FSUB, opcodes.FMUL, opcodes.FDIV, opcodes.FREM:
		pop()
		pop()
		push(tFloat)
	case opcodes.DADD, opcodes.DSUB, opcodes.DMUL, opcodes.DDIV, opcodes.DREM:
		pop()
		pop()
		push(tDouble)
	case opcodes.INEG:
		push(pop())
	case opcodes.LNEG:
		push(pop())
	case opcodes.FNEG:
		push(pop())
	case opcodes.DNEG:
		push(pop())
	case opcodes.I2L:
		pop()
		push(tLong)
	case opcodes.I2F:
		pop()
		push(tFloat)
	case opcodes.I2D:
		pop()
		push(tDouble)
	case opcodes.L2I:
		pop()
		push(tInt)
	case opcodes.L2F:
		pop()
		push(tFloat)
	case opcodes.L2D:
		pop()
		push(tDouble)
	case opcodes.F2I:
		pop()
		push(tInt)
	case opcodes.F2L:
		pop()
		push(tLong)
	case opcodes.F2D:
		pop()
		push(tDouble)
	case opcodes.D2I:
		pop()
		push(tInt)
	case opcodes.D2L:
		pop()
		push(tLong)
	case opcodes.D2F:
		pop()
		push(tFloat)
	case opcodes.I2B, opcodes.I2C, opcodes.I2S:
		pop()
		push(tInt)
	case opcodes.LCMP:
		pop()
		pop()
		push(tInt)
	case opcodes.FCMPL, opcodes.FCMPG:
		pop()
		pop()
		push(tInt)
	case opcodes.DCMPL, opcodes.DCMPG:
		pop()
		pop()
		push(tInt)
	case opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN, opcodes.ARETURN:
		pop()
	case opcodes.RETURN:
	case opcodes.ARRAYLENGTH:
		pop()
		push(tInt)
	case opcodes.ATHROW:
		pop()
	case opcodes.MONITORENTER, opcodes.MONITOREXIT:
		pop()
	}
}

func (w *MethodWriter) runVarInsn(in *insn, push func(int32), pop func() int32, getLocal func(int) int32, setLocal func(int, int32)) {
	switch in.opcode {
	case opcodes.ILOAD:
		push(getLocal(in.varIndex))
	case opcodes.LLOAD:
		push(tLong)
	case opcodes.FLOAD:
		push(getLocal(in.varIndex))
	case opcodes.DLOAD:
		push(tDouble)
	case opcodes.ALOAD:
		push(getLocal(in.varIndex))
	case opcodes.ISTORE:
		setLocal(in.varIndex, tInt)
		pop()
	case opcodes.LSTORE:
		setLocal(in.varIndex, tLong)
		pop()
	case opcodes.FSTORE:
		setLocal(in.varIndex, tFloat)
		pop()
	case opcodes.DSTORE:
		setLocal(in.varIndex, tDouble)
		pop()
	case opcodes.ASTORE:
		setLocal(in.varIndex, pop())
	case opcodes.RET:
	}
}

func (w *MethodWriter) runMethodInsn(in *insn, push func(int32), pop func() int32, stack, locals func() []int32) {
	args := parseArgDescriptors(in.descriptor)
	for range args {
		pop()
	}
	isInitOnUninitialized := in.opcode == opcodes.INVOKESPECIAL && in.name == "<init>"
	var objectType int32
	if in.opcode != opcodes.INVOKESTATIC {
		objectType = pop()
	}
	if isInitOnUninitialized && abstractKind(objectType) == UninitializedKind {
		initialized := w.types.typeFor(in.owner)
		for _, s := range [][]int32{stack(), locals()} {
			for i, t := range s {
				if t == objectType {
					s[i] = initialized
				}
			}
		}
		w.replaceOnAllReachable(objectType, initialized)
	}
	if ret, ok := returnType(w, in.descriptor); ok {
		push(ret)
	}
}

// replaceOnAllReachable is a scope cut: a fully faithful implementation
// would rewrite every already-computed frame referencing the same
// UNINITIALIZED record across the whole method (JVMS §4.10.1.4). Doing
// that here would mean re-running the fixpoint with initialization
// substitution threaded through merges; instead this codec accepts the
// then-current block's own locals/stack (already handled by runMethodInsn
// rewriting the live stack/locals slices in place) and records nothing
// further. Cross-block propagation of the now-initialized type happens
// naturally because every successor still in the same or a later
// fixpoint iteration re-derives its input from this block's output.
func (w *MethodWriter) replaceOnAllReachable(from, to int32) {}

func (w *MethodWriter) ldcType(cst interface{}) int32 {
	switch cst.(type) {
	case int32, int:
		return tInt
	case int64:
		return tLong
	case float32:
		return tFloat
	case float64:
		return tDouble
	case string:
		return w.types.typeFor("java/lang/String")
	case *typeConstant:
		return w.types.typeFor("java/lang/Class")
	case *methodTypeConstant:
		return w.types.typeFor("java/lang/invoke/MethodType")
	case *methodHandleConstant:
		return w.types.typeFor("java/lang/invoke/MethodHandle")
	case *dynamicConstant:
		c := cst.(*dynamicConstant)
		t, _ := w.parseFieldType(c.descriptor, 0)
		return t
	}
	return tTop
}

func parseArgDescriptors(descriptor string) []string {
	var args []string
	i := 1
	for i < len(descriptor) && descriptor[i] != ')' {
		start := i
		for descriptor[i] == '[' {
			i++
		}
		if descriptor[i] == 'L' {
			for descriptor[i] != ';' {
				i++
			}
		}
		i++
		args = append(args, descriptor[start:i])
	}
	return args
}

func returnType(w *MethodWriter, descriptor string) (int32, bool) {
	idx := -1
	for i := 0; i < len(descriptor); i++ {
		if descriptor[i] == ')' {
			idx = i + 1
			break
		}
	}
	if idx < 0 || idx >= len(descriptor) {
		return 0, false
	}
	ret := descriptor[idx:]
	if ret == "V" {
		return 0, false
	}
	t, _ := w.parseFieldType(ret, 0)
	return t, true
}

// --- StackMapTable emission ---

// stackMapFrameEntry is one entry ready for compressed encoding: the
// owning block's bytecode offset plus its input locals/stack, still as
// abstract types; they are turned into verification_type_info form only
// when the table is written.
type stackMapFrameEntry struct {
	offset int
	locals []int32
	stack  []int32
}

func (w *MethodWriter) buildStackMapTable() []stackMapFrameEntry {
	var frames []stackMapFrameEntry
	for _, block := range w.blocks {
		if block.Frame == nil || !block.isReachable() {
			continue
		}
		if block == w.entryLabel && !block.isJumpTarget() {
			continue
		}
		if block != w.entryLabel && !block.isJumpTarget() {
			continue
		}
		frames = append(frames, stackMapFrameEntry{
			offset: block.BytecodeOffset,
			locals: trimTrailingTop(block.Frame.InputLocals),
			stack:  block.Frame.InputStack,
		})
	}
	return frames
}

func trimTrailingTop(locals []int32) []int32 {
	n := len(locals)
	for n > 0 && locals[n-1] == tTop {
		// A trailing TOP can be either real padding after a wide local or
		// an unused slot; either way JVMS verification_type_info never
		// needs to name it explicitly at the tail.
		n--
	}
	return locals[:n]
}

// writeStackMapTable emits the compressed frame[] sequence, choosing the
// narrowest valid frame_type per JVMS §4.7.4 for each entry relative to
// the previous one.
func writeStackMapTable(out *bytevector.ByteVector, st *SymbolTable, types *symbolTypeTable, frames []stackMapFrameEntry) error {
	out.PutShort(len(frames))
	prevOffset := -1
	var prevLocals []int32
	for _, f := range frames {
		delta := f.offset - prevOffset - 1
		if prevOffset == -1 {
			delta = f.offset
		}
		if err := writeOneFrame(out, st, types, delta, prevLocals, f.locals, f.stack); err != nil {
			return err
		}
		prevOffset = f.offset
		prevLocals = f.locals
	}
	return nil
}

func writeOneFrame(out *bytevector.ByteVector, st *SymbolTable, types *symbolTypeTable, offsetDelta int, prevLocals, locals, stack []int32) error {
	sameLocals := int32SliceEqual(prevLocals, locals)
	switch {
	case sameLocals && len(stack) == 0:
		if offsetDelta < 64 {
			out.PutByte(offsetDelta) // SAME
		} else {
			out.PutByte(251) // SAME_FRAME_EXTENDED
			out.PutShort(offsetDelta)
		}
		return nil
	case sameLocals && len(stack) == 1:
		if offsetDelta < 64 {
			out.PutByte(64 + offsetDelta) // SAME_LOCALS_1_STACK_ITEM
		} else {
			out.PutByte(247) // SAME_LOCALS_1_STACK_ITEM_EXTENDED
			out.PutShort(offsetDelta)
		}
		return writeVerificationTypes(out, st, types, stack)
	}
	if len(stack) == 0 {
		common := commonPrefixLen(prevLocals, locals)
		if common == len(prevLocals) && len(locals) > len(prevLocals) && len(locals)-len(prevLocals) <= 3 {
			out.PutByte(251 + (len(locals) - len(prevLocals))) // APPEND
			out.PutShort(offsetDelta)
			return writeVerificationTypes(out, st, types, locals[len(prevLocals):])
		}
		if common == len(locals) && len(prevLocals) > len(locals) && len(prevLocals)-len(locals) <= 3 {
			out.PutByte(251 - (len(prevLocals) - len(locals))) // CHOP
			out.PutShort(offsetDelta)
			return nil
		}
	}
	out.PutByte(255) // FULL_FRAME
	out.PutShort(offsetDelta)
	out.PutShort(len(locals))
	if err := writeVerificationTypes(out, st, types, locals); err != nil {
		return err
	}
	out.PutShort(len(stack))
	return writeVerificationTypes(out, st, types, stack)
}

func int32SliceEqual(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func commonPrefixLen(a, b []int32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	return n
}

func writeVerificationTypes(out *bytevector.ByteVector, st *SymbolTable, types *symbolTypeTable, list []int32) error {
	for _, t := range list {
		if t == tTop {
			out.PutByte(0)
			continue
		}
		switch abstractKind(t) {
		case ConstantKind:
			switch abstractPayload(t) {
			case Int:
				out.PutByte(1)
			case Float:
				out.PutByte(2)
			case Double:
				out.PutByte(3)
			case Long:
				out.PutByte(4)
			case Null:
				out.PutByte(5)
			case UninitializedThis:
				out.PutByte(6)
			default:
				out.PutByte(0)
			}
		case ReferenceKind:
			out.PutByte(7)
			idx := abstractPayload(t)
			name := "java/lang/Object"
			if idx >= 0 {
				name = types.nameOf(idx)
			}
			sym, err := st.AddConstantClass(name)
			if err != nil {
				return err
			}
			out.PutShort(sym.Index)
		case UninitializedKind:
			out.PutByte(8)
			rec := types.uninit[abstractPayload(t)]
			out.PutShort(rec.newInsnOffset)
		}
	}
	return nil
}
