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

// sizeFixpoint assigns a final byte size and bytecode offset to every
// buffered instruction, widening narrow jumps that cannot reach their
// target and repeating until no instruction's size changes (see the
// strategy note in label.go). tableswitch/lookupswitch padding is
// itself offset-dependent, which is why this has to be a fixpoint
// rather than one pass: a widened jump upstream can push a switch's
// offset across a 4-byte boundary and change its own padding.
func (w *MethodWriter) sizeFixpoint() {
	for _, in := range w.code {
		in.size = w.naturalSize(in)
	}
	for {
		offset := 0
		for _, in := range w.code {
			in.offset = offset
			offset += in.size
		}
		changed := false
		offset = 0
		for _, in := range w.code {
			switch in.kind {
			case insnJump:
				if !in.widened && requiresWideJump(in, offset, w.code) {
					in.widened = true
					in.size = wideJumpSize(in.opcode)
					changed = true
				}
			case insnTableSwitch:
				want := tableSwitchSize(in, offset)
				if want != in.size {
					in.size = want
					changed = true
				}
			case insnLookupSwitch:
				want := lookupSwitchSize(in, offset)
				if want != in.size {
					in.size = want
					changed = true
				}
			}
			offset += in.size
		}
		if !changed {
			break
		}
	}
	for _, in := range w.code {
		if in.kind == insnLabelMarker {
			in.label.resolve(in.offset)
		}
	}
}

// requiresWideJump reports whether in's target is currently out of the
// signed 16-bit offset range. in.label isn't resolved yet at this point
// in sizeFixpoint's convergence loop (resolve only runs once, after the
// loop settles), so the target position has to come from the label's
// own marker instruction's offset for *this* iteration rather than the
// not-yet-valid Label.BytecodeOffset.
func requiresWideJump(in *insn, offset int, code []*insn) bool {
	target := code[in.label.insnIndex].offset
	delta := target - offset
	return delta < -32768 || delta > 32767
}

func wideJumpSize(opcode int) int {
	if opcode == opcodes.GOTO {
		return 5
	}
	if opcode == opcodes.JSR {
		return 5
	}
	return 8 // IFxxx -> IFNOTxxx(3) + GOTO_W(5)
}

func padding(offset int) int {
	return (3 - offset%4) % 4
}

func tableSwitchSize(in *insn, offset int) int {
	return 1 + padding(offset) + 12 + 4*len(in.labels)
}

func lookupSwitchSize(in *insn, offset int) int {
	return 1 + padding(offset) + 8 + 8*len(in.keys)
}

// naturalSize returns an instruction's initial (narrowest-possible) size
// before the widening fixpoint runs.
func (w *MethodWriter) naturalSize(in *insn) int {
	switch in.kind {
	case insnPlain:
		return 1
	case insnIntOperand:
		if in.opcode == opcodes.SIPUSH {
			return 3
		}
		return 2 // BIPUSH, NEWARRAY
	case insnVar:
		if compressedVarOpcode(in.opcode, in.varIndex) != 0 {
			return 1
		}
		if in.varIndex > 255 {
			return 4 // WIDE prefix + opcode + 2-byte index
		}
		return 2
	case insnType:
		return 3
	case insnField, insnMethod:
		if in.opcode == opcodes.INVOKEINTERFACE {
			return 5
		}
		return 3
	case insnInvokeDynamic:
		return 5
	case insnJump:
		return 3
	case insnLabelMarker:
		return 0
	case insnLdc:
		if w.ldcWide(in.cst) {
			return 3
		}
		return 2
	case insnIinc:
		if in.varIndex > 255 || in.intOperand < -128 || in.intOperand > 127 {
			return 6 // WIDE IINC indexbyte1 indexbyte2 constbyte1 constbyte2
		}
		return 3
	case insnTableSwitch:
		return tableSwitchSize(in, 0)
	case insnLookupSwitch:
		return lookupSwitchSize(in, 0)
	case insnMultiANewArray:
		return 4
	}
	return 1
}

func (w *MethodWriter) ldcWide(cst interface{}) bool {
	switch v := cst.(type) {
	case int64, float64:
		return true
	case *dynamicConstant:
		return v.descriptor == "J" || v.descriptor == "D"
	case string:
		_ = v
		return false
	}
	return false
}

// compressedVarOpcode returns the *LOAD_n/*STORE_n opcode for a local
// index in [0,3], or 0 if no compressed form exists for this opcode/index
// combination.
func compressedVarOpcode(opcode, index int) int {
	if index > 3 {
		return 0
	}
	base := 0
	switch opcode {
	case opcodes.ILOAD:
		base = opcodes.ILOAD_0
	case opcodes.LLOAD:
		base = opcodes.LLOAD_0
	case opcodes.FLOAD:
		base = opcodes.FLOAD_0
	case opcodes.DLOAD:
		base = opcodes.DLOAD_0
	case opcodes.ALOAD:
		base = opcodes.ALOAD_0
	case opcodes.ISTORE:
		base = opcodes.ISTORE_0
	case opcodes.LSTORE:
		base = opcodes.LSTORE_0
	case opcodes.FSTORE:
		base = opcodes.FSTORE_0
	case opcodes.DSTORE:
		base = opcodes.DSTORE_0
	case opcodes.ASTORE:
		base = opcodes.ASTORE_0
	default:
		return 0
	}
	return base + index
}

// emitCode writes the final instruction stream. Called only after
// sizeFixpoint and, for COMPUTE_ALL_FRAMES, after unreachable blocks have
// been identified (the unreachable map buildCodeAttribute derives from
// runFrameFixpoint).
func (w *MethodWriter) emitCode(out *bytevector.ByteVector, unreachable map[*Label]bool) error {
	for i, in := range w.code {
		if in.kind == insnLabelMarker {
			if unreachable != nil && unreachable[in.label] {
				w.emitUnreachableBlock(out, i)
			}
			continue
		}
		if unreachable != nil && w.inUnreachableBlock(i, unreachable) {
			continue // bytes already emitted by emitUnreachableBlock at the block's label marker
		}
		if err := w.emitInsn(out, in); err != nil {
			return err
		}
	}
	return nil
}

// inUnreachableBlock reports whether code[i] falls inside a block whose
// label was flagged unreachable.
func (w *MethodWriter) inUnreachableBlock(i int, unreachable map[*Label]bool) bool {
	for j := i; j >= 0; j-- {
		if w.code[j].kind == insnLabelMarker {
			return unreachable[w.code[j].label]
		}
	}
	return false
}

// emitUnreachableBlock fills an unreachable block with NOP padding and a
// trailing ATHROW, preserving its original byte length so every later
// label offset stays valid without re-running the sizing fixpoint.
func (w *MethodWriter) emitUnreachableBlock(out *bytevector.ByteVector, labelIdx int) {
	length := 0
	for j := labelIdx + 1; j < len(w.code) && w.code[j].kind != insnLabelMarker; j++ {
		length += w.code[j].size
	}
	if length == 0 {
		return
	}
	for i := 0; i < length-1; i++ {
		out.PutByte(opcodes.NOP)
	}
	out.PutByte(opcodes.ATHROW)
}

func (w *MethodWriter) emitInsn(out *bytevector.ByteVector, in *insn) error {
	switch in.kind {
	case insnPlain:
		out.PutByte(in.opcode)
	case insnIntOperand:
		out.PutByte(in.opcode)
		if in.opcode == opcodes.SIPUSH {
			out.PutShort(in.intOperand)
		} else {
			out.PutByte(in.intOperand)
		}
	case insnVar:
		w.emitVarInsn(out, in)
	case insnType:
		sym, err := w.st.AddConstantClass(in.typeOperand)
		if err != nil {
			return err
		}
		out.PutByte(in.opcode)
		out.PutShort(sym.Index)
	case insnField:
		sym, err := w.st.AddConstantFieldref(in.owner, in.name, in.descriptor)
		if err != nil {
			return err
		}
		out.PutByte(in.opcode)
		out.PutShort(sym.Index)
	case insnMethod:
		return w.emitMethodInsn(out, in)
	case insnInvokeDynamic:
		return w.emitInvokeDynamicInsn(out, in)
	case insnJump:
		w.emitJumpInsn(out, in)
	case insnLdc:
		return w.emitLdcInsn(out, in)
	case insnIinc:
		if in.size == 6 {
			out.PutByte(opcodes.WIDE)
			out.PutByte(opcodes.IINC)
			out.PutShort(in.varIndex)
			out.PutShort(in.intOperand)
		} else {
			out.PutByte(opcodes.IINC)
			out.PutByte(in.varIndex)
			out.PutByte(in.intOperand)
		}
	case insnTableSwitch:
		w.emitTableSwitch(out, in)
	case insnLookupSwitch:
		w.emitLookupSwitch(out, in)
	case insnMultiANewArray:
		sym, err := w.st.AddConstantClass(in.typeOperand)
		if err != nil {
			return err
		}
		out.PutByte(in.opcode)
		out.PutShort(sym.Index)
		out.PutByte(in.numDimensions)
	}
	return nil
}

func (w *MethodWriter) emitVarInsn(out *bytevector.ByteVector, in *insn) {
	if c := compressedVarOpcode(in.opcode, in.varIndex); c != 0 {
		out.PutByte(c)
		return
	}
	if in.varIndex > 255 {
		out.PutByte(opcodes.WIDE)
		out.PutByte(in.opcode)
		out.PutShort(in.varIndex)
		return
	}
	out.PutByte(in.opcode)
	out.PutByte(in.varIndex)
}

func (w *MethodWriter) emitMethodInsn(out *bytevector.ByteVector, in *insn) error {
	var sym *Symbol
	var err error
	if in.isInterface {
		sym, err = w.st.AddConstantInterfaceMethodref(in.owner, in.name, in.descriptor)
	} else {
		sym, err = w.st.AddConstantMethodref(in.owner, in.name, in.descriptor)
	}
	if err != nil {
		return err
	}
	out.PutByte(in.opcode)
	out.PutShort(sym.Index)
	if in.opcode == opcodes.INVOKEINTERFACE {
		argSize := sym.ArgumentsAndReturnSize() >> 2
		out.PutByte(argSize + 1)
		out.PutByte(0)
	}
	return nil
}

func (w *MethodWriter) emitInvokeDynamicInsn(out *bytevector.ByteVector, in *insn) error {
	handleSym, err := w.st.AddConstantMethodHandle(in.bsmRefKind, in.bsmOwner, in.bsmName, in.bsmDescriptor)
	if err != nil {
		return err
	}
	args := make([]int, 0, len(in.bsmArgs))
	for _, a := range in.bsmArgs {
		idx, err := w.internBsmArg(a)
		if err != nil {
			return err
		}
		args = append(args, idx)
	}
	bsmIndex := w.st.AddBootstrapMethod(handleSym.Index, args)
	sym, err := w.st.AddConstantInvokeDynamic(in.name, in.descriptor, bsmIndex)
	if err != nil {
		return err
	}
	out.PutByte(opcodes.INVOKEDYNAMIC)
	out.PutShort(sym.Index)
	out.PutShort(0)
	return nil
}

func (w *MethodWriter) internBsmArg(v interface{}) (int, error) {
	sym, err := w.internConstant(v)
	if err != nil {
		return 0, err
	}
	return sym.Index, nil
}

// internConstant interns any LDC-representable constant into the pool,
// shared between LDC encoding and bootstrap-method argument encoding.
func (w *MethodWriter) internConstant(v interface{}) (*Symbol, error) {
	switch c := v.(type) {
	case int32:
		return w.st.AddConstantInteger(c)
	case int:
		return w.st.AddConstantInteger(int32(c))
	case float32:
		return w.st.AddConstantFloat(c)
	case int64:
		return w.st.AddConstantLong(c)
	case float64:
		return w.st.AddConstantDouble(c)
	case string:
		return w.st.AddConstantString(c)
	case *typeConstant:
		return w.st.AddConstantClass(c.descriptor)
	case *methodTypeConstant:
		return w.st.AddConstantMethodType(c.descriptor)
	case *methodHandleConstant:
		return w.st.AddConstantMethodHandle(c.refKind, c.owner, c.name, c.descriptor)
	case *dynamicConstant:
		return w.st.AddConstantDynamic(c.name, c.descriptor, c.bsmIndex)
	}
	return nil, newInvariantViolation("unsupported constant operand type")
}

// dynamicConstant is the LDC-operand wrapper for a CONSTANT_Dynamic
// literal (condy, class-file major >= 55): a value computed once by its
// bootstrap method and cached, pushed with the type its own descriptor
// names.
type dynamicConstant struct {
	name, descriptor string
	bsmIndex         int
}

// methodTypeConstant and methodHandleConstant are the LDC-operand
// wrappers for MethodType and MethodHandle constants. VisitLdcInsn
// accepts interface{}; these distinguish them from a plain
// class-literal typeConstant.
type methodTypeConstant struct{ descriptor string }
type methodHandleConstant struct {
	refKind                  int
	owner, name, descriptor  string
}

func (w *MethodWriter) emitLdcInsn(out *bytevector.ByteVector, in *insn) error {
	sym, err := w.internConstant(in.cst)
	if err != nil {
		return err
	}
	if w.ldcWide(in.cst) {
		out.PutByte(opcodes.LDC2_W)
		out.PutShort(sym.Index)
		return nil
	}
	if sym.Index > 255 {
		out.PutByte(opcodes.LDC_W)
		out.PutShort(sym.Index)
		return nil
	}
	out.PutByte(opcodes.LDC)
	out.PutByte(sym.Index)
	return nil
}

func (w *MethodWriter) emitJumpInsn(out *bytevector.ByteVector, in *insn) {
	target := in.label.BytecodeOffset - in.offset
	if !in.widened {
		out.PutByte(in.opcode)
		out.PutShort(target)
		return
	}
	if in.opcode == opcodes.GOTO || in.opcode == opcodes.JSR {
		wide := opcodes.GOTO_W
		if in.opcode == opcodes.JSR {
			wide = opcodes.JSR_W
		}
		out.PutByte(wide)
		out.PutInt(target)
		return
	}
	out.PutByte(opcodes.InverseOpcode(in.opcode))
	out.PutShort(8) // branch past the following GOTO_W to fall through
	out.PutByte(opcodes.GOTO_W)
	out.PutInt(target - 3) // GOTO_W's own offset is 3 bytes after the IFxxx
}

func (w *MethodWriter) emitTableSwitch(out *bytevector.ByteVector, in *insn) {
	base := in.offset
	out.PutByte(opcodes.TABLESWITCH)
	for i := 0; i < padding(base); i++ {
		out.PutByte(0)
	}
	out.PutInt(in.dflt.BytecodeOffset - base)
	out.PutInt(in.min)
	out.PutInt(in.max)
	for _, l := range in.labels {
		out.PutInt(l.BytecodeOffset - base)
	}
}

func (w *MethodWriter) emitLookupSwitch(out *bytevector.ByteVector, in *insn) {
	base := in.offset
	out.PutByte(opcodes.LOOKUPSWITCH)
	for i := 0; i < padding(base); i++ {
		out.PutByte(0)
	}
	out.PutInt(in.dflt.BytecodeOffset - base)
	out.PutInt(len(in.keys))
	for i, k := range in.keys {
		out.PutInt(int(k))
		out.PutInt(in.labels[i].BytecodeOffset - base)
	}
}
