/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/opcodes"

// decInsn is one decoded bytecode instruction: opcode already normalized
// (compressed *LOAD_n/*STORE_n forms and WIDE-prefixed forms collapsed
// back to their canonical opcode+operand, GOTO_W/JSR_W collapsed to
// logical GOTO/JSR) plus whichever operand fields its kind uses. Jump
// targets are recorded as absolute bytecode offsets; a second pass turns
// them into *Label values once every referenced offset has one.
type decInsn struct {
	offset int
	opcode int

	intOperand  int
	varIndex    int
	typeOperand string

	owner, name, descriptor string
	isInterface             bool

	cst interface{}

	isJump     bool
	jumpTarget int

	isSwitch      bool
	isTableSwitch bool
	min, max      int
	dfltTarget    int
	keys          []int32
	caseTargets   []int

	numDimensions int

	bsmRefKind                       int
	bsmOwner, bsmName, bsmDescriptor string
	bsmArgs                          []interface{}
}

// decompressVarOpcode maps a compressed *LOAD_n/*STORE_n opcode back to
// its canonical opcode and local-variable index.
func decompressVarOpcode(op int) (canonical, index int, ok bool) {
	switch {
	case op >= opcodes.ILOAD_0 && op <= opcodes.ILOAD_3:
		return opcodes.ILOAD, op - opcodes.ILOAD_0, true
	case op >= opcodes.LLOAD_0 && op <= opcodes.LLOAD_3:
		return opcodes.LLOAD, op - opcodes.LLOAD_0, true
	case op >= opcodes.FLOAD_0 && op <= opcodes.FLOAD_3:
		return opcodes.FLOAD, op - opcodes.FLOAD_0, true
	case op >= opcodes.DLOAD_0 && op <= opcodes.DLOAD_3:
		return opcodes.DLOAD, op - opcodes.DLOAD_0, true
	case op >= opcodes.ALOAD_0 && op <= opcodes.ALOAD_3:
		return opcodes.ALOAD, op - opcodes.ALOAD_0, true
	case op >= opcodes.ISTORE_0 && op <= opcodes.ISTORE_3:
		return opcodes.ISTORE, op - opcodes.ISTORE_0, true
	case op >= opcodes.LSTORE_0 && op <= opcodes.LSTORE_3:
		return opcodes.LSTORE, op - opcodes.LSTORE_0, true
	case op >= opcodes.FSTORE_0 && op <= opcodes.FSTORE_3:
		return opcodes.FSTORE, op - opcodes.FSTORE_0, true
	case op >= opcodes.DSTORE_0 && op <= opcodes.DSTORE_3:
		return opcodes.DSTORE, op - opcodes.DSTORE_0, true
	case op >= opcodes.ASTORE_0 && op <= opcodes.ASTORE_3:
		return opcodes.ASTORE, op - opcodes.ASTORE_0, true
	}
	return 0, 0, false
}

// compressedVarOpcodeDecode rewrites in.opcode/in.varIndex in place if op
// is a compressed *LOAD_n/*STORE_n form, reporting whether it matched.
func compressedVarOpcodeDecode(op int, in *decInsn) bool {
	canon, idx, ok := decompressVarOpcode(op)
	if !ok {
		return false
	}
	in.opcode = canon
	in.varIndex = idx
	return true
}

func isPlainVarOpcode(op int) bool {
	switch op {
	case opcodes.ILOAD, opcodes.LLOAD, opcodes.FLOAD, opcodes.DLOAD, opcodes.ALOAD,
		opcodes.ISTORE, opcodes.LSTORE, opcodes.FSTORE, opcodes.DSTORE, opcodes.ASTORE,
		opcodes.RET:
		return true
	}
	return false
}

// bootstrapInfo resolves a CONSTANT_Dynamic/InvokeDynamic symbol's
// bootstrap-method-table entry into the flat shape VisitInvokeDynamicInsn
// takes.
func (cr *ClassReader) bootstrapInfo(bsmIndex int) (refKind int, owner, name, descriptor string, args []interface{}) {
	list := cr.st.Bootstraps()
	if bsmIndex < 0 || bsmIndex >= len(list) {
		return
	}
	bm := list[bsmIndex]
	if sym := cr.st.Symbol(bm.MethodHandle); sym != nil {
		refKind, owner, name, descriptor = sym.RefKind, sym.Owner, sym.Name, sym.Descriptor
	}
	args = make([]interface{}, len(bm.Arguments))
	for i, idx := range bm.Arguments {
		args[i] = cr.constantValue(idx)
	}
	return
}

// decodeInstructions walks a Code attribute's raw instruction stream
// once, decoding every instruction and leaving jump/switch targets as
// absolute offsets. It never calls a visitor; decodeCode's second pass
// does that once every target offset has a *Label.
func decodeInstructions(code []byte, cr *ClassReader) []decInsn {
	r := &reader{data: code}
	var list []decInsn
	for r.pos < len(code) {
		offset := r.pos
		op := r.u1()
		in := decInsn{offset: offset, opcode: op}

		switch {
		case op == opcodes.WIDE:
			sub := r.u1()
			if sub == opcodes.IINC {
				in.opcode = opcodes.IINC
				in.varIndex = r.u2()
				in.intOperand = int(int16(r.u2()))
			} else {
				in.opcode = sub
				in.varIndex = r.u2()
			}
		case isPlainVarOpcode(op):
			in.varIndex = r.u1()
		case compressedVarOpcodeDecode(op, &in):
			// in.opcode/in.varIndex already rewritten by the helper
		case op == opcodes.BIPUSH:
			in.intOperand = int(int8(r.u1()))
		case op == opcodes.SIPUSH:
			in.intOperand = int(int16(r.u2()))
		case op == opcodes.NEWARRAY:
			in.intOperand = r.u1()
		case op == opcodes.LDC:
			in.cst = cr.constantValue(r.u1())
		case op == opcodes.LDC_W, op == opcodes.LDC2_W:
			in.cst = cr.constantValue(r.u2())
		case op == opcodes.NEW, op == opcodes.ANEWARRAY, op == opcodes.CHECKCAST, op == opcodes.INSTANCEOF:
			in.typeOperand = cr.className(r.u2())
		case op == opcodes.MULTIANEWARRAY:
			in.typeOperand = cr.className(r.u2())
			in.numDimensions = r.u1()
		case op == opcodes.GETSTATIC, op == opcodes.PUTSTATIC, op == opcodes.GETFIELD, op == opcodes.PUTFIELD:
			sym := cr.st.Symbol(r.u2())
			if sym != nil {
				in.owner, in.name, in.descriptor = sym.Owner, sym.Name, sym.Descriptor
			}
		case op == opcodes.INVOKEVIRTUAL, op == opcodes.INVOKESPECIAL, op == opcodes.INVOKESTATIC:
			sym := cr.st.Symbol(r.u2())
			if sym != nil {
				in.owner, in.name, in.descriptor = sym.Owner, sym.Name, sym.Descriptor
				in.isInterface = sym.Tag == opcodes.TagInterfaceMethodref
			}
		case op == opcodes.INVOKEINTERFACE:
			sym := cr.st.Symbol(r.u2())
			r.u1() // count, redundant with descriptor
			r.u1() // reserved
			if sym != nil {
				in.owner, in.name, in.descriptor = sym.Owner, sym.Name, sym.Descriptor
			}
			in.isInterface = true
		case op == opcodes.INVOKEDYNAMIC:
			idx := r.u2()
			r.u2() // reserved
			if sym := cr.st.Symbol(idx); sym != nil {
				in.name, in.descriptor = sym.Name, sym.Descriptor
				in.bsmRefKind, in.bsmOwner, in.bsmName, in.bsmDescriptor, in.bsmArgs = cr.bootstrapInfo(sym.BsmIndex)
			}
		case op == opcodes.GOTO_W:
			branch := int(r.s4())
			in.opcode = opcodes.GOTO
			in.isJump = true
			in.jumpTarget = offset + branch
		case op == opcodes.JSR_W:
			branch := int(r.s4())
			in.opcode = opcodes.JSR
			in.isJump = true
			in.jumpTarget = offset + branch
		case op == opcodes.TABLESWITCH:
			r.skip(padding(offset))
			in.dfltTarget = offset + int(r.s4())
			in.min = int(r.s4())
			in.max = int(r.s4())
			count := in.max - in.min + 1
			in.caseTargets = make([]int, count)
			for i := 0; i < count; i++ {
				in.caseTargets[i] = offset + int(r.s4())
			}
			in.isSwitch = true
			in.isTableSwitch = true
		case op == opcodes.LOOKUPSWITCH:
			r.skip(padding(offset))
			in.dfltTarget = offset + int(r.s4())
			count := int(r.s4())
			in.keys = make([]int32, count)
			in.caseTargets = make([]int, count)
			for i := 0; i < count; i++ {
				in.keys[i] = r.s4()
				in.caseTargets[i] = offset + int(r.s4())
			}
			in.isSwitch = true
		case opcodes.IsJumpInsn(op):
			branch := int(int16(r.u2()))
			in.isJump = true
			in.jumpTarget = offset + branch
		}

		list = append(list, in)
	}
	return list
}

// lineNumberEntryRaw and localVariableEntryRaw mirror the wire layout of
// LineNumberTable/LocalVariableTable(TypeTable) entries.
type lineNumberEntryRaw struct {
	startPC, line int
}

type localVariableEntryRaw struct {
	startPC, length, index       int
	name, descriptor, signature string
}

func decodeLineNumberTable(data []byte) []lineNumberEntryRaw {
	r := &reader{data: data}
	n := r.u2()
	out := make([]lineNumberEntryRaw, n)
	for i := range out {
		out[i] = lineNumberEntryRaw{startPC: r.u2(), line: r.u2()}
	}
	return out
}

func decodeLocalVariableTable(data []byte, cr *ClassReader, typeTable bool) []localVariableEntryRaw {
	r := &reader{data: data}
	n := r.u2()
	out := make([]localVariableEntryRaw, n)
	for i := range out {
		startPC := r.u2()
		length := r.u2()
		nameIdx := r.u2()
		descIdx := r.u2()
		index := r.u2()
		e := localVariableEntryRaw{startPC: startPC, length: length, index: index, name: cr.utf8(nameIdx)}
		if typeTable {
			e.signature = cr.utf8(descIdx)
		} else {
			e.descriptor = cr.utf8(descIdx)
		}
		out[i] = e
	}
	return out
}

// decodeCode decodes a Code attribute body, replaying it through mv in
// the two-pass order VisitLabel/VisitFrame/instructions/VisitTryCatchBlock
// /VisitLocalVariable/VisitMaxs.
func decodeCode(mv MethodVisitor, data []byte, cr *ClassReader) error {
	r := &reader{data: data}
	maxStack := r.u2()
	maxLocals := r.u2()
	codeLength := int(r.u4())
	code := r.bytes(codeLength)

	type exceptionEntryRaw struct {
		startPC, endPC, handlerPC, catchType int
	}
	excCount := r.u2()
	exceptions := make([]exceptionEntryRaw, excCount)
	for i := range exceptions {
		exceptions[i] = exceptionEntryRaw{startPC: r.u2(), endPC: r.u2(), handlerPC: r.u2(), catchType: r.u2()}
	}

	attrs := readAttributes(r, cr)

	var lineNumbers []lineNumberEntryRaw
	var localVars, localVarTypes []localVariableEntryRaw
	var stackMapData []byte
	for _, a := range attrs {
		switch a.name {
		case opcodes.AttrLineNumberTable:
			lineNumbers = append(lineNumbers, decodeLineNumberTable(a.data)...)
		case opcodes.AttrLocalVariableTable:
			localVars = append(localVars, decodeLocalVariableTable(a.data, cr, false)...)
		case opcodes.AttrLocalVariableTypeTable:
			localVarTypes = append(localVarTypes, decodeLocalVariableTable(a.data, cr, true)...)
		case opcodes.AttrStackMapTable, opcodes.AttrStackMap:
			stackMapData = a.data
		}
	}

	insns := decodeInstructions(code, cr)

	labels := make(map[int]*Label)
	getLabel := func(offset int) *Label {
		if l, ok := labels[offset]; ok {
			return l
		}
		l := NewLabel()
		labels[offset] = l
		return l
	}

	var frames []decodedFrame
	if stackMapData != nil {
		frames = decodeStackMapTable(stackMapData, cr, func(offset int) { getLabel(offset) })
	}

	for _, in := range insns {
		if in.isJump {
			getLabel(in.jumpTarget)
		}
		if in.isSwitch {
			getLabel(in.dfltTarget)
			for _, t := range in.caseTargets {
				getLabel(t)
			}
		}
	}
	for _, e := range exceptions {
		getLabel(e.startPC)
		getLabel(e.endPC)
		getLabel(e.handlerPC)
	}
	for _, ln := range lineNumbers {
		getLabel(ln.startPC)
	}
	for _, lv := range localVars {
		getLabel(lv.startPC)
		getLabel(lv.startPC + lv.length)
	}

	frameByOffset := make(map[int]decodedFrame, len(frames))
	for _, f := range frames {
		frameByOffset[f.offset] = f
	}
	lineByOffset := make(map[int][]int, len(lineNumbers))
	for _, ln := range lineNumbers {
		lineByOffset[ln.startPC] = append(lineByOffset[ln.startPC], ln.line)
	}

	for _, in := range insns {
		if l, ok := labels[in.offset]; ok {
			mv.VisitLabel(l)
		}
		if f, ok := frameByOffset[in.offset]; ok {
			mv.VisitFrame(-1, len(f.locals), toVisitValues(f.locals, getLabel), len(f.stack), toVisitValues(f.stack, getLabel))
		}
		for _, line := range lineByOffset[in.offset] {
			mv.VisitLineNumber(line, labels[in.offset])
		}
		visitOneInsn(mv, in, getLabel)
	}

	for _, e := range exceptions {
		typ := ""
		if e.catchType != 0 {
			typ = cr.className(e.catchType)
		}
		mv.VisitTryCatchBlock(getLabel(e.startPC), getLabel(e.endPC), getLabel(e.handlerPC), typ)
	}

	for _, lv := range localVars {
		signature := ""
		for _, t := range localVarTypes {
			if t.index == lv.index && t.startPC == lv.startPC && t.name == lv.name {
				signature = t.signature
				break
			}
		}
		mv.VisitLocalVariable(lv.name, lv.descriptor, signature, getLabel(lv.startPC), getLabel(lv.startPC+lv.length), lv.index)
	}

	mv.VisitMaxs(maxStack, maxLocals)
	return nil
}

// visitOneInsn replays a single decoded instruction through mv, looking
// up jump/switch targets in the already-populated label map.
func visitOneInsn(mv MethodVisitor, in decInsn, getLabel func(int) *Label) {
	switch {
	case in.isJump:
		mv.VisitJumpInsn(in.opcode, getLabel(in.jumpTarget))
	case in.isTableSwitch:
		labels := make([]*Label, len(in.caseTargets))
		for i, t := range in.caseTargets {
			labels[i] = getLabel(t)
		}
		mv.VisitTableSwitchInsn(in.min, in.max, getLabel(in.dfltTarget), labels)
	case in.isSwitch:
		labels := make([]*Label, len(in.caseTargets))
		for i, t := range in.caseTargets {
			labels[i] = getLabel(t)
		}
		mv.VisitLookupSwitchInsn(getLabel(in.dfltTarget), in.keys, labels)
	case in.opcode == opcodes.BIPUSH, in.opcode == opcodes.SIPUSH, in.opcode == opcodes.NEWARRAY:
		mv.VisitIntInsn(in.opcode, in.intOperand)
	case isPlainVarOpcode(in.opcode):
		mv.VisitVarInsn(in.opcode, in.varIndex)
	case in.opcode == opcodes.NEW, in.opcode == opcodes.ANEWARRAY, in.opcode == opcodes.CHECKCAST, in.opcode == opcodes.INSTANCEOF:
		mv.VisitTypeInsn(in.opcode, in.typeOperand)
	case in.opcode == opcodes.MULTIANEWARRAY:
		mv.VisitMultiANewArrayInsn(in.typeOperand, in.numDimensions)
	case in.opcode == opcodes.GETSTATIC, in.opcode == opcodes.PUTSTATIC, in.opcode == opcodes.GETFIELD, in.opcode == opcodes.PUTFIELD:
		mv.VisitFieldInsn(in.opcode, in.owner, in.name, in.descriptor)
	case in.opcode == opcodes.INVOKEVIRTUAL, in.opcode == opcodes.INVOKESPECIAL, in.opcode == opcodes.INVOKESTATIC, in.opcode == opcodes.INVOKEINTERFACE:
		mv.VisitMethodInsn(in.opcode, in.owner, in.name, in.descriptor, in.isInterface)
	case in.opcode == opcodes.INVOKEDYNAMIC:
		mv.VisitInvokeDynamicInsn(in.name, in.descriptor, in.bsmRefKind, in.bsmOwner, in.bsmName, in.bsmDescriptor, in.bsmArgs)
	case in.opcode == opcodes.LDC, in.opcode == opcodes.LDC_W, in.opcode == opcodes.LDC2_W:
		mv.VisitLdcInsn(in.cst)
	case in.opcode == opcodes.IINC:
		mv.VisitIincInsn(in.varIndex, in.intOperand)
	default:
		mv.VisitInsn(in.opcode)
	}
}
