/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"github.com/go-classfile/asm/bytevector"
	"github.com/go-classfile/asm/opcodes"
	"github.com/go-classfile/asm/trace"
)

// ComputeMode selects how much of a method's Code attribute the
// MethodWriter derives rather than takes from explicit visitMaxs/
// visitFrame calls.
type ComputeMode int

const (
	ComputeNothing ComputeMode = iota
	ComputeMaxStackAndLocal
	ComputeMaxStackAndLocalFromFrames
	ComputeInsertedFrames
	ComputeAllFrames
)

type insnKind int

const (
	insnPlain insnKind = iota
	insnIntOperand
	insnVar
	insnType
	insnField
	insnMethod
	insnInvokeDynamic
	insnJump
	insnLabelMarker
	insnLdc
	insnIinc
	insnTableSwitch
	insnLookupSwitch
	insnMultiANewArray
)

// insn is one buffered bytecode instruction (or a label marker, which
// occupies zero bytes but anchors a basic-block boundary). MethodWriter
// buffers the whole method as a slice of these during the Visit* calls
// and only serializes to bytes once every jump's width is known -- see
// the file header note in label.go about this codec's forward-reference
// strategy.
type insn struct {
	kind   insnKind
	opcode int

	intOperand int // BIPUSH/SIPUSH/NEWARRAY/IINC increment
	varIndex   int // *LOAD/*STORE/RET/IINC local index

	typeOperand string // NEW/ANEWARRAY/CHECKCAST/INSTANCEOF/MULTIANEWARRAY descriptor

	owner, name, descriptor string
	isInterface             bool

	cst interface{} // LDC operand

	label *Label // jump target, or the marked label for insnLabelMarker

	min, max int
	dflt     *Label
	labels   []*Label
	keys     []int32

	numDimensions int

	bsmRefKind                       int
	bsmOwner, bsmName, bsmDescriptor string
	bsmArgs                          []interface{}

	size    int // final encoded size in bytes, set by the sizing fixpoint
	offset  int // final bytecode offset, set once sizing has converged
	widened bool
}

type lineNumberEntry struct {
	label *Label
	line  int
}

type localVariableEntry struct {
	name, descriptor, signature string
	start, end                  *Label
	index                       int
}

// MethodWriter implements MethodVisitor and emits one JVMS method_info
// structure. Construct one per method via ClassWriter.VisitMethod.
type MethodWriter struct {
	st   *SymbolTable
	mode ComputeMode

	access     int
	name       string
	descriptor string
	signature  string
	exceptions []string
	deprecated bool

	// OwnerClass is the internal name of the class this method belongs
	// to; used to type `this` (or UninitializedThis, inside <init>) when
	// computing frames. ClassWriter sets it right after construction.
	OwnerClass string

	majorVersion int

	types *symbolTypeTable

	code []*insn

	handlersHead, handlersTail *Handler

	lineNumbers    []lineNumberEntry
	localVariables []localVariableEntry
	parameters     []struct {
		name   string
		access int
	}

	attributes AttributeList

	annotationDefault                                               *annotationWriter
	visibleAnnotations, invisibleAnnotations                         annotationSet
	visibleTypeAnnotations, invisibleTypeAnnotations                 annotationSet

	explicitMaxStack, explicitMaxLocals int
	explicitFrames                      []explicitFrame

	// filled in once toMethodInfo runs the fixpoints.
	computedMaxStack, computedMaxLocals int
	blocks                              []*Label // basic blocks, bytecode order
	entryLabel                          *Label

	ended bool
}

type explicitFrame struct {
	frameType        int
	numLocal         int
	local            []interface{}
	numStack         int
	stack            []interface{}
	insnIndexAtVisit int
}

// NewMethodWriter constructs a writer for one method. st is the owning
// class's shared SymbolTable: a ClassWriter and its children are
// mutated by exactly one logical producer, so sharing st is how a fast
// bit-copy of an unmodified method stays valid.
func NewMethodWriter(st *SymbolTable, majorVersion, access int, name, descriptor, signature string, exceptions []string, mode ComputeMode) *MethodWriter {
	return &MethodWriter{
		st: st, majorVersion: majorVersion,
		access: access, name: name, descriptor: descriptor, signature: signature,
		exceptions: exceptions, mode: mode,
	}
}

func (w *MethodWriter) VisitParameter(name string, access int) {
	w.parameters = append(w.parameters, struct {
		name   string
		access int
	}{name, access})
}

func (w *MethodWriter) VisitMethodAnnotationDefault() AnnotationVisitor {
	w.annotationDefault = &annotationWriter{hasType: false}
	return w.annotationDefault
}
func (w *MethodWriter) VisitMethodAnnotation(descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleAnnotations.add(descriptor)
	}
	return w.invisibleAnnotations.add(descriptor)
}
func (w *MethodWriter) VisitMethodTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleTypeAnnotations.add(descriptor)
	}
	return w.invisibleTypeAnnotations.add(descriptor)
}
func (w *MethodWriter) VisitMethodAttribute(attr *Attribute) {
	if attr.Name == opcodes.AttrDeprecated && len(attr.Content) == 0 {
		w.deprecated = true
		return
	}
	w.attributes.Add(attr)
}

func (w *MethodWriter) VisitCode() {}

func (w *MethodWriter) VisitFrame(frameType int, numLocal int, local []interface{}, numStack int, stack []interface{}) {
	if w.mode != ComputeNothing && w.mode != ComputeInsertedFrames {
		// Under a COMPUTE_* mode the writer derives frames itself;
		// explicit visitFrame calls are ignored, matching the source's
		// behavior of trusting its own fixpoint over caller-supplied data.
		return
	}
	w.explicitFrames = append(w.explicitFrames, explicitFrame{frameType, numLocal, local, numStack, stack, len(w.code)})
}

func (w *MethodWriter) VisitInsn(opcode int) {
	w.code = append(w.code, &insn{kind: insnPlain, opcode: opcode})
}

func (w *MethodWriter) VisitIntInsn(opcode, operand int) {
	w.code = append(w.code, &insn{kind: insnIntOperand, opcode: opcode, intOperand: operand})
}

func (w *MethodWriter) VisitVarInsn(opcode, varIndex int) {
	w.code = append(w.code, &insn{kind: insnVar, opcode: opcode, varIndex: varIndex})
}

func (w *MethodWriter) VisitTypeInsn(opcode int, typ string) {
	w.code = append(w.code, &insn{kind: insnType, opcode: opcode, typeOperand: typ})
}

func (w *MethodWriter) VisitFieldInsn(opcode int, owner, name, descriptor string) {
	w.code = append(w.code, &insn{kind: insnField, opcode: opcode, owner: owner, name: name, descriptor: descriptor})
}

func (w *MethodWriter) VisitMethodInsn(opcode int, owner, name, descriptor string, isInterface bool) {
	w.code = append(w.code, &insn{kind: insnMethod, opcode: opcode, owner: owner, name: name, descriptor: descriptor, isInterface: isInterface})
}

func (w *MethodWriter) VisitInvokeDynamicInsn(name, descriptor string, bsmHandleRefKind int, bsmOwner, bsmName, bsmDescriptor string, bsmArgs []interface{}) {
	w.code = append(w.code, &insn{
		kind: insnInvokeDynamic, opcode: opcodes.INVOKEDYNAMIC,
		name: name, descriptor: descriptor,
		bsmRefKind: bsmHandleRefKind, bsmOwner: bsmOwner, bsmName: bsmName, bsmDescriptor: bsmDescriptor, bsmArgs: bsmArgs,
	})
}

func (w *MethodWriter) VisitJumpInsn(opcode int, label *Label) {
	label.markJumpTarget()
	w.code = append(w.code, &insn{kind: insnJump, opcode: opcode, label: label})
}

func (w *MethodWriter) VisitLabel(label *Label) {
	label.insnIndex = len(w.code)
	w.code = append(w.code, &insn{kind: insnLabelMarker, label: label})
}

func (w *MethodWriter) VisitLdcInsn(value interface{}) {
	w.code = append(w.code, &insn{kind: insnLdc, opcode: opcodes.LDC, cst: value})
}

func (w *MethodWriter) VisitIincInsn(varIndex, increment int) {
	w.code = append(w.code, &insn{kind: insnIinc, opcode: opcodes.IINC, varIndex: varIndex, intOperand: increment})
}

func (w *MethodWriter) VisitTableSwitchInsn(min, max int, dflt *Label, labels []*Label) {
	dflt.markJumpTarget()
	for _, l := range labels {
		l.markJumpTarget()
	}
	w.code = append(w.code, &insn{kind: insnTableSwitch, opcode: opcodes.TABLESWITCH, min: min, max: max, dflt: dflt, labels: labels})
}

func (w *MethodWriter) VisitLookupSwitchInsn(dflt *Label, keys []int32, labels []*Label) {
	dflt.markJumpTarget()
	for _, l := range labels {
		l.markJumpTarget()
	}
	w.code = append(w.code, &insn{kind: insnLookupSwitch, opcode: opcodes.LOOKUPSWITCH, dflt: dflt, keys: keys, labels: labels})
}

func (w *MethodWriter) VisitMultiANewArrayInsn(descriptor string, numDimensions int) {
	w.code = append(w.code, &insn{kind: insnMultiANewArray, opcode: opcodes.MULTIANEWARRAY, typeOperand: descriptor, numDimensions: numDimensions})
}

func (w *MethodWriter) VisitInsnAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	return &annotationWriter{}
}

func (w *MethodWriter) VisitTryCatchBlock(start, end, handler *Label, typ string) {
	handler.markJumpTarget()
	h := &Handler{Start: start, End: end, HandlerPC: handler, CatchTypeDescriptor: typ}
	if w.handlersHead == nil {
		w.handlersHead = h
		w.handlersTail = h
	} else {
		w.handlersTail.NextHandler = h
		w.handlersTail = h
	}
}

func (w *MethodWriter) VisitTryCatchAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	return &annotationWriter{}
}

func (w *MethodWriter) VisitLocalVariable(name, descriptor, signature string, start, end *Label, index int) {
	w.localVariables = append(w.localVariables, localVariableEntry{name, descriptor, signature, start, end, index})
}

func (w *MethodWriter) VisitLocalVariableAnnotation(typeRef int, typePath string, start, end []*Label, index []int, descriptor string, visible bool) AnnotationVisitor {
	return &annotationWriter{}
}

func (w *MethodWriter) VisitLineNumber(line int, start *Label) {
	w.lineNumbers = append(w.lineNumbers, lineNumberEntry{start, line})
	start.addLineNumber(line)
}

func (w *MethodWriter) VisitMaxs(maxStack, maxLocals int) {
	w.explicitMaxStack, w.explicitMaxLocals = maxStack, maxLocals
}

func (w *MethodWriter) VisitMethodEnd() { w.ended = true }

var _ MethodVisitor = (*MethodWriter)(nil)

// hasCode reports whether this method carries a Code attribute at all
// (abstract and native methods do not).
func (w *MethodWriter) hasCode() bool { return len(w.code) > 0 || w.explicitMaxStack > 0 || w.explicitMaxLocals > 0 }

// computeMethodInfoSize returns the byte size of this method's
// method_info structure, interning every constant-pool entry it
// references along the way.
func (w *MethodWriter) computeMethodInfoSize() (int, error) {
	buf, err := w.toMethodInfo()
	if err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

// toMethodInfo runs the full pipeline -- sizing fixpoint, CFG
// construction, max-stack/frame fixpoint, byte emission -- and returns
// the encoded method_info structure.
func (w *MethodWriter) toMethodInfo() (*bytevector.ByteVector, error) {
	nameSym, err := w.st.AddConstantUtf8(w.name)
	if err != nil {
		return nil, err
	}
	descSym, err := w.st.AddConstantUtf8(w.descriptor)
	if err != nil {
		return nil, err
	}

	out := bytevector.New(64)
	out.PutShort(w.access)
	out.PutShort(nameSym.Index)
	out.PutShort(descSym.Index)

	attrCountPos := out.Len()
	attrCount := 0
	out.PutShort(0) // patched below

	if w.hasCode() {
		codeAttr, err := w.buildCodeAttribute()
		if err != nil {
			return nil, err
		}
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrCode)
		if err != nil {
			return nil, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(codeAttr.Len())
		out.PutByteVector(codeAttr)
		attrCount++
	}

	if len(w.exceptions) > 0 {
		if err := w.writeExceptionsAttribute(out); err != nil {
			return nil, err
		}
		attrCount++
	}

	if w.signature != "" {
		if err := writeStringAttribute(out, w.st, opcodes.AttrSignature, w.signature); err != nil {
			return nil, err
		}
		attrCount++
	}

	if w.deprecated {
		if err := writeMarkerAttribute(out, w.st, opcodes.AttrDeprecated); err != nil {
			return nil, err
		}
		attrCount++
	}

	if w.access&opcodes.AccSynthetic != 0 && w.majorVersion < opcodes.V5 {
		if err := writeMarkerAttribute(out, w.st, opcodes.AttrSynthetic); err != nil {
			return nil, err
		}
		attrCount++
	}

	if len(w.parameters) > 0 {
		if err := w.writeMethodParameters(out); err != nil {
			return nil, err
		}
		attrCount++
	}

	if w.annotationDefault != nil {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrAnnotationDefault)
		if err != nil {
			return nil, err
		}
		if len(w.annotationDefault.entries) > 0 {
			sz, err := w.annotationDefault.entries[0].size(w.st)
			if err != nil {
				return nil, err
			}
			out.PutShort(nameIdx.Index)
			out.PutInt(sz)
			if err := w.annotationDefault.entries[0].write(out, w.st); err != nil {
				return nil, err
			}
			attrCount++
		}
	}

	for _, pair := range []struct {
		set  *annotationSet
		name string
	}{
		{&w.visibleAnnotations, opcodes.AttrRuntimeVisibleAnnotations},
		{&w.invisibleAnnotations, opcodes.AttrRuntimeInvisibleAnnotations},
		{&w.visibleTypeAnnotations, opcodes.AttrRuntimeVisibleTypeAnnotations},
		{&w.invisibleTypeAnnotations, opcodes.AttrRuntimeInvisibleTypeAnnotations},
	} {
		if len(pair.set.items) == 0 {
			continue
		}
		if err := pair.set.writeAttribute(out, w.st, pair.name); err != nil {
			return nil, err
		}
		attrCount++
	}

	if len(w.attributes.Items()) > 0 {
		if err := w.attributes.write(out, w.st); err != nil {
			return nil, err
		}
		attrCount += len(w.attributes.Items())
	}

	out.OverwriteShort(attrCountPos, attrCount)
	return out, nil
}

func (w *MethodWriter) writeExceptionsAttribute(out *bytevector.ByteVector) error {
	nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrExceptions)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2 + 2*len(w.exceptions))
	out.PutShort(len(w.exceptions))
	for _, exc := range w.exceptions {
		sym, err := w.st.AddConstantClass(exc)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	}
	return nil
}

func (w *MethodWriter) writeMethodParameters(out *bytevector.ByteVector) error {
	nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrMethodParameters)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(1 + 4*len(w.parameters))
	out.PutByte(len(w.parameters))
	for _, p := range w.parameters {
		if p.name == "" {
			out.PutShort(0)
		} else {
			sym, err := w.st.AddConstantUtf8(p.name)
			if err != nil {
				return err
			}
			out.PutShort(sym.Index)
		}
		out.PutShort(p.access)
	}
	return nil
}

func writeStringAttribute(out *bytevector.ByteVector, st *SymbolTable, attrName, value string) error {
	nameIdx, err := st.AddConstantUtf8(attrName)
	if err != nil {
		return err
	}
	valueSym, err := st.AddConstantUtf8(value)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2)
	out.PutShort(valueSym.Index)
	return nil
}

func writeMarkerAttribute(out *bytevector.ByteVector, st *SymbolTable, attrName string) error {
	nameIdx, err := st.AddConstantUtf8(attrName)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(0)
	return nil
}

func logMethodTrace(owner, name, descriptor string) {
	trace.Trace("MethodWriter: emitting " + owner + "." + name + descriptor)
}

// argsAndLocalsSize returns the number of local-variable slots occupied
// by the method's declared parameters plus an implicit `this`.
func (w *MethodWriter) argsAndLocalsSize() int {
	n := 0
	if w.access&opcodes.AccStatic == 0 {
		n++
	}
	i := 1
	for i < len(w.descriptor) && w.descriptor[i] != ')' {
		size, consumed := fieldDescriptorSize(w.descriptor, i)
		n += size
		i += consumed
	}
	return n
}

// buildCodeAttribute runs the full per-method pipeline and returns the
// encoded Code attribute body (everything after attribute_length).
func (w *MethodWriter) buildCodeAttribute() (*bytevector.ByteVector, error) {
	w.sizeFixpoint()
	codeLength := 0
	for _, in := range w.code {
		codeLength += in.size
	}
	if codeLength > 65535 {
		return nil, newCodeOverflow(w.OwnerClass, w.name, w.descriptor, codeLength)
	}

	var maxStack, maxLocals int
	var unreachable map[*Label]bool
	var frames []stackMapFrameEntry

	switch w.mode {
	case ComputeNothing:
		maxStack, maxLocals = w.explicitMaxStack, w.explicitMaxLocals
		if len(w.explicitFrames) > 0 {
			w.types = newSymbolTypeTable()
			frames = w.framesFromExplicit()
		}
	default:
		w.buildBlocks()
		w.buildEdges()
		w.assignSubroutines()
		w.addSubroutineReturnEdges()
		maxStack, maxLocals = w.maxStackAndLocalsFixpoint(w.argsAndLocalsSize())
		if w.mode == ComputeAllFrames || w.mode == ComputeInsertedFrames {
			reachable := w.runFrameFixpoint(w.argsAndLocalsSize())
			unreachable = map[*Label]bool{}
			for _, b := range w.blocks {
				unreachable[b] = !reachable[b]
			}
			frames = w.buildStackMapTable()
		}
	}

	codeBytes := bytevector.New(codeLength + 16)
	if err := w.emitCode(codeBytes, unreachable); err != nil {
		return nil, err
	}

	out := bytevector.New(codeBytes.Len() + 64)
	out.PutShort(maxStack)
	out.PutShort(maxLocals)
	out.PutInt(codeBytes.Len())
	out.PutByteVector(codeBytes)

	if err := w.writeExceptionTable(out); err != nil {
		return nil, err
	}

	attrCountPos := out.Len()
	attrCount := 0
	out.PutShort(0)

	if len(frames) > 0 {
		attrName := opcodes.AttrStackMapTable
		if w.majorVersion < opcodes.V6 {
			attrName = opcodes.AttrStackMap
		}
		nameIdx, err := w.st.AddConstantUtf8(attrName)
		if err != nil {
			return nil, err
		}
		body := bytevector.New(32)
		if err := writeStackMapTable(body, w.st, w.types, frames); err != nil {
			return nil, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(body.Len())
		out.PutByteVector(body)
		attrCount++
	}

	if len(w.lineNumbers) > 0 {
		if err := w.writeLineNumberTable(out); err != nil {
			return nil, err
		}
		attrCount++
	}

	if len(w.localVariables) > 0 {
		if err := w.writeLocalVariableTable(out); err != nil {
			return nil, err
		}
		attrCount++
	}

	if w.hasLocalVariableSignatures() {
		if err := w.writeLocalVariableTypeTable(out); err != nil {
			return nil, err
		}
		attrCount++
	}

	out.OverwriteShort(attrCountPos, attrCount)
	return out, nil
}

// framesFromExplicit converts user-supplied visitFrame calls (ComputeNothing
// mode) into the same stackMapFrameEntry shape the ALL_FRAMES fixpoint
// produces. Every entry is normalized to its full locals/stack arrays;
// the narrowest-valid compressed form is still chosen at encode time by
// writeStackMapTable, so a SAME frame on the way in still comes back out
// as SAME, just not necessarily via the original compression choice.
func (w *MethodWriter) framesFromExplicit() []stackMapFrameEntry {
	entries := make([]stackMapFrameEntry, 0, len(w.explicitFrames))
	for _, ef := range w.explicitFrames {
		offset := w.offsetAtOrBefore(ef.insnIndexAtVisit)
		entries = append(entries, stackMapFrameEntry{
			offset: offset,
			locals: w.convertVerificationTypes(ef.local[:ef.numLocal]),
			stack:  w.convertVerificationTypes(ef.stack[:ef.numStack]),
		})
	}
	return entries
}

func (w *MethodWriter) offsetAtOrBefore(insnIndex int) int {
	for i := insnIndex - 1; i >= 0; i-- {
		if w.code[i].kind == insnLabelMarker {
			return w.code[i].label.BytecodeOffset
		}
	}
	if insnIndex < len(w.code) {
		return w.code[insnIndex].offset
	}
	return 0
}

// convertVerificationTypes maps the public visitFrame representation
// (ints Top..UninitializedThis, a string internal class name, or a
// *Label for an UNINITIALIZED new-site) into this codec's packed
// abstract-type int32s.
func (w *MethodWriter) convertVerificationTypes(values []interface{}) []int32 {
	out := make([]int32, 0, len(values))
	for _, v := range values {
		switch t := v.(type) {
		case int:
			out = append(out, packConstant(t))
		case string:
			out = append(out, w.types.typeFor(t))
		case *Label:
			out = append(out, w.types.uninitializedTypeFor(t.BytecodeOffset, ""))
		default:
			out = append(out, tTop)
		}
	}
	return out
}

func (w *MethodWriter) writeExceptionTable(out *bytevector.ByteVector) error {
	count := 0
	for h := w.handlersHead; h != nil; h = h.NextHandler {
		count++
	}
	out.PutShort(count)
	for h := w.handlersHead; h != nil; h = h.NextHandler {
		catchType := 0
		if h.CatchTypeDescriptor != "" {
			sym, err := w.st.AddConstantClass(h.CatchTypeDescriptor)
			if err != nil {
				return err
			}
			catchType = sym.Index
		}
		out.PutShort(h.Start.BytecodeOffset)
		out.PutShort(h.End.BytecodeOffset)
		out.PutShort(h.HandlerPC.BytecodeOffset)
		out.PutShort(catchType)
	}
	return nil
}

func (w *MethodWriter) writeLineNumberTable(out *bytevector.ByteVector) error {
	nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrLineNumberTable)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2 + 4*len(w.lineNumbers))
	out.PutShort(len(w.lineNumbers))
	for _, e := range w.lineNumbers {
		out.PutShort(e.label.BytecodeOffset)
		out.PutShort(e.line)
	}
	return nil
}

func (w *MethodWriter) writeLocalVariableTable(out *bytevector.ByteVector) error {
	nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrLocalVariableTable)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2 + 10*len(w.localVariables))
	out.PutShort(len(w.localVariables))
	for _, lv := range w.localVariables {
		nameSym, err := w.st.AddConstantUtf8(lv.name)
		if err != nil {
			return err
		}
		descSym, err := w.st.AddConstantUtf8(lv.descriptor)
		if err != nil {
			return err
		}
		out.PutShort(lv.start.BytecodeOffset)
		out.PutShort(lv.end.BytecodeOffset - lv.start.BytecodeOffset)
		out.PutShort(nameSym.Index)
		out.PutShort(descSym.Index)
		out.PutShort(lv.index)
	}
	return nil
}

// hasLocalVariableSignatures reports whether any visited local carries a
// generic signature, the condition under which a LocalVariableTypeTable
// attribute is written at all (JVMS §4.7.14: entries with no signature
// are omitted from this table, not emitted with an empty one).
func (w *MethodWriter) hasLocalVariableSignatures() bool {
	for _, lv := range w.localVariables {
		if lv.signature != "" {
			return true
		}
	}
	return false
}

// writeLocalVariableTypeTable emits the LocalVariableTypeTable entries
// for every local that carries a generic signature, mirroring
// writeLocalVariableTable's layout but with the signature's UTF-8 index
// in place of the descriptor's (JVMS §4.7.14). Reciprocal of
// classreader_code.go's decode, which merges this attribute back into
// the same VisitLocalVariable call as LocalVariableTable.
func (w *MethodWriter) writeLocalVariableTypeTable(out *bytevector.ByteVector) error {
	var withSignature []localVariableEntry
	for _, lv := range w.localVariables {
		if lv.signature != "" {
			withSignature = append(withSignature, lv)
		}
	}
	nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrLocalVariableTypeTable)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2 + 10*len(withSignature))
	out.PutShort(len(withSignature))
	for _, lv := range withSignature {
		nameSym, err := w.st.AddConstantUtf8(lv.name)
		if err != nil {
			return err
		}
		sigSym, err := w.st.AddConstantUtf8(lv.signature)
		if err != nil {
			return err
		}
		out.PutShort(lv.start.BytecodeOffset)
		out.PutShort(lv.end.BytecodeOffset - lv.start.BytecodeOffset)
		out.PutShort(nameSym.Index)
		out.PutShort(sigSym.Index)
		out.PutShort(lv.index)
	}
	return nil
}
