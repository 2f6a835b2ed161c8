/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"bytes"
	"testing"

	"github.com/go-classfile/asm/opcodes"
	"github.com/stretchr/testify/require"
)

// buildIdentityMethod builds a minimal class with a single static method
// `int id(int x) { return x; }`, the S1 scenario from spec.md §8.
func buildIdentityMethod(t *testing.T, mode ComputeMode) []byte {
	t.Helper()
	cw := NewClassWriter(mode)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Id", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "id", "(I)I", "", nil)
	mw.VisitCode()
	mw.VisitVarInsn(opcodes.ILOAD, 0)
	mw.VisitInsn(opcodes.IRETURN)
	mw.VisitMaxs(1, 1)
	mw.VisitMethodEnd()
	cw.VisitEnd()
	data, err := cw.ToByteArray()
	require.NoError(t, err)
	return data
}

func TestS1IdentityMethodHeader(t *testing.T) {
	data := buildIdentityMethod(t, ComputeMaxStackAndLocal)
	require.GreaterOrEqual(t, len(data), 10)
	require.Equal(t, []byte{0xCA, 0xFE, 0xBA, 0xBE}, data[0:4], "magic number")
	major := int(data[6])<<8 | int(data[7])
	require.Equal(t, opcodes.V8, major, "major version 52")
}

// TestS1IdentityMethodWireBytes checks the compressed wire form directly
// against the encoded bytes: ILOAD_0 IRETURN, ILOAD_0 being the single-byte,
// operand-free form of a var instruction that ClassWriter only produces
// for index < 4.
func TestS1IdentityMethodWireBytes(t *testing.T) {
	data := buildIdentityMethod(t, ComputeMaxStackAndLocal)
	want := []byte{byte(opcodes.ILOAD_0), byte(opcodes.IRETURN)}
	require.True(t, bytes.Contains(data, want), "expected compressed ILOAD_0 IRETURN in % X", data)
}

// TestS1IdentityMethodCodeAndMaxs decodes the class back and checks the
// semantic form a MethodVisitor sees: a decoder always normalizes a
// compressed var instruction back to the generic opcode plus an explicit
// index, never the compressed wire byte.
func TestS1IdentityMethodCodeAndMaxs(t *testing.T) {
	data := buildIdentityMethod(t, ComputeMaxStackAndLocal)
	cr, err := NewClassReader(data)
	require.NoError(t, err)

	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.methods, 1)
	m := cn.methods[0]
	require.Equal(t, "id", m.name)
	require.Equal(t, "(I)I", m.descriptor)
	require.Equal(t, []collectedInsn{
		{opcode: opcodes.ILOAD, varIndex: 0},
		{opcode: opcodes.IRETURN},
	}, m.code)
	require.Equal(t, 1, m.maxStack)
	require.Equal(t, 1, m.maxLocals)
	require.False(t, m.hasStackMapTable, "no StackMapTable expected for a two-instruction leaf method")
}

// TestS2BranchStackMapFrame builds `static void branch(boolean b) { if (b)
// return; return; }`, spec.md's S2 scenario, and checks both the exact
// compressed wire bytes (1A 99 00 04 B1 B1) and the decoded shape.
func TestS2BranchStackMapFrame(t *testing.T) {
	cw := NewClassWriter(ComputeAllFrames)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Branch", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "branch", "(Z)V", "", nil)
	mw.VisitCode()
	end := NewLabel()
	mw.VisitVarInsn(opcodes.ILOAD, 0)
	mw.VisitJumpInsn(opcodes.IFEQ, end)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitLabel(end)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitMaxs(0, 0)
	mw.VisitMethodEnd()
	cw.VisitEnd()
	data, err := cw.ToByteArray()
	require.NoError(t, err)

	want := []byte{byte(opcodes.ILOAD_0), byte(opcodes.IFEQ), 0x00, 0x04, byte(opcodes.RETURN), byte(opcodes.RETURN)}
	require.True(t, bytes.Contains(data, want), "expected % X in % X", want, data)

	cr, err := NewClassReader(data)
	require.NoError(t, err)
	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.methods, 1)
	m := cn.methods[0]
	require.Equal(t, []collectedInsn{
		{opcode: opcodes.ILOAD, varIndex: 0},
		{opcode: opcodes.IFEQ},
		{opcode: opcodes.RETURN},
		{opcode: opcodes.RETURN},
	}, m.code)
	require.True(t, m.hasStackMapTable)
	require.Len(t, m.frames, 1, "one SAME_FRAME at the join point")
}

// TestS3WideJumpWidening forces a forward IFEQ target 40000 bytes away by
// padding the branch with NOPs, spec.md §8 scenario S3. A narrow IFEQ can
// only reach ±32767, so the writer must rewrite it to IFNE +8; GOTO_W
// +40000-ish instead of silently truncating the offset.
func TestS3WideJumpWidening(t *testing.T) {
	cw := NewClassWriter(ComputeNothing)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Wide", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "wide", "(Z)V", "", nil)
	mw.VisitCode()
	end := NewLabel()
	mw.VisitVarInsn(opcodes.ILOAD, 0)
	mw.VisitJumpInsn(opcodes.IFEQ, end)
	for i := 0; i < 40000; i++ {
		mw.VisitInsn(opcodes.NOP)
	}
	mw.VisitLabel(end)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitMaxs(1, 1)
	mw.VisitMethodEnd()
	cw.VisitEnd()

	data, err := cw.ToByteArray()
	require.NoError(t, err)

	want := []byte{byte(opcodes.InverseOpcode(opcodes.IFEQ)), 0x00, 0x08, byte(opcodes.GOTO_W)}
	require.True(t, bytes.Contains(data, want),
		"expected the IFEQ to be widened to IFNE +8; GOTO_W in % X", data)

	cr, err := NewClassReader(data)
	require.NoError(t, err)
	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.methods, 1)
	m := cn.methods[0]
	// The writer's IFNOTxxx+GOTO_W widening is a wire-level encoding trick,
	// not a distinct opcode the reader reconstructs: it decodes back as the
	// inverse branch (now jumping past it) followed by a plain GOTO.
	require.Equal(t, opcodes.InverseOpcode(opcodes.IFEQ), m.code[1].opcode)
	require.Equal(t, opcodes.GOTO, m.code[2].opcode)
	require.Equal(t, opcodes.RETURN, m.code[len(m.code)-1].opcode)
}

func TestS5UnknownAttributeRoundTrips(t *testing.T) {
	cw := NewClassWriter(ComputeMaxStackAndLocal)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "HasAttr", "", "java/lang/Object", nil)
	fv := cw.VisitField(opcodes.AccPrivate, "x", "I", "", nil)
	fv.VisitFieldAttribute(&Attribute{Name: "Foo", Content: []byte{1, 2, 3}})
	fv.VisitFieldEnd()
	cw.VisitEnd()
	data, err := cw.ToByteArray()
	require.NoError(t, err)

	cr, err := NewClassReader(data)
	require.NoError(t, err)
	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.fieldAttrs, 1)
	require.Equal(t, "Foo", cn.fieldAttrs[0].Name)
	require.Equal(t, []byte{1, 2, 3}, cn.fieldAttrs[0].Content)

	// Round-tripping through a second reader/writer pass that has never
	// heard of "Foo" must still reproduce it byte-for-byte (spec.md S5).
	cw2 := NewClassWriter(ComputeMaxStackAndLocal)
	require.NoError(t, cr.Accept(cw2))
	data2, err := cw2.ToByteArray()
	require.NoError(t, err)
	require.True(t, bytes.Contains(data2, []byte{1, 2, 3}))
}

func TestS6MethodTooLarge(t *testing.T) {
	cw := NewClassWriter(ComputeNothing)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "TooBig", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "big", "()V", "", nil)
	mw.VisitCode()
	for i := 0; i < 70000; i++ {
		mw.VisitInsn(opcodes.NOP)
	}
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitMaxs(0, 0)
	mw.VisitMethodEnd()
	cw.VisitEnd()

	_, err := cw.ToByteArray()
	require.Error(t, err)
	_, ok := err.(*CodeOverflow)
	require.True(t, ok, "expected *CodeOverflow, got %T", err)
}

// TestLocalVariableTypeTableRoundTrips builds a method with one generic
// local (signature "Ljava/util/List<Ljava/lang/String;>;") and checks
// that its signature survives a decode: the writer must emit a
// LocalVariableTypeTable alongside LocalVariableTable (spec.md §8
// property 1), and the reader must merge the two back into a single
// VisitLocalVariable call (classreader_code.go).
func TestLocalVariableTypeTableRoundTrips(t *testing.T) {
	cw := NewClassWriter(ComputeMaxStackAndLocal)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Generic", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "m", "(Ljava/util/List;)V", "", nil)
	mw.VisitCode()
	start := NewLabel()
	end := NewLabel()
	mw.VisitLabel(start)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitLabel(end)
	mw.VisitLocalVariable("list", "Ljava/util/List;", "Ljava/util/List<Ljava/lang/String;>;", start, end, 0)
	mw.VisitMaxs(0, 1)
	mw.VisitMethodEnd()
	cw.VisitEnd()

	data, err := cw.ToByteArray()
	require.NoError(t, err)

	require.True(t, bytes.Contains(data, []byte(opcodes.AttrLocalVariableTypeTable)),
		"expected a LocalVariableTypeTable attribute name in % X", data)

	cr, err := NewClassReader(data)
	require.NoError(t, err)
	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.methods, 1)
	m := cn.methods[0]
	require.Len(t, m.localVars, 1)
	require.Equal(t, "list", m.localVars[0].name)
	require.Equal(t, "Ljava/util/List;", m.localVars[0].descriptor)
	require.Equal(t, "Ljava/util/List<Ljava/lang/String;>;", m.localVars[0].signature)
}

func TestVisitorTransparencyIdentityChain(t *testing.T) {
	data := buildIdentityMethod(t, ComputeMaxStackAndLocal)

	cr1, err := NewClassReader(data)
	require.NoError(t, err)
	direct := NewClassWriter(ComputeMaxStackAndLocal)
	require.NoError(t, cr1.Accept(direct))
	directBytes, err := direct.ToByteArray()
	require.NoError(t, err)

	cr2, err := NewClassReader(data)
	require.NoError(t, err)
	chained := NewClassWriter(ComputeMaxStackAndLocal)
	chain := identityClassVisitor{delegate: chained}
	require.NoError(t, cr2.Accept(&chain))
	chainedBytes, err := chained.ToByteArray()
	require.NoError(t, err)

	require.Equal(t, directBytes, chainedBytes, "reader -> identity-visitor -> writer must match reader -> writer")
}

// identityClassVisitor forwards every call verbatim to its delegate,
// exercising spec.md §6's "implementations must be able to be chained"
// requirement without adding a tree-node dependency to this test.
type identityClassVisitor struct {
	delegate ClassVisitor
}

func (v *identityClassVisitor) VisitHeader(minorVersion, majorVersion, accessFlags int, name, signature, superName string, interfaces []string) {
	v.delegate.VisitHeader(minorVersion, majorVersion, accessFlags, name, signature, superName, interfaces)
}
func (v *identityClassVisitor) VisitSource(source, debug string) { v.delegate.VisitSource(source, debug) }
func (v *identityClassVisitor) VisitModule(name string, accessFlags int, version string) ModuleVisitor {
	return v.delegate.VisitModule(name, accessFlags, version)
}
func (v *identityClassVisitor) VisitNestHost(nestHost string) { v.delegate.VisitNestHost(nestHost) }
func (v *identityClassVisitor) VisitOuterClass(owner, name, descriptor string) {
	v.delegate.VisitOuterClass(owner, name, descriptor)
}
func (v *identityClassVisitor) VisitAnnotation(descriptor string, visible bool) AnnotationVisitor {
	return v.delegate.VisitAnnotation(descriptor, visible)
}
func (v *identityClassVisitor) VisitTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	return v.delegate.VisitTypeAnnotation(typeRef, typePath, descriptor, visible)
}
func (v *identityClassVisitor) VisitAttribute(attr *Attribute) { v.delegate.VisitAttribute(attr) }
func (v *identityClassVisitor) VisitNestMember(nestMember string) {
	v.delegate.VisitNestMember(nestMember)
}
func (v *identityClassVisitor) VisitPermittedSubclass(permittedSubclass string) {
	v.delegate.VisitPermittedSubclass(permittedSubclass)
}
func (v *identityClassVisitor) VisitInnerClass(name, outerName, innerName string, access int) {
	v.delegate.VisitInnerClass(name, outerName, innerName, access)
}
func (v *identityClassVisitor) VisitRecordComponent(name, descriptor, signature string) RecordComponentVisitor {
	return v.delegate.VisitRecordComponent(name, descriptor, signature)
}
func (v *identityClassVisitor) VisitField(access int, name, descriptor, signature string, value interface{}) FieldVisitor {
	return v.delegate.VisitField(access, name, descriptor, signature, value)
}
func (v *identityClassVisitor) VisitMethod(access int, name, descriptor, signature string, exceptions []string) MethodVisitor {
	return v.delegate.VisitMethod(access, name, descriptor, signature, exceptions)
}
func (v *identityClassVisitor) VisitEnd() { v.delegate.VisitEnd() }

var _ ClassVisitor = (*identityClassVisitor)(nil)

// collectingVisitor is a minimal test-only ClassVisitor/MethodVisitor/
// FieldVisitor that records just enough to assert against, mirroring the
// teacher's own preference for small hand-rolled test doubles over a
// generic mocking framework.
type collectingVisitor struct {
	methods    []collectedMethod
	fieldAttrs []*Attribute
}

type collectedMethod struct {
	name, descriptor string
	code             []collectedInsn
	maxStack         int
	maxLocals        int
	hasStackMapTable bool
	frames           []collectedFrame
	localVars        []collectedLocalVar
}

// collectedLocalVar records one VisitLocalVariable call, the decoder's
// merged view of a LocalVariableTable entry plus whatever signature a
// matching LocalVariableTypeTable entry contributed.
type collectedLocalVar struct {
	name, descriptor, signature string
	index                       int
}

// collectedInsn records an instruction the way the visitor protocol
// delivers it on decode: a generic opcode plus whatever explicit operand
// accompanied it. It deliberately cannot represent compressed wire forms
// or resolved jump offsets, since a decoder never produces either.
type collectedInsn struct {
	opcode   int
	varIndex int
}

type collectedFrame struct{}

func (v *collectingVisitor) VisitHeader(int, int, int, string, string, string, []string) {}
func (v *collectingVisitor) VisitSource(string, string)                                  {}
func (v *collectingVisitor) VisitModule(string, int, string) ModuleVisitor                { return nil }
func (v *collectingVisitor) VisitNestHost(string)                                        {}
func (v *collectingVisitor) VisitOuterClass(string, string, string)                      {}
func (v *collectingVisitor) VisitAnnotation(string, bool) AnnotationVisitor               { return nil }
func (v *collectingVisitor) VisitTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return nil
}
func (v *collectingVisitor) VisitAttribute(*Attribute)                  {}
func (v *collectingVisitor) VisitNestMember(string)                     {}
func (v *collectingVisitor) VisitPermittedSubclass(string)               {}
func (v *collectingVisitor) VisitInnerClass(string, string, string, int) {}
func (v *collectingVisitor) VisitRecordComponent(string, string, string) RecordComponentVisitor {
	return nil
}
func (v *collectingVisitor) VisitField(access int, name, descriptor, signature string, value interface{}) FieldVisitor {
	return &collectingFieldVisitor{owner: v}
}
func (v *collectingVisitor) VisitMethod(access int, name, descriptor, signature string, exceptions []string) MethodVisitor {
	v.methods = append(v.methods, collectedMethod{name: name, descriptor: descriptor})
	return &collectingMethodVisitor{owner: v, idx: len(v.methods) - 1}
}
func (v *collectingVisitor) VisitEnd() {}

var _ ClassVisitor = (*collectingVisitor)(nil)

type collectingFieldVisitor struct{ owner *collectingVisitor }

func (f *collectingFieldVisitor) VisitFieldAnnotation(string, bool) AnnotationVisitor { return nil }
func (f *collectingFieldVisitor) VisitFieldTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return nil
}
func (f *collectingFieldVisitor) VisitFieldAttribute(attr *Attribute) {
	f.owner.fieldAttrs = append(f.owner.fieldAttrs, attr)
}
func (f *collectingFieldVisitor) VisitFieldEnd() {}

var _ FieldVisitor = (*collectingFieldVisitor)(nil)

type collectingMethodVisitor struct {
	owner *collectingVisitor
	idx   int
}

func (m *collectingMethodVisitor) m() *collectedMethod { return &m.owner.methods[m.idx] }

func (m *collectingMethodVisitor) VisitParameter(string, int)                       {}
func (m *collectingMethodVisitor) VisitMethodAnnotationDefault() AnnotationVisitor   { return nil }
func (m *collectingMethodVisitor) VisitMethodAnnotation(string, bool) AnnotationVisitor {
	return nil
}
func (m *collectingMethodVisitor) VisitMethodTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return nil
}
func (m *collectingMethodVisitor) VisitMethodAttribute(*Attribute) {}
func (m *collectingMethodVisitor) VisitCode()                      {}
func (m *collectingMethodVisitor) VisitFrame(frameType int, numLocal int, local []interface{}, numStack int, stack []interface{}) {
	cm := m.m()
	cm.hasStackMapTable = true
	cm.frames = append(cm.frames, collectedFrame{})
}
func (m *collectingMethodVisitor) VisitInsn(opcode int) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode})
}
func (m *collectingMethodVisitor) VisitIntInsn(opcode, operand int) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode, varIndex: operand})
}
func (m *collectingMethodVisitor) VisitVarInsn(opcode, varIndex int) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode, varIndex: varIndex})
}
func (m *collectingMethodVisitor) VisitTypeInsn(opcode int, typ string) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode})
}
func (m *collectingMethodVisitor) VisitFieldInsn(opcode int, owner, name, descriptor string) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode})
}
func (m *collectingMethodVisitor) VisitMethodInsn(opcode int, owner, name, descriptor string, isInterface bool) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode})
}
func (m *collectingMethodVisitor) VisitInvokeDynamicInsn(name, descriptor string, bsmHandleRefKind int, bsmOwner, bsmName, bsmDescriptor string, bsmArgs []interface{}) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.INVOKEDYNAMIC})
}
func (m *collectingMethodVisitor) VisitJumpInsn(opcode int, label *Label) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcode})
}
func (m *collectingMethodVisitor) VisitLabel(label *Label)        {}
func (m *collectingMethodVisitor) VisitLdcInsn(value interface{}) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.LDC})
}
func (m *collectingMethodVisitor) VisitIincInsn(varIndex, increment int) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.IINC, varIndex: varIndex})
}
func (m *collectingMethodVisitor) VisitTableSwitchInsn(min, max int, dflt *Label, labels []*Label) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.TABLESWITCH})
}
func (m *collectingMethodVisitor) VisitLookupSwitchInsn(dflt *Label, keys []int32, labels []*Label) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.LOOKUPSWITCH})
}
func (m *collectingMethodVisitor) VisitMultiANewArrayInsn(descriptor string, numDimensions int) {
	cm := m.m()
	cm.code = append(cm.code, collectedInsn{opcode: opcodes.MULTIANEWARRAY})
}
func (m *collectingMethodVisitor) VisitInsnAnnotation(int, string, string, bool) AnnotationVisitor {
	return nil
}
func (m *collectingMethodVisitor) VisitTryCatchBlock(start, end, handler *Label, typ string) {}
func (m *collectingMethodVisitor) VisitTryCatchAnnotation(int, string, string, bool) AnnotationVisitor {
	return nil
}
func (m *collectingMethodVisitor) VisitLocalVariable(name, descriptor, signature string, start, end *Label, index int) {
	cm := m.m()
	cm.localVars = append(cm.localVars, collectedLocalVar{name: name, descriptor: descriptor, signature: signature, index: index})
}
func (m *collectingMethodVisitor) VisitLocalVariableAnnotation(typeRef int, typePath string, start, end []*Label, index []int, descriptor string, visible bool) AnnotationVisitor {
	return nil
}
func (m *collectingMethodVisitor) VisitLineNumber(line int, start *Label) {}
func (m *collectingMethodVisitor) VisitMaxs(maxStack, maxLocals int) {
	cm := m.m()
	cm.maxStack, cm.maxLocals = maxStack, maxLocals
}
func (m *collectingMethodVisitor) VisitMethodEnd() {}

var _ MethodVisitor = (*collectingMethodVisitor)(nil)
