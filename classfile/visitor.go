/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

// This file is the stable contract between ClassReader and the
// encoders/tree layer. An inheritance-based visitor hierarchy is
// re-expressed here as one interface per node kind: a node is
// polymorphic over the callback set for its kind, and chaining
// (ClassReader -> transformer* -> ClassWriter) is just composition of
// values implementing the same interface. A chaining visitor forwards
// every call it doesn't override to its delegate, verbatim.

// ClassVisitor receives callbacks in a fixed order: header, source,
// module, nest host, outer class, annotations, attributes, nest
// members, permitted subclasses, inner classes, record components,
// fields, methods, end.
type ClassVisitor interface {
	VisitHeader(minorVersion, majorVersion, accessFlags int, name, signature, superName string, interfaces []string)
	VisitSource(source, debug string)
	VisitModule(name string, accessFlags int, version string) ModuleVisitor
	VisitNestHost(nestHost string)
	VisitOuterClass(owner, name, descriptor string)
	VisitAnnotation(descriptor string, visible bool) AnnotationVisitor
	VisitTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitAttribute(attr *Attribute)
	VisitNestMember(nestMember string)
	VisitPermittedSubclass(permittedSubclass string)
	VisitInnerClass(name, outerName, innerName string, access int)
	VisitRecordComponent(name, descriptor, signature string) RecordComponentVisitor
	VisitField(access int, name, descriptor, signature string, value interface{}) FieldVisitor
	VisitMethod(access int, name, descriptor, signature string, exceptions []string) MethodVisitor
	VisitEnd()
}

// FieldVisitor receives a field's attributes in JVMS §4.7 order.
type FieldVisitor interface {
	VisitFieldAnnotation(descriptor string, visible bool) AnnotationVisitor
	VisitFieldTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitFieldAttribute(attr *Attribute)
	VisitFieldEnd()
}

// RecordComponentVisitor mirrors FieldVisitor for a `Record` attribute's
// per-component metadata (class-file major >= 58).
type RecordComponentVisitor interface {
	VisitRecordComponentAnnotation(descriptor string, visible bool) AnnotationVisitor
	VisitRecordComponentTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitRecordComponentAttribute(attr *Attribute)
	VisitRecordComponentEnd()
}

// ModuleVisitor receives a `Module` attribute's requires/exports/opens/
// uses/provides entries (class-file major >= 53).
type ModuleVisitor interface {
	VisitMainClass(mainClass string)
	VisitPackage(packaze string)
	VisitRequire(module string, access int, version string)
	VisitExport(packaze string, access int, modules []string)
	VisitOpen(packaze string, access int, modules []string)
	VisitUse(service string)
	VisitProvide(service string, providers []string)
	VisitModuleEnd()
}

// AnnotationVisitor receives the key/value pairs of one annotation, in
// visit order; order matters because it determines the order bytes are
// emitted in.
type AnnotationVisitor interface {
	Visit(name string, value interface{})
	VisitEnum(name, descriptor, value string)
	VisitAnnotation(name, descriptor string) AnnotationVisitor
	VisitArray(name string) AnnotationVisitor
	VisitAnnotationEnd()
}

// MethodVisitor is the largest node-kind interface: one operation per
// JVMS instruction family plus the metadata operations, visited in a
// fixed order: code preamble, instructions in bytecode order,
// frames/line numbers/local variables interleaved as visited, then
// visitMaxs/visitEnd.
type MethodVisitor interface {
	VisitParameter(name string, access int)
	VisitMethodAnnotationDefault() AnnotationVisitor
	VisitMethodAnnotation(descriptor string, visible bool) AnnotationVisitor
	VisitMethodTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitMethodAttribute(attr *Attribute)
	VisitCode()
	VisitFrame(frameType int, numLocal int, local []interface{}, numStack int, stack []interface{})
	VisitInsn(opcode int)
	VisitIntInsn(opcode, operand int)
	VisitVarInsn(opcode, varIndex int)
	VisitTypeInsn(opcode int, typ string)
	VisitFieldInsn(opcode int, owner, name, descriptor string)
	VisitMethodInsn(opcode int, owner, name, descriptor string, isInterface bool)
	VisitInvokeDynamicInsn(name, descriptor string, bsmHandleRefKind int, bsmOwner, bsmName, bsmDescriptor string, bsmArgs []interface{})
	VisitJumpInsn(opcode int, label *Label)
	VisitLabel(label *Label)
	VisitLdcInsn(value interface{})
	VisitIincInsn(varIndex, increment int)
	VisitTableSwitchInsn(min, max int, dflt *Label, labels []*Label)
	VisitLookupSwitchInsn(dflt *Label, keys []int32, labels []*Label)
	VisitMultiANewArrayInsn(descriptor string, numDimensions int)
	VisitInsnAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitTryCatchBlock(start, end, handler *Label, typ string)
	VisitTryCatchAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor
	VisitLocalVariable(name, descriptor, signature string, start, end *Label, index int)
	VisitLocalVariableAnnotation(typeRef int, typePath string, start, end []*Label, index []int, descriptor string, visible bool) AnnotationVisitor
	VisitLineNumber(line int, start *Label)
	VisitMaxs(maxStack, maxLocals int)
	VisitMethodEnd()
}
