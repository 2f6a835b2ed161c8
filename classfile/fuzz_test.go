/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"testing"

	"github.com/go-classfile/asm/opcodes"
)

// discardVisitor accepts every callback and keeps nothing; it exists only
// to drive ClassReader.Accept to completion during fuzzing.
type discardVisitor struct{}

func (discardVisitor) VisitHeader(int, int, int, string, string, string, []string) {}
func (discardVisitor) VisitSource(string, string)                                  {}
func (discardVisitor) VisitModule(string, int, string) ModuleVisitor                { return discardModuleVisitor{} }
func (discardVisitor) VisitNestHost(string)                                        {}
func (discardVisitor) VisitOuterClass(string, string, string)                      {}
func (discardVisitor) VisitAnnotation(string, bool) AnnotationVisitor              { return discardAnnotationVisitor{} }
func (discardVisitor) VisitTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardVisitor) VisitAttribute(*Attribute)                  {}
func (discardVisitor) VisitNestMember(string)                     {}
func (discardVisitor) VisitPermittedSubclass(string)               {}
func (discardVisitor) VisitInnerClass(string, string, string, int) {}
func (discardVisitor) VisitRecordComponent(string, string, string) RecordComponentVisitor {
	return discardRecordComponentVisitor{}
}
func (discardVisitor) VisitField(int, string, string, string, interface{}) FieldVisitor {
	return discardFieldVisitor{}
}
func (discardVisitor) VisitMethod(int, string, string, string, []string) MethodVisitor {
	return discardMethodVisitor{}
}
func (discardVisitor) VisitEnd() {}

var _ ClassVisitor = discardVisitor{}

type discardModuleVisitor struct{}

func (discardModuleVisitor) VisitMainClass(string)                  {}
func (discardModuleVisitor) VisitPackage(string)                    {}
func (discardModuleVisitor) VisitRequire(string, int, string)        {}
func (discardModuleVisitor) VisitExport(string, int, []string)       {}
func (discardModuleVisitor) VisitOpen(string, int, []string)         {}
func (discardModuleVisitor) VisitUse(string)                         {}
func (discardModuleVisitor) VisitProvide(string, []string)           {}
func (discardModuleVisitor) VisitModuleEnd()                         {}

type discardAnnotationVisitor struct{}

func (discardAnnotationVisitor) Visit(string, interface{})                  {}
func (discardAnnotationVisitor) VisitEnum(string, string, string)           {}
func (discardAnnotationVisitor) VisitAnnotation(string, string) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardAnnotationVisitor) VisitArray(string) AnnotationVisitor { return discardAnnotationVisitor{} }
func (discardAnnotationVisitor) VisitAnnotationEnd()                 {}

type discardRecordComponentVisitor struct{}

func (discardRecordComponentVisitor) VisitRecordComponentAnnotation(string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardRecordComponentVisitor) VisitRecordComponentTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardRecordComponentVisitor) VisitRecordComponentAttribute(*Attribute) {}
func (discardRecordComponentVisitor) VisitRecordComponentEnd()                 {}

type discardFieldVisitor struct{}

func (discardFieldVisitor) VisitFieldAnnotation(string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardFieldVisitor) VisitFieldTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardFieldVisitor) VisitFieldAttribute(*Attribute) {}
func (discardFieldVisitor) VisitFieldEnd()                 {}

type discardMethodVisitor struct{}

func (discardMethodVisitor) VisitParameter(string, int)                      {}
func (discardMethodVisitor) VisitMethodAnnotationDefault() AnnotationVisitor { return discardAnnotationVisitor{} }
func (discardMethodVisitor) VisitMethodAnnotation(string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardMethodVisitor) VisitMethodTypeAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardMethodVisitor) VisitMethodAttribute(*Attribute)                                       {}
func (discardMethodVisitor) VisitCode()                                                             {}
func (discardMethodVisitor) VisitFrame(int, int, []interface{}, int, []interface{})                 {}
func (discardMethodVisitor) VisitInsn(int)                                                           {}
func (discardMethodVisitor) VisitIntInsn(int, int)                                                   {}
func (discardMethodVisitor) VisitVarInsn(int, int)                                                   {}
func (discardMethodVisitor) VisitTypeInsn(int, string)                                               {}
func (discardMethodVisitor) VisitFieldInsn(int, string, string, string)                              {}
func (discardMethodVisitor) VisitMethodInsn(int, string, string, string, bool)                       {}
func (discardMethodVisitor) VisitInvokeDynamicInsn(string, string, int, string, string, string, []interface{}) {
}
func (discardMethodVisitor) VisitJumpInsn(int, *Label)    {}
func (discardMethodVisitor) VisitLabel(*Label)            {}
func (discardMethodVisitor) VisitLdcInsn(interface{})     {}
func (discardMethodVisitor) VisitIincInsn(int, int)       {}
func (discardMethodVisitor) VisitTableSwitchInsn(int, int, *Label, []*Label)  {}
func (discardMethodVisitor) VisitLookupSwitchInsn(*Label, []int32, []*Label) {}
func (discardMethodVisitor) VisitMultiANewArrayInsn(string, int)             {}
func (discardMethodVisitor) VisitInsnAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardMethodVisitor) VisitTryCatchBlock(*Label, *Label, *Label, string) {}
func (discardMethodVisitor) VisitTryCatchAnnotation(int, string, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardMethodVisitor) VisitLocalVariable(string, string, string, *Label, *Label, int) {}
func (discardMethodVisitor) VisitLocalVariableAnnotation(int, string, []*Label, []*Label, []int, string, bool) AnnotationVisitor {
	return discardAnnotationVisitor{}
}
func (discardMethodVisitor) VisitLineNumber(int, *Label) {}
func (discardMethodVisitor) VisitMaxs(int, int)          {}
func (discardMethodVisitor) VisitMethodEnd()             {}

// FuzzClassReader drives NewClassReader and Accept on arbitrary byte
// strings. The decoder must never panic on malformed input: it should
// return an error instead.
func FuzzClassReader(f *testing.F) {
	cw := NewClassWriter(ComputeMaxStackAndLocal)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Id", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "id", "(I)I", "", nil)
	mw.VisitCode()
	mw.VisitVarInsn(opcodes.ILOAD, 0)
	mw.VisitInsn(opcodes.IRETURN)
	mw.VisitMaxs(1, 1)
	mw.VisitMethodEnd()
	cw.VisitEnd()
	if seed, err := cw.ToByteArray(); err == nil {
		f.Add(seed)
	}
	f.Add([]byte{0xCA, 0xFE, 0xBA, 0xBE})
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, data []byte) {
		cr, err := NewClassReader(data)
		if err != nil {
			return
		}
		_ = cr.Accept(discardVisitor{})
	})
}
