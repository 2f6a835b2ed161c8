/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package main

import "github.com/go-classfile/asm/classfile"

// frameCounter is a throwaway classfile.MethodVisitor that does nothing
// but count VisitFrame calls, used to report a method's StackMapTable
// frame count without reaching into tree.MethodNode's internals.
type frameCounter struct {
	frames int
}

func (c *frameCounter) VisitParameter(string, int)                        {}
func (c *frameCounter) VisitMethodAnnotationDefault() classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitMethodAnnotation(string, bool) classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitMethodTypeAnnotation(int, string, string, bool) classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitMethodAttribute(*classfile.Attribute) {}
func (c *frameCounter) VisitCode()                                {}
func (c *frameCounter) VisitFrame(int, int, []interface{}, int, []interface{}) {
	c.frames++
}
func (c *frameCounter) VisitInsn(int)                  {}
func (c *frameCounter) VisitIntInsn(int, int)          {}
func (c *frameCounter) VisitVarInsn(int, int)          {}
func (c *frameCounter) VisitTypeInsn(int, string)      {}
func (c *frameCounter) VisitFieldInsn(int, string, string, string) {}
func (c *frameCounter) VisitMethodInsn(int, string, string, string, bool) {}
func (c *frameCounter) VisitInvokeDynamicInsn(string, string, int, string, string, string, []interface{}) {
}
func (c *frameCounter) VisitJumpInsn(int, *classfile.Label) {}
func (c *frameCounter) VisitLabel(*classfile.Label)         {}
func (c *frameCounter) VisitLdcInsn(interface{})            {}
func (c *frameCounter) VisitIincInsn(int, int)              {}
func (c *frameCounter) VisitTableSwitchInsn(int, int, *classfile.Label, []*classfile.Label)  {}
func (c *frameCounter) VisitLookupSwitchInsn(*classfile.Label, []int32, []*classfile.Label) {}
func (c *frameCounter) VisitMultiANewArrayInsn(string, int)                                 {}
func (c *frameCounter) VisitInsnAnnotation(int, string, string, bool) classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitTryCatchBlock(*classfile.Label, *classfile.Label, *classfile.Label, string) {
}
func (c *frameCounter) VisitTryCatchAnnotation(int, string, string, bool) classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitLocalVariable(string, string, string, *classfile.Label, *classfile.Label, int) {
}
func (c *frameCounter) VisitLocalVariableAnnotation(int, string, []*classfile.Label, []*classfile.Label, []int, string, bool) classfile.AnnotationVisitor {
	return nil
}
func (c *frameCounter) VisitLineNumber(int, *classfile.Label) {}
func (c *frameCounter) VisitMaxs(int, int)                    {}
func (c *frameCounter) VisitMethodEnd()                       {}

var _ classfile.MethodVisitor = (*frameCounter)(nil)
