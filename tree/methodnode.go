/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package tree

import "github.com/go-classfile/asm/classfile"

// relabel remaps a *classfile.Label visited while building this node into
// a fresh label owned by whichever MethodVisitor is currently accepting
// this node. A tree node may be replayed into many writers (or the same
// writer twice); each replay gets its own set of Label instances, since
// Label carries mutable CFG state (flags, edges, frame) scoped to one
// MethodWriter's fixpoint.
type relabel struct {
	m map[*classfile.Label]*classfile.Label
}

func newRelabel() *relabel { return &relabel{m: make(map[*classfile.Label]*classfile.Label)} }

func (r *relabel) get(l *classfile.Label) *classfile.Label {
	if l == nil {
		return nil
	}
	if mapped, ok := r.m[l]; ok {
		return mapped
	}
	fresh := classfile.NewLabel()
	r.m[l] = fresh
	return fresh
}

func (r *relabel) getAll(ls []*classfile.Label) []*classfile.Label {
	out := make([]*classfile.Label, len(ls))
	for i, l := range ls {
		out[i] = r.get(l)
	}
	return out
}

// methodInsn is one buffered MethodVisitor call: an instruction, a label
// marker, a frame, a line number, or a local-variable/try-catch entry
// interleaved in visit order. Replaying the slice in order reproduces the
// exact callback sequence the node was built from.
type methodInsn func(mv classfile.MethodVisitor, r *relabel)

type paramNode struct {
	Name   string
	Access int
}

type localVariableNode struct {
	Name, Descriptor, Signature string
	Start, End                  *classfile.Label
	Index                       int
}

type localVariableAnnotationNode struct {
	TypeRef          int
	TypePath         string
	Start, End       []*classfile.Label
	Index            []int
	Annotation       *AnnotationNode
}

type tryCatchBlockNode struct {
	Start, End, Handler *classfile.Label
	Type                string

	VisibleAnnotations, InvisibleAnnotations []*TypeAnnotationNode
}

// MethodNode mirrors one method_info: its metadata plus a buffered
// instruction/frame/debug-info stream replayed in the same order it was
// visited.
type MethodNode struct {
	Access                       int
	Name, Descriptor, Signature string
	Exceptions                   []string

	Parameters []paramNode

	AnnotationDefault *AnnotationNode

	VisibleAnnotations, InvisibleAnnotations         []*AnnotationNode
	VisibleTypeAnnotations, InvisibleTypeAnnotations []*TypeAnnotationNode
	Attrs                                             []*classfile.Attribute

	HasCode bool
	insns   []methodInsn

	TryCatchBlocks  []*tryCatchBlockNode
	LocalVariables  []localVariableNode
	LocalVarAnnotations []*localVariableAnnotationNode

	MaxStack, MaxLocals int
	hasMaxs              bool
}

func (n *MethodNode) VisitParameter(name string, access int) {
	n.Parameters = append(n.Parameters, paramNode{name, access})
}

func (n *MethodNode) VisitMethodAnnotationDefault() classfile.AnnotationVisitor {
	n.AnnotationDefault = NewAnnotationNode("", false)
	return n.AnnotationDefault
}

func (n *MethodNode) VisitMethodAnnotation(descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	if visible {
		n.VisibleAnnotations = append(n.VisibleAnnotations, an)
	} else {
		n.InvisibleAnnotations = append(n.InvisibleAnnotations, an)
	}
	return an
}

func (n *MethodNode) VisitMethodTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	tan := &TypeAnnotationNode{TypeRef: typeRef, TypePath: typePath, Annotation: NewAnnotationNode(descriptor, visible)}
	if visible {
		n.VisibleTypeAnnotations = append(n.VisibleTypeAnnotations, tan)
	} else {
		n.InvisibleTypeAnnotations = append(n.InvisibleTypeAnnotations, tan)
	}
	return tan.Annotation
}

func (n *MethodNode) VisitMethodAttribute(attr *classfile.Attribute) { n.Attrs = append(n.Attrs, attr) }

func (n *MethodNode) VisitCode() { n.HasCode = true }

func (n *MethodNode) VisitFrame(frameType int, numLocal int, local []interface{}, numStack int, stack []interface{}) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitFrame(frameType, numLocal, local, numStack, stack)
	})
}

func (n *MethodNode) VisitInsn(opcode int) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitInsn(opcode) })
}

func (n *MethodNode) VisitIntInsn(opcode, operand int) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitIntInsn(opcode, operand) })
}

func (n *MethodNode) VisitVarInsn(opcode, varIndex int) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitVarInsn(opcode, varIndex) })
}

func (n *MethodNode) VisitTypeInsn(opcode int, typ string) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitTypeInsn(opcode, typ) })
}

func (n *MethodNode) VisitFieldInsn(opcode int, owner, name, descriptor string) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitFieldInsn(opcode, owner, name, descriptor) })
}

func (n *MethodNode) VisitMethodInsn(opcode int, owner, name, descriptor string, isInterface bool) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitMethodInsn(opcode, owner, name, descriptor, isInterface)
	})
}

func (n *MethodNode) VisitInvokeDynamicInsn(name, descriptor string, bsmHandleRefKind int, bsmOwner, bsmName, bsmDescriptor string, bsmArgs []interface{}) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitInvokeDynamicInsn(name, descriptor, bsmHandleRefKind, bsmOwner, bsmName, bsmDescriptor, bsmArgs)
	})
}

func (n *MethodNode) VisitJumpInsn(opcode int, label *classfile.Label) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitJumpInsn(opcode, r.get(label)) })
}

func (n *MethodNode) VisitLabel(label *classfile.Label) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitLabel(r.get(label)) })
}

func (n *MethodNode) VisitLdcInsn(value interface{}) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitLdcInsn(value) })
}

func (n *MethodNode) VisitIincInsn(varIndex, increment int) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitIincInsn(varIndex, increment) })
}

func (n *MethodNode) VisitTableSwitchInsn(min, max int, dflt *classfile.Label, labels []*classfile.Label) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitTableSwitchInsn(min, max, r.get(dflt), r.getAll(labels))
	})
}

func (n *MethodNode) VisitLookupSwitchInsn(dflt *classfile.Label, keys []int32, labels []*classfile.Label) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitLookupSwitchInsn(r.get(dflt), keys, r.getAll(labels))
	})
}

func (n *MethodNode) VisitMultiANewArrayInsn(descriptor string, numDimensions int) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		mv.VisitMultiANewArrayInsn(descriptor, numDimensions)
	})
}

func (n *MethodNode) VisitInsnAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) {
		an.Accept(mv.VisitInsnAnnotation(typeRef, typePath, descriptor, visible))
	})
	return an
}

func (n *MethodNode) VisitTryCatchBlock(start, end, handler *classfile.Label, typ string) {
	n.TryCatchBlocks = append(n.TryCatchBlocks, &tryCatchBlockNode{Start: start, End: end, Handler: handler, Type: typ})
}

func (n *MethodNode) VisitTryCatchAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	tan := &TypeAnnotationNode{TypeRef: typeRef, TypePath: typePath, Annotation: an}
	last := n.TryCatchBlocks[len(n.TryCatchBlocks)-1]
	if visible {
		last.VisibleAnnotations = append(last.VisibleAnnotations, tan)
	} else {
		last.InvisibleAnnotations = append(last.InvisibleAnnotations, tan)
	}
	return an
}

func (n *MethodNode) VisitLocalVariable(name, descriptor, signature string, start, end *classfile.Label, index int) {
	n.LocalVariables = append(n.LocalVariables, localVariableNode{name, descriptor, signature, start, end, index})
}

func (n *MethodNode) VisitLocalVariableAnnotation(typeRef int, typePath string, start, end []*classfile.Label, index []int, descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	n.LocalVarAnnotations = append(n.LocalVarAnnotations, &localVariableAnnotationNode{
		TypeRef: typeRef, TypePath: typePath, Start: start, End: end, Index: index, Annotation: an,
	})
	return an
}

func (n *MethodNode) VisitLineNumber(line int, start *classfile.Label) {
	n.insns = append(n.insns, func(mv classfile.MethodVisitor, r *relabel) { mv.VisitLineNumber(line, r.get(start)) })
}

func (n *MethodNode) VisitMaxs(maxStack, maxLocals int) {
	n.MaxStack, n.MaxLocals, n.hasMaxs = maxStack, maxLocals, true
}

func (n *MethodNode) VisitMethodEnd() {}

var _ classfile.MethodVisitor = (*MethodNode)(nil)

// Accept replays this method's stored state into mv in the JVMS-ordered
// callback sequence: parameters, annotations/attributes, then (if the
// method has a body) code, try-catch blocks, buffered instructions, local
// variables and their annotations, and finally maxs/end. Every *Label
// this node holds is translated through a fresh relabel map, so the same
// MethodNode can back multiple independent writers.
func (n *MethodNode) Accept(mv classfile.MethodVisitor) {
	for _, p := range n.Parameters {
		mv.VisitParameter(p.Name, p.Access)
	}
	if n.AnnotationDefault != nil {
		n.AnnotationDefault.Accept(mv.VisitMethodAnnotationDefault())
	}
	for _, an := range n.VisibleAnnotations {
		an.Accept(mv.VisitMethodAnnotation(an.Descriptor, true))
	}
	for _, an := range n.InvisibleAnnotations {
		an.Accept(mv.VisitMethodAnnotation(an.Descriptor, false))
	}
	for _, tan := range n.VisibleTypeAnnotations {
		tan.Annotation.Accept(mv.VisitMethodTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, true))
	}
	for _, tan := range n.InvisibleTypeAnnotations {
		tan.Annotation.Accept(mv.VisitMethodTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, false))
	}
	for _, a := range n.Attrs {
		mv.VisitMethodAttribute(a)
	}
	if !n.HasCode {
		mv.VisitMethodEnd()
		return
	}
	mv.VisitCode()
	r := newRelabel()
	for _, tcb := range n.TryCatchBlocks {
		mv.VisitTryCatchBlock(r.get(tcb.Start), r.get(tcb.End), r.get(tcb.Handler), tcb.Type)
		for _, tan := range tcb.VisibleAnnotations {
			tan.Annotation.Accept(mv.VisitTryCatchAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, true))
		}
		for _, tan := range tcb.InvisibleAnnotations {
			tan.Annotation.Accept(mv.VisitTryCatchAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, false))
		}
	}
	for _, insn := range n.insns {
		insn(mv, r)
	}
	for _, lv := range n.LocalVariables {
		mv.VisitLocalVariable(lv.Name, lv.Descriptor, lv.Signature, r.get(lv.Start), r.get(lv.End), lv.Index)
	}
	for _, lva := range n.LocalVarAnnotations {
		lva.Annotation.Accept(mv.VisitLocalVariableAnnotation(
			lva.TypeRef, lva.TypePath, r.getAll(lva.Start), r.getAll(lva.End), lva.Index, lva.Annotation.Descriptor, lva.Annotation.Visible))
	}
	if n.hasMaxs {
		mv.VisitMaxs(n.MaxStack, n.MaxLocals)
	}
	mv.VisitMethodEnd()
}
