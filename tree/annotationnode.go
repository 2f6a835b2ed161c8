/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package tree

import "github.com/go-classfile/asm/classfile"

type annValueKind int

const (
	annPlain annValueKind = iota
	annEnum
	annNested
	annArray
)

// annRecord is one key/value pair recorded by an AnnotationNode, in the
// order it was visited (order matters: it is the order bytes are
// eventually emitted in).
type annRecord struct {
	kind  annValueKind
	name  string
	value interface{}

	enumDescriptor, enumValue string

	// nested holds the child container for annNested (a real nested
	// annotation; nested.Descriptor is meaningful) and annArray (an
	// unnamed element container; nested.Descriptor is unused).
	nested *AnnotationNode
}

// AnnotationNode collects one annotation's element values. The same
// struct doubles as the container classfile.AnnotationVisitor hands back
// from VisitArray (an annotation array has no descriptor of its own, only
// a sequence of unnamed element values), matching how a real annotation
// tree layer has no distinct "array" node type.
type AnnotationNode struct {
	Descriptor string
	Visible    bool

	values []annRecord
}

// NewAnnotationNode returns an empty node ready to receive Visit* calls.
func NewAnnotationNode(descriptor string, visible bool) *AnnotationNode {
	return &AnnotationNode{Descriptor: descriptor, Visible: visible}
}

func (n *AnnotationNode) Visit(name string, value interface{}) {
	n.values = append(n.values, annRecord{kind: annPlain, name: name, value: value})
}

func (n *AnnotationNode) VisitEnum(name, descriptor, value string) {
	n.values = append(n.values, annRecord{kind: annEnum, name: name, enumDescriptor: descriptor, enumValue: value})
}

func (n *AnnotationNode) VisitAnnotation(name, descriptor string) classfile.AnnotationVisitor {
	child := NewAnnotationNode(descriptor, false)
	n.values = append(n.values, annRecord{kind: annNested, name: name, nested: child})
	return child
}

func (n *AnnotationNode) VisitArray(name string) classfile.AnnotationVisitor {
	child := NewAnnotationNode("", false)
	n.values = append(n.values, annRecord{kind: annArray, name: name, nested: child})
	return child
}

func (n *AnnotationNode) VisitAnnotationEnd() {}

var _ classfile.AnnotationVisitor = (*AnnotationNode)(nil)

// Accept replays every recorded element value into av, in visit order,
// then closes the annotation. av may be nil (a visitor that declines the
// annotation, e.g. an API-level floor rejecting it); Accept is then a
// no-op, matching how every other node's Accept tolerates a nil child
// visitor from its parent callback.
func (n *AnnotationNode) Accept(av classfile.AnnotationVisitor) {
	if av == nil {
		return
	}
	for _, r := range n.values {
		switch r.kind {
		case annPlain:
			av.Visit(r.name, r.value)
		case annEnum:
			av.VisitEnum(r.name, r.enumDescriptor, r.enumValue)
		case annNested:
			r.nested.Accept(av.VisitAnnotation(r.name, r.nested.Descriptor))
		case annArray:
			r.nested.Accept(av.VisitArray(r.name))
		}
	}
	av.VisitAnnotationEnd()
}
