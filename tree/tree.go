/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

// Package tree is the inert, fully-materialized object graph spec.md §1
// names as an out-of-scope external collaborator: a node per class-file
// node kind (class, field, method, record component), each implementing
// the matching classfile visitor interface to build itself from a
// ClassReader's callbacks, and each carrying an Accept method that
// replays the exact same callback sequence into any other visitor. The
// only contract a tree node has with the core is that replay: it adds no
// analysis of its own.
//
// Modeled on Jacobin's object package: a plain struct aggregating typed
// fields, accessed directly, with no behavior beyond what's needed to
// move data in and out.
package tree

import "github.com/go-classfile/asm/classfile"

// ClassNode is the root of the tree: one node per visited class file.
// Field names mirror classfile.ClassVisitor's callback parameters.
type ClassNode struct {
	MinorVersion, MajorVersion, Access int
	Name, Signature, SuperName         string
	Interfaces                         []string

	Source, Debug string

	Module *ModuleNode

	NestHost string

	OuterOwner, OuterName, OuterDescriptor string

	VisibleAnnotations, InvisibleAnnotations         []*AnnotationNode
	VisibleTypeAnnotations, InvisibleTypeAnnotations []*TypeAnnotationNode
	Attrs                                            []*classfile.Attribute

	NestMembers         []string
	PermittedSubclasses []string
	InnerClasses        []InnerClassNode

	RecordComponents []*RecordComponentNode
	Fields           []*FieldNode
	Methods          []*MethodNode
}

// InnerClassNode mirrors one VisitInnerClass call.
type InnerClassNode struct {
	Name, OuterName, InnerName string
	Access                     int
}

// NewClassNode returns an empty ClassNode ready to be used as a
// classfile.ClassVisitor (e.g. passed to ClassReader.Accept).
func NewClassNode() *ClassNode { return &ClassNode{} }

func (n *ClassNode) VisitHeader(minorVersion, majorVersion, accessFlags int, name, signature, superName string, interfaces []string) {
	n.MinorVersion, n.MajorVersion, n.Access = minorVersion, majorVersion, accessFlags
	n.Name, n.Signature, n.SuperName = name, signature, superName
	n.Interfaces = interfaces
}

func (n *ClassNode) VisitSource(source, debug string) { n.Source, n.Debug = source, debug }

func (n *ClassNode) VisitModule(name string, accessFlags int, version string) classfile.ModuleVisitor {
	n.Module = &ModuleNode{Name: name, Access: accessFlags, Version: version}
	return n.Module
}

func (n *ClassNode) VisitNestHost(nestHost string) { n.NestHost = nestHost }

func (n *ClassNode) VisitOuterClass(owner, name, descriptor string) {
	n.OuterOwner, n.OuterName, n.OuterDescriptor = owner, name, descriptor
}

func (n *ClassNode) VisitAnnotation(descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	if visible {
		n.VisibleAnnotations = append(n.VisibleAnnotations, an)
	} else {
		n.InvisibleAnnotations = append(n.InvisibleAnnotations, an)
	}
	return an
}

func (n *ClassNode) VisitTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	tan := &TypeAnnotationNode{TypeRef: typeRef, TypePath: typePath, Annotation: NewAnnotationNode(descriptor, visible)}
	if visible {
		n.VisibleTypeAnnotations = append(n.VisibleTypeAnnotations, tan)
	} else {
		n.InvisibleTypeAnnotations = append(n.InvisibleTypeAnnotations, tan)
	}
	return tan.Annotation
}

func (n *ClassNode) VisitAttribute(attr *classfile.Attribute) { n.Attrs = append(n.Attrs, attr) }

func (n *ClassNode) VisitNestMember(nestMember string) { n.NestMembers = append(n.NestMembers, nestMember) }

func (n *ClassNode) VisitPermittedSubclass(permittedSubclass string) {
	n.PermittedSubclasses = append(n.PermittedSubclasses, permittedSubclass)
}

func (n *ClassNode) VisitInnerClass(name, outerName, innerName string, access int) {
	n.InnerClasses = append(n.InnerClasses, InnerClassNode{name, outerName, innerName, access})
}

func (n *ClassNode) VisitRecordComponent(name, descriptor, signature string) classfile.RecordComponentVisitor {
	rc := &RecordComponentNode{Name: name, Descriptor: descriptor, Signature: signature}
	n.RecordComponents = append(n.RecordComponents, rc)
	return rc
}

func (n *ClassNode) VisitField(access int, name, descriptor, signature string, value interface{}) classfile.FieldVisitor {
	fn := &FieldNode{Access: access, Name: name, Descriptor: descriptor, Signature: signature, Value: value}
	n.Fields = append(n.Fields, fn)
	return fn
}

func (n *ClassNode) VisitMethod(access int, name, descriptor, signature string, exceptions []string) classfile.MethodVisitor {
	mn := &MethodNode{Access: access, Name: name, Descriptor: descriptor, Signature: signature, Exceptions: exceptions}
	n.Methods = append(n.Methods, mn)
	return mn
}

func (n *ClassNode) VisitEnd() {}

var _ classfile.ClassVisitor = (*ClassNode)(nil)

// Accept replays this node's stored state into cv in the same callback
// order a ClassReader would have used, so reader -> ClassNode -> cv
// produces the same bytes as reader -> cv directly (visitor
// transparency, spec.md §8 property 3).
func (n *ClassNode) Accept(cv classfile.ClassVisitor) {
	cv.VisitHeader(n.MinorVersion, n.MajorVersion, n.Access, n.Name, n.Signature, n.SuperName, n.Interfaces)
	if n.Source != "" || n.Debug != "" {
		cv.VisitSource(n.Source, n.Debug)
	}
	if n.Module != nil {
		mv := cv.VisitModule(n.Module.Name, n.Module.Access, n.Module.Version)
		n.Module.Accept(mv)
	}
	if n.NestHost != "" {
		cv.VisitNestHost(n.NestHost)
	}
	if n.OuterOwner != "" {
		cv.VisitOuterClass(n.OuterOwner, n.OuterName, n.OuterDescriptor)
	}
	for _, an := range n.VisibleAnnotations {
		an.Accept(cv.VisitAnnotation(an.Descriptor, true))
	}
	for _, an := range n.InvisibleAnnotations {
		an.Accept(cv.VisitAnnotation(an.Descriptor, false))
	}
	for _, tan := range n.VisibleTypeAnnotations {
		tan.Annotation.Accept(cv.VisitTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, true))
	}
	for _, tan := range n.InvisibleTypeAnnotations {
		tan.Annotation.Accept(cv.VisitTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, false))
	}
	for _, a := range n.Attrs {
		cv.VisitAttribute(a)
	}
	for _, m := range n.NestMembers {
		cv.VisitNestMember(m)
	}
	for _, p := range n.PermittedSubclasses {
		cv.VisitPermittedSubclass(p)
	}
	for _, ic := range n.InnerClasses {
		cv.VisitInnerClass(ic.Name, ic.OuterName, ic.InnerName, ic.Access)
	}
	for _, rc := range n.RecordComponents {
		rc.Accept(cv.VisitRecordComponent(rc.Name, rc.Descriptor, rc.Signature))
	}
	for _, f := range n.Fields {
		f.Accept(cv.VisitField(f.Access, f.Name, f.Descriptor, f.Signature, f.Value))
	}
	for _, m := range n.Methods {
		m.Accept(cv.VisitMethod(m.Access, m.Name, m.Descriptor, m.Signature, m.Exceptions))
	}
	cv.VisitEnd()
}

// ModuleNode mirrors one Module attribute.
type ModuleNode struct {
	Name    string
	Access  int
	Version string

	MainClass string
	Packages  []string

	Requires []RequireNode
	Exports  []ExportNode
	Opens    []ExportNode
	Uses     []string
	Provides []ProvideNode
}

type RequireNode struct {
	Module  string
	Access  int
	Version string
}

type ExportNode struct {
	Package string
	Access  int
	Modules []string
}

type ProvideNode struct {
	Service   string
	Providers []string
}

func (m *ModuleNode) VisitMainClass(mainClass string) { m.MainClass = mainClass }
func (m *ModuleNode) VisitPackage(packaze string)     { m.Packages = append(m.Packages, packaze) }
func (m *ModuleNode) VisitRequire(module string, access int, version string) {
	m.Requires = append(m.Requires, RequireNode{module, access, version})
}
func (m *ModuleNode) VisitExport(packaze string, access int, modules []string) {
	m.Exports = append(m.Exports, ExportNode{packaze, access, modules})
}
func (m *ModuleNode) VisitOpen(packaze string, access int, modules []string) {
	m.Opens = append(m.Opens, ExportNode{packaze, access, modules})
}
func (m *ModuleNode) VisitUse(service string) { m.Uses = append(m.Uses, service) }
func (m *ModuleNode) VisitProvide(service string, providers []string) {
	m.Provides = append(m.Provides, ProvideNode{service, providers})
}
func (m *ModuleNode) VisitModuleEnd() {}

var _ classfile.ModuleVisitor = (*ModuleNode)(nil)

func (m *ModuleNode) Accept(mv classfile.ModuleVisitor) {
	if m.MainClass != "" {
		mv.VisitMainClass(m.MainClass)
	}
	for _, p := range m.Packages {
		mv.VisitPackage(p)
	}
	for _, r := range m.Requires {
		mv.VisitRequire(r.Module, r.Access, r.Version)
	}
	for _, e := range m.Exports {
		mv.VisitExport(e.Package, e.Access, e.Modules)
	}
	for _, o := range m.Opens {
		mv.VisitOpen(o.Package, o.Access, o.Modules)
	}
	for _, u := range m.Uses {
		mv.VisitUse(u)
	}
	for _, p := range m.Provides {
		mv.VisitProvide(p.Service, p.Providers)
	}
	mv.VisitModuleEnd()
}

// TypeAnnotationNode pairs a type-annotation's target location with its
// element values.
type TypeAnnotationNode struct {
	TypeRef    int
	TypePath   string
	Annotation *AnnotationNode
}

// RecordComponentNode mirrors one entry of a Record attribute.
type RecordComponentNode struct {
	Name, Descriptor, Signature string

	VisibleAnnotations, InvisibleAnnotations         []*AnnotationNode
	VisibleTypeAnnotations, InvisibleTypeAnnotations []*TypeAnnotationNode
	Attrs                                            []*classfile.Attribute
}

func (n *RecordComponentNode) VisitRecordComponentAnnotation(descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	if visible {
		n.VisibleAnnotations = append(n.VisibleAnnotations, an)
	} else {
		n.InvisibleAnnotations = append(n.InvisibleAnnotations, an)
	}
	return an
}

func (n *RecordComponentNode) VisitRecordComponentTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	tan := &TypeAnnotationNode{TypeRef: typeRef, TypePath: typePath, Annotation: NewAnnotationNode(descriptor, visible)}
	if visible {
		n.VisibleTypeAnnotations = append(n.VisibleTypeAnnotations, tan)
	} else {
		n.InvisibleTypeAnnotations = append(n.InvisibleTypeAnnotations, tan)
	}
	return tan.Annotation
}

func (n *RecordComponentNode) VisitRecordComponentAttribute(attr *classfile.Attribute) {
	n.Attrs = append(n.Attrs, attr)
}

func (n *RecordComponentNode) VisitRecordComponentEnd() {}

var _ classfile.RecordComponentVisitor = (*RecordComponentNode)(nil)

func (n *RecordComponentNode) Accept(rv classfile.RecordComponentVisitor) {
	for _, an := range n.VisibleAnnotations {
		an.Accept(rv.VisitRecordComponentAnnotation(an.Descriptor, true))
	}
	for _, an := range n.InvisibleAnnotations {
		an.Accept(rv.VisitRecordComponentAnnotation(an.Descriptor, false))
	}
	for _, tan := range n.VisibleTypeAnnotations {
		tan.Annotation.Accept(rv.VisitRecordComponentTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, true))
	}
	for _, tan := range n.InvisibleTypeAnnotations {
		tan.Annotation.Accept(rv.VisitRecordComponentTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, false))
	}
	for _, a := range n.Attrs {
		rv.VisitRecordComponentAttribute(a)
	}
	rv.VisitRecordComponentEnd()
}

// FieldNode mirrors one field_info plus its attributes.
type FieldNode struct {
	Access                       int
	Name, Descriptor, Signature string
	Value                        interface{}

	VisibleAnnotations, InvisibleAnnotations         []*AnnotationNode
	VisibleTypeAnnotations, InvisibleTypeAnnotations []*TypeAnnotationNode
	Attrs                                             []*classfile.Attribute
}

func (n *FieldNode) VisitFieldAnnotation(descriptor string, visible bool) classfile.AnnotationVisitor {
	an := NewAnnotationNode(descriptor, visible)
	if visible {
		n.VisibleAnnotations = append(n.VisibleAnnotations, an)
	} else {
		n.InvisibleAnnotations = append(n.InvisibleAnnotations, an)
	}
	return an
}

func (n *FieldNode) VisitFieldTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) classfile.AnnotationVisitor {
	tan := &TypeAnnotationNode{TypeRef: typeRef, TypePath: typePath, Annotation: NewAnnotationNode(descriptor, visible)}
	if visible {
		n.VisibleTypeAnnotations = append(n.VisibleTypeAnnotations, tan)
	} else {
		n.InvisibleTypeAnnotations = append(n.InvisibleTypeAnnotations, tan)
	}
	return tan.Annotation
}

func (n *FieldNode) VisitFieldAttribute(attr *classfile.Attribute) { n.Attrs = append(n.Attrs, attr) }

func (n *FieldNode) VisitFieldEnd() {}

var _ classfile.FieldVisitor = (*FieldNode)(nil)

func (n *FieldNode) Accept(fv classfile.FieldVisitor) {
	for _, an := range n.VisibleAnnotations {
		an.Accept(fv.VisitFieldAnnotation(an.Descriptor, true))
	}
	for _, an := range n.InvisibleAnnotations {
		an.Accept(fv.VisitFieldAnnotation(an.Descriptor, false))
	}
	for _, tan := range n.VisibleTypeAnnotations {
		tan.Annotation.Accept(fv.VisitFieldTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, true))
	}
	for _, tan := range n.InvisibleTypeAnnotations {
		tan.Annotation.Accept(fv.VisitFieldTypeAnnotation(tan.TypeRef, tan.TypePath, tan.Annotation.Descriptor, false))
	}
	for _, a := range n.Attrs {
		fv.VisitFieldAttribute(a)
	}
	fv.VisitFieldEnd()
}
