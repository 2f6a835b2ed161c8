/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/bytevector"

// annotationWriter buffers one `annotation` structure (JVMS §4.7.16) as it
// is visited, and serializes it on demand. element_value entries that are
// themselves nested annotations or arrays are buffered recursively by the
// same type, mirroring the way MethodWriter buffers instructions before a
// final encode pass.
type annotationWriter struct {
	typeDescriptor string // "" for an array or annotation-default value with no named type
	hasType        bool
	entries        []annotationEntry
}

type annotationEntry struct {
	name string // "" inside an array
	kind byte   // element_value tag, JVMS table 4.7.16.1-A
	cst  interface{}
	enumDescriptor, enumValue string
	nested   *annotationWriter
	arrayVals []*annotationWriter
}

const (
	evByte      = 'B'
	evChar      = 'C'
	evDouble    = 'D'
	evFloat     = 'F'
	evInt       = 'I'
	evLong      = 'J'
	evShort     = 'S'
	evBoolean   = 'Z'
	evString    = 's'
	evEnum      = 'e'
	evClass     = 'c'
	evAnnotation = '@'
	evArray     = '['
)

func newAnnotationWriter(typeDescriptor string) *annotationWriter {
	return &annotationWriter{typeDescriptor: typeDescriptor, hasType: true}
}

func (a *annotationWriter) Visit(name string, value interface{}) {
	kind := byte(evInt)
	switch value.(type) {
	case string:
		kind = evString
	case float64:
		kind = evDouble
	case float32:
		kind = evFloat
	case int64:
		kind = evLong
	case bool:
		kind = evBoolean
	case byte:
		kind = evByte
	case rune:
		kind = evChar
	case int16:
		kind = evShort
	case *typeConstant:
		kind = evClass
	}
	a.entries = append(a.entries, annotationEntry{name: name, kind: kind, cst: value})
}

func (a *annotationWriter) VisitEnum(name, descriptor, value string) {
	a.entries = append(a.entries, annotationEntry{name: name, kind: evEnum, enumDescriptor: descriptor, enumValue: value})
}

func (a *annotationWriter) VisitAnnotation(name, descriptor string) AnnotationVisitor {
	nested := newAnnotationWriter(descriptor)
	a.entries = append(a.entries, annotationEntry{name: name, kind: evAnnotation, nested: nested})
	return nested
}

func (a *annotationWriter) VisitArray(name string) AnnotationVisitor {
	array := &annotationWriter{hasType: false}
	a.entries = append(a.entries, annotationEntry{name: name, kind: evArray, nested: array})
	return array
}

func (a *annotationWriter) VisitAnnotationEnd() {}

var _ AnnotationVisitor = (*annotationWriter)(nil)

// typeConstant marks a class-literal element_value (`Lcom/foo/Bar;` style
// descriptor passed to Visit for a "c" element).
type typeConstant struct{ descriptor string }

// size returns the encoded byte length of this `annotation` structure
// (when a.hasType) or, for an array writer, of the element_value[] it
// holds without an outer annotation wrapper.
func (a *annotationWriter) size(st *SymbolTable) (int, error) {
	n := 0
	if a.hasType {
		n += 2 // type_index
	}
	n += 2 // num_element_value_pairs, or num_values for a bare array
	for _, e := range a.entries {
		if a.hasType {
			n += 2 // element_name_index
		}
		s, err := e.size(st)
		if err != nil {
			return 0, err
		}
		n += s
	}
	return n, nil
}

func (e *annotationEntry) size(st *SymbolTable) (int, error) {
	n := 1 // tag
	switch e.kind {
	case evEnum:
		n += 4
	case evAnnotation:
		s, err := e.nested.size(st)
		if err != nil {
			return 0, err
		}
		n += s
	case evArray:
		s, err := e.nested.arraySize(st)
		if err != nil {
			return 0, err
		}
		n += s
	default:
		n += 2
	}
	return n, nil
}

// arraySize is like size but for the bare element_value[] body of an
// array writer: num_values (2 bytes) plus each member, no type_index.
func (a *annotationWriter) arraySize(st *SymbolTable) (int, error) {
	n := 2
	for _, e := range a.entries {
		s, err := e.size(st)
		if err != nil {
			return 0, err
		}
		n += s
	}
	return n, nil
}

func (a *annotationWriter) write(out *bytevector.ByteVector, st *SymbolTable) error {
	if a.hasType {
		sym, err := st.AddConstantUtf8(a.typeDescriptor)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	}
	out.PutShort(len(a.entries))
	for _, e := range a.entries {
		if a.hasType {
			nameSym, err := st.AddConstantUtf8(e.name)
			if err != nil {
				return err
			}
			out.PutShort(nameSym.Index)
		}
		if err := e.write(out, st); err != nil {
			return err
		}
	}
	return nil
}

func (e *annotationEntry) write(out *bytevector.ByteVector, st *SymbolTable) error {
	out.PutByte(int(e.kind))
	switch e.kind {
	case evString:
		sym, err := st.AddConstantUtf8(e.cst.(string))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evDouble:
		sym, err := st.AddConstantDouble(e.cst.(float64))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evFloat:
		sym, err := st.AddConstantFloat(e.cst.(float32))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evLong:
		sym, err := st.AddConstantLong(e.cst.(int64))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evBoolean:
		v := 0
		if e.cst.(bool) {
			v = 1
		}
		sym, err := st.AddConstantInteger(int32(v))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evByte, evChar, evShort, evInt:
		sym, err := st.AddConstantInteger(toInt32(e.cst))
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evClass:
		sym, err := st.AddConstantUtf8(e.cst.(*typeConstant).descriptor)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	case evEnum:
		descSym, err := st.AddConstantUtf8(e.enumDescriptor)
		if err != nil {
			return err
		}
		valSym, err := st.AddConstantUtf8(e.enumValue)
		if err != nil {
			return err
		}
		out.PutShort(descSym.Index)
		out.PutShort(valSym.Index)
	case evAnnotation:
		if err := e.nested.write(out, st); err != nil {
			return err
		}
	case evArray:
		out.PutShort(len(e.nested.entries))
		for _, sub := range e.nested.entries {
			if err := sub.write(out, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func toInt32(v interface{}) int32 {
	switch n := v.(type) {
	case int32:
		return n
	case int:
		return int32(n)
	case byte:
		return int32(n)
	case int16:
		return int32(n)
	}
	return 0
}

// annotationSet is an ordered list of top-level annotations, used to
// build one RuntimeVisible/InvisibleAnnotations (or TypeAnnotations)
// attribute.
type annotationSet struct {
	items []*annotationWriter
}

func (s *annotationSet) add(descriptor string) *annotationWriter {
	w := newAnnotationWriter(descriptor)
	s.items = append(s.items, w)
	return w
}

func (s *annotationSet) size(st *SymbolTable) (int, error) {
	n := 2
	for _, a := range s.items {
		sz, err := a.size(st)
		if err != nil {
			return 0, err
		}
		n += sz
	}
	return n, nil
}

func (s *annotationSet) write(out *bytevector.ByteVector, st *SymbolTable) error {
	out.PutShort(len(s.items))
	for _, a := range s.items {
		if err := a.write(out, st); err != nil {
			return err
		}
	}
	return nil
}

func (s *annotationSet) writeAttribute(out *bytevector.ByteVector, st *SymbolTable, attrName string) error {
	if len(s.items) == 0 {
		return nil
	}
	nameSym, err := st.AddConstantUtf8(attrName)
	if err != nil {
		return err
	}
	size, err := s.size(st)
	if err != nil {
		return err
	}
	out.PutShort(nameSym.Index)
	out.PutInt(size)
	return s.write(out, st)
}
