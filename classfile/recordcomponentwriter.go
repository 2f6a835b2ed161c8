/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"github.com/go-classfile/asm/bytevector"
	"github.com/go-classfile/asm/opcodes"
)

// RecordComponentWriter implements RecordComponentVisitor and emits one
// record_component_info entry of a class's `Record` attribute (JVMS
// §4.7.30, class-file major >= 58). It shares FieldWriter's attribute
// helpers (writeStringAttribute, writeAnnotationAttributes) rather than
// duplicating them, since a record component's attribute set is
// signature/annotations/generic-attributes only -- no ConstantValue, no
// access flags, no Deprecated/Synthetic (JVMS forbids those on a record
// component).
type RecordComponentWriter struct {
	st *SymbolTable

	name       string
	descriptor string
	signature  string

	visibleAnnotations, invisibleAnnotations         annotationSet
	visibleTypeAnnotations, invisibleTypeAnnotations annotationSet

	attributes AttributeList
}

func NewRecordComponentWriter(st *SymbolTable, name, descriptor, signature string) *RecordComponentWriter {
	return &RecordComponentWriter{st: st, name: name, descriptor: descriptor, signature: signature}
}

func (w *RecordComponentWriter) VisitRecordComponentAnnotation(descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleAnnotations.add(descriptor)
	}
	return w.invisibleAnnotations.add(descriptor)
}

func (w *RecordComponentWriter) VisitRecordComponentTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleTypeAnnotations.add(descriptor)
	}
	return w.invisibleTypeAnnotations.add(descriptor)
}

func (w *RecordComponentWriter) VisitRecordComponentAttribute(attr *Attribute) {
	w.attributes.Add(attr)
}

func (w *RecordComponentWriter) VisitRecordComponentEnd() {}

var _ RecordComponentVisitor = (*RecordComponentWriter)(nil)

// toRecordComponentInfo serializes this component to its
// record_component_info bytes.
func (w *RecordComponentWriter) toRecordComponentInfo() (*bytevector.ByteVector, error) {
	nameSym, err := w.st.AddConstantUtf8(w.name)
	if err != nil {
		return nil, err
	}
	descSym, err := w.st.AddConstantUtf8(w.descriptor)
	if err != nil {
		return nil, err
	}

	out := bytevector.New(24)
	out.PutShort(nameSym.Index)
	out.PutShort(descSym.Index)

	attrCountPos := out.Len()
	attrCount := 0
	out.PutShort(0)

	if w.signature != "" {
		if err := writeStringAttribute(out, w.st, opcodes.AttrSignature, w.signature); err != nil {
			return nil, err
		}
		attrCount++
	}

	n, err := writeAnnotationAttributes(out, w.st, &w.visibleAnnotations, &w.invisibleAnnotations, &w.visibleTypeAnnotations, &w.invisibleTypeAnnotations)
	if err != nil {
		return nil, err
	}
	attrCount += n

	if len(w.attributes.Items()) > 0 {
		if err := w.attributes.write(out, w.st); err != nil {
			return nil, err
		}
		attrCount += len(w.attributes.Items())
	}

	out.OverwriteShort(attrCountPos, attrCount)
	return out, nil
}
