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

// FieldWriter implements FieldVisitor and emits one JVMS field_info
// structure. Construct one per field via ClassWriter.VisitField.
type FieldWriter struct {
	st *SymbolTable

	access     int
	name       string
	descriptor string
	signature  string
	value      interface{} // non-nil selects a ConstantValue attribute
	deprecated bool

	visibleAnnotations, invisibleAnnotations         annotationSet
	visibleTypeAnnotations, invisibleTypeAnnotations annotationSet

	attributes AttributeList
	majorVersion int
}

// NewFieldWriter constructs a writer for one field. value, if non-nil,
// is the constant-pool literal for a ConstantValue attribute (only legal
// on a static final field, per JVMS §4.7.2, but not enforced here --
// that's a verifier concern this codec doesn't take on).
func NewFieldWriter(st *SymbolTable, majorVersion, access int, name, descriptor, signature string, value interface{}) *FieldWriter {
	return &FieldWriter{st: st, majorVersion: majorVersion, access: access, name: name, descriptor: descriptor, signature: signature, value: value}
}

func (w *FieldWriter) VisitFieldAnnotation(descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleAnnotations.add(descriptor)
	}
	return w.invisibleAnnotations.add(descriptor)
}

func (w *FieldWriter) VisitFieldTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleTypeAnnotations.add(descriptor)
	}
	return w.invisibleTypeAnnotations.add(descriptor)
}

func (w *FieldWriter) VisitFieldAttribute(attr *Attribute) {
	if attr.Name == opcodes.AttrDeprecated && len(attr.Content) == 0 {
		w.deprecated = true
		return
	}
	w.attributes.Add(attr)
}

func (w *FieldWriter) VisitFieldEnd() {}

var _ FieldVisitor = (*FieldWriter)(nil)

// toFieldInfo serializes this field to its JVMS field_info bytes,
// sharing the attribute layout and helpers FieldWriter and
// RecordComponentWriter both need (see recordcomponentwriter.go).
func (w *FieldWriter) toFieldInfo() (*bytevector.ByteVector, error) {
	nameSym, err := w.st.AddConstantUtf8(w.name)
	if err != nil {
		return nil, err
	}
	descSym, err := w.st.AddConstantUtf8(w.descriptor)
	if err != nil {
		return nil, err
	}

	out := bytevector.New(32)
	out.PutShort(w.access)
	out.PutShort(nameSym.Index)
	out.PutShort(descSym.Index)

	attrCountPos := out.Len()
	attrCount := 0
	out.PutShort(0)

	if w.value != nil {
		sym, err := internConstantValue(w.st, w.value)
		if err != nil {
			return nil, err
		}
		if err := writeShortAttribute(out, w.st, opcodes.AttrConstantValue, sym.Index); err != nil {
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

// internConstantValue interns a field's constant literal -- one of the
// four primitive-wrapper or string forms JVMS §4.7.2 allows -- returning
// the Symbol writeShortAttribute should point ConstantValue's
// constantvalue_index at.
func internConstantValue(st *SymbolTable, value interface{}) (*Symbol, error) {
	switch v := value.(type) {
	case int32:
		return st.AddConstantInteger(v)
	case int:
		return st.AddConstantInteger(int32(v))
	case int64:
		return st.AddConstantLong(v)
	case float32:
		return st.AddConstantFloat(v)
	case float64:
		return st.AddConstantDouble(v)
	case string:
		return st.AddConstantString(v)
	case bool:
		n := int32(0)
		if v {
			n = 1
		}
		return st.AddConstantInteger(n)
	}
	return nil, newInvariantViolation("unsupported ConstantValue literal type")
}

// writeShortAttribute emits a two-byte-body attribute (ConstantValue's
// constantvalue_index, and nothing else has this exact shape).
func writeShortAttribute(out *bytevector.ByteVector, st *SymbolTable, attrName string, value int) error {
	nameIdx, err := st.AddConstantUtf8(attrName)
	if err != nil {
		return err
	}
	out.PutShort(nameIdx.Index)
	out.PutInt(2)
	out.PutShort(value)
	return nil
}

// writeAnnotationAttributes emits whichever of the four Runtime(In)visible
// (Type)Annotations attributes are non-empty, shared verbatim by
// MethodWriter, FieldWriter, and RecordComponentWriter.
func writeAnnotationAttributes(out *bytevector.ByteVector, st *SymbolTable, visible, invisible, visibleType, invisibleType *annotationSet) (int, error) {
	count := 0
	for _, pair := range []struct {
		set  *annotationSet
		name string
	}{
		{visible, opcodes.AttrRuntimeVisibleAnnotations},
		{invisible, opcodes.AttrRuntimeInvisibleAnnotations},
		{visibleType, opcodes.AttrRuntimeVisibleTypeAnnotations},
		{invisibleType, opcodes.AttrRuntimeInvisibleTypeAnnotations},
	} {
		if len(pair.set.items) == 0 {
			continue
		}
		if err := pair.set.writeAttribute(out, st, pair.name); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
