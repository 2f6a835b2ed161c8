/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/bytevector"

// Attribute is a possibly-unknown class/field/method/record-component
// attribute: a type name plus an opaque payload. Known attributes
// (ConstantValue, Code, StackMapTable, ...) are modeled with their own
// struct fields elsewhere; Attribute exists purely for the ones this
// codec doesn't interpret, so a round-trip through a reader that has
// never heard of "Foo" still reproduces it byte-for-byte.
//
// A single Attribute type is shared by every node kind rather than one
// struct per owning node: callers store these in forward insertion
// order; the writer emits them in that same order.
type Attribute struct {
	Name    string
	Content []byte
}

// Size returns the bytes this attribute occupies in its containing
// attributes[] array: 2 (name index) + 4 (length) + len(Content).
func (a *Attribute) Size() int { return 6 + len(a.Content) }

// write emits attribute_name_index / attribute_length / info for a
// generic (unknown-to-us, or pass-through) attribute.
func (a *Attribute) write(out *bytevector.ByteVector, st *SymbolTable) error {
	nameSym, err := st.AddConstantUtf8(a.Name)
	if err != nil {
		return err
	}
	out.PutShort(nameSym.Index)
	out.PutInt(len(a.Content))
	out.PutByteArray(a.Content, 0, len(a.Content))
	return nil
}

// AttributeList is the ordered set of user attributes attached to one
// class/field/method/record-component node.
type AttributeList struct {
	items []*Attribute
}

func (l *AttributeList) Add(a *Attribute) { l.items = append(l.items, a) }

func (l *AttributeList) Items() []*Attribute { return l.items }

func (l *AttributeList) Size() int {
	total := 0
	for _, a := range l.items {
		total += a.Size()
	}
	return total
}

func (l *AttributeList) write(out *bytevector.ByteVector, st *SymbolTable) error {
	for _, a := range l.items {
		if err := a.write(out, st); err != nil {
			return err
		}
	}
	return nil
}
