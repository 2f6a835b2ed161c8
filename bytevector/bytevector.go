/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

// Package bytevector is the growable big-endian byte buffer every writer
// in this codec appends into. It is the one primitive with no JVMS
// knowledge at all: put a byte, a short, an int, a long, modified-UTF8,
// or a raw slice, and grow geometrically when the backing array is full.
package bytevector

// ByteVector is a growable sequence of bytes with a length cursor. Once
// content has been appended it is stable except where a caller explicitly
// overwrites a previously-reserved slot (label patching does this).
type ByteVector struct {
	data   []byte
	length int
}

// New returns an empty ByteVector with the given initial capacity hint.
func New(initialCapacity int) *ByteVector {
	if initialCapacity <= 0 {
		initialCapacity = 64
	}
	return &ByteVector{data: make([]byte, initialCapacity)}
}

// Len returns the number of bytes appended so far.
func (b *ByteVector) Len() int { return b.length }

// Bytes returns the valid portion of the backing array. The caller must
// not retain it across further mutation of b.
func (b *ByteVector) Bytes() []byte { return b.data[:b.length] }

func (b *ByteVector) ensure(extra int) {
	needed := b.length + extra
	if needed <= len(b.data) {
		return
	}
	newCap := len(b.data) * 2
	if newCap < needed {
		newCap = needed
	}
	grown := make([]byte, newCap)
	copy(grown, b.data[:b.length])
	b.data = grown
}

// PutByte appends the low 8 bits of v.
func (b *ByteVector) PutByte(v int) *ByteVector {
	b.ensure(1)
	b.data[b.length] = byte(v)
	b.length++
	return b
}

// Put11 appends two bytes, each truncated to 8 bits; used for the
// opcode+operand pairs that are common enough to warrant one call.
func (b *ByteVector) Put11(v1, v2 int) *ByteVector {
	b.ensure(2)
	b.data[b.length] = byte(v1)
	b.data[b.length+1] = byte(v2)
	b.length += 2
	return b
}

// PutShort appends the low 16 bits of v, big-endian.
func (b *ByteVector) PutShort(v int) *ByteVector {
	b.ensure(2)
	b.data[b.length] = byte(v >> 8)
	b.data[b.length+1] = byte(v)
	b.length += 2
	return b
}

// Put12 appends a byte followed by a short; the Code attribute's opcode +
// 16-bit operand shape.
func (b *ByteVector) Put12(v1, v2 int) *ByteVector {
	b.PutByte(v1)
	return b.PutShort(v2)
}

// PutInt appends the 32 bits of v, big-endian.
func (b *ByteVector) PutInt(v int) *ByteVector {
	b.ensure(4)
	b.data[b.length] = byte(v >> 24)
	b.data[b.length+1] = byte(v >> 16)
	b.data[b.length+2] = byte(v >> 8)
	b.data[b.length+3] = byte(v)
	b.length += 4
	return b
}

// PutLong appends the 64 bits of v, big-endian.
func (b *ByteVector) PutLong(v int64) *ByteVector {
	b.PutInt(int(v >> 32))
	b.PutInt(int(v))
	return b
}

// PutUtf8 appends encoded, preceded by its 2-byte length. It does no
// encoding of its own: encoded must already be JVM modified UTF-8, as
// produced by EncodeModifiedUTF8 (classfile/utf8.go).
func (b *ByteVector) PutUtf8(encoded []byte) *ByteVector {
	b.PutShort(len(encoded))
	return b.PutByteArray(encoded, 0, len(encoded))
}

// PutByteArray appends data[off:off+length].
func (b *ByteVector) PutByteArray(data []byte, off, length int) *ByteVector {
	b.ensure(length)
	copy(b.data[b.length:], data[off:off+length])
	b.length += length
	return b
}

// PutByteVector appends the valid contents of another ByteVector.
func (b *ByteVector) PutByteVector(other *ByteVector) *ByteVector {
	if other == nil {
		return b
	}
	return b.PutByteArray(other.data, 0, other.length)
}

// Overwrite replaces the bytes at [at, at+len(v)) with v. Used by label
// resolution to patch a previously-reserved forward-reference slot. The
// caller must ensure at+len(v) <= Len().
func (b *ByteVector) Overwrite(at int, v []byte) {
	copy(b.data[at:at+len(v)], v)
}

// OverwriteShort patches a 2-byte big-endian slot reserved earlier.
func (b *ByteVector) OverwriteShort(at, v int) {
	b.data[at] = byte(v >> 8)
	b.data[at+1] = byte(v)
}

// OverwriteInt patches a 4-byte big-endian slot reserved earlier.
func (b *ByteVector) OverwriteInt(at, v int) {
	b.data[at] = byte(v >> 24)
	b.data[at+1] = byte(v >> 16)
	b.data[at+2] = byte(v >> 8)
	b.data[at+3] = byte(v)
}

// ByteAt returns the byte previously written at index i, as an unsigned
// value in [0,255]. Used by widening passes that need to re-read an
// opcode they already emitted.
func (b *ByteVector) ByteAt(i int) int { return int(b.data[i]) }

// ShortAt returns the big-endian unsigned short previously written at i.
func (b *ByteVector) ShortAt(i int) int {
	return int(b.data[i])<<8 | int(b.data[i+1])
}
