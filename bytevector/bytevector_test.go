/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package bytevector

import (
	"bytes"
	"testing"
)

func TestPutIntBigEndian(t *testing.T) {
	b := New(0)
	b.PutInt(0x12345678)
	want := []byte{0x12, 0x34, 0x56, 0x78}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("PutInt(0x12345678) = % X, want % X", got, want)
	}
}

func TestPutShortBigEndian(t *testing.T) {
	b := New(0)
	b.PutShort(0xCAFE)
	want := []byte{0xCA, 0xFE}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("PutShort(0xCAFE) = % X, want % X", got, want)
	}
}

func TestPutLongBigEndian(t *testing.T) {
	b := New(0)
	b.PutLong(0x0102030405060708)
	want := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("PutLong = % X, want % X", got, want)
	}
}

func TestGrowthPreservesContent(t *testing.T) {
	b := New(2)
	for i := 0; i < 100; i++ {
		b.PutByte(i)
	}
	if b.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", b.Len())
	}
	for i, got := range b.Bytes() {
		if got != byte(i) {
			t.Errorf("byte %d = %d, want %d", i, got, i)
		}
	}
}

func TestOverwritePatchesInPlace(t *testing.T) {
	b := New(0)
	b.PutShort(0) // reserve
	b.PutByte(0xFF)
	b.OverwriteShort(0, 0x1234)
	want := []byte{0x12, 0x34, 0xFF}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("after OverwriteShort, bytes = % X, want % X", got, want)
	}
}

func TestOverwriteIntPatchesInPlace(t *testing.T) {
	b := New(0)
	b.PutInt(0)
	b.OverwriteInt(0, -1)
	want := []byte{0xFF, 0xFF, 0xFF, 0xFF}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("after OverwriteInt, bytes = % X, want % X", got, want)
	}
}

func TestByteAtAndShortAtReadBackWhatWasWritten(t *testing.T) {
	b := New(0)
	b.PutByte(0x42)
	b.PutShort(0xBEEF)
	if got := b.ByteAt(0); got != 0x42 {
		t.Errorf("ByteAt(0) = %#x, want 0x42", got)
	}
	if got := b.ShortAt(1); got != 0xBEEF {
		t.Errorf("ShortAt(1) = %#x, want 0xBEEF", got)
	}
}

func TestPutByteArraySlice(t *testing.T) {
	b := New(0)
	src := []byte{1, 2, 3, 4, 5}
	b.PutByteArray(src, 1, 3)
	want := []byte{2, 3, 4}
	if got := b.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("PutByteArray slice = % X, want % X", got, want)
	}
}

func TestPutByteVectorAppendsOther(t *testing.T) {
	a := New(0)
	a.PutByte(1)
	b := New(0)
	b.PutByte(2)
	b.PutByte(3)
	a.PutByteVector(b)
	want := []byte{1, 2, 3}
	if got := a.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("PutByteVector = % X, want % X", got, want)
	}
}

func TestPutByteVectorNilIsNoop(t *testing.T) {
	a := New(0)
	a.PutByte(9)
	a.PutByteVector(nil)
	if got := a.Bytes(); !bytes.Equal(got, []byte{9}) {
		t.Errorf("PutByteVector(nil) mutated contents: % X", got)
	}
}
