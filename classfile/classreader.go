/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"math"

	"github.com/go-classfile/asm/opcodes"
	"github.com/go-classfile/asm/trace"
)

// reader is a cursor over a class file's raw bytes. It has no JVMS
// knowledge; ClassReader is built on top of it the same way the source's
// parse() walks its own byte cursor by hand.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) u1() int {
	v := int(r.data[r.pos])
	r.pos++
	return v
}

func (r *reader) u2() int {
	v := int(r.data[r.pos])<<8 | int(r.data[r.pos+1])
	r.pos += 2
	return v
}

func (r *reader) u4() int {
	v := int(r.data[r.pos])<<24 | int(r.data[r.pos+1])<<16 | int(r.data[r.pos+2])<<8 | int(r.data[r.pos+3])
	r.pos += 4
	return v
}

func (r *reader) s4() int32 { return int32(r.u4()) }

func (r *reader) u8() int64 {
	hi := uint64(uint32(r.u4()))
	lo := uint64(uint32(r.u4()))
	return int64(hi<<32 | lo)
}

func (r *reader) f4() float32 { return math.Float32frombits(uint32(r.u4())) }
func (r *reader) f8() float64 { return math.Float64frombits(uint64(r.u8())) }

func (r *reader) bytes(n int) []byte {
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) skip(n int) { r.pos += n }

// rawConstant is one not-yet-resolved constant-pool slot: the tag plus
// whatever raw indices/immediates JVMS table 4.4-A defines for it. A
// second pass turns these into Symbols, because constant-pool entries
// are allowed to reference later indices.
type rawConstant struct {
	tag                    byte
	utf8                   string
	i32                    int32
	f32                    float32
	i64                    int64
	f64                    float64
	idx1, idx2             int // generic raw index fields, meaning depends on tag
	refKind                int
}

// ClassReader decodes one JVMS ClassFile structure and replays it,
// visitor-call by visitor-call, in a fixed order. Construct with
// NewClassReader, then call Accept once.
type ClassReader struct {
	data    []byte
	st      *SymbolTable
	bodyPos int // byte offset of access_flags, right after the constant pool
}

// NewClassReader parses the magic number, version, and constant pool
// eagerly (mirroring the source's single-pass parse()); Accept does the
// rest lazily, on demand.
func NewClassReader(data []byte) (result *ClassReader, err error) {
	defer func() {
		if p := recover(); p != nil {
			result, err = nil, newFormatError("truncated or malformed constant pool")
		}
	}()
	if len(data) < 10 {
		return nil, newFormatError("truncated class file header")
	}
	r := &reader{data: data}
	if r.u4() != opcodes.Magic {
		return nil, newFormatError("bad magic number")
	}
	minor := r.u2()
	major := r.u2()

	st := NewSymbolTable("")
	st.MinorVersion = minor
	st.MajorVersion = major

	if err := parseConstantPool(r, st); err != nil {
		return nil, err
	}

	cr := &ClassReader{data: data, st: st, bodyPos: r.pos}
	trace.Trace("ClassReader: parsed constant pool with entries")
	return cr, nil
}

// parseConstantPool reads every CONSTANT_* entry in two passes: raw
// fields first (tags, indices, immediates), then resolution of names and
// cross-references, since an entry may point at a later index.
func parseConstantPool(r *reader, st *SymbolTable) error {
	count := r.u2()
	raw := make([]*rawConstant, count) // 1-based; raw[0] unused
	index := 1
	for index < count {
		tag := byte(r.u1())
		rc := &rawConstant{tag: tag}
		switch tag {
		case opcodes.TagUtf8:
			length := r.u2()
			s, err := DecodeModifiedUTF8(r.bytes(length))
			if err != nil {
				return err
			}
			rc.utf8 = s
		case opcodes.TagInteger:
			rc.i32 = r.s4()
		case opcodes.TagFloat:
			rc.f32 = r.f4()
		case opcodes.TagLong:
			rc.i64 = r.u8()
		case opcodes.TagDouble:
			rc.f64 = r.f8()
		case opcodes.TagClass, opcodes.TagString, opcodes.TagMethodType, opcodes.TagModule, opcodes.TagPackage:
			rc.idx1 = r.u2()
		case opcodes.TagFieldref, opcodes.TagMethodref, opcodes.TagInterfaceMethodref, opcodes.TagNameAndType, opcodes.TagDynamic, opcodes.TagInvokeDynamic:
			rc.idx1 = r.u2()
			rc.idx2 = r.u2()
		case opcodes.TagMethodHandle:
			rc.refKind = r.u1()
			rc.idx1 = r.u2()
		default:
			return newFormatError("unknown constant pool tag")
		}
		raw[index] = rc
		if tag == opcodes.TagLong || tag == opcodes.TagDouble {
			index += 2 // JVMS §4.4.5: long/double occupy two pool slots
		} else {
			index++
		}
	}

	utf8At := func(i int) string {
		if i <= 0 || i >= len(raw) || raw[i] == nil {
			return ""
		}
		return raw[i].utf8
	}

	for i := 1; i < len(raw); i++ {
		rc := raw[i]
		if rc == nil {
			continue // second slot of a long/double
		}
		var sym *Symbol
		switch rc.tag {
		case opcodes.TagUtf8:
			sym = &Symbol{Tag: rc.tag, Value: rc.utf8}
		case opcodes.TagInteger:
			sym = &Symbol{Tag: rc.tag, IntVal: rc.i32}
		case opcodes.TagFloat:
			sym = &Symbol{Tag: rc.tag, FloatVal: rc.f32}
		case opcodes.TagLong:
			sym = &Symbol{Tag: rc.tag, LongVal: rc.i64}
			st.ReserveWideSlot(i + 1)
		case opcodes.TagDouble:
			sym = &Symbol{Tag: rc.tag, DoubleVal: rc.f64}
			st.ReserveWideSlot(i + 1)
		case opcodes.TagClass:
			sym = &Symbol{Tag: rc.tag, Value: utf8At(rc.idx1)}
		case opcodes.TagString:
			sym = &Symbol{Tag: rc.tag, Value: utf8At(rc.idx1)}
		case opcodes.TagMethodType:
			sym = &Symbol{Tag: rc.tag, Descriptor: utf8At(rc.idx1)}
		case opcodes.TagModule:
			sym = &Symbol{Tag: rc.tag, Value: utf8At(rc.idx1)}
		case opcodes.TagPackage:
			sym = &Symbol{Tag: rc.tag, Value: utf8At(rc.idx1)}
		case opcodes.TagNameAndType:
			sym = &Symbol{Tag: rc.tag, Name: utf8At(rc.idx1), Descriptor: utf8At(rc.idx2)}
		case opcodes.TagFieldref, opcodes.TagMethodref, opcodes.TagInterfaceMethodref:
			owner := classNameOf(raw, rc.idx1)
			name, desc := natOf(raw, rc.idx2)
			sym = &Symbol{Tag: rc.tag, Owner: owner, Name: name, Descriptor: desc}
		case opcodes.TagMethodHandle:
			ref := raw[rc.idx1]
			owner, name, desc := "", "", ""
			if ref != nil {
				owner = classNameOf(raw, ref.idx1)
				name, desc = natOf(raw, ref.idx2)
			}
			sym = &Symbol{Tag: rc.tag, RefKind: rc.refKind, Owner: owner, Name: name, Descriptor: desc}
		case opcodes.TagDynamic, opcodes.TagInvokeDynamic:
			name, desc := natOf(raw, rc.idx2)
			sym = &Symbol{Tag: rc.tag, Name: name, Descriptor: desc, BsmIndex: rc.idx1}
		default:
			return newFormatError("unresolvable constant pool tag")
		}
		st.AddExistingEntry(i, sym)
	}
	return nil
}

func classNameOf(raw []*rawConstant, index int) string {
	if index <= 0 || index >= len(raw) || raw[index] == nil {
		return ""
	}
	nameIdx := raw[index].idx1
	if nameIdx <= 0 || nameIdx >= len(raw) || raw[nameIdx] == nil {
		return ""
	}
	return raw[nameIdx].utf8
}

func natOf(raw []*rawConstant, index int) (name, descriptor string) {
	if index <= 0 || index >= len(raw) || raw[index] == nil {
		return "", ""
	}
	nat := raw[index]
	name = utf8OrEmpty(raw, nat.idx1)
	descriptor = utf8OrEmpty(raw, nat.idx2)
	return name, descriptor
}

func utf8OrEmpty(raw []*rawConstant, index int) string {
	if index <= 0 || index >= len(raw) || raw[index] == nil {
		return ""
	}
	return raw[index].utf8
}

func (cr *ClassReader) utf8(index int) string {
	sym := cr.st.Symbol(index)
	if sym == nil {
		return ""
	}
	return sym.Value
}

func (cr *ClassReader) className(index int) string {
	if index == 0 {
		return ""
	}
	sym := cr.st.Symbol(index)
	if sym == nil {
		return ""
	}
	return sym.Value
}

// skipAttributes advances r past a generic attributes[] array without
// interpreting any of it; used by the bootstrap-method prescan, which
// only cares about one class-level attribute and has no business
// decoding field or method attributes to get there.
func skipAttributes(r *reader) {
	count := r.u2()
	for i := 0; i < count; i++ {
		r.u2()
		length := r.u4()
		r.skip(length)
	}
}

// prescanBootstrapMethods walks the body once, generically, to reach and
// parse the BootstrapMethods class attribute before method bodies (which
// may reference it via invokedynamic/dynamic constants) are decoded. The
// class-file format only records it near the very end of the file, so a
// single forward pass can't resolve dynamic constants as it goes.
func (cr *ClassReader) prescanBootstrapMethods() []*BootstrapMethod {
	r := &reader{data: cr.data, pos: cr.bodyPos}
	r.u2() // access_flags
	r.u2() // this_class
	r.u2() // super_class
	ifaceCount := r.u2()
	r.skip(2 * ifaceCount)

	fieldCount := r.u2()
	for i := 0; i < fieldCount; i++ {
		r.skip(6) // access, name_index, descriptor_index
		skipAttributes(r)
	}
	methodCount := r.u2()
	for i := 0; i < methodCount; i++ {
		r.skip(6)
		skipAttributes(r)
	}

	classAttrCount := r.u2()
	for i := 0; i < classAttrCount; i++ {
		nameIdx := r.u2()
		length := r.u4()
		if cr.utf8(nameIdx) == opcodes.AttrBootstrapMethods {
			sub := &reader{data: r.bytes(length)}
			return parseBootstrapMethods(sub)
		}
		r.skip(length)
	}
	return nil
}

func parseBootstrapMethods(r *reader) []*BootstrapMethod {
	n := r.u2()
	list := make([]*BootstrapMethod, n)
	for i := 0; i < n; i++ {
		mh := r.u2()
		argCount := r.u2()
		args := make([]int, argCount)
		for j := range args {
			args[j] = r.u2()
		}
		list[i] = &BootstrapMethod{Index: i, MethodHandle: mh, Arguments: args}
	}
	return list
}
