/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

// vtype is one not-yet-resolved verification_type_info entry (JVMS
// §4.7.4): a tag plus whatever payload that tag carries. A second step
// turns these into the int/string/*Label shapes VisitFrame expects, once
// every Uninitialized-type's NEW-instruction offset has a Label.
type vtype struct {
	kind      int // 0-6 direct constant tag, 7 Object, 8 Uninitialized
	name      string
	newOffset int
}

func decodeVerificationType(r *reader, cr *ClassReader) vtype {
	tag := r.u1()
	switch tag {
	case 7:
		return vtype{kind: 7, name: cr.className(r.u2())}
	case 8:
		return vtype{kind: 8, newOffset: r.u2()}
	default:
		return vtype{kind: tag}
	}
}

func toVisitValue(v vtype, getLabel func(int) *Label) interface{} {
	switch v.kind {
	case 7:
		return v.name
	case 8:
		return getLabel(v.newOffset)
	default:
		return v.kind
	}
}

func toVisitValues(vs []vtype, getLabel func(int) *Label) []interface{} {
	out := make([]interface{}, len(vs))
	for i, v := range vs {
		out[i] = toVisitValue(v, getLabel)
	}
	return out
}

// decodedFrame is one decoded StackMapTable entry, still holding its
// locals/stack as unresolved vtypes.
type decodedFrame struct {
	offset int
	locals []vtype
	stack  []vtype
}

// decodeStackMapTable decodes a whole StackMapTable (or legacy StackMap)
// attribute body into per-frame descriptors, in wire order. needLabel is
// called once for every bytecode offset a label must exist at: each
// frame's own offset, plus any Uninitialized verification type's
// NEW-instruction offset.
func decodeStackMapTable(data []byte, cr *ClassReader, needLabel func(int)) []decodedFrame {
	r := &reader{data: data}
	n := r.u2()
	frames := make([]decodedFrame, 0, n)
	prevOffset := -1
	var prevLocals []vtype

	for i := 0; i < n; i++ {
		frameType := r.u1()
		var offsetDelta int
		var locals, stack []vtype

		switch {
		case frameType <= 63:
			offsetDelta = frameType
			locals = prevLocals
		case frameType <= 127:
			offsetDelta = frameType - 64
			locals = prevLocals
			stack = []vtype{decodeVerificationType(r, cr)}
		case frameType == 247:
			offsetDelta = r.u2()
			locals = prevLocals
			stack = []vtype{decodeVerificationType(r, cr)}
		case frameType >= 248 && frameType <= 250:
			offsetDelta = r.u2()
			k := 251 - frameType
			if k <= len(prevLocals) {
				locals = append([]vtype{}, prevLocals[:len(prevLocals)-k]...)
			}
		case frameType == 251:
			offsetDelta = r.u2()
			locals = prevLocals
		case frameType >= 252 && frameType <= 254:
			offsetDelta = r.u2()
			k := frameType - 251
			locals = append([]vtype{}, prevLocals...)
			for j := 0; j < k; j++ {
				locals = append(locals, decodeVerificationType(r, cr))
			}
		default: // 255, FULL_FRAME
			offsetDelta = r.u2()
			numLocal := r.u2()
			locals = make([]vtype, numLocal)
			for j := range locals {
				locals[j] = decodeVerificationType(r, cr)
			}
			numStack := r.u2()
			stack = make([]vtype, numStack)
			for j := range stack {
				stack[j] = decodeVerificationType(r, cr)
			}
		}

		offset := offsetDelta
		if prevOffset != -1 {
			offset = prevOffset + offsetDelta + 1
		}

		frames = append(frames, decodedFrame{offset: offset, locals: locals, stack: stack})
		needLabel(offset)
		for _, v := range locals {
			if v.kind == 8 {
				needLabel(v.newOffset)
			}
		}
		for _, v := range stack {
			if v.kind == 8 {
				needLabel(v.newOffset)
			}
		}

		prevOffset = offset
		prevLocals = locals
	}
	return frames
}
