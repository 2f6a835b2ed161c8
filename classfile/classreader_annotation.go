/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

// decodeAnnotationSet replays a RuntimeVisible/InvisibleAnnotations
// attribute body (JVMS §4.7.16) through whichever VisitXAnnotation
// callback a node kind exposes. data may be nil (no such attribute was
// present), in which case this is a no-op.
func decodeAnnotationSet(data []byte, visible bool, add func(descriptor string, visible bool) AnnotationVisitor, cr *ClassReader) error {
	if data == nil {
		return nil
	}
	r := &reader{data: data}
	n := r.u2()
	for i := 0; i < n; i++ {
		descriptor := cr.utf8(r.u2())
		av := add(descriptor, visible)
		decodeElementValuePairs(r, av, cr)
		av.VisitAnnotationEnd()
	}
	return nil
}

func decodeElementValuePairs(r *reader, av AnnotationVisitor, cr *ClassReader) {
	n := r.u2()
	for i := 0; i < n; i++ {
		name := cr.utf8(r.u2())
		decodeElementValue(r, av, name, cr)
	}
}

// decodeElementValue is the exact structural reciprocal of
// annotationEntry.write in annotationwriter.go: one element_value tag
// byte followed by its tag-specific payload.
func decodeElementValue(r *reader, av AnnotationVisitor, name string, cr *ClassReader) {
	tag := byte(r.u1())
	switch tag {
	case evByte:
		av.Visit(name, byte(cr.intValue(r.u2())))
	case evChar:
		av.Visit(name, rune(cr.intValue(r.u2())))
	case evDouble:
		av.Visit(name, cr.doubleValue(r.u2()))
	case evFloat:
		av.Visit(name, cr.floatValue(r.u2()))
	case evInt:
		av.Visit(name, int(cr.intValue(r.u2())))
	case evLong:
		av.Visit(name, cr.longValue(r.u2()))
	case evShort:
		av.Visit(name, int16(cr.intValue(r.u2())))
	case evBoolean:
		av.Visit(name, cr.intValue(r.u2()) != 0)
	case evString:
		av.Visit(name, cr.utf8(r.u2()))
	case evClass:
		av.Visit(name, &typeConstant{descriptor: cr.utf8(r.u2())})
	case evEnum:
		descIdx := r.u2()
		valIdx := r.u2()
		av.VisitEnum(name, cr.utf8(descIdx), cr.utf8(valIdx))
	case evAnnotation:
		descriptor := cr.utf8(r.u2())
		nested := av.VisitAnnotation(name, descriptor)
		decodeElementValuePairs(r, nested, cr)
		nested.VisitAnnotationEnd()
	case evArray:
		n := r.u2()
		arr := av.VisitArray(name)
		for i := 0; i < n; i++ {
			decodeElementValue(r, arr, "", cr)
		}
		arr.VisitAnnotationEnd()
	}
}

func (cr *ClassReader) intValue(index int) int32 {
	if sym := cr.st.Symbol(index); sym != nil {
		return sym.IntVal
	}
	return 0
}

func (cr *ClassReader) floatValue(index int) float32 {
	if sym := cr.st.Symbol(index); sym != nil {
		return sym.FloatVal
	}
	return 0
}

func (cr *ClassReader) longValue(index int) int64 {
	if sym := cr.st.Symbol(index); sym != nil {
		return sym.LongVal
	}
	return 0
}

func (cr *ClassReader) doubleValue(index int) float64 {
	if sym := cr.st.Symbol(index); sym != nil {
		return sym.DoubleVal
	}
	return 0
}
