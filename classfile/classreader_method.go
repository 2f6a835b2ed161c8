/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/opcodes"

// decodeMethod replays one method_info through cv: the non-annotation
// attributes (parameters, annotation default, generic attributes) in the
// order they appear on disk, then annotations, code, end.
func decodeMethod(cv ClassVisitor, m memberRaw, cr *ClassReader) error {
	signature := cr.signatureOf(m.attrs)
	var exceptions []string
	if data, ok := extractAttr(m.attrs, opcodes.AttrExceptions); ok {
		exceptions = decodeClassList(data, cr)
	}

	mv := cv.VisitMethod(m.access, m.name, m.descriptor, signature, exceptions)

	var visAnn, invisAnn []byte
	var codeData []byte
	var haveCode bool

	for _, a := range m.attrs {
		switch a.name {
		case opcodes.AttrSignature, opcodes.AttrExceptions, opcodes.AttrSynthetic, opcodes.AttrBootstrapMethods:
			// Signature/Exceptions already consumed above; Synthetic is
			// re-derived from access flags; BootstrapMethods was consumed
			// by the class-level prescan.
		case opcodes.AttrDeprecated:
			mv.VisitMethodAttribute(&Attribute{Name: a.name})
		case opcodes.AttrMethodParameters:
			decodeMethodParameters(mv, a.data, cr)
		case opcodes.AttrAnnotationDefault:
			r := &reader{data: a.data}
			av := mv.VisitMethodAnnotationDefault()
			decodeElementValue(r, av, "", cr)
			av.VisitAnnotationEnd()
		case opcodes.AttrRuntimeVisibleAnnotations:
			visAnn = a.data
		case opcodes.AttrRuntimeInvisibleAnnotations:
			invisAnn = a.data
		case opcodes.AttrCode:
			codeData = a.data
			haveCode = true
		default:
			mv.VisitMethodAttribute(&Attribute{Name: a.name, Content: a.data})
		}
	}

	if err := decodeAnnotationSet(visAnn, true, mv.VisitMethodAnnotation, cr); err != nil {
		return err
	}
	if err := decodeAnnotationSet(invisAnn, false, mv.VisitMethodAnnotation, cr); err != nil {
		return err
	}

	if haveCode {
		mv.VisitCode()
		if err := decodeCode(mv, codeData, cr); err != nil {
			return err
		}
	}

	mv.VisitMethodEnd()
	return nil
}

func decodeMethodParameters(mv MethodVisitor, data []byte, cr *ClassReader) {
	r := &reader{data: data}
	n := r.u1()
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		access := r.u2()
		name := ""
		if nameIdx != 0 {
			name = cr.utf8(nameIdx)
		}
		mv.VisitParameter(name, access)
	}
}
