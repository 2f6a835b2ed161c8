/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/opcodes"

// rawAttr is one not-yet-interpreted attribute_info entry: a resolved
// name plus its raw info[] bytes. Accept reads every attributes[] array
// generically first, then dispatches each entry by name. Some callbacks
// are made in a fixed order whatever the disk order (annotations, code);
// the remaining attributes are replayed in the order they appear on disk.
type rawAttr struct {
	name string
	data []byte
}

// memberRaw is one field_info or method_info, read generically before its
// attributes are known to belong to a field or a method.
type memberRaw struct {
	access               int
	name, descriptor     string
	attrs                []rawAttr
}

func readAttributes(r *reader, cr *ClassReader) []rawAttr {
	count := r.u2()
	attrs := make([]rawAttr, count)
	for i := 0; i < count; i++ {
		nameIdx := r.u2()
		length := r.u4()
		attrs[i] = rawAttr{name: cr.utf8(nameIdx), data: r.bytes(length)}
	}
	return attrs
}

func readMember(r *reader, cr *ClassReader) memberRaw {
	access := r.u2()
	nameIdx := r.u2()
	descIdx := r.u2()
	return memberRaw{access: access, name: cr.utf8(nameIdx), descriptor: cr.utf8(descIdx), attrs: readAttributes(r, cr)}
}

// extractAttr finds the (first) attribute with the given name, returning
// its raw body and whether one was present.
func extractAttr(attrs []rawAttr, name string) ([]byte, bool) {
	for _, a := range attrs {
		if a.name == name {
			return a.data, true
		}
	}
	return nil, false
}

// signatureOf decodes a Signature attribute's body, or "" if absent.
func (cr *ClassReader) signatureOf(attrs []rawAttr) string {
	data, ok := extractAttr(attrs, opcodes.AttrSignature)
	if !ok {
		return ""
	}
	r := &reader{data: data}
	return cr.utf8(r.u2())
}

// constantValue resolves an LDC-representable constant-pool entry into
// the interface{} shape the writer side (FieldWriter.value, MethodWriter
// VisitLdcInsn, bootstrap-method arguments) expects.
func (cr *ClassReader) constantValue(index int) interface{} {
	sym := cr.st.Symbol(index)
	if sym == nil {
		return nil
	}
	switch sym.Tag {
	case opcodes.TagInteger:
		return sym.IntVal
	case opcodes.TagFloat:
		return sym.FloatVal
	case opcodes.TagLong:
		return sym.LongVal
	case opcodes.TagDouble:
		return sym.DoubleVal
	case opcodes.TagString:
		return sym.Value
	case opcodes.TagClass:
		return &typeConstant{descriptor: sym.Value}
	case opcodes.TagMethodType:
		return &methodTypeConstant{descriptor: sym.Descriptor}
	case opcodes.TagMethodHandle:
		return &methodHandleConstant{refKind: sym.RefKind, owner: sym.Owner, name: sym.Name, descriptor: sym.Descriptor}
	case opcodes.TagDynamic:
		return &dynamicConstant{name: sym.Name, descriptor: sym.Descriptor, bsmIndex: sym.BsmIndex}
	}
	return nil
}

// Accept decodes the whole class body starting right after the constant
// pool and replays it, visitor-call by visitor-call, in the fixed order
// ClassVisitor documents.
func (cr *ClassReader) Accept(cv ClassVisitor) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = newFormatError("truncated or malformed class body")
		}
	}()
	r := &reader{data: cr.data, pos: cr.bodyPos}
	access := r.u2()
	thisIdx := r.u2()
	superIdx := r.u2()
	ifaceCount := r.u2()
	interfaces := make([]string, ifaceCount)
	for i := range interfaces {
		interfaces[i] = cr.className(r.u2())
	}

	cr.st.SetBootstrapMethods(cr.prescanBootstrapMethods())

	fieldCount := r.u2()
	fields := make([]memberRaw, fieldCount)
	for i := range fields {
		fields[i] = readMember(r, cr)
	}

	methodCount := r.u2()
	methods := make([]memberRaw, methodCount)
	for i := range methods {
		methods[i] = readMember(r, cr)
	}

	classAttrs := readAttributes(r, cr)

	var (
		sourceFile, sourceDebug               string
		moduleData, modulePackages, moduleMain []byte
		haveModule                             bool
		nestHost                               string
		nestMembers                            []string
		permittedSubclasses                    []string
		innerClassesData                       []byte
		haveInnerClasses                       bool
		enclosingMethodData                    []byte
		haveEnclosingMethod                    bool
		recordData                             []byte
		haveRecord                             bool
		deprecated                             bool
		visAnn, invisAnn                       []byte
		passthrough                            []rawAttr
	)

	for _, a := range classAttrs {
		switch a.name {
		case opcodes.AttrSourceFile:
			rr := &reader{data: a.data}
			sourceFile = cr.utf8(rr.u2())
		case opcodes.AttrSourceDebugExtension:
			s, err := DecodeModifiedUTF8(a.data)
			if err != nil {
				return err
			}
			sourceDebug = s
		case opcodes.AttrModule:
			moduleData = a.data
			haveModule = true
		case opcodes.AttrModulePackages:
			modulePackages = a.data
		case opcodes.AttrModuleMainClass:
			moduleMain = a.data
		case opcodes.AttrNestHost:
			rr := &reader{data: a.data}
			nestHost = cr.className(rr.u2())
		case opcodes.AttrNestMembers:
			nestMembers = decodeClassList(a.data, cr)
		case opcodes.AttrPermittedSubclasses:
			permittedSubclasses = decodeClassList(a.data, cr)
		case opcodes.AttrInnerClasses:
			innerClassesData = a.data
			haveInnerClasses = true
		case opcodes.AttrEnclosingMethod:
			enclosingMethodData = a.data
			haveEnclosingMethod = true
		case opcodes.AttrRecord:
			recordData = a.data
			haveRecord = true
		case opcodes.AttrDeprecated:
			deprecated = true
		case opcodes.AttrSignature, opcodes.AttrBootstrapMethods, opcodes.AttrSynthetic:
			// Signature is re-derived below via signatureOf; BootstrapMethods
			// was already consumed by the prescan; Synthetic is implied by
			// the access flags plus major version and would be emitted
			// again by the writer regardless, so it carries no information
			// this codec doesn't already have.
		case opcodes.AttrRuntimeVisibleAnnotations:
			visAnn = a.data
		case opcodes.AttrRuntimeInvisibleAnnotations:
			invisAnn = a.data
		default:
			// Type annotations, and anything this codec has no dedicated
			// model for, pass through byte-for-byte.
			passthrough = append(passthrough, a)
		}
	}

	signature := cr.signatureOf(classAttrs)
	thisName := cr.className(thisIdx)
	superName := cr.className(superIdx)

	cv.VisitHeader(cr.st.MinorVersion, cr.st.MajorVersion, access, thisName, signature, superName, interfaces)

	if sourceFile != "" || sourceDebug != "" {
		cv.VisitSource(sourceFile, sourceDebug)
	}

	if haveModule {
		name, macc, version, rest := moduleHeader(moduleData, cr)
		mv := cv.VisitModule(name, macc, version)
		decodeModuleBody(mv, rest, cr, modulePackages, moduleMain)
	}

	if nestHost != "" {
		cv.VisitNestHost(nestHost)
	}

	if haveEnclosingMethod {
		rr := &reader{data: enclosingMethodData}
		owner := cr.className(rr.u2())
		methodIdx := rr.u2()
		name, desc := "", ""
		if methodIdx != 0 {
			if sym := cr.st.Symbol(methodIdx); sym != nil {
				name, desc = sym.Name, sym.Descriptor
			}
		}
		cv.VisitOuterClass(owner, name, desc)
	}

	if err := decodeAnnotationSet(visAnn, true, cv.VisitAnnotation, cr); err != nil {
		return err
	}
	if err := decodeAnnotationSet(invisAnn, false, cv.VisitAnnotation, cr); err != nil {
		return err
	}

	if deprecated {
		cv.VisitAttribute(&Attribute{Name: opcodes.AttrDeprecated})
	}
	for _, a := range passthrough {
		cv.VisitAttribute(&Attribute{Name: a.name, Content: a.data})
	}

	for _, member := range nestMembers {
		cv.VisitNestMember(member)
	}
	for _, sub := range permittedSubclasses {
		cv.VisitPermittedSubclass(sub)
	}

	if haveInnerClasses {
		decodeInnerClasses(cv, innerClassesData, cr)
	}

	if haveRecord {
		if err := decodeRecordComponents(cv, recordData, cr); err != nil {
			return err
		}
	}

	for _, f := range fields {
		if err := decodeField(cv, f, cr); err != nil {
			return err
		}
	}

	for _, m := range methods {
		if err := decodeMethod(cv, m, cr); err != nil {
			return err
		}
	}

	cv.VisitEnd()
	return nil
}

func decodeClassList(data []byte, cr *ClassReader) []string {
	r := &reader{data: data}
	n := r.u2()
	out := make([]string, n)
	for i := range out {
		out[i] = cr.className(r.u2())
	}
	return out
}

func decodeInnerClasses(cv ClassVisitor, data []byte, cr *ClassReader) {
	r := &reader{data: data}
	n := r.u2()
	for i := 0; i < n; i++ {
		innerIdx := r.u2()
		outerIdx := r.u2()
		nameIdx := r.u2()
		access := r.u2()
		cv.VisitInnerClass(cr.className(innerIdx), cr.className(outerIdx), cr.utf8(nameIdx), access)
	}
}

func decodeRecordComponents(cv ClassVisitor, data []byte, cr *ClassReader) error {
	r := &reader{data: data}
	n := r.u2()
	for i := 0; i < n; i++ {
		nameIdx := r.u2()
		descIdx := r.u2()
		attrs := readAttributes(r, cr)
		signature := cr.signatureOf(attrs)
		rv := cv.VisitRecordComponent(cr.utf8(nameIdx), cr.utf8(descIdx), signature)

		var visAnn, invisAnn []byte
		for _, a := range attrs {
			switch a.name {
			case opcodes.AttrRuntimeVisibleAnnotations:
				visAnn = a.data
			case opcodes.AttrRuntimeInvisibleAnnotations:
				invisAnn = a.data
			case opcodes.AttrSignature:
			default:
				rv.VisitRecordComponentAttribute(&Attribute{Name: a.name, Content: a.data})
			}
		}
		if err := decodeAnnotationSet(visAnn, true, rv.VisitRecordComponentAnnotation, cr); err != nil {
			return err
		}
		if err := decodeAnnotationSet(invisAnn, false, rv.VisitRecordComponentAnnotation, cr); err != nil {
			return err
		}
		rv.VisitRecordComponentEnd()
	}
	return nil
}

func decodeField(cv ClassVisitor, f memberRaw, cr *ClassReader) error {
	signature := cr.signatureOf(f.attrs)
	var value interface{}
	if data, ok := extractAttr(f.attrs, opcodes.AttrConstantValue); ok {
		rr := &reader{data: data}
		value = cr.constantValue(rr.u2())
	}
	fv := cv.VisitField(f.access, f.name, f.descriptor, signature, value)

	var visAnn, invisAnn []byte
	for _, a := range f.attrs {
		switch a.name {
		case opcodes.AttrSignature, opcodes.AttrConstantValue, opcodes.AttrSynthetic, opcodes.AttrBootstrapMethods:
		case opcodes.AttrDeprecated:
			fv.VisitFieldAttribute(&Attribute{Name: a.name})
		case opcodes.AttrRuntimeVisibleAnnotations:
			visAnn = a.data
		case opcodes.AttrRuntimeInvisibleAnnotations:
			invisAnn = a.data
		default:
			fv.VisitFieldAttribute(&Attribute{Name: a.name, Content: a.data})
		}
	}
	if err := decodeAnnotationSet(visAnn, true, fv.VisitFieldAnnotation, cr); err != nil {
		return err
	}
	if err := decodeAnnotationSet(invisAnn, false, fv.VisitFieldAnnotation, cr); err != nil {
		return err
	}
	fv.VisitFieldEnd()
	return nil
}

func moduleHeader(data []byte, cr *ClassReader) (name string, access int, version string, rest *reader) {
	r := &reader{data: data}
	nameIdx := r.u2()
	access = r.u2()
	versionIdx := r.u2()
	name = cr.className(nameIdx)
	if versionIdx != 0 {
		version = cr.utf8(versionIdx)
	}
	return name, access, version, r
}

func decodeModuleBody(mv ModuleVisitor, r *reader, cr *ClassReader, packagesData, mainClassData []byte) {
	reqCount := r.u2()
	for i := 0; i < reqCount; i++ {
		modIdx := r.u2()
		access := r.u2()
		verIdx := r.u2()
		version := ""
		if verIdx != 0 {
			version = cr.utf8(verIdx)
		}
		mv.VisitRequire(cr.className(modIdx), access, version)
	}

	decodeExportsOrOpens := func(isOpen bool) {
		n := r.u2()
		for i := 0; i < n; i++ {
			pkgIdx := r.u2()
			access := r.u2()
			modCount := r.u2()
			mods := make([]string, modCount)
			for j := range mods {
				mods[j] = cr.className(r.u2())
			}
			if isOpen {
				mv.VisitOpen(cr.className(pkgIdx), access, mods)
			} else {
				mv.VisitExport(cr.className(pkgIdx), access, mods)
			}
		}
	}
	decodeExportsOrOpens(false)
	decodeExportsOrOpens(true)

	usesCount := r.u2()
	for i := 0; i < usesCount; i++ {
		mv.VisitUse(cr.className(r.u2()))
	}

	providesCount := r.u2()
	for i := 0; i < providesCount; i++ {
		serviceIdx := r.u2()
		provCount := r.u2()
		provs := make([]string, provCount)
		for j := range provs {
			provs[j] = cr.className(r.u2())
		}
		mv.VisitProvide(cr.className(serviceIdx), provs)
	}

	if packagesData != nil {
		pr := &reader{data: packagesData}
		n := pr.u2()
		for i := 0; i < n; i++ {
			mv.VisitPackage(cr.className(pr.u2()))
		}
	}
	if mainClassData != nil {
		mr := &reader{data: mainClassData}
		mv.VisitMainClass(cr.className(mr.u2()))
	}
	mv.VisitModuleEnd()
}
