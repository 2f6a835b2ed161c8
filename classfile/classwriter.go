/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"math"

	"github.com/go-classfile/asm/bytevector"
	"github.com/go-classfile/asm/opcodes"
	"github.com/go-classfile/asm/trace"
)

type innerClassEntry struct {
	name, outerName, innerName string
	access                     int
}

type moduleRequire struct {
	module, version string
	access           int
}

type moduleExportOrOpen struct {
	packaze string
	access  int
	modules []string
}

type moduleProvide struct {
	service   string
	providers []string
}

// ModuleWriter implements ModuleVisitor and buffers one `Module`
// attribute's requires/exports/opens/uses/provides tables.
type ModuleWriter struct {
	st *SymbolTable

	name    string
	access  int
	version string

	mainClass string
	packages  []string

	requires []moduleRequire
	exports  []moduleExportOrOpen
	opens    []moduleExportOrOpen
	uses     []string
	provides []moduleProvide
}

func newModuleWriter(st *SymbolTable, name string, access int, version string) *ModuleWriter {
	return &ModuleWriter{st: st, name: name, access: access, version: version}
}

func (m *ModuleWriter) VisitMainClass(mainClass string)   { m.mainClass = mainClass }
func (m *ModuleWriter) VisitPackage(packaze string)       { m.packages = append(m.packages, packaze) }
func (m *ModuleWriter) VisitRequire(module string, access int, version string) {
	m.requires = append(m.requires, moduleRequire{module, version, access})
}
func (m *ModuleWriter) VisitExport(packaze string, access int, modules []string) {
	m.exports = append(m.exports, moduleExportOrOpen{packaze, access, modules})
}
func (m *ModuleWriter) VisitOpen(packaze string, access int, modules []string) {
	m.opens = append(m.opens, moduleExportOrOpen{packaze, access, modules})
}
func (m *ModuleWriter) VisitUse(service string) { m.uses = append(m.uses, service) }
func (m *ModuleWriter) VisitProvide(service string, providers []string) {
	m.provides = append(m.provides, moduleProvide{service, providers})
}
func (m *ModuleWriter) VisitModuleEnd() {}

var _ ModuleVisitor = (*ModuleWriter)(nil)

func (m *ModuleWriter) write(out *bytevector.ByteVector) error {
	nameSym, err := m.st.AddConstantModule(m.name)
	if err != nil {
		return err
	}
	out.PutShort(nameSym.Index)
	out.PutShort(m.access)
	if m.version == "" {
		out.PutShort(0)
	} else {
		versionSym, err := m.st.AddConstantUtf8(m.version)
		if err != nil {
			return err
		}
		out.PutShort(versionSym.Index)
	}

	out.PutShort(len(m.requires))
	for _, r := range m.requires {
		sym, err := m.st.AddConstantModule(r.module)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
		out.PutShort(r.access)
		if r.version == "" {
			out.PutShort(0)
		} else {
			vsym, err := m.st.AddConstantUtf8(r.version)
			if err != nil {
				return err
			}
			out.PutShort(vsym.Index)
		}
	}

	if err := m.writeExportsOrOpens(out, m.exports); err != nil {
		return err
	}
	if err := m.writeExportsOrOpens(out, m.opens); err != nil {
		return err
	}

	out.PutShort(len(m.uses))
	for _, u := range m.uses {
		sym, err := m.st.AddConstantClass(u)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
	}

	out.PutShort(len(m.provides))
	for _, p := range m.provides {
		sym, err := m.st.AddConstantClass(p.service)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
		out.PutShort(len(p.providers))
		for _, prov := range p.providers {
			psym, err := m.st.AddConstantClass(prov)
			if err != nil {
				return err
			}
			out.PutShort(psym.Index)
		}
	}
	return nil
}

func (m *ModuleWriter) writeExportsOrOpens(out *bytevector.ByteVector, entries []moduleExportOrOpen) error {
	out.PutShort(len(entries))
	for _, e := range entries {
		sym, err := m.st.AddConstantPackage(e.packaze)
		if err != nil {
			return err
		}
		out.PutShort(sym.Index)
		out.PutShort(e.access)
		out.PutShort(len(e.modules))
		for _, mod := range e.modules {
			msym, err := m.st.AddConstantModule(mod)
			if err != nil {
				return err
			}
			out.PutShort(msym.Index)
		}
	}
	return nil
}

// ClassWriter implements ClassVisitor and assembles one JVMS ClassFile
// structure. Unlike MethodWriter, there's exactly one of these per
// class; it owns the SymbolTable every FieldWriter/MethodWriter/
// RecordComponentWriter child shares.
type ClassWriter struct {
	st *SymbolTable

	minorVersion, majorVersion int
	access                     int
	name, signature, superName string
	interfaces                 []string

	source, debug string

	module   *ModuleWriter
	nestHost string

	outerOwner, outerName, outerDescriptor string

	visibleAnnotations, invisibleAnnotations         annotationSet
	visibleTypeAnnotations, invisibleTypeAnnotations annotationSet
	attributes                                       AttributeList

	nestMembers        []string
	permittedSubclasses []string
	innerClasses       []innerClassEntry
	recordComponents   []*RecordComponentWriter
	isRecord           bool
	deprecated         bool

	fields  []*FieldWriter
	methods []*MethodWriter

	mode ComputeMode
}

// NewClassWriter constructs a writer with a fresh SymbolTable. mode
// controls every child MethodWriter's max-stack/frame computation
// strategy (see ComputeMode).
func NewClassWriter(mode ComputeMode) *ClassWriter {
	return &ClassWriter{st: NewSymbolTable(""), mode: mode}
}

func (w *ClassWriter) VisitHeader(minorVersion, majorVersion, accessFlags int, name, signature, superName string, interfaces []string) {
	w.minorVersion, w.majorVersion = minorVersion, majorVersion
	w.access, w.name, w.signature, w.superName = accessFlags, name, signature, superName
	w.interfaces = interfaces
	w.st.ClassName = name
	w.st.MajorVersion = majorVersion
	w.st.MinorVersion = minorVersion
}

func (w *ClassWriter) VisitSource(source, debug string) { w.source, w.debug = source, debug }

func (w *ClassWriter) VisitModule(name string, accessFlags int, version string) ModuleVisitor {
	w.module = newModuleWriter(w.st, name, accessFlags, version)
	return w.module
}

func (w *ClassWriter) VisitNestHost(nestHost string) { w.nestHost = nestHost }

func (w *ClassWriter) VisitOuterClass(owner, name, descriptor string) {
	w.outerOwner, w.outerName, w.outerDescriptor = owner, name, descriptor
}

func (w *ClassWriter) VisitAnnotation(descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleAnnotations.add(descriptor)
	}
	return w.invisibleAnnotations.add(descriptor)
}

func (w *ClassWriter) VisitTypeAnnotation(typeRef int, typePath string, descriptor string, visible bool) AnnotationVisitor {
	if visible {
		return w.visibleTypeAnnotations.add(descriptor)
	}
	return w.invisibleTypeAnnotations.add(descriptor)
}

func (w *ClassWriter) VisitAttribute(attr *Attribute) {
	if attr.Name == opcodes.AttrDeprecated && len(attr.Content) == 0 {
		w.deprecated = true
		return
	}
	w.attributes.Add(attr)
}

func (w *ClassWriter) VisitNestMember(nestMember string) {
	w.nestMembers = append(w.nestMembers, nestMember)
}

func (w *ClassWriter) VisitPermittedSubclass(permittedSubclass string) {
	w.permittedSubclasses = append(w.permittedSubclasses, permittedSubclass)
}

func (w *ClassWriter) VisitInnerClass(name, outerName, innerName string, access int) {
	w.innerClasses = append(w.innerClasses, innerClassEntry{name, outerName, innerName, access})
}

func (w *ClassWriter) VisitRecordComponent(name, descriptor, signature string) RecordComponentVisitor {
	w.isRecord = true
	rc := NewRecordComponentWriter(w.st, name, descriptor, signature)
	w.recordComponents = append(w.recordComponents, rc)
	return rc
}

func (w *ClassWriter) VisitField(access int, name, descriptor, signature string, value interface{}) FieldVisitor {
	fw := NewFieldWriter(w.st, w.majorVersion, access, name, descriptor, signature, value)
	w.fields = append(w.fields, fw)
	return fw
}

func (w *ClassWriter) VisitMethod(access int, name, descriptor, signature string, exceptions []string) MethodVisitor {
	mw := NewMethodWriter(w.st, w.majorVersion, access, name, descriptor, signature, exceptions, w.mode)
	mw.OwnerClass = w.name
	w.methods = append(w.methods, mw)
	return mw
}

func (w *ClassWriter) VisitEnd() {}

var _ ClassVisitor = (*ClassWriter)(nil)

// ToByteArray assembles the complete class file: header, constant pool,
// access flags, this/super/interfaces, fields, methods, and class-level
// attributes, in that JVMS §4.1 order. The constant pool itself is
// written last in wire order (it comes right after the magic/version)
// but is populated incrementally as every other section interns the
// symbols it needs -- so the *body* is built into a side buffer first,
// and the now-final pool is prepended once nothing else will grow it.
func (w *ClassWriter) ToByteArray() ([]byte, error) {
	thisSym, err := w.st.AddConstantClass(w.name)
	if err != nil {
		return nil, err
	}
	var superSym *Symbol
	if w.superName != "" {
		superSym, err = w.st.AddConstantClass(w.superName)
		if err != nil {
			return nil, err
		}
	}
	interfaceSyms := make([]*Symbol, len(w.interfaces))
	for i, iface := range w.interfaces {
		sym, err := w.st.AddConstantClass(iface)
		if err != nil {
			return nil, err
		}
		interfaceSyms[i] = sym
	}

	body := bytevector.New(256)
	body.PutShort(w.access)
	body.PutShort(thisSym.Index)
	if superSym != nil {
		body.PutShort(superSym.Index)
	} else {
		body.PutShort(0)
	}
	body.PutShort(len(interfaceSyms))
	for _, sym := range interfaceSyms {
		body.PutShort(sym.Index)
	}

	body.PutShort(len(w.fields))
	for _, f := range w.fields {
		info, err := f.toFieldInfo()
		if err != nil {
			return nil, err
		}
		body.PutByteVector(info)
	}

	body.PutShort(len(w.methods))
	for _, m := range w.methods {
		trace.Trace("ClassWriter: writing method " + w.name + "." + m.name + m.descriptor)
		info, err := m.toMethodInfo()
		if err != nil {
			return nil, err
		}
		body.PutByteVector(info)
	}

	classAttrs, count, err := w.buildClassAttributes()
	if err != nil {
		return nil, err
	}
	body.PutShort(count)
	body.PutByteVector(classAttrs)

	if w.st.ConstantPoolCount() > 65535 {
		return nil, newPoolOverflow(w.name)
	}

	out := bytevector.New(body.Len() + 256)
	out.PutInt(opcodes.Magic)
	out.PutShort(w.minorVersion)
	out.PutShort(w.majorVersion)
	out.PutShort(w.st.ConstantPoolCount())
	if err := writeConstantPool(out, w.st); err != nil {
		return nil, err
	}
	out.PutByteVector(body)

	return out.Bytes(), nil
}

// buildClassAttributes assembles every class-level attribute after
// SourceFile, SourceDebugExtension, Module and friends; since writing
// one attribute can intern new constant-pool entries, it has to finish
// before the caller knows the final constant_pool_count.
func (w *ClassWriter) buildClassAttributes() (*bytevector.ByteVector, int, error) {
	out := bytevector.New(128)
	count := 0

	if w.source != "" || w.debug != "" {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrSourceFile)
		if err != nil {
			return nil, 0, err
		}
		if w.source != "" {
			valueSym, err := w.st.AddConstantUtf8(w.source)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(nameIdx.Index)
			out.PutInt(2)
			out.PutShort(valueSym.Index)
			count++
		}
		if w.debug != "" {
			dbgNameIdx, err := w.st.AddConstantUtf8(opcodes.AttrSourceDebugExtension)
			if err != nil {
				return nil, 0, err
			}
			encoded, err := EncodeModifiedUTF8(w.debug)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(dbgNameIdx.Index)
			out.PutInt(len(encoded))
			out.PutByteArray(encoded, 0, len(encoded))
			count++
		}
	}

	if w.module != nil {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrModule)
		if err != nil {
			return nil, 0, err
		}
		body := bytevector.New(64)
		if err := w.module.write(body); err != nil {
			return nil, 0, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(body.Len())
		out.PutByteVector(body)
		count++

		if len(w.module.packages) > 0 {
			pkgNameIdx, err := w.st.AddConstantUtf8(opcodes.AttrModulePackages)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(pkgNameIdx.Index)
			out.PutInt(2 + 2*len(w.module.packages))
			out.PutShort(len(w.module.packages))
			for _, p := range w.module.packages {
				psym, err := w.st.AddConstantPackage(p)
				if err != nil {
					return nil, 0, err
				}
				out.PutShort(psym.Index)
			}
			count++
		}

		if w.module.mainClass != "" {
			mcNameIdx, err := w.st.AddConstantUtf8(opcodes.AttrModuleMainClass)
			if err != nil {
				return nil, 0, err
			}
			mcSym, err := w.st.AddConstantClass(w.module.mainClass)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(mcNameIdx.Index)
			out.PutInt(2)
			out.PutShort(mcSym.Index)
			count++
		}
	}

	if w.nestHost != "" {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrNestHost)
		if err != nil {
			return nil, 0, err
		}
		hostSym, err := w.st.AddConstantClass(w.nestHost)
		if err != nil {
			return nil, 0, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(2)
		out.PutShort(hostSym.Index)
		count++
	}

	if len(w.nestMembers) > 0 {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrNestMembers)
		if err != nil {
			return nil, 0, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(2 + 2*len(w.nestMembers))
		out.PutShort(len(w.nestMembers))
		for _, member := range w.nestMembers {
			sym, err := w.st.AddConstantClass(member)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(sym.Index)
		}
		count++
	}

	if w.outerOwner != "" {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrEnclosingMethod)
		if err != nil {
			return nil, 0, err
		}
		ownerSym, err := w.st.AddConstantClass(w.outerOwner)
		if err != nil {
			return nil, 0, err
		}
		methodIdx := 0
		if w.outerName != "" {
			natSym, err := w.st.addConstantNameAndType(w.outerName, w.outerDescriptor)
			if err != nil {
				return nil, 0, err
			}
			methodIdx = natSym.Index
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(4)
		out.PutShort(ownerSym.Index)
		out.PutShort(methodIdx)
		count++
	}

	if w.signature != "" {
		if err := writeStringAttribute(out, w.st, opcodes.AttrSignature, w.signature); err != nil {
			return nil, 0, err
		}
		count++
	}

	if w.deprecated {
		if err := writeMarkerAttribute(out, w.st, opcodes.AttrDeprecated); err != nil {
			return nil, 0, err
		}
		count++
	}

	if w.access&opcodes.AccSynthetic != 0 && w.majorVersion < opcodes.V5 {
		if err := writeMarkerAttribute(out, w.st, opcodes.AttrSynthetic); err != nil {
			return nil, 0, err
		}
		count++
	}

	n, err := writeAnnotationAttributes(out, w.st, &w.visibleAnnotations, &w.invisibleAnnotations, &w.visibleTypeAnnotations, &w.invisibleTypeAnnotations)
	if err != nil {
		return nil, 0, err
	}
	count += n

	if len(w.innerClasses) > 0 {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrInnerClasses)
		if err != nil {
			return nil, 0, err
		}
		body := bytevector.New(16 * len(w.innerClasses))
		body.PutShort(len(w.innerClasses))
		for _, ic := range w.innerClasses {
			innerSym, err := w.st.AddConstantClass(ic.name)
			if err != nil {
				return nil, 0, err
			}
			outerIdx := 0
			if ic.outerName != "" {
				outerSym, err := w.st.AddConstantClass(ic.outerName)
				if err != nil {
					return nil, 0, err
				}
				outerIdx = outerSym.Index
			}
			innerNameIdx := 0
			if ic.innerName != "" {
				innerNameSym, err := w.st.AddConstantUtf8(ic.innerName)
				if err != nil {
					return nil, 0, err
				}
				innerNameIdx = innerNameSym.Index
			}
			body.PutShort(innerSym.Index)
			body.PutShort(outerIdx)
			body.PutShort(innerNameIdx)
			body.PutShort(ic.access)
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(body.Len())
		out.PutByteVector(body)
		count++
	}

	if len(w.permittedSubclasses) > 0 {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrPermittedSubclasses)
		if err != nil {
			return nil, 0, err
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(2 + 2*len(w.permittedSubclasses))
		out.PutShort(len(w.permittedSubclasses))
		for _, sub := range w.permittedSubclasses {
			sym, err := w.st.AddConstantClass(sub)
			if err != nil {
				return nil, 0, err
			}
			out.PutShort(sym.Index)
		}
		count++
	}

	if w.isRecord {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrRecord)
		if err != nil {
			return nil, 0, err
		}
		body := bytevector.New(32 * len(w.recordComponents))
		body.PutShort(len(w.recordComponents))
		for _, rc := range w.recordComponents {
			info, err := rc.toRecordComponentInfo()
			if err != nil {
				return nil, 0, err
			}
			body.PutByteVector(info)
		}
		out.PutShort(nameIdx.Index)
		out.PutInt(body.Len())
		out.PutByteVector(body)
		count++
	}

	if bsms := w.st.Bootstraps(); len(bsms) > 0 {
		nameIdx, err := w.st.AddConstantUtf8(opcodes.AttrBootstrapMethods)
		if err != nil {
			return nil, 0, err
		}
		body := bytevector.New(16 * len(bsms)).PutShort(len(bsms))
		for _, bm := range bsms {
			body.PutShort(bm.MethodHandle).PutShort(len(bm.Arguments))
			for _, a := range bm.Arguments {
				body.PutShort(a)
			}
		}
		out.PutShort(nameIdx.Index).PutInt(body.Len()).PutByteVector(body)
		count++
	}

	if len(w.attributes.Items()) > 0 {
		if err := w.attributes.write(out, w.st); err != nil {
			return nil, 0, err
		}
		count += len(w.attributes.Items())
	}

	return out, count, nil
}

// writeConstantPool serializes the symbol table's entries in index
// order, reserved wide slots contributing nothing (JVMS §4.4.5).
func writeConstantPool(out *bytevector.ByteVector, st *SymbolTable) error {
	for i := 1; i < st.ConstantPoolCount(); i++ {
		sym := st.Symbol(i)
		if sym == nil {
			continue // second slot of a preceding long/double
		}
		if err := writeConstantEntry(out, st, sym); err != nil {
			return err
		}
	}
	return nil
}

func writeConstantEntry(out *bytevector.ByteVector, st *SymbolTable, sym *Symbol) error {
	out.PutByte(int(sym.Tag))
	switch sym.Tag {
	case opcodes.TagUtf8:
		encoded, err := EncodeModifiedUTF8(sym.Value)
		if err != nil {
			return err
		}
		out.PutUtf8(encoded)
	case opcodes.TagInteger:
		out.PutInt(int(sym.IntVal))
	case opcodes.TagFloat:
		out.PutInt(int(int32FromFloat(sym.FloatVal)))
	case opcodes.TagLong:
		out.PutLong(sym.LongVal)
	case opcodes.TagDouble:
		out.PutLong(int64FromDouble(sym.DoubleVal))
	case opcodes.TagClass, opcodes.TagString, opcodes.TagMethodType, opcodes.TagModule, opcodes.TagPackage:
		nameSym, err := utf8SymbolFor(st, sym)
		if err != nil {
			return err
		}
		out.PutShort(nameSym.Index)
	case opcodes.TagFieldref, opcodes.TagMethodref, opcodes.TagInterfaceMethodref:
		classSym, err := st.AddConstantClass(sym.Owner)
		if err != nil {
			return err
		}
		natSym, err := st.addConstantNameAndType(sym.Name, sym.Descriptor)
		if err != nil {
			return err
		}
		out.PutShort(classSym.Index)
		out.PutShort(natSym.Index)
	case opcodes.TagNameAndType:
		nameSym, err := st.AddConstantUtf8(sym.Name)
		if err != nil {
			return err
		}
		descSym, err := st.AddConstantUtf8(sym.Descriptor)
		if err != nil {
			return err
		}
		out.PutShort(nameSym.Index)
		out.PutShort(descSym.Index)
	case opcodes.TagMethodHandle:
		refSym, err := st.addConstantMemberRef(refKindTag(sym.RefKind), sym.Owner, sym.Name, sym.Descriptor)
		if err != nil {
			return err
		}
		out.PutByte(sym.RefKind)
		out.PutShort(refSym.Index)
	case opcodes.TagDynamic, opcodes.TagInvokeDynamic:
		natSym, err := st.addConstantNameAndType(sym.Name, sym.Descriptor)
		if err != nil {
			return err
		}
		out.PutShort(sym.BsmIndex)
		out.PutShort(natSym.Index)
	}
	return nil
}

// utf8SymbolFor interns (or reuses) the UTF-8 entry a Class/String/
// MethodType/Module/Package symbol points at -- these store the text
// directly rather than a separate index, because a reader reconstructs
// them from raw indices but a writer only ever builds them from a name.
func utf8SymbolFor(st *SymbolTable, sym *Symbol) (*Symbol, error) {
	if sym.Tag == opcodes.TagMethodType {
		return st.AddConstantUtf8(sym.Descriptor)
	}
	return st.AddConstantUtf8(sym.Value)
}

// refKindTag maps a method-handle reference_kind (JVMS table 5.4.3.5)
// back to the CONSTANT_Fieldref/Methodref/InterfaceMethodref tag its
// reference entry must carry.
func refKindTag(refKind int) byte {
	switch refKind {
	case 1, 2, 3, 4: // getField/getStatic/putField/putStatic
		return opcodes.TagFieldref
	case 5, 8: // invokeVirtual/newInvokeSpecial
		return opcodes.TagMethodref
	case 6, 7: // invokeStatic/invokeSpecial
		return opcodes.TagMethodref
	case 9: // invokeInterface
		return opcodes.TagInterfaceMethodref
	}
	return opcodes.TagMethodref
}

func int32FromFloat(f float32) int32 {
	return int32(math.Float32bits(f))
}

func int64FromDouble(d float64) int64 {
	return int64(math.Float64bits(d))
}
