/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"fmt"

	"github.com/go-classfile/asm/opcodes"
)

// Symbol is one constant-pool (or bootstrap-method) entry: a JVMS tag plus
// kind-specific fields. Long and double constants occupy two consecutive
// pool indices; the second slot is a reservation with no independent
// Symbol of its own.
type Symbol struct {
	Index int
	Tag   byte

	Owner      string // internal class name, for refs/handles
	Name       string
	Descriptor string
	Value      string // UTF-8 payload, or class/string literal text

	IntVal    int32
	LongVal   int64
	FloatVal  float32
	DoubleVal float64

	RefKind  int // method-handle reference_kind, JVMS table 5.4.3.5
	BsmIndex int // for Dynamic/InvokeDynamic: index into the bootstrap method table

	// argsAndReturnSize caches a method-like symbol's descriptor stack
	// sizes: low 2 bits hold the return size (0/1/2), the remaining bits
	// hold the argument size. Computed lazily the first time it's asked
	// for.
	argsAndReturnSize int
}

// BootstrapMethod is one entry of the parallel BootstrapMethods table: a
// method handle plus its static arguments, all constant-pool indices.
type BootstrapMethod struct {
	Index         int
	MethodHandle  int // CP index of a MethodHandle symbol
	Arguments     []int
}

// SymbolTable is the constant pool plus the bootstrap-method table, with
// hash-consed interning: repeated addConstantX calls for structurally
// equal keys return the identical Symbol. A table built by ClassReader
// from an existing class's bytes preserves the original indices so
// bytecode copied bit-exact from that class still resolves.
type SymbolTable struct {
	MajorVersion int
	MinorVersion int
	ClassName    string // internal name of the class this table belongs to, for error messages

	entries []*Symbol // 1-based; entries[0] is the reserved "absent" slot
	byKey   map[string]*Symbol

	bootstraps    []*BootstrapMethod
	bootstrapsKey map[string]*BootstrapMethod
}

// NewSymbolTable returns an empty table (index 0 reserved).
func NewSymbolTable(className string) *SymbolTable {
	st := &SymbolTable{
		ClassName: className,
		entries:   make([]*Symbol, 1),
		byKey:     make(map[string]*Symbol),
	}
	return st
}

// ConstantPoolCount is the JVMS constant_pool_count: one more than the
// highest occupied index.
func (st *SymbolTable) ConstantPoolCount() int { return len(st.entries) }

// Symbol returns the entry at index, or nil if index is 0 or out of range.
func (st *SymbolTable) Symbol(index int) *Symbol {
	if index <= 0 || index >= len(st.entries) {
		return nil
	}
	return st.entries[index]
}

// Bootstraps returns the bootstrap method table in insertion order.
func (st *SymbolTable) Bootstraps() []*BootstrapMethod { return st.bootstraps }

// SetBootstrapMethods installs a bootstrap-method table parsed directly
// off an existing class file's BootstrapMethods attribute, preserving
// original indices. invokedynamic/dynamic constant-pool entries
// reference this table by index, not by value, so indices must survive
// unchanged.
func (st *SymbolTable) SetBootstrapMethods(list []*BootstrapMethod) {
	st.bootstraps = list
}

func (st *SymbolTable) reserve(tag byte, width int) (int, error) {
	index := len(st.entries)
	if index+width > 65535 {
		return 0, newPoolOverflow(st.ClassName)
	}
	for i := 0; i < width; i++ {
		st.entries = append(st.entries, nil)
	}
	return index, nil
}

func (st *SymbolTable) intern(key string, build func(index int) *Symbol, width int) (*Symbol, error) {
	if existing, ok := st.byKey[key]; ok {
		return existing, nil
	}
	index, err := st.reserve(0, width)
	if err != nil {
		return nil, err
	}
	sym := build(index)
	st.entries[index] = sym
	st.byKey[key] = sym
	return sym, nil
}

// AddExistingEntry inserts an already-indexed symbol read from a source
// class file, preserving its index exactly. Long/double reservations for
// the second slot are the caller's responsibility via ReserveWideSlot.
func (st *SymbolTable) AddExistingEntry(index int, sym *Symbol) {
	for len(st.entries) <= index {
		st.entries = append(st.entries, nil)
	}
	sym.Index = index
	st.entries[index] = sym
	st.byKey[sym.key()] = sym
}

// ReserveWideSlot marks index as occupied by the second (unused) slot of
// a long/double constant, without creating a Symbol for it.
func (st *SymbolTable) ReserveWideSlot(index int) {
	for len(st.entries) <= index {
		st.entries = append(st.entries, nil)
	}
}

func (s *Symbol) key() string {
	switch s.Tag {
	case opcodes.TagUtf8:
		return fmt.Sprintf("%d:%s", s.Tag, s.Value)
	case opcodes.TagInteger:
		return fmt.Sprintf("%d:%d", s.Tag, s.IntVal)
	case opcodes.TagFloat:
		return fmt.Sprintf("%d:%x", s.Tag, s.FloatVal)
	case opcodes.TagLong:
		return fmt.Sprintf("%d:%d", s.Tag, s.LongVal)
	case opcodes.TagDouble:
		return fmt.Sprintf("%d:%x", s.Tag, s.DoubleVal)
	case opcodes.TagClass, opcodes.TagString, opcodes.TagMethodType, opcodes.TagModule, opcodes.TagPackage:
		return fmt.Sprintf("%d:%s", s.Tag, s.Value)
	case opcodes.TagFieldref, opcodes.TagMethodref, opcodes.TagInterfaceMethodref:
		return fmt.Sprintf("%d:%s.%s%s", s.Tag, s.Owner, s.Name, s.Descriptor)
	case opcodes.TagNameAndType:
		return fmt.Sprintf("%d:%s%s", s.Tag, s.Name, s.Descriptor)
	case opcodes.TagMethodHandle:
		return fmt.Sprintf("%d:%d:%s.%s%s", s.Tag, s.RefKind, s.Owner, s.Name, s.Descriptor)
	case opcodes.TagDynamic, opcodes.TagInvokeDynamic:
		return fmt.Sprintf("%d:%d:%s%s", s.Tag, s.BsmIndex, s.Name, s.Descriptor)
	}
	return fmt.Sprintf("%d:%p", s.Tag, s)
}

// --- addConstantX operations ---

func (st *SymbolTable) AddConstantUtf8(value string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagUtf8, value), func(index int) *Symbol {
		return &Symbol{Index: index, Tag: opcodes.TagUtf8, Value: value}
	}, 1)
}

func (st *SymbolTable) AddConstantInteger(v int32) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%d", opcodes.TagInteger, v), func(index int) *Symbol {
		return &Symbol{Index: index, Tag: opcodes.TagInteger, IntVal: v}
	}, 1)
}

func (st *SymbolTable) AddConstantFloat(v float32) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%x", opcodes.TagFloat, v), func(index int) *Symbol {
		return &Symbol{Index: index, Tag: opcodes.TagFloat, FloatVal: v}
	}, 1)
}

// AddConstantLong reserves two consecutive indices per JVMS §4.4.5.
func (st *SymbolTable) AddConstantLong(v int64) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%d", opcodes.TagLong, v), func(index int) *Symbol {
		return &Symbol{Index: index, Tag: opcodes.TagLong, LongVal: v}
	}, 2)
}

// AddConstantDouble reserves two consecutive indices per JVMS §4.4.5.
func (st *SymbolTable) AddConstantDouble(v float64) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%x", opcodes.TagDouble, v), func(index int) *Symbol {
		return &Symbol{Index: index, Tag: opcodes.TagDouble, DoubleVal: v}
	}, 2)
}

func (st *SymbolTable) AddConstantClass(internalName string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagClass, internalName), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(internalName); err != nil {
			// unreachable: reserve() already validated room for this entry
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagClass, Value: internalName}
	}, 1)
}

func (st *SymbolTable) AddConstantString(value string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagString, value), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(value); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagString, Value: value}
	}, 1)
}

func (st *SymbolTable) addConstantNameAndType(name, descriptor string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s%s", opcodes.TagNameAndType, name, descriptor), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(name); err != nil {
			panic(err)
		}
		if _, err := st.AddConstantUtf8(descriptor); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagNameAndType, Name: name, Descriptor: descriptor}
	}, 1)
}

func (st *SymbolTable) addConstantMemberRef(tag byte, owner, name, descriptor string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s.%s%s", tag, owner, name, descriptor), func(index int) *Symbol {
		if _, err := st.AddConstantClass(owner); err != nil {
			panic(err)
		}
		if _, err := st.addConstantNameAndType(name, descriptor); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: tag, Owner: owner, Name: name, Descriptor: descriptor}
	}, 1)
}

func (st *SymbolTable) AddConstantFieldref(owner, name, descriptor string) (*Symbol, error) {
	return st.addConstantMemberRef(opcodes.TagFieldref, owner, name, descriptor)
}

func (st *SymbolTable) AddConstantMethodref(owner, name, descriptor string) (*Symbol, error) {
	return st.addConstantMemberRef(opcodes.TagMethodref, owner, name, descriptor)
}

func (st *SymbolTable) AddConstantInterfaceMethodref(owner, name, descriptor string) (*Symbol, error) {
	return st.addConstantMemberRef(opcodes.TagInterfaceMethodref, owner, name, descriptor)
}

func (st *SymbolTable) AddConstantMethodHandle(refKind int, owner, name, descriptor string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%d:%s.%s%s", opcodes.TagMethodHandle, refKind, owner, name, descriptor), func(index int) *Symbol {
		tag := byte(opcodes.TagMethodref)
		if refKind == 9 { // REF_invokeInterface
			tag = opcodes.TagInterfaceMethodref
		}
		if refKind >= 5 && refKind <= 8 || refKind == 9 {
			if _, err := st.addConstantMemberRef(tag, owner, name, descriptor); err != nil {
				panic(err)
			}
		} else {
			if _, err := st.AddConstantFieldref(owner, name, descriptor); err != nil {
				panic(err)
			}
		}
		return &Symbol{Index: index, Tag: opcodes.TagMethodHandle, RefKind: refKind, Owner: owner, Name: name, Descriptor: descriptor}
	}, 1)
}

func (st *SymbolTable) AddConstantMethodType(descriptor string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagMethodType, descriptor), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(descriptor); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagMethodType, Descriptor: descriptor}
	}, 1)
}

// AddConstantDynamic adds a CONSTANT_Dynamic entry; bsmIndex is the
// bootstrap-method-table index already returned by AddBootstrapMethod.
func (st *SymbolTable) AddConstantDynamic(name, descriptor string, bsmIndex int) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%d:%s%s", opcodes.TagDynamic, bsmIndex, name, descriptor), func(index int) *Symbol {
		if _, err := st.addConstantNameAndType(name, descriptor); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagDynamic, Name: name, Descriptor: descriptor, BsmIndex: bsmIndex}
	}, 1)
}

func (st *SymbolTable) AddConstantInvokeDynamic(name, descriptor string, bsmIndex int) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%d:%s%s", opcodes.TagInvokeDynamic, bsmIndex, name, descriptor), func(index int) *Symbol {
		if _, err := st.addConstantNameAndType(name, descriptor); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagInvokeDynamic, Name: name, Descriptor: descriptor, BsmIndex: bsmIndex}
	}, 1)
}

func (st *SymbolTable) AddConstantModule(name string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagModule, name), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(name); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagModule, Value: name}
	}, 1)
}

func (st *SymbolTable) AddConstantPackage(name string) (*Symbol, error) {
	return st.intern(fmt.Sprintf("%d:%s", opcodes.TagPackage, name), func(index int) *Symbol {
		if _, err := st.AddConstantUtf8(name); err != nil {
			panic(err)
		}
		return &Symbol{Index: index, Tag: opcodes.TagPackage, Value: name}
	}, 1)
}

// AddBootstrapMethod interns a (method_handle, arguments) pair, returning
// its index in the BootstrapMethods table.
func (st *SymbolTable) AddBootstrapMethod(methodHandleIndex int, arguments []int) int {
	if st.bootstrapsKey == nil {
		st.bootstrapsKey = make(map[string]*BootstrapMethod)
	}
	key := fmt.Sprintf("%d:%v", methodHandleIndex, arguments)
	if existing, ok := st.bootstrapsKey[key]; ok {
		return existing.Index
	}
	bm := &BootstrapMethod{Index: len(st.bootstraps), MethodHandle: methodHandleIndex, Arguments: arguments}
	st.bootstraps = append(st.bootstraps, bm)
	st.bootstrapsKey[key] = bm
	return bm.Index
}

// ArgumentsAndReturnSize returns the packed stack-size descriptor for a
// method-like symbol: low 2 bits are the return size (0/1/2 slots), the
// rest is the argument size, computed and cached on first use.
func (s *Symbol) ArgumentsAndReturnSize() int {
	if s.argsAndReturnSize == 0 {
		s.argsAndReturnSize = computeArgumentsAndReturnSize(s.Descriptor)
	}
	return s.argsAndReturnSize
}

func computeArgumentsAndReturnSize(descriptor string) int {
	argSize := 0
	i := 1 // skip leading '('
	for i < len(descriptor) && descriptor[i] != ')' {
		size, consumed := fieldDescriptorSize(descriptor, i)
		argSize += size
		i += consumed
	}
	returnSize := 0
	if i+1 < len(descriptor) {
		retDesc := descriptor[i+1:]
		if retDesc != "V" {
			size, _ := fieldDescriptorSize(retDesc, 0)
			returnSize = size
		}
	}
	return (argSize << 2) | returnSize
}

// fieldDescriptorSize returns the stack-slot size (1 or 2) of the field
// descriptor beginning at descriptor[i], and how many characters it
// consumed.
func fieldDescriptorSize(descriptor string, i int) (size, consumed int) {
	start := i
	for i < len(descriptor) && descriptor[i] == '[' {
		i++
	}
	if i >= len(descriptor) {
		return 1, i - start + 1
	}
	switch descriptor[i] {
	case 'J', 'D':
		if start != i { // array of long/double is a reference, 1 slot
			return 1, i - start + 1
		}
		return 2, i - start + 1
	case 'L':
		end := i
		for end < len(descriptor) && descriptor[end] != ';' {
			end++
		}
		return 1, end - start + 1
	default:
		return 1, i - start + 1
	}
}
