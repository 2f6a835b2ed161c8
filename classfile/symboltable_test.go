/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddConstantUtf8Interns(t *testing.T) {
	st := NewSymbolTable("Foo")
	a, err := st.AddConstantUtf8("hello")
	require.NoError(t, err)
	b, err := st.AddConstantUtf8("hello")
	require.NoError(t, err)
	require.Same(t, a, b, "two AddConstantUtf8 calls for the same string must return the same Symbol")
	require.Equal(t, a.Index, b.Index)
}

func TestAddConstantClassInterns(t *testing.T) {
	st := NewSymbolTable("Foo")
	a, err := st.AddConstantClass("java/lang/Object")
	require.NoError(t, err)
	b, err := st.AddConstantClass("java/lang/Object")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestDistinctConstantsGetDistinctIndices(t *testing.T) {
	st := NewSymbolTable("Foo")
	a, err := st.AddConstantUtf8("alpha")
	require.NoError(t, err)
	b, err := st.AddConstantUtf8("beta")
	require.NoError(t, err)
	require.NotEqual(t, a.Index, b.Index)
}

func TestAddConstantLongReservesTwoSlots(t *testing.T) {
	st := NewSymbolTable("Foo")
	first, err := st.AddConstantUtf8("marker")
	require.NoError(t, err)
	long, err := st.AddConstantLong(42)
	require.NoError(t, err)
	next, err := st.AddConstantUtf8("afterLong")
	require.NoError(t, err)
	require.Equal(t, first.Index+1, long.Index)
	require.Equal(t, long.Index+2, next.Index, "a long/double occupies two consecutive pool slots")
}

func TestAddConstantFieldrefInternsStructurally(t *testing.T) {
	st := NewSymbolTable("Foo")
	a, err := st.AddConstantFieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	require.NoError(t, err)
	b, err := st.AddConstantFieldref("java/lang/System", "out", "Ljava/io/PrintStream;")
	require.NoError(t, err)
	require.Same(t, a, b)

	c, err := st.AddConstantFieldref("java/lang/System", "err", "Ljava/io/PrintStream;")
	require.NoError(t, err)
	require.NotSame(t, a, c)
}

func TestAddBootstrapMethodInterns(t *testing.T) {
	st := NewSymbolTable("Foo")
	i1 := st.AddBootstrapMethod(5, []int{1, 2, 3})
	i2 := st.AddBootstrapMethod(5, []int{1, 2, 3})
	require.Equal(t, i1, i2, "structurally equal bootstrap method entries must share an index")

	i3 := st.AddBootstrapMethod(5, []int{1, 2, 4})
	require.NotEqual(t, i1, i3)
	require.Len(t, st.Bootstraps(), 2)
}

func TestConstantPoolOverflow(t *testing.T) {
	st := NewSymbolTable("Foo")
	var lastErr error
	for i := 0; i < 70000; i++ {
		_, err := st.AddConstantUtf8(fmt.Sprintf("entry%d", i))
		if err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	_, ok := lastErr.(*PoolOverflow)
	require.True(t, ok, "expected *PoolOverflow, got %T", lastErr)
}

func TestArgumentsAndReturnSize(t *testing.T) {
	sym := &Symbol{Descriptor: "(IJLjava/lang/String;)V"}
	size := sym.ArgumentsAndReturnSize()
	returnSize := size & 0x3
	argSize := size >> 2
	require.Equal(t, 0, returnSize, "void return has size 0")
	require.Equal(t, 4, argSize, "int(1) + long(2) + reference(1) = 4 argument slots")
}
