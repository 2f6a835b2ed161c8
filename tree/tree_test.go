/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package tree

import (
	"testing"

	"github.com/go-classfile/asm/classfile"
	"github.com/go-classfile/asm/opcodes"
	"github.com/stretchr/testify/require"
)

// buildBranchMethod mirrors classfile's S2 scenario: a static method with
// a conditional branch and a StackMapTable frame at the join point.
func buildBranchMethod(t *testing.T) []byte {
	t.Helper()
	cw := classfile.NewClassWriter(classfile.ComputeAllFrames)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Branch", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "branch", "(Z)V", "", nil)
	mw.VisitCode()
	end := classfile.NewLabel()
	mw.VisitVarInsn(opcodes.ILOAD, 0)
	mw.VisitJumpInsn(opcodes.IFEQ, end)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitLabel(end)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitMaxs(0, 0)
	mw.VisitMethodEnd()
	cw.VisitEnd()
	data, err := cw.ToByteArray()
	require.NoError(t, err)
	return data
}

// TestClassNodeBuildsFromDecode checks that decoding into a ClassNode
// captures the header and method shape a direct-decode would see.
func TestClassNodeBuildsFromDecode(t *testing.T) {
	data := buildBranchMethod(t)
	cr, err := classfile.NewClassReader(data)
	require.NoError(t, err)

	cn := NewClassNode()
	require.NoError(t, cr.Accept(cn))

	require.Equal(t, "Branch", cn.Name)
	require.Equal(t, "java/lang/Object", cn.SuperName)
	require.Len(t, cn.Methods, 1)
	m := cn.Methods[0]
	require.Equal(t, "branch", m.Name)
	require.Equal(t, "(Z)V", m.Descriptor)
	require.True(t, m.HasCode)
}

// TestClassNodeAcceptReproducesBytes exercises the tree layer as a
// transparent hop in the reader -> tree -> writer chain: decoding into a
// ClassNode and replaying it into a fresh ClassWriter must reproduce the
// same bytes a direct reader -> writer pass would.
func TestClassNodeAcceptReproducesBytes(t *testing.T) {
	data := buildBranchMethod(t)

	cr1, err := classfile.NewClassReader(data)
	require.NoError(t, err)
	direct := classfile.NewClassWriter(classfile.ComputeAllFrames)
	require.NoError(t, cr1.Accept(direct))
	directBytes, err := direct.ToByteArray()
	require.NoError(t, err)

	cr2, err := classfile.NewClassReader(data)
	require.NoError(t, err)
	cn := NewClassNode()
	require.NoError(t, cr2.Accept(cn))
	viaTree := classfile.NewClassWriter(classfile.ComputeAllFrames)
	cn.Accept(viaTree)
	treeBytes, err := viaTree.ToByteArray()
	require.NoError(t, err)

	require.Equal(t, directBytes, treeBytes, "reader -> ClassNode -> writer must match reader -> writer")
}

// TestClassNodeAcceptIsRepeatable checks that replaying the same
// ClassNode into two independent writers produces identical output both
// times, confirming Accept doesn't mutate shared Label state across calls.
func TestClassNodeAcceptIsRepeatable(t *testing.T) {
	data := buildBranchMethod(t)
	cr, err := classfile.NewClassReader(data)
	require.NoError(t, err)
	cn := NewClassNode()
	require.NoError(t, cr.Accept(cn))

	w1 := classfile.NewClassWriter(classfile.ComputeAllFrames)
	cn.Accept(w1)
	b1, err := w1.ToByteArray()
	require.NoError(t, err)

	w2 := classfile.NewClassWriter(classfile.ComputeAllFrames)
	cn.Accept(w2)
	b2, err := w2.ToByteArray()
	require.NoError(t, err)

	require.Equal(t, b1, b2, "replaying the same ClassNode twice must be idempotent")
}
