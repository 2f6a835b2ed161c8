/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import (
	"bytes"
	"testing"

	"github.com/go-classfile/asm/opcodes"
	"github.com/stretchr/testify/require"
)

// TestJsrRetSubroutineReachability builds the classic `finally`-style
// shape spec.md §4.5 describes: a JSR into a one-instruction subroutine
// that RETs back to the instruction right after the call. Under
// ComputeAllFrames, the instruction following the JSR is reachable only
// through the RET's back edge; without the subroutine-id and
// RET-fallthrough passes it is indistinguishable from dead code and
// gets replaced with NOP*;ATHROW.
func TestJsrRetSubroutineReachability(t *testing.T) {
	cw := NewClassWriter(ComputeAllFrames)
	cw.VisitHeader(0, opcodes.V8, opcodes.AccPublic|opcodes.AccSuper, "Sub", "", "java/lang/Object", nil)
	mw := cw.VisitMethod(opcodes.AccPublic|opcodes.AccStatic, "m", "()V", "", nil)
	mw.VisitCode()
	sub := NewLabel()
	mw.VisitJumpInsn(opcodes.JSR, sub)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitLabel(sub)
	mw.VisitVarInsn(opcodes.ASTORE, 0)
	mw.VisitVarInsn(opcodes.RET, 0)
	mw.VisitMaxs(0, 0)
	mw.VisitMethodEnd()
	cw.VisitEnd()

	data, err := cw.ToByteArray()
	require.NoError(t, err)

	// If the RETURN after the JSR had been marked unreachable, it would
	// have been overwritten with NOP/ATHROW instead.
	require.False(t, bytes.Contains(data, []byte{opcodes.NOP, byte(opcodes.ATHROW)}),
		"code reachable only via RET must not be replaced with NOP*;ATHROW in % X", data)
	require.True(t, bytes.Contains(data, []byte{byte(opcodes.RETURN)}),
		"expected the original RETURN instruction to survive in % X", data)

	cr, err := NewClassReader(data)
	require.NoError(t, err)
	cn := collectingVisitor{}
	require.NoError(t, cr.Accept(&cn))

	require.Len(t, cn.methods, 1)
	m := cn.methods[0]
	require.Equal(t, []collectedInsn{
		{opcode: opcodes.JSR},
		{opcode: opcodes.RETURN},
		{opcode: opcodes.ASTORE, varIndex: 0},
		{opcode: opcodes.RET, varIndex: 0},
	}, m.code)
}

// TestAssignSubroutinesMarksDistinctIds exercises the subroutine-id BFS
// pass directly: the method body (reached from the entry without ever
// crossing a JSR) gets id 0, and the subroutine body gets a distinct,
// nonzero id.
func TestAssignSubroutinesMarksDistinctIds(t *testing.T) {
	st := NewSymbolTable("Sub")
	st.MajorVersion = opcodes.V8
	mw := NewMethodWriter(st, opcodes.V8, opcodes.AccPublic|opcodes.AccStatic, "m", "()V", "", nil, ComputeAllFrames)
	mw.OwnerClass = "Sub"
	mw.VisitCode()
	sub := NewLabel()
	mw.VisitJumpInsn(opcodes.JSR, sub)
	mw.VisitInsn(opcodes.RETURN)
	mw.VisitLabel(sub)
	mw.VisitVarInsn(opcodes.ASTORE, 0)
	mw.VisitVarInsn(opcodes.RET, 0)
	mw.VisitMaxs(0, 0)

	mw.sizeFixpoint()
	mw.buildBlocks()
	mw.buildEdges()
	mw.assignSubroutines()
	mw.addSubroutineReturnEdges()

	require.Equal(t, 0, mw.entryLabel.SubroutineID)
	require.NotEqual(t, 0, sub.SubroutineID, "subroutine entry must get a distinct id from the main body")

	var foundReturnEdge bool
	for e := sub.Edges; e != nil; e = e.NextEdge {
		if e.Successor != nil {
			foundReturnEdge = true
		}
	}
	require.True(t, foundReturnEdge, "RET block must get a back edge to the JSR's fall-through")
}
